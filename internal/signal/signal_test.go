package signal

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chidi150c/futurescore/internal/domain"
	"github.com/chidi150c/futurescore/internal/indicator"
	"github.com/chidi150c/futurescore/internal/repository"
)

func TestBuildResolvesRegisteredAnalyzers(t *testing.T) {
	for _, name := range []string{"micro_model", "ma_regime", "rsi_reversion"} {
		a, ok := Build(AnalyzerConfig{Name: name})
		require.True(t, ok, "expected %s to be registered", name)
		assert.NotNil(t, a)
	}

	_, ok := Build(AnalyzerConfig{Name: "not_a_real_analyzer"})
	assert.False(t, ok)
}

type stubAnalyzer struct {
	name string
	sig  domain.Signal
}

func (s stubAnalyzer) Name() string { return s.name }
func (s stubAnalyzer) Analyze([]domain.Candle, indicator.Cache, string) domain.Signal {
	return s.sig
}

type panickingAnalyzer struct{}

func (panickingAnalyzer) Name() string { return "boom" }
func (panickingAnalyzer) Analyze([]domain.Candle, indicator.Cache, string) domain.Signal {
	panic("analyzer exploded")
}

func TestCollectSignalsDropsHoldAndStampsWeightPriority(t *testing.T) {
	analyzers := []Analyzer{
		stubAnalyzer{name: "long_one", sig: domain.Signal{Direction: domain.Long, Confidence: 70}},
		stubAnalyzer{name: "hold_one", sig: domain.Signal{Direction: domain.Hold}},
	}
	weights := map[string]float64{"long_one": 0.6}
	priorities := map[string]int{"long_one": 2}

	repo := repository.NewMarketDataRepository(func() time.Time { return time.Now() })
	cache := indicator.NewCache(repo)

	out := CollectSignals(analyzers, weights, priorities, nil, cache, "5m", 100, zerolog.Nop())

	require.Len(t, out, 1, "HOLD signal should be dropped")
	assert.Equal(t, 0.6, out[0].Weight)
	assert.Equal(t, 2, out[0].Priority)
	assert.Equal(t, 100.0, out[0].Price)
}

func TestCollectSignalsExcludesPanickingAnalyzer(t *testing.T) {
	analyzers := []Analyzer{
		panickingAnalyzer{},
		stubAnalyzer{name: "survivor", sig: domain.Signal{Direction: domain.Short, Confidence: 60}},
	}
	repo := repository.NewMarketDataRepository(func() time.Time { return time.Now() })
	cache := indicator.NewCache(repo)

	out := CollectSignals(analyzers, nil, nil, nil, cache, "5m", 100, zerolog.Nop())

	require.Len(t, out, 1, "the panicking analyzer must not abort collection")
	assert.Equal(t, domain.Short, out[0].Direction)
}
