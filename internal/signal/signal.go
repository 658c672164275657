// Package signal hosts the analyzer registry and the signal producers
// that turn cached indicators into directional Signals. Analyzers are
// registered in a static factory table rather than discovered
// dynamically: the set of strategies is small and fixed, and a static
// table keeps a misconfigured analyzer name a config-time error
// instead of a silent no-op.
package signal

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/chidi150c/futurescore/internal/domain"
	"github.com/chidi150c/futurescore/internal/indicator"
)

// Analyzer produces zero or one Signal from a candle window plus the
// indicator cache. Returning domain.Hold (via IsActionable()==false)
// means "no opinion" and is dropped by CollectSignals rather than
// treated as an error.
type Analyzer interface {
	Name() string
	Analyze(candles []domain.Candle, cache indicator.Cache, interval string) domain.Signal
}

// Factory builds an Analyzer from its declared weight/priority config.
type Factory func(cfg AnalyzerConfig) Analyzer

// AnalyzerConfig is the per-analyzer tuning read from the strategy
// config file.
type AnalyzerConfig struct {
	Name       string
	Weight     float64
	Priority   int
	Params     map[string]float64
}

var registry = map[string]Factory{
	"micro_model":   func(cfg AnalyzerConfig) Analyzer { return NewMicroModel(cfg) },
	"ma_regime":     func(cfg AnalyzerConfig) Analyzer { return NewMARegime(cfg) },
	"rsi_reversion": func(cfg AnalyzerConfig) Analyzer { return NewRSIReversion(cfg) },
}

// Build resolves cfg.Name against the static registry. A name absent
// from the registry is a configuration error, not a runtime skip.
func Build(cfg AnalyzerConfig) (Analyzer, bool) {
	factory, ok := registry[cfg.Name]
	if !ok {
		return nil, false
	}
	return factory(cfg), true
}

// CollectSignals runs every analyzer and returns only actionable
// signals, stamped with each analyzer's configured weight/priority. A
// panicking analyzer is logged as a warning and excluded rather than
// aborting the rest of the registry — the registry never throws.
func CollectSignals(analyzers []Analyzer, weights map[string]float64, priorities map[string]int, candles []domain.Candle, cache indicator.Cache, interval string, price float64, log zerolog.Logger) []domain.Signal {
	var out []domain.Signal
	for _, a := range analyzers {
		sig, ok := safeAnalyze(a, candles, cache, interval, log)
		if !ok || !sig.IsActionable() {
			continue
		}
		sig.Weight = weights[a.Name()]
		sig.Priority = priorities[a.Name()]
		sig.Price = price
		out = append(out, sig)
	}
	return out
}

func safeAnalyze(a Analyzer, candles []domain.Candle, cache indicator.Cache, interval string, log zerolog.Logger) (sig domain.Signal, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Str("analyzer", a.Name()).Interface("panic", r).Msg("analyzer panicked, excluding from this round")
			ok = false
		}
	}()
	return a.Analyze(candles, cache, interval), true
}

// sigmoid mirrors the teacher's micro-model activation.
func sigmoid(x float64) float64 {
	if x > 20 {
		return 1
	}
	if x < -20 {
		return 0
	}
	return 1 / (1 + math.Exp(-x))
}
