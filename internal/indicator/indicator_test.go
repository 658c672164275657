package indicator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chidi150c/futurescore/internal/domain"
	"github.com/chidi150c/futurescore/internal/repository"
)

func risingCandles(n int, start, step float64, startTS, stepMs int64) []domain.Candle {
	out := make([]domain.Candle, n)
	price := start
	ts := startTS
	for i := 0; i < n; i++ {
		price += step
		out[i] = domain.Candle{Timestamp: ts, Open: price - step, High: price + 0.5, Low: price - step - 0.5, Close: price, Volume: 1}
		ts += stepMs
	}
	return out
}

func TestSMACalculatorRequiresFullWindow(t *testing.T) {
	sma := NewSMA(5)
	assert.True(t, isNaN(sma.Compute(risingCandles(4, 100, 1, 0, 60_000))))
	assert.False(t, isNaN(sma.Compute(risingCandles(5, 100, 1, 0, 60_000))))
}

func TestZScoreCalculatorTracksRecentWindow(t *testing.T) {
	flat := make([]domain.Candle, 20)
	for i := range flat {
		flat[i] = domain.Candle{Close: 100}
	}
	z := NewZScore(10)
	assert.Equal(t, 0.0, z.Compute(flat), "a perfectly flat series has zero z-score")
}

func TestCacheKeyIsDeterministic(t *testing.T) {
	a := CacheKey("SMA", 10, "5m", 123)
	b := CacheKey("SMA", 10, "5m", 123)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, CacheKey("SMA", 20, "5m", 123))
}

func TestPreCalculatorWarmsAndCacheServesIt(t *testing.T) {
	repo := repository.NewMarketDataRepository(func() time.Time { return time.Unix(0, 0) })
	candles := risingCandles(30, 100, 1, 1_700_000_000_000, 60_000)
	repo.Save("BTCUSDT", "1m", candles)

	pc := NewPreCalculator(repo, 60_000, NewSMA(10), NewRSI(14))
	pc.WarmOnClose("BTCUSDT", "1m")

	cache := NewCache(repo)
	latest := candles[len(candles)-1]
	val, ok := cache.Get(CacheKey("SMA", 10, "1m", latest.Timestamp))
	require.True(t, ok)
	assert.Greater(t, val, 0.0)

	stats := cache.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.GreaterOrEqual(t, stats.Size, 2)
}

func TestCacheGetMissForUnknownKey(t *testing.T) {
	repo := repository.NewMarketDataRepository(func() time.Time { return time.Now() })
	cache := NewCache(repo)
	_, ok := cache.Get("not-a-real-key")
	assert.False(t, ok)
}

func isNaN(f float64) bool { return f != f }
