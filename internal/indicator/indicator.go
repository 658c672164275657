// Package indicator pre-calculates technical indicators on candle
// close and serves them from a TTL cache, so the signal layer never
// recomputes a rolling window inline during a hot tick. The actual
// math is delegated to go-talib; this package owns naming, cache-key
// construction, and warm-up scheduling, generalizing the teacher's
// inline SMA/RSI/ZScore helpers into named, cacheable calculators.
package indicator

import (
	"fmt"
	"math"

	talib "github.com/markcheno/go-talib"

	"github.com/chidi150c/futurescore/internal/domain"
	"github.com/chidi150c/futurescore/internal/repository"
)

// Calculator computes one named indicator series from a candle window.
// Implementations must be stateless and safe for concurrent use.
type Calculator interface {
	Name() string
	Period() int
	Compute(candles []domain.Candle) float64
}

func closes(candles []domain.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

func lastOrNaN(series []float64) float64 {
	if len(series) == 0 {
		return math.NaN()
	}
	return series[len(series)-1]
}

// RSICalculator wraps talib.Rsi.
type RSICalculator struct{ period int }

func NewRSI(period int) RSICalculator { return RSICalculator{period: period} }
func (r RSICalculator) Name() string  { return "RSI" }
func (r RSICalculator) Period() int   { return r.period }
func (r RSICalculator) Compute(candles []domain.Candle) float64 {
	if len(candles) <= r.period {
		return math.NaN()
	}
	return lastOrNaN(talib.Rsi(closes(candles), r.period))
}

// SMACalculator wraps talib.Sma.
type SMACalculator struct{ period int }

func NewSMA(period int) SMACalculator { return SMACalculator{period: period} }
func (s SMACalculator) Name() string  { return "SMA" }
func (s SMACalculator) Period() int   { return s.period }
func (s SMACalculator) Compute(candles []domain.Candle) float64 {
	if len(candles) < s.period {
		return math.NaN()
	}
	return lastOrNaN(talib.Sma(closes(candles), s.period))
}

// EMACalculator wraps talib.Ema.
type EMACalculator struct{ period int }

func NewEMA(period int) EMACalculator { return EMACalculator{period: period} }
func (e EMACalculator) Name() string  { return "EMA" }
func (e EMACalculator) Period() int   { return e.period }
func (e EMACalculator) Compute(candles []domain.Candle) float64 {
	if len(candles) < e.period {
		return math.NaN()
	}
	return lastOrNaN(talib.Ema(closes(candles), e.period))
}

// ATRCalculator wraps talib.Atr, used by the flat-market veto filter.
type ATRCalculator struct{ period int }

func NewATR(period int) ATRCalculator { return ATRCalculator{period: period} }
func (a ATRCalculator) Name() string  { return "ATR" }
func (a ATRCalculator) Period() int   { return a.period }
func (a ATRCalculator) Compute(candles []domain.Candle) float64 {
	if len(candles) <= a.period {
		return math.NaN()
	}
	high := make([]float64, len(candles))
	low := make([]float64, len(candles))
	cl := make([]float64, len(candles))
	for i, c := range candles {
		high[i], low[i], cl[i] = c.High, c.Low, c.Close
	}
	return lastOrNaN(talib.Atr(high, low, cl, a.period))
}

// ZScoreCalculator is a rolling z-score of Close, ported directly from
// the teacher's hand-rolled ZScore helper since talib has no direct
// equivalent.
type ZScoreCalculator struct{ period int }

func NewZScore(period int) ZScoreCalculator { return ZScoreCalculator{period: period} }
func (z ZScoreCalculator) Name() string     { return "ZSCORE" }
func (z ZScoreCalculator) Period() int      { return z.period }
func (z ZScoreCalculator) Compute(candles []domain.Candle) float64 {
	n := z.period
	if n <= 1 || len(candles) < n {
		return 0
	}
	window := candles[len(candles)-n:]
	var sum, sumSq float64
	for _, c := range window {
		sum += c.Close
		sumSq += c.Close * c.Close
	}
	mean := sum / float64(n)
	variance := (sumSq / float64(n)) - (mean * mean)
	std := math.Sqrt(math.Max(variance, 1e-12))
	return (candles[len(candles)-1].Close - mean) / std
}

// CacheKey builds the deterministic key a PreCalculator result is
// stored/retrieved under: "<NAME>-<period>-<interval>@<timestamp>".
func CacheKey(name string, period int, interval string, timestamp int64) string {
	return fmt.Sprintf("%s-%d-%s@%d", name, period, interval, timestamp)
}

// PreCalculator warms the repository's indicator cache on every candle
// close so downstream signal producers always hit cache, never compute
// inline during a tick.
type PreCalculator struct {
	repo        *repository.MarketDataRepository
	calculators []Calculator
	ttlMs       int64
}

// NewPreCalculator builds a pre-calculator over the given calculators,
// each warmed with the provided cache TTL (milliseconds).
func NewPreCalculator(repo *repository.MarketDataRepository, ttlMs int64, calculators ...Calculator) *PreCalculator {
	return &PreCalculator{repo: repo, calculators: calculators, ttlMs: ttlMs}
}

// WarmOnClose computes every registered calculator over the freshest
// window for (symbol, interval) and caches each result.
func (p *PreCalculator) WarmOnClose(symbol, interval string) {
	latest, ok := p.repo.Latest(symbol, interval)
	if !ok {
		return
	}
	for _, calc := range p.calculators {
		window := p.repo.Get(symbol, interval, nil)
		value := calc.Compute(window)
		key := CacheKey(calc.Name(), calc.Period(), interval, latest.Timestamp)
		p.repo.Cache(key, value, p.ttlMs)
	}
}

// Cache is the read-side lookup the signal layer uses: a thin wrapper
// around the repository. It keeps no counters of its own: hit/miss
// counting is delegated entirely to MarketDataRepository.GetIndicator.
type Cache struct {
	repo *repository.MarketDataRepository
}

func NewCache(repo *repository.MarketDataRepository) Cache { return Cache{repo: repo} }

// Get returns the cached float64 indicator value for the given key, or
// (0, false) if absent/expired/wrong-typed.
func (c Cache) Get(key string) (float64, bool) {
	v, ok := c.repo.GetIndicator(key)
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

// Stats is the spec's get_stats shape: hit/miss counters plus current
// size against the repository's fixed eviction capacity.
type Stats struct {
	Hits           int64
	Misses         int64
	TotalRequests  int64
	HitRatePercent float64
	Size           int
	Capacity       int
}

// Stats reports the cache's running hit-rate metrics.
func (c Cache) Stats() Stats {
	hits, misses := c.repo.HitMissCounts()
	total := hits + misses
	var rate float64
	if total > 0 {
		rate = float64(hits) / float64(total) * 100
	}
	return Stats{
		Hits:           hits,
		Misses:         misses,
		TotalRequests:  total,
		HitRatePercent: rate,
		Size:           c.repo.IndicatorCount(),
		Capacity:       repository.MaxIndicators,
	}
}
