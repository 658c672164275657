package signal

import (
	"github.com/chidi150c/futurescore/internal/domain"
	"github.com/chidi150c/futurescore/internal/indicator"
)

// MARegime is a fast/slow moving-average crossover filter, generalized
// from the teacher's MA10-vs-MA30 USE_MA_FILTER regime check into a
// standalone analyzer with configurable periods.
type MARegime struct {
	cfg        AnalyzerConfig
	fastPeriod int
	slowPeriod int
}

func NewMARegime(cfg AnalyzerConfig) *MARegime {
	fast := int(cfg.Params["fast_period"])
	if fast == 0 {
		fast = 10
	}
	slow := int(cfg.Params["slow_period"])
	if slow == 0 {
		slow = 30
	}
	return &MARegime{cfg: cfg, fastPeriod: fast, slowPeriod: slow}
}

func (m *MARegime) Name() string { return m.cfg.Name }

func (m *MARegime) Analyze(candles []domain.Candle, cache indicator.Cache, interval string) domain.Signal {
	if len(candles) < m.slowPeriod {
		return domain.Signal{Direction: domain.Hold}
	}
	latest := candles[len(candles)-1]
	fast, ok1 := cache.Get(indicator.CacheKey("SMA", m.fastPeriod, interval, latest.Timestamp))
	slow, ok2 := cache.Get(indicator.CacheKey("SMA", m.slowPeriod, interval, latest.Timestamp))
	if !ok1 || !ok2 {
		return domain.Signal{Direction: domain.Hold}
	}
	switch {
	case fast > slow:
		return domain.Signal{Direction: domain.Long, Confidence: 50, Type: "trend", Reason: "fast_ma_above_slow_ma"}
	case fast < slow:
		return domain.Signal{Direction: domain.Short, Confidence: 50, Type: "trend", Reason: "fast_ma_below_slow_ma"}
	default:
		return domain.Signal{Direction: domain.Hold}
	}
}

// RSIReversion fades RSI extremes, grounded in the teacher's RSI(14)
// helper but used as a standalone mean-reversion analyzer rather than
// a micro-model feature.
type RSIReversion struct {
	cfg       AnalyzerConfig
	period    int
	overbought float64
	oversold   float64
}

func NewRSIReversion(cfg AnalyzerConfig) *RSIReversion {
	period := int(cfg.Params["period"])
	if period == 0 {
		period = 14
	}
	ob := cfg.Params["overbought"]
	if ob == 0 {
		ob = 70
	}
	os := cfg.Params["oversold"]
	if os == 0 {
		os = 30
	}
	return &RSIReversion{cfg: cfg, period: period, overbought: ob, oversold: os}
}

func (r *RSIReversion) Name() string { return r.cfg.Name }

func (r *RSIReversion) Analyze(candles []domain.Candle, cache indicator.Cache, interval string) domain.Signal {
	if len(candles) <= r.period {
		return domain.Signal{Direction: domain.Hold}
	}
	latest := candles[len(candles)-1]
	rsi, ok := cache.Get(indicator.CacheKey("RSI", r.period, interval, latest.Timestamp))
	if !ok {
		return domain.Signal{Direction: domain.Hold}
	}
	switch {
	case rsi <= r.oversold:
		return domain.Signal{Direction: domain.Long, Confidence: (r.oversold - rsi) / r.oversold * 100, Type: "reversion", Reason: "rsi_oversold"}
	case rsi >= r.overbought:
		return domain.Signal{Direction: domain.Short, Confidence: (rsi - r.overbought) / (100 - r.overbought) * 100, Type: "reversion", Reason: "rsi_overbought"}
	default:
		return domain.Signal{Direction: domain.Hold}
	}
}
