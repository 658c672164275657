// Package filter implements the pre-entry veto chain: a named,
// ordered sequence of filters that each answer pass/veto given the
// aggregated signals and a snapshot of market context, generalized
// from the teacher's single inline USE_MA_FILTER regime gate in
// trader.go into a configurable, ordered chain per spec §4.8.
package filter

import (
	"github.com/chidi150c/futurescore/internal/domain"
)

// Result is one filter's verdict.
type Result struct {
	Pass   bool
	Reason string
}

func ok() Result { return Result{Pass: true} }

func veto(reason string) Result { return Result{Pass: false, Reason: reason} }

// MarketContext bundles everything a filter may need to reach its
// verdict, so adding a new filter never changes the orchestrator's
// call signature.
type MarketContext struct {
	Trend         domain.TrendAnalysis
	FundingRate   float64
	ATRPercent    float64 // ATR as a percent of price, for flat-market detection
	BTCCandles    []domain.Candle
	SymbolCandles []domain.Candle
}

// Filter is one named veto check.
type Filter interface {
	Name() string
	Check(signals []domain.Signal, mkt MarketContext) Result
}

// Orchestrator applies an ordered chain of filters; the first veto
// short-circuits the rest.
type Orchestrator struct {
	filters []Filter
}

// New builds an orchestrator over the given filters, applied in order.
func New(filters ...Filter) *Orchestrator {
	return &Orchestrator{filters: filters}
}

// Verdict is the orchestrator's overall outcome, naming which filter
// (if any) vetoed.
type Verdict struct {
	Pass       bool
	VetoedBy   string
	Reason     string
}

// Apply runs the chain in declared order, stopping at the first veto.
func (o *Orchestrator) Apply(signals []domain.Signal, mkt MarketContext) Verdict {
	for _, f := range o.filters {
		res := f.Check(signals, mkt)
		if !res.Pass {
			return Verdict{Pass: false, VetoedBy: f.Name(), Reason: res.Reason}
		}
	}
	return Verdict{Pass: true}
}

// TrendAlignmentFilter vetoes signals that oppose the HTF bias beyond
// what TrendAnalysis.RestrictedDirections already filters upstream —
// it additionally requires minimum trend strength when a bias is set,
// the teacher's "don't trade against a strong regime" intent.
type TrendAlignmentFilter struct {
	MinStrength float64
}

func (f TrendAlignmentFilter) Name() string { return "trend_alignment" }

func (f TrendAlignmentFilter) Check(signals []domain.Signal, mkt MarketContext) Result {
	if mkt.Trend.Bias == domain.Neutral {
		return ok()
	}
	if mkt.Trend.Strength < f.MinStrength {
		return veto("htf trend strength below minimum for directional entries")
	}
	for _, s := range signals {
		if mkt.Trend.Restricts(s.Direction) {
			return veto("signal direction restricted by htf bias")
		}
	}
	return ok()
}

// FundingRateFilter vetoes entries when funding is stretched beyond a
// configured threshold, the spec's funding-rate veto.
type FundingRateFilter struct {
	MaxAbsFundingRate float64
}

func (f FundingRateFilter) Name() string { return "funding_rate" }

func (f FundingRateFilter) Check(_ []domain.Signal, mkt MarketContext) Result {
	rate := mkt.FundingRate
	if rate < 0 {
		rate = -rate
	}
	if rate > f.MaxAbsFundingRate {
		return veto("funding rate beyond configured threshold")
	}
	return ok()
}

// FlatMarketFilter vetoes entries when ATR%, a volatility proxy, is
// too low to realistically reach any configured take-profit.
type FlatMarketFilter struct {
	MinATRPercent float64
}

func (f FlatMarketFilter) Name() string { return "flat_market" }

func (f FlatMarketFilter) Check(_ []domain.Signal, mkt MarketContext) Result {
	if mkt.ATRPercent < f.MinATRPercent {
		return veto("atr% below minimum, market judged too flat to trade")
	}
	return ok()
}

// BTCCorrelationFilter vetoes entries for an altcoin symbol that
// contradict BTC's own recent direction, grounded in the observation
// that most perpetuals track BTC closely on short timeframes.
type BTCCorrelationFilter struct {
	Lookback int
}

func (f BTCCorrelationFilter) Name() string { return "btc_correlation" }

func (f BTCCorrelationFilter) Check(signals []domain.Signal, mkt MarketContext) Result {
	n := f.Lookback
	if n <= 0 {
		n = 3
	}
	if len(mkt.BTCCandles) <= n {
		return ok() // insufficient BTC history: don't block on missing data
	}
	recent := mkt.BTCCandles[len(mkt.BTCCandles)-1]
	ref := mkt.BTCCandles[len(mkt.BTCCandles)-1-n]
	btcDir := domain.Long
	if recent.Close < ref.Close {
		btcDir = domain.Short
	}
	for _, s := range signals {
		if s.Direction != domain.Hold && s.Direction != btcDir {
			return veto("signal direction opposes recent btc direction")
		}
	}
	return ok()
}
