package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chidi150c/futurescore/internal/domain"
)

func TestOrchestratorFirstVetoShortCircuits(t *testing.T) {
	o := New(
		FundingRateFilter{MaxAbsFundingRate: 0.01},
		FlatMarketFilter{MinATRPercent: 0.5}, // would also veto, never reached
	)
	v := o.Apply(nil, MarketContext{FundingRate: 0.05, ATRPercent: 0})
	assert.False(t, v.Pass)
	assert.Equal(t, "funding_rate", v.VetoedBy)
}

func TestOrchestratorPassesWhenNoFilterVetoes(t *testing.T) {
	o := New(
		FundingRateFilter{MaxAbsFundingRate: 0.01},
		FlatMarketFilter{MinATRPercent: 0.5},
	)
	v := o.Apply(nil, MarketContext{FundingRate: 0.001, ATRPercent: 1.2})
	assert.True(t, v.Pass)
	assert.Empty(t, v.VetoedBy)
}

func TestTrendAlignmentFilterVetoesWeakTrend(t *testing.T) {
	f := TrendAlignmentFilter{MinStrength: 0.3}
	res := f.Check(nil, MarketContext{Trend: domain.TrendAnalysis{Bias: domain.Bullish, Strength: 0.1}})
	assert.False(t, res.Pass)
}

func TestTrendAlignmentFilterPassesOnNeutralBias(t *testing.T) {
	f := TrendAlignmentFilter{MinStrength: 0.3}
	res := f.Check(nil, MarketContext{Trend: domain.TrendAnalysis{Bias: domain.Neutral}})
	assert.True(t, res.Pass)
}

func TestFlatMarketFilterVetoesLowATR(t *testing.T) {
	f := FlatMarketFilter{MinATRPercent: 0.5}
	assert.False(t, f.Check(nil, MarketContext{ATRPercent: 0.1}).Pass)
	assert.True(t, f.Check(nil, MarketContext{ATRPercent: 0.9}).Pass)
}

func TestBTCCorrelationFilterVetoesOpposingDirection(t *testing.T) {
	f := BTCCorrelationFilter{Lookback: 2}
	candles := []domain.Candle{
		{Close: 100}, {Close: 101}, {Close: 102}, {Close: 103}, // uptrend
	}
	signals := []domain.Signal{{Direction: domain.Short}}
	res := f.Check(signals, MarketContext{BTCCandles: candles})
	assert.False(t, res.Pass)
}

func TestBTCCorrelationFilterPassesWithInsufficientHistory(t *testing.T) {
	f := BTCCorrelationFilter{Lookback: 10}
	res := f.Check([]domain.Signal{{Direction: domain.Short}}, MarketContext{BTCCandles: []domain.Candle{{Close: 1}}})
	assert.True(t, res.Pass)
}
