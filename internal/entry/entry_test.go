package entry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chidi150c/futurescore/internal/domain"
	"github.com/chidi150c/futurescore/internal/exchange"
	"github.com/chidi150c/futurescore/internal/risk"
)

type fakeApprover struct {
	decision risk.Decision
	called   bool
	lastSig  domain.Signal
}

func (f *fakeApprover) Approve(sig domain.Signal, _ exchange.Balance, _ []domain.Position, _ risk.DailyStats) risk.Decision {
	f.called = true
	f.lastSig = sig
	return f.decision
}

func TestDecideSkipsWhenAlreadyInPosition(t *testing.T) {
	d := Decide(nil, exchange.Balance{}, []domain.Position{{}}, domain.TrendAnalysis{}, Config{}, &fakeApprover{}, risk.DailyStats{})
	assert.Equal(t, Skip, d.Kind)
	assert.Equal(t, "already in position", d.Reason)
}

func TestDecideSkipsWhenAllSignalsRestricted(t *testing.T) {
	trend := domain.NewTrendAnalysis(domain.Bullish, 0.8, "1h")
	signals := []domain.Signal{{Direction: domain.Short, Confidence: 90, Weight: 1}}
	d := Decide(signals, exchange.Balance{}, nil, trend, Config{}, &fakeApprover{}, risk.DailyStats{})
	assert.Equal(t, Skip, d.Kind)
	assert.Equal(t, "no aligned signals", d.Reason)
}

func TestDecideSkipsBelowMinConfidence(t *testing.T) {
	signals := []domain.Signal{{Direction: domain.Long, Confidence: 10, Weight: 1, Type: "a"}}
	d := Decide(signals, exchange.Balance{}, nil, domain.TrendAnalysis{}, Config{MinConfidenceToEnter: 50}, &fakeApprover{}, risk.DailyStats{})
	assert.Equal(t, Skip, d.Kind)
}

func TestDecideEntersOnHighestScoringDirection(t *testing.T) {
	signals := []domain.Signal{
		{Direction: domain.Long, Confidence: 80, Weight: 1, Type: "momentum", Price: 100, StopLoss: 95},
		{Direction: domain.Long, Confidence: 60, Weight: 0.5, Type: "trend", Price: 100},
		{Direction: domain.Short, Confidence: 90, Weight: 0.3, Type: "reversion"},
	}
	approver := &fakeApprover{decision: risk.Decision{Approved: true, PositionSize: 500}}
	d := Decide(signals, exchange.Balance{Available: 10000}, nil, domain.TrendAnalysis{}, Config{MinConfidenceToEnter: 10}, approver, risk.DailyStats{})
	require.Equal(t, Enter, d.Kind)
	require.NotNil(t, d.Signal)
	assert.Equal(t, domain.Long, d.Signal.Direction)
	assert.Equal(t, 500.0, d.Signal.PositionSize)
	assert.Contains(t, d.Signal.Reason, "momentum")
	assert.True(t, approver.called)
}

func TestDecideSkipsOnRiskRejection(t *testing.T) {
	signals := []domain.Signal{{Direction: domain.Long, Confidence: 80, Weight: 1, Type: "momentum", Price: 100, StopLoss: 95}}
	approver := &fakeApprover{decision: risk.Decision{Approved: false, Reason: "daily loss limit reached"}}
	d := Decide(signals, exchange.Balance{}, nil, domain.TrendAnalysis{}, Config{MinConfidenceToEnter: 10}, approver, risk.DailyStats{})
	assert.Equal(t, Skip, d.Kind)
	assert.Equal(t, "daily loss limit reached", d.Reason)
}

func TestDecideTiesBreakByHighestPriority(t *testing.T) {
	signals := []domain.Signal{
		{Direction: domain.Long, Confidence: 50, Weight: 1, Priority: 1, Type: "a", Price: 100},
		{Direction: domain.Short, Confidence: 50, Weight: 1, Priority: 5, Type: "b", Price: 100},
	}
	approver := &fakeApprover{decision: risk.Decision{Approved: true}}
	d := Decide(signals, exchange.Balance{}, nil, domain.TrendAnalysis{}, Config{MinConfidenceToEnter: 10}, approver, risk.DailyStats{})
	require.Equal(t, Enter, d.Kind)
	assert.Equal(t, domain.Short, d.Signal.Direction)
}
