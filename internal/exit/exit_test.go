package exit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chidi150c/futurescore/internal/domain"
)

func ladderPosition() domain.Position {
	return domain.Position{
		ID:         "pos-1",
		Side:       domain.Long,
		EntryPrice: 1.00,
		Status:     domain.StatusOpen,
		ExitState:  domain.ExitOpen,
		TakeProfits: []domain.TakeProfitLeg{
			{Level: 1, SizePercent: 60, Price: 1.01},
			{Level: 2, SizePercent: 30, Price: 1.02},
			{Level: 3, SizePercent: 10, Price: 1.03},
		},
	}
}

// Scenario 3 from the spec: TP1 hit.
func TestEvaluateOpenToTP1(t *testing.T) {
	pos := ladderPosition()
	out := Evaluate(pos, 1.011, 1.0, Indicators{}, false)
	require.NotNil(t, out.NewState)
	assert.Equal(t, domain.ExitTP1Hit, *out.NewState)
	require.Len(t, out.Actions, 2)

	closeReq := out.Actions[0].Payload.(domain.ClosePercentPayload)
	assert.Equal(t, 60.0, closeReq.SizePercent)
	assert.Equal(t, domain.ExitTP1Hit, closeReq.NextExitState)

	slReq := out.Actions[1].Payload.(domain.UpdateStopLossPayload)
	assert.Equal(t, 1.00, slReq.NewPrice)
	assert.True(t, slReq.Breakeven)
}

func TestEvaluateNoTransitionBelowTP1(t *testing.T) {
	pos := ladderPosition()
	out := Evaluate(pos, 1.005, 1.0, Indicators{}, false)
	assert.Nil(t, out.NewState)
	assert.Empty(t, out.Actions)
}

func TestEvaluateTP1ToTP2ActivatesTrailing(t *testing.T) {
	pos := ladderPosition()
	pos.ExitState = domain.ExitTP1Hit
	out := Evaluate(pos, 1.021, 2.5, Indicators{}, false)
	require.NotNil(t, out.NewState)
	assert.Equal(t, domain.ExitTP2Hit, *out.NewState)
	require.Len(t, out.Actions, 2)
	trailReq := out.Actions[1].Payload.(domain.ActivateTrailingPayload)
	assert.Equal(t, 2.5, trailReq.TrailingPercent)
}

func TestEvaluateTP2ToTP3ClosesFull(t *testing.T) {
	pos := ladderPosition()
	pos.ExitState = domain.ExitTP2Hit
	out := Evaluate(pos, 1.031, 2.5, Indicators{}, false)
	require.NotNil(t, out.NewState)
	assert.Equal(t, domain.ExitTP3Hit, *out.NewState)
	require.Len(t, out.Actions, 1)
	closeReq := out.Actions[0].Payload.(domain.ClosePercentPayload)
	assert.Equal(t, 100.0, closeReq.SizePercent)
}

func TestEvaluateTP3HitEmitsNoFurtherActions(t *testing.T) {
	pos := ladderPosition()
	pos.ExitState = domain.ExitTP3Hit
	out := Evaluate(pos, 999, 2.5, Indicators{}, false)
	assert.Nil(t, out.NewState)
	assert.Empty(t, out.Actions)
}

func TestEvaluateExchangeClosedOverridesAnyState(t *testing.T) {
	pos := ladderPosition()
	pos.ExitState = domain.ExitTP1Hit
	out := Evaluate(pos, 0.5, 2.5, Indicators{}, true)
	require.NotNil(t, out.NewState)
	assert.Equal(t, domain.ExitClosed, *out.NewState)
	assert.Empty(t, out.Actions)
}

func TestEvaluateClosedPositionEmitsNothing(t *testing.T) {
	pos := ladderPosition()
	pos.ExitState = domain.ExitClosed
	pos.Status = domain.StatusClosed
	out := Evaluate(pos, 5, 2.5, Indicators{}, false)
	assert.Nil(t, out.NewState)
	assert.Empty(t, out.Actions)
}

func TestEvaluateIsDeterministic(t *testing.T) {
	pos := ladderPosition()
	first := Evaluate(pos, 1.011, 1.0, Indicators{}, false)
	second := Evaluate(pos, 1.011, 1.0, Indicators{}, false)
	assert.Equal(t, first, second)
}

func TestEvaluateShortPositionHitDirection(t *testing.T) {
	pos := ladderPosition()
	pos.Side = domain.Short
	pos.TakeProfits[0].Price = 0.99
	out := Evaluate(pos, 0.989, 1.0, Indicators{}, false)
	require.NotNil(t, out.NewState)
	assert.Equal(t, domain.ExitTP1Hit, *out.NewState)
}
