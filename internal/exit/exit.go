// Package exit implements the position exit state machine: given a
// position, the current price, and (for symmetry with the spec's
// signature) indicator context, it decides the next exit-state
// transition and the actions that realize it, generalized from the
// teacher's inline profit-gate/trailing/fixed-TP branches in step.go
// into the deterministic OPEN -> TP1_HIT -> TP2_HIT -> TP3_HIT ->
// CLOSED ladder of spec §4.12. This package never mutates the
// position; the position-lifecycle handlers do, via the action queue.
package exit

import (
	"github.com/chidi150c/futurescore/internal/domain"
)

// Transition names a single state-machine edge.
type Transition struct {
	From domain.ExitState
	To   domain.ExitState
}

// Output is what one Evaluate call produces: at most one transition
// and the actions that realize it. A nil NewState means "no change".
type Output struct {
	NewState   *domain.ExitState
	Transition *Transition
	Actions    []domain.ActionRequest
}

// Indicators is the (currently unused by the core ladder, but
// spec-mandated) per-tick indicator context; kept as an explicit
// parameter so strategies can later gate transitions on volatility
// without changing Evaluate's signature.
type Indicators struct {
	ATR float64
}

// Evaluate runs one exit-machine tick. exchangeReportsClosed marks
// that the position's reported exchange status has flipped to closed
// (SL hit, manual close, liquidation) — this always wins and moves any
// state straight to CLOSED with no further actions.
func Evaluate(pos domain.Position, currentPrice float64, trailingPercent float64, _ Indicators, exchangeReportsClosed bool) Output {
	if exchangeReportsClosed && pos.ExitState != domain.ExitClosed {
		closed := domain.ExitClosed
		return Output{
			NewState:   &closed,
			Transition: &Transition{From: pos.ExitState, To: domain.ExitClosed},
		}
	}
	if pos.ExitState == domain.ExitClosed || pos.Status == domain.StatusClosed {
		return Output{}
	}

	switch pos.ExitState {
	case domain.ExitOpen:
		return evaluateLeg(pos, currentPrice, 0, domain.ExitTP1Hit, func() []domain.ActionRequest {
			return []domain.ActionRequest{
				closePercentRequest(pos, pos.TakeProfits[0].SizePercent, "tp1", domain.ExitTP1Hit),
				updateStopLossRequest(pos, pos.EntryPrice, true),
			}
		})
	case domain.ExitTP1Hit:
		return evaluateLeg(pos, currentPrice, 1, domain.ExitTP2Hit, func() []domain.ActionRequest {
			return []domain.ActionRequest{
				closePercentRequest(pos, pos.TakeProfits[1].SizePercent, "tp2", domain.ExitTP2Hit),
				activateTrailingRequest(pos, trailingPercent),
			}
		})
	case domain.ExitTP2Hit:
		return evaluateLeg(pos, currentPrice, 2, domain.ExitTP3Hit, func() []domain.ActionRequest {
			return []domain.ActionRequest{
				closePercentRequest(pos, 100, "tp3", domain.ExitTP3Hit),
			}
		})
	default: // ExitTP3Hit: the final leg already closed the position to 0 exposure.
		return Output{}
	}
}

func evaluateLeg(pos domain.Position, price float64, legIndex int, nextState domain.ExitState, buildActions func() []domain.ActionRequest) Output {
	if legIndex >= len(pos.TakeProfits) {
		return Output{}
	}
	if !pos.HitAt(pos.TakeProfits[legIndex], price) {
		return Output{}
	}
	next := nextState
	return Output{
		NewState:   &next,
		Transition: &Transition{From: pos.ExitState, To: nextState},
		Actions:    buildActions(),
	}
}

func closePercentRequest(pos domain.Position, sizePercent float64, reason string, nextState domain.ExitState) domain.ActionRequest {
	return domain.ActionRequest{
		Type:     domain.ActionClosePercent,
		Priority: domain.PriorityHigh,
		Payload: domain.ClosePercentPayload{
			PositionID:    pos.ID,
			SizePercent:   sizePercent,
			Reason:        reason,
			NextExitState: nextState,
		},
	}
}

func updateStopLossRequest(pos domain.Position, newPrice float64, breakeven bool) domain.ActionRequest {
	return domain.ActionRequest{
		Type:     domain.ActionUpdateStopLoss,
		Priority: domain.PriorityHigh,
		Payload: domain.UpdateStopLossPayload{
			PositionID: pos.ID,
			NewPrice:   newPrice,
			Breakeven:  breakeven,
		},
	}
}

func activateTrailingRequest(pos domain.Position, trailingPercent float64) domain.ActionRequest {
	return domain.ActionRequest{
		Type:     domain.ActionActivateTrailing,
		Priority: domain.PriorityHigh,
		Payload: domain.ActivateTrailingPayload{
			PositionID:      pos.ID,
			TrailingPercent: trailingPercent,
		},
	}
}
