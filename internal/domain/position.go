package domain

import "time"

// PositionStatus is the coarse open/closed state of a position.
type PositionStatus string

const (
	StatusOpen   PositionStatus = "OPEN"
	StatusClosed PositionStatus = "CLOSED"
)

// ExitState is the exit state machine's current node.
type ExitState string

const (
	ExitOpen    ExitState = "OPEN"
	ExitTP1Hit  ExitState = "TP1_HIT"
	ExitTP2Hit  ExitState = "TP2_HIT"
	ExitTP3Hit  ExitState = "TP3_HIT"
	ExitClosed  ExitState = "CLOSED"
)

// StopLoss tracks the current protective stop and its provenance.
type StopLoss struct {
	Price       float64
	Initial     float64
	IsBreakeven bool
	IsTrailing  bool
}

// TakeProfitLeg is one ladder TP leg attached to a live position.
type TakeProfitLeg struct {
	Level       int
	SizePercent float64
	Price       float64
	Hit         bool
	OrderID     string
}

// Position is a live (or just-closed) exchange position under management.
// Mutation flows only through the action queue's handlers; analyzer and
// orchestrator code must treat values returned by the repository as
// read-only snapshots.
type Position struct {
	ID             string
	Symbol         string
	Side           Direction
	Quantity       float64
	EntryPrice     float64
	Leverage       float64
	MarginUsed     float64
	StopLoss       StopLoss
	TakeProfits    []TakeProfitLeg
	OpenedAt       time.Time
	Status         PositionStatus
	ExitState      ExitState
	UnrealizedPnL  float64
	EntryFeeUSD    float64
	ExitFeeUSD     float64
}

// IsLong reports whether the position is a long.
func (p Position) IsLong() bool { return p.Side == Long }

// HitAt reports whether currentPrice has reached a given TP leg,
// directionally: for longs price must be at or above the leg, for
// shorts at or below it.
func (p Position) HitAt(tp TakeProfitLeg, currentPrice float64) bool {
	if p.IsLong() {
		return currentPrice >= tp.Price
	}
	return currentPrice <= tp.Price
}

// TradeRecord is the append-only journal entry for a position's lifecycle.
type TradeRecord struct {
	ID         string
	Symbol     string
	Side       Direction
	EntryPrice float64
	ExitPrice  *float64
	Quantity   float64
	EntryTime  time.Time
	ExitTime   *time.Time
	PnL        float64
	Strategy   string
	ExitReason string
}

// ActionType enumerates the mutating operations dispatched via the queue.
type ActionType string

const (
	ActionOpenPosition    ActionType = "OPEN_POSITION"
	ActionClosePercent    ActionType = "CLOSE_PERCENT"
	ActionUpdateStopLoss  ActionType = "UPDATE_STOP_LOSS"
	ActionActivateTrailing ActionType = "ACTIVATE_TRAILING"
)

// ActionPriority orders dispatch within the action queue.
type ActionPriority int

const (
	PriorityNormal ActionPriority = iota
	PriorityHigh
)

// Action is one queued command against the exchange/position state.
type Action struct {
	ID        string
	Type      ActionType
	Priority  ActionPriority
	Timestamp time.Time
	Payload   any
}

// ActionRequest is an action before it enters the queue: orchestrators
// build these; the queue stamps an ID and timestamp at Enqueue time so
// the orchestrator logic producing them (the exit state machine, the
// entry pipeline) stays a pure function of its inputs.
type ActionRequest struct {
	Type     ActionType
	Priority ActionPriority
	Payload  any
}

// OpenPositionPayload carries everything the position lifecycle handler
// needs to atomically open a protected position.
type OpenPositionPayload struct {
	Symbol  string
	Signal  Signal
}

// ClosePercentPayload requests a partial or full close of a position.
// NextExitState, if non-empty, is the exit-state the handler should
// stamp on the position once the close succeeds — the exit state
// machine decides the target state, but only the handler mutates it.
type ClosePercentPayload struct {
	PositionID    string
	SizePercent   float64
	Reason        string
	NextExitState ExitState
}

// UpdateStopLossPayload requests a stop-loss relocation.
type UpdateStopLossPayload struct {
	PositionID string
	NewPrice   float64
	Breakeven  bool
}

// ActivateTrailingPayload requests trailing-stop activation.
type ActivateTrailingPayload struct {
	PositionID      string
	TrailingPercent float64
}
