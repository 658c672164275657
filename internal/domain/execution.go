package domain

// ExecutionType is the internal classification of a venue execution
// report, normalized from the wire-specific stop_order_type/create_type
// vocabulary.
type ExecutionType string

const (
	ExecEntry        ExecutionType = "ENTRY"
	ExecTakeProfit   ExecutionType = "TAKE_PROFIT"
	ExecStopLoss     ExecutionType = "STOP_LOSS"
	ExecTrailingStop ExecutionType = "TRAILING_STOP"
)

// ExecutionEvent is one normalized fill report off the venue's
// execution/user-data stream.
type ExecutionEvent struct {
	OrderID        string
	Symbol         string
	StopOrderType  string
	CreateType     string
	ClosedSize     float64
	Price          float64
	Quantity       float64
	Side           Direction
	PositionClosed bool
}

// ClassifyExecution maps the wire fields to an ExecutionType.
func ClassifyExecution(ev ExecutionEvent) ExecutionType {
	switch ev.StopOrderType {
	case "PartialTakeProfit":
		return ExecTakeProfit
	case "StopLoss", "Stop", "PartialStopLoss":
		return ExecStopLoss
	case "TrailingStop":
		return ExecTrailingStop
	case "UNKNOWN", "":
		if ev.CreateType == "CreateByUser" && ev.ClosedSize > 0 {
			return ExecTakeProfit
		}
	}
	return ExecEntry
}

// TPCounter tracks the 1-based take-profit leg count across a position's
// lifetime, incrementing on every TAKE_PROFIT execution and resetting on
// STOP_LOSS, TRAILING_STOP, or a fresh ENTRY.
type TPCounter struct {
	n int
}

// Observe classifies ev and advances the counter accordingly, returning
// the resulting execution type and (for TAKE_PROFIT) the 1-based leg
// that just fired.
func (c *TPCounter) Observe(ev ExecutionEvent) (ExecutionType, int) {
	switch ClassifyExecution(ev) {
	case ExecTakeProfit:
		c.n++
		return ExecTakeProfit, c.n
	case ExecStopLoss:
		c.n = 0
		return ExecStopLoss, 0
	case ExecTrailingStop:
		c.n = 0
		return ExecTrailingStop, 0
	default:
		c.n = 0
		return ExecEntry, 0
	}
}

// Reset zeroes the counter, for a freshly opened position.
func (c *TPCounter) Reset() { c.n = 0 }
