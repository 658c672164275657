package domain

import "time"

// Direction is the directional intent of a signal or position.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
	Hold  Direction = "HOLD"
)

// Opposite returns the mirror direction; Hold maps to itself.
func (d Direction) Opposite() Direction {
	switch d {
	case Long:
		return Short
	case Short:
		return Long
	default:
		return Hold
	}
}

// TakeProfitTarget is one leg of a ladder take-profit plan.
type TakeProfitTarget struct {
	Level       int
	SizePercent float64
	Price       float64
}

// Signal is one analyzer's directional opinion, discarded after aggregation.
type Signal struct {
	Direction     Direction
	Confidence    float64 // 0..100 at producer output (spec open question resolved)
	Type          string  // producer tag
	Price         float64
	StopLoss      float64
	TakeProfits   []TakeProfitTarget
	Reason        string
	Timestamp     time.Time
	Weight        float64
	Priority      int
	PositionSize  float64 // filled in by the entry orchestrator on ENTER
}

// IsActionable reports whether the signal should be fed into aggregation;
// HOLD signals are always dropped per the data-model invariant.
func (s Signal) IsActionable() bool {
	return s.Direction == Long || s.Direction == Short
}

// Bias is the higher-timeframe trend classification.
type Bias string

const (
	Bullish Bias = "BULLISH"
	Bearish Bias = "BEARISH"
	Neutral Bias = "NEUTRAL"
)

// TrendAnalysis summarizes the higher-timeframe trend at last evaluation.
type TrendAnalysis struct {
	Bias                Bias
	Strength            float64 // 0..1
	Timeframe           string
	RestrictedDirections []Direction
}

// Restricts reports whether dir is vetoed by this trend analysis.
func (t TrendAnalysis) Restricts(dir Direction) bool {
	for _, r := range t.RestrictedDirections {
		if r == dir {
			return true
		}
	}
	return false
}

// NewTrendAnalysis builds a TrendAnalysis enforcing the bias/restriction
// invariant: BULLISH restricts SHORT, BEARISH restricts LONG.
func NewTrendAnalysis(bias Bias, strength float64, timeframe string) TrendAnalysis {
	t := TrendAnalysis{Bias: bias, Strength: strength, Timeframe: timeframe}
	switch bias {
	case Bullish:
		t.RestrictedDirections = []Direction{Short}
	case Bearish:
		t.RestrictedDirections = []Direction{Long}
	}
	return t
}
