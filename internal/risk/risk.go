// Package risk implements the atomic risk-manager gatekeeper: daily
// loss limits, loss-streak attenuation, optional concurrent-exposure
// caps, and position sizing, generalized from the teacher's inline
// dailyPnL circuit breaker and pyramiding caps in trader.go into a
// single deterministic Approve call per spec §4.11.
package risk

import (
	"math"

	"github.com/chidi150c/futurescore/internal/domain"
	"github.com/chidi150c/futurescore/internal/exchange"
)

// Reductions maps a consecutive-loss streak to the size multiplier
// applied to that trade's risk amount.
type Reductions map[int]float64

// DefaultReductions mirrors the spec's worked example.
var DefaultReductions = Reductions{2: 0.75, 3: 0.50, 4: 0.25}

// Config parameterizes one Manager per spec's risk_manager config block.
type Config struct {
	MaxDailyLossPercent     float64
	StopAfterLosses         int
	Reductions              Reductions
	ConcurrentRiskEnabled   bool
	MaxTotalExposurePercent float64
	RiskPerTradePercent     float64
	MinUSDT                 float64
	MaxUSDT                 float64
	MaxLeverageMultiplier   float64
}

// DailyStats is the caller-computed (journal-derived) daily state the
// manager needs; keeping it an explicit input rather than reaching
// into a repository keeps Approve a pure, deterministic function of
// its arguments.
type DailyStats struct {
	DailyLossPercent   float64
	ConsecutiveLosses  int
	OpenPositionsRisk  float64 // % of balance already at risk across open positions
}

// Decision is Approve's single atomic outcome.
type Decision struct {
	Approved          bool
	Reason            string
	PositionSize      float64
	EffectiveLeverage float64
}

func reject(reason string) Decision { return Decision{Approved: false, Reason: reason} }

// Manager is the atomic gatekeeper. It holds no mutable state of its
// own: every call is a pure function of (signal, balance, positions,
// stats), which is exactly the determinism property spec §8 requires.
type Manager struct {
	cfg Config
}

// New builds a Manager, defaulting Reductions when unset.
func New(cfg Config) *Manager {
	if cfg.Reductions == nil {
		cfg.Reductions = DefaultReductions
	}
	return &Manager{cfg: cfg}
}

// Approve runs the ordered checks in spec §4.11 and, if every check
// passes, returns the sized decision.
func (m *Manager) Approve(signal domain.Signal, balance exchange.Balance, openPositions []domain.Position, stats DailyStats) Decision {
	// 1. Daily limits.
	if stats.DailyLossPercent >= m.cfg.MaxDailyLossPercent {
		return reject("daily loss limit reached")
	}

	// 2. Loss-streak attenuation.
	streak := stats.ConsecutiveLosses
	if m.cfg.StopAfterLosses > 0 && streak >= m.cfg.StopAfterLosses {
		return reject("loss-streak stop")
	}
	streakMultiplier := 1.0
	if mult, ok := m.cfg.Reductions[streak]; ok {
		streakMultiplier = mult
	}

	// 3. Concurrent risk (optional).
	if m.cfg.ConcurrentRiskEnabled {
		addedRisk := m.cfg.RiskPerTradePercent * streakMultiplier
		if stats.OpenPositionsRisk+addedRisk > m.cfg.MaxTotalExposurePercent {
			return reject("concurrent exposure limit exceeded")
		}
	}

	// 4. Position sizing.
	if signal.Price <= 0 || balance.Available <= 0 {
		return reject("invalid balance or signal price")
	}
	slDistance := math.Abs(signal.Price - signal.StopLoss)
	if slDistance <= 0 {
		return reject("stop-loss distance must be positive")
	}
	riskAmount := balance.Available * (m.cfg.RiskPerTradePercent / 100) * streakMultiplier
	positionSize := riskAmount / (slDistance / signal.Price)
	positionSize = clamp(positionSize, m.cfg.MinUSDT, m.cfg.MaxUSDT)

	maxNotional := balance.Available * m.cfg.MaxLeverageMultiplier
	if maxNotional > 0 && positionSize > maxNotional {
		positionSize = maxNotional
	}
	if positionSize < m.cfg.MinUSDT {
		return reject("sized position below minimum order notional")
	}

	effectiveLeverage := positionSize / balance.Available

	return Decision{
		Approved:          true,
		PositionSize:      positionSize,
		EffectiveLeverage: effectiveLeverage,
	}
}

func clamp(v, lo, hi float64) float64 {
	if hi > 0 && v > hi {
		v = hi
	}
	if v < lo {
		v = lo
	}
	return v
}
