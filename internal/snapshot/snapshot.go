// Package snapshot implements the MTF snapshot gate: the device that
// freezes higher-timeframe bias and the winning signal at PRIMARY
// candle close so that ENTRY-timeframe execution cannot fire against a
// bias that reversed in between. At most one snapshot is ever active;
// creating a new one replaces whatever was there.
package snapshot

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chidi150c/futurescore/internal/domain"
)

// TTL is the fixed snapshot lifetime per spec's mtf_snapshot.ttl_ms.
const TTL = 120 * time.Second

// Snapshot is the frozen entry context captured at PRIMARY close.
type Snapshot struct {
	ID            string
	HTFBias       domain.Bias
	Trend         domain.TrendAnalysis
	Signal        domain.Signal
	PrimaryCandle domain.Candle
	CreatedAt     time.Time
	ExpiresAt     time.Time
}

// Conflict describes the mismatch that invalidated a snapshot.
type Conflict struct {
	SignalDirection domain.Direction
	CurrentBias     domain.Bias
}

// ValidationResult is the outcome of validating the active snapshot
// against the HTF bias observed at ENTRY close.
type ValidationResult struct {
	Valid        bool
	Expired      bool
	BiasMismatch bool
	Reason       string
	Conflicting  *Conflict
}

// DebugInfo is a diagnostic view of the active snapshot's age.
type DebugInfo struct {
	ID        string
	Age       time.Duration
	ExpiresIn time.Duration
}

// Gate owns the single active snapshot. now is injected for
// deterministic expiry tests.
type Gate struct {
	mu     sync.Mutex
	active *Snapshot
	now    func() time.Time
}

// New builds an empty gate. now defaults to time.Now when nil.
func New(now func() time.Time) *Gate {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Gate{now: now}
}

// CreateSnapshot captures the entry context as THE active snapshot,
// replacing any prior one (Empty/Active -> Active).
func (g *Gate) CreateSnapshot(htfBias domain.Bias, trend domain.TrendAnalysis, sig domain.Signal, primary domain.Candle) Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	snap := Snapshot{
		ID:            uuid.New().String(),
		HTFBias:       htfBias,
		Trend:         trend,
		Signal:        sig,
		PrimaryCandle: primary,
		CreatedAt:     now,
		ExpiresAt:     now.Add(TTL),
	}
	g.active = &snap
	return snap
}

// Validate checks the active snapshot against the HTF bias observed at
// ENTRY close. It does not clear the snapshot on failure — callers
// (the trading orchestrator) own that decision so a caller can inspect
// the verdict before deciding to drop the pending entry.
func (g *Gate) Validate(currentBias domain.Bias) ValidationResult {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active == nil {
		return ValidationResult{Valid: false, Reason: "No active snapshot"}
	}
	snap := g.active
	now := g.now()
	if now.After(snap.ExpiresAt) {
		return ValidationResult{Valid: false, Expired: true, Reason: "expired"}
	}
	if mismatch := biasMismatch(snap.HTFBias, snap.Signal.Direction, currentBias); mismatch {
		return ValidationResult{
			Valid:        false,
			BiasMismatch: true,
			Reason:       "bias reversed since snapshot was taken",
			Conflicting: &Conflict{
				SignalDirection: snap.Signal.Direction,
				CurrentBias:     currentBias,
			},
		}
	}
	return ValidationResult{Valid: true}
}

// biasMismatch implements the spec's bias-compatibility table:
// BULLISH/LONG tolerates BULLISH or NEUTRAL, not BEARISH; BEARISH/SHORT
// tolerates BEARISH or NEUTRAL, not BULLISH; NEUTRAL tolerates anything.
func biasMismatch(snapBias domain.Bias, dir domain.Direction, currentBias domain.Bias) bool {
	switch snapBias {
	case domain.Bullish:
		return dir == domain.Long && currentBias == domain.Bearish
	case domain.Bearish:
		return dir == domain.Short && currentBias == domain.Bullish
	default:
		return false
	}
}

// ClearActive drops the active snapshot (Active -> Empty). A no-op if
// nothing is active.
func (g *Gate) ClearActive() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.active = nil
}

// GetActive returns a copy of the active snapshot, if any.
func (g *Gate) GetActive() (Snapshot, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active == nil {
		return Snapshot{}, false
	}
	return *g.active, true
}

// Count reports 0 or 1, matching the data-model invariant that at most
// one snapshot is ever active.
func (g *Gate) Count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active == nil {
		return 0
	}
	return 1
}

// DebugInfo reports the active snapshot's age and remaining TTL.
func (g *Gate) DebugInfo() (DebugInfo, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active == nil {
		return DebugInfo{}, false
	}
	now := g.now()
	return DebugInfo{
		ID:        g.active.ID,
		Age:       now.Sub(g.active.CreatedAt),
		ExpiresIn: g.active.ExpiresAt.Sub(now),
	}, true
}
