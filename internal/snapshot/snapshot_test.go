package snapshot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chidi150c/futurescore/internal/domain"
)

func clockAt(t *time.Time) func() time.Time {
	return func() time.Time { return *t }
}

func TestCreateSnapshotSetsExpiryAndID(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	g := New(clockAt(&now))
	snap := g.CreateSnapshot(domain.Bullish, domain.TrendAnalysis{Bias: domain.Bullish}, domain.Signal{Direction: domain.Long}, domain.Candle{})
	require.NotEmpty(t, snap.ID)
	assert.Equal(t, TTL, snap.ExpiresAt.Sub(snap.CreatedAt))
	assert.Equal(t, 1, g.Count())
}

func TestCreateSnapshotReplacesPrior(t *testing.T) {
	now := time.Now().UTC()
	g := New(clockAt(&now))
	first := g.CreateSnapshot(domain.Bullish, domain.TrendAnalysis{}, domain.Signal{Direction: domain.Long}, domain.Candle{})
	second := g.CreateSnapshot(domain.Bearish, domain.TrendAnalysis{}, domain.Signal{Direction: domain.Short}, domain.Candle{})
	assert.Equal(t, 1, g.Count())
	active, ok := g.GetActive()
	require.True(t, ok)
	assert.Equal(t, second.ID, active.ID)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestValidateNoActiveSnapshot(t *testing.T) {
	now := time.Now().UTC()
	g := New(clockAt(&now))
	res := g.Validate(domain.Bullish)
	assert.False(t, res.Valid)
	assert.Equal(t, "No active snapshot", res.Reason)
}

// Scenario 1 from the spec: snapshot race.
func TestValidateBiasMismatchAtSixtySeconds(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	g := New(clockAt(&now))
	g.CreateSnapshot(domain.Bullish, domain.TrendAnalysis{Bias: domain.Bullish}, domain.Signal{Direction: domain.Long, Price: 1000, StopLoss: 990}, domain.Candle{})

	now = now.Add(60 * time.Second)
	res := g.Validate(domain.Bearish)
	assert.False(t, res.Valid)
	assert.True(t, res.BiasMismatch)
	require.NotNil(t, res.Conflicting)
	assert.Equal(t, domain.Long, res.Conflicting.SignalDirection)
	assert.Equal(t, domain.Bearish, res.Conflicting.CurrentBias)
}

func TestValidateToleratesNeutralAndSameBias(t *testing.T) {
	now := time.Now().UTC()
	g := New(clockAt(&now))
	g.CreateSnapshot(domain.Bullish, domain.TrendAnalysis{}, domain.Signal{Direction: domain.Long}, domain.Candle{})
	assert.True(t, g.Validate(domain.Bullish).Valid)
	assert.True(t, g.Validate(domain.Neutral).Valid)
}

func TestValidateNeutralSnapshotToleratesAnyBias(t *testing.T) {
	now := time.Now().UTC()
	g := New(clockAt(&now))
	g.CreateSnapshot(domain.Neutral, domain.TrendAnalysis{}, domain.Signal{Direction: domain.Short}, domain.Candle{})
	assert.True(t, g.Validate(domain.Bullish).Valid)
	assert.True(t, g.Validate(domain.Bearish).Valid)
}

// Scenario 2 from the spec: expiry.
func TestValidateExpiredAtOneTwentyOneSeconds(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	g := New(clockAt(&now))
	g.CreateSnapshot(domain.Bullish, domain.TrendAnalysis{}, domain.Signal{Direction: domain.Long}, domain.Candle{})

	now = now.Add(121 * time.Second)
	res := g.Validate(domain.Bullish)
	assert.False(t, res.Valid)
	assert.True(t, res.Expired)
}

func TestClearActiveResetsCountToZero(t *testing.T) {
	now := time.Now().UTC()
	g := New(clockAt(&now))
	g.CreateSnapshot(domain.Bullish, domain.TrendAnalysis{}, domain.Signal{Direction: domain.Long}, domain.Candle{})
	g.ClearActive()
	assert.Equal(t, 0, g.Count())
	_, ok := g.GetActive()
	assert.False(t, ok)
}

func TestDebugInfoReportsAgeAndRemainingTTL(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	g := New(clockAt(&now))
	g.CreateSnapshot(domain.Bullish, domain.TrendAnalysis{}, domain.Signal{Direction: domain.Long}, domain.Candle{})
	now = now.Add(30 * time.Second)
	info, ok := g.DebugInfo()
	require.True(t, ok)
	assert.Equal(t, 30*time.Second, info.Age)
	assert.Equal(t, 90*time.Second, info.ExpiresIn)
}
