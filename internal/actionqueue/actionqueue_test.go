package actionqueue

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chidi150c/futurescore/internal/domain"
)

func TestEnqueueAssignsIDAndTimestamp(t *testing.T) {
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	q := New(func() time.Time { return fixed }, zerolog.Nop())
	action := q.Enqueue(domain.ActionRequest{Type: domain.ActionOpenPosition, Priority: domain.PriorityHigh})
	assert.NotEmpty(t, action.ID)
	assert.Equal(t, fixed, action.Timestamp)
}

func TestProcessDispatchesHighBeforeNormalFIFOWithinPriority(t *testing.T) {
	q := New(nil, zerolog.Nop())
	q.Enqueue(domain.ActionRequest{Type: domain.ActionClosePercent, Priority: domain.PriorityNormal, Payload: "normal-1"})
	q.Enqueue(domain.ActionRequest{Type: domain.ActionUpdateStopLoss, Priority: domain.PriorityHigh, Payload: "high-1"})
	q.Enqueue(domain.ActionRequest{Type: domain.ActionClosePercent, Priority: domain.PriorityNormal, Payload: "normal-2"})
	q.Enqueue(domain.ActionRequest{Type: domain.ActionUpdateStopLoss, Priority: domain.PriorityHigh, Payload: "high-2"})

	var order []string
	handlers := map[domain.ActionType]Handler{
		domain.ActionClosePercent:   func(_ context.Context, a domain.Action) error { order = append(order, a.Payload.(string)); return nil },
		domain.ActionUpdateStopLoss: func(_ context.Context, a domain.Action) error { order = append(order, a.Payload.(string)); return nil },
	}
	results := q.Process(context.Background(), handlers)
	require.Len(t, results, 4)
	assert.Equal(t, []string{"high-1", "high-2", "normal-1", "normal-2"}, order)
	assert.Equal(t, 0, q.Len())
}

func TestProcessSkipsUnregisteredHandlerWithoutPanicking(t *testing.T) {
	q := New(nil, zerolog.Nop())
	q.Enqueue(domain.ActionRequest{Type: domain.ActionActivateTrailing, Priority: domain.PriorityNormal})
	results := q.Process(context.Background(), map[domain.ActionType]Handler{})
	assert.Empty(t, results)
}

func TestProcessCollectsHandlerErrors(t *testing.T) {
	q := New(nil, zerolog.Nop())
	q.Enqueue(domain.ActionRequest{Type: domain.ActionOpenPosition, Priority: domain.PriorityHigh})
	boom := assert.AnError
	results := q.Process(context.Background(), map[domain.ActionType]Handler{
		domain.ActionOpenPosition: func(_ context.Context, _ domain.Action) error { return boom },
	})
	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Err, boom)
}

func TestProcessHighLeavesNormalActionsQueued(t *testing.T) {
	q := New(nil, zerolog.Nop())
	q.Enqueue(domain.ActionRequest{Type: domain.ActionClosePercent, Priority: domain.PriorityNormal, Payload: "normal-1"})
	q.Enqueue(domain.ActionRequest{Type: domain.ActionUpdateStopLoss, Priority: domain.PriorityHigh, Payload: "high-1"})

	handlers := map[domain.ActionType]Handler{
		domain.ActionClosePercent:   func(_ context.Context, _ domain.Action) error { return nil },
		domain.ActionUpdateStopLoss: func(_ context.Context, _ domain.Action) error { return nil },
	}
	results := q.ProcessHigh(context.Background(), handlers)
	require.Len(t, results, 1)
	assert.Equal(t, "high-1", results[0].Action.Payload)
	assert.Equal(t, 1, q.Len(), "the normal-priority action should remain queued")
}

func TestCloseRejectsFurtherEnqueues(t *testing.T) {
	q := New(nil, zerolog.Nop())
	q.Close()
	action := q.Enqueue(domain.ActionRequest{Type: domain.ActionOpenPosition, Priority: domain.PriorityHigh})
	assert.Empty(t, action.ID, "a rejected enqueue returns the zero Action")
	assert.Equal(t, 0, q.Len())
}
