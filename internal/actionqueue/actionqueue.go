// Package actionqueue implements the prioritized, serialized command
// bus that mediates every mutating operation against the exchange, so
// concurrent event sources (candle closes, execution events, the exit
// machine) never race against each other. It generalizes the teacher's
// trader.go `apply`/`unlockSafe` single-mutex guarded-mutation pattern
// into an explicit FIFO-within-priority queue per spec §4.14.
package actionqueue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/chidi150c/futurescore/internal/domain"
)

// Handler processes one dispatched action.
type Handler func(ctx context.Context, action domain.Action) error

// Result pairs a processed action with its handler outcome.
type Result struct {
	Action domain.Action
	Err    error
}

// Queue is a FIFO partitioned by priority; HIGH strictly precedes
// NORMAL, FIFO within each. It has no capacity limit: Enqueue accepts
// every request until Close is called.
type Queue struct {
	mu     sync.Mutex
	high   []domain.Action
	normal []domain.Action
	closed bool
	now    func() time.Time
	log    zerolog.Logger
}

// New builds an empty queue. now defaults to time.Now when nil.
func New(now func() time.Time, log zerolog.Logger) *Queue {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Queue{now: now, log: log}
}

// Enqueue stamps req with an ID and timestamp and appends it to the
// appropriate priority partition. Once Close has been called, Enqueue
// is a no-op and returns the zero Action — callers racing the shutdown
// sequence's "reject further enqueues" step are expected to ignore it.
func (q *Queue) Enqueue(req domain.ActionRequest) domain.Action {
	action := domain.Action{
		ID:        uuid.New().String(),
		Type:      req.Type,
		Priority:  req.Priority,
		Timestamp: q.now(),
		Payload:   req.Payload,
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.log.Warn().Str("type", string(req.Type)).Msg("actionqueue: enqueue rejected after shutdown")
		return domain.Action{}
	}
	if action.Priority == domain.PriorityHigh {
		q.high = append(q.high, action)
	} else {
		q.normal = append(q.normal, action)
	}
	return action
}

// Close marks the queue as shutting down: every subsequent Enqueue is
// rejected. It does not itself drain or process anything queued so
// far — callers drain pending HIGH actions first via ProcessHigh, then
// Close, per the shutdown ordering spec §5 describes.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}

// Len reports the total number of actions currently queued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.high) + len(q.normal)
}

// drain atomically takes everything currently queued, HIGH first,
// leaving the queue empty for new enqueues (including ones that may
// arrive from within this Process call's own handlers).
func (q *Queue) drain() []domain.Action {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]domain.Action, 0, len(q.high)+len(q.normal))
	out = append(out, q.high...)
	out = append(out, q.normal...)
	q.high = nil
	q.normal = nil
	return out
}

// drainHigh atomically takes only the HIGH partition, leaving NORMAL
// actions queued — used by the shutdown sequence, which drains pending
// HIGH actions and nothing else before tearing down.
func (q *Queue) drainHigh() []domain.Action {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.high
	q.high = nil
	return out
}

// Process drains the queue and dispatches each action, strictly
// serially (a single logical worker, per spec §5), to the handler
// registered for its type. An action with no registered handler is
// logged and skipped rather than silently dropped.
func (q *Queue) Process(ctx context.Context, handlers map[domain.ActionType]Handler) []Result {
	return dispatch(ctx, q.drain(), handlers, q.log)
}

// ProcessHigh drains and dispatches only the HIGH-priority partition,
// leaving any NORMAL actions in place. It is the shutdown sequence's
// first step: pending HIGH actions (stop-loss moves, trailing
// activations, position closes) still get a chance to run before the
// queue stops accepting new work.
func (q *Queue) ProcessHigh(ctx context.Context, handlers map[domain.ActionType]Handler) []Result {
	return dispatch(ctx, q.drainHigh(), handlers, q.log)
}

func dispatch(ctx context.Context, actions []domain.Action, handlers map[domain.ActionType]Handler, log zerolog.Logger) []Result {
	results := make([]Result, 0, len(actions))
	for _, action := range actions {
		handler, ok := handlers[action.Type]
		if !ok {
			log.Warn().Str("action_id", action.ID).Str("type", string(action.Type)).Msg("actionqueue: no handler registered")
			continue
		}
		err := handler(ctx, action)
		if err != nil {
			log.Error().Err(err).Str("action_id", action.ID).Str("type", string(action.Type)).Msg("actionqueue: handler failed")
		}
		results = append(results, Result{Action: action, Err: err})
	}
	return results
}
