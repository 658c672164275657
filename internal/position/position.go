// Package position implements the position-lifecycle handlers: the
// only code paths allowed to mutate a Position, all reached exclusively
// through the action queue. The open handler mirrors the teacher's
// trader.go openLot sequence (cancel stale conditionals, reprice
// against the latest tick, then atomically place the protected order)
// generalized to leveraged ladder-TP positions per spec §4.13.
package position

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/chidi150c/futurescore/internal/domain"
	"github.com/chidi150c/futurescore/internal/errs"
	"github.com/chidi150c/futurescore/internal/exchange"
	"github.com/chidi150c/futurescore/internal/metrics"
	"github.com/chidi150c/futurescore/internal/repository"
)

// Notifier is the capability-injected notification sink; position
// lifecycle events fan out to named sinks in a declared order rather
// than an undefined-order event emitter (spec §9 redesign note).
type Notifier interface {
	NotifyPositionOpened(domain.Position)
	NotifyPositionClosed(domain.Position, domain.TradeRecord)
}

// NopNotifier discards every notification; useful for tests and
// configurations that run without a notification transport wired up.
type NopNotifier struct{}

func (NopNotifier) NotifyPositionOpened(domain.Position)              {}
func (NopNotifier) NotifyPositionClosed(domain.Position, domain.TradeRecord) {}

// Lifecycle owns OPEN_POSITION and the mutating exit-action handlers.
type Lifecycle struct {
	ex         exchange.Exchange
	positions  *repository.PositionRepository
	journal    *repository.JournalRepository
	notifier   Notifier
	log        zerolog.Logger
	now        func() time.Time
	feeRatePct float64
}

// New builds a Lifecycle bound to its collaborators. feeRatePct is the
// taker-fee percentage (e.g. 0.055 for 0.055%) applied to both the
// entry and every exit fill's notional, generalized from the teacher's
// trader.go fee bookkeeping (trader.go:287/724) into an explicit,
// config-driven rate instead of a hardcoded constant.
func New(ex exchange.Exchange, positions *repository.PositionRepository, journal *repository.JournalRepository, notifier Notifier, log zerolog.Logger, feeRatePct float64) *Lifecycle {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Lifecycle{
		ex:         ex,
		positions:  positions,
		journal:    journal,
		notifier:   notifier,
		log:        log.With().Str("component", "position_lifecycle").Logger(),
		now:        func() time.Time { return time.Now().UTC() },
		feeRatePct: feeRatePct,
	}
}

// Open handles OPEN_POSITION: cancel dangling conditionals (best
// effort), reprice the stop-loss against the latest tick, place the
// atomic protected order, attach any additional TP legs (best effort),
// then record the position in the repository and journal.
func (l *Lifecycle) Open(ctx context.Context, payload domain.OpenPositionPayload, precision exchange.Precision, leverage float64) (domain.Position, error) {
	if _, err := l.ex.CancelAllConditionalOrders(ctx); err != nil {
		l.log.Warn().Err(err).Msg("cancel dangling conditional orders failed, continuing")
	}

	sig := payload.Signal
	price, err := l.ex.GetLatestPrice(ctx, payload.Symbol)
	if err != nil {
		return domain.Position{}, err
	}

	isLong := sig.Direction == domain.Long
	slDistance := math.Abs(sig.Price - sig.StopLoss)
	actualStopLoss := price - slDistance
	if !isLong {
		actualStopLoss = price + slDistance
	}
	actualStopLoss = exchange.RoundPrice(actualStopLoss, precision)

	var firstTP *float64
	if len(sig.TakeProfits) > 0 {
		tp := exchange.RoundPrice(sig.TakeProfits[0].Price, precision)
		firstTP = &tp
	}

	qty := exchange.RoundQuantity(sig.PositionSize/price, precision)

	// Position open: Retry(3, 500ms, x2) then Throw — failing to open
	// must surface, per spec §7.
	openResult := errs.Retry(ctx, errs.RetryConfig{MaxAttempts: 3, InitialDelayMs: 500, BackoffMultiplier: 2}, func(ctx context.Context) (string, error) {
		return l.ex.OpenPosition(ctx, exchange.OpenPositionRequest{
			Symbol:          payload.Symbol,
			Side:            sig.Direction,
			Quantity:        qty,
			Leverage:        leverage,
			StopLoss:        actualStopLoss,
			FirstTakeProfit: firstTP,
		})
	})
	if openResult.Err != nil {
		return domain.Position{}, openResult.Err
	}
	orderID := openResult.Value
	metrics.OrdersTotal.WithLabelValues(l.ex.Name(), string(sig.Direction)).Inc()
	entryFee := qty * price * l.feeRatePct / 100

	legs := make([]domain.TakeProfitLeg, 0, len(sig.TakeProfits))
	for i, tp := range sig.TakeProfits {
		price := exchange.RoundPrice(tp.Price, precision)
		leg := domain.TakeProfitLeg{Level: tp.Level, SizePercent: tp.SizePercent, Price: price}
		if i == 0 {
			legs = append(legs, leg)
			continue
		}
		// Additional TP legs: Skip on per-leg failure, per spec §7 — one
		// missing TP level is acceptable, never revert the position.
		size := qty * tp.SizePercent / 100
		if err := l.ex.UpdateTakeProfitPartial(ctx, orderID, price, size, i); err != nil {
			l.log.Warn().Err(err).Int("index", i).Msg("additional take-profit leg failed, continuing")
			continue
		}
		legs = append(legs, leg)
	}

	pos := domain.Position{
		ID:         orderID,
		Symbol:     payload.Symbol,
		Side:       sig.Direction,
		Quantity:   qty,
		EntryPrice: price,
		Leverage:   leverage,
		StopLoss: domain.StopLoss{
			Price:   actualStopLoss,
			Initial: actualStopLoss,
		},
		TakeProfits: legs,
		OpenedAt:    l.now(),
		Status:      domain.StatusOpen,
		ExitState:   domain.ExitOpen,
		EntryFeeUSD: entryFee,
	}
	l.positions.Open(pos)

	// Journal write: Retry(1, 50ms) then Skip with a loud log, per spec §7.
	trade := domain.TradeRecord{
		ID:         pos.ID,
		Symbol:     pos.Symbol,
		Side:       pos.Side,
		EntryPrice: pos.EntryPrice,
		Quantity:   pos.Quantity,
		EntryTime:  pos.OpenedAt,
	}
	journalResult := errs.Retry(ctx, errs.RetryConfig{MaxAttempts: 1, InitialDelayMs: 50}, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, l.journal.RecordTrade(trade)
	})
	if journalResult.Err != nil {
		l.log.Error().Err(journalResult.Err).Str("position_id", pos.ID).Msg("journal write failed, position still opened")
	}

	l.notifier.NotifyPositionOpened(pos)
	return pos, nil
}

// ClosePercent handles CLOSE_PERCENT: calls the exchange, then updates
// the repository position's size/exit-state and, on a full close,
// moves it to history and finalizes the journal entry.
func (l *Lifecycle) ClosePercent(ctx context.Context, payload domain.ClosePercentPayload) error {
	// Position close: Retry(3, 100ms, x2) then Throw — silent loss of
	// protection is disallowed, per spec §7.
	result := errs.Retry(ctx, errs.RetryConfig{MaxAttempts: 3, InitialDelayMs: 100, BackoffMultiplier: 2}, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, l.ex.ClosePosition(ctx, payload.PositionID, payload.SizePercent)
	})
	if result.Err != nil {
		return result.Err
	}

	closingPrice := func() float64 {
		pos, ok := l.positions.Current()
		price := pos.EntryPrice
		if ok {
			if cur, err := l.ex.GetLatestPrice(ctx, pos.Symbol); err == nil {
				price = cur
			}
		}
		return price
	}()

	if payload.SizePercent >= 100 {
		l.positions.Update(func(p *domain.Position) {
			p.ExitFeeUSD += p.Quantity * closingPrice * l.feeRatePct / 100
		})
		closed, ok := l.positions.Close()
		if !ok {
			return nil
		}
		pnl := unrealizedPnL(closed, closingPrice) - closed.EntryFeeUSD - closed.ExitFeeUSD
		now := l.now()
		trade := domain.TradeRecord{
			ID:         closed.ID,
			Symbol:     closed.Symbol,
			Side:       closed.Side,
			EntryPrice: closed.EntryPrice,
			ExitPrice:  &closingPrice,
			Quantity:   closed.Quantity,
			EntryTime:  closed.OpenedAt,
			ExitTime:   &now,
			PnL:        pnl,
			ExitReason: payload.Reason,
		}
		if err := l.journal.UpdateTrade(closed.ID, func(t *domain.TradeRecord) { *t = trade }); err != nil {
			l.log.Error().Err(err).Str("position_id", closed.ID).Msg("journal update failed on close")
		}
		metrics.RecordTrade(pnl)
		l.notifier.NotifyPositionClosed(closed, trade)
		return nil
	}

	l.positions.Update(func(p *domain.Position) {
		closedQty := p.Quantity * payload.SizePercent / 100
		p.ExitFeeUSD += closedQty * closingPrice * l.feeRatePct / 100
		p.Quantity -= closedQty
		if payload.NextExitState != "" {
			p.ExitState = payload.NextExitState
		}
		for i := range p.TakeProfits {
			if p.TakeProfits[i].SizePercent == payload.SizePercent && !p.TakeProfits[i].Hit {
				p.TakeProfits[i].Hit = true
				break
			}
		}
	})
	return nil
}

// UpdateStopLoss handles UPDATE_STOP_LOSS, including the breakeven move.
func (l *Lifecycle) UpdateStopLoss(ctx context.Context, payload domain.UpdateStopLossPayload) error {
	result := errs.Retry(ctx, errs.RetryConfig{MaxAttempts: 3, InitialDelayMs: 100, BackoffMultiplier: 2}, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, l.ex.UpdateStopLoss(ctx, payload.PositionID, payload.NewPrice)
	})
	if result.Err != nil {
		return result.Err
	}
	l.positions.Update(func(p *domain.Position) {
		p.StopLoss.Price = payload.NewPrice
		if payload.Breakeven {
			p.StopLoss.IsBreakeven = true
		}
	})
	return nil
}

// ActivateTrailing handles ACTIVATE_TRAILING.
func (l *Lifecycle) ActivateTrailing(ctx context.Context, payload domain.ActivateTrailingPayload) error {
	result := errs.Retry(ctx, errs.RetryConfig{MaxAttempts: 3, InitialDelayMs: 100, BackoffMultiplier: 2}, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, l.ex.ActivateTrailing(ctx, payload.PositionID, payload.TrailingPercent)
	})
	if result.Err != nil {
		return result.Err
	}
	l.positions.Update(func(p *domain.Position) {
		p.StopLoss.IsTrailing = true
	})
	return nil
}

func unrealizedPnL(pos domain.Position, currentPrice float64) float64 {
	diff := currentPrice - pos.EntryPrice
	if pos.Side == domain.Short {
		diff = -diff
	}
	return diff * pos.Quantity
}

// Handlers returns the actionqueue.Handler map wiring every action
// type this lifecycle understands. Kept as plain functions (not a
// dependency on the actionqueue package's types) so position has no
// import-cycle risk; the orchestrator wires the map's type at the call
// site.
func (l *Lifecycle) Handlers(precision exchange.Precision, leverage float64) map[domain.ActionType]func(ctx context.Context, action domain.Action) error {
	return map[domain.ActionType]func(ctx context.Context, action domain.Action) error{
		domain.ActionOpenPosition: func(ctx context.Context, action domain.Action) error {
			payload := action.Payload.(domain.OpenPositionPayload)
			_, err := l.Open(ctx, payload, precision, leverage)
			return err
		},
		domain.ActionClosePercent: func(ctx context.Context, action domain.Action) error {
			return l.ClosePercent(ctx, action.Payload.(domain.ClosePercentPayload))
		},
		domain.ActionUpdateStopLoss: func(ctx context.Context, action domain.Action) error {
			return l.UpdateStopLoss(ctx, action.Payload.(domain.UpdateStopLossPayload))
		},
		domain.ActionActivateTrailing: func(ctx context.Context, action domain.Action) error {
			return l.ActivateTrailing(ctx, action.Payload.(domain.ActivateTrailingPayload))
		},
	}
}
