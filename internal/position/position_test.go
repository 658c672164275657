package position

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chidi150c/futurescore/internal/domain"
	"github.com/chidi150c/futurescore/internal/exchange"
	"github.com/chidi150c/futurescore/internal/repository"
)

type fakeExchange struct {
	price           float64
	openErr         error
	closeErr        error
	slErr           error
	trailErr        error
	tpPartialErr    error
	openedOrderID   string
	closedPositions []string
}

func (f *fakeExchange) GetCandles(context.Context, string, string, int) ([]domain.Candle, error) {
	return nil, nil
}
func (f *fakeExchange) GetLatestPrice(context.Context, string) (float64, error) { return f.price, nil }
func (f *fakeExchange) GetServerTime(context.Context) (time.Time, error)        { return time.Now(), nil }
func (f *fakeExchange) GetSymbolPrecision(context.Context, string) (exchange.Precision, error) {
	return exchange.Precision{QuantityStep: 0.001, PriceTick: 0.01}, nil
}
func (f *fakeExchange) GetFundingRate(context.Context, string) (float64, error) { return 0, nil }
func (f *fakeExchange) OpenPosition(context.Context, exchange.OpenPositionRequest) (string, error) {
	if f.openErr != nil {
		return "", f.openErr
	}
	return f.openedOrderID, nil
}
func (f *fakeExchange) UpdateTakeProfitPartial(context.Context, string, float64, float64, int) error {
	return f.tpPartialErr
}
func (f *fakeExchange) ClosePosition(_ context.Context, positionID string, _ float64) error {
	f.closedPositions = append(f.closedPositions, positionID)
	return f.closeErr
}
func (f *fakeExchange) UpdateStopLoss(context.Context, string, float64) error         { return f.slErr }
func (f *fakeExchange) ActivateTrailing(context.Context, string, float64) error       { return f.trailErr }
func (f *fakeExchange) CancelAllOrders(context.Context, string) (int, error)          { return 0, nil }
func (f *fakeExchange) CancelAllConditionalOrders(context.Context) (int, error)       { return 0, nil }
func (f *fakeExchange) GetBalance(context.Context) (exchange.Balance, error)          { return exchange.Balance{}, nil }
func (f *fakeExchange) SetLeverage(context.Context, string, float64) error            { return nil }
func (f *fakeExchange) Connect(context.Context) error                                 { return nil }
func (f *fakeExchange) Disconnect(context.Context) error                              { return nil }
func (f *fakeExchange) IsConnected() bool                                             { return true }
func (f *fakeExchange) HealthCheck(context.Context) error                             { return nil }
func (f *fakeExchange) Name() string                                                  { return "fake" }

type recordingNotifier struct {
	opened []domain.Position
	closed []domain.Position
}

func (n *recordingNotifier) NotifyPositionOpened(p domain.Position) { n.opened = append(n.opened, p) }
func (n *recordingNotifier) NotifyPositionClosed(p domain.Position, _ domain.TradeRecord) {
	n.closed = append(n.closed, p)
}

func newLifecycle(t *testing.T, ex *fakeExchange, notifier Notifier) (*Lifecycle, string) {
	t.Helper()
	dir := t.TempDir()
	journal := repository.NewJournalRepository(dir, zerolog.Nop())
	positions := repository.NewPositionRepository()
	l := New(ex, positions, journal, notifier, zerolog.Nop(), 0.055)
	return l, dir
}

func TestOpenPlacesProtectedPositionAndRecordsIt(t *testing.T) {
	ex := &fakeExchange{price: 100, openedOrderID: "order-1"}
	notifier := &recordingNotifier{}
	l, _ := newLifecycle(t, ex, notifier)

	payload := domain.OpenPositionPayload{
		Symbol: "BTCUSDT",
		Signal: domain.Signal{
			Direction:   domain.Long,
			Price:       100,
			StopLoss:    95,
			PositionSize: 1000,
			TakeProfits: []domain.TakeProfitTarget{{Level: 1, SizePercent: 60, Price: 110}},
		},
	}
	pos, err := l.Open(context.Background(), payload, exchange.Precision{QuantityStep: 0.001, PriceTick: 0.01}, 5)
	require.NoError(t, err)
	assert.Equal(t, "order-1", pos.ID)
	assert.Equal(t, domain.ExitOpen, pos.ExitState)
	assert.Equal(t, domain.StatusOpen, pos.Status)
	// sl_distance = |100-95| = 5; actual = price(100) - 5 = 95
	assert.InDelta(t, 95, pos.StopLoss.Price, 1e-9)
	require.Len(t, notifier.opened, 1)
}

func TestOpenPropagatesErrorAfterRetries(t *testing.T) {
	ex := &fakeExchange{price: 100, openErr: assert.AnError}
	l, _ := newLifecycle(t, ex, nil)
	_, err := l.Open(context.Background(), domain.OpenPositionPayload{
		Symbol: "BTCUSDT",
		Signal: domain.Signal{Direction: domain.Long, Price: 100, StopLoss: 95, PositionSize: 100},
	}, exchange.Precision{QuantityStep: 0.001, PriceTick: 0.01}, 5)
	require.Error(t, err)
}

func TestClosePercentFullyClosesAndMovesToHistory(t *testing.T) {
	ex := &fakeExchange{price: 110, openedOrderID: "order-2"}
	notifier := &recordingNotifier{}
	l, _ := newLifecycle(t, ex, notifier)
	_, err := l.Open(context.Background(), domain.OpenPositionPayload{
		Symbol: "BTCUSDT",
		Signal: domain.Signal{Direction: domain.Long, Price: 100, StopLoss: 95, PositionSize: 1000},
	}, exchange.Precision{QuantityStep: 0.001, PriceTick: 0.01}, 5)
	require.NoError(t, err)

	err = l.ClosePercent(context.Background(), domain.ClosePercentPayload{PositionID: "order-2", SizePercent: 100, Reason: "tp3"})
	require.NoError(t, err)
	require.Len(t, notifier.closed, 1)
	_, open := l.positions.Current()
	assert.False(t, open)
	history := l.positions.History()
	require.Len(t, history, 1)
	assert.Equal(t, "order-2", history[0].ID)
}

func TestUpdateStopLossMarksBreakeven(t *testing.T) {
	ex := &fakeExchange{price: 101, openedOrderID: "order-3"}
	l, _ := newLifecycle(t, ex, nil)
	_, err := l.Open(context.Background(), domain.OpenPositionPayload{
		Symbol: "BTCUSDT",
		Signal: domain.Signal{Direction: domain.Long, Price: 100, StopLoss: 95, PositionSize: 1000},
	}, exchange.Precision{QuantityStep: 0.001, PriceTick: 0.01}, 5)
	require.NoError(t, err)

	err = l.UpdateStopLoss(context.Background(), domain.UpdateStopLossPayload{PositionID: "order-3", NewPrice: 100, Breakeven: true})
	require.NoError(t, err)
	pos, ok := l.positions.Current()
	require.True(t, ok)
	assert.True(t, pos.StopLoss.IsBreakeven)
	assert.InDelta(t, 100, pos.StopLoss.Price, 1e-9)
}
