// Package exchange defines the capability set the core needs from a
// centralized futures exchange — market data, positions, orders,
// account — and two interchangeable concrete implementations (Bybit,
// Binance) plus an in-memory paper implementation for dry runs. An
// adapter layer normalizes both real exchanges to the same semantics
// so the rest of the core never branches on venue.
package exchange

import (
	"context"
	"time"

	"github.com/chidi150c/futurescore/internal/domain"
)

// Precision is the exchange-reported tick/step/minimum for a symbol.
type Precision struct {
	PricePrecision    int
	QuantityPrecision int
	PriceTick         float64
	QuantityStep      float64
	MinOrderQty       float64
}

// Balance is the account's wallet snapshot.
type Balance struct {
	Wallet        float64
	Available     float64
	MarginUsed    float64
	UnrealizedPnL float64
}

// OpenPositionRequest is the atomic open: stop-loss and (optionally) the
// first take-profit leg must be attached in the same call.
type OpenPositionRequest struct {
	Symbol           string
	Side             domain.Direction
	Quantity         float64
	Leverage         float64
	StopLoss         float64
	FirstTakeProfit  *float64
}

// Exchange is the capability set the core depends on. Two concrete
// implementations (Bybit, Binance) satisfy it behind one contract; a
// Paper implementation satisfies it for dry runs and tests.
type Exchange interface {
	// Market data
	GetCandles(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error)
	GetLatestPrice(ctx context.Context, symbol string) (float64, error)
	GetServerTime(ctx context.Context) (time.Time, error)
	GetSymbolPrecision(ctx context.Context, symbol string) (Precision, error)
	GetFundingRate(ctx context.Context, symbol string) (float64, error)

	// Positions & orders
	OpenPosition(ctx context.Context, req OpenPositionRequest) (orderID string, err error)
	UpdateTakeProfitPartial(ctx context.Context, positionID string, price, size float64, index int) error
	ClosePosition(ctx context.Context, positionID string, percentage float64) error
	UpdateStopLoss(ctx context.Context, positionID string, newPrice float64) error
	ActivateTrailing(ctx context.Context, positionID string, trailingPercent float64) error
	CancelAllOrders(ctx context.Context, symbol string) (cancelled int, err error)
	CancelAllConditionalOrders(ctx context.Context) (cancelled int, err error)

	// Account
	GetBalance(ctx context.Context) (Balance, error)
	SetLeverage(ctx context.Context, symbol string, leverage float64) error

	// Lifecycle
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	IsConnected() bool
	HealthCheck(ctx context.Context) error

	// Name identifies the venue for logs/metrics (e.g. "bybit", "binance", "paper").
	Name() string
}

// RoundQuantity snaps qty down to the nearest QuantityStep.
func RoundQuantity(qty float64, p Precision) float64 {
	return roundDownToStep(qty, p.QuantityStep)
}

// RoundPrice snaps price to the nearest PriceTick.
func RoundPrice(price float64, p Precision) float64 {
	return roundToStep(price, p.PriceTick)
}

func roundDownToStep(v, step float64) float64 {
	if step <= 0 {
		return v
	}
	return float64(int64(v/step)) * step
}

func roundToStep(v, step float64) float64 {
	if step <= 0 {
		return v
	}
	n := v / step
	rounded := float64(int64(n + 0.5))
	if n < 0 {
		rounded = float64(int64(n - 0.5))
	}
	return rounded * step
}
