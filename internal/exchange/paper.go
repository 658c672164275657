package exchange

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chidi150c/futurescore/internal/domain"
	"github.com/chidi150c/futurescore/internal/errs"
	"github.com/chidi150c/futurescore/internal/repository"
)

// Paper is an in-memory simulated exchange used for dry runs: orders
// are filled at the latest known price instead of touching a real
// venue. It mirrors the teacher's single-mutable-price paper broker,
// extended with the leveraged-position bookkeeping the rest of the
// core expects (stop-loss/take-profit legs, leverage, balance).
type Paper struct {
	mu        sync.Mutex
	price     map[string]float64
	balance   Balance
	precision Precision
	connected bool
	orders    int

	candles *repository.MarketDataRepository
}

// NewPaper builds a paper exchange seeded with a starting balance and
// default tick/step precision. candles, if non-nil, is consulted for
// GetCandles so paper mode can still drive the strategy's indicators
// from a pre-loaded or externally-fed series.
func NewPaper(startingBalance float64, candles *repository.MarketDataRepository) *Paper {
	return &Paper{
		price:   make(map[string]float64),
		balance: Balance{Wallet: startingBalance, Available: startingBalance},
		precision: Precision{
			PricePrecision:    2,
			QuantityPrecision: 3,
			PriceTick:         0.01,
			QuantityStep:      0.001,
			MinOrderQty:       0.001,
		},
		candles: candles,
	}
}

func (p *Paper) Name() string { return "paper" }

// SetPrice seeds the last-known price for symbol, used by GetLatestPrice
// and to simulate fills. Orchestrator code calls this on every candle
// close so paper fills always use the freshest price.
func (p *Paper) SetPrice(symbol string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.price[symbol] = price
}

func (p *Paper) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	if p.candles == nil {
		return nil, errs.New(errs.KindNotFound, "NO_CANDLE_SOURCE", "paper exchange has no candle source configured", nil)
	}
	l := limit
	return p.candles.Get(symbol, interval, &l), nil
}

func (p *Paper) GetLatestPrice(ctx context.Context, symbol string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	price, ok := p.price[symbol]
	if !ok || price <= 0 {
		return 0, errs.New(errs.KindStaleData, "NO_PRICE", "no price observed yet for "+symbol, nil)
	}
	return price, nil
}

func (p *Paper) GetServerTime(ctx context.Context) (time.Time, error) {
	return time.Now().UTC(), nil
}

func (p *Paper) GetSymbolPrecision(ctx context.Context, symbol string) (Precision, error) {
	return p.precision, nil
}

func (p *Paper) GetFundingRate(ctx context.Context, symbol string) (float64, error) {
	return 0, nil
}

func (p *Paper) OpenPosition(ctx context.Context, req OpenPositionRequest) (string, error) {
	price, err := p.GetLatestPrice(ctx, req.Symbol)
	if err != nil {
		return "", err
	}
	notional := req.Quantity * price
	margin := notional / maxFloat(req.Leverage, 1)

	p.mu.Lock()
	defer p.mu.Unlock()
	if margin > p.balance.Available {
		return "", errs.New(errs.KindInsufficientFunds, "PAPER_MARGIN", "simulated available balance too low for requested size", nil)
	}
	p.balance.Available -= margin
	p.balance.MarginUsed += margin
	p.orders++
	return uuid.New().String(), nil
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func (p *Paper) UpdateTakeProfitPartial(ctx context.Context, positionID string, price, size float64, index int) error {
	return nil
}

func (p *Paper) ClosePosition(ctx context.Context, positionID string, percentage float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	release := p.balance.MarginUsed * (percentage / 100)
	p.balance.MarginUsed -= release
	p.balance.Available += release
	return nil
}

func (p *Paper) UpdateStopLoss(ctx context.Context, positionID string, newPrice float64) error {
	return nil
}

func (p *Paper) ActivateTrailing(ctx context.Context, positionID string, trailingPercent float64) error {
	return nil
}

func (p *Paper) CancelAllOrders(ctx context.Context, symbol string) (int, error) {
	return 0, nil
}

func (p *Paper) CancelAllConditionalOrders(ctx context.Context) (int, error) {
	return 0, nil
}

func (p *Paper) GetBalance(ctx context.Context) (Balance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balance, nil
}

func (p *Paper) SetLeverage(ctx context.Context, symbol string, leverage float64) error {
	return nil
}

func (p *Paper) Connect(ctx context.Context) error {
	p.mu.Lock()
	p.connected = true
	p.mu.Unlock()
	return nil
}

func (p *Paper) Disconnect(ctx context.Context) error {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	return nil
}

func (p *Paper) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

func (p *Paper) HealthCheck(ctx context.Context) error {
	return nil
}
