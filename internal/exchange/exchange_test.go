package exchange

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chidi150c/futurescore/internal/domain"
)

func TestRoundQuantityDownToStep(t *testing.T) {
	p := Precision{QuantityStep: 0.001}
	assert.InDelta(t, 0.123, RoundQuantity(0.12349, p), 1e-9)
}

func TestRoundPriceNearestTick(t *testing.T) {
	p := Precision{PriceTick: 0.5}
	assert.InDelta(t, 100.5, RoundPrice(100.26, p), 1e-9)
	assert.InDelta(t, 100.0, RoundPrice(100.24, p), 1e-9)
}

func TestRoundWithZeroStepIsIdentity(t *testing.T) {
	p := Precision{}
	assert.Equal(t, 1.23456, RoundQuantity(1.23456, p))
	assert.Equal(t, 1.23456, RoundPrice(1.23456, p))
}

func TestPaperOpenPositionRequiresPrice(t *testing.T) {
	paper := NewPaper(10000, nil)
	_, err := paper.OpenPosition(context.Background(), OpenPositionRequest{
		Symbol: "BTCUSDT", Side: domain.Long, Quantity: 1, Leverage: 5, StopLoss: 50000,
	})
	require.Error(t, err)
}

func TestPaperOpenPositionDebitsMarginAndCloseReleasesIt(t *testing.T) {
	paper := NewPaper(10000, nil)
	paper.SetPrice("BTCUSDT", 50000)

	orderID, err := paper.OpenPosition(context.Background(), OpenPositionRequest{
		Symbol: "BTCUSDT", Side: domain.Long, Quantity: 1, Leverage: 10, StopLoss: 49000,
	})
	require.NoError(t, err)
	require.NotEmpty(t, orderID)

	bal, err := paper.GetBalance(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 5000, bal.MarginUsed, 1e-9)
	assert.InDelta(t, 5000, bal.Available, 1e-9)

	require.NoError(t, paper.ClosePosition(context.Background(), orderID, 100))
	bal, err = paper.GetBalance(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 0, bal.MarginUsed, 1e-9)
	assert.InDelta(t, 10000, bal.Available, 1e-9)
}

func TestPaperOpenPositionRejectsInsufficientMargin(t *testing.T) {
	paper := NewPaper(100, nil)
	paper.SetPrice("BTCUSDT", 50000)
	_, err := paper.OpenPosition(context.Background(), OpenPositionRequest{
		Symbol: "BTCUSDT", Side: domain.Long, Quantity: 1, Leverage: 1, StopLoss: 49000,
	})
	require.Error(t, err)
}

func TestPaperHealthCheckAlwaysHealthy(t *testing.T) {
	paper := NewPaper(1000, nil)
	assert.NoError(t, paper.HealthCheck(context.Background()))
}

func TestPaperConnectLifecycle(t *testing.T) {
	paper := NewPaper(1000, nil)
	assert.False(t, paper.IsConnected())
	require.NoError(t, paper.Connect(context.Background()))
	assert.True(t, paper.IsConnected())
	require.NoError(t, paper.Disconnect(context.Background()))
	assert.False(t, paper.IsConnected())
}

func TestBinanceIntervalMapping(t *testing.T) {
	assert.Equal(t, "1m", binanceInterval("ONE_MINUTE"))
	assert.Equal(t, "1h", binanceInterval("ONE_HOUR"))
	assert.Equal(t, "unknown", binanceInterval("unknown"))
}

func TestBybitIntervalMapping(t *testing.T) {
	assert.Equal(t, "1", bybitInterval("ONE_MINUTE"))
	assert.Equal(t, "D", bybitInterval("ONE_DAY"))
}

func TestDecimalsOf(t *testing.T) {
	assert.Equal(t, 2, decimalsOf("0.01"))
	assert.Equal(t, 0, decimalsOf("1"))
}
