package dataprovider

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chidi150c/futurescore/internal/domain"
	"github.com/chidi150c/futurescore/internal/exchange"
	"github.com/chidi150c/futurescore/internal/repository"
)

type fakeCandleExchange struct {
	exchange.Exchange
	candles map[string][]domain.Candle
	calls   int
}

func (f *fakeCandleExchange) GetCandles(_ context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	f.calls++
	return f.candles[symbol+"|"+interval], nil
}

func TestTimeframeProviderResolvesConfiguredRoles(t *testing.T) {
	tf := NewTimeframeProvider([]TimeframeSpec{
		{Role: RolePrimary, Interval: "5m", WarmupN: 200},
		{Role: RoleEntry, Interval: "1m", WarmupN: 100},
	})

	spec, ok := tf.Resolve(RolePrimary)
	require.True(t, ok)
	assert.Equal(t, "5m", spec.Interval)

	_, ok = tf.Resolve(RoleConfirm)
	assert.False(t, ok, "an unconfigured role should not resolve")

	assert.Len(t, tf.Roles(), 2)
}

func TestCandleProviderWarmupAllSavesEveryRole(t *testing.T) {
	tf := NewTimeframeProvider([]TimeframeSpec{
		{Role: RolePrimary, Interval: "5m", WarmupN: 10},
		{Role: RoleEntry, Interval: "1m", WarmupN: 5},
	})
	primary := []domain.Candle{{Timestamp: 1, Close: 100}}
	entry := []domain.Candle{{Timestamp: 2, Close: 101}}
	ex := &fakeCandleExchange{candles: map[string][]domain.Candle{
		"BTCUSDT|5m": primary,
		"BTCUSDT|1m": entry,
	}}
	repo := repository.NewMarketDataRepository(func() time.Time { return time.Now() })
	cp := NewCandleProvider(ex, repo, tf, "BTCUSDT")

	require.NoError(t, cp.WarmupAll(context.Background()))

	got, err := cp.Candles(context.Background(), RolePrimary)
	require.NoError(t, err)
	assert.Equal(t, primary, got)
}

func TestCandleProviderOnCandleCloseAppendsToKnownRoleOnly(t *testing.T) {
	tf := NewTimeframeProvider([]TimeframeSpec{{Role: RolePrimary, Interval: "5m", WarmupN: 10}})
	repo := repository.NewMarketDataRepository(func() time.Time { return time.Now() })
	cp := NewCandleProvider(&fakeCandleExchange{candles: map[string][]domain.Candle{}}, repo, tf, "BTCUSDT")

	assert.True(t, cp.OnCandleClose(RolePrimary, domain.Candle{Timestamp: 1, Close: 100}))
	assert.False(t, cp.OnCandleClose(RoleConfirm, domain.Candle{Timestamp: 2, Close: 101}), "an unconfigured role reports false and is dropped")

	candles, err := cp.Candles(context.Background(), RolePrimary)
	require.NoError(t, err)
	require.Len(t, candles, 1)
	assert.Equal(t, 100.0, candles[0].Close)
}

func TestCandleProviderCandlesReloadsWhenRepositoryEmpty(t *testing.T) {
	tf := NewTimeframeProvider([]TimeframeSpec{{Role: RolePrimary, Interval: "5m", WarmupN: 10}})
	fresh := []domain.Candle{{Timestamp: 9, Close: 200}}
	ex := &fakeCandleExchange{candles: map[string][]domain.Candle{"BTCUSDT|5m": fresh}}
	repo := repository.NewMarketDataRepository(func() time.Time { return time.Now() })
	cp := NewCandleProvider(ex, repo, tf, "BTCUSDT")

	got, err := cp.Candles(context.Background(), RolePrimary)
	require.NoError(t, err)
	assert.Equal(t, fresh, got)
	assert.Equal(t, 1, ex.calls, "an empty repository should trigger exactly one reload fetch")
}
