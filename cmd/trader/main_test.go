package main

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/chidi150c/futurescore/internal/exchange"
)

type fakeCancelExchange struct {
	exchange.Exchange
	ordersErr      error
	conditionalErr error
}

func (f *fakeCancelExchange) CancelAllOrders(_ context.Context, _ string) (int, error) {
	if f.ordersErr != nil {
		return 0, f.ordersErr
	}
	return 3, nil
}

func (f *fakeCancelExchange) CancelAllConditionalOrders(_ context.Context) (int, error) {
	if f.conditionalErr != nil {
		return 0, f.conditionalErr
	}
	return 2, nil
}

func TestCancelOrdersOnShutdownBothSucceed(t *testing.T) {
	n := cancelOrdersOnShutdown(context.Background(), &fakeCancelExchange{}, "BTCUSDT", zerolog.Nop())
	assert.Equal(t, 2, n)
}

func TestCancelOrdersOnShutdownOneFails(t *testing.T) {
	n := cancelOrdersOnShutdown(context.Background(), &fakeCancelExchange{conditionalErr: errors.New("boom")}, "BTCUSDT", zerolog.Nop())
	assert.Equal(t, 1, n)
}

func TestCancelOrdersOnShutdownBothFail(t *testing.T) {
	n := cancelOrdersOnShutdown(context.Background(), &fakeCancelExchange{
		ordersErr:      errors.New("boom"),
		conditionalErr: errors.New("boom"),
	}, "BTCUSDT", zerolog.Nop())
	assert.Equal(t, 0, n)
}
