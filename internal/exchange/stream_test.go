package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chidi150c/futurescore/internal/domain"
)

func TestParseFloatOrZero(t *testing.T) {
	assert.Equal(t, 1.5, parseFloatOrZero("1.5"))
	assert.Equal(t, 0.0, parseFloatOrZero("not-a-number"))
}

func TestCandleStreamEmitsOnlyClosedKlines(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		open := `{"stream":"btcusdt@kline_1m","data":{"k":{"t":1000,"i":"1m","o":"100","h":"101","l":"99","c":"100.5","v":"10","x":false}}}`
		closed := `{"stream":"btcusdt@kline_1m","data":{"k":{"t":1000,"i":"1m","o":"100","h":"101","l":"99","c":"100.5","v":"10","x":true}}}`
		_ = conn.WriteMessage(websocket.TextMessage, []byte(open))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(closed))
		time.Sleep(100 * time.Millisecond)
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	var mu sync.Mutex
	var received []domain.Candle
	stream := &CandleStream{
		url: wsURL,
		log: zerolog.Nop(),
		onClose: func(interval string, candle domain.Candle) {
			mu.Lock()
			defer mu.Unlock()
			received = append(received, candle)
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	stream.Run(ctx)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1, "only the closed kline should be forwarded")
	assert.Equal(t, 100.0, received[0].Open)
	assert.Equal(t, 100.5, received[0].Close)
}
