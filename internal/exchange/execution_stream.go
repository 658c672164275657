package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/chidi150c/futurescore/internal/domain"
)

// ExecutionCloseFunc receives every normalized execution/user-data
// report off the private stream.
type ExecutionCloseFunc func(ev domain.ExecutionEvent)

// bybitExecutionMessage is the private "execution" topic envelope; its
// stop_order_type/create_type/closed_size vocabulary is what
// domain.ClassifyExecution maps off of.
type bybitExecutionMessage struct {
	Topic string `json:"topic"`
	Data  []struct {
		OrderID       string `json:"orderId"`
		Symbol        string `json:"symbol"`
		Side          string `json:"side"`
		StopOrderType string `json:"stopOrderType"`
		CreateType    string `json:"createType"`
		ExecPrice     string `json:"execPrice"`
		ExecQty       string `json:"execQty"`
		ClosedSize    string `json:"closedSize"`
	} `json:"data"`
}

// ExecutionStream maintains a reconnecting websocket subscription to a
// venue's private execution topic and calls onExec for every fill
// report, generalized from the same yoghaf-market-indikator
// reconnect-with-backoff loop CandleStream uses — here subscribing to
// the order-execution feed spec §6 maps into TAKE_PROFIT/STOP_LOSS/
// TRAILING_STOP/ENTRY instead of the public kline feed.
type ExecutionStream struct {
	url     string
	authMsg []byte
	onExec  ExecutionCloseFunc
	log     zerolog.Logger
}

// NewBybitExecutionStream builds a private-stream subscription, sending
// authMsg (a venue-specific auth/subscribe payload built by the caller
// from API credentials) immediately after connecting.
func NewBybitExecutionStream(wsURL string, authMsg []byte, onExec ExecutionCloseFunc, log zerolog.Logger) *ExecutionStream {
	return &ExecutionStream{
		url:     wsURL,
		authMsg: authMsg,
		onExec:  onExec,
		log:     log.With().Str("component", "execution_stream").Logger(),
	}
}

// Run consumes until ctx is cancelled, reconnecting with capped
// exponential backoff on any read/dial error.
func (s *ExecutionStream) Run(ctx context.Context) {
	const (
		initialDelay = 1 * time.Second
		maxDelay     = 30 * time.Second
	)
	delay := initialDelay
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err := s.connectAndConsume(ctx); err != nil {
			s.log.Warn().Err(err).Dur("retry_in", delay).Msg("execution stream disconnected, reconnecting")
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > maxDelay {
				delay = maxDelay
			}
			continue
		}
		delay = initialDelay
	}
}

func (s *ExecutionStream) connectAndConsume(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	if len(s.authMsg) > 0 {
		if err := conn.WriteMessage(websocket.TextMessage, s.authMsg); err != nil {
			return err
		}
	}
	s.log.Info().Str("url", s.url).Msg("execution stream connected")

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var msg bybitExecutionMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.log.Warn().Err(err).Msg("malformed execution message, skipping")
			continue
		}
		for _, d := range msg.Data {
			ev := domain.ExecutionEvent{
				OrderID:       d.OrderID,
				Symbol:        d.Symbol,
				StopOrderType: d.StopOrderType,
				CreateType:    d.CreateType,
				ClosedSize:    parseFloatOrZero(d.ClosedSize),
				Price:         parseFloatOrZero(d.ExecPrice),
				Quantity:      parseFloatOrZero(d.ExecQty),
				Side:          sideFromString(d.Side),
			}
			execType := domain.ClassifyExecution(ev)
			ev.PositionClosed = ev.ClosedSize > 0 && (execType == domain.ExecStopLoss || execType == domain.ExecTrailingStop)
			s.onExec(ev)
		}
	}
}

// BuildBybitAuthMessage builds the private-stream "auth" op payload
// Bybit's websocket expects before it will push the execution topic,
// following the same timestamp+HMAC-SHA256 scheme as Bybit's REST
// signing (see Bybit.sign) applied to the "GET/realtime"+expires
// prehash string the private stream documents instead of a request
// body.
func BuildBybitAuthMessage(apiKey, apiSecret string, now time.Time) []byte {
	expires := now.Add(1 * time.Second).UnixMilli()
	prehash := "GET/realtime" + strconv.FormatInt(expires, 10)
	mac := hmac.New(sha256.New, []byte(apiSecret))
	mac.Write([]byte(prehash))
	signature := hex.EncodeToString(mac.Sum(nil))
	msg, _ := json.Marshal(map[string]any{
		"op":   "auth",
		"args": []any{apiKey, expires, signature},
	})
	return msg
}

func sideFromString(s string) domain.Direction {
	switch s {
	case "Buy":
		return domain.Long
	case "Sell":
		return domain.Short
	default:
		return domain.Hold
	}
}
