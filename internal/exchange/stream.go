package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/chidi150c/futurescore/internal/domain"
)

// CandleCloseFunc receives a just-closed candle for the given interval.
type CandleCloseFunc func(interval string, candle domain.Candle)

// binanceKlineMessage is the combined-stream envelope Binance wraps every
// kline push in.
type binanceKlineMessage struct {
	Stream string `json:"stream"`
	Data   struct {
		Kline struct {
			StartTime int64  `json:"t"`
			Interval  string `json:"i"`
			Open      string `json:"o"`
			High      string `json:"h"`
			Low       string `json:"l"`
			Close     string `json:"c"`
			Volume    string `json:"v"`
			IsClosed  bool   `json:"x"`
		} `json:"k"`
	} `json:"data"`
}

// CandleStream maintains a reconnecting websocket subscription to a
// venue's kline stream and calls onClose for every bar that closes,
// generalized from yoghaf-market-indikator's internal/ingest/ingest.go
// reconnect-with-exponential-backoff loop (there: a single Binance
// aggTrade stream; here: a combined multi-interval kline stream feeding
// the dataprovider instead of a trade tape).
type CandleStream struct {
	url     string
	onClose CandleCloseFunc
	log     zerolog.Logger
}

// NewBinanceCandleStream builds a combined-stream subscription for
// symbol across every interval the strategy's timeframes need.
func NewBinanceCandleStream(baseWSURL, symbol string, intervals []string, onClose CandleCloseFunc, log zerolog.Logger) *CandleStream {
	lower := strings.ToLower(symbol)
	parts := make([]string, len(intervals))
	for i, iv := range intervals {
		parts[i] = fmt.Sprintf("%s@kline_%s", lower, iv)
	}
	url := fmt.Sprintf("%s/stream?streams=%s", baseWSURL, strings.Join(parts, "/"))
	return &CandleStream{url: url, onClose: onClose, log: log.With().Str("component", "candle_stream").Logger()}
}

// Run consumes until ctx is cancelled, reconnecting with capped
// exponential backoff on any read/dial error.
func (s *CandleStream) Run(ctx context.Context) {
	const (
		initialDelay = 1 * time.Second
		maxDelay      = 30 * time.Second
	)
	delay := initialDelay
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err := s.connectAndConsume(ctx); err != nil {
			s.log.Warn().Err(err).Dur("retry_in", delay).Msg("candle stream disconnected, reconnecting")
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

func (s *CandleStream) connectAndConsume(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	s.log.Info().Str("url", s.url).Msg("candle stream connected")

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
		var msg binanceKlineMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.log.Warn().Err(err).Msg("malformed kline message, skipping")
			continue
		}
		if !msg.Data.Kline.IsClosed {
			continue
		}
		candle := domain.Candle{
			Timestamp: msg.Data.Kline.StartTime,
			Open:      parseFloatOrZero(msg.Data.Kline.Open),
			High:      parseFloatOrZero(msg.Data.Kline.High),
			Low:       parseFloatOrZero(msg.Data.Kline.Low),
			Close:     parseFloatOrZero(msg.Data.Kline.Close),
			Volume:    parseFloatOrZero(msg.Data.Kline.Volume),
		}
		s.onClose(msg.Data.Kline.Interval, candle)
	}
}

func parseFloatOrZero(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
