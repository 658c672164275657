package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/chidi150c/futurescore/internal/domain"
	"github.com/chidi150c/futurescore/internal/errs"
)

// BinanceConfig configures the Binance USDⓈ-M futures adapter.
type BinanceConfig struct {
	BaseURL    string // e.g. https://fapi.binance.com
	APIKey     string
	APISecret  string
	RecvWindow int64
}

// Binance implements Exchange against Binance's futures REST API. It
// mirrors the sign/get/post/ensureSymbol pattern used by the teacher's
// spot-market broker, generalized to the leveraged-futures endpoints
// and to the uniform Exchange contract.
type Binance struct {
	cfg    BinanceConfig
	client *http.Client
	log    zerolog.Logger

	mu        sync.Mutex
	symbols   map[string]Precision
	connected bool
}

// NewBinance builds a Binance adapter. It does not contact the network
// until Connect is called.
func NewBinance(cfg BinanceConfig, log zerolog.Logger) *Binance {
	return &Binance{
		cfg:     cfg,
		client:  &http.Client{Timeout: 10 * time.Second},
		log:     log.With().Str("exchange", "binance").Logger(),
		symbols: make(map[string]Precision),
	}
}

func (b *Binance) Name() string { return "binance" }

func binanceInterval(interval string) string {
	switch interval {
	case "ONE_MINUTE":
		return "1m"
	case "FIVE_MINUTE":
		return "5m"
	case "FIFTEEN_MINUTE":
		return "15m"
	case "ONE_HOUR":
		return "1h"
	case "FOUR_HOUR":
		return "4h"
	case "ONE_DAY":
		return "1d"
	default:
		return interval
	}
}

func (b *Binance) sign(q url.Values) string {
	mac := hmac.New(sha256.New, []byte(b.cfg.APISecret))
	mac.Write([]byte(q.Encode()))
	return hex.EncodeToString(mac.Sum(nil))
}

func (b *Binance) signedQuery(q url.Values) url.Values {
	if q == nil {
		q = url.Values{}
	}
	recvWindow := b.cfg.RecvWindow
	if recvWindow <= 0 {
		recvWindow = 5000
	}
	q.Set("timestamp", strconv.FormatInt(time.Now().UTC().UnixMilli(), 10))
	q.Set("recvWindow", strconv.FormatInt(recvWindow, 10))
	q.Set("signature", b.sign(q))
	return q
}

func (b *Binance) get(ctx context.Context, path string, q url.Values, signed bool) ([]byte, error) {
	if signed {
		q = b.signedQuery(q)
	}
	u := b.cfg.BaseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errs.New(errs.KindInvalidArgument, "BUILD_REQUEST", err.Error(), err)
	}
	if signed {
		req.Header.Set("X-MBX-APIKEY", b.cfg.APIKey)
	}
	return b.do(req)
}

func (b *Binance) post(ctx context.Context, path string, q url.Values) ([]byte, error) {
	q = b.signedQuery(q)
	u := b.cfg.BaseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(q.Encode()))
	if err != nil {
		return nil, errs.New(errs.KindInvalidArgument, "BUILD_REQUEST", err.Error(), err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-MBX-APIKEY", b.cfg.APIKey)
	return b.do(req)
}

func (b *Binance) do(req *http.Request) ([]byte, error) {
	res, err := b.client.Do(req)
	if err != nil {
		return nil, errs.New(errs.KindNetwork, "HTTP_DO", err.Error(), err)
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, errs.New(errs.KindNetwork, "READ_BODY", err.Error(), err)
	}
	if res.StatusCode == http.StatusTooManyRequests || res.StatusCode == 418 {
		retryAfter := int64(1000)
		if ra := res.Header.Get("Retry-After"); ra != "" {
			if secs, e := strconv.Atoi(ra); e == nil {
				retryAfter = int64(secs) * 1000
			}
		}
		return nil, errs.RateLimit("RATE_LIMITED", string(body), retryAfter, nil)
	}
	if res.StatusCode/100 != 2 {
		kind := errs.KindUnknown
		switch {
		case res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden:
			kind = errs.KindAuthentication
		case res.StatusCode >= 500:
			kind = errs.KindNetwork
		}
		return nil, errs.New(kind, fmt.Sprintf("HTTP_%d", res.StatusCode), string(body), nil)
	}
	return body, nil
}

type bnKline []any

func (b *Binance) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	q := url.Values{
		"symbol":   {symbol},
		"interval": {binanceInterval(interval)},
		"limit":    {strconv.Itoa(limit)},
	}
	body, err := b.get(ctx, "/fapi/v1/klines", q, false)
	if err != nil {
		return nil, err
	}
	var raw []bnKline
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, errs.New(errs.KindUnknown, "DECODE_KLINES", err.Error(), err)
	}
	out := make([]domain.Candle, 0, len(raw))
	for _, k := range raw {
		if len(k) < 6 {
			continue
		}
		c := domain.Candle{
			Timestamp: int64(k[0].(float64)),
			Open:      parseF(k[1]),
			High:      parseF(k[2]),
			Low:       parseF(k[3]),
			Close:     parseF(k[4]),
			Volume:    parseF(k[5]),
		}
		out = append(out, c)
	}
	return out, nil
}

func parseF(v any) float64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func (b *Binance) GetLatestPrice(ctx context.Context, symbol string) (float64, error) {
	body, err := b.get(ctx, "/fapi/v1/ticker/price", url.Values{"symbol": {symbol}}, false)
	if err != nil {
		return 0, err
	}
	var out struct {
		Price string `json:"price"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return 0, errs.New(errs.KindUnknown, "DECODE_PRICE", err.Error(), err)
	}
	f, _ := strconv.ParseFloat(out.Price, 64)
	return f, nil
}

func (b *Binance) GetServerTime(ctx context.Context) (time.Time, error) {
	body, err := b.get(ctx, "/fapi/v1/time", nil, false)
	if err != nil {
		return time.Time{}, err
	}
	var out struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return time.Time{}, errs.New(errs.KindUnknown, "DECODE_TIME", err.Error(), err)
	}
	return time.UnixMilli(out.ServerTime).UTC(), nil
}

// GetSymbolPrecision fetches and caches tick/step/minNotional filters
// from exchangeInfo, mirroring the teacher's ensureSymbol lookup.
func (b *Binance) GetSymbolPrecision(ctx context.Context, symbol string) (Precision, error) {
	b.mu.Lock()
	if p, ok := b.symbols[symbol]; ok {
		b.mu.Unlock()
		return p, nil
	}
	b.mu.Unlock()

	body, err := b.get(ctx, "/fapi/v1/exchangeInfo", url.Values{"symbol": {symbol}}, false)
	if err != nil {
		return Precision{}, err
	}
	var info struct {
		Symbols []struct {
			Symbol            string `json:"symbol"`
			PricePrecision    int    `json:"pricePrecision"`
			QuantityPrecision int    `json:"quantityPrecision"`
			Filters           []struct {
				FilterType  string `json:"filterType"`
				TickSize    string `json:"tickSize"`
				StepSize    string `json:"stepSize"`
				Notional    string `json:"notional"`
				MinQty      string `json:"minQty"`
			} `json:"filters"`
		} `json:"symbols"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return Precision{}, errs.New(errs.KindUnknown, "DECODE_EXCHANGE_INFO", err.Error(), err)
	}
	if len(info.Symbols) == 0 {
		return Precision{}, errs.New(errs.KindNotFound, "SYMBOL_NOT_FOUND", symbol, nil)
	}
	s := info.Symbols[0]
	p := Precision{
		PricePrecision:    s.PricePrecision,
		QuantityPrecision: s.QuantityPrecision,
	}
	for _, f := range s.Filters {
		switch f.FilterType {
		case "PRICE_FILTER":
			p.PriceTick, _ = strconv.ParseFloat(f.TickSize, 64)
		case "LOT_SIZE":
			p.QuantityStep, _ = strconv.ParseFloat(f.StepSize, 64)
			p.MinOrderQty, _ = strconv.ParseFloat(f.MinQty, 64)
		case "MIN_NOTIONAL":
			// not stored: Precision has no notional-floor field
		}
	}
	b.mu.Lock()
	b.symbols[symbol] = p
	b.mu.Unlock()
	return p, nil
}

func (b *Binance) GetFundingRate(ctx context.Context, symbol string) (float64, error) {
	body, err := b.get(ctx, "/fapi/v1/premiumIndex", url.Values{"symbol": {symbol}}, false)
	if err != nil {
		return 0, err
	}
	var out struct {
		LastFundingRate string `json:"lastFundingRate"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return 0, errs.New(errs.KindUnknown, "DECODE_FUNDING", err.Error(), err)
	}
	f, _ := strconv.ParseFloat(out.LastFundingRate, 64)
	return f, nil
}

func sideStr(d domain.Direction) string {
	if d == domain.Long {
		return "BUY"
	}
	return "SELL"
}

func (b *Binance) OpenPosition(ctx context.Context, req OpenPositionRequest) (string, error) {
	q := url.Values{
		"symbol":      {req.Symbol},
		"side":        {sideStr(req.Side)},
		"type":        {"MARKET"},
		"quantity":    {strconv.FormatFloat(req.Quantity, 'f', -1, 64)},
	}
	body, err := b.post(ctx, "/fapi/v1/order", q)
	if err != nil {
		return "", err
	}
	var out struct {
		OrderID int64 `json:"orderId"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", errs.New(errs.KindUnknown, "DECODE_ORDER", err.Error(), err)
	}
	orderID := strconv.FormatInt(out.OrderID, 10)

	slSide := "SELL"
	if req.Side == domain.Short {
		slSide = "BUY"
	}
	slQ := url.Values{
		"symbol":     {req.Symbol},
		"side":       {slSide},
		"type":       {"STOP_MARKET"},
		"stopPrice":  {strconv.FormatFloat(req.StopLoss, 'f', -1, 64)},
		"closePosition": {"true"},
	}
	if _, err := b.post(ctx, "/fapi/v1/order", slQ); err != nil {
		return orderID, errs.New(errs.KindUnknown, "STOP_LOSS_ATTACH_FAILED", err.Error(), err)
	}
	if req.FirstTakeProfit != nil {
		tpQ := url.Values{
			"symbol":        {req.Symbol},
			"side":          {slSide},
			"type":          {"TAKE_PROFIT_MARKET"},
			"stopPrice":     {strconv.FormatFloat(*req.FirstTakeProfit, 'f', -1, 64)},
			"closePosition": {"true"},
		}
		if _, err := b.post(ctx, "/fapi/v1/order", tpQ); err != nil {
			b.log.Warn().Err(err).Str("symbol", req.Symbol).Msg("first take-profit leg failed, position remains stop-protected only")
		}
	}
	return orderID, nil
}

func (b *Binance) UpdateTakeProfitPartial(ctx context.Context, positionID string, price, size float64, index int) error {
	_, err := b.post(ctx, "/fapi/v1/order", url.Values{
		"symbol":    {positionID},
		"type":      {"TAKE_PROFIT_MARKET"},
		"stopPrice": {strconv.FormatFloat(price, 'f', -1, 64)},
		"quantity":  {strconv.FormatFloat(size, 'f', -1, 64)},
	})
	return err
}

func (b *Binance) ClosePosition(ctx context.Context, positionID string, percentage float64) error {
	q := url.Values{
		"symbol": {positionID},
		"type":   {"MARKET"},
	}
	if percentage >= 100 {
		q.Set("closePosition", "true")
	} else {
		q.Set("reduceOnly", "true")
	}
	_, err := b.post(ctx, "/fapi/v1/order", q)
	return err
}

func (b *Binance) UpdateStopLoss(ctx context.Context, positionID string, newPrice float64) error {
	_, err := b.post(ctx, "/fapi/v1/order", url.Values{
		"symbol":        {positionID},
		"type":          {"STOP_MARKET"},
		"stopPrice":     {strconv.FormatFloat(newPrice, 'f', -1, 64)},
		"closePosition": {"true"},
	})
	return err
}

func (b *Binance) ActivateTrailing(ctx context.Context, positionID string, trailingPercent float64) error {
	_, err := b.post(ctx, "/fapi/v1/order", url.Values{
		"symbol":          {positionID},
		"type":            {"TRAILING_STOP_MARKET"},
		"callbackRate":    {strconv.FormatFloat(trailingPercent, 'f', -1, 64)},
		"closePosition":   {"true"},
	})
	return err
}

func (b *Binance) CancelAllOrders(ctx context.Context, symbol string) (int, error) {
	_, err := b.post(ctx, "/fapi/v1/allOpenOrders", url.Values{"symbol": {symbol}})
	if err != nil {
		return 0, err
	}
	return 1, nil
}

func (b *Binance) CancelAllConditionalOrders(ctx context.Context) (int, error) {
	// Binance USDⓈ-M has no single "cancel all conditional orders across
	// symbols" endpoint; this makes no request and reports 0 cancelled.
	return 0, nil
}

func (b *Binance) GetBalance(ctx context.Context) (Balance, error) {
	body, err := b.get(ctx, "/fapi/v2/account", nil, true)
	if err != nil {
		return Balance{}, err
	}
	var out struct {
		TotalWalletBalance    string `json:"totalWalletBalance"`
		AvailableBalance      string `json:"availableBalance"`
		TotalPositionInitialMargin string `json:"totalPositionInitialMargin"`
		TotalUnrealizedProfit string `json:"totalUnrealizedProfit"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return Balance{}, errs.New(errs.KindUnknown, "DECODE_ACCOUNT", err.Error(), err)
	}
	wallet, _ := strconv.ParseFloat(out.TotalWalletBalance, 64)
	avail, _ := strconv.ParseFloat(out.AvailableBalance, 64)
	margin, _ := strconv.ParseFloat(out.TotalPositionInitialMargin, 64)
	upnl, _ := strconv.ParseFloat(out.TotalUnrealizedProfit, 64)
	return Balance{Wallet: wallet, Available: avail, MarginUsed: margin, UnrealizedPnL: upnl}, nil
}

func (b *Binance) SetLeverage(ctx context.Context, symbol string, leverage float64) error {
	_, err := b.post(ctx, "/fapi/v1/leverage", url.Values{
		"symbol":   {symbol},
		"leverage": {strconv.FormatFloat(leverage, 'f', 0, 64)},
	})
	return err
}

func (b *Binance) Connect(ctx context.Context) error {
	if _, err := b.GetServerTime(ctx); err != nil {
		return err
	}
	b.mu.Lock()
	b.connected = true
	b.mu.Unlock()
	return nil
}

func (b *Binance) Disconnect(ctx context.Context) error {
	b.mu.Lock()
	b.connected = false
	b.mu.Unlock()
	return nil
}

func (b *Binance) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

// HealthCheck fails when the local clock has drifted more than an hour
// from the exchange's server time.
func (b *Binance) HealthCheck(ctx context.Context) error {
	st, err := b.GetServerTime(ctx)
	if err != nil {
		return err
	}
	if d := time.Since(st); d > time.Hour || d < -time.Hour {
		return errs.New(errs.KindStaleData, "CLOCK_DRIFT", fmt.Sprintf("drift %s exceeds 1h", d), nil)
	}
	return nil
}
