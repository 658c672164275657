package exchange

import (
	"bytes"
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
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/chidi150c/futurescore/internal/domain"
	"github.com/chidi150c/futurescore/internal/errs"
)

// BybitConfig configures the Bybit v5 unified-account adapter.
type BybitConfig struct {
	BaseURL   string // e.g. https://api.bybit.com
	APIKey    string
	APISecret string
	Category  string // "linear" for USDT perpetuals
}

// Bybit implements Exchange against Bybit's v5 unified REST API. It
// follows the same sign/request pattern as the Binance adapter —
// HMAC-signed query, exchange-reported tick/step caching, atomic
// open-with-protection — generalized to Bybit's request signing
// scheme (timestamp+apiKey+recvWindow+body rather than a signed
// query string) and endpoint shapes.
type Bybit struct {
	cfg    BybitConfig
	client *http.Client
	log    zerolog.Logger

	mu        sync.Mutex
	symbols   map[string]Precision
	connected bool
}

func NewBybit(cfg BybitConfig, log zerolog.Logger) *Bybit {
	if cfg.Category == "" {
		cfg.Category = "linear"
	}
	return &Bybit{
		cfg:     cfg,
		client:  &http.Client{Timeout: 10 * time.Second},
		log:     log.With().Str("exchange", "bybit").Logger(),
		symbols: make(map[string]Precision),
	}
}

func (b *Bybit) Name() string { return "bybit" }

func bybitInterval(interval string) string {
	switch interval {
	case "ONE_MINUTE":
		return "1"
	case "FIVE_MINUTE":
		return "5"
	case "FIFTEEN_MINUTE":
		return "15"
	case "ONE_HOUR":
		return "60"
	case "FOUR_HOUR":
		return "240"
	case "ONE_DAY":
		return "D"
	default:
		return interval
	}
}

func (b *Bybit) sign(payload string) string {
	mac := hmac.New(sha256.New, []byte(b.cfg.APISecret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func (b *Bybit) signedHeaders(payload string) http.Header {
	ts := strconv.FormatInt(time.Now().UTC().UnixMilli(), 10)
	recvWindow := "5000"
	prehash := ts + b.cfg.APIKey + recvWindow + payload
	h := http.Header{}
	h.Set("X-BAPI-API-KEY", b.cfg.APIKey)
	h.Set("X-BAPI-TIMESTAMP", ts)
	h.Set("X-BAPI-RECV-WINDOW", recvWindow)
	h.Set("X-BAPI-SIGN", b.sign(prehash))
	return h
}

func (b *Bybit) get(ctx context.Context, path string, q url.Values, signed bool) ([]byte, error) {
	u := b.cfg.BaseURL + path
	query := q.Encode()
	if query != "" {
		u += "?" + query
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errs.New(errs.KindInvalidArgument, "BUILD_REQUEST", err.Error(), err)
	}
	if signed {
		for k, vs := range b.signedHeaders(query) {
			req.Header[k] = vs
		}
	}
	return b.do(req)
}

func (b *Bybit) post(ctx context.Context, path string, body map[string]any) ([]byte, error) {
	bs, err := json.Marshal(body)
	if err != nil {
		return nil, errs.New(errs.KindInvalidArgument, "ENCODE_BODY", err.Error(), err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.BaseURL+path, bytes.NewReader(bs))
	if err != nil {
		return nil, errs.New(errs.KindInvalidArgument, "BUILD_REQUEST", err.Error(), err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range b.signedHeaders(string(bs)) {
		req.Header[k] = vs
	}
	return b.do(req)
}

func (b *Bybit) do(req *http.Request) ([]byte, error) {
	res, err := b.client.Do(req)
	if err != nil {
		return nil, errs.New(errs.KindNetwork, "HTTP_DO", err.Error(), err)
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, errs.New(errs.KindNetwork, "READ_BODY", err.Error(), err)
	}
	if res.StatusCode == http.StatusTooManyRequests {
		return nil, errs.RateLimit("RATE_LIMITED", string(body), 1000, nil)
	}
	if res.StatusCode/100 != 2 {
		kind := errs.KindUnknown
		if res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden {
			kind = errs.KindAuthentication
		}
		return nil, errs.New(kind, fmt.Sprintf("HTTP_%d", res.StatusCode), string(body), nil)
	}
	var envelope struct {
		RetCode int    `json:"retCode"`
		RetMsg  string `json:"retMsg"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.RetCode != 0 {
		kind := errs.KindUnknown
		switch envelope.RetCode {
		case 10006:
			kind = errs.KindExchangeRateLimit
		case 110007:
			kind = errs.KindInsufficientFunds
		}
		return nil, errs.New(kind, strconv.Itoa(envelope.RetCode), envelope.RetMsg, nil)
	}
	return body, nil
}

func (b *Bybit) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	q := url.Values{
		"category": {b.cfg.Category},
		"symbol":   {symbol},
		"interval": {bybitInterval(interval)},
		"limit":    {strconv.Itoa(limit)},
	}
	body, err := b.get(ctx, "/v5/market/kline", q, false)
	if err != nil {
		return nil, err
	}
	var out struct {
		Result struct {
			List [][]string `json:"list"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, errs.New(errs.KindUnknown, "DECODE_KLINES", err.Error(), err)
	}
	candles := make([]domain.Candle, 0, len(out.Result.List))
	// Bybit returns newest-first; reverse into chronological order.
	for i := len(out.Result.List) - 1; i >= 0; i-- {
		row := out.Result.List[i]
		if len(row) < 6 {
			continue
		}
		ts, _ := strconv.ParseInt(row[0], 10, 64)
		open, _ := strconv.ParseFloat(row[1], 64)
		high, _ := strconv.ParseFloat(row[2], 64)
		low, _ := strconv.ParseFloat(row[3], 64)
		cls, _ := strconv.ParseFloat(row[4], 64)
		vol, _ := strconv.ParseFloat(row[5], 64)
		candles = append(candles, domain.Candle{Timestamp: ts, Open: open, High: high, Low: low, Close: cls, Volume: vol})
	}
	return candles, nil
}

func (b *Bybit) GetLatestPrice(ctx context.Context, symbol string) (float64, error) {
	body, err := b.get(ctx, "/v5/market/tickers", url.Values{"category": {b.cfg.Category}, "symbol": {symbol}}, false)
	if err != nil {
		return 0, err
	}
	var out struct {
		Result struct {
			List []struct {
				LastPrice string `json:"lastPrice"`
			} `json:"list"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return 0, errs.New(errs.KindUnknown, "DECODE_TICKER", err.Error(), err)
	}
	if len(out.Result.List) == 0 {
		return 0, errs.New(errs.KindNotFound, "SYMBOL_NOT_FOUND", symbol, nil)
	}
	f, _ := strconv.ParseFloat(out.Result.List[0].LastPrice, 64)
	return f, nil
}

func (b *Bybit) GetServerTime(ctx context.Context) (time.Time, error) {
	body, err := b.get(ctx, "/v5/market/time", nil, false)
	if err != nil {
		return time.Time{}, err
	}
	var out struct {
		Result struct {
			TimeSecond string `json:"timeSecond"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return time.Time{}, errs.New(errs.KindUnknown, "DECODE_TIME", err.Error(), err)
	}
	secs, _ := strconv.ParseInt(out.Result.TimeSecond, 10, 64)
	return time.Unix(secs, 0).UTC(), nil
}

func (b *Bybit) GetSymbolPrecision(ctx context.Context, symbol string) (Precision, error) {
	b.mu.Lock()
	if p, ok := b.symbols[symbol]; ok {
		b.mu.Unlock()
		return p, nil
	}
	b.mu.Unlock()

	body, err := b.get(ctx, "/v5/market/instruments-info", url.Values{"category": {b.cfg.Category}, "symbol": {symbol}}, false)
	if err != nil {
		return Precision{}, err
	}
	var out struct {
		Result struct {
			List []struct {
				LotSizeFilter struct {
					QtyStep string `json:"qtyStep"`
					MinOrderQty string `json:"minOrderQty"`
				} `json:"lotSizeFilter"`
				PriceFilter struct {
					TickSize string `json:"tickSize"`
				} `json:"priceFilter"`
			} `json:"list"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return Precision{}, errs.New(errs.KindUnknown, "DECODE_INSTRUMENTS", err.Error(), err)
	}
	if len(out.Result.List) == 0 {
		return Precision{}, errs.New(errs.KindNotFound, "SYMBOL_NOT_FOUND", symbol, nil)
	}
	item := out.Result.List[0]
	p := Precision{}
	p.QuantityStep, _ = strconv.ParseFloat(item.LotSizeFilter.QtyStep, 64)
	p.MinOrderQty, _ = strconv.ParseFloat(item.LotSizeFilter.MinOrderQty, 64)
	p.PriceTick, _ = strconv.ParseFloat(item.PriceFilter.TickSize, 64)
	p.PricePrecision = decimalsOf(item.PriceFilter.TickSize)
	p.QuantityPrecision = decimalsOf(item.LotSizeFilter.QtyStep)

	b.mu.Lock()
	b.symbols[symbol] = p
	b.mu.Unlock()
	return p, nil
}

func decimalsOf(s string) int {
	for i, c := range s {
		if c == '.' {
			return len(s) - i - 1
		}
	}
	return 0
}

func (b *Bybit) GetFundingRate(ctx context.Context, symbol string) (float64, error) {
	body, err := b.get(ctx, "/v5/market/tickers", url.Values{"category": {b.cfg.Category}, "symbol": {symbol}}, false)
	if err != nil {
		return 0, err
	}
	var out struct {
		Result struct {
			List []struct {
				FundingRate string `json:"fundingRate"`
			} `json:"list"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return 0, errs.New(errs.KindUnknown, "DECODE_FUNDING", err.Error(), err)
	}
	if len(out.Result.List) == 0 {
		return 0, nil
	}
	f, _ := strconv.ParseFloat(out.Result.List[0].FundingRate, 64)
	return f, nil
}

func (b *Bybit) OpenPosition(ctx context.Context, req OpenPositionRequest) (string, error) {
	side := "Buy"
	slSide := "Sell"
	if req.Side == domain.Short {
		side = "Sell"
		slSide = "Buy"
	}
	body := map[string]any{
		"category":  b.cfg.Category,
		"symbol":    req.Symbol,
		"side":      side,
		"orderType": "Market",
		"qty":       strconv.FormatFloat(req.Quantity, 'f', -1, 64),
		"stopLoss":  strconv.FormatFloat(req.StopLoss, 'f', -1, 64),
	}
	if req.FirstTakeProfit != nil {
		body["takeProfit"] = strconv.FormatFloat(*req.FirstTakeProfit, 'f', -1, 64)
	}
	_ = slSide // Bybit attaches SL/TP on the entry order itself; no separate leg call needed.
	respBody, err := b.post(ctx, "/v5/order/create", body)
	if err != nil {
		return "", err
	}
	var out struct {
		Result struct {
			OrderID string `json:"orderId"`
		} `json:"result"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", errs.New(errs.KindUnknown, "DECODE_ORDER", err.Error(), err)
	}
	return out.Result.OrderID, nil
}

func (b *Bybit) UpdateTakeProfitPartial(ctx context.Context, positionID string, price, size float64, index int) error {
	_, err := b.post(ctx, "/v5/order/create", map[string]any{
		"category":    b.cfg.Category,
		"symbol":      positionID,
		"orderType":   "Limit",
		"reduceOnly":  true,
		"price":       strconv.FormatFloat(price, 'f', -1, 64),
		"qty":         strconv.FormatFloat(size, 'f', -1, 64),
	})
	return err
}

func (b *Bybit) ClosePosition(ctx context.Context, positionID string, percentage float64) error {
	_, err := b.post(ctx, "/v5/position/close-position", map[string]any{
		"category": b.cfg.Category,
		"symbol":   positionID,
		"percent":  percentage,
	})
	return err
}

func (b *Bybit) UpdateStopLoss(ctx context.Context, positionID string, newPrice float64) error {
	_, err := b.post(ctx, "/v5/position/trading-stop", map[string]any{
		"category": b.cfg.Category,
		"symbol":   positionID,
		"stopLoss": strconv.FormatFloat(newPrice, 'f', -1, 64),
	})
	return err
}

func (b *Bybit) ActivateTrailing(ctx context.Context, positionID string, trailingPercent float64) error {
	_, err := b.post(ctx, "/v5/position/trading-stop", map[string]any{
		"category":     b.cfg.Category,
		"symbol":       positionID,
		"trailingStop": strconv.FormatFloat(trailingPercent, 'f', -1, 64),
	})
	return err
}

func (b *Bybit) CancelAllOrders(ctx context.Context, symbol string) (int, error) {
	body, err := b.post(ctx, "/v5/order/cancel-all", map[string]any{
		"category": b.cfg.Category,
		"symbol":   symbol,
	})
	if err != nil {
		return 0, err
	}
	var out struct {
		Result struct {
			List []any `json:"list"`
		} `json:"result"`
	}
	json.Unmarshal(body, &out)
	return len(out.Result.List), nil
}

func (b *Bybit) CancelAllConditionalOrders(ctx context.Context) (int, error) {
	body, err := b.post(ctx, "/v5/order/cancel-all", map[string]any{
		"category":    b.cfg.Category,
		"orderFilter": "StopOrder",
	})
	if err != nil {
		return 0, err
	}
	var out struct {
		Result struct {
			List []any `json:"list"`
		} `json:"result"`
	}
	json.Unmarshal(body, &out)
	return len(out.Result.List), nil
}

func (b *Bybit) GetBalance(ctx context.Context) (Balance, error) {
	body, err := b.get(ctx, "/v5/account/wallet-balance", url.Values{"accountType": {"UNIFIED"}}, true)
	if err != nil {
		return Balance{}, err
	}
	var out struct {
		Result struct {
			List []struct {
				TotalWalletBalance     string `json:"totalWalletBalance"`
				TotalAvailableBalance  string `json:"totalAvailableBalance"`
				TotalInitialMargin     string `json:"totalInitialMargin"`
				TotalPerpUPL           string `json:"totalPerpUPL"`
			} `json:"list"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return Balance{}, errs.New(errs.KindUnknown, "DECODE_WALLET", err.Error(), err)
	}
	if len(out.Result.List) == 0 {
		return Balance{}, nil
	}
	item := out.Result.List[0]
	wallet, _ := strconv.ParseFloat(item.TotalWalletBalance, 64)
	avail, _ := strconv.ParseFloat(item.TotalAvailableBalance, 64)
	margin, _ := strconv.ParseFloat(item.TotalInitialMargin, 64)
	upnl, _ := strconv.ParseFloat(item.TotalPerpUPL, 64)
	return Balance{Wallet: wallet, Available: avail, MarginUsed: margin, UnrealizedPnL: upnl}, nil
}

func (b *Bybit) SetLeverage(ctx context.Context, symbol string, leverage float64) error {
	lev := strconv.FormatFloat(leverage, 'f', 0, 64)
	_, err := b.post(ctx, "/v5/position/set-leverage", map[string]any{
		"category":     b.cfg.Category,
		"symbol":       symbol,
		"buyLeverage":  lev,
		"sellLeverage": lev,
	})
	return err
}

func (b *Bybit) Connect(ctx context.Context) error {
	if _, err := b.GetServerTime(ctx); err != nil {
		return err
	}
	b.mu.Lock()
	b.connected = true
	b.mu.Unlock()
	return nil
}

func (b *Bybit) Disconnect(ctx context.Context) error {
	b.mu.Lock()
	b.connected = false
	b.mu.Unlock()
	return nil
}

func (b *Bybit) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

func (b *Bybit) HealthCheck(ctx context.Context) error {
	st, err := b.GetServerTime(ctx)
	if err != nil {
		return err
	}
	if d := time.Since(st); d > time.Hour || d < -time.Hour {
		return errs.New(errs.KindStaleData, "CLOCK_DRIFT", fmt.Sprintf("drift %s exceeds 1h", d), nil)
	}
	return nil
}
