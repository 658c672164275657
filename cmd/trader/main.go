// Command trader boots the single-symbol futures engine: load config,
// wire every package into an orchestrator.Dispatcher, subscribe to
// Binance's kline stream, and serve /healthz and /metrics until a signal
// asks it to stop.
//
// Boot sequence (mirrors the teacher's main.go ordering, generalized
// from its single-broker/model/trader wiring to the full
// dataprovider/indicator/signal/filter/snapshot/risk/entry/exit/
// position pipeline):
//  1. config.Load(.env, strategy.yaml)
//  2. logctx.New(cfg)
//  3. build repositories, exchange adapter, dataprovider, indicators
//  4. build analyzers, filters, snapshot gate, risk manager, entry
//     config, position lifecycle, action queue
//  5. orchestrator.New(...)
//  6. warm up candle history, start the websocket candle stream
//  7. serve Prometheus /healthz and /metrics on cfg.Port
//  8. wait for SIGINT/SIGTERM, then shut down within the configured
//     budget
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/chidi150c/futurescore/internal/actionqueue"
	"github.com/chidi150c/futurescore/internal/config"
	"github.com/chidi150c/futurescore/internal/dataprovider"
	"github.com/chidi150c/futurescore/internal/domain"
	"github.com/chidi150c/futurescore/internal/entry"
	"github.com/chidi150c/futurescore/internal/exchange"
	"github.com/chidi150c/futurescore/internal/filter"
	"github.com/chidi150c/futurescore/internal/indicator"
	"github.com/chidi150c/futurescore/internal/orchestrator"
	"github.com/chidi150c/futurescore/internal/position"
	"github.com/chidi150c/futurescore/internal/repository"
	"github.com/chidi150c/futurescore/internal/risk"
	stratsignal "github.com/chidi150c/futurescore/internal/signal"
	"github.com/chidi150c/futurescore/internal/snapshot"
	"github.com/chidi150c/futurescore/pkg/logctx"
)

var roleByName = map[string]dataprovider.Role{
	"primary": dataprovider.RolePrimary,
	"entry":   dataprovider.RoleEntry,
	"confirm": dataprovider.RoleConfirm,
	"trend":   dataprovider.RoleTrend,
}

func main() {
	var envPath, yamlPath string
	flag.StringVar(&envPath, "env", ".env", "Path to the exchange credentials .env file")
	flag.StringVar(&yamlPath, "config", "strategy.yaml", "Path to the nested strategy YAML config")
	flag.Parse()

	cfg, err := config.Load(envPath, yamlPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	log := logctx.New(logctx.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	log.Info().Str("exchange", cfg.Exchange.Name).Str("symbol", cfg.Exchange.Symbol).Msg("booting")

	bootTime := time.Now().UTC()
	now := func() time.Time { return time.Now().UTC() }
	marketData := repository.NewMarketDataRepository(now)
	journal := repository.NewJournalRepository(cfg.DataDir, log)
	positions := repository.NewPositionRepository()

	ex := buildExchange(*cfg, marketData, log)
	if err := ex.Connect(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("exchange connect failed")
	}

	timeframe := dataprovider.NewTimeframeProvider(buildTimeframeSpecs(*cfg))
	candles := dataprovider.NewCandleProvider(ex, marketData, timeframe, cfg.Exchange.Symbol)

	ttl := cfg.MTFSnapshot.TTLMs
	if ttl == 0 {
		ttl = 120_000
	}
	precalc := indicator.NewPreCalculator(marketData, ttl,
		indicator.NewSMA(10), indicator.NewSMA(30), indicator.NewRSI(14), indicator.NewATR(14))
	cache := indicator.NewCache(marketData)

	analyzers, weights, priorities := buildAnalyzers(*cfg)
	chain := []filter.Filter{
		filter.TrendAlignmentFilter{MinStrength: 0.1},
		filter.FundingRateFilter{MaxAbsFundingRate: 0.001},
		filter.FlatMarketFilter{MinATRPercent: 0.05},
	}
	if cfg.Exchange.Symbol != "BTCUSDT" {
		chain = append(chain, filter.BTCCorrelationFilter{Lookback: 3})
	}
	filters := filter.New(chain...)

	trend := orchestrator.MARegimeTrendProvider{FastPeriod: 10, SlowPeriod: 30}
	gate := snapshot.New(now)
	riskMgr := risk.New(risk.Config{
		MaxDailyLossPercent:     cfg.RiskManager.DailyLimits.MaxDailyLossPercent,
		StopAfterLosses:         cfg.RiskManager.LossStreak.StopAfterLosses,
		Reductions:              cfg.RiskManager.LossStreak.Reductions.AsMap(),
		ConcurrentRiskEnabled:   cfg.RiskManager.ConcurrentRisk.Enabled,
		MaxTotalExposurePercent: cfg.RiskManager.ConcurrentRisk.MaxTotalExposurePercent,
		RiskPerTradePercent:     cfg.RiskManager.PositionSizing.RiskPerTradePercent,
		MinUSDT:                 cfg.RiskManager.PositionSizing.MinUSDT,
		MaxUSDT:                 cfg.RiskManager.PositionSizing.MaxUSDT,
		MaxLeverageMultiplier:   cfg.RiskManager.PositionSizing.MaxLeverageMultiplier,
	})
	queue := actionqueue.New(now, log)
	lifecycle := position.New(ex, positions, journal, nil, log, cfg.Exchange.FeeRatePct)

	precision, err := ex.GetSymbolPrecision(context.Background(), cfg.Exchange.Symbol)
	if err != nil {
		log.Fatal().Err(err).Msg("symbol precision lookup failed")
	}

	dispatcher := orchestrator.New(
		orchestrator.Config{
			Symbol:              cfg.Exchange.Symbol,
			Leverage:            cfg.RiskManager.PositionSizing.MaxLeverageMultiplier,
			TrailingStopPercent: cfg.RiskManagement.TrailingStopPercent,
			Entry:               entry.Config{MinConfidenceToEnter: cfg.WeightMatrix.MinConfidenceToEnter},
			AnalyzerWeights:     weights,
			AnalyzerPriorities:  priorities,
			RiskManagement:      cfg.RiskManagement,
		},
		ex, candles, timeframe, precalc, cache, analyzers, filters, trend, gate, riskMgr,
		positions, journal, queue, lifecycle, precision, log,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := candles.WarmupAll(ctx); err != nil {
		log.Fatal().Err(err).Msg("candle warmup failed")
	}

	intervals := make([]string, 0, len(cfg.Timeframes))
	intervalToRole := make(map[string]dataprovider.Role, len(cfg.Timeframes))
	for name, spec := range cfg.Timeframes {
		intervals = append(intervals, spec.Interval)
		if role, ok := roleByName[name]; ok {
			intervalToRole[spec.Interval] = role
		}
	}

	stream := exchange.NewBinanceCandleStream(streamBaseURL(*cfg), cfg.Exchange.Symbol, intervals,
		func(interval string, candle domain.Candle) {
			role, ok := intervalToRole[interval]
			if !ok {
				return
			}
			dispatcher.OnCandleClosed(ctx, role, candle)
		}, log)
	go stream.Run(ctx)

	if execStreamURL, ok := executionStreamURL(*cfg); ok {
		auth := exchange.BuildBybitAuthMessage(cfg.Exchange.APIKey, cfg.Exchange.APISecret, now())
		execStream := exchange.NewBybitExecutionStream(execStreamURL, auth, dispatcher.OnExecutionEvent, log)
		go execStream.Run(ctx)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := ex.HealthCheck(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("degraded: " + err.Error()))
			return
		}
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: mux}
	go func() {
		log.Info().Int("port", cfg.Port).Msg("serving /healthz and /metrics")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("http server stopped unexpectedly")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	shutdownTimeout := time.Duration(cfg.GracefulShutdown.ShutdownTimeoutSeconds) * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// 1. Drain and dispatch pending HIGH actions (stop-loss moves,
	// trailing activations, closes) one last time before the queue
	// stops accepting work.
	leverage := cfg.RiskManager.PositionSizing.MaxLeverageMultiplier
	handlers := lifecycle.Handlers(precision, leverage)
	aqHandlers := make(map[domain.ActionType]actionqueue.Handler, len(handlers))
	for t, h := range handlers {
		aqHandlers[t] = actionqueue.Handler(h)
	}
	for _, res := range queue.ProcessHigh(shutdownCtx, aqHandlers) {
		if res.Err != nil {
			log.Warn().Err(res.Err).Str("action_id", res.Action.ID).Str("type", string(res.Action.Type)).Msg("pending action failed during shutdown drain")
		}
	}

	// 2. Reject any further enqueues racing the shutdown sequence.
	queue.Close()

	// 3. ctx is already cancelled at this point, which is what stops the
	// candle and execution websocket streams' Run loops — their
	// subscriptions are torn down by the time this line runs.

	if cfg.GracefulShutdown.CancelOrdersOnShutdown {
		cancelled := cancelOrdersOnShutdown(shutdownCtx, ex, cfg.Exchange.Symbol, log)
		log.Info().Int("cancel_calls_succeeded", cancelled).Msg("shutdown order cancellation complete")
	}
	if cfg.GracefulShutdown.ClosePositionsOnShutdown {
		if pos, open := positions.Current(); open {
			if err := ex.ClosePosition(shutdownCtx, pos.ID, 100); err != nil {
				log.Warn().Err(err).Msg("close position on shutdown failed")
			}
		}
	}
	_ = ex.Disconnect(shutdownCtx)
	_ = srv.Shutdown(shutdownCtx)

	// 4. Flush the session to the journal.
	if err := journal.RecordSession(repository.SessionRecord{ID: uuid.New().String(), Start: bootTime, End: now()}); err != nil {
		log.Warn().Err(err).Msg("session flush on shutdown failed")
	}
}

// cancelOrdersOnShutdown calls both of the venue's bulk-cancel
// operations — regular orders and conditional (SL/TP/trailing) orders
// — independently, so one failing doesn't skip the other, and returns
// how many of the two succeeded (2, 1, or 0), warning once per
// individual failure.
func cancelOrdersOnShutdown(ctx context.Context, ex exchange.Exchange, symbol string, log zerolog.Logger) int {
	cancelled := 0
	if _, err := ex.CancelAllOrders(ctx, symbol); err != nil {
		log.Warn().Err(err).Msg("cancel all orders on shutdown failed")
	} else {
		cancelled++
	}
	if _, err := ex.CancelAllConditionalOrders(ctx); err != nil {
		log.Warn().Err(err).Msg("cancel all conditional orders on shutdown failed")
	} else {
		cancelled++
	}
	return cancelled
}

// buildExchange selects the venue adapter named in config, defaulting
// to the in-memory Paper adapter for dry runs and tests — the same
// BROKER-switch idiom as the teacher's main.go, generalized from
// binance/hitbtc/bridge/paper to bybit/binance/paper.
func buildExchange(cfg config.Config, marketData *repository.MarketDataRepository, log zerolog.Logger) exchange.Exchange {
	switch cfg.Exchange.Name {
	case "bybit":
		base := "https://api.bybit.com"
		if cfg.Exchange.Testnet {
			base = "https://api-testnet.bybit.com"
		}
		return exchange.NewBybit(exchange.BybitConfig{
			BaseURL:   base,
			APIKey:    cfg.Exchange.APIKey,
			APISecret: cfg.Exchange.APISecret,
			Category:  cfg.Exchange.Category(),
		}, log)
	case "binance":
		base := "https://fapi.binance.com"
		if cfg.Exchange.Testnet {
			base = "https://testnet.binancefuture.com"
		}
		return exchange.NewBinance(exchange.BinanceConfig{
			BaseURL:    base,
			APIKey:     cfg.Exchange.APIKey,
			APISecret:  cfg.Exchange.APISecret,
			RecvWindow: 5000,
		}, log)
	default:
		log.Warn().Str("exchange", cfg.Exchange.Name).Msg("unrecognized or unset exchange, running against the paper adapter")
		return exchange.NewPaper(10_000, marketData)
	}
}

// buildTimeframeSpecs converts the config's name->TimeframeSpec map
// into the dataprovider's role-keyed specs. An unrecognized name is
// skipped silently rather than failing boot, since extra
// timeframes a future strategy config adds shouldn't block startup.
func buildTimeframeSpecs(cfg config.Config) []dataprovider.TimeframeSpec {
	specs := make([]dataprovider.TimeframeSpec, 0, len(cfg.Timeframes))
	for name, spec := range cfg.Timeframes {
		role, ok := roleByName[name]
		if !ok {
			continue
		}
		specs = append(specs, dataprovider.TimeframeSpec{Role: role, Interval: spec.Interval, WarmupN: spec.CandleLimit})
	}
	return specs
}

// buildAnalyzers resolves every enabled analyzer entry against the
// signal package's registry and splits its weight/priority into the
// maps the entry orchestrator's aggregation step needs.
func buildAnalyzers(cfg config.Config) ([]stratsignal.Analyzer, map[string]float64, map[string]int) {
	analyzers := make([]stratsignal.Analyzer, 0, len(cfg.Analyzers))
	weights := make(map[string]float64, len(cfg.Analyzers))
	priorities := make(map[string]int, len(cfg.Analyzers))
	for _, a := range cfg.Analyzers {
		if !a.Enabled {
			continue
		}
		analyzer, ok := stratsignal.Build(stratsignal.AnalyzerConfig{
			Name:     a.Name,
			Weight:   a.Weight,
			Priority: a.Priority,
			Params:   a.Params,
		})
		if !ok {
			fmt.Fprintf(os.Stderr, "config: unknown analyzer %q\n", a.Name)
			os.Exit(1)
		}
		analyzers = append(analyzers, analyzer)
		weights[a.Name] = a.Weight
		priorities[a.Name] = a.Priority
	}
	return analyzers, weights, priorities
}

// streamBaseURL picks the websocket origin matching the configured
// exchange and network; only Binance's combined-stream endpoint is
// wired today, so Bybit/paper runs fall back to Binance market data
// for candles while still trading through their own REST adapter.
func streamBaseURL(cfg config.Config) string {
	if cfg.Exchange.Testnet {
		return "wss://stream.binancefuture.com"
	}
	return "wss://fstream.binance.com"
}

// executionStreamURL reports the private execution-topic websocket URL
// for venues the engine actually trades (currently Bybit's documented
// stop_order_type/create_type vocabulary is what spec §6's mapping
// table is grounded on); other venues report ok=false until their own
// private-stream adapter lands.
func executionStreamURL(cfg config.Config) (string, bool) {
	if cfg.Exchange.Name != "bybit" {
		return "", false
	}
	if cfg.Exchange.Testnet {
		return "wss://stream-testnet.bybit.com/v5/private", true
	}
	return "wss://stream.bybit.com/v5/private", true
}
