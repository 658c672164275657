// Package orchestrator wires every other package into the single
// trading-decision dispatcher the spec calls the Trading Orchestrator,
// generalized from the teacher's live.go candle-close loop (bulk
// warmup, then per-tick: refresh indicators, score, maybe trade) into
// the explicit PRIMARY/ENTRY two-timeframe pipeline of spec §4.15.
package orchestrator

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/chidi150c/futurescore/internal/actionqueue"
	"github.com/chidi150c/futurescore/internal/config"
	"github.com/chidi150c/futurescore/internal/dataprovider"
	"github.com/chidi150c/futurescore/internal/domain"
	"github.com/chidi150c/futurescore/internal/entry"
	"github.com/chidi150c/futurescore/internal/exchange"
	"github.com/chidi150c/futurescore/internal/exit"
	"github.com/chidi150c/futurescore/internal/filter"
	"github.com/chidi150c/futurescore/internal/indicator"
	"github.com/chidi150c/futurescore/internal/metrics"
	"github.com/chidi150c/futurescore/internal/position"
	"github.com/chidi150c/futurescore/internal/repository"
	"github.com/chidi150c/futurescore/internal/risk"
	"github.com/chidi150c/futurescore/internal/signal"
	"github.com/chidi150c/futurescore/internal/snapshot"
)

// TrendProvider computes the higher-timeframe bias the snapshot gate
// freezes. Its provenance is deliberately left pluggable: spec §9 notes
// that "the upstream provenance of trend.bias varies by strategy" and
// warns against inferring it from analyzer signals, so it is its own
// capability rather than bolted onto the Analyzer interface.
type TrendProvider interface {
	Trend(candles []domain.Candle, cache indicator.Cache, interval string) domain.TrendAnalysis
}

// MARegimeTrendProvider derives HTF bias from the same fast/slow SMA
// crossover the MARegime analyzer uses, over whatever candle window and
// interval it is handed — grounded in the teacher's USE_MA_FILTER
// regime gate in trader.go. The Dispatcher hands it the PRIMARY window
// at PRIMARY close and the ENTRY window at ENTRY close; the TREND role
// is not read.
type MARegimeTrendProvider struct {
	FastPeriod  int
	SlowPeriod  int
	MinStrength float64
}

// Trend reports BULLISH when the fast MA leads the slow MA, BEARISH
// when it lags, NEUTRAL when indicators are unavailable or too close
// to call. Strength is the normalized fast/slow distance, clamped to
// [0,1].
func (p MARegimeTrendProvider) Trend(candles []domain.Candle, cache indicator.Cache, interval string) domain.TrendAnalysis {
	fast, slow := p.FastPeriod, p.SlowPeriod
	if fast == 0 {
		fast = 10
	}
	if slow == 0 {
		slow = 30
	}
	if len(candles) < slow {
		return domain.NewTrendAnalysis(domain.Neutral, 0, interval)
	}
	latest := candles[len(candles)-1]
	fastVal, ok1 := cache.Get(indicator.CacheKey("SMA", fast, interval, latest.Timestamp))
	slowVal, ok2 := cache.Get(indicator.CacheKey("SMA", slow, interval, latest.Timestamp))
	if !ok1 || !ok2 || slowVal == 0 {
		return domain.NewTrendAnalysis(domain.Neutral, 0, interval)
	}
	distance := (fastVal - slowVal) / slowVal
	strength := math.Min(math.Abs(distance)*20, 1) // 5% separation saturates strength
	switch {
	case distance > 0:
		return domain.NewTrendAnalysis(domain.Bullish, strength, interval)
	case distance < 0:
		return domain.NewTrendAnalysis(domain.Bearish, strength, interval)
	default:
		return domain.NewTrendAnalysis(domain.Neutral, 0, interval)
	}
}

// Config parameterizes one Dispatcher.
type Config struct {
	Symbol              string
	Leverage            float64
	TrailingStopPercent float64
	Entry               entry.Config
	AnalyzerWeights     map[string]float64
	AnalyzerPriorities  map[string]int
	FundingMaxAbsRate   float64
	RiskManagement      config.RiskManagementConfig
}

// pendingEntry is the decision captured at PRIMARY close and replayed
// at the next ENTRY close once the snapshot gate has validated it.
type pendingEntry struct {
	signal domain.Signal
}

// Dispatcher is the Trading Orchestrator: it owns no trading logic of
// its own beyond sequencing — every decision is delegated to the
// package that owns it (entry, exit, risk, filter, snapshot) — and
// every mutation flows through the action queue.
type Dispatcher struct {
	mu sync.Mutex

	cfg Config

	ex         exchange.Exchange
	data       *dataprovider.CandleProvider
	timeframe  *dataprovider.TimeframeProvider
	precalc    *indicator.PreCalculator
	cache      indicator.Cache
	analyzers  []signal.Analyzer
	filters    *filter.Orchestrator
	trend      TrendProvider
	gate       *snapshot.Gate
	riskMgr    *risk.Manager
	positions  *repository.PositionRepository
	journal    *repository.JournalRepository
	queue      *actionqueue.Queue
	lifecycle  *position.Lifecycle
	precision  exchange.Precision
	log        zerolog.Logger
	now        func() time.Time

	pending     *pendingEntry
	latestOB    domain.OrderBook
	btcCandles  []domain.Candle

	execClosed  bool
	tpCounter   domain.TPCounter
}

// New builds a Dispatcher from every collaborator it sequences.
func New(
	cfg Config,
	ex exchange.Exchange,
	data *dataprovider.CandleProvider,
	timeframe *dataprovider.TimeframeProvider,
	precalc *indicator.PreCalculator,
	cache indicator.Cache,
	analyzers []signal.Analyzer,
	filters *filter.Orchestrator,
	trend TrendProvider,
	gate *snapshot.Gate,
	riskMgr *risk.Manager,
	positions *repository.PositionRepository,
	journal *repository.JournalRepository,
	queue *actionqueue.Queue,
	lifecycle *position.Lifecycle,
	precision exchange.Precision,
	log zerolog.Logger,
) *Dispatcher {
	return &Dispatcher{
		cfg:       cfg,
		ex:        ex,
		data:      data,
		timeframe: timeframe,
		precalc:   precalc,
		cache:     cache,
		analyzers: analyzers,
		filters:   filters,
		trend:     trend,
		gate:      gate,
		riskMgr:   riskMgr,
		positions: positions,
		journal:   journal,
		queue:     queue,
		lifecycle: lifecycle,
		precision: precision,
		log:       log.With().Str("component", "trading_orchestrator").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// OnOrderbookUpdate stores the latest book; it never triggers heavy
// work, per spec §4.15's ordering guarantees.
func (d *Dispatcher) OnOrderbookUpdate(ob domain.OrderBook) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.latestOB = ob
}

// OnExecutionEvent consumes one normalized report off the venue's
// execution/user-data stream (spec §6's exec_type mapping table),
// advancing the TP-leg counter and, when the report is a stop-loss or
// trailing-stop fill (ev.PositionClosed), latching execClosed so the
// next evaluateExit tick drives the exit machine straight to CLOSED
// instead of waiting for a price-based TP/SL check that will never
// fire. Take-profit and regular fills do not latch it.
func (d *Dispatcher) OnExecutionEvent(ev domain.ExecutionEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	execType, leg := d.tpCounter.Observe(ev)
	d.log.Debug().Str("exec_type", string(execType)).Int("tp_leg", leg).Str("order_id", ev.OrderID).Msg("execution report")
	if ev.PositionClosed {
		d.execClosed = true
	}
}

// SetBTCCandles feeds the BTC correlation filter its reference series.
// cmd/trader does not call it, so there the series stays empty and the
// BTC correlation filter passes every entry for lack of history.
func (d *Dispatcher) SetBTCCandles(candles []domain.Candle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.btcCandles = candles
}

// OnCandleClosed dispatches a closed candle for role, running the
// PRIMARY or ENTRY pipeline and always sweeping the exit machine and
// action queue at the end.
func (d *Dispatcher) OnCandleClosed(ctx context.Context, role dataprovider.Role, candle domain.Candle) {
	d.mu.Lock()
	defer d.mu.Unlock()

	spec, ok := d.timeframe.Resolve(role)
	if !ok {
		d.log.Warn().Str("role", string(role)).Msg("candle close for unconfigured role, ignoring")
		return
	}
	d.data.OnCandleClose(role, candle)
	if paper, ok := d.ex.(interface{ SetPrice(string, float64) }); ok {
		paper.SetPrice(d.cfg.Symbol, candle.Close)
	}
	d.precalc.WarmOnClose(d.cfg.Symbol, spec.Interval)

	switch role {
	case dataprovider.RolePrimary:
		d.onPrimaryClose(ctx, candle, spec.Interval)
	case dataprovider.RoleEntry:
		d.onEntryClose(ctx, candle, spec.Interval)
	}

	d.evaluateExit(ctx, candle)
	d.dispatchQueue(ctx)
}

func (d *Dispatcher) onPrimaryClose(ctx context.Context, candle domain.Candle, interval string) {
	if _, open := d.positions.Current(); open {
		return
	}

	candles, err := d.data.Candles(ctx, dataprovider.RolePrimary)
	if err != nil {
		d.log.Warn().Err(err).Msg("primary candles unavailable, skipping entry analysis")
		return
	}

	trendAnalysis := d.trend.Trend(candles, d.cache, interval)
	signals := signal.CollectSignals(d.analyzers, d.cfg.AnalyzerWeights, d.cfg.AnalyzerPriorities, candles, d.cache, interval, candle.Close, d.log)

	atr, _ := d.cache.Get(indicator.CacheKey("ATR", 14, interval, candle.Timestamp))
	for i := range signals {
		applyDefaultLevels(&signals[i], atr, d.cfg.RiskManagement)
	}

	atrPercent := d.atrPercent(candles, interval)
	fundingRate, err := d.ex.GetFundingRate(ctx, d.cfg.Symbol)
	if err != nil {
		d.log.Warn().Err(err).Msg("funding rate unavailable, treating as zero")
	}
	verdict := d.filters.Apply(signals, filter.MarketContext{
		Trend:         trendAnalysis,
		FundingRate:   fundingRate,
		ATRPercent:    atrPercent,
		BTCCandles:    d.btcCandles,
		SymbolCandles: candles,
	})
	if !verdict.Pass {
		metrics.RecordDecision("SKIP", verdict.Reason)
		d.log.Debug().Str("filter", verdict.VetoedBy).Str("reason", verdict.Reason).Msg("entry vetoed by filter chain")
		return
	}

	balance, err := d.ex.GetBalance(ctx)
	if err != nil {
		d.log.Warn().Err(err).Msg("balance unavailable, skipping entry analysis")
		return
	}
	metrics.EquityUSD.Set(balance.Wallet)
	if stats := d.cache.Stats(); stats.Hits+stats.Misses > 0 {
		metrics.IndicatorCacheHitRate.Set(stats.HitRatePercent)
	}
	stats := computeDailyStats(d.journal, d.now())

	decision := entry.Decide(signals, balance, openPositionsSlice(d.positions), trendAnalysis, d.cfg.Entry, d.riskMgr, stats)
	metrics.RecordDecision(string(decision.Kind), decision.Reason)
	if decision.Kind != entry.Enter {
		return
	}

	d.gate.CreateSnapshot(trendAnalysis.Bias, trendAnalysis, *decision.Signal, candle)
	d.pending = &pendingEntry{signal: *decision.Signal}
	d.log.Info().Str("direction", string(decision.Signal.Direction)).Float64("confidence", decision.Signal.Confidence).Msg("entry decision pending ENTRY-timeframe confirmation")
}

func (d *Dispatcher) onEntryClose(ctx context.Context, candle domain.Candle, interval string) {
	if d.pending == nil {
		return
	}
	pending := d.pending

	candles, err := d.data.Candles(ctx, dataprovider.RoleEntry)
	if err != nil {
		d.log.Warn().Err(err).Msg("entry candles unavailable, dropping pending decision")
		d.clearPending()
		return
	}

	currentTrend := d.trend.Trend(candles, d.cache, interval)
	validation := d.gate.Validate(currentTrend.Bias)
	if !validation.Valid {
		reason := validation.Reason
		if reason == "" {
			reason = "invalid"
		}
		metrics.SnapshotInvalidationsTotal.WithLabelValues(reason).Inc()
		d.log.Info().Str("reason", reason).Msg("mtf snapshot invalidated, dropping pending entry")
		d.clearPending()
		return
	}

	if isDoji(candle, candles) {
		d.log.Debug().Msg("entry candle is a doji, dropping pending entry")
		d.clearPending()
		return
	}
	if !directionAligned(pending.signal.Direction, candle) {
		d.log.Debug().Msg("entry candle direction disagrees with pending signal, dropping")
		d.clearPending()
		return
	}

	d.tpCounter.Reset()
	d.execClosed = false
	d.queue.Enqueue(domain.ActionRequest{
		Type:     domain.ActionOpenPosition,
		Priority: domain.PriorityHigh,
		Payload: domain.OpenPositionPayload{
			Symbol: d.cfg.Symbol,
			Signal: pending.signal,
		},
	})
	d.clearPending()
}

func (d *Dispatcher) clearPending() {
	d.pending = nil
	d.gate.ClearActive()
}

func (d *Dispatcher) evaluateExit(ctx context.Context, candle domain.Candle) {
	pos, open := d.positions.Current()
	if !open {
		return
	}
	if err := d.ex.HealthCheck(ctx); err != nil {
		d.log.Warn().Err(err).Msg("exchange health check failed during exit evaluation")
	}
	exchangeClosed := d.execClosed
	output := exit.Evaluate(pos, candle.Close, d.cfg.TrailingStopPercent, exit.Indicators{}, exchangeClosed)
	if exchangeClosed {
		d.execClosed = false
		d.tpCounter.Reset()
	}
	if output.Transition != nil {
		metrics.RecordExitTransition(string(output.Transition.From), string(output.Transition.To))
	}
	for _, action := range output.Actions {
		d.queue.Enqueue(action)
	}
}

func (d *Dispatcher) dispatchQueue(ctx context.Context) {
	metrics.ActionQueueDepth.Set(float64(d.queue.Len()))
	handlers := d.lifecycle.Handlers(d.precision, d.cfg.Leverage)
	aqHandlers := make(map[domain.ActionType]actionqueue.Handler, len(handlers))
	for t, h := range handlers {
		aqHandlers[t] = actionqueue.Handler(h)
	}
	for _, res := range d.queue.Process(ctx, aqHandlers) {
		if res.Err != nil {
			d.log.Error().Err(res.Err).Str("action_id", res.Action.ID).Str("type", string(res.Action.Type)).Msg("action handler failed")
		}
	}
}

func (d *Dispatcher) atrPercent(candles []domain.Candle, interval string) float64 {
	if len(candles) == 0 {
		return 0
	}
	latest := candles[len(candles)-1]
	atr, ok := d.cache.Get(indicator.CacheKey("ATR", 14, interval, latest.Timestamp))
	if !ok || latest.Close == 0 {
		return 0
	}
	return atr / latest.Close * 100
}

func openPositionsSlice(repo *repository.PositionRepository) []domain.Position {
	if pos, ok := repo.Current(); ok {
		return []domain.Position{pos}
	}
	return nil
}

// isDoji implements the spec's "candle body >= 30% of recent mean body"
// rejection: a body below that threshold is too indecisive to confirm
// the pending entry.
func isDoji(candle domain.Candle, recent []domain.Candle) bool {
	body := math.Abs(candle.Close - candle.Open)
	n := len(recent)
	if n == 0 {
		return false
	}
	lookback := recent
	if n > 20 {
		lookback = recent[n-20:]
	}
	var sum float64
	for _, c := range lookback {
		sum += math.Abs(c.Close - c.Open)
	}
	mean := sum / float64(len(lookback))
	if mean == 0 {
		return false
	}
	return body < 0.30*mean
}

// applyDefaultLevels fills a stop-loss distance (ATR-multiple, floored
// at a minimum percent of price) and the configured take-profit ladder
// onto a collected signal whose analyzer left them unset —
// most directional analyzers (MARegime, RSIReversion) score direction
// and confidence only, not trade levels, so the orchestrator supplies
// the risk_management-configured levels the way the teacher's
// TAKE_PROFIT_PCT/STOP_LOSS_PCT env knobs did in step.go, generalized
// from a flat percent to an ATR-scaled distance and a multi-leg ladder.
func applyDefaultLevels(sig *domain.Signal, atr float64, rm config.RiskManagementConfig) {
	if sig.StopLoss == 0 {
		distance := atr * rm.StopLoss.ATRMultiplier
		minDistance := sig.Price * rm.StopLoss.MinDistancePercent / 100
		if distance < minDistance {
			distance = minDistance
		}
		if distance > 0 {
			if sig.Direction == domain.Short {
				sig.StopLoss = sig.Price + distance
			} else {
				sig.StopLoss = sig.Price - distance
			}
		}
	}
	if len(sig.TakeProfits) == 0 {
		for _, tp := range rm.TakeProfits {
			price := sig.Price * (1 + tp.Percent/100)
			if sig.Direction == domain.Short {
				price = sig.Price * (1 - tp.Percent/100)
			}
			sig.TakeProfits = append(sig.TakeProfits, domain.TakeProfitTarget{
				Level:       tp.Level,
				SizePercent: tp.SizePercent,
				Price:       price,
			})
		}
	}
}

// directionAligned reports whether the entry candle's own direction
// agrees with the pending signal's direction.
func directionAligned(dir domain.Direction, candle domain.Candle) bool {
	switch dir {
	case domain.Long:
		return candle.Close >= candle.Open
	case domain.Short:
		return candle.Close <= candle.Open
	default:
		return false
	}
}

// computeDailyStats derives risk.DailyStats from the journal: the
// day's realized loss percent (against entry notional, since account
// equity isn't journaled) and the current consecutive-loss streak
// (trailing losses since the last win).
func computeDailyStats(journal *repository.JournalRepository, now time.Time) risk.DailyStats {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	todays := journal.Query(repository.TradeFilter{Since: &dayStart})

	var lossNotional, totalNotional float64
	for _, t := range todays {
		notional := t.EntryPrice * t.Quantity
		totalNotional += notional
		if t.PnL < 0 {
			lossNotional += -t.PnL
		}
	}
	var lossPercent float64
	if totalNotional > 0 {
		lossPercent = lossNotional / totalNotional * 100
	}

	all := journal.Query(repository.TradeFilter{})
	streak := 0
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].ExitTime == nil {
			continue
		}
		if all[i].PnL >= 0 {
			break
		}
		streak++
	}

	return risk.DailyStats{
		DailyLossPercent:  lossPercent,
		ConsecutiveLosses: streak,
	}
}
