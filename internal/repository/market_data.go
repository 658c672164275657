// Package repository owns the core's shared in-memory state: candles
// and indicators per (symbol, interval), the current/historical
// position set, and the journal. Callers get copies or controlled
// mutators; nothing outside this package holds the backing slices.
package repository

import (
	"sync"
	"time"

	"github.com/chidi150c/futurescore/internal/domain"
)

const (
	maxCandlesPerTF = 500
	maxIndicators   = 500
	defaultTTLMs    = 60_000
)

// MaxIndicators is the indicator cache's eviction capacity, exposed for
// callers (the indicator layer's stats reporting) that need it.
const MaxIndicators = maxIndicators

type tfKey struct {
	symbol   string
	interval string
}

// MarketDataRepository caches candles per (symbol, interval) with a
// bounded head-drop window, and indicator values with TTL/FIFO eviction.
type MarketDataRepository struct {
	mu      sync.RWMutex
	candles map[tfKey][]domain.Candle

	indicators map[string]cachedIndicator
	insertSeq  map[string]int64
	seqCounter int64

	hits   int64
	misses int64

	now func() time.Time
}

type cachedIndicator struct {
	value     any
	createdAt time.Time
	ttl       time.Duration
	seq       int64
}

// NewMarketDataRepository builds an empty repository. now defaults to
// time.Now when nil, overridable in tests for deterministic TTL checks.
func NewMarketDataRepository(now func() time.Time) *MarketDataRepository {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &MarketDataRepository{
		candles:    make(map[tfKey][]domain.Candle),
		indicators: make(map[string]cachedIndicator),
		insertSeq:  make(map[string]int64),
		now:        now,
	}
}

// Save replaces the candle series for (symbol, interval). If candles is
// longer than the cap, only the most recent `maxCandlesPerTF` are kept.
func (r *MarketDataRepository) Save(symbol, interval string, candles []domain.Candle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]domain.Candle, len(candles))
	copy(cp, candles)
	if len(cp) > maxCandlesPerTF {
		cp = cp[len(cp)-maxCandlesPerTF:]
	}
	r.candles[tfKey{symbol, interval}] = cp
}

// Append adds a single candle (e.g. on candle-close) honoring the cap.
func (r *MarketDataRepository) Append(symbol, interval string, c domain.Candle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := tfKey{symbol, interval}
	series := append(r.candles[k], c)
	if len(series) > maxCandlesPerTF {
		series = series[len(series)-maxCandlesPerTF:]
	}
	r.candles[k] = series
}

// Get returns the last `limit` candles (all, if limit is nil).
func (r *MarketDataRepository) Get(symbol, interval string, limit *int) []domain.Candle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	series := r.candles[tfKey{symbol, interval}]
	if limit == nil || *limit <= 0 || *limit >= len(series) {
		out := make([]domain.Candle, len(series))
		copy(out, series)
		return out
	}
	start := len(series) - *limit
	out := make([]domain.Candle, *limit)
	copy(out, series[start:])
	return out
}

// GetSince returns candles with timestamp >= ts.
func (r *MarketDataRepository) GetSince(symbol, interval string, ts int64) []domain.Candle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	series := r.candles[tfKey{symbol, interval}]
	var out []domain.Candle
	for _, c := range series {
		if c.Timestamp >= ts {
			out = append(out, c)
		}
	}
	return out
}

// Latest returns the most recent candle, if any.
func (r *MarketDataRepository) Latest(symbol, interval string) (domain.Candle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	series := r.candles[tfKey{symbol, interval}]
	if len(series) == 0 {
		return domain.Candle{}, false
	}
	return series[len(series)-1], true
}

// Cache stores value under key with a TTL (defaulting to 60s), evicting
// the oldest entry by insertion order if the cache is at capacity and
// key is new.
func (r *MarketDataRepository) Cache(key string, value any, ttlMs int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ttlMs <= 0 {
		ttlMs = defaultTTLMs
	}
	if _, exists := r.indicators[key]; !exists && len(r.indicators) >= maxIndicators {
		r.evictOldestLocked()
	}
	r.seqCounter++
	r.indicators[key] = cachedIndicator{
		value:     value,
		createdAt: r.now(),
		ttl:       time.Duration(ttlMs) * time.Millisecond,
		seq:       r.seqCounter,
	}
}

func (r *MarketDataRepository) evictOldestLocked() {
	var oldestKey string
	var oldestSeq int64 = -1
	for k, v := range r.indicators {
		if oldestSeq == -1 || v.seq < oldestSeq {
			oldestSeq = v.seq
			oldestKey = k
		}
	}
	if oldestKey != "" {
		delete(r.indicators, oldestKey)
	}
}

// GetIndicator returns the cached value for key, deleting it if expired.
func (r *MarketDataRepository) GetIndicator(key string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.indicators[key]
	if !ok {
		r.misses++
		return nil, false
	}
	if r.now().Sub(entry.createdAt) > entry.ttl {
		delete(r.indicators, key)
		r.misses++
		return nil, false
	}
	r.hits++
	return entry.value, true
}

// HasIndicator reports whether key is cached and unexpired.
func (r *MarketDataRepository) HasIndicator(key string) bool {
	_, ok := r.GetIndicator(key)
	return ok
}

// HitMissCounts returns the running GetIndicator hit/miss counters.
func (r *MarketDataRepository) HitMissCounts() (hits, misses int64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.hits, r.misses
}

// IndicatorCount returns the number of entries currently cached,
// expired or not.
func (r *MarketDataRepository) IndicatorCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.indicators)
}

// ClearExpired scans and removes expired indicator entries, returning
// the number removed.
func (r *MarketDataRepository) ClearExpired() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	removed := 0
	for k, v := range r.indicators {
		if now.Sub(v.createdAt) > v.ttl {
			delete(r.indicators, k)
			removed++
		}
	}
	return removed
}

// Stats summarizes approximate memory usage and counts.
type Stats struct {
	CandleSeries   int
	TotalCandles   int
	IndicatorCount int
	SizeBytes      int64
}

// Stats returns current size/counts. Candle bytes are approximated at
// 80 bytes/candle; indicator bytes are approximated per typed value.
func (r *MarketDataRepository) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var totalCandles int
	for _, series := range r.candles {
		totalCandles += len(series)
	}
	var bytes int64 = int64(totalCandles) * 80
	for _, v := range r.indicators {
		bytes += indicatorByteSize(v.value)
	}
	return Stats{
		CandleSeries:   len(r.candles),
		TotalCandles:   totalCandles,
		IndicatorCount: len(r.indicators),
		SizeBytes:      bytes,
	}
}

func indicatorByteSize(v any) int64 {
	switch val := v.(type) {
	case float64:
		return 8
	case []float64:
		return int64(8 * len(val))
	case int, int64:
		return 8
	case string:
		return int64(len(val))
	default:
		return 32 // conservative default for unmodeled types
	}
}
