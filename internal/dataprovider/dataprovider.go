// Package dataprovider maps the strategy's logical timeframe roles
// (PRIMARY, ENTRY, CONFIRM, ...) onto concrete exchange intervals and
// keeps the market-data repository populated, generalizing the
// teacher's single-timeframe warmup/candle-close path in live.go into
// a multi-timeframe provider.
package dataprovider

import (
	"context"
	"fmt"

	"github.com/chidi150c/futurescore/internal/domain"
	"github.com/chidi150c/futurescore/internal/exchange"
	"github.com/chidi150c/futurescore/internal/repository"
)

// Role names a logical timeframe the strategy reasons about.
type Role string

const (
	RolePrimary Role = "PRIMARY"
	RoleEntry   Role = "ENTRY"
	RoleConfirm Role = "CONFIRM"
	RoleTrend   Role = "TREND"
)

// TimeframeSpec binds a Role to a concrete exchange interval and the
// candle count to bulk-load on warmup.
type TimeframeSpec struct {
	Role     Role
	Interval string
	WarmupN  int
}

// TimeframeProvider resolves a role to its configured spec.
type TimeframeProvider struct {
	specs map[Role]TimeframeSpec
}

// NewTimeframeProvider builds a provider from the configured roles.
func NewTimeframeProvider(specs []TimeframeSpec) *TimeframeProvider {
	m := make(map[Role]TimeframeSpec, len(specs))
	for _, s := range specs {
		m[s.Role] = s
	}
	return &TimeframeProvider{specs: m}
}

// Resolve returns the spec for role, or false if the role isn't configured.
func (t *TimeframeProvider) Resolve(role Role) (TimeframeSpec, bool) {
	s, ok := t.specs[role]
	return s, ok
}

// Roles returns every configured role.
func (t *TimeframeProvider) Roles() []Role {
	out := make([]Role, 0, len(t.specs))
	for r := range t.specs {
		out = append(out, r)
	}
	return out
}

// CandleProvider keeps the repository populated per role: a bulk
// initial load on startup, and incremental appends as each role's
// candle closes.
type CandleProvider struct {
	ex        exchange.Exchange
	repo      *repository.MarketDataRepository
	timeframe *TimeframeProvider
	symbol    string
}

// NewCandleProvider builds a provider bound to symbol.
func NewCandleProvider(ex exchange.Exchange, repo *repository.MarketDataRepository, timeframe *TimeframeProvider, symbol string) *CandleProvider {
	return &CandleProvider{ex: ex, repo: repo, timeframe: timeframe, symbol: symbol}
}

// WarmupAll bulk-loads every configured role's initial candle window.
func (c *CandleProvider) WarmupAll(ctx context.Context) error {
	for _, role := range c.timeframe.Roles() {
		spec, _ := c.timeframe.Resolve(role)
		candles, err := c.ex.GetCandles(ctx, c.symbol, spec.Interval, spec.WarmupN)
		if err != nil {
			return fmt.Errorf("warmup %s: %w", role, err)
		}
		c.repo.Save(c.symbol, spec.Interval, candles)
	}
	return nil
}

// OnCandleClose appends a newly closed candle for role and reports
// whether the role was recognized.
func (c *CandleProvider) OnCandleClose(role Role, candle domain.Candle) bool {
	spec, ok := c.timeframe.Resolve(role)
	if !ok {
		return false
	}
	c.repo.Append(c.symbol, spec.Interval, candle)
	return true
}

// Candles returns the cached window for role, reloading from the
// exchange if the repository has nothing cached yet (e.g. after a
// restart that skipped warmup).
func (c *CandleProvider) Candles(ctx context.Context, role Role) ([]domain.Candle, error) {
	spec, ok := c.timeframe.Resolve(role)
	if !ok {
		return nil, fmt.Errorf("dataprovider: role %s not configured", role)
	}
	series := c.repo.Get(c.symbol, spec.Interval, nil)
	if len(series) > 0 {
		return series, nil
	}
	fresh, err := c.ex.GetCandles(ctx, c.symbol, spec.Interval, spec.WarmupN)
	if err != nil {
		return nil, err
	}
	c.repo.Save(c.symbol, spec.Interval, fresh)
	return fresh, nil
}
