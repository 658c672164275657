// Package domain holds the value types shared across the trading core:
// candles, order books, signals, trend analysis, positions, trade
// records and queued actions. Nothing in this package talks to the
// network or mutates shared state; it is the vocabulary every other
// package imports.
package domain

import "time"

// Candle is one OHLCV bar for a (symbol, interval) pair.
type Candle struct {
	Timestamp int64 // unix millis
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Valid reports whether the candle satisfies the data-model invariants:
// low <= open,close <= high and volume >= 0.
func (c Candle) Valid() bool {
	if c.Volume < 0 {
		return false
	}
	if c.Low > c.Open || c.Open > c.High {
		return false
	}
	if c.Low > c.Close || c.Close > c.High {
		return false
	}
	return true
}

// Time returns the candle timestamp as a UTC time.Time.
func (c Candle) Time() time.Time {
	return time.UnixMilli(c.Timestamp).UTC()
}

// PriceLevel is one side of an order-book level.
type PriceLevel struct {
	Price float64
	Size  float64
}

// OrderBook is the latest snapshot for a symbol: bids ordered by
// descending price, asks ordered by ascending price.
type OrderBook struct {
	Timestamp int64
	Bids      []PriceLevel
	Asks      []PriceLevel
}

// Valid reports whether the book satisfies the data-model invariants:
// bids strictly below asks, non-negative sizes.
func (ob OrderBook) Valid() bool {
	for _, lvl := range ob.Bids {
		if lvl.Size < 0 {
			return false
		}
	}
	for _, lvl := range ob.Asks {
		if lvl.Size < 0 {
			return false
		}
	}
	if len(ob.Bids) > 0 && len(ob.Asks) > 0 {
		return ob.Bids[0].Price < ob.Asks[0].Price
	}
	return true
}

// BestBid returns the top bid level, or false if the book side is empty.
func (ob OrderBook) BestBid() (PriceLevel, bool) {
	if len(ob.Bids) == 0 {
		return PriceLevel{}, false
	}
	return ob.Bids[0], true
}

// BestAsk returns the top ask level, or false if the book side is empty.
func (ob OrderBook) BestAsk() (PriceLevel, bool) {
	if len(ob.Asks) == 0 {
		return PriceLevel{}, false
	}
	return ob.Asks[0], true
}
