package strategy

import (
	"sync"
	"time"
)

// TradeThrottle gates entry attempts per symbol: a cap on trades per
// calendar day plus a minimum spacing between entries. The day rollover
// is global: the whole map is cleared when the wall-clock date advances,
// so every symbol gets a fresh daily budget at midnight regardless of
// absolute elapsed time.
type TradeThrottle struct {
	mu          sync.Mutex
	maxPerDay   int
	minInterval time.Duration
	day         time.Time // calendar date the counters belong to
	entries     map[string]*throttleEntry
}

type throttleEntry struct {
	lastTrade   time.Time
	tradesToday int
}

func NewTradeThrottle(maxPerDay int, minInterval time.Duration) *TradeThrottle {
	return &TradeThrottle{
		maxPerDay:   maxPerDay,
		minInterval: minInterval,
		entries:     make(map[string]*throttleEntry),
	}
}

// MayEnter reports whether a buy for symbol is currently allowed.
// A symbol with no recorded trades is always allowed.
func (t *TradeThrottle) MayEnter(symbol string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollover(now)

	e, ok := t.entries[symbol]
	if !ok {
		return true
	}
	if e.tradesToday >= t.maxPerDay {
		return false
	}
	return now.Sub(e.lastTrade) >= t.minInterval
}

// RecordEntry counts a submitted buy. Call it if and only if the broker
// actually accepted the order; recording failed attempts would
// under-throttle on the retry.
func (t *TradeThrottle) RecordEntry(symbol string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollover(now)

	e, ok := t.entries[symbol]
	if !ok {
		e = &throttleEntry{}
		t.entries[symbol] = e
	}
	e.tradesToday++
	e.lastTrade = now
}

// rollover clears all counters together once the calendar date moves
// past the stored day. Caller holds the lock.
func (t *TradeThrottle) rollover(now time.Time) {
	today := dateOf(now)
	if t.day.Equal(today) {
		return
	}
	if !t.day.IsZero() {
		t.entries = make(map[string]*throttleEntry)
	}
	t.day = today
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
