package util

import (
	"context"
	"time"
)

const maxBackoff = 10

// RateLimiter is the single pacing gate every outbound API call passes
// through before it executes. All calls share one quota budget, so pacing is
// centralized here instead of at the call sites. The gate is acquired and
// released before the request is issued; it is never held across a network
// round-trip.
type RateLimiter struct {
	ticker     *time.Ticker
	errorCount int
	baseRate   time.Duration
}

func NewRateLimiter(baseRate time.Duration) *RateLimiter {
	return &RateLimiter{
		baseRate: baseRate,
		ticker:   time.NewTicker(baseRate),
	}
}

// Tick blocks until the next call slot opens or ctx is done.
func (rl *RateLimiter) Tick(ctx context.Context) error {
	if rl.ticker == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-rl.ticker.C:
		return nil
	}
}

func (rl *RateLimiter) Close() {
	if rl.ticker != nil {
		rl.ticker.Stop()
	}
}

// UpdateRate stretches the pace while calls are failing and restores it as
// they recover, one step per outcome up to maxBackoff steps.
func (rl *RateLimiter) UpdateRate(isError bool) {
	update := false
	if isError {
		if rl.errorCount < maxBackoff {
			rl.errorCount++
			update = true
		}
	} else if rl.errorCount > 0 {
		rl.errorCount--
		update = true
	}

	if update {
		tickerRate := rl.baseRate
		if rl.errorCount > 0 {
			tickerRate = rl.baseRate * time.Duration(rl.errorCount)
		}
		rl.ticker.Reset(tickerRate)
	}
}
