package transfer

import (
	"math"
	"time"
)

// minRateWindow is the shortest interval a rate sample is computed over
const minRateWindow = 250 * time.Millisecond

// rateMeter computes the instantaneous rate from bytes since the last sample
// over the elapsed wall time.
type rateMeter struct {
	window    time.Duration
	lastAt    time.Time
	lastBytes int64
	rate      int64
}

func newRateMeter(now time.Time, received int64) *rateMeter {
	return &rateMeter{window: minRateWindow, lastAt: now, lastBytes: received}
}

// Sample records received at now and returns the current rate in bytes per
// second. The rate is 0 while the total is unknown or no time has elapsed.
func (m *rateMeter) Sample(now time.Time, received, total int64) int64 {
	if total <= 0 {
		return 0
	}

	elapsed := now.Sub(m.lastAt)
	if elapsed <= 0 || elapsed < m.window {
		return m.rate
	}

	delta := received - m.lastBytes
	if delta < 0 {
		delta = 0
	}
	rate := float64(delta) / elapsed.Seconds()
	if math.IsNaN(rate) || math.IsInf(rate, 0) {
		rate = 0
	}

	m.rate = int64(rate)
	m.lastAt = now
	m.lastBytes = received
	return m.rate
}
