package retry

import (
	"context"
	"math/rand/v2"
	"time"
)

// Default backoff values
const (
	DefaultMaxAttempts   = 30
	DefaultDelayMin      = 800 * time.Millisecond
	DefaultDelayMax      = 1500 * time.Millisecond
	DefaultCooldownEvery = 10
	DefaultCooldown      = 30 * time.Minute
)

// Policy is a two-tier backoff: a short jittered delay after most attempts and
// a long cooldown after every CooldownEvery-th one.
type Policy struct {
	MaxAttempts   int
	DelayMin      time.Duration
	DelayMax      time.Duration
	CooldownEvery int
	Cooldown      time.Duration
}

// DefaultPolicy returns the default backoff
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:   DefaultMaxAttempts,
		DelayMin:      DefaultDelayMin,
		DelayMax:      DefaultDelayMax,
		CooldownEvery: DefaultCooldownEvery,
		Cooldown:      DefaultCooldown,
	}
}

// Delay returns how long to wait after the given failed attempt (1-based)
func (p Policy) Delay(attempt int) time.Duration {
	if p.CooldownEvery > 0 && attempt > 0 && attempt%p.CooldownEvery == 0 {
		return p.Cooldown
	}
	if p.DelayMax <= p.DelayMin {
		return max(p.DelayMin, 0)
	}
	return p.DelayMin + time.Duration(rand.Int64N(int64(p.DelayMax-p.DelayMin)+1))
}

// Sleep waits for d or until ctx is done
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
