// Package circuit tracks whether the remote store is likely offline so the
// engine stops hammering a dead endpoint from every request.
package circuit

import (
	"sync"
	"time"
)

type Breaker struct {
	mu           sync.Mutex
	offlineUntil time.Time
	lastProbeAt  time.Time

	cooldown      time.Duration
	probeInterval time.Duration

	now func() time.Time // test seam
}

func New(cooldown, probeInterval time.Duration) *Breaker {
	if cooldown <= 0 {
		cooldown = 45 * time.Second
	}
	if probeInterval <= 0 {
		probeInterval = 10 * time.Second
	}
	return &Breaker{
		cooldown:      cooldown,
		probeInterval: probeInterval,
		now:           time.Now,
	}
}

// MarkFailure starts (or extends) the offline cooldown window.
func (b *Breaker) MarkFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.offlineUntil = b.now().Add(b.cooldown)
}

func (b *Breaker) MarkSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.offlineUntil = time.Time{}
}

func (b *Breaker) IsOffline() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.now().Before(b.offlineUntil)
}

// ShouldProbe rate-limits recovery probes during the cooldown window. At most
// one caller per probe interval gets true.
func (b *Breaker) ShouldProbe() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	if now.Sub(b.lastProbeAt) >= b.probeInterval {
		b.lastProbeAt = now
		return true
	}
	return false
}

// Allow reports whether a remote attempt may proceed: either the breaker is
// closed, or the cooldown has room for a probe.
func (b *Breaker) Allow() bool {
	if !b.IsOffline() {
		return true
	}
	return b.ShouldProbe()
}
