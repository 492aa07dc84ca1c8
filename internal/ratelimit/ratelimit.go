// Package ratelimit throttles chat writes per sender.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultIdleTTL is how long a sender's bucket survives without traffic.
const DefaultIdleTTL = 10 * time.Minute

// Throttle hands out one token bucket per sender. A background sweep drops
// buckets that have been idle for longer than the idle TTL, so a sender who
// comes back after that starts with a full burst again.
type Throttle struct {
	limit rate.Limit
	burst int
	idle  time.Duration
	now   func() time.Time

	mu      sync.Mutex
	senders map[string]*bucket

	done chan struct{}
	stop sync.Once
}

type bucket struct {
	lim     *rate.Limiter
	touched time.Time
}

// Option configures a Throttle.
type Option func(*Throttle)

// WithIdleTTL overrides DefaultIdleTTL.
func WithIdleTTL(d time.Duration) Option {
	return func(t *Throttle) {
		if d > 0 {
			t.idle = d
		}
	}
}

// WithClock makes the throttle read time from now instead of time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Throttle) { t.now = now }
}

// New returns a Throttle allowing perMinute sends per sender with bursts of
// up to burst. A sweep runs every sweepEvery until Stop; zero disables it.
func New(perMinute, burst int, sweepEvery time.Duration, opts ...Option) *Throttle {
	if perMinute <= 0 {
		perMinute = 60
	}
	if burst <= 0 {
		burst = 1
	}
	t := &Throttle{
		limit:   rate.Limit(float64(perMinute) / 60),
		burst:   burst,
		idle:    DefaultIdleTTL,
		now:     time.Now,
		senders: make(map[string]*bucket),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	if sweepEvery > 0 {
		go t.sweepLoop(sweepEvery)
	}
	return t
}

func (t *Throttle) sweepLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.sweep()
		case <-t.done:
			return
		}
	}
}

// sweep forgets senders that have not sent within the idle TTL.
func (t *Throttle) sweep() int {
	cutoff := t.now().Add(-t.idle)

	t.mu.Lock()
	defer t.mu.Unlock()
	dropped := 0
	for sender, b := range t.senders {
		if b.touched.Before(cutoff) {
			delete(t.senders, sender)
			dropped++
		}
	}
	return dropped
}

// Allow reports whether sender may send now and spends a token if so.
func (t *Throttle) Allow(sender string) bool {
	now := t.now()

	t.mu.Lock()
	b, ok := t.senders[sender]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(t.limit, t.burst)}
		t.senders[sender] = b
	}
	b.touched = now
	t.mu.Unlock()

	return b.lim.AllowN(now, 1)
}

// Senders returns how many senders currently hold a bucket.
func (t *Throttle) Senders() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.senders)
}

// Stop ends the sweep goroutine. Safe to call more than once.
func (t *Throttle) Stop() {
	t.stop.Do(func() { close(t.done) })
}
