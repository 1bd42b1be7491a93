package textproc

import (
	"log/slog"
	"sync"
	"time"
)

// breaker gates the LLM phase so a dead chat endpoint does not add its
// timeout to every utterance. After maxFailures consecutive errors the
// breaker opens for cooldown; once the cooldown elapses a single probe
// call is let through, and its outcome decides between closing and
// re-opening. Safe for concurrent use.
type breaker struct {
	maxFailures int
	cooldown    time.Duration

	// now is injectable for tests.
	now func() time.Time

	mu       sync.Mutex
	failures int
	openedAt time.Time
	probing  bool
}

func newBreaker(maxFailures int, cooldown time.Duration) *breaker {
	if maxFailures <= 0 {
		maxFailures = 3
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &breaker{maxFailures: maxFailures, cooldown: cooldown, now: time.Now}
}

// allow reports whether the next LLM call may proceed.
func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failures < b.maxFailures {
		return true
	}
	if b.probing {
		return false
	}
	if b.now().Sub(b.openedAt) >= b.cooldown {
		b.probing = true
		slog.Info("llm breaker probing after cooldown")
		return true
	}
	return false
}

// record feeds the outcome of a permitted call back into the breaker.
func (b *breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		if b.failures >= b.maxFailures {
			slog.Info("llm breaker closed")
		}
		b.failures = 0
		b.probing = false
		return
	}

	b.failures++
	b.probing = false
	if b.failures >= b.maxFailures {
		b.openedAt = b.now()
		if b.failures == b.maxFailures {
			slog.Warn("llm breaker opened", "consecutive_failures", b.failures)
		}
	}
}
