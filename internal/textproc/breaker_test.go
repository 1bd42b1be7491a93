package textproc

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b := newBreaker(3, 30*time.Second)

	boom := errors.New("boom")
	for i := 0; i < 3; i++ {
		if !b.allow() {
			t.Fatalf("call %d blocked before threshold", i)
		}
		b.record(boom)
	}

	if b.allow() {
		t.Error("breaker still allows calls after threshold")
	}
}

func TestBreakerProbesAfterCooldownAndCloses(t *testing.T) {
	b := newBreaker(2, 10*time.Second)
	now := time.Unix(1000, 0)
	b.now = func() time.Time { return now }

	boom := errors.New("boom")
	for i := 0; i < 2; i++ {
		b.allow()
		b.record(boom)
	}
	if b.allow() {
		t.Fatal("open breaker allowed a call inside the cooldown")
	}

	now = now.Add(11 * time.Second)
	if !b.allow() {
		t.Fatal("no probe after cooldown")
	}
	// Only one probe at a time.
	if b.allow() {
		t.Error("second concurrent probe allowed")
	}

	b.record(nil)
	if !b.allow() {
		t.Error("breaker did not close after a successful probe")
	}
}

func TestBreakerReopensOnFailedProbe(t *testing.T) {
	b := newBreaker(1, 10*time.Second)
	now := time.Unix(1000, 0)
	b.now = func() time.Time { return now }

	b.allow()
	b.record(errors.New("boom"))

	now = now.Add(11 * time.Second)
	if !b.allow() {
		t.Fatal("no probe after cooldown")
	}
	b.record(errors.New("still down"))

	if b.allow() {
		t.Error("breaker allowed a call right after a failed probe")
	}
}

func TestCorrectorSkipsLLMWhileBreakerOpen(t *testing.T) {
	llm := &stubLLM{err: errors.New("endpoint down")}
	c := New(llm, nil)
	c.breaker = newBreaker(2, time.Hour)

	for i := 0; i < 5; i++ {
		c.Correct(context.Background(), "前期检查过", true)
	}
	if llm.calls != 2 {
		t.Errorf("llm called %d times, want 2", llm.calls)
	}
}
