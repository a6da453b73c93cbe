package blacklist

import (
	"context"
	"testing"
	"time"
)

func TestPermanentBlacklist(t *testing.T) {
	b := New([]string{"bad.example"}, time.Minute)
	if !b.IsBlacklisted("bad.example") {
		t.Fatal("expected permanent host to be blacklisted")
	}
	if b.IsBlacklisted("good.example") {
		t.Fatal("expected unrelated host to not be blacklisted")
	}
}

func TestTemporaryBlacklistExpires(t *testing.T) {
	b := New(nil, 20*time.Millisecond)
	b.AddTemporary("flaky.example")
	if !b.IsBlacklisted("flaky.example") {
		t.Fatal("expected freshly added temporary host to be blacklisted")
	}

	time.Sleep(30 * time.Millisecond)
	if b.IsBlacklisted("flaky.example") {
		t.Fatal("expected temporary entry to expire after cooldown")
	}
}

func TestSweepRemovesExpiredEntries(t *testing.T) {
	b := New(nil, 10*time.Millisecond)
	b.AddTemporary("flaky.example")
	time.Sleep(20 * time.Millisecond)
	b.sweep()

	b.mu.RLock()
	_, present := b.temporary["flaky.example"]
	b.mu.RUnlock()
	if present {
		t.Fatal("expected sweep to remove the expired entry")
	}
}

func TestRunSweeperStopsOnContextCancel(t *testing.T) {
	b := New(nil, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		b.RunSweeper(ctx, time.Millisecond)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected RunSweeper to return after context cancellation")
	}
}
