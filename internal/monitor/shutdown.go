package monitor

import (
	"errors"
	"time"
)

// joinBudget bounds how long the coordinator waits on any single join
// step before detaching it with a warning and moving on.
const joinBudget = 8 * time.Second

// ErrAlreadyStopping is returned by Shutdown when a concurrent caller
// already started (or finished) the sequence.
var ErrAlreadyStopping = errors.New("monitor: shutdown already in progress or complete")

// Join attempts a bounded wait, returning true if it completed within
// budget. Callers pass e.g. a WaitGroup.Wait wrapped in a goroutine
// signaling a channel.
type Join func(budget time.Duration) (completed bool)

// Sequence bundles every step of the coordinated shutdown in the
// exact order Shutdown drives them.
type Sequence struct {
	// InterruptWaits wakes every blocked condition variable/channel
	// wait (Frontier dequeue, rate limiter gap, Parse Queue receive)
	// so joins below don't hang on a wait that would otherwise only
	// unblock via ctx cancellation picked up on the next loop iteration.
	InterruptWaits func()
	JoinFetchers    Join
	JoinParsers     Join
	FlushStorage    func()
	JoinPersistence Join
	CloseStores     func() error
}

// Shutdown runs the coordinated shutdown sequence exactly once:
// signal stop, interrupt waits, join fetchers, join parsers, flush
// storage, join persistence threads, close durable stores. Each join
// step is given joinBudget; a step that doesn't complete in time is
// logged and the sequence proceeds rather than hanging the process on
// shutdown. Idempotent — a second call returns ErrAlreadyStopping.
func (m *Monitor) Shutdown(seq Sequence) error {
	if !m.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		return ErrAlreadyStopping
	}
	defer m.state.Store(int32(StateStopped))

	m.logger.Info("shutdown sequence starting")

	if seq.InterruptWaits != nil {
		seq.InterruptWaits()
	}

	m.joinStep("fetchers", seq.JoinFetchers)
	m.joinStep("parsers", seq.JoinParsers)

	if seq.FlushStorage != nil {
		seq.FlushStorage()
	}

	m.joinStep("persistence", seq.JoinPersistence)

	var err error
	if seq.CloseStores != nil {
		err = seq.CloseStores()
	}

	m.logger.Info("shutdown sequence complete")
	return err
}

func (m *Monitor) joinStep(name string, join Join) {
	if join == nil {
		return
	}
	if !join(joinBudget) {
		m.logger.Warn("shutdown join exceeded budget, detaching", "step", name, "budget", joinBudget)
	}
}

// IsStopped reports whether the shutdown sequence has completed.
func (m *Monitor) IsStopped() bool {
	return State(m.state.Load()) == StateStopped
}
