// Package workqueue implements the Work-Stealing Queue: per-fetcher
// bounded local deques, LIFO pop-local for the owner and FIFO steal
// for everyone else. Grounded on the general work-stealing-deque idiom,
// cross-referenced against other_examples/erndmrc-spider2's per-worker
// bounded-channel dispatch, generalized here into a true deque so a
// rejected push can signal the caller to spill rather than block.
package workqueue

import "sync"

// WorkItem is one URL handed from the Frontier into a fetcher's local
// deque, carrying the depth/referrer context processOne needs — a bare
// URL string is not enough to preserve depth accounting once a Frontier
// dequeue is fed through here instead of processed directly.
type WorkItem struct {
	URL          string
	Depth        int
	ReferrerHost string
}

// Queue holds one bounded deque per fetcher worker.
type Queue struct {
	maxPerWorker int
	mus          []sync.Mutex
	deques       [][]WorkItem

	sizeMu sync.Mutex
	total  int

	stealCursor int
	stealMu     sync.Mutex
}

// New creates a Queue with numWorkers deques, each bounded to
// maxPerWorker entries.
func New(numWorkers, maxPerWorker int) *Queue {
	q := &Queue{
		maxPerWorker: maxPerWorker,
		mus:          make([]sync.Mutex, numWorkers),
		deques:       make([][]WorkItem, numWorkers),
	}
	return q
}

// PushLocal appends item to workerID's own deque. Rejects once that
// deque holds maxPerWorker entries — the caller should spill to disk.
func (q *Queue) PushLocal(workerID int, item WorkItem) bool {
	q.mus[workerID].Lock()
	defer q.mus[workerID].Unlock()

	if len(q.deques[workerID]) >= q.maxPerWorker {
		return false
	}
	q.deques[workerID] = append(q.deques[workerID], item)
	q.incSize()
	return true
}

// PushLocalDropOldest appends item to workerID's own deque, evicting the
// oldest (FIFO-end) entry first if the deque is already at
// maxPerWorker. Reports whether an entry was dropped. Used in FRESH
// mode, where there is no Spill Queue to overflow into.
func (q *Queue) PushLocalDropOldest(workerID int, item WorkItem) (dropped bool) {
	q.mus[workerID].Lock()
	defer q.mus[workerID].Unlock()

	d := q.deques[workerID]
	if len(d) >= q.maxPerWorker {
		q.deques[workerID] = append(d[1:], item)
		return true
	}
	q.deques[workerID] = append(d, item)
	q.incSize()
	return false
}

// PopLocal removes and returns the most recently pushed entry from
// workerID's own deque (LIFO) — the end that is cheapest to own.
func (q *Queue) PopLocal(workerID int) (WorkItem, bool) {
	q.mus[workerID].Lock()
	defer q.mus[workerID].Unlock()

	d := q.deques[workerID]
	if len(d) == 0 {
		return WorkItem{}, false
	}
	n := len(d) - 1
	item := d[n]
	q.deques[workerID] = d[:n]
	q.decSize()
	return item, true
}

// TrySteal removes and returns the oldest entry (FIFO) from a
// round-robin-chosen deque other than workerID's own.
func (q *Queue) TrySteal(workerID int) (WorkItem, bool) {
	n := len(q.deques)
	if n < 2 {
		return WorkItem{}, false
	}

	q.stealMu.Lock()
	start := q.stealCursor
	q.stealCursor = (q.stealCursor + 1) % n
	q.stealMu.Unlock()

	for i := 0; i < n; i++ {
		victim := (start + i) % n
		if victim == workerID {
			continue
		}
		q.mus[victim].Lock()
		d := q.deques[victim]
		if len(d) > 0 {
			item := d[0]
			q.deques[victim] = d[1:]
			q.mus[victim].Unlock()
			q.decSize()
			return item, true
		}
		q.mus[victim].Unlock()
	}
	return WorkItem{}, false
}

func (q *Queue) incSize() {
	q.sizeMu.Lock()
	q.total++
	q.sizeMu.Unlock()
}

func (q *Queue) decSize() {
	q.sizeMu.Lock()
	q.total--
	q.sizeMu.Unlock()
}

// TotalSize returns the number of entries queued across all deques.
func (q *Queue) TotalSize() int {
	q.sizeMu.Lock()
	defer q.sizeMu.Unlock()
	return q.total
}

// MaxSize returns num_workers * max_per_worker.
func (q *Queue) MaxSize() int {
	return len(q.deques) * q.maxPerWorker
}
