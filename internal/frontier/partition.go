package frontier

import (
	"container/heap"
	"time"
)

// pqItem wraps a UrlInfo with heap bookkeeping.
type pqItem struct {
	info  *UrlInfo
	index int
}

// pqueue implements container/heap.Interface with a comparator that
// orders ready-before-not-ready, earlier-expected-first,
// higher-priority-first, lower-depth-first.
type pqueue []*pqItem

func (pq pqueue) Len() int { return len(pq) }

func (pq pqueue) Less(i, j int) bool {
	a, b := pq[i].info, pq[j].info
	now := time.Now()
	aDue, bDue := !now.Before(a.ScheduledFor), !now.Before(b.ScheduledFor)
	if aDue != bDue {
		return aDue // due items sort before not-due items
	}
	if !a.ScheduledFor.Equal(b.ScheduledFor) {
		return a.ScheduledFor.Before(b.ScheduledFor)
	}
	if a.Priority != b.Priority {
		return a.Priority > b.Priority // higher priority first
	}
	return a.Depth < b.Depth // lower depth first
}

func (pq pqueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *pqueue) Push(x any) {
	item := x.(*pqItem)
	item.index = len(*pq)
	*pq = append(*pq, item)
}

func (pq *pqueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*pq = old[:n-1]
	return item
}

// partition is one of the Frontier's N independently-locked shards.
type partition struct {
	pq   pqueue
	seen map[string]struct{}
}

func newPartition() *partition {
	return &partition{seen: make(map[string]struct{})}
}

func (p *partition) push(info *UrlInfo) {
	heap.Push(&p.pq, &pqItem{info: info})
	p.seen[info.URL] = struct{}{}
}

// popDue pops and returns the partition's top item only if it is due.
func (p *partition) popDue(now time.Time) *UrlInfo {
	if len(p.pq) == 0 {
		return nil
	}
	if p.pq[0].info.ScheduledFor.After(now) {
		return nil
	}
	item := heap.Pop(&p.pq).(*pqItem)
	return item.info
}

// peekEarliest returns the partition's top item without removing it.
func (p *partition) peekEarliest() *UrlInfo {
	if len(p.pq) == 0 {
		return nil
	}
	return p.pq[0].info
}

func (p *partition) popTop() *UrlInfo {
	if len(p.pq) == 0 {
		return nil
	}
	item := heap.Pop(&p.pq).(*pqItem)
	return item.info
}

func (p *partition) size() int { return len(p.pq) }

func (p *partition) isSeen(url string) bool {
	_, ok := p.seen[url]
	return ok
}

// snapshot returns every queued item without removing it, for
// checkpointing.
func (p *partition) snapshot() []*UrlInfo {
	out := make([]*UrlInfo, len(p.pq))
	for i, item := range p.pq {
		out[i] = item.info
	}
	return out
}

func (p *partition) drain() []*UrlInfo {
	out := make([]*UrlInfo, 0, len(p.pq))
	for len(p.pq) > 0 {
		out = append(out, p.popTop())
	}
	return out
}
