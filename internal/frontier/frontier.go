package frontier

import (
	"hash/fnv"
	"sync"
	"time"
)

const numPartitions = 16

// Frontier is the sharded URL Frontier: numPartitions
// independently-locked partitions, each a due/priority/depth-ordered
// heap with its own seen-set, so no single mutex serializes every
// enqueue/dequeue across the whole crawl.
type Frontier struct {
	partitions [numPartitions]*partition
	mus        [numPartitions]sync.Mutex

	maxDepth     int
	maxQueueSize int

	sizeMu sync.Mutex
	total  int
}

// New creates a Frontier that rejects URLs deeper than maxDepth and
// stops accepting new URLs once the total queued count reaches
// maxQueueSize (0 means unbounded).
func New(maxDepth, maxQueueSize int) *Frontier {
	f := &Frontier{maxDepth: maxDepth, maxQueueSize: maxQueueSize}
	for i := range f.partitions {
		f.partitions[i] = newPartition()
	}
	return f
}

func partitionIndex(url string) int {
	h := fnv.New32a()
	h.Write([]byte(url))
	return int(h.Sum32() % numPartitions)
}

func (f *Frontier) partitionFor(url string) (*partition, *sync.Mutex) {
	i := partitionIndex(url)
	return f.partitions[i], &f.mus[i]
}

// Enqueue inserts info if it passes depth/size/dedup checks, reporting
// whether it was accepted.
func (f *Frontier) Enqueue(info *UrlInfo) bool {
	if f.maxDepth > 0 && info.Depth > f.maxDepth {
		return false
	}

	p, mu := f.partitionFor(info.URL)
	mu.Lock()
	if p.isSeen(info.URL) {
		mu.Unlock()
		return false
	}

	if f.maxQueueSize > 0 {
		f.sizeMu.Lock()
		if f.total >= f.maxQueueSize {
			f.sizeMu.Unlock()
			mu.Unlock()
			return false
		}
		f.total++
		f.sizeMu.Unlock()
	}

	p.push(info)
	mu.Unlock()
	return true
}

// EnqueueBatch enqueues every item in infos, grouping by destination
// partition so each partition's lock is taken at most once, and returns
// the subset rejected because the Frontier was at maxQueueSize. Items
// over maxDepth and already-seen URLs are dropped without being
// returned.
func (f *Frontier) EnqueueBatch(infos []*UrlInfo) []*UrlInfo {
	grouped := make([][]*UrlInfo, numPartitions)
	for _, info := range infos {
		if f.maxDepth > 0 && info.Depth > f.maxDepth {
			continue
		}
		i := partitionIndex(info.URL)
		grouped[i] = append(grouped[i], info)
	}

	var rejected []*UrlInfo
	for i, items := range grouped {
		if len(items) == 0 {
			continue
		}
		p := f.partitions[i]
		mu := &f.mus[i]

		mu.Lock()
		for _, info := range items {
			if p.isSeen(info.URL) {
				continue
			}
			if f.maxQueueSize > 0 {
				f.sizeMu.Lock()
				full := f.total >= f.maxQueueSize
				if !full {
					f.total++
				}
				f.sizeMu.Unlock()
				if full {
					rejected = append(rejected, info)
					continue
				}
			}
			p.push(info)
		}
		mu.Unlock()
	}
	return rejected
}

// Readmit re-enqueues info even though its URL has already been seen,
// so a previously-fetched URL can be scheduled for a repeat fetch once
// its metadata record comes due. Still respects maxDepth/maxQueueSize —
// only the isSeen rejection is bypassed, since isSeen exists to dedup
// concurrently-discovered links, not to forbid a URL from ever being
// fetched again.
func (f *Frontier) Readmit(info *UrlInfo) bool {
	if f.maxDepth > 0 && info.Depth > f.maxDepth {
		return false
	}

	p, mu := f.partitionFor(info.URL)
	mu.Lock()
	defer mu.Unlock()

	if f.maxQueueSize > 0 {
		f.sizeMu.Lock()
		if f.total >= f.maxQueueSize {
			f.sizeMu.Unlock()
			return false
		}
		f.total++
		f.sizeMu.Unlock()
	}

	p.push(info)
	return true
}

// Dequeue returns the next URL to fetch. First pass: the top of any
// partition whose top is due. Second pass: the earliest-scheduled top
// across all partitions (only reached when nothing anywhere is due).
// No URL is ever returned twice.
func (f *Frontier) Dequeue() (*UrlInfo, bool) {
	now := time.Now()

	start := int(now.UnixNano()) % numPartitions
	for i := 0; i < numPartitions; i++ {
		idx := (start + i) % numPartitions
		p := f.partitions[idx]
		mu := &f.mus[idx]

		mu.Lock()
		info := p.popDue(now)
		mu.Unlock()
		if info != nil {
			f.decSize()
			return info, true
		}
	}

	var (
		bestIdx  = -1
		bestInfo *UrlInfo
	)
	for i := 0; i < numPartitions; i++ {
		mu := &f.mus[i]
		mu.Lock()
		info := f.partitions[i].peekEarliest()
		mu.Unlock()
		if info == nil {
			continue
		}
		if bestInfo == nil || info.ScheduledFor.Before(bestInfo.ScheduledFor) {
			bestInfo = info
			bestIdx = i
		}
	}
	if bestIdx == -1 {
		return nil, false
	}

	mu := &f.mus[bestIdx]
	mu.Lock()
	info := f.partitions[bestIdx].popTop()
	mu.Unlock()
	if info == nil {
		return nil, false
	}
	f.decSize()
	return info, true
}

func (f *Frontier) decSize() {
	if f.maxQueueSize == 0 {
		return
	}
	f.sizeMu.Lock()
	f.total--
	f.sizeMu.Unlock()
}

// Size returns the total number of queued, not-yet-dequeued URLs.
func (f *Frontier) Size() int {
	total := 0
	for i := range f.partitions {
		f.mus[i].Lock()
		total += f.partitions[i].size()
		f.mus[i].Unlock()
	}
	return total
}

// IsSeen reports whether url has ever been enqueued.
func (f *Frontier) IsSeen(url string) bool {
	p, mu := f.partitionFor(url)
	mu.Lock()
	defer mu.Unlock()
	return p.isSeen(url)
}

// Snapshot returns every currently-queued item, for checkpointing.
func (f *Frontier) Snapshot() []*UrlInfo {
	var out []*UrlInfo
	for i := range f.partitions {
		f.mus[i].Lock()
		out = append(out, f.partitions[i].snapshot()...)
		f.mus[i].Unlock()
	}
	return out
}

// RestoreAll repopulates the Frontier from a prior Snapshot, bypassing
// the maxQueueSize check (a checkpoint restore must not silently drop
// work the crawl had already committed to).
func (f *Frontier) RestoreAll(infos []*UrlInfo) {
	for _, info := range infos {
		p, mu := f.partitionFor(info.URL)
		mu.Lock()
		if !p.isSeen(info.URL) {
			p.push(info)
			f.sizeMu.Lock()
			f.total++
			f.sizeMu.Unlock()
		}
		mu.Unlock()
	}
}
