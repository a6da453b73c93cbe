package frontier

import (
	"testing"
	"time"
)

func TestEnqueueRejectsOverMaxDepth(t *testing.T) {
	f := New(2, 0)
	if f.Enqueue(&UrlInfo{URL: "https://a.example/x", Depth: 3}) {
		t.Fatal("expected rejection for depth > max_depth")
	}
	if f.Size() != 0 {
		t.Fatalf("expected size 0, got %d", f.Size())
	}
}

func TestEnqueueRejectsDuplicate(t *testing.T) {
	f := New(0, 0)
	info := &UrlInfo{URL: "https://a.example/x", ScheduledFor: time.Now()}
	if !f.Enqueue(info) {
		t.Fatal("expected first enqueue to succeed")
	}
	if f.Enqueue(info) {
		t.Fatal("expected duplicate enqueue to be rejected")
	}
	if f.Size() != 1 {
		t.Fatalf("expected size 1, got %d", f.Size())
	}
}

func TestEnqueueRejectsOverCapacity(t *testing.T) {
	f := New(0, 1)
	if !f.Enqueue(&UrlInfo{URL: "https://a.example/1", ScheduledFor: time.Now()}) {
		t.Fatal("expected first enqueue to succeed")
	}
	if f.Enqueue(&UrlInfo{URL: "https://a.example/2", ScheduledFor: time.Now()}) {
		t.Fatal("expected second enqueue to be rejected at capacity")
	}
}

func TestDequeueOrdersDueBeforeNotDue(t *testing.T) {
	f := New(0, 0)
	now := time.Now()
	f.Enqueue(&UrlInfo{URL: "https://a.example/future", ScheduledFor: now.Add(time.Hour)})
	f.Enqueue(&UrlInfo{URL: "https://a.example/due", ScheduledFor: now.Add(-time.Minute)})

	info, ok := f.Dequeue()
	if !ok {
		t.Fatal("expected a due URL")
	}
	if info.URL != "https://a.example/due" {
		t.Fatalf("expected due URL first, got %s", info.URL)
	}
}

func TestDequeueHigherPriorityFirstAmongDue(t *testing.T) {
	f := New(0, 0)
	now := time.Now().Add(-time.Minute)
	f.Enqueue(&UrlInfo{URL: "https://a.example/low", ScheduledFor: now, Priority: 0.1})
	f.Enqueue(&UrlInfo{URL: "https://a.example/high", ScheduledFor: now, Priority: 5.0})

	info, ok := f.Dequeue()
	if !ok || info.URL != "https://a.example/high" {
		t.Fatalf("expected higher-priority due URL first, got %+v", info)
	}
}

func TestDequeueNeverReturnsSameURLTwice(t *testing.T) {
	f := New(0, 0)
	now := time.Now().Add(-time.Minute)
	urls := []string{"https://a.example/1", "https://a.example/2", "https://a.example/3"}
	for _, u := range urls {
		f.Enqueue(&UrlInfo{URL: u, ScheduledFor: now})
	}

	seen := make(map[string]bool)
	for i := 0; i < len(urls); i++ {
		info, ok := f.Dequeue()
		if !ok {
			t.Fatalf("expected a dequeue at step %d", i)
		}
		if seen[info.URL] {
			t.Fatalf("URL %s returned twice", info.URL)
		}
		seen[info.URL] = true
	}
	if _, ok := f.Dequeue(); ok {
		t.Fatal("expected no more URLs after draining")
	}
}

func TestDequeueFallsBackToEarliestScheduledWhenNoneDue(t *testing.T) {
	f := New(0, 0)
	now := time.Now()
	f.Enqueue(&UrlInfo{URL: "https://a.example/later", ScheduledFor: now.Add(2 * time.Hour)})
	f.Enqueue(&UrlInfo{URL: "https://a.example/sooner", ScheduledFor: now.Add(time.Hour)})

	info, ok := f.Dequeue()
	if !ok || info.URL != "https://a.example/sooner" {
		t.Fatalf("expected earliest-scheduled URL, got %+v", info)
	}
}

func TestEnqueueBatchGroupsByPartition(t *testing.T) {
	f := New(0, 2)
	infos := []*UrlInfo{
		{URL: "https://a.example/1", ScheduledFor: time.Now()},
		{URL: "https://a.example/2", ScheduledFor: time.Now()},
		{URL: "https://a.example/3", ScheduledFor: time.Now()},
	}
	rejected := f.EnqueueBatch(infos)
	if len(rejected) != 1 {
		t.Fatalf("expected exactly 1 rejection at capacity 2, got %d", len(rejected))
	}
	if f.Size() != 2 {
		t.Fatalf("expected size 2, got %d", f.Size())
	}
}

func TestReadmitBypassesSeenRejection(t *testing.T) {
	f := New(0, 0)
	now := time.Now()
	info := &UrlInfo{URL: "https://a.example/x", ScheduledFor: now}
	f.Enqueue(info)
	if _, ok := f.Dequeue(); !ok {
		t.Fatal("expected the first enqueue to be dequeued")
	}

	if f.Enqueue(&UrlInfo{URL: "https://a.example/x", ScheduledFor: now}) {
		t.Fatal("expected a plain re-enqueue of an already-seen URL to be rejected")
	}

	if !f.Readmit(&UrlInfo{URL: "https://a.example/x", ScheduledFor: now}) {
		t.Fatal("expected Readmit to bypass the seen rejection")
	}
	info2, ok := f.Dequeue()
	if !ok || info2.URL != "https://a.example/x" {
		t.Fatalf("expected the readmitted URL to be dequeuable again, got %+v ok=%v", info2, ok)
	}
}

func TestReadmitRejectsOverMaxDepth(t *testing.T) {
	f := New(2, 0)
	if f.Readmit(&UrlInfo{URL: "https://a.example/x", Depth: 3}) {
		t.Fatal("expected Readmit to still respect max_depth")
	}
}

func TestReadmitRejectsOverCapacity(t *testing.T) {
	f := New(0, 1)
	f.Enqueue(&UrlInfo{URL: "https://a.example/1", ScheduledFor: time.Now()})
	if f.Readmit(&UrlInfo{URL: "https://a.example/2", ScheduledFor: time.Now()}) {
		t.Fatal("expected Readmit to still respect max_queue_size")
	}
}

func TestSnapshotAndRestore(t *testing.T) {
	f := New(0, 0)
	now := time.Now()
	f.Enqueue(&UrlInfo{URL: "https://a.example/1", ScheduledFor: now})
	f.Enqueue(&UrlInfo{URL: "https://a.example/2", ScheduledFor: now})

	snap := f.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected snapshot of 2, got %d", len(snap))
	}

	f2 := New(0, 0)
	f2.RestoreAll(snap)
	if f2.Size() != 2 {
		t.Fatalf("expected restored size 2, got %d", f2.Size())
	}
	if !f2.IsSeen("https://a.example/1") {
		t.Fatal("expected restored URL to be marked seen")
	}
}
