package messenger

import (
	"container/heap"
	"testing"
	"time"
)

// property 6: priority ordering. (L,N,H,N,L) pushed in that order pops as
// (H,N,N,L,L), FIFO within a priority tier.
func TestPriorityQueueOrder(t *testing.T) {
	now := time.Now()
	var pq priorityQueue
	heap.Init(&pq)

	tags := []struct {
		tag string
		p   Priority
	}{
		{"L1", Low},
		{"N1", Normal},
		{"H1", High},
		{"N2", Normal},
		{"L2", Low},
	}

	for i, tg := range tags {
		heap.Push(&pq, &item{
			traceID:  tg.tag,
			priority: tg.p,
			seq:      uint64(i),
			queuedAt: now,
		})
	}

	want := []string{"H1", "N1", "N2", "L1", "L2"}
	for i, w := range want {
		got := heap.Pop(&pq).(*item)
		if got.traceID != w {
			t.Fatalf("pop %d = %s, want %s", i, got.traceID, w)
		}
	}
}

// promoteAged bumps anything that has waited past agingInterval by one
// priority level, preventing a steady stream of High-priority traffic from
// starving an old Low submission forever.
func TestPriorityQueuePromoteAged(t *testing.T) {
	now := time.Now()
	var pq priorityQueue
	heap.Init(&pq)

	stale := &item{traceID: "stale-low", priority: Low, seq: 0, queuedAt: now.Add(-2 * agingInterval)}
	fresh := &item{traceID: "fresh-low", priority: Low, seq: 1, queuedAt: now}

	heap.Push(&pq, stale)
	heap.Push(&pq, fresh)

	pq.promoteAged(now, agingInterval)

	if stale.priority != Normal {
		t.Fatalf("stale item priority = %v, want Normal after aging", stale.priority)
	}
	if fresh.priority != Low {
		t.Fatalf("fresh item priority = %v, want unchanged Low", fresh.priority)
	}

	// After promotion, the aged item should now pop before the fresh one.
	first := heap.Pop(&pq).(*item)
	if first.traceID != "stale-low" {
		t.Fatalf("first pop = %s, want stale-low (promoted)", first.traceID)
	}
}

func TestPriorityPromoted(t *testing.T) {
	if Low.promoted() != Normal {
		t.Fatalf("Low.promoted() = %v, want Normal", Low.promoted())
	}
	if Normal.promoted() != High {
		t.Fatalf("Normal.promoted() = %v, want High", Normal.promoted())
	}
	if High.promoted() != High {
		t.Fatalf("High.promoted() = %v, want High (capped)", High.promoted())
	}
}
