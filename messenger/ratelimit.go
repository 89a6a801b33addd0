package messenger

import (
	"container/list"
	"sync"

	"golang.org/x/time/rate"
)

// masterPacingInterval is the minimum spacing between successive sends to a
// single Master Server destination. spec.md names this figure without
// deriving it (see Open Questions in SPEC_FULL.md); it is carried forward
// unchanged rather than re-tuned.
const masterPacingInterval = 13 * 1_000_000 // nanoseconds, i.e. 13ms

// destinationLimiters is an LRU-pruned per-destination rate.Limiter pool.
// Only Master Server destinations are throttled; every other session
// family is unthrottled per spec, so entries are created lazily and only
// for master keys.
type destinationLimiters struct {
	mu       sync.Mutex
	maxSize  int
	limiters map[string]*list.Element
	order    *list.List // front = most recently used
}

type limiterEntry struct {
	dest    string
	limiter *rate.Limiter
}

func newDestinationLimiters(maxSize int) *destinationLimiters {
	return &destinationLimiters{
		maxSize:  maxSize,
		limiters: make(map[string]*list.Element),
		order:    list.New(),
	}
}

// get returns the rate.Limiter for dest, creating one on first use and
// evicting the least-recently-used entry if the pool is at capacity.
func (d *destinationLimiters) get(dest string) *rate.Limiter {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.limiters[dest]; ok {
		d.order.MoveToFront(el)
		return el.Value.(*limiterEntry).limiter
	}

	if d.maxSize > 0 && len(d.limiters) >= d.maxSize {
		oldest := d.order.Back()
		if oldest != nil {
			d.order.Remove(oldest)
			delete(d.limiters, oldest.Value.(*limiterEntry).dest)
		}
	}

	lim := rate.NewLimiter(rate.Every(masterPacingInterval), 1)
	el := d.order.PushFront(&limiterEntry{dest: dest, limiter: lim})
	d.limiters[dest] = el
	return lim
}
