package master

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	"github.com/k64z/gamequery/qerr"
)

// State is one point in the Master Server loop's state machine.
type State int

const (
	StateIdle State = iota
	StateQuerying
	StateAwaitingResponse
	StateEmitting
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateQuerying:
		return "Querying"
	case StateAwaitingResponse:
		return "AwaitingResponse"
	case StateEmitting:
		return "Emitting"
	case StateDone:
		return "Done"
	case StateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Requester submits one Master Server page request and awaits its
// response, with priority HIGH, as spec.md's algorithm requires. It is
// implemented by the query facade on top of the messenger.
type Requester interface {
	QueryPage(ctx context.Context, req Request) (*Response, error)
}

// EntryCallback is invoked once per discovered server, in submission order,
// never concurrently for the same iteration (spec §5). err is non-nil
// exactly once, at the end of iteration, if the loop ended via timeout
// rather than an explicit terminator.
type EntryCallback func(addr netip.AddrPort, masterAddr string, err error)

const pageTimeout = 3 * time.Second

// Iterate drives the seeded-pagination algorithm from spec.md §4.5 to
// completion against masterAddr, invoking cb once per discovered server and
// returning the full accumulated list.
func Iterate(ctx context.Context, req Requester, masterAddr string, region Region, filter string, cb EntryCallback, pacingDelay time.Duration) ([]netip.AddrPort, State, error) {
	state := StateIdle
	seed := Seed
	var accumulated []netip.AddrPort

	for {
		state = StateQuerying

		pageCtx, cancel := context.WithTimeout(ctx, pageTimeout)
		page, err := req.QueryPage(pageCtx, Request{Region: region, Seed: seed, Filter: filter})
		cancel()

		if err != nil {
			if qerr.IsTimeout(err) {
				// Timeout is demoted to a graceful end-of-iteration per spec §7.
				state = StateDone
				if cb != nil {
					cb(netip.AddrPort{}, masterAddr, err)
				}
				return accumulated, state, nil
			}
			state = StateFailed
			return accumulated, state, err
		}

		state = StateAwaitingResponse
		state = StateEmitting

		// The terminator, if present, is disambiguated positionally: it is
		// always the last element of the page (spec §9). Checking it before
		// the echoed-seed skip matters on the very first page, where seed
		// is itself the sentinel value, so a genuine terminator entry would
		// otherwise be mistaken for the previous page's echo and skipped
		// without ever being recognized as the terminator.
		entries := page.Entries
		terminated := false
		if n := len(entries); n > 0 && IsSentinel(entries[n-1]) {
			terminated = true
			entries = entries[:n-1]
		}

		var lastNonSentinel netip.AddrPort
		haveLastNonSentinel := false

		for _, entry := range entries {
			if entry == seed {
				// Echoed seed from the previous page; never delivered to callbacks.
				continue
			}
			if IsSentinel(entry) {
				// A sentinel anywhere but the last position is unexpected;
				// still treat it as an end-of-list signal defensively.
				terminated = true
				break
			}

			if cb != nil {
				cb(entry, masterAddr, nil)
			}
			accumulated = append(accumulated, entry)
			lastNonSentinel = entry
			haveLastNonSentinel = true

			if pacingDelay > 0 {
				select {
				case <-time.After(pacingDelay):
				case <-ctx.Done():
					state = StateFailed
					return accumulated, state, ctx.Err()
				}
			}
		}

		if terminated {
			state = StateDone
			return accumulated, state, nil
		}

		if !haveLastNonSentinel {
			// A page with nothing but the echoed seed and no terminator: the
			// server has nothing further to offer. Treat it as end-of-list
			// rather than looping forever on the same seed.
			state = StateDone
			return accumulated, state, nil
		}

		seed = lastNonSentinel
	}
}
