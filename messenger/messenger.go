// Package messenger implements the priority-aware dispatch layer (C4) that
// sits between the query facade and the transport/session layers: every
// outbound request is submitted here, queued by priority, paced per
// destination, sent over the transport, and registered with the session
// registry so the matching inbound packet (or the deadline) completes it.
package messenger

import (
	"container/heap"
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/k64z/gamequery/qerr"
	"github.com/k64z/gamequery/session"
	"github.com/k64z/gamequery/transport"
)

// Record is one outbound request submitted to the Messenger.
type Record struct {
	Dest     *net.UDPAddr
	Key      session.Key
	Payload  []byte
	Priority Priority
	Timeout  time.Duration
}

// Result is delivered exactly once on the channel returned by Submit.
type Result struct {
	TraceID string
	Value   any   // the decoded response handed to session.Record.OnMatch
	Err     error // non-nil on Transport/PacketSizeLimitExceeded/DuplicateSession/MalformedPayload/RequestTimedOut/Cancelled
}

// Decoder turns a raw inbound datagram into the typed value that will be
// delivered as Result.Value. It is supplied per-Submit because the wire
// format differs by protocol family; the messenger itself stays
// protocol-agnostic.
type Decoder func(data []byte) (any, error)

// Config tunes a Messenger instance. Zero values fall back to defaults.
type Config struct {
	QueueCapacity   int           // spec knob: messenger_queue_capacity, default 256
	AgingInterval   time.Duration // spec knob: priority_aging_ms, default agingInterval (1s)
	AgingSweep      time.Duration // how often the aging sweep runs, default AgingInterval/4
	LimiterPoolSize int           // max distinct Master destinations rate-limited at once
	Logger          *slog.Logger
}

// Messenger is the single-owner dispatch engine: one goroutine owns the
// priority queue and the session registry interaction; callers only ever
// talk to it through Submit and the channel it returns.
type Messenger struct {
	transport *transport.Transport
	sessions  *session.Registry
	limiters  *destinationLimiters
	logger    *slog.Logger

	submit chan *item
	seq    uint64

	agingInterval time.Duration
	agingSweep    time.Duration
	done          chan struct{}
}

// New creates a Messenger bound to t and reg. It starts its dispatch loop
// immediately; callers must call Close to release it.
func New(t *transport.Transport, reg *session.Registry, cfg Config) *Messenger {
	capacity := cfg.QueueCapacity
	if capacity <= 0 {
		capacity = 256
	}
	aging := cfg.AgingInterval
	if aging <= 0 {
		aging = agingInterval
	}
	sweep := cfg.AgingSweep
	if sweep <= 0 {
		sweep = aging / 4
	}
	poolSize := cfg.LimiterPoolSize
	if poolSize <= 0 {
		poolSize = 128
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m := &Messenger{
		transport:     t,
		sessions:      reg,
		limiters:      newDestinationLimiters(poolSize),
		logger:        logger,
		submit:        make(chan *item, capacity),
		agingInterval: aging,
		agingSweep:    sweep,
		done:          make(chan struct{}),
	}

	go m.dispatchLoop()
	return m
}

// Submit queues rec for dispatch and returns a channel that receives
// exactly one Result. decoder is applied to whatever datagram arrives
// matching rec.Key.
func (m *Messenger) Submit(ctx context.Context, rec Record, decoder Decoder) <-chan Result {
	result := make(chan Result, 1)
	it := &item{
		record:   rec,
		decoder:  decoder,
		result:   result,
		traceID:  uuid.NewString(),
		priority: rec.Priority,
	}

	select {
	case m.submit <- it:
	case <-ctx.Done():
		result <- Result{TraceID: it.traceID, Err: qerr.New(qerr.Cancelled, "messenger.Submit", ctx.Err())}
	case <-m.done:
		result <- Result{TraceID: it.traceID, Err: qerr.New(qerr.Transport, "messenger.Submit", net.ErrClosed)}
	}

	return result
}

// Close stops the dispatch loop. Queued-but-undispatched submissions are
// completed with a Cancelled error; already-dispatched ones still resolve
// normally through the session registry.
func (m *Messenger) Close() {
	close(m.done)
}

func (m *Messenger) dispatchLoop() {
	var queue priorityQueue
	heap.Init(&queue)

	ticker := time.NewTicker(m.agingSweep)
	defer ticker.Stop()

	for {
		if queue.Len() == 0 {
			select {
			case <-m.done:
				m.drain(&queue)
				return
			case it := <-m.submit:
				m.seqAndPush(&queue, it)
			case <-ticker.C:
				queue.promoteAged(time.Now(), m.agingInterval)
			}
			continue
		}

		select {
		case <-m.done:
			m.drain(&queue)
			return
		case it := <-m.submit:
			m.seqAndPush(&queue, it)
		case <-ticker.C:
			queue.promoteAged(time.Now(), m.agingInterval)
		default:
			next := heap.Pop(&queue).(*item)
			m.dispatch(next)
		}
	}
}

func (m *Messenger) seqAndPush(queue *priorityQueue, it *item) {
	m.seq++
	it.seq = m.seq
	it.queuedAt = time.Now()
	heap.Push(queue, it)
}

func (m *Messenger) drain(queue *priorityQueue) {
	for queue.Len() > 0 {
		it := heap.Pop(queue).(*item)
		it.result <- Result{TraceID: it.traceID, Err: qerr.New(qerr.Cancelled, "messenger", net.ErrClosed)}
	}
	for {
		select {
		case it := <-m.submit:
			it.result <- Result{TraceID: it.traceID, Err: qerr.New(qerr.Cancelled, "messenger", net.ErrClosed)}
		default:
			return
		}
	}
}

// dispatch sends one item's payload and registers its session. Master
// Server destinations are paced through a per-destination rate.Limiter;
// every other destination is sent immediately, per spec.
func (m *Messenger) dispatch(it *item) {
	if it.record.Key.Family == session.FamilyMaster {
		lim := m.limiters.get(it.record.Dest.String())
		lim.Wait(context.Background())
	}

	timeout := it.record.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	_, err := m.sessions.Register(it.record.Key, session.Record{
		OnMatch: func(raw any) {
			data, _ := raw.([]byte)
			value, decErr := it.decoder(data)
			if decErr != nil {
				it.result <- Result{TraceID: it.traceID, Err: qerr.New(qerr.MalformedPayload, "messenger.dispatch", decErr)}
				return
			}
			it.result <- Result{TraceID: it.traceID, Value: value}
		},
		OnExpire: func() {
			it.result <- Result{TraceID: it.traceID, Err: qerr.New(qerr.RequestTimedOut, "messenger.dispatch", context.DeadlineExceeded)}
		},
		OnCancel: func() {
			it.result <- Result{TraceID: it.traceID, Err: qerr.New(qerr.Cancelled, "messenger.dispatch", context.Canceled)}
		},
	}, timeout)

	if err != nil {
		it.result <- Result{TraceID: it.traceID, Err: qerr.New(qerr.DuplicateSession, "messenger.dispatch", err)}
		return
	}

	sendResult := m.transport.Send(context.Background(), it.record.Dest, it.record.Payload)
	go func() {
		sendErr := <-sendResult
		if sendErr == nil {
			return
		}
		// Only deliver the send failure if we win the race to take the
		// session; if it already matched or expired, that result stands.
		if _, ok := m.sessions.Take(it.record.Key); ok {
			m.logger.Warn("messenger: send failed", "dest", it.record.Dest, "key", it.record.Key, "err", sendErr)
			it.result <- Result{TraceID: it.traceID, Err: sendErr}
		}
	}()
}

// Deliver feeds a raw inbound datagram matching key into the session
// registry, completing the waiting Submit call if one exists. It is the
// glue the query facade's transport.OnReceive handler calls after
// classifying an inbound packet's session key.
func (m *Messenger) Deliver(key session.Key, data []byte) bool {
	rec, ok := m.sessions.Take(key)
	if !ok {
		return false
	}
	if rec.OnMatch != nil {
		rec.OnMatch(data)
	}
	return true
}
