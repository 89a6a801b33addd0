// Package transport implements the non-blocking datagram transport (C1):
// one shared UDP socket multiplexing requests to many destinations, plus a
// thin TCP stream wrapper for RCON's per-connection byte stream.
//
// Retransmission is never this package's job — UDP is fire-and-forget here;
// retry belongs to the messenger. This package only binds a socket, frames
// sends through the MTU cap, and dispatches inbound datagrams to a handler.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/k64z/gamequery/qerr"
)

// MaxDatagramBytes is the default outbound payload cap (spec: max_datagram_bytes).
const MaxDatagramBytes = 1400

// ReceiveHandler is invoked with every inbound datagram's source address and
// payload. It runs on the transport's single receive goroutine — handlers
// must not block.
type ReceiveHandler func(src *net.UDPAddr, data []byte)

// Transport is a single shared UDP socket. It has no notion of protocol
// family or session — that correlation lives in package session.
type Transport struct {
	conn      *net.UDPConn
	maxBytes  int
	sendQueue chan sendJob

	mu      sync.Mutex
	handler ReceiveHandler
	closed  bool
	done    chan struct{}
	wg      sync.WaitGroup
}

type sendJob struct {
	dest   *net.UDPAddr
	data   []byte
	result chan error
}

// Option configures a Transport at Open time.
type Option func(*config)

type config struct {
	localAddr *net.UDPAddr
	maxBytes  int
}

// WithLocalAddr binds to a specific local address instead of an ephemeral port.
func WithLocalAddr(addr *net.UDPAddr) Option {
	return func(c *config) { c.localAddr = addr }
}

// WithMaxDatagramBytes overrides the MTU cap (spec knob: max_datagram_bytes).
func WithMaxDatagramBytes(n int) Option {
	return func(c *config) { c.maxBytes = n }
}

// Open binds a UDP socket (an ephemeral port unless WithLocalAddr is given)
// and starts its receive loop.
func Open(opts ...Option) (*Transport, error) {
	cfg := config{maxBytes: MaxDatagramBytes}
	for _, opt := range opts {
		opt(&cfg)
	}

	conn, err := net.ListenUDP("udp", cfg.localAddr)
	if err != nil {
		return nil, qerr.New(qerr.Transport, "transport.Open", err)
	}

	t := &Transport{
		conn:      conn,
		maxBytes:  cfg.maxBytes,
		sendQueue: make(chan sendJob, 64),
		done:      make(chan struct{}),
	}

	t.wg.Add(2)
	go t.writeLoop()
	go t.receiveLoop()

	return t, nil
}

// LocalAddr returns the bound local address.
func (t *Transport) LocalAddr() *net.UDPAddr {
	return t.conn.LocalAddr().(*net.UDPAddr)
}

// OnReceive installs the sink invoked for every inbound datagram. It must be
// called before traffic is expected; a late install can race the receive
// loop and miss early packets, same caveat as any single-slot callback.
func (t *Transport) OnReceive(h ReceiveHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = h
}

// Send queues data for delivery to dest. A background writer goroutine
// drains the queue and the returned channel receives exactly one result
// once the OS has accepted (or rejected) the write. Send returns without
// waiting for the write while the 64-job send queue has room; when the
// queue is full, Send blocks until the writer frees a slot. Payloads over
// the MTU cap are rejected synchronously with PacketSizeLimitExceeded — the
// job is never queued. After Close, Send fails with a Transport error.
func (t *Transport) Send(_ context.Context, dest *net.UDPAddr, data []byte) <-chan error {
	result := make(chan error, 1)

	if len(data) > t.maxBytes {
		result <- qerr.New(qerr.PacketSizeLimitExceeded, "transport.Send",
			fmt.Errorf("payload %d bytes exceeds cap %d", len(data), t.maxBytes))
		return result
	}

	job := sendJob{dest: dest, data: data, result: result}

	// Holding mu across the enqueue means no job can slip into the queue
	// after Close has marked the transport closed and the writer has drained.
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		result <- qerr.New(qerr.Transport, "transport.Send", net.ErrClosed)
		return result
	}
	t.sendQueue <- job

	return result
}

func (t *Transport) writeLoop() {
	defer t.wg.Done()
	for {
		select {
		case job := <-t.sendQueue:
			_, err := t.conn.WriteToUDP(job.data, job.dest)
			if err != nil {
				job.result <- qerr.New(qerr.Transport, "transport.Send", err)
			} else {
				job.result <- nil
			}
		case <-t.done:
			// Drain whatever is already queued so no Send caller hangs.
			for {
				select {
				case job := <-t.sendQueue:
					job.result <- qerr.New(qerr.Transport, "transport.Send", net.ErrClosed)
				default:
					return
				}
			}
		}
	}
}

func (t *Transport) receiveLoop() {
	defer t.wg.Done()
	buf := make([]byte, 65535)

	for {
		n, src, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			select {
			case <-t.done:
				return
			default:
				continue
			}
		}

		t.mu.Lock()
		h := t.handler
		t.mu.Unlock()

		if h != nil {
			payload := make([]byte, n)
			copy(payload, buf[:n])
			h(src, payload)
		}
	}
}

// Close is idempotent. It drains outstanding sends with an error and makes
// future Send calls fail.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	close(t.done)
	err := t.conn.Close()
	t.wg.Wait()
	return err
}
