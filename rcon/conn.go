package rcon

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/k64z/gamequery/qerr"
	"github.com/k64z/gamequery/transport"
)

// State is a point in the per-connection RCON lifecycle (spec.md §3).
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateUnauthenticated
	StateAuthenticated
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateUnauthenticated:
		return "Unauthenticated"
	case StateAuthenticated:
		return "Authenticated"
	case StateClosed:
		return "Closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// defaultReassemblyTimeout is the spec knob rcon_reassembly_timeout_ms.
const defaultReassemblyTimeout = 10 * time.Second

// Config tunes a Conn. Zero values fall back to spec defaults.
type Config struct {
	DialTimeout       time.Duration // rcon_dial_timeout_ms, default 5000
	ReassemblyTimeout time.Duration // rcon_reassembly_timeout_ms, default 10000
	Logger            *slog.Logger
}

// pending is one outstanding command awaiting its RESPONSE_VALUE.
type pending struct {
	result chan Result
}

// Result is delivered exactly once per Command call.
type Result struct {
	Body string
	Err  error
}

// Conn is a single authenticated RCON connection. It owns a read loop
// goroutine (the sole reader off the wire) and a request-id-keyed pending
// map, the same single-owner/job-map shape the teacher's steamclient.go
// uses for its Steam CM job correlation, adapted to RCON's simpler
// per-connection id space instead of a 64-bit global job id.
type Conn struct {
	stream *transport.StreamConn
	logger *slog.Logger

	reassemblyTimeout time.Duration

	mu      sync.Mutex
	state   State
	pending map[int32]*pending
	buf     []byte
	frag    *reassembly

	closeOnce sync.Once
	done      chan struct{}
}

// Dial connects to addr, authenticates with password, and starts the read
// loop. It returns an error of Kind AuthenticationFailed if the server
// rejects the password (S5): the connection is closed before returning.
func Dial(ctx context.Context, addr, password string, cfg Config) (*Conn, error) {
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	reassemblyTimeout := cfg.ReassemblyTimeout
	if reassemblyTimeout <= 0 {
		reassemblyTimeout = defaultReassemblyTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	stream, err := transport.DialStream(ctx, addr, dialTimeout)
	if err != nil {
		return nil, err
	}

	c := &Conn{
		stream:            stream,
		logger:            logger,
		reassemblyTimeout: reassemblyTimeout,
		state:             StateConnecting,
		pending:           make(map[int32]*pending),
		done:              make(chan struct{}),
	}

	go c.readLoop()

	if err := c.authenticate(ctx, password); err != nil {
		c.Close()
		return nil, err
	}

	return c, nil
}

func (c *Conn) authenticate(ctx context.Context, password string) error {
	c.setState(StateUnauthenticated)

	id := c.newRequestID()
	result := c.register(id)

	if err := c.send(Packet{ID: id, Type: TypeAuth, Body: password}); err != nil {
		c.forget(id)
		return err
	}

	select {
	case res := <-result:
		if res.Err != nil {
			return res.Err
		}
		c.setState(StateAuthenticated)
		return nil
	case <-ctx.Done():
		c.forget(id)
		return qerr.New(qerr.Cancelled, "rcon.Dial", ctx.Err())
	}
}

// Command sends an EXECCOMMAND and returns its reassembled response body.
// Per the terminator trick, it follows the command with an empty command
// sent under the same request id — the server's empty reply to that
// follow-up is what signals the real response is complete.
func (c *Conn) Command(ctx context.Context, cmd string) (string, error) {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()
	if state != StateAuthenticated {
		return "", qerr.New(qerr.Transport, "rcon.Command", fmt.Errorf("connection not authenticated (state=%s)", state))
	}

	id := c.newRequestID()
	result := c.register(id)

	if err := c.send(Packet{ID: id, Type: TypeExecCommand, Body: cmd}); err != nil {
		c.forget(id)
		return "", err
	}
	// The empty follow-up command shares the same id: its own empty
	// RESPONSE_VALUE is what the read loop recognizes as the terminator
	// for a multi-packet reassembly keyed by id.
	if err := c.send(Packet{ID: id, Type: TypeExecCommand, Body: ""}); err != nil {
		c.forget(id)
		return "", err
	}

	select {
	case res := <-result:
		return res.Body, res.Err
	case <-ctx.Done():
		c.forget(id)
		return "", qerr.New(qerr.Cancelled, "rcon.Command", ctx.Err())
	case <-c.done:
		return "", qerr.New(qerr.Transport, "rcon.Command", fmt.Errorf("connection closed"))
	}
}

func (c *Conn) register(id int32) <-chan Result {
	ch := make(chan Result, 1)
	c.mu.Lock()
	c.pending[id] = &pending{result: ch}
	c.mu.Unlock()
	return ch
}

func (c *Conn) forget(id int32) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Conn) take(id int32) (*pending, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	return p, ok
}

func (c *Conn) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// State reports the connection's current lifecycle state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Conn) send(p Packet) error {
	return c.stream.Write(Encode(p))
}

func (c *Conn) newRequestID() int32 {
	// Positive, non-zero: -1 is reserved for auth failure (spec §4.6).
	return rand.Int31n(1<<30) + 1
}

// readLoop is the sole reader off the TCP stream: it accumulates bytes,
// decodes complete frames, reassembles multi-packet RESPONSE_VALUEs, and
// completes the matching pending entry. It owns c.buf and c.frag so no
// other goroutine touches the decode state.
func (c *Conn) readLoop() {
	reader := c.stream.Reader()
	chunk := make([]byte, 4096)

	for {
		n, err := reader.Read(chunk)
		if n > 0 {
			c.buf = append(c.buf, chunk[:n]...)
			c.drainFrames()
		}
		if err != nil {
			c.failAllPending(qerr.New(qerr.Transport, "rcon.readLoop", err))
			c.setState(StateClosed)
			return
		}
	}
}

func (c *Conn) drainFrames() {
	for {
		pkt, consumed, err := ReadPacket(c.buf)
		if err != nil {
			c.failAllPending(err)
			// A malformed frame leaves the stream unframeable; closing it
			// makes the read loop exit and move the state to Closed.
			c.Close()
			return
		}
		if consumed == 0 {
			return
		}
		c.buf = c.buf[consumed:]
		c.handlePacket(pkt)
	}
}

func (c *Conn) handlePacket(pkt *Packet) {
	if pkt.Type == TypeAuth {
		// Servers never send type 3 inbound; ignore defensively.
		return
	}

	if c.State() == StateUnauthenticated {
		if pkt.Type != TypeAuthResponse {
			// The server's mandatory empty RESPONSE_VALUE ack that precedes
			// AUTH_RESPONSE; it carries no information worth reassembling.
			return
		}
		c.completeAuth(pkt)
		return
	}

	c.completeCommand(pkt)
}

func (c *Conn) completeAuth(pkt *Packet) {
	if pkt.ID == authFailureID {
		// The server never echoes our real request id on failure, so there
		// is nothing to take(); fail whatever auth call is outstanding.
		c.failAllPending(qerr.New(qerr.AuthenticationFailed, "rcon.Dial", fmt.Errorf("authentication refused")))
		return
	}
	if p, ok := c.take(pkt.ID); ok {
		p.result <- Result{}
	}
}

func (c *Conn) completeCommand(pkt *Packet) {
	c.mu.Lock()
	frag := c.frag
	if frag != nil && frag.id == pkt.ID && frag.stale(c.reassemblyTimeout) {
		frag = nil
		c.frag = nil
	}
	c.mu.Unlock()

	if pkt.Body == "" {
		// Terminator: the command that generated frag (or, if this is the
		// first packet for this id, an immediately-empty response) is done.
		c.mu.Lock()
		var body string
		if c.frag != nil && c.frag.id == pkt.ID {
			body = string(bytes.TrimRight(c.frag.body, "\x00"))
			c.frag = nil
		}
		c.mu.Unlock()

		if p, ok := c.take(pkt.ID); ok {
			p.result <- Result{Body: body}
		}
		return
	}

	c.mu.Lock()
	if c.frag == nil || c.frag.id != pkt.ID {
		c.frag = newReassembly(pkt.ID)
	}
	c.frag.append(pkt)
	c.mu.Unlock()
}

func (c *Conn) failAllPending(err error) {
	c.mu.Lock()
	pendings := c.pending
	c.pending = make(map[int32]*pending)
	c.mu.Unlock()

	for _, p := range pendings {
		p.result <- Result{Err: err}
	}
}

// Close closes the underlying connection. Idempotent.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.stream.Close()
	})
	return err
}
