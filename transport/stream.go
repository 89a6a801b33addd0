package transport

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/k64z/gamequery/qerr"
)

// StreamConn wraps a single TCP connection used by RCON. Unlike the shared
// UDP Transport, one StreamConn belongs to exactly one caller — RCON
// sockets are per remote endpoint and are not shared across commands from
// different callers (spec §5), so there is no multiplexed send queue here:
// writes are serialized with a plain mutex, same as the teacher's tcpConn.
type StreamConn struct {
	conn net.Conn
	addr string
	mu   sync.Mutex
}

// DialStream opens a TCP connection to addr with the given dial deadline.
func DialStream(ctx context.Context, addr string, dialTimeout time.Duration) (*StreamConn, error) {
	dialCtx := ctx
	if dialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, dialTimeout)
		defer cancel()
	}

	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return nil, qerr.New(qerr.Transport, "transport.DialStream", err)
	}

	return &StreamConn{conn: conn, addr: addr}, nil
}

// Write sends a fully framed message. Serialized against concurrent writers.
func (s *StreamConn) Write(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.conn.Write(data)
	return err
}

// Reader exposes the underlying net.Conn for frame-aware reads; RCON's
// packet framing (size-prefixed, possibly split across TCP segments) is a
// codec-layer concern, not this transport's.
func (s *StreamConn) Reader() net.Conn { return s.conn }

// RemoteAddr returns the dialed address.
func (s *StreamConn) RemoteAddr() string { return s.addr }

// Close closes the underlying connection.
func (s *StreamConn) Close() error { return s.conn.Close() }

// SetDeadline forwards to the underlying connection.
func (s *StreamConn) SetDeadline(t time.Time) error { return s.conn.SetDeadline(t) }
