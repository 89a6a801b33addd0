package rcon_test

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/k64z/gamequery/qerr"
	"github.com/k64z/gamequery/rcon"
)

// fakeServer accepts a single connection and hands incoming frames to
// handle, which writes back whatever raw bytes it wants.
func fakeServer(t *testing.T, handle func(conn net.Conn)) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		handle(conn)
	}()

	return ln.Addr().String()
}

func readOnePacket(t *testing.T, conn net.Conn) *rcon.Packet {
	t.Helper()
	header := make([]byte, 4)
	if _, err := readFull(conn, header); err != nil {
		t.Fatalf("read size prefix: %v", err)
	}
	size := binary.LittleEndian.Uint32(header)
	rest := make([]byte, size)
	if _, err := readFull(conn, rest); err != nil {
		t.Fatalf("read frame body: %v", err)
	}
	pkt, consumed, err := rcon.ReadPacket(append(header, rest...))
	if err != nil || consumed == 0 {
		t.Fatalf("ReadPacket() = %v, %d, %v", pkt, consumed, err)
	}
	return pkt
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// S5: an AUTH_RESPONSE with id -1 completes the Dial call with
// AuthenticationFailed.
func TestDialAuthFailure(t *testing.T) {
	addr := fakeServer(t, func(conn net.Conn) {
		authPkt := readOnePacket(t, conn)
		// Reject: AUTH_RESPONSE with id -1.
		conn.Write(rcon.Encode(rcon.Packet{ID: -1, Type: rcon.TypeAuthResponse, Body: ""}))
		_ = authPkt
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := rcon.Dial(ctx, addr, "wrong-password", rcon.Config{})
	if !qerr.IsAuthenticationFailed(err) {
		t.Fatalf("Dial() error = %v, want AuthenticationFailed", err)
	}
}

// S6: two RESPONSE_VALUE fragments sharing an id, then an empty terminator,
// reassemble into the concatenated body.
func TestCommandMultiPacketReassembly(t *testing.T) {
	addr := fakeServer(t, func(conn net.Conn) {
		authPkt := readOnePacket(t, conn)
		conn.Write(rcon.Encode(rcon.Packet{ID: authPkt.ID, Type: rcon.TypeAuthResponse, Body: ""}))

		cmdPkt := readOnePacket(t, conn)
		_ = readOnePacket(t, conn) // the empty follow-up command

		conn.Write(rcon.Encode(rcon.Packet{ID: cmdPkt.ID, Type: rcon.TypeResponseValue, Body: "hello "}))
		conn.Write(rcon.Encode(rcon.Packet{ID: cmdPkt.ID, Type: rcon.TypeResponseValue, Body: "world"}))
		conn.Write(rcon.Encode(rcon.Packet{ID: cmdPkt.ID, Type: rcon.TypeResponseValue, Body: ""}))
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, err := rcon.Dial(ctx, addr, "correct", rcon.Config{})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	body, err := conn.Command(ctx, "status")
	if err != nil {
		t.Fatalf("Command() error = %v", err)
	}
	if body != "hello world" {
		t.Fatalf("Command() = %q, want %q", body, "hello world")
	}
}

func TestPacketEncodeDecodeRoundTrip(t *testing.T) {
	p := rcon.Packet{ID: 7, Type: rcon.TypeExecCommand, Body: "status"}
	frame := rcon.Encode(p)

	got, consumed, err := rcon.ReadPacket(frame)
	if err != nil {
		t.Fatalf("ReadPacket() error = %v", err)
	}
	if consumed != len(frame) {
		t.Fatalf("consumed = %d, want %d", consumed, len(frame))
	}
	if got.ID != p.ID || got.Type != p.Type || got.Body != p.Body {
		t.Fatalf("ReadPacket() = %+v, want %+v", got, p)
	}
}

func TestReadPacketIncomplete(t *testing.T) {
	p := rcon.Packet{ID: 1, Type: rcon.TypeExecCommand, Body: "x"}
	frame := rcon.Encode(p)

	pkt, consumed, err := rcon.ReadPacket(frame[:len(frame)-1])
	if err != nil {
		t.Fatalf("ReadPacket() error = %v, want nil (incomplete)", err)
	}
	if pkt != nil || consumed != 0 {
		t.Fatalf("ReadPacket() = %v, %d, want nil, 0", pkt, consumed)
	}
}
