// Package rcon implements the Source RCON authenticated TCP stream (C2
// codec + C6 state machine): packet framing, the AUTH handshake, and
// multi-packet response reassembly via the empty-follow-up-command
// terminator convention.
package rcon

import (
	"encoding/binary"
	"fmt"

	"github.com/k64z/gamequery/qerr"
)

// Packet types, per spec.md §6.
const (
	TypeResponseValue int32 = 0
	TypeExecCommand   int32 = 2
	TypeAuthResponse  int32 = 2 // the server echoes type 2 for both; distinguished by request flow, not wire value
	TypeAuth          int32 = 3
)

// authFailureID is the request id a server sends back in AUTH_RESPONSE to
// signal a rejected password.
const authFailureID int32 = -1

// headerLen is id|type, the fixed part of an RCON frame that its size
// field counts (the size field itself is not counted).
const headerLen = 4 + 4 // id + type, not counting size itself

// Packet is one decoded RCON frame.
type Packet struct {
	ID   int32
	Type int32
	Body string
}

// Encode renders p as a wire frame: size:i32 | id:i32 | type:i32 | body\0 | \0.
func Encode(p Packet) []byte {
	body := []byte(p.Body)
	// size counts id(4) + type(4) + body + NUL + trailing NUL.
	size := int32(headerLen + len(body) + 2)

	buf := make([]byte, 0, 4+int(size))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(size))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(p.ID))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(p.Type))
	buf = append(buf, body...)
	buf = append(buf, 0, 0)
	return buf
}

// ReadPacket decodes exactly one frame from buf, returning the packet and
// the number of bytes consumed. It returns (nil, 0, nil) if buf does not
// yet hold a complete frame — the caller should read more and retry; this
// keeps the decoder total over partial TCP reads instead of panicking.
func ReadPacket(buf []byte) (*Packet, int, error) {
	if len(buf) < 4 {
		return nil, 0, nil
	}
	size := int32(binary.LittleEndian.Uint32(buf))
	if size < headerLen+2 {
		return nil, 0, qerr.New(qerr.MalformedPayload, "rcon.ReadPacket", fmt.Errorf("frame size %d too small", size))
	}
	total := 4 + int(size)
	if len(buf) < total {
		return nil, 0, nil
	}

	id := int32(binary.LittleEndian.Uint32(buf[4:8]))
	typ := int32(binary.LittleEndian.Uint32(buf[8:12]))

	bodyEnd := total - 2 // strip the two trailing NULs
	if bodyEnd < 12 {
		return nil, 0, qerr.New(qerr.MalformedPayload, "rcon.ReadPacket", fmt.Errorf("frame size %d leaves no room for body terminators", size))
	}
	body := string(buf[12:bodyEnd])

	return &Packet{ID: id, Type: typ, Body: body}, total, nil
}
