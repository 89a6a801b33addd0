// Package master implements the Valve Master Server query protocol: the
// codec for its request/response frames (C2) and the seeded-pagination
// iteration loop that drives a full server-list crawl (C5).
//
// Unlike every other protocol in this module, Master Server response
// addresses are big-endian on the wire — called out here because it is
// the one place the library's otherwise-universal little-endian rule
// does not hold.
package master

import (
	"fmt"
	"net/netip"

	"github.com/k64z/gamequery/qerr"
)

// Region selects which Valve regional master server segment to query.
type Region byte

const (
	RegionUSEast       Region = 0x00
	RegionUSWest       Region = 0x01
	RegionSouthAmerica Region = 0x02
	RegionEurope       Region = 0x03
	RegionAsia         Region = 0x04
	RegionAustralia    Region = 0x05
	RegionMiddleEast   Region = 0x06
	RegionAfrica       Region = 0x07
	RegionRest         Region = 0xFF
)

const requestDiscriminator = 0x31

// responseHeader is the fixed preamble of a Master Server response:
// 0xFFFFFFFF 0x66 0x0A.
var responseHeader = [6]byte{0xFF, 0xFF, 0xFF, 0xFF, 0x66, 0x0A}

// Seed is the reserved sentinel 0.0.0.0:0, used both as the initial
// pagination cursor and as the list terminator. It is not the zero
// netip.AddrPort.
var Seed = netip.AddrPortFrom(netip.IPv4Unspecified(), 0)

// IsSentinel reports whether addr is the reserved 0.0.0.0:0 marker.
func IsSentinel(addr netip.AddrPort) bool {
	return addr == Seed
}

// Request is a single Master Server query page request.
type Request struct {
	Region Region
	Seed   netip.AddrPort
	Filter string // pre-rendered "\key\value\..." string, see Filter builder
}

// Encode renders the Master Server request frame:
// 0x31 <region> "<seed ip:port>\0" "<filter>\0".
func Encode(req Request) []byte {
	buf := []byte{requestDiscriminator, byte(req.Region)}
	buf = append(buf, []byte(req.Seed.String())...)
	buf = append(buf, 0)
	buf = append(buf, []byte(req.Filter)...)
	buf = append(buf, 0)
	return buf
}

// Response is one decoded Master Server page: an ordered list of server
// endpoints, in wire order, including any sentinel entries (the caller —
// specifically the iteration loop in loop.go — is responsible for
// terminator/echo handling per spec).
type Response struct {
	Entries []netip.AddrPort
}

// Decode parses a Master Server response page.
func Decode(b []byte) (*Response, error) {
	if len(b) < len(responseHeader) {
		return nil, qerr.New(qerr.MalformedPayload, "master.Decode", fmt.Errorf("response too short: %d bytes", len(b)))
	}
	for i, want := range responseHeader {
		if b[i] != want {
			return nil, qerr.New(qerr.MalformedPayload, "master.Decode",
				fmt.Errorf("bad header byte %d: got 0x%02X, want 0x%02X", i, b[i], want))
		}
	}

	body := b[len(responseHeader):]
	if len(body)%6 != 0 {
		return nil, qerr.New(qerr.MalformedPayload, "master.Decode",
			fmt.Errorf("entry section length %d is not a multiple of 6", len(body)))
	}

	entries := make([]netip.AddrPort, 0, len(body)/6)
	for i := 0; i < len(body); i += 6 {
		ip := netip.AddrFrom4([4]byte{body[i], body[i+1], body[i+2], body[i+3]})
		port := uint16(body[i+4])<<8 | uint16(body[i+5])
		entries = append(entries, netip.AddrPortFrom(ip, port))
	}

	return &Response{Entries: entries}, nil
}
