// Package a2s implements the Source Engine Query codec: A2S_INFO,
// A2S_PLAYER and A2S_RULES requests and responses.
//
// Every A2S message is a single UDP datagram prefixed with the four-byte
// "simple" header 0xFFFFFFFF, followed by a one-byte discriminator. Numbers
// are little-endian, strings are NUL-terminated — the general wire rules
// from the codec layer, applied here with no protocol-specific exceptions
// (unlike package master, whose response addresses are big-endian).
package a2s

import (
	"fmt"

	"github.com/k64z/gamequery/qerr"
	"github.com/k64z/gamequery/steamid"
	"github.com/k64z/gamequery/wire"
)

var simpleHeader = [4]byte{0xFF, 0xFF, 0xFF, 0xFF}

// Discriminators for the Source Engine Query family.
const (
	reqInfo         byte = 'T' // 0x54
	reqPlayer       byte = 'U' // 0x55
	reqRules        byte = 'V' // 0x56
	respInfo        byte = 'I' // 0x49
	respPlayer      byte = 'D' // 0x44
	respRules       byte = 'E' // 0x45
	respChallenge   byte = 'A' // 0x41
	infoQueryString      = "Source Engine Query\x00"
)

// NeedsChallenge reports whether b decodes as an S2C_CHALLENGE response
// carrying the 4-byte challenge a caller must echo back in a second
// A2S_PLAYER or A2S_RULES request.
func NeedsChallenge(b []byte) (challenge int32, ok bool) {
	r := wire.NewReader(b)
	if _, err := readHeader(r); err != nil {
		return 0, false
	}
	disc, err := r.Byte()
	if err != nil || disc != respChallenge {
		return 0, false
	}
	c, err := r.Int32()
	if err != nil {
		return 0, false
	}
	return c, true
}

func readHeader(r *wire.Reader) (struct{}, error) {
	for _, want := range simpleHeader {
		got, err := r.Byte()
		if err != nil {
			return struct{}{}, err
		}
		if got != want {
			return struct{}{}, fmt.Errorf("a2s: bad header byte 0x%02X", got)
		}
	}
	return struct{}{}, nil
}

// --- A2S_INFO ---------------------------------------------------------

// InfoRequest has no parameters beyond the fixed query string.
type InfoRequest struct{}

// EncodeInfoRequest renders the A2S_INFO request frame.
func EncodeInfoRequest(InfoRequest) []byte {
	w := wire.NewWriter()
	w.Raw(simpleHeader[:])
	w.Byte(reqInfo)
	w.Raw([]byte(infoQueryString))
	return w.Bytes()
}

// InfoResponse is the decoded A2S_INFO reply.
type InfoResponse struct {
	Protocol    byte
	Name        string
	Map         string
	Folder      string
	Game        string
	AppID       uint16
	Players     byte
	MaxPlayers  byte
	Bots        byte
	ServerType  byte // 'd' dedicated, 'l' listen, 'p' SourceTV relay
	Environment byte // 'l' Linux, 'w' Windows, 'm'/'o' Mac
	Visibility  byte // 0 public, 1 private
	VAC         byte // 0 unsecured, 1 secured
	Version     string
	Port         uint16 // EDF 0x80
	SteamID      steamid.SteamID
	HasSteamID   bool   // EDF 0x10
	SourceTVPort uint16 // EDF 0x40
	SourceTVName string // EDF 0x40
	Keywords     string // EDF 0x20
	GameID       uint64 // EDF 0x01
}

const (
	edfPort      = 0x80
	edfSteamID   = 0x10
	edfSourceTV  = 0x40
	edfKeywords  = 0x20
	edfGameID    = 0x01
)

// DecodeInfoResponse parses an A2S_INFO reply. Decoding is total: any
// malformed input yields a *qerr.Error, never a panic.
func DecodeInfoResponse(b []byte) (*InfoResponse, error) {
	r := wire.NewReader(b)
	if _, err := readHeader(r); err != nil {
		return nil, qerr.New(qerr.MalformedPayload, "a2s.DecodeInfoResponse", err)
	}

	disc, err := r.Byte()
	if err != nil {
		return nil, qerr.New(qerr.MalformedPayload, "a2s.DecodeInfoResponse", err)
	}
	if disc != respInfo {
		return nil, qerr.New(qerr.UnrecognizedMessage, "a2s.DecodeInfoResponse",
			fmt.Errorf("discriminator 0x%02X is not A2S_INFO", disc))
	}

	var resp InfoResponse
	fields := []struct {
		name string
		fn   func() error
	}{
		{"protocol", func() (e error) { resp.Protocol, e = r.Byte(); return }},
		{"name", func() (e error) { resp.Name, e = r.CString(); return }},
		{"map", func() (e error) { resp.Map, e = r.CString(); return }},
		{"folder", func() (e error) { resp.Folder, e = r.CString(); return }},
		{"game", func() (e error) { resp.Game, e = r.CString(); return }},
		{"app_id", func() (e error) { resp.AppID, e = r.Uint16(); return }},
		{"players", func() (e error) { resp.Players, e = r.Byte(); return }},
		{"max_players", func() (e error) { resp.MaxPlayers, e = r.Byte(); return }},
		{"bots", func() (e error) { resp.Bots, e = r.Byte(); return }},
		{"server_type", func() (e error) { resp.ServerType, e = r.Byte(); return }},
		{"environment", func() (e error) { resp.Environment, e = r.Byte(); return }},
		{"visibility", func() (e error) { resp.Visibility, e = r.Byte(); return }},
		{"vac", func() (e error) { resp.VAC, e = r.Byte(); return }},
	}
	for _, f := range fields {
		if err := f.fn(); err != nil {
			return nil, qerr.New(qerr.MalformedPayload, "a2s.DecodeInfoResponse", fmt.Errorf("%s: %w", f.name, err))
		}
	}

	resp.Version, err = r.CString()
	if err != nil {
		return nil, qerr.New(qerr.MalformedPayload, "a2s.DecodeInfoResponse", fmt.Errorf("version: %w", err))
	}

	if r.Len() > 0 {
		edf, err := r.Byte()
		if err != nil {
			return nil, qerr.New(qerr.MalformedPayload, "a2s.DecodeInfoResponse", fmt.Errorf("edf: %w", err))
		}

		if edf&edfPort != 0 {
			if resp.Port, err = r.Uint16(); err != nil {
				return nil, qerr.New(qerr.MalformedPayload, "a2s.DecodeInfoResponse", fmt.Errorf("edf port: %w", err))
			}
		}
		if edf&edfSteamID != 0 {
			raw, err := r.Uint64()
			if err != nil {
				return nil, qerr.New(qerr.MalformedPayload, "a2s.DecodeInfoResponse", fmt.Errorf("edf steamid: %w", err))
			}
			resp.SteamID, resp.HasSteamID = steamid.ParseOptional(raw)
		}
		if edf&edfSourceTV != 0 {
			if resp.SourceTVPort, err = r.Uint16(); err != nil {
				return nil, qerr.New(qerr.MalformedPayload, "a2s.DecodeInfoResponse", fmt.Errorf("edf sourcetv port: %w", err))
			}
			if resp.SourceTVName, err = r.CString(); err != nil {
				return nil, qerr.New(qerr.MalformedPayload, "a2s.DecodeInfoResponse", fmt.Errorf("edf sourcetv name: %w", err))
			}
		}
		if edf&edfKeywords != 0 {
			if resp.Keywords, err = r.CString(); err != nil {
				return nil, qerr.New(qerr.MalformedPayload, "a2s.DecodeInfoResponse", fmt.Errorf("edf keywords: %w", err))
			}
		}
		if edf&edfGameID != 0 {
			if resp.GameID, err = r.Uint64(); err != nil {
				return nil, qerr.New(qerr.MalformedPayload, "a2s.DecodeInfoResponse", fmt.Errorf("edf game id: %w", err))
			}
		}
	}

	return &resp, nil
}
