package a2s

import (
	"fmt"

	"github.com/k64z/gamequery/qerr"
	"github.com/k64z/gamequery/wire"
)

// PlayerRequest carries the challenge obtained from a prior S2C_CHALLENGE
// response, or 0xFFFFFFFF ("-1") on the first attempt.
type PlayerRequest struct {
	Challenge int32
}

// EncodePlayerRequest renders the A2S_PLAYER request frame.
func EncodePlayerRequest(req PlayerRequest) []byte {
	w := wire.NewWriter()
	w.Raw(simpleHeader[:])
	w.Byte(reqPlayer)
	w.Int32(req.Challenge)
	return w.Bytes()
}

// Player is one entry of an A2S_PLAYER response.
type Player struct {
	Index    byte
	Name     string
	Score    int32
	Duration float32 // seconds connected
}

// PlayerResponse is the decoded A2S_PLAYER reply.
type PlayerResponse struct {
	Players []Player
}

// DecodePlayerResponse parses an A2S_PLAYER reply.
func DecodePlayerResponse(b []byte) (*PlayerResponse, error) {
	r := wire.NewReader(b)
	if _, err := readHeader(r); err != nil {
		return nil, qerr.New(qerr.MalformedPayload, "a2s.DecodePlayerResponse", err)
	}

	disc, err := r.Byte()
	if err != nil {
		return nil, qerr.New(qerr.MalformedPayload, "a2s.DecodePlayerResponse", err)
	}
	if disc != respPlayer {
		return nil, qerr.New(qerr.UnrecognizedMessage, "a2s.DecodePlayerResponse",
			fmt.Errorf("discriminator 0x%02X is not A2S_PLAYER", disc))
	}

	count, err := r.Byte()
	if err != nil {
		return nil, qerr.New(qerr.MalformedPayload, "a2s.DecodePlayerResponse", fmt.Errorf("count: %w", err))
	}

	players := make([]Player, 0, count)
	for i := 0; i < int(count); i++ {
		var p Player
		if p.Index, err = r.Byte(); err != nil {
			return nil, qerr.New(qerr.MalformedPayload, "a2s.DecodePlayerResponse", fmt.Errorf("player %d index: %w", i, err))
		}
		if p.Name, err = r.CString(); err != nil {
			return nil, qerr.New(qerr.MalformedPayload, "a2s.DecodePlayerResponse", fmt.Errorf("player %d name: %w", i, err))
		}
		if p.Score, err = r.Int32(); err != nil {
			return nil, qerr.New(qerr.MalformedPayload, "a2s.DecodePlayerResponse", fmt.Errorf("player %d score: %w", i, err))
		}
		if p.Duration, err = r.Float32(); err != nil {
			return nil, qerr.New(qerr.MalformedPayload, "a2s.DecodePlayerResponse", fmt.Errorf("player %d duration: %w", i, err))
		}
		players = append(players, p)
	}

	return &PlayerResponse{Players: players}, nil
}
