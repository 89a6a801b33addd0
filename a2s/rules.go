package a2s

import (
	"fmt"

	"github.com/k64z/gamequery/qerr"
	"github.com/k64z/gamequery/wire"
)

// RulesRequest carries the challenge obtained from a prior S2C_CHALLENGE
// response, or 0xFFFFFFFF ("-1") on the first attempt.
type RulesRequest struct {
	Challenge int32
}

// EncodeRulesRequest renders the A2S_RULES request frame.
func EncodeRulesRequest(req RulesRequest) []byte {
	w := wire.NewWriter()
	w.Raw(simpleHeader[:])
	w.Byte(reqRules)
	w.Int32(req.Challenge)
	return w.Bytes()
}

// RulesResponse is the decoded A2S_RULES reply: the cvar-style key/value
// pairs the server chooses to publish, held in a map (wire order is not
// kept).
type RulesResponse struct {
	Rules map[string]string
}

// DecodeRulesResponse parses an A2S_RULES reply.
func DecodeRulesResponse(b []byte) (*RulesResponse, error) {
	r := wire.NewReader(b)
	if _, err := readHeader(r); err != nil {
		return nil, qerr.New(qerr.MalformedPayload, "a2s.DecodeRulesResponse", err)
	}

	disc, err := r.Byte()
	if err != nil {
		return nil, qerr.New(qerr.MalformedPayload, "a2s.DecodeRulesResponse", err)
	}
	if disc != respRules {
		return nil, qerr.New(qerr.UnrecognizedMessage, "a2s.DecodeRulesResponse",
			fmt.Errorf("discriminator 0x%02X is not A2S_RULES", disc))
	}

	count, err := r.Uint16()
	if err != nil {
		return nil, qerr.New(qerr.MalformedPayload, "a2s.DecodeRulesResponse", fmt.Errorf("count: %w", err))
	}

	rules := make(map[string]string, count)
	for i := 0; i < int(count); i++ {
		key, err := r.CString()
		if err != nil {
			return nil, qerr.New(qerr.MalformedPayload, "a2s.DecodeRulesResponse", fmt.Errorf("rule %d key: %w", i, err))
		}
		value, err := r.CString()
		if err != nil {
			return nil, qerr.New(qerr.MalformedPayload, "a2s.DecodeRulesResponse", fmt.Errorf("rule %d value: %w", i, err))
		}
		rules[key] = value
	}

	return &RulesResponse{Rules: rules}, nil
}
