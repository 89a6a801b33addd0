package rcon

import "time"

// reassembly accumulates RESPONSE_VALUE fragments sharing a request id
// until the empty-follow-up-command terminator arrives. Source servers
// split large responses across several packets and signal the end by
// replying to a trailing empty command with an empty RESPONSE_VALUE; see
// spec.md's S6 scenario and Design Notes on reliability of this trick.
type reassembly struct {
	id      int32
	body    []byte
	started time.Time
}

func newReassembly(id int32) *reassembly {
	return &reassembly{id: id, started: time.Now()}
}

func (r *reassembly) append(p *Packet) {
	r.body = append(r.body, p.Body...)
}

// stale reports whether this reassembly has been open longer than timeout,
// the safety net spec.md mandates since the terminator trick is a community
// convention some servers don't honor.
func (r *reassembly) stale(timeout time.Duration) bool {
	return time.Since(r.started) > timeout
}
