// Package steamid represents the SteamID64 a Source A2S_INFO response may
// optionally carry in its Extra Data Flags tail (EDF bit 0x10).
package steamid

import "strconv"

// SteamID is a Steam identifier in its 64-bit wire form, as decoded
// straight off an A2S_INFO response. It is kept as a thin typed uint64
// rather than unpacked into universe/type/instance/account-id fields: a
// server query client has no use for constructing or reformatting ids,
// only for reporting the one a server handed it.
type SteamID uint64

// String returns the SteamID in its canonical decimal form, e.g.
// "76561197960287930".
func (s SteamID) String() string {
	return strconv.FormatUint(uint64(s), 10)
}

// ParseOptional decodes a SteamID64 carried in an A2S_INFO EDF tail. Source
// servers that don't have a SteamID configured send 0; ok reports whether a
// non-zero id was present.
func ParseOptional(raw uint64) (id SteamID, ok bool) {
	if raw == 0 {
		return 0, false
	}
	return SteamID(raw), true
}
