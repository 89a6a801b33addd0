package master

import (
	"strconv"
	"strings"
)

// Filter builds the backslash-delimited key/value filter string Master
// Server requests carry, e.g. "\gamedir\cstrike\empty\1". The wire grammar
// is fixed by spec.md; this builder is the caller-facing ergonomics a
// complete client adds on top of it.
type Filter struct {
	pairs []string
}

// NewFilter returns an empty filter (matches every server).
func NewFilter() *Filter {
	return &Filter{}
}

func (f *Filter) kv(key, value string) *Filter {
	f.pairs = append(f.pairs, key, value)
	return f
}

// Game restricts results to a specific mod/game directory.
func (f *Filter) Game(dir string) *Filter { return f.kv("gamedir", dir) }

// AppID restricts results to a specific Steam AppID.
func (f *Filter) AppID(id uint32) *Filter { return f.kv("appid", strconv.FormatUint(uint64(id), 10)) }

// Map restricts results to servers currently running the given map.
func (f *Filter) Map(name string) *Filter { return f.kv("map", name) }

// Dedicated restricts results to dedicated (true) or listen (false) servers.
func (f *Filter) Dedicated(yes bool) *Filter { return f.kv("dedicated", boolDigit(yes)) }

// Secure restricts results to VAC-secured (true) or unsecured (false) servers.
func (f *Filter) Secure(yes bool) *Filter { return f.kv("secure", boolDigit(yes)) }

// Empty restricts results to servers with at least one human player.
func (f *Filter) Empty() *Filter { return f.kv("empty", "1") }

// Full restricts results to servers with at least one free slot.
func (f *Filter) Full() *Filter { return f.kv("full", "1") }

// String renders the filter to its wire form.
func (f *Filter) String() string {
	if len(f.pairs) == 0 {
		return ""
	}
	return "\\" + strings.Join(f.pairs, "\\")
}

func boolDigit(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
