package query_test

import (
	"context"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/k64z/gamequery/master"
	"github.com/k64z/gamequery/query"
)

// fakeA2SServer answers A2S_INFO directly and demands a challenge before
// answering A2S_PLAYER or A2S_RULES, exercising the facade's handshake
// sub-loop for both families (each with its own challenge value, so a
// server that happens to have both outstanding at once can't be confused
// with one that only ever demands a single shared value).
func fakeA2SServer(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("ListenUDP() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	go func() {
		buf := make([]byte, 2048)
		for {
			n, src, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			data := buf[:n]
			if len(data) < 5 {
				continue
			}
			switch data[4] {
			case 'T':
				conn.WriteToUDP(buildInfoResponse(), src)
			case 'U':
				challenge := int32(data[5]) | int32(data[6])<<8 | int32(data[7])<<16 | int32(data[8])<<24
				if challenge == -1 {
					conn.WriteToUDP(buildChallengeResponse(4242), src)
					continue
				}
				if challenge == 4242 {
					conn.WriteToUDP(buildPlayerResponse(), src)
				}
			case 'V':
				challenge := int32(data[5]) | int32(data[6])<<8 | int32(data[7])<<16 | int32(data[8])<<24
				if challenge == -1 {
					conn.WriteToUDP(buildChallengeResponse(7777), src)
					continue
				}
				if challenge == 7777 {
					conn.WriteToUDP(buildRulesResponse(), src)
				}
			}
		}
	}()

	return conn
}

func buildInfoResponse() []byte {
	b := []byte{0xFF, 0xFF, 0xFF, 0xFF, 'I'}
	b = append(b, 17)                       // protocol
	b = append(b, []byte("Test Server\x00")...) // name
	b = append(b, []byte("de_dust2\x00")...)    // map
	b = append(b, []byte("cstrike\x00")...)     // folder
	b = append(b, []byte("Counter-Strike\x00")...)
	b = append(b, 0x40, 0x02) // app_id
	b = append(b, 5, 16, 0)   // players, max, bots
	b = append(b, 'd', 'l', 0, 1)
	b = append(b, []byte("1.0.0.0\x00")...)
	return b
}

func buildChallengeResponse(challenge int32) []byte {
	b := []byte{0xFF, 0xFF, 0xFF, 0xFF, 'A'}
	b = append(b, byte(challenge), byte(challenge>>8), byte(challenge>>16), byte(challenge>>24))
	return b
}

func buildPlayerResponse() []byte {
	b := []byte{0xFF, 0xFF, 0xFF, 0xFF, 'D', 1}
	b = append(b, 0)
	b = append(b, []byte("alice\x00")...)
	b = append(b, 10, 0, 0, 0) // score int32
	b = append(b, 0, 0, 0x20, 0x41) // duration float32 = 10.0
	return b
}

func buildRulesResponse() []byte {
	b := []byte{0xFF, 0xFF, 0xFF, 0xFF, 'E'}
	b = append(b, 1, 0) // rule count uint16 = 1
	b = append(b, []byte("mp_friendlyfire\x00")...)
	b = append(b, []byte("0\x00")...)
	return b
}

func TestQueryInfo(t *testing.T) {
	server := fakeA2SServer(t)

	c, err := query.New()
	if err != nil {
		t.Fatalf("query.New() error = %v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := c.QueryInfo(ctx, server.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatalf("QueryInfo() error = %v", err)
	}
	if resp.Name != "Test Server" {
		t.Fatalf("QueryInfo().Name = %q, want %q", resp.Name, "Test Server")
	}
	if resp.Map != "de_dust2" {
		t.Fatalf("QueryInfo().Map = %q, want %q", resp.Map, "de_dust2")
	}
}

func TestQueryPlayersWithChallenge(t *testing.T) {
	server := fakeA2SServer(t)

	c, err := query.New()
	if err != nil {
		t.Fatalf("query.New() error = %v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := c.QueryPlayers(ctx, server.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatalf("QueryPlayers() error = %v", err)
	}
	if len(resp.Players) != 1 || resp.Players[0].Name != "alice" {
		t.Fatalf("QueryPlayers() = %+v, want one player named alice", resp.Players)
	}
}

func TestQueryRulesWithChallenge(t *testing.T) {
	server := fakeA2SServer(t)

	c, err := query.New()
	if err != nil {
		t.Fatalf("query.New() error = %v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := c.QueryRules(ctx, server.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatalf("QueryRules() error = %v", err)
	}
	if got, want := resp.Rules["mp_friendlyfire"], "0"; got != want {
		t.Fatalf("QueryRules().Rules[mp_friendlyfire] = %q, want %q", got, want)
	}
}

// fakeMaster replies to a Master Server request with a single terminated page.
func fakeMaster(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("ListenUDP() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	go func() {
		buf := make([]byte, 2048)
		for {
			n, src, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			_ = buf[:n]
			resp := []byte{0xFF, 0xFF, 0xFF, 0xFF, 0x66, 0x0A}
			resp = append(resp, 1, 2, 3, 4, 0x69, 0x87) // 1.2.3.4:27015
			resp = append(resp, 0, 0, 0, 0, 0, 0)        // sentinel terminator
			conn.WriteToUDP(resp, src)
		}
	}()

	return conn
}

func TestBrowseMasterServer(t *testing.T) {
	server := fakeMaster(t)

	c, err := query.New()
	if err != nil {
		t.Fatalf("query.New() error = %v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var seen []string
	entries, err := c.BrowseMasterServer(ctx, server.LocalAddr().String(), master.RegionRest, "",
		func(addr netip.AddrPort, masterAddr string, cbErr error) {
			if cbErr != nil {
				t.Fatalf("callback error: %v", cbErr)
			}
			seen = append(seen, addr.String())
		})
	if err != nil {
		t.Fatalf("BrowseMasterServer() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("BrowseMasterServer() = %v, want 1 entry", entries)
	}
	if len(seen) != 1 {
		t.Fatalf("callback invoked %d times, want 1", len(seen))
	}
}
