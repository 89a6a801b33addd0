// Package query is the external-collaborator facade: a thin Client that
// wires package transport, session, messenger, a2s, master and rcon into
// the handful of calls most callers actually want — QueryInfo,
// QueryPlayers, QueryRules, BrowseMasterServer, DialRCON — without
// exposing the dispatch machinery underneath.
package query

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/netip"
	"time"

	"github.com/k64z/gamequery/a2s"
	"github.com/k64z/gamequery/master"
	"github.com/k64z/gamequery/messenger"
	"github.com/k64z/gamequery/qerr"
	"github.com/k64z/gamequery/rcon"
	"github.com/k64z/gamequery/session"
	"github.com/k64z/gamequery/steamapi"
	"github.com/k64z/gamequery/transport"
)

// errSteamAPIDisabled is returned by the Steam Web API complement methods
// when the Client was built without WithSteamAPIKey.
var errSteamAPIDisabled = errors.New("query: steam web api not configured, use WithSteamAPIKey")

type config struct {
	logger                *slog.Logger
	requestTimeout        time.Duration
	masterPacingDelay     time.Duration
	maxDatagramBytes      int
	rconReassemblyTimeout time.Duration
	rconDialTimeout       time.Duration
	priorityAging         time.Duration
	messengerQueueCap     int
	localAddr             *net.UDPAddr
	steamAPIKey           string
}

// Option configures a Client.
type Option func(*config)

// WithLogger sets the structured logger handed to the messenger and to
// RCON connections; the transport does not log.
func WithLogger(l *slog.Logger) Option { return func(c *config) { c.logger = l } }

// WithRequestTimeout overrides request_timeout_ms (default 3000ms).
func WithRequestTimeout(d time.Duration) Option { return func(c *config) { c.requestTimeout = d } }

// WithMasterPacingDelay overrides master_pacing_delay_ms (default 13ms).
func WithMasterPacingDelay(d time.Duration) Option {
	return func(c *config) { c.masterPacingDelay = d }
}

// WithMaxDatagramBytes overrides max_datagram_bytes (default 1400).
func WithMaxDatagramBytes(n int) Option { return func(c *config) { c.maxDatagramBytes = n } }

// WithRCONReassemblyTimeout overrides rcon_reassembly_timeout_ms (default 10000ms).
func WithRCONReassemblyTimeout(d time.Duration) Option {
	return func(c *config) { c.rconReassemblyTimeout = d }
}

// WithRCONDialTimeout overrides rcon_dial_timeout_ms (default 5000ms).
func WithRCONDialTimeout(d time.Duration) Option { return func(c *config) { c.rconDialTimeout = d } }

// WithPriorityAgingMS overrides priority_aging_ms (default 1000ms).
func WithPriorityAgingMS(d time.Duration) Option { return func(c *config) { c.priorityAging = d } }

// WithMessengerQueueCapacity overrides messenger_queue_capacity (default 256).
func WithMessengerQueueCapacity(n int) Option { return func(c *config) { c.messengerQueueCap = n } }

// WithLocalAddr binds the shared UDP socket to a specific local address
// instead of an ephemeral port.
func WithLocalAddr(addr *net.UDPAddr) Option { return func(c *config) { c.localAddr = addr } }

// WithSteamAPIKey enables the optional Steam Web API complement
// (GetServerList, ResolveVanityURL) alongside the UDP query core. Without
// it, those two methods return an error rather than hitting the API
// unauthenticated.
func WithSteamAPIKey(key string) Option { return func(c *config) { c.steamAPIKey = key } }

// Client is the facade over the async request/response core. One Client
// owns one shared UDP socket; RCON connections are dialed separately per
// target since they are not multiplexed (spec §5).
type Client struct {
	cfg       config
	transport *transport.Transport
	sessions  *session.Registry
	messenger *messenger.Messenger
	steamAPI  *steamapi.Client // nil unless WithSteamAPIKey was given

	// masterAddr is set by BrowseMasterServer for QueryPage's use; one
	// Client only ever drives one Master Server crawl at a time.
	masterAddr string
}

// New opens the shared UDP socket and starts the messenger's dispatch loop.
func New(opts ...Option) (*Client, error) {
	cfg := config{
		logger:                slog.Default(),
		requestTimeout:        3 * time.Second,
		masterPacingDelay:     13 * time.Millisecond,
		maxDatagramBytes:      transport.MaxDatagramBytes,
		rconReassemblyTimeout: 10 * time.Second,
		rconDialTimeout:       5 * time.Second,
		priorityAging:         time.Second,
		messengerQueueCap:     256,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	var tOpts []transport.Option
	tOpts = append(tOpts, transport.WithMaxDatagramBytes(cfg.maxDatagramBytes))
	if cfg.localAddr != nil {
		tOpts = append(tOpts, transport.WithLocalAddr(cfg.localAddr))
	}

	t, err := transport.Open(tOpts...)
	if err != nil {
		return nil, err
	}

	reg := session.New()
	m := messenger.New(t, reg, messenger.Config{
		QueueCapacity: cfg.messengerQueueCap,
		AgingInterval: cfg.priorityAging,
		Logger:        cfg.logger,
	})

	c := &Client{cfg: cfg, transport: t, sessions: reg, messenger: m}
	t.OnReceive(c.onReceive)

	if cfg.steamAPIKey != "" {
		api, err := steamapi.New(steamapi.WithKey(cfg.steamAPIKey))
		if err != nil {
			t.Close()
			return nil, err
		}
		c.steamAPI = api
	}

	return c, nil
}

// Close releases the shared UDP socket and stops the dispatch loop.
func (c *Client) Close() error {
	c.messenger.Close()
	return c.transport.Close()
}

// onReceive classifies an inbound datagram by its session family and hands
// it to the messenger for correlation. A2S and Master Server frames are
// told apart by their fixed headers and discriminator bytes; a datagram
// matching none of them is dropped rather than misrouted.
func (c *Client) onReceive(src *net.UDPAddr, data []byte) {
	addr := src.String()

	if classifyChallenge(data) {
		// S2C_CHALLENGE carries no indication of which family it answers
		// (spec §4.2); try Player first, then Rules. When both a Player
		// and a Rules session are live for the same address, the
		// challenge is delivered to the Player session.
		if c.messenger.Deliver(session.Key{RemoteAddr: addr, Family: session.FamilyA2SPlayer}, data) {
			return
		}
		c.messenger.Deliver(session.Key{RemoteAddr: addr, Family: session.FamilyA2SRules}, data)
		return
	}
	if fam, ok := classifyA2S(data); ok {
		c.messenger.Deliver(session.Key{RemoteAddr: addr, Family: fam}, data)
		return
	}
	if looksLikeMasterResponse(data) {
		c.messenger.Deliver(session.Key{RemoteAddr: addr, Family: session.FamilyMaster}, data)
		return
	}
}

// classifyChallenge reports whether data is an S2C_CHALLENGE response
// ('A'), the one A2S discriminator that doesn't map to a single family.
func classifyChallenge(data []byte) bool {
	return len(data) >= 5 && data[0] == 0xFF && data[1] == 0xFF && data[2] == 0xFF && data[3] == 0xFF && data[4] == 'A'
}

// classifyA2S inspects the discriminator byte of an A2S-shaped datagram
// (simple-header-prefixed) and reports which session family it belongs to.
// Challenge responses are handled separately by classifyChallenge, since
// they don't map to a single family.
func classifyA2S(data []byte) (session.Family, bool) {
	if len(data) < 5 || data[0] != 0xFF || data[1] != 0xFF || data[2] != 0xFF || data[3] != 0xFF {
		return 0, false
	}
	switch data[4] {
	case 'I':
		return session.FamilyA2SInfo, true
	case 'D':
		return session.FamilyA2SPlayer, true
	case 'E':
		return session.FamilyA2SRules, true
	}
	return 0, false
}

func looksLikeMasterResponse(data []byte) bool {
	return len(data) >= 6 && data[0] == 0xFF && data[1] == 0xFF && data[2] == 0xFF && data[3] == 0xFF &&
		data[4] == 0x66 && data[5] == 0x0A
}

// QueryInfo performs an A2S_INFO request against addr.
func (c *Client) QueryInfo(ctx context.Context, addr *net.UDPAddr) (*a2s.InfoResponse, error) {
	results := c.messenger.Submit(ctx, messenger.Record{
		Dest:     addr,
		Key:      session.Key{RemoteAddr: addr.String(), Family: session.FamilyA2SInfo},
		Payload:  a2s.EncodeInfoRequest(a2s.InfoRequest{}),
		Priority: messenger.Normal,
		Timeout:  c.cfg.requestTimeout,
	}, func(data []byte) (any, error) { return a2s.DecodeInfoResponse(data) })

	res := <-results
	if res.Err != nil {
		return nil, res.Err
	}
	return res.Value.(*a2s.InfoResponse), nil
}

// QueryPlayers performs an A2S_PLAYER request, transparently completing the
// challenge handshake if the server demands one.
func (c *Client) QueryPlayers(ctx context.Context, addr *net.UDPAddr) (*a2s.PlayerResponse, error) {
	val, err := c.challengeRoundTrip(ctx, addr, session.FamilyA2SPlayer,
		func(challenge int32) []byte { return a2s.EncodePlayerRequest(a2s.PlayerRequest{Challenge: challenge}) },
		func(data []byte) (any, error) { return a2s.DecodePlayerResponse(data) },
	)
	if err != nil {
		return nil, err
	}
	return val.(*a2s.PlayerResponse), nil
}

// QueryRules performs an A2S_RULES request, transparently completing the
// challenge handshake if the server demands one.
func (c *Client) QueryRules(ctx context.Context, addr *net.UDPAddr) (*a2s.RulesResponse, error) {
	val, err := c.challengeRoundTrip(ctx, addr, session.FamilyA2SRules,
		func(challenge int32) []byte { return a2s.EncodeRulesRequest(a2s.RulesRequest{Challenge: challenge}) },
		func(data []byte) (any, error) { return a2s.DecodeRulesResponse(data) },
	)
	if err != nil {
		return nil, err
	}
	return val.(*a2s.RulesResponse), nil
}

// challengeRoundTrip implements the two-step A2S challenge handshake that
// A2S_PLAYER and A2S_RULES both require: an initial request with
// challenge -1, and if the server replies with S2C_CHALLENGE instead of
// real data, a second request echoing the challenge it supplied. It lives
// above the messenger rather than inside it, since challenge-awareness is
// specific to these two protocol families and the messenger stays
// protocol-agnostic (spec §5).
func (c *Client) challengeRoundTrip(ctx context.Context, addr *net.UDPAddr, fam session.Family,
	encode func(challenge int32) []byte, decode messenger.Decoder) (any, error) {

	const noChallenge = -1

	rawDecode := func(data []byte) (any, error) { return data, nil }

	first := c.messenger.Submit(ctx, messenger.Record{
		Dest:     addr,
		Key:      session.Key{RemoteAddr: addr.String(), Family: fam},
		Payload:  encode(noChallenge),
		Priority: messenger.Normal,
		Timeout:  c.cfg.requestTimeout,
	}, rawDecode)

	res := <-first
	if res.Err != nil {
		return nil, res.Err
	}
	data := res.Value.([]byte)

	if challenge, ok := a2s.NeedsChallenge(data); ok {
		second := c.messenger.Submit(ctx, messenger.Record{
			Dest:     addr,
			Key:      session.Key{RemoteAddr: addr.String(), Family: fam},
			Payload:  encode(challenge),
			Priority: messenger.Normal,
			Timeout:  c.cfg.requestTimeout,
		}, rawDecode)

		res = <-second
		if res.Err != nil {
			return nil, res.Err
		}
		data = res.Value.([]byte)
	}

	return decode(data)
}

// QueryPage implements master.Requester on top of the messenger, so
// master.Iterate can drive its pagination loop without depending on
// messenger directly.
func (c *Client) QueryPage(ctx context.Context, req master.Request) (*master.Response, error) {
	dest, err := net.ResolveUDPAddr("udp", c.masterAddr)
	if err != nil {
		return nil, qerr.New(qerr.Transport, "query.QueryPage", err)
	}

	results := c.messenger.Submit(ctx, messenger.Record{
		Dest:     dest,
		Key:      session.Key{RemoteAddr: dest.String(), Family: session.FamilyMaster},
		Payload:  master.Encode(req),
		Priority: messenger.High,
		Timeout:  c.cfg.requestTimeout,
	}, func(data []byte) (any, error) { return master.Decode(data) })

	res := <-results
	if res.Err != nil {
		return nil, res.Err
	}
	return res.Value.(*master.Response), nil
}

// BrowseMasterServer crawls masterAddr's full filtered server list,
// invoking cb once per discovered endpoint, and returns the accumulated
// list once iteration completes or the master times out (a graceful end,
// per spec §7).
func (c *Client) BrowseMasterServer(ctx context.Context, masterAddr string, region master.Region, filter string, cb master.EntryCallback) ([]netip.AddrPort, error) {
	c.masterAddr = masterAddr
	entries, _, err := master.Iterate(ctx, c, masterAddr, region, filter, cb, c.cfg.masterPacingDelay)
	return entries, err
}

// DialRCON authenticates an RCON connection to addr. Unlike the UDP
// protocols above, RCON owns its own TCP socket and isn't multiplexed
// through the shared Client transport (spec §5): the returned *rcon.Conn
// is independent of Close on the Client.
func (c *Client) DialRCON(ctx context.Context, addr, password string) (*rcon.Conn, error) {
	return rcon.Dial(ctx, addr, password, rcon.Config{
		DialTimeout:       c.cfg.rconDialTimeout,
		ReassemblyTimeout: c.cfg.rconReassemblyTimeout,
		Logger:            c.cfg.logger,
	})
}

// GetServerList complements BrowseMasterServer with the Steam Web API's
// JSON server directory, for callers who'd rather not speak the raw UDP
// Master Server protocol at all. Requires WithSteamAPIKey.
func (c *Client) GetServerList(ctx context.Context, filter string, limit int) ([]steamapi.Server, error) {
	if c.steamAPI == nil {
		return nil, qerr.New(qerr.Transport, "query.GetServerList", errSteamAPIDisabled)
	}
	return c.steamAPI.GetServerList(ctx, filter, limit)
}

// ResolveVanityURL resolves a steamcommunity.com vanity name to a
// SteamID64 via the Steam Web API. Requires WithSteamAPIKey.
func (c *Client) ResolveVanityURL(ctx context.Context, vanityName string) (string, error) {
	if c.steamAPI == nil {
		return "", qerr.New(qerr.Transport, "query.ResolveVanityURL", errSteamAPIDisabled)
	}
	return c.steamAPI.ResolveVanityURL(ctx, vanityName)
}
