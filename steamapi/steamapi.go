// Package steamapi is a thin HTTP client for the Steam Web API's plain
// JSON endpoints. It is an external collaborator around the core UDP/TCP
// query engine, not part of it: callers reach for it to resolve a vanity
// community URL or pull a server list as a complement to (not replacement
// for) a direct Master Server query.
package steamapi

import (
	"errors"
	"net/http"
)

const baseURL = "https://api.steampowered.com"

// Client is a configured Steam Web API client.
type Client struct {
	httpClient *http.Client
	key        string
}

type config struct {
	httpClient *http.Client
	key        string
}

// Option configures a Client.
type Option func(options *config) error

// WithHTTPClient overrides the default http.Client, e.g. to attach a
// custom Transport or timeout.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(options *config) error {
		if httpClient == nil {
			return errors.New("httpClient should be non-nil")
		}
		options.httpClient = httpClient
		return nil
	}
}

// WithKey sets the Web API key sent on every request. Most endpoints this
// client calls require one.
func WithKey(key string) Option {
	return func(options *config) error {
		options.key = key
		return nil
	}
}

// New builds a Client. Without WithKey, calls that require a key will
// fail at the server with an authentication error rather than client-side.
func New(opts ...Option) (*Client, error) {
	var cfg config
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	c := &Client{key: cfg.key}
	if cfg.httpClient != nil {
		c.httpClient = cfg.httpClient
	} else {
		c.httpClient = http.DefaultClient
	}

	return c, nil
}
