package steamapi

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()

	c, err := New(WithKey("test-key"), WithHTTPClient(&http.Client{Transport: rewriteHostTransport(srv)}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func rewriteHostTransport(srv *httptest.Server) http.RoundTripper {
	return &rewriteTransport{server: srv, base: srv.Client().Transport}
}

type rewriteTransport struct {
	server *httptest.Server
	base   http.RoundTripper
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	srvURL, _ := url.Parse(t.server.URL)
	req.URL.Scheme = srvURL.Scheme
	req.URL.Host = srvURL.Host
	return t.base.RoundTrip(req)
}
