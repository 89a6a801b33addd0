package steamapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGetServerList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/IGameServersService/GetServerList/v1/" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if got, want := r.URL.Query().Get("filter"), `\appid\730\dedicated\1`; got != want {
			t.Errorf("filter = %q; want %q", got, want)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"response": {
				"servers": [
					{"addr": "1.2.3.4:27015", "gameport": 27015, "name": "Test Server", "appid": 730, "map": "de_dust2", "players": 5, "max_players": 16}
				]
			}
		}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)

	servers, err := c.GetServerList(context.Background(), `\appid\730\dedicated\1`, 0)
	if err != nil {
		t.Fatalf("GetServerList: %v", err)
	}
	if len(servers) != 1 {
		t.Fatalf("len(servers) = %d; want 1", len(servers))
	}
	if servers[0].Name != "Test Server" || servers[0].Map != "de_dust2" {
		t.Errorf("servers[0] = %+v", servers[0])
	}
}

func TestGetServerList_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)

	if _, err := c.GetServerList(context.Background(), "", 0); err == nil {
		t.Fatal("expected error for HTTP 403")
	}
}
