package session_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/k64z/gamequery/session"
)

func TestRegisterTake(t *testing.T) {
	r := session.New()
	key := session.Key{RemoteAddr: "1.2.3.4:27015", Family: session.FamilyA2SInfo}

	seq, err := r.Register(key, session.Record{}, time.Second)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if seq == 0 {
		t.Fatalf("Register() seq = 0, want non-zero")
	}

	rec, ok := r.Take(key)
	if !ok {
		t.Fatalf("Take() ok = false, want true")
	}
	if rec.Seq != seq {
		t.Fatalf("Take() seq = %d, want %d", rec.Seq, seq)
	}

	if _, ok := r.Take(key); ok {
		t.Fatalf("second Take() ok = true, want false")
	}
}

func TestDuplicateSession(t *testing.T) {
	r := session.New()
	key := session.Key{RemoteAddr: "1.2.3.4:27015", Family: session.FamilyA2SInfo}

	if _, err := r.Register(key, session.Record{}, time.Second); err != nil {
		t.Fatalf("first Register() error = %v", err)
	}

	_, err := r.Register(key, session.Record{}, time.Second)
	if err == nil {
		t.Fatal("second Register() error = nil, want *DuplicateSessionError")
	}
	if _, ok := err.(*session.DuplicateSessionError); !ok {
		t.Fatalf("second Register() error type = %T, want *DuplicateSessionError", err)
	}

	// The original session is unaffected by the rejected duplicate.
	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", r.Len())
	}
}

func TestReuseAfterCompletion(t *testing.T) {
	r := session.New()
	key := session.Key{RemoteAddr: "1.2.3.4:27015", Family: session.FamilyA2SInfo}

	if _, err := r.Register(key, session.Record{}, time.Second); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if _, ok := r.Take(key); !ok {
		t.Fatalf("Take() ok = false")
	}

	// Re-registration with the same key must succeed once the predecessor
	// has completed.
	if _, err := r.Register(key, session.Record{}, time.Second); err != nil {
		t.Fatalf("Register() after completion error = %v", err)
	}
}

func TestExpire(t *testing.T) {
	r := session.New()
	key := session.Key{RemoteAddr: "1.2.3.4:27015", Family: session.FamilyA2SInfo}

	var expired atomic.Bool
	done := make(chan struct{})
	rec := session.Record{OnExpire: func() { expired.Store(true); close(done) }}

	if _, err := r.Register(key, rec, 20*time.Millisecond); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	select {
	case <-done:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("OnExpire never fired")
	}

	if !expired.Load() {
		t.Fatal("expired = false, want true")
	}
	if r.Len() != 0 {
		t.Fatalf("Len() = %d, want 0 after expiry", r.Len())
	}
	if _, ok := r.Take(key); ok {
		t.Fatal("Take() after expiry: ok = true, want false")
	}
}

func TestCancelIsNoopAfterMatch(t *testing.T) {
	r := session.New()
	key := session.Key{RemoteAddr: "1.2.3.4:27015", Family: session.FamilyA2SInfo}

	var cancelled atomic.Bool
	rec := session.Record{OnCancel: func() { cancelled.Store(true) }}

	if _, err := r.Register(key, rec, time.Second); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if _, ok := r.Take(key); !ok {
		t.Fatal("Take() ok = false")
	}

	r.Cancel(key)
	if cancelled.Load() {
		t.Fatal("OnCancel fired after session was already matched")
	}
}
