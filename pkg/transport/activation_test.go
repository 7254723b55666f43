package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"voxcore/pkg/identity"
)

func testIdentity(t *testing.T) *identity.Identity {
	t.Helper()
	id, err := identity.Load(filepath.Join(t.TempDir(), "identity.json"))
	if err != nil {
		t.Fatalf("identity.Load: %v", err)
	}
	return id
}

func TestActivatePendingReturnsCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" || r.Header.Get("Protocol-Version") != "" {
			t.Errorf("activation request must not carry auth/protocol headers")
		}
		w.Write([]byte(`{"activation":{"code":"123456","message":"visit v.example.com"}}`))
	}))
	defer srv.Close()

	id := testIdentity(t)
	result, err := Activate(context.Background(), srv.Client(), srv.URL, id, "voxcore", "1.0.0", "generic-linux", "board")
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if result.Activated || result.Code != "123456" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestActivateSuccessReportsActivated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	id := testIdentity(t)
	result, err := Activate(context.Background(), srv.Client(), srv.URL, id, "voxcore", "1.0.0", "generic-linux", "board")
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if !result.Activated {
		t.Fatalf("expected activated result, got %+v", result)
	}
}

func TestPollActivationRetriesTransientErrorsThenSucceeds(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			http.Error(w, "upstream unavailable", http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	id := testIdentity(t)
	err := PollActivation(context.Background(), srv.Client(), srv.URL, id, "voxcore", "1.0.0", "generic-linux", "board",
		10*time.Millisecond, nil, nil)
	if err != nil {
		t.Fatalf("PollActivation: %v", err)
	}
	if attempts < 3 {
		t.Fatalf("expected at least 3 attempts, got %d", attempts)
	}
	if !id.Activated {
		t.Fatalf("expected identity to be marked activated")
	}
}

func TestPollActivationSurfacesPendingCodeUntilActivated(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.Write([]byte(`{"activation":{"code":"000000","message":"pending"}}`))
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	id := testIdentity(t)
	var pendingCodes []string
	err := PollActivation(context.Background(), srv.Client(), srv.URL, id, "voxcore", "1.0.0", "generic-linux", "board",
		5*time.Millisecond, nil, func(result *ActivationResult) {
			pendingCodes = append(pendingCodes, result.Code)
		})
	if err != nil {
		t.Fatalf("PollActivation: %v", err)
	}
	if len(pendingCodes) != 1 || pendingCodes[0] != "000000" {
		t.Fatalf("expected one pending callback with code 000000, got %v", pendingCodes)
	}
}

func TestPollActivationStopsOnContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	id := testIdentity(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := PollActivation(ctx, srv.Client(), srv.URL, id, "voxcore", "1.0.0", "generic-linux", "board",
		5*time.Millisecond, nil, nil)
	if err == nil {
		t.Fatalf("expected context cancellation error, got nil")
	}
}
