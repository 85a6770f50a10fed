package vip

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"
)

func TestBuildCommands(t *testing.T) {
	got := BuildCommands(4321, "  giveitem 10 \n\n setvip 3\n")
	want := []string{"4321 giveitem 10", "4321 setvip 3"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
	if BuildCommands(1, " \n ") != nil {
		t.Fatalf("expected nil for blank template")
	}
}

func TestFormatExpiry(t *testing.T) {
	loc := time.FixedZone("BRT", -3*60*60)
	at := time.Date(2024, 6, 1, 2, 30, 45, 0, time.UTC)
	if got := FormatExpiry(at, loc); got != "2024-05-31 23:30:00" {
		t.Fatalf("unexpected expiry %q", got)
	}
}

func TestClient_GrantCommands(t *testing.T) {
	var got map[string]any
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/set-next-login-commands" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	exp := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	c := NewClient(srv.URL+"/", "tok", time.UTC)
	if err := c.GrantCommands(context.Background(), 77, []string{"77 setvip 1"}, &exp); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if auth != "Bearer tok" {
		t.Fatalf("unexpected auth header %q", auth)
	}
	if got["passport"].(float64) != 77 || got["expires_at"] != "2024-06-01 12:00:00" {
		t.Fatalf("unexpected payload %v", got)
	}
}

func TestClient_GrantCommandsOmitsEmptyFields(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	if err := NewClient(srv.URL, "tok", nil).GrantCommands(context.Background(), 5, []string{"5 a"}, nil); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if _, ok := got["expires_at"]; ok {
		t.Fatalf("expires_at must be omitted, got %v", got)
	}
}

func TestClient_GrantCommandsErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()
	c := NewClient(srv.URL, "bad", nil)

	if err := c.GrantCommands(context.Background(), 5, []string{"5 a"}, nil); !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
	if err := c.GrantCommands(context.Background(), 0, []string{"x"}, nil); !errors.Is(err, ErrInvalidGrant) {
		t.Fatalf("expected ErrInvalidGrant for passport, got %v", err)
	}
	if err := c.GrantCommands(context.Background(), 5, nil, nil); !errors.Is(err, ErrInvalidGrant) {
		t.Fatalf("expected ErrInvalidGrant for empty grant, got %v", err)
	}
	if err := NewClient("", "", nil).GrantCommands(context.Background(), 5, []string{"x"}, nil); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
