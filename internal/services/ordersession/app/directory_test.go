package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/louisbranch/lunchroll/internal/services/ordersession/domain"
)

func TestDirectoryResolveDisplayName(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/u-amy" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"user_id":      "u-amy",
			"display_name": "Amy Chen",
		})
	}))
	defer srv.Close()

	client := newDirectoryClient(srv.URL)
	name, err := client.ResolveDisplayName(context.Background(), "u-amy")
	if err != nil {
		t.Fatalf("resolve display name: %v", err)
	}
	if name != "Amy Chen" {
		t.Errorf("name = %q, want Amy Chen", name)
	}
}

func TestDirectoryResolveDisplayNameFailure(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := newDirectoryClient(srv.URL)
	if _, err := client.ResolveDisplayName(context.Background(), "u-amy"); !errors.Is(err, domain.ErrLookupFailed) {
		t.Fatalf("err = %v, want ErrLookupFailed", err)
	}
}

func TestDirectoryListMembers(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/companies/acme/members" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"members": []map[string]string{
				{"user_id": "u-amy", "display_name": "Amy Chen"},
				{"user_id": "u-ben", "display_name": "Ben Ortiz"},
			},
		})
	}))
	defer srv.Close()

	client := newDirectoryClient(srv.URL)
	members, err := client.ListMembers(context.Background(), "acme")
	if err != nil {
		t.Fatalf("list members: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("got %d members, want 2", len(members))
	}
	if members[0].UserID != "u-amy" || members[0].DisplayName != "Amy Chen" {
		t.Errorf("unexpected first member %+v", members[0])
	}
}

func TestDirectoryUnconfigured(t *testing.T) {
	t.Parallel()
	client := newDirectoryClient("")
	if _, err := client.ResolveDisplayName(context.Background(), "u-amy"); !errors.Is(err, domain.ErrLookupFailed) {
		t.Fatalf("resolve err = %v, want ErrLookupFailed", err)
	}
	if _, err := client.ListMembers(context.Background(), "acme"); !errors.Is(err, domain.ErrLookupFailed) {
		t.Fatalf("list err = %v, want ErrLookupFailed", err)
	}
}
