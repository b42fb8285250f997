package testsupport

import (
	"context"
	"testing"

	"vidproc/internal/config"
	"vidproc/internal/status"
)

// MustOpenStore opens the configured status.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) status.Store {
	t.Helper()

	if _, err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	store, err := status.Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("status.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// MustGet loads a record and fails the test when it is absent.
func MustGet(t testing.TB, store status.Store, id string) *status.Record {
	t.Helper()

	rec, err := store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("store.Get(%q): %v", id, err)
	}
	if rec == nil {
		t.Fatalf("store.Get(%q): record not found", id)
	}
	return rec
}
