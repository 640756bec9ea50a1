package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ycnlabs/prospect/internal/auth"
)

func TestStore_SessionLifecycle(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "session.db")
	store, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	if _, found, err := store.LoadSession(ctx); err != nil || found {
		t.Fatalf("LoadSession() on empty store = (found=%v, err=%v), want (false, nil)", found, err)
	}

	saved := auth.Session{
		Username:     "rep@ycn.example",
		DisplayName:  "Sample Rep",
		TenantID:     "tenant-a",
		RefreshToken: "rt-1",
		UpdatedAt:    time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
	}
	if err := store.SaveSession(ctx, saved); err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}

	loaded, found, err := store.LoadSession(ctx)
	if err != nil {
		t.Fatalf("LoadSession() error = %v", err)
	}
	if !found {
		t.Fatal("LoadSession() found = false after save")
	}
	if loaded != saved {
		t.Fatalf("LoadSession() = %+v, want %+v", loaded, saved)
	}
}

func TestStore_SaveReplacesPriorSession(t *testing.T) {
	ctx := context.Background()
	store, err := Open(filepath.Join(t.TempDir(), "session.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	first := auth.Session{Username: "one@ycn.example", RefreshToken: "rt-1"}
	second := auth.Session{Username: "two@ycn.example", RefreshToken: "rt-2"}
	if err := store.SaveSession(ctx, first); err != nil {
		t.Fatalf("SaveSession(first) error = %v", err)
	}
	if err := store.SaveSession(ctx, second); err != nil {
		t.Fatalf("SaveSession(second) error = %v", err)
	}

	loaded, found, err := store.LoadSession(ctx)
	if err != nil || !found {
		t.Fatalf("LoadSession() = (found=%v, err=%v)", found, err)
	}
	if loaded.Username != "two@ycn.example" || loaded.RefreshToken != "rt-2" {
		t.Fatalf("store kept the old session: %+v", loaded)
	}
}

func TestStore_SessionSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "session.db")

	store, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := store.SaveSession(ctx, auth.Session{Username: "rep@ycn.example", RefreshToken: "rt-persist"}); err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := Open(dbPath)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	t.Cleanup(func() {
		_ = reopened.Close()
	})
	loaded, found, err := reopened.LoadSession(ctx)
	if err != nil || !found {
		t.Fatalf("LoadSession() after reopen = (found=%v, err=%v)", found, err)
	}
	if loaded.RefreshToken != "rt-persist" {
		t.Fatalf("refresh token = %q after reopen", loaded.RefreshToken)
	}
}

func TestStore_ClearSession(t *testing.T) {
	ctx := context.Background()
	store, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	if err := store.ClearSession(ctx); err != nil {
		t.Fatalf("ClearSession() on empty store error = %v", err)
	}
	if err := store.SaveSession(ctx, auth.Session{Username: "rep@ycn.example", RefreshToken: "rt-1"}); err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}
	if err := store.ClearSession(ctx); err != nil {
		t.Fatalf("ClearSession() error = %v", err)
	}
	if _, found, err := store.LoadSession(ctx); err != nil || found {
		t.Fatalf("LoadSession() after clear = (found=%v, err=%v), want (false, nil)", found, err)
	}
}

func TestStore_RejectsEmptyRefreshToken(t *testing.T) {
	store, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	if err := store.SaveSession(context.Background(), auth.Session{Username: "rep@ycn.example"}); err == nil {
		t.Fatal("SaveSession() accepted an empty refresh token")
	}
}
