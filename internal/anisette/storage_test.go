package anisette

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/99designs/keyring"
)

func TestNoopStorageNeverPersists(t *testing.T) {
	s := noopStorage{}
	ctx := context.Background()

	if err := s.Store(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("Store: %v", err)
	}
	data, ok, err := s.Retrieve(ctx, "k")
	if err != nil || ok || data != nil {
		t.Fatalf("Retrieve = %v, %v, %v, want nil, false, nil", data, ok, err)
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
}

func TestFileStorageRoundTrip(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(dirEnv, dir)

	fs, err := newFileStorage()
	if err != nil {
		t.Fatalf("newFileStorage: %v", err)
	}
	ctx := context.Background()

	if _, ok, err := fs.Retrieve(ctx, StateKey); err != nil || ok {
		t.Fatalf("Retrieve before Store = %v, %v, want false, nil", ok, err)
	}

	want := []byte("<plist><dict/></plist>")
	if err := fs.Store(ctx, StateKey, want); err != nil {
		t.Fatalf("Store: %v", err)
	}

	got, ok, err := fs.Retrieve(ctx, StateKey)
	if err != nil || !ok {
		t.Fatalf("Retrieve after Store = %v, %v, %v", got, ok, err)
	}
	if string(got) != string(want) {
		t.Fatalf("Retrieve = %q, want %q", got, want)
	}

	if _, err := filepath.Abs(fs.path(StateKey)); err != nil {
		t.Fatalf("path: %v", err)
	}

	if err := fs.Delete(ctx, StateKey); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, err := fs.Retrieve(ctx, StateKey); err != nil || ok {
		t.Fatalf("Retrieve after Delete = %v, %v, want false, nil", ok, err)
	}

	if err := fs.Delete(ctx, StateKey); err != nil {
		t.Fatalf("Delete on already-absent key should be a no-op: %v", err)
	}
}

func TestFileStorageUsesCustomDirFromEnv(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "nested", "state")
	t.Setenv(dirEnv, sub)

	fs, err := newFileStorage()
	if err != nil {
		t.Fatalf("newFileStorage: %v", err)
	}
	if fs.dir != sub {
		t.Fatalf("dir = %q, want %q", fs.dir, sub)
	}

	if err := fs.Store(context.Background(), StateKey, []byte("x")); err != nil {
		t.Fatalf("Store into nested, not-yet-existing dir: %v", err)
	}
}

func TestNewDefaultStorageBackendSelection(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(dirEnv, dir)

	cases := []struct {
		env      string
		wantType string
	}{
		{"off", "anisette.noopStorage"},
		{"none", "anisette.noopStorage"},
		{"disabled", "anisette.noopStorage"},
		{"file", "*anisette.fileStorage"},
		{"keychain", "anisette.keyringStorage"},
		{"", "*anisette.fallbackStorage"},
		{"auto", "*anisette.fallbackStorage"},
	}

	for _, tc := range cases {
		t.Run(tc.env, func(t *testing.T) {
			t.Setenv(backendEnv, tc.env)
			storage, err := NewDefaultStorage()
			if err != nil {
				t.Fatalf("NewDefaultStorage(%q): %v", tc.env, err)
			}

			var got string
			switch storage.(type) {
			case noopStorage:
				got = "anisette.noopStorage"
			case *fileStorage:
				got = "*anisette.fileStorage"
			case keyringStorage:
				got = "anisette.keyringStorage"
			case *fallbackStorage:
				got = "*anisette.fallbackStorage"
			default:
				t.Fatalf("unrecognized storage type %T", storage)
			}
			if got != tc.wantType {
				t.Fatalf("backend %q resolved to %s, want %s", tc.env, got, tc.wantType)
			}
		})
	}
}

func TestFallbackStorageFallsBackToFileWhenKeyringUnavailable(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(dirEnv, dir)

	old := keyringOpen
	keyringOpen = func() (keyring.Keyring, error) {
		return nil, keyring.ErrNoAvailImpl
	}
	t.Cleanup(func() { keyringOpen = old })

	storage := &fallbackStorage{primary: keyringStorage{}}
	ctx := context.Background()

	want := []byte("fallback-state")
	if err := storage.Store(ctx, StateKey, want); err != nil {
		t.Fatalf("Store: %v", err)
	}

	got, ok, err := storage.Retrieve(ctx, StateKey)
	if err != nil || !ok {
		t.Fatalf("Retrieve = %v, %v, %v", got, ok, err)
	}
	if string(got) != string(want) {
		t.Fatalf("Retrieve = %q, want %q", got, want)
	}

	if err := storage.Delete(ctx, StateKey); err != nil {
		t.Fatalf("Delete: %v", err)
	}
}
