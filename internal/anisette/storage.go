package anisette

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/99designs/keyring"
)

// Storage is the pluggable persistence contract from §4.1: a single
// opaque blob per key, with store/retrieve/delete semantics.
type Storage interface {
	Store(ctx context.Context, key string, data []byte) error
	Retrieve(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
}

// StateKey is the single key under which AnisetteState is persisted.
const StateKey = "anisette_state"

const (
	backendEnv = "ISIDELOAD_ANISETTE_BACKEND"
	dirEnv     = "ISIDELOAD_ANISETTE_STATE_DIR"

	keyringService = "isideload-anisette"
)

var keyringOpen = func() (keyring.Keyring, error) {
	return keyring.Open(keyring.Config{
		ServiceName:                    keyringService,
		KeychainTrustApplication:       true,
		KeychainSynchronizable:         false,
		KeychainAccessibleWhenUnlocked: true,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.WinCredBackend,
			keyring.SecretServiceBackend,
			keyring.KWalletBackend,
			keyring.KeyCtlBackend,
		},
	})
}

// NewDefaultStorage resolves a Storage implementation from
// ISIDELOAD_ANISETTE_BACKEND ("auto" | "keychain" | "file" | "off"),
// mirroring the teacher's ASC_WEB_SESSION_CACHE_BACKEND resolution.
func NewDefaultStorage() (Storage, error) {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(backendEnv))) {
	case "off", "none", "disabled":
		return noopStorage{}, nil
	case "file":
		return newFileStorage()
	case "keychain":
		return keyringStorage{}, nil
	default: // "auto" or unset
		return &fallbackStorage{primary: keyringStorage{}}, nil
	}
}

type noopStorage struct{}

func (noopStorage) Store(context.Context, string, []byte) error            { return nil }
func (noopStorage) Retrieve(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (noopStorage) Delete(context.Context, string) error                   { return nil }

// keyringStorage persists through the OS keychain / secret service, as the
// teacher's session cache does for its web session cookies.
type keyringStorage struct{}

func (keyringStorage) Store(_ context.Context, key string, data []byte) error {
	kr, err := keyringOpen()
	if err != nil {
		return err
	}
	return kr.Set(keyring.Item{
		Key:   key,
		Data:  data,
		Label: "isideload anisette state",
	})
}

func (keyringStorage) Retrieve(_ context.Context, key string) ([]byte, bool, error) {
	kr, err := keyringOpen()
	if err != nil {
		return nil, false, err
	}
	item, err := kr.Get(key)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return item.Data, true, nil
}

func (keyringStorage) Delete(_ context.Context, key string) error {
	kr, err := keyringOpen()
	if err != nil {
		return err
	}
	if err := kr.Remove(key); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return err
	}
	return nil
}

func isKeyringUnavailable(err error) bool {
	return errors.Is(err, keyring.ErrNoAvailImpl)
}

// fallbackStorage tries primary first and falls back to a file-based store
// when no OS keyring implementation is available (headless CI, containers).
type fallbackStorage struct {
	primary keyringStorage
}

func (f *fallbackStorage) Store(ctx context.Context, key string, data []byte) error {
	if err := f.primary.Store(ctx, key, data); err != nil {
		if isKeyringUnavailable(err) {
			fs, ferr := newFileStorage()
			if ferr != nil {
				return ferr
			}
			return fs.Store(ctx, key, data)
		}
		return err
	}
	return nil
}

func (f *fallbackStorage) Retrieve(ctx context.Context, key string) ([]byte, bool, error) {
	data, ok, err := f.primary.Retrieve(ctx, key)
	if err != nil && isKeyringUnavailable(err) {
		fs, ferr := newFileStorage()
		if ferr != nil {
			return nil, false, ferr
		}
		return fs.Retrieve(ctx, key)
	}
	return data, ok, err
}

func (f *fallbackStorage) Delete(ctx context.Context, key string) error {
	if err := f.primary.Delete(ctx, key); err != nil {
		if isKeyringUnavailable(err) {
			fs, ferr := newFileStorage()
			if ferr != nil {
				return ferr
			}
			return fs.Delete(ctx, key)
		}
		return err
	}
	return nil
}

// fileStorage persists each key as its own file under a state directory,
// written atomically via a temp-file-then-rename, matching the teacher's
// writeSessionToFile.
type fileStorage struct {
	dir string
}

func newFileStorage() (*fileStorage, error) {
	dir, err := stateDir()
	if err != nil {
		return nil, err
	}
	return &fileStorage{dir: dir}, nil
}

func stateDir() (string, error) {
	if custom := strings.TrimSpace(os.Getenv(dirEnv)); custom != "" {
		return custom, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("anisette: resolve home directory: %w", err)
	}
	return filepath.Join(home, ".isideload", "anisette"), nil
}

func (f *fileStorage) path(key string) string {
	return filepath.Join(f.dir, key+".plist")
}

func (f *fileStorage) Store(_ context.Context, key string, data []byte) error {
	if err := os.MkdirAll(f.dir, 0o700); err != nil {
		return fmt.Errorf("anisette: create state dir: %w", err)
	}
	path := f.path(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("anisette: write state: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("anisette: finalize state: %w", err)
	}
	return nil
}

func (f *fileStorage) Retrieve(_ context.Context, key string) ([]byte, bool, error) {
	data, err := os.ReadFile(f.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

func (f *fileStorage) Delete(_ context.Context, key string) error {
	if err := os.Remove(f.path(key)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
