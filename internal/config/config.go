// Package config resolves the small set of environment knobs this module
// reads, plus an optional on-disk YAML overlay that is live-reloaded while
// the process runs, mirroring the teacher's env-var driven session cache
// configuration (internal/web/session_cache.go's
// ASC_WEB_SESSION_CACHE/_DIR/_BACKEND trio).
package config

import (
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/nab138/isideload/internal/gsalog"
)

const (
	anisetteStateDirEnv = "ISIDELOAD_ANISETTE_STATE_DIR"
	anisetteBackendEnv  = "ISIDELOAD_ANISETTE_BACKEND"
	debugSensitiveEnv   = "ISIDELOAD_DEBUG_SENSITIVE"
	configFileEnv       = "ISIDELOAD_CONFIG_FILE"
)

// Config is the resolved set of knobs this module reads at runtime.
type Config struct {
	AnisetteStateDir string `yaml:"anisette_state_dir"`
	AnisetteBackend  string `yaml:"anisette_backend"`
	DebugSensitive   bool   `yaml:"debug_sensitive"`
}

// Load resolves Config from environment variables, then fills in values
// from the optional YAML file named by ISIDELOAD_CONFIG_FILE (env vars win
// per field; the file only fills fields the environment leaves zero).
func Load() (*Config, error) {
	cfg := &Config{
		AnisetteStateDir: os.Getenv(anisetteStateDirEnv),
		AnisetteBackend:  strings.ToLower(strings.TrimSpace(os.Getenv(anisetteBackendEnv))),
		DebugSensitive:   os.Getenv(debugSensitiveEnv) != "",
	}

	path := strings.TrimSpace(os.Getenv(configFileEnv))
	if path == "" {
		return cfg, nil
	}

	fileCfg, err := loadFile(path)
	if err != nil {
		return nil, err
	}
	cfg.mergeFrom(fileCfg)
	return cfg, nil
}

func loadFile(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, err
	}
	var fileCfg Config
	if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
		return nil, err
	}
	return &fileCfg, nil
}

func (c *Config) mergeFrom(other *Config) {
	if c.AnisetteStateDir == "" {
		c.AnisetteStateDir = other.AnisetteStateDir
	}
	if c.AnisetteBackend == "" {
		c.AnisetteBackend = other.AnisetteBackend
	}
	if !c.DebugSensitive {
		c.DebugSensitive = other.DebugSensitive
	}
}

// Watcher live-reloads the config file named by ISIDELOAD_CONFIG_FILE, if
// set, calling onChange with the newly resolved Config on every write.
type Watcher struct {
	mu      sync.Mutex
	current *Config
	watcher *fsnotify.Watcher
}

// WatchFile starts watching the config file (if ISIDELOAD_CONFIG_FILE is
// set) and invokes onChange whenever it changes. It returns nil, nil when
// no config file is configured. Callers should Close the returned Watcher
// when done.
func WatchFile(onChange func(*Config)) (*Watcher, error) {
	path := strings.TrimSpace(os.Getenv(configFileEnv))
	if path == "" {
		return nil, nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(path); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	w := &Watcher{watcher: fsw}

	go func() {
		for {
			select {
			case event, ok := <-fsw.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := Load()
				if err != nil {
					gsalog.Default().Warnf("config: reload failed: %v", err)
					continue
				}
				w.mu.Lock()
				w.current = cfg
				w.mu.Unlock()
				if onChange != nil {
					onChange(cfg)
				}
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				gsalog.Default().Warnf("config: watch error: %v", err)
			}
		}
	}()

	return w, nil
}

// Close stops the underlying file watch.
func (w *Watcher) Close() error {
	if w == nil || w.watcher == nil {
		return nil
	}
	return w.watcher.Close()
}
