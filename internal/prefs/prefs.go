// Package prefs persists reel user preferences as small TOML files under
// ~/.config/reel. Each namespace is its own file so stores never clobber
// each other's keys.
package prefs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	toml "github.com/pelletier/go-toml/v2"
)

// UI holds the interface preferences.
type UI struct {
	Language string `toml:"language"`
	Theme    string `toml:"theme"`
}

// App holds application feature flags.
type App struct {
	Features map[string]bool `toml:"features"`
}

const (
	defaultDir      = "~/.config/reel"
	UINamespace     = "ui"
	AppNamespace    = "app"
	DefaultLanguage = "en"
	DefaultTheme    = "Nightfox"
)

// DefaultDir returns the default preferences directory, unexpanded.
func DefaultDir() string {
	return defaultDir
}

// Blob is one namespaced preferences file.
type Blob[T any] struct {
	path string
	mu   sync.Mutex
}

// NewBlob returns the blob for namespace inside dir. An empty dir uses the
// default directory.
func NewBlob[T any](dir, namespace string) *Blob[T] {
	if strings.TrimSpace(dir) == "" {
		dir = defaultDir
	}
	return &Blob[T]{path: filepath.Join(dir, namespace+".toml")}
}

// Path returns the unexpanded file path.
func (b *Blob[T]) Path() string { return b.path }

// Load reads the blob over defaults. Missing, unreadable or corrupt files
// yield defaults unchanged.
func (b *Blob[T]) Load(defaults T) T {
	b.mu.Lock()
	defer b.mu.Unlock()

	resolved, err := expandPath(b.path)
	if err != nil {
		return defaults
	}
	file, err := os.Open(resolved)
	if err != nil {
		return defaults
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		return defaults
	}
	// Decode over a private copy: a failed decode may have written part of
	// the file into maps it shares with defaults.
	loaded, err := clone(defaults)
	if err != nil {
		return defaults
	}
	if err := toml.Unmarshal(data, &loaded); err != nil {
		return defaults
	}
	return loaded
}

func clone[T any](v T) (T, error) {
	var out T
	data, err := toml.Marshal(v)
	if err != nil {
		return out, err
	}
	err = toml.Unmarshal(data, &out)
	return out, err
}

// Save writes value, creating directories as needed.
func (b *Blob[T]) Save(value T) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	resolved, err := expandPath(b.path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return fmt.Errorf("create prefs dir: %w", err)
	}
	data, err := toml.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal prefs: %w", err)
	}
	tmp := resolved + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write prefs: %w", err)
	}
	if err := os.Rename(tmp, resolved); err != nil {
		return fmt.Errorf("write prefs: %w", err)
	}
	return nil
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
