package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/five82/reel/internal/prefs"
)

func TestLoad_MissingConfigFallsBackToDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, err := Load(filepath.Join(home, "does-not-exist.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.APIBaseURL != defaultAPIBaseURL {
		t.Fatalf("APIBaseURL = %q, want %q", cfg.APIBaseURL, defaultAPIBaseURL)
	}
	if cfg.WSURL != "ws://127.0.0.1:8000/ws" {
		t.Fatalf("WSURL = %q, want derived ws url", cfg.WSURL)
	}
	if cfg.MaxReconnectAttempts != 5 || cfg.PollInterval.D() != 2*time.Second {
		t.Fatalf("reconnect defaults = %d %v", cfg.MaxReconnectAttempts, cfg.PollInterval.D())
	}

	wantPrefs, err := expandPath(prefs.DefaultDir())
	if err != nil {
		t.Fatalf("expandPath(prefs.DefaultDir()) returned error: %v", err)
	}
	if cfg.PrefsDir != wantPrefs {
		t.Fatalf("PrefsDir = %q, want %q", cfg.PrefsDir, wantPrefs)
	}
}

func TestLoad_ParsesAndTrimsConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(`
api_base_url = "  https://clips.example.com/  "
poll_interval = "500ms"
max_reconnect_attempts = 2
log_level = " WARNING "
prefs_dir = "  ~/.reel  "

[features]
captions = true
`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.APIBaseURL != "https://clips.example.com" {
		t.Fatalf("APIBaseURL = %q", cfg.APIBaseURL)
	}
	if cfg.WSURL != "wss://clips.example.com/ws" {
		t.Fatalf("WSURL = %q", cfg.WSURL)
	}
	if cfg.PollInterval.D() != 500*time.Millisecond || cfg.MaxReconnectAttempts != 2 {
		t.Fatalf("poll=%v attempts=%d", cfg.PollInterval.D(), cfg.MaxReconnectAttempts)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("LogLevel = %q, want warn", cfg.LogLevel)
	}
	if !strings.HasPrefix(cfg.PrefsDir, home) {
		t.Fatalf("PrefsDir = %q, want it under HOME %q", cfg.PrefsDir, home)
	}
	if !cfg.Features["captions"] {
		t.Fatalf("Features = %v, want captions", cfg.Features)
	}
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"bad toml", `api_base_url = `, "parse config"},
		{"bad duration", `poll_interval = "soon"`, "parse config"},
		{"bad scheme", `api_base_url = "ftp://host"`, "api_base_url"},
		{"ws scheme", `ws_url = "http://host/ws"`, "ws_url"},
		{"log level", `log_level = "loud"`, "LogLevel"},
		{"chunk over max", "upload_max_size = 10\nupload_chunk_size = 20", "UploadChunkSize"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("HOME", t.TempDir())
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(tt.body), 0o600); err != nil {
				t.Fatalf("WriteFile: %v", err)
			}
			_, err := Load(path)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestExpandPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	got, err := expandPath("~/x/y")
	if err != nil {
		t.Fatalf("expandPath: %v", err)
	}
	if got != filepath.Join(home, "x", "y") {
		t.Fatalf("expandPath = %q", got)
	}
	if _, err := expandPath("   "); err == nil {
		t.Fatal("expected error for empty path")
	}
}
