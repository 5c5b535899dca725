package prefs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	b := NewBlob[UI]("", UINamespace)
	p := b.Load(UI{Language: DefaultLanguage, Theme: DefaultTheme})
	if p.Theme != DefaultTheme || p.Language != DefaultLanguage {
		t.Fatalf("Load = %#v, want defaults", p)
	}
}

func TestLoad_ReadsDefaultLocation(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir := filepath.Join(home, ".config", "reel")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "ui.toml"), []byte("theme = \"Slate\"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	p := NewBlob[UI]("", UINamespace).Load(UI{Language: "en", Theme: DefaultTheme})
	if p.Theme != "Slate" {
		t.Fatalf("Theme = %q, want Slate", p.Theme)
	}
	if p.Language != "en" {
		t.Fatalf("Language = %q, want default kept for missing key", p.Language)
	}
}

func TestSave_RoundTripsNamespacesIndependently(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "subdir")

	ui := NewBlob[UI](dir, UINamespace)
	app := NewBlob[App](dir, AppNamespace)
	if err := ui.Save(UI{Language: "es", Theme: "Slate"}); err != nil {
		t.Fatalf("Save ui: %v", err)
	}
	if err := app.Save(App{Features: map[string]bool{"agents": true}}); err != nil {
		t.Fatalf("Save app: %v", err)
	}

	if got := ui.Load(UI{}); got.Language != "es" || got.Theme != "Slate" {
		t.Fatalf("ui Load = %#v", got)
	}
	if got := app.Load(App{}); !got.Features["agents"] {
		t.Fatalf("app Load = %#v", got)
	}
	if _, err := os.Stat(filepath.Join(dir, "ui.toml")); err != nil {
		t.Fatalf("ui.toml missing: %v", err)
	}
}

func TestLoad_InvalidTOMLFallsBackToDefault(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "ui.toml"), []byte("not valid toml {{{\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	p := NewBlob[UI](dir, UINamespace).Load(UI{Theme: DefaultTheme})
	if p.Theme != DefaultTheme {
		t.Fatalf("Theme = %q, want %q", p.Theme, DefaultTheme)
	}
}

func TestLoad_PartlyValidFileKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	body := "[features]\nlive_updates = false\nbroken = \"yes\"\n"
	if err := os.WriteFile(filepath.Join(dir, "app.toml"), []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	defaults := App{Features: map[string]bool{"live_updates": true}}
	got := NewBlob[App](dir, AppNamespace).Load(defaults)
	if !got.Features["live_updates"] || len(got.Features) != 1 {
		t.Fatalf("Features = %v, want defaults", got.Features)
	}
	if !defaults.Features["live_updates"] {
		t.Fatalf("defaults mutated: %v", defaults.Features)
	}
}

func TestLoad_DoesNotShareDefaultMaps(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "app.toml"), []byte("[features]\nagents = true\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	defaults := App{Features: map[string]bool{"live_updates": true}}
	got := NewBlob[App](dir, AppNamespace).Load(defaults)
	if !got.Features["agents"] || !got.Features["live_updates"] {
		t.Fatalf("Features = %v, want merged", got.Features)
	}
	if _, ok := defaults.Features["agents"]; ok {
		t.Fatalf("defaults mutated: %v", defaults.Features)
	}
}
