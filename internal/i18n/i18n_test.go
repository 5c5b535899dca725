package i18n

import (
	"reflect"
	"testing"
)

func TestEmbeddedCatalogs(t *testing.T) {
	tr, err := New("en")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := tr.Languages(); !reflect.DeepEqual(got, []string{"en", "es"}) {
		t.Fatalf("Languages = %v", got)
	}
	if got := tr.T("notify.processing_complete", 3); got != "Processing complete: 3 clips ready" {
		t.Fatalf("T = %q", got)
	}
	if got := tr.T("connection.polling-fallback"); got != "polling" {
		t.Fatalf("T = %q", got)
	}
}

func TestFallbackChain(t *testing.T) {
	tr, err := New("es-MX")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if tr.Language() != "es" {
		t.Fatalf("Language = %q, want es", tr.Language())
	}
	tests := []struct {
		key  string
		want string
	}{
		{"step.upload", "Subir"},
		{"app.title", "reel"},
		{"missing.key", "missing.key"},
	}
	for _, tt := range tests {
		if got := tr.T(tt.key); got != tt.want {
			t.Errorf("T(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestSetLanguageUnknownFallsBack(t *testing.T) {
	tr := NewWithCatalogs("es", map[string]Catalog{
		"en": {"greet": "hello %s"},
		"es": {"greet": "hola %s"},
	})
	if got := tr.T("greet", "ana"); got != "hola ana" {
		t.Fatalf("T = %q", got)
	}
	tr.SetLanguage("klingon")
	if tr.Language() != Fallback {
		t.Fatalf("Language = %q, want %q", tr.Language(), Fallback)
	}
	if got := tr.Next(); got != "es" {
		t.Fatalf("Next = %q, want es", got)
	}
}

func TestEveryCatalogKeyExistsInEnglish(t *testing.T) {
	tr, err := New("en")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for lang, cat := range tr.catalogs {
		for key := range cat {
			if _, ok := tr.catalogs[Fallback][key]; !ok {
				t.Errorf("%s key %q missing from %s", lang, key, Fallback)
			}
		}
	}
}

func TestParseCatalogRejectsInvalid(t *testing.T) {
	if _, err := ParseCatalog([]byte("[broken")); err == nil {
		t.Fatal("expected parse error")
	}
}
