// Package i18n looks up interface strings in embedded TOML catalogs.
package i18n

import (
	"embed"
	"fmt"
	"path"
	"slices"
	"strings"
	"sync"

	toml "github.com/pelletier/go-toml/v2"
)

// Fallback is the language every lookup falls back to.
const Fallback = "en"

//go:embed catalogs/*.toml
var catalogFS embed.FS

// Catalog maps dotted keys to format strings.
type Catalog map[string]string

// Translator resolves keys in the current language, then English, then
// returns the key itself.
type Translator struct {
	mu       sync.RWMutex
	lang     string
	catalogs map[string]Catalog
}

// New loads the embedded catalogs and selects lang.
func New(lang string) (*Translator, error) {
	catalogs, err := loadEmbedded()
	if err != nil {
		return nil, err
	}
	t := &Translator{catalogs: catalogs, lang: Fallback}
	t.SetLanguage(lang)
	return t, nil
}

// NewWithCatalogs builds a Translator from explicit catalogs.
func NewWithCatalogs(lang string, catalogs map[string]Catalog) *Translator {
	t := &Translator{catalogs: catalogs, lang: Fallback}
	t.SetLanguage(lang)
	return t
}

// SetLanguage switches language. Unknown languages select the fallback.
func (t *Translator) SetLanguage(lang string) {
	lang = normalize(lang)
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.catalogs[lang]; !ok {
		lang = Fallback
	}
	t.lang = lang
}

// Language returns the selected language.
func (t *Translator) Language() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lang
}

// Languages lists the loaded languages in sorted order.
func (t *Translator) Languages() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.catalogs))
	for lang := range t.catalogs {
		out = append(out, lang)
	}
	slices.Sort(out)
	return out
}

// Next returns the language after the current one, wrapping around.
func (t *Translator) Next() string {
	langs := t.Languages()
	cur := t.Language()
	i := slices.Index(langs, cur)
	return langs[(i+1)%len(langs)]
}

// T translates key and formats it with args when given.
func (t *Translator) T(key string, args ...any) string {
	t.mu.RLock()
	format, ok := t.catalogs[t.lang][key]
	if !ok {
		format, ok = t.catalogs[Fallback][key]
	}
	t.mu.RUnlock()

	if !ok {
		return key
	}
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}

// Has reports whether key exists in the current or fallback language.
func (t *Translator) Has(key string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if _, ok := t.catalogs[t.lang][key]; ok {
		return true
	}
	_, ok := t.catalogs[Fallback][key]
	return ok
}

func normalize(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	return lang
}

func loadEmbedded() (map[string]Catalog, error) {
	entries, err := catalogFS.ReadDir("catalogs")
	if err != nil {
		return nil, fmt.Errorf("read catalogs: %w", err)
	}
	out := make(map[string]Catalog, len(entries))
	for _, e := range entries {
		name := e.Name()
		data, err := catalogFS.ReadFile(path.Join("catalogs", name))
		if err != nil {
			return nil, fmt.Errorf("read catalog %s: %w", name, err)
		}
		cat, err := ParseCatalog(data)
		if err != nil {
			return nil, fmt.Errorf("parse catalog %s: %w", name, err)
		}
		out[strings.TrimSuffix(name, path.Ext(name))] = cat
	}
	return out, nil
}

// ParseCatalog decodes a TOML catalog, flattening tables into dotted keys.
func ParseCatalog(data []byte) (Catalog, error) {
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	cat := Catalog{}
	flatten("", raw, cat)
	return cat, nil
}

func flatten(prefix string, m map[string]any, out Catalog) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]any:
			flatten(key, val, out)
		case string:
			out[key] = val
		default:
			out[key] = fmt.Sprint(val)
		}
	}
}
