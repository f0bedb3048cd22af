// Package localization renders user-visible failure strings. Translations are
// JSON files named by language code ("en.json", "uk.json").
package localization

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"sync"
)

//go:embed locales/*.json
var bundled embed.FS

// DefaultLang is used when a key is missing in the requested language.
const DefaultLang = "en"

// Localizer holds one key/value table per language.
type Localizer struct {
	translations map[string]map[string]string
	mu           sync.RWMutex
}

// NewLocalizer loads every *.json file in dir of fsys.
func NewLocalizer(fsys fs.FS, dir string) (*Localizer, error) {
	l := &Localizer{
		translations: make(map[string]map[string]string),
	}

	files, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read localization directory: %w", err)
	}

	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
			continue
		}

		data, err := fs.ReadFile(fsys, path.Join(dir, file.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read localization file %s: %w", file.Name(), err)
		}

		var table map[string]string
		if err := json.Unmarshal(data, &table); err != nil {
			return nil, fmt.Errorf("failed to parse localization file %s: %w", file.Name(), err)
		}
		l.translations[strings.TrimSuffix(file.Name(), ".json")] = table
	}

	return l, nil
}

// Bundled returns the localizer built from the embedded locales.
func Bundled() (*Localizer, error) {
	return NewLocalizer(bundled, "locales")
}

// GetString returns the string for key in lang, then in DefaultLang, then the
// key itself.
func (l *Localizer) GetString(lang, key string) string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if value, ok := l.translations[lang][key]; ok {
		return value
	}
	if value, ok := l.translations[DefaultLang][key]; ok {
		return value
	}
	return key
}

// Lang picks the first supported language of an Accept-Language header.
func (l *Localizer) Lang(acceptLanguage string) string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, part := range strings.Split(acceptLanguage, ",") {
		tag := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		tag = strings.ToLower(strings.SplitN(tag, "-", 2)[0])
		if _, ok := l.translations[tag]; ok {
			return tag
		}
	}
	return DefaultLang
}
