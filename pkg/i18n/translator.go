package i18n

import (
	"embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// localeFiles embeds the presentation labels.
//
//go:embed locales/*.yaml
var localeFiles embed.FS

// Translator looks up presentation labels by locale with a fallback chain:
// exact locale, base language, default locale, then the key itself.
type Translator struct {
	locales       map[string]map[string]string
	defaultLocale string
	mu            sync.RWMutex
}

// NewTranslator loads every embedded locale.
func NewTranslator(defaultLocale string) (*Translator, error) {
	entries, err := localeFiles.ReadDir("locales")
	if err != nil {
		return nil, fmt.Errorf("read locales: %w", err)
	}

	locales := make(map[string]map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".yaml")
		data, err := localeFiles.ReadFile("locales/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read locale %s: %w", name, err)
		}
		parsed := make(map[string]interface{})
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return nil, fmt.Errorf("parse locale %s: %w", name, err)
		}
		locales[name] = flattenMap(parsed, "")
	}

	if defaultLocale == "" {
		defaultLocale = "en"
	}
	if _, ok := locales[defaultLocale]; !ok {
		return nil, fmt.Errorf("default locale %s missing", defaultLocale)
	}

	return &Translator{locales: locales, defaultLocale: defaultLocale}, nil
}

// Supported returns the loaded locale names, sorted.
func (t *Translator) Supported() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	keys := make([]string, 0, len(t.locales))
	for key := range t.locales {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Text returns the label for key, or key itself when no locale defines it.
func (t *Translator) Text(locale, key string) string {
	if val, ok := t.Lookup(locale, key); ok {
		return val
	}
	return key
}

// Lookup is Text without the key fallback.
func (t *Translator) Lookup(locale, key string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if key == "" {
		return "", false
	}

	for _, candidate := range t.chain(locale) {
		if values, ok := t.locales[candidate]; ok {
			if val, ok := values[key]; ok {
				return val, true
			}
		}
	}
	return "", false
}

// Bind fixes the locale, for callers that render many labels at once.
func (t *Translator) Bind(locale string) Labels {
	return Labels{t: t, locale: locale}
}

// DefaultLocale returns the fallback locale.
func (t *Translator) DefaultLocale() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.defaultLocale
}

func (t *Translator) chain(locale string) []string {
	lookupChain := make([]string, 0, 3)
	if locale != "" {
		lookupChain = append(lookupChain, locale)
		if base := baseLocale(locale); base != locale {
			lookupChain = append(lookupChain, base)
		}
	}
	if t.defaultLocale != "" {
		lookupChain = append(lookupChain, t.defaultLocale)
	}
	return lookupChain
}

// Labels is a Translator bound to one locale. The zero value returns keys.
type Labels struct {
	t      *Translator
	locale string
}

// Text returns the label for key.
func (l Labels) Text(key string) string {
	if l.t == nil {
		return key
	}
	return l.t.Text(l.locale, key)
}

// Locale returns the bound locale.
func (l Labels) Locale() string {
	return l.locale
}

func baseLocale(locale string) string {
	locale = strings.ReplaceAll(locale, "_", "-")
	parts := strings.Split(locale, "-")
	if len(parts) > 1 {
		return parts[0]
	}
	return locale
}

func flattenMap(data map[string]interface{}, prefix string) map[string]string {
	out := make(map[string]string)
	for key, value := range data {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		switch v := value.(type) {
		case map[string]interface{}:
			for nk, nv := range flattenMap(v, fullKey) {
				out[nk] = nv
			}
		case string:
			out[fullKey] = v
		default:
			out[fullKey] = fmt.Sprintf("%v", v)
		}
	}
	return out
}
