package content

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// BaseLocale is consulted when a key is missing in the requested locale.
const BaseLocale = "en"

//go:embed defaults.yaml
var defaultsYAML []byte

// Defaults holds the statically registered copy, keyed by locale then content key.
type Defaults struct {
	byLocale map[string]map[string]string
}

// ParseDefaults decodes a locale -> key -> text YAML document.
func ParseDefaults(raw []byte) (*Defaults, error) {
	var byLocale map[string]map[string]string
	if err := yaml.Unmarshal(raw, &byLocale); err != nil {
		return nil, fmt.Errorf("parse copy defaults: %w", err)
	}
	normalized := make(map[string]map[string]string, len(byLocale))
	for loc, keys := range byLocale {
		normalized[strings.ToLower(loc)] = keys
	}
	return &Defaults{byLocale: normalized}, nil
}

// BuiltinDefaults returns the defaults compiled into the binary.
func BuiltinDefaults() *Defaults {
	d, err := ParseDefaults(defaultsYAML)
	if err != nil {
		panic(err)
	}
	return d
}

// Lookup tries the exact locale, then its base language, then BaseLocale.
func (d *Defaults) Lookup(locale, key string) (string, bool) {
	if d == nil {
		return "", false
	}
	for _, loc := range localeChain(locale) {
		if v, ok := d.byLocale[loc][key]; ok {
			return v, true
		}
	}
	return "", false
}

// Locales lists the locales with registered copy, BaseLocale first.
func (d *Defaults) Locales() []string {
	if d == nil {
		return []string{BaseLocale}
	}
	out := make([]string, 0, len(d.byLocale))
	for loc := range d.byLocale {
		if loc != BaseLocale {
			out = append(out, loc)
		}
	}
	sort.Strings(out)
	return append([]string{BaseLocale}, out...)
}

func localeChain(locale string) []string {
	locale = strings.ToLower(strings.ReplaceAll(locale, "_", "-"))
	chain := make([]string, 0, 3)
	if locale != "" {
		chain = append(chain, locale)
		if base, _, ok := strings.Cut(locale, "-"); ok {
			chain = append(chain, base)
		}
	}
	return append(chain, BaseLocale)
}
