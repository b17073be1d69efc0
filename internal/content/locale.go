package content

import (
	"strings"

	"golang.org/x/text/language"
)

// LocaleMatcher picks the best supported locale for a request.
type LocaleMatcher struct {
	supported []string
	matcher   language.Matcher
	fallback  string
}

// NewLocaleMatcher builds a matcher over supported. The first entry is used when
// nothing matches and no fallback is given.
func NewLocaleMatcher(supported []string, fallback string) *LocaleMatcher {
	if len(supported) == 0 {
		supported = []string{BaseLocale}
	}
	tags := make([]language.Tag, 0, len(supported))
	kept := make([]string, 0, len(supported))
	for _, s := range supported {
		tag, err := language.Parse(s)
		if err != nil {
			continue
		}
		tags = append(tags, tag)
		kept = append(kept, strings.ToLower(s))
	}
	if fallback == "" && len(kept) > 0 {
		fallback = kept[0]
	}
	return &LocaleMatcher{supported: kept, matcher: language.NewMatcher(tags), fallback: fallback}
}

// Match negotiates from an Accept-Language header. When the header yields nothing
// usable, countryCode (ISO 3166 alpha-2, e.g. from GeoIP) hints the language.
func (m *LocaleMatcher) Match(acceptLanguage, countryCode string) string {
	if tags, _, err := language.ParseAcceptLanguage(acceptLanguage); err == nil && len(tags) > 0 {
		if loc, ok := m.match(tags...); ok {
			return loc
		}
	}
	if countryCode != "" {
		if region, err := language.ParseRegion(countryCode); err == nil {
			// "und-ES" maximizes to the region's most likely language.
			if tag, err := language.Compose(language.Und, region); err == nil {
				if base, conf := tag.Base(); conf != language.No {
					if loc, ok := m.match(language.Make(base.String())); ok {
						return loc
					}
				}
			}
		}
	}
	return m.fallback
}

func (m *LocaleMatcher) match(tags ...language.Tag) (string, bool) {
	if len(m.supported) == 0 {
		return "", false
	}
	_, idx, conf := m.matcher.Match(tags...)
	if conf == language.No {
		return "", false
	}
	return m.supported[idx], true
}
