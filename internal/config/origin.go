package config

import (
	"fmt"
	"net/url"
	"strings"
)

// SanitizeTrustedDomain validates and normalizes a trusted domain value.
// It returns the host (optionally with port) in lowercase, with any scheme removed.
// Paths, queries, fragments, wildcards, and empty values are rejected.
func SanitizeTrustedDomain(raw string) (string, error) {
	cleaned := strings.TrimSpace(raw)
	if cleaned == "" {
		return "", fmt.Errorf("domain cannot be empty")
	}

	cleaned = strings.ToLower(cleaned)

	cleaned = strings.TrimPrefix(cleaned, "http://")
	cleaned = strings.TrimPrefix(cleaned, "https://")

	// Remove a single trailing slash (root path)
	cleaned = strings.TrimSuffix(cleaned, "/")

	if strings.ContainsAny(cleaned, " \t\r\n") {
		return "", fmt.Errorf("domain cannot contain whitespace")
	}
	if strings.Contains(cleaned, "*") {
		return "", fmt.Errorf("wildcards are not allowed in trusted origins")
	}

	// Use url.Parse to validate host[:port] without allowing paths or queries.
	u, err := url.Parse("http://" + cleaned)
	if err != nil {
		return "", fmt.Errorf("invalid domain format")
	}

	if u.Host == "" || u.Path != "" || u.RawQuery != "" || u.Fragment != "" {
		return "", fmt.Errorf("domain must not include path, query, or fragment")
	}

	return u.Host, nil
}

// NormalizeOrigin reduces an origin string to "scheme://host[:port]" in lowercase.
// It returns "" for anything that is not an absolute http(s) origin, including the
// opaque "null" origin browsers send from sandboxed frames.
func NormalizeOrigin(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return ""
	}
	host := strings.ToLower(u.Host)
	// Default ports are not part of the serialized origin.
	if (scheme == "http" && strings.HasSuffix(host, ":80")) || (scheme == "https" && strings.HasSuffix(host, ":443")) {
		host = host[:strings.LastIndex(host, ":")]
	}
	return scheme + "://" + host
}

// OriginAllowed reports whether origin equals currentOrigin or one of the trusted
// origins. Comparison is on normalized origins; an unparseable origin never matches.
func OriginAllowed(origin, currentOrigin string, trusted ...string) bool {
	normalized := NormalizeOrigin(origin)
	if normalized == "" {
		return false
	}
	if normalized == NormalizeOrigin(currentOrigin) {
		return true
	}
	for _, t := range trusted {
		if normalized == NormalizeOrigin(t) {
			return true
		}
	}
	return false
}
