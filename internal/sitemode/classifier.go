// Package sitemode decides, from the request hostname alone, which of the three
// sites a request belongs to. It never touches the database: only an org-public
// classification may lead to a domain-based organization lookup.
package sitemode

import (
	"net"
	"strings"
)

// Mode is the site a hostname maps to.
type Mode int

const (
	OrgPublic Mode = iota
	Marketing
	Admin
)

func (m Mode) String() string {
	switch m {
	case Marketing:
		return "marketing"
	case Admin:
		return "admin"
	default:
		return "org-public"
	}
}

// MarshalText renders the mode name in JSON payloads.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

var loopbackHosts = []string{"localhost", "127.0.0.1", "::1"}

// Classifier maps hostnames to modes. The zero value classifies everything except
// loopback hosts as org-public.
type Classifier struct {
	marketing map[string]struct{}
	admin     map[string]struct{}
	suffixes  []string
}

// NewClassifier builds a classifier. marketingHosts are matched exactly, so both the
// bare domain and its www variant must be listed. devSuffixes are environment
// specific preview domains that route to the admin portal.
func NewClassifier(marketingHosts []string, adminHost string, devSuffixes []string) *Classifier {
	c := &Classifier{
		marketing: make(map[string]struct{}, len(marketingHosts)),
		admin:     make(map[string]struct{}, len(loopbackHosts)+1),
	}
	for _, h := range marketingHosts {
		if h = NormalizeHost(h); h != "" {
			c.marketing[h] = struct{}{}
		}
	}
	if h := NormalizeHost(adminHost); h != "" {
		c.admin[h] = struct{}{}
	}
	for _, h := range loopbackHosts {
		c.admin[h] = struct{}{}
	}
	for _, s := range devSuffixes {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if !strings.HasPrefix(s, ".") {
			s = "." + s
		}
		c.suffixes = append(c.suffixes, s)
	}
	return c
}

// Classify is total: every hostname yields exactly one mode.
func (c *Classifier) Classify(hostname string) Mode {
	host := NormalizeHost(hostname)

	if _, ok := c.marketing[host]; ok {
		return Marketing
	}
	if _, ok := c.admin[host]; ok {
		return Admin
	}
	if isLoopback(host) {
		return Admin
	}
	for _, suffix := range c.suffixes {
		if strings.HasSuffix(host, suffix) {
			return Admin
		}
	}
	return OrgPublic
}

func isLoopback(host string) bool {
	for _, h := range loopbackHosts {
		if host == h {
			return true
		}
	}
	return false
}

// NormalizeHost lowercases a hostname and strips any port, IPv6 brackets and the
// trailing root dot.
func NormalizeHost(raw string) string {
	host := strings.ToLower(strings.TrimSpace(raw))
	if host == "" {
		return ""
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	return strings.TrimSuffix(host, ".")
}
