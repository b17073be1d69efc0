// Package httpx holds small helpers shared by HTTP handlers.
package httpx

import (
	"net"
	"strings"

	"github.com/seuros/haven/internal/config"
)

// ClientIP derives the caller's address. header reads a request header; remoteAddr is
// the socket peer. Forwarding headers are trusted only in the matching proxy mode.
func ClientIP(header func(string) string, remoteAddr, proxyMode string) string {
	switch proxyMode {
	case config.ProxyCloudflare:
		if cfIP := header("CF-Connecting-IP"); cfIP != "" {
			return firstAddress(cfIP)
		}
	case config.ProxyXForwarded:
		if xff := header("X-Forwarded-For"); xff != "" {
			return firstAddress(xff)
		}
		if realIP := header("X-Real-IP"); realIP != "" {
			return strings.TrimSpace(realIP)
		}
	}
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

func firstAddress(list string) string {
	return strings.TrimSpace(strings.Split(list, ",")[0])
}
