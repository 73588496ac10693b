package utils

import (
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// HostnameFromURL returns the lowercased hostname of raw, or "" when raw does
// not parse or carries no host (about:, file:, bare words).
func HostnameFromURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// RootDomain keeps the last two labels of name. Names with two labels or
// fewer are returned unchanged. This is deliberately not public-suffix aware:
// "a.example.co.uk" yields "co.uk".
func RootDomain(name string) string {
	parts := strings.Split(name, ".")
	if len(parts) <= 2 {
		return name
	}
	return strings.Join(parts[len(parts)-2:], ".")
}

// IsPublicSuffix reports whether name is itself a public suffix such as
// "com" or "co.uk". A wildcard rooted at a public suffix matches every
// registrable domain underneath it.
func IsPublicSuffix(name string) bool {
	name = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(name)), ".")
	if name == "" {
		return false
	}
	suffix, _ := publicsuffix.PublicSuffix(name)
	return suffix == name
}
