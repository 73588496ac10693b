// Package matcher decides whether a hostname may load without confirmation.
// Every function here is pure; callers supply the whitelist and session set.
package matcher

import (
	"strings"

	"github.com/haukened/navgate/internal/navgate/common/utils"
	"github.com/haukened/navgate/internal/navgate/domain"
)

// HostnameFromURL extracts the hostname the browser would report for raw.
// It returns "" for anything that cannot be evaluated, and callers must treat
// "" as "do not intercept".
func HostnameFromURL(raw string) string {
	return utils.HostnameFromURL(raw)
}

// IsWhitelisted reports whether hostname is an exact member of whitelist or
// ends with the suffix of any "*." entry. All entries are equivalent; the
// first match wins.
func IsWhitelisted(hostname string, whitelist []string) bool {
	for _, entry := range whitelist {
		if entry == hostname {
			return true
		}
		if suffix, ok := domain.WildcardSuffix(entry); ok && strings.HasSuffix(hostname, suffix) {
			return true
		}
	}
	return false
}

// IsAllowed reports whether hostname may load: whitelist membership first,
// then the session allow set.
func IsAllowed(hostname string, whitelist []string, session map[string]struct{}) bool {
	if IsWhitelisted(hostname, whitelist) {
		return true
	}
	_, ok := session[hostname]
	return ok
}

// WildcardFor derives the wildcard entry offered by the confirmation page:
// "*." followed by the last two labels of d.
func WildcardFor(d string) string {
	return domain.WildcardPrefix + utils.RootDomain(d)
}
