package domain

import "strings"

// WildcardPrefix marks a whitelist entry as a wildcard-suffix pattern.
const WildcardPrefix = "*."

// IsWildcard reports whether entry is a wildcard-suffix pattern ("*.example.com").
func IsWildcard(entry string) bool {
	return strings.HasPrefix(entry, WildcardPrefix)
}

// WildcardSuffix returns the part of a wildcard entry a hostname must end
// with. The second return is false for literal entries.
func WildcardSuffix(entry string) (string, bool) {
	if !IsWildcard(entry) {
		return "", false
	}
	return entry[len(WildcardPrefix):], true
}

// AppendUnique appends entry to list unless it is already present. The
// returned bool reports whether list changed. Insertion order is preserved.
func AppendUnique(list []string, entry string) ([]string, bool) {
	for _, e := range list {
		if e == entry {
			return list, false
		}
	}
	return append(list, entry), true
}
