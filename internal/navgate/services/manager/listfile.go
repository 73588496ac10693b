package manager

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"unicode"

	"github.com/haukened/navgate/internal/navgate/common/log"
	"github.com/haukened/navgate/internal/navgate/domain"
)

// ParseDomainList reads whitelist entries from a newline-delimited list.
//
//   - '#' starts a comment, whole-line or inline
//   - a line whose first field is an IP address is read hosts-style: every
//     following field is a hostname
//   - a leading "*." or "." marks a wildcard entry, stored as "*.<name>"
//   - names are lowercased, trailing dots dropped, invalid names skipped
//   - duplicates are dropped, first-seen order kept
func ParseDomainList(r io.Reader, logger log.Logger) ([]string, error) {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	scanner := bufio.NewScanner(r)
	seen := make(map[string]struct{})
	var out []string
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimPrefix(scanner.Text(), "\uFEFF")
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if net.ParseIP(fields[0]) != nil {
			fields = fields[1:]
		} else {
			fields = fields[:1]
		}
		for _, raw := range fields {
			entry, ok := listEntry(raw)
			if !ok {
				logger.Debug(map[string]any{"line": lineNum, "raw": raw}, "skipping invalid list entry")
				continue
			}
			if _, dup := seen[entry]; dup {
				continue
			}
			seen[entry] = struct{}{}
			out = append(out, entry)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading domain list: %w", err)
	}
	return out, nil
}

// listEntry canonicalizes one list token.
func listEntry(raw string) (string, bool) {
	wildcard := strings.HasPrefix(raw, "*.") || strings.HasPrefix(raw, ".")
	name := strings.TrimPrefix(strings.TrimPrefix(raw, "*."), ".")
	name = strings.ToLower(strings.TrimSuffix(name, "."))
	if !isValidName(name) {
		return "", false
	}
	if wildcard {
		return "*." + name, true
	}
	return name, true
}

// isValidName requires at least two labels of 1 to 63 characters, a total
// of at most 253, and a first label starting with a letter or digit.
func isValidName(name string) bool {
	if len(name) > 253 {
		return false
	}
	labels := strings.Split(name, ".")
	if len(labels) < 2 {
		return false
	}
	for _, l := range labels {
		if len(l) == 0 || len(l) > 63 || strings.ContainsAny(l, "*/:@ ") {
			return false
		}
	}
	first := []rune(labels[0])[0]
	return unicode.IsLetter(first) || unicode.IsDigit(first)
}

// AddDomains appends every entry not yet present in one write and returns
// how many were new.
func (m *Manager) AddDomains(ctx context.Context, entries []string) (int, error) {
	added := 0
	_, err := m.settings.UpdateWhitelist(ctx, func(w []string) ([]string, bool) {
		for _, e := range entries {
			var ok bool
			if w, ok = domain.AppendUnique(w, e); ok {
				added++
			}
		}
		return w, added > 0
	})
	if err != nil {
		return 0, fmt.Errorf("saving whitelist: %w", err)
	}
	m.logger.Info(map[string]any{"entries": len(entries), "added": added}, "domain list merged")
	return added, nil
}
