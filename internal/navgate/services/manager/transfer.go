package manager

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"

	"github.com/haukened/navgate/internal/navgate/domain"
)

// ErrInvalidImportFormat is returned when an import document is not an
// object with "whitelist" and "countryBlock" arrays.
var ErrInvalidImportFormat = errors.New(
	"invalid format: the file must contain a JSON object with 'whitelist' and 'countryBlock' arrays",
)

// maxImportSize caps how much of an import document is read.
const maxImportSize = 4 << 20

// ExportDocument is the on-disk backup format. Country records are written
// as JSON-encoded strings.
type ExportDocument struct {
	Whitelist    []string `json:"whitelist"`
	CountryBlock []string `json:"countryBlock"`
}

// ImportResult summarises an import. Domains and Countries count the
// document's entries; the Added fields count what was new.
type ImportResult struct {
	Domains        int `json:"domains"`
	Countries      int `json:"countries"`
	AddedDomains   int `json:"addedDomains"`
	AddedCountries int `json:"addedCountries"`
}

// Export snapshots the whitelist and block list.
func (m *Manager) Export(ctx context.Context) ExportDocument {
	s := m.settings.Settings(ctx)
	doc := ExportDocument{
		Whitelist:    append([]string{}, s.Whitelist...),
		CountryBlock: make([]string, 0, len(s.BlockedCountries)),
	}
	for _, c := range s.BlockedCountries {
		doc.CountryBlock = append(doc.CountryBlock, c.Stringified())
	}
	return doc
}

// ExportFileName is the backup file name for the day of t in UTC.
func ExportFileName(t time.Time) string {
	return "whitelist_domains_" + t.UTC().Format(time.DateOnly) + ".json"
}

// ExportToFile writes the export document into dir, atomically replacing a
// file of the same name. It returns the written path.
func (m *Manager) ExportToFile(ctx context.Context, dir string) (string, error) {
	data, err := json.MarshalIndent(m.Export(ctx), "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding export: %w", err)
	}
	path := filepath.Join(dir, ExportFileName(m.clock.Now()))
	if err := renameio.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	m.logger.Info(map[string]any{"path": path}, "settings exported")
	return path, nil
}

// Import merges a backup document into the stored settings by set union.
// Non-string whitelist elements and undecodable country elements are
// skipped. A malformed document changes nothing.
func (m *Manager) Import(ctx context.Context, r io.Reader) (ImportResult, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxImportSize))
	if err != nil {
		return ImportResult{}, fmt.Errorf("reading import: %w", err)
	}
	domains, countries, err := parseImport(data)
	if err != nil {
		return ImportResult{}, err
	}

	res := ImportResult{Domains: len(domains), Countries: len(countries)}
	_, err = m.settings.Update(ctx, func(s *domain.Settings) ([]string, error) {
		for _, raw := range domains {
			var d string
			if json.Unmarshal(raw, &d) != nil || d == "" {
				continue
			}
			var added bool
			if s.Whitelist, added = domain.AppendUnique(s.Whitelist, d); added {
				res.AddedDomains++
			}
		}
		for _, raw := range countries {
			var c domain.CountryRecord
			if json.Unmarshal(raw, &c) != nil {
				continue
			}
			var added bool
			if s.BlockedCountries, added = s.BlockedCountries.Add(c); added {
				res.AddedCountries++
			}
		}
		var dirty []string
		if res.AddedDomains > 0 {
			dirty = append(dirty, domain.KeyWhitelist)
		}
		if res.AddedCountries > 0 {
			dirty = append(dirty, domain.KeyBlockedCountries)
		}
		return dirty, nil
	})
	if err != nil {
		return ImportResult{}, fmt.Errorf("saving import: %w", err)
	}
	m.logger.Info(map[string]any{
		"domains":   res.AddedDomains,
		"countries": res.AddedCountries,
	}, "settings imported")
	return res, nil
}

func parseImport(data []byte) (domains, countries []json.RawMessage, err error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrInvalidImportFormat, err)
	}
	if doc == nil {
		return nil, nil, ErrInvalidImportFormat
	}
	domains, ok := rawArray(doc["whitelist"])
	if !ok {
		return nil, nil, ErrInvalidImportFormat
	}
	countries, ok = rawArray(doc["countryBlock"])
	if !ok {
		return nil, nil, ErrInvalidImportFormat
	}
	return domains, countries, nil
}

// rawArray decodes raw when it is a JSON array.
func rawArray(raw json.RawMessage) ([]json.RawMessage, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return nil, false
	}
	var out []json.RawMessage
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, false
	}
	return out, true
}
