// Package manager implements the whitelist, country and switch management
// operations offered by the popup and the command line.
package manager

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/haukened/navgate/internal/navgate/common/clock"
	"github.com/haukened/navgate/internal/navgate/common/log"
	"github.com/haukened/navgate/internal/navgate/common/utils"
	"github.com/haukened/navgate/internal/navgate/domain"
	"github.com/haukened/navgate/internal/navgate/repos/settings"
)

var (
	// ErrEmptyDomain is returned when the input holds no domain.
	ErrEmptyDomain = errors.New("empty domain")
	// ErrAlreadyWhitelisted is returned when adding an entry that is present.
	ErrAlreadyWhitelisted = errors.New("domain is already in the whitelist")
	// ErrInvalidCountry is returned for a country record without a code.
	ErrInvalidCountry = errors.New("country record needs a code")
)

// Repository is the settings surface the manager needs. *settings.Repository
// satisfies it.
type Repository interface {
	Settings(ctx context.Context) domain.Settings
	Whitelist(ctx context.Context) []string
	BlockedCountries(ctx context.Context) domain.CountryRecords
	Update(ctx context.Context, fn func(s *domain.Settings) ([]string, error)) (domain.Settings, error)
	UpdateWhitelist(ctx context.Context, fn func([]string) ([]string, bool)) ([]string, error)
	UpdateBlockedCountries(ctx context.Context, fn func(domain.CountryRecords) (domain.CountryRecords, bool)) (domain.CountryRecords, error)
	SetFlag(ctx context.Context, key string, enabled bool) error
}

// type check
var _ Repository = (*settings.Repository)(nil)

// Options configures a Manager. Settings is required.
type Options struct {
	Settings Repository
	Clock    clock.Clock
	Logger   log.Logger
}

// Manager applies management operations to the stored settings.
type Manager struct {
	settings Repository
	clock    clock.Clock
	logger   log.Logger
}

// New returns a Manager for opts.
func New(opts Options) (*Manager, error) {
	if opts.Settings == nil {
		return nil, fmt.Errorf("manager needs a settings repository")
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = log.GetLogger()
	}
	return &Manager{
		settings: opts.Settings,
		clock:    opts.Clock,
		logger:   log.With(opts.Logger, map[string]any{"component": "manager"}),
	}, nil
}

// NormalizeDomain turns user input into a whitelist entry: it trims space,
// drops an http:// or https:// prefix and everything from the first "/".
func NormalizeDomain(input string) string {
	d := strings.TrimSpace(input)
	if strings.HasPrefix(d, "http://") || strings.HasPrefix(d, "https://") {
		_, d, _ = strings.Cut(d, "//")
	}
	d, _, _ = strings.Cut(d, "/")
	return d
}

// AddDomain normalizes input and appends it to the whitelist. It returns the
// stored entry.
func (m *Manager) AddDomain(ctx context.Context, input string) (string, error) {
	entry := NormalizeDomain(input)
	if entry == "" {
		return "", ErrEmptyDomain
	}
	if suffix, ok := domain.WildcardSuffix(entry); ok && utils.IsPublicSuffix(suffix) {
		m.logger.Warn(map[string]any{"entry": entry}, "wildcard covers a whole public suffix")
	}

	var added bool
	_, err := m.settings.UpdateWhitelist(ctx, func(w []string) ([]string, bool) {
		w, added = domain.AppendUnique(w, entry)
		return w, added
	})
	if err != nil {
		return "", fmt.Errorf("saving whitelist: %w", err)
	}
	if !added {
		return entry, ErrAlreadyWhitelisted
	}
	m.logger.Info(map[string]any{"entry": entry}, "domain whitelisted")
	return entry, nil
}

// RemoveDomain deletes entry from the whitelist and reports whether it was
// present.
func (m *Manager) RemoveDomain(ctx context.Context, entry string) (bool, error) {
	var removed bool
	_, err := m.settings.UpdateWhitelist(ctx, func(w []string) ([]string, bool) {
		n := len(w)
		w = slices.DeleteFunc(w, func(e string) bool { return e == entry })
		removed = len(w) != n
		return w, removed
	})
	if err != nil {
		return false, fmt.Errorf("saving whitelist: %w", err)
	}
	return removed, nil
}

// ListWhitelist returns the whitelist sorted case-insensitively. Stored
// order is not changed.
func (m *Manager) ListWhitelist(ctx context.Context) []string {
	w := slices.Clone(m.settings.Whitelist(ctx))
	slices.SortStableFunc(w, func(a, b string) int {
		return cmp.Compare(strings.ToLower(a), strings.ToLower(b))
	})
	return w
}

// BlockCountry adds rec to the block list unless its code is present.
func (m *Manager) BlockCountry(ctx context.Context, rec domain.CountryRecord) (bool, error) {
	rec.Code = strings.ToUpper(strings.TrimSpace(rec.Code))
	if rec.Code == "" {
		return false, ErrInvalidCountry
	}
	var added bool
	_, err := m.settings.UpdateBlockedCountries(ctx, func(cs domain.CountryRecords) (domain.CountryRecords, bool) {
		cs, added = cs.Add(rec)
		return cs, added
	})
	if err != nil {
		return false, fmt.Errorf("saving blocked countries: %w", err)
	}
	return added, nil
}

// UnblockCountry removes every record with code and reports whether any
// was present.
func (m *Manager) UnblockCountry(ctx context.Context, code string) (bool, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	var removed bool
	_, err := m.settings.UpdateBlockedCountries(ctx, func(cs domain.CountryRecords) (domain.CountryRecords, bool) {
		removed = cs.Contains(code)
		return cs.Without(code), removed
	})
	if err != nil {
		return false, fmt.Errorf("saving blocked countries: %w", err)
	}
	return removed, nil
}

// ListBlockedCountries returns the block list in stored order.
func (m *Manager) ListBlockedCountries(ctx context.Context) domain.CountryRecords {
	return m.settings.BlockedCountries(ctx)
}

// SetPreemptiveChecks switches navigation interception on or off.
func (m *Manager) SetPreemptiveChecks(ctx context.Context, enabled bool) error {
	return m.settings.SetFlag(ctx, domain.KeyEnablePreemptiveChecks, enabled)
}

// SetCountryBlock switches geolocation assessment on or off.
func (m *Manager) SetCountryBlock(ctx context.Context, enabled bool) error {
	return m.settings.SetFlag(ctx, domain.KeyEnableCountryBlock, enabled)
}

// Settings returns the current settings.
func (m *Manager) Settings(ctx context.Context) domain.Settings {
	return m.settings.Settings(ctx)
}
