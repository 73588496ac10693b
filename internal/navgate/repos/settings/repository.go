package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/haukened/navgate/internal/navgate/common/log"
	"github.com/haukened/navgate/internal/navgate/domain"
)

// Store is the read/write surface the Repository needs. *Tiered satisfies it.
type Store interface {
	Get(ctx context.Context, keys []string) Record
	Set(ctx context.Context, rec Record) error
}

// type check
var _ Store = (*Tiered)(nil)

// Repository exposes typed access to the settings keys. Update serialises
// read-modify-write cycles issued through the same Repository; writers in
// other processes sharing a backend can still overwrite each other.
type Repository struct {
	mu     sync.Mutex
	store  Store
	logger log.Logger
}

// NewRepository wraps store. A nil logger uses the global logger.
func NewRepository(store Store, logger log.Logger) *Repository {
	if logger == nil {
		logger = log.GetLogger()
	}
	return &Repository{store: store, logger: logger}
}

// Settings reads every key, substituting defaults for absent or undecodable
// values.
func (r *Repository) Settings(ctx context.Context) domain.Settings {
	return r.decode(r.store.Get(ctx, domain.SettingsKeys))
}

// Whitelist returns the stored whitelist in insertion order.
func (r *Repository) Whitelist(ctx context.Context) []string {
	return r.decode(r.store.Get(ctx, []string{domain.KeyWhitelist})).Whitelist
}

// BlockedCountries returns the stored country block list.
func (r *Repository) BlockedCountries(ctx context.Context) domain.CountryRecords {
	return r.decode(r.store.Get(ctx, []string{domain.KeyBlockedCountries})).BlockedCountries
}

// SaveWhitelist replaces the stored whitelist.
func (r *Repository) SaveWhitelist(ctx context.Context, entries []string) error {
	s := domain.Settings{Whitelist: entries}
	return r.write(ctx, &s, domain.KeyWhitelist)
}

// SaveBlockedCountries replaces the stored country block list.
func (r *Repository) SaveBlockedCountries(ctx context.Context, cs domain.CountryRecords) error {
	s := domain.Settings{BlockedCountries: cs}
	return r.write(ctx, &s, domain.KeyBlockedCountries)
}

// SetFlag persists one of the two boolean switches.
func (r *Repository) SetFlag(ctx context.Context, key string, enabled bool) error {
	var s domain.Settings
	switch key {
	case domain.KeyEnablePreemptiveChecks:
		s.EnablePreemptiveChecks = enabled
	case domain.KeyEnableCountryBlock:
		s.EnableCountryBlock = enabled
	default:
		return fmt.Errorf("%q is not a boolean setting", key)
	}
	return r.write(ctx, &s, key)
}

// SaveAll writes every settings key.
func (r *Repository) SaveAll(ctx context.Context, s domain.Settings) error {
	return r.write(ctx, &s, domain.SettingsKeys...)
}

// Update reads the current settings, lets fn modify them and writes back the
// keys fn reports as dirty in a single Set. Nothing is written when fn
// returns no keys or an error.
func (r *Repository) Update(ctx context.Context, fn func(s *domain.Settings) ([]string, error)) (domain.Settings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.Settings(ctx)
	dirty, err := fn(&s)
	if err != nil || len(dirty) == 0 {
		return s, err
	}
	return s, r.write(ctx, &s, dirty...)
}

// UpdateWhitelist applies fn to the stored whitelist and persists the result
// when fn reports a change.
func (r *Repository) UpdateWhitelist(ctx context.Context, fn func([]string) ([]string, bool)) ([]string, error) {
	s, err := r.Update(ctx, func(s *domain.Settings) ([]string, error) {
		next, changed := fn(slices.Clone(s.Whitelist))
		if !changed {
			return nil, nil
		}
		s.Whitelist = next
		return []string{domain.KeyWhitelist}, nil
	})
	return s.Whitelist, err
}

// UpdateBlockedCountries applies fn to the stored block list and persists
// the result when fn reports a change.
func (r *Repository) UpdateBlockedCountries(ctx context.Context, fn func(domain.CountryRecords) (domain.CountryRecords, bool)) (domain.CountryRecords, error) {
	s, err := r.Update(ctx, func(s *domain.Settings) ([]string, error) {
		next, changed := fn(slices.Clone(s.BlockedCountries))
		if !changed {
			return nil, nil
		}
		s.BlockedCountries = next
		return []string{domain.KeyBlockedCountries}, nil
	})
	return s.BlockedCountries, err
}

func (r *Repository) write(ctx context.Context, s *domain.Settings, keys ...string) error {
	rec, err := Encode(*s, keys...)
	if err != nil {
		return err
	}
	return r.store.Set(ctx, rec)
}

func (r *Repository) decode(rec Record) domain.Settings {
	s := domain.DefaultSettings()
	for key, raw := range rec {
		var err error
		switch key {
		case domain.KeyEnablePreemptiveChecks:
			err = json.Unmarshal(raw, &s.EnablePreemptiveChecks)
		case domain.KeyEnableCountryBlock:
			err = json.Unmarshal(raw, &s.EnableCountryBlock)
		case domain.KeyWhitelist:
			var w []string
			if err = json.Unmarshal(raw, &w); err == nil && w != nil {
				s.Whitelist = w
			}
		case domain.KeyBlockedCountries:
			s.BlockedCountries, err = decodeCountries(raw)
		}
		if err != nil {
			r.logger.Warn(map[string]any{"key": key, "error": err}, "ignoring undecodable setting")
		}
	}
	return s
}

// decodeCountries decodes a country list element by element so one bad
// entry does not discard the rest.
func decodeCountries(raw json.RawMessage) (domain.CountryRecords, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return domain.CountryRecords{}, err
	}
	out := make(domain.CountryRecords, 0, len(elems))
	var firstErr error
	for _, e := range elems {
		var c domain.CountryRecord
		if err := json.Unmarshal(e, &c); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		out = append(out, c)
	}
	return out, firstErr
}

// Encode renders the named keys of s as a Record. With no keys every
// settings key is encoded.
func Encode(s domain.Settings, keys ...string) (Record, error) {
	if len(keys) == 0 {
		keys = domain.SettingsKeys
	}
	if s.Whitelist == nil {
		s.Whitelist = []string{}
	}
	if s.BlockedCountries == nil {
		s.BlockedCountries = domain.CountryRecords{}
	}
	rec := make(Record, len(keys))
	for _, key := range keys {
		var v any
		switch key {
		case domain.KeyEnablePreemptiveChecks:
			v = s.EnablePreemptiveChecks
		case domain.KeyEnableCountryBlock:
			v = s.EnableCountryBlock
		case domain.KeyWhitelist:
			v = s.Whitelist
		case domain.KeyBlockedCountries:
			v = s.BlockedCountries
		default:
			return nil, fmt.Errorf("unknown settings key %q", key)
		}
		if err := rec.Put(key, v); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

// Defaults is the Record seeded on first install.
func Defaults() Record {
	rec, _ := Encode(domain.DefaultSettings())
	return rec
}
