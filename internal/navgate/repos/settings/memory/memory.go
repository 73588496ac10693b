// Package memory is an in-process settings backend.
package memory

import (
	"context"
	"sync"

	"github.com/haukened/navgate/internal/navgate/repos/settings"
)

// Store keeps settings in a map. The zero value is not usable; call New.
type Store struct {
	mu     sync.RWMutex
	name   string
	data   settings.Record
	closed bool
}

// New returns an empty Store reporting name in logs.
func New(name string) *Store {
	if name == "" {
		name = "memory"
	}
	return &Store{name: name, data: settings.Record{}}
}

func (s *Store) Name() string { return s.name }

func (s *Store) Get(_ context.Context, keys []string) (settings.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, settings.ErrBackendUnavailable
	}
	out := settings.Record{}
	for _, k := range keys {
		if v, ok := s.data[k]; ok {
			out[k] = append([]byte(nil), v...)
		}
	}
	return out, nil
}

func (s *Store) Set(_ context.Context, rec settings.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return settings.ErrBackendUnavailable
	}
	for k, v := range rec.Clone() {
		s.data[k] = v
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

var _ settings.Backend = (*Store)(nil)
