// Package settings persists the navigation gate's settings across a primary
// and a fallback key/value backend.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrBackendUnavailable is returned by backends that cannot serve a request,
// for example after Close.
var ErrBackendUnavailable = errors.New("settings backend unavailable")

// Record maps a settings key to its JSON-encoded value. Absent keys are
// omitted, never stored as null.
type Record map[string]json.RawMessage

// Put encodes v under key.
func (r Record) Put(key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	r[key] = b
	return nil
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}

// Backend is one storage tier.
type Backend interface {
	// Name identifies the backend in logs and metrics.
	Name() string
	// Get returns the values stored for keys. Keys with no value are
	// omitted from the result.
	Get(ctx context.Context, keys []string) (Record, error)
	// Set writes every key of rec.
	Set(ctx context.Context, rec Record) error
	Close() error
}

// Metrics collects storage tier statistics.
type Metrics interface {
	// IncrementFallbacks counts an operation that could not be served by the
	// primary tier.
	IncrementFallbacks(ctx context.Context, op string)
}

// EmptyMetrics is the Metrics implementation that does nothing.
type EmptyMetrics struct{}

// type check
var _ Metrics = EmptyMetrics{}

func (EmptyMetrics) IncrementFallbacks(context.Context, string) {}
