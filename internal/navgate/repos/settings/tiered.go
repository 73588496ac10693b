package settings

import (
	"context"
	"errors"
	"fmt"

	"github.com/haukened/navgate/internal/navgate/common/log"
)

// Tiered is the two-tier settings store. Reads go to the primary tier and
// fall back to the secondary one; writes go to both.
type Tiered struct {
	primary  Backend
	fallback Backend
	logger   log.Logger
	metrics  Metrics
}

// TieredOptions configures a Tiered store. Primary and Fallback are required.
type TieredOptions struct {
	Primary  Backend
	Fallback Backend
	Logger   log.Logger
	Metrics  Metrics
}

// NewTiered builds a Tiered store from opts.
func NewTiered(opts TieredOptions) (*Tiered, error) {
	if opts.Primary == nil || opts.Fallback == nil {
		return nil, fmt.Errorf("tiered store needs both a primary and a fallback backend")
	}
	if opts.Logger == nil {
		opts.Logger = log.GetLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = EmptyMetrics{}
	}
	return &Tiered{
		primary:  opts.Primary,
		fallback: opts.Fallback,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
	}, nil
}

// Get returns the stored values for keys. It never fails: when both tiers
// fail the result is an empty Record and callers apply defaults.
func (t *Tiered) Get(ctx context.Context, keys []string) Record {
	rec, err := t.primary.Get(ctx, keys)
	if err == nil {
		return rec
	}
	t.metrics.IncrementFallbacks(ctx, "get")
	t.logger.Warn(map[string]any{
		"backend": t.primary.Name(),
		"error":   err,
	}, "primary settings read failed, using fallback")

	rec, err = t.fallback.Get(ctx, keys)
	if err == nil {
		return rec
	}
	t.logger.Error(map[string]any{
		"backend": t.fallback.Name(),
		"error":   err,
	}, "fallback settings read failed, using defaults")
	return Record{}
}

// Set writes rec to the primary tier and always mirrors it to the fallback
// tier. Only a fallback failure is returned; a primary failure alone is
// logged.
func (t *Tiered) Set(ctx context.Context, rec Record) error {
	primaryErr := t.primary.Set(ctx, rec)
	if primaryErr != nil {
		t.metrics.IncrementFallbacks(ctx, "set")
		t.logger.Warn(map[string]any{
			"backend": t.primary.Name(),
			"error":   primaryErr,
		}, "primary settings write failed")
	}
	if err := t.fallback.Set(ctx, rec); err != nil {
		err = fmt.Errorf("writing %s: %w", t.fallback.Name(), err)
		if primaryErr != nil {
			err = errors.Join(err, fmt.Errorf("writing %s: %w", t.primary.Name(), primaryErr))
		}
		return err
	}
	return nil
}

// Initialize seeds every key of defaults that is absent from storage. It
// tries the primary tier first and repeats against the fallback tier when
// the primary cannot be read or written. Existing values are never touched.
func (t *Tiered) Initialize(ctx context.Context, defaults Record) error {
	err := seed(ctx, t.primary, defaults)
	if err == nil {
		return nil
	}
	t.metrics.IncrementFallbacks(ctx, "initialize")
	t.logger.Warn(map[string]any{
		"backend": t.primary.Name(),
		"error":   err,
	}, "seeding primary settings failed, retrying fallback")

	if err := seed(ctx, t.fallback, defaults); err != nil {
		return fmt.Errorf("seeding %s: %w", t.fallback.Name(), err)
	}
	return nil
}

// Close closes both tiers.
func (t *Tiered) Close() error {
	return errors.Join(t.primary.Close(), t.fallback.Close())
}

func seed(ctx context.Context, b Backend, defaults Record) error {
	keys := make([]string, 0, len(defaults))
	for k := range defaults {
		keys = append(keys, k)
	}
	existing, err := b.Get(ctx, keys)
	if err != nil {
		return err
	}
	missing := Record{}
	for k, v := range defaults {
		if _, ok := existing[k]; !ok {
			missing[k] = v
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return b.Set(ctx, missing)
}
