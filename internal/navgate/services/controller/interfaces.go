package controller

import (
	"context"

	"github.com/haukened/navgate/internal/navgate/domain"
	"github.com/haukened/navgate/internal/navgate/repos/settings"
)

// Tabs performs tab operations in the browser.
type Tabs interface {
	Update(ctx context.Context, tabID int, url string) error
	Remove(ctx context.Context, tabID int) error
}

// SettingsRepository is the settings surface the controller reads and
// writes. *settings.Repository satisfies it.
type SettingsRepository interface {
	Settings(ctx context.Context) domain.Settings
	UpdateWhitelist(ctx context.Context, fn func([]string) ([]string, bool)) ([]string, error)
	SetFlag(ctx context.Context, key string, enabled bool) error
}

// Initializer seeds absent settings on install. *settings.Tiered satisfies it.
type Initializer interface {
	Initialize(ctx context.Context, defaults settings.Record) error
}

// Assessor produces geolocation risk reports. *assessor.Assessor satisfies it.
type Assessor interface {
	Assess(ctx context.Context, rawURL string) domain.Assessment
}

// Metrics collects controller statistics.
type Metrics interface {
	IncrementNavigations(ctx context.Context, o domain.Outcome)
	IncrementMessages(ctx context.Context, action domain.Action, err error)
}

// EmptyMetrics is the Metrics implementation that does nothing.
type EmptyMetrics struct{}

// type check
var _ Metrics = EmptyMetrics{}

func (EmptyMetrics) IncrementNavigations(context.Context, domain.Outcome)      {}
func (EmptyMetrics) IncrementMessages(context.Context, domain.Action, error) {}

// type checks
var (
	_ SettingsRepository = (*settings.Repository)(nil)
	_ Initializer        = (*settings.Tiered)(nil)
)
