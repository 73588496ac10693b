// Package assessor classifies the geographical risk of a destination.
package assessor

import (
	"context"
	"fmt"
	"time"

	"github.com/haukened/navgate/internal/navgate/common/log"
	"github.com/haukened/navgate/internal/navgate/domain"
	"github.com/haukened/navgate/internal/navgate/services/matcher"
)

// Lookup results reported to Metrics.
const (
	ResultOK       = "ok"
	ResultError    = "error"
	ResultDisabled = "disabled"
)

// DefaultTimeout bounds a single provider lookup when Options.Timeout is zero.
const DefaultTimeout = 5 * time.Second

// Provider resolves a hostname to its geolocation.
type Provider interface {
	Name() string
	Lookup(ctx context.Context, hostname string) (domain.GeoInfo, error)
}

// SettingsReader supplies the country block switch and list.
type SettingsReader interface {
	Settings(ctx context.Context) domain.Settings
}

// Metrics collects assessment statistics.
type Metrics interface {
	IncrementLookups(ctx context.Context, result string)
}

// EmptyMetrics is the Metrics implementation that does nothing.
type EmptyMetrics struct{}

// type check
var _ Metrics = EmptyMetrics{}

func (EmptyMetrics) IncrementLookups(context.Context, string) {}

// Options configures an Assessor. Provider and Settings are required.
type Options struct {
	Provider Provider
	Settings SettingsReader
	// Timeout bounds each lookup. Zero uses DefaultTimeout, negative
	// disables the bound.
	Timeout time.Duration
	Logger  log.Logger
	Metrics Metrics
}

// Assessor produces domain.Assessment values. It never returns an error:
// failures are reported inside the Assessment.
type Assessor struct {
	provider Provider
	settings SettingsReader
	timeout  time.Duration
	logger   log.Logger
	metrics  Metrics
}

// New validates opts and returns an Assessor.
func New(opts Options) (*Assessor, error) {
	if opts.Provider == nil {
		return nil, fmt.Errorf("assessor needs a geolocation provider")
	}
	if opts.Settings == nil {
		return nil, fmt.Errorf("assessor needs a settings reader")
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = log.GetLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = EmptyMetrics{}
	}
	return &Assessor{
		provider: opts.Provider,
		settings: opts.Settings,
		timeout:  opts.Timeout,
		logger:   log.With(opts.Logger, map[string]any{"provider": opts.Provider.Name()}),
		metrics:  opts.Metrics,
	}, nil
}

// Assess looks up where rawURL is hosted and classifies it against the
// blocked country list. With country blocking off no lookup is made.
func (a *Assessor) Assess(ctx context.Context, rawURL string) domain.Assessment {
	s := a.settings.Settings(ctx)
	if !s.EnableCountryBlock {
		a.metrics.IncrementLookups(ctx, ResultDisabled)
		return domain.DisabledAssessment()
	}

	host := matcher.HostnameFromURL(rawURL)
	if host == "" {
		a.metrics.IncrementLookups(ctx, ResultError)
		a.logger.Debug(map[string]any{"url": rawURL}, "no hostname to geolocate")
		return domain.FailedAssessment(domain.LookupFailedMessage)
	}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	info, err := a.provider.Lookup(ctx, host)
	if err != nil {
		a.metrics.IncrementLookups(ctx, ResultError)
		a.logger.Warn(map[string]any{"host": host, "error": err}, "geolocation lookup failed")
		return domain.FailedAssessment(domain.LookupFailedMessage)
	}

	a.metrics.IncrementLookups(ctx, ResultOK)
	return domain.Assessment{
		Status:      domain.GeoEnabled,
		Country:     info.Country,
		CountryCode: info.CountryCode,
		Region:      info.Region,
		City:        info.City,
		IP:          info.IP,
		ISP:         info.ISP,
		Risk:        ClassifyRisk(info.CountryCode, s.BlockedCountries),
	}
}

// ClassifyRisk is High iff code matches a blocked record's code.
func ClassifyRisk(code string, blocked domain.CountryRecords) domain.Risk {
	if code != "" && blocked.Contains(code) {
		return domain.RiskHigh
	}
	return domain.RiskLow
}
