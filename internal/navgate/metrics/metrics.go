// Package metrics contains the Prometheus implementations of the metrics
// interfaces declared by the settings, assessor and controller packages.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haukened/navgate/internal/navgate/domain"
)

// Namespace is the default metrics namespace.
const Namespace = "navgate"

const (
	subsystemController = "controller"
	subsystemGeo        = "geo"
	subsystemStorage    = "storage"
)

// Metrics is the Prometheus-based implementation of settings.Metrics,
// assessor.Metrics and controller.Metrics.
type Metrics struct {
	navigations *prometheus.CounterVec
	decisions   *prometheus.CounterVec
	fallbacks   *prometheus.CounterVec
	lookups     *prometheus.CounterVec
}

// New registers the navgate metrics in reg and returns a properly
// initialized *Metrics.
func New(namespace string, reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		navigations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemController,
			Name:      "navigations_total",
			Help:      "Committed navigations evaluated, by resulting state and skip reason.",
		}, []string{"state", "reason"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemController,
			Name:      "messages_total",
			Help:      "Messages handled, by action and result.",
		}, []string{"action", "result"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemStorage,
			Name:      "fallbacks_total",
			Help:      "Operations the primary settings tier could not serve.",
		}, []string{"op"}),
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemGeo,
			Name:      "lookups_total",
			Help:      "Geolocation assessments, by result.",
		}, []string{"result"}),
	}

	var errs []error
	for name, c := range map[string]prometheus.Collector{
		"navigations_total": m.navigations,
		"messages_total":    m.decisions,
		"fallbacks_total":   m.fallbacks,
		"lookups_total":     m.lookups,
	} {
		if err := reg.Register(c); err != nil {
			errs = append(errs, fmt.Errorf("registering metrics %q: %w", name, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return m, nil
}

// IncrementNavigations implements the controller.Metrics interface for
// *Metrics.
func (m *Metrics) IncrementNavigations(_ context.Context, o domain.Outcome) {
	m.navigations.WithLabelValues(o.State.String(), o.Reason.String()).Inc()
}

// IncrementMessages implements the controller.Metrics interface for *Metrics.
func (m *Metrics) IncrementMessages(_ context.Context, action domain.Action, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.decisions.WithLabelValues(string(action), result).Inc()
}

// IncrementFallbacks implements the settings.Metrics interface for *Metrics.
func (m *Metrics) IncrementFallbacks(_ context.Context, op string) {
	m.fallbacks.WithLabelValues(op).Inc()
}

// IncrementLookups implements the assessor.Metrics interface for *Metrics.
func (m *Metrics) IncrementLookups(_ context.Context, result string) {
	m.lookups.WithLabelValues(result).Inc()
}

// Handler serves the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
