// Package controller owns the per-navigation state machine: it decides
// whether a committed navigation is redirected to the confirmation page and
// applies the page's decisions.
package controller

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/haukened/navgate/internal/navgate/common/log"
	"github.com/haukened/navgate/internal/navgate/common/utils"
	"github.com/haukened/navgate/internal/navgate/domain"
	"github.com/haukened/navgate/internal/navgate/repos/settings"
	"github.com/haukened/navgate/internal/navgate/repos/whitelist"
	"github.com/haukened/navgate/internal/navgate/services/matcher"
)

// Response is the reply to a Message.
type Response struct {
	State   domain.NavigationState `json:"state,omitempty"`
	Domain  string                 `json:"domain,omitempty"`
	Enabled *bool                  `json:"enabled,omitempty"`
	Geo     *domain.Assessment     `json:"geo,omitempty"`
}

// Options configures a Controller. Tabs, Settings and InterstitialURL are
// required.
type Options struct {
	Tabs        Tabs
	Settings    SettingsRepository
	Initializer Initializer
	Assessor    Assessor
	// Whitelist compiles whitelist snapshots. Nil matches with the plain
	// linear scan.
	Whitelist *whitelist.Cache
	// InterstitialURL is the address of the confirmation page.
	InterstitialURL string
	Logger          log.Logger
	Metrics         Metrics
	// NewID returns navigation correlation ids. Nil uses random UUIDs.
	NewID func() string
}

// Controller is constructed once per process and shared by every handler.
type Controller struct {
	tabs         Tabs
	settings     SettingsRepository
	initializer  Initializer
	assessor     Assessor
	whitelist    *whitelist.Cache
	interstitial string
	logger       log.Logger
	metrics      Metrics
	newID        func() string

	mu      sync.RWMutex
	session map[string]struct{}
}

// New validates opts and returns a Controller with an empty session allow set.
func New(opts Options) (*Controller, error) {
	if opts.Tabs == nil || opts.Settings == nil {
		return nil, fmt.Errorf("controller needs tabs and a settings repository")
	}
	if opts.InterstitialURL == "" {
		return nil, fmt.Errorf("controller needs the interstitial url")
	}
	if opts.Logger == nil {
		opts.Logger = log.GetLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = EmptyMetrics{}
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Controller{
		tabs:         opts.Tabs,
		settings:     opts.Settings,
		initializer:  opts.Initializer,
		assessor:     opts.Assessor,
		whitelist:    opts.Whitelist,
		interstitial: opts.InterstitialURL,
		logger:       log.With(opts.Logger, map[string]any{"component": "controller"}),
		metrics:      opts.Metrics,
		newID:        opts.NewID,
		session:      make(map[string]struct{}),
	}, nil
}

// HandleNavigation evaluates one committed navigation. Anything that cannot
// be evaluated is allowed. A redirect replaces the tab's location with the
// confirmation page.
func (c *Controller) HandleNavigation(ctx context.Context, req domain.NavigationRequest) (domain.Outcome, error) {
	out, err := c.evaluate(ctx, req)
	c.metrics.IncrementNavigations(ctx, out)
	return out, err
}

func (c *Controller) evaluate(ctx context.Context, req domain.NavigationRequest) (domain.Outcome, error) {
	allow := func(reason domain.SkipReason, host string) (domain.Outcome, error) {
		return domain.Outcome{State: domain.StateAllowed, Reason: reason, Domain: host}, nil
	}
	if !req.IsMainFrame() {
		return allow(domain.SkipSubFrame, "")
	}

	s := c.settings.Settings(ctx)
	if !s.EnablePreemptiveChecks {
		return allow(domain.SkipChecksDisabled, "")
	}

	host := matcher.HostnameFromURL(req.URL)
	switch {
	case host == "":
		return allow(domain.SkipNoHostname, "")
	case domain.HasExcludedScheme(req.URL):
		return allow(domain.SkipExcludedScheme, host)
	case strings.Contains(req.URL, domain.InterstitialPage):
		return allow(domain.SkipInterstitial, host)
	case c.isWhitelisted(host, s.Whitelist):
		return allow(domain.SkipWhitelisted, host)
	case c.SessionAllowed(host):
		return allow(domain.SkipSessionAllowed, host)
	}

	id := c.newID()
	pending := domain.PendingDecision{Domain: host, URL: req.URL, TabID: req.TabID}
	target := pending.InterstitialURL(c.interstitial)
	if err := c.tabs.Update(ctx, req.TabID, target); err != nil {
		c.logger.Error(map[string]any{
			"navigation": id,
			"tab":        req.TabID,
			"error":      err,
		}, "redirect to confirmation page failed")
		return domain.Outcome{State: domain.StateEvaluating, Domain: host, NavigationID: id},
			fmt.Errorf("redirecting tab %d: %w", req.TabID, err)
	}
	c.logger.Info(map[string]any{
		"navigation": id,
		"tab":        req.TabID,
		"domain":     host,
	}, "navigation redirected for confirmation")
	return domain.Outcome{
		State:        domain.StateRedirected,
		Domain:       host,
		Interstitial: target,
		NavigationID: id,
	}, nil
}

func (c *Controller) isWhitelisted(host string, entries []string) bool {
	if c.whitelist == nil {
		return matcher.IsWhitelisted(host, entries)
	}
	return c.whitelist.For(entries).Contains(host)
}

// HandleMessage applies one decision or settings message.
func (c *Controller) HandleMessage(ctx context.Context, msg domain.Message) (Response, error) {
	resp, err := c.dispatch(ctx, msg)
	c.metrics.IncrementMessages(ctx, msg.Action(), err)
	return resp, err
}

func (c *Controller) dispatch(ctx context.Context, msg domain.Message) (Response, error) {
	switch m := msg.(type) {
	case domain.ContinueNavigation:
		return c.continueOnce(ctx, m)
	case domain.WhitelistAndContinue:
		return c.whitelistAndContinue(ctx, m)
	case domain.ExitNavigation:
		if err := c.tabs.Remove(ctx, m.TabID); err != nil {
			return Response{}, fmt.Errorf("closing tab %d: %w", m.TabID, err)
		}
		return Response{State: domain.StateAborted}, nil
	case domain.TogglePreemptiveChecks:
		return c.toggle(ctx, domain.KeyEnablePreemptiveChecks, *m.Enabled), nil
	case domain.ToggleCountryBlock:
		return c.toggle(ctx, domain.KeyEnableCountryBlock, *m.Enabled), nil
	case domain.SecurityCheck:
		if c.assessor == nil {
			geo := domain.FailedAssessment(domain.LookupFailedMessage)
			return Response{Geo: &geo}, nil
		}
		geo := c.assessor.Assess(ctx, m.URL)
		return Response{Geo: &geo}, nil
	default:
		return Response{}, fmt.Errorf("%w: %T", domain.ErrUnknownAction, msg)
	}
}

func (c *Controller) continueOnce(ctx context.Context, m domain.ContinueNavigation) (Response, error) {
	c.mu.Lock()
	c.session[m.Domain] = struct{}{}
	c.mu.Unlock()
	if err := c.tabs.Update(ctx, m.TabID, m.URL); err != nil {
		return Response{}, fmt.Errorf("resuming tab %d: %w", m.TabID, err)
	}
	c.logger.Debug(map[string]any{"domain": m.Domain, "tab": m.TabID}, "domain allowed for this session")
	return Response{State: domain.StateContinuedOnce, Domain: m.Domain}, nil
}

// whitelistAndContinue persists the entry best-effort: the tab resumes even
// when the write fails.
func (c *Controller) whitelistAndContinue(ctx context.Context, m domain.WhitelistAndContinue) (Response, error) {
	state := domain.StateWhitelisted
	if suffix, ok := domain.WildcardSuffix(m.Domain); ok {
		state = domain.StateWildcardWhitelisted
		if utils.IsPublicSuffix(suffix) {
			c.logger.Warn(map[string]any{"entry": m.Domain}, "wildcard covers a whole public suffix")
		}
	}

	_, err := c.settings.UpdateWhitelist(ctx, func(w []string) ([]string, bool) {
		return domain.AppendUnique(w, m.Domain)
	})
	if err != nil {
		c.logger.Error(map[string]any{"entry": m.Domain, "error": err}, "failed to save whitelist")
	}

	if err := c.tabs.Update(ctx, m.TabID, m.URL); err != nil {
		return Response{}, fmt.Errorf("resuming tab %d: %w", m.TabID, err)
	}
	return Response{State: state, Domain: m.Domain}, nil
}

// toggle persists a switch; a failed write is logged, not returned.
func (c *Controller) toggle(ctx context.Context, key string, enabled bool) Response {
	if err := c.settings.SetFlag(ctx, key, enabled); err != nil {
		c.logger.Error(map[string]any{"key": key, "enabled": enabled, "error": err}, "failed to save setting")
	}
	return Response{Enabled: &enabled}
}

// Install seeds absent settings with their defaults.
func (c *Controller) Install(ctx context.Context) error {
	if c.initializer == nil {
		return nil
	}
	if err := c.initializer.Initialize(ctx, settings.Defaults()); err != nil {
		c.logger.Error(map[string]any{"error": err}, "failed to initialize settings")
		return err
	}
	c.logger.Info(nil, "settings initialized")
	return nil
}

// Suspend forgets every session-allowed domain.
func (c *Controller) Suspend() {
	c.mu.Lock()
	c.session = make(map[string]struct{})
	c.mu.Unlock()
	c.logger.Debug(nil, "session allow set cleared")
}

// SessionAllowed reports whether host was allowed for this session.
func (c *Controller) SessionAllowed(host string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.session[host]
	return ok
}
