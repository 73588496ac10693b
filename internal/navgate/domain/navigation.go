package domain

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// MainFrameID is the frame id of a top-level navigation.
const MainFrameID = 0

// InterstitialPage is the file name of the confirmation page. Any URL that
// contains it is never intercepted again.
const InterstitialPage = "confirmation.html"

// ExcludedSchemes are URL prefixes that are never intercepted.
var ExcludedSchemes = []string{"about:", "chrome:", "moz:", "file:"}

// NavigationRequest describes one committed navigation event.
type NavigationRequest struct {
	TabID   int    `json:"tabId"`
	URL     string `json:"url"`
	FrameID int    `json:"frameId"`
}

// IsMainFrame reports whether the event belongs to a top-level navigation.
func (n NavigationRequest) IsMainFrame() bool { return n.FrameID == MainFrameID }

// HasExcludedScheme reports whether rawURL starts with one of ExcludedSchemes.
func HasExcludedScheme(rawURL string) bool {
	for _, s := range ExcludedSchemes {
		if strings.HasPrefix(rawURL, s) {
			return true
		}
	}
	return false
}

// PendingDecision is the context carried by the interstitial page's query
// string, enough to resume or abort the navigation later.
type PendingDecision struct {
	Domain string `json:"domain"`
	URL    string `json:"url"`
	TabID  int    `json:"tabId"`
}

// InterstitialURL renders the confirmation page address for p. Parameters
// are emitted in domain, url, tabId order.
func (p PendingDecision) InterstitialURL(base string) string {
	var b strings.Builder
	b.WriteString(base)
	b.WriteString("?domain=")
	b.WriteString(url.QueryEscape(p.Domain))
	b.WriteString("&url=")
	b.WriteString(url.QueryEscape(p.URL))
	b.WriteString("&tabId=")
	b.WriteString(strconv.Itoa(p.TabID))
	return b.String()
}

// ParsePendingDecision re-derives a PendingDecision from an interstitial URL.
func ParsePendingDecision(raw string) (PendingDecision, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return PendingDecision{}, fmt.Errorf("parsing interstitial url: %w", err)
	}
	q := u.Query()
	p := PendingDecision{Domain: q.Get("domain"), URL: q.Get("url")}
	if p.Domain == "" || p.URL == "" {
		return PendingDecision{}, fmt.Errorf("interstitial url missing domain or url")
	}
	p.TabID, err = strconv.Atoi(q.Get("tabId"))
	if err != nil {
		return PendingDecision{}, fmt.Errorf("parsing tabId: %w", err)
	}
	return p, nil
}

// NavigationState is a node of the per-navigation state machine.
type NavigationState uint8

const (
	StateObserving NavigationState = iota
	StateEvaluating
	StateAllowed
	StateRedirected
	StateContinuedOnce
	StateWhitelisted
	StateWildcardWhitelisted
	StateAborted
)

// String returns a stable name for the state.
func (s NavigationState) String() string {
	switch s {
	case StateObserving:
		return "observing"
	case StateEvaluating:
		return "evaluating"
	case StateAllowed:
		return "allowed"
	case StateRedirected:
		return "redirected"
	case StateContinuedOnce:
		return "continued_once"
	case StateWhitelisted:
		return "whitelisted"
	case StateWildcardWhitelisted:
		return "wildcard_whitelisted"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("NavigationState(%d)", s)
	}
}

// MarshalText encodes the state by name.
func (s NavigationState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// SkipReason explains why a navigation ended in StateAllowed.
type SkipReason uint8

const (
	SkipNone SkipReason = iota
	SkipSubFrame
	SkipChecksDisabled
	SkipExcludedScheme
	SkipNoHostname
	SkipInterstitial
	SkipWhitelisted
	SkipSessionAllowed
)

// String returns a stable name for the reason.
func (r SkipReason) String() string {
	switch r {
	case SkipNone:
		return ""
	case SkipSubFrame:
		return "sub_frame"
	case SkipChecksDisabled:
		return "checks_disabled"
	case SkipExcludedScheme:
		return "excluded_scheme"
	case SkipNoHostname:
		return "no_hostname"
	case SkipInterstitial:
		return "interstitial"
	case SkipWhitelisted:
		return "whitelisted"
	case SkipSessionAllowed:
		return "session_allowed"
	default:
		return fmt.Sprintf("SkipReason(%d)", r)
	}
}

// MarshalText encodes the reason by name.
func (r SkipReason) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// Outcome is the result of evaluating one navigation event.
type Outcome struct {
	State        NavigationState `json:"state"`
	Reason       SkipReason      `json:"reason,omitempty"`
	Domain       string          `json:"domain,omitempty"`
	Interstitial string          `json:"interstitial,omitempty"`
	NavigationID string          `json:"navigationId,omitempty"`
}
