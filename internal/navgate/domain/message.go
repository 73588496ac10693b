package domain

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrUnknownAction is returned for a message whose action is not one of
	// the known Action values.
	ErrUnknownAction = errors.New("unknown message action")
	// ErrInvalidMessage is returned when a message is malformed or misses a
	// required field.
	ErrInvalidMessage = errors.New("invalid message")
)

// Action names a message variant on the wire.
type Action string

const (
	ActionContinueNavigation     Action = "continueNavigation"
	ActionWhitelistAndContinue   Action = "whitelistAndContinue"
	ActionExitNavigation         Action = "exitNavigation"
	ActionTogglePreemptiveChecks Action = "togglePreemptiveChecks"
	ActionToggleCountryBlock     Action = "toggleCountryBlock"
	ActionSecurityCheck          Action = "securityCheck"
)

// Message is the closed set of requests the interstitial and popup send.
type Message interface {
	Action() Action
	isMessage()
}

// ContinueNavigation allows Domain for the rest of the session and resumes URL.
type ContinueNavigation struct {
	Domain string `json:"domain" validate:"required"`
	URL    string `json:"url" validate:"required"`
	TabID  int    `json:"tabId" validate:"gte=0"`
}

// WhitelistAndContinue persists Domain (literal or "*.root") and resumes URL.
type WhitelistAndContinue struct {
	Domain string `json:"domain" validate:"required"`
	URL    string `json:"url" validate:"required"`
	TabID  int    `json:"tabId" validate:"gte=0"`
}

// ExitNavigation closes the tab.
type ExitNavigation struct {
	TabID int `json:"tabId" validate:"gte=0"`
}

// TogglePreemptiveChecks persists the interception switch.
type TogglePreemptiveChecks struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// ToggleCountryBlock persists the geolocation switch.
type ToggleCountryBlock struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// SecurityCheck asks for a geolocation risk assessment of URL.
type SecurityCheck struct {
	URL string `json:"url" validate:"required"`
}

func (ContinueNavigation) Action() Action     { return ActionContinueNavigation }
func (WhitelistAndContinue) Action() Action   { return ActionWhitelistAndContinue }
func (ExitNavigation) Action() Action         { return ActionExitNavigation }
func (TogglePreemptiveChecks) Action() Action { return ActionTogglePreemptiveChecks }
func (ToggleCountryBlock) Action() Action     { return ActionToggleCountryBlock }
func (SecurityCheck) Action() Action          { return ActionSecurityCheck }

// tabScoped marks variants that act on a tab; their tabId must be present.
type tabScoped interface{ tab() int }

func (m ContinueNavigation) tab() int   { return m.TabID }
func (m WhitelistAndContinue) tab() int { return m.TabID }
func (m ExitNavigation) tab() int       { return m.TabID }

func (ContinueNavigation) isMessage()     {}
func (WhitelistAndContinue) isMessage()   {}
func (ExitNavigation) isMessage()         {}
func (TogglePreemptiveChecks) isMessage() {}
func (ToggleCountryBlock) isMessage()     {}
func (SecurityCheck) isMessage()          {}

var validate = validator.New(validator.WithRequiredStructEnabled())

// DecodeMessage decodes a JSON message envelope {"action": ..., ...} into its
// concrete variant and validates required fields.
func DecodeMessage(data []byte) (Message, error) {
	var envelope struct {
		Action Action `json:"action"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}

	var msg Message
	switch envelope.Action {
	case ActionContinueNavigation:
		msg = &ContinueNavigation{}
	case ActionWhitelistAndContinue:
		msg = &WhitelistAndContinue{}
	case ActionExitNavigation:
		msg = &ExitNavigation{}
	case ActionTogglePreemptiveChecks:
		msg = &TogglePreemptiveChecks{}
	case ActionToggleCountryBlock:
		msg = &ToggleCountryBlock{}
	case ActionSecurityCheck:
		msg = &SecurityCheck{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, envelope.Action)
	}

	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidMessage, envelope.Action, err)
	}
	if err := validate.Struct(msg); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidMessage, envelope.Action, err)
	}
	if _, ok := msg.(tabScoped); ok && !hasTabID(data) {
		return nil, fmt.Errorf("%w: %s: missing tabId", ErrInvalidMessage, envelope.Action)
	}
	return deref(msg), nil
}

// hasTabID reports whether data carries a non-null tabId; a zero value
// decoded from an absent field is not a tab.
func hasTabID(data []byte) bool {
	var field struct {
		TabID *int `json:"tabId"`
	}
	return json.Unmarshal(data, &field) == nil && field.TabID != nil
}

// deref returns variants by value so callers can switch on value types.
func deref(m Message) Message {
	switch v := m.(type) {
	case *ContinueNavigation:
		return *v
	case *WhitelistAndContinue:
		return *v
	case *ExitNavigation:
		return *v
	case *TogglePreemptiveChecks:
		return *v
	case *ToggleCountryBlock:
		return *v
	case *SecurityCheck:
		return *v
	default:
		return m
	}
}
