package domain

import "errors"

// ErrLookupFailed is returned by geolocation providers that reached the
// service but got no usable answer.
var ErrLookupFailed = errors.New("geolocation lookup failed")

// LookupFailedMessage is the error text reported to the interstitial.
const LookupFailedMessage = "Geolocation lookup failed"

// GeoStatus reports whether country blocking produced a lookup.
type GeoStatus string

const (
	GeoDisabled GeoStatus = "disabled"
	GeoEnabled  GeoStatus = "enabled"
)

// Risk is the binary geographical risk label.
type Risk string

const (
	RiskHigh Risk = "High"
	RiskLow  Risk = "Low"
)

// GeoInfo is what a geolocation provider resolved for a hostname.
type GeoInfo struct {
	Country     string
	CountryCode string
	Region      string
	City        string
	IP          string
	ISP         string
}

// Assessment is the risk report handed to the interstitial. Exactly one of
// Status or Error is set.
type Assessment struct {
	Status      GeoStatus `json:"status,omitempty"`
	Country     string    `json:"country,omitempty"`
	CountryCode string    `json:"countryCode,omitempty"`
	Region      string    `json:"region,omitempty"`
	City        string    `json:"city,omitempty"`
	IP          string    `json:"ip,omitempty"`
	ISP         string    `json:"isp,omitempty"`
	Risk        Risk      `json:"risk,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// Failed reports whether the assessment carries an error instead of data.
func (a Assessment) Failed() bool { return a.Error != "" }

// DisabledAssessment is returned when country blocking is switched off.
func DisabledAssessment() Assessment { return Assessment{Status: GeoDisabled} }

// FailedAssessment wraps a lookup failure message.
func FailedAssessment(msg string) Assessment { return Assessment{Error: msg} }
