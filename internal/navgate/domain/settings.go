package domain

// Storage keys. Each key holds one independently JSON-encoded value.
const (
	KeyWhitelist              = "whitelist"
	KeyEnablePreemptiveChecks = "enablePreemptiveChecks"
	KeyEnableCountryBlock     = "enableCountryBlock"
	KeyBlockedCountries       = "blockedCountries"
)

// SettingsKeys lists every persisted settings key.
var SettingsKeys = []string{
	KeyWhitelist,
	KeyEnablePreemptiveChecks,
	KeyEnableCountryBlock,
	KeyBlockedCountries,
}

// Settings is the full persisted configuration of the navigation gate.
type Settings struct {
	EnablePreemptiveChecks bool           `json:"enablePreemptiveChecks"`
	EnableCountryBlock     bool           `json:"enableCountryBlock"`
	Whitelist              []string       `json:"whitelist"`
	BlockedCountries       CountryRecords `json:"blockedCountries"`
}

// DefaultSettings returns the values seeded on first install and assumed for
// any key that is absent from storage.
func DefaultSettings() Settings {
	return Settings{
		EnablePreemptiveChecks: true,
		EnableCountryBlock:     true,
		Whitelist:              []string{},
		BlockedCountries:       CountryRecords{},
	}
}
