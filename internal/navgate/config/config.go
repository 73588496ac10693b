// Package config loads the navgated configuration from defaults, an optional
// YAML file and NAVGATE_ environment variables.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix = "NAVGATE_"
	// ConfigFileEnv names the variable holding an optional YAML config path.
	ConfigFileEnv = "NAVGATE_CONFIG_FILE"
)

// Storage backend kinds.
const (
	BackendMemory = "memory"
	BackendBolt   = "bolt"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

// Geolocation providers.
const (
	GeoIPAPI = "ipapi"
	GeoMMDB  = "mmdb"
)

// AppConfig holds the daemon and CLI configuration.
type AppConfig struct {
	// Env is the runtime environment, either "dev" or "prod".
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	// LogLevel controls log verbosity: "debug", "info", "warn", or "error".
	LogLevel string `koanf:"log_level" validate:"required,oneof=debug info warn error"`

	// Listen is the host:port the HTTP gateway binds to.
	Listen string `koanf:"listen" validate:"required,host_port"`

	// InterstitialURL is the confirmation page navigations are redirected to.
	InterstitialURL string `koanf:"interstitial_url" validate:"required,url"`

	Storage   StorageConfig   `koanf:"storage"`
	Geo       GeoConfig       `koanf:"geo"`
	Whitelist WhitelistConfig `koanf:"whitelist"`
	Tabs      TabsConfig      `koanf:"tabs"`
}

// StorageConfig describes the two settings tiers.
type StorageConfig struct {
	Primary  BackendConfig `koanf:"primary"`
	Fallback BackendConfig `koanf:"fallback"`
}

// BackendConfig describes one settings backend. Path is used by bolt and
// sqlite; Addr, DB and Prefix by redis.
type BackendConfig struct {
	Kind   string `koanf:"kind" validate:"required,backend_kind"`
	Path   string `koanf:"path"`
	Addr   string `koanf:"addr" validate:"omitempty,host_port"`
	DB     int    `koanf:"db" validate:"gte=0"`
	Prefix string `koanf:"prefix"`
}

// GeoConfig selects and tunes the geolocation provider.
type GeoConfig struct {
	Provider string        `koanf:"provider" validate:"required,oneof=ipapi mmdb"`
	Endpoint string        `koanf:"endpoint" validate:"omitempty,url"`
	MMDBPath string        `koanf:"mmdb_path" validate:"required_if=Provider mmdb"`
	Timeout  time.Duration `koanf:"timeout"`
}

// WhitelistConfig tunes the compiled whitelist index.
type WhitelistConfig struct {
	CacheSize int     `koanf:"cache_size" validate:"gte=0"`
	FPRate    float64 `koanf:"fp_rate" validate:"gt=0,lt=1"`
}

// TabsConfig tunes the tab command long poll.
type TabsConfig struct {
	MaxWait time.Duration `koanf:"max_wait" validate:"gte=0"`
}

// DEFAULT_APP_CONFIG is applied before the config file and environment.
var DEFAULT_APP_CONFIG = AppConfig{
	Env:             "prod",
	LogLevel:        "info",
	Listen:          "127.0.0.1:8765",
	InterstitialURL: "chrome-extension://navgate/confirmation.html",
	Storage: StorageConfig{
		Primary:  BackendConfig{Kind: BackendBolt, Path: "/var/lib/navgate/settings.db"},
		Fallback: BackendConfig{Kind: BackendSQLite, Path: "/var/lib/navgate/settings-local.sqlite"},
	},
	Geo: GeoConfig{
		Provider: GeoIPAPI,
		Endpoint: "http://ip-api.com/json/",
		Timeout:  5 * time.Second,
	},
	Whitelist: WhitelistConfig{
		CacheSize: 4096,
		FPRate:    0.01,
	},
	Tabs: TabsConfig{
		MaxWait: 25 * time.Second,
	},
}

// validHostPort accepts "host:port" and ":port" with a port in 1..65535.
func validHostPort(fl validator.FieldLevel) bool {
	_, port, err := net.SplitHostPort(fl.Field().String())
	if err != nil || port == "" {
		return false
	}
	n, err := strconv.ParseUint(port, 10, 16)
	return err == nil && n > 0
}

func validBackendKind(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case BackendMemory, BackendBolt, BackendRedis, BackendSQLite:
		return true
	}
	return false
}

// backendStructLevel checks the fields each backend kind needs.
func backendStructLevel(sl validator.StructLevel) {
	b := sl.Current().Interface().(BackendConfig)
	switch b.Kind {
	case BackendBolt, BackendSQLite:
		if b.Path == "" {
			sl.ReportError(b.Path, "Path", "path", "required_for_kind", b.Kind)
		}
	case BackendRedis:
		if b.Addr == "" {
			sl.ReportError(b.Addr, "Addr", "addr", "required_for_kind", b.Kind)
		}
	}
}

// envLoader maps NAVGATE_ variables onto config keys; "__" separates levels,
// so NAVGATE_STORAGE__PRIMARY__KIND sets storage.primary.kind.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			if key == ConfigFileEnv {
				return "", nil
			}
			key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
			key = strings.ReplaceAll(key, "__", ".")
			return key, strings.TrimSpace(value)
		},
	}), nil)
}

// fileLoader loads the YAML file named by NAVGATE_CONFIG_FILE, if any.
var fileLoader = func(k *koanf.Koanf) error {
	path := os.Getenv(ConfigFileEnv)
	if path == "" {
		return nil
	}
	return k.Load(file.Provider(path), yaml.Parser())
}

var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DEFAULT_APP_CONFIG, "koanf"), nil)
}

var registerValidation = func(v *validator.Validate) error {
	if err := v.RegisterValidation("host_port", validHostPort); err != nil {
		return err
	}
	if err := v.RegisterValidation("backend_kind", validBackendKind); err != nil {
		return err
	}
	v.RegisterStructValidation(backendStructLevel, BackendConfig{})
	return nil
}

// Load builds an AppConfig from defaults, the optional config file and the
// environment, then validates it.
func Load() (*AppConfig, error) {
	k := koanf.New(".")

	if err := defaultLoader(k); err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}
	if err := fileLoader(k); err != nil {
		return nil, fmt.Errorf("error loading config file: %w", err)
	}
	if err := envLoader(k); err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := registerValidation(validate); err != nil {
		return nil, fmt.Errorf("error registering validation: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return &cfg, nil
}
