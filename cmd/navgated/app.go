package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/haukened/navgate/internal/navgate/common/clock"
	"github.com/haukened/navgate/internal/navgate/common/log"
	"github.com/haukened/navgate/internal/navgate/config"
	"github.com/haukened/navgate/internal/navgate/gateways/api"
	"github.com/haukened/navgate/internal/navgate/gateways/geo/ipapi"
	"github.com/haukened/navgate/internal/navgate/gateways/geo/mmdb"
	"github.com/haukened/navgate/internal/navgate/gateways/tabs"
	"github.com/haukened/navgate/internal/navgate/metrics"
	"github.com/haukened/navgate/internal/navgate/repos/settings"
	"github.com/haukened/navgate/internal/navgate/repos/settings/bolt"
	"github.com/haukened/navgate/internal/navgate/repos/settings/memory"
	"github.com/haukened/navgate/internal/navgate/repos/settings/rediskv"
	"github.com/haukened/navgate/internal/navgate/repos/settings/sqlite"
	"github.com/haukened/navgate/internal/navgate/repos/whitelist"
	"github.com/haukened/navgate/internal/navgate/repos/whitelist/bloom"
	"github.com/haukened/navgate/internal/navgate/repos/whitelist/lru"
	"github.com/haukened/navgate/internal/navgate/services/assessor"
	"github.com/haukened/navgate/internal/navgate/services/controller"
	"github.com/haukened/navgate/internal/navgate/services/manager"
)

const defaultShutdownTimeout = 10 * time.Second

// Application holds every component of the navigation gate.
type Application struct {
	config     *config.AppConfig
	registry   *prometheus.Registry
	repos      *repositories
	gateways   *gateways
	assessor   *assessor.Assessor
	controller *controller.Controller
	manager    *manager.Manager
	server     *api.Server
	transport  *api.HTTPTransport
}

// repositories holds the storage side.
type repositories struct {
	tiered    *settings.Tiered
	settings  *settings.Repository
	whitelist *whitelist.Cache
}

// gateways holds the adapters to the outside world.
type gateways struct {
	geo    assessor.Provider
	closer io.Closer
	tabs   *tabs.Queue
}

// buildApplication constructs all components and wires them together.
// Nothing listens until Run.
func buildApplication(cfg *config.AppConfig) (*Application, error) {
	clk := clock.RealClock{}
	logger := log.GetLogger()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	mtrc, err := metrics.New(metrics.Namespace, registry)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	repos, err := buildRepositories(cfg, mtrc, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build repositories: %w", err)
	}

	gws, err := buildGateways(cfg, logger)
	if err != nil {
		_ = repos.tiered.Close()
		return nil, fmt.Errorf("failed to build gateways: %w", err)
	}

	app := &Application{config: cfg, registry: registry, repos: repos, gateways: gws}
	if err := app.buildServices(clk, mtrc, logger); err != nil {
		_ = app.Close()
		return nil, err
	}
	return app, nil
}

func (app *Application) buildServices(clk clock.Clock, mtrc *metrics.Metrics, logger log.Logger) error {
	var err error
	app.assessor, err = assessor.New(assessor.Options{
		Provider: app.gateways.geo,
		Settings: app.repos.settings,
		Timeout:  app.config.Geo.Timeout,
		Logger:   logger,
		Metrics:  mtrc,
	})
	if err != nil {
		return fmt.Errorf("failed to build assessor: %w", err)
	}

	app.controller, err = controller.New(controller.Options{
		Tabs:            app.gateways.tabs,
		Settings:        app.repos.settings,
		Initializer:     app.repos.tiered,
		Assessor:        app.assessor,
		Whitelist:       app.repos.whitelist,
		InterstitialURL: app.config.InterstitialURL,
		Logger:          logger,
		Metrics:         mtrc,
	})
	if err != nil {
		return fmt.Errorf("failed to build controller: %w", err)
	}

	app.manager, err = manager.New(manager.Options{
		Settings: app.repos.settings,
		Clock:    clk,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("failed to build manager: %w", err)
	}

	app.server, err = api.New(api.Options{
		Navigator: app.controller,
		Manager:   app.manager,
		Commands:  app.gateways.tabs,
		Gatherer:  app.registry,
		MaxWait:   app.config.Tabs.MaxWait,
		Clock:     clk,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("failed to build api server: %w", err)
	}
	app.transport = api.NewHTTPTransport(app.config.Listen, logger)
	return nil
}

// buildRepositories opens both settings tiers and the whitelist index cache.
func buildRepositories(cfg *config.AppConfig, mtrc settings.Metrics, logger log.Logger) (*repositories, error) {
	primary, err := openBackend(cfg.Storage.Primary, "primary")
	if err != nil {
		return nil, fmt.Errorf("failed to open primary settings tier: %w", err)
	}
	fallback, err := openBackend(cfg.Storage.Fallback, "fallback")
	if err != nil {
		_ = primary.Close()
		return nil, fmt.Errorf("failed to open fallback settings tier: %w", err)
	}

	tiered, err := settings.NewTiered(settings.TieredOptions{
		Primary:  primary,
		Fallback: fallback,
		Logger:   logger,
		Metrics:  mtrc,
	})
	if err != nil {
		_ = primary.Close()
		_ = fallback.Close()
		return nil, err
	}

	log.Info(map[string]any{
		"primary":  primary.Name(),
		"fallback": fallback.Name(),
	}, "Settings tiers configured")

	cache := whitelist.NewCache(whitelist.Options{
		Bloom:    bloom.NewFactory(),
		FPRate:   cfg.Whitelist.FPRate,
		NewCache: lru.Factory(cfg.Whitelist.CacheSize),
	})
	log.Info(map[string]any{
		"cache_size": cfg.Whitelist.CacheSize,
		"fp_rate":    cfg.Whitelist.FPRate,
	}, "Whitelist index configured")

	return &repositories{
		tiered:    tiered,
		settings:  settings.NewRepository(tiered, logger),
		whitelist: cache,
	}, nil
}

// openBackend opens one settings backend. File backends get their parent
// directory created.
func openBackend(c config.BackendConfig, name string) (settings.Backend, error) {
	switch c.Kind {
	case config.BackendMemory:
		return memory.New(name), nil
	case config.BackendBolt, config.BackendSQLite:
		if err := os.MkdirAll(filepath.Dir(c.Path), 0o750); err != nil {
			return nil, fmt.Errorf("creating directory for %s: %w", c.Path, err)
		}
		if c.Kind == config.BackendBolt {
			return bolt.New(c.Path)
		}
		store, err := sqlite.New(c.Path)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.BackendRedis:
		return rediskv.New(rediskv.Config{Addr: c.Addr, DB: c.DB, Prefix: c.Prefix}), nil
	default:
		return nil, fmt.Errorf("unknown backend kind %q", c.Kind)
	}
}

// buildGateways creates the geolocation provider and the tab command queue.
func buildGateways(cfg *config.AppConfig, logger log.Logger) (*gateways, error) {
	gws := &gateways{tabs: tabs.NewQueue()}

	switch cfg.Geo.Provider {
	case config.GeoMMDB:
		reader, err := mmdb.Open(cfg.Geo.MMDBPath, net.DefaultResolver)
		if err != nil {
			return nil, fmt.Errorf("failed to open geolocation database: %w", err)
		}
		gws.geo, gws.closer = reader, reader
	default:
		gws.geo = ipapi.New(ipapi.Options{Endpoint: cfg.Geo.Endpoint})
	}

	logger.Info(map[string]any{
		"provider": gws.geo.Name(),
		"timeout":  cfg.Geo.Timeout.String(),
	}, "Geolocation provider configured")
	return gws, nil
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (app *Application) Run(ctx context.Context) error {
	if err := app.transport.Start(ctx, app.server.Router()); err != nil {
		return fmt.Errorf("failed to start HTTP transport: %w", err)
	}

	log.Info(map[string]any{
		"address":   app.transport.Address(),
		"transport": "HTTP",
	}, "Navigation gate started")

	<-ctx.Done()
	log.Info(nil, "Shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := app.transport.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info(nil, "Graceful shutdown completed")
	return nil
}

// Close releases storage and gateway resources.
func (app *Application) Close() error {
	var errs []error
	if app.repos != nil {
		errs = append(errs, app.repos.tiered.Close())
	}
	if app.gateways != nil && app.gateways.closer != nil {
		errs = append(errs, app.gateways.closer.Close())
	}
	return errors.Join(errs...)
}
