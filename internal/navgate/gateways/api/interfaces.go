package api

import (
	"context"
	"io"
	"time"

	"github.com/haukened/navgate/internal/navgate/domain"
	"github.com/haukened/navgate/internal/navgate/gateways/tabs"
	"github.com/haukened/navgate/internal/navgate/services/controller"
	"github.com/haukened/navgate/internal/navgate/services/manager"
)

// Navigator handles the browser events and interstitial messages.
type Navigator interface {
	HandleNavigation(ctx context.Context, req domain.NavigationRequest) (domain.Outcome, error)
	HandleMessage(ctx context.Context, msg domain.Message) (controller.Response, error)
	Install(ctx context.Context) error
	Suspend()
}

// Manager serves the whitelist and country management endpoints.
type Manager interface {
	ListWhitelist(ctx context.Context) []string
	AddDomain(ctx context.Context, input string) (string, error)
	RemoveDomain(ctx context.Context, entry string) (bool, error)
	AddDomains(ctx context.Context, entries []string) (int, error)
	ListBlockedCountries(ctx context.Context) domain.CountryRecords
	BlockCountry(ctx context.Context, rec domain.CountryRecord) (bool, error)
	UnblockCountry(ctx context.Context, code string) (bool, error)
	Export(ctx context.Context) manager.ExportDocument
	Import(ctx context.Context, r io.Reader) (manager.ImportResult, error)
}

// CommandSource hands pending tab commands to the extension.
type CommandSource interface {
	Drain(ctx context.Context, maxWait time.Duration) []tabs.Command
}

// type checks
var (
	_ Navigator     = (*controller.Controller)(nil)
	_ Manager       = (*manager.Manager)(nil)
	_ CommandSource = (*tabs.Queue)(nil)
)
