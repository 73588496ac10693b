// Package api exposes the controller and management operations over HTTP
// for the browser extension glue and local tooling.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/haukened/navgate/internal/navgate/common/clock"
	"github.com/haukened/navgate/internal/navgate/common/log"
	"github.com/haukened/navgate/internal/navgate/domain"
	"github.com/haukened/navgate/internal/navgate/metrics"
	"github.com/haukened/navgate/internal/navgate/services/manager"
)

// Request body caps.
const (
	maxBodySize   = 64 << 10
	maxImportSize = 4 << 20
)

// DefaultMaxWait bounds the tab command long poll when Options leaves it unset.
const DefaultMaxWait = 25 * time.Second

// Options configures a Server. Navigator, Manager and Commands are required.
type Options struct {
	Navigator Navigator
	Manager   Manager
	Commands  CommandSource
	// Gatherer backs GET /metrics. Nil leaves the route unregistered.
	Gatherer prometheus.Gatherer
	MaxWait  time.Duration
	Clock    clock.Clock
	Logger   log.Logger
}

// Server holds the HTTP handlers.
type Server struct {
	nav      Navigator
	mgr      Manager
	commands CommandSource
	gatherer prometheus.Gatherer
	maxWait  time.Duration
	clock    clock.Clock
	logger   log.Logger
}

// New validates opts and returns a Server.
func New(opts Options) (*Server, error) {
	if opts.Navigator == nil || opts.Manager == nil || opts.Commands == nil {
		return nil, fmt.Errorf("api server needs a navigator, a manager and a command source")
	}
	if opts.MaxWait <= 0 {
		opts.MaxWait = DefaultMaxWait
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = log.GetLogger()
	}
	return &Server{
		nav:      opts.Navigator,
		mgr:      opts.Manager,
		commands: opts.Commands,
		gatherer: opts.Gatherer,
		maxWait:  opts.MaxWait,
		clock:    opts.Clock,
		logger:   log.With(opts.Logger, map[string]any{"component": "api"}),
	}, nil
}

// Router returns the chi router serving every route.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.health)
	if s.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(s.gatherer))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Route("/events", func(r chi.Router) {
			r.Post("/committed", s.committed)
			r.Post("/installed", s.installed)
			r.Post("/suspend", s.suspend)
		})
		r.Post("/messages", s.message)
		r.Get("/tabs/commands", s.tabCommands)

		r.Route("/whitelist", func(r chi.Router) {
			r.Get("/", s.listWhitelist)
			r.Post("/", s.addDomain)
			r.Post("/list", s.loadDomainList)
			r.Delete("/{entry}", s.removeDomain)
		})
		r.Route("/countries", func(r chi.Router) {
			r.Get("/", s.listCountries)
			r.Post("/", s.blockCountry)
			r.Delete("/{code}", s.unblockCountry)
		})
		r.Get("/export", s.export)
		r.Post("/import", s.importSettings)
	})
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := s.clock.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug(map[string]any{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   ww.Status(),
			"duration": s.clock.Now().Sub(start).String(),
		}, "request served")
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn(map[string]any{"error": err}, "writing response failed")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error(map[string]any{"error": err}, "request failed")
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

// decodeBody reads a JSON request body into v.
func decodeBody(r *http.Request, v any) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("reading body: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding body: %w", err)
	}
	return nil
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) committed(w http.ResponseWriter, r *http.Request) {
	var req domain.NavigationRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	out, err := s.nav.HandleNavigation(r.Context(), req)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err)
		return
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) installed(w http.ResponseWriter, r *http.Request) {
	if err := s.nav.Install(r.Context()); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) suspend(w http.ResponseWriter, _ *http.Request) {
	s.nav.Suspend()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) message(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	msg, err := domain.DecodeMessage(data)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := s.nav.HandleMessage(r.Context(), msg)
	switch {
	case errors.Is(err, domain.ErrUnknownAction):
		s.writeError(w, http.StatusBadRequest, err)
	case err != nil:
		s.writeError(w, http.StatusBadGateway, err)
	default:
		s.writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) tabCommands(w http.ResponseWriter, r *http.Request) {
	wait := time.Duration(0)
	if raw := r.URL.Query().Get("wait"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid wait %q", raw))
			return
		}
		wait = min(d, s.maxWait)
	}
	cmds := s.commands.Drain(r.Context(), wait)
	s.writeJSON(w, http.StatusOK, map[string]any{"commands": cmds})
}

func (s *Server) listWhitelist(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"whitelist": s.mgr.ListWhitelist(r.Context())})
}

type addDomainRequest struct {
	Domain string `json:"domain"`
}

func (s *Server) addDomain(w http.ResponseWriter, r *http.Request) {
	var req addDomainRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	entry, err := s.mgr.AddDomain(r.Context(), req.Domain)
	switch {
	case errors.Is(err, manager.ErrEmptyDomain):
		s.writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, manager.ErrAlreadyWhitelisted):
		s.writeError(w, http.StatusConflict, err)
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, err)
	default:
		s.writeJSON(w, http.StatusCreated, map[string]string{"entry": entry})
	}
}

// loadDomainList merges a plain or hosts-style domain list from the body.
func (s *Server) loadDomainList(w http.ResponseWriter, r *http.Request) {
	entries, err := manager.ParseDomainList(io.LimitReader(r.Body, maxImportSize), s.logger)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	added, err := s.mgr.AddDomains(r.Context(), entries)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"entries": len(entries), "added": added})
}

func (s *Server) removeDomain(w http.ResponseWriter, r *http.Request) {
	entry, err := pathParam(r, "entry")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	removed, err := s.mgr.RemoveDomain(r.Context(), entry)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !removed {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("%q is not whitelisted", entry))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listCountries(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"countries": s.mgr.ListBlockedCountries(r.Context())})
}

func (s *Server) blockCountry(w http.ResponseWriter, r *http.Request) {
	var rec domain.CountryRecord
	if err := decodeBody(r, &rec); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	added, err := s.mgr.BlockCountry(r.Context(), rec)
	switch {
	case errors.Is(err, manager.ErrInvalidCountry):
		s.writeError(w, http.StatusBadRequest, err)
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, err)
	case added:
		s.writeJSON(w, http.StatusCreated, map[string]bool{"added": true})
	default:
		s.writeJSON(w, http.StatusOK, map[string]bool{"added": false})
	}
}

func (s *Server) unblockCountry(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	removed, err := s.mgr.UnblockCountry(r.Context(), code)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !removed {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("%q is not blocked", code))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) export(w http.ResponseWriter, r *http.Request) {
	name := manager.ExportFileName(s.clock.Now())
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	s.writeJSON(w, http.StatusOK, s.mgr.Export(r.Context()))
}

func (s *Server) importSettings(w http.ResponseWriter, r *http.Request) {
	res, err := s.mgr.Import(r.Context(), r.Body)
	switch {
	case errors.Is(err, manager.ErrInvalidImportFormat):
		s.writeError(w, http.StatusBadRequest, err)
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, err)
	default:
		s.writeJSON(w, http.StatusOK, res)
	}
}

// pathParam returns the decoded URL parameter key. chi matches against the
// raw path only when the request carries one, and the param is still escaped
// in that case.
func pathParam(r *http.Request, key string) (string, error) {
	v := chi.URLParam(r, key)
	if r.URL.RawPath == "" {
		return v, nil
	}
	return url.PathUnescape(v)
}
