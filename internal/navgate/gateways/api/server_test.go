package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/navgate/internal/navgate/common/clock"
	"github.com/haukened/navgate/internal/navgate/common/log"
	"github.com/haukened/navgate/internal/navgate/domain"
	"github.com/haukened/navgate/internal/navgate/gateways/tabs"
	"github.com/haukened/navgate/internal/navgate/metrics"
	"github.com/haukened/navgate/internal/navgate/repos/settings"
	"github.com/haukened/navgate/internal/navgate/repos/settings/memory"
	"github.com/haukened/navgate/internal/navgate/repos/whitelist"
	"github.com/haukened/navgate/internal/navgate/services/controller"
	"github.com/haukened/navgate/internal/navgate/services/manager"
)

const testInterstitial = "chrome-extension://ext/confirmation.html"

type fixture struct {
	srv   *httptest.Server
	repo  *settings.Repository
	queue *tabs.Queue
	ctrl  *controller.Controller
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := log.NewNoopLogger()
	reg := prometheus.NewRegistry()
	m, err := metrics.New(metrics.Namespace, reg)
	require.NoError(t, err)

	tiered, err := settings.NewTiered(settings.TieredOptions{
		Primary:  memory.New("primary"),
		Fallback: memory.New("fallback"),
		Logger:   logger,
		Metrics:  m,
	})
	require.NoError(t, err)
	repo := settings.NewRepository(tiered, logger)
	queue := tabs.NewQueue()

	ctrl, err := controller.New(controller.Options{
		Tabs:            queue,
		Settings:        repo,
		Initializer:     tiered,
		Whitelist:       whitelist.NewCache(whitelist.Options{}),
		InterstitialURL: testInterstitial,
		Logger:          logger,
		Metrics:         m,
		NewID:           func() string { return "nav-1" },
	})
	require.NoError(t, err)
	clk := &clock.MockClock{CurrentTime: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	mgr, err := manager.New(manager.Options{Settings: repo, Clock: clk, Logger: logger})
	require.NoError(t, err)

	s, err := New(Options{
		Navigator: ctrl,
		Manager:   mgr,
		Commands:  queue,
		Gatherer:  reg,
		MaxWait:   50 * time.Millisecond,
		Clock:     clk,
		Logger:    logger,
	})
	require.NoError(t, err)

	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, repo: repo, queue: queue, ctrl: ctrl}
}

func (f *fixture) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestCommitted_RedirectsAndQueuesCommand(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodPost, "/v1/events/committed", `{"tabId":3,"url":"https://evil.test/","frameId":0}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out map[string]any
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, "redirected", out["state"])
	assert.Equal(t, "evil.test", out["domain"])
	assert.Equal(t, "nav-1", out["navigationId"])

	resp, body = f.do(t, http.MethodGet, "/v1/tabs/commands?wait=10ms", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var cmds struct {
		Commands []tabs.Command `json:"commands"`
	}
	require.NoError(t, json.Unmarshal(body, &cmds))
	require.Len(t, cmds.Commands, 1)
	assert.Equal(t, tabs.CommandUpdate, cmds.Commands[0].Kind)
	assert.Equal(t, 3, cmds.Commands[0].TabID)
	assert.True(t, strings.HasPrefix(cmds.Commands[0].URL, testInterstitial+"?domain=evil.test"))
}

func TestCommitted_SubframeAllowed(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodPost, "/v1/events/committed", `{"tabId":3,"url":"https://evil.test/","frameId":2}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"state":"allowed","reason":"sub_frame"}`, string(body))
	assert.Zero(t, f.queue.Len())
}

func TestCommitted_BadBody(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodPost, "/v1/events/committed", `{`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), `"error"`)
}

func TestTabCommands_InvalidWait(t *testing.T) {
	f := newFixture(t)
	resp, _ := f.do(t, http.MethodGet, "/v1/tabs/commands?wait=soon", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTabCommands_EmptyAfterWait(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodGet, "/v1/tabs/commands?wait=1h", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"commands":[]}`, string(body))
}

func TestMessages(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodPost, "/v1/messages",
		`{"action":"whitelistAndContinue","domain":"*.example.com","url":"https://a.example.com/","tabId":4}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"state":"wildcard_whitelisted","domain":"*.example.com"}`, string(body))
	assert.Equal(t, []string{"*.example.com"}, f.repo.Whitelist(context.Background()))

	resp, body = f.do(t, http.MethodPost, "/v1/messages", `{"action":"togglePreemptiveChecks","enabled":false}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"enabled":false}`, string(body))
	assert.False(t, f.repo.Settings(context.Background()).EnablePreemptiveChecks)

	resp, body = f.do(t, http.MethodPost, "/v1/messages", `{"action":"securityCheck","url":"https://evil.test/"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"geo"`)

	resp, _ = f.do(t, http.MethodPost, "/v1/messages", `{"action":"selfDestruct"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/v1/messages", `{"action":"continueNavigation","tabId":1}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	queued := f.queue.Len()
	resp, _ = f.do(t, http.MethodPost, "/v1/messages", `{"action":"exitNavigation"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, queued, f.queue.Len(), "no tab is closed without a tabId")
}

func TestInstalledAndSuspend(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp, _ := f.do(t, http.MethodPost, "/v1/events/installed", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, domain.DefaultSettings(), f.repo.Settings(ctx))

	_, err := f.ctrl.HandleMessage(ctx, domain.ContinueNavigation{Domain: "once.test", URL: "https://once.test/", TabID: 1})
	require.NoError(t, err)
	require.True(t, f.ctrl.SessionAllowed("once.test"))

	resp, _ = f.do(t, http.MethodPost, "/v1/events/suspend", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.False(t, f.ctrl.SessionAllowed("once.test"))
}

func TestWhitelistRoutes(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodPost, "/v1/whitelist", `{"domain":"https://b.test/x"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.JSONEq(t, `{"entry":"b.test"}`, string(body))
	resp, _ = f.do(t, http.MethodPost, "/v1/whitelist", `{"domain":"b.test"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp, _ = f.do(t, http.MethodPost, "/v1/whitelist", `{"domain":"  "}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = f.do(t, http.MethodPost, "/v1/whitelist", `{"domain":"*.a.test"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body = f.do(t, http.MethodGet, "/v1/whitelist", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"whitelist":["*.a.test","b.test"]}`, string(body))

	resp, _ = f.do(t, http.MethodDelete, "/v1/whitelist/%2A.a.test", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = f.do(t, http.MethodDelete, "/v1/whitelist/%2A.a.test", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, []string{"b.test"}, f.repo.Whitelist(context.Background()))
}

func TestRemoveDomain_DecodesEntryOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.repo.SaveWhitelist(ctx, []string{"a%25.test", "a%.test", "b.test"}))

	resp, _ := f.do(t, http.MethodDelete, "/v1/whitelist/a%2525.test", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, []string{"a%.test", "b.test"}, f.repo.Whitelist(ctx))

	resp, _ = f.do(t, http.MethodDelete, "/v1/whitelist/a%25.test", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, []string{"b.test"}, f.repo.Whitelist(ctx))
}

func TestWhitelistListUpload(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodPost, "/v1/whitelist/list", "# list\na.test\n0.0.0.0 b.test a.test\n*.c.test\nbogus\n")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"entries":3,"added":3}`, string(body))
	assert.Equal(t, []string{"a.test", "b.test", "*.c.test"}, f.repo.Whitelist(context.Background()))
}

func TestCountryRoutes(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.do(t, http.MethodPost, "/v1/countries", `{"code":"ru","name":"Russia"}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, body := f.do(t, http.MethodPost, "/v1/countries", `{"code":"RU","name":"Russia"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"added":false}`, string(body))
	resp, _ = f.do(t, http.MethodPost, "/v1/countries", `{"name":"Nowhere"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = f.do(t, http.MethodGet, "/v1/countries", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"countries":[{"code":"RU","name":"Russia"}]}`, string(body))

	resp, _ = f.do(t, http.MethodDelete, "/v1/countries/ru", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = f.do(t, http.MethodDelete, "/v1/countries/ru", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestExportImport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.repo.SaveWhitelist(ctx, []string{"a.test"}))

	resp, body := f.do(t, http.MethodGet, "/v1/export", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `attachment; filename="whitelist_domains_2025-06-01.json"`, resp.Header.Get("Content-Disposition"))
	assert.JSONEq(t, `{"whitelist":["a.test"],"countryBlock":[]}`, string(body))

	resp, body = f.do(t, http.MethodPost, "/v1/import",
		`{"whitelist":["a.test","c.test"],"countryBlock":["{\"code\":\"CN\",\"name\":\"China\"}"]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"domains":2,"countries":1,"addedDomains":1,"addedCountries":1}`, string(body))
	assert.Equal(t, []string{"a.test", "c.test"}, f.repo.Whitelist(ctx))

	resp, _ = f.do(t, http.MethodPost, "/v1/import", `{"whitelist":{}}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMetricsRoute(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/v1/events/committed", `{"tabId":1,"url":"https://evil.test/"}`)

	resp, body := f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "navgate_controller_navigations_total")
}

func TestHTTPTransport_StartStop(t *testing.T) {
	tr := NewHTTPTransport("127.0.0.1:0", log.NewNoopLogger())
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	require.NoError(t, tr.Start(context.Background(), handler))
	assert.Error(t, tr.Start(context.Background(), handler))

	resp, err := http.Get("http://" + tr.Address() + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, tr.Stop(ctx))
	require.NoError(t, tr.Stop(ctx))
}

func TestHTTPTransport_ListenError(t *testing.T) {
	tr := NewHTTPTransport("256.0.0.1:0", log.NewNoopLogger())
	assert.Error(t, tr.Start(context.Background(), http.NotFoundHandler()))
	assert.Equal(t, "256.0.0.1:0", tr.Address())
}
