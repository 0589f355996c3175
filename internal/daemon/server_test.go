package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/epinadev/claude-remote-ui/internal/api"
	"github.com/epinadev/claude-remote-ui/internal/config"
	"github.com/epinadev/claude-remote-ui/internal/model"
	"github.com/epinadev/claude-remote-ui/internal/registry"
	"github.com/epinadev/claude-remote-ui/internal/resolver"
	"github.com/epinadev/claude-remote-ui/internal/testutil"
)

var (
	paneA = model.PaneTarget{PaneID: "%1", SessionName: "work", WindowName: "api"}
	paneB = model.PaneTarget{PaneID: "%2", SessionName: "work", WindowName: "web"}
)

type fixture struct {
	gw  *testutil.FakeGateway
	reg *registry.Registry
	srv *Server
	ts  *httptest.Server
}

func newFixture(t *testing.T, panes ...model.PaneTarget) *fixture {
	t.Helper()
	store, _ := testutil.NewStore(t)
	cfg := config.DefaultConfig()
	cfg.Registry.StateDir = t.TempDir()
	reg, err := registry.New(registry.NewSQLiteStore(store), registry.Options{LockPath: cfg.LockPath()})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	gw := testutil.NewFakeGateway(panes...)
	srv := NewServer(cfg, gw, reg, resolver.New(gw, reg, nil), Options{})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &fixture{gw: gw, reg: reg, srv: srv, ts: ts}
}

func (f *fixture) get(t *testing.T, path string, out any) int {
	t.Helper()
	resp, err := http.Get(f.ts.URL + path)
	if err != nil {
		t.Fatalf("get %s: %v", path, err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return resp.StatusCode
}

func (f *fixture) post(t *testing.T, path, body string, out any) int {
	t.Helper()
	resp, err := http.Post(f.ts.URL+path, "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("post %s: %v", path, err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return resp.StatusCode
}

func TestHealthWithoutPanesIsInactive(t *testing.T) {
	f := newFixture(t)
	var resp api.HealthResponse
	if code := f.get(t, "/health", &resp); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if resp.Status != api.StatusOK || resp.Active || resp.Target != "" {
		t.Fatalf("unexpected health: %+v", resp)
	}
	if resp.Timestamp.IsZero() {
		t.Fatalf("expected timestamp")
	}
}

func TestHealthReportsDegradedGateway(t *testing.T) {
	f := newFixture(t, paneA)
	f.gw.ListErr = model.ErrGatewayUnavailable
	var resp api.HealthResponse
	f.get(t, "/health", &resp)
	if resp.Status != api.StatusDegraded || resp.Active {
		t.Fatalf("expected degraded inactive health, got %+v", resp)
	}
}

func TestHealthNamesResolvedPane(t *testing.T) {
	f := newFixture(t, paneA)
	var resp api.HealthResponse
	f.get(t, "/health", &resp)
	if !resp.Active || resp.Target != "%1" || resp.Session != "work" || resp.Window != "api" {
		t.Fatalf("unexpected health: %+v", resp)
	}
}

func TestOutputDecodesPaneAndSanitizes(t *testing.T) {
	f := newFixture(t, paneA, paneB)
	f.gw.SetOutput("%2", "\x1b[32mok\x1b[0m\n\n\n────\ndone   \n")

	var resp api.OutputResponse
	if code := f.get(t, "/api/output?pane=%252", &resp); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if !resp.Active || resp.Pane != "%2" {
		t.Fatalf("unexpected output response: %+v", resp)
	}
	if resp.Output != "ok\n\ndone" {
		t.Fatalf("unexpected sanitized output: %q", resp.Output)
	}
	active, err := f.reg.Active(context.Background())
	if err != nil || active == nil || active.PaneID != "%2" {
		t.Fatalf("expected explicit pane to become active, got %+v err=%v", active, err)
	}
}

func TestOutputWithoutSessionIsNotAnError(t *testing.T) {
	f := newFixture(t)
	var resp api.OutputResponse
	if code := f.get(t, "/api/output", &resp); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if resp.Active || resp.Output != "" {
		t.Fatalf("expected inactive empty output, got %+v", resp)
	}
}

func TestOutputRejectsInvalidPane(t *testing.T) {
	f := newFixture(t, paneA)
	var resp api.ErrorResponse
	if code := f.get(t, "/api/output?pane=-t", &resp); code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
	if resp.Error.Code != model.CodeBadRequest {
		t.Fatalf("unexpected error: %+v", resp)
	}
}

func TestSendForwardsToResolvedPane(t *testing.T) {
	f := newFixture(t, paneA)
	var resp api.SendResponse
	if code := f.post(t, "/api/send", `{"text":"yes"}`, &resp); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if !resp.Success || resp.Pane != "%1" || resp.Message != "Sent to work:api" {
		t.Fatalf("unexpected send response: %+v", resp)
	}
	sent := f.gw.SentTexts()
	if len(sent) != 1 || sent[0] != (testutil.SentText{PaneID: "%1", Text: "yes"}) {
		t.Fatalf("unexpected sends: %+v", sent)
	}
}

func TestSendRejectsMalformedRequests(t *testing.T) {
	f := newFixture(t, paneA)
	for name, body := range map[string]string{
		"empty text":    `{"text":"   "}`,
		"unknown field": `{"text":"hi","target":"%1"}`,
		"not json":      `text=hi`,
		"trailing":      `{"text":"hi"}{"text":"again"}`,
	} {
		var resp api.ErrorResponse
		if code := f.post(t, "/api/send", body, &resp); code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", name, code)
		}
		if resp.Success || resp.Error.Code != model.CodeBadRequest {
			t.Fatalf("%s: unexpected error body: %+v", name, resp)
		}
	}
	if len(f.gw.SentTexts()) != 0 {
		t.Fatalf("malformed requests must not send")
	}
}

func TestSendWithoutSessionReportsFailure(t *testing.T) {
	f := newFixture(t)
	var resp api.ErrorResponse
	if code := f.post(t, "/api/send", `{"text":"hi"}`, &resp); code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", code)
	}
	if resp.Success || resp.Error.Code != model.CodeNoActiveSession {
		t.Fatalf("unexpected error body: %+v", resp)
	}
}

func TestSendToVanishedPaneReportsPaneNotFound(t *testing.T) {
	f := newFixture(t, paneA)
	f.gw.SendErr = model.ErrPaneNotFound
	var resp api.ErrorResponse
	if code := f.post(t, "/api/send", `{"text":"hi","pane":"%1"}`, &resp); code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
	if resp.Error.Code != model.CodePaneNotFound {
		t.Fatalf("unexpected error: %+v", resp)
	}
}

func TestSendToClosedExplicitPaneIsNotRedirected(t *testing.T) {
	f := newFixture(t, paneA, paneB)
	ctx := context.Background()
	_ = f.reg.Touch(ctx, paneB)
	_ = f.reg.Activate(ctx, paneA)
	f.gw.Kill("%2")

	var resp api.ErrorResponse
	if code := f.post(t, "/api/send", `{"text":"reply for web","pane":"%2"}`, &resp); code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
	if resp.Success || resp.Error.Code != model.CodePaneNotFound {
		t.Fatalf("unexpected error: %+v", resp)
	}
	if sent := f.gw.SentTexts(); len(sent) != 0 {
		t.Fatalf("text must not reach another pane, got %+v", sent)
	}
}

func TestGatewayTimeoutSurfacesAs504(t *testing.T) {
	f := newFixture(t, paneA)
	f.gw.ListErr = fmt.Errorf("tmux list-panes: %w", model.ErrGatewayTimeout)

	var sendResp api.ErrorResponse
	if code := f.post(t, "/api/send", `{"text":"hi"}`, &sendResp); code != http.StatusGatewayTimeout {
		t.Fatalf("send: expected 504, got %d", code)
	}
	if sendResp.Error.Code != model.CodeGatewayTimeout {
		t.Fatalf("send: unexpected error: %+v", sendResp)
	}

	var outResp api.ErrorResponse
	if code := f.get(t, "/api/output", &outResp); code != http.StatusGatewayTimeout {
		t.Fatalf("output: expected 504, got %d", code)
	}
	if outResp.Error.Code != model.CodeGatewayTimeout {
		t.Fatalf("output: unexpected error: %+v", outResp)
	}
	if len(f.gw.SentTexts()) != 0 {
		t.Fatalf("nothing should be sent on timeout")
	}
}

func TestSwitchThenOutputReadsSwitchedPane(t *testing.T) {
	f := newFixture(t, paneA, paneB)
	ctx := context.Background()
	f.gw.SetOutput("%1", "from api")
	f.gw.SetOutput("%2", "from web")
	if err := f.reg.Touch(ctx, paneA); err != nil {
		t.Fatalf("touch: %v", err)
	}
	if err := f.reg.Activate(ctx, paneB); err != nil {
		t.Fatalf("activate: %v", err)
	}

	var sw api.SwitchResponse
	if code := f.post(t, "/api/switch", `{"pane":"%1"}`, &sw); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if !sw.Success || sw.Pane != "%1" || sw.Session != "work" || sw.Window != "api" {
		t.Fatalf("unexpected switch response: %+v", sw)
	}

	var out api.OutputResponse
	f.get(t, "/api/output", &out)
	if out.Pane != "%1" || out.Output != "from api" {
		t.Fatalf("expected output of switched pane, got %+v", out)
	}
}

func TestSwitchUnknownPaneLeavesActive(t *testing.T) {
	f := newFixture(t, paneA, paneB)
	ctx := context.Background()
	_ = f.reg.Activate(ctx, paneA)

	var resp api.ErrorResponse
	if code := f.post(t, "/api/switch", `{"pane":"%2"}`, &resp); code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
	if resp.Error.Code != model.CodeUnknownInstance {
		t.Fatalf("unexpected error: %+v", resp)
	}
	active, _ := f.reg.Active(ctx)
	if active == nil || active.PaneID != "%1" {
		t.Fatalf("active pane changed: %+v", active)
	}
}

func TestSwitchToDeadPaneIsRejected(t *testing.T) {
	f := newFixture(t, paneA, paneB)
	ctx := context.Background()
	_ = f.reg.Touch(ctx, paneB)
	_ = f.reg.Activate(ctx, paneA)
	f.gw.Kill("%2")

	var resp api.ErrorResponse
	if code := f.post(t, "/api/switch", `{"pane":"%2"}`, &resp); code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
	if resp.Error.Code != model.CodePaneNotFound {
		t.Fatalf("unexpected error: %+v", resp)
	}
	active, _ := f.reg.Active(ctx)
	if active == nil || active.PaneID != "%1" {
		t.Fatalf("active pane changed: %+v", active)
	}
}

func TestInstancesPrunesDeadPanes(t *testing.T) {
	f := newFixture(t, paneA, paneB)
	ctx := context.Background()
	_ = f.reg.Touch(ctx, paneA)
	_ = f.reg.Activate(ctx, paneB)
	f.gw.Kill("%2")

	var resp api.InstancesResponse
	if code := f.get(t, "/api/instances", &resp); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if len(resp.Instances) != 1 || resp.Instances[0].Pane != "%1" {
		t.Fatalf("expected only live instance, got %+v", resp.Instances)
	}
	if resp.Pruned != 1 || resp.Current != "%1" {
		t.Fatalf("unexpected prune/current: %+v", resp)
	}
	item := resp.Instances[0]
	if item.DisplayName != "work:api" || item.LastActive == "" {
		t.Fatalf("unexpected instance item: %+v", item)
	}
}

func TestInstancesKeepsRegistryWhenTmuxUnavailable(t *testing.T) {
	f := newFixture(t, paneA, paneB)
	ctx := context.Background()
	_ = f.reg.Touch(ctx, paneA)
	_ = f.reg.Touch(ctx, paneB)
	f.gw.ListErr = model.ErrGatewayUnavailable

	var resp api.InstancesResponse
	f.get(t, "/api/instances", &resp)
	if len(resp.Instances) != 2 || resp.Pruned != 0 {
		t.Fatalf("expected registry untouched, got %+v", resp)
	}
	if resp.Instances[0].Pane != "%2" {
		t.Fatalf("expected most recent first, got %+v", resp.Instances)
	}
}

func TestIndexShowsResolvedPane(t *testing.T) {
	f := newFixture(t, paneA)
	resp, err := http.Get(f.ts.URL + "/?pane=%251")
	if err != nil {
		t.Fatalf("get index: %v", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "work:api") {
		t.Fatalf("unexpected index (%d): %s", resp.StatusCode, body)
	}
}

func TestUnknownRouteIsJSON404(t *testing.T) {
	f := newFixture(t)
	var resp api.ErrorResponse
	if code := f.get(t, "/api/nope", &resp); code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
	if resp.Success {
		t.Fatalf("unexpected success")
	}
}

func TestStartServesAndRejectsSecondInstance(t *testing.T) {
	f := newFixture(t, paneA)
	srv := NewServer(f.srv.cfg, f.gw, f.reg, resolver.New(f.gw, f.reg, nil), Options{Addr: "127.0.0.1:0"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	deadline := time.Now().Add(3 * time.Second)
	for srv.Addr() == "" {
		if time.Now().After(deadline) {
			t.Fatalf("server did not start")
		}
		time.Sleep(10 * time.Millisecond)
	}
	resp, err := http.Get("http://" + srv.Addr() + "/health")
	if err != nil {
		t.Fatalf("get health: %v", err)
	}
	resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	second := NewServer(f.srv.cfg, f.gw, f.reg, resolver.New(f.gw, f.reg, nil), Options{Addr: "127.0.0.1:0"})
	if err := second.Start(ctx); err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("expected already running error, got %v", err)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Fatalf("server error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("timeout waiting for server shutdown")
	}
}
