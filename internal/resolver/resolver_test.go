package resolver

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/epinadev/claude-remote-ui/internal/model"
	"github.com/epinadev/claude-remote-ui/internal/registry"
	"github.com/epinadev/claude-remote-ui/internal/testutil"
)

var (
	paneA = model.PaneTarget{PaneID: "%1", SessionName: "main", WindowName: "api"}
	paneB = model.PaneTarget{PaneID: "%2", SessionName: "main", WindowName: "web"}
	paneC = model.PaneTarget{PaneID: "%10", SessionName: "work", WindowName: "docs"}
)

func newRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	dir := t.TempDir()
	reg, err := registry.New(registry.NewFileStore(filepath.Join(dir, "instances.json")), registry.Options{LockPath: filepath.Join(dir, "registry.lock")})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	return reg
}

func activeID(t *testing.T, reg *registry.Registry) string {
	t.Helper()
	active, err := reg.Active(context.Background())
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if active == nil {
		return ""
	}
	return active.PaneID
}

func TestExplicitLivePaneWinsAndIsPromoted(t *testing.T) {
	ctx := context.Background()
	gw := testutil.NewFakeGateway(paneA, paneB)
	reg := newRegistry(t)
	_ = reg.Touch(ctx, paneB)
	_ = reg.Activate(ctx, paneA)

	got, err := New(gw, reg, nil).Resolve(ctx, "%2")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != paneB {
		t.Fatalf("explicit pane should win, got %+v", got)
	}
	if id := activeID(t, reg); id != "%2" {
		t.Fatalf("explicit pane should be promoted, active=%s", id)
	}
}

func TestExplicitUntrackedPaneIsRegistered(t *testing.T) {
	ctx := context.Background()
	gw := testutil.NewFakeGateway(paneA, paneC)
	reg := newRegistry(t)

	got, err := New(gw, reg, nil).Resolve(ctx, "%10")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != paneC {
		t.Fatalf("expected described metadata, got %+v", got)
	}
	list, _ := reg.List(ctx)
	if len(list) != 1 || list[0].PaneID != "%10" || activeID(t, reg) != "%10" {
		t.Fatalf("untracked explicit pane should be touched and pinned, list=%+v", list)
	}
}

func TestDeadExplicitFallsBackToActive(t *testing.T) {
	ctx := context.Background()
	gw := testutil.NewFakeGateway(paneA)
	reg := newRegistry(t)
	_ = reg.Activate(ctx, paneA)

	got, err := New(gw, reg, nil).Resolve(ctx, "%99")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.PaneID != "%1" {
		t.Fatalf("expected fallback to active, got %+v", got)
	}
}

func TestActiveSurvivesWhenAlive(t *testing.T) {
	ctx := context.Background()
	gw := testutil.NewFakeGateway(paneA, paneB)
	reg := newRegistry(t)
	_ = reg.Touch(ctx, paneA)
	_ = reg.Touch(ctx, paneB)
	if _, err := reg.SetActive(ctx, "%1"); err != nil {
		t.Fatalf("set active: %v", err)
	}

	got, err := New(gw, reg, nil).Resolve(ctx, "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != paneA {
		t.Fatalf("expected pinned pane, got %+v", got)
	}
}

func TestSwitchThenResolve(t *testing.T) {
	ctx := context.Background()
	gw := testutil.NewFakeGateway(paneA, paneB)
	reg := newRegistry(t)
	_ = reg.Touch(ctx, paneB)
	_ = reg.Activate(ctx, paneA)

	if _, err := reg.SetActive(ctx, "%2"); err != nil {
		t.Fatalf("switch: %v", err)
	}
	got, err := New(gw, reg, nil).Resolve(ctx, "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.PaneID != "%2" {
		t.Fatalf("expected switched pane, got %+v", got)
	}
}

func TestSingleLivePaneIsAutoSelectedAndRegistered(t *testing.T) {
	ctx := context.Background()
	gw := testutil.NewFakeGateway(paneC)
	reg := newRegistry(t)
	_ = reg.Touch(ctx, paneA) // dead

	got, err := New(gw, reg, nil).Resolve(ctx, "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != paneC {
		t.Fatalf("expected the only live pane, got %+v", got)
	}
	list, _ := reg.List(ctx)
	if list[0].PaneID != "%10" {
		t.Fatalf("auto-selected pane should be registered first, got %+v", list)
	}
	if got := activeID(t, reg); got != "%10" {
		t.Fatalf("auto-selected pane should be pinned, got %q", got)
	}

	// Pinned now, so the next resolution does not need the pane list.
	gw.ListErr = model.ErrGatewayUnavailable
	again, err := New(gw, reg, nil).Resolve(ctx, "")
	if err != nil || again.PaneID != "%10" {
		t.Fatalf("expected pinned pane without listing, got %+v err=%v", again, err)
	}
}

func TestDeadActiveWithSinglePaneRepins(t *testing.T) {
	ctx := context.Background()
	gw := testutil.NewFakeGateway(paneB)
	reg := newRegistry(t)
	_ = reg.Activate(ctx, paneA) // dead

	got, err := New(gw, reg, nil).Resolve(ctx, "")
	if err != nil || got.PaneID != "%2" {
		t.Fatalf("expected the only live pane, got %+v err=%v", got, err)
	}
	if id := activeID(t, reg); id != "%2" {
		t.Fatalf("expected dead active pointer replaced, got %q", id)
	}
}

func TestMostRecentTrackedLivePaneWins(t *testing.T) {
	ctx := context.Background()
	gw := testutil.NewFakeGateway(paneA, paneB, paneC)
	reg := newRegistry(t)
	_ = reg.Touch(ctx, paneB)
	_ = reg.Touch(ctx, model.PaneTarget{PaneID: "%50"}) // most recent but dead

	got, err := New(gw, reg, nil).Resolve(ctx, "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.PaneID != "%2" {
		t.Fatalf("expected most recent live tracked pane, got %+v", got)
	}
}

func TestUntrackedPanesTieBreakNumerically(t *testing.T) {
	ctx := context.Background()
	gw := testutil.NewFakeGateway(paneC, paneB)
	got, err := New(gw, newRegistry(t), nil).Resolve(ctx, "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.PaneID != "%2" {
		t.Fatalf("expected %%2 before %%10, got %+v", got)
	}
}

func TestNoLivePanes(t *testing.T) {
	ctx := context.Background()
	_, err := New(testutil.NewFakeGateway(), newRegistry(t), nil).Resolve(ctx, "")
	if !errors.Is(err, model.ErrNoActiveSession) {
		t.Fatalf("expected no active session, got %v", err)
	}

	gw := testutil.NewFakeGateway()
	gw.ListErr = model.ErrGatewayUnavailable
	_, err = New(gw, newRegistry(t), nil).Resolve(ctx, "")
	if !errors.Is(err, model.ErrNoActiveSession) || !errors.Is(err, model.ErrGatewayUnavailable) {
		t.Fatalf("expected no active session wrapping unavailable, got %v", err)
	}
	if model.ErrorCode(err) != model.CodeNoActiveSession {
		t.Fatalf("unexpected code %s", model.ErrorCode(err))
	}
}

func TestListTimeoutIsNotReportedAsNoSession(t *testing.T) {
	gw := testutil.NewFakeGateway(paneA)
	gw.ListErr = fmt.Errorf("tmux list-panes: %w", model.ErrGatewayTimeout)
	_, err := New(gw, newRegistry(t), nil).Resolve(context.Background(), "")
	if !errors.Is(err, model.ErrGatewayTimeout) || errors.Is(err, model.ErrNoActiveSession) {
		t.Fatalf("expected bare gateway timeout, got %v", err)
	}
	if model.ErrorCode(err) != model.CodeGatewayTimeout {
		t.Fatalf("unexpected code %s", model.ErrorCode(err))
	}
}

func TestResolveForWriteRejectsDeadExplicitPane(t *testing.T) {
	ctx := context.Background()
	gw := testutil.NewFakeGateway(paneA, paneB)
	reg := newRegistry(t)
	_ = reg.Touch(ctx, paneB)
	_ = reg.Activate(ctx, paneA)
	gw.Kill("%2")

	res := New(gw, reg, nil)
	if _, err := res.ResolveForWrite(ctx, "%2"); !errors.Is(err, model.ErrPaneNotFound) {
		t.Fatalf("expected pane not found, got %v", err)
	}
	if got, err := res.ResolveForWrite(ctx, "%1"); err != nil || got.PaneID != "%1" {
		t.Fatalf("expected live explicit pane, got %+v err=%v", got, err)
	}
	if got, err := res.ResolveForWrite(ctx, ""); err != nil || got.PaneID != "%1" {
		t.Fatalf("expected active pane without explicit id, got %+v err=%v", got, err)
	}
	if got, err := res.Resolve(ctx, "%2"); err != nil || got.PaneID != "%1" {
		t.Fatalf("reads should still fall back, got %+v err=%v", got, err)
	}
}

func TestExplicitInvalidPane(t *testing.T) {
	_, err := New(testutil.NewFakeGateway(paneA), newRegistry(t), nil).Resolve(context.Background(), "-x")
	if !errors.Is(err, model.ErrBadRequest) {
		t.Fatalf("expected bad request, got %v", err)
	}
}

func TestLessPaneID(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"%2", "%10", true},
		{"%10", "%2", false},
		{"%3", "main:1.0", true},
		{"a", "b", true},
	}
	for _, tc := range cases {
		if got := lessPaneID(tc.a, tc.b); got != tc.want {
			t.Fatalf("lessPaneID(%q, %q) = %v", tc.a, tc.b, got)
		}
	}
}
