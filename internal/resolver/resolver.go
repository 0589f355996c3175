// Package resolver decides which pane a request addresses: an explicit
// pane wins, then the pinned active pane, then whatever tmux reports live.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/epinadev/claude-remote-ui/internal/model"
	"github.com/epinadev/claude-remote-ui/internal/registry"
)

// Gateway is the slice of gateway.SessionGateway resolution needs.
type Gateway interface {
	ListPanes(ctx context.Context) ([]model.PaneTarget, error)
	IsAlive(ctx context.Context, target model.PaneTarget) bool
	Describe(ctx context.Context, paneID string) (model.PaneTarget, error)
}

type Resolver struct {
	gw     Gateway
	reg    *registry.Registry
	logger *slog.Logger
}

func New(gw Gateway, reg *registry.Registry, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{gw: gw, reg: reg, logger: logger}
}

// Resolve returns the pane addressed by explicitPaneID, or the current
// choice when it is empty or dead. Using a live explicit pane pins it as
// active. Fails with model.ErrNoActiveSession when tmux has no panes or is
// unreachable, and with model.ErrGatewayTimeout when tmux does not answer.
func (r *Resolver) Resolve(ctx context.Context, explicitPaneID string) (model.PaneTarget, error) {
	return r.resolve(ctx, explicitPaneID, false)
}

// ResolveForWrite is Resolve for input delivery: a dead explicit pane fails
// with model.ErrPaneNotFound instead of falling back, so text meant for one
// session is never typed into another.
func (r *Resolver) ResolveForWrite(ctx context.Context, explicitPaneID string) (model.PaneTarget, error) {
	return r.resolve(ctx, explicitPaneID, true)
}

func (r *Resolver) resolve(ctx context.Context, explicitPaneID string, strict bool) (model.PaneTarget, error) {
	st, err := r.reg.Snapshot(ctx)
	if err != nil {
		r.logger.Warn("registry unavailable during resolution", "err", err)
		st = model.RegistryState{}
	}

	if explicitPaneID != "" {
		if err := model.ValidatePaneID(explicitPaneID); err != nil {
			return model.PaneTarget{}, err
		}
		if r.gw.IsAlive(ctx, model.PaneTarget{PaneID: explicitPaneID}) {
			target := r.promote(ctx, st, explicitPaneID)
			return target, nil
		}
		if strict {
			return model.PaneTarget{}, fmt.Errorf("%w: %s", model.ErrPaneNotFound, explicitPaneID)
		}
		r.logger.Debug("explicit pane not alive, falling back", "pane", explicitPaneID)
	}

	if st.Active != nil && r.gw.IsAlive(ctx, *st.Active) {
		return withMetadata(st, *st.Active), nil
	}

	live, err := r.gw.ListPanes(ctx)
	if errors.Is(err, model.ErrGatewayTimeout) {
		return model.PaneTarget{}, fmt.Errorf("list live panes: %w", err)
	}
	if err != nil {
		return model.PaneTarget{}, fmt.Errorf("%w: %w", model.ErrNoActiveSession, err)
	}
	switch len(live) {
	case 0:
		return model.PaneTarget{}, model.ErrNoActiveSession
	case 1:
		// Pinned so later requests stop at the active pointer.
		if err := r.reg.Activate(ctx, live[0]); err != nil {
			r.logger.Warn("register discovered pane", "pane", live[0].PaneID, "err", err)
		}
		return live[0], nil
	}

	liveByID := make(map[string]model.PaneTarget, len(live))
	for _, p := range live {
		liveByID[p.PaneID] = p
	}
	for _, rec := range st.Instances {
		if p, ok := liveByID[rec.PaneID]; ok {
			return p, nil
		}
	}
	return lowestPane(live), nil
}

// promote pins paneID as active. Tracked panes are only re-pinned when they
// are not already active so polling an explicit pane does not write on every
// request.
func (r *Resolver) promote(ctx context.Context, st model.RegistryState, paneID string) model.PaneTarget {
	if i := st.Find(paneID); i >= 0 {
		target := st.Instances[i].PaneTarget
		if st.Active != nil && st.Active.PaneID == paneID {
			return target
		}
		if _, err := r.reg.SetActive(ctx, paneID); err != nil {
			r.logger.Warn("promote explicit pane", "pane", paneID, "err", err)
		}
		return target
	}

	target, err := r.gw.Describe(ctx, paneID)
	if err != nil {
		r.logger.Debug("describe explicit pane", "pane", paneID, "err", err)
		target = model.PaneTarget{PaneID: paneID}
	}
	if err := r.reg.Activate(ctx, target); err != nil {
		r.logger.Warn("promote explicit pane", "pane", paneID, "err", err)
	}
	return target
}

func withMetadata(st model.RegistryState, target model.PaneTarget) model.PaneTarget {
	if i := st.Find(target.PaneID); i >= 0 {
		return st.Instances[i].PaneTarget
	}
	return target
}

// lowestPane picks deterministically among untracked live panes. tmux ids
// ("%N") compare numerically so %10 sorts after %9.
func lowestPane(panes []model.PaneTarget) model.PaneTarget {
	sorted := append([]model.PaneTarget(nil), panes...)
	sort.Slice(sorted, func(i, j int) bool {
		return lessPaneID(sorted[i].PaneID, sorted[j].PaneID)
	})
	return sorted[0]
}

func lessPaneID(a, b string) bool {
	na, aok := paneNumber(a)
	nb, bok := paneNumber(b)
	switch {
	case aok && bok:
		if na != nb {
			return na < nb
		}
		return a < b
	case aok != bok:
		return aok
	default:
		return a < b
	}
}

func paneNumber(id string) (int, bool) {
	if !strings.HasPrefix(id, "%") {
		return 0, false
	}
	n, err := strconv.Atoi(id[1:])
	return n, err == nil
}
