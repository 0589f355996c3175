package daemon

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/epinadev/claude-remote-ui/internal/api"
	"github.com/epinadev/claude-remote-ui/internal/model"
	"github.com/epinadev/claude-remote-ui/internal/sanitize"
)

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	resp := api.HealthResponse{Status: api.StatusOK, Timestamp: time.Now().UTC()}
	target, err := s.res.Resolve(r.Context(), "")
	switch {
	case err == nil:
		resp.Active = true
		resp.Target = target.PaneID
		resp.Session = target.SessionName
		resp.Window = target.WindowName
	case errors.Is(err, model.ErrGatewayUnavailable), errors.Is(err, model.ErrGatewayTimeout):
		resp.Status = api.StatusDegraded
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) outputHandler(w http.ResponseWriter, r *http.Request) {
	target, err := s.res.Resolve(r.Context(), paneParam(r))
	if errors.Is(err, model.ErrNoActiveSession) {
		s.writeJSON(w, http.StatusOK, api.OutputResponse{Active: false})
		return
	}
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	captured, err := s.gw.Capture(r.Context(), target, s.cfg.DisplayLines)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	resp := api.OutputResponse{
		Active:  captured.Exists,
		Pane:    target.PaneID,
		Session: target.SessionName,
		Window:  target.WindowName,
	}
	if captured.Exists {
		resp.Output = sanitize.Sanitize(captured.Text, sanitize.Display(s.cfg.DisplayMaxChars))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) sendHandler(w http.ResponseWriter, r *http.Request) {
	var req api.SendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeFailure(w, err)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		s.writeFailure(w, fmt.Errorf("%w: text is required", model.ErrBadRequest))
		return
	}
	target, err := s.res.ResolveForWrite(r.Context(), strings.TrimSpace(req.Pane))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	if err := s.gw.Send(r.Context(), target, req.Text); err != nil {
		s.writeFailure(w, err)
		return
	}
	s.logger.Info("text sent", "pane", target.PaneID, "chars", len(req.Text))
	s.writeJSON(w, http.StatusOK, api.SendResponse{
		Success: true,
		Message: "Sent to " + target.DisplayName(),
		Pane:    target.PaneID,
	})
}

// instancesHandler lists tracked instances, first dropping any whose pane
// tmux no longer reports. Pruning is skipped when the live set is unknown.
func (s *Server) instancesHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := api.InstancesResponse{Instances: []api.InstanceItem{}}

	if panes, err := s.gw.ListPanes(ctx); err != nil {
		s.logger.Warn("skipping prune, live panes unknown", "err", err)
	} else {
		live := make(map[string]struct{}, len(panes))
		for _, p := range panes {
			live[p.PaneID] = struct{}{}
		}
		removed, err := s.reg.Prune(ctx, func(t model.PaneTarget) bool {
			_, ok := live[t.PaneID]
			return ok
		})
		if err != nil {
			s.logger.Warn("prune failed", "err", err)
		}
		resp.Pruned = len(removed)
	}

	target, err := s.res.Resolve(ctx, paneParam(r))
	switch {
	case err == nil:
		resp.Current = target.PaneID
	case errors.Is(err, model.ErrBadRequest):
		s.writeFailure(w, err)
		return
	}

	records, err := s.reg.List(ctx)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	for _, rec := range records {
		resp.Instances = append(resp.Instances, api.InstanceItem{
			Pane:        rec.PaneID,
			Session:     rec.SessionName,
			Window:      rec.WindowName,
			DisplayName: rec.DisplayName,
			LastActive:  rec.LastActive.Format(time.RFC3339),
		})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// switchHandler pins a tracked, live pane as active. A dead pane is
// reported without touching the registry.
func (s *Server) switchHandler(w http.ResponseWriter, r *http.Request) {
	var req api.SwitchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeFailure(w, err)
		return
	}
	paneID := strings.TrimSpace(req.Pane)
	if err := model.ValidatePaneID(paneID); err != nil {
		s.writeFailure(w, err)
		return
	}
	ctx := r.Context()
	rec, ok, err := s.reg.Lookup(ctx, paneID)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	if !ok {
		s.writeFailure(w, fmt.Errorf("%w: %s", model.ErrUnknownInstance, paneID))
		return
	}
	if !s.gw.IsAlive(ctx, rec.PaneTarget) {
		s.writeFailure(w, fmt.Errorf("%w: %s", model.ErrPaneNotFound, paneID))
		return
	}
	target, err := s.reg.SetActive(ctx, paneID)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.logger.Info("active pane switched", "pane", target.PaneID, "name", target.DisplayName())
	s.writeJSON(w, http.StatusOK, api.SwitchResponse{
		Success: true,
		Pane:    target.PaneID,
		Session: target.SessionName,
		Window:  target.WindowName,
	})
}
