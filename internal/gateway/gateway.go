// Package gateway is the only code that talks to tmux. Every call goes
// through Executor so a wedged server surfaces as model.ErrGatewayTimeout
// instead of a hung request.
package gateway

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/epinadev/claude-remote-ui/internal/model"
)

// SessionGateway is the multiplexer capability set consumed by the
// resolver, dispatch and HTTP layers.
type SessionGateway interface {
	ListPanes(ctx context.Context) ([]model.PaneTarget, error)
	Capture(ctx context.Context, target model.PaneTarget, lines int) (model.CapturedOutput, error)
	Send(ctx context.Context, target model.PaneTarget, text string) error
	IsAlive(ctx context.Context, target model.PaneTarget) bool
	Describe(ctx context.Context, paneID string) (model.PaneTarget, error)
}

// DefaultSpawnSession names the session created by Spawn when no tmux
// server is running.
const DefaultSpawnSession = "claude"

type Tmux struct {
	exec   *Executor
	logger *slog.Logger
}

var _ SessionGateway = (*Tmux)(nil)

func NewTmux(exec *Executor, logger *slog.Logger) *Tmux {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tmux{exec: exec, logger: logger}
}

func (g *Tmux) ListPanes(ctx context.Context) ([]model.PaneTarget, error) {
	out, err := g.exec.Run(ctx, "list-panes", "-a", "-F", paneFormat)
	if err != nil {
		return nil, err
	}
	return parsePanes(out)
}

// Capture returns the last lines of scrollback for target. A pane that has
// gone away, or a server that is no longer running, yields Exists=false
// with a nil error.
func (g *Tmux) Capture(ctx context.Context, target model.PaneTarget, lines int) (model.CapturedOutput, error) {
	if err := model.ValidatePaneID(target.PaneID); err != nil {
		return model.CapturedOutput{}, err
	}
	if lines <= 0 {
		lines = 50
	}
	out, err := g.exec.Run(ctx, "capture-pane", "-p", "-t", target.PaneID, "-S", "-"+strconv.Itoa(lines))
	if err != nil {
		if errors.Is(err, model.ErrPaneNotFound) || errors.Is(err, model.ErrGatewayUnavailable) {
			g.logger.Debug("capture on missing pane", "pane", target.PaneID, "err", err)
			return model.CapturedOutput{Target: target}, nil
		}
		return model.CapturedOutput{}, err
	}
	return model.CapturedOutput{Target: target, Text: out, Exists: true}, nil
}

// Send types text literally into the pane and presses Enter. It is never
// retried: a duplicate would be a duplicate prompt.
func (g *Tmux) Send(ctx context.Context, target model.PaneTarget, text string) error {
	if err := model.ValidatePaneID(target.PaneID); err != nil {
		return err
	}
	if text != "" {
		if _, err := g.exec.Run(ctx, "send-keys", "-t", target.PaneID, "-l", "--", text); err != nil {
			return fmt.Errorf("send text to %s: %w", target.PaneID, err)
		}
	}
	if _, err := g.exec.Run(ctx, "send-keys", "-t", target.PaneID, "Enter"); err != nil {
		return fmt.Errorf("send enter to %s: %w", target.PaneID, err)
	}
	return nil
}

func (g *Tmux) IsAlive(ctx context.Context, target model.PaneTarget) bool {
	if model.ValidatePaneID(target.PaneID) != nil {
		return false
	}
	out, err := g.exec.Run(ctx, "display-message", "-p", "-t", target.PaneID, "#{pane_id}")
	return err == nil && strings.TrimSpace(out) != ""
}

// Describe reads the session and window a pane belongs to. The returned
// PaneID is tmux's canonical "%N" form even when paneID was a
// "session:window.pane" address.
func (g *Tmux) Describe(ctx context.Context, paneID string) (model.PaneTarget, error) {
	if err := model.ValidatePaneID(paneID); err != nil {
		return model.PaneTarget{}, err
	}
	out, err := g.exec.Run(ctx, "display-message", "-p", "-t", paneID, paneFormat)
	if err != nil {
		return model.PaneTarget{}, err
	}
	panes, err := parsePanes(out)
	if err != nil {
		return model.PaneTarget{}, err
	}
	if len(panes) == 0 {
		return model.PaneTarget{}, fmt.Errorf("describe %s: %w", paneID, model.ErrPaneNotFound)
	}
	return panes[0], nil
}

// Spawn opens a new window named windowName and starts command in it. The
// window joins the first existing session; without a server a detached
// session is created.
func (g *Tmux) Spawn(ctx context.Context, windowName, command string) (model.PaneTarget, error) {
	var out string
	panes, err := g.ListPanes(ctx)
	switch {
	case err == nil && len(panes) > 0:
		out, err = g.exec.Run(ctx, "new-window", "-d", "-P", "-F", paneFormat, "-t", panes[0].SessionName+":", "-n", windowName)
	case err == nil || errors.Is(err, model.ErrGatewayUnavailable):
		out, err = g.exec.Run(ctx, "new-session", "-d", "-P", "-F", paneFormat, "-s", DefaultSpawnSession, "-n", windowName)
	}
	if err != nil {
		return model.PaneTarget{}, fmt.Errorf("spawn window %q: %w", windowName, err)
	}
	created, err := parsePanes(out)
	if err != nil {
		return model.PaneTarget{}, err
	}
	if len(created) == 0 {
		return model.PaneTarget{}, fmt.Errorf("spawn window %q: tmux returned no pane", windowName)
	}
	target := created[0]
	if strings.TrimSpace(command) != "" {
		if err := g.Send(ctx, target, command); err != nil {
			return target, err
		}
	}
	g.logger.Info("spawned window", "pane", target.PaneID, "session", target.SessionName, "window", target.WindowName)
	return target, nil
}

func parsePanes(output string) ([]model.PaneTarget, error) {
	s := bufio.NewScanner(strings.NewReader(output))
	panes := make([]model.PaneTarget, 0)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" {
			continue
		}
		parts := splitFields(line, 3)
		if len(parts) != 3 || !strings.HasPrefix(parts[0], "%") {
			return nil, fmt.Errorf("invalid tmux pane line: %q", line)
		}
		panes = append(panes, model.PaneTarget{
			PaneID:      parts[0],
			SessionName: parts[1],
			WindowName:  parts[2],
		})
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("scan tmux output: %w", err)
	}
	return panes, nil
}
