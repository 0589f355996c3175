package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/epinadev/claude-remote-ui/internal/config"
	"github.com/epinadev/claude-remote-ui/internal/model"
)

// Runner executes one subprocess and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type OSRunner struct{}

func (OSRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.CombinedOutput()
}

// Executor runs tmux subcommands with a per-attempt deadline. Read-only
// subcommands are retried on transient failures; anything that changes pane
// input runs exactly once.
type Executor struct {
	binary  string
	timeout time.Duration
	backoff []time.Duration
	runner  Runner
	logger  *slog.Logger
}

func NewExecutor(cfg config.GatewayConfig, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		binary:  "tmux",
		timeout: cfg.Timeout,
		backoff: cfg.RetryBackoff,
		runner:  OSRunner{},
		logger:  logger,
	}
}

func NewExecutorWithRunner(cfg config.GatewayConfig, runner Runner, logger *slog.Logger) *Executor {
	e := NewExecutor(cfg, logger)
	e.runner = runner
	return e
}

// Run executes `tmux args...` and returns stdout. Failures wrap one of
// model.ErrGatewayTimeout, model.ErrGatewayUnavailable or
// model.ErrPaneNotFound.
func (e *Executor) Run(ctx context.Context, args ...string) (string, error) {
	if len(args) == 0 {
		return "", fmt.Errorf("empty tmux command")
	}

	maxAttempts := 1
	if isReadOnly(args[0]) {
		maxAttempts += len(e.backoff)
	}
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		runCtx, cancel := context.WithTimeout(ctx, e.timeout)
		out, err := e.runner.Run(runCtx, e.binary, args...)
		timedOut := errors.Is(runCtx.Err(), context.DeadlineExceeded)
		cancel()
		if err == nil {
			return string(out), nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		var transient bool
		lastErr, transient = classify(args[0], out, err, timedOut)
		if !transient {
			return "", lastErr
		}
		if attempt < maxAttempts {
			wait := e.backoff[attempt-1]
			e.logger.Debug("retrying tmux command", "command", args[0], "attempt", attempt, "wait", wait, "err", lastErr)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(wait):
			}
		}
	}
	return "", lastErr
}

// classify maps a failed tmux invocation onto the gateway error taxonomy
// using tmux's stderr wording. Missing servers and panes are definitive;
// timeouts and unrecognised failures are worth another attempt.
func classify(command string, out []byte, err error, timedOut bool) (error, bool) {
	if timedOut {
		return fmt.Errorf("tmux %s: %w", command, model.ErrGatewayTimeout), true
	}
	if errors.Is(err, exec.ErrNotFound) {
		return fmt.Errorf("tmux %s: %w: tmux binary not found", command, model.ErrGatewayUnavailable), false
	}
	msg := strings.TrimSpace(string(out))
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "no server running"),
		strings.Contains(lower, "error connecting to"),
		strings.Contains(lower, "server exited"),
		strings.Contains(lower, "no sessions"):
		return fmt.Errorf("tmux %s: %w: %s", command, model.ErrGatewayUnavailable, msg), false
	case strings.Contains(lower, "can't find pane"),
		strings.Contains(lower, "can't find window"),
		strings.Contains(lower, "can't find session"),
		strings.Contains(lower, "no such pane"):
		return fmt.Errorf("tmux %s: %w: %s", command, model.ErrPaneNotFound, msg), false
	}
	if msg == "" {
		msg = err.Error()
	}
	return fmt.Errorf("tmux %s: %w: %s", command, model.ErrGatewayUnavailable, msg), true
}

func isReadOnly(subcommand string) bool {
	switch strings.ToLower(subcommand) {
	case "list-panes", "list-windows", "list-sessions", "display-message", "capture-pane", "has-session":
		return true
	default:
		return false
	}
}
