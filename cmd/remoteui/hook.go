package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/epinadev/claude-remote-ui/internal/notify"
)

var hookCmd = &cobra.Command{
	Use:   "hook [event]",
	Short: "Notify about the pane this Claude hook fired in",
	Long: `Called from a Claude Code hook (Stop, Notification, ...). Reads TMUX_PANE
and, when stdin is piped, the hook's JSON payload. Marks the pane active and
sends a push notification with a link back to it.

Always exits 0 so the calling hook is never disrupted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHook,
}

func init() {
	rootCmd.AddCommand(hookCmd)
}

// hookPayload is the subset of the Claude hook stdin envelope we use.
type hookPayload struct {
	SessionID     string `json:"session_id"`
	CWD           string `json:"cwd"`
	HookEventName string `json:"hook_event_name"`
}

func runHook(cmd *cobra.Command, args []string) error {
	paneID := strings.TrimSpace(os.Getenv("TMUX_PANE"))
	if paneID == "" {
		slog.Info("not running inside tmux, skipping notification")
		return nil
	}
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		slog.Error("hook setup failed", "err", err)
		return nil
	}
	defer a.Close() //nolint:errcheck

	payload := readHookPayload(os.Stdin, a.logger)
	ev := notify.HookEvent{PaneID: paneID, Event: payload.HookEventName, CWD: payload.CWD}
	if len(args) == 1 {
		ev.Event = args[0]
	}
	if ev.CWD == "" {
		ev.CWD, _ = os.Getwd()
	}

	d := notify.NewDispatcher(a.tmux, a.reg, a.transports(), notify.Options{
		ContextLines:    a.cfg.ContextLines,
		MaxContextLines: a.cfg.MaxContextLines,
		BaseURL:         a.cfg.BaseURL(),
		Timeout:         a.cfg.NotifyTimeout,
		Logger:          a.logger,
	})
	res := d.OnHookEvent(ctx, ev)
	a.logger.Info("hook handled", "event_id", res.EventID, "pane", paneID, "session", payload.SessionID,
		"generic", res.Generic, "delivered", res.Delivered, "failed", res.Failed)
	return nil
}

func readHookPayload(f *os.File, logger *slog.Logger) hookPayload {
	var p hookPayload
	if term.IsTerminal(int(f.Fd())) {
		return p
	}
	data, err := io.ReadAll(io.LimitReader(f, 1<<20))
	if err != nil || len(strings.TrimSpace(string(data))) == 0 {
		return p
	}
	if err := json.Unmarshal(data, &p); err != nil {
		logger.Debug("ignoring unparseable hook payload", "err", err)
	}
	return p
}
