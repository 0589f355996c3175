// Package listener lets the user drive the active pane from Telegram. It
// long-polls getUpdates, answers a handful of slash commands and types any
// other text into the pane the resolver picks.
//
// Delivery is at-least-once: the offset only moves past an update after it
// has been handled, so a crash replays the update on restart.
package listener

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/epinadev/claude-remote-ui/internal/model"
	"github.com/epinadev/claude-remote-ui/internal/registry"
	"github.com/epinadev/claude-remote-ui/internal/resolver"
	"github.com/epinadev/claude-remote-ui/internal/telegram"
)

// Bot is the part of telegram.Client the listener uses.
type Bot interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]telegram.Update, error)
	SendMessage(ctx context.Context, req telegram.SendMessageRequest) error
}

// Gateway is the part of the tmux gateway the listener uses.
type Gateway interface {
	Send(ctx context.Context, target model.PaneTarget, text string) error
	IsAlive(ctx context.Context, target model.PaneTarget) bool
	Spawn(ctx context.Context, windowName, command string) (model.PaneTarget, error)
}

type Options struct {
	ChatID         string
	Interval       time.Duration
	PollTimeout    time.Duration
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	SpawnCommand   string
	SpawnWindow    string
	Logger         *slog.Logger
}

type Listener struct {
	bot    Bot
	gw     Gateway
	reg    *registry.Registry
	res    *resolver.Resolver
	opts   Options
	logger *slog.Logger
	offset int64
}

func New(bot Bot, gw Gateway, reg *registry.Registry, res *resolver.Resolver, opts Options) *Listener {
	if opts.Interval <= 0 {
		opts.Interval = 2 * time.Second
	}
	if opts.BackoffInitial <= 0 {
		opts.BackoffInitial = time.Second
	}
	if opts.BackoffMax < opts.BackoffInitial {
		opts.BackoffMax = 60 * time.Second
	}
	if opts.SpawnWindow == "" {
		opts.SpawnWindow = "TGClaude"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{bot: bot, gw: gw, reg: reg, res: res, opts: opts, logger: logger.With("component", "listener")}
}

// Run polls until ctx is cancelled. Failed polls back off exponentially up
// to BackoffMax; a successful poll resets the backoff.
func (l *Listener) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = l.opts.BackoffInitial
	bo.MaxInterval = l.opts.BackoffMax
	bo.MaxElapsedTime = 0
	bo.Reset()

	l.logger.Info("listening for telegram messages", "chat_id", l.opts.ChatID)
	for {
		wait := l.opts.Interval
		if err := l.PollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			wait = bo.NextBackOff()
			l.logger.Warn("telegram poll failed", "err", err, "retry_in", wait)
		} else {
			bo.Reset()
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

// PollOnce fetches one batch of updates and handles them in order.
func (l *Listener) PollOnce(ctx context.Context) error {
	updates, err := l.bot.GetUpdates(ctx, l.offset, l.opts.PollTimeout)
	if err != nil {
		return err
	}
	for _, u := range updates {
		if u.Message != nil && strconv.FormatInt(u.Message.Chat.ID, 10) == l.opts.ChatID {
			l.handle(ctx, *u.Message)
		}
		l.offset = u.UpdateID + 1
	}
	return nil
}

func (l *Listener) handle(ctx context.Context, msg telegram.Message) {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}
	reply := l.Reply(ctx, text)
	if reply == "" {
		return
	}
	err := l.bot.SendMessage(ctx, telegram.SendMessageRequest{
		ChatID:           l.opts.ChatID,
		Text:             reply,
		ParseMode:        "HTML",
		ReplyToMessageID: msg.MessageID,
	})
	if err != nil {
		l.logger.Warn("telegram reply failed", "err", err)
	}
}

// Reply executes one inbound message and returns the HTML answer.
func (l *Listener) Reply(ctx context.Context, text string) string {
	if !strings.HasPrefix(text, "/") {
		return l.forward(ctx, text)
	}
	fields := strings.Fields(text)
	// Group chats address commands as /cmd@BotName.
	cmd, _, _ := strings.Cut(fields[0], "@")
	args := fields[1:]
	switch cmd {
	case "/status":
		return l.status(ctx)
	case "/list", "/panes":
		return l.list(ctx)
	case "/switch":
		return l.switchTo(ctx, args)
	case "/new":
		name := strings.TrimSpace(strings.TrimPrefix(text, fields[0]))
		return l.spawn(ctx, name)
	case "/help", "/start":
		return helpText
	default:
		return "Unknown command. Use /help."
	}
}

const helpText = `<b>Commands:</b>
/status - Show active Claude session
/list - List all Claude sessions
/switch N - Switch to session N
/new [name] - Spawn new Claude instance
/help - Show this help

<b>Usage:</b>
Just type any message to send it to the active Claude session.`

func (l *Listener) forward(ctx context.Context, text string) string {
	target, err := l.res.Resolve(ctx, "")
	if err != nil {
		if errors.Is(err, model.ErrNoActiveSession) {
			return "No active Claude session. Wait for a notification first."
		}
		l.logger.Warn("resolve target for inbound text", "err", err)
		return "Failed to send to Claude"
	}
	if err := l.gw.Send(ctx, target, text); err != nil {
		l.logger.Warn("forward inbound text", "pane", target.PaneID, "err", err)
		if errors.Is(err, model.ErrPaneNotFound) {
			return fmt.Sprintf("Session <code>%s</code> no longer exists.", html.EscapeString(target.PaneID))
		}
		return "Failed to send to Claude"
	}
	return "Sent to Claude"
}

func (l *Listener) status(ctx context.Context) string {
	active, err := l.reg.Active(ctx)
	if err != nil || active == nil || !l.gw.IsAlive(ctx, *active) {
		return "No active Claude session"
	}
	display := active.PaneID
	if rec, ok, _ := l.reg.Lookup(ctx, active.PaneID); ok {
		display = fmt.Sprintf("%s (%s)", rec.DisplayName, active.PaneID)
	}
	return "Active: <code>" + html.EscapeString(display) + "</code>"
}

func (l *Listener) list(ctx context.Context) string {
	st, err := l.reg.Snapshot(ctx)
	if err != nil {
		l.logger.Warn("list instances", "err", err)
		return "Could not read Claude sessions"
	}
	if len(st.Instances) == 0 {
		return "No Claude sessions found"
	}
	var b strings.Builder
	b.WriteString("<b>Claude Sessions:</b>\n\n")
	for i, rec := range st.Instances {
		marker := ""
		if st.Active != nil && st.Active.PaneID == rec.PaneID {
			marker = " ✓"
		}
		fmt.Fprintf(&b, "%d. <code>%s</code>%s\n", i+1, html.EscapeString(rec.DisplayName), marker)
	}
	b.WriteString("\nUse /switch N to change")
	return b.String()
}

const switchUsage = "Usage: /switch N (e.g., /switch 1)"

func (l *Listener) switchTo(ctx context.Context, args []string) string {
	if len(args) != 1 {
		return switchUsage
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return switchUsage
	}
	list, err := l.reg.List(ctx)
	if err != nil {
		l.logger.Warn("list instances", "err", err)
		return "Could not read Claude sessions"
	}
	if n < 1 || n > len(list) {
		return "Invalid number. Use /list to see available sessions."
	}
	rec := list[n-1]
	if !l.gw.IsAlive(ctx, rec.PaneTarget) {
		return "Session no longer exists"
	}
	if _, err := l.reg.SetActive(ctx, rec.PaneID); err != nil {
		l.logger.Warn("switch active instance", "pane", rec.PaneID, "err", err)
		return "Session no longer exists"
	}
	return "Switched to <code>" + html.EscapeString(rec.DisplayName) + "</code>"
}

func (l *Listener) spawn(ctx context.Context, name string) string {
	if name == "" {
		name = l.opts.SpawnWindow
	}
	target, err := l.gw.Spawn(ctx, name, l.opts.SpawnCommand)
	if err != nil {
		l.logger.Error("spawn claude instance", "window", name, "err", err)
		return "Failed to spawn Claude instance. Check logs."
	}
	if err := l.reg.Activate(ctx, target); err != nil {
		l.logger.Warn("record spawned instance", "pane", target.PaneID, "err", err)
	}
	return fmt.Sprintf("Started <code>%s</code>\nNow active. Send your prompt!", html.EscapeString(target.DisplayName()))
}
