// Package notify turns a hook event into push notifications. Dispatch never
// fails from the caller's point of view: every problem is logged and the
// best message that can still be built is sent.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/epinadev/claude-remote-ui/internal/model"
	"github.com/epinadev/claude-remote-ui/internal/registry"
	"github.com/epinadev/claude-remote-ui/internal/sanitize"
)

// HookEvent is what a firing hook knows about itself.
type HookEvent struct {
	PaneID string
	Event  string
	CWD    string
}

// Gateway is the slice of gateway.SessionGateway dispatch needs.
type Gateway interface {
	Describe(ctx context.Context, paneID string) (model.PaneTarget, error)
	Capture(ctx context.Context, target model.PaneTarget, lines int) (model.CapturedOutput, error)
}

type Options struct {
	ContextLines    int
	MaxContextLines int
	BaseURL         string
	Timeout         time.Duration
	Logger          *slog.Logger
}

// Result reports what a dispatch did, for logs and tests.
type Result struct {
	EventID   string
	Target    model.PaneTarget
	Generic   bool
	Delivered []string
	Failed    []string
}

type Dispatcher struct {
	gw         Gateway
	reg        *registry.Registry
	transports []Transport
	opts       Options
	logger     *slog.Logger
}

func NewDispatcher(gw Gateway, reg *registry.Registry, transports []Transport, opts Options) *Dispatcher {
	if opts.ContextLines <= 0 {
		opts.ContextLines = 15
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{gw: gw, reg: reg, transports: transports, opts: opts, logger: logger}
}

// OnHookEvent records the firing pane as the active instance and notifies
// every transport. It returns once all transports have answered or the
// dispatch timeout expires.
func (d *Dispatcher) OnHookEvent(ctx context.Context, ev HookEvent) Result {
	ctx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()

	res := Result{EventID: uuid.NewString()}
	logger := d.logger.With("event_id", res.EventID, "pane", ev.PaneID, "event", ev.Event)

	msg := Message{
		EventID: res.EventID,
		Event:   ev.Event,
		CWD:     ev.CWD,
		Target:  model.PaneTarget{PaneID: ev.PaneID},
		Context: GenericContext,
		Generic: true,
		URL:     DeepLink(d.opts.BaseURL, ev.PaneID),
	}

	target, err := d.gw.Describe(ctx, ev.PaneID)
	if err != nil {
		logger.Warn("firing pane unavailable, sending generic notification", "err", err)
	} else {
		msg.Target = target
		msg.URL = DeepLink(d.opts.BaseURL, target.PaneID)
		if text := d.context(ctx, target, logger); text != "" {
			msg.Context = text
			msg.Generic = false
		}
		if err := d.reg.Activate(ctx, target); err != nil {
			logger.Warn("record firing pane", "err", err)
		}
	}
	res.Target = msg.Target
	res.Generic = msg.Generic

	for _, tr := range d.transports {
		if err := tr.Send(ctx, msg); err != nil {
			logger.Error("notification delivery failed", "transport", tr.Name(), "err", err)
			res.Failed = append(res.Failed, tr.Name())
			continue
		}
		logger.Info("notification sent", "transport", tr.Name(), "title", msg.Target.DisplayName())
		res.Delivered = append(res.Delivered, tr.Name())
	}
	return res
}

func (d *Dispatcher) context(ctx context.Context, target model.PaneTarget, logger *slog.Logger) string {
	captured, err := d.gw.Capture(ctx, target, d.opts.ContextLines)
	if err != nil {
		logger.Warn("capture firing pane", "err", err)
		return ""
	}
	if !captured.Exists {
		return ""
	}
	text := sanitize.Sanitize(captured.Text, sanitize.Notification(d.opts.ContextLines))
	if d.opts.MaxContextLines > 0 {
		text = sanitize.LastNonEmpty(text, d.opts.MaxContextLines)
	}
	return sanitize.Redact(text)
}
