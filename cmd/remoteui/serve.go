package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/epinadev/claude-remote-ui/internal/daemon"
	"github.com/epinadev/claude-remote-ui/internal/listener"
)

var (
	serveAddr   string
	serveListen bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the HTTP API the phone UI talks to.

With --listen the Telegram listener runs in the same process. A corrupt
registry store is fatal here; fix or remove it before starting.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Run only the Telegram listener",
	Args:  cobra.NoArgs,
	RunE:  runListen,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default server.host:server.port)")
	serveCmd.Flags().BoolVar(&serveListen, "listen", false, "also run the Telegram listener")
	rootCmd.AddCommand(serveCmd, listenCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck
	if err := a.reg.Verify(ctx); err != nil {
		return fmt.Errorf("registry store unusable: %w", err)
	}

	// The listener is built first: a config error returns with nothing running.
	var l *listener.Listener
	if serveListen {
		if l, err = a.newListener(); err != nil {
			return err
		}
	}

	srv := daemon.NewServer(a.cfg, a.tmux, a.reg, a.res, daemon.Options{Addr: serveAddr, Logger: a.logger})
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ignoreCanceled(srv.Start(gctx))
	})
	if l != nil {
		g.Go(func() error {
			return l.Run(gctx)
		})
	}
	return g.Wait()
}

func runListen(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck
	l, err := a.newListener()
	if err != nil {
		return err
	}
	return l.Run(ctx)
}

func (a *app) newListener() (*listener.Listener, error) {
	if !a.cfg.Telegram.Enabled {
		return nil, errors.New("telegram is not enabled in config")
	}
	// The HTTP timeout must outlast the long poll.
	bot, ok := a.telegramClient(&http.Client{Timeout: a.cfg.Listener.PollTimeout + a.cfg.NotifyTimeout})
	if !ok {
		return nil, errors.New("telegram bot_token and chat_id are required")
	}
	lc := a.cfg.Listener
	return listener.New(bot, a.tmux, a.reg, a.res, listener.Options{
		ChatID:         a.cfg.Telegram.ChatID,
		Interval:       lc.Interval,
		PollTimeout:    lc.PollTimeout,
		BackoffInitial: lc.BackoffInitial,
		BackoffMax:     lc.BackoffMax,
		SpawnCommand:   lc.SpawnCommand,
		SpawnWindow:    lc.SpawnWindow,
		Logger:         a.logger,
	}), nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
