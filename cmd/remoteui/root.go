package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/epinadev/claude-remote-ui/internal/config"
	"github.com/epinadev/claude-remote-ui/internal/db"
	"github.com/epinadev/claude-remote-ui/internal/gateway"
	"github.com/epinadev/claude-remote-ui/internal/notify"
	"github.com/epinadev/claude-remote-ui/internal/registry"
	"github.com/epinadev/claude-remote-ui/internal/resolver"
	"github.com/epinadev/claude-remote-ui/internal/telegram"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "remoteui",
	Short:         "Remote control for Claude Code sessions in tmux",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "path to config.yaml")
}

// app holds the components every subcommand shares.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	store  *db.Store
	tmux   *gateway.Tmux
	reg    *registry.Registry
	res    *resolver.Resolver
}

func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	if err := os.MkdirAll(cfg.Registry.StateDir, 0o700); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	a := &app{cfg: cfg, logger: logger}

	var store registry.Store
	switch cfg.Registry.Backend {
	case config.BackendFile:
		store = registry.NewFileStore(cfg.RegistryPath())
	default:
		s, err := db.OpenMigrated(ctx, cfg.RegistryPath())
		if err != nil {
			return nil, fmt.Errorf("open registry db: %w", err)
		}
		a.store = s
		store = registry.NewSQLiteStore(s)
	}
	reg, err := registry.New(store, registry.Options{
		Retention: cfg.Registry.Retention,
		LockPath:  cfg.LockPath(),
		Logger:    logger,
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.reg = reg
	a.tmux = gateway.NewTmux(gateway.NewExecutor(cfg.Gateway, logger), logger)
	a.res = resolver.New(a.tmux, reg, logger)
	return a, nil
}

func (a *app) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

// transports returns the configured push transports. A transport missing
// credentials is skipped with a warning.
func (a *app) transports() []notify.Transport {
	var out []notify.Transport
	client := &http.Client{Timeout: a.cfg.NotifyTimeout}
	if p := a.cfg.Pushover; p.Enabled {
		if p.AppToken == "" || p.UserKey == "" {
			a.logger.Warn("pushover enabled without app_token/user_key")
		} else {
			out = append(out, notify.NewPushover(p.AppToken, p.UserKey, client))
		}
	}
	if tg := a.cfg.Telegram; tg.Enabled {
		if bot, ok := a.telegramClient(client); ok {
			out = append(out, notify.NewTelegram(bot, tg.ChatID, a.cfg.PublicHost))
		}
	}
	return out
}

func (a *app) telegramClient(client *http.Client) (*telegram.Client, bool) {
	tg := a.cfg.Telegram
	if tg.BotToken == "" || tg.ChatID == "" {
		a.logger.Warn("telegram enabled without bot_token/chat_id")
		return nil, false
	}
	return telegram.NewClient(tg.BotToken, "", client), true
}

func newLogger(cfg config.LogConfig) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(cfg.Format) {
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	case "", "text":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("log.format must be text or json, got %q", cfg.Format)
	}
}
