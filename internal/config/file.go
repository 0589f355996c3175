package config

import (
	"fmt"
	"strings"
	"time"
)

// fileConfig mirrors config.yaml. Pointer fields distinguish "absent" from
// zero so the file only overrides what it names.
type fileConfig struct {
	Server struct {
		Host *string `yaml:"host"`
		Port *int    `yaml:"port"`
	} `yaml:"server"`
	PublicHost      *string `yaml:"public_host"`
	TailscaleHost   *string `yaml:"tailscale_host"`
	ContextLines    *int    `yaml:"context_lines"`
	MaxContextLines *int    `yaml:"max_context_lines"`
	DisplayLines    *int    `yaml:"display_lines"`
	DisplayMaxChars *int    `yaml:"display_max_chars"`
	Registry        struct {
		Retention *int    `yaml:"retention"`
		Backend   *string `yaml:"backend"`
		StateDir  *string `yaml:"state_dir"`
	} `yaml:"registry"`
	Gateway struct {
		Timeout      *string  `yaml:"timeout"`
		RetryBackoff []string `yaml:"retry_backoff"`
	} `yaml:"gateway"`
	Notify struct {
		Timeout *string `yaml:"timeout"`
	} `yaml:"notify"`
	Pushover struct {
		Enabled  *bool   `yaml:"enabled"`
		AppToken *string `yaml:"app_token"`
		UserKey  *string `yaml:"user_key"`
	} `yaml:"pushover"`
	Telegram struct {
		Enabled  *bool   `yaml:"enabled"`
		BotToken *string `yaml:"bot_token"`
		ChatID   *string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Listener struct {
		Interval       *string `yaml:"interval"`
		PollTimeout    *string `yaml:"poll_timeout"`
		BackoffInitial *string `yaml:"backoff_initial"`
		BackoffMax     *string `yaml:"backoff_max"`
		SpawnCommand   *string `yaml:"spawn_command"`
		SpawnWindow    *string `yaml:"spawn_window"`
	} `yaml:"listener"`
	Log struct {
		Level  *string `yaml:"level"`
		Format *string `yaml:"format"`
	} `yaml:"log"`
}

func (f fileConfig) apply(cfg *Config) error {
	setString(&cfg.Server.Host, f.Server.Host)
	setInt(&cfg.Server.Port, f.Server.Port)
	// tailscale_host is the legacy spelling of public_host.
	setString(&cfg.PublicHost, f.TailscaleHost)
	setString(&cfg.PublicHost, f.PublicHost)
	setInt(&cfg.ContextLines, f.ContextLines)
	setInt(&cfg.MaxContextLines, f.MaxContextLines)
	setInt(&cfg.DisplayLines, f.DisplayLines)
	setInt(&cfg.DisplayMaxChars, f.DisplayMaxChars)

	setInt(&cfg.Registry.Retention, f.Registry.Retention)
	setString(&cfg.Registry.Backend, f.Registry.Backend)
	setString(&cfg.Registry.StateDir, f.Registry.StateDir)
	cfg.Registry.Backend = strings.ToLower(cfg.Registry.Backend)

	if err := setDuration(&cfg.Gateway.Timeout, f.Gateway.Timeout, "gateway.timeout"); err != nil {
		return err
	}
	if f.Gateway.RetryBackoff != nil {
		backoff := make([]time.Duration, 0, len(f.Gateway.RetryBackoff))
		for _, raw := range f.Gateway.RetryBackoff {
			d, err := time.ParseDuration(strings.TrimSpace(raw))
			if err != nil || d < 0 {
				return fmt.Errorf("gateway.retry_backoff: invalid duration %q", raw)
			}
			backoff = append(backoff, d)
		}
		cfg.Gateway.RetryBackoff = backoff
	}
	if err := setDuration(&cfg.NotifyTimeout, f.Notify.Timeout, "notify.timeout"); err != nil {
		return err
	}

	setBool(&cfg.Pushover.Enabled, f.Pushover.Enabled)
	setString(&cfg.Pushover.AppToken, f.Pushover.AppToken)
	setString(&cfg.Pushover.UserKey, f.Pushover.UserKey)
	setBool(&cfg.Telegram.Enabled, f.Telegram.Enabled)
	setString(&cfg.Telegram.BotToken, f.Telegram.BotToken)
	setString(&cfg.Telegram.ChatID, f.Telegram.ChatID)

	for _, d := range []struct {
		dst  *time.Duration
		raw  *string
		name string
	}{
		{&cfg.Listener.Interval, f.Listener.Interval, "listener.interval"},
		{&cfg.Listener.PollTimeout, f.Listener.PollTimeout, "listener.poll_timeout"},
		{&cfg.Listener.BackoffInitial, f.Listener.BackoffInitial, "listener.backoff_initial"},
		{&cfg.Listener.BackoffMax, f.Listener.BackoffMax, "listener.backoff_max"},
	} {
		if err := setDuration(d.dst, d.raw, d.name); err != nil {
			return err
		}
	}
	setString(&cfg.Listener.SpawnCommand, f.Listener.SpawnCommand)
	setString(&cfg.Listener.SpawnWindow, f.Listener.SpawnWindow)

	setString(&cfg.Log.Level, f.Log.Level)
	setString(&cfg.Log.Format, f.Log.Format)
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, raw *string, name string) error {
	if raw == nil {
		return nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(*raw))
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q", name, *raw)
	}
	*dst = d
	return nil
}
