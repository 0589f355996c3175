package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/epinadev/claude-remote-ui/internal/config"
	"github.com/epinadev/claude-remote-ui/internal/model"
)

func TestNewLoggerValidatesConfig(t *testing.T) {
	if _, err := newLogger(config.LogConfig{Level: "debug", Format: "json"}); err != nil {
		t.Fatalf("expected json/debug to be valid: %v", err)
	}
	if _, err := newLogger(config.LogConfig{Level: "loud", Format: "text"}); err == nil {
		t.Fatalf("expected invalid level error")
	}
	if _, err := newLogger(config.LogConfig{Level: "info", Format: "xml"}); err == nil {
		t.Fatalf("expected invalid format error")
	}
}

func TestReadHookPayloadFromPipe(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer r.Close() //nolint:errcheck
	go func() {
		_, _ = w.WriteString(`{"session_id":"abc","cwd":"/src/app","hook_event_name":"Stop","extra":1}`)
		_ = w.Close()
	}()
	p := readHookPayload(r, slog.Default())
	if p.SessionID != "abc" || p.CWD != "/src/app" || p.HookEventName != "Stop" {
		t.Fatalf("unexpected payload: %+v", p)
	}
}

func TestReadHookPayloadIgnoresGarbage(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer r.Close() //nolint:errcheck
	go func() {
		_, _ = w.WriteString("not json")
		_ = w.Close()
	}()
	if p := readHookPayload(r, slog.Default()); p != (hookPayload{}) {
		t.Fatalf("expected empty payload, got %+v", p)
	}
}

func TestWriteInstanceTableMarksActive(t *testing.T) {
	a := model.PaneTarget{PaneID: "%1", SessionName: "work", WindowName: "api"}
	b := model.PaneTarget{PaneID: "%2", SessionName: "work", WindowName: "web"}
	now := time.Now()
	st := model.RegistryState{
		Instances: []model.InstanceRecord{model.NewInstanceRecord(b, now), model.NewInstanceRecord(a, now.Add(-time.Minute))},
		Active:    &a,
	}
	var buf bytes.Buffer
	if err := writeInstanceTable(&buf, st); err != nil {
		t.Fatalf("write table: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header plus two rows, got %q", buf.String())
	}
	if !strings.HasPrefix(lines[2], "*") || !strings.Contains(lines[2], "work:api") {
		t.Fatalf("expected active marker on %%1 row, got %q", lines[2])
	}
	if strings.HasPrefix(lines[1], "*") {
		t.Fatalf("unexpected active marker on %%2 row: %q", lines[1])
	}
}

func TestWriteInstanceTableEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := writeInstanceTable(&buf, model.RegistryState{}); err != nil {
		t.Fatalf("write table: %v", err)
	}
	if !strings.Contains(buf.String(), "No tracked instances") {
		t.Fatalf("unexpected output: %q", buf.String())
	}
}

func TestServeListenWithoutTelegramFailsBeforeServing(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "config.yaml")
	doc := "registry:\n  state_dir: " + dir + "\ntelegram:\n  enabled: false\n"
	if err := os.WriteFile(cfgFile, []byte(doc), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	oldConfig, oldAddr, oldListen := configPath, serveAddr, serveListen
	t.Cleanup(func() { configPath, serveAddr, serveListen = oldConfig, oldAddr, oldListen })
	configPath, serveAddr, serveListen = cfgFile, "127.0.0.1:0", true

	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	err := runServe(cmd, nil)
	if err == nil || !strings.Contains(err.Error(), "telegram is not enabled") {
		t.Fatalf("expected telegram config error, got %v", err)
	}
	lock := flock.New(filepath.Join(dir, "server.lock"))
	ok, err := lock.TryLock()
	if err != nil || !ok {
		t.Fatalf("server lock should be free, ok=%v err=%v", ok, err)
	}
	_ = lock.Unlock()
}
