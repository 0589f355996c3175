package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/epinadev/claude-remote-ui/internal/model"
	"github.com/epinadev/claude-remote-ui/internal/telegram"
)

func sampleMessage() Message {
	return Message{
		Target:  model.PaneTarget{PaneID: "%3", SessionName: "main", WindowName: "claude"},
		CWD:     "/home/me/remote-ui",
		Context: "a < b && c > d",
		URL:     "http://box:5001/?pane=%253",
	}
}

func TestPushoverPostsForm(t *testing.T) {
	var form url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		form = r.PostForm
		_, _ = w.Write([]byte(`{"status":1}`))
	}))
	defer srv.Close()

	p := NewPushover("app", "user", srv.Client()).WithEndpoint(srv.URL)
	if err := p.Send(context.Background(), sampleMessage()); err != nil {
		t.Fatalf("send: %v", err)
	}
	if form.Get("token") != "app" || form.Get("user") != "user" {
		t.Fatalf("unexpected credentials: %v", form)
	}
	if form.Get("title") != "main: claude - remote-ui" {
		t.Fatalf("unexpected title: %q", form.Get("title"))
	}
	if form.Get("url") != "http://box:5001/?pane=%253" || form.Get("url_title") != LinkTitle || form.Get("monospace") != "1" {
		t.Fatalf("unexpected link fields: %v", form)
	}
}

func TestPushoverReportsAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":0,"errors":["application token is invalid"]}`))
	}))
	defer srv.Close()

	err := NewPushover("bad", "user", srv.Client()).WithEndpoint(srv.URL).Send(context.Background(), sampleMessage())
	if err == nil || !strings.Contains(err.Error(), "application token is invalid") {
		t.Fatalf("expected api error, got %v", err)
	}
}

func TestPushoverBodyTruncatesKeepingTail(t *testing.T) {
	body := pushoverBody(strings.Repeat("a", 1000) + "END")
	if !strings.HasSuffix(body, "END\n[...truncated]") {
		t.Fatalf("expected tail kept with marker, got suffix %q", body[len(body)-30:])
	}
	if n := len([]rune(body)); n != pushoverMaxChars+len("\n[...truncated]") {
		t.Fatalf("unexpected length %d", n)
	}
	if pushoverBody("short") != "short" {
		t.Fatalf("short bodies must be untouched")
	}
}

type fakeSender struct {
	reqs []telegram.SendMessageRequest
}

func (f *fakeSender) SendMessage(_ context.Context, req telegram.SendMessageRequest) error {
	f.reqs = append(f.reqs, req)
	return nil
}

func TestTelegramFormatsHTMLWithButton(t *testing.T) {
	s := &fakeSender{}
	if err := NewTelegram(s, "42", "box.tail1234.ts.net").Send(context.Background(), sampleMessage()); err != nil {
		t.Fatalf("send: %v", err)
	}
	req := s.reqs[0]
	want := "<b>box: claude</b>\n\n<pre>a &lt; b &amp;&amp; c &gt; d</pre>"
	if req.Text != want {
		t.Fatalf("unexpected text:\n%s\nwant\n%s", req.Text, want)
	}
	if req.ChatID != "42" || req.ParseMode != "HTML" || !req.DisableWebPagePreview {
		t.Fatalf("unexpected request: %+v", req)
	}
	btn := req.ReplyMarkup.InlineKeyboard[0][0]
	if btn.Text != LinkTitle || btn.URL != "http://box:5001/?pane=%253" {
		t.Fatalf("unexpected button: %+v", btn)
	}
}

func TestTelegramTitleFallsBackToSession(t *testing.T) {
	tg := NewTelegram(&fakeSender{}, "1", "")
	if got := tg.title(sampleMessage()); got != "main: claude" {
		t.Fatalf("unexpected title: %q", got)
	}
}

func TestTelegramBodyTruncation(t *testing.T) {
	body := telegramBody(strings.Repeat("x", telegramMaxChars+10))
	if !strings.HasPrefix(body, "[...truncated]\n") || len([]rune(body)) != telegramMaxChars+len("[...truncated]\n") {
		t.Fatalf("unexpected truncation: %d", len(body))
	}
}

func TestTitlesAreWidthBounded(t *testing.T) {
	msg := sampleMessage()
	msg.Target.WindowName = strings.Repeat("窓", 80)
	title := pushoverTitle(msg)
	if !strings.HasSuffix(title, "…") {
		t.Fatalf("expected ellipsis on long title: %q", title)
	}
}
