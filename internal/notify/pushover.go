package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const pushoverEndpoint = "https://api.pushover.net/1/messages.json"

// pushoverMaxChars keeps the body under Pushover's 1024 character limit
// once the truncation marker is appended.
const pushoverMaxChars = 900

type Pushover struct {
	appToken string
	userKey  string
	endpoint string
	client   *http.Client
}

func NewPushover(appToken, userKey string, client *http.Client) *Pushover {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Pushover{appToken: appToken, userKey: userKey, endpoint: pushoverEndpoint, client: client}
}

// WithEndpoint points the transport at another API root, for tests.
func (p *Pushover) WithEndpoint(endpoint string) *Pushover {
	p.endpoint = endpoint
	return p
}

func (p *Pushover) Name() string { return "pushover" }

func (p *Pushover) Send(ctx context.Context, msg Message) error {
	form := url.Values{
		"token":     {p.appToken},
		"user":      {p.userKey},
		"message":   {pushoverBody(msg.Context)},
		"title":     {pushoverTitle(msg)},
		"url":       {msg.URL},
		"url_title": {LinkTitle},
		"priority":  {"0"},
		"monospace": {"1"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build pushover request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return fmt.Errorf("pushover: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var body struct {
		Errors []string `json:"errors"`
	}
	if json.Unmarshal(raw, &body) == nil && len(body.Errors) > 0 {
		return fmt.Errorf("pushover: status %d: %s", resp.StatusCode, strings.Join(body.Errors, "; "))
	}
	return fmt.Errorf("pushover: status %d", resp.StatusCode)
}

// pushoverTitle renders "{session}: {window} - {cwd}".
func pushoverTitle(msg Message) string {
	title := nameOr(msg.Target.SessionName, "claude") + ": " + nameOr(msg.Target.WindowName, msg.Target.PaneID)
	if base := cwdBase(msg.CWD); base != "" {
		title += " - " + base
	}
	return fitTitle(title)
}

func pushoverBody(text string) string {
	runes := []rune(text)
	if len(runes) <= pushoverMaxChars {
		return text
	}
	return string(runes[len(runes)-pushoverMaxChars:]) + "\n[...truncated]"
}
