package notify

import (
	"context"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/epinadev/claude-remote-ui/internal/model"
)

// GenericContext stands in for pane output when none could be captured.
const GenericContext = "Claude Code activity detected"

// LinkTitle labels the deep-link button in push clients.
const LinkTitle = "Open Remote UI"

// maxTitleWidth bounds titles in terminal cells; lock screens cut long
// titles mid-glyph otherwise.
const maxTitleWidth = 60

// Message is one notification before transport-specific formatting.
type Message struct {
	EventID string
	Event   string
	Target  model.PaneTarget
	CWD     string
	// Context is sanitized, redacted pane output, or GenericContext.
	Context string
	Generic bool
	URL     string
}

// Transport delivers a Message to one push service.
type Transport interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// DeepLink builds the URL that opens the web UI on paneID. Pane ids carry
// '%', so the id is query-escaped.
func DeepLink(baseURL, paneID string) string {
	base := strings.TrimRight(baseURL, "/")
	if paneID == "" {
		return base + "/"
	}
	return base + "/?pane=" + url.QueryEscape(paneID)
}

func fitTitle(title string) string {
	return runewidth.Truncate(title, maxTitleWidth, "…")
}

func cwdBase(cwd string) string {
	if strings.TrimSpace(cwd) == "" {
		return ""
	}
	return filepath.Base(filepath.Clean(cwd))
}

func nameOr(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
