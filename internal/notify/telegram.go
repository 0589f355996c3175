package notify

import (
	"context"
	"html"
	"strings"

	"github.com/epinadev/claude-remote-ui/internal/telegram"
)

// telegramMaxChars leaves room for the title and markup inside the 4096
// character message limit.
const telegramMaxChars = 3500

// Sender is the part of telegram.Client the transport uses.
type Sender interface {
	SendMessage(ctx context.Context, req telegram.SendMessageRequest) error
}

type Telegram struct {
	sender     Sender
	chatID     string
	publicHost string
}

// NewTelegram sends to chatID. publicHost, when set, names the machine in
// titles; otherwise the tmux session does.
func NewTelegram(sender Sender, chatID, publicHost string) *Telegram {
	return &Telegram{sender: sender, chatID: chatID, publicHost: publicHost}
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Send(ctx context.Context, msg Message) error {
	text := "<b>" + html.EscapeString(t.title(msg)) + "</b>\n\n<pre>" + html.EscapeString(telegramBody(msg.Context)) + "</pre>"
	return t.sender.SendMessage(ctx, telegram.SendMessageRequest{
		ChatID:                t.chatID,
		Text:                  text,
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
		ReplyMarkup: &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{{
			{Text: LinkTitle, URL: msg.URL},
		}}},
	})
}

// title renders "{short host}: {window}", the short host being the first
// label of the public host name.
func (t *Telegram) title(msg Message) string {
	host := strings.TrimSpace(t.publicHost)
	if host != "" {
		host, _, _ = strings.Cut(host, ".")
	} else {
		host = nameOr(msg.Target.SessionName, "claude")
	}
	return fitTitle(host + ": " + nameOr(msg.Target.WindowName, msg.Target.PaneID))
}

func telegramBody(text string) string {
	runes := []rune(text)
	if len(runes) <= telegramMaxChars {
		return text
	}
	return "[...truncated]\n" + string(runes[len(runes)-telegramMaxChars:])
}
