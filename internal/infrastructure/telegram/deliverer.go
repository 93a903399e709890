package telegram

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"NewsDesk/internal/ports"
)

// MaxMessageLength is the Bot API limit for message text.
const MaxMessageLength = 4096

// Deliverer posts finished articles into the destination chat.
type Deliverer struct {
	client *Client
	chatID string
	policy *bluemonday.Policy
	plain  *bluemonday.Policy
}

var _ ports.Deliverer = (*Deliverer)(nil)

// NewDeliverer binds the client to the destination chat id ("-100…" or "@channel").
func NewDeliverer(client *Client, chatID string) *Deliverer {
	return &Deliverer{client: client, chatID: chatID, policy: HTMLPolicy(), plain: bluemonday.StrictPolicy()}
}

// Deliver sends text as HTML after stripping markup Telegram would reject.
func (d *Deliverer) Deliver(ctx context.Context, text string) error {
	if d.client == nil || d.chatID == "" {
		return fmt.Errorf("telegram deliverer misconfigured")
	}

	body := strings.TrimSpace(d.policy.Sanitize(text))
	if body == "" {
		return fmt.Errorf("nothing to deliver")
	}
	if utf8.RuneCountInString(body) > MaxMessageLength {
		// Cutting markup could leave unbalanced tags, so oversize posts go out as plain text.
		body = clipEscaped(strings.TrimSpace(d.plain.Sanitize(text)), MaxMessageLength)
	}

	if _, err := d.client.SendMessage(ctx, d.chatID, body, ParseModeHTML, nil); err != nil {
		return fmt.Errorf("deliver to %s: %w", d.chatID, err)
	}
	return nil
}

var (
	spoilerClass  = regexp.MustCompile(`^tg-spoiler$`)
	languageClass = regexp.MustCompile(`^language-[\w+#-]+$`)
)

// HTMLPolicy keeps the subset of HTML supported by Telegram's HTML parse mode.
func HTMLPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("b", "strong", "i", "em", "u", "ins", "s", "strike", "del", "code", "pre", "blockquote", "tg-spoiler")
	p.AllowAttrs("href").OnElements("a")
	p.RequireParseableURLs(true)
	p.AllowURLSchemes("http", "https", "tg", "mailto")
	p.AllowAttrs("class").Matching(spoilerClass).OnElements("span")
	p.AllowAttrs("class").Matching(languageClass).OnElements("code")
	return p
}

// clipEscaped cuts HTML-escaped text to max runes including a "..." marker,
// never splitting an entity such as &amp;.
func clipEscaped(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}

	cut := string(runes[:max-3])
	if amp := strings.LastIndexByte(cut, '&'); amp >= 0 && !strings.Contains(cut[amp:], ";") {
		cut = cut[:amp]
	}
	return cut + "..."
}
