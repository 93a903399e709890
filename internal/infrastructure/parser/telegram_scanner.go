package parser

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"NewsDesk/internal/domain"
	"NewsDesk/internal/scanner"
)

const (
	defaultChannelEndpoint = "https://t.me/s/"
	maxChannelPages        = 10
)

// TelegramScanner reads public channels through their web preview pages.
type TelegramScanner struct {
	client    *http.Client
	endpoint  string
	userAgent string
	logger    *slog.Logger
}

// NewTelegramScanner wires an HTTP client; endpoint defaults to https://t.me/s/.
func NewTelegramScanner(client *http.Client, endpoint, userAgent string, logger *slog.Logger) *TelegramScanner {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if endpoint == "" {
		endpoint = defaultChannelEndpoint
	}
	if !strings.HasSuffix(endpoint, "/") {
		endpoint += "/"
	}
	return &TelegramScanner{client: client, endpoint: endpoint, userAgent: userAgent, logger: logger}
}

// Name identifies the strategy inside the registry.
func (t *TelegramScanner) Name() string {
	return "telegram"
}

// Scan walks preview pages backwards until it has Limit messages newer than Since.
// Messages are returned oldest first.
func (t *TelegramScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.Message, error) {
	channel := channelName(req.Source)
	if channel == "" {
		return nil, fmt.Errorf("empty channel name")
	}

	var (
		collected []domain.Message
		before    int64
		seen      = map[string]bool{}
	)

	for page := 0; page < maxChannelPages; page++ {
		pageURL, err := buildChannelURL(t.endpoint, channel, before)
		if err != nil {
			return nil, err
		}

		doc, err := t.fetchDocument(ctx, pageURL)
		if err != nil {
			return nil, fmt.Errorf("channel %s: %w", channel, err)
		}

		messages, oldest := extractMessages(doc)
		t.debug("channel page parsed", "channel", channel, "page", page, "messages", len(messages))

		reachedWindow := false
		for _, msg := range messages {
			if msg.Timestamp.Before(req.Since) {
				reachedWindow = true
				continue
			}
			if seen[msg.ID] {
				continue
			}
			seen[msg.ID] = true
			collected = append(collected, msg)
		}

		if reachedWindow || oldest == 0 || (before != 0 && oldest >= before) {
			break
		}
		if req.Limit > 0 && len(collected) >= req.Limit {
			break
		}
		before = oldest
	}

	sort.SliceStable(collected, func(i, j int) bool {
		return collected[i].Timestamp.Before(collected[j].Timestamp)
	})
	if req.Limit > 0 && len(collected) > req.Limit {
		collected = collected[len(collected)-req.Limit:]
	}

	return collected, nil
}

func (t *TelegramScanner) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("telegram preview returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	return doc, nil
}

// extractMessages returns page messages and the smallest post number seen.
func extractMessages(doc *goquery.Document) ([]domain.Message, int64) {
	var (
		messages []domain.Message
		oldest   int64
	)

	doc.Find(".tgme_widget_message[data-post]").Each(func(_ int, node *goquery.Selection) {
		msg, number, ok := parseMessage(node)
		if number > 0 && (oldest == 0 || number < oldest) {
			oldest = number
		}
		if ok {
			messages = append(messages, msg)
		}
	})

	return messages, oldest
}

func parseMessage(node *goquery.Selection) (domain.Message, int64, bool) {
	post, _ := node.Attr("data-post")
	_, rawID, found := strings.Cut(post, "/")
	if !found {
		return domain.Message{}, 0, false
	}
	number, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return domain.Message{}, 0, false
	}

	textNode := node.Find(".tgme_widget_message_text").First()
	textNode.Find("br").ReplaceWithHtml("\n")
	text := strings.TrimSpace(textNode.Text())

	timestamp := time.Now().UTC()
	if raw, ok := node.Find(".tgme_widget_message_date time").First().Attr("datetime"); ok {
		if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
			timestamp = parsed.UTC()
		}
	}

	return domain.Message{ID: rawID, Text: text, Timestamp: timestamp}, number, true
}

func buildChannelURL(endpoint, channel string, before int64) (string, error) {
	parsed, err := url.Parse(endpoint + url.PathEscape(channel))
	if err != nil {
		return "", fmt.Errorf("invalid channel url for %s: %w", channel, err)
	}

	if before > 0 {
		query := parsed.Query()
		query.Set("before", strconv.FormatInt(before, 10))
		parsed.RawQuery = query.Encode()
	}
	return parsed.String(), nil
}

// channelName accepts "@name", "name" and "https://t.me/name" forms.
func channelName(source string) string {
	name := strings.TrimSpace(source)
	for _, prefix := range []string{"https://t.me/s/", "https://t.me/", "t.me/", "@"} {
		name = strings.TrimPrefix(name, prefix)
	}
	return strings.Trim(name, "/")
}

func (t *TelegramScanner) debug(msg string, args ...any) {
	if t.logger != nil {
		t.logger.Debug(msg, args...)
	}
}
