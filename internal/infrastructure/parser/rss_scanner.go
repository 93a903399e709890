package parser

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"NewsDesk/internal/domain"
	"NewsDesk/internal/scanner"
)

// RSSScanner reads RSS/Atom/JSON feeds configured as sources.
type RSSScanner struct {
	parser *gofeed.Parser
	logger *slog.Logger
}

// NewRSSScanner wires a gofeed parser with the given HTTP client.
func NewRSSScanner(client *http.Client, userAgent string, logger *slog.Logger) *RSSScanner {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}

	fp := gofeed.NewParser()
	fp.Client = client
	if userAgent != "" {
		fp.UserAgent = userAgent
	}

	return &RSSScanner{parser: fp, logger: logger}
}

// Name identifies the strategy inside the registry.
func (r *RSSScanner) Name() string {
	return "rss"
}

// Scan returns feed items newer than Since, oldest first, keeping the newest Limit.
func (r *RSSScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.Message, error) {
	feedURL := req.URL
	if feedURL == "" {
		feedURL = req.Source
	}

	feed, err := r.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", feedURL, err)
	}

	messages := make([]domain.Message, 0, len(feed.Items))
	for _, item := range feed.Items {
		msg := itemToMessage(item)
		if msg.ID == "" || msg.Timestamp.Before(req.Since) {
			continue
		}
		messages = append(messages, msg)
	}

	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Timestamp.Before(messages[j].Timestamp)
	})
	if req.Limit > 0 && len(messages) > req.Limit {
		messages = messages[len(messages)-req.Limit:]
	}

	if r.logger != nil {
		r.logger.Debug("feed parsed", "feed", feedURL, "items", len(feed.Items), "kept", len(messages))
	}

	return messages, nil
}

func itemToMessage(item *gofeed.Item) domain.Message {
	id := item.GUID
	if id == "" {
		id = item.Link
	}

	body := item.Content
	if body == "" {
		body = item.Description
	}

	parts := make([]string, 0, 3)
	for _, part := range []string{strings.TrimSpace(item.Title), htmlToText(body), strings.TrimSpace(item.Link)} {
		if part != "" {
			parts = append(parts, part)
		}
	}

	timestamp := time.Now().UTC()
	switch {
	case item.PublishedParsed != nil:
		timestamp = item.PublishedParsed.UTC()
	case item.UpdatedParsed != nil:
		timestamp = item.UpdatedParsed.UTC()
	}

	return domain.Message{ID: id, Text: strings.Join(parts, "\n\n"), Timestamp: timestamp}
}

func htmlToText(fragment string) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.TrimSpace(fragment)
	}
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p").Each(func(_ int, p *goquery.Selection) {
		p.AppendHtml("\n")
	})

	return strings.TrimSpace(doc.Text())
}
