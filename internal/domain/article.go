package domain

import (
	"errors"
	"time"
)

// ErrNotApproved is returned when publication is requested for an article
// that has not been approved by an operator.
var ErrNotApproved = errors.New("article is not approved")

// ErrEmptyContent rejects blank rewritten text.
var ErrEmptyContent = errors.New("processed content is empty")

// Article is one ingested message plus its rewritten text and workflow flags.
type Article struct {
	ID               int64
	Source           string
	SourceMessageID  string
	OriginalContent  string
	ProcessedContent *string
	IsApproved       bool
	IsPosted         bool
	RewriteAttempts  int
	CreatedAt        time.Time
	PostedAt         *time.Time
}

// Processed reports whether the rewrite step has produced text for the article.
func (a Article) Processed() bool {
	return a.ProcessedContent != nil
}

// Text returns the rewritten content or an empty string.
func (a Article) Text() string {
	if a.ProcessedContent == nil {
		return ""
	}
	return *a.ProcessedContent
}

// Pending reports whether the article waits for an operator decision.
func (a Article) Pending() bool {
	return !a.IsApproved && a.ProcessedContent != nil
}

// Publishable reports whether the publication loop may deliver the article.
func (a Article) Publishable() bool {
	return a.IsApproved && !a.IsPosted
}

// Message is a raw post returned by an ingestion source.
type Message struct {
	ID        string
	Text      string
	Timestamp time.Time
}

// Stats holds the simple counters shown to operators.
type Stats struct {
	Pending          int `json:"pending"`
	ApprovedUnposted int `json:"approved_unposted"`
	Posted           int `json:"posted"`
	Total            int `json:"total"`
}
