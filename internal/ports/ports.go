package ports

import (
	"context"
	"time"

	"NewsDesk/internal/domain"
)

// MessageSource pulls recent messages from one configured origin channel.
type MessageSource interface {
	Fetch(ctx context.Context, source string, since time.Time, limit int) ([]domain.Message, error)
}

// ArticleStore persists articles; relational and spreadsheet backends share this contract.
// Mutations report an unknown id as ok=false rather than an error.
type ArticleStore interface {
	Create(ctx context.Context, source, original, sourceMessageID string) (int64, error)
	SetProcessedContent(ctx context.Context, id int64, text string) (bool, error)
	RecordRewriteFailure(ctx context.Context, id int64) (bool, error)
	Approve(ctx context.Context, id int64) (bool, error)
	MarkPosted(ctx context.Context, id int64) (bool, error)
	Get(ctx context.Context, id int64) (domain.Article, bool, error)
	ListPending(ctx context.Context, limit int) ([]domain.Article, error)
	ListApprovedUnposted(ctx context.Context, limit int) ([]domain.Article, error)
	ListUnprocessed(ctx context.Context, maxAttempts, limit int) ([]domain.Article, error)
	AlreadyIngested(ctx context.Context, source string, messageIDs []string) (map[string]bool, error)
	Stats(ctx context.Context) (domain.Stats, error)
	Close() error
}

// Rewriter turns raw source text into publishable text.
type Rewriter interface {
	Rewrite(ctx context.Context, text string) (string, error)
}

// Generator is a single prompt-in, text-out call to an LLM provider.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Deliverer posts finished text to the destination channel.
type Deliverer interface {
	Deliver(ctx context.Context, text string) error
}

// Job is one unit of periodic work; a returned error triggers the backoff delay.
type Job func(ctx context.Context) error

// Scheduler drives a job until the context is cancelled.
type Scheduler interface {
	Run(ctx context.Context, job Job) error
}
