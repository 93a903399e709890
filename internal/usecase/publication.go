package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"NewsDesk/internal/domain"
	"NewsDesk/internal/logging"
	"NewsDesk/internal/ports"
)

// PublisherDeps wires the publication loop.
type PublisherDeps struct {
	Store     ports.ArticleStore
	Deliverer ports.Deliverer
	Logger    *slog.Logger

	BatchSize int
	SendPause time.Duration

	Pause func(ctx context.Context, d time.Duration) error
}

// PublishResult describes what a single publish request did.
type PublishResult int

const (
	PublishDelivered PublishResult = iota
	PublishNotFound
	PublishNotApproved
	PublishAlreadyPosted
)

// Publisher delivers approved articles and marks them posted.
// Deliveries are serialised so a manual publish cannot race the loop.
type Publisher struct {
	deps PublisherDeps
	log  *slog.Logger
	mu   sync.Mutex
}

// NewPublisher constructs the publication use case.
func NewPublisher(deps PublisherDeps) *Publisher {
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}
	if deps.Pause == nil {
		deps.Pause = pause
	}
	if deps.BatchSize <= 0 {
		deps.BatchSize = 1
	}
	return &Publisher{deps: deps, log: deps.Logger.With("component", "publisher")}
}

// Job adapts Cycle to the periodic scheduler.
func (p *Publisher) Job(ctx context.Context) error {
	_, err := p.Cycle(ctx)
	return err
}

// Cycle delivers up to BatchSize approved, unposted articles oldest first.
// A failed delivery leaves the article untouched for the next cycle.
func (p *Publisher) Cycle(ctx context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	queue, err := p.deps.Store.ListApprovedUnposted(ctx, p.deps.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list approved articles: %w", err)
	}
	if len(queue) == 0 {
		p.log.Debug("nothing to publish")
		return 0, nil
	}

	posted := 0
	for i, article := range queue {
		if i > 0 {
			if err := p.deps.Pause(ctx, p.deps.SendPause); err != nil {
				return posted, err
			}
		}
		if p.deliver(ctx, article) {
			posted++
		}
	}

	return posted, nil
}

// Publish delivers one article immediately, outside the schedule.
func (p *Publisher) Publish(ctx context.Context, id int64) (PublishResult, domain.Article, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	article, found, err := p.deps.Store.Get(ctx, id)
	if err != nil {
		return 0, domain.Article{}, fmt.Errorf("load article %d: %w", id, err)
	}
	switch {
	case !found:
		return PublishNotFound, domain.Article{}, nil
	case article.IsPosted:
		return PublishAlreadyPosted, article, nil
	case !article.IsApproved:
		return PublishNotApproved, article, nil
	}

	if err := p.deps.Deliverer.Deliver(ctx, article.Text()); err != nil {
		return 0, article, fmt.Errorf("deliver article %d: %w", id, err)
	}
	if _, err := p.deps.Store.MarkPosted(ctx, id); err != nil {
		return 0, article, fmt.Errorf("mark article %d posted: %w", id, err)
	}

	p.log.Info("article published on demand", "article_id", id)
	return PublishDelivered, article, nil
}

func (p *Publisher) deliver(ctx context.Context, article domain.Article) bool {
	log := p.log.With("article_id", article.ID)

	if err := p.deps.Deliverer.Deliver(ctx, article.Text()); err != nil {
		log.Error("delivery failed", "error", err)
		return false
	}

	ok, err := p.deps.Store.MarkPosted(ctx, article.ID)
	switch {
	case errors.Is(err, domain.ErrNotApproved):
		log.Error("delivered article is not approved", "error", err)
		return false
	case err != nil:
		log.Error("mark posted failed", "error", err)
		return false
	case !ok:
		log.Warn("delivered article disappeared from store")
		return false
	}

	log.Info("article published")
	return true
}
