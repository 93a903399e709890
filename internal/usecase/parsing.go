package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"NewsDesk/internal/domain"
	"NewsDesk/internal/logging"
	"NewsDesk/internal/ports"
)

// ErrParseRunning is returned by RunOnce while another run holds the guard.
var ErrParseRunning = errors.New("parsing is already running")

// ParserDeps wires the adapters and tunables of the parsing loop.
type ParserDeps struct {
	Source   ports.MessageSource
	Store    ports.ArticleStore
	Rewriter ports.Rewriter
	Logger   *slog.Logger

	Sources            []string
	Lookback           time.Duration
	PageSize           int
	MinLength          int
	SourcePause        time.Duration
	MaxRewriteAttempts int
	RetryBatch         int

	Now   func() time.Time
	Pause func(ctx context.Context, d time.Duration) error
}

// ParseReport summarises one run.
type ParseReport struct {
	RunID      string
	Sources    int
	Fetched    int
	TooShort   int
	Duplicates int
	Created    int
	Rewritten  int
	Failed     int
	Retried    int
	SourceErrs int
}

// Parser implements the ingest, filter, store and rewrite workflow.
type Parser struct {
	deps ParserDeps
	log  *slog.Logger
	mu   sync.Mutex
}

// NewParser constructs the parsing use case.
func NewParser(deps ParserDeps) *Parser {
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Pause == nil {
		deps.Pause = pause
	}
	return &Parser{deps: deps, log: deps.Logger.With("component", "parser")}
}

// Job adapts RunOnce to the periodic scheduler. An overlapping trigger is not an error.
func (p *Parser) Job(ctx context.Context) error {
	_, err := p.RunOnce(ctx)
	if errors.Is(err, ErrParseRunning) {
		p.log.Info("skipping scheduled run, previous run still active")
		return nil
	}
	return err
}

// RunOnce retries stuck rewrites and then processes every source in order.
// Per-source failures are logged and counted; the run fails only when no
// source could be read.
func (p *Parser) RunOnce(ctx context.Context) (ParseReport, error) {
	if !p.mu.TryLock() {
		return ParseReport{}, ErrParseRunning
	}
	defer p.mu.Unlock()

	report := ParseReport{RunID: uuid.NewString(), Sources: len(p.deps.Sources)}
	log := p.log.With("run_id", report.RunID)
	started := time.Now()
	log.Info("parse run started", "sources", report.Sources)

	p.retryUnprocessed(ctx, log, &report)

	for i, source := range p.deps.Sources {
		if i > 0 {
			if err := p.deps.Pause(ctx, p.deps.SourcePause); err != nil {
				return report, err
			}
		}

		if err := p.parseSource(ctx, log.With("source", source), source, &report); err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			report.SourceErrs++
			log.Error("source failed", "source", source, "error", err)
		}
	}

	log.Info("parse run finished",
		"duration", time.Since(started).Round(time.Millisecond),
		"fetched", report.Fetched,
		"created", report.Created,
		"rewritten", report.Rewritten,
		"failed", report.Failed,
		"retried", report.Retried,
		"duplicates", report.Duplicates,
		"too_short", report.TooShort,
	)

	if report.Sources > 0 && report.SourceErrs == report.Sources {
		return report, fmt.Errorf("all %d sources failed", report.Sources)
	}
	return report, nil
}

func (p *Parser) retryUnprocessed(ctx context.Context, log *slog.Logger, report *ParseReport) {
	if p.deps.MaxRewriteAttempts <= 0 || p.deps.RetryBatch <= 0 {
		return
	}

	stuck, err := p.deps.Store.ListUnprocessed(ctx, p.deps.MaxRewriteAttempts, p.deps.RetryBatch)
	if err != nil {
		log.Error("list unprocessed articles", "error", err)
		return
	}

	for _, article := range stuck {
		report.Retried++
		if p.rewrite(ctx, log, article.ID, article.OriginalContent) {
			report.Rewritten++
		} else {
			report.Failed++
		}
	}
}

func (p *Parser) parseSource(ctx context.Context, log *slog.Logger, source string, report *ParseReport) error {
	since := p.deps.Now().Add(-p.deps.Lookback)

	messages, err := p.deps.Source.Fetch(ctx, source, since, p.deps.PageSize)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	report.Fetched += len(messages)

	candidates := make([]domain.Message, 0, len(messages))
	for _, msg := range messages {
		if !longEnough(msg.Text, p.deps.MinLength) {
			report.TooShort++
			continue
		}
		candidates = append(candidates, msg)
	}
	if len(candidates) == 0 {
		log.Debug("no candidate messages")
		return nil
	}

	ids := make([]string, 0, len(candidates))
	for _, msg := range candidates {
		if msg.ID != "" {
			ids = append(ids, msg.ID)
		}
	}
	seen, err := p.deps.Store.AlreadyIngested(ctx, source, ids)
	if err != nil {
		return fmt.Errorf("load ingested ids: %w", err)
	}
	if seen == nil {
		seen = map[string]bool{}
	}

	for _, msg := range candidates {
		if msg.ID != "" && seen[msg.ID] {
			report.Duplicates++
			continue
		}
		seen[msg.ID] = true
		if err := ctx.Err(); err != nil {
			return err
		}

		id, err := p.deps.Store.Create(ctx, source, msg.Text, msg.ID)
		if err != nil {
			log.Error("store article", "message_id", msg.ID, "error", err)
			continue
		}
		report.Created++

		if p.rewrite(ctx, log, id, msg.Text) {
			report.Rewritten++
		} else {
			report.Failed++
		}
	}

	return nil
}

// rewrite stores the rewritten text, or counts a failed attempt.
func (p *Parser) rewrite(ctx context.Context, log *slog.Logger, id int64, original string) bool {
	text, err := p.deps.Rewriter.Rewrite(ctx, original)
	if err != nil {
		log.Warn("rewrite failed", "article_id", id, "error", err)
		if _, ferr := p.deps.Store.RecordRewriteFailure(ctx, id); ferr != nil {
			log.Error("record rewrite failure", "article_id", id, "error", ferr)
		}
		return false
	}

	ok, err := p.deps.Store.SetProcessedContent(ctx, id, text)
	if err != nil {
		log.Error("store rewritten text", "article_id", id, "error", err)
		return false
	}
	if !ok {
		log.Warn("article vanished before rewrite was stored", "article_id", id)
		return false
	}

	log.Debug("article rewritten", "article_id", id)
	return true
}

func longEnough(text string, min int) bool {
	text = strings.TrimSpace(text)
	return text != "" && utf8.RuneCountInString(text) >= min
}

// pause waits d or until ctx is done.
func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
