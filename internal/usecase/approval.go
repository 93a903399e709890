package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"NewsDesk/internal/domain"
	"NewsDesk/internal/logging"
	"NewsDesk/internal/ports"
)

// ErrForbidden is returned by read operations invoked by a non-admin.
var ErrForbidden = errors.New("operation requires an admin")

// Outcome is the user-visible result of an operator action.
type Outcome string

const (
	OutcomeApproved        Outcome = "approved"
	OutcomeAlreadyApproved Outcome = "already_approved"
	OutcomeNotRewritten    Outcome = "not_rewritten"
	OutcomeRejected        Outcome = "rejected"
	OutcomePublished       Outcome = "published"
	OutcomeAlreadyPosted   Outcome = "already_posted"
	OutcomeNotApproved     Outcome = "not_approved"
	OutcomeCancelled       Outcome = "cancelled"
	OutcomeOriginal        Outcome = "original"
	OutcomeNotFound        Outcome = "not_found"
	OutcomeForbidden       Outcome = "forbidden"
)

// Result carries the outcome and, when known, the article it applies to.
type Result struct {
	Outcome Outcome
	Article domain.Article
}

// ApprovalDeps wires the approval workflow.
type ApprovalDeps struct {
	Store     ports.ArticleStore
	Publisher *Publisher
	IsAdmin   func(userID int64) bool
	Logger    *slog.Logger

	PendingLimit  int
	ApprovedLimit int
}

// Approval gates operator commands behind the admin set and applies them to the store.
type Approval struct {
	deps ApprovalDeps
	log  *slog.Logger
}

// NewApproval constructs the approval use case.
func NewApproval(deps ApprovalDeps) *Approval {
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}
	if deps.IsAdmin == nil {
		deps.IsAdmin = func(int64) bool { return false }
	}
	if deps.PendingLimit <= 0 {
		deps.PendingLimit = 5
	}
	if deps.ApprovedLimit <= 0 {
		deps.ApprovedLimit = 10
	}
	return &Approval{deps: deps, log: deps.Logger.With("component", "approval")}
}

// IsAdmin reports whether userID may operate the workflow.
func (a *Approval) IsAdmin(userID int64) bool {
	return a.deps.IsAdmin(userID)
}

// Execute dispatches a decoded button action.
func (a *Approval) Execute(ctx context.Context, userID int64, action domain.Action) (Result, error) {
	if !a.IsAdmin(userID) {
		a.log.Info("action refused for non-admin", "user_id", userID, "action", action.String())
		return Result{Outcome: OutcomeForbidden}, nil
	}

	switch action.Kind {
	case domain.ActionApprove:
		return a.approve(ctx, userID, action.ArticleID)
	case domain.ActionReject:
		return a.acknowledge(ctx, action.ArticleID, OutcomeRejected)
	case domain.ActionCancel:
		return a.acknowledge(ctx, action.ArticleID, OutcomeCancelled)
	case domain.ActionOriginal:
		return a.acknowledge(ctx, action.ArticleID, OutcomeOriginal)
	case domain.ActionPublish:
		return a.publishNow(ctx, userID, action.ArticleID)
	default:
		return Result{}, fmt.Errorf("%w: %q", domain.ErrInvalidAction, action.Kind)
	}
}

// Approve marks a rewritten article as approved. Repeating it is a no-op.
func (a *Approval) Approve(ctx context.Context, userID, id int64) (Result, error) {
	return a.Execute(ctx, userID, domain.Action{Kind: domain.ActionApprove, ArticleID: id})
}

// Reject only acknowledges the decision; the article stays unapproved.
func (a *Approval) Reject(ctx context.Context, userID, id int64) (Result, error) {
	return a.Execute(ctx, userID, domain.Action{Kind: domain.ActionReject, ArticleID: id})
}

// PublishNow delivers an approved article immediately and marks it posted.
func (a *Approval) PublishNow(ctx context.Context, userID, id int64) (Result, error) {
	return a.Execute(ctx, userID, domain.Action{Kind: domain.ActionPublish, ArticleID: id})
}

// ListPending returns rewritten, unapproved articles newest first.
func (a *Approval) ListPending(ctx context.Context, userID int64) ([]domain.Article, error) {
	if !a.IsAdmin(userID) {
		return nil, ErrForbidden
	}
	return a.deps.Store.ListPending(ctx, a.deps.PendingLimit)
}

// ListApproved returns the publication queue oldest first.
func (a *Approval) ListApproved(ctx context.Context, userID int64) ([]domain.Article, error) {
	if !a.IsAdmin(userID) {
		return nil, ErrForbidden
	}
	return a.deps.Store.ListApprovedUnposted(ctx, a.deps.ApprovedLimit)
}

// Status returns the store counters.
func (a *Approval) Status(ctx context.Context, userID int64) (domain.Stats, error) {
	if !a.IsAdmin(userID) {
		return domain.Stats{}, ErrForbidden
	}
	return a.deps.Store.Stats(ctx)
}

func (a *Approval) approve(ctx context.Context, userID, id int64) (Result, error) {
	article, found, err := a.deps.Store.Get(ctx, id)
	if err != nil {
		return Result{}, fmt.Errorf("load article %d: %w", id, err)
	}
	switch {
	case !found:
		return Result{Outcome: OutcomeNotFound}, nil
	case article.IsApproved:
		return Result{Outcome: OutcomeAlreadyApproved, Article: article}, nil
	case !article.Processed():
		return Result{Outcome: OutcomeNotRewritten, Article: article}, nil
	}

	ok, err := a.deps.Store.Approve(ctx, id)
	if err != nil {
		return Result{}, fmt.Errorf("approve article %d: %w", id, err)
	}
	if !ok {
		return Result{Outcome: OutcomeNotFound}, nil
	}

	article.IsApproved = true
	a.log.Info("article approved", "article_id", id, "user_id", userID)
	return Result{Outcome: OutcomeApproved, Article: article}, nil
}

func (a *Approval) publishNow(ctx context.Context, userID, id int64) (Result, error) {
	if a.deps.Publisher == nil {
		return Result{}, errors.New("publisher is not configured")
	}

	res, article, err := a.deps.Publisher.Publish(ctx, id)
	if err != nil {
		return Result{Article: article}, err
	}

	switch res {
	case PublishNotFound:
		return Result{Outcome: OutcomeNotFound}, nil
	case PublishAlreadyPosted:
		return Result{Outcome: OutcomeAlreadyPosted, Article: article}, nil
	case PublishNotApproved:
		return Result{Outcome: OutcomeNotApproved, Article: article}, nil
	}

	a.log.Info("article published by operator", "article_id", id, "user_id", userID)
	article.IsPosted = true
	return Result{Outcome: OutcomePublished, Article: article}, nil
}

// acknowledge resolves the article for UI-only actions without changing it.
func (a *Approval) acknowledge(ctx context.Context, id int64, outcome Outcome) (Result, error) {
	article, found, err := a.deps.Store.Get(ctx, id)
	if err != nil {
		return Result{}, fmt.Errorf("load article %d: %w", id, err)
	}
	if !found {
		return Result{Outcome: OutcomeNotFound}, nil
	}
	return Result{Outcome: outcome, Article: article}, nil
}
