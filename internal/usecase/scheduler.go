package usecase

import (
	"context"

	"golang.org/x/sync/errgroup"

	"NewsDesk/internal/ports"
)

// Scheduler wires the periodic drivers with the parsing and publication use cases.
type Scheduler struct {
	parsing     ports.Scheduler
	publication ports.Scheduler
	parser      *Parser
	publisher   *Publisher
}

// NewScheduler pairs each loop with its driver.
func NewScheduler(parsing ports.Scheduler, parser *Parser, publication ports.Scheduler, publisher *Publisher) *Scheduler {
	return &Scheduler{parsing: parsing, publication: publication, parser: parser, publisher: publisher}
}

// Run drives both loops until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if s.parsing != nil && s.parser != nil {
		g.Go(func() error { return s.parsing.Run(ctx, s.parser.Job) })
	}
	if s.publication != nil && s.publisher != nil {
		g.Go(func() error { return s.publication.Run(ctx, s.publisher.Job) })
	}

	return g.Wait()
}
