package parser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"NewsDesk/internal/config"
	"NewsDesk/internal/domain"
	"NewsDesk/internal/ports"
	"NewsDesk/internal/scanner"
)

const defaultScanner = "telegram"

// StrategySource implements MessageSource via registered scanner strategies.
type StrategySource struct {
	registry *scanner.Registry
	sources  map[string]config.SourceConfig
	logger   *slog.Logger
}

var _ ports.MessageSource = (*StrategySource)(nil)

// NewStrategySource wires the scanner registry with config-defined sources.
func NewStrategySource(reg *scanner.Registry, sources []config.SourceConfig, log *slog.Logger) *StrategySource {
	byName := make(map[string]config.SourceConfig, len(sources))
	for _, src := range sources {
		byName[src.Name] = src
	}

	return &StrategySource{
		registry: reg,
		sources:  byName,
		logger:   log,
	}
}

// Fetch resolves the source's scanner and runs it. Unknown sources are read as Telegram channels.
func (s *StrategySource) Fetch(ctx context.Context, source string, since time.Time, limit int) ([]domain.Message, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("scanner registry is not configured")
	}

	cfg, ok := s.sources[source]
	if !ok {
		cfg = config.SourceConfig{Name: source}
	}
	if cfg.Scanner == "" {
		cfg.Scanner = defaultScanner
	}

	strategy, err := s.registry.Resolve(cfg.Scanner)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", source, err)
	}

	s.debug("fetch source", "source", source, "scanner", cfg.Scanner, "since", since.Format(time.RFC3339), "limit", limit)

	messages, err := strategy.Scan(ctx, scanner.Request{
		Source: cfg.Name,
		URL:    cfg.URL,
		Since:  since,
		Limit:  limit,
	})
	if err != nil {
		return nil, fmt.Errorf("scan source %s: %w", source, err)
	}

	s.debug("source produced messages", "source", source, "count", len(messages))
	return messages, nil
}

func (s *StrategySource) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
