package parser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"LitMonitor/internal/config"
	"LitMonitor/internal/domain"
	"LitMonitor/internal/ports"
	"LitMonitor/internal/scanner"
)

// StrategySource implements PaperSource via registered scanner strategies.
// Every configured source runs against the same window and query set; a
// failing source is logged and skipped so the remaining sources still
// contribute to the run.
type StrategySource struct {
	registry *scanner.Registry
	search   config.SearchConfig
	logger   *slog.Logger
}

var _ ports.PaperSource = (*StrategySource)(nil)

// NewStrategySource wires the scanner registry with config-defined sources.
func NewStrategySource(reg *scanner.Registry, search config.SearchConfig, log *slog.Logger) *StrategySource {
	return &StrategySource{
		registry: reg,
		search:   search,
		logger:   log,
	}
}

// FetchWindow iterates over configured sources and executes their scanners.
// It fails only when every source fails; partial results are returned
// otherwise.
func (s *StrategySource) FetchWindow(ctx context.Context, since, until time.Time) ([]domain.Paper, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("scanner registry is not configured")
	}

	s.debug("fetch window",
		"sources", len(s.search.Sources),
		"since", since.Format("2006-01-02"),
		"until", until.Format("2006-01-02"))

	var (
		aggregated []domain.Paper
		failed     int
	)
	for _, src := range s.search.Sources {
		strategy, err := s.registry.Resolve(src.Scanner)
		if err != nil {
			failed++
			s.warn("source skipped", "source", src.Name, "error", err)
			continue
		}

		req := scanner.Request{
			Since:      since,
			Until:      until,
			SourceName: src.Name,
			Queries:    s.search.Queries,
			MaxResults: s.search.MaxResultsPerQuery,
			Options:    src.Options,
		}

		results, err := strategy.Scan(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			failed++
			s.warn("source failed, continuing", "source", src.Name, "error", err)
			continue
		}

		for i := range results {
			if results[i].Source == "" {
				results[i].Source = src.Name
			}
		}
		s.debug("source produced papers", "source", src.Name, "count", len(results))
		aggregated = append(aggregated, results...)
	}

	if failed > 0 && failed == len(s.search.Sources) {
		return nil, fmt.Errorf("all %d sources failed", failed)
	}

	s.debug("strategy source done", "total_papers", len(aggregated), "failed_sources", failed)
	return aggregated, nil
}

func (s *StrategySource) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func (s *StrategySource) warn(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
