package ranking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"LitMonitor/internal/domain"
	"LitMonitor/internal/ports"
	"LitMonitor/internal/retry"
)

// Options holds the scoring thresholds and call pacing. Tier boundaries and
// the author boost are configuration values so boundary cases can be tested
// directly.
type Options struct {
	HighThreshold     float64
	ModerateThreshold float64
	AuthorBoost       float64
	RequestInterval   time.Duration
	MaxAttempts       int
	RetryBaseDelay    time.Duration
}

// DefaultOptions returns stock thresholds used when config is silent.
func DefaultOptions() Options {
	return Options{
		HighThreshold:     70,
		ModerateThreshold: 40,
		AuthorBoost:       10,
		RequestInterval:   time.Second,
		MaxAttempts:       3,
		RetryBaseDelay:    2 * time.Second,
	}
}

// BatchSummary reports the outcome of one scoring batch.
type BatchSummary struct {
	Scored   int
	Unranked int
	Skipped  int
}

// Scorer invokes the ranking oracle per paper and applies the deterministic
// post-processing that turns a raw verdict into a RankingResult.
type Scorer struct {
	oracle  ports.RankingOracle
	store   ports.PaperStore
	opts    Options
	retrier *retry.Retrier
	logger  *slog.Logger
	clock   func() time.Time
}

// NewScorer wires the oracle and store. Logger may be nil.
func NewScorer(oracle ports.RankingOracle, store ports.PaperStore, opts Options, logger *slog.Logger) *Scorer {
	if opts.HighThreshold == 0 && opts.ModerateThreshold == 0 {
		opts = DefaultOptions()
	}
	retrier := retry.New(retry.Config{
		MaxAttempts: opts.MaxAttempts,
		BaseDelay:   opts.RetryBaseDelay,
	}, func(err error) bool {
		return errors.Is(err, ports.ErrOracleTransient)
	}, logger)

	return &Scorer{
		oracle:  oracle,
		store:   store,
		opts:    opts,
		retrier: retrier,
		logger:  logger,
		clock:   time.Now,
	}
}

// SetClock overrides the timestamp source; reproducible runs use a fixed one.
func (s *Scorer) SetClock(clock func() time.Time) {
	if clock != nil {
		s.clock = clock
	}
}

// ScoreBatch ranks each paper serially, isolating per-paper failures: a
// malformed record or failed oracle call leaves that paper unranked and the
// batch continues. A store write failure aborts, since consistency can no
// longer be guaranteed.
func (s *Scorer) ScoreBatch(ctx context.Context, papers []domain.Paper, rc domain.RankingContext) (BatchSummary, error) {
	var summary BatchSummary

	for i, paper := range papers {
		if paper.ID == "" || paper.Title == "" {
			summary.Skipped++
			s.warn("skipping malformed paper record", "paper", paper.ID, "title", paper.Title)
			continue
		}

		if i > 0 && s.opts.RequestInterval > 0 {
			select {
			case <-ctx.Done():
				return summary, ctx.Err()
			case <-time.After(s.opts.RequestInterval):
			}
		}

		var verdict domain.OracleVerdict
		err := s.retrier.Do(ctx, func() error {
			var rankErr error
			verdict, rankErr = s.oracle.Rank(ctx, paper, rc)
			return rankErr
		})
		if err != nil {
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			summary.Unranked++
			s.warn("paper left unranked", "paper", paper.ID, "error", err)
			continue
		}

		result := Finalize(verdict, paper, rc, s.opts, s.clock())

		if err := s.store.WriteRankingResult(ctx, paper.ID, result); err != nil {
			return summary, fmt.Errorf("write ranking result %s: %w", paper.ID, err)
		}
		summary.Scored++
	}

	return summary, nil
}

// Finalize applies the deterministic post-processing that is never delegated
// to the oracle: journal trust multiplier, clamp to [0,100], watched-author
// boost capped at 100, tier assignment by threshold.
func Finalize(verdict domain.OracleVerdict, paper domain.Paper, rc domain.RankingContext, opts Options, rankedAt time.Time) domain.RankingResult {
	score := verdict.Score * rc.JournalWeight(paper.Journal)
	score = clamp(score, 0, 100)

	if len(rc.WatchedAuthorsIn(paper.Authors)) > 0 {
		score = clamp(score+opts.AuthorBoost, 0, 100)
	}

	return domain.RankingResult{
		Score:           score,
		Tier:            TierFor(score, opts),
		Summary:         verdict.Summary,
		Rationale:       verdict.Rationale,
		MatchedProjects: verdict.MatchedProjects,
		RankedAt:        rankedAt,
	}
}

// TierFor maps a final score to its priority tier.
func TierFor(score float64, opts Options) domain.Tier {
	switch {
	case score >= opts.HighThreshold:
		return domain.TierHigh
	case score >= opts.ModerateThreshold:
		return domain.TierModerate
	default:
		return domain.TierLow
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (s *Scorer) warn(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
