package ports

import (
	"context"
	"errors"
	"time"

	"LitMonitor/internal/domain"
)

// PaperSource pulls fresh papers from upstream literature providers.
type PaperSource interface {
	FetchWindow(ctx context.Context, since, until time.Time) ([]domain.Paper, error)
}

// ErrNotFound marks lookups for records that do not exist.
var ErrNotFound = errors.New("not found")

// PaperStore persists papers and their ranking results.
type PaperStore interface {
	SavePaper(ctx context.Context, paper domain.Paper) (bool, error)
	SaveSeedPaper(ctx context.Context, paper domain.Paper, seedSource string) (bool, error)
	PaperByID(ctx context.Context, id string) (domain.Paper, error)
	PapersByIDs(ctx context.Context, ids []string) (map[string]domain.Paper, error)
	UnscoredPapers(ctx context.Context, limit int) ([]domain.Paper, error)
	WriteRankingResult(ctx context.Context, paperID string, res domain.RankingResult) error
	EligibleForDigest(ctx context.Context, minScore float64, since time.Time) ([]domain.RankedPaper, error)
	StarredPapers(ctx context.Context, limit int) ([]domain.RankedPaper, error)
	DismissedPapers(ctx context.Context, limit int) ([]domain.RankedPaper, error)
}

// DigestLog tracks which papers already appeared in a sent digest.
type DigestLog interface {
	IsDigestMember(ctx context.Context, paperID string) (bool, error)
	DigestMembers(ctx context.Context, ids []string) (map[string]bool, error)
	RecordDigestMemberships(ctx context.Context, paperIDs []string, sentAt time.Time) error
}

// FeedbackLog is the append-only store of user feedback events.
type FeedbackLog interface {
	AppendFeedbackEvent(ctx context.Context, ev domain.FeedbackEvent) error
	FeedbackEvents(ctx context.Context) ([]domain.FeedbackEvent, error)
}

// RunLog records fetch cycles for audit and stats.
type RunLog interface {
	RecordSearchRun(ctx context.Context, run domain.SearchRun) error
	SearchRuns(ctx context.Context, limit int) ([]domain.SearchRun, error)
}

// SuggestionStore persists advisor-proposed config changes for review.
type SuggestionStore interface {
	AddSuggestion(ctx context.Context, s domain.ConfigSuggestion) error
	PendingSuggestions(ctx context.Context) ([]domain.ConfigSuggestion, error)
	ResolveSuggestion(ctx context.Context, id int64, status string) error
}

// StatsProvider reports corpus counts for the web UI and CLI.
type StatsProvider interface {
	Stats(ctx context.Context) (domain.StoreStats, error)
}

// Oracle failure classification. Transient failures may be retried after a
// delay; anything else is permanent for the affected paper.
var (
	ErrOracleTransient = errors.New("oracle transient failure")
	ErrOracleMalformed = errors.New("oracle malformed response")
)

// RankingOracle scores one paper against the researcher's interests.
type RankingOracle interface {
	Rank(ctx context.Context, paper domain.Paper, rc domain.RankingContext) (domain.OracleVerdict, error)
}

// ConfigAdvisor turns a feedback-analysis prompt into typed config
// suggestions.
type ConfigAdvisor interface {
	ProposeConfig(ctx context.Context, prompt string) ([]domain.ConfigSuggestion, error)
}

// DigestDeliverer hands a composed digest to its outbound channel.
// Digest membership must be recorded only after Deliver returns nil.
type DigestDeliverer interface {
	Deliver(ctx context.Context, digest domain.Digest) error
}

// FeedbackPuller syncs feedback collected by the edge worker.
type FeedbackPuller interface {
	PendingFeedback(ctx context.Context) ([]domain.PendingFeedback, error)
	Acknowledge(ctx context.Context, keys []string) error
}

// SeedResolver looks up a paper by DOI or PMID for seed import.
type SeedResolver interface {
	Lookup(ctx context.Context, identifier string) (domain.Paper, string, error)
}

// LibrarySource imports the operator's reference-manager holdings as seeds.
// CommitVersion persists the incremental sync cursor; callers invoke it only
// after the fetched items are stored, so a failed store repeats the window.
type LibrarySource interface {
	FetchUpdated(ctx context.Context) ([]domain.Paper, error)
	CommitVersion() error
}

// Scheduler controls when pipeline runs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
