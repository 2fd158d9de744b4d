// Package usecase orchestrates the literature-monitoring workflow: search,
// ranking, digest delivery, feedback sync, and seeding. It holds no protocol
// or storage logic of its own; everything arrives through ports and the core
// packages.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"LitMonitor/internal/config"
	"LitMonitor/internal/digest"
	"LitMonitor/internal/domain"
	"LitMonitor/internal/feedback"
	"LitMonitor/internal/ports"
	"LitMonitor/internal/ranking"
)

// examplePoolLimit bounds how many starred and dismissed papers are loaded
// when assembling the feedback section of the ranking prompt.
const examplePoolLimit = 20

// Store combines the persistence ports the pipeline needs. The SQLite store
// satisfies all of them.
type Store interface {
	ports.PaperStore
	ports.FeedbackLog
	ports.DigestLog
	ports.RunLog
}

// BatchScorer ranks a batch of papers and persists the results.
type BatchScorer interface {
	ScoreBatch(ctx context.Context, papers []domain.Paper, rc domain.RankingContext) (ranking.BatchSummary, error)
}

// MembershipFilter drops papers that already appeared in a delivered digest.
type MembershipFilter interface {
	Filter(ctx context.Context, papers []domain.RankedPaper) ([]domain.RankedPaper, error)
}

// SuggestionEngine analyzes accumulated feedback and proposes config changes.
type SuggestionEngine interface {
	Generate(ctx context.Context) ([]domain.ConfigSuggestion, error)
}

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Config    config.Config
	Source    ports.PaperSource
	Store     Store
	Scorer    BatchScorer
	Dedup     MembershipFilter
	Deliverer ports.DigestDeliverer
	Puller    ports.FeedbackPuller
	Resolver  ports.SeedResolver
	Library   ports.LibrarySource
	Suggester SuggestionEngine
	Logger    *slog.Logger
}

// Pipeline implements the paper-monitoring workflow.
type Pipeline struct {
	cfg       config.Config
	source    ports.PaperSource
	store     Store
	scorer    BatchScorer
	dedup     MembershipFilter
	deliverer ports.DigestDeliverer
	puller    ports.FeedbackPuller
	resolver  ports.SeedResolver
	library   ports.LibrarySource
	suggester SuggestionEngine
	logger    *slog.Logger
	clock     func() time.Time
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	return &Pipeline{
		cfg:       deps.Config,
		source:    deps.Source,
		store:     deps.Store,
		scorer:    deps.Scorer,
		dedup:     deps.Dedup,
		deliverer: deps.Deliverer,
		puller:    deps.Puller,
		resolver:  deps.Resolver,
		library:   deps.Library,
		suggester: deps.Suggester,
		logger:    deps.Logger,
		clock:     time.Now,
	}
}

// SetClock overrides the time source. Tests use it to pin search windows and
// feedback timestamps.
func (p *Pipeline) SetClock(clock func() time.Time) {
	if clock != nil {
		p.clock = clock
	}
}

// RunSearch fetches the lookback window from all configured sources and
// persists what it finds. days <= 0 falls back to the configured lookback.
// Every paper the window returns is saved; the returned SearchRun counts the
// total found, how many were new, and how many new ones touched a watched
// author or project keyword.
func (p *Pipeline) RunSearch(ctx context.Context, days int) (domain.SearchRun, error) {
	if p.source == nil {
		return domain.SearchRun{}, errors.New("paper source is not configured")
	}
	if p.store == nil {
		return domain.SearchRun{}, errors.New("store is not configured")
	}

	if days <= 0 {
		days = p.cfg.Search.DaysLookback
	}
	if days <= 0 {
		days = 7
	}

	until := p.clock()
	since := until.AddDate(0, 0, -days)

	papers, err := p.source.FetchWindow(ctx, since, until)
	if err != nil {
		return domain.SearchRun{}, fmt.Errorf("fetch window: %w", err)
	}

	run := domain.SearchRun{RunAt: until, PapersFound: len(papers)}
	for _, paper := range papers {
		created, err := p.store.SavePaper(ctx, paper)
		if err != nil {
			return run, fmt.Errorf("save paper %s: %w", paper.ID, err)
		}
		if !created {
			continue
		}
		run.NewPapers++
		if p.priorityAtFetch(paper) {
			run.HighPriority++
		}
	}

	if err := p.store.RecordSearchRun(ctx, run); err != nil {
		return run, fmt.Errorf("record search run: %w", err)
	}

	p.info("search run complete",
		"found", run.PapersFound,
		"new", run.NewPapers,
		"high_priority", run.HighPriority,
		"days", days)
	return run, nil
}

// priorityAtFetch flags a paper before any oracle ranking happens: a watched
// author on the byline or a project keyword in the title or abstract. The
// count goes into the run record only; the oracle score decides the digest.
func (p *Pipeline) priorityAtFetch(paper domain.Paper) bool {
	for _, watched := range p.cfg.WatchedAuthors {
		needle := strings.ToLower(strings.TrimSpace(watched))
		if needle == "" {
			continue
		}
		for _, author := range paper.Authors {
			if strings.Contains(strings.ToLower(author), needle) {
				return true
			}
		}
	}

	text := strings.ToLower(paper.Title + " " + paper.Abstract)
	for _, project := range p.cfg.Projects {
		for _, keyword := range project.Keywords {
			needle := strings.ToLower(strings.TrimSpace(keyword))
			if needle != "" && strings.Contains(text, needle) {
				return true
			}
		}
	}
	return false
}

// RunRanking scores up to limit unscored papers against the current ranking
// context. limit <= 0 scores everything waiting. The context folds the whole
// feedback log each time, so a star recorded five minutes ago already shifts
// this batch.
func (p *Pipeline) RunRanking(ctx context.Context, limit int) (ranking.BatchSummary, error) {
	if p.scorer == nil {
		return ranking.BatchSummary{}, errors.New("scorer is not configured")
	}
	if p.store == nil {
		return ranking.BatchSummary{}, errors.New("store is not configured")
	}

	papers, err := p.store.UnscoredPapers(ctx, limit)
	if err != nil {
		return ranking.BatchSummary{}, fmt.Errorf("load unscored papers: %w", err)
	}
	if len(papers) == 0 {
		p.info("nothing to rank")
		return ranking.BatchSummary{}, nil
	}

	rc, err := p.rankingContext(ctx)
	if err != nil {
		return ranking.BatchSummary{}, err
	}

	summary, err := p.scorer.ScoreBatch(ctx, papers, rc)
	if err != nil {
		return summary, fmt.Errorf("score batch: %w", err)
	}

	p.info("ranking complete",
		"scored", summary.Scored,
		"unranked", summary.Unranked,
		"skipped", summary.Skipped)
	return summary, nil
}

// rankingContext assembles the configuration and feedback state the oracle
// prompt is built from.
func (p *Pipeline) rankingContext(ctx context.Context) (domain.RankingContext, error) {
	rc := domain.RankingContext{
		Projects:       activeProjects(p.cfg.Projects),
		WatchedAuthors: p.cfg.WatchedAuthors,
		JournalWeights: p.cfg.JournalWeightMap(),
	}

	events, err := p.store.FeedbackEvents(ctx)
	if err != nil {
		return rc, fmt.Errorf("load feedback events: %w", err)
	}
	if len(events) == 0 {
		return rc, nil
	}

	seen := map[string]bool{}
	ids := make([]string, 0, len(events))
	for _, ev := range events {
		if !seen[ev.PaperID] {
			seen[ev.PaperID] = true
			ids = append(ids, ev.PaperID)
		}
	}

	papers, err := p.store.PapersByIDs(ctx, ids)
	if err != nil {
		return rc, fmt.Errorf("load feedback papers: %w", err)
	}

	entries := make([]feedback.Entry, 0, len(events))
	for _, ev := range events {
		paper, ok := papers[ev.PaperID]
		if !ok {
			// Feedback can outlive the paper row; without the paper there
			// are no tokens to adjust.
			continue
		}
		entries = append(entries, feedback.Entry{
			Paper:      paper,
			Action:     ev.Action,
			OccurredAt: ev.OccurredAt,
		})
	}

	adj := feedback.Aggregate(entries, p.feedbackOptions())
	rc.ProjectAttention = adj.ProjectAttention

	starred, err := p.store.StarredPapers(ctx, examplePoolLimit)
	if err != nil {
		return rc, fmt.Errorf("load starred papers: %w", err)
	}
	dismissed, err := p.store.DismissedPapers(ctx, examplePoolLimit)
	if err != nil {
		return rc, fmt.Errorf("load dismissed papers: %w", err)
	}
	rc.FeedbackSummary = feedback.BuildPromptSection(starred, dismissed, adj)
	return rc, nil
}

func (p *Pipeline) feedbackOptions() feedback.Options {
	return feedback.Options{
		Projects:       activeProjects(p.cfg.Projects),
		WatchedAuthors: p.cfg.WatchedAuthors,
		JournalWeights: p.cfg.JournalWeightMap(),
		StarWeight:     p.cfg.Ranking.StarWeight,
		DismissWeight:  p.cfg.Ranking.DismissWeight,
		AttentionStep:  p.cfg.Ranking.AttentionStep,
		MinAttention:   p.cfg.Ranking.MinAttention,
		MaxAttention:   p.cfg.Ranking.MaxAttention,
	}
}

func activeProjects(projects []config.ProjectConfig) []domain.ActiveProject {
	out := make([]domain.ActiveProject, 0, len(projects))
	for _, project := range projects {
		out = append(out, domain.ActiveProject{
			Name:     project.Name,
			Keywords: project.Keywords,
		})
	}
	return out
}

// DigestOptions adjusts a single digest run. Zero values defer to config.
type DigestOptions struct {
	// MinScore overrides the configured relevance floor when positive.
	MinScore float64
	// Days overrides the first-seen window when positive.
	Days int
	// DryRun renders and delivers through whatever the deliverer does in
	// dry-run mode but never records digest membership, so the same papers
	// remain eligible for the next real digest.
	DryRun bool
}

// RunDigest assembles and delivers a digest of newly eligible papers. Papers
// that ever appeared in a delivered digest are filtered out permanently.
// Membership is recorded only after delivery succeeds; an empty candidate set
// delivers nothing and returns an empty digest.
func (p *Pipeline) RunDigest(ctx context.Context, opts DigestOptions) (domain.Digest, error) {
	if p.deliverer == nil {
		return domain.Digest{}, errors.New("digest deliverer is not configured")
	}
	if p.store == nil {
		return domain.Digest{}, errors.New("store is not configured")
	}

	minScore := opts.MinScore
	if minScore <= 0 {
		minScore = p.cfg.Ranking.MinRelevanceScore
	}
	days := opts.Days
	if days <= 0 {
		days = p.cfg.Search.DaysLookback
	}
	if days <= 0 {
		days = 7
	}

	now := p.clock()
	since := now.AddDate(0, 0, -days)

	eligible, err := p.store.EligibleForDigest(ctx, minScore, since)
	if err != nil {
		return domain.Digest{}, fmt.Errorf("load digest candidates: %w", err)
	}

	fresh := eligible
	if p.dedup != nil {
		fresh, err = p.dedup.Filter(ctx, eligible)
		if err != nil {
			return domain.Digest{}, fmt.Errorf("filter digested papers: %w", err)
		}
	}
	if len(fresh) == 0 {
		p.info("no new papers for digest", "eligible", len(eligible))
		return domain.Digest{}, nil
	}

	d := digest.Compose(fresh, now)

	if err := p.deliverer.Deliver(ctx, d); err != nil {
		return d, fmt.Errorf("deliver digest: %w", err)
	}

	if opts.DryRun {
		p.info("dry run, digest membership not recorded", "papers", d.PaperCount())
		return d, nil
	}

	ids := make([]string, 0, len(fresh))
	for _, rp := range fresh {
		ids = append(ids, rp.Paper.ID)
	}
	if err := p.store.RecordDigestMemberships(ctx, ids, now); err != nil {
		return d, fmt.Errorf("record digest memberships: %w", err)
	}

	p.info("digest delivered",
		"papers", d.PaperCount(),
		"high", d.TierCount(domain.TierHigh),
		"moderate", d.TierCount(domain.TierModerate))
	return d, nil
}

// SyncFeedback drains one-click actions collected by the delivery worker into
// the local feedback log. Acknowledgment is best effort: an unacked item is
// re-delivered next sync, and appending the same action twice does not change
// the latest-action-wins aggregate.
func (p *Pipeline) SyncFeedback(ctx context.Context) (int, error) {
	if p.puller == nil {
		return 0, nil
	}
	if p.store == nil {
		return 0, errors.New("store is not configured")
	}

	pending, err := p.puller.PendingFeedback(ctx)
	if err != nil {
		return 0, fmt.Errorf("pull pending feedback: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(pending))
	applied := 0
	for _, item := range pending {
		ev := domain.FeedbackEvent{
			PaperID:    item.PaperID,
			Action:     item.Action,
			Origin:     domain.OriginEmail,
			OccurredAt: item.OccurredAt,
		}
		if err := p.store.AppendFeedbackEvent(ctx, ev); err != nil {
			return applied, fmt.Errorf("append feedback for %s: %w", item.PaperID, err)
		}
		applied++
		keys = append(keys, item.Key)
	}

	if err := p.puller.Acknowledge(ctx, keys); err != nil {
		p.warn("feedback ack failed", "keys", len(keys), "error", err)
	}

	p.info("feedback synced", "applied", applied)
	return applied, nil
}

// AddSeed resolves a DOI or PMID into a stored seed paper and records a star
// so it shapes token weights immediately. Seeds never enter digests.
func (p *Pipeline) AddSeed(ctx context.Context, identifier string) (domain.Paper, error) {
	if p.resolver == nil {
		return domain.Paper{}, errors.New("seed resolver is not configured")
	}
	if p.store == nil {
		return domain.Paper{}, errors.New("store is not configured")
	}

	paper, kind, err := p.resolver.Lookup(ctx, identifier)
	if err != nil {
		return domain.Paper{}, fmt.Errorf("resolve %q: %w", identifier, err)
	}

	created, err := p.store.SaveSeedPaper(ctx, paper, kind)
	if err != nil {
		return paper, fmt.Errorf("save seed %s: %w", paper.ID, err)
	}

	ev := domain.FeedbackEvent{
		PaperID:    paper.ID,
		Action:     domain.ActionStar,
		Origin:     domain.OriginSeed,
		OccurredAt: p.clock(),
	}
	if err := p.store.AppendFeedbackEvent(ctx, ev); err != nil {
		return paper, fmt.Errorf("record seed star %s: %w", paper.ID, err)
	}

	p.info("seed added", "paper", paper.ID, "kind", kind, "created", created)
	return paper, nil
}

// SyncLibrary imports papers updated in the reference library since the last
// sync as seeds, starring each newly imported one. The library cursor
// advances only after everything fetched is persisted, so a mid-sync failure
// repeats the window next time.
func (p *Pipeline) SyncLibrary(ctx context.Context) (int, error) {
	if p.library == nil {
		return 0, errors.New("library source is not configured")
	}
	if p.store == nil {
		return 0, errors.New("store is not configured")
	}

	papers, err := p.library.FetchUpdated(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch library updates: %w", err)
	}

	imported := 0
	for _, paper := range papers {
		created, err := p.store.SaveSeedPaper(ctx, paper, paper.SeedSource)
		if err != nil {
			return imported, fmt.Errorf("save seed %s: %w", paper.ID, err)
		}
		if !created {
			continue
		}
		ev := domain.FeedbackEvent{
			PaperID:    paper.ID,
			Action:     domain.ActionStar,
			Origin:     domain.OriginSeed,
			OccurredAt: p.clock(),
		}
		if err := p.store.AppendFeedbackEvent(ctx, ev); err != nil {
			return imported, fmt.Errorf("record seed star %s: %w", paper.ID, err)
		}
		imported++
	}

	if err := p.library.CommitVersion(); err != nil {
		return imported, fmt.Errorf("commit library version: %w", err)
	}

	p.info("library synced", "fetched", len(papers), "imported", imported)
	return imported, nil
}

// SuggestConfig runs the feedback analysis and stores any proposals it
// produces for review in the web UI.
func (p *Pipeline) SuggestConfig(ctx context.Context) ([]domain.ConfigSuggestion, error) {
	if p.suggester == nil {
		return nil, errors.New("config advisor is not configured")
	}
	return p.suggester.Generate(ctx)
}

// ProcessRun executes one full scheduled cycle: sync remote feedback, search,
// rank, digest. Feedback sync runs first so fresh stars and dismissals shape
// this run's scoring, and its failure only logs because the rest of the cycle
// still works from the local log.
func (p *Pipeline) ProcessRun(ctx context.Context, trigger time.Time) error {
	p.info("scheduled run starting", "trigger", trigger.Format(time.RFC3339))

	if _, err := p.SyncFeedback(ctx); err != nil {
		p.warn("feedback sync failed, continuing", "error", err)
	}

	if _, err := p.RunSearch(ctx, 0); err != nil {
		return fmt.Errorf("search: %w", err)
	}
	if _, err := p.RunRanking(ctx, 0); err != nil {
		return fmt.Errorf("ranking: %w", err)
	}
	if _, err := p.RunDigest(ctx, DigestOptions{}); err != nil {
		return fmt.Errorf("digest: %w", err)
	}
	return nil
}

func (p *Pipeline) info(msg string, args ...interface{}) {
	if p.logger != nil {
		p.logger.Info(msg, args...)
	}
}

func (p *Pipeline) warn(msg string, args ...interface{}) {
	if p.logger != nil {
		p.logger.Warn(msg, args...)
	}
}
