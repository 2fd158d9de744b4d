package usecase

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"LitMonitor/internal/config"
	"LitMonitor/internal/domain"
	"LitMonitor/internal/ports"
	"LitMonitor/internal/ranking"
)

var pipelineNow = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func pipelineConfig() config.Config {
	var cfg config.Config
	cfg.Search.Queries = []string{"biliary atresia"}
	cfg.Search.DaysLookback = 7
	cfg.Projects = []config.ProjectConfig{
		{Name: "Regeneration", Keywords: []string{"organoid"}},
	}
	cfg.WatchedAuthors = []string{"Bezerra JA"}
	cfg.Journals = []config.JournalTier{
		{Weight: 2.0, Journals: []string{"Hepatology"}},
	}
	cfg.Ranking.MinRelevanceScore = 30
	cfg.Ranking.StarWeight = 1.0
	cfg.Ranking.DismissWeight = 0.4
	cfg.Ranking.AttentionStep = 0.1
	cfg.Ranking.MinAttention = 0.5
	cfg.Ranking.MaxAttention = 2.0
	return cfg
}

type seedRecord struct {
	paper  domain.Paper
	source string
}

type membershipRecord struct {
	ids []string
	at  time.Time
}

type stubPipelineStore struct {
	existing   map[string]bool
	saved      []domain.Paper
	failSaveID string

	seeds   []seedRecord
	seedErr error

	papers map[string]domain.Paper

	unscored []domain.Paper

	eligible      []domain.RankedPaper
	eligibleMin   float64
	eligibleSince time.Time

	starred   []domain.RankedPaper
	dismissed []domain.RankedPaper

	events    []domain.FeedbackEvent
	eventsErr error
	appendErr error

	memberships   []membershipRecord
	membershipErr error

	runs   []domain.SearchRun
	runErr error
}

var _ Store = (*stubPipelineStore)(nil)

func (s *stubPipelineStore) SavePaper(_ context.Context, paper domain.Paper) (bool, error) {
	if s.failSaveID != "" && paper.ID == s.failSaveID {
		return false, errors.New("disk full")
	}
	s.saved = append(s.saved, paper)
	return !s.existing[paper.ID], nil
}

func (s *stubPipelineStore) SaveSeedPaper(_ context.Context, paper domain.Paper, source string) (bool, error) {
	if s.seedErr != nil {
		return false, s.seedErr
	}
	s.seeds = append(s.seeds, seedRecord{paper: paper, source: source})
	return !s.existing[paper.ID], nil
}

func (s *stubPipelineStore) PaperByID(_ context.Context, id string) (domain.Paper, error) {
	paper, ok := s.papers[id]
	if !ok {
		return domain.Paper{}, fmt.Errorf("paper %s: %w", id, ports.ErrNotFound)
	}
	return paper, nil
}

func (s *stubPipelineStore) PapersByIDs(_ context.Context, ids []string) (map[string]domain.Paper, error) {
	out := map[string]domain.Paper{}
	for _, id := range ids {
		if paper, ok := s.papers[id]; ok {
			out[id] = paper
		}
	}
	return out, nil
}

func (s *stubPipelineStore) UnscoredPapers(_ context.Context, limit int) ([]domain.Paper, error) {
	if limit > 0 && limit < len(s.unscored) {
		return s.unscored[:limit], nil
	}
	return s.unscored, nil
}

func (s *stubPipelineStore) WriteRankingResult(context.Context, string, domain.RankingResult) error {
	return nil
}

func (s *stubPipelineStore) EligibleForDigest(_ context.Context, minScore float64, since time.Time) ([]domain.RankedPaper, error) {
	s.eligibleMin = minScore
	s.eligibleSince = since
	return s.eligible, nil
}

func (s *stubPipelineStore) StarredPapers(context.Context, int) ([]domain.RankedPaper, error) {
	return s.starred, nil
}

func (s *stubPipelineStore) DismissedPapers(context.Context, int) ([]domain.RankedPaper, error) {
	return s.dismissed, nil
}

func (s *stubPipelineStore) AppendFeedbackEvent(_ context.Context, ev domain.FeedbackEvent) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	ev.ID = int64(len(s.events) + 1)
	s.events = append(s.events, ev)
	return nil
}

func (s *stubPipelineStore) FeedbackEvents(context.Context) ([]domain.FeedbackEvent, error) {
	if s.eventsErr != nil {
		return nil, s.eventsErr
	}
	return s.events, nil
}

func (s *stubPipelineStore) IsDigestMember(context.Context, string) (bool, error) {
	return false, nil
}

func (s *stubPipelineStore) DigestMembers(_ context.Context, ids []string) (map[string]bool, error) {
	return map[string]bool{}, nil
}

func (s *stubPipelineStore) RecordDigestMemberships(_ context.Context, ids []string, at time.Time) error {
	if s.membershipErr != nil {
		return s.membershipErr
	}
	s.memberships = append(s.memberships, membershipRecord{ids: ids, at: at})
	return nil
}

func (s *stubPipelineStore) RecordSearchRun(_ context.Context, run domain.SearchRun) error {
	if s.runErr != nil {
		return s.runErr
	}
	s.runs = append(s.runs, run)
	return nil
}

func (s *stubPipelineStore) SearchRuns(context.Context, int) ([]domain.SearchRun, error) {
	return s.runs, nil
}

type stubWindowSource struct {
	papers []domain.Paper
	err    error
	since  time.Time
	until  time.Time
}

func (s *stubWindowSource) FetchWindow(_ context.Context, since, until time.Time) ([]domain.Paper, error) {
	s.since, s.until = since, until
	if s.err != nil {
		return nil, s.err
	}
	return s.papers, nil
}

type stubBatchScorer struct {
	summary ranking.BatchSummary
	err     error
	papers  []domain.Paper
	rc      domain.RankingContext
	calls   int
}

func (s *stubBatchScorer) ScoreBatch(_ context.Context, papers []domain.Paper, rc domain.RankingContext) (ranking.BatchSummary, error) {
	s.calls++
	s.papers = papers
	s.rc = rc
	return s.summary, s.err
}

type stubMembershipFilter struct {
	drop map[string]bool
	err  error
}

func (f *stubMembershipFilter) Filter(_ context.Context, papers []domain.RankedPaper) ([]domain.RankedPaper, error) {
	if f.err != nil {
		return nil, f.err
	}
	kept := make([]domain.RankedPaper, 0, len(papers))
	for _, p := range papers {
		if !f.drop[p.Paper.ID] {
			kept = append(kept, p)
		}
	}
	return kept, nil
}

type stubDeliverer struct {
	digests []domain.Digest
	err     error
}

func (d *stubDeliverer) Deliver(_ context.Context, dig domain.Digest) error {
	if d.err != nil {
		return d.err
	}
	d.digests = append(d.digests, dig)
	return nil
}

type stubPuller struct {
	pending []domain.PendingFeedback
	pullErr error
	acked   [][]string
	ackErr  error
}

func (p *stubPuller) PendingFeedback(context.Context) ([]domain.PendingFeedback, error) {
	if p.pullErr != nil {
		return nil, p.pullErr
	}
	return p.pending, nil
}

func (p *stubPuller) Acknowledge(_ context.Context, keys []string) error {
	if p.ackErr != nil {
		return p.ackErr
	}
	p.acked = append(p.acked, keys)
	return nil
}

type stubSeedResolver struct {
	paper      domain.Paper
	kind       string
	err        error
	identifier string
}

func (r *stubSeedResolver) Lookup(_ context.Context, identifier string) (domain.Paper, string, error) {
	r.identifier = identifier
	if r.err != nil {
		return domain.Paper{}, "", r.err
	}
	return r.paper, r.kind, nil
}

type stubLibrary struct {
	papers    []domain.Paper
	fetchErr  error
	committed bool
	commitErr error
}

func (l *stubLibrary) FetchUpdated(context.Context) ([]domain.Paper, error) {
	if l.fetchErr != nil {
		return nil, l.fetchErr
	}
	return l.papers, nil
}

func (l *stubLibrary) CommitVersion() error {
	if l.commitErr != nil {
		return l.commitErr
	}
	l.committed = true
	return nil
}

type stubDriver struct {
	job     func(time.Time)
	started bool
	stopped bool
}

func (d *stubDriver) Start(_ context.Context, job func(time.Time)) error {
	d.started = true
	d.job = job
	return nil
}

func (d *stubDriver) Stop(context.Context) error {
	d.stopped = true
	return nil
}

func newTestPipeline(deps PipelineDeps) *Pipeline {
	if reflect.DeepEqual(deps.Config, config.Config{}) {
		deps.Config = pipelineConfig()
	}
	p := NewPipeline(deps)
	p.SetClock(func() time.Time { return pipelineNow })
	return p
}

func TestRunSearchSavesAndRecords(t *testing.T) {
	t.Parallel()

	source := &stubWindowSource{papers: []domain.Paper{
		{ID: "pmid:1", Title: "Kasai outcomes revisited", Authors: []string{"Smith A"}},
		{ID: "pmid:2", Title: "Hepatic organoid transplantation", Authors: []string{"Jones B"}},
		{ID: "pmid:3", Title: "Cardiology screening", Authors: []string{"Nagata R, Bezerra JA"}},
	}}
	store := &stubPipelineStore{existing: map[string]bool{"pmid:1": true}}
	p := newTestPipeline(PipelineDeps{Source: source, Store: store})

	run, err := p.RunSearch(context.Background(), 0)
	if err != nil {
		t.Fatalf("RunSearch: %v", err)
	}
	if run.PapersFound != 3 {
		t.Fatalf("expected 3 papers found, got %d", run.PapersFound)
	}
	if run.NewPapers != 2 {
		t.Fatalf("expected 2 new papers, got %d", run.NewPapers)
	}
	// pmid:2 matches the organoid keyword, pmid:3 a watched author, but
	// pmid:1 was already stored so only the two new ones count.
	if run.HighPriority != 2 {
		t.Fatalf("expected 2 high-priority papers, got %d", run.HighPriority)
	}
	if !run.RunAt.Equal(pipelineNow) {
		t.Fatalf("expected run at %v, got %v", pipelineNow, run.RunAt)
	}
	if len(store.saved) != 3 {
		t.Fatalf("expected 3 saves, got %d", len(store.saved))
	}
	if len(store.runs) != 1 {
		t.Fatalf("expected 1 recorded run, got %d", len(store.runs))
	}
	if store.runs[0].NewPapers != 2 {
		t.Fatalf("recorded run has %d new papers, expected 2", store.runs[0].NewPapers)
	}
}

func TestRunSearchWindowFromConfig(t *testing.T) {
	t.Parallel()

	source := &stubWindowSource{}
	store := &stubPipelineStore{}
	cfg := pipelineConfig()
	cfg.Search.DaysLookback = 14
	p := newTestPipeline(PipelineDeps{Config: cfg, Source: source, Store: store})

	if _, err := p.RunSearch(context.Background(), 0); err != nil {
		t.Fatalf("RunSearch: %v", err)
	}
	wantSince := pipelineNow.AddDate(0, 0, -14)
	if !source.since.Equal(wantSince) {
		t.Fatalf("expected window since %v, got %v", wantSince, source.since)
	}
	if !source.until.Equal(pipelineNow) {
		t.Fatalf("expected window until %v, got %v", pipelineNow, source.until)
	}
}

func TestRunSearchExplicitDaysWins(t *testing.T) {
	t.Parallel()

	source := &stubWindowSource{}
	p := newTestPipeline(PipelineDeps{Source: source, Store: &stubPipelineStore{}})

	if _, err := p.RunSearch(context.Background(), 3); err != nil {
		t.Fatalf("RunSearch: %v", err)
	}
	wantSince := pipelineNow.AddDate(0, 0, -3)
	if !source.since.Equal(wantSince) {
		t.Fatalf("expected window since %v, got %v", wantSince, source.since)
	}
}

func TestRunSearchStoreFailureAborts(t *testing.T) {
	t.Parallel()

	source := &stubWindowSource{papers: []domain.Paper{
		{ID: "pmid:1", Title: "First"},
		{ID: "pmid:2", Title: "Second"},
	}}
	store := &stubPipelineStore{failSaveID: "pmid:2"}
	p := newTestPipeline(PipelineDeps{Source: source, Store: store})

	_, err := p.RunSearch(context.Background(), 0)
	if err == nil {
		t.Fatal("expected error from failed save")
	}
	if !strings.Contains(err.Error(), "save paper pmid:2") {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.runs) != 0 {
		t.Fatalf("aborted run must not be recorded, got %d runs", len(store.runs))
	}
}

func TestRunSearchSourceFailure(t *testing.T) {
	t.Parallel()

	source := &stubWindowSource{err: errors.New("upstream down")}
	p := newTestPipeline(PipelineDeps{Source: source, Store: &stubPipelineStore{}})

	_, err := p.RunSearch(context.Background(), 0)
	if err == nil || !strings.Contains(err.Error(), "fetch window") {
		t.Fatalf("expected fetch window error, got %v", err)
	}
}

func TestRunRankingBuildsContext(t *testing.T) {
	t.Parallel()

	starredPaper := domain.Paper{
		ID:      "pmid:10",
		Title:   "Organoid engraftment restores function",
		Journal: "Hepatology",
	}
	store := &stubPipelineStore{
		unscored: []domain.Paper{{ID: "pmid:20"}, {ID: "pmid:21"}},
		papers:   map[string]domain.Paper{"pmid:10": starredPaper},
		events: []domain.FeedbackEvent{
			{ID: 1, PaperID: "pmid:10", Action: domain.ActionStar, Origin: domain.OriginWeb, OccurredAt: pipelineNow.Add(-time.Hour)},
		},
		starred: []domain.RankedPaper{{Paper: starredPaper}},
	}
	scorer := &stubBatchScorer{summary: ranking.BatchSummary{Scored: 2}}
	p := newTestPipeline(PipelineDeps{Store: store, Scorer: scorer})

	summary, err := p.RunRanking(context.Background(), 0)
	if err != nil {
		t.Fatalf("RunRanking: %v", err)
	}
	if summary.Scored != 2 {
		t.Fatalf("expected 2 scored, got %d", summary.Scored)
	}
	if len(scorer.papers) != 2 {
		t.Fatalf("expected 2 papers passed to scorer, got %d", len(scorer.papers))
	}
	rc := scorer.rc
	if len(rc.Projects) != 1 || rc.Projects[0].Name != "Regeneration" {
		t.Fatalf("unexpected projects in context: %+v", rc.Projects)
	}
	if len(rc.WatchedAuthors) != 1 || rc.WatchedAuthors[0] != "Bezerra JA" {
		t.Fatalf("unexpected watched authors: %v", rc.WatchedAuthors)
	}
	if rc.JournalWeights["hepatology"] != 2.0 {
		t.Fatalf("journal weight missing from context: %v", rc.JournalWeights)
	}
	if !strings.Contains(rc.FeedbackSummary, "STARRED") {
		t.Fatalf("feedback summary missing starred section: %q", rc.FeedbackSummary)
	}
	if len(rc.ProjectAttention) == 0 {
		t.Fatal("expected project attention from starred feedback")
	}
}

func TestRunRankingNothingWaiting(t *testing.T) {
	t.Parallel()

	scorer := &stubBatchScorer{}
	p := newTestPipeline(PipelineDeps{Store: &stubPipelineStore{}, Scorer: scorer})

	summary, err := p.RunRanking(context.Background(), 0)
	if err != nil {
		t.Fatalf("RunRanking: %v", err)
	}
	if summary.Scored != 0 || scorer.calls != 0 {
		t.Fatalf("expected no scoring, got summary=%+v calls=%d", summary, scorer.calls)
	}
}

func TestRunRankingWithoutFeedback(t *testing.T) {
	t.Parallel()

	store := &stubPipelineStore{unscored: []domain.Paper{{ID: "pmid:20"}}}
	scorer := &stubBatchScorer{summary: ranking.BatchSummary{Scored: 1}}
	p := newTestPipeline(PipelineDeps{Store: store, Scorer: scorer})

	if _, err := p.RunRanking(context.Background(), 0); err != nil {
		t.Fatalf("RunRanking: %v", err)
	}
	if scorer.rc.FeedbackSummary != "" {
		t.Fatalf("expected empty feedback summary, got %q", scorer.rc.FeedbackSummary)
	}
}

func TestRunRankingRespectsLimit(t *testing.T) {
	t.Parallel()

	store := &stubPipelineStore{unscored: []domain.Paper{
		{ID: "pmid:1"}, {ID: "pmid:2"}, {ID: "pmid:3"},
	}}
	scorer := &stubBatchScorer{}
	p := newTestPipeline(PipelineDeps{Store: store, Scorer: scorer})

	if _, err := p.RunRanking(context.Background(), 2); err != nil {
		t.Fatalf("RunRanking: %v", err)
	}
	if len(scorer.papers) != 2 {
		t.Fatalf("expected limit of 2 papers, got %d", len(scorer.papers))
	}
}

func eligiblePaper(id string, score float64) domain.RankedPaper {
	return domain.RankedPaper{
		Paper: domain.Paper{ID: id, Title: "Paper " + id},
		Result: domain.RankingResult{
			Score:    score,
			Tier:     domain.TierHigh,
			RankedAt: pipelineNow.Add(-time.Hour),
		},
	}
}

func TestRunDigestDeliversAndRecords(t *testing.T) {
	t.Parallel()

	store := &stubPipelineStore{eligible: []domain.RankedPaper{
		eligiblePaper("pmid:1", 90),
		eligiblePaper("pmid:2", 80),
	}}
	filter := &stubMembershipFilter{drop: map[string]bool{"pmid:2": true}}
	deliverer := &stubDeliverer{}
	p := newTestPipeline(PipelineDeps{Store: store, Dedup: filter, Deliverer: deliverer})

	d, err := p.RunDigest(context.Background(), DigestOptions{})
	if err != nil {
		t.Fatalf("RunDigest: %v", err)
	}
	if d.PaperCount() != 1 {
		t.Fatalf("expected 1 paper in digest, got %d", d.PaperCount())
	}
	if len(deliverer.digests) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(deliverer.digests))
	}
	if len(store.memberships) != 1 {
		t.Fatalf("expected membership record, got %d", len(store.memberships))
	}
	rec := store.memberships[0]
	if len(rec.ids) != 1 || rec.ids[0] != "pmid:1" {
		t.Fatalf("unexpected membership ids: %v", rec.ids)
	}
	if !rec.at.Equal(pipelineNow) {
		t.Fatalf("expected membership at %v, got %v", pipelineNow, rec.at)
	}
	if store.eligibleMin != 30 {
		t.Fatalf("expected config min score 30, got %v", store.eligibleMin)
	}
	wantSince := pipelineNow.AddDate(0, 0, -7)
	if !store.eligibleSince.Equal(wantSince) {
		t.Fatalf("expected since %v, got %v", wantSince, store.eligibleSince)
	}
}

func TestRunDigestOverrides(t *testing.T) {
	t.Parallel()

	store := &stubPipelineStore{}
	p := newTestPipeline(PipelineDeps{Store: store, Deliverer: &stubDeliverer{}})

	if _, err := p.RunDigest(context.Background(), DigestOptions{MinScore: 55, Days: 30}); err != nil {
		t.Fatalf("RunDigest: %v", err)
	}
	if store.eligibleMin != 55 {
		t.Fatalf("expected min score 55, got %v", store.eligibleMin)
	}
	wantSince := pipelineNow.AddDate(0, 0, -30)
	if !store.eligibleSince.Equal(wantSince) {
		t.Fatalf("expected since %v, got %v", wantSince, store.eligibleSince)
	}
}

func TestRunDigestEmptyAfterFilter(t *testing.T) {
	t.Parallel()

	store := &stubPipelineStore{eligible: []domain.RankedPaper{eligiblePaper("pmid:1", 90)}}
	filter := &stubMembershipFilter{drop: map[string]bool{"pmid:1": true}}
	deliverer := &stubDeliverer{}
	p := newTestPipeline(PipelineDeps{Store: store, Dedup: filter, Deliverer: deliverer})

	d, err := p.RunDigest(context.Background(), DigestOptions{})
	if err != nil {
		t.Fatalf("RunDigest: %v", err)
	}
	if d.PaperCount() != 0 {
		t.Fatalf("expected empty digest, got %d papers", d.PaperCount())
	}
	if len(deliverer.digests) != 0 {
		t.Fatal("empty digest must not be delivered")
	}
	if len(store.memberships) != 0 {
		t.Fatal("empty digest must not record membership")
	}
}

func TestRunDigestDeliveryFailureSkipsMembership(t *testing.T) {
	t.Parallel()

	store := &stubPipelineStore{eligible: []domain.RankedPaper{eligiblePaper("pmid:1", 90)}}
	deliverer := &stubDeliverer{err: errors.New("smtp refused")}
	p := newTestPipeline(PipelineDeps{Store: store, Deliverer: deliverer})

	_, err := p.RunDigest(context.Background(), DigestOptions{})
	if err == nil || !strings.Contains(err.Error(), "deliver digest") {
		t.Fatalf("expected delivery error, got %v", err)
	}
	if len(store.memberships) != 0 {
		t.Fatal("failed delivery must not record membership")
	}
}

func TestRunDigestDryRunSkipsMembership(t *testing.T) {
	t.Parallel()

	store := &stubPipelineStore{eligible: []domain.RankedPaper{eligiblePaper("pmid:1", 90)}}
	deliverer := &stubDeliverer{}
	p := newTestPipeline(PipelineDeps{Store: store, Deliverer: deliverer})

	d, err := p.RunDigest(context.Background(), DigestOptions{DryRun: true})
	if err != nil {
		t.Fatalf("RunDigest: %v", err)
	}
	if d.PaperCount() != 1 {
		t.Fatalf("expected 1 paper, got %d", d.PaperCount())
	}
	if len(deliverer.digests) != 1 {
		t.Fatalf("dry run still delivers, got %d deliveries", len(deliverer.digests))
	}
	if len(store.memberships) != 0 {
		t.Fatal("dry run must not record membership")
	}
}

func TestSyncFeedbackAppendsAndAcks(t *testing.T) {
	t.Parallel()

	puller := &stubPuller{pending: []domain.PendingFeedback{
		{Key: "k1", PaperID: "pmid:1", Action: domain.ActionStar, OccurredAt: pipelineNow.Add(-2 * time.Hour)},
		{Key: "k2", PaperID: "pmid:2", Action: domain.ActionDismiss, OccurredAt: pipelineNow.Add(-time.Hour)},
	}}
	store := &stubPipelineStore{}
	p := newTestPipeline(PipelineDeps{Store: store, Puller: puller})

	applied, err := p.SyncFeedback(context.Background())
	if err != nil {
		t.Fatalf("SyncFeedback: %v", err)
	}
	if applied != 2 {
		t.Fatalf("expected 2 applied, got %d", applied)
	}
	if len(store.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(store.events))
	}
	first := store.events[0]
	if first.PaperID != "pmid:1" || first.Action != domain.ActionStar {
		t.Fatalf("unexpected first event: %+v", first)
	}
	if first.Origin != domain.OriginEmail {
		t.Fatalf("expected email origin, got %q", first.Origin)
	}
	if !first.OccurredAt.Equal(pipelineNow.Add(-2 * time.Hour)) {
		t.Fatalf("expected click time preserved, got %v", first.OccurredAt)
	}
	if len(puller.acked) != 1 || len(puller.acked[0]) != 2 {
		t.Fatalf("expected both keys acked, got %v", puller.acked)
	}
}

func TestSyncFeedbackAckFailureKeepsEvents(t *testing.T) {
	t.Parallel()

	puller := &stubPuller{
		pending: []domain.PendingFeedback{{Key: "k1", PaperID: "pmid:1", Action: domain.ActionStar, OccurredAt: pipelineNow}},
		ackErr:  errors.New("worker gone"),
	}
	store := &stubPipelineStore{}
	p := newTestPipeline(PipelineDeps{Store: store, Puller: puller})

	applied, err := p.SyncFeedback(context.Background())
	if err != nil {
		t.Fatalf("ack failure must not fail the sync: %v", err)
	}
	if applied != 1 || len(store.events) != 1 {
		t.Fatalf("expected event kept, applied=%d events=%d", applied, len(store.events))
	}
}

func TestSyncFeedbackWithoutPuller(t *testing.T) {
	t.Parallel()

	p := newTestPipeline(PipelineDeps{Store: &stubPipelineStore{}})

	applied, err := p.SyncFeedback(context.Background())
	if err != nil {
		t.Fatalf("SyncFeedback: %v", err)
	}
	if applied != 0 {
		t.Fatalf("expected 0 applied, got %d", applied)
	}
}

func TestAddSeedStoresAndStars(t *testing.T) {
	t.Parallel()

	resolver := &stubSeedResolver{
		paper: domain.Paper{ID: "doi:10.1000/xyz", Title: "Foundational organoid work"},
		kind:  "doi",
	}
	store := &stubPipelineStore{}
	p := newTestPipeline(PipelineDeps{Store: store, Resolver: resolver})

	paper, err := p.AddSeed(context.Background(), "10.1000/xyz")
	if err != nil {
		t.Fatalf("AddSeed: %v", err)
	}
	if resolver.identifier != "10.1000/xyz" {
		t.Fatalf("resolver got %q", resolver.identifier)
	}
	if paper.ID != "doi:10.1000/xyz" {
		t.Fatalf("unexpected paper: %+v", paper)
	}
	if len(store.seeds) != 1 || store.seeds[0].source != "doi" {
		t.Fatalf("unexpected seed records: %+v", store.seeds)
	}
	if len(store.events) != 1 {
		t.Fatalf("expected seed star event, got %d", len(store.events))
	}
	ev := store.events[0]
	if ev.Action != domain.ActionStar || ev.Origin != domain.OriginSeed {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if !ev.OccurredAt.Equal(pipelineNow) {
		t.Fatalf("expected event at %v, got %v", pipelineNow, ev.OccurredAt)
	}
}

func TestAddSeedResolveFailure(t *testing.T) {
	t.Parallel()

	resolver := &stubSeedResolver{err: errors.New("not indexed")}
	store := &stubPipelineStore{}
	p := newTestPipeline(PipelineDeps{Store: store, Resolver: resolver})

	_, err := p.AddSeed(context.Background(), "10.1000/missing")
	if err == nil || !strings.Contains(err.Error(), "resolve") {
		t.Fatalf("expected resolve error, got %v", err)
	}
	if len(store.seeds) != 0 || len(store.events) != 0 {
		t.Fatal("failed resolve must not write anything")
	}
}

func TestSyncLibraryImportsAndCommits(t *testing.T) {
	t.Parallel()

	library := &stubLibrary{papers: []domain.Paper{
		{ID: "doi:10.1/a", Title: "A", SeedSource: "zotero"},
		{ID: "doi:10.1/b", Title: "B", SeedSource: "zotero"},
	}}
	store := &stubPipelineStore{existing: map[string]bool{"doi:10.1/a": true}}
	p := newTestPipeline(PipelineDeps{Store: store, Library: library})

	imported, err := p.SyncLibrary(context.Background())
	if err != nil {
		t.Fatalf("SyncLibrary: %v", err)
	}
	if imported != 1 {
		t.Fatalf("expected 1 imported, got %d", imported)
	}
	if len(store.seeds) != 2 {
		t.Fatalf("expected both papers saved as seeds, got %d", len(store.seeds))
	}
	if len(store.events) != 1 || store.events[0].PaperID != "doi:10.1/b" {
		t.Fatalf("expected one star for the new paper, got %+v", store.events)
	}
	if !library.committed {
		t.Fatal("expected version committed after successful sync")
	}
}

func TestSyncLibrarySaveFailureSkipsCommit(t *testing.T) {
	t.Parallel()

	library := &stubLibrary{papers: []domain.Paper{{ID: "doi:10.1/a", SeedSource: "zotero"}}}
	store := &stubPipelineStore{seedErr: errors.New("locked")}
	p := newTestPipeline(PipelineDeps{Store: store, Library: library})

	_, err := p.SyncLibrary(context.Background())
	if err == nil {
		t.Fatal("expected error from failed save")
	}
	if library.committed {
		t.Fatal("failed sync must not advance the library cursor")
	}
}

func TestProcessRunFullCycle(t *testing.T) {
	t.Parallel()

	source := &stubWindowSource{papers: []domain.Paper{{ID: "pmid:1", Title: "New paper"}}}
	store := &stubPipelineStore{
		unscored: []domain.Paper{{ID: "pmid:1", Title: "New paper"}},
		eligible: []domain.RankedPaper{eligiblePaper("pmid:1", 85)},
	}
	scorer := &stubBatchScorer{summary: ranking.BatchSummary{Scored: 1}}
	deliverer := &stubDeliverer{}
	puller := &stubPuller{pending: []domain.PendingFeedback{
		{Key: "k1", PaperID: "pmid:0", Action: domain.ActionStar, OccurredAt: pipelineNow.Add(-time.Hour)},
	}}
	p := newTestPipeline(PipelineDeps{
		Source:    source,
		Store:     store,
		Scorer:    scorer,
		Deliverer: deliverer,
		Puller:    puller,
	})

	if err := p.ProcessRun(context.Background(), pipelineNow); err != nil {
		t.Fatalf("ProcessRun: %v", err)
	}
	if len(puller.acked) != 1 {
		t.Fatal("expected feedback synced first")
	}
	if len(store.runs) != 1 {
		t.Fatal("expected search run recorded")
	}
	if scorer.calls != 1 {
		t.Fatal("expected ranking to run")
	}
	if len(deliverer.digests) != 1 {
		t.Fatal("expected digest delivered")
	}
	if len(store.memberships) != 1 {
		t.Fatal("expected digest membership recorded")
	}
}

func TestProcessRunContinuesPastFeedbackFailure(t *testing.T) {
	t.Parallel()

	source := &stubWindowSource{}
	store := &stubPipelineStore{}
	p := newTestPipeline(PipelineDeps{
		Source:    source,
		Store:     store,
		Scorer:    &stubBatchScorer{},
		Deliverer: &stubDeliverer{},
		Puller:    &stubPuller{pullErr: errors.New("worker down")},
	})

	if err := p.ProcessRun(context.Background(), pipelineNow); err != nil {
		t.Fatalf("feedback failure must not abort the run: %v", err)
	}
	if len(store.runs) != 1 {
		t.Fatal("expected search to proceed")
	}
}

func TestProcessRunStopsOnSearchFailure(t *testing.T) {
	t.Parallel()

	scorer := &stubBatchScorer{}
	p := newTestPipeline(PipelineDeps{
		Source:    &stubWindowSource{err: errors.New("upstream down")},
		Store:     &stubPipelineStore{},
		Scorer:    scorer,
		Deliverer: &stubDeliverer{},
	})

	err := p.ProcessRun(context.Background(), pipelineNow)
	if err == nil || !strings.Contains(err.Error(), "search") {
		t.Fatalf("expected search error, got %v", err)
	}
	if scorer.calls != 0 {
		t.Fatal("ranking must not run after failed search")
	}
}

func TestSchedulerRunsPipeline(t *testing.T) {
	t.Parallel()

	driver := &stubDriver{}
	store := &stubPipelineStore{}
	p := newTestPipeline(PipelineDeps{
		Source:    &stubWindowSource{},
		Store:     store,
		Scorer:    &stubBatchScorer{},
		Deliverer: &stubDeliverer{},
	})
	sched := NewScheduler(driver, p, nil)

	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !driver.started || driver.job == nil {
		t.Fatal("expected job registered with the driver")
	}

	driver.job(pipelineNow)
	if len(store.runs) != 1 {
		t.Fatal("expected triggered job to run the pipeline")
	}

	if err := sched.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !driver.stopped {
		t.Fatal("expected driver stopped")
	}
}
