package ranking

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"LitMonitor/internal/domain"
	"LitMonitor/internal/ports"
)

type stubOracle struct {
	verdicts map[string]domain.OracleVerdict
	failures map[string][]error
	calls    int
}

func (o *stubOracle) Rank(_ context.Context, paper domain.Paper, _ domain.RankingContext) (domain.OracleVerdict, error) {
	o.calls++
	if errs := o.failures[paper.ID]; len(errs) > 0 {
		err := errs[0]
		o.failures[paper.ID] = errs[1:]
		return domain.OracleVerdict{}, err
	}
	v, ok := o.verdicts[paper.ID]
	if !ok {
		return domain.OracleVerdict{}, fmt.Errorf("no verdict for %s: %w", paper.ID, ports.ErrOracleMalformed)
	}
	return v, nil
}

type recordingStore struct {
	ports.PaperStore
	results  map[string]domain.RankingResult
	writeErr error
}

func newRecordingStore() *recordingStore {
	return &recordingStore{results: make(map[string]domain.RankingResult)}
}

func (s *recordingStore) WriteRankingResult(_ context.Context, paperID string, result domain.RankingResult) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	s.results[paperID] = result
	return nil
}

func fastOptions() Options {
	opts := DefaultOptions()
	opts.RequestInterval = 0
	opts.RetryBaseDelay = time.Millisecond
	return opts
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestFinalizeJournalWeightAuthorBoostCapped(t *testing.T) {
	t.Parallel()

	paper := domain.Paper{
		ID:      "pmid:100",
		Title:   "CRISPR screening in organoids",
		Authors: []string{"Smith JK", "Doe A"},
		Journal: "Nature",
	}
	rc := domain.RankingContext{
		WatchedAuthors: []string{"Smith JK"},
		JournalWeights: map[string]float64{"nature": 1.5},
	}

	result := Finalize(domain.OracleVerdict{Score: 60}, paper, rc, DefaultOptions(), time.Now())

	if result.Score != 100 {
		t.Fatalf("expected score 100, got %v", result.Score)
	}
	if result.Tier != domain.TierHigh {
		t.Fatalf("expected tier high, got %v", result.Tier)
	}
}

func TestFinalizeClampBeforeBoost(t *testing.T) {
	t.Parallel()

	paper := domain.Paper{ID: "pmid:1", Title: "t", Journal: "Cell"}
	rc := domain.RankingContext{JournalWeights: map[string]float64{"cell": 1.5}}

	result := Finalize(domain.OracleVerdict{Score: 95}, paper, rc, DefaultOptions(), time.Now())

	if result.Score != 100 {
		t.Fatalf("expected clamped score 100, got %v", result.Score)
	}
}

func TestFinalizeLowTrustJournalDemotes(t *testing.T) {
	t.Parallel()

	paper := domain.Paper{ID: "pmid:2", Title: "t", Journal: "Predatory Weekly"}
	rc := domain.RankingContext{JournalWeights: map[string]float64{"predatory weekly": 0.5}}

	result := Finalize(domain.OracleVerdict{Score: 80}, paper, rc, DefaultOptions(), time.Now())

	if result.Score != 40 {
		t.Fatalf("expected score 40, got %v", result.Score)
	}
	if result.Tier != domain.TierModerate {
		t.Fatalf("expected tier moderate, got %v", result.Tier)
	}
}

func TestFinalizeUnknownJournalNeutral(t *testing.T) {
	t.Parallel()

	paper := domain.Paper{ID: "pmid:3", Title: "t", Journal: "Obscure Journal"}

	result := Finalize(domain.OracleVerdict{Score: 55}, paper, domain.RankingContext{}, DefaultOptions(), time.Now())

	if result.Score != 55 {
		t.Fatalf("expected unchanged score 55, got %v", result.Score)
	}
}

func TestTierBoundaries(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	cases := []struct {
		score float64
		want  domain.Tier
	}{
		{100, domain.TierHigh},
		{70, domain.TierHigh},
		{69.9, domain.TierModerate},
		{40, domain.TierModerate},
		{39.9, domain.TierLow},
		{0, domain.TierLow},
	}
	for _, tc := range cases {
		if got := TierFor(tc.score, opts); got != tc.want {
			t.Fatalf("score %v: expected %v, got %v", tc.score, tc.want, got)
		}
	}
}

func TestScoreBatchSkipsMalformedRecords(t *testing.T) {
	t.Parallel()

	oracle := &stubOracle{verdicts: map[string]domain.OracleVerdict{
		"pmid:1": {Score: 50, Summary: "ok"},
	}}
	store := newRecordingStore()
	scorer := NewScorer(oracle, store, fastOptions(), nil)

	papers := []domain.Paper{
		{ID: "", Title: "no identifier"},
		{ID: "pmid:0", Title: ""},
		{ID: "pmid:1", Title: "valid"},
	}

	summary, err := scorer.ScoreBatch(context.Background(), papers, domain.RankingContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Skipped != 2 {
		t.Fatalf("expected 2 skipped, got %d", summary.Skipped)
	}
	if summary.Scored != 1 {
		t.Fatalf("expected 1 scored, got %d", summary.Scored)
	}
	if oracle.calls != 1 {
		t.Fatalf("expected oracle called once, got %d", oracle.calls)
	}
}

func TestScoreBatchRetriesTransientFailure(t *testing.T) {
	t.Parallel()

	oracle := &stubOracle{
		verdicts: map[string]domain.OracleVerdict{"pmid:1": {Score: 42}},
		failures: map[string][]error{
			"pmid:1": {fmt.Errorf("http 429: %w", ports.ErrOracleTransient)},
		},
	}
	store := newRecordingStore()
	scorer := NewScorer(oracle, store, fastOptions(), nil)

	summary, err := scorer.ScoreBatch(context.Background(), []domain.Paper{{ID: "pmid:1", Title: "t"}}, domain.RankingContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Scored != 1 {
		t.Fatalf("expected 1 scored after retry, got %d", summary.Scored)
	}
	if oracle.calls != 2 {
		t.Fatalf("expected 2 oracle calls, got %d", oracle.calls)
	}
}

func TestScoreBatchIsolatesPermanentFailure(t *testing.T) {
	t.Parallel()

	oracle := &stubOracle{
		verdicts: map[string]domain.OracleVerdict{"pmid:2": {Score: 75}},
		failures: map[string][]error{
			"pmid:1": {fmt.Errorf("unparseable response: %w", ports.ErrOracleMalformed)},
		},
	}
	store := newRecordingStore()
	scorer := NewScorer(oracle, store, fastOptions(), nil)

	papers := []domain.Paper{
		{ID: "pmid:1", Title: "fails"},
		{ID: "pmid:2", Title: "succeeds"},
	}

	summary, err := scorer.ScoreBatch(context.Background(), papers, domain.RankingContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Unranked != 1 {
		t.Fatalf("expected 1 unranked, got %d", summary.Unranked)
	}
	if summary.Scored != 1 {
		t.Fatalf("expected 1 scored, got %d", summary.Scored)
	}
	if oracle.calls != 2 {
		t.Fatalf("expected malformed response not retried, got %d calls", oracle.calls)
	}
	if _, ok := store.results["pmid:2"]; !ok {
		t.Fatalf("expected result stored for pmid:2")
	}
}

func TestScoreBatchExhaustedRetriesLeaveUnranked(t *testing.T) {
	t.Parallel()

	transient := fmt.Errorf("http 503: %w", ports.ErrOracleTransient)
	oracle := &stubOracle{
		failures: map[string][]error{
			"pmid:1": {transient, transient, transient},
		},
	}
	store := newRecordingStore()
	scorer := NewScorer(oracle, store, fastOptions(), nil)

	summary, err := scorer.ScoreBatch(context.Background(), []domain.Paper{{ID: "pmid:1", Title: "t"}}, domain.RankingContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Unranked != 1 {
		t.Fatalf("expected 1 unranked, got %d", summary.Unranked)
	}
	if oracle.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", oracle.calls)
	}
	if len(store.results) != 0 {
		t.Fatalf("expected no results stored, got %d", len(store.results))
	}
}

func TestScoreBatchStoreWriteAborts(t *testing.T) {
	t.Parallel()

	oracle := &stubOracle{verdicts: map[string]domain.OracleVerdict{
		"pmid:1": {Score: 50},
		"pmid:2": {Score: 60},
	}}
	store := newRecordingStore()
	store.writeErr = errors.New("disk full")
	scorer := NewScorer(oracle, store, fastOptions(), nil)

	papers := []domain.Paper{
		{ID: "pmid:1", Title: "a"},
		{ID: "pmid:2", Title: "b"},
	}

	_, err := scorer.ScoreBatch(context.Background(), papers, domain.RankingContext{})
	if err == nil {
		t.Fatalf("expected error on store write failure")
	}
	if oracle.calls != 1 {
		t.Fatalf("expected batch aborted after first write failure, got %d calls", oracle.calls)
	}
}

func TestScoreBatchDeterministic(t *testing.T) {
	t.Parallel()

	papers := []domain.Paper{
		{ID: "pmid:1", Title: "alpha", Journal: "Nature", Authors: []string{"Smith JK"}},
		{ID: "biorxiv:10.1101/2", Title: "beta", Journal: "bioRxiv"},
	}
	rc := domain.RankingContext{
		WatchedAuthors: []string{"Smith JK"},
		JournalWeights: map[string]float64{"nature": 1.5},
	}
	verdicts := map[string]domain.OracleVerdict{
		"pmid:1":            {Score: 60, Summary: "relevant", Rationale: "matches project", MatchedProjects: []string{"Gene Therapy"}},
		"biorxiv:10.1101/2": {Score: 35, Summary: "tangential"},
	}
	at := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	run := func() map[string]domain.RankingResult {
		store := newRecordingStore()
		scorer := NewScorer(&stubOracle{verdicts: verdicts}, store, fastOptions(), nil)
		scorer.SetClock(fixedClock(at))
		if _, err := scorer.ScoreBatch(context.Background(), papers, rc); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return store.results
	}

	first := run()
	second := run()
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical results across runs, got %v and %v", first, second)
	}
	if first["pmid:1"].Score != 100 {
		t.Fatalf("expected score 100, got %v", first["pmid:1"].Score)
	}
	if first["biorxiv:10.1101/2"].Tier != domain.TierLow {
		t.Fatalf("expected tier low, got %v", first["biorxiv:10.1101/2"].Tier)
	}
}

func TestScoreBatchContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	opts := fastOptions()
	opts.RequestInterval = time.Minute
	oracle := &stubOracle{verdicts: map[string]domain.OracleVerdict{
		"pmid:1": {Score: 50},
		"pmid:2": {Score: 60},
	}}
	scorer := NewScorer(oracle, newRecordingStore(), opts, nil)

	papers := []domain.Paper{
		{ID: "pmid:1", Title: "a"},
		{ID: "pmid:2", Title: "b"},
	}

	_, err := scorer.ScoreBatch(ctx, papers, domain.RankingContext{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
