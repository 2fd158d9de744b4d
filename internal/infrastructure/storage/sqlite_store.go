package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "embed"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"

	"LitMonitor/internal/domain"
	"LitMonitor/internal/ports"
)

//go:embed schema.sql
var schemaSQL string

// Columns added after the first release; applied to databases created by
// older binaries.
var paperMigrations = []struct {
	column string
	ddl    string
}{
	{"full_text_url", "ALTER TABLE papers ADD COLUMN full_text_url TEXT NOT NULL DEFAULT ''"},
	{"open_access", "ALTER TABLE papers ADD COLUMN open_access INTEGER NOT NULL DEFAULT 0"},
	{"seed", "ALTER TABLE papers ADD COLUMN seed INTEGER NOT NULL DEFAULT 0"},
	{"seed_source", "ALTER TABLE papers ADD COLUMN seed_source TEXT NOT NULL DEFAULT ''"},
}

// SQLiteStore backs every persistence port with a single SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var (
	_ ports.PaperStore      = (*SQLiteStore)(nil)
	_ ports.DigestLog       = (*SQLiteStore)(nil)
	_ ports.FeedbackLog     = (*SQLiteStore)(nil)
	_ ports.RunLog          = (*SQLiteStore)(nil)
	_ ports.SuggestionStore = (*SQLiteStore)(nil)
	_ ports.StatsProvider   = (*SQLiteStore)(nil)
)

// NewSQLiteStore opens (creating if needed) the database at path and applies
// the schema plus pending column migrations.
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", path))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY noise.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	if err := migratePapers(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func migratePapers(db *sql.DB) error {
	existing := map[string]bool{}
	rows, err := db.Query("PRAGMA table_info(papers)")
	if err != nil {
		return fmt.Errorf("inspect papers table: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultVal, &pk); err != nil {
			return fmt.Errorf("scan table info: %w", err)
		}
		existing[name] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, m := range paperMigrations {
		if existing[m.column] {
			continue
		}
		if _, err := db.Exec(m.ddl); err != nil {
			return fmt.Errorf("add column %s: %w", m.column, err)
		}
	}
	return nil
}

var paperColumns = []string{
	"id", "source", "title", "authors", "journal", "abstract", "pub_date",
	"url", "full_text_url", "open_access", "doi", "first_seen", "seed",
	"seed_source", "score", "tier", "summary", "rationale",
	"matched_projects", "ranked_at",
}

// SavePaper inserts the paper unless its identity or DOI is already known.
// It returns whether a new row was written.
func (s *SQLiteStore) SavePaper(ctx context.Context, paper domain.Paper) (bool, error) {
	if paper.ID == "" {
		return false, errors.New("paper id is empty")
	}

	if exists, err := s.paperExists(ctx, paper.ID); err != nil || exists {
		return false, err
	}
	if paper.DOI != "" {
		if id, err := s.paperIDByDOI(ctx, paper.DOI); err != nil {
			return false, err
		} else if id != "" {
			return false, nil
		}
	}

	if err := s.insertPaper(ctx, paper); err != nil {
		return false, err
	}
	return true, nil
}

// SaveSeedPaper stores the paper flagged as a seed. An already-known paper
// is promoted to a seed in place; the return value reports whether a new row
// was written.
func (s *SQLiteStore) SaveSeedPaper(ctx context.Context, paper domain.Paper, seedSource string) (bool, error) {
	if paper.ID == "" {
		return false, errors.New("paper id is empty")
	}

	targetID := ""
	if exists, err := s.paperExists(ctx, paper.ID); err != nil {
		return false, err
	} else if exists {
		targetID = paper.ID
	} else if paper.DOI != "" {
		id, err := s.paperIDByDOI(ctx, paper.DOI)
		if err != nil {
			return false, err
		}
		targetID = id
	}

	if targetID != "" {
		query, args, err := sq.Update("papers").
			Set("seed", true).
			Set("seed_source", seedSource).
			Where(sq.Eq{"id": targetID}).
			ToSql()
		if err != nil {
			return false, fmt.Errorf("build seed update: %w", err)
		}
		if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
			return false, fmt.Errorf("promote paper %s to seed: %w", targetID, err)
		}
		return false, nil
	}

	paper.Seed = true
	paper.SeedSource = seedSource
	if err := s.insertPaper(ctx, paper); err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLiteStore) insertPaper(ctx context.Context, paper domain.Paper) error {
	authors, err := json.Marshal(paper.Authors)
	if err != nil {
		return fmt.Errorf("encode authors: %w", err)
	}
	firstSeen := paper.FirstSeen
	if firstSeen.IsZero() {
		firstSeen = time.Now().UTC()
	}

	query, args, err := sq.Insert("papers").
		Columns("id", "source", "title", "authors", "journal", "abstract",
			"pub_date", "url", "full_text_url", "open_access", "doi",
			"first_seen", "seed", "seed_source").
		Values(paper.ID, paper.Source, paper.Title, string(authors),
			paper.Journal, paper.Abstract, nullableTime(paper.PubDate),
			paper.URL, paper.FullTextURL, paper.OpenAccess, paper.DOI,
			firstSeen, paper.Seed, paper.SeedSource).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert paper %s: %w", paper.ID, err)
	}
	return nil
}

func (s *SQLiteStore) paperExists(ctx context.Context, id string) (bool, error) {
	query, args, err := sq.Select("1").From("papers").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return false, fmt.Errorf("build exists query: %w", err)
	}
	var one int
	switch err := s.db.QueryRowContext(ctx, query, args...).Scan(&one); {
	case err == nil:
		return true, nil
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	default:
		return false, fmt.Errorf("check paper %s: %w", id, err)
	}
}

func (s *SQLiteStore) paperIDByDOI(ctx context.Context, doi string) (string, error) {
	query, args, err := sq.Select("id").From("papers").
		Where(sq.Eq{"doi": doi}).
		Limit(1).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build doi query: %w", err)
	}
	var id string
	switch err := s.db.QueryRowContext(ctx, query, args...).Scan(&id); {
	case err == nil:
		return id, nil
	case errors.Is(err, sql.ErrNoRows):
		return "", nil
	default:
		return "", fmt.Errorf("check doi %s: %w", doi, err)
	}
}

// PaperByID loads one paper; ranking fields are populated when present.
func (s *SQLiteStore) PaperByID(ctx context.Context, id string) (domain.Paper, error) {
	query, args, err := sq.Select(paperColumns...).From("papers").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return domain.Paper{}, fmt.Errorf("build select: %w", err)
	}

	paper, _, err := scanPaper(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Paper{}, fmt.Errorf("paper %s: %w", id, ports.ErrNotFound)
	}
	if err != nil {
		return domain.Paper{}, fmt.Errorf("load paper %s: %w", id, err)
	}
	return paper, nil
}

// PapersByIDs loads the given papers keyed by ID; missing IDs are absent
// from the result.
func (s *SQLiteStore) PapersByIDs(ctx context.Context, ids []string) (map[string]domain.Paper, error) {
	if len(ids) == 0 {
		return map[string]domain.Paper{}, nil
	}

	query, args, err := sq.Select(paperColumns...).From("papers").Where(sq.Eq{"id": ids}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load papers: %w", err)
	}
	defer rows.Close()

	out := make(map[string]domain.Paper, len(ids))
	for rows.Next() {
		paper, _, err := scanPaper(rows)
		if err != nil {
			return nil, err
		}
		out[paper.ID] = paper
	}
	return out, rows.Err()
}

// UnscoredPapers returns papers awaiting a ranking verdict, oldest first.
// Seeds are excluded: they exist as feedback examples, not digest
// candidates.
func (s *SQLiteStore) UnscoredPapers(ctx context.Context, limit int) ([]domain.Paper, error) {
	builder := sq.Select(paperColumns...).From("papers").
		Where(sq.Eq{"ranked_at": nil}).
		Where(sq.Eq{"seed": false}).
		OrderBy("first_seen ASC", "id ASC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load unscored papers: %w", err)
	}
	defer rows.Close()

	var papers []domain.Paper
	for rows.Next() {
		paper, _, err := scanPaper(rows)
		if err != nil {
			return nil, err
		}
		papers = append(papers, paper)
	}
	return papers, rows.Err()
}

// WriteRankingResult stores the verdict for a known paper.
func (s *SQLiteStore) WriteRankingResult(ctx context.Context, paperID string, res domain.RankingResult) error {
	projects, err := json.Marshal(res.MatchedProjects)
	if err != nil {
		return fmt.Errorf("encode matched projects: %w", err)
	}
	rankedAt := res.RankedAt
	if rankedAt.IsZero() {
		rankedAt = time.Now().UTC()
	}

	query, args, err := sq.Update("papers").
		Set("score", res.Score).
		Set("tier", string(res.Tier)).
		Set("summary", res.Summary).
		Set("rationale", res.Rationale).
		Set("matched_projects", string(projects)).
		Set("ranked_at", rankedAt).
		Where(sq.Eq{"id": paperID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("write ranking for %s: %w", paperID, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("paper %s: %w", paperID, ports.ErrNotFound)
	}
	return nil
}

// EligibleForDigest returns scored non-seed papers at or above minScore that
// were first seen since the given time. Digest membership is not consulted
// here; the deduplicator owns that filter.
func (s *SQLiteStore) EligibleForDigest(ctx context.Context, minScore float64, since time.Time) ([]domain.RankedPaper, error) {
	query, args, err := sq.Select(paperColumns...).From("papers").
		Where(sq.NotEq{"ranked_at": nil}).
		Where(sq.GtOrEq{"score": minScore}).
		Where(sq.Eq{"seed": false}).
		Where(sq.GtOrEq{"first_seen": since.UTC()}).
		OrderBy("score DESC", "pub_date DESC", "id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load digest candidates: %w", err)
	}
	defer rows.Close()

	var ranked []domain.RankedPaper
	for rows.Next() {
		paper, result, err := scanPaper(rows)
		if err != nil {
			return nil, err
		}
		if result == nil {
			continue
		}
		ranked = append(ranked, domain.RankedPaper{Paper: paper, Result: *result})
	}
	return ranked, rows.Err()
}

// StarredPapers returns papers whose latest feedback action is a star, most
// recently acted on first.
func (s *SQLiteStore) StarredPapers(ctx context.Context, limit int) ([]domain.RankedPaper, error) {
	return s.papersByLatestAction(ctx, domain.ActionStar, limit)
}

// DismissedPapers returns papers whose latest feedback action is a dismiss,
// most recently acted on first.
func (s *SQLiteStore) DismissedPapers(ctx context.Context, limit int) ([]domain.RankedPaper, error) {
	return s.papersByLatestAction(ctx, domain.ActionDismiss, limit)
}

type actionRecord struct {
	paperID    string
	action     domain.FeedbackAction
	occurredAt time.Time
}

func (s *SQLiteStore) papersByLatestAction(ctx context.Context, action domain.FeedbackAction, limit int) ([]domain.RankedPaper, error) {
	latest, err := s.latestActions(ctx)
	if err != nil {
		return nil, err
	}

	var matched []actionRecord
	for _, rec := range latest {
		if rec.action == action {
			matched = append(matched, rec)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].occurredAt.Equal(matched[j].occurredAt) {
			return matched[i].occurredAt.After(matched[j].occurredAt)
		}
		return matched[i].paperID < matched[j].paperID
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}

	ids := make([]string, 0, len(matched))
	for _, rec := range matched {
		ids = append(ids, rec.paperID)
	}
	papers, err := s.rankedPapersByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	ordered := make([]domain.RankedPaper, 0, len(matched))
	for _, rec := range matched {
		if rp, ok := papers[rec.paperID]; ok {
			ordered = append(ordered, rp)
		}
	}
	return ordered, nil
}

// latestActions folds the feedback log into the newest action per paper.
func (s *SQLiteStore) latestActions(ctx context.Context) (map[string]actionRecord, error) {
	events, err := s.FeedbackEvents(ctx)
	if err != nil {
		return nil, err
	}
	latest := make(map[string]actionRecord)
	for _, ev := range events {
		latest[ev.PaperID] = actionRecord{
			paperID:    ev.PaperID,
			action:     ev.Action,
			occurredAt: ev.OccurredAt,
		}
	}
	return latest, nil
}

func (s *SQLiteStore) rankedPapersByIDs(ctx context.Context, ids []string) (map[string]domain.RankedPaper, error) {
	if len(ids) == 0 {
		return map[string]domain.RankedPaper{}, nil
	}

	query, args, err := sq.Select(paperColumns...).From("papers").Where(sq.Eq{"id": ids}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load papers: %w", err)
	}
	defer rows.Close()

	out := make(map[string]domain.RankedPaper, len(ids))
	for rows.Next() {
		paper, result, err := scanPaper(rows)
		if err != nil {
			return nil, err
		}
		rp := domain.RankedPaper{Paper: paper}
		if result != nil {
			rp.Result = *result
		}
		out[paper.ID] = rp
	}
	return out, rows.Err()
}

// AppendFeedbackEvent stores one feedback action; the paper must exist.
func (s *SQLiteStore) AppendFeedbackEvent(ctx context.Context, ev domain.FeedbackEvent) error {
	if ev.PaperID == "" {
		return errors.New("feedback paper id is empty")
	}
	if ev.Action != domain.ActionStar && ev.Action != domain.ActionDismiss {
		return fmt.Errorf("unknown feedback action %q", ev.Action)
	}
	occurredAt := ev.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	query, args, err := sq.Insert("feedback_events").
		Columns("paper_id", "action", "origin", "occurred_at").
		Values(ev.PaperID, string(ev.Action), string(ev.Origin), occurredAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("append feedback for %s: %w", ev.PaperID, err)
	}
	return nil
}

// FeedbackEvents returns the full feedback log in append order.
func (s *SQLiteStore) FeedbackEvents(ctx context.Context) ([]domain.FeedbackEvent, error) {
	query, args, err := sq.Select("id", "paper_id", "action", "origin", "occurred_at").
		From("feedback_events").
		OrderBy("occurred_at ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load feedback events: %w", err)
	}
	defer rows.Close()

	var events []domain.FeedbackEvent
	for rows.Next() {
		var (
			ev             domain.FeedbackEvent
			action, origin string
		)
		if err := rows.Scan(&ev.ID, &ev.PaperID, &action, &origin, &ev.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan feedback event: %w", err)
		}
		ev.Action = domain.FeedbackAction(action)
		ev.Origin = domain.FeedbackOrigin(origin)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// IsDigestMember reports whether the paper already appeared in a digest.
func (s *SQLiteStore) IsDigestMember(ctx context.Context, paperID string) (bool, error) {
	query, args, err := sq.Select("1").From("digest_memberships").
		Where(sq.Eq{"paper_id": paperID}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build select: %w", err)
	}
	var one int
	switch err := s.db.QueryRowContext(ctx, query, args...).Scan(&one); {
	case err == nil:
		return true, nil
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	default:
		return false, fmt.Errorf("check membership %s: %w", paperID, err)
	}
}

// DigestMembers returns which of the given papers already appeared in a
// digest.
func (s *SQLiteStore) DigestMembers(ctx context.Context, ids []string) (map[string]bool, error) {
	if len(ids) == 0 {
		return map[string]bool{}, nil
	}

	query, args, err := sq.Select("paper_id").From("digest_memberships").
		Where(sq.Eq{"paper_id": ids}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load memberships: %w", err)
	}
	defer rows.Close()

	members := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		members[id] = true
	}
	return members, rows.Err()
}

// RecordDigestMemberships marks the papers as delivered. Re-recording an
// existing member is a no-op, so delivery retries stay safe.
func (s *SQLiteStore) RecordDigestMemberships(ctx context.Context, paperIDs []string, sentAt time.Time) error {
	if len(paperIDs) == 0 {
		return nil
	}

	builder := sq.Insert("digest_memberships").
		Options("OR IGNORE").
		Columns("paper_id", "sent_at")
	for _, id := range paperIDs {
		builder = builder.Values(id, sentAt.UTC())
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("record memberships: %w", err)
	}
	s.debug("recorded digest memberships", "papers", len(paperIDs))
	return nil
}

// RecordSearchRun appends one fetch-cycle record.
func (s *SQLiteStore) RecordSearchRun(ctx context.Context, run domain.SearchRun) error {
	runAt := run.RunAt
	if runAt.IsZero() {
		runAt = time.Now().UTC()
	}
	query, args, err := sq.Insert("search_runs").
		Columns("run_at", "papers_found", "new_papers", "high_priority").
		Values(runAt, run.PapersFound, run.NewPapers, run.HighPriority).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("record search run: %w", err)
	}
	return nil
}

// SearchRuns returns the most recent fetch cycles, newest first.
func (s *SQLiteStore) SearchRuns(ctx context.Context, limit int) ([]domain.SearchRun, error) {
	builder := sq.Select("id", "run_at", "papers_found", "new_papers", "high_priority").
		From("search_runs").
		OrderBy("run_at DESC", "id DESC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load search runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.SearchRun
	for rows.Next() {
		var run domain.SearchRun
		if err := rows.Scan(&run.ID, &run.RunAt, &run.PapersFound, &run.NewPapers, &run.HighPriority); err != nil {
			return nil, fmt.Errorf("scan search run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// AddSuggestion stores one advisor proposal as pending.
func (s *SQLiteStore) AddSuggestion(ctx context.Context, suggestion domain.ConfigSuggestion) error {
	status := suggestion.Status
	if status == "" {
		status = domain.SuggestionPending
	}
	createdAt := suggestion.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query, args, err := sq.Insert("config_suggestions").
		Columns("type", "text", "data", "rationale", "status", "created_at").
		Values(suggestion.Type, suggestion.Text, suggestion.Data, suggestion.Rationale, status, createdAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("add suggestion: %w", err)
	}
	return nil
}

// PendingSuggestions lists unresolved proposals, newest first.
func (s *SQLiteStore) PendingSuggestions(ctx context.Context) ([]domain.ConfigSuggestion, error) {
	query, args, err := sq.Select("id", "type", "text", "data", "rationale", "status", "created_at").
		From("config_suggestions").
		Where(sq.Eq{"status": domain.SuggestionPending}).
		OrderBy("created_at DESC", "id DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load suggestions: %w", err)
	}
	defer rows.Close()

	var suggestions []domain.ConfigSuggestion
	for rows.Next() {
		var sg domain.ConfigSuggestion
		if err := rows.Scan(&sg.ID, &sg.Type, &sg.Text, &sg.Data, &sg.Rationale, &sg.Status, &sg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan suggestion: %w", err)
		}
		suggestions = append(suggestions, sg)
	}
	return suggestions, rows.Err()
}

// ResolveSuggestion marks a pending proposal applied or dismissed.
func (s *SQLiteStore) ResolveSuggestion(ctx context.Context, id int64, status string) error {
	if status != domain.SuggestionApplied && status != domain.SuggestionDismissed {
		return fmt.Errorf("invalid resolution status %q", status)
	}

	query, args, err := sq.Update("config_suggestions").
		Set("status", status).
		Where(sq.Eq{"id": id, "status": domain.SuggestionPending}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("resolve suggestion %d: %w", id, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("pending suggestion %d: %w", id, ports.ErrNotFound)
	}
	return nil
}

// Stats assembles corpus counters for the web UI and CLI.
func (s *SQLiteStore) Stats(ctx context.Context) (domain.StoreStats, error) {
	stats := domain.StoreStats{BySource: map[string]int{}}

	counts := []struct {
		dest    *int
		builder sq.SelectBuilder
	}{
		{&stats.TotalPapers, sq.Select("COUNT(*)").From("papers")},
		{&stats.RankedPapers, sq.Select("COUNT(*)").From("papers").Where(sq.NotEq{"ranked_at": nil})},
		{&stats.HighPriority, sq.Select("COUNT(*)").From("papers").Where(sq.Eq{"tier": string(domain.TierHigh)})},
		{&stats.TotalRuns, sq.Select("COUNT(*)").From("search_runs")},
		{&stats.Seeds, sq.Select("COUNT(*)").From("papers").Where(sq.Eq{"seed": true})},
	}
	for _, c := range counts {
		query, args, err := c.builder.ToSql()
		if err != nil {
			return stats, fmt.Errorf("build count: %w", err)
		}
		if err := s.db.QueryRowContext(ctx, query, args...).Scan(c.dest); err != nil {
			return stats, fmt.Errorf("count: %w", err)
		}
	}

	query, args, err := sq.Select("source", "COUNT(*)").From("papers").GroupBy("source").ToSql()
	if err != nil {
		return stats, fmt.Errorf("build source counts: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return stats, fmt.Errorf("count by source: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var source string
		var count int
		if err := rows.Scan(&source, &count); err != nil {
			return stats, fmt.Errorf("scan source count: %w", err)
		}
		stats.BySource[source] = count
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}

	latest, err := s.latestActions(ctx)
	if err != nil {
		return stats, err
	}
	for _, rec := range latest {
		switch rec.action {
		case domain.ActionStar:
			stats.Starred++
		case domain.ActionDismiss:
			stats.Dismissed++
		}
	}
	return stats, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPaper(row rowScanner) (domain.Paper, *domain.RankingResult, error) {
	var (
		paper              domain.Paper
		authorsJSON        string
		projectsJSON       string
		pubDate, rankedAt  sql.NullTime
		score              sql.NullFloat64
		tier               sql.NullString
		summary, rationale string
	)
	err := row.Scan(&paper.ID, &paper.Source, &paper.Title, &authorsJSON,
		&paper.Journal, &paper.Abstract, &pubDate, &paper.URL,
		&paper.FullTextURL, &paper.OpenAccess, &paper.DOI, &paper.FirstSeen,
		&paper.Seed, &paper.SeedSource, &score, &tier, &summary, &rationale,
		&projectsJSON, &rankedAt)
	if err != nil {
		return domain.Paper{}, nil, err
	}

	if authorsJSON != "" {
		if err := json.Unmarshal([]byte(authorsJSON), &paper.Authors); err != nil {
			return domain.Paper{}, nil, fmt.Errorf("decode authors for %s: %w", paper.ID, err)
		}
	}
	if pubDate.Valid {
		paper.PubDate = pubDate.Time
	}

	if !rankedAt.Valid {
		return paper, nil, nil
	}

	result := domain.RankingResult{
		Score:     score.Float64,
		Tier:      domain.Tier(tier.String),
		Summary:   summary,
		Rationale: rationale,
		RankedAt:  rankedAt.Time,
	}
	if projectsJSON != "" {
		if err := json.Unmarshal([]byte(projectsJSON), &result.MatchedProjects); err != nil {
			return domain.Paper{}, nil, fmt.Errorf("decode projects for %s: %w", paper.ID, err)
		}
	}
	return paper, &result, nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

func (s *SQLiteStore) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
