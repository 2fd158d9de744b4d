package domain

import (
	"strings"
	"time"
)

// Paper is a core entity describing metadata fetched from literature providers.
// The ID is stable across runs: PMID for PubMed records, DOI for preprints,
// "doi:"/"zotero:" prefixed identifiers for imported seeds.
type Paper struct {
	ID          string
	Source      string
	Title       string
	Authors     []string
	Journal     string
	Abstract    string
	PubDate     time.Time
	URL         string
	FullTextURL string
	OpenAccess  bool
	DOI         string
	FirstSeen   time.Time
	Seed        bool
	SeedSource  string
}

// Tier buckets a final relevance score for presentation.
type Tier string

const (
	TierHigh     Tier = "high"
	TierModerate Tier = "moderate"
	TierLow      Tier = "low"
)

// RankingResult captures oracle scoring and deterministic post-processing
// for one paper. A paper has at most one current result; re-ranking
// overwrites it.
type RankingResult struct {
	Score           float64
	Tier            Tier
	Summary         string
	Rationale       string
	MatchedProjects []string
	RankedAt        time.Time
}

// RankedPaper pairs a paper with its current ranking result.
type RankedPaper struct {
	Paper  Paper
	Result RankingResult
}

// FeedbackAction is the user signal recorded against a paper.
type FeedbackAction string

const (
	ActionStar    FeedbackAction = "star"
	ActionDismiss FeedbackAction = "dismiss"
)

// FeedbackOrigin identifies which surface produced a feedback event.
type FeedbackOrigin string

const (
	OriginEmail FeedbackOrigin = "email"
	OriginWeb   FeedbackOrigin = "web"
	OriginSeed  FeedbackOrigin = "seed"
)

// FeedbackEvent is one entry of the append-only feedback log.
type FeedbackEvent struct {
	ID         int64
	PaperID    string
	Action     FeedbackAction
	Origin     FeedbackOrigin
	OccurredAt time.Time
}

// PendingFeedback is a feedback entry held by the edge worker, keyed so it
// can be acknowledged after local application.
type PendingFeedback struct {
	Key        string
	PaperID    string
	Action     FeedbackAction
	OccurredAt time.Time
}

// ActiveProject is a user-declared research interest with match keywords.
type ActiveProject struct {
	Name     string
	Keywords []string
}

// DigestMembership records that a paper was part of a previously sent
// digest. Once present, the paper is permanently excluded from future
// digests.
type DigestMembership struct {
	PaperID string
	SentAt  time.Time
}

// WeightAdjustments is the Feedback Aggregator's output: signed per-token
// weight deltas plus per-project attention multipliers.
type WeightAdjustments struct {
	TokenWeights     map[string]float64
	ProjectAttention map[string]float64
}

// TokenWeight is one (token, weight) pair selected for the oracle feedback
// summary.
type TokenWeight struct {
	Token  string
	Weight float64
}

// OracleVerdict is the raw oracle output for one paper, before journal
// weighting, author boost, and tier assignment.
type OracleVerdict struct {
	Score           float64
	Summary         string
	Rationale       string
	MatchedProjects []string
}

// RankingContext carries the researcher's interests and accumulated
// feedback into each oracle call.
type RankingContext struct {
	Projects         []ActiveProject
	WatchedAuthors   []string
	JournalWeights   map[string]float64
	FeedbackSummary  string
	ProjectAttention map[string]float64
}

// JournalWeight returns the configured trust multiplier for a journal,
// defaulting to 1.0. Lookup is case-insensitive.
func (rc RankingContext) JournalWeight(journal string) float64 {
	if w, ok := rc.JournalWeights[strings.ToLower(strings.TrimSpace(journal))]; ok {
		return w
	}
	return 1.0
}

// WatchedAuthorsIn returns the subset of the paper's authors present on the
// watched list, compared case-insensitively.
func (rc RankingContext) WatchedAuthorsIn(authors []string) []string {
	var matched []string
	for _, author := range authors {
		for _, watched := range rc.WatchedAuthors {
			if strings.EqualFold(strings.TrimSpace(author), strings.TrimSpace(watched)) {
				matched = append(matched, author)
				break
			}
		}
	}
	return matched
}

// ProjectNames lists the active project names in declaration order.
func (rc RankingContext) ProjectNames() []string {
	names := make([]string, 0, len(rc.Projects))
	for _, p := range rc.Projects {
		names = append(names, p.Name)
	}
	return names
}

// Digest is the composed, tiered output handed to delivery.
type Digest struct {
	ID          string
	GeneratedAt time.Time
	Tiers       []DigestTier
}

// DigestTier is one priority group, ordered for presentation.
type DigestTier struct {
	Tier         Tier
	PriorityRank int
	Papers       []RankedPaper
}

// PaperCount sums papers across all tiers.
func (d Digest) PaperCount() int {
	total := 0
	for _, tier := range d.Tiers {
		total += len(tier.Papers)
	}
	return total
}

// TierCount returns the number of papers in the named tier.
func (d Digest) TierCount(tier Tier) int {
	for _, t := range d.Tiers {
		if t.Tier == tier {
			return len(t.Papers)
		}
	}
	return 0
}

// SearchRun summarizes one fetch cycle for audit and stats.
type SearchRun struct {
	ID           int64
	RunAt        time.Time
	PapersFound  int
	NewPapers    int
	HighPriority int
}

// ConfigSuggestion is an oracle-proposed configuration improvement derived
// from feedback patterns.
type ConfigSuggestion struct {
	ID        int64
	Type      string
	Text      string
	Data      string
	Rationale string
	Status    string
	CreatedAt time.Time
}

// Suggestion types produced by the advisor.
const (
	SuggestionSearchQuery    = "search_query"
	SuggestionProjectKeyword = "project_keyword"
	SuggestionWatchedAuthor  = "watched_author"
	SuggestionNewProject     = "new_project"
)

// Suggestion review states.
const (
	SuggestionPending   = "pending"
	SuggestionApplied   = "applied"
	SuggestionDismissed = "dismissed"
)

// StoreStats aggregates store counters for the stats surface.
type StoreStats struct {
	TotalPapers  int
	BySource     map[string]int
	RankedPapers int
	HighPriority int
	TotalRuns    int
	Starred      int
	Dismissed    int
	Seeds        int
}
