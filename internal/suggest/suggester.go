// Package suggest turns accumulated feedback into config improvement
// proposals: new search queries, project keywords, watched authors, or
// whole projects, reviewed by the operator before being applied.
package suggest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"LitMonitor/internal/config"
	"LitMonitor/internal/domain"
	"LitMonitor/internal/ports"
)

const (
	// minStarred gates suggestion runs: with fewer starred papers the
	// feedback carries too little signal to generalize from.
	minStarred = 5

	maxStarredFetch    = 30
	maxDismissedFetch  = 30
	promptStarredCap   = 20
	promptDismissedCap = 15
	abstractExcerptLen = 200
)

// Store is the persistence surface the suggester reads and writes.
type Store interface {
	Stats(ctx context.Context) (domain.StoreStats, error)
	StarredPapers(ctx context.Context, limit int) ([]domain.RankedPaper, error)
	DismissedPapers(ctx context.Context, limit int) ([]domain.RankedPaper, error)
	AddSuggestion(ctx context.Context, s domain.ConfigSuggestion) error
}

// Suggester analyzes feedback patterns through the advisor and persists the
// resulting proposals as pending.
type Suggester struct {
	cfg     config.Config
	store   Store
	advisor ports.ConfigAdvisor
	logger  *slog.Logger
}

func New(cfg config.Config, store Store, advisor ports.ConfigAdvisor, logger *slog.Logger) *Suggester {
	return &Suggester{cfg: cfg, store: store, advisor: advisor, logger: logger}
}

// Generate runs one analysis cycle. It returns the stored suggestions, or
// nil without error when there is not yet enough starred feedback.
func (s *Suggester) Generate(ctx context.Context) ([]domain.ConfigSuggestion, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("load feedback stats: %w", err)
	}
	if stats.Starred < minStarred {
		s.info("skipping config suggestions", "starred", stats.Starred, "required", minStarred)
		return nil, nil
	}

	starred, err := s.store.StarredPapers(ctx, maxStarredFetch)
	if err != nil {
		return nil, fmt.Errorf("load starred papers: %w", err)
	}
	dismissed, err := s.store.DismissedPapers(ctx, maxDismissedFetch)
	if err != nil {
		return nil, fmt.Errorf("load dismissed papers: %w", err)
	}

	prompt := buildAnalysisPrompt(s.cfg, starred, dismissed, stats)
	proposals, err := s.advisor.ProposeConfig(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("propose config changes: %w", err)
	}

	saved := make([]domain.ConfigSuggestion, 0, len(proposals))
	for _, proposal := range proposals {
		if err := s.store.AddSuggestion(ctx, proposal); err != nil {
			return saved, fmt.Errorf("store suggestion: %w", err)
		}
		saved = append(saved, proposal)
	}
	s.info("stored config suggestions", "count", len(saved))
	return saved, nil
}

// buildAnalysisPrompt summarizes the current configuration and the feedback
// record for the advisor. Starred papers carry abstract excerpts because
// they show what attracted the researcher; dismissed papers carry their
// scores because a high-scored dismissal points at an overly broad query.
func buildAnalysisPrompt(cfg config.Config, starred, dismissed []domain.RankedPaper, stats domain.StoreStats) string {
	var b strings.Builder

	b.WriteString("Analyze this literature monitoring configuration and the researcher's feedback to suggest improvements.\n\n")

	b.WriteString("## Current Configuration\n\nSearch queries:\n")
	for _, q := range cfg.Search.Queries {
		fmt.Fprintf(&b, "  - %s\n", q)
	}

	b.WriteString("\nActive projects:\n")
	for _, p := range cfg.Projects {
		fmt.Fprintf(&b, "  - %s: %s\n", p.Name, strings.Join(p.Keywords, ", "))
	}

	b.WriteString("\nWatched authors:\n")
	if len(cfg.WatchedAuthors) == 0 {
		b.WriteString("  (none)\n")
	} else {
		for _, a := range cfg.WatchedAuthors {
			fmt.Fprintf(&b, "  - %s\n", a)
		}
	}

	neutral := stats.TotalPapers - stats.Starred - stats.Dismissed
	if neutral < 0 {
		neutral = 0
	}
	fmt.Fprintf(&b, "\n## Feedback Statistics\n- Starred (valuable): %d\n- Dismissed (not relevant): %d\n- Neutral (no feedback): %d\n",
		stats.Starred, stats.Dismissed, neutral)

	b.WriteString("\n## Starred Papers (researcher found these valuable):\n")
	for _, rp := range capPapers(starred, promptStarredCap) {
		fmt.Fprintf(&b, "  - %q (%s)%s\n", rp.Paper.Title, rp.Paper.Journal, projectTag(rp.Result.MatchedProjects))
		if rp.Paper.Abstract != "" {
			fmt.Fprintf(&b, "    Abstract excerpt: %s...\n", excerpt(rp.Paper.Abstract, abstractExcerptLen))
		}
	}

	b.WriteString("\n## Dismissed Papers (researcher found these NOT relevant):\n")
	for _, rp := range capPapers(dismissed, promptDismissedCap) {
		score := ""
		if !rp.Result.RankedAt.IsZero() {
			score = fmt.Sprintf(", score: %.0f", rp.Result.Score)
		}
		fmt.Fprintf(&b, "  - %q (%s%s)%s\n", rp.Paper.Title, rp.Paper.Journal, score, projectTag(rp.Result.MatchedProjects))
	}

	b.WriteString(analysisInstructions)
	return b.String()
}

const analysisInstructions = `
## Instructions

Identify gaps and suggest improvements. For each suggestion, consider:
1. What topics or patterns appear in starred papers but aren't well-covered by current search queries?
2. Are there keywords from starred papers that should be added to projects?
3. Are there authors who appear frequently in starred papers who should be watched?
4. Are there overly broad terms catching irrelevant papers (from dismissed)?
5. Should any new projects be created based on emerging interest patterns?

Respond with a JSON array of suggestions. Each suggestion must have:
- "type": one of "search_query", "project_keyword", "watched_author", "new_project"
- "text": human-readable description of the suggestion
- "data": object for auto-applying (see formats below)
- "rationale": why this suggestion is made

Data formats:
- search_query: {"query": "the PubMed query string"}
- project_keyword: {"project": "project name", "keyword": "new keyword"}
- watched_author: {"author": "LastName Initials"}
- new_project: {"name": "Project Name", "keywords": ["kw1", "kw2"]}

Return 3-8 suggestions. Only suggest things that are clearly supported by the feedback patterns.
Return ONLY the JSON array, no other text.`

func capPapers(papers []domain.RankedPaper, limit int) []domain.RankedPaper {
	if len(papers) > limit {
		return papers[:limit]
	}
	return papers
}

func projectTag(projects []string) string {
	if len(projects) == 0 {
		return ""
	}
	return fmt.Sprintf(" [Projects: %s]", strings.Join(projects, ", "))
}

func excerpt(text string, limit int) string {
	runes := []rune(text)
	if len(runes) > limit {
		return string(runes[:limit])
	}
	return text
}

func (s *Suggester) info(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}
