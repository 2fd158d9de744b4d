package feedback

import (
	"fmt"
	"sort"
	"strings"

	"LitMonitor/internal/domain"
)

const (
	maxExamplesPerSide = 5
	maxSummaryTokens   = 8
	exampleTitleLimit  = 60
)

// BuildPromptSection renders the calibration section injected into the
// oracle's system prompt: starred/dismissed example papers plus the
// strongest aggregated feedback tokens. Returns "" when no feedback exists.
func BuildPromptSection(starred, dismissed []domain.RankedPaper, adj domain.WeightAdjustments) string {
	starredExamples := selectExamples(starred, true, maxExamplesPerSide)
	dismissedExamples := selectExamples(dismissed, false, maxExamplesPerSide)
	positive, negative := TopTokens(adj, maxSummaryTokens)

	if len(starredExamples) == 0 && len(dismissedExamples) == 0 && len(positive) == 0 && len(negative) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("The researcher has provided feedback on past papers. Use these to calibrate:\n")

	if len(starredExamples) > 0 {
		b.WriteString("\nPapers the researcher STARRED (found highly valuable):\n")
		for _, p := range starredExamples {
			b.WriteString(formatExample(p) + "\n")
		}
	}

	if len(dismissedExamples) > 0 {
		b.WriteString("\nPapers the researcher DISMISSED (not relevant):\n")
		for _, p := range dismissedExamples {
			b.WriteString(formatExample(p) + "\n")
		}
	}

	if len(positive) > 0 {
		b.WriteString("\nTopics with accumulated positive signal: " + joinTokens(positive) + "\n")
	}
	if len(negative) > 0 {
		b.WriteString("Topics with accumulated negative signal: " + joinTokens(negative) + "\n")
	}

	b.WriteString("\nAdjust your scoring to better match these demonstrated preferences.")
	return b.String()
}

// selectExamples picks diverse, informative examples. Papers whose score
// disagreed with the feedback calibrate best: a low-scored star and a
// high-scored dismiss both carry more signal than agreement does.
func selectExamples(papers []domain.RankedPaper, starred bool, max int) []domain.RankedPaper {
	if len(papers) == 0 {
		return nil
	}

	informativeness := func(p domain.RankedPaper) float64 {
		if starred {
			return 100 - p.Result.Score
		}
		return p.Result.Score
	}

	ordered := make([]domain.RankedPaper, len(papers))
	copy(ordered, papers)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := informativeness(ordered[i]), informativeness(ordered[j])
		if a != b {
			return a > b
		}
		return ordered[i].Paper.ID < ordered[j].Paper.ID
	})

	var selected []domain.RankedPaper
	taken := make([]bool, len(ordered))
	seenProjects := map[string]struct{}{}

	addsNewProject := func(p domain.RankedPaper) bool {
		if len(p.Result.MatchedProjects) == 0 {
			return true
		}
		for _, project := range p.Result.MatchedProjects {
			if _, ok := seenProjects[project]; !ok {
				return true
			}
		}
		return false
	}

	// First pass keeps project diversity, second pass fills by informativeness.
	for i, p := range ordered {
		if len(selected) >= max {
			break
		}
		if !addsNewProject(p) {
			continue
		}
		selected = append(selected, p)
		taken[i] = true
		for _, project := range p.Result.MatchedProjects {
			seenProjects[project] = struct{}{}
		}
	}
	for i, p := range ordered {
		if len(selected) >= max {
			break
		}
		if !taken[i] {
			selected = append(selected, p)
		}
	}
	return selected
}

func formatExample(p domain.RankedPaper) string {
	title := p.Paper.Title
	if len(title) > exampleTitleLimit {
		title = title[:exampleTitleLimit-3] + "..."
	}

	scoreStr := "unscored"
	if !p.Result.RankedAt.IsZero() {
		scoreStr = fmt.Sprintf("score was %.0f", p.Result.Score)
	}

	projectsStr := ""
	if len(p.Result.MatchedProjects) > 0 {
		projectsStr = fmt.Sprintf(" [Projects: %s]", strings.Join(p.Result.MatchedProjects, ", "))
	}

	return fmt.Sprintf("- %q (%s, %s)%s", title, p.Paper.Journal, scoreStr, projectsStr)
}

func joinTokens(tokens []domain.TokenWeight) string {
	names := make([]string, 0, len(tokens))
	for _, t := range tokens {
		names = append(names, t.Token)
	}
	return strings.Join(names, ", ")
}
