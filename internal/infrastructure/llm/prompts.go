package llm

import (
	"fmt"
	"sort"
	"strings"

	"LitMonitor/internal/domain"
)

const maxAbstractChars = 4000

const suggestSystemPrompt = `You analyze a researcher's feedback on a literature-monitoring service and propose configuration improvements.

Respond with a JSON array of 3 to 8 suggestion objects and nothing else. Each object has the shape:
{"type": "search_query" | "project_keyword" | "watched_author" | "new_project", "text": "<human-readable suggestion>", "data": <machine-applicable value>, "rationale": "<one sentence>"}`

func buildSystemPrompt(rc domain.RankingContext) string {
	var b strings.Builder
	b.WriteString("You are a literature triage assistant for a research group. ")
	b.WriteString("Score each paper for relevance to the group's active projects on a 0-100 scale, ")
	b.WriteString("where 100 is a must-read result and 0 is unrelated.\n\n")

	if len(rc.Projects) > 0 {
		b.WriteString("Active projects:\n")
		for _, project := range rc.Projects {
			if len(project.Keywords) > 0 {
				fmt.Fprintf(&b, "- %s (keywords: %s)\n", project.Name, strings.Join(project.Keywords, ", "))
			} else {
				fmt.Fprintf(&b, "- %s\n", project.Name)
			}
		}
		b.WriteString("\n")
	}

	if len(rc.WatchedAuthors) > 0 {
		fmt.Fprintf(&b, "Watched authors: %s\n\n", strings.Join(rc.WatchedAuthors, ", "))
	}

	writeAttentionLines(&b, rc.ProjectAttention)

	if rc.FeedbackSummary != "" {
		b.WriteString(rc.FeedbackSummary)
		b.WriteString("\n")
	}

	b.WriteString("Respond with a single JSON object and nothing else:\n")
	b.WriteString(`{"score": <integer 0-100>, "summary": "<at most two sentences>", "rationale": "<one sentence>", "matched_projects": [<names from the project list, or empty>]}`)
	return b.String()
}

// writeAttentionLines turns per-project attention multipliers into prompt
// guidance. Names are emitted in sorted order so the prompt is stable across
// runs with the same feedback state.
func writeAttentionLines(b *strings.Builder, attention map[string]float64) {
	if len(attention) == 0 {
		return
	}
	names := make([]string, 0, len(attention))
	for name := range attention {
		names = append(names, name)
	}
	sort.Strings(names)

	var wrote bool
	for _, name := range names {
		switch mult := attention[name]; {
		case mult > 1:
			fmt.Fprintf(b, "Recent feedback favors the project %q; weight papers matching it more strongly.\n", name)
			wrote = true
		case mult < 1:
			fmt.Fprintf(b, "Recent feedback ran against the project %q; weight papers matching it less strongly.\n", name)
			wrote = true
		}
	}
	if wrote {
		b.WriteString("\n")
	}
}

func buildPaperPrompt(paper domain.Paper) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", paper.Title)
	if len(paper.Authors) > 0 {
		fmt.Fprintf(&b, "Authors: %s\n", strings.Join(paper.Authors, ", "))
	}
	if paper.Journal != "" {
		fmt.Fprintf(&b, "Journal: %s\n", paper.Journal)
	}
	if !paper.PubDate.IsZero() {
		fmt.Fprintf(&b, "Published: %s\n", paper.PubDate.Format("2006-01-02"))
	}
	if paper.Abstract != "" {
		abstract := paper.Abstract
		if len(abstract) > maxAbstractChars {
			abstract = abstract[:maxAbstractChars] + "..."
		}
		fmt.Fprintf(&b, "Abstract: %s\n", abstract)
	}
	return b.String()
}
