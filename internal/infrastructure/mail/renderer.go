package mail

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"strings"

	"LitMonitor/internal/domain"
	"LitMonitor/internal/infrastructure/links"
)

//go:embed digest.tmpl
var digestTemplateText string

var digestTemplate = template.Must(template.New("digest").Parse(digestTemplateText))

// Section caps keep the email readable; overflow is summarized in a note.
const (
	moderateCap    = 10
	lowCap         = 20
	lowMarkdownCap = 5
)

// Renderer turns a composed digest into the HTML email body and a
// Markdown alternative used as the text part and the file copy.
type Renderer struct {
	links   *links.Builder
	watched []string
}

// NewRenderer builds a renderer. watchedAuthors drives the per-author
// badge; matching is case-insensitive substring, same as ranking.
func NewRenderer(builder *links.Builder, watchedAuthors []string) *Renderer {
	if builder == nil {
		builder = links.NewBuilder("", nil)
	}
	return &Renderer{links: builder, watched: watchedAuthors}
}

// Subject is used for both the email subject and the digest heading.
func (r *Renderer) Subject(digest domain.Digest) string {
	return fmt.Sprintf("Literature Digest - %d papers (%d high priority)",
		digest.PaperCount(), digest.TierCount(domain.TierHigh))
}

// RenderHTML produces the full HTML email body.
func (r *Renderer) RenderHTML(digest domain.Digest) (string, error) {
	var buf bytes.Buffer
	if err := digestTemplate.Execute(&buf, r.buildView(digest)); err != nil {
		return "", fmt.Errorf("execute digest template: %w", err)
	}
	return buf.String(), nil
}

type digestView struct {
	Title            string
	Date             string
	Total            int
	HighCount        int
	ModerateCount    int
	OpenAccess       int
	High             []paperView
	Moderate         []paperView
	ModerateOverflow int
	Low              []paperView
	LowCount         int
	LowOverflow      int
	GeneratedAt      string
}

type paperView struct {
	Title       string
	URL         string
	Score       string
	ScoreClass  string
	CardClass   string
	Authors     []authorView
	MoreAuthors bool
	Journal     string
	Date        string
	OpenAccess  bool
	Summary     string
	Rationale   string
	Projects    []string
	FullTextURL string
	DOI         string
	ZoteroURL   string
	StarURL     string
	DismissURL  string
	Compact     bool
}

type authorView struct {
	Name    string
	Watched bool
}

func (r *Renderer) buildView(digest domain.Digest) digestView {
	view := digestView{
		Title:       r.Subject(digest),
		Date:        digest.GeneratedAt.Format("January 2, 2006"),
		Total:       digest.PaperCount(),
		GeneratedAt: digest.GeneratedAt.Format("2006-01-02 15:04"),
	}

	for _, tier := range digest.Tiers {
		for _, rp := range tier.Papers {
			if rp.Paper.OpenAccess {
				view.OpenAccess++
			}
		}
		switch tier.Tier {
		case domain.TierHigh:
			view.HighCount = len(tier.Papers)
			view.High = r.paperViews(tier.Papers, len(tier.Papers), false)
		case domain.TierModerate:
			view.ModerateCount = len(tier.Papers)
			view.Moderate = r.paperViews(tier.Papers, moderateCap, false)
			view.ModerateOverflow = overflow(len(tier.Papers), moderateCap)
		case domain.TierLow:
			view.LowCount = len(tier.Papers)
			view.Low = r.paperViews(tier.Papers, lowCap, true)
			view.LowOverflow = overflow(len(tier.Papers), lowCap)
		}
	}
	return view
}

func (r *Renderer) paperViews(papers []domain.RankedPaper, limit int, compact bool) []paperView {
	if len(papers) > limit {
		papers = papers[:limit]
	}
	views := make([]paperView, 0, len(papers))
	for _, rp := range papers {
		views = append(views, r.paperView(rp, compact))
	}
	return views
}

func (r *Renderer) paperView(rp domain.RankedPaper, compact bool) paperView {
	view := paperView{
		Title:       rp.Paper.Title,
		URL:         rp.Paper.URL,
		Score:       fmt.Sprintf("%.0f%%", rp.Result.Score),
		ScoreClass:  scoreClass(rp.Result.Tier),
		CardClass:   cardClass(rp.Result.Tier),
		MoreAuthors: len(rp.Paper.Authors) > maxDisplayAuthors,
		Journal:     rp.Paper.Journal,
		OpenAccess:  rp.Paper.OpenAccess,
		Summary:     rp.Result.Summary,
		Rationale:   rp.Result.Rationale,
		Projects:    rp.Result.MatchedProjects,
		FullTextURL: rp.Paper.FullTextURL,
		DOI:         rp.Paper.DOI,
		ZoteroURL:   r.links.ZoteroAddURL(rp.Paper),
		StarURL:     r.links.FeedbackURL(rp.Paper.ID, domain.ActionStar),
		DismissURL:  r.links.FeedbackURL(rp.Paper.ID, domain.ActionDismiss),
		Compact:     compact,
	}
	if !rp.Paper.PubDate.IsZero() {
		view.Date = rp.Paper.PubDate.Format("2006-01-02")
	}
	for i, author := range rp.Paper.Authors {
		if i == maxDisplayAuthors {
			break
		}
		view.Authors = append(view.Authors, authorView{
			Name:    author,
			Watched: r.isWatched(author),
		})
	}
	return view
}

const maxDisplayAuthors = 3

func (r *Renderer) isWatched(author string) bool {
	lower := strings.ToLower(author)
	for _, watched := range r.watched {
		if watched != "" && strings.Contains(lower, strings.ToLower(watched)) {
			return true
		}
	}
	return false
}

func scoreClass(tier domain.Tier) string {
	switch tier {
	case domain.TierHigh:
		return "score-high"
	case domain.TierModerate:
		return "score-moderate"
	default:
		return "score-low"
	}
}

func cardClass(tier domain.Tier) string {
	switch tier {
	case domain.TierHigh:
		return "high-priority"
	case domain.TierModerate:
		return "moderate"
	default:
		return "low-priority"
	}
}

func overflow(total, limit int) int {
	if total > limit {
		return total - limit
	}
	return 0
}

// RenderMarkdown produces the Markdown digest written next to the HTML
// file and used as the plain-text email alternative. Low priority is
// abbreviated harder than in HTML since there is no collapsing.
func (r *Renderer) RenderMarkdown(digest domain.Digest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", r.Subject(digest))
	fmt.Fprintf(&b, "*%s*\n\n", digest.GeneratedAt.Format("January 2, 2006"))
	fmt.Fprintf(&b, "**%d papers** | **%d high priority** | **%d moderate** | **%d low priority**\n\n",
		digest.PaperCount(),
		digest.TierCount(domain.TierHigh),
		digest.TierCount(domain.TierModerate),
		digest.TierCount(domain.TierLow))
	b.WriteString("---\n\n")

	for _, tier := range digest.Tiers {
		switch tier.Tier {
		case domain.TierHigh:
			b.WriteString("## High Priority\n\n")
			for _, rp := range tier.Papers {
				r.writeMarkdownPaper(&b, rp, false)
			}
		case domain.TierModerate:
			b.WriteString("## Moderate Relevance\n\n")
			for i, rp := range tier.Papers {
				if i == moderateCap {
					break
				}
				r.writeMarkdownPaper(&b, rp, false)
			}
			if extra := overflow(len(tier.Papers), moderateCap); extra > 0 {
				fmt.Fprintf(&b, "*...and %d more moderate papers.*\n\n", extra)
			}
		case domain.TierLow:
			fmt.Fprintf(&b, "## Low Priority (%d papers)\n\n", len(tier.Papers))
			for i, rp := range tier.Papers {
				if i == lowMarkdownCap {
					break
				}
				r.writeMarkdownPaper(&b, rp, true)
			}
			if extra := overflow(len(tier.Papers), lowMarkdownCap); extra > 0 {
				fmt.Fprintf(&b, "*...and %d more low priority papers.*\n\n", extra)
			}
		}
	}
	return b.String()
}

func (r *Renderer) writeMarkdownPaper(b *strings.Builder, rp domain.RankedPaper, compact bool) {
	fmt.Fprintf(b, "### %s\n\n", rp.Paper.Title)
	fmt.Fprintf(b, "**Score: %.0f%%** | %s\n\n", rp.Result.Score, markdownAuthors(rp.Paper.Authors))

	date := ""
	if !rp.Paper.PubDate.IsZero() {
		date = rp.Paper.PubDate.Format("2006-01-02")
	}
	fmt.Fprintf(b, "*%s* - %s", rp.Paper.Journal, date)
	if watched := r.watchedIn(rp.Paper.Authors); len(watched) > 0 {
		fmt.Fprintf(b, " | **Watched:** %s", strings.Join(watched, ", "))
	}
	if rp.Paper.OpenAccess {
		b.WriteString(" | Open Access")
	}
	if rp.Paper.DOI != "" {
		fmt.Fprintf(b, " | DOI: %s", rp.Paper.DOI)
	}
	b.WriteString("\n\n")

	if !compact {
		if rp.Result.Summary != "" {
			fmt.Fprintf(b, "> %s\n\n", rp.Result.Summary)
		}
		if rp.Result.Rationale != "" {
			fmt.Fprintf(b, "*%s*\n\n", rp.Result.Rationale)
		}
		if len(rp.Result.MatchedProjects) > 0 {
			fmt.Fprintf(b, "**Projects:** %s\n\n", strings.Join(rp.Result.MatchedProjects, ", "))
		}
	}
	b.WriteString("---\n\n")
}

func (r *Renderer) watchedIn(authors []string) []string {
	var watched []string
	for _, author := range authors {
		if r.isWatched(author) {
			watched = append(watched, author)
		}
	}
	return watched
}

func markdownAuthors(authors []string) string {
	if len(authors) == 0 {
		return "Unknown authors"
	}
	if len(authors) > maxDisplayAuthors {
		return strings.Join(authors[:maxDisplayAuthors], ", ") + " et al."
	}
	return strings.Join(authors, ", ")
}
