package feedback

import (
	"sort"
	"strings"
	"time"

	"LitMonitor/internal/domain"
)

// Entry joins one feedback event with the paper it refers to. Seed imports
// arrive as pre-starred entries (Origin seed).
type Entry struct {
	Paper      domain.Paper
	Action     domain.FeedbackAction
	OccurredAt time.Time
}

// Options carries the match lists and magnitudes used when folding the
// feedback log. Magnitudes come from configuration, never literals; a star
// must outweigh a dismiss so false positives cost less than missed positives
// reward.
type Options struct {
	Projects       []domain.ActiveProject
	WatchedAuthors []string
	JournalWeights map[string]float64

	StarWeight    float64
	DismissWeight float64
	AttentionStep float64
	MinAttention  float64
	MaxAttention  float64
}

// DefaultOptions returns the stock magnitudes used when config is silent.
func DefaultOptions() Options {
	return Options{
		StarWeight:    1.0,
		DismissWeight: 0.4,
		AttentionStep: 0.1,
		MinAttention:  0.5,
		MaxAttention:  2.0,
	}
}

// Aggregate folds the feedback log into signed token weights and per-project
// attention multipliers. Pure and deterministic: identical input always
// produces identical output.
//
// Only the most recent action per paper counts toward the weights; toggling
// star to dismiss flips the contribution rather than summing it. Entries
// whose papers yield no tokens contribute nothing but stay in the log.
func Aggregate(entries []Entry, opts Options) domain.WeightAdjustments {
	opts = normalized(opts)

	latest := latestPerPaper(entries)

	ids := make([]string, 0, len(latest))
	for id := range latest {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	tokens := map[string]float64{}
	projectNet := map[string]float64{}

	for _, id := range ids {
		entry := latest[id]

		delta := opts.StarWeight
		if entry.Action == domain.ActionDismiss {
			delta = -opts.DismissWeight
		}

		for _, token := range ExtractTokens(entry.Paper, opts) {
			tokens[token] += delta
		}

		sign := 1.0
		if entry.Action == domain.ActionDismiss {
			sign = -1.0
		}
		for _, name := range matchedProjects(entry.Paper, opts.Projects) {
			projectNet[name] += sign
		}
	}

	attention := make(map[string]float64, len(opts.Projects))
	for _, project := range opts.Projects {
		mult := 1.0 + opts.AttentionStep*projectNet[project.Name]
		if mult < opts.MinAttention {
			mult = opts.MinAttention
		}
		if mult > opts.MaxAttention {
			mult = opts.MaxAttention
		}
		attention[project.Name] = mult
	}

	return domain.WeightAdjustments{
		TokenWeights:     tokens,
		ProjectAttention: attention,
	}
}

// ExtractTokens returns the configured keyword, author, and journal tokens a
// paper touches, lowercased, sorted, and deduplicated. Keywords match by
// case-insensitive substring of title+abstract+journal (phrases intact);
// authors by case-insensitive name equality; the journal name matches when
// it appears in the journal-weight table.
func ExtractTokens(paper domain.Paper, opts Options) []string {
	text := searchText(paper)

	seen := map[string]struct{}{}

	for _, project := range opts.Projects {
		for _, keyword := range project.Keywords {
			kw := strings.ToLower(strings.TrimSpace(keyword))
			if kw == "" {
				continue
			}
			if strings.Contains(text, kw) {
				seen[kw] = struct{}{}
			}
		}
	}

	for _, watched := range opts.WatchedAuthors {
		for _, author := range paper.Authors {
			if strings.EqualFold(strings.TrimSpace(author), strings.TrimSpace(watched)) {
				seen[strings.ToLower(strings.TrimSpace(watched))] = struct{}{}
				break
			}
		}
	}

	journal := strings.ToLower(strings.TrimSpace(paper.Journal))
	if journal != "" {
		if _, ok := opts.JournalWeights[journal]; ok {
			seen[journal] = struct{}{}
		}
	}

	tokens := make([]string, 0, len(seen))
	for token := range seen {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	return tokens
}

// TopTokens selects the n strongest positive and n strongest negative tokens
// for the oracle feedback summary, ordered by magnitude then token for
// reproducibility.
func TopTokens(adj domain.WeightAdjustments, n int) (positive, negative []domain.TokenWeight) {
	for token, weight := range adj.TokenWeights {
		switch {
		case weight > 0:
			positive = append(positive, domain.TokenWeight{Token: token, Weight: weight})
		case weight < 0:
			negative = append(negative, domain.TokenWeight{Token: token, Weight: weight})
		}
	}

	sort.Slice(positive, func(i, j int) bool {
		if positive[i].Weight != positive[j].Weight {
			return positive[i].Weight > positive[j].Weight
		}
		return positive[i].Token < positive[j].Token
	})
	sort.Slice(negative, func(i, j int) bool {
		if negative[i].Weight != negative[j].Weight {
			return negative[i].Weight < negative[j].Weight
		}
		return negative[i].Token < negative[j].Token
	})

	if len(positive) > n {
		positive = positive[:n]
	}
	if len(negative) > n {
		negative = negative[:n]
	}
	return positive, negative
}

func latestPerPaper(entries []Entry) map[string]Entry {
	ordered := make([]Entry, len(entries))
	copy(ordered, entries)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].OccurredAt.Equal(ordered[j].OccurredAt) {
			return ordered[i].OccurredAt.Before(ordered[j].OccurredAt)
		}
		return ordered[i].Paper.ID < ordered[j].Paper.ID
	})

	latest := make(map[string]Entry, len(ordered))
	for _, entry := range ordered {
		if entry.Paper.ID == "" {
			continue
		}
		latest[entry.Paper.ID] = entry
	}
	return latest
}

func matchedProjects(paper domain.Paper, projects []domain.ActiveProject) []string {
	text := searchText(paper)

	var matched []string
	for _, project := range projects {
		for _, keyword := range project.Keywords {
			kw := strings.ToLower(strings.TrimSpace(keyword))
			if kw != "" && strings.Contains(text, kw) {
				matched = append(matched, project.Name)
				break
			}
		}
	}
	return matched
}

func searchText(paper domain.Paper) string {
	return strings.ToLower(paper.Title + " " + paper.Abstract + " " + paper.Journal)
}

func normalized(opts Options) Options {
	def := DefaultOptions()
	if opts.StarWeight <= 0 {
		opts.StarWeight = def.StarWeight
	}
	if opts.DismissWeight <= 0 {
		opts.DismissWeight = def.DismissWeight
	}
	if opts.AttentionStep <= 0 {
		opts.AttentionStep = def.AttentionStep
	}
	if opts.MinAttention <= 0 {
		opts.MinAttention = def.MinAttention
	}
	if opts.MaxAttention <= 0 {
		opts.MaxAttention = def.MaxAttention
	}
	return opts
}
