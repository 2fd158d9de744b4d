package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"LitMonitor/internal/domain"
	"LitMonitor/internal/scanner"
)

const (
	biorxivBaseURL = "https://api.biorxiv.org"

	// The details endpoint pages in fixed steps of 100; the guard bounds a
	// runaway cursor if the reported total is wrong.
	biorxivMaxPages = 200
)

var (
	phraseExpr   = regexp.MustCompile(`"([^"]+)"`)
	fieldTagExpr = regexp.MustCompile(`\[[^\]]*\]`)
)

// BiorxivScanner pulls preprints from the bioRxiv/medRxiv details API. The
// API has no search endpoint, so the scanner downloads the whole posting
// window and matches queries locally against title and abstract.
type BiorxivScanner struct {
	client  *http.Client
	limiter *rate.Limiter
}

// NewBiorxivScanner wires an HTTP client with a conservative page pace.
func NewBiorxivScanner(client *http.Client) *BiorxivScanner {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &BiorxivScanner{
		client:  client,
		limiter: rate.NewLimiter(rate.Every(500*time.Millisecond), 1),
	}
}

// Name identifies the strategy inside the registry.
func (b *BiorxivScanner) Name() string {
	return "biorxiv"
}

// Scan downloads every preprint posted in the window and keeps those matching
// at least one query, deduplicated by DOI.
func (b *BiorxivScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.Paper, error) {
	if len(req.Queries) == 0 {
		return nil, fmt.Errorf("no queries provided for source %s", req.SourceName)
	}

	base := req.Options["base_url"]
	if base == "" {
		base = biorxivBaseURL
	}
	server := req.Options["server"]
	if server == "" {
		server = "biorxiv"
	}

	results := make([]domain.Paper, 0)
	seen := map[string]struct{}{}
	cursor := 0

	for page := 0; page < biorxivMaxPages; page++ {
		if err := b.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		pageURL := fmt.Sprintf("%s/details/%s/%s/%s/%d",
			base, server, req.Since.Format("2006-01-02"), req.Until.Format("2006-01-02"), cursor)
		resp, err := b.fetchPage(ctx, pageURL)
		if err != nil {
			return nil, fmt.Errorf("server %s: %w", server, err)
		}

		for _, preprint := range resp.Collection {
			paper, ok := preprint.toPaper(server)
			if !ok {
				continue
			}
			if _, dup := seen[paper.ID]; dup {
				continue
			}
			if !matchesAnyQuery(paper, req.Queries) {
				continue
			}
			seen[paper.ID] = struct{}{}
			results = append(results, paper)
			if req.MaxResults > 0 && len(results) >= req.MaxResults {
				return results, nil
			}
		}

		cursor += len(resp.Collection)
		if len(resp.Collection) == 0 || cursor >= resp.total() {
			break
		}
	}

	return results, nil
}

func (b *BiorxivScanner) fetchPage(ctx context.Context, pageURL string) (*biorxivResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "LitMonitor/1.0")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("biorxiv returned %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var decoded biorxivResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &decoded, nil
}

type biorxivResponse struct {
	Messages   []biorxivMessage  `json:"messages"`
	Collection []biorxivPreprint `json:"collection"`
}

type biorxivMessage struct {
	Status string `json:"status"`
	Total  int    `json:"total"`
}

func (r *biorxivResponse) total() int {
	if len(r.Messages) == 0 {
		return 0
	}
	return r.Messages[0].Total
}

type biorxivPreprint struct {
	DOI      string `json:"doi"`
	Title    string `json:"title"`
	Authors  string `json:"authors"`
	Date     string `json:"date"`
	Version  string `json:"version"`
	Category string `json:"category"`
	Abstract string `json:"abstract"`
}

func (p biorxivPreprint) toPaper(server string) (domain.Paper, bool) {
	doi := strings.TrimSpace(p.DOI)
	title := strings.TrimSpace(p.Title)
	if doi == "" || title == "" {
		return domain.Paper{}, false
	}

	pageURL := fmt.Sprintf("https://www.%s.org/content/%s", server, doi)
	if v := strings.TrimSpace(p.Version); v != "" {
		pageURL += "v" + v
	}

	paper := domain.Paper{
		ID:          server + ":" + doi,
		Source:      server,
		Title:       title,
		Authors:     displayAuthors(p.Authors),
		Journal:     serverDisplayName(server),
		Abstract:    strings.TrimSpace(p.Abstract),
		URL:         pageURL,
		FullTextURL: pageURL,
		OpenAccess:  true,
		DOI:         doi,
	}
	if parsed, err := time.Parse("2006-01-02", strings.TrimSpace(p.Date)); err == nil {
		paper.PubDate = parsed
	}
	return paper, true
}

func serverDisplayName(server string) string {
	switch server {
	case "biorxiv":
		return "bioRxiv"
	case "medrxiv":
		return "medRxiv"
	}
	return server
}

// displayAuthors converts the API's "Last, First Middle; Last, First" string
// into the "Last FM" format used across sources.
func displayAuthors(raw string) []string {
	var authors []string
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		last, given, found := strings.Cut(part, ",")
		if !found {
			authors = append(authors, part)
			continue
		}
		var initials strings.Builder
		for _, word := range strings.Fields(given) {
			runes := []rune(word)
			initials.WriteString(strings.ToUpper(string(runes[0])))
		}
		name := strings.TrimSpace(last)
		if initials.Len() > 0 {
			name += " " + initials.String()
		}
		authors = append(authors, name)
	}
	return authors
}

func matchesAnyQuery(paper domain.Paper, queries []string) bool {
	text := strings.ToLower(paper.Title + " " + paper.Abstract)
	for _, query := range queries {
		if matchesQuery(text, query) {
			return true
		}
	}
	return false
}

// matchesQuery approximates PubMed query syntax against plain text: quoted
// phrases must appear verbatim, remaining terms must each appear, field tags
// like [Title/Abstract] and boolean operators are ignored.
func matchesQuery(textLower, query string) bool {
	for _, m := range phraseExpr.FindAllStringSubmatch(query, -1) {
		if !strings.Contains(textLower, strings.ToLower(m[1])) {
			return false
		}
	}

	remaining := phraseExpr.ReplaceAllString(query, " ")
	remaining = fieldTagExpr.ReplaceAllString(remaining, " ")
	for _, term := range strings.Fields(remaining) {
		switch strings.ToUpper(term) {
		case "AND", "OR", "NOT":
			continue
		}
		term = strings.Trim(term, "()")
		if term == "" {
			continue
		}
		if !strings.Contains(textLower, strings.ToLower(term)) {
			return false
		}
	}
	return true
}
