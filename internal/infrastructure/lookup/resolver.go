package lookup

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"LitMonitor/internal/domain"
	"LitMonitor/internal/ports"
)

const crossrefBaseURL = "https://api.crossref.org"

// Lookup kinds recorded as the seed source of resolved papers.
const (
	KindPMID = "pmid_lookup"
	KindDOI  = "doi_lookup"
)

var (
	doiExpr  = regexp.MustCompile(`^10\.\d{4,9}/\S+$`)
	pmidExpr = regexp.MustCompile(`^\d+$`)
)

// PubMedLookup is the slice of the PubMed client the resolver needs for
// PMID lookups and the DOI fallback search.
type PubMedLookup interface {
	SearchIDs(ctx context.Context, term string, maxResults int) ([]string, error)
	FetchByID(ctx context.Context, pmids []string) ([]domain.Paper, error)
}

// Resolver fetches metadata for a single paper identified by DOI or
// PMID. DOIs go to CrossRef first; PubMed is the fallback since CrossRef
// lacks some clinical journals.
type Resolver struct {
	baseURL string
	client  *http.Client
	pubmed  PubMedLookup
	logger  *slog.Logger
}

var _ ports.SeedResolver = (*Resolver)(nil)

// NewResolver wires the CrossRef client and the PubMed fallback.
func NewResolver(client *http.Client, pubmed PubMedLookup, log *slog.Logger) *Resolver {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Resolver{
		baseURL: crossrefBaseURL,
		client:  client,
		pubmed:  pubmed,
		logger:  log,
	}
}

// Lookup auto-detects the identifier type and resolves it to a paper.
// The returned string is the lookup kind for seed-source bookkeeping.
func (r *Resolver) Lookup(ctx context.Context, identifier string) (domain.Paper, string, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return domain.Paper{}, "", fmt.Errorf("empty identifier")
	}

	if isPMID(identifier) {
		paper, err := r.byPMID(ctx, identifier)
		return paper, KindPMID, err
	}

	if !isDOI(identifier) {
		// Publishers mint suffixes the pattern does not anticipate, so
		// unrecognized identifiers are still tried as DOIs.
		r.debug("identifier does not match the doi pattern, trying anyway", "identifier", identifier)
	}
	paper, err := r.byDOI(ctx, cleanDOI(identifier))
	return paper, KindDOI, err
}

func (r *Resolver) byPMID(ctx context.Context, pmid string) (domain.Paper, error) {
	papers, err := r.pubmed.FetchByID(ctx, []string{pmid})
	if err != nil {
		return domain.Paper{}, fmt.Errorf("fetch pmid %s: %w", pmid, err)
	}
	if len(papers) == 0 {
		return domain.Paper{}, fmt.Errorf("pmid %s: %w", pmid, ports.ErrNotFound)
	}
	return papers[0], nil
}

func (r *Resolver) byDOI(ctx context.Context, doi string) (domain.Paper, error) {
	paper, err := r.fromCrossref(ctx, doi)
	if err == nil {
		return paper, nil
	}
	r.debug("crossref lookup failed, trying pubmed", "doi", doi, "error", err)

	ids, err := r.pubmed.SearchIDs(ctx, doi+"[DOI]", 1)
	if err != nil {
		return domain.Paper{}, fmt.Errorf("pubmed doi search %s: %w", doi, err)
	}
	if len(ids) == 0 {
		return domain.Paper{}, fmt.Errorf("doi %s: %w", doi, ports.ErrNotFound)
	}
	papers, err := r.pubmed.FetchByID(ctx, ids)
	if err != nil {
		return domain.Paper{}, fmt.Errorf("fetch pmid %s: %w", ids[0], err)
	}
	if len(papers) == 0 {
		return domain.Paper{}, fmt.Errorf("doi %s: %w", doi, ports.ErrNotFound)
	}
	return papers[0], nil
}

func (r *Resolver) fromCrossref(ctx context.Context, doi string) (domain.Paper, error) {
	endpoint := fmt.Sprintf("%s/works/%s", r.baseURL, doi)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.Paper{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "LitMonitor/1.0")

	resp, err := r.client.Do(req)
	if err != nil {
		return domain.Paper{}, fmt.Errorf("request crossref: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.Paper{}, fmt.Errorf("crossref returned %s", resp.Status)
	}

	var payload struct {
		Message crossrefWork `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return domain.Paper{}, fmt.Errorf("decode crossref response: %w", err)
	}
	return payload.Message.toPaper(doi)
}

type crossrefWork struct {
	Title           []string          `json:"title"`
	Author          []crossrefAuthor  `json:"author"`
	ContainerTitle  []string          `json:"container-title"`
	PublishedPrint  crossrefDate      `json:"published-print"`
	PublishedOnline crossrefDate      `json:"published-online"`
	Abstract        string            `json:"abstract"`
	License         []crossrefLicense `json:"license"`
}

type crossrefAuthor struct {
	Family string `json:"family"`
	Given  string `json:"given"`
}

type crossrefDate struct {
	DateParts [][]int `json:"date-parts"`
}

type crossrefLicense struct {
	URL string `json:"URL"`
}

func (w crossrefWork) toPaper(doi string) (domain.Paper, error) {
	if len(w.Title) == 0 || strings.TrimSpace(w.Title[0]) == "" {
		return domain.Paper{}, fmt.Errorf("crossref record for %s has no title", doi)
	}

	paper := domain.Paper{
		ID:       "doi:" + doi,
		Source:   "crossref",
		Title:    strings.TrimSpace(w.Title[0]),
		Abstract: stripJATS(w.Abstract),
		PubDate:  w.pubDate(),
		URL:      "https://doi.org/" + doi,
		DOI:      doi,
	}
	if len(w.ContainerTitle) > 0 {
		paper.Journal = strings.TrimSpace(w.ContainerTitle[0])
	}
	for _, author := range w.Author {
		if name := author.displayName(); name != "" {
			paper.Authors = append(paper.Authors, name)
		}
	}
	for _, lic := range w.License {
		lower := strings.ToLower(lic.URL)
		if strings.Contains(lower, "open") || strings.Contains(lower, "creativecommons") {
			paper.OpenAccess = true
			break
		}
	}
	return paper, nil
}

func (w crossrefWork) pubDate() time.Time {
	parts := w.PublishedPrint.first()
	if len(parts) == 0 {
		parts = w.PublishedOnline.first()
	}
	if len(parts) == 0 || parts[0] < 1800 {
		return time.Time{}
	}

	month, day := 1, 1
	if len(parts) > 1 && parts[1] >= 1 && parts[1] <= 12 {
		month = parts[1]
	}
	if len(parts) > 2 && parts[2] >= 1 && parts[2] <= 31 {
		day = parts[2]
	}
	return time.Date(parts[0], time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

func (d crossrefDate) first() []int {
	if len(d.DateParts) == 0 {
		return nil
	}
	return d.DateParts[0]
}

// displayName converts CrossRef's family/given split into the
// "Family Initials" form PubMed records use, so seeds from either route
// tokenize identically for feedback.
func (a crossrefAuthor) displayName() string {
	family := strings.TrimSpace(a.Family)
	if family == "" {
		return ""
	}
	var initials strings.Builder
	for _, word := range strings.Fields(a.Given) {
		runes := []rune(word)
		if len(runes) > 0 {
			initials.WriteRune(runes[0])
		}
	}
	if initials.Len() == 0 {
		return family
	}
	return family + " " + initials.String()
}

// stripJATS drops the markup CrossRef abstracts sometimes carry.
func stripJATS(abstract string) string {
	if abstract == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(abstract))
	if err != nil {
		return strings.TrimSpace(abstract)
	}
	return strings.TrimSpace(doc.Text())
}

func isPMID(identifier string) bool {
	return pmidExpr.MatchString(identifier)
}

func isDOI(identifier string) bool {
	return doiExpr.MatchString(cleanDOI(identifier))
}

func cleanDOI(identifier string) string {
	cleaned := strings.TrimSpace(identifier)
	lower := strings.ToLower(cleaned)
	for _, prefix := range []string{"https://doi.org/", "http://doi.org/", "doi:"} {
		if strings.HasPrefix(lower, prefix) {
			return cleaned[len(prefix):]
		}
	}
	return cleaned
}

func (r *Resolver) debug(msg string, args ...interface{}) {
	if r.logger != nil {
		r.logger.Debug(msg, args...)
	}
}
