package parser

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"LitMonitor/internal/domain"
	"LitMonitor/internal/retry"
	"LitMonitor/internal/scanner"
)

const (
	eutilsBaseURL    = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"
	pubmedArticleURL = "https://pubmed.ncbi.nlm.nih.gov"
	pmcArticleURL    = "https://www.ncbi.nlm.nih.gov/pmc/articles"

	efetchBatchSize = 200
)

var errRateLimited = errors.New("rate limited")

var monthNumbers = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

// PubMedScanner queries NCBI E-utilities: esearch resolves each query to a
// PMID list restricted to the fetch window, efetch pulls full records in
// batches. NCBI allows 3 req/s anonymously and 10 req/s with an API key.
type PubMedScanner struct {
	client  *http.Client
	baseURL string
	apiKey  string
	email   string
	limiter *rate.Limiter
	retrier *retry.Retrier
}

// NewPubMedScanner wires an HTTP client; apiKey and email are optional and
// only widen the rate limit.
func NewPubMedScanner(client *http.Client, apiKey, email string) *PubMedScanner {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	interval := 500 * time.Millisecond
	if apiKey != "" {
		interval = 150 * time.Millisecond
	}
	retrier := retry.New(retry.Config{MaxAttempts: 3, BaseDelay: time.Second}, func(err error) bool {
		return errors.Is(err, errRateLimited)
	}, nil)

	return &PubMedScanner{
		client:  client,
		baseURL: eutilsBaseURL,
		apiKey:  apiKey,
		email:   email,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		retrier: retrier,
	}
}

// Name identifies the strategy inside the registry.
func (p *PubMedScanner) Name() string {
	return "pubmed"
}

// Scan runs every configured query against the window and fetches the union
// of matched records, deduplicated by PMID.
func (p *PubMedScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.Paper, error) {
	if len(req.Queries) == 0 {
		return nil, fmt.Errorf("no queries provided for source %s", req.SourceName)
	}

	base := req.Options["base_url"]
	if base == "" {
		base = p.baseURL
	}
	maxResults := req.MaxResults
	if maxResults <= 0 {
		maxResults = 100
	}

	seen := map[string]struct{}{}
	var pmids []string
	for _, query := range req.Queries {
		term := fmt.Sprintf("(%s) AND %s:%s[EDAT]",
			query, req.Since.Format("2006/01/02"), req.Until.Format("2006/01/02"))
		ids, err := p.search(ctx, base, term, maxResults)
		if err != nil {
			return nil, fmt.Errorf("query %q: %w", query, err)
		}
		for _, id := range ids {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			pmids = append(pmids, id)
		}
	}

	return p.fetchRecords(ctx, base, pmids)
}

// SearchIDs resolves a bare term to PMIDs with no date restriction. Seed
// lookup uses it for "{doi}[DOI]" searches.
func (p *PubMedScanner) SearchIDs(ctx context.Context, term string, maxResults int) ([]string, error) {
	return p.search(ctx, p.baseURL, term, maxResults)
}

// FetchByID pulls full records for the given PMIDs.
func (p *PubMedScanner) FetchByID(ctx context.Context, pmids []string) ([]domain.Paper, error) {
	return p.fetchRecords(ctx, p.baseURL, pmids)
}

func (p *PubMedScanner) search(ctx context.Context, base, term string, maxResults int) ([]string, error) {
	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("term", term)
	params.Set("retmax", strconv.Itoa(maxResults))
	params.Set("retmode", "json")
	params.Set("sort", "relevance")

	body, err := p.get(ctx, base+"/esearch.fcgi", params)
	if err != nil {
		return nil, err
	}

	var result struct {
		ESearchResult struct {
			IDList []string `json:"idlist"`
		} `json:"esearchresult"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode esearch response: %w", err)
	}
	return result.ESearchResult.IDList, nil
}

func (p *PubMedScanner) fetchRecords(ctx context.Context, base string, pmids []string) ([]domain.Paper, error) {
	papers := make([]domain.Paper, 0, len(pmids))

	for start := 0; start < len(pmids); start += efetchBatchSize {
		end := start + efetchBatchSize
		if end > len(pmids) {
			end = len(pmids)
		}

		params := url.Values{}
		params.Set("db", "pubmed")
		params.Set("id", strings.Join(pmids[start:end], ","))
		params.Set("retmode", "xml")

		body, err := p.get(ctx, base+"/efetch.fcgi", params)
		if err != nil {
			return nil, fmt.Errorf("efetch batch at %d: %w", start, err)
		}

		var set pubmedArticleSet
		if err := xml.Unmarshal(body, &set); err != nil {
			return nil, fmt.Errorf("decode efetch response: %w", err)
		}
		for _, record := range set.Articles {
			paper, ok := record.toPaper()
			if !ok {
				continue
			}
			papers = append(papers, paper)
		}
	}

	return papers, nil
}

func (p *PubMedScanner) get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	if p.apiKey != "" {
		params.Set("api_key", p.apiKey)
	}
	if p.email != "" {
		params.Set("email", p.email)
	}

	var body []byte
	err := p.retrier.Do(ctx, func() error {
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("User-Agent", "LitMonitor/1.0")

		resp, err := p.client.Do(req)
		if err != nil {
			return fmt.Errorf("request eutils: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("eutils returned %s: %w", resp.Status, errRateLimited)
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("eutils returned %s", resp.Status)
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		return nil
	})
	return body, err
}

type pubmedArticleSet struct {
	Articles []pubmedRecord `xml:"PubmedArticle"`
}

type pubmedRecord struct {
	PMID     string           `xml:"MedlineCitation>PMID"`
	Title    string           `xml:"MedlineCitation>Article>ArticleTitle"`
	Journal  string           `xml:"MedlineCitation>Article>Journal>Title"`
	PubDate  pubmedDate       `xml:"MedlineCitation>Article>Journal>JournalIssue>PubDate"`
	Abstract []abstractChunk  `xml:"MedlineCitation>Article>Abstract>AbstractText"`
	Authors  []pubmedAuthor   `xml:"MedlineCitation>Article>AuthorList>Author"`
	IDs      []pubmedRecordID `xml:"PubmedData>ArticleIdList>ArticleId"`
}

type abstractChunk struct {
	Label string `xml:"Label,attr"`
	Text  string `xml:",chardata"`
}

type pubmedAuthor struct {
	LastName       string `xml:"LastName"`
	ForeName       string `xml:"ForeName"`
	Initials       string `xml:"Initials"`
	CollectiveName string `xml:"CollectiveName"`
}

type pubmedRecordID struct {
	Type  string `xml:"IdType,attr"`
	Value string `xml:",chardata"`
}

type pubmedDate struct {
	Year        string `xml:"Year"`
	Month       string `xml:"Month"`
	Day         string `xml:"Day"`
	MedlineDate string `xml:"MedlineDate"`
}

func (r pubmedRecord) toPaper() (domain.Paper, bool) {
	pmid := strings.TrimSpace(r.PMID)
	title := strings.TrimSpace(r.Title)
	if pmid == "" || title == "" {
		return domain.Paper{}, false
	}

	paper := domain.Paper{
		ID:       "pmid:" + pmid,
		Source:   "pubmed",
		Title:    title,
		Journal:  strings.TrimSpace(r.Journal),
		Abstract: joinAbstract(r.Abstract),
		PubDate:  r.PubDate.toTime(),
		URL:      fmt.Sprintf("%s/%s/", pubmedArticleURL, pmid),
	}

	for _, author := range r.Authors {
		if name := author.displayName(); name != "" {
			paper.Authors = append(paper.Authors, name)
		}
	}

	for _, id := range r.IDs {
		switch strings.ToLower(id.Type) {
		case "doi":
			paper.DOI = strings.TrimSpace(id.Value)
		case "pmc":
			pmc := strings.TrimSpace(id.Value)
			if pmc != "" {
				paper.OpenAccess = true
				paper.FullTextURL = fmt.Sprintf("%s/%s/", pmcArticleURL, pmc)
			}
		}
	}

	return paper, true
}

func joinAbstract(chunks []abstractChunk) string {
	parts := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		text := strings.TrimSpace(chunk.Text)
		if text == "" {
			continue
		}
		if chunk.Label != "" {
			text = chunk.Label + ": " + text
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, "\n")
}

func (a pubmedAuthor) displayName() string {
	if a.CollectiveName != "" {
		return strings.TrimSpace(a.CollectiveName)
	}
	last := strings.TrimSpace(a.LastName)
	if last == "" {
		return ""
	}
	initials := strings.TrimSpace(a.Initials)
	if initials == "" {
		initials = strings.TrimSpace(a.ForeName)
	}
	if initials == "" {
		return last
	}
	return last + " " + initials
}

func (d pubmedDate) toTime() time.Time {
	year := parseYear(d.Year)
	if year == 0 {
		year = parseYear(d.MedlineDate)
	}
	if year == 0 {
		return time.Time{}
	}

	month := time.January
	if m := monthNumber(d.Month); m != 0 {
		month = m
	}
	day := 1
	if n, err := strconv.Atoi(strings.TrimSpace(d.Day)); err == nil && n >= 1 && n <= 31 {
		day = n
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func parseYear(s string) int {
	fields := strings.Fields(strings.TrimSpace(s))
	if len(fields) == 0 {
		return 0
	}
	year, err := strconv.Atoi(fields[0])
	if err != nil || year < 1800 {
		return 0
	}
	return year
}

func monthNumber(s string) time.Month {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 1 && n <= 12 {
		return time.Month(n)
	}
	if len(s) >= 3 {
		if m, ok := monthNumbers[strings.ToLower(s[:3])]; ok {
			return m
		}
	}
	return 0
}
