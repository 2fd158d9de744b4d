package lookup

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"LitMonitor/internal/domain"
	"LitMonitor/internal/ports"
)

type stubPubMed struct {
	searchTerms []string
	searchIDs   []string
	searchErr   error

	fetchCalls [][]string
	papers     []domain.Paper
	fetchErr   error
}

func (s *stubPubMed) SearchIDs(_ context.Context, term string, _ int) ([]string, error) {
	s.searchTerms = append(s.searchTerms, term)
	return s.searchIDs, s.searchErr
}

func (s *stubPubMed) FetchByID(_ context.Context, pmids []string) ([]domain.Paper, error) {
	s.fetchCalls = append(s.fetchCalls, pmids)
	return s.papers, s.fetchErr
}

const crossrefFixture = `{
  "message": {
    "title": ["Hepatic organoid engraftment in a biliary atresia model"],
    "author": [
      {"family": "Smith", "given": "John Kevin"},
      {"family": "Tanaka", "given": "Hiro"},
      {"given": "Orphan"}
    ],
    "container-title": ["Nature Medicine"],
    "published-print": {"date-parts": [[2026, 2, 24]]},
    "abstract": "<jats:p>Organoids engrafted <jats:italic>in vivo</jats:italic> for 12 weeks.</jats:p>",
    "license": [{"URL": "https://creativecommons.org/licenses/by/4.0/"}]
  }
}`

func newTestResolver(t *testing.T, handler http.Handler, pubmed PubMedLookup) *Resolver {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	resolver := NewResolver(server.Client(), pubmed, nil)
	resolver.baseURL = server.URL
	return resolver
}

func TestLookupDOIViaCrossref(t *testing.T) {
	t.Parallel()

	var gotPath string
	pubmed := &stubPubMed{}
	resolver := newTestResolver(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(crossrefFixture))
	}), pubmed)

	paper, kind, err := resolver.Lookup(context.Background(), "https://doi.org/10.1038/s41591-026-1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if kind != KindDOI {
		t.Fatalf("expected %s, got %s", KindDOI, kind)
	}
	if gotPath != "/works/10.1038/s41591-026-1" {
		t.Fatalf("unexpected crossref path: %s", gotPath)
	}

	if paper.ID != "doi:10.1038/s41591-026-1" {
		t.Fatalf("unexpected id: %s", paper.ID)
	}
	if paper.Source != "crossref" {
		t.Fatalf("unexpected source: %s", paper.Source)
	}
	if paper.Title != "Hepatic organoid engraftment in a biliary atresia model" {
		t.Fatalf("unexpected title: %s", paper.Title)
	}
	if len(paper.Authors) != 2 || paper.Authors[0] != "Smith JK" || paper.Authors[1] != "Tanaka H" {
		t.Fatalf("unexpected authors: %v", paper.Authors)
	}
	if paper.Journal != "Nature Medicine" {
		t.Fatalf("unexpected journal: %s", paper.Journal)
	}
	if !paper.PubDate.Equal(time.Date(2026, 2, 24, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected pub date: %v", paper.PubDate)
	}
	if paper.Abstract != "Organoids engrafted in vivo for 12 weeks." {
		t.Fatalf("expected jats markup stripped, got %q", paper.Abstract)
	}
	if !paper.OpenAccess {
		t.Fatalf("expected open access from creativecommons license")
	}
	if paper.URL != "https://doi.org/10.1038/s41591-026-1" {
		t.Fatalf("unexpected url: %s", paper.URL)
	}

	if len(pubmed.searchTerms) != 0 || len(pubmed.fetchCalls) != 0 {
		t.Fatalf("pubmed fallback should not run on crossref success")
	}
}

func TestLookupDOIFallsBackToPubMed(t *testing.T) {
	t.Parallel()

	pubmed := &stubPubMed{
		searchIDs: []string{"12345"},
		papers:    []domain.Paper{{ID: "pmid:12345", Title: "Fallback paper"}},
	}
	resolver := newTestResolver(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}), pubmed)

	paper, kind, err := resolver.Lookup(context.Background(), "10.1002/hep.99999")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if kind != KindDOI {
		t.Fatalf("expected %s, got %s", KindDOI, kind)
	}
	if paper.ID != "pmid:12345" {
		t.Fatalf("expected pubmed fallback result, got %s", paper.ID)
	}
	if len(pubmed.searchTerms) != 1 || pubmed.searchTerms[0] != "10.1002/hep.99999[DOI]" {
		t.Fatalf("unexpected search terms: %v", pubmed.searchTerms)
	}
	if len(pubmed.fetchCalls) != 1 || pubmed.fetchCalls[0][0] != "12345" {
		t.Fatalf("unexpected fetch calls: %v", pubmed.fetchCalls)
	}
}

func TestLookupDOINotFoundAnywhere(t *testing.T) {
	t.Parallel()

	resolver := newTestResolver(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}), &stubPubMed{})

	_, _, err := resolver.Lookup(context.Background(), "10.1002/hep.404")
	if !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLookupPMID(t *testing.T) {
	t.Parallel()

	pubmed := &stubPubMed{
		papers: []domain.Paper{{ID: "pmid:98765", Title: "Direct PMID fetch"}},
	}
	resolver := NewResolver(nil, pubmed, nil)

	paper, kind, err := resolver.Lookup(context.Background(), " 98765 ")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if kind != KindPMID {
		t.Fatalf("expected %s, got %s", KindPMID, kind)
	}
	if paper.ID != "pmid:98765" {
		t.Fatalf("unexpected paper: %s", paper.ID)
	}
	if len(pubmed.fetchCalls) != 1 || pubmed.fetchCalls[0][0] != "98765" {
		t.Fatalf("unexpected fetch calls: %v", pubmed.fetchCalls)
	}
}

func TestLookupPMIDNotFound(t *testing.T) {
	t.Parallel()

	resolver := NewResolver(nil, &stubPubMed{}, nil)
	_, _, err := resolver.Lookup(context.Background(), "11111")
	if !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLookupEmptyIdentifier(t *testing.T) {
	t.Parallel()

	resolver := NewResolver(nil, &stubPubMed{}, nil)
	if _, _, err := resolver.Lookup(context.Background(), "   "); err == nil {
		t.Fatalf("expected error for empty identifier")
	}
}

func TestIdentifierClassification(t *testing.T) {
	t.Parallel()

	cases := []struct {
		identifier string
		pmid       bool
		doi        bool
		cleaned    string
	}{
		{"12345", true, false, "12345"},
		{"10.1038/s41591-026-1", false, true, "10.1038/s41591-026-1"},
		{"https://doi.org/10.1038/s41591-026-1", false, true, "10.1038/s41591-026-1"},
		{"DOI:10.1002/hep.123", false, true, "10.1002/hep.123"},
		{"10.1002/with space", false, false, "10.1002/with space"},
		{"not-an-id", false, false, "not-an-id"},
	}
	for _, tc := range cases {
		if got := isPMID(tc.identifier); got != tc.pmid {
			t.Fatalf("isPMID(%q): expected %v, got %v", tc.identifier, tc.pmid, got)
		}
		if got := isDOI(tc.identifier); got != tc.doi {
			t.Fatalf("isDOI(%q): expected %v, got %v", tc.identifier, tc.doi, got)
		}
		if got := cleanDOI(tc.identifier); got != tc.cleaned {
			t.Fatalf("cleanDOI(%q): expected %q, got %q", tc.identifier, tc.cleaned, got)
		}
	}
}

func TestCrossrefDateFallbacks(t *testing.T) {
	t.Parallel()

	work := crossrefWork{
		Title:           []string{"Dated"},
		PublishedOnline: crossrefDate{DateParts: [][]int{{2026, 2}}},
	}
	paper, err := work.toPaper("10.1/x")
	if err != nil {
		t.Fatalf("toPaper: %v", err)
	}
	if !paper.PubDate.Equal(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected month precision date, got %v", paper.PubDate)
	}

	work.PublishedOnline = crossrefDate{DateParts: [][]int{{2026}}}
	paper, _ = work.toPaper("10.1/x")
	if !paper.PubDate.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected year precision date, got %v", paper.PubDate)
	}

	work.PublishedOnline = crossrefDate{}
	paper, _ = work.toPaper("10.1/x")
	if !paper.PubDate.IsZero() {
		t.Fatalf("expected zero date, got %v", paper.PubDate)
	}
}

func TestCrossrefRecordWithoutTitle(t *testing.T) {
	t.Parallel()

	pubmed := &stubPubMed{searchIDs: []string{"7"}, papers: []domain.Paper{{ID: "pmid:7", Title: "t"}}}
	resolver := newTestResolver(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"message": {"title": []}}`))
	}), pubmed)

	paper, _, err := resolver.Lookup(context.Background(), "10.1002/hep.1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if paper.ID != "pmid:7" {
		t.Fatalf("expected fallback on titleless record, got %s", paper.ID)
	}
}
