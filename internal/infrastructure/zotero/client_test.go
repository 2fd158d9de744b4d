package zotero

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"LitMonitor/internal/config"
)

const pageOne = `[
  {
    "key": "ABCD1234",
    "data": {
      "title": "Cholangiocyte organoids model biliary atresia",
      "creators": [
        {"creatorType": "author", "lastName": "Bezerra", "firstName": "Jorge A"},
        {"creatorType": "author", "lastName": "Smith", "firstName": "Kate"},
        {"creatorType": "editor", "lastName": "Editor", "firstName": "Ed"}
      ],
      "DOI": "10.1038/s41591-025-1",
      "publicationTitle": "Nature Medicine",
      "date": "2026-01-15",
      "abstractNote": "Organoid model of duct obstruction.",
      "url": "https://www.nature.com/articles/s41591-025-1"
    }
  },
  {
    "key": "EFGH5678",
    "data": {
      "title": "Preprint without DOI",
      "creators": [{"creatorType": "author", "lastName": "Tanaka", "firstName": "Hiro"}],
      "journalAbbreviation": "bioRxiv",
      "date": "February 2026"
    }
  },
  {
    "key": "IJKL9012",
    "data": {"title": ""}
  }
]`

const pageTwo = `[
  {
    "key": "MNOP3456",
    "data": {
      "title": "Second page paper",
      "DOI": "10.1002/hep.2",
      "date": "2026"
    }
  }
]`

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := config.ZoteroConfig{
		APIKey:      "key-123",
		UserID:      "42",
		VersionFile: filepath.Join(t.TempDir(), ".zotero_sync_version"),
	}
	client := NewClient(cfg, server.Client(), nil)
	client.baseURL = server.URL
	return client
}

func TestFetchUpdatedPagesAndConverts(t *testing.T) {
	t.Parallel()

	var requests []*http.Request
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests = append(requests, r.Clone(context.Background()))
		w.Header().Set("Last-Modified-Version", "501")
		w.Header().Set("Total-Results", "4")
		switch r.URL.Query().Get("start") {
		case "0":
			fmt.Fprint(w, pageOne)
		default:
			fmt.Fprint(w, pageTwo)
		}
	}))

	papers, err := client.FetchUpdated(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	// The titleless item is dropped; three remain across both pages.
	if len(papers) != 3 {
		t.Fatalf("expected 3 papers, got %d", len(papers))
	}

	first := papers[0]
	if first.ID != "doi:10.1038/s41591-025-1" {
		t.Fatalf("unexpected id: %s", first.ID)
	}
	if first.Source != "zotero" || first.SeedSource != "zotero_sync" {
		t.Fatalf("unexpected source tagging: %s/%s", first.Source, first.SeedSource)
	}
	if len(first.Authors) != 2 || first.Authors[0] != "Bezerra JA" || first.Authors[1] != "Smith K" {
		t.Fatalf("unexpected authors: %v", first.Authors)
	}
	if first.Journal != "Nature Medicine" {
		t.Fatalf("unexpected journal: %s", first.Journal)
	}
	if !first.PubDate.Equal(time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected date: %v", first.PubDate)
	}
	if first.URL != "https://www.nature.com/articles/s41591-025-1" {
		t.Fatalf("unexpected url: %s", first.URL)
	}

	second := papers[1]
	if second.ID != "zotero:EFGH5678" {
		t.Fatalf("expected key fallback id, got %s", second.ID)
	}
	if second.Journal != "bioRxiv" {
		t.Fatalf("expected abbreviation fallback, got %s", second.Journal)
	}
	if !second.PubDate.Equal(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected freeform date parse: %v", second.PubDate)
	}

	third := papers[2]
	if third.URL != "https://doi.org/10.1002/hep.2" {
		t.Fatalf("expected doi url fallback, got %s", third.URL)
	}

	if len(requests) != 2 {
		t.Fatalf("expected 2 page requests, got %d", len(requests))
	}
	q := requests[0].URL.Query()
	if q.Get("itemType") != "journalArticle || preprint" {
		t.Fatalf("unexpected itemType: %q", q.Get("itemType"))
	}
	if q.Get("limit") != "100" || q.Get("sort") != "dateModified" || q.Get("direction") != "desc" {
		t.Fatalf("unexpected paging params: %v", q)
	}
	if q.Get("since") != "" {
		t.Fatalf("first sync must not send since, got %q", q.Get("since"))
	}
	if got := requests[0].Header.Get("Zotero-API-Key"); got != "key-123" {
		t.Fatalf("unexpected api key header: %s", got)
	}
	if got := requests[0].Header.Get("Zotero-API-Version"); got != "3" {
		t.Fatalf("unexpected api version header: %s", got)
	}
	if requests[1].URL.Query().Get("start") != "3" {
		t.Fatalf("expected second page to start at 3, got %s", requests[1].URL.Query().Get("start"))
	}
}

func TestCommitVersionEnablesIncrementalSync(t *testing.T) {
	t.Parallel()

	var sinceParams []string
	var statuses []int
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sinceParams = append(sinceParams, r.URL.Query().Get("since"))
		if r.URL.Query().Get("since") == "501" {
			statuses = append(statuses, http.StatusNotModified)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		statuses = append(statuses, http.StatusOK)
		w.Header().Set("Last-Modified-Version", "501")
		w.Header().Set("Total-Results", "1")
		fmt.Fprint(w, pageTwo)
	}))

	if _, err := client.FetchUpdated(context.Background()); err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if err := client.CommitVersion(); err != nil {
		t.Fatalf("commit version: %v", err)
	}

	raw, err := os.ReadFile(client.versionPath())
	if err != nil {
		t.Fatalf("read version file: %v", err)
	}
	if got, _ := strconv.Atoi(string(raw)); got != 501 {
		t.Fatalf("expected version 501 persisted, got %q", raw)
	}

	papers, err := client.FetchUpdated(context.Background())
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if len(papers) != 0 {
		t.Fatalf("expected no papers on 304, got %d", len(papers))
	}
	if sinceParams[len(sinceParams)-1] != "501" {
		t.Fatalf("expected since=501 on second sync, got %q", sinceParams[len(sinceParams)-1])
	}
	if statuses[len(statuses)-1] != http.StatusNotModified {
		t.Fatalf("expected 304 on second sync")
	}
}

func TestFetchUpdatedUncommittedVersionRepeatsWindow(t *testing.T) {
	t.Parallel()

	var sinceParams []string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sinceParams = append(sinceParams, r.URL.Query().Get("since"))
		w.Header().Set("Last-Modified-Version", "777")
		w.Header().Set("Total-Results", "1")
		fmt.Fprint(w, pageTwo)
	}))

	if _, err := client.FetchUpdated(context.Background()); err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	// No CommitVersion: the next fetch must re-request the same window.
	if _, err := client.FetchUpdated(context.Background()); err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if sinceParams[1] != "" {
		t.Fatalf("uncommitted sync must not advance the cursor, got since=%q", sinceParams[1])
	}
}

func TestFetchUpdatedTagFilter(t *testing.T) {
	t.Parallel()

	var tag string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tag = r.URL.Query().Get("tag")
		w.Header().Set("Total-Results", "0")
		fmt.Fprint(w, `[]`)
	}))
	defer server.Close()

	cfg := config.ZoteroConfig{
		APIKey:      "key",
		UserID:      "42",
		Tag:         "lit-monitor",
		VersionFile: filepath.Join(t.TempDir(), "v"),
	}
	client := NewClient(cfg, server.Client(), nil)
	client.baseURL = server.URL

	if _, err := client.FetchUpdated(context.Background()); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if tag != "lit-monitor" {
		t.Fatalf("expected tag filter, got %q", tag)
	}
}

func TestFetchUpdatedRequiresCredentials(t *testing.T) {
	t.Parallel()

	client := NewClient(config.ZoteroConfig{}, nil, nil)
	if _, err := client.FetchUpdated(context.Background()); err == nil {
		t.Fatalf("expected error without credentials")
	}
}

func TestFetchUpdatedServerError(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	if _, err := client.FetchUpdated(context.Background()); err == nil {
		t.Fatalf("expected error on 403")
	}
}

func TestParseItemDate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want time.Time
	}{
		{"2026-01-15", time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)},
		{"February 2026", time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)},
		{"2026", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"garbage", time.Time{}},
		{"", time.Time{}},
	}
	for _, tc := range cases {
		if got := parseItemDate(tc.in); !got.Equal(tc.want) {
			t.Fatalf("parseItemDate(%q): expected %v, got %v", tc.in, tc.want, got)
		}
	}
}
