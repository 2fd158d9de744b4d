package zotero

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"LitMonitor/internal/config"
	"LitMonitor/internal/domain"
	"LitMonitor/internal/ports"
)

const (
	defaultBaseURL = "https://api.zotero.org"
	pageSize       = 100
)

// seedSource is recorded on papers imported from the library.
const seedSource = "zotero_sync"

// Client syncs journal articles and preprints from a Zotero user library.
// Syncs are incremental: the library version from the last run is kept in
// a cursor file and sent as ?since= so unchanged items are never refetched.
type Client struct {
	baseURL string
	cfg     config.ZoteroConfig
	client  *http.Client
	logger  *slog.Logger

	// Version observed by the last FetchUpdated, persisted by CommitVersion.
	pendingVersion int
}

var _ ports.LibrarySource = (*Client)(nil)

// NewClient wires the Zotero API client from config.
func NewClient(cfg config.ZoteroConfig, client *http.Client, log *slog.Logger) *Client {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL: defaultBaseURL,
		cfg:     cfg,
		client:  client,
		logger:  log,
	}
}

// FetchUpdated pulls items modified since the stored library version and
// converts them to seed paper candidates.
func (c *Client) FetchUpdated(ctx context.Context) ([]domain.Paper, error) {
	if c.cfg.APIKey == "" || c.cfg.UserID == "" {
		return nil, fmt.Errorf("zotero sync is not configured: set zotero.apiKey and zotero.userId")
	}

	lastVersion := c.loadVersion()
	c.pendingVersion = lastVersion

	var papers []domain.Paper
	start := 0
	for {
		items, header, err := c.fetchPage(ctx, lastVersion, start)
		if err != nil {
			return nil, err
		}
		if header.notModified || len(items) == 0 {
			break
		}
		if header.version > c.pendingVersion {
			c.pendingVersion = header.version
		}

		for _, item := range items {
			paper, ok := item.toPaper()
			if !ok {
				continue
			}
			papers = append(papers, paper)
		}

		start += len(items)
		if start >= header.total {
			break
		}
	}

	c.debug("zotero fetch complete", "items", len(papers), "since", lastVersion, "version", c.pendingVersion)
	return papers, nil
}

// CommitVersion persists the library version seen by the last fetch. The
// pipeline calls it after the seeds are stored so a store failure keeps
// the window open for the next run.
func (c *Client) CommitVersion() error {
	if c.pendingVersion <= 0 || c.pendingVersion == c.loadVersion() {
		return nil
	}
	path := c.versionPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create version dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(c.pendingVersion)), 0o644); err != nil {
		return fmt.Errorf("write sync version: %w", err)
	}
	return nil
}

type pageHeader struct {
	notModified bool
	version     int
	total       int
}

func (c *Client) fetchPage(ctx context.Context, since, start int) ([]zoteroItem, pageHeader, error) {
	params := url.Values{}
	params.Set("itemType", "journalArticle || preprint")
	params.Set("format", "json")
	params.Set("limit", strconv.Itoa(pageSize))
	params.Set("sort", "dateModified")
	params.Set("direction", "desc")
	params.Set("start", strconv.Itoa(start))
	if c.cfg.Tag != "" {
		params.Set("tag", c.cfg.Tag)
	}
	if since > 0 {
		params.Set("since", strconv.Itoa(since))
	}

	endpoint := fmt.Sprintf("%s/users/%s/items?%s", c.baseURL, c.cfg.UserID, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, pageHeader{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Zotero-API-Key", c.cfg.APIKey)
	req.Header.Set("Zotero-API-Version", "3")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, pageHeader{}, fmt.Errorf("request zotero: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return nil, pageHeader{notModified: true}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, pageHeader{}, fmt.Errorf("zotero returned %s", resp.Status)
	}

	header := pageHeader{
		version: atoiOrZero(resp.Header.Get("Last-Modified-Version")),
		total:   atoiOrZero(resp.Header.Get("Total-Results")),
	}

	var items []zoteroItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, pageHeader{}, fmt.Errorf("decode zotero response: %w", err)
	}
	return items, header, nil
}

type zoteroItem struct {
	Key  string     `json:"key"`
	Data zoteroData `json:"data"`
}

type zoteroData struct {
	Title               string          `json:"title"`
	Creators            []zoteroCreator `json:"creators"`
	DOI                 string          `json:"DOI"`
	PublicationTitle    string          `json:"publicationTitle"`
	JournalAbbreviation string          `json:"journalAbbreviation"`
	Date                string          `json:"date"`
	AbstractNote        string          `json:"abstractNote"`
	URL                 string          `json:"url"`
}

type zoteroCreator struct {
	CreatorType string `json:"creatorType"`
	LastName    string `json:"lastName"`
	FirstName   string `json:"firstName"`
}

func (i zoteroItem) toPaper() (domain.Paper, bool) {
	title := strings.TrimSpace(i.Data.Title)
	if title == "" {
		return domain.Paper{}, false
	}

	doi := strings.TrimSpace(i.Data.DOI)
	id := "zotero:" + i.Key
	if doi != "" {
		id = "doi:" + doi
	}

	pageURL := i.Data.URL
	if pageURL == "" && doi != "" {
		pageURL = "https://doi.org/" + doi
	}

	journal := i.Data.PublicationTitle
	if journal == "" {
		journal = i.Data.JournalAbbreviation
	}

	paper := domain.Paper{
		ID:         id,
		Source:     "zotero",
		Title:      title,
		Journal:    strings.TrimSpace(journal),
		Abstract:   i.Data.AbstractNote,
		PubDate:    parseItemDate(i.Data.Date),
		URL:        pageURL,
		DOI:        doi,
		SeedSource: seedSource,
	}
	for _, creator := range i.Data.Creators {
		if creator.CreatorType != "author" {
			continue
		}
		if name := creator.displayName(); name != "" {
			paper.Authors = append(paper.Authors, name)
		}
	}
	return paper, true
}

func (c zoteroCreator) displayName() string {
	last := strings.TrimSpace(c.LastName)
	if last == "" {
		return ""
	}
	var initials strings.Builder
	for _, word := range strings.Fields(c.FirstName) {
		runes := []rune(word)
		if len(runes) > 0 {
			initials.WriteRune(runes[0])
		}
	}
	if initials.Len() == 0 {
		return last
	}
	return last + " " + initials.String()
}

// Zotero item dates are freeform; try the common shapes and give up.
var itemDateLayouts = []string{
	"2006-01-02",
	"2006-1-2",
	"January 2, 2006",
	"January 2006",
	"2006-01",
	"2006",
}

func parseItemDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range itemDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func (c *Client) versionPath() string {
	if c.cfg.VersionFile != "" {
		return c.cfg.VersionFile
	}
	return filepath.Join("data", ".zotero_sync_version")
}

func (c *Client) loadVersion() int {
	raw, err := os.ReadFile(c.versionPath())
	if err != nil {
		return 0
	}
	return atoiOrZero(strings.TrimSpace(string(raw)))
}

func atoiOrZero(s string) int {
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

func (c *Client) debug(msg string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}
