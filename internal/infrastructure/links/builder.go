package links

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"LitMonitor/internal/domain"
)

const (
	maxLinkAuthors       = 20
	maxLinkAbstractRunes = 500
)

// Builder renders the signed URLs embedded in digest emails: one-click
// Zotero saves and star/dismiss feedback actions, both served by the edge
// worker.
type Builder struct {
	baseURL string
	signer  *Signer
	clock   func() time.Time
}

// NewBuilder wires the worker base URL and signer. Either being unset
// degrades links to their unsigned fallbacks.
func NewBuilder(baseURL string, signer *Signer) *Builder {
	if signer == nil {
		signer = NewSigner("")
	}
	return &Builder{
		baseURL: baseURL,
		signer:  signer,
		clock:   time.Now,
	}
}

// SetClock overrides the timestamp source for reproducible output.
func (b *Builder) SetClock(clock func() time.Time) {
	if clock != nil {
		b.clock = clock
	}
}

type zoteroMetadata struct {
	Title    string   `json:"title"`
	Authors  []string `json:"authors"`
	Journal  string   `json:"journal"`
	Date     string   `json:"date"`
	DOI      string   `json:"doi"`
	URL      string   `json:"url"`
	Abstract string   `json:"abstract"`
}

// ZoteroAddURL returns a signed one-click save link for the paper. Without a
// worker URL and secret it falls back to the DOI resolver or the paper page.
func (b *Builder) ZoteroAddURL(paper domain.Paper) string {
	if b.baseURL == "" || !b.signer.Enabled() {
		if paper.DOI != "" {
			return "https://doi.org/" + paper.DOI
		}
		return paper.URL
	}

	authors := paper.Authors
	if len(authors) > maxLinkAuthors {
		authors = authors[:maxLinkAuthors]
	}
	date := ""
	if !paper.PubDate.IsZero() {
		date = paper.PubDate.Format("2006-01-02")
	}
	payload, err := json.Marshal(zoteroMetadata{
		Title:    paper.Title,
		Authors:  authors,
		Journal:  paper.Journal,
		Date:     date,
		DOI:      paper.DOI,
		URL:      paper.URL,
		Abstract: truncateRunes(paper.Abstract, maxLinkAbstractRunes),
	})
	if err != nil {
		return paper.URL
	}

	encoded := base64.RawURLEncoding.EncodeToString(payload)
	ts := b.timestamp()
	return fmt.Sprintf("%s/add?data=%s&ts=%s&sig=%s", b.baseURL, encoded, ts, b.signer.Sign(encoded, ts))
}

// FeedbackURL returns a signed star or dismiss link for the paper, or an
// empty string when signing is not configured. The signed data is
// "{paper_id}:{action}"; paper_id and action travel as separate query
// parameters so the handler never has to split IDs that contain colons.
func (b *Builder) FeedbackURL(paperID string, action domain.FeedbackAction) string {
	if b.baseURL == "" || !b.signer.Enabled() {
		return ""
	}
	data := paperID + ":" + string(action)
	ts := b.timestamp()
	return fmt.Sprintf("%s/feedback?paper_id=%s&action=%s&ts=%s&sig=%s",
		b.baseURL, url.QueryEscape(paperID), url.QueryEscape(string(action)), ts, b.signer.Sign(data, ts))
}

func (b *Builder) timestamp() string {
	return fmt.Sprintf("%d", b.clock().UnixMilli())
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
