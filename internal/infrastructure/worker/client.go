package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"LitMonitor/internal/config"
	"LitMonitor/internal/domain"
	"LitMonitor/internal/ports"
)

// Client pulls one-click feedback collected by the edge worker. Entries
// accumulate in the worker's KV store until the next pipeline run syncs
// and acknowledges them.
type Client struct {
	baseURL     string
	feedbackKey string
	client      *http.Client
	logger      *slog.Logger
	clock       func() time.Time
}

var _ ports.FeedbackPuller = (*Client)(nil)

// NewClient wires the worker endpoints from config.
func NewClient(cfg config.WorkerConfig, client *http.Client, log *slog.Logger) *Client {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL:     strings.TrimSuffix(cfg.URL, "/"),
		feedbackKey: cfg.FeedbackKey,
		client:      client,
		logger:      log,
		clock:       time.Now,
	}
}

// Enabled reports whether the worker sync is configured. An unconfigured
// worker is not an error; email links are simply absent.
func (c *Client) Enabled() bool {
	return c.baseURL != "" && c.feedbackKey != ""
}

type pendingResponse struct {
	Entries []pendingEntry `json:"entries"`
}

type pendingEntry struct {
	PaperID string `json:"paper_id"`
	Action  string `json:"action"`
	Key     string `json:"key"`
}

// PendingFeedback fetches unacknowledged feedback entries. The worker
// does not record event times, so entries are stamped at sync time.
func (c *Client) PendingFeedback(ctx context.Context) ([]domain.PendingFeedback, error) {
	if !c.Enabled() {
		return nil, nil
	}

	endpoint := fmt.Sprintf("%s/feedback/pending?key=%s", c.baseURL, url.QueryEscape(c.feedbackKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request pending feedback: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("worker returned %s", resp.Status)
	}

	var payload pendingResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode pending feedback: %w", err)
	}

	now := c.clock().UTC()
	var pending []domain.PendingFeedback
	for _, entry := range payload.Entries {
		action := domain.FeedbackAction(entry.Action)
		if entry.PaperID == "" || (action != domain.ActionStar && action != domain.ActionDismiss) {
			c.warn("skipping malformed feedback entry", "paper", entry.PaperID, "action", entry.Action)
			continue
		}
		pending = append(pending, domain.PendingFeedback{
			Key:        entry.Key,
			PaperID:    entry.PaperID,
			Action:     action,
			OccurredAt: now,
		})
	}
	return pending, nil
}

// Acknowledge marks entries as processed so the worker drops them. Best
// effort: a failed ack only means the entries are seen again next sync,
// and re-applying feedback is idempotent at the aggregate level.
func (c *Client) Acknowledge(ctx context.Context, keys []string) error {
	if !c.Enabled() || len(keys) == 0 {
		return nil
	}

	body, err := json.Marshal(map[string]interface{}{
		"keys": keys,
		"key":  c.feedbackKey,
	})
	if err != nil {
		return fmt.Errorf("encode ack: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/feedback/ack", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request ack: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("worker returned %s", resp.Status)
	}
	return nil
}

func (c *Client) warn(msg string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}
