package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"LitMonitor/internal/domain"
	"LitMonitor/internal/ports"
)

const (
	defaultEndpoint = "https://api.anthropic.com"
	apiVersion      = "2023-06-01"

	defaultModel     = "claude-sonnet-4-20250514"
	defaultMaxTokens = 1024
)

// Client talks to the Anthropic messages API. It serves both as the ranking
// oracle for papers and as the config advisor for feedback-driven
// suggestions.
type Client struct {
	endpoint  string
	apiKey    string
	model     string
	maxTokens int
	client    *http.Client
	logger    *slog.Logger
}

var (
	_ ports.RankingOracle = (*Client)(nil)
	_ ports.ConfigAdvisor = (*Client)(nil)
)

// New builds a client; empty endpoint, model and maxTokens fall back to
// defaults.
func New(endpoint, apiKey, model string, maxTokens int, httpClient *http.Client, logger *slog.Logger) *Client {
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	if model == "" {
		model = defaultModel
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{
		endpoint:  strings.TrimSuffix(endpoint, "/"),
		apiKey:    apiKey,
		model:     model,
		maxTokens: maxTokens,
		client:    httpClient,
		logger:    logger,
	}
}

// Rank scores one paper against the ranking context and returns the parsed
// verdict. Transport and server-side failures are marked transient, an
// unparseable reply is marked malformed.
func (c *Client) Rank(ctx context.Context, paper domain.Paper, rc domain.RankingContext) (domain.OracleVerdict, error) {
	text, err := c.complete(ctx, buildSystemPrompt(rc), buildPaperPrompt(paper))
	if err != nil {
		return domain.OracleVerdict{}, err
	}

	verdict, err := parseVerdict(text)
	if err != nil {
		c.debug("oracle reply rejected", "paper", paper.ID, "error", err)
		return domain.OracleVerdict{}, err
	}
	return verdict, nil
}

// ProposeConfig sends a feedback-analysis prompt and parses the suggestion
// array the model replies with. Unknown suggestion types are dropped.
func (c *Client) ProposeConfig(ctx context.Context, prompt string) ([]domain.ConfigSuggestion, error) {
	text, err := c.complete(ctx, suggestSystemPrompt, prompt)
	if err != nil {
		return nil, err
	}
	return parseSuggestions(text)
}

type messagesRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	System    string        `json:"system,omitempty"`
	Messages  []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (c *Client) complete(ctx context.Context, system, user string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("anthropic api key is not configured")
	}

	payload, err := json.Marshal(messagesRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    system,
		Messages:  []chatMessage{{Role: "user", Content: user}},
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ports.ErrOracleTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", ports.ErrOracleTransient, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return "", fmt.Errorf("%w: api returned %s", ports.ErrOracleTransient, resp.Status)
	default:
		return "", fmt.Errorf("%w: api returned %s: %s", ports.ErrOracleMalformed, resp.Status, truncateForLog(body))
	}

	var decoded messagesResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ports.ErrOracleMalformed, err)
	}

	var text strings.Builder
	for _, block := range decoded.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("%w: empty completion", ports.ErrOracleMalformed)
	}
	return text.String(), nil
}

func parseVerdict(text string) (domain.OracleVerdict, error) {
	var raw struct {
		Score           float64  `json:"score"`
		Summary         string   `json:"summary"`
		Rationale       string   `json:"rationale"`
		MatchedProjects []string `json:"matched_projects"`
	}
	if err := json.Unmarshal([]byte(stripFences(text)), &raw); err != nil {
		return domain.OracleVerdict{}, fmt.Errorf("%w: parse verdict: %v", ports.ErrOracleMalformed, err)
	}

	score := raw.Score
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return domain.OracleVerdict{
		Score:           score,
		Summary:         strings.TrimSpace(raw.Summary),
		Rationale:       strings.TrimSpace(raw.Rationale),
		MatchedProjects: raw.MatchedProjects,
	}, nil
}

func parseSuggestions(text string) ([]domain.ConfigSuggestion, error) {
	var raw []struct {
		Type      string          `json:"type"`
		Text      string          `json:"text"`
		Data      json.RawMessage `json:"data"`
		Rationale string          `json:"rationale"`
	}
	if err := json.Unmarshal([]byte(stripFences(text)), &raw); err != nil {
		return nil, fmt.Errorf("%w: parse suggestions: %v", ports.ErrOracleMalformed, err)
	}

	known := map[string]bool{
		domain.SuggestionSearchQuery:    true,
		domain.SuggestionProjectKeyword: true,
		domain.SuggestionWatchedAuthor:  true,
		domain.SuggestionNewProject:     true,
	}

	suggestions := make([]domain.ConfigSuggestion, 0, len(raw))
	for _, item := range raw {
		if !known[item.Type] || strings.TrimSpace(item.Text) == "" {
			continue
		}
		suggestions = append(suggestions, domain.ConfigSuggestion{
			Type:      item.Type,
			Text:      strings.TrimSpace(item.Text),
			Data:      string(item.Data),
			Rationale: strings.TrimSpace(item.Rationale),
			Status:    domain.SuggestionPending,
		})
	}
	return suggestions, nil
}

// stripFences removes a markdown code fence the model sometimes wraps JSON
// in, with or without a language tag.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if idx := strings.Index(text, "\n"); idx >= 0 {
		text = text[idx+1:]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

func truncateForLog(body []byte) string {
	const limit = 200
	s := string(body)
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}

func (c *Client) debug(msg string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}
