package web

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"LitMonitor/internal/domain"
)

// feedbackLinkMaxAge matches the validity window the digest links are
// generated with.
const feedbackLinkMaxAge = 7 * 24 * time.Hour

type feedbackRequest struct {
	PaperID string `json:"paperId"`
	Action  string `json:"action"`
	Source  string `json:"source"`
}

// handleFeedback appends one feedback event from the JSON API.
func (s *Server) handleFeedback(c echo.Context) error {
	var req feedbackRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	req.PaperID = strings.TrimSpace(req.PaperID)
	if req.PaperID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "paperId is required"})
	}
	action, err := parseAction(req.Action)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody(err))
	}
	origin, err := parseOrigin(req.Source)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody(err))
	}

	ev := domain.FeedbackEvent{
		PaperID:    req.PaperID,
		Action:     action,
		Origin:     origin,
		OccurredAt: s.now(),
	}
	if err := s.store.AppendFeedbackEvent(c.Request().Context(), ev); err != nil {
		return c.JSON(http.StatusInternalServerError, errorBody(err))
	}
	return c.JSON(http.StatusOK, statusOK())
}

// handleFeedbackLink serves the one-click star/dismiss links embedded in the
// digest email. The signature covers "{paper_id}:{action}" so a tampered
// action or paper id fails verification.
func (s *Server) handleFeedbackLink(c echo.Context) error {
	if s.signer == nil || !s.signer.Enabled() {
		return s.feedbackPage(c, http.StatusNotFound, "Links disabled",
			"One-click feedback links are not enabled on this server.")
	}

	paperID := c.QueryParam("paper_id")
	rawAction := c.QueryParam("action")
	ts := c.QueryParam("ts")
	sig := c.QueryParam("sig")
	if paperID == "" || rawAction == "" || ts == "" || sig == "" {
		return s.feedbackPage(c, http.StatusBadRequest, "Invalid link",
			"The link is missing required parameters.")
	}

	action, err := parseAction(rawAction)
	if err != nil {
		return s.feedbackPage(c, http.StatusBadRequest, "Invalid link",
			"The link names an unknown action.")
	}

	if err := s.signer.Verify(paperID+":"+string(action), ts, sig, feedbackLinkMaxAge, s.now()); err != nil {
		s.warn("feedback link rejected", "paper_id", paperID, "error", err)
		return s.feedbackPage(c, http.StatusForbidden, "Link rejected",
			"This link is invalid or has expired.")
	}

	ctx := c.Request().Context()
	ev := domain.FeedbackEvent{
		PaperID:    paperID,
		Action:     action,
		Origin:     domain.OriginEmail,
		OccurredAt: s.now(),
	}
	if err := s.store.AppendFeedbackEvent(ctx, ev); err != nil {
		return s.feedbackPage(c, http.StatusInternalServerError, "Something went wrong",
			"The feedback could not be recorded. Try again later.")
	}

	title := paperID
	if paper, err := s.store.PaperByID(ctx, paperID); err == nil && paper.Title != "" {
		title = paper.Title
	}

	heading := "Paper starred"
	detail := "It will count as a positive signal in future rankings."
	if action == domain.ActionDismiss {
		heading = "Paper dismissed"
		detail = "Similar papers will rank lower in future digests."
	}
	return s.renderFeedbackPage(c, http.StatusOK, heading, title, detail)
}

func parseAction(raw string) (domain.FeedbackAction, error) {
	switch domain.FeedbackAction(strings.ToLower(strings.TrimSpace(raw))) {
	case domain.ActionStar:
		return domain.ActionStar, nil
	case domain.ActionDismiss:
		return domain.ActionDismiss, nil
	}
	return "", fmt.Errorf("unknown action %q", raw)
}

func parseOrigin(raw string) (domain.FeedbackOrigin, error) {
	switch domain.FeedbackOrigin(strings.ToLower(strings.TrimSpace(raw))) {
	case "", domain.OriginWeb:
		return domain.OriginWeb, nil
	case domain.OriginEmail:
		return domain.OriginEmail, nil
	case domain.OriginSeed:
		return domain.OriginSeed, nil
	}
	return "", fmt.Errorf("unknown feedback source %q", raw)
}

const feedbackPageHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Heading}}</title>
<style>
body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; background: #f5f7fa; margin: 0; }
.card { max-width: 480px; margin: 80px auto; background: white; border-radius: 8px; padding: 32px; box-shadow: 0 1px 3px rgba(0,0,0,0.1); }
h1 { font-size: 20px; margin: 0 0 12px 0; color: #1a1a2e; }
.title { font-style: italic; color: #444; margin: 0 0 12px 0; }
p { color: #555; line-height: 1.5; margin: 0 0 8px 0; }
.note { font-size: 13px; color: #999; margin-top: 20px; }
</style>
</head>
<body>
<div class="card">
<h1>{{.Heading}}</h1>
{{if .Title}}<p class="title">{{.Title}}</p>{{end}}
<p>{{.Detail}}</p>
<p class="note">You can close this tab.</p>
</div>
</body>
</html>
`

var feedbackPageTemplate = template.Must(template.New("feedback").Parse(feedbackPageHTML))

type feedbackPageData struct {
	Heading string
	Title   string
	Detail  string
}

func (s *Server) feedbackPage(c echo.Context, status int, heading, detail string) error {
	return s.renderFeedbackPage(c, status, heading, "", detail)
}

func (s *Server) renderFeedbackPage(c echo.Context, status int, heading, title, detail string) error {
	var buf bytes.Buffer
	if err := feedbackPageTemplate.Execute(&buf, feedbackPageData{Heading: heading, Title: title, Detail: detail}); err != nil {
		return c.String(http.StatusInternalServerError, "render confirmation page")
	}
	return c.HTML(status, buf.String())
}

func (s *Server) warn(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
