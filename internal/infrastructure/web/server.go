// Package web hosts the configuration editor API and the feedback
// endpoints, including the one-click handler behind signed email links.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"LitMonitor/internal/config"
	"LitMonitor/internal/domain"
	"LitMonitor/internal/infrastructure/links"
	"LitMonitor/internal/ports"
)

const recentRunLimit = 5

// Store is the persistence surface the HTTP handlers read and write.
type Store interface {
	ports.FeedbackLog
	ports.RunLog
	ports.SuggestionStore
	ports.StatsProvider
	PaperByID(ctx context.Context, id string) (domain.Paper, error)
}

// Server wires the echo router to the store and config file.
type Server struct {
	addr       string
	configPath string
	store      Store
	signer     *links.Signer
	logger     *slog.Logger
	router     *echo.Echo
	now        func() time.Time
}

// NewServer builds the router with all routes registered. configPath is the
// YAML file the editor endpoints rewrite; signer verifies one-click links.
func NewServer(cfg config.WebConfig, configPath string, store Store, signer *links.Signer, logger *slog.Logger) *Server {
	s := &Server{
		addr:       cfg.Addr,
		configPath: configPath,
		store:      store,
		signer:     signer,
		logger:     logger,
		now:        time.Now,
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	if logger != nil {
		e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
			LogStatus:   true,
			LogURI:      true,
			LogError:    true,
			LogMethod:   true,
			LogLatency:  true,
			HandleError: true,
			LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
				if v.Error == nil {
					logger.Info("request completed",
						"method", v.Method,
						"uri", v.URI,
						"status", v.Status,
						"latency_ms", v.Latency.Milliseconds())
				} else {
					logger.Error("request failed",
						"method", v.Method,
						"uri", v.URI,
						"status", v.Status,
						"latency_ms", v.Latency.Milliseconds(),
						"error", v.Error.Error())
				}
				return nil
			},
		}))
	}
	e.Use(middleware.Recover())

	e.GET("/healthz", s.handleHealthz)

	e.GET("/api/config", s.handleGetConfig)
	e.PUT("/api/config", s.handlePutConfig)
	e.POST("/api/queries", s.handleUpdateQueries)
	e.POST("/api/authors", s.handleUpdateAuthors)
	e.POST("/api/projects", s.handleUpdateProjects)
	e.POST("/api/journals", s.handleUpdateJournals)
	e.POST("/api/settings", s.handleUpdateSettings)
	e.GET("/api/test-config", s.handleTestConfig)

	e.POST("/api/feedback", s.handleFeedback)
	e.GET("/feedback", s.handleFeedbackLink)

	e.GET("/api/stats", s.handleStats)
	e.GET("/api/suggestions", s.handleSuggestions)
	e.POST("/api/suggestions/:id/resolve", s.handleResolveSuggestion)

	s.router = e
	return s
}

// Start blocks serving HTTP until Shutdown is called. Returns
// http.ErrServerClosed after a clean shutdown.
func (s *Server) Start() error {
	return s.router.Start(s.addr)
}

// Shutdown stops the server, waiting for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.router.Shutdown(ctx)
}

func (s *Server) handleHealthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type statsResponse struct {
	Stats      statsBody `json:"stats"`
	RecentRuns []runBody `json:"recentRuns"`
}

type statsBody struct {
	TotalPapers  int            `json:"totalPapers"`
	BySource     map[string]int `json:"bySource"`
	RankedPapers int            `json:"rankedPapers"`
	HighPriority int            `json:"highPriority"`
	TotalRuns    int            `json:"totalRuns"`
	Starred      int            `json:"starred"`
	Dismissed    int            `json:"dismissed"`
	Seeds        int            `json:"seeds"`
}

type runBody struct {
	Date         string `json:"date"`
	PapersFound  int    `json:"papersFound"`
	NewPapers    int    `json:"newPapers"`
	HighPriority int    `json:"highPriority"`
}

func (s *Server) handleStats(c echo.Context) error {
	ctx := c.Request().Context()

	stats, err := s.store.Stats(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorBody(err))
	}
	runs, err := s.store.SearchRuns(ctx, recentRunLimit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorBody(err))
	}

	resp := statsResponse{
		Stats: statsBody{
			TotalPapers:  stats.TotalPapers,
			BySource:     stats.BySource,
			RankedPapers: stats.RankedPapers,
			HighPriority: stats.HighPriority,
			TotalRuns:    stats.TotalRuns,
			Starred:      stats.Starred,
			Dismissed:    stats.Dismissed,
			Seeds:        stats.Seeds,
		},
		RecentRuns: make([]runBody, 0, len(runs)),
	}
	for _, run := range runs {
		resp.RecentRuns = append(resp.RecentRuns, runBody{
			Date:         run.RunAt.Format(time.RFC3339),
			PapersFound:  run.PapersFound,
			NewPapers:    run.NewPapers,
			HighPriority: run.HighPriority,
		})
	}
	return c.JSON(http.StatusOK, resp)
}

type suggestionBody struct {
	ID        int64  `json:"id"`
	Type      string `json:"type"`
	Text      string `json:"text"`
	Data      string `json:"data"`
	Rationale string `json:"rationale"`
	Status    string `json:"status"`
	CreatedAt string `json:"createdAt"`
}

func (s *Server) handleSuggestions(c echo.Context) error {
	pending, err := s.store.PendingSuggestions(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorBody(err))
	}

	body := make([]suggestionBody, 0, len(pending))
	for _, sg := range pending {
		body = append(body, suggestionBody{
			ID:        sg.ID,
			Type:      sg.Type,
			Text:      sg.Text,
			Data:      sg.Data,
			Rationale: sg.Rationale,
			Status:    sg.Status,
			CreatedAt: sg.CreatedAt.Format(time.RFC3339),
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"suggestions": body})
}

func (s *Server) handleResolveSuggestion(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "suggestion id must be numeric"})
	}

	var body struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if body.Status != domain.SuggestionApplied && body.Status != domain.SuggestionDismissed {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "status must be applied or dismissed"})
	}

	if err := s.store.ResolveSuggestion(c.Request().Context(), id, body.Status); err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return c.JSON(http.StatusNotFound, errorBody(err))
		}
		return c.JSON(http.StatusInternalServerError, errorBody(err))
	}
	return c.JSON(http.StatusOK, statusOK())
}

func statusOK() map[string]string {
	return map[string]string{"status": "ok"}
}

func errorBody(err error) map[string]string {
	return map[string]string{"error": err.Error()}
}
