package web

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"
	"gopkg.in/yaml.v3"

	"LitMonitor/internal/config"
)

// editableConfig is the slice of the YAML file the editor may change.
// Credentials and delivery settings stay in the file or environment only.
type editableConfig struct {
	Queries        []string      `json:"queries"`
	WatchedAuthors []string      `json:"watchedAuthors"`
	Projects       []projectBody `json:"projects"`
	JournalWeights []journalBody `json:"journalWeights"`
	Settings       settingsBody  `json:"settings"`
}

type projectBody struct {
	Name     string   `json:"name" yaml:"name"`
	Keywords []string `json:"keywords" yaml:"keywords"`
}

type journalBody struct {
	Weight   float64  `json:"weight" yaml:"weight"`
	Journals []string `json:"journals" yaml:"journals"`
}

// settingsBody carries the tunable knobs surfaced by the editor. Zero values
// mean "leave the stored setting alone" so partial payloads are safe.
type settingsBody struct {
	DaysLookback       int     `json:"daysLookback"`
	MaxResultsPerQuery int     `json:"maxResultsPerQuery"`
	MinRelevanceScore  float64 `json:"minRelevanceScore"`
}

// handleGetConfig returns the effective editable sections: defaults merged
// with the config file, so a fresh install still shows usable values.
func (s *Server) handleGetConfig(c echo.Context) error {
	cfg := config.LoadPath(s.configPath)

	resp := editableConfig{
		Queries:        cfg.Search.Queries,
		WatchedAuthors: cfg.WatchedAuthors,
		Projects:       projectBodies(cfg.Projects),
		JournalWeights: journalBodies(cfg.Journals),
		Settings: settingsBody{
			DaysLookback:       cfg.Search.DaysLookback,
			MaxResultsPerQuery: cfg.Search.MaxResultsPerQuery,
			MinRelevanceScore:  cfg.Ranking.MinRelevanceScore,
		},
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handlePutConfig(c echo.Context) error {
	var payload editableConfig
	if err := c.Bind(&payload); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	payload.normalize()
	if err := payload.validate(); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody(err))
	}

	return s.patchConfig(c, func(doc map[string]any) {
		setSearchValue(doc, "queries", payload.Queries)
		doc["watchedAuthors"] = payload.WatchedAuthors
		doc["projects"] = payload.Projects
		doc["journalWeights"] = payload.JournalWeights
		applySettings(doc, payload.Settings)
	})
}

func (s *Server) handleUpdateQueries(c echo.Context) error {
	var body struct {
		Queries []string `json:"queries"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	queries := cleanList(body.Queries)
	return s.patchConfig(c, func(doc map[string]any) {
		setSearchValue(doc, "queries", queries)
	})
}

func (s *Server) handleUpdateAuthors(c echo.Context) error {
	var body struct {
		Authors []string `json:"authors"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	authors := cleanList(body.Authors)
	return s.patchConfig(c, func(doc map[string]any) {
		doc["watchedAuthors"] = authors
	})
}

func (s *Server) handleUpdateProjects(c echo.Context) error {
	var body struct {
		Projects []projectBody `json:"projects"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	for i := range body.Projects {
		body.Projects[i].Name = strings.TrimSpace(body.Projects[i].Name)
		body.Projects[i].Keywords = cleanList(body.Projects[i].Keywords)
		if body.Projects[i].Name == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "project name is required"})
		}
	}
	return s.patchConfig(c, func(doc map[string]any) {
		doc["projects"] = body.Projects
	})
}

func (s *Server) handleUpdateJournals(c echo.Context) error {
	var body struct {
		JournalWeights []journalBody `json:"journalWeights"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	for i := range body.JournalWeights {
		body.JournalWeights[i].Journals = cleanList(body.JournalWeights[i].Journals)
		if body.JournalWeights[i].Weight <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "journal weight must be positive"})
		}
	}
	return s.patchConfig(c, func(doc map[string]any) {
		doc["journalWeights"] = body.JournalWeights
	})
}

func (s *Server) handleUpdateSettings(c echo.Context) error {
	var body struct {
		Settings settingsBody `json:"settings"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if err := body.Settings.validate(); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody(err))
	}
	return s.patchConfig(c, func(doc map[string]any) {
		applySettings(doc, body.Settings)
	})
}

// handleTestConfig reports whether the file on disk loads, with the counts a
// user checks after editing.
func (s *Server) handleTestConfig(c echo.Context) error {
	cfg := config.LoadPath(s.configPath)
	return c.JSON(http.StatusOK, map[string]any{
		"status":   "ok",
		"queries":  len(cfg.Search.Queries),
		"authors":  len(cfg.WatchedAuthors),
		"projects": len(cfg.Projects),
	})
}

// patchConfig runs one read-modify-write cycle against the config file.
func (s *Server) patchConfig(c echo.Context, apply func(doc map[string]any)) error {
	doc, err := s.readConfigDoc()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorBody(err))
	}
	apply(doc)
	if err := s.writeConfigDoc(doc); err != nil {
		return c.JSON(http.StatusInternalServerError, errorBody(err))
	}
	return c.JSON(http.StatusOK, statusOK())
}

// readConfigDoc loads the raw YAML document as a map so sections the editor
// does not own (oracle keys, SMTP credentials) survive a rewrite untouched.
func (s *Server) readConfigDoc() (map[string]any, error) {
	if s.configPath == "" {
		return nil, errors.New("config file path is not set")
	}

	raw, err := os.ReadFile(s.configPath)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", s.configPath, err)
	}

	doc := map[string]any{}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", s.configPath, err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return doc, nil
}

// writeConfigDoc rewrites the config file through a temp file and rename so
// a crash mid-write never leaves a truncated config behind.
func (s *Server) writeConfigDoc(doc map[string]any) error {
	out, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if dir := filepath.Dir(s.configPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}

	tmp := s.configPath + ".tmp"
	if err := os.WriteFile(tmp, out, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp, s.configPath); err != nil {
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}

func (e *editableConfig) normalize() {
	e.Queries = cleanList(e.Queries)
	e.WatchedAuthors = cleanList(e.WatchedAuthors)
	for i := range e.Projects {
		e.Projects[i].Name = strings.TrimSpace(e.Projects[i].Name)
		e.Projects[i].Keywords = cleanList(e.Projects[i].Keywords)
	}
	for i := range e.JournalWeights {
		e.JournalWeights[i].Journals = cleanList(e.JournalWeights[i].Journals)
	}
}

func (e editableConfig) validate() error {
	for _, p := range e.Projects {
		if p.Name == "" {
			return errors.New("project name is required")
		}
	}
	for _, t := range e.JournalWeights {
		if t.Weight <= 0 {
			return fmt.Errorf("journal weight must be positive, got %v", t.Weight)
		}
	}
	return e.Settings.validate()
}

func (s settingsBody) validate() error {
	if s.DaysLookback < 0 {
		return errors.New("daysLookback cannot be negative")
	}
	if s.MaxResultsPerQuery < 0 {
		return errors.New("maxResultsPerQuery cannot be negative")
	}
	if s.MinRelevanceScore < 0 || s.MinRelevanceScore > 100 {
		return errors.New("minRelevanceScore must be between 0 and 100")
	}
	return nil
}

func applySettings(doc map[string]any, settings settingsBody) {
	if settings.DaysLookback > 0 {
		setSearchValue(doc, "daysLookback", settings.DaysLookback)
	}
	if settings.MaxResultsPerQuery > 0 {
		setSearchValue(doc, "maxResultsPerQuery", settings.MaxResultsPerQuery)
	}
	if settings.MinRelevanceScore > 0 {
		setSectionValue(doc, "ranking", "minRelevanceScore", settings.MinRelevanceScore)
	}
}

func setSearchValue(doc map[string]any, key string, value any) {
	setSectionValue(doc, "search", key, value)
}

func setSectionValue(doc map[string]any, section, key string, value any) {
	m, ok := doc[section].(map[string]any)
	if !ok {
		m = map[string]any{}
	}
	m[key] = value
	doc[section] = m
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if v := strings.TrimSpace(item); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func projectBodies(projects []config.ProjectConfig) []projectBody {
	out := make([]projectBody, 0, len(projects))
	for _, p := range projects {
		out = append(out, projectBody{Name: p.Name, Keywords: p.Keywords})
	}
	return out
}

func journalBodies(tiers []config.JournalTier) []journalBody {
	out := make([]journalBody, 0, len(tiers))
	for _, t := range tiers {
		out = append(out, journalBody{Weight: t.Weight, Journals: t.Journals})
	}
	return out
}
