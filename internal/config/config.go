package config

import (
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"LitMonitor/pkg/logger"
)

const (
	defaultTimezone    = "UTC"
	configPathEnv      = "LITMONITOR_CONFIG"
	databasePathEnv    = "LITMONITOR_DB"
	anthropicKeyEnv    = "ANTHROPIC_API_KEY"
	ncbiAPIKeyEnv      = "NCBI_API_KEY"
	ncbiEmailEnv       = "NCBI_EMAIL"
	smtpPasswordEnv    = "SMTP_PASSWORD"
	emailToEnv         = "EMAIL_TO"
	emailFromEnv       = "EMAIL_FROM"
	workerURLEnv       = "ZOTERO_WORKER_URL"
	signingSecretEnv   = "SIGNING_SECRET"
	feedbackAPIKeyEnv  = "FEEDBACK_API_KEY"
	zoteroAPIKeyEnv    = "ZOTERO_API_KEY"
	zoteroUserIDEnv    = "ZOTERO_USER_ID"
)

var warn = logger.New("config")

// Config holds high-level settings required across the application.
type Config struct {
	Database       DatabaseConfig  `yaml:"database"`
	Scheduler      SchedulerConfig `yaml:"scheduler"`
	Logging        LoggingConfig   `yaml:"logging"`
	Search         SearchConfig    `yaml:"search"`
	Projects       []ProjectConfig `yaml:"projects"`
	WatchedAuthors []string        `yaml:"watchedAuthors"`
	Journals       []JournalTier   `yaml:"journalWeights"`
	Ranking        RankingConfig   `yaml:"ranking"`
	Oracle         OracleConfig    `yaml:"oracle"`
	Email          EmailConfig     `yaml:"email"`
	Worker         WorkerConfig    `yaml:"worker"`
	Zotero         ZoteroConfig    `yaml:"zotero"`
	Web            WebConfig       `yaml:"web"`
}

// DatabaseConfig locates the SQLite store file.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// SchedulerConfig defines when the pipeline should run.
type SchedulerConfig struct {
	CronExpression string         `yaml:"cronExpression"`
	Timezone       string         `yaml:"timezone"`
	location       *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// LoggingConfig controls slog verbosity.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// SearchConfig groups settings for literature sources.
type SearchConfig struct {
	Queries            []string       `yaml:"queries"`
	DaysLookback       int            `yaml:"daysLookback"`
	MaxResultsPerQuery int            `yaml:"maxResultsPerQuery"`
	NCBIAPIKey         string         `yaml:"ncbiApiKey"`
	NCBIEmail          string         `yaml:"ncbiEmail"`
	Sources            []SourceConfig `yaml:"sources"`
}

// SourceConfig describes a single literature source with its scanner strategy.
type SourceConfig struct {
	Name    string            `yaml:"name"`
	Scanner string            `yaml:"scanner"`
	Options map[string]string `yaml:"options"`
}

// ProjectConfig is one active research project with match keywords.
type ProjectConfig struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// JournalTier assigns one trust-weight multiplier to a list of journals.
type JournalTier struct {
	Weight   float64  `yaml:"weight"`
	Journals []string `yaml:"journals"`
}

// RankingConfig holds scoring thresholds and feedback magnitudes. All
// numeric constants used by the scorer and aggregator live here so boundary
// values can be exercised directly.
type RankingConfig struct {
	MinRelevanceScore float64 `yaml:"minRelevanceScore"`
	HighThreshold     float64 `yaml:"highThreshold"`
	ModerateThreshold float64 `yaml:"moderateThreshold"`
	AuthorBoost       float64 `yaml:"authorBoost"`
	StarWeight        float64 `yaml:"starWeight"`
	DismissWeight     float64 `yaml:"dismissWeight"`
	AttentionStep     float64 `yaml:"attentionStep"`
	MinAttention      float64 `yaml:"minAttention"`
	MaxAttention      float64 `yaml:"maxAttention"`
}

// OracleConfig defines how to contact the ranking oracle.
type OracleConfig struct {
	Endpoint          string `yaml:"endpoint"`
	Model             string `yaml:"model"`
	APIKey            string `yaml:"apiKey"`
	MaxTokens         int    `yaml:"maxTokens"`
	RequestIntervalMS int    `yaml:"requestIntervalMs"`
	MaxAttempts       int    `yaml:"maxAttempts"`
}

// RequestInterval is the minimum delay between oracle calls.
func (o OracleConfig) RequestInterval() time.Duration {
	return time.Duration(o.RequestIntervalMS) * time.Millisecond
}

// EmailConfig wires SMTP delivery and local digest output.
type EmailConfig struct {
	SMTPHost  string `yaml:"smtpHost"`
	SMTPPort  int    `yaml:"smtpPort"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	From      string `yaml:"from"`
	To        string `yaml:"to"`
	OutputDir string `yaml:"outputDir"`
}

// WorkerConfig points at the edge worker handling signed one-click actions.
type WorkerConfig struct {
	URL           string `yaml:"url"`
	SigningSecret string `yaml:"signingSecret"`
	FeedbackKey   string `yaml:"feedbackKey"`
}

// ZoteroConfig wires the reference-library seed import.
type ZoteroConfig struct {
	APIKey      string `yaml:"apiKey"`
	UserID      string `yaml:"userId"`
	Tag         string `yaml:"tag"`
	VersionFile string `yaml:"versionFile"`
}

// WebConfig configures the config-editor / feedback HTTP server.
type WebConfig struct {
	Addr string `yaml:"addr"`
}

// JournalWeightFor returns the trust multiplier for a journal (default 1.0).
func (c Config) JournalWeightFor(journal string) float64 {
	name := strings.ToLower(strings.TrimSpace(journal))
	for _, tier := range c.Journals {
		for _, j := range tier.Journals {
			if strings.ToLower(strings.TrimSpace(j)) == name {
				return tier.Weight
			}
		}
	}
	return 1.0
}

// JournalWeightMap flattens the tier table into a lowercased lookup map.
func (c Config) JournalWeightMap() map[string]float64 {
	weights := make(map[string]float64)
	for _, tier := range c.Journals {
		for _, j := range tier.Journals {
			weights[strings.ToLower(strings.TrimSpace(j))] = tier.Weight
		}
	}
	return weights
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	return LoadPath(os.Getenv(configPathEnv))
}

// LoadPath reads YAML configuration from an explicit path, falling back to
// defaults when the file is absent or invalid.
func LoadPath(path string) Config {
	cfg := defaultConfig()

	if path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			warn.Printf("cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				warn.Printf("cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()

	if len(cfg.Search.Sources) == 0 {
		cfg.Search.Sources = defaultConfig().Search.Sources
	}

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databasePathEnv); v != "" {
		c.Database.Path = v
	}

	if v := os.Getenv(anthropicKeyEnv); v != "" {
		c.Oracle.APIKey = v
	}

	if v := os.Getenv(ncbiAPIKeyEnv); v != "" {
		c.Search.NCBIAPIKey = v
	}
	if v := os.Getenv(ncbiEmailEnv); v != "" {
		c.Search.NCBIEmail = v
	}

	if v := os.Getenv(smtpPasswordEnv); v != "" {
		c.Email.Password = v
	}
	if v := os.Getenv(emailToEnv); v != "" {
		c.Email.To = v
	}
	if v := os.Getenv(emailFromEnv); v != "" {
		c.Email.From = v
	}

	if v := os.Getenv(workerURLEnv); v != "" {
		c.Worker.URL = v
	}
	if v := os.Getenv(signingSecretEnv); v != "" {
		c.Worker.SigningSecret = v
	}
	if v := os.Getenv(feedbackAPIKeyEnv); v != "" {
		c.Worker.FeedbackKey = v
	}

	if v := os.Getenv(zoteroAPIKeyEnv); v != "" {
		c.Zotero.APIKey = v
	}
	if v := os.Getenv(zoteroUserIDEnv); v != "" {
		c.Zotero.UserID = v
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		warn.Printf("unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

func mergeConfig(base, override Config) Config {
	if override.Database.Path != "" {
		base.Database = override.Database
	}

	if override.Scheduler.CronExpression != "" {
		base.Scheduler.CronExpression = override.Scheduler.CronExpression
	}
	if override.Scheduler.Timezone != "" {
		base.Scheduler.Timezone = override.Scheduler.Timezone
	}

	if override.Logging.Level != "" {
		base.Logging = override.Logging
	}

	if len(override.Search.Queries) > 0 {
		base.Search.Queries = override.Search.Queries
	}
	if override.Search.DaysLookback > 0 {
		base.Search.DaysLookback = override.Search.DaysLookback
	}
	if override.Search.MaxResultsPerQuery > 0 {
		base.Search.MaxResultsPerQuery = override.Search.MaxResultsPerQuery
	}
	if override.Search.NCBIAPIKey != "" {
		base.Search.NCBIAPIKey = override.Search.NCBIAPIKey
	}
	if override.Search.NCBIEmail != "" {
		base.Search.NCBIEmail = override.Search.NCBIEmail
	}
	if len(override.Search.Sources) > 0 {
		base.Search.Sources = override.Search.Sources
	}

	if len(override.Projects) > 0 {
		base.Projects = override.Projects
	}
	if len(override.WatchedAuthors) > 0 {
		base.WatchedAuthors = override.WatchedAuthors
	}
	if len(override.Journals) > 0 {
		base.Journals = override.Journals
	}

	base.Ranking = mergeRanking(base.Ranking, override.Ranking)

	if override.Oracle.Endpoint != "" {
		base.Oracle.Endpoint = override.Oracle.Endpoint
	}
	if override.Oracle.Model != "" {
		base.Oracle.Model = override.Oracle.Model
	}
	if override.Oracle.APIKey != "" {
		base.Oracle.APIKey = override.Oracle.APIKey
	}
	if override.Oracle.MaxTokens > 0 {
		base.Oracle.MaxTokens = override.Oracle.MaxTokens
	}
	if override.Oracle.RequestIntervalMS > 0 {
		base.Oracle.RequestIntervalMS = override.Oracle.RequestIntervalMS
	}
	if override.Oracle.MaxAttempts > 0 {
		base.Oracle.MaxAttempts = override.Oracle.MaxAttempts
	}

	if override.Email.SMTPHost != "" {
		base.Email.SMTPHost = override.Email.SMTPHost
	}
	if override.Email.SMTPPort > 0 {
		base.Email.SMTPPort = override.Email.SMTPPort
	}
	if override.Email.Username != "" {
		base.Email.Username = override.Email.Username
	}
	if override.Email.Password != "" {
		base.Email.Password = override.Email.Password
	}
	if override.Email.From != "" {
		base.Email.From = override.Email.From
	}
	if override.Email.To != "" {
		base.Email.To = override.Email.To
	}
	if override.Email.OutputDir != "" {
		base.Email.OutputDir = override.Email.OutputDir
	}

	if override.Worker.URL != "" {
		base.Worker.URL = override.Worker.URL
	}
	if override.Worker.SigningSecret != "" {
		base.Worker.SigningSecret = override.Worker.SigningSecret
	}
	if override.Worker.FeedbackKey != "" {
		base.Worker.FeedbackKey = override.Worker.FeedbackKey
	}

	if override.Zotero.APIKey != "" {
		base.Zotero.APIKey = override.Zotero.APIKey
	}
	if override.Zotero.UserID != "" {
		base.Zotero.UserID = override.Zotero.UserID
	}
	if override.Zotero.Tag != "" {
		base.Zotero.Tag = override.Zotero.Tag
	}
	if override.Zotero.VersionFile != "" {
		base.Zotero.VersionFile = override.Zotero.VersionFile
	}

	if override.Web.Addr != "" {
		base.Web = override.Web
	}

	return base
}

func mergeRanking(base, override RankingConfig) RankingConfig {
	if override.MinRelevanceScore > 0 {
		base.MinRelevanceScore = override.MinRelevanceScore
	}
	if override.HighThreshold > 0 {
		base.HighThreshold = override.HighThreshold
	}
	if override.ModerateThreshold > 0 {
		base.ModerateThreshold = override.ModerateThreshold
	}
	if override.AuthorBoost > 0 {
		base.AuthorBoost = override.AuthorBoost
	}
	if override.StarWeight > 0 {
		base.StarWeight = override.StarWeight
	}
	if override.DismissWeight > 0 {
		base.DismissWeight = override.DismissWeight
	}
	if override.AttentionStep > 0 {
		base.AttentionStep = override.AttentionStep
	}
	if override.MinAttention > 0 {
		base.MinAttention = override.MinAttention
	}
	if override.MaxAttention > 0 {
		base.MaxAttention = override.MaxAttention
	}
	return base
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Database:  DatabaseConfig{Path: "data/litmonitor.db"},
		Scheduler: SchedulerConfig{CronExpression: "0 8 * * 1", Timezone: defaultTimezone, location: tz},
		Logging:   LoggingConfig{Level: "info"},
		Search: SearchConfig{
			Queries:            []string{`"biliary atresia"`},
			DaysLookback:       7,
			MaxResultsPerQuery: 100,
			Sources: []SourceConfig{
				{Name: "pubmed", Scanner: "pubmed"},
				{Name: "preprints", Scanner: "biorxiv", Options: map[string]string{"servers": "biorxiv,medrxiv"}},
			},
		},
		Projects: []ProjectConfig{
			{Name: "Liver", Keywords: []string{"biliary atresia", "cholestasis"}},
		},
		Journals: []JournalTier{
			{Weight: 1.5, Journals: []string{"Nature", "Science", "Cell"}},
			{Weight: 1.3, Journals: []string{"Hepatology", "Journal of Hepatology"}},
		},
		Ranking: RankingConfig{
			MinRelevanceScore: 30,
			HighThreshold:     70,
			ModerateThreshold: 40,
			AuthorBoost:       10,
			StarWeight:        1.0,
			DismissWeight:     0.4,
			AttentionStep:     0.1,
			MinAttention:      0.5,
			MaxAttention:      2.0,
		},
		Oracle: OracleConfig{
			Endpoint:          "https://api.anthropic.com",
			Model:             "claude-sonnet-4-20250514",
			APIKey:            "",
			MaxTokens:         1024,
			RequestIntervalMS: 1000,
			MaxAttempts:       3,
		},
		Email: EmailConfig{
			SMTPPort:  587,
			OutputDir: "output",
		},
		Zotero: ZoteroConfig{
			VersionFile: "data/.zotero_sync_version",
		},
		Web: WebConfig{Addr: ":8787"},
	}
}
