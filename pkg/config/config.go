package config

import (
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

//go:generate go run ../../cmd/schema/main.go schema.json

// Config holds the full pipeline configuration. It is loaded once per run
// and passed by value through every component, there is no ambient state.
type Config struct {
	// Schedule is a cron expression consumed by the external scheduler,
	// the pipeline itself ignores it
	Schedule string `yaml:"schedule" json:"schedule" jsonschema:"default=0 4 * * *,description=Cron expression for the external scheduler"`

	OPMLPath  string `yaml:"opml_path" json:"opml_path" jsonschema:"default=feeds.opml,description=Path to the OPML subscriptions file"`
	OutputDir string `yaml:"output_dir" json:"output_dir" jsonschema:"default=.,description=Directory for json/ and digest/ artifacts"`

	Fetch struct {
		Hours int `yaml:"hours" json:"hours" jsonschema:"default=24,description=Recency window in hours"`
		// a pointer keeps an explicit zero distinguishable from unset
		MaxWorkersPercent *float64      `yaml:"max_workers_percent" json:"max_workers_percent" jsonschema:"default=0.8,minimum=0,maximum=1,description=Fraction of available CPUs used as fetch workers"`
		SourceTimeout     time.Duration `yaml:"source_timeout" json:"source_timeout" jsonschema:"default=30s,description=Per-source fetch timeout"`
		RunTimeout        time.Duration `yaml:"run_timeout" json:"run_timeout" jsonschema:"default=10m,description=Global run timeout"`
		UserAgent         string        `yaml:"user_agent" json:"user_agent" jsonschema:"default=Heartbeat/1.0,description=User agent for feed requests"`
	} `yaml:"fetch" json:"fetch" jsonschema:"description=Feed fetching configuration"`

	Normalize struct {
		ContentLimit     int    `yaml:"content_limit" json:"content_limit" jsonschema:"default=15000,description=Maximum content length in characters"`
		WordsPerMinute   int    `yaml:"words_per_minute" json:"words_per_minute" jsonschema:"default=200,description=Reading speed for reading-time estimates"`
		FallbackLanguage string `yaml:"fallback_language" json:"fallback_language" jsonschema:"default=en,description=Language code used when detection is unreliable"`
		// a pointer keeps an explicit zero distinguishable from unset
		BaseScore *float64 `yaml:"base_score" json:"base_score" jsonschema:"default=0.4,minimum=0,maximum=1,description=Importance score with no extra signals"`
	} `yaml:"normalize" json:"normalize" jsonschema:"description=Normalization configuration"`

	// SourceWeights maps a feed title to a scoring weight in [0,1],
	// feeds not listed get a neutral weight
	SourceWeights map[string]float64 `yaml:"source_weights" json:"source_weights" jsonschema:"description=Per-feed importance weights"`

	Dedup struct {
		Days int    `yaml:"days" json:"days" jsonschema:"default=0,description=Days of prior indices consulted for dedup (0 derives from fetch hours)"`
		DSN  string `yaml:"dsn" json:"dsn" jsonschema:"description=SQLite DSN for the seen-items store (empty disables the store)"`
	} `yaml:"dedup" json:"dedup" jsonschema:"description=Deduplication configuration"`

	Extraction struct {
		Enabled bool          `yaml:"enabled" json:"enabled" jsonschema:"default=false,description=Fetch and extract full article content"`
		Timeout time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=8s,description=Extraction timeout per article"`
	} `yaml:"extraction" json:"extraction" jsonschema:"description=Full-content extraction configuration"`

	LLM struct {
		Endpoint    string        `yaml:"endpoint" json:"endpoint" jsonschema:"description=OpenAI-compatible endpoint for LLM scoring (empty disables it)"`
		APIKey      string        `yaml:"api_key" json:"api_key" jsonschema:"description=API key (supports env expansion)"`
		Model       string        `yaml:"model" json:"model" jsonschema:"description=Model name"`
		Temperature float64       `yaml:"temperature" json:"temperature" jsonschema:"default=0.3,description=Temperature for response generation"`
		Timeout     time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=30s,description=Request timeout"`
	} `yaml:"llm" json:"llm" jsonschema:"description=Optional LLM importance-scoring policy"`

	GitHub struct {
		User     string `yaml:"user" json:"user" jsonschema:"description=GitHub user or org owning the publish repo"`
		Repo     string `yaml:"repo" json:"repo" jsonschema:"description=Repository the artifacts are pushed to"`
		Branch   string `yaml:"branch" json:"branch" jsonschema:"default=main,description=Target branch"`
		TokenEnv string `yaml:"token_env" json:"token_env" jsonschema:"default=GITHUB_TOKEN,description=Name of the env var holding the token"`
	} `yaml:"github" json:"github" jsonschema:"description=Publish target (optional)"`
}

// Load reads configuration from a YAML file. Environment variables in the
// file are expanded before parsing. A missing or malformed file is a fatal
// configuration error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // file path comes from CLI flag
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// Default returns a configuration with all defaults applied, used when no
// config file is given
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

func (c *Config) setDefaults() {
	if c.Schedule == "" {
		c.Schedule = "0 4 * * *"
	}
	if c.OPMLPath == "" {
		c.OPMLPath = "feeds.opml"
	}
	if c.OutputDir == "" {
		c.OutputDir = "."
	}

	if c.Fetch.Hours == 0 {
		c.Fetch.Hours = 24
	}
	if c.Fetch.MaxWorkersPercent == nil {
		v := 0.8
		c.Fetch.MaxWorkersPercent = &v
	}
	if c.Fetch.SourceTimeout == 0 {
		c.Fetch.SourceTimeout = 30 * time.Second
	}
	if c.Fetch.RunTimeout == 0 {
		c.Fetch.RunTimeout = 10 * time.Minute
	}
	if c.Fetch.UserAgent == "" {
		c.Fetch.UserAgent = "Heartbeat/1.0"
	}

	if c.Normalize.ContentLimit == 0 {
		c.Normalize.ContentLimit = 15000
	}
	if c.Normalize.WordsPerMinute == 0 {
		c.Normalize.WordsPerMinute = 200
	}
	if c.Normalize.FallbackLanguage == "" {
		c.Normalize.FallbackLanguage = "en"
	}
	if c.Normalize.BaseScore == nil {
		v := 0.4
		c.Normalize.BaseScore = &v
	}

	if c.Dedup.Days == 0 {
		// cover the fetch window by default
		c.Dedup.Days = int(math.Ceil(float64(c.Fetch.Hours) / 24))
	}

	if c.Extraction.Timeout == 0 {
		c.Extraction.Timeout = 8 * time.Second
	}

	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = 0.3
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = 30 * time.Second
	}

	if c.GitHub.Branch == "" {
		c.GitHub.Branch = "main"
	}
	if c.GitHub.TokenEnv == "" {
		c.GitHub.TokenEnv = "GITHUB_TOKEN"
	}
}

// validate checks configuration for correctness
func validate(cfg *Config) error {
	if cfg.Fetch.Hours < 1 {
		return fmt.Errorf("fetch.hours must be at least 1")
	}
	if *cfg.Fetch.MaxWorkersPercent < 0 || *cfg.Fetch.MaxWorkersPercent > 1 {
		return fmt.Errorf("fetch.max_workers_percent must be between 0 and 1")
	}
	if cfg.Fetch.SourceTimeout < time.Second {
		return fmt.Errorf("fetch.source_timeout must be at least 1 second")
	}
	if cfg.Normalize.ContentLimit < 1 {
		return fmt.Errorf("normalize.content_limit must be positive")
	}
	if cfg.Normalize.WordsPerMinute < 1 {
		return fmt.Errorf("normalize.words_per_minute must be positive")
	}
	if *cfg.Normalize.BaseScore < 0 || *cfg.Normalize.BaseScore > 1 {
		return fmt.Errorf("normalize.base_score must be between 0 and 1")
	}
	for title, w := range cfg.SourceWeights {
		if w < 0 || w > 1 {
			return fmt.Errorf("source_weights[%q] must be between 0 and 1", title)
		}
	}
	if cfg.Dedup.Days < 1 {
		return fmt.Errorf("dedup.days must be at least 1")
	}
	if cfg.LLM.Endpoint != "" && cfg.LLM.Model == "" {
		return fmt.Errorf("llm.model is required when llm.endpoint is set")
	}
	return nil
}

// Token reads the publish token from the environment variable named by
// github.token_env. Empty result disables publishing.
func (c *Config) Token() string {
	return os.Getenv(c.GitHub.TokenEnv)
}

// PublishEnabled reports whether the publish target is fully configured
func (c *Config) PublishEnabled() bool {
	return c.GitHub.User != "" && c.GitHub.Repo != "" && c.Token() != ""
}
