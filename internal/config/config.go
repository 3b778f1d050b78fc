package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Models  map[string]Model `yaml:"models"`
	Routing Routing          `yaml:"routing"`
	Search  Search           `yaml:"search"`
	Fetch   Fetch            `yaml:"fetch"`
	Engine  Engine           `yaml:"engine"`
	Retry   Retry            `yaml:"retry"`
	Storage Storage          `yaml:"storage"`
	Server  Server           `yaml:"server"`
	Logging Logging          `yaml:"logging"`
}

// Model binds a model key to a concrete backend.
type Model struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

// Routing picks the model key each stage uses.
type Routing struct {
	Planning      string `yaml:"planning"`
	Summarization string `yaml:"summarization"`
	Synthesis     string `yaml:"synthesis"`
}

type Search struct {
	Backends           []string      `yaml:"backends"`
	MaxResultsPerQuery int           `yaml:"max_results_per_query"`
	Timeout            time.Duration `yaml:"timeout"`
	QPS                float64       `yaml:"qps"`
	NewsAPI            NewsAPI       `yaml:"newsapi"`
	Feed               FeedSearch    `yaml:"feed"`
}

type NewsAPI struct {
	APIKeyEnv string `yaml:"api_key_env"`
	DaysBack  int    `yaml:"days_back"`
}

// FeedSearch is an RSS endpoint that accepts a query, with {query} as placeholder.
type FeedSearch struct {
	URLTemplate string `yaml:"url_template"`
}

type Fetch struct {
	Timeout         time.Duration `yaml:"timeout"`
	MaxBytes        int           `yaml:"max_bytes"`
	MaxChars        int           `yaml:"max_chars"`
	MinContentChars int           `yaml:"min_content_chars"`
	UserAgent       string        `yaml:"user_agent"`
}

type Engine struct {
	MinDepth      int           `yaml:"min_depth"`
	MaxDepth      int           `yaml:"max_depth"`
	MaxTopicLen   int           `yaml:"max_topic_len"`
	Workers       int           `yaml:"workers"`
	MinSources    int           `yaml:"min_sources"`
	MaxCandidates int           `yaml:"max_candidates"`
	Deadline      time.Duration `yaml:"deadline"`

	// SourcesPerDepth caps candidates at depth*SourcesPerDepth. Zero disables it.
	SourcesPerDepth int `yaml:"sources_per_depth"`

	// SynthesisReserve is the share of the deadline held back for synthesis.
	SynthesisReserve float64 `yaml:"synthesis_reserve"`
}

type Retry struct {
	Transient int           `yaml:"transient"`
	RateLimit int           `yaml:"rate_limit"`
	Repair    int           `yaml:"repair"`
	BaseDelay time.Duration `yaml:"base_delay"`
	MaxDelay  time.Duration `yaml:"max_delay"`
	Cooldown  time.Duration `yaml:"cooldown"`
}

type Storage struct {
	DataDir   string        `yaml:"data_dir"`
	RedisAddr string        `yaml:"redis_addr"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
}

type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for briefgen.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "briefgen")
}

// DataDir returns the XDG data directory for briefgen.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "briefgen")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/briefgen/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'briefgen init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// Default returns the embedded configuration.
func Default() (*Config, error) {
	return parse(DefaultConfigYAML)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Models: map[string]Model{
			"reasoning": {
				Provider:    "openai",
				Model:       "gpt-4o",
				APIKeyEnv:   "OPENAI_API_KEY",
				MaxTokens:   4000,
				Temperature: 0.1,
			},
			"extraction": {
				Provider:    "openai",
				Model:       "gpt-4o-mini",
				APIKeyEnv:   "OPENAI_API_KEY",
				MaxTokens:   1500,
				Temperature: 0.1,
			},
		},
		Routing: Routing{
			Planning:      "reasoning",
			Summarization: "extraction",
			Synthesis:     "reasoning",
		},
		Search: Search{
			Backends:           []string{"duckduckgo"},
			MaxResultsPerQuery: 10,
			Timeout:            30 * time.Second,
			QPS:                1,
			NewsAPI:            NewsAPI{APIKeyEnv: "NEWSAPI_KEY", DaysBack: 30},
		},
		Fetch: Fetch{
			Timeout:         15 * time.Second,
			MaxBytes:        2 << 20,
			MaxChars:        8000,
			MinContentChars: 200,
			UserAgent:       "briefgen/1.0 (research assistant)",
		},
		Engine: Engine{
			MinDepth:      1,
			MaxDepth:      5,
			MaxTopicLen:   500,
			Workers:       5,
			MinSources:    2,
			MaxCandidates: 10,
			Deadline:      3 * time.Minute,

			SourcesPerDepth:  2,
			SynthesisReserve: 0.25,
		},
		Retry: Retry{
			Transient: 3,
			RateLimit: 2,
			Repair:    2,
			BaseDelay: time.Second,
			MaxDelay:  20 * time.Second,
			Cooldown:  10 * time.Second,
		},
		Storage: Storage{CacheTTL: time.Hour},
		Server:  Server{Host: "127.0.0.1", Port: 8000},
		Logging: Logging{Level: "info"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Engine.MinSources <= 0 {
		return fmt.Errorf("engine.min_sources must be greater than zero")
	}
	if c.Engine.Workers <= 0 {
		return fmt.Errorf("engine.workers must be greater than zero")
	}
	if c.Engine.SynthesisReserve <= 0 || c.Engine.SynthesisReserve >= 1 {
		return fmt.Errorf("engine.synthesis_reserve must be between 0 and 1, got %g", c.Engine.SynthesisReserve)
	}
	if c.Engine.MinDepth > c.Engine.MaxDepth {
		return fmt.Errorf("engine.min_depth %d exceeds max_depth %d", c.Engine.MinDepth, c.Engine.MaxDepth)
	}
	for stage, key := range map[string]string{
		"planning":      c.Routing.Planning,
		"summarization": c.Routing.Summarization,
		"synthesis":     c.Routing.Synthesis,
	} {
		if _, ok := c.Models[key]; !ok {
			return fmt.Errorf("routing.%s refers to unknown model key %q", stage, key)
		}
	}
	return nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Storage.DataDir != "" {
		return c.Storage.DataDir
	}
	return DataDir()
}

// DatabasePath returns the SQLite file location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.GetDataDir(), "briefs.db")
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
