package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/tavleenbajwa8/research-brief-generator/internal/config"
	"github.com/tavleenbajwa8/research-brief-generator/internal/database"
	"github.com/tavleenbajwa8/research-brief-generator/internal/engine"
	"github.com/tavleenbajwa8/research-brief-generator/internal/fetch"
	"github.com/tavleenbajwa8/research-brief-generator/internal/llm"
	"github.com/tavleenbajwa8/research-brief-generator/internal/search"
	"github.com/tavleenbajwa8/research-brief-generator/internal/sessioncache"
)

var version = "dev"

var (
	verbose bool
	cfg     *config.Config
	logger  = zap.NewNop()
)

func main() {
	err := rootCmd.ExecuteContext(context.Background())
	logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "briefgen",
	Short:   "Research brief generator",
	Long:    "briefgen plans web research on a topic, reads and summarizes the sources it finds, and writes a cited research brief.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(viper.GetString("config"))
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		applyOverrides(cfg, viper.GetViper())

		logger, err = newLogger(cfg.Logging.Level, verbose)
		if err != nil {
			return err
		}
		logger.Debug("configuration loaded", zap.String("path", path))
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to config file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("data-dir", "", "Directory for the briefs database")

	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("data_dir", rootCmd.PersistentFlags().Lookup("data-dir"))

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(serveCmd)
}

// initConfig binds BRIEFGEN_* environment variables, e.g. BRIEFGEN_CONFIG
// and BRIEFGEN_DATA_DIR.
func initConfig() {
	viper.SetEnvPrefix("BRIEFGEN")
	viper.AutomaticEnv()
}

// applyOverrides layers flag and environment values over the config file.
func applyOverrides(c *config.Config, v *viper.Viper) {
	if dir := v.GetString("data_dir"); dir != "" {
		c.Storage.DataDir = dir
	}
	if level := v.GetString("log_level"); level != "" {
		c.Logging.Level = level
	}
	if addr := v.GetString("redis_addr"); addr != "" {
		c.Storage.RedisAddr = addr
	}
}

// newLogger builds a JSON production logger, or a console logger at debug
// level when verbose is set.
func newLogger(level string, verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}

	zc := zap.NewProductionConfig()
	if level != "" {
		lvl, err := zap.ParseAtomicLevel(strings.ToLower(level))
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
		zc.Level = lvl
	}
	zc.OutputPaths = []string{"stderr"}
	return zc.Build()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("briefgen", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/briefgen/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure models, API keys, and search backends.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database and configuration status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats(cmd.Context())
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Printf("Database: %s\n\n", db.Path())
		fmt.Println("Briefs:")
		fmt.Printf("  Total: %d\n", stats.Briefs)
		fmt.Printf("  Partial: %d\n", stats.PartialBriefs)
		fmt.Printf("  Users: %d\n", stats.Users)
		fmt.Printf("  Tokens used: %d\n", stats.TotalTokens)

		fmt.Println("\nModels:")
		for _, stage := range []struct{ name, key string }{
			{"planning", cfg.Routing.Planning},
			{"summarization", cfg.Routing.Summarization},
			{"synthesis", cfg.Routing.Synthesis},
		} {
			m := cfg.Models[stage.key]
			ready := "ready"
			if p, err := llm.NewProvider(m.Provider, m.Model, m.BaseURL, m.APIKeyEnv); err != nil || !p.IsConfigured() {
				ready = "not configured"
			}
			fmt.Printf("  %s: %s (%s/%s, %s)\n", stage.name, stage.key, m.Provider, m.Model, ready)
		}

		fmt.Println("\nSearch:")
		fmt.Printf("  Backends: %s\n", strings.Join(cfg.Search.Backends, ", "))
		if cfg.Storage.RedisAddr != "" {
			fmt.Printf("  Context cache: %s\n", cfg.Storage.RedisAddr)
		}
		return nil
	},
}

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return database.Open(cfg.DatabasePath(), logger)
}

// app holds the wired components for commands that run briefs.
type app struct {
	db     *database.DB
	cache  *sessioncache.Cache
	store  engine.ContextStore
	engine *engine.Engine
}

// newApp wires the engine to its adapters. A configured but unreachable
// Redis is logged and skipped.
func newApp(ctx context.Context) (*app, error) {
	db, err := openDB()
	if err != nil {
		return nil, err
	}
	a := &app{db: db, store: db}

	if addr := cfg.Storage.RedisAddr; addr != "" {
		client, err := sessioncache.Connect(ctx, addr)
		if err != nil {
			logger.Warn("context cache unavailable, using database only", zap.String("addr", addr), zap.Error(err))
		} else {
			a.cache = sessioncache.New(client, db, cfg.Storage.CacheTTL, logger)
			a.store = a.cache
		}
	}

	router, err := llm.NewRouterFromConfig(cfg.Models, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	for _, key := range router.Keys() {
		if p, _ := router.Provider(key); !p.IsConfigured() {
			logger.Warn("model provider not configured", zap.String("model_key", key))
		}
	}

	searcher, err := search.FromConfig(cfg.Search, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	fetcher := fetch.New(fetch.Options{
		Timeout:   cfg.Fetch.Timeout,
		MaxBytes:  cfg.Fetch.MaxBytes,
		MaxChars:  cfg.Fetch.MaxChars,
		UserAgent: cfg.Fetch.UserAgent,
	})

	opts := engine.OptionsFromConfig(cfg)
	opts.Logger = logger
	a.engine = engine.New(router, searcher, fetcher, a.store, opts)
	return a, nil
}

func (a *app) Close() {
	if a.cache != nil {
		a.cache.Close()
	}
	a.db.Close()
}
