package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Yates-Labs/saga/internal/config"
	"github.com/Yates-Labs/saga/internal/credential"
	"github.com/Yates-Labs/saga/internal/kvstore"
	"github.com/Yates-Labs/saga/internal/logger"
	"github.com/Yates-Labs/saga/internal/orchestrator"
	"github.com/Yates-Labs/saga/internal/session"
)

var (
	configPath string
	ephemeral  bool
	logLevel   string
)

// app holds what every subcommand needs once configuration is loaded.
type app struct {
	cfg   *config.Config
	log   *zap.Logger
	kv    kvstore.Store
	keys  *credential.Store
	saves *session.Store
}

var current *app

var rootCmd = &cobra.Command{
	Use:   "saga",
	Short: "Saga - choose-your-own-adventure with an AI narrator",
	Long: `Saga is a turn-based interactive story game narrated by Gemini, OpenAI or Claude.

Each turn the narrator writes the next scene and offers choices, an optional
illustration is rendered, and a sidekick is available to chat. Games are
saved automatically after every turn.

API keys are read from the saved key store (saga keys set) or from
GEMINI_API_KEY, OPENAI_API_KEY and ANTHROPIC_API_KEY.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.saga/config.toml)")
	rootCmd.PersistentFlags().BoolVar(&ephemeral, "ephemeral", false, "Keep keys and saves in memory only")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
}

// Execute runs the root command
func Execute() {
	// Load .env file if it exists
	_ = godotenv.Load()

	err := rootCmd.Execute()
	teardown()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	log, err := logger.New(cfg.LoggerConfig())
	if err != nil {
		return err
	}

	kv, err := openStore(cfg)
	if err != nil {
		return err
	}

	current = &app{
		cfg:   cfg,
		log:   log,
		kv:    kv,
		keys:  credential.NewStore(kv),
		saves: session.NewStore(kv, log),
	}
	return nil
}

func openStore(cfg *config.Config) (kvstore.Store, error) {
	if ephemeral {
		return kvstore.NewMemoryStore(cfg.QuotaBytes), nil
	}

	path, err := cfg.DBPath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return kvstore.OpenSQLite(path, cfg.QuotaBytes)
}

func teardown() {
	if current == nil {
		return
	}
	if current.kv != nil {
		_ = current.kv.Close()
	}
	_ = current.log.Sync()
}

// credentials resolves stored keys first, then the environment.
func (a *app) credentials() credential.Source {
	return credential.Chain{a.keys, credential.EnvSource{}}
}

// dispatcher builds the provider dispatcher from the loaded config.
func (a *app) dispatcher() *orchestrator.Dispatcher {
	return orchestrator.New(orchestrator.Options{
		Credentials: a.credentials(),
		Configs:     a.cfg.LLMConfigs(),
		Logger:      a.log,
	})
}
