package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pbimprenta/printdesk/internal/config"
	"github.com/pbimprenta/printdesk/internal/db"
	"github.com/pbimprenta/printdesk/internal/llm"
	"github.com/pbimprenta/printdesk/internal/store"
	"github.com/rs/zerolog"
)

const defaultConfigPath = "printdesk.yaml"

// newLogger builds the root logger. Unknown levels fall back to info.
func newLogger(out io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339
	return zerolog.New(out).Level(lvl).With().Timestamp().Str("service", "printdesk").Logger()
}

func loadConfig(path string) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("load config: %w", err)
	}
	return cfg, newLogger(os.Stderr, cfg.LogLevel), nil
}

// openStore connects to the configured database and migrates the schema.
func openStore(cfg *config.Config) (*store.Store, error) {
	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return nil, err
	}
	return store.New(store.Opts{DB: gormDB})
}

func newLLM(cfg *config.Config, log zerolog.Logger) (*llm.Client, error) {
	return llm.New(llm.Opts{
		APIKey:         cfg.LLM.APIKey,
		APIBase:        cfg.LLM.APIBase,
		Model:          cfg.LLM.Model,
		EmbeddingModel: cfg.LLM.EmbeddingModel,
		Temperature:    cfg.LLM.Temperature,
		Timeout:        time.Duration(cfg.LLM.TimeoutSec) * time.Second,
		Logger:         log,
	})
}
