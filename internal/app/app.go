// Package app wires configuration, storage, the processing pool and the
// HTTP server into a runnable service.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"pagesmith/internal/api"
	"pagesmith/internal/config"
	"pagesmith/internal/engine"
	"pagesmith/internal/eventlog"
	"pagesmith/internal/github"
	"pagesmith/internal/llm"
	"pagesmith/internal/notify"
	"pagesmith/internal/store"
)

const shutdownGrace = 10 * time.Second

// Run builds the service from settings and blocks until ctx is cancelled
// or a component fails.
func Run(ctx context.Context, settings config.Settings) error {
	log, err := NewLogger(settings.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	for _, name := range settings.MissingCritical() {
		log.Warn("environment variable not set, related features degraded", zap.String("name", name))
	}

	dbFile, err := settings.DatabaseFile()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dbFile), 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	st, err := store.NewSQLite(dbFile)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.Init(ctx); err != nil {
		return err
	}
	log.Info("database ready", zap.String("path", dbFile))

	taskLog, err := eventlog.New(settings.LogDir)
	if err != nil {
		return err
	}

	var generator llm.Generator
	if settings.OpenAIAPIKey == "" {
		log.Warn("OPENAI_API_KEY not set, using static fallback generator")
		generator = llm.NewStaticGenerator()
	} else {
		client := llm.NewClient(settings.OpenAIAPIKey, settings.OpenAIBaseURL, settings.ModelName, log)
		generator = llm.NewChatGenerator(client, log)
	}

	publisher := github.NewClient(settings.GitHubToken, settings.GitHubOwner, log)
	notifier := notify.New(log)
	pool := engine.NewPool(st, generator, publisher, notifier, taskLog, settings.Workers, log)
	server := api.NewServer(settings.Addr(), st, pool, settings.StudentSecret, log)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return pool.Run(ctx)
	})
	group.Go(func() error {
		return server.Start()
	})
	group.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = group.Wait()
	if err == context.Canceled {
		return nil
	}
	return err
}
