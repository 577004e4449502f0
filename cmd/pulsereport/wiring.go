package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rewired-gh/pulsereport/internal/chatstore"
	"github.com/rewired-gh/pulsereport/internal/config"
	"github.com/rewired-gh/pulsereport/internal/events"
	"github.com/rewired-gh/pulsereport/internal/github"
	"github.com/rewired-gh/pulsereport/internal/logger"
	"github.com/rewired-gh/pulsereport/internal/models"
	"github.com/rewired-gh/pulsereport/internal/pipeline"
	"github.com/rewired-gh/pulsereport/internal/publish"
	"github.com/rewired-gh/pulsereport/internal/report"
	"github.com/rewired-gh/pulsereport/internal/storage"
	"github.com/rewired-gh/pulsereport/internal/telegram"
)

// closers collects cleanup functions, run in reverse order.
type closers []func()

func (c *closers) add(fn func()) { *c = append(*c, fn) }

func (c closers) close() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

func newGitHubClient(cfg *config.Config) *github.Client {
	return github.NewClient(cfg.GitHub.APIBaseURL, cfg.GitHub.Token, cfg.GitHub.Timeout, github.ClientConfig{
		MaxRetries:     cfg.GitHub.MaxRetries,
		RetryDelayBase: cfg.GitHub.RetryDelayBase,
		MaxPages:       cfg.GitHub.MaxPages,
	})
}

func openChatStore(cfg *config.Config, cl *closers) (*chatstore.Store, error) {
	store, err := chatstore.New(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to chat store: %w", err)
	}
	cl.add(func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close chat store: %v", err)
		}
	})
	return store, nil
}

func openLedger(cfg *config.Config, cl *closers) (*storage.Storage, error) {
	ledger, err := storage.Open(cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	cl.add(func() {
		if err := ledger.Close(); err != nil {
			logger.Error("Failed to close ledger: %v", err)
		}
	})
	return ledger, nil
}

func targetFor(cfg *config.Config, kind models.Kind) (pipeline.Target, error) {
	t, err := cfg.TargetFor(kind)
	if err != nil {
		return pipeline.Target{}, configErr(err)
	}
	return pipeline.Target{
		DirectoryFile: t.DirectoryFile,
		OutputDir:     t.OutputDir,
		IndexPath:     t.IndexPath,
		UploadPrefix:  filepath.Base(filepath.Clean(t.OutputDir)),
	}, nil
}

// newRunner wires a pipeline runner for kind from the configuration.
func newRunner(ctx context.Context, cfg *config.Config, kind models.Kind, cl *closers) (*pipeline.Runner, error) {
	if err := cfg.RequireSource(kind); err != nil {
		return nil, configErr(err)
	}
	target, err := targetFor(cfg, kind)
	if err != nil {
		return nil, err
	}

	runner := &pipeline.Runner{
		Options: pipeline.Options{
			DaysBack:     cfg.Run.DaysBack,
			Workers:      cfg.Run.Workers,
			FetchTimeout: cfg.Run.FetchTimeout,
			SampleEvents: cfg.Run.SampleEvents,
			LeaseTTL:     cfg.Run.LeaseTTL,
			Ext:          cfg.Run.ReportExt,
		},
		Targets: map[models.Kind]pipeline.Target{kind: target},
		Topics:  events.NewTopics(cfg.NATS.SubjectPrefix),
	}

	switch kind {
	case models.KindChat:
		store, err := openChatStore(cfg, cl)
		if err != nil {
			return nil, err
		}
		runner.Fetchers = map[models.Kind]report.Fetcher{kind: store}
	case models.KindRepository:
		runner.Fetchers = map[models.Kind]report.Fetcher{kind: newGitHubClient(cfg)}
	}

	ledger, err := openLedger(cfg, cl)
	if err != nil {
		return nil, err
	}
	runner.Ledger = ledger

	runner.Publisher = &events.NoopPublisher{}
	if cfg.NATS.Enabled {
		pub, err := events.NewNATSPublisher(cfg.NATS.URL)
		if err != nil {
			logger.Warn("NATS unavailable, events disabled: %v", err)
		} else {
			runner.Publisher = pub
			cl.add(func() {
				if err := pub.Close(); err != nil {
					logger.Warn("Failed to close NATS publisher: %v", err)
				}
			})
		}
	}

	if cfg.S3.Enabled {
		dest, err := publish.NewS3Destination(ctx, cfg.S3.Bucket, cfg.S3.Prefix, cfg.S3.Region, cfg.S3.Endpoint)
		if err != nil {
			logger.Warn("S3 unavailable, upload disabled: %v", err)
		} else {
			runner.Uploader = dest
		}
	}

	if cfg.Telegram.Enabled {
		tg, err := telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			logger.Warn("Telegram unavailable, notifications disabled: %v", err)
		} else {
			runner.Notifier = tg
		}
	}

	return runner, nil
}
