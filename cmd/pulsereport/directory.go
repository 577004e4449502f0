package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/pulsereport/internal/directory"
	"github.com/rewired-gh/pulsereport/internal/logger"
	"github.com/rewired-gh/pulsereport/internal/models"
	"github.com/rewired-gh/pulsereport/internal/telegram"
)

var directoryCmd = &cobra.Command{
	Use:       "directory <chats|repositories>",
	Short:     "Refresh the entity directory from upstream sources",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"chats", "repositories"},
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := parseKindArg(args[0])
		if err != nil {
			return err
		}
		if err := cfg.RequireSource(kind); err != nil {
			return configErr(err)
		}
		target, err := targetFor(cfg, kind)
		if err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		var cl closers
		defer cl.close()

		refresher := &directory.Refresher{
			FetchTimeout: cfg.Run.FetchTimeout,
			ActiveWindow: cfg.Chats.ActiveWindow,
			TopN:         cfg.Chats.TopN,
		}
		switch kind {
		case models.KindChat:
			store, err := openChatStore(cfg, &cl)
			if err != nil {
				return err
			}
			refresher.Fetcher = store
			refresher.Chats = store
			if cfg.Telegram.LookupTitles {
				tg, err := telegram.NewClient(cfg.Telegram.BotToken, "", cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
				if err != nil {
					logger.Warn("Telegram unavailable, keeping stored chat titles: %v", err)
				} else {
					refresher.Titles = tg
				}
			}
		case models.KindRepository:
			gh := newGitHubClient(cfg)
			refresher.Fetcher = gh
			refresher.Repos = gh
			refresher.RepoIDs = cfg.Repositories.List
		}

		doc, failures, err := refresher.Refresh(ctx, kind)
		if err != nil {
			return err
		}
		for _, f := range failures {
			logger.Warn("%v", f)
		}
		if err := directory.Save(target.DirectoryFile, doc); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "directory %s: %d entities (%d failed) written to %s\n",
			kind, doc.Total, len(failures), target.DirectoryFile)
		return nil
	},
}
