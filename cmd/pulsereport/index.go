package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rewired-gh/pulsereport/internal/directory"
	"github.com/rewired-gh/pulsereport/internal/index"
	"github.com/rewired-gh/pulsereport/internal/logger"
	"github.com/rewired-gh/pulsereport/internal/models"
	"github.com/rewired-gh/pulsereport/internal/naming"
	"github.com/rewired-gh/pulsereport/internal/pipeline"
)

const (
	sourceLedger    = "ledger"
	sourceArtifacts = "artifacts"
)

var rebuildFrom string

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Maintain the metadata index",
}

var indexRebuildCmd = &cobra.Command{
	Use:   "rebuild <chats|repositories>",
	Short: "Rebuild the metadata index from the ledger or, as a last resort, from rendered artifacts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := parseKindArg(args[0])
		if err != nil {
			return err
		}
		if rebuildFrom != sourceLedger && rebuildFrom != sourceArtifacts {
			return configErr(fmt.Errorf("--from must be %q or %q", sourceLedger, sourceArtifacts))
		}
		target, err := targetFor(cfg, kind)
		if err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		var cl closers
		defer cl.close()

		ledger, err := openLedger(cfg, &cl)
		if err != nil {
			return err
		}
		holder := uuid.NewString()
		lease := pipeline.LeaseName(target.OutputDir)
		if err := ledger.AcquireLease(ctx, lease, holder, cfg.Run.LeaseTTL, time.Now()); err != nil {
			return err
		}
		defer func() {
			if err := ledger.ReleaseLease(context.Background(), lease, holder); err != nil {
				logger.Warn("Failed to release lease %s: %v", lease, err)
			}
		}()

		var entities []models.Entity
		var keys *naming.Keymap
		doc, err := directory.Load(target.DirectoryFile, kind)
		switch {
		case err == nil:
			entities = doc.DomainEntities()
			if keys, err = naming.NewKeymap(entities); err != nil {
				return configErr(err)
			}
		case rebuildFrom == sourceArtifacts && errors.Is(err, directory.ErrMissing):
			logger.Warn("Directory %s missing, recovering keys as found", target.DirectoryFile)
		default:
			return configErr(err)
		}

		var idx *models.MetadataIndex
		switch rebuildFrom {
		case sourceLedger:
			summaries, err := ledger.Summaries(ctx, kind)
			if err != nil {
				return err
			}
			idx, err = index.FromLedger(kind, entities, keys, summaries)
			if err != nil {
				return err
			}
		case sourceArtifacts:
			paths, err := filepath.Glob(filepath.Join(target.OutputDir, "report_*."+cfg.Run.ReportExt))
			if err != nil {
				return err
			}
			var warnings []index.Warning
			idx, warnings, err = index.Recover(kind, paths, keys)
			if err != nil {
				return err
			}
			for _, w := range warnings {
				logger.Warn("%v", w)
			}
			logger.Info("Recovered %d entities from %d artifacts (%d warnings)", len(idx.Entries), len(paths), len(warnings))
		}

		if err := index.Save(target.IndexPath, idx); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "index %s rebuilt from %s: %d entities written to %s\n",
			kind, rebuildFrom, len(idx.Entries), target.IndexPath)
		return nil
	},
}

func init() {
	indexRebuildCmd.Flags().StringVar(&rebuildFrom, "from", sourceLedger, "index source: ledger or artifacts")
	indexCmd.AddCommand(indexRebuildCmd)
}
