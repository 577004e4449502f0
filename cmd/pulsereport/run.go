package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:       "run <chats|repositories>",
	Short:     "Build daily reports and the metadata index for one entity kind",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"chats", "repositories"},
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := parseKindArg(args[0])
		if err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		var cl closers
		defer cl.close()

		runner, err := newRunner(ctx, cfg, kind, &cl)
		if err != nil {
			return err
		}

		result, err := runner.Run(ctx, kind)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "run %s: %s, %d entities, %d reports, %d skipped days, index %s\n",
			result.RunID, result.Status, len(result.Outcomes), result.Reports(), result.SkippedDays(), result.IndexPath)
		return nil
	},
}
