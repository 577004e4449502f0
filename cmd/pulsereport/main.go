// Command pulsereport generates daily activity reports for monitored chats
// and repositories.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/pulsereport/internal/config"
	"github.com/rewired-gh/pulsereport/internal/logger"
	"github.com/rewired-gh/pulsereport/internal/models"
	"github.com/rewired-gh/pulsereport/internal/pipeline"
)

// Exit codes
const (
	exitOK     = 0
	exitFatal  = 1
	exitConfig = 2
)

var (
	configPath string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "pulsereport",
	Short:         "Activity aggregation and report generation for chats and repositories",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return configErr(err)
		}
		if err := loaded.Validate(); err != nil {
			return configErr(fmt.Errorf("invalid configuration: %w", err))
		}
		cfg = loaded

		logger.Init(cfg.Logging.Level, cfg.Logging.Format)
		if configPath != "" {
			logger.Debug("Configuration loaded from %s", configPath)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath(), "path to configuration file (empty for defaults and environment only)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(directoryCmd)
	rootCmd.AddCommand(indexCmd)
}

func defaultConfigPath() string {
	if p := os.Getenv("PULSE_CONFIG"); p != "" {
		return p
	}
	if _, err := os.Stat("configs/config.yaml"); err == nil {
		return "configs/config.yaml"
	}
	return ""
}

// configErr marks err as a configuration failure.
func configErr(err error) error {
	return fmt.Errorf("%w: %v", pipeline.ErrConfig, err)
}

func parseKindArg(arg string) (models.Kind, error) {
	kind, err := models.ParseKind(arg)
	if err != nil {
		return "", configErr(err)
	}
	return kind, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			logger.Info("Shutdown signal received, cancelling run...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()
	return ctx, cancel
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, pipeline.ErrConfig):
		return exitConfig
	}
	return exitFatal
}

func main() {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(exitCode(err))
}
