package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"vaulttrust/internal/config"
	"vaulttrust/internal/logger"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"
)

const programName = "vaulttrust"

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:           programName,
		Short:         "proof of reserves backend: REST API and ReserveSubmitted tracker",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveRun(cmd.Context(), true, true)
		},
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to YAML config file")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "run the REST API and the event tracker",
			RunE: func(cmd *cobra.Command, args []string) error {
				return serveRun(cmd.Context(), true, true)
			},
		},
		&cobra.Command{
			Use:   "api",
			Short: "run the REST API only",
			RunE: func(cmd *cobra.Command, args []string) error {
				return serveRun(cmd.Context(), true, false)
			},
		},
		&cobra.Command{
			Use:   "track",
			Short: "run the event tracker only",
			RunE: func(cmd *cobra.Command, args []string) error {
				return serveRun(cmd.Context(), false, true)
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "create or update the database schema and exit",
			RunE: func(cmd *cobra.Command, args []string) error {
				return migrateRun()
			},
		},
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		<-waitForInterrupt()
		logger.Info("interrupt signal received")
		cancel()
	}()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.Error("vaulttrust: exiting", zap.Error(err))
		logger.Sync()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger.Sync()
}

func commonRun() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := logger.Initialize(cfg.Logger()); err != nil {
		return nil, err
	}

	_, err = maxprocs.Set(maxprocs.Logger(func(format string, v ...any) {
		logger.Info(fmt.Sprintf(format, v...))
	}))
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

func waitForInterrupt() <-chan os.Signal {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	return sigCh
}
