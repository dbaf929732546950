package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"trading-indicators/internal/indengine"
	"trading-indicators/internal/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the live indicator service (configured from the environment)",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := indengine.LoadConfig()
	if err != nil {
		return err
	}
	log := logger.Init("indengine", logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := indengine.New(ctx, cfg, log)
	if err != nil {
		log.Error("init failed", "error", err)
		return err
	}
	return svc.Run(ctx)
}
