package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tkivite/knowledgestore-api/internal/app"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API until SIGINT or SIGTERM",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := depsFrom(cmd)
			if err != nil {
				return err
			}
			log := rt.logger
			log.Info("starting knowledge store API",
				slog.String("environment", rt.cfg.Environment),
				slog.Int("http_port", rt.cfg.HTTPPort),
			)

			application, err := app.NewApp(rt.cfg, log)
			if err != nil {
				log.Error("failed to initialize application", slog.String("error", err.Error()))
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			if err := application.Run(ctx); err != nil {
				log.Error("application error", slog.String("error", err.Error()))
				return err
			}

			log.Info("knowledge store API stopped")
			return nil
		},
	}
}
