package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/tkivite/knowledgestore-api/internal/config"
	pkgconfig "github.com/tkivite/knowledgestore-api/pkg/config"
	"github.com/tkivite/knowledgestore-api/pkg/logger"
)

type contextKey string

const depsKey contextKey = "deps"

// deps is the state every subcommand shares.
type deps struct {
	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	var envFiles []string

	root := &cobra.Command{
		Use:   "knowledgestore",
		Short: "Knowledge store API: accounts, sessions and sign-in",
		Long: `knowledgestore runs the authentication API of the knowledge store.
Configuration is read from the environment. In development an optional
.env file is loaded first; variables already set in the environment win.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := pkgconfig.LoadDotenv(envFiles...); err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				slog.Error("failed to load config", slog.String("error", err.Error()))
				return err
			}
			rt := &deps{cfg: cfg, logger: logger.New(cfg.ServiceName, cfg.LogLevel)}
			cmd.SetContext(context.WithValue(cmd.Context(), depsKey, rt))
			return nil
		},
	}
	root.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env"}, "dotenv files to load before reading the environment")

	root.AddCommand(newServeCmd(), newMigrateCmd())
	return root
}

func depsFrom(cmd *cobra.Command) (*deps, error) {
	rt, ok := cmd.Context().Value(depsKey).(*deps)
	if !ok {
		return nil, errors.New("config not loaded")
	}
	return rt, nil
}
