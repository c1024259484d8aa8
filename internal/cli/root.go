// Package cli implements the evalctl operator commands.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/okian/evalboard/internal/adapters/repository"
	"github.com/okian/evalboard/internal/config"
	"github.com/okian/evalboard/pkg/logger"
)

type rootFlags struct {
	configPath string
	dbURL      string
}

// NewRootCmd builds the evalctl command tree.
func NewRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:   "evalctl",
		Short: "Operate the evaluation leaderboard",
		Long: `evalctl manages the evaluation database: apply migrations, import a
corpus, print the live leaderboard and manage snapshots.

Configuration follows the server: defaults, then the YAML file named by
EVALBOARD_CONFIG (or --config), then EVALBOARD_* environment variables.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "YAML config file")
	root.PersistentFlags().StringVar(&flags.dbURL, "db", "", "libsql DSN, overrides database_url")

	root.AddCommand(
		newMigrateCmd(flags),
		newImportCmd(flags),
		newLeaderboardCmd(flags),
		newSnapshotCmd(flags),
	)
	return root
}

// Execute runs the command tree and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (f *rootFlags) load(ctx context.Context) (*config.Config, error) {
	if f.configPath != "" {
		if err := os.Setenv(config.EnvConfigFile, f.configPath); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, err
	}
	if f.dbURL != "" {
		cfg.DatabaseURL = f.dbURL
	}
	if err := logger.Init(logger.WithFormat(cfg.LogFormat), logger.WithOutput(os.Stderr)); err != nil {
		return nil, err
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openDurable loads config and opens the configured SQL store.
func (f *rootFlags) openDurable(ctx context.Context) (*config.Config, repository.Store, error) {
	cfg, err := f.load(ctx)
	if err != nil {
		return nil, nil, err
	}
	if err := requireDatabase(cfg); err != nil {
		return nil, nil, err
	}
	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, store, nil
}
