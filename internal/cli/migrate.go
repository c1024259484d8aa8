package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/okian/evalboard/internal/adapters/repository"
)

func newMigrateCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := flags.load(ctx)
			if err != nil {
				return err
			}
			if err := requireDatabase(cfg); err != nil {
				return err
			}
			store, err := repository.OpenSQL(ctx, cfg.DatabaseURL, repository.WithAuthToken(cfg.DatabaseAuthToken))
			if err != nil {
				return err
			}
			defer store.Close()

			version, dirty, err := repository.CurrentVersion(ctx, store.DB())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty=%t)\n", version, dirty)
			return nil
		},
	}
}
