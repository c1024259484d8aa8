package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/okian/evalboard/internal/corpus"
)

func newImportCmd(flags *rootFlags) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "import <corpus.yaml>",
		Short: "Validate and load a corpus file",
		Long: `Validate a corpus file and upsert its dimensions, subjects, questions and
settings. Dimension and question ids come from the file, so importing the same
file twice changes nothing.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := corpus.Read(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if dryRun {
				fmt.Fprintf(out, "%s is valid: %d subjects, %d questions\n", args[0], len(c.Subjects), len(c.Questions))
				return nil
			}

			ctx := cmd.Context()
			_, store, err := flags.openDurable(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			sum, err := corpus.Import(ctx, store, c)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "imported %d dimensions, %d subjects, %d questions, %d settings\n",
				sum.Dimensions, sum.Subjects, sum.Questions, sum.Settings)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate only")
	return cmd
}
