package cli

import (
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	service "github.com/okian/evalboard/internal/app"
	"github.com/okian/evalboard/internal/domain/model"
)

func newSnapshotCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "List, save, show and delete leaderboard snapshots",
	}
	cmd.AddCommand(
		newSnapshotListCmd(flags),
		newSnapshotSaveCmd(flags),
		newSnapshotShowCmd(flags),
		newSnapshotDeleteCmd(flags),
	)
	return cmd
}

// withService opens the store and a service that is never started; snapshot
// commands only read and write the store.
func withService(cmd *cobra.Command, flags *rootFlags, fn func(svc *service.Service) error) error {
	ctx := cmd.Context()
	cfg, store, err := flags.openDurable(ctx)
	if err != nil {
		return err
	}
	defer store.Close()
	svc, cleanup, err := NewService(cfg, store, nil)
	if err != nil {
		return err
	}
	defer func() { _ = cleanup() }()
	return fn(svc)
}

func newSnapshotListCmd(flags *rootFlags) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List snapshots newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var day time.Time
			if date != "" {
				parsed, err := time.Parse(time.DateOnly, date)
				if err != nil {
					return fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
				}
				day = parsed
			}
			return withService(cmd, flags, func(svc *service.Service) error {
				snaps, err := svc.ListSnapshots(cmd.Context(), day)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tCREATED\tTRIGGER\tSOURCE\tSUBJECTS\tQUESTIONS")
				for _, s := range snaps {
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%d\n",
						s.ID, s.CreatedAt.Format(time.RFC3339), s.Metadata.Trigger, s.Metadata.Source,
						s.Metadata.SubjectCount, s.Metadata.QuestionCount)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "only snapshots taken on this UTC day (YYYY-MM-DD)")
	return cmd
}

func newSnapshotSaveCmd(flags *rootFlags) *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "save",
		Short: "Save a manual snapshot of the live leaderboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withService(cmd, flags, func(svc *service.Service) error {
				snap, err := svc.CaptureSnapshot(cmd.Context(), model.TriggerManual, source, "")
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "saved snapshot %d (%d subjects)\n", snap.ID, snap.Metadata.SubjectCount)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&source, "source", service.SourceOperator, "source recorded in the metadata")
	return cmd
}

func newSnapshotShowCmd(flags *rootFlags) *cobra.Command {
	var sortBy, sortOrder string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print a stored snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withService(cmd, flags, func(svc *service.Service) error {
				view, err := svc.GetSnapshot(cmd.Context(), id, sortBy, sortOrder)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), view)
				}
				return printBoard(cmd.OutOrStdout(), view.Dimensions, view.Rows)
			})
		},
	}
	cmd.Flags().StringVar(&sortBy, "sort-by", "", "re-sort stored rows")
	cmd.Flags().StringVar(&sortOrder, "sort-order", "", "asc or desc")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newSnapshotDeleteCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withService(cmd, flags, func(svc *service.Service) error {
				if err := svc.DeleteSnapshot(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted snapshot %d\n", id)
				return nil
			})
		},
	}
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}
