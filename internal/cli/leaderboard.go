package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/okian/evalboard/internal/domain/leaderboard"
	"github.com/okian/evalboard/internal/domain/types"
)

func newLeaderboardCmd(flags *rootFlags) *cobra.Command {
	var sortBy, sortOrder string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Compute and print the live leaderboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
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

			lb, err := svc.Leaderboard(ctx, sortBy, sortOrder)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), lb)
			}
			return printBoard(cmd.OutOrStdout(), lb.Dimensions, lb.Rows)
		},
	}
	cmd.Flags().StringVar(&sortBy, "sort-by", leaderboard.SortAvgScore, "avg_score, response_rate or dim_<id>")
	cmd.Flags().StringVar(&sortOrder, "sort-order", leaderboard.OrderDesc, "asc or desc")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printBoard(w io.Writer, dims []types.DimensionRef, rows []types.Row) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	header := []string{"RANK", "SUBJECT", "SCORE", "RESPONSE%", "RATINGS"}
	for _, d := range dims {
		header = append(header, strings.ToUpper(d.Name))
	}
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, r := range rows {
		cells := []string{
			fmt.Sprint(r.TotalScoreRank),
			r.SubjectName,
			fmt.Sprintf("%.2f", r.AvgScore),
			fmt.Sprintf("%.1f", r.ResponseRate),
			fmt.Sprint(r.RatingCount),
		}
		for _, d := range dims {
			ds, ok := r.DimScore(d.ID)
			if !ok || ds.Display == "" {
				cells = append(cells, "-")
				continue
			}
			cells = append(cells, ds.Display)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}
