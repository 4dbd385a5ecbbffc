package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/epifield/outbreak-cli/internal/model"
	"github.com/epifield/outbreak-cli/internal/store"
)

var (
	runsStatus string
	runsStudy  string
	runsLimit  int
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List persisted analysis runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return err
		}

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Status: model.RunStatus(runsStatus),
			Study:  runsStudy,
			Limit:  runsLimit,
		})
		if err != nil {
			return err
		}

		printRuns(runs)
		return nil
	},
}

func init() {
	runsCmd.Flags().StringVar(&runsStatus, "status", "", "filter by status (running, complete, failed)")
	runsCmd.Flags().StringVar(&runsStudy, "study", "", "filter by study name")
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "max runs to list")
	rootCmd.AddCommand(runsCmd)
}

func printRuns(runs []model.Run) {
	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTUDY\tSTATUS\tSTRATA\tFOODS\tCREATED\t")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\t\n",
			r.ID, r.Study, r.Status, r.Strata, r.Foods,
			r.CreatedAt.Format("2006-01-02 15:04:05"),
		)
	}
	w.Flush() //nolint:errcheck
}
