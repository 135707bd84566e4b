package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Tom-Jenkins/maerl-wgs-pipelines/pkg/model"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <run-id>",
		Short: "Show the per-sample/stage summary of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			st, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			run, err := st.GetRun(cmd.Context(), id)
			if err != nil {
				return err
			}
			if run == nil {
				return fmt.Errorf("run %s not found", id)
			}

			summary, err := st.RunSummary(cmd.Context(), id)
			if err != nil {
				return err
			}

			fmt.Printf("run %s (%s): %s\n\n", run.ID, run.Pipeline, run.Status)
			printSummaryRows(summary)
			return nil
		},
	}
}

// printSummary renders a finished run's per-sample/stage table.
func printSummary(res *model.RunResult) {
	if res == nil {
		return
	}
	fmt.Printf("run %s (%s): %s\n\n", res.RunID, res.Pipeline, res.Status)
	printSummaryRows(res.Summary())
}

func printSummaryRows(rows []model.StageSummary) {
	if len(rows) == 0 {
		fmt.Println("No tasks recorded.")
		return
	}
	fmt.Printf("%-20s  %-20s  %-10s  %s\n", "SAMPLE", "STAGE", "STATUS", "ATTEMPT")
	fmt.Printf("%-20s  %-20s  %-10s  %s\n", "------", "-----", "------", "-------")
	for _, row := range rows {
		fmt.Printf("%-20s  %-20s  %-10s  %d\n", row.SampleID, row.Stage, row.Status, row.Attempt)
	}
}
