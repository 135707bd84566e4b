package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List recorded runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			runs, err := st.ListRuns(cmd.Context())
			if err != nil {
				return fmt.Errorf("list runs: %w", err)
			}

			if len(runs) == 0 {
				fmt.Println("No runs found.")
				return nil
			}

			fmt.Printf("%-16s  %-20s  %-10s  %s\n", "ID", "PIPELINE", "STATUS", "STARTED")
			fmt.Printf("%-16s  %-20s  %-10s  %s\n", "----", "--------", "------", "-------")
			for _, run := range runs {
				fmt.Printf("%-16s  %-20s  %-10s  %s\n",
					run.ID, run.Pipeline, run.Status,
					run.StartedAt.Local().Format(time.RFC3339))
			}
			return nil
		},
	}
}
