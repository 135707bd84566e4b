package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Tom-Jenkins/maerl-wgs-pipelines/internal/parser"
	"github.com/Tom-Jenkins/maerl-wgs-pipelines/pipelines"
)

func newPipelinesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pipelines",
		Short: "List the built-in pipelines",
		RunE: func(cmd *cobra.Command, args []string) error {
			p := parser.New(logger)
			fmt.Printf("%-12s  %-8s  %s\n", "NAME", "STAGES", "CHANNELS")
			fmt.Printf("%-12s  %-8s  %s\n", "----", "------", "--------")
			for _, name := range pipelines.Names() {
				data, err := pipelines.Load(name)
				if err != nil {
					return err
				}
				doc, err := p.Parse(data)
				if err != nil {
					return fmt.Errorf("built-in %s: %w", name, err)
				}
				fmt.Printf("%-12s  %-8d  %d\n", name, len(doc.Stages), len(doc.Channels))
			}
			return nil
		},
	}
}
