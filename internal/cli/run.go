package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Tom-Jenkins/maerl-wgs-pipelines/internal/parser"
	"github.com/Tom-Jenkins/maerl-wgs-pipelines/internal/scheduler"
	"github.com/Tom-Jenkins/maerl-wgs-pipelines/internal/store"
	"github.com/Tom-Jenkins/maerl-wgs-pipelines/pipelines"
	"github.com/Tom-Jenkins/maerl-wgs-pipelines/pkg/pipeline"
)

func newRunCmd() *cobra.Command {
	var (
		outDir  string
		workDir string
		cpus    int
		params  []string
	)

	cmd := &cobra.Command{
		Use:   "run <pipeline>",
		Short: "Execute a pipeline over the matching sample files",
		Long: `Runs a built-in pipeline by name (see 'maerl pipelines') or a pipeline
document given as a YAML file path. Samples run in parallel under the
CPU budget; outputs land in the sample-keyed output tree.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := loadPipeline(args[0])
			if err != nil {
				return err
			}

			overrides, err := parseParams(params)
			if err != nil {
				return err
			}

			st, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			eng, err := scheduler.New(doc, scheduler.Config{
				CPUBudget: cpus,
				OutDir:    outDir,
				WorkDir:   workDir,
				Params:    overrides,
			}, store.NewRecorder(st), logger)
			if err != nil {
				return err
			}

			res, runErr := eng.Run(cmd.Context())
			printSummary(res)
			if runErr != nil {
				return runErr
			}
			if res.Failed() {
				return fmt.Errorf("run %s failed", res.RunID)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&outDir, "outdir", "results", "Output tree root")
	cmd.Flags().StringVar(&workDir, "work-dir", "work", "Task working-directory root")
	cmd.Flags().IntVar(&cpus, "cpus", 0, "Global CPU budget (0 = all cores)")
	cmd.Flags().StringArrayVar(&params, "param", nil, "Pipeline parameter override, key=value (repeatable)")

	return cmd
}

// loadPipeline resolves a built-in pipeline name or a document path.
func loadPipeline(ref string) (*pipeline.Pipeline, error) {
	p := parser.New(logger)
	if strings.HasSuffix(ref, ".yaml") || strings.HasSuffix(ref, ".yml") {
		return p.ParseFile(ref)
	}
	data, err := pipelines.Load(ref)
	if err != nil {
		return nil, err
	}
	return p.Parse(data)
}

// parseParams converts repeated key=value flags into a param map.
func parseParams(kvs []string) (map[string]any, error) {
	if len(kvs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(kvs))
	for _, kv := range kvs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("bad --param %q, want key=value", kv)
		}
		out[k] = v
	}
	return out, nil
}
