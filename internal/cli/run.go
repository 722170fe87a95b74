package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Compiler   string
	FlushLimit int
	Describe   bool
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>...",
		Short: "Run scenarios and print their delivery traces",
		Long: `Run each scenario on a fresh runtime and print its trace.

Exit codes:
  0 - All scenarios ran
  1 - A scenario step failed
  2 - Command error (unreadable or invalid scenario file)

Examples:
  scopectl run ./scenarios/basic.yaml
  scopectl run ./scenarios/*.yaml --compiler cel
  scopectl run ./scenarios/basic.yaml --format json
  scopectl run ./scenarios/basic.yaml --describe`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(cmd, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.Compiler, "compiler", "", "override the scenario compiler (expr|cel|js)")
	cmd.Flags().IntVar(&opts.FlushLimit, "flush-limit", 0, "maximum turns per flush (0 uses the runtime default)")
	cmd.Flags().BoolVar(&opts.Describe, "describe", false, "list the final root paths with their types and watcher counts")

	return cmd
}

func runScenarios(cmd *cobra.Command, opts *RunOptions, paths []string) error {
	runner := Runner{
		Compiler:   opts.Compiler,
		FlushLimit: opts.FlushLimit,
		Describe:   opts.Describe,
		Logger:     opts.logger(cmd.ErrOrStderr()),
	}

	results := make([]*Result, 0, len(paths))
	for _, path := range paths {
		scenario, err := LoadScenario(path)
		if err != nil {
			return WrapExitError(ExitCommandError, path, err)
		}
		result, err := runner.Run(scenario)
		if err != nil {
			return WrapExitError(ExitFailure, fmt.Sprintf("scenario %s", scenario.Name), err)
		}
		results = append(results, result)
	}

	if opts.Format == "json" {
		return WriteJSON(cmd.OutOrStdout(), results)
	}
	for _, result := range results {
		if err := WriteText(cmd.OutOrStdout(), result); err != nil {
			return err
		}
	}
	return nil
}
