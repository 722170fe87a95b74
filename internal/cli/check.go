package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// CheckResult reports whether one scenario file parsed and compiled.
type CheckResult struct {
	Path   string   `json:"path"`
	Name   string   `json:"name,omitempty"`
	OK     bool     `json:"ok"`
	Errors []string `json:"errors,omitempty"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	var compiler string

	cmd := &cobra.Command{
		Use:   "check <file-or-dir>...",
		Short: "Validate scenarios and compile their expressions without running them",
		Long: `Parse each scenario, validate its steps and compile every watch, group
and eval expression with the selected compiler.

Exit codes:
  0 - Every scenario is valid
  1 - At least one scenario is invalid
  2 - Command error (missing path)`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var files []string
			for _, arg := range args {
				info, err := os.Stat(arg)
				if err != nil {
					return WrapExitError(ExitCommandError, "path not found", err)
				}
				if !info.IsDir() {
					files = append(files, arg)
					continue
				}
				found, err := FindScenarioFiles(arg)
				if err != nil {
					return WrapExitError(ExitCommandError, arg, err)
				}
				files = append(files, found...)
			}

			results := make([]CheckResult, 0, len(files))
			failed := 0
			for _, file := range files {
				result := CheckScenario(file, compiler)
				if !result.OK {
					failed++
				}
				results = append(results, result)
			}

			out := cmd.OutOrStdout()
			if rootOpts.Format == "json" {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(results); err != nil {
					return err
				}
			} else {
				for _, result := range results {
					if result.OK {
						fmt.Fprintf(out, "ok   %s\n", result.Path)
						continue
					}
					fmt.Fprintf(out, "FAIL %s\n", result.Path)
					for _, msg := range result.Errors {
						fmt.Fprintf(out, "     %s\n", msg)
					}
				}
			}
			if failed > 0 {
				return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenario(s) invalid", failed, len(results)))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&compiler, "compiler", "", "override the scenario compiler (expr|cel|js)")
	return cmd
}

// CheckScenario loads path and compiles every expression it declares.
func CheckScenario(path, compilerOverride string) CheckResult {
	result := CheckResult{Path: path}
	scenario, err := LoadScenario(path)
	if err != nil {
		result.Errors = []string{err.Error()}
		return result
	}
	result.Name = scenario.Name

	name := scenario.Compiler
	if compilerOverride != "" {
		name = compilerOverride
	}
	compiler, err := NewCompiler(name)
	if err != nil {
		result.Errors = []string{err.Error()}
		return result
	}
	for i, step := range scenario.Steps {
		for _, source := range step.expressions() {
			if _, err := compiler.Compile(source); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("step %d: %s: %v", i+1, source, err))
			}
		}
	}
	result.OK = len(result.Errors) == 0
	return result
}
