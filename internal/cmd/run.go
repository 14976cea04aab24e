package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/atkrun/internal/model"
	"github.com/Iron-Ham/atkrun/internal/script"
)

var runCmd = &cobra.Command{
	Use:   "run <batch-file>",
	Short: "Run a batch file through the bridge",
	Long: `Run every command in a batch file inside one bridge session.

The batch file is YAML (.yaml, .yml), JSON (.json) or JSON with comments
(.jsonc). It is either a list of commands or a mapping with "name" and
"commands":

  name: smoke
  commands:
    - command: New
      objPath: /
      cmdParam: Scenario Test
    - command: SetPosition
      objPath: /Ship1
      cmdParam: "10 20"
      waitMs: 500

A failing command does not stop the batch. The exit status is non-zero when
the session could not be opened or any command failed.

Examples:
  atkrun run smoke.yaml
  atkrun run smoke.yaml --format jsonl > results.jsonl
  atkrun run smoke.yaml --verbose`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

var (
	runFormat  string
	runVerbose bool
	runRunID   string
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runFormat, "format", "", "Report format: console, jsonl or none (default: report.format)")
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Print the callback events under each result")
	runCmd.Flags().StringVar(&runRunID, "run-id", "", "Run ID for logs and reports (default: random UUID)")
}

// BatchFailedError is returned when a batch finished with failures.
type BatchFailedError struct {
	RunID  string
	Failed int
	Total  int
}

func (e *BatchFailedError) Error() string {
	return fmt.Sprintf("batch %s failed: %d of %d results failed", e.RunID, e.Failed, e.Total)
}

func runRun(cmd *cobra.Command, args []string) error {
	file, err := script.NewLoader(nil).Load(args[0])
	if err != nil {
		return err
	}

	return executeBatch(cmd, file.Name, file.Commands, runRunID, runFormat, runVerbose)
}

// executeBatch runs commands in one session and reports every result.
func executeBatch(cmd *cobra.Command, name string, commands []model.Command, runID, format string, verbose bool) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if runID == "" {
		runID = uuid.NewString()
	}

	sink, err := a.sinks(runID, format, verbose, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer func() {
		if err := sink.Close(); err != nil {
			a.logger.Warn("closing report sinks failed", "error", err.Error())
		}
	}()

	runner, err := a.runner(runID, sink, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	a.logger.WithRun(runID).Info("running batch", "name", name, "commands", len(commands))
	result := runner.Run(cmd.Context(), commands)

	if err := sink.Summary(result); err != nil {
		a.logger.Warn("report summary failed", "error", err.Error())
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
	}

	if !result.OK {
		return &BatchFailedError{
			RunID:  result.RunID,
			Failed: len(result.Failed()),
			Total:  len(result.Results),
		}
	}
	return nil
}
