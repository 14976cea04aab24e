package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/atkrun/internal/errors"
	"github.com/Iron-Ham/atkrun/internal/model"
)

var sendCmd = &cobra.Command{
	Use:   "send <command> [objPath] [cmdParam]",
	Short: "Send a single command",
	Long: `Open a bridge session, send one command, and close the session.

Without --wait, the wait budget follows the configured policy: wait.new_verb_ms
for "New" and wait.default_ms for every other verb.

Examples:
  atkrun send New / "Scenario Test"
  atkrun send SetPosition /Ship1 "10 20" --wait 500`,
	Args: cobra.RangeArgs(1, 3),
	RunE: runSend,
}

var (
	sendWait    int
	sendFormat  string
	sendVerbose bool
)

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().IntVarP(&sendWait, "wait", "w", -1, "Wait budget in milliseconds (default: wait policy)")
	sendCmd.Flags().StringVar(&sendFormat, "format", "", "Report format: console, jsonl or none (default: report.format)")
	sendCmd.Flags().BoolVarP(&sendVerbose, "verbose", "v", true, "Print the callback events under the result")
}

func runSend(cmd *cobra.Command, args []string) error {
	command, err := commandFromArgs(args, sendWait, cmd.Flags().Changed("wait"))
	if err != nil {
		return err
	}
	return executeBatch(cmd, "send", []model.Command{command}, "", sendFormat, sendVerbose)
}

// commandFromArgs builds a Command from positional arguments. An explicit
// wait must be non-negative.
func commandFromArgs(args []string, waitMs int, waitSet bool) (model.Command, error) {
	if strings.TrimSpace(args[0]) == "" {
		return model.Command{}, errors.NewValidationError("command verb is required").WithField("command")
	}
	command := model.Command{Command: args[0]}
	if len(args) > 1 {
		command.ObjPath = args[1]
	}
	if len(args) > 2 {
		command.CmdParam = args[2]
	}

	if waitSet {
		if waitMs < 0 {
			return model.Command{}, errors.NewValidationError("--wait must be non-negative").
				WithField("wait").
				WithValue(waitMs)
		}
		command = command.WithWait(waitMs)
	}
	return command, nil
}
