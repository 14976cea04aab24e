package cmd

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/atkrun/internal/classify"
	"github.com/Iron-Ham/atkrun/internal/executor"
	"github.com/Iron-Ham/atkrun/internal/model"
)

var classifyCmd = &cobra.Command{
	Use:   "classify [file]",
	Short: "Classify callback events offline",
	Long: `Classify a callback event log without contacting the bridge.

Input is read from the file argument or stdin. It is either a bridge
response body ({"events": [...]}) or plain text with one event per line.

Examples:
  atkrun classify response.json
  printf 'onReceivedEx code=7\n' | atkrun classify`,
	Args: cobra.MaximumNArgs(1),
	RunE: runClassify,
}

var classifyJSON bool

func init() {
	rootCmd.AddCommand(classifyCmd)

	classifyCmd.Flags().BoolVar(&classifyJSON, "json", false, "Print the verdict as JSON")
}

type classifyVerdict struct {
	State  string         `json:"state"`
	OK     bool           `json:"ok"`
	Reason string         `json:"reason,omitempty"`
	Events model.EventLog `json:"events"`
}

func runClassify(cmd *cobra.Command, args []string) error {
	in := cmd.InOrStdin()
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open event file: %w", err)
		}
		defer f.Close()
		in = f
	}

	events, err := readEvents(in)
	if err != nil {
		return err
	}

	ok, reason := classify.Classify(events)
	verdict := classifyVerdict{
		State:  model.StateACK,
		OK:     ok,
		Reason: reason,
		Events: events,
	}
	if !ok {
		verdict.State = model.StateNACK
	}

	out := cmd.OutOrStdout()
	if classifyJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(verdict)
	}

	if ok {
		fmt.Fprintln(out, verdict.State)
	} else {
		fmt.Fprintf(out, "%s %s\n", verdict.State, reason)
	}
	return nil
}

// readEvents accepts a bridge response body or one event per line.
func readEvents(r io.Reader) (model.EventLog, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}

	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' {
		return executor.ParseEvents(trimmed)
	}

	events := model.EventLog{}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			events = append(events, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	return events, nil
}
