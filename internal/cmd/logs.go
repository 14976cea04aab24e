package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/atkrun/internal/config"
	"github.com/Iron-Ham/atkrun/internal/logging"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View run logs",
	Long: `View and filter atkrun logs, including rotated and compressed backups.

By default, shows the last 50 entries across all runs. Use flags to filter
and format the output.

Examples:
  # Show last 50 entries
  atkrun logs

  # Show every entry of one batch run
  atkrun logs --run 3f0c... -n 0

  # Only failures of one verb
  atkrun logs --level warn --command SetPosition

  # Show logs from the last hour as CSV
  atkrun logs --since 1h --format csv

  # Follow the live log
  atkrun logs -f`,
	RunE: runLogs,
}

var (
	logsRunID   string
	logsCommand string
	logsTail    int
	logsFollow  bool
	logsLevel   string
	logsSince   string
	logsGrep    string
	logsFormat  string
	logsDir     string
)

// followPollInterval is how often follow mode checks for new lines.
const followPollInterval = 100 * time.Millisecond

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().StringVarP(&logsRunID, "run", "r", "", "Only entries from this run ID")
	logsCmd.Flags().StringVar(&logsCommand, "command", "", "Only entries for this command verb")
	logsCmd.Flags().IntVarP(&logsTail, "tail", "n", 50, "Number of entries to show (0 for all)")
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Follow log output (like tail -f)")
	logsCmd.Flags().StringVar(&logsLevel, "level", "", "Filter by minimum level (debug/info/warn/error)")
	logsCmd.Flags().StringVar(&logsSince, "since", "", "Show logs since duration ago (e.g., 1h, 30m)")
	logsCmd.Flags().StringVar(&logsGrep, "grep", "", "Only entries whose message contains this text")
	logsCmd.Flags().StringVar(&logsFormat, "format", "text", "Output format: text, json or csv")
	logsCmd.Flags().StringVar(&logsDir, "dir", "", "Log directory (default: logging.dir)")
}

func runLogs(cmd *cobra.Command, args []string) error {
	dir := logsDir
	if dir == "" {
		dir = config.Get().Logging.ResolveDir("")
	}

	filter, err := buildLogFilter()
	if err != nil {
		return err
	}

	if logsFollow {
		return followLogs(cmd, filepath.Join(dir, logging.LogFileName), filter)
	}

	entries, err := logging.AggregateLogs(dir)
	if err != nil {
		return err
	}
	entries = logging.FilterLogs(entries, filter)

	// Apply tail limit
	if logsTail > 0 && len(entries) > logsTail {
		entries = entries[len(entries)-logsTail:]
	}

	if len(entries) == 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), "No matching log entries found in", dir)
		return nil
	}
	return logging.ExportLogEntries(cmd.OutOrStdout(), entries, logsFormat)
}

func buildLogFilter() (logging.LogFilter, error) {
	filter := logging.LogFilter{
		RunID:           logsRunID,
		Command:         logsCommand,
		MessageContains: logsGrep,
	}

	if logsLevel != "" {
		filter.Level = logging.ParseLevel(logsLevel)
	}

	if logsSince != "" {
		duration, err := time.ParseDuration(logsSince)
		if err != nil {
			return logging.LogFilter{}, fmt.Errorf("invalid duration format: %w", err)
		}
		filter.StartTime = time.Now().Add(-duration)
	}

	return filter, nil
}

// followLogs implements tail -f behavior for the live log file. It stops
// when the command context is canceled.
func followLogs(cmd *cobra.Command, logPath string, filter logging.LogFilter) error {
	file, err := os.Open(logPath)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer file.Close()

	// Seek to end of file
	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("failed to seek to end: %w", err)
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Following %s... (Ctrl+C to stop)\n\n", logPath)

	ctx := cmd.Context()
	reader := bufio.NewReader(file)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err != io.EOF {
				return fmt.Errorf("error reading log file: %w", err)
			}
			// No new data, wait briefly and try again
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(followPollInterval):
			}
			continue
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		entry, err := logging.ParseLogEntry(line)
		if err != nil {
			// If we can't parse as JSON, display raw line
			fmt.Fprintln(cmd.OutOrStdout(), line)
			continue
		}

		matched := logging.FilterLogs([]logging.LogEntry{entry}, filter)
		if len(matched) == 0 {
			continue
		}
		if err := logging.ExportLogEntries(cmd.OutOrStdout(), matched, logsFormat); err != nil {
			return err
		}
	}
}
