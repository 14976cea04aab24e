package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/Iron-Ham/atkrun/internal/model"
)

// DefaultConsoleWidth bounds a result line when no width is set.
const DefaultConsoleWidth = 120

type consoleStyles struct {
	ack    lipgloss.Style
	nack   lipgloss.Style
	index  lipgloss.Style
	verb   lipgloss.Style
	muted  lipgloss.Style
	reason lipgloss.Style
	event  lipgloss.Style
	pass   lipgloss.Style
	fail   lipgloss.Style
}

func newConsoleStyles(r *lipgloss.Renderer) consoleStyles {
	return consoleStyles{
		ack:    r.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true),
		nack:   r.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true),
		index:  r.NewStyle().Foreground(lipgloss.Color("#6B7280")),
		verb:   r.NewStyle().Bold(true),
		muted:  r.NewStyle().Foreground(lipgloss.Color("#9CA3AF")),
		reason: r.NewStyle().Foreground(lipgloss.Color("#F59E0B")),
		event:  r.NewStyle().Foreground(lipgloss.Color("#6B7280")).PaddingLeft(6),
		pass:   r.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true),
		fail:   r.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true),
	}
}

// ConsoleOption configures a Console.
type ConsoleOption func(*Console)

// WithVerbose prints every event line under each result.
func WithVerbose(verbose bool) ConsoleOption {
	return func(c *Console) { c.verbose = verbose }
}

// WithWidth sets the maximum visible width of a line. Non-positive values
// disable truncation.
func WithWidth(width int) ConsoleOption {
	return func(c *Console) { c.width = width }
}

// Console writes one styled line per result and a closing summary. Colors
// follow the capabilities of the destination writer, so output to a pipe or
// buffer is plain text.
type Console struct {
	w       io.Writer
	verbose bool
	width   int
	styles  consoleStyles
}

// NewConsole creates a Console writing to w.
func NewConsole(w io.Writer, opts ...ConsoleOption) *Console {
	c := &Console{
		w:      w,
		width:  DefaultConsoleWidth,
		styles: newConsoleStyles(lipgloss.NewRenderer(w)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Result writes res as "ACK  [1] New / Scenario Test (wait 60ms)", with the
// failure reason on NACK lines.
func (c *Console) Result(res model.ExecutionResult) error {
	var b strings.Builder

	state := c.styles.ack.Render(fmt.Sprintf("%-4s", res.State()))
	if !res.OK {
		state = c.styles.nack.Render(fmt.Sprintf("%-4s", res.State()))
	}
	b.WriteString(state)
	b.WriteString(" ")
	b.WriteString(c.styles.index.Render(fmt.Sprintf("[%d]", res.Index)))
	b.WriteString(" ")
	b.WriteString(c.styles.verb.Render(res.Command))
	if target := describeTarget(res); target != "" {
		b.WriteString(" ")
		b.WriteString(c.styles.muted.Render(target))
	}
	if res.Index > 0 {
		b.WriteString(" ")
		b.WriteString(c.styles.muted.Render(fmt.Sprintf("(wait %dms)", res.WaitMs)))
	}
	if !res.OK && res.Reason != "" {
		b.WriteString(" ")
		b.WriteString(c.styles.reason.Render(res.Reason))
	}

	if _, err := fmt.Fprintln(c.w, c.truncate(b.String())); err != nil {
		return sinkError("console", "result", err)
	}

	if c.verbose {
		for _, line := range res.Events {
			if _, err := fmt.Fprintln(c.w, c.truncate(c.styles.event.Render(line))); err != nil {
				return sinkError("console", "result", err)
			}
		}
	}
	return nil
}

// Summary writes the pass/fail line for the batch and lists failed commands.
func (c *Console) Summary(batch model.BatchResult) error {
	failed := batch.Failed()

	verdict := c.styles.pass.Render("PASS")
	if !batch.OK {
		verdict = c.styles.fail.Render("FAIL")
	}
	line := fmt.Sprintf("%s %d results, %d failed %s",
		verdict, len(batch.Results), len(failed), c.styles.muted.Render("run "+batch.RunID))

	if _, err := fmt.Fprintln(c.w, line); err != nil {
		return sinkError("console", "summary", err)
	}
	for _, res := range failed {
		item := fmt.Sprintf("  - [%d] %s: %s", res.Index, res.Command, res.Reason)
		if _, err := fmt.Fprintln(c.w, c.truncate(item)); err != nil {
			return sinkError("console", "summary", err)
		}
	}
	return nil
}

// Close is a no-op; the writer belongs to the caller.
func (c *Console) Close() error { return nil }

func (c *Console) truncate(s string) string {
	if c.width <= 0 || lipgloss.Width(s) <= c.width {
		return s
	}
	return ansi.Truncate(s, c.width, "...")
}

func describeTarget(res model.ExecutionResult) string {
	switch {
	case res.ObjPath != "" && res.CmdParam != "":
		return res.ObjPath + " " + res.CmdParam
	case res.ObjPath != "":
		return res.ObjPath
	default:
		return res.CmdParam
	}
}
