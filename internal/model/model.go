// Package model defines the records exchanged between the batch runner, the
// command executor and the report sinks.
package model

// OpenCommand is the command name used for the synthetic result that records
// a failed session open.
const OpenCommand = "OPEN"

// Bridge acknowledgement states reported by ExecutionResult.State.
const (
	StateACK  = "ACK"
	StateNACK = "NACK"
)

// EventLog is the ordered sequence of callback trace lines the bridge
// returns for one command invocation.
type EventLog []string

// Command is one domain instruction sent to the engine through the bridge.
type Command struct {
	// Command is the command verb (e.g. "New", "SetPosition").
	Command string `json:"command" yaml:"command"`
	// ObjPath is the target path expression. May be empty.
	ObjPath string `json:"objPath" yaml:"objPath"`
	// CmdParam holds the command arguments. May be empty.
	CmdParam string `json:"cmdParam" yaml:"cmdParam"`
	// WaitMs is the response wait budget in milliseconds. Nil means the
	// runner's wait policy decides.
	WaitMs *int `json:"waitMs,omitempty" yaml:"waitMs,omitempty"`
}

// WithWait returns a copy of c with an explicit wait budget.
func (c Command) WithWait(ms int) Command {
	c.WaitMs = &ms
	return c
}

// HasWait reports whether the command carries an explicit wait budget.
func (c Command) HasWait() bool {
	return c.WaitMs != nil
}

// ExecutionResult is the outcome of a single command attempt.
type ExecutionResult struct {
	// Index is the 1-based position within the batch; 0 marks the
	// synthetic OPEN result.
	Index    int      `json:"index"`
	Command  string   `json:"command"`
	ObjPath  string   `json:"objPath"`
	CmdParam string   `json:"cmdParam"`
	WaitMs   int      `json:"waitMs"`
	OK       bool     `json:"ok"`
	Reason   string   `json:"reason"`
	Events   EventLog `json:"events"`
}

// State returns the bridge-style acknowledgement for the result.
func (r ExecutionResult) State() string {
	if r.OK {
		return StateACK
	}
	return StateNACK
}

// BatchResult aggregates the results of one batch run.
type BatchResult struct {
	RunID   string            `json:"runId"`
	OK      bool              `json:"ok"`
	Results []ExecutionResult `json:"results"`
}

// Failed returns the results whose command did not succeed, in order.
func (b BatchResult) Failed() []ExecutionResult {
	var failed []ExecutionResult
	for _, r := range b.Results {
		if !r.OK {
			failed = append(failed, r)
		}
	}
	return failed
}
