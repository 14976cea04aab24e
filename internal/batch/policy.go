package batch

import (
	"strings"

	"github.com/Iron-Ham/atkrun/internal/model"
)

// Default wait budgets in milliseconds.
const (
	DefaultNewVerbWaitMs = 60
	DefaultWaitMs        = 200
)

// newVerb is the scenario-creation verb that gets the short wait.
const newVerb = "new"

// WaitPolicy picks the waitMs sent with a command that has no explicit one.
type WaitPolicy struct {
	NewVerbMs int
	DefaultMs int
}

// DefaultWaitPolicy returns the 60/200 ms policy.
func DefaultWaitPolicy() WaitPolicy {
	return WaitPolicy{
		NewVerbMs: DefaultNewVerbWaitMs,
		DefaultMs: DefaultWaitMs,
	}
}

// For returns the wait budget for cmd. An explicit WaitMs, including 0,
// always wins. Otherwise the verb "new" (trimmed, any case) gets NewVerbMs
// and every other verb gets DefaultMs.
func (p WaitPolicy) For(cmd model.Command) int {
	if cmd.WaitMs != nil {
		return *cmd.WaitMs
	}
	if strings.EqualFold(strings.TrimSpace(cmd.Command), newVerb) {
		return p.NewVerbMs
	}
	return p.DefaultMs
}
