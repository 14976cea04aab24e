// Package executor sends one command through the bridge and turns the
// bridge's answer into a classified result.
package executor

import (
	"context"
	"time"

	"github.com/tidwall/gjson"

	"github.com/Iron-Ham/atkrun/internal/classify"
	"github.com/Iron-Ham/atkrun/internal/errors"
	"github.com/Iron-Ham/atkrun/internal/logging"
	"github.com/Iron-Ham/atkrun/internal/model"
	"github.com/Iron-Ham/atkrun/internal/transport"
)

// ReasonHTTPErrorPrefix starts the reason of every result whose exchange
// with the bridge failed.
const ReasonHTTPErrorPrefix = "http_error: "

// connectRequest is the /atk/connect body. Field order is the wire order.
type connectRequest struct {
	Command  string `json:"command"`
	ObjPath  string `json:"objPath"`
	CmdParam string `json:"cmdParam"`
	WaitMs   int    `json:"waitMs"`
}

// Executor runs single commands. It holds no per-command state.
type Executor struct {
	poster transport.Poster
	logger *logging.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(e *Executor) {
		e.logger = logging.OrNop(logger)
	}
}

// New creates an Executor that talks to the bridge through poster.
func New(poster transport.Poster, opts ...Option) *Executor {
	e := &Executor{
		poster: poster,
		logger: logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute sends cmd with the given wait budget and classifies the events the
// bridge returns. It never returns an error: transport failures and
// undecodable responses become a failed result with an "http_error: " reason
// and no events. The returned Index is 0; callers assign positions.
func (e *Executor) Execute(ctx context.Context, cmd model.Command, waitMs int) model.ExecutionResult {
	result := model.ExecutionResult{
		Command:  cmd.Command,
		ObjPath:  cmd.ObjPath,
		CmdParam: cmd.CmdParam,
		WaitMs:   waitMs,
		Events:   model.EventLog{},
	}

	req := connectRequest{
		Command:  cmd.Command,
		ObjPath:  cmd.ObjPath,
		CmdParam: cmd.CmdParam,
		WaitMs:   waitMs,
	}

	e.logger.Debug("sending command", "obj_path", cmd.ObjPath, "cmd_param", cmd.CmdParam, "wait_ms", waitMs)

	start := time.Now()
	body, err := e.poster.Post(ctx, transport.PathConnect, req)
	if err != nil {
		result.Reason = ReasonHTTPErrorPrefix + err.Error()
		e.logger.Warn("command transport failed", "error", err.Error(), "retryable", errors.IsRetryable(err))
		return result
	}

	events, err := ParseEvents(body)
	if err != nil {
		result.Reason = ReasonHTTPErrorPrefix + err.Error()
		e.logger.Warn("command response undecodable", "error", err.Error())
		return result
	}

	result.Events = events
	result.OK, result.Reason = classify.Classify(events)

	e.logger.Info("command finished",
		"ok", result.OK,
		"reason", result.Reason,
		"events", len(events),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result
}

// ParseEvents extracts the "events" array from a /atk/connect response.
// An empty body counts as {}. A missing or non-array "events" yields an
// empty log. String elements are used as-is and any other element as its
// JSON text.
func ParseEvents(body []byte) (model.EventLog, error) {
	if len(body) == 0 {
		return model.EventLog{}, nil
	}
	if !gjson.ValidBytes(body) {
		return nil, &invalidJSONError{body: body}
	}

	field := gjson.GetBytes(body, "events")
	if !field.IsArray() {
		return model.EventLog{}, nil
	}

	elems := field.Array()
	events := make(model.EventLog, 0, len(elems))
	for _, el := range elems {
		if el.Type == gjson.String {
			events = append(events, el.Str)
		} else {
			events = append(events, el.Raw)
		}
	}
	return events, nil
}

type invalidJSONError struct {
	body []byte
}

func (e *invalidJSONError) Error() string {
	const maxSnippet = 120
	snippet := string(e.body)
	if len(snippet) > maxSnippet {
		snippet = snippet[:maxSnippet] + "..."
	}
	return "invalid JSON response: " + snippet
}
