// Package batch runs an ordered list of commands inside one bridge session.
//
// A run moves through NOT_STARTED, SESSION_OPEN, one EXECUTING step per
// command, SESSION_CLOSING and CLOSED. A failed open ends the run with a
// single synthetic OPEN result and no close. Once open succeeds, close runs
// exactly once no matter how the run ends, including a panic.
package batch

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Iron-Ham/atkrun/internal/errors"
	"github.com/Iron-Ham/atkrun/internal/logging"
	"github.com/Iron-Ham/atkrun/internal/model"
)

// ReasonOpenFailedPrefix starts the reason of the synthetic OPEN result.
const ReasonOpenFailedPrefix = "open_failed: "

// DefaultInterCommandDelay is the pause after each command.
const DefaultInterCommandDelay = 100 * time.Millisecond

// Session is the bridge session lifecycle the runner drives.
type Session interface {
	Open(ctx context.Context, host string, port int) error
	Close(ctx context.Context)
}

// CommandExecutor runs a single command.
type CommandExecutor interface {
	Execute(ctx context.Context, cmd model.Command, waitMs int) model.ExecutionResult
}

// Observer receives each result as soon as it is produced, including the
// synthetic OPEN result.
type Observer func(model.ExecutionResult)

// Options configures a Runner.
type Options struct {
	// Host and Port are the engine address the bridge opens.
	Host string
	Port int

	// InterCommandDelay is the pause after each command. Negative values
	// are treated as zero.
	InterCommandDelay time.Duration

	// CloseGrace is an optional pause before close that lets late
	// callbacks drain on the bridge.
	CloseGrace time.Duration

	// WaitPolicy defaults to DefaultWaitPolicy when nil.
	WaitPolicy *WaitPolicy

	// RunID identifies the run in logs and results. A random UUID is
	// generated when empty.
	RunID string

	Observer Observer
	Logger   *logging.Logger
}

// Runner executes batches. Runs are sequential; a Runner must not be used
// for concurrent batches.
type Runner struct {
	session  Session
	executor CommandExecutor

	host       string
	port       int
	delay      time.Duration
	closeGrace time.Duration
	policy     WaitPolicy
	runID      string
	observer   Observer
	logger     *logging.Logger

	// Swappable in tests.
	sleep func(ctx context.Context, d time.Duration)
	newID func() string
}

// New creates a Runner. It returns a *errors.ValidationError when the
// engine address is unusable.
func New(sess Session, exec CommandExecutor, opts Options) (*Runner, error) {
	if sess == nil || exec == nil {
		return nil, errors.NewValidationError("session and executor are required")
	}
	if opts.Host == "" {
		return nil, errors.NewValidationError("engine host is required").WithField("host")
	}
	if opts.Port < 1 || opts.Port > 65535 {
		return nil, errors.NewValidationError("engine port must be between 1 and 65535").
			WithField("port").
			WithValue(opts.Port)
	}

	policy := DefaultWaitPolicy()
	if opts.WaitPolicy != nil {
		policy = *opts.WaitPolicy
	}

	return &Runner{
		session:    sess,
		executor:   exec,
		host:       opts.Host,
		port:       opts.Port,
		delay:      max(opts.InterCommandDelay, 0),
		closeGrace: max(opts.CloseGrace, 0),
		policy:     policy,
		runID:      opts.RunID,
		observer:   opts.Observer,
		logger:     logging.OrNop(opts.Logger),
		sleep:      sleepContext,
		newID:      uuid.NewString,
	}, nil
}

// Run opens the session, executes commands in order, and closes the
// session. A failing command never stops the batch, and no error escapes:
// every outcome is in the returned BatchResult. If ctx is canceled mid-run,
// remaining commands still get a result, each failing fast at the transport.
func (r *Runner) Run(ctx context.Context, commands []model.Command) model.BatchResult {
	runID := r.runID
	if runID == "" {
		runID = r.newID()
	}
	log := r.logger.WithRun(runID)

	result := model.BatchResult{
		RunID:   runID,
		OK:      true,
		Results: make([]model.ExecutionResult, 0, len(commands)),
	}

	log.Info("batch started", "commands", len(commands), "host", r.host, "port", r.port)

	if err := r.session.Open(ctx, r.host, r.port); err != nil {
		open := model.ExecutionResult{
			Index:   0,
			Command: model.OpenCommand,
			OK:      false,
			Reason:  ReasonOpenFailedPrefix + err.Error(),
			Events:  model.EventLog{},
		}
		log.Error("batch aborted: session open failed",
			"error", err.Error(),
			"retryable", errors.IsRetryable(err),
		)
		r.observe(open)

		result.OK = false
		result.Results = append(result.Results, open)
		return result
	}

	defer func() {
		if r.closeGrace > 0 {
			r.sleep(ctx, r.closeGrace)
		}
		r.session.Close(ctx)
		log.Info("batch finished", "ok", result.OK, "failed", len(result.Failed()))
	}()

	for i, cmd := range commands {
		waitMs := r.policy.For(cmd)

		res := r.executor.Execute(ctx, cmd, waitMs)
		res.Index = i + 1
		if res.Events == nil {
			res.Events = model.EventLog{}
		}

		cmdLog := log.WithCommand(res.Index, cmd.Command)
		if res.OK {
			cmdLog.Info("command ok", "wait_ms", waitMs)
		} else {
			result.OK = false
			cmdLog.Warn("command failed", "wait_ms", waitMs, "reason", res.Reason)
		}

		result.Results = append(result.Results, res)
		r.observe(res)

		if r.delay > 0 {
			r.sleep(ctx, r.delay)
		}
	}

	return result
}

func (r *Runner) observe(res model.ExecutionResult) {
	if r.observer != nil {
		r.observer(res)
	}
}

// sleepContext waits for d or until ctx is done, whichever comes first.
func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
