package batch

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Iron-Ham/atkrun/internal/errors"
	"github.com/Iron-Ham/atkrun/internal/executor"
	"github.com/Iron-Ham/atkrun/internal/model"
	"github.com/Iron-Ham/atkrun/internal/session"
	"github.com/Iron-Ham/atkrun/internal/testutil"
	"github.com/Iron-Ham/atkrun/internal/transport"
)

// fakeSession records lifecycle calls.
type fakeSession struct {
	mu      sync.Mutex
	openErr error
	calls   []string
}

func (s *fakeSession) Open(_ context.Context, host string, port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "open")
	return s.openErr
}

func (s *fakeSession) Close(context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "close")
}

func (s *fakeSession) count(call string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c == call {
			n++
		}
	}
	return n
}

// fakeExecutor fails commands whose verb is in fail and records waits.
type fakeExecutor struct {
	fail    map[string]bool
	panicOn string
	waits   []int
	verbs   []string
}

func (e *fakeExecutor) Execute(_ context.Context, cmd model.Command, waitMs int) model.ExecutionResult {
	if cmd.Command == e.panicOn {
		panic("boom")
	}
	e.waits = append(e.waits, waitMs)
	e.verbs = append(e.verbs, cmd.Command)

	res := model.ExecutionResult{Command: cmd.Command, WaitMs: waitMs, OK: true}
	if e.fail[cmd.Command] {
		res.OK = false
		res.Reason = "onReceivedEx code=7"
	}
	return res
}

func newTestRunner(t *testing.T, sess Session, exec CommandExecutor, opts Options) (*Runner, *[]time.Duration) {
	t.Helper()

	if opts.Host == "" {
		opts.Host = "127.0.0.1"
	}
	if opts.Port == 0 {
		opts.Port = 6655
	}
	r, err := New(sess, exec, opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	var sleeps []time.Duration
	r.sleep = func(_ context.Context, d time.Duration) { sleeps = append(sleeps, d) }
	r.newID = func() string { return "run-test" }
	return r, &sleeps
}

func cmds(verbs ...string) []model.Command {
	out := make([]model.Command, len(verbs))
	for i, v := range verbs {
		out[i] = model.Command{Command: v}
	}
	return out
}

func TestNew_Validation(t *testing.T) {
	sess, exec := &fakeSession{}, &fakeExecutor{}

	tests := []struct {
		name    string
		sess    Session
		exec    CommandExecutor
		opts    Options
		wantErr bool
	}{
		{"valid", sess, exec, Options{Host: "h", Port: 1}, false},
		{"nil session", nil, exec, Options{Host: "h", Port: 1}, true},
		{"nil executor", sess, nil, Options{Host: "h", Port: 1}, true},
		{"empty host", sess, exec, Options{Port: 1}, true},
		{"port zero", sess, exec, Options{Host: "h"}, true},
		{"port too big", sess, exec, Options{Host: "h", Port: 65536}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.sess, tt.exec, tt.opts)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, errors.ErrInvalidInput) {
				t.Errorf("error should match ErrInvalidInput: %v", err)
			}
		})
	}
}

func TestRun_FailedCommandDoesNotStopBatch(t *testing.T) {
	sess := &fakeSession{}
	exec := &fakeExecutor{fail: map[string]bool{"B": true}}
	r, _ := newTestRunner(t, sess, exec, Options{})

	got := r.Run(context.Background(), cmds("A", "B", "C"))

	if got.OK {
		t.Error("batch OK = true with a failed command")
	}
	if len(got.Results) != 3 {
		t.Fatalf("len(Results) = %d, want 3", len(got.Results))
	}
	for i, res := range got.Results {
		if res.Index != i+1 {
			t.Errorf("Results[%d].Index = %d, want %d", i, res.Index, i+1)
		}
	}
	if !got.Results[0].OK || got.Results[1].OK || !got.Results[2].OK {
		t.Errorf("per-command OK = %v %v %v, want true false true",
			got.Results[0].OK, got.Results[1].OK, got.Results[2].OK)
	}
	if strings.Join(exec.verbs, ",") != "A,B,C" {
		t.Errorf("execution order = %v", exec.verbs)
	}
	if got.RunID != "run-test" {
		t.Errorf("RunID = %q", got.RunID)
	}
	if sess.count("close") != 1 {
		t.Errorf("close called %d times, want 1", sess.count("close"))
	}
}

func TestRun_AllOK(t *testing.T) {
	sess := &fakeSession{}
	r, _ := newTestRunner(t, sess, &fakeExecutor{}, Options{})

	got := r.Run(context.Background(), cmds("A", "B"))
	if !got.OK {
		t.Error("batch OK = false with all commands succeeding")
	}
	for _, res := range got.Results {
		if res.Events == nil {
			t.Error("Events should be normalized to an empty log")
		}
	}
}

func TestRun_UsesProvidedRunID(t *testing.T) {
	r, _ := newTestRunner(t, &fakeSession{}, &fakeExecutor{}, Options{RunID: "nightly-42"})

	got := r.Run(context.Background(), cmds("New"))
	if got.RunID != "nightly-42" {
		t.Errorf("RunID = %q, want nightly-42", got.RunID)
	}

	r, _ = newTestRunner(t, &fakeSession{}, &fakeExecutor{}, Options{})
	if got := r.Run(context.Background(), cmds("New")); got.RunID != "run-test" {
		t.Errorf("RunID = %q, want generated run-test", got.RunID)
	}
}

func TestRun_EmptyBatch(t *testing.T) {
	sess := &fakeSession{}
	r, sleeps := newTestRunner(t, sess, &fakeExecutor{}, Options{InterCommandDelay: time.Second})

	got := r.Run(context.Background(), nil)

	if !got.OK || len(got.Results) != 0 {
		t.Errorf("empty batch = %+v, want OK with no results", got)
	}
	if strings.Join(sess.calls, ",") != "open,close" {
		t.Errorf("session calls = %v", sess.calls)
	}
	if len(*sleeps) != 0 {
		t.Errorf("sleeps = %v, want none", *sleeps)
	}
}

func TestRun_WaitPolicy(t *testing.T) {
	tests := []struct {
		name   string
		cmd    model.Command
		policy *WaitPolicy
		want   int
	}{
		{"new verb", model.Command{Command: "New"}, nil, 60},
		{"new verb spaced lowercase", model.Command{Command: "  new "}, nil, 60},
		{"new verb upper", model.Command{Command: "NEW"}, nil, 60},
		{"other verb", model.Command{Command: "SetPosition"}, nil, 200},
		{"newish verb", model.Command{Command: "NewObject"}, nil, 200},
		{"explicit wins", model.Command{Command: "X"}.WithWait(500), nil, 500},
		{"explicit zero wins", model.Command{Command: "New"}.WithWait(0), nil, 0},
		{"custom policy", model.Command{Command: "Go"}, &WaitPolicy{NewVerbMs: 1, DefaultMs: 2}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &fakeExecutor{}
			r, _ := newTestRunner(t, &fakeSession{}, exec, Options{WaitPolicy: tt.policy})

			got := r.Run(context.Background(), []model.Command{tt.cmd})

			if len(exec.waits) != 1 || exec.waits[0] != tt.want {
				t.Errorf("waitMs sent = %v, want %d", exec.waits, tt.want)
			}
			if got.Results[0].WaitMs != tt.want {
				t.Errorf("result WaitMs = %d, want %d", got.Results[0].WaitMs, tt.want)
			}
		})
	}
}

func TestRun_OpenFailureShortCircuits(t *testing.T) {
	sess := &fakeSession{openErr: errors.New("connection refused")}
	exec := &fakeExecutor{}
	var observed []model.ExecutionResult
	r, _ := newTestRunner(t, sess, exec, Options{
		Observer: func(res model.ExecutionResult) { observed = append(observed, res) },
	})

	got := r.Run(context.Background(), cmds("A", "B"))

	if got.OK {
		t.Error("batch OK = true after open failure")
	}
	if len(got.Results) != 1 {
		t.Fatalf("len(Results) = %d, want 1", len(got.Results))
	}
	open := got.Results[0]
	if open.Index != 0 || open.Command != model.OpenCommand || open.OK {
		t.Errorf("open result = %+v", open)
	}
	if open.Reason != "open_failed: connection refused" {
		t.Errorf("Reason = %q", open.Reason)
	}
	if len(exec.verbs) != 0 {
		t.Errorf("commands executed after open failure: %v", exec.verbs)
	}
	if sess.count("close") != 0 {
		t.Error("close must not run after a failed open")
	}
	if len(observed) != 1 || observed[0].Command != model.OpenCommand {
		t.Errorf("observer saw %v", observed)
	}
}

func TestRun_CloseRunsOnPanic(t *testing.T) {
	sess := &fakeSession{}
	r, _ := newTestRunner(t, sess, &fakeExecutor{panicOn: "B"}, Options{})

	defer func() {
		if recover() == nil {
			t.Error("panic was swallowed, want re-raised")
		}
		if sess.count("close") != 1 {
			t.Errorf("close called %d times, want 1", sess.count("close"))
		}
	}()

	r.Run(context.Background(), cmds("A", "B", "C"))
}

func TestRun_DelayAndGrace(t *testing.T) {
	t.Run("delay after each command then grace", func(t *testing.T) {
		r, sleeps := newTestRunner(t, &fakeSession{}, &fakeExecutor{}, Options{
			InterCommandDelay: 100 * time.Millisecond,
			CloseGrace:        5 * time.Second,
		})

		r.Run(context.Background(), cmds("A", "B"))

		want := []time.Duration{100 * time.Millisecond, 100 * time.Millisecond, 5 * time.Second}
		if len(*sleeps) != len(want) {
			t.Fatalf("sleeps = %v, want %v", *sleeps, want)
		}
		for i := range want {
			if (*sleeps)[i] != want[i] {
				t.Errorf("sleeps[%d] = %v, want %v", i, (*sleeps)[i], want[i])
			}
		}
	})

	t.Run("negative delay clamps to zero", func(t *testing.T) {
		r, sleeps := newTestRunner(t, &fakeSession{}, &fakeExecutor{}, Options{
			InterCommandDelay: -time.Second,
			CloseGrace:        -time.Second,
		})

		r.Run(context.Background(), cmds("A", "B"))
		if len(*sleeps) != 0 {
			t.Errorf("sleeps = %v, want none", *sleeps)
		}
	})
}

func TestRun_ObserverSeesEveryResultInOrder(t *testing.T) {
	var observed []int
	r, _ := newTestRunner(t, &fakeSession{}, &fakeExecutor{}, Options{
		Observer: func(res model.ExecutionResult) { observed = append(observed, res.Index) },
	})

	r.Run(context.Background(), cmds("A", "B", "C"))

	if len(observed) != 3 || observed[0] != 1 || observed[2] != 3 {
		t.Errorf("observed indexes = %v", observed)
	}
}

func TestSleepContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	sleepContext(ctx, 10*time.Second)
	if time.Since(start) > time.Second {
		t.Error("sleepContext should return early on a canceled context")
	}

	sleepContext(context.Background(), 0)
	sleepContext(context.Background(), -time.Second)
}

func TestWaitPolicy_Default(t *testing.T) {
	p := DefaultWaitPolicy()
	if p.NewVerbMs != 60 || p.DefaultMs != 200 {
		t.Errorf("DefaultWaitPolicy() = %+v", p)
	}
}

// End-to-end against the fake bridge with the real session and executor.
func TestRun_AgainstBridge(t *testing.T) {
	bridge := testutil.NewFakeBridge(t)
	bridge.SetEvents("New", "[CB] onReceivedEx: code=0 cmd=New")
	bridge.SetEvents("Bad", "[CB] onReceivedEx: code=7 cmd=Bad")
	bridge.SetEvents("Nack", "[CB] NACK")

	client := transport.New(bridge.URL())
	r, err := New(session.NewController(client), executor.New(client), Options{
		Host: "127.0.0.1",
		Port: 6655,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	got := r.Run(context.Background(), []model.Command{
		{Command: "New", ObjPath: "/", CmdParam: "Scenario Test"},
		{Command: "Bad"},
		{Command: "Nack"},
		model.Command{Command: "Other", CmdParam: "x"}.WithWait(500),
	})

	wantPaths := "/atk/open,/atk/connect,/atk/connect,/atk/connect,/atk/connect,/atk/close"
	if got := strings.Join(bridge.Paths(), ","); got != wantPaths {
		t.Errorf("bridge paths = %s, want %s", got, wantPaths)
	}

	wantReasons := []string{"", "onReceivedEx code=7", "NACK received", ""}
	for i, res := range got.Results {
		if res.Reason != wantReasons[i] {
			t.Errorf("Results[%d].Reason = %q, want %q", i, res.Reason, wantReasons[i])
		}
	}
	if got.OK {
		t.Error("batch OK = true with failures")
	}

	connects := bridge.RequestsTo(transport.PathConnect)
	if w := connects[0].Body["waitMs"]; w != float64(60) {
		t.Errorf("New waitMs = %v, want 60", w)
	}
	if w := connects[1].Body["waitMs"]; w != float64(200) {
		t.Errorf("Bad waitMs = %v, want 200", w)
	}
	if w := connects[3].Body["waitMs"]; w != float64(500) {
		t.Errorf("explicit waitMs = %v, want 500", w)
	}
}

func TestRun_AgainstBridge_OpenFails(t *testing.T) {
	bridge := testutil.NewFakeBridge(t)
	bridge.SetStatus(transport.PathOpen, http.StatusBadGateway)

	client := transport.New(bridge.URL())
	r, _ := New(session.NewController(client), executor.New(client), Options{Host: "h", Port: 1})

	got := r.Run(context.Background(), cmds("New", "Save"))

	if strings.Join(bridge.Paths(), ",") != "/atk/open" {
		t.Errorf("bridge paths = %v, want only open", bridge.Paths())
	}
	if !strings.HasPrefix(got.Results[0].Reason, ReasonOpenFailedPrefix) {
		t.Errorf("Reason = %q", got.Results[0].Reason)
	}
}

func TestRun_AgainstBridge_CloseFailureDoesNotFlipOK(t *testing.T) {
	bridge := testutil.NewFakeBridge(t)
	bridge.SetStatus(transport.PathClose, http.StatusInternalServerError)

	client := transport.New(bridge.URL())
	ctrl := session.NewController(client)
	r, _ := New(ctrl, executor.New(client), Options{Host: "h", Port: 1})

	got := r.Run(context.Background(), cmds("New"))

	if !got.OK {
		t.Error("close failure flipped batch OK")
	}
	if ctrl.LastCloseError() == nil {
		t.Error("close failure was not recorded")
	}
}

func TestRun_AgainstBridge_CanceledContextStillCloses(t *testing.T) {
	bridge := testutil.NewFakeBridge(t)
	client := transport.New(bridge.URL())
	exec := executor.New(client)
	sess := session.NewController(client)

	ctx, cancel := context.WithCancel(context.Background())
	var once sync.Once
	r, _ := New(sess, exec, Options{
		Host:     "h",
		Port:     1,
		Observer: func(model.ExecutionResult) { once.Do(cancel) },
	})

	got := r.Run(ctx, cmds("A", "B", "C"))

	if len(got.Results) != 3 {
		t.Fatalf("len(Results) = %d, want 3", len(got.Results))
	}
	for _, res := range got.Results[1:] {
		if res.OK || !strings.HasPrefix(res.Reason, executor.ReasonHTTPErrorPrefix) {
			t.Errorf("post-cancel result = %+v, want http_error", res)
		}
	}
	if n := len(bridge.RequestsTo(transport.PathClose)); n != 1 {
		t.Errorf("close requests = %d, want 1", n)
	}
}
