package cmd

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/atkrun/internal/errors"
	"github.com/Iron-Ham/atkrun/internal/testutil"
	"github.com/Iron-Ham/atkrun/internal/transport"
)

// executeCommand runs a cobra command with args and returns captured output
func executeCommand(root *cobra.Command, args ...string) (stdout, stderr string, err error) {
	var outBuf, errBuf bytes.Buffer
	root.SetOut(&outBuf)
	root.SetErr(&errBuf)
	root.SetArgs(args)
	err = root.Execute()
	return outBuf.String(), errBuf.String(), err
}

// resetCommandState clears viper and every flag so tests do not leak
// settings into each other through the package-level commands.
func resetCommandState(t *testing.T) {
	t.Helper()

	resetFlags := func(fs *pflag.FlagSet) {
		fs.VisitAll(func(f *pflag.Flag) {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		})
	}
	var walk func(c *cobra.Command)
	walk = func(c *cobra.Command) {
		resetFlags(c.Flags())
		resetFlags(c.PersistentFlags())
		for _, sub := range c.Commands() {
			walk(sub)
		}
	}
	walk(rootCmd)

	viper.Reset()
	bindFlags()
	rootCmd.SetIn(nil)

	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
}

// setupBridgeConfig writes a config file pointing at fb and returns its path.
func setupBridgeConfig(t *testing.T, fb *testutil.FakeBridge) string {
	t.Helper()

	dir := t.TempDir()
	content := "bridge:\n" +
		"  base_url: " + fb.URL() + "\n" +
		"  host: 10.1.2.3\n" +
		"  port: 7001\n" +
		"batch:\n" +
		"  inter_command_delay_ms: 0\n" +
		"logging:\n" +
		"  enabled: false\n"
	testutil.WriteFiles(t, dir, map[string]string{"config.yaml": content})
	return filepath.Join(dir, "config.yaml")
}

func TestRootCommand(t *testing.T) {
	if rootCmd.Use != "atkrun" {
		t.Errorf("rootCmd.Use = %q, want %q", rootCmd.Use, "atkrun")
	}

	// Check for expected subcommands (compare by Name(), not Use which includes args)
	expectedCmds := []string{"run", "send", "classify", "logs", "config"}
	cmdMap := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		cmdMap[cmd.Name()] = true
	}
	for _, name := range expectedCmds {
		if !cmdMap[name] {
			t.Errorf("missing subcommand %q", name)
		}
	}
}

func TestRun_ReportsEveryResultAndFailsOnNACK(t *testing.T) {
	resetCommandState(t)
	fb := testutil.NewFakeBridge(t)
	fb.SetEvents("New", "onReceived code=0")
	fb.SetEvents("SetPosition", "onReceivedEx code=7")
	cfg := setupBridgeConfig(t, fb)

	dir := testutil.SetupBatchDir(t, map[string]string{
		"smoke.yaml": `name: smoke
commands:
  - command: New
    objPath: /
    cmdParam: Scenario Test
  - command: SetPosition
    objPath: /Ship1
    cmdParam: "10 20"
  - command: Save
`,
	})

	stdout, _, err := executeCommand(rootCmd, "run", filepath.Join(dir, "smoke.yaml"), "--config", cfg, "--format", "console")

	var failed *BatchFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("run error = %v, want *BatchFailedError", err)
	}
	if failed.Failed != 1 || failed.Total != 3 {
		t.Errorf("BatchFailedError = %+v, want 1 of 3", failed)
	}

	for _, want := range []string{"ACK", "NACK", "onReceivedEx code=7", "FAIL 3 results, 1 failed"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("output missing %q:\n%s", want, stdout)
		}
	}

	wantPaths := []string{transport.PathOpen, transport.PathConnect, transport.PathConnect, transport.PathConnect, transport.PathClose}
	if got := fb.Paths(); strings.Join(got, ",") != strings.Join(wantPaths, ",") {
		t.Errorf("bridge paths = %v, want %v", got, wantPaths)
	}

	open := fb.RequestsTo(transport.PathOpen)[0]
	if open.Body["host"] != "10.1.2.3" || open.Body["port"] != float64(7001) {
		t.Errorf("open body = %v", open.Body)
	}
}

func TestRun_JSONLAllOK(t *testing.T) {
	resetCommandState(t)
	fb := testutil.NewFakeBridge(t)
	cfg := setupBridgeConfig(t, fb)

	dir := testutil.SetupBatchDir(t, map[string]string{
		"ok.json": `[{"command":"New","cmdParam":"x"},{"command":"Go","waitMs":0}]`,
	})

	stdout, _, err := executeCommand(rootCmd, "run", filepath.Join(dir, "ok.json"),
		"--config", cfg, "--format", "jsonl", "--run-id", "run-fixed")
	if err != nil {
		t.Fatalf("run error = %v", err)
	}

	var types []string
	scanner := bufio.NewScanner(strings.NewReader(stdout))
	for scanner.Scan() {
		var rec map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("line %q is not JSON: %v", scanner.Text(), err)
		}
		if rec["runId"] != "run-fixed" {
			t.Errorf("record runId = %v, want run-fixed", rec["runId"])
		}
		types = append(types, rec["type"].(string))
	}
	if strings.Join(types, ",") != "result,result,summary" {
		t.Errorf("record types = %v", types)
	}

	connects := fb.RequestsTo(transport.PathConnect)
	if connects[0].Body["waitMs"] != float64(60) || connects[1].Body["waitMs"] != float64(0) {
		t.Errorf("waitMs = %v, %v; want 60, 0", connects[0].Body["waitMs"], connects[1].Body["waitMs"])
	}
}

func TestRun_OpenFailureSkipsCommands(t *testing.T) {
	resetCommandState(t)
	fb := testutil.NewFakeBridge(t)
	fb.SetStatus(transport.PathOpen, 503)
	cfg := setupBridgeConfig(t, fb)

	dir := testutil.SetupBatchDir(t, map[string]string{"b.yaml": "- command: New\n- command: Go\n"})

	stdout, _, err := executeCommand(rootCmd, "run", filepath.Join(dir, "b.yaml"), "--config", cfg, "--format", "console")
	if err == nil {
		t.Fatal("run should fail when open fails")
	}
	if !strings.Contains(stdout, "OPEN") || !strings.Contains(stdout, "open_failed") {
		t.Errorf("output should show the OPEN failure:\n%s", stdout)
	}
	if got := fb.Paths(); len(got) != 1 || got[0] != transport.PathOpen {
		t.Errorf("bridge paths = %v, want only %s", got, transport.PathOpen)
	}
}

func TestRun_InvalidBatchFile(t *testing.T) {
	resetCommandState(t)
	fb := testutil.NewFakeBridge(t)
	cfg := setupBridgeConfig(t, fb)

	dir := testutil.SetupBatchDir(t, map[string]string{"bad.yaml": "- command: New\n  objpath: /\n"})

	_, _, err := executeCommand(rootCmd, "run", filepath.Join(dir, "bad.yaml"), "--config", cfg)
	if !errors.Is(err, errors.ErrMalformedBatch) {
		t.Errorf("run error = %v, want ErrMalformedBatch", err)
	}
	if len(fb.Requests()) != 0 {
		t.Error("an invalid batch must not reach the bridge")
	}
}

func TestSend(t *testing.T) {
	resetCommandState(t)
	fb := testutil.NewFakeBridge(t)
	fb.SetEvents("SetPosition", "onReceived code=0")
	cfg := setupBridgeConfig(t, fb)

	stdout, _, err := executeCommand(rootCmd, "send", "SetPosition", "/Ship1", "10 20", "--wait", "500",
		"--config", cfg, "--format", "console")
	if err != nil {
		t.Fatalf("send error = %v", err)
	}
	if !strings.Contains(stdout, "onReceived code=0") {
		t.Errorf("send should print events by default:\n%s", stdout)
	}

	connects := fb.RequestsTo(transport.PathConnect)
	if len(connects) != 1 {
		t.Fatalf("got %d connect requests, want 1", len(connects))
	}
	body := connects[0].Body
	if body["command"] != "SetPosition" || body["objPath"] != "/Ship1" || body["cmdParam"] != "10 20" || body["waitMs"] != float64(500) {
		t.Errorf("connect body = %v", body)
	}
	if len(fb.RequestsTo(transport.PathClose)) != 1 {
		t.Error("send should close the session")
	}
}

func TestCommandFromArgs(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wait     int
		waitSet  bool
		wantWait *int
		wantErr  bool
	}{
		{name: "verb only", args: []string{"Save"}},
		{name: "explicit zero wait", args: []string{"Go", "/"}, wait: 0, waitSet: true, wantWait: testutil.IntPtr(0)},
		{name: "unset wait ignores value", args: []string{"Go"}, wait: -1},
		{name: "negative wait", args: []string{"Go"}, wait: -5, waitSet: true, wantErr: true},
		{name: "blank verb", args: []string{"  "}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := commandFromArgs(tt.args, tt.wait, tt.waitSet)
			if (err != nil) != tt.wantErr {
				t.Fatalf("commandFromArgs() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if (got.WaitMs == nil) != (tt.wantWait == nil) {
				t.Fatalf("WaitMs = %v, want %v", got.WaitMs, tt.wantWait)
			}
			if tt.wantWait != nil && *got.WaitMs != *tt.wantWait {
				t.Errorf("WaitMs = %d, want %d", *got.WaitMs, *tt.wantWait)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		input string
		args  []string
		want  string
	}{
		{name: "plain ok", input: "onReceived code=0\n", want: "ACK\n"},
		{name: "plain nack", input: "onReceived code=0\nonReceivedEx code=7:\n", want: "NACK onReceivedEx code=7\n"},
		{name: "empty", input: "", want: "ACK\n"},
		{name: "bridge body", input: `{"events":["onError: bad path"]}`, want: "NACK onError in callback\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetCommandState(t)
			rootCmd.SetIn(strings.NewReader(tt.input))

			stdout, _, err := executeCommand(rootCmd, "classify")
			if err != nil {
				t.Fatalf("classify error = %v", err)
			}
			if stdout != tt.want {
				t.Errorf("classify output = %q, want %q", stdout, tt.want)
			}
		})
	}
}

func TestClassify_FileAndJSON(t *testing.T) {
	resetCommandState(t)
	dir := testutil.SetupBatchDir(t, map[string]string{"events.txt": "NACK from engine\n"})

	stdout, _, err := executeCommand(rootCmd, "classify", filepath.Join(dir, "events.txt"), "--json")
	if err != nil {
		t.Fatalf("classify error = %v", err)
	}

	var verdict classifyVerdict
	if err := json.Unmarshal([]byte(stdout), &verdict); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, stdout)
	}
	if verdict.OK || verdict.State != "NACK" || verdict.Reason != "NACK received" || len(verdict.Events) != 1 {
		t.Errorf("verdict = %+v", verdict)
	}
}

func TestLogs(t *testing.T) {
	resetCommandState(t)
	dir := testutil.SetupBatchDir(t, map[string]string{
		"atkrun.log": `{"time":"2026-01-02T10:00:00Z","level":"INFO","msg":"batch started","run_id":"r1"}
{"time":"2026-01-02T10:00:01Z","level":"WARN","msg":"command failed","run_id":"r1","index":2,"command":"SetPosition","reason":"onReceivedEx code=7"}
{"time":"2026-01-02T10:00:02Z","level":"INFO","msg":"batch started","run_id":"r2"}
`,
	})

	tests := []struct {
		name      string
		args      []string
		wantLines int
		contains  string
	}{
		{name: "all", args: []string{"-n", "0"}, wantLines: 3, contains: "batch started"},
		{name: "by run", args: []string{"--run", "r1"}, wantLines: 2, contains: "run=r1"},
		{name: "by level", args: []string{"--level", "warn"}, wantLines: 1, contains: "command=SetPosition"},
		{name: "tail", args: []string{"-n", "1"}, wantLines: 1, contains: "run=r2"},
		{name: "csv", args: []string{"--command", "setposition", "--format", "csv"}, wantLines: 2, contains: "timestamp,level,message"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetCommandState(t)
			args := append([]string{"logs", "--dir", dir}, tt.args...)
			stdout, _, err := executeCommand(rootCmd, args...)
			if err != nil {
				t.Fatalf("logs error = %v", err)
			}
			lines := strings.Split(strings.TrimRight(stdout, "\n"), "\n")
			if len(lines) != tt.wantLines {
				t.Errorf("got %d lines, want %d:\n%s", len(lines), tt.wantLines, stdout)
			}
			if !strings.Contains(stdout, tt.contains) {
				t.Errorf("output missing %q:\n%s", tt.contains, stdout)
			}
		})
	}
}

func TestLogs_MissingDirectory(t *testing.T) {
	resetCommandState(t)
	if _, _, err := executeCommand(rootCmd, "logs", "--dir", filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("logs should fail when there is no log file")
	}
}

func TestConfigCommands(t *testing.T) {
	resetCommandState(t)
	configFile := filepath.Join(os.Getenv("XDG_CONFIG_HOME"), "atkrun", "config.yaml")

	if _, _, err := executeCommand(rootCmd, "config", "init"); err != nil {
		t.Fatalf("config init error = %v", err)
	}
	data, err := os.ReadFile(configFile)
	if err != nil {
		t.Fatalf("config file not created: %v", err)
	}
	for _, want := range []string{"base_url: http://localhost:8080", "new_verb_ms: 60", "default_ms: 200"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("config file missing %q:\n%s", want, data)
		}
	}

	if _, _, err := executeCommand(rootCmd, "config", "init"); err == nil {
		t.Error("second config init should refuse to overwrite")
	}

	stdout, _, err := executeCommand(rootCmd, "config", "set", "wait.default_ms", "300", "--config", configFile)
	if err != nil {
		t.Fatalf("config set error = %v", err)
	}
	if !strings.Contains(stdout, "Set wait.default_ms = 300") {
		t.Errorf("config set output = %q", stdout)
	}
	data, _ = os.ReadFile(configFile)
	if !strings.Contains(string(data), "default_ms: 300") {
		t.Errorf("config file not updated:\n%s", data)
	}

	stdout, _, err = executeCommand(rootCmd, "config", "show", "--config", configFile)
	if err != nil {
		t.Fatalf("config show error = %v", err)
	}
	if !strings.Contains(stdout, "default_ms: 300") {
		t.Errorf("config show should reflect the file:\n%s", stdout)
	}

	failures := []struct {
		name string
		args []string
	}{
		{"unknown key", []string{"config", "set", "bridge.colour", "red"}},
		{"wrong type", []string{"config", "set", "bridge.port", "many"}},
		{"fails validation", []string{"config", "set", "bridge.port", "0"}},
	}
	for _, tt := range failures {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := executeCommand(rootCmd, append(tt.args, "--config", configFile)...); err == nil {
				t.Error("config set should fail")
			}
		})
	}
}

func TestConfigPath(t *testing.T) {
	resetCommandState(t)
	stdout, _, err := executeCommand(rootCmd, "config", "path")
	if err != nil {
		t.Fatalf("config path error = %v", err)
	}
	if !strings.Contains(stdout, "ATKRUN_") || !strings.Contains(stdout, "config.yaml") {
		t.Errorf("config path output = %q", stdout)
	}
}
