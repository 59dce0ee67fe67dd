package tools

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/blackplume233/remotemcp/internal/bridge"
	"github.com/blackplume233/remotemcp/internal/dispatch"
	"github.com/blackplume233/remotemcp/internal/testutil/testlog"
	"github.com/blackplume233/remotemcp/internal/tick"
)

type fakeRunner struct {
	calls [][]string
	res   ConsoleResult
	err   error
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (ConsoleResult, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	return f.res, f.err
}

// harness ticks the executor on its own goroutine so host-affine calls complete.
func harness(t *testing.T, cfg Config) *dispatch.Dispatcher {
	t.Helper()
	q := tick.NewQueue()
	exec := tick.NewExecutor(q, tick.DefaultExecutorConfig())
	catalog := dispatch.NewCatalog()
	if err := Register(catalog, cfg); err != nil {
		t.Fatalf("register builtins: %v", err)
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		var frame uint64
		for {
			select {
			case <-stop:
				return
			case <-time.After(time.Millisecond):
				frame++
				exec.OnTick(frame)
			}
		}
	}()
	t.Cleanup(func() {
		close(stop)
		<-done
	})
	return dispatch.NewDispatcher(catalog, q)
}

func call(t *testing.T, d *dispatch.Dispatcher, name string, args map[string]any) dispatch.Response {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return d.Dispatch(ctx, name, args)
}

func TestBuiltinCatalogAffinity(t *testing.T) {
	testlog.Start(t)

	catalog := dispatch.NewCatalog()
	if err := Register(catalog, Config{}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if catalog.IsHostAffine("ping") {
		t.Fatalf("ping must run inline")
	}
	for _, name := range []string{"echo", "test_tool", "bridge.status", "search_console_commands", "run_console_command"} {
		if !catalog.IsHostAffine(name) {
			t.Fatalf("%s must be host-affine", name)
		}
	}
	if err := Register(catalog, Config{}); !errors.Is(err, dispatch.ErrOperationExists) {
		t.Fatalf("expected duplicate registration error, got %v", err)
	}
}

func TestPingEchoAndTestTool(t *testing.T) {
	testlog.Start(t)

	d := harness(t, Config{})
	if resp := call(t, d, "ping", nil); !resp.OK() || resp.Result != "pong" {
		t.Fatalf("ping: %+v", resp)
	}
	resp := call(t, d, "echo", map[string]any{"text": "hi", "n": 2})
	out, ok := resp.Result.(map[string]any)
	if !resp.OK() || !ok || out["text"] != "hi" || out["n"] != 2 {
		t.Fatalf("echo: %+v", resp)
	}
	if resp := call(t, d, "test_tool", nil); !resp.OK() || resp.Result != "Hello from first tool!" {
		t.Fatalf("test_tool: %+v", resp)
	}
}

func TestBridgeStatus(t *testing.T) {
	testlog.Start(t)

	d := harness(t, Config{})
	if resp := call(t, d, "bridge.status", nil); resp.OK() || resp.Error.Kind != dispatch.KindOperationError {
		t.Fatalf("expected missing status source failure, got %+v", resp)
	}

	d = harness(t, Config{Status: func() bridge.Status {
		return bridge.Status{Identity: "abc", Phase: bridge.PhaseRunning}
	}})
	resp := call(t, d, "bridge.status", nil)
	st, ok := resp.Result.(bridge.Status)
	if !resp.OK() || !ok || st.Identity != "abc" {
		t.Fatalf("bridge.status: %+v", resp)
	}
}

func TestConsoleCommands(t *testing.T) {
	testlog.Start(t)

	runner := &fakeRunner{res: ConsoleResult{Stdout: "ok\n"}}
	d := harness(t, Config{
		ConsoleCommands: []string{"stat", " echo ", "stat", ""},
		Runner:          runner,
	})

	resp := call(t, d, "search_console_commands", map[string]any{"keyword": "ST"})
	out, ok := resp.Result.(map[string]any)
	if !resp.OK() || !ok {
		t.Fatalf("search: %+v", resp)
	}
	if cmds := out["commands"].([]string); len(cmds) != 1 || cmds[0] != "stat" {
		t.Fatalf("unexpected matches: %v", cmds)
	}
	if resp := call(t, d, "search_console_commands", map[string]any{"keyword": "  "}); resp.OK() {
		t.Fatalf("expected empty keyword failure")
	}

	resp = call(t, d, "run_console_command", map[string]any{"command": map[string]any{"command": "stat fps"}})
	res, ok := resp.Result.(ConsoleResult)
	if !resp.OK() || !ok || res.Stdout != "ok\n" || res.Command != "stat fps" {
		t.Fatalf("run: %+v", resp)
	}
	if len(runner.calls) != 1 || strings.Join(runner.calls[0], " ") != "stat fps" {
		t.Fatalf("unexpected runner calls: %v", runner.calls)
	}

	resp = call(t, d, "run_console_command", map[string]any{"command": "rm -rf /"})
	if resp.OK() || !strings.Contains(resp.Error.Message, "not allowed") {
		t.Fatalf("expected denied command, got %+v", resp)
	}
	if len(runner.calls) != 1 {
		t.Fatalf("denied command reached the runner")
	}

	resp = call(t, d, "run_console_command", map[string]any{"command": 42})
	if resp.OK() || !strings.Contains(resp.Error.Message, "expected string") {
		t.Fatalf("expected invalid argument, got %+v", resp)
	}

	runner.err = errors.New("exit status 3")
	runner.res = ConsoleResult{ExitCode: 3}
	resp = call(t, d, "run_console_command", map[string]any{"command": "echo boom"})
	if resp.OK() || !strings.Contains(resp.Error.Message, "exit 3") {
		t.Fatalf("expected runner failure, got %+v", resp)
	}

	runner.res = ConsoleResult{ExitCode: 2, Stdout: "partial\n", Stderr: "  unknown cvar: fps_max\n"}
	resp = call(t, d, "run_console_command", map[string]any{"command": "stat fps_max"})
	if resp.OK() || !strings.HasSuffix(resp.Error.Message, ": unknown cvar: fps_max") {
		t.Fatalf("expected stderr in failure message, got %+v", resp)
	}

	runner.res = ConsoleResult{ExitCode: 1, Stdout: "usage: stat <group>\n"}
	resp = call(t, d, "run_console_command", map[string]any{"command": "stat"})
	if resp.OK() || !strings.Contains(resp.Error.Message, "usage: stat <group>") {
		t.Fatalf("expected stdout fallback in failure message, got %+v", resp)
	}
}

func TestExecRunnerCapturesExitCodes(t *testing.T) {
	testlog.Start(t)

	res, err := ExecRunner{}.Run(context.Background(), "definitely-not-a-real-command-xyz")
	if err == nil || res.ExitCode != 127 {
		t.Fatalf("expected missing binary exit 127, got %d %v", res.ExitCode, err)
	}
}

func TestCappedBufferTruncates(t *testing.T) {
	testlog.Start(t)

	var buf cappedBuffer
	chunk := []byte(strings.Repeat("x", maxConsoleOutput-10))
	if n, err := buf.Write(chunk); err != nil || n != len(chunk) {
		t.Fatalf("write: %d %v", n, err)
	}
	if n, _ := buf.Write([]byte(strings.Repeat("y", 100))); n != 100 {
		t.Fatalf("capped writes must still report full length, got %d", n)
	}
	if got := len(buf.String()); got != maxConsoleOutput {
		t.Fatalf("expected %d bytes retained, got %d", maxConsoleOutput, got)
	}
}
