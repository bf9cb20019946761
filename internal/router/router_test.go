package router

import (
	"context"
	"runtime"
	"strings"
	"testing"
	"time"
)

const routeToken = "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee"

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("test relies on unix shell semantics")
	}
}

func TestRouter_RouteKnownTool(t *testing.T) {
	skipOnWindows(t)
	r := New(100)

	result := r.Route(context.Background(), routeToken, "t1", "echo hello", "")
	if !result.Handled {
		t.Error("expected known tool to be handled")
	}
	if !result.Success {
		t.Fatalf("expected success, got error %q", result.Error)
	}
	if result.ExitCode == nil || *result.ExitCode != 0 {
		t.Errorf("expected exit 0, got %v", result.ExitCode)
	}
	if !strings.Contains(result.Output, "hello") {
		t.Errorf("expected captured output, got %q", result.Output)
	}
	if result.Formatted == "" {
		t.Error("expected formatted output")
	}
	if result.Info.Category != CategorySystem {
		t.Errorf("expected system category, got %s", result.Info.Category)
	}

	entries := r.HistoryForTerminal(routeToken, "t1")
	if len(entries) != 1 || entries[0].Command != "echo" {
		t.Errorf("expected history entry for echo, got %v", entries)
	}
	if got := r.HistoryForTool(routeToken, "echo"); len(got) != 1 {
		t.Errorf("expected tool ledger entry, got %v", got)
	}
}

func TestRouter_RouteShellFallback(t *testing.T) {
	skipOnWindows(t)
	r := New(100)

	result := r.Route(context.Background(), routeToken, "t1", "definitely-not-a-real-binary-xyz arg", "")
	if result.Handled {
		t.Error("expected unrecognized command to fall through to the shell")
	}
	if result.Success {
		t.Error("expected failure for missing binary")
	}
	if result.ExitCode == nil || *result.ExitCode == 0 {
		t.Errorf("expected nonzero exit, got %v", result.ExitCode)
	}

	// Fallback executions are still recorded.
	if got := len(r.HistoryForTerminal(routeToken, "t1")); got != 1 {
		t.Errorf("expected 1 history entry, got %d", got)
	}
}

func TestRouter_RouteEmptyLine(t *testing.T) {
	r := New(100)

	result := r.Route(context.Background(), routeToken, "t1", "   ", "")
	if result.Error == "" {
		t.Error("expected error for empty command")
	}
	if result.Handled || result.Success {
		t.Error("expected empty line to not execute")
	}
	if got := len(r.HistoryForTerminal(routeToken, "t1")); got != 0 {
		t.Errorf("expected no history for empty line, got %d", got)
	}
}

func TestRouter_RouteWorkingDirectory(t *testing.T) {
	skipOnWindows(t)
	r := New(100)
	dir := t.TempDir()

	result := r.Route(context.Background(), routeToken, "t1", "pwd", dir)
	if !result.Success {
		t.Fatalf("pwd failed: %q", result.Error)
	}
	if !strings.Contains(result.Output, dir) {
		t.Errorf("expected output to contain %q, got %q", dir, result.Output)
	}
}

func TestRouter_AgentTimeout(t *testing.T) {
	skipOnWindows(t)
	r := New(100)
	r.Agents().Add("napper", AgentToolConfig{
		Command: "sleep",
		Args:    []string{"10"},
		Timeout: 150 * time.Millisecond,
	})

	start := time.Now()
	result := r.Route(context.Background(), routeToken, "t1", "napper", "")
	elapsed := time.Since(start)

	if !result.TimedOut {
		t.Fatalf("expected timeout, got %+v", result)
	}
	if result.Success {
		t.Error("expected timed-out run to fail")
	}
	// Killed at or after the budget, never before.
	if elapsed < 150*time.Millisecond {
		t.Errorf("killed before budget: %v", elapsed)
	}
	if elapsed > 5*time.Second {
		t.Errorf("kill took too long: %v", elapsed)
	}
	if len(r.ActiveProcesses()) != 0 {
		t.Error("expected active table emptied after timeout")
	}
}

func TestRouter_AgentStreaming(t *testing.T) {
	skipOnWindows(t)
	r := New(100)
	r.Agents().Add("streamer", AgentToolConfig{
		Command:   "sh",
		Args:      []string{"-c", "echo live-chunk"},
		Streaming: true,
		Timeout:   10 * time.Second,
	})

	result := r.Route(context.Background(), routeToken, "t7", "streamer", "")
	if !result.Success {
		t.Fatalf("streamer failed: %q", result.Error)
	}

	select {
	case ev := <-r.Events():
		if ev.Tool != "streamer" || ev.TerminalID != "t7" || ev.Token != routeToken {
			t.Errorf("event mistagged: %+v", ev)
		}
		if !strings.Contains(ev.Data, "live-chunk") {
			t.Errorf("expected chunk data, got %q", ev.Data)
		}
	default:
		t.Fatal("expected a live event from streaming agent")
	}
}

func TestRouter_AgentBatchDoesNotStream(t *testing.T) {
	skipOnWindows(t)
	r := New(100)
	r.Agents().Add("batcher", AgentToolConfig{
		Command:   "sh",
		Args:      []string{"-c", "echo batch-out"},
		Streaming: false,
		Timeout:   10 * time.Second,
	})

	result := r.Route(context.Background(), routeToken, "t1", "batcher", "")
	if !result.Success {
		t.Fatalf("batcher failed: %q", result.Error)
	}
	if !strings.Contains(result.Output, "batch-out") {
		t.Errorf("expected collected output, got %q", result.Output)
	}

	select {
	case ev := <-r.Events():
		t.Errorf("unexpected live event from batch agent: %+v", ev)
	default:
	}
}

func TestRouter_KillProcess(t *testing.T) {
	skipOnWindows(t)
	r := New(100)
	r.Agents().Add("sleeper", AgentToolConfig{
		Command: "sleep",
		Args:    []string{"10"},
		Timeout: 30 * time.Second,
	})

	done := make(chan RouteResult, 1)
	go func() {
		done <- r.Route(context.Background(), routeToken, "t9", "sleeper", "")
	}()

	// Wait for the process to land in the active table.
	deadline := time.Now().Add(5 * time.Second)
	for len(r.ActiveProcesses()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("process never became active")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if !r.KillProcess("t9") {
		t.Fatal("expected kill to succeed")
	}

	select {
	case result := <-done:
		if result.Success {
			t.Error("expected killed run to fail")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("route did not return after kill")
	}

	if r.KillProcess("t9") {
		t.Error("expected kill of absent process to return false")
	}
	if r.KillProcess("never-existed") {
		t.Error("expected kill of unknown slot to return false")
	}
}

func TestRouter_RemoveBuiltinAgent(t *testing.T) {
	r := New(100)

	if !r.Agents().Remove("claude") {
		t.Fatal("expected claude in the default registry")
	}

	info := r.Parse("claude hello")
	if info.IsAgentTool {
		t.Error("expected removed agent to classify as an ordinary command")
	}
	if info.Tool != nil && info.Tool.AgentTool {
		t.Error("expected tool def agent flag cleared after removal")
	}
	// The static category survives; only the routing strategy changes.
	if info.Category != CategoryAI {
		t.Errorf("category = %s, want %s", info.Category, CategoryAI)
	}

	// Re-registering restores agent routing.
	r.Agents().Add("claude", AgentToolConfig{Streaming: true, Timeout: time.Minute})
	if !r.Parse("claude hello").IsAgentTool {
		t.Error("expected re-registered agent to classify as agent tool")
	}
}

func TestRouter_RemovedAgentRoutesAsShell(t *testing.T) {
	skipOnWindows(t)
	r := New(100)
	r.Agents().Add("vanisher", AgentToolConfig{
		Command: "sh",
		Args:    []string{"-c", "echo agent-ran"},
		Timeout: 10 * time.Second,
	})
	r.Agents().Remove("vanisher")

	result := r.Route(context.Background(), routeToken, "t1", "vanisher", "")
	if result.Handled {
		t.Error("expected removed agent to fall through to the shell")
	}
	if result.Success {
		t.Error("expected shell fallback to fail for a nonexistent binary")
	}
}

func TestRouter_ParseOverridesFromRegistry(t *testing.T) {
	r := New(100)
	r.Agents().Add("myagent", AgentToolConfig{Streaming: true, Timeout: time.Minute})

	info := r.Parse("myagent do the thing")
	if !info.IsAgentTool {
		t.Error("expected runtime-registered command to classify as agent")
	}
	if info.Category != CategoryAI {
		t.Errorf("expected ai category, got %s", info.Category)
	}
	if info.Tool == nil || info.Tool.Name != "myagent" {
		t.Errorf("expected synthesized tool def, got %v", info.Tool)
	}
}
