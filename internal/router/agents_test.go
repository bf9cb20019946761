package router

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAgents_Defaults(t *testing.T) {
	a := DefaultAgents()

	cfg, ok := a.Get("claude")
	if !ok {
		t.Fatal("expected claude in defaults")
	}
	if !cfg.Streaming || cfg.Timeout != 5*time.Minute {
		t.Errorf("unexpected claude config: %+v", cfg)
	}

	cfg, ok = a.Get("gemini")
	if !ok {
		t.Fatal("expected gemini in defaults")
	}
	if cfg.Streaming || cfg.Timeout != 3*time.Minute {
		t.Errorf("unexpected gemini config: %+v", cfg)
	}

	if _, ok := a.Get("aider"); !ok {
		t.Error("expected aider in defaults")
	}
}

func TestAgents_AddRemove(t *testing.T) {
	a := DefaultAgents()

	a.Add("myagent", AgentToolConfig{Streaming: true})
	cfg, ok := a.Get("myagent")
	if !ok {
		t.Fatal("expected registered agent")
	}
	if cfg.Command != "myagent" {
		t.Errorf("expected command defaulted to name, got %q", cfg.Command)
	}
	if cfg.Timeout <= 0 {
		t.Errorf("expected defaulted timeout, got %v", cfg.Timeout)
	}

	if !a.Remove("myagent") {
		t.Error("expected remove to report existing agent")
	}
	if a.Remove("myagent") {
		t.Error("expected second remove to report missing agent")
	}
	if _, ok := a.Get("myagent"); ok {
		t.Error("expected agent gone after remove")
	}
}

func TestAgents_LoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agents.yaml")
	content := `agents:
  codex:
    command: codex
    args: ["--quiet"]
    streaming: true
    timeout: 4m
  gemini:
    command: gemini-cli
    timeout: 90s
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	a := DefaultAgents()
	if err := a.LoadFile(path); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	cfg, ok := a.Get("codex")
	if !ok {
		t.Fatal("expected codex loaded")
	}
	if cfg.Timeout != 4*time.Minute || !cfg.Streaming || len(cfg.Args) != 1 {
		t.Errorf("unexpected codex config: %+v", cfg)
	}

	// Existing entry overridden by the file.
	cfg, _ = a.Get("gemini")
	if cfg.Command != "gemini-cli" || cfg.Timeout != 90*time.Second {
		t.Errorf("expected gemini overridden, got %+v", cfg)
	}
}

func TestAgents_LoadFileBadTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agents.yaml")
	content := `agents:
  good:
    command: good
    timeout: 1m
  bad:
    command: bad
    timeout: banana
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	a := DefaultAgents()
	if err := a.LoadFile(path); err == nil {
		t.Fatal("expected error for bad timeout")
	}
	// Nothing from the file applied.
	if _, ok := a.Get("good"); ok {
		t.Error("expected rejected file to apply no entries")
	}
}

func TestAgents_LoadFileMissing(t *testing.T) {
	a := DefaultAgents()
	if err := a.LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
