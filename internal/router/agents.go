package router

import (
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// AgentToolConfig holds execution parameters for one interactive agent tool.
// Streaming tools re-emit every output chunk as a live event; batch tools
// reply once with the collected output.
type AgentToolConfig struct {
	Command   string        `json:"command"`
	Args      []string      `json:"args,omitempty"`
	Streaming bool          `json:"streaming"`
	Timeout   time.Duration `json:"timeout"`
}

// Agents is the runtime-mutable registry of programs treated as interactive
// agent tools.
type Agents struct {
	mu    sync.RWMutex
	tools map[string]AgentToolConfig
}

// DefaultAgents seeds the registry with the shipped agent tools. The registry
// is the single source of truth for which programs run as agents, so every
// default must appear here, not just in the classifier's tables.
func DefaultAgents() *Agents {
	return &Agents{
		tools: map[string]AgentToolConfig{
			"claude": {Command: "claude", Streaming: true, Timeout: 5 * time.Minute},
			"gemini": {Command: "gemini", Streaming: false, Timeout: 3 * time.Minute},
			"aider":  {Command: "aider", Streaming: true, Timeout: 5 * time.Minute},
		},
	}
}

// Add registers or replaces an agent tool.
func (a *Agents) Add(name string, cfg AgentToolConfig) {
	if cfg.Command == "" {
		cfg.Command = name
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Minute
	}
	a.mu.Lock()
	a.tools[name] = cfg
	a.mu.Unlock()
}

// Remove drops an agent tool, returning whether it existed.
func (a *Agents) Remove(name string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.tools[name]
	delete(a.tools, name)
	return ok
}

// Get looks up an agent tool by name.
func (a *Agents) Get(name string) (AgentToolConfig, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	cfg, ok := a.tools[name]
	return cfg, ok
}

// List returns a copy of the registry.
func (a *Agents) List() map[string]AgentToolConfig {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]AgentToolConfig, len(a.tools))
	for k, v := range a.tools {
		out[k] = v
	}
	return out
}

// agentsFile is the on-disk shape of the agent-tools file.
type agentsFile struct {
	Agents map[string]agentFileEntry `yaml:"agents"`
}

type agentFileEntry struct {
	Command   string   `yaml:"command"`
	Args      []string `yaml:"args"`
	Streaming bool     `yaml:"streaming"`
	Timeout   string   `yaml:"timeout"` // duration string, e.g. "4m"
}

// LoadFile merges agent definitions from a YAML file into the registry.
// Entries with a bad timeout are rejected file-wide so a half-applied reload
// never happens.
func (a *Agents) LoadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read agents file: %w", err)
	}

	var file agentsFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("parse agents file: %w", err)
	}

	parsed := make(map[string]AgentToolConfig, len(file.Agents))
	for name, entry := range file.Agents {
		cfg := AgentToolConfig{
			Command:   entry.Command,
			Args:      entry.Args,
			Streaming: entry.Streaming,
		}
		if entry.Timeout != "" {
			d, err := time.ParseDuration(entry.Timeout)
			if err != nil {
				return fmt.Errorf("agent %q: bad timeout %q: %w", name, entry.Timeout, err)
			}
			cfg.Timeout = d
		}
		parsed[name] = cfg
	}

	for name, cfg := range parsed {
		a.Add(name, cfg)
	}
	return nil
}
