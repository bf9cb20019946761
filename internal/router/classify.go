package router

import (
	"os/exec"
	"strings"
	"sync"
	"time"

	"mvdan.cc/sh/v3/shell"
)

// Category buckets a detected tool for formatting and history purposes.
type Category string

const (
	CategoryAI          Category = "ai-assistant"
	CategoryDevelopment Category = "development"
	CategoryDevOps      Category = "devops"
	CategorySystem      Category = "system"
	CategoryDatabase    Category = "database"
	CategoryCloud       Category = "cloud"
	CategoryUnknown     Category = "unknown"
)

// ToolDef describes one entry in the known-tool registry.
type ToolDef struct {
	Name      string   `json:"name"`
	Category  Category `json:"category"`
	AgentTool bool     `json:"agentTool"`
}

// CommandInfo is the result of classifying one command line. Tool is nil
// when the program resolved to nothing in the registry.
type CommandInfo struct {
	Command     string    `json:"command"`
	Args        []string  `json:"args"`
	Tool        *ToolDef  `json:"tool,omitempty"`
	IsAgentTool bool      `json:"isAgentTool"`
	Category    Category  `json:"category"`
	Timestamp   time.Time `json:"timestamp"`
}

// knownTools is the fixed registry of recognized programs.
var knownTools = map[string]ToolDef{
	// AI assistants (long-running interactive agents).
	"claude": {Name: "claude", Category: CategoryAI, AgentTool: true},
	"gemini": {Name: "gemini", Category: CategoryAI, AgentTool: true},
	"aider":  {Name: "aider", Category: CategoryAI, AgentTool: true},

	// Developer tools.
	"git":     {Name: "git", Category: CategoryDevelopment},
	"npm":     {Name: "npm", Category: CategoryDevelopment},
	"yarn":    {Name: "yarn", Category: CategoryDevelopment},
	"pnpm":    {Name: "pnpm", Category: CategoryDevelopment},
	"node":    {Name: "node", Category: CategoryDevelopment},
	"python":  {Name: "python", Category: CategoryDevelopment},
	"python3": {Name: "python3", Category: CategoryDevelopment},
	"pip":     {Name: "pip", Category: CategoryDevelopment},
	"go":      {Name: "go", Category: CategoryDevelopment},
	"cargo":   {Name: "cargo", Category: CategoryDevelopment},
	"make":    {Name: "make", Category: CategoryDevelopment},
	"mvn":     {Name: "mvn", Category: CategoryDevelopment},
	"gradle":  {Name: "gradle", Category: CategoryDevelopment},

	// Dev-ops tools.
	"docker":         {Name: "docker", Category: CategoryDevOps},
	"docker-compose": {Name: "docker-compose", Category: CategoryDevOps},
	"kubectl":        {Name: "kubectl", Category: CategoryDevOps},
	"helm":           {Name: "helm", Category: CategoryDevOps},
	"terraform":      {Name: "terraform", Category: CategoryDevOps},
	"ansible":        {Name: "ansible", Category: CategoryDevOps},

	// Database clients.
	"psql":      {Name: "psql", Category: CategoryDatabase},
	"mysql":     {Name: "mysql", Category: CategoryDatabase},
	"sqlite3":   {Name: "sqlite3", Category: CategoryDatabase},
	"redis-cli": {Name: "redis-cli", Category: CategoryDatabase},
	"mongosh":   {Name: "mongosh", Category: CategoryDatabase},

	// Cloud clients.
	"aws":    {Name: "aws", Category: CategoryCloud},
	"gcloud": {Name: "gcloud", Category: CategoryCloud},
	"az":     {Name: "az", Category: CategoryCloud},
	"doctl":  {Name: "doctl", Category: CategoryCloud},
}

// aliases maps common front-ends and abbreviations onto registry entries.
var aliases = map[string]string{
	"g":   "git",
	"k":   "kubectl",
	"d":   "docker",
	"dc":  "docker-compose",
	"tf":  "terraform",
	"pn":  "pnpm",
	"npx": "npm",
	"py":  "python3",
}

// systemUtils are short-lived utilities resolved last.
var systemUtils = map[string]bool{
	"ls": true, "cat": true, "grep": true, "find": true, "echo": true,
	"pwd": true, "cd": true, "mkdir": true, "rm": true, "cp": true,
	"mv": true, "touch": true, "ps": true, "top": true, "df": true,
	"du": true, "tar": true, "curl": true, "wget": true, "chmod": true,
	"chown": true, "kill": true, "which": true, "env": true, "head": true,
	"tail": true, "sed": true, "awk": true, "vi": true, "vim": true,
}

const installCacheTTL = 30 * time.Second

type installProbe struct {
	installed bool
	checked   time.Time
}

// Classifier resolves a command line into a CommandInfo. Installed-tool
// probes go through exec.LookPath memoized with a fixed expiry.
type Classifier struct {
	mu       sync.Mutex
	cache    map[string]installProbe
	lookPath func(string) (string, error)
}

// NewClassifier creates a classifier with an empty detection cache.
func NewClassifier() *Classifier {
	return &Classifier{
		cache:    make(map[string]installProbe),
		lookPath: exec.LookPath,
	}
}

// Parse tokenizes a line respecting quoting and backslash escapes, then
// resolves the program through, in order: the known-tool registry, the alias
// table, compound-command heuristics, and the system-utility table.
func (c *Classifier) Parse(line string) CommandInfo {
	info := CommandInfo{
		Category:  CategoryUnknown,
		Timestamp: time.Now().UTC(),
	}

	fields, err := shell.Fields(line, nil)
	if err != nil {
		// Unbalanced quoting; degrade to whitespace splitting so the raw
		// shell fallback still gets something to run.
		fields = strings.Fields(line)
	}
	if len(fields) == 0 {
		return info
	}

	info.Command = fields[0]
	info.Args = fields[1:]

	name := fields[0]
	if target, ok := aliases[name]; ok {
		name = target
	}

	// Compound commands: the first argument picks the real tool.
	if name == "docker" && len(info.Args) > 0 && info.Args[0] == "compose" {
		name = "docker-compose"
	}

	if def, ok := knownTools[name]; ok {
		tool := def
		info.Tool = &tool
		info.Category = def.Category
		info.IsAgentTool = def.AgentTool
		return info
	}

	if systemUtils[name] {
		tool := ToolDef{Name: name, Category: CategorySystem}
		info.Tool = &tool
		info.Category = CategorySystem
		return info
	}

	return info
}

// IsInstalled reports whether the named program is on PATH, caching the
// probe result for a short window.
func (c *Classifier) IsInstalled(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if probe, ok := c.cache[name]; ok && time.Since(probe.checked) < installCacheTTL {
		return probe.installed
	}

	_, err := c.lookPath(name)
	probe := installProbe{installed: err == nil, checked: time.Now()}
	c.cache[name] = probe
	return probe.installed
}
