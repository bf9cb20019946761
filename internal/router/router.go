package router

import (
	"context"
	"errors"
	"log"
	"os/exec"
	"runtime"
	"sort"
	"strconv"
	"sync"
	"time"
)

const defaultExecTimeout = 60 * time.Second

// ErrTimeout marks an execution killed by its timeout budget.
var ErrTimeout = errors.New("execution timed out")

// AgentEvent is one live output chunk from a streaming agent tool, tagged
// for real-time display.
type AgentEvent struct {
	Token      string    `json:"token"`
	TerminalID string    `json:"terminalId"`
	Tool       string    `json:"tool"`
	Data       string    `json:"data"`
	Timestamp  time.Time `json:"timestamp"`
}

// RouteResult is the outcome of one routing decision. Handled is false when
// the line fell through to the raw shell.
type RouteResult struct {
	Success   bool          `json:"success"`
	Handled   bool          `json:"handled"`
	Output    string        `json:"output"`
	Formatted string        `json:"formatted"`
	Error     string        `json:"error,omitempty"`
	ExitCode  *int          `json:"exitCode"`
	TimedOut  bool          `json:"timedOut"`
	Duration  time.Duration `json:"duration"`
	Info      CommandInfo   `json:"info"`
}

// Router orchestrates the classifier, history ledger, and formatter to turn
// a command line into a running child process and a recorded outcome.
type Router struct {
	classifier *Classifier
	history    *History
	formatter  *Formatter
	agents     *Agents

	mu     sync.Mutex
	active map[string]*exec.Cmd // terminal slot → running routed process

	events chan AgentEvent
}

// New creates a routing engine with the default agent registry.
func New(historyLimit int) *Router {
	return &Router{
		classifier: NewClassifier(),
		history:    NewHistory(historyLimit),
		formatter:  NewFormatter(),
		agents:     DefaultAgents(),
		active:     make(map[string]*exec.Cmd),
		events:     make(chan AgentEvent, 256),
	}
}

// Events is the live stream of agent-tool output chunks.
func (r *Router) Events() <-chan AgentEvent {
	return r.events
}

// Agents exposes the agent-tool registry for runtime add/remove and file
// watching.
func (r *Router) Agents() *Agents {
	return r.agents
}

// Parse classifies a line without executing it. The runtime registry is the
// sole authority on agent-ness: adding a program makes it an agent tool,
// removing one (including the shipped defaults) makes it an ordinary command
// again. The static tables only contribute category and naming.
func (r *Router) Parse(line string) CommandInfo {
	info := r.classifier.Parse(line)
	if _, ok := r.agents.Get(info.Command); ok {
		info.IsAgentTool = true
		info.Category = CategoryAI
		if info.Tool == nil {
			info.Tool = &ToolDef{Name: info.Command, Category: CategoryAI, AgentTool: true}
		} else {
			info.Tool.AgentTool = true
		}
	} else {
		info.IsAgentTool = false
		if info.Tool != nil {
			info.Tool.AgentTool = false
		}
	}
	return info
}

// Route classifies the line and dispatches it to the matching execution
// strategy: agent tool, directly spawned known tool, or raw shell fallback.
// Every branch appends a history record, success or not.
func (r *Router) Route(ctx context.Context, token, terminalID, line, cwd string) RouteResult {
	info := r.Parse(line)
	result := RouteResult{Info: info}

	if info.Command == "" {
		result.Error = "empty command"
		return result
	}

	start := time.Now()

	switch {
	case info.IsAgentTool && r.runAgentTool(ctx, token, terminalID, cwd, &result):

	case info.Tool != nil && r.classifier.IsInstalled(info.Command):
		result.Handled = true
		cmd := commandContext(ctx, cwd, info.Command, info.Args...)
		r.execute(ctx, terminalID, cmd, defaultExecTimeout, nil, &result)
		result.Formatted = r.formatter.Format(result.Output, info.Category)

	default:
		// Not specifically handled: hand the literal line to the shell.
		result.Handled = false
		cmd := shellCommand(ctx, cwd, line)
		r.execute(ctx, terminalID, cmd, defaultExecTimeout, nil, &result)
		result.Formatted = r.formatter.Format(result.Output, CategoryUnknown)
	}

	result.Duration = time.Since(start)

	tool := ""
	if info.Tool != nil {
		tool = info.Tool.Name
	}
	r.history.Append(token, terminalID, HistoryEntry{
		Command:   info.Command,
		Args:      info.Args,
		Tool:      tool,
		Timestamp: info.Timestamp,
		ExitCode:  result.ExitCode,
		Output:    result.Output,
		Error:     result.Error,
		Duration:  result.Duration,
	})

	return result
}

// runAgentTool spawns a registered agent tool under its own timeout budget,
// re-emitting chunks as live events when the tool streams. Returns false when
// the tool was unregistered between parse and dispatch, so routing falls
// through to the remaining strategies.
func (r *Router) runAgentTool(ctx context.Context, token, terminalID, cwd string, result *RouteResult) bool {
	info := result.Info
	name := info.Command

	cfg, ok := r.agents.Get(name)
	if !ok {
		return false
	}

	result.Handled = true

	args := append(append([]string{}, cfg.Args...), info.Args...)
	cmd := commandContext(ctx, cwd, cfg.Command, args...)

	var emit func(string)
	if cfg.Streaming {
		emit = func(chunk string) {
			select {
			case r.events <- AgentEvent{
				Token:      token,
				TerminalID: terminalID,
				Tool:       name,
				Data:       chunk,
				Timestamp:  time.Now().UTC(),
			}:
			default:
				log.Printf("router: agent event buffer full, dropped chunk for %s", name)
			}
		}
	}

	r.execute(ctx, terminalID, cmd, cfg.Timeout, emit, result)
	result.Formatted = r.formatter.Format(result.Output, CategoryAI)
	return true
}

// execute starts cmd with a timeout, tracks it in the active-process table,
// collects merged output, and fills in the result. emit, when non-nil,
// receives every chunk as it arrives.
func (r *Router) execute(ctx context.Context, terminalID string, cmd *exec.Cmd, timeout time.Duration, emit func(string), result *RouteResult) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		result.Error = "spawn failed: " + err.Error()
		return
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		result.Error = "spawn failed: " + err.Error()
		return
	}

	r.mu.Lock()
	r.active[terminalID] = cmd
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		if r.active[terminalID] == cmd {
			delete(r.active, terminalID)
		}
		r.mu.Unlock()
	}()

	// Kill the child when the budget expires; reads below then unblock.
	killed := make(chan struct{})
	go func() {
		select {
		case <-runCtx.Done():
			if runCtx.Err() != nil && cmd.Process != nil {
				cmd.Process.Kill()
			}
		case <-killed:
		}
	}()

	var collected []byte
	buf := make([]byte, 4096)
	for {
		n, readErr := stdout.Read(buf)
		if n > 0 {
			collected = append(collected, buf[:n]...)
			if emit != nil {
				emit(string(buf[:n]))
			}
		}
		if readErr != nil {
			break
		}
	}

	waitErr := cmd.Wait()
	close(killed)

	result.Output = string(collected)

	if runCtx.Err() == context.DeadlineExceeded {
		result.TimedOut = true
		result.Error = ErrTimeout.Error()
		return
	}

	code := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			code = exitErr.ExitCode()
		} else {
			result.Error = waitErr.Error()
			return
		}
	}
	result.ExitCode = &code
	result.Success = code == 0
	if code != 0 {
		result.Error = "exit status " + strconv.Itoa(code)
	}
}

// KillProcess terminates the routed process currently associated with a
// terminal slot, if any.
func (r *Router) KillProcess(terminalID string) bool {
	r.mu.Lock()
	cmd, ok := r.active[terminalID]
	r.mu.Unlock()

	if !ok || cmd.Process == nil {
		return false
	}
	if err := cmd.Process.Kill(); err != nil {
		log.Printf("router: kill process for %s: %v", terminalID, err)
		return false
	}
	return true
}

// ActiveProcesses lists the terminal slots with a routed process running.
func (r *Router) ActiveProcesses() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	slots := make([]string, 0, len(r.active))
	for slot := range r.active {
		slots = append(slots, slot)
	}
	sort.Strings(slots)
	return slots
}

// History accessors.

func (r *Router) HistoryForTerminal(token, terminalID string) []HistoryEntry {
	return r.history.ForTerminal(token, terminalID)
}

func (r *Router) HistoryForTool(token, tool string) []HistoryEntry {
	return r.history.ForTool(token, tool)
}

func (r *Router) RecentForTool(token, tool string, n int) []HistoryEntry {
	return r.history.RecentForTool(token, tool, n)
}

func (r *Router) HistoryTools(token string) []string {
	return r.history.Tools(token)
}

func (r *Router) Stats(token string) ToolStats {
	return r.history.Stats(token)
}

func commandContext(ctx context.Context, cwd, name string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	if cwd != "" {
		cmd.Dir = cwd
	}
	return cmd
}

func shellCommand(ctx context.Context, cwd, line string) *exec.Cmd {
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(ctx, "cmd", "/C", line)
	} else {
		cmd = exec.CommandContext(ctx, "sh", "-c", line)
	}
	if cwd != "" {
		cmd.Dir = cwd
	}
	return cmd
}

