package router

import (
	"sort"
	"sync"
	"time"
)

// HistoryEntry is one executed command's outcome. ExitCode is nil until the
// process completes.
type HistoryEntry struct {
	Command   string        `json:"command"`
	Args      []string      `json:"args"`
	Tool      string        `json:"tool,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	ExitCode  *int          `json:"exitCode"`
	Output    string        `json:"output,omitempty"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// ToolStats aggregates the ledgers for one token.
type ToolStats struct {
	TotalCommands int            `json:"totalCommands"`
	ByTool        map[string]int `json:"byTool"`
	RecentTools   []string       `json:"recentTools"` // most recently used first
}

// History keeps append-only, bounded ledgers of executed commands, indexed
// per (token, terminal) and per (token, tool). Oldest entries are evicted
// once a ledger reaches its cap.
type History struct {
	mu         sync.RWMutex
	maxEntries int
	byTerminal map[string][]HistoryEntry
	byTool     map[string][]HistoryEntry
}

// NewHistory creates ledgers capped at maxEntries each.
func NewHistory(maxEntries int) *History {
	return &History{
		maxEntries: maxEntries,
		byTerminal: make(map[string][]HistoryEntry),
		byTool:     make(map[string][]HistoryEntry),
	}
}

// Append records an entry under the terminal ledger and, when a tool was
// identified, under the tool ledger as well.
func (h *History) Append(token, terminalID string, entry HistoryEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()

	tk := token + "/" + terminalID
	h.byTerminal[tk] = trim(append(h.byTerminal[tk], entry), h.maxEntries)

	if entry.Tool != "" {
		lk := token + "/" + entry.Tool
		h.byTool[lk] = trim(append(h.byTool[lk], entry), h.maxEntries)
	}
}

func trim(entries []HistoryEntry, max int) []HistoryEntry {
	if len(entries) <= max {
		return entries
	}
	// Keep the most recent max entries.
	trimmed := make([]HistoryEntry, max)
	copy(trimmed, entries[len(entries)-max:])
	return trimmed
}

// ForTerminal returns the ledger for one (token, terminal), oldest first.
func (h *History) ForTerminal(token, terminalID string) []HistoryEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return copyEntries(h.byTerminal[token+"/"+terminalID])
}

// ForTool returns the ledger for one (token, tool), oldest first.
func (h *History) ForTool(token, tool string) []HistoryEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return copyEntries(h.byTool[token+"/"+tool])
}

// RecentForTool returns up to n most recent entries for a tool, newest first.
func (h *History) RecentForTool(token, tool string, n int) []HistoryEntry {
	entries := h.ForTool(token, tool)
	if len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	// Reverse to newest-first.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries
}

// Tools returns the names of every tool with a ledger for the token.
func (h *History) Tools(token string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	prefix := token + "/"
	var tools []string
	for k, entries := range h.byTool {
		if len(entries) > 0 && len(k) > len(prefix) && k[:len(prefix)] == prefix {
			tools = append(tools, k[len(prefix):])
		}
	}
	sort.Strings(tools)
	return tools
}

// Stats aggregates the token's ledgers: total command count, per-tool counts,
// and tools ordered by most recent use.
func (h *History) Stats(token string) ToolStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := ToolStats{ByTool: make(map[string]int)}

	prefix := token + "/"
	for k, entries := range h.byTerminal {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			stats.TotalCommands += len(entries)
		}
	}

	type lastUse struct {
		tool string
		at   time.Time
	}
	var uses []lastUse
	for k, entries := range h.byTool {
		if len(entries) == 0 || len(k) <= len(prefix) || k[:len(prefix)] != prefix {
			continue
		}
		tool := k[len(prefix):]
		stats.ByTool[tool] = len(entries)
		uses = append(uses, lastUse{tool: tool, at: entries[len(entries)-1].Timestamp})
	}

	sort.Slice(uses, func(i, j int) bool { return uses[i].at.After(uses[j].at) })
	for _, u := range uses {
		stats.RecentTools = append(stats.RecentTools, u.tool)
	}
	return stats
}

func copyEntries(entries []HistoryEntry) []HistoryEntry {
	if len(entries) == 0 {
		return nil
	}
	out := make([]HistoryEntry, len(entries))
	copy(out, entries)
	return out
}
