package router

import (
	"strconv"
	"testing"
	"time"
)

func intPtr(n int) *int { return &n }

func TestHistory_AppendAndQuery(t *testing.T) {
	h := NewHistory(100)

	h.Append("tok", "t1", HistoryEntry{Command: "git", Tool: "git", ExitCode: intPtr(0), Timestamp: time.Now()})
	h.Append("tok", "t1", HistoryEntry{Command: "ls", Tool: "ls", ExitCode: intPtr(0), Timestamp: time.Now()})
	h.Append("tok", "t2", HistoryEntry{Command: "git", Tool: "git", ExitCode: intPtr(1), Timestamp: time.Now()})

	if got := len(h.ForTerminal("tok", "t1")); got != 2 {
		t.Errorf("expected 2 entries for t1, got %d", got)
	}
	if got := len(h.ForTerminal("tok", "t2")); got != 1 {
		t.Errorf("expected 1 entry for t2, got %d", got)
	}
	if got := len(h.ForTool("tok", "git")); got != 2 {
		t.Errorf("expected 2 git entries, got %d", got)
	}
	if got := h.ForTerminal("other", "t1"); got != nil {
		t.Errorf("expected nil for unknown token, got %v", got)
	}
}

func TestHistory_Bound(t *testing.T) {
	h := NewHistory(5)

	for i := 0; i < 12; i++ {
		h.Append("tok", "t1", HistoryEntry{
			Command:   "echo",
			Args:      []string{strconv.Itoa(i)},
			Tool:      "echo",
			Timestamp: time.Now(),
		})
	}

	entries := h.ForTerminal("tok", "t1")
	if len(entries) != 5 {
		t.Fatalf("expected ledger capped at 5, got %d", len(entries))
	}
	// Oldest evicted, most recent retained in order.
	if entries[0].Args[0] != "7" || entries[4].Args[0] != "11" {
		t.Errorf("expected entries 7..11, got %s..%s", entries[0].Args[0], entries[4].Args[0])
	}

	if got := len(h.ForTool("tok", "echo")); got != 5 {
		t.Errorf("expected tool ledger capped at 5, got %d", got)
	}
}

func TestHistory_RecentForTool(t *testing.T) {
	h := NewHistory(100)

	for i := 0; i < 4; i++ {
		h.Append("tok", "t1", HistoryEntry{
			Command:   "git",
			Args:      []string{strconv.Itoa(i)},
			Tool:      "git",
			Timestamp: time.Now(),
		})
	}

	recent := h.RecentForTool("tok", "git", 2)
	if len(recent) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(recent))
	}
	if recent[0].Args[0] != "3" || recent[1].Args[0] != "2" {
		t.Errorf("expected newest first (3, 2), got (%s, %s)", recent[0].Args[0], recent[1].Args[0])
	}
}

func TestHistory_ToolsAndStats(t *testing.T) {
	h := NewHistory(100)

	base := time.Now()
	h.Append("tok", "t1", HistoryEntry{Command: "git", Tool: "git", Timestamp: base})
	h.Append("tok", "t1", HistoryEntry{Command: "npm", Tool: "npm", Timestamp: base.Add(time.Second)})
	h.Append("tok", "t2", HistoryEntry{Command: "git", Tool: "git", Timestamp: base.Add(2 * time.Second)})
	h.Append("tok", "t2", HistoryEntry{Command: "custombin", Timestamp: base.Add(3 * time.Second)})

	tools := h.Tools("tok")
	if len(tools) != 2 || tools[0] != "git" || tools[1] != "npm" {
		t.Errorf("expected [git npm], got %v", tools)
	}

	stats := h.Stats("tok")
	if stats.TotalCommands != 4 {
		t.Errorf("expected 4 total commands, got %d", stats.TotalCommands)
	}
	if stats.ByTool["git"] != 2 || stats.ByTool["npm"] != 1 {
		t.Errorf("unexpected per-tool counts: %v", stats.ByTool)
	}
	// git used most recently.
	if len(stats.RecentTools) != 2 || stats.RecentTools[0] != "git" {
		t.Errorf("expected recency order [git npm], got %v", stats.RecentTools)
	}
}
