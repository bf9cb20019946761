package session

import "time"

// Session holds metadata and state for one shell-backed terminal slot.
// The pair (Token, TerminalID) is unique among resident sessions.
type Session struct {
	ID           string    `json:"id"`
	Token        string    `json:"token"`
	TerminalID   string    `json:"terminalId"`
	Name         string    `json:"name"`
	Color        string    `json:"color"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
	Cols         int       `json:"cols"`
	Rows         int       `json:"rows"`
}

// EventType distinguishes lifecycle and output events.
type EventType string

const (
	EventCreated EventType = "created"
	EventOutput  EventType = "output"
	EventExit    EventType = "exit"
)

// Event is a single tagged occurrence on a terminal session. Output events
// carry raw bytes in Data; exit events carry the process exit code.
type Event struct {
	Type       EventType `json:"type"`
	Token      string    `json:"token"`
	TerminalID string    `json:"terminalId"`
	Data       string    `json:"data,omitempty"`
	ExitCode   int       `json:"exitCode,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
