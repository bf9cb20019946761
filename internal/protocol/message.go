package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message is the envelope for all WebSocket frames. Fields beyond Type are
// optional and depend on the frame kind; Data carries the kind-specific
// payload when one exists.
type Message struct {
	Type       string          `json:"type"`
	UUID       string          `json:"uuid,omitempty"`
	TerminalID string          `json:"terminalId,omitempty"`
	SessionID  string          `json:"sessionId,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	Timestamp  time.Time       `json:"timestamp,omitempty"`
}

// NewMessage creates a server-originated frame with the current timestamp.
func NewMessage(msgType string, payload interface{}) (*Message, error) {
	msg := &Message{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		msg.Data = data
	}
	return msg, nil
}

// Client → Server frame kinds.
const (
	TypeAuth           = "auth"
	TypeTerminalInput  = "terminal_input"
	TypeTerminalResize = "terminal_resize"
	TypeTerminalCreate = "terminal_create"
	TypeTerminalClose  = "terminal_close"
	TypePing           = "ping"
	TypePong           = "pong"
)

// Server → Client frame kinds. TypeTerminalList flows in both directions:
// inbound as a request, outbound carrying the terminal set.
const (
	TypeAuthSuccess     = "auth_success"
	TypeAuthError       = "auth_error"
	TypeTerminalCreated = "terminal_created"
	TypeTerminalClosed  = "terminal_closed"
	TypeTerminalList    = "terminal_list"
	TypeTerminalOutput  = "terminal_output"
	TypeTerminalExit    = "terminal_exit"
	TypeError           = "error"
)

// Client → Server payloads.

type TerminalCreateData struct {
	Name  string `json:"name,omitempty"`
	Color string `json:"color,omitempty"`
}

type TerminalResizeData struct {
	Cols int `json:"cols"`
	Rows int `json:"rows"`
}

// Server → Client payloads.

type AuthSuccessData struct {
	UUID      string `json:"uuid"`
	SessionID string `json:"sessionId"`
	Timestamp string `json:"timestamp"`
}

type TerminalCreatedData struct {
	ID         string `json:"id"`
	TerminalID string `json:"terminalId"`
	Name       string `json:"name"`
	Color      string `json:"color"`
	CreatedAt  string `json:"createdAt"`
}

type TerminalClosedData struct {
	Success    bool   `json:"success"`
	TerminalID string `json:"terminalId"`
}

type TerminalExitData struct {
	ExitCode   int    `json:"exitCode"`
	TerminalID string `json:"terminalId"`
}

type TerminalInfo struct {
	ID           string `json:"id"`
	TerminalID   string `json:"terminalId"`
	Name         string `json:"name"`
	Color        string `json:"color"`
	IsActive     bool   `json:"isActive"`
	CreatedAt    string `json:"createdAt"`
	LastActivity string `json:"lastActivity"`
}

type TerminalListData struct {
	Terminals []TerminalInfo `json:"terminals"`
}
