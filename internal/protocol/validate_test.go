package protocol

import (
	"errors"
	"testing"
)

func TestValidUUID(t *testing.T) {
	tests := []struct {
		token string
		want  bool
	}{
		{"550e8400-e29b-41d4-a716-446655440000", true},
		{"550E8400-E29B-41D4-A716-446655440000", true},
		{"", false},
		{"not-a-uuid", false},
		{"550e8400e29b41d4a716446655440000", false},
		{"{550e8400-e29b-41d4-a716-446655440000}", false},
		{"urn:uuid:550e8400-e29b-41d4-a716-446655440000", false},
		{"550e8400-e29b-41d4-a716-44665544000", false},
		{"550e8400-e29b-41d4-a716-4466554400000", false},
		{"g50e8400-e29b-41d4-a716-446655440000", false},
	}
	for _, tt := range tests {
		if got := ValidUUID(tt.token); got != tt.want {
			t.Errorf("ValidUUID(%q) = %v, want %v", tt.token, got, tt.want)
		}
	}
}

func TestValidateClientMessage_Valid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		typ  string
	}{
		{"auth", `{"type":"auth","uuid":"550e8400-e29b-41d4-a716-446655440000"}`, TypeAuth},
		{"input", `{"type":"terminal_input","terminalId":"t1","data":"ls\n"}`, TypeTerminalInput},
		{"resize", `{"type":"terminal_resize","terminalId":"t1","data":{"cols":120,"rows":40}}`, TypeTerminalResize},
		{"create bare", `{"type":"terminal_create"}`, TypeTerminalCreate},
		{"create named", `{"type":"terminal_create","terminalId":"t2","data":{"name":"Build","color":"#ff0000"}}`, TypeTerminalCreate},
		{"close", `{"type":"terminal_close","terminalId":"t1"}`, TypeTerminalClose},
		{"list", `{"type":"terminal_list"}`, TypeTerminalList},
		{"ping", `{"type":"ping"}`, TypePing},
		{"pong", `{"type":"pong"}`, TypePong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ValidateClientMessage([]byte(tt.raw))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if msg.Type != tt.typ {
				t.Errorf("got type %q, want %q", msg.Type, tt.typ)
			}
		})
	}
}

func TestValidateClientMessage_Invalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{{{`},
		{"empty object", `{}`},
		{"auth without uuid", `{"type":"auth"}`},
		{"input without terminal", `{"type":"terminal_input","data":"x"}`},
		{"input with object data", `{"type":"terminal_input","terminalId":"t1","data":{"a":1}}`},
		{"resize without terminal", `{"type":"terminal_resize","data":{"cols":80,"rows":24}}`},
		{"resize zero cols", `{"type":"terminal_resize","terminalId":"t1","data":{"cols":0,"rows":24}}`},
		{"resize negative rows", `{"type":"terminal_resize","terminalId":"t1","data":{"cols":80,"rows":-1}}`},
		{"close without terminal", `{"type":"terminal_close"}`},
		{"create with string data", `{"type":"terminal_create","data":"nope"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ValidateClientMessage([]byte(tt.raw)); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestValidateClientMessage_UnknownType(t *testing.T) {
	msg, err := ValidateClientMessage([]byte(`{"type":"bogus_kind"}`))
	if !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
	if msg == nil || msg.Type != "bogus_kind" {
		t.Error("expected parsed message alongside ErrUnknownType")
	}
}

func TestNewMessage(t *testing.T) {
	msg, err := NewMessage(TypeTerminalOutput, map[string]string{"data": "hi"})
	if err != nil {
		t.Fatalf("NewMessage failed: %v", err)
	}
	if msg.Type != TypeTerminalOutput {
		t.Errorf("got type %q", msg.Type)
	}
	if msg.Timestamp.IsZero() {
		t.Error("expected timestamp to be set")
	}
	if len(msg.Data) == 0 {
		t.Error("expected payload to be marshaled")
	}

	bare, err := NewMessage(TypePing, nil)
	if err != nil {
		t.Fatalf("NewMessage failed: %v", err)
	}
	if bare.Data != nil {
		t.Error("expected nil data for payload-less frame")
	}
}
