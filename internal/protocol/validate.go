package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
)

// ErrUnknownType marks a syntactically valid frame whose kind the server does
// not recognize. The connection layer logs and ignores these instead of
// replying with an error frame.
var ErrUnknownType = errors.New("unknown message type")

// uuidPattern is the canonical 8-4-4-4-12 hex form. Tokens in any other
// format (braced, urn-prefixed, missing hyphens) are rejected at auth.
var uuidPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// ValidUUID reports whether token is a canonically formatted UUID.
func ValidUUID(token string) bool {
	return uuidPattern.MatchString(token)
}

// validClientTypes is the set of allowed client→server frame kinds.
var validClientTypes = map[string]bool{
	TypeAuth:           true,
	TypeTerminalInput:  true,
	TypeTerminalResize: true,
	TypeTerminalCreate: true,
	TypeTerminalClose:  true,
	TypeTerminalList:   true,
	TypePing:           true,
	TypePong:           true,
}

// ValidateClientMessage validates a raw JSON frame from a client. A
// non-parseable frame or one missing required fields yields an error the
// caller converts into an `error` frame; an unrecognized kind yields
// ErrUnknownType.
func ValidateClientMessage(raw []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	if msg.Type == "" {
		return nil, fmt.Errorf("missing 'type' field")
	}

	if !validClientTypes[msg.Type] {
		return &msg, fmt.Errorf("%w: %s", ErrUnknownType, msg.Type)
	}

	switch msg.Type {
	case TypeAuth:
		if msg.UUID == "" {
			return nil, fmt.Errorf("missing required field 'uuid' in %s frame", msg.Type)
		}

	case TypeTerminalInput:
		if msg.TerminalID == "" {
			return nil, fmt.Errorf("missing required field 'terminalId' in %s frame", msg.Type)
		}
		var data string
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			return nil, fmt.Errorf("invalid data for %s: %w", msg.Type, err)
		}

	case TypeTerminalResize:
		if msg.TerminalID == "" {
			return nil, fmt.Errorf("missing required field 'terminalId' in %s frame", msg.Type)
		}
		var data TerminalResizeData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			return nil, fmt.Errorf("invalid data for %s: %w", msg.Type, err)
		}
		if data.Cols <= 0 || data.Rows <= 0 {
			return nil, fmt.Errorf("cols and rows must be positive in %s frame", msg.Type)
		}

	case TypeTerminalClose:
		if msg.TerminalID == "" {
			return nil, fmt.Errorf("missing required field 'terminalId' in %s frame", msg.Type)
		}

	case TypeTerminalCreate:
		// TerminalID and data are both optional; the server assigns an id
		// and defaults name/color when absent.
		if len(msg.Data) > 0 {
			var data TerminalCreateData
			if err := json.Unmarshal(msg.Data, &data); err != nil {
				return nil, fmt.Errorf("invalid data for %s: %w", msg.Type, err)
			}
		}
	}

	return &msg, nil
}

// NewErrorMessage creates an error frame ready to send to the client.
func NewErrorMessage(reason string) (*Message, error) {
	return NewMessage(TypeError, reason)
}
