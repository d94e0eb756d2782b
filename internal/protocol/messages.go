package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ent0n29/civicvoice/internal/voicecontrol"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientControl    MessageType = "client_control"
	TypeClientTranscript MessageType = "client_transcript"
	TypeVoiceState       MessageType = "voice_state"
	TypeNavigation       MessageType = "navigation"
	TypeErrorEvent       MessageType = "error_event"
)

// Control actions accepted in client_control.
const (
	ActionActivate       = "activate"
	ActionDeactivate     = "deactivate"
	ActionStartListening = "start_listening"
)

// Navigation actions carried in navigation events.
const (
	NavigationReplace = "replace"
	NavigationPush    = "push"
)

const maxTranscriptLen = 512

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

type ClientControl struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Action    string      `json:"action"`
}

type ClientTranscript struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Text      string      `json:"text"`
}

type VoiceState struct {
	Type            MessageType `json:"type"`
	SessionID       string      `json:"session_id"`
	Active          bool        `json:"active"`
	Listening       bool        `json:"listening"`
	FeedbackMessage string      `json:"feedback_message"`
	LanguageCode    string      `json:"language_code"`
	Version         uint64      `json:"version"`
}

// StateMessage converts a voice session snapshot to its wire form.
func StateMessage(sessionID string, st voicecontrol.State) VoiceState {
	return VoiceState{
		Type:            TypeVoiceState,
		SessionID:       sessionID,
		Active:          st.Active,
		Listening:       st.Listening,
		FeedbackMessage: st.FeedbackMessage,
		LanguageCode:    st.LanguageCode,
		Version:         st.Version,
	}
}

type Navigation struct {
	Type        MessageType       `json:"type"`
	SessionID   string            `json:"session_id"`
	Action      string            `json:"action"`
	Destination string            `json:"destination"`
	Params      map[string]string `json:"params,omitempty"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" || msg.Action == "" {
			return nil, errors.New("invalid client_control")
		}
		switch msg.Action {
		case ActionActivate, ActionDeactivate, ActionStartListening:
		default:
			return nil, fmt.Errorf("invalid client_control action %q", msg.Action)
		}
		return msg, nil
	case TypeClientTranscript:
		var msg ClientTranscript
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" || strings.TrimSpace(msg.Text) == "" {
			return nil, errors.New("invalid client_transcript")
		}
		if len(msg.Text) > maxTranscriptLen {
			return nil, fmt.Errorf("client_transcript exceeds %d bytes", maxTranscriptLen)
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}

// TypeOf returns the message type of a known protocol value.
func TypeOf(v any) (MessageType, bool) {
	switch m := v.(type) {
	case ClientControl:
		return m.Type, true
	case ClientTranscript:
		return m.Type, true
	case VoiceState:
		return m.Type, true
	case Navigation:
		return m.Type, true
	case ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
