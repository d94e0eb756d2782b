package journal

import (
	"context"
	"time"
)

// CommandRecord is one interpreted voice command.
type CommandRecord struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"session_id"`
	UserID       string    `json:"user_id"`
	Transcript   string    `json:"transcript"`
	Intent       string    `json:"intent,omitempty"`
	Matched      bool      `json:"matched"`
	LanguageCode string    `json:"language_code"`
	PIIRedacted  bool      `json:"pii_redacted"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store keeps the history of interpreted commands. Transcripts are redacted
// before they reach the backing store.
type Store interface {
	SaveCommand(ctx context.Context, record CommandRecord) error
	RecentCommands(ctx context.Context, sessionID string, limit int) ([]CommandRecord, error)
	Mode() string
	Close() error
}

const defaultRecentLimit = 20
