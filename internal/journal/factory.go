package journal

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewStore creates a postgres-backed journal when configured, otherwise an
// in-memory one holding at most perSessionCap records per session.
func NewStore(ctx context.Context, databaseURL string, perSessionCap int) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewInMemoryStore(perSessionCap), nil
	}
	return NewPostgresStore(ctx, databaseURL)
}

// prepare fills defaults and redacts the transcript.
func prepare(record CommandRecord) CommandRecord {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	redacted, changed := RedactPII(record.Transcript)
	record.Transcript = redacted
	record.PIIRedacted = record.PIIRedacted || changed
	return record
}
