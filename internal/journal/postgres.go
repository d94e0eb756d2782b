package journal

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists the command journal in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS voice_commands (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			transcript TEXT NOT NULL,
			intent TEXT NOT NULL DEFAULT '',
			matched BOOLEAN NOT NULL DEFAULT FALSE,
			language_code TEXT NOT NULL DEFAULT 'en',
			pii_redacted BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_voice_commands_session_created ON voice_commands (session_id, created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) SaveCommand(ctx context.Context, record CommandRecord) error {
	record = prepare(record)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO voice_commands (id, session_id, user_id, transcript, intent, matched, language_code, pii_redacted, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		record.ID,
		record.SessionID,
		record.UserID,
		record.Transcript,
		record.Intent,
		record.Matched,
		record.LanguageCode,
		record.PIIRedacted,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save command: %w", err)
	}
	return nil
}

func (s *PostgresStore) RecentCommands(ctx context.Context, sessionID string, limit int) ([]CommandRecord, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, user_id, transcript, intent, matched, language_code, pii_redacted, created_at
		 FROM voice_commands WHERE session_id=$1 ORDER BY created_at DESC LIMIT $2`,
		sessionID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent commands: %w", err)
	}
	defer rows.Close()

	items := make([]CommandRecord, 0, limit)
	for rows.Next() {
		var r CommandRecord
		if err := rows.Scan(&r.ID, &r.SessionID, &r.UserID, &r.Transcript, &r.Intent, &r.Matched, &r.LanguageCode, &r.PIIRedacted, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan command row: %w", err)
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate command rows: %w", err)
	}

	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	return items, nil
}

func (s *PostgresStore) Mode() string { return "postgres" }

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
