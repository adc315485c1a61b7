package keymanager

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"prepguard/internal/sentinel"
)

// PostgresStore implements Store using PostgreSQL. A partial unique index on
// (user_id, purpose) WHERE is_active enforces the single-active invariant.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) FindActive(ctx context.Context, userID string, purpose Purpose) (*KeyRecord, error) {
	query := `
		SELECT id, user_id, purpose, key_hash, salt, algorithm, is_active, created_at
		FROM encryption_keys
		WHERE user_id = $1 AND purpose = $2 AND is_active
	`
	var record KeyRecord
	err := s.db.QueryRowContext(ctx, query, userID, string(purpose)).Scan(
		&record.ID, &record.UserID, &record.Purpose, &record.KeyHash,
		&record.Salt, &record.Algorithm, &record.IsActive, &record.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query active key: %w", err)
	}
	return &record, nil
}

// ReplaceActive deactivates the current active record and inserts the new one
// in a single transaction.
func (s *PostgresStore) ReplaceActive(ctx context.Context, record *KeyRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin key replacement: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	_, err = tx.ExecContext(ctx,
		`UPDATE encryption_keys SET is_active = FALSE WHERE user_id = $1 AND purpose = $2 AND is_active`,
		record.UserID, string(record.Purpose),
	)
	if err != nil {
		return fmt.Errorf("deactivate previous key: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO encryption_keys (id, user_id, purpose, key_hash, salt, algorithm, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7)
	`,
		record.ID, record.UserID, string(record.Purpose), record.KeyHash,
		record.Salt, record.Algorithm, record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert key record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit key replacement: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteByUser(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM encryption_keys WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete key records: %w", err)
	}
	return nil
}
