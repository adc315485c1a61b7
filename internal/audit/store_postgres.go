package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// PostgresStore implements Store using PostgreSQL.
// Requires sorted-by-time lookup indexes on (user_id, created_at) and
// (session_id, created_at); see migrations/schema.sql.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL audit store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const entryColumns = `id, user_id, session_id, action, resource_type, details, ip, user_agent, success, created_at`

func (s *PostgresStore) Append(ctx context.Context, entry Entry) error {
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}

	query := `
		INSERT INTO audit_entries (` + entryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = s.db.ExecContext(ctx, query,
		entry.ID,
		nullString(entry.UserID),
		nullString(entry.SessionID),
		string(entry.Action),
		string(entry.ResourceType),
		details,
		nullString(entry.IP),
		nullString(entry.UserAgent),
		entry.Success,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Entry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM audit_entries
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	return s.list(ctx, query, userID, limit, offset)
}

func (s *PostgresStore) ListBySession(ctx context.Context, sessionID string, limit, offset int) ([]Entry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM audit_entries
		WHERE session_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	return s.list(ctx, query, sessionID, limit, offset)
}

func (s *PostgresStore) ListSecurity(ctx context.Context, limit, offset int) ([]Entry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM audit_entries
		WHERE success = FALSE
		   OR action IN ('suspicious-activity', 'rate-limit-exceeded', 'unauthorized-access')
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`
	return s.list(ctx, query, limit, offset)
}

func (s *PostgresStore) ListByUserSince(ctx context.Context, userID string, since time.Time) ([]Entry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM audit_entries
		WHERE user_id = $1 AND created_at >= $2
		ORDER BY created_at DESC
	`
	return s.list(ctx, query, userID, since)
}

func (s *PostgresStore) ListByActionSince(ctx context.Context, action Action, since time.Time) ([]Entry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM audit_entries
		WHERE action = $1 AND created_at >= $2
		ORDER BY created_at DESC
	`
	return s.list(ctx, query, string(action), since)
}

func (s *PostgresStore) LastTimestampByUser(ctx context.Context, userID string) (time.Time, error) {
	query := `SELECT COALESCE(MAX(created_at), 'epoch'::timestamptz) FROM audit_entries WHERE user_id = $1`
	var last time.Time
	if err := s.db.QueryRowContext(ctx, query, userID).Scan(&last); err != nil {
		return time.Time{}, fmt.Errorf("query last audit timestamp: %w", err)
	}
	if last.Unix() == 0 {
		return time.Time{}, nil
	}
	return last, nil
}

func (s *PostgresStore) CountByUser(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_entries WHERE user_id = $1`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count audit entries: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM audit_entries WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old audit entries: %w", err)
	}
	return res.RowsAffected()
}

func (s *PostgresStore) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM audit_entries WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete audit entries for user: %w", err)
	}
	return res.RowsAffected()
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                         Entry
			userID, sessionID, ip, ua sql.NullString
			action, resourceType      string
			details                   []byte
		)
		if err := rows.Scan(&e.ID, &userID, &sessionID, &action, &resourceType, &details, &ip, &ua, &e.Success, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.UserID = userID.String
		e.SessionID = sessionID.String
		e.Action = Action(action)
		e.ResourceType = ResourceType(resourceType)
		e.IP = ip.String
		e.UserAgent = ua.String
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, fmt.Errorf("unmarshal audit details: %w", err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
