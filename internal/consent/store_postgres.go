package consent

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"prepguard/internal/sentinel"
)

// PostgresStore implements Store using PostgreSQL. A unique index on
// (user_id, consent_type, version) backs the upsert.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Upsert(ctx context.Context, record *Record) error {
	query := `
		INSERT INTO consent_records
			(id, user_id, consent_type, granted, granted_at, revoked_at, version, ip, user_agent, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (user_id, consent_type, version) DO UPDATE SET
			granted = EXCLUDED.granted,
			granted_at = EXCLUDED.granted_at,
			revoked_at = EXCLUDED.revoked_at,
			ip = EXCLUDED.ip,
			user_agent = EXCLUDED.user_agent,
			updated_at = EXCLUDED.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		record.ID, record.UserID, string(record.Type), record.Granted,
		record.GrantedAt, record.RevokedAt, record.Version,
		nullString(record.IP), nullString(record.UserAgent),
		record.CreatedAt, record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert consent record: %w", err)
	}
	return nil
}

func (s *PostgresStore) Find(ctx context.Context, userID string, consentType Type, version string) (*Record, error) {
	query := `
		SELECT id, user_id, consent_type, granted, granted_at, revoked_at, version, ip, user_agent, created_at, updated_at
		FROM consent_records
		WHERE user_id = $1 AND consent_type = $2 AND version = $3
	`
	record, err := scanRecord(s.db.QueryRowContext(ctx, query, userID, string(consentType), version))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query consent record: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) ListByUserVersion(ctx context.Context, userID, version string) ([]*Record, error) {
	query := `
		SELECT id, user_id, consent_type, granted, granted_at, revoked_at, version, ip, user_agent, created_at, updated_at
		FROM consent_records
		WHERE user_id = $1 AND version = $2
	`
	rows, err := s.db.QueryContext(ctx, query, userID, version)
	if err != nil {
		return nil, fmt.Errorf("list consent records: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan consent record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate consent records: %w", err)
	}
	return records, nil
}

func (s *PostgresStore) StatisticsByVersion(ctx context.Context, version string) (map[Type]TypeStatistics, error) {
	query := `
		SELECT consent_type,
		       COUNT(*) FILTER (WHERE granted),
		       COUNT(*) FILTER (WHERE NOT granted)
		FROM consent_records
		WHERE version = $1
		GROUP BY consent_type
	`
	rows, err := s.db.QueryContext(ctx, query, version)
	if err != nil {
		return nil, fmt.Errorf("aggregate consent statistics: %w", err)
	}
	defer rows.Close()

	stats := make(map[Type]TypeStatistics)
	for rows.Next() {
		var (
			consentType string
			ts          TypeStatistics
		)
		if err := rows.Scan(&consentType, &ts.Granted, &ts.Revoked); err != nil {
			return nil, fmt.Errorf("scan consent statistics: %w", err)
		}
		stats[Type(consentType)] = ts
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate consent statistics: %w", err)
	}
	return stats, nil
}

func (s *PostgresStore) DeleteByUser(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM consent_records WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete consent records: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		record        Record
		consentType   string
		ip, userAgent sql.NullString
	)
	err := row.Scan(
		&record.ID, &record.UserID, &consentType, &record.Granted,
		&record.GrantedAt, &record.RevokedAt, &record.Version,
		&ip, &userAgent, &record.CreatedAt, &record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	record.Type = Type(consentType)
	record.IP = ip.String
	record.UserAgent = userAgent.String
	return &record, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
