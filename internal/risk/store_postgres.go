package risk

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"prepguard/internal/sentinel"
)

const patternColumns = `id, user_id, pattern_type, pattern_data, risk_score, flagged, reviewed, created_at`

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, pattern *UsagePattern) error {
	data, err := json.Marshal(pattern.PatternData)
	if err != nil {
		return fmt.Errorf("marshal pattern data: %w", err)
	}
	query := `
		INSERT INTO usage_patterns (` + patternColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = s.db.ExecContext(ctx, query,
		pattern.ID, pattern.UserID, string(pattern.PatternType), data,
		pattern.RiskScore, pattern.Flagged, pattern.Reviewed, pattern.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert usage pattern: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByUserSince(ctx context.Context, userID string, since time.Time) ([]UsagePattern, error) {
	query := `
		SELECT ` + patternColumns + `
		FROM usage_patterns
		WHERE user_id = $1 AND created_at >= $2
		ORDER BY created_at DESC
	`
	return s.list(ctx, query, userID, since)
}

func (s *PostgresStore) ListFlagged(ctx context.Context, limit int) ([]UsagePattern, error) {
	query := `
		SELECT ` + patternColumns + `
		FROM usage_patterns
		WHERE flagged = TRUE AND reviewed = FALSE
		ORDER BY created_at
		LIMIT $1
	`
	return s.list(ctx, query, limit)
}

func (s *PostgresStore) MarkReviewed(ctx context.Context, patternID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE usage_patterns SET reviewed = TRUE WHERE id = $1`, patternID)
	if err != nil {
		return fmt.Errorf("mark pattern reviewed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark pattern reviewed: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM usage_patterns WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old patterns: %w", err)
	}
	return res.RowsAffected()
}

func (s *PostgresStore) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM usage_patterns WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete user patterns: %w", err)
	}
	return res.RowsAffected()
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]UsagePattern, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query usage patterns: %w", err)
	}
	defer rows.Close()

	patterns := make([]UsagePattern, 0)
	for rows.Next() {
		var (
			p       UsagePattern
			rawData []byte
		)
		err := rows.Scan(&p.ID, &p.UserID, &p.PatternType, &rawData,
			&p.RiskScore, &p.Flagged, &p.Reviewed, &p.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan usage pattern: %w", err)
		}
		if len(rawData) > 0 {
			if err := json.Unmarshal(rawData, &p.PatternData); err != nil {
				return nil, fmt.Errorf("unmarshal pattern data: %w", err)
			}
		}
		patterns = append(patterns, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate usage patterns: %w", err)
	}
	return patterns, nil
}
