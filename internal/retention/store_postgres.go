package retention

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"prepguard/internal/sentinel"
	"prepguard/internal/sessiondata"
)

const policyColumns = `id, data_type, retention_days, auto_delete, is_active, created_at, updated_at`

// PostgresStore keeps one policy row per data type behind a unique index.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Upsert(ctx context.Context, policy *Policy) error {
	query := `
		INSERT INTO retention_policies (` + policyColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (data_type) DO UPDATE SET
			retention_days = EXCLUDED.retention_days,
			auto_delete = EXCLUDED.auto_delete,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		policy.ID, string(policy.DataType), policy.RetentionDays,
		policy.AutoDelete, policy.IsActive, policy.CreatedAt, policy.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert retention policy: %w", err)
	}
	return nil
}

func (s *PostgresStore) Find(ctx context.Context, dataType sessiondata.DataType) (*Policy, error) {
	query := `SELECT ` + policyColumns + ` FROM retention_policies WHERE data_type = $1`
	var policy Policy
	err := s.db.QueryRowContext(ctx, query, string(dataType)).Scan(
		&policy.ID, &policy.DataType, &policy.RetentionDays,
		&policy.AutoDelete, &policy.IsActive, &policy.CreatedAt, &policy.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query retention policy: %w", err)
	}
	return &policy, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]Policy, error) {
	query := `SELECT ` + policyColumns + ` FROM retention_policies ORDER BY data_type`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query retention policies: %w", err)
	}
	defer rows.Close()

	policies := make([]Policy, 0)
	for rows.Next() {
		var policy Policy
		err := rows.Scan(&policy.ID, &policy.DataType, &policy.RetentionDays,
			&policy.AutoDelete, &policy.IsActive, &policy.CreatedAt, &policy.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan retention policy: %w", err)
		}
		policies = append(policies, policy)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate retention policies: %w", err)
	}
	return policies, nil
}

func (s *PostgresStore) Delete(ctx context.Context, dataType sessiondata.DataType) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM retention_policies WHERE data_type = $1`, string(dataType))
	if err != nil {
		return fmt.Errorf("delete retention policy: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete retention policy: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
