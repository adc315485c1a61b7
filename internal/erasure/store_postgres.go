package erasure

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"prepguard/internal/sentinel"
)

const requestColumns = `id, user_id, request_type, domains, format, status, error_message, file_path, download_token, expires_at, created_at, completed_at`

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, request *Request) error {
	query := `
		INSERT INTO export_requests (` + requestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := s.db.ExecContext(ctx, query,
		request.ID, request.UserID, string(request.RequestType), joinDomains(request.Domains),
		request.Format, string(request.Status), nullString(request.ErrorMessage),
		nullString(request.FilePath), nullString(request.DownloadToken),
		request.ExpiresAt, request.CreatedAt, request.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert export request: %w", err)
	}
	return nil
}

func (s *PostgresStore) Find(ctx context.Context, id string) (*Request, error) {
	query := `SELECT ` + requestColumns + ` FROM export_requests WHERE id = $1`
	request, err := scanRequest(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query export request: %w", err)
	}
	return request, nil
}

func (s *PostgresStore) Update(ctx context.Context, request *Request) error {
	query := `
		UPDATE export_requests SET
			status = $2,
			error_message = $3,
			file_path = $4,
			download_token = $5,
			expires_at = $6,
			completed_at = $7
		WHERE id = $1
	`
	res, err := s.db.ExecContext(ctx, query,
		request.ID, string(request.Status), nullString(request.ErrorMessage),
		nullString(request.FilePath), nullString(request.DownloadToken),
		request.ExpiresAt, request.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update export request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update export request: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID string) ([]Request, error) {
	query := `SELECT ` + requestColumns + ` FROM export_requests WHERE user_id = $1 ORDER BY created_at`
	return s.list(ctx, query, userID)
}

// ClaimPending relies on FOR UPDATE SKIP LOCKED so concurrent workers never
// claim the same request.
func (s *PostgresStore) ClaimPending(ctx context.Context) (*Request, error) {
	query := `
		UPDATE export_requests SET status = 'processing'
		WHERE id = (
			SELECT id FROM export_requests
			WHERE status = 'pending'
			ORDER BY created_at
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING ` + requestColumns
	request, err := scanRequest(s.db.QueryRowContext(ctx, query))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("claim pending request: %w", err)
	}
	return request, nil
}

func (s *PostgresStore) ListExpiredExports(ctx context.Context, now time.Time) ([]Request, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM export_requests
		WHERE request_type = 'export'
			AND status = 'completed'
			AND file_path IS NOT NULL
			AND expires_at <= $1
		ORDER BY created_at
	`
	return s.list(ctx, query, now)
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]Request, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query export requests: %w", err)
	}
	defer rows.Close()

	requests := make([]Request, 0)
	for rows.Next() {
		request, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan export request: %w", err)
		}
		requests = append(requests, *request)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate export requests: %w", err)
	}
	return requests, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*Request, error) {
	var (
		request                             Request
		domains                             string
		errorMessage, filePath, downloadTok sql.NullString
		expiresAt, completedAt              sql.NullTime
	)
	err := row.Scan(&request.ID, &request.UserID, &request.RequestType, &domains,
		&request.Format, &request.Status, &errorMessage, &filePath, &downloadTok,
		&expiresAt, &request.CreatedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	request.ErrorMessage = errorMessage.String
	request.FilePath = filePath.String
	request.DownloadToken = downloadTok.String
	request.Domains = splitDomains(domains)
	if expiresAt.Valid {
		request.ExpiresAt = &expiresAt.Time
	}
	if completedAt.Valid {
		request.CompletedAt = &completedAt.Time
	}
	return &request, nil
}

func joinDomains(domains []Domain) string {
	parts := make([]string, len(domains))
	for i, d := range domains {
		parts[i] = string(d)
	}
	return strings.Join(parts, ",")
}

func splitDomains(raw string) []Domain {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	domains := make([]Domain, len(parts))
	for i, p := range parts {
		domains[i] = Domain(p)
	}
	return domains
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
