package sessiondata

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresStore implements Store over the interview content tables.
// DeleteByUser runs inside one transaction so a failed erasure leaves
// every domain untouched.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// tableFor maps a domain to its table. Session children are handled
// separately so they always go before their parents.
func tableFor(typ DataType) (string, error) {
	switch typ {
	case TypeAudio:
		return "audio_recordings", nil
	case TypeTranscription:
		return "transcriptions", nil
	case TypeSession:
		return "interview_sessions", nil
	case TypePractice:
		return "practice_records", nil
	case TypeAnalytics:
		return "analytics_events", nil
	}
	return "", fmt.Errorf("unknown data type %q", typ)
}

func (s *PostgresStore) AddSession(ctx context.Context, sess Session) error {
	query := `
		INSERT INTO interview_sessions (id, user_id, topic, started_at, ended_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.db.ExecContext(ctx, query, sess.ID, sess.UserID, sess.Topic, sess.StartedAt, sess.EndedAt, sess.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *PostgresStore) AddInteraction(ctx context.Context, i Interaction) error {
	query := `
		INSERT INTO session_interactions (id, session_id, user_id, role, content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.db.ExecContext(ctx, query, i.ID, i.SessionID, i.UserID, i.Role, i.Content, i.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert interaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) AddMetric(ctx context.Context, m Metric) error {
	query := `
		INSERT INTO session_metrics (id, session_id, user_id, name, value, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.db.ExecContext(ctx, query, m.ID, m.SessionID, m.UserID, m.Name, m.Value, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert metric: %w", err)
	}
	return nil
}

func (s *PostgresStore) AddAudio(ctx context.Context, a AudioRecording) error {
	query := `
		INSERT INTO audio_recordings (id, user_id, session_id, duration_seconds, size_bytes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.db.ExecContext(ctx, query, a.ID, a.UserID, a.SessionID, a.DurationSeconds, a.SizeBytes, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert audio recording: %w", err)
	}
	return nil
}

func (s *PostgresStore) AddTranscription(ctx context.Context, t Transcription) error {
	query := `
		INSERT INTO transcriptions (id, user_id, session_id, content, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.db.ExecContext(ctx, query, t.ID, t.UserID, t.SessionID, t.Content, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert transcription: %w", err)
	}
	return nil
}

func (s *PostgresStore) AddPractice(ctx context.Context, p PracticeRecord) error {
	query := `
		INSERT INTO practice_records (id, user_id, question, answer, score, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.db.ExecContext(ctx, query, p.ID, p.UserID, p.Question, p.Answer, p.Score, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert practice record: %w", err)
	}
	return nil
}

func (s *PostgresStore) AddAnalyticsEvent(ctx context.Context, e AnalyticsEvent) error {
	query := `
		INSERT INTO analytics_events (id, user_id, name, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := s.db.ExecContext(ctx, query, e.ID, e.UserID, e.Name, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert analytics event: %w", err)
	}
	return nil
}

func (s *PostgresStore) CountSessionsSince(ctx context.Context, userID string, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM interview_sessions WHERE user_id = $1 AND created_at >= $2`
	var count int
	if err := s.db.QueryRowContext(ctx, query, userID, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) AudioMinutesSince(ctx context.Context, userID string, since time.Time) (float64, error) {
	query := `
		SELECT COALESCE(SUM(duration_seconds), 0) / 60.0
		FROM audio_recordings
		WHERE user_id = $1 AND created_at >= $2
	`
	var minutes float64
	if err := s.db.QueryRowContext(ctx, query, userID, since).Scan(&minutes); err != nil {
		return 0, fmt.Errorf("sum audio minutes: %w", err)
	}
	return minutes, nil
}

func (s *PostgresStore) ListSessionsByUser(ctx context.Context, userID string) ([]Session, error) {
	query := `
		SELECT id, user_id, topic, started_at, ended_at, created_at
		FROM interview_sessions
		WHERE user_id = $1
		ORDER BY created_at
	`
	return queryRows(ctx, s.db, query, userID, func(rows *sql.Rows) (Session, error) {
		var v Session
		err := rows.Scan(&v.ID, &v.UserID, &v.Topic, &v.StartedAt, &v.EndedAt, &v.CreatedAt)
		return v, err
	})
}

func (s *PostgresStore) ListInteractionsByUser(ctx context.Context, userID string) ([]Interaction, error) {
	query := `
		SELECT id, session_id, user_id, role, content, created_at
		FROM session_interactions
		WHERE user_id = $1
		ORDER BY created_at
	`
	return queryRows(ctx, s.db, query, userID, func(rows *sql.Rows) (Interaction, error) {
		var v Interaction
		err := rows.Scan(&v.ID, &v.SessionID, &v.UserID, &v.Role, &v.Content, &v.CreatedAt)
		return v, err
	})
}

func (s *PostgresStore) ListMetricsByUser(ctx context.Context, userID string) ([]Metric, error) {
	query := `
		SELECT id, session_id, user_id, name, value, created_at
		FROM session_metrics
		WHERE user_id = $1
		ORDER BY created_at
	`
	return queryRows(ctx, s.db, query, userID, func(rows *sql.Rows) (Metric, error) {
		var v Metric
		err := rows.Scan(&v.ID, &v.SessionID, &v.UserID, &v.Name, &v.Value, &v.CreatedAt)
		return v, err
	})
}

func (s *PostgresStore) ListAudioByUser(ctx context.Context, userID string) ([]AudioRecording, error) {
	query := `
		SELECT id, user_id, session_id, duration_seconds, size_bytes, created_at
		FROM audio_recordings
		WHERE user_id = $1
		ORDER BY created_at
	`
	return queryRows(ctx, s.db, query, userID, func(rows *sql.Rows) (AudioRecording, error) {
		var v AudioRecording
		err := rows.Scan(&v.ID, &v.UserID, &v.SessionID, &v.DurationSeconds, &v.SizeBytes, &v.CreatedAt)
		return v, err
	})
}

func (s *PostgresStore) ListTranscriptionsByUser(ctx context.Context, userID string) ([]Transcription, error) {
	query := `
		SELECT id, user_id, session_id, content, created_at
		FROM transcriptions
		WHERE user_id = $1
		ORDER BY created_at
	`
	return queryRows(ctx, s.db, query, userID, func(rows *sql.Rows) (Transcription, error) {
		var v Transcription
		err := rows.Scan(&v.ID, &v.UserID, &v.SessionID, &v.Content, &v.CreatedAt)
		return v, err
	})
}

func (s *PostgresStore) ListPracticeByUser(ctx context.Context, userID string) ([]PracticeRecord, error) {
	query := `
		SELECT id, user_id, question, answer, score, created_at
		FROM practice_records
		WHERE user_id = $1
		ORDER BY created_at
	`
	return queryRows(ctx, s.db, query, userID, func(rows *sql.Rows) (PracticeRecord, error) {
		var v PracticeRecord
		err := rows.Scan(&v.ID, &v.UserID, &v.Question, &v.Answer, &v.Score, &v.CreatedAt)
		return v, err
	})
}

func (s *PostgresStore) ListAnalyticsByUser(ctx context.Context, userID string) ([]AnalyticsEvent, error) {
	query := `
		SELECT id, user_id, name, created_at
		FROM analytics_events
		WHERE user_id = $1
		ORDER BY created_at
	`
	return queryRows(ctx, s.db, query, userID, func(rows *sql.Rows) (AnalyticsEvent, error) {
		var v AnalyticsEvent
		err := rows.Scan(&v.ID, &v.UserID, &v.Name, &v.CreatedAt)
		return v, err
	})
}

func (s *PostgresStore) CountsByUser(ctx context.Context, userID string) (Counts, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM interview_sessions WHERE user_id = $1),
			(SELECT COUNT(*) FROM session_interactions WHERE user_id = $1),
			(SELECT COUNT(*) FROM session_metrics WHERE user_id = $1),
			(SELECT COUNT(*) FROM audio_recordings WHERE user_id = $1),
			(SELECT COUNT(*) FROM transcriptions WHERE user_id = $1),
			(SELECT COUNT(*) FROM practice_records WHERE user_id = $1),
			(SELECT COUNT(*) FROM analytics_events WHERE user_id = $1)
	`
	var c Counts
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&c.Sessions, &c.Interactions, &c.Metrics,
		&c.Audio, &c.Transcriptions, &c.Practice, &c.Analytics,
	)
	if err != nil {
		return Counts{}, fmt.Errorf("count user data: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) UserIDs(ctx context.Context) ([]string, error) {
	query := `
		SELECT DISTINCT user_id FROM (
			SELECT user_id FROM interview_sessions
			UNION SELECT user_id FROM audio_recordings
			UNION SELECT user_id FROM transcriptions
			UNION SELECT user_id FROM practice_records
			UNION SELECT user_id FROM analytics_events
		) AS owners
		ORDER BY user_id
	`
	return queryRows(ctx, s.db, query, nil, func(rows *sql.Rows) (string, error) {
		var id string
		err := rows.Scan(&id)
		return id, err
	})
}

func (s *PostgresStore) DeleteOlderThan(ctx context.Context, typ DataType, cutoff time.Time) (int64, error) {
	return s.deleteTx(ctx, typ, `created_at < $1`, cutoff)
}

func (s *PostgresStore) DeleteByUserOlderThan(ctx context.Context, typ DataType, userID string, cutoff time.Time) (int64, error) {
	return s.deleteTx(ctx, typ, `user_id = $1 AND created_at < $2`, userID, cutoff)
}

func (s *PostgresStore) DeleteByUser(ctx context.Context, userID string, types []DataType) (Counts, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Counts{}, fmt.Errorf("begin delete transaction: %w", err)
	}
	defer tx.Rollback()

	var counts Counts
	for _, typ := range types {
		n, err := deleteDomain(ctx, tx, typ, `user_id = $1`, userID)
		if err != nil {
			return Counts{}, err
		}
		switch typ {
		case TypeAudio:
			counts.Audio = n
		case TypeTranscription:
			counts.Transcriptions = n
		case TypePractice:
			counts.Practice = n
		case TypeAnalytics:
			counts.Analytics = n
		case TypeSession:
			counts.Sessions = n
		}
	}
	if err := tx.Commit(); err != nil {
		return Counts{}, fmt.Errorf("commit delete transaction: %w", err)
	}
	return counts, nil
}

// deleteTx wraps a single-domain delete in its own transaction so session
// children and parents go together.
func (s *PostgresStore) deleteTx(ctx context.Context, typ DataType, where string, args ...any) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin delete transaction: %w", err)
	}
	defer tx.Rollback()

	n, err := deleteDomain(ctx, tx, typ, where, args...)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit delete transaction: %w", err)
	}
	return n, nil
}

func deleteDomain(ctx context.Context, tx *sql.Tx, typ DataType, where string, args ...any) (int64, error) {
	if typ == TypeSession {
		return deleteSessions(ctx, tx, where, args...)
	}
	table, err := tableFor(typ)
	if err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE %s`, table, where), args...)
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected for %s: %w", table, err)
	}
	return n, nil
}

// deleteSessions removes interactions and metrics before their parent
// sessions, all inside the caller's transaction.
func deleteSessions(ctx context.Context, tx *sql.Tx, where string, args ...any) (int64, error) {
	var total int64
	for _, query := range []string{
		fmt.Sprintf(`DELETE FROM session_interactions WHERE session_id IN (SELECT id FROM interview_sessions WHERE %s)`, where),
		fmt.Sprintf(`DELETE FROM session_metrics WHERE session_id IN (SELECT id FROM interview_sessions WHERE %s)`, where),
		fmt.Sprintf(`DELETE FROM interview_sessions WHERE %s`, where),
	} {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, fmt.Errorf("delete sessions: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("delete sessions rows affected: %w", err)
		}
		total += n
	}
	return total, nil
}

func queryRows[T any](ctx context.Context, db *sql.DB, query string, arg any, scan func(*sql.Rows) (T, error)) ([]T, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if arg == nil {
		rows, err = db.QueryContext(ctx, query)
	} else {
		rows, err = db.QueryContext(ctx, query, arg)
	}
	if err != nil {
		return nil, fmt.Errorf("query rows: %w", err)
	}
	defer rows.Close()

	out := make([]T, 0)
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}
