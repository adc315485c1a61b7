package privacy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"prepguard/internal/sentinel"
)

// PostgresStore implements Store using PostgreSQL, one row per user.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Find(ctx context.Context, userID string) (*Settings, error) {
	query := `
		SELECT user_id, audio_retention_days, transcription_retention_days,
		       analytics_enabled, data_sharing_enabled, marketing_emails_enabled,
		       session_recording_enabled, ai_training_enabled, created_at, updated_at
		FROM privacy_settings
		WHERE user_id = $1
	`
	var settings Settings
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&settings.UserID, &settings.AudioRetentionDays, &settings.TranscriptionRetentionDays,
		&settings.AnalyticsEnabled, &settings.DataSharingEnabled, &settings.MarketingEmailsEnabled,
		&settings.SessionRecordingEnabled, &settings.AITrainingEnabled,
		&settings.CreatedAt, &settings.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query privacy settings: %w", err)
	}
	return &settings, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, settings *Settings) error {
	query := `
		INSERT INTO privacy_settings
			(user_id, audio_retention_days, transcription_retention_days,
			 analytics_enabled, data_sharing_enabled, marketing_emails_enabled,
			 session_recording_enabled, ai_training_enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id) DO UPDATE SET
			audio_retention_days = EXCLUDED.audio_retention_days,
			transcription_retention_days = EXCLUDED.transcription_retention_days,
			analytics_enabled = EXCLUDED.analytics_enabled,
			data_sharing_enabled = EXCLUDED.data_sharing_enabled,
			marketing_emails_enabled = EXCLUDED.marketing_emails_enabled,
			session_recording_enabled = EXCLUDED.session_recording_enabled,
			ai_training_enabled = EXCLUDED.ai_training_enabled,
			updated_at = EXCLUDED.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		settings.UserID, settings.AudioRetentionDays, settings.TranscriptionRetentionDays,
		settings.AnalyticsEnabled, settings.DataSharingEnabled, settings.MarketingEmailsEnabled,
		settings.SessionRecordingEnabled, settings.AITrainingEnabled,
		settings.CreatedAt, settings.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert privacy settings: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteByUser(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM privacy_settings WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete privacy settings: %w", err)
	}
	return nil
}
