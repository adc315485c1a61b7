package privacy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"prepguard/internal/audit"
	"prepguard/internal/sentinel"
	dErrors "prepguard/pkg/domain-errors"
)

// Service manages per-user privacy preferences and gates feature operations
// on the matching toggle.
type Service struct {
	store   Store
	auditor *audit.Service
}

func NewService(store Store, auditor *audit.Service) *Service {
	return &Service{store: store, auditor: auditor}
}

// GetUserPrivacySettings returns the user's settings, creating the default
// row on first access.
func (s *Service) GetUserPrivacySettings(ctx context.Context, userID string) (*Settings, error) {
	if userID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "user ID required")
	}
	settings, err := s.store.Find(ctx, userID)
	if errors.Is(err, sentinel.ErrNotFound) {
		settings = DefaultSettings(userID)
		if err := s.store.Upsert(ctx, settings); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to create default privacy settings")
		}
		return settings, nil
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to read privacy settings")
	}
	return settings, nil
}

// UpdatePrivacySettings applies a partial patch. Retention fields must be at
// least one day. The audit entry carries the diff of changed fields.
func (s *Service) UpdatePrivacySettings(ctx context.Context, userID string, update Update) (*Settings, error) {
	if update.AudioRetentionDays != nil && *update.AudioRetentionDays < 1 {
		return nil, dErrors.New(dErrors.CodeValidation, "audio retention must be at least 1 day")
	}
	if update.TranscriptionRetentionDays != nil && *update.TranscriptionRetentionDays < 1 {
		return nil, dErrors.New(dErrors.CodeValidation, "transcription retention must be at least 1 day")
	}

	current, err := s.GetUserPrivacySettings(ctx, userID)
	if err != nil {
		return nil, err
	}

	updated := *current
	diff := map[string]any{}
	applyInt(&updated.AudioRetentionDays, update.AudioRetentionDays, "audio_retention_days", diff)
	applyInt(&updated.TranscriptionRetentionDays, update.TranscriptionRetentionDays, "transcription_retention_days", diff)
	applyBool(&updated.AnalyticsEnabled, update.AnalyticsEnabled, "analytics_enabled", diff)
	applyBool(&updated.DataSharingEnabled, update.DataSharingEnabled, "data_sharing_enabled", diff)
	applyBool(&updated.MarketingEmailsEnabled, update.MarketingEmailsEnabled, "marketing_emails_enabled", diff)
	applyBool(&updated.SessionRecordingEnabled, update.SessionRecordingEnabled, "session_recording_enabled", diff)
	applyBool(&updated.AITrainingEnabled, update.AITrainingEnabled, "ai_training_enabled", diff)

	if len(diff) == 0 {
		return current, nil
	}
	updated.UpdatedAt = time.Now()

	if err := s.store.Upsert(ctx, &updated); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to save privacy settings")
	}

	if s.auditor != nil {
		s.auditor.LogPrivacy(ctx, audit.Entry{
			UserID:  userID,
			Action:  audit.ActionPrivacyUpdated,
			Details: map[string]any{"changes": diff},
			Success: true,
		})
	}
	return &updated, nil
}

// ValidatePrivacyForOperation fails with a privacy_disabled error when the
// operation's toggle is off. Unknown operations pass unchecked.
func (s *Service) ValidatePrivacyForOperation(ctx context.Context, userID string, op Operation) error {
	settings, err := s.GetUserPrivacySettings(ctx, userID)
	if err != nil {
		return err
	}

	var enabled bool
	switch op {
	case OpAnalyticsTracking:
		enabled = settings.AnalyticsEnabled
	case OpDataSharing:
		enabled = settings.DataSharingEnabled
	case OpSessionRecording:
		enabled = settings.SessionRecordingEnabled
	case OpAITraining:
		enabled = settings.AITrainingEnabled
	default:
		return nil
	}
	if !enabled {
		return dErrors.New(dErrors.CodePrivacyDisabled, fmt.Sprintf("%s is disabled by privacy settings", op))
	}
	return nil
}

// DeleteUserSettings removes the user's row. Only account erasure calls this.
func (s *Service) DeleteUserSettings(ctx context.Context, userID string) error {
	if err := s.store.DeleteByUser(ctx, userID); err != nil {
		return dErrors.Wrap(err, dErrors.CodeStorage, "failed to delete privacy settings")
	}
	return nil
}

func applyInt(dst *int, src *int, field string, diff map[string]any) {
	if src == nil || *src == *dst {
		return
	}
	diff[field] = map[string]int{"from": *dst, "to": *src}
	*dst = *src
}

func applyBool(dst *bool, src *bool, field string, diff map[string]any) {
	if src == nil || *src == *dst {
		return
	}
	diff[field] = map[string]bool{"from": *dst, "to": *src}
	*dst = *src
}
