package privacy

import "time"

// Settings holds one user's retention overrides and feature toggles.
// Exactly one row exists per user, created with defaults on first access.
type Settings struct {
	UserID                     string
	AudioRetentionDays         int
	TranscriptionRetentionDays int
	AnalyticsEnabled           bool
	DataSharingEnabled         bool
	MarketingEmailsEnabled     bool
	SessionRecordingEnabled    bool
	AITrainingEnabled          bool
	CreatedAt                  time.Time
	UpdatedAt                  time.Time
}

// Default retention periods in days.
const (
	DefaultAudioRetentionDays         = 30
	DefaultTranscriptionRetentionDays = 90
)

// DefaultSettings returns the privacy posture a user starts with.
func DefaultSettings(userID string) *Settings {
	now := time.Now()
	return &Settings{
		UserID:                     userID,
		AudioRetentionDays:         DefaultAudioRetentionDays,
		TranscriptionRetentionDays: DefaultTranscriptionRetentionDays,
		AnalyticsEnabled:           true,
		DataSharingEnabled:         false,
		MarketingEmailsEnabled:     false,
		SessionRecordingEnabled:    true,
		AITrainingEnabled:          false,
		CreatedAt:                  now,
		UpdatedAt:                  now,
	}
}

// Update is a partial patch; nil fields are left unchanged.
type Update struct {
	AudioRetentionDays         *int
	TranscriptionRetentionDays *int
	AnalyticsEnabled           *bool
	DataSharingEnabled         *bool
	MarketingEmailsEnabled     *bool
	SessionRecordingEnabled    *bool
	AITrainingEnabled          *bool
}

// Operation names a feature gated by a privacy toggle.
type Operation string

const (
	OpAnalyticsTracking Operation = "analytics_tracking"
	OpDataSharing       Operation = "data_sharing"
	OpSessionRecording  Operation = "session_recording"
	OpAITraining        Operation = "ai_training"
)
