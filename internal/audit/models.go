package audit

import "time"

// Action is the closed set of security-relevant actions recorded in the
// trail. Free-form action strings are a design smell: every emitter goes
// through one of these constants so queries never have to guess spellings.
type Action string

const (
	// Auth events
	ActionLogin       Action = "login"
	ActionLogout      Action = "logout"
	ActionLoginFailed Action = "login-failed"

	// Audio events
	ActionAudioCapture Action = "audio-capture"
	ActionAudioDelete  Action = "audio-delete"

	// Transcription events
	ActionTranscriptionCreate Action = "transcription-create"
	ActionTranscriptionDelete Action = "transcription-delete"

	// Session events
	ActionSessionStart Action = "session-start"
	ActionSessionEnd   Action = "session-end"

	// Privacy and consent events
	ActionConsentGranted  Action = "consent-granted"
	ActionConsentRevoked  Action = "consent-revoked"
	ActionPrivacyUpdated  Action = "privacy-settings-updated"
	ActionPrivacyAccessed Action = "privacy-settings-accessed"

	// Key lifecycle events
	ActionKeyGenerated Action = "key-generated"
	ActionKeyRotated   Action = "key-rotated"

	// Data management events
	ActionDataExportRequest  Action = "data-export-request"
	ActionDataExportComplete Action = "data-export-complete"
	ActionDataExportDownload Action = "data-export-download"
	ActionDataDeleteRequest  Action = "data-delete-request"
	ActionDataDeleteComplete Action = "data-delete-complete"
	ActionDataDeleteFailed   Action = "data-delete-failed"

	// Security events
	ActionSuspiciousActivity Action = "suspicious-activity"
	ActionRateLimitExceeded  Action = "rate-limit-exceeded"
	ActionUnauthorizedAccess Action = "unauthorized-access"
)

// SecurityActions are the actions surfaced by the security log view in
// addition to any failed entry.
var SecurityActions = map[Action]bool{
	ActionSuspiciousActivity: true,
	ActionRateLimitExceeded:  true,
	ActionUnauthorizedAccess: true,
}

// ResourceType groups entries by the domain that emitted them.
type ResourceType string

const (
	ResourceAuth           ResourceType = "auth"
	ResourceAudio          ResourceType = "audio"
	ResourceTranscription  ResourceType = "transcription"
	ResourceSession        ResourceType = "session"
	ResourcePrivacy        ResourceType = "privacy"
	ResourceDataManagement ResourceType = "data-management"
	ResourceSecurity       ResourceType = "security"
	ResourceKeys           ResourceType = "keys"
)

// Entry is one immutable audit record. Entries are never updated after being
// written; the only delete path is age-based cleanup.
type Entry struct {
	ID           string
	UserID       string
	SessionID    string
	Action       Action
	ResourceType ResourceType
	Details      map[string]any
	IP           string
	UserAgent    string
	Success      bool
	CreatedAt    time.Time
}
