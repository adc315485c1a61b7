package retention

import (
	"time"

	"prepguard/internal/sessiondata"
)

// Policy is a global retention rule, one row per data type. A user's own
// privacy settings override the global policy for that user's audio and
// transcription data.
type Policy struct {
	ID            string
	DataType      sessiondata.DataType
	RetentionDays int
	AutoDelete    bool
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Report summarizes one automated cleanup run.
type Report struct {
	Deleted map[sessiondata.DataType]int64
	Failed  []sessiondata.DataType
	Started time.Time
	Took    time.Duration
}

// UserCleanupResult reports a per-user cleanup driven by that user's own
// retention preferences.
type UserCleanupResult struct {
	AudioDeleted         int64
	TranscriptionDeleted int64
}

// Statistics aggregates completed deletions from the audit trail over a
// trailing window. The audit trail is the source of truth here, not a
// separate metrics table.
type Statistics struct {
	WindowDays   int
	TotalRuns    int
	TotalDeleted int64
	ByDataType   map[string]int64
}
