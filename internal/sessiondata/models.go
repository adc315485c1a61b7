// Package sessiondata owns the interview content rows this engine reads,
// counts, and deletes: sessions with their interactions and metrics, audio
// recordings, transcriptions, practice attempts, and analytics events. The
// rows are created by the interview pipeline, never by this engine.
package sessiondata

import "time"

// DataType names one deletable data domain.
type DataType string

const (
	TypeAudio         DataType = "audio"
	TypeTranscription DataType = "transcription"
	TypeSession       DataType = "session"
	TypePractice      DataType = "practice"
	TypeAnalytics     DataType = "analytics"
)

// AllTypes lists every domain, in delete order for a full erasure.
var AllTypes = []DataType{TypeAudio, TypeTranscription, TypePractice, TypeAnalytics, TypeSession}

// Session is one mock-interview session. Interactions and metrics are
// child rows and are always deleted before their parent session.
type Session struct {
	ID        string
	UserID    string
	Topic     string
	StartedAt time.Time
	EndedAt   time.Time
	CreatedAt time.Time
}

type Interaction struct {
	ID        string
	SessionID string
	UserID    string
	Role      string
	Content   string
	CreatedAt time.Time
}

type Metric struct {
	ID        string
	SessionID string
	UserID    string
	Name      string
	Value     float64
	CreatedAt time.Time
}

type AudioRecording struct {
	ID              string
	UserID          string
	SessionID       string
	DurationSeconds float64
	SizeBytes       int64
	CreatedAt       time.Time
}

type Transcription struct {
	ID        string
	UserID    string
	SessionID string
	Content   string
	CreatedAt time.Time
}

type PracticeRecord struct {
	ID        string
	UserID    string
	Question  string
	Answer    string
	Score     float64
	CreatedAt time.Time
}

type AnalyticsEvent struct {
	ID        string
	UserID    string
	Name      string
	CreatedAt time.Time
}

// Counts reports per-domain row counts for one user.
type Counts struct {
	Sessions       int64 `json:"sessions"`
	Interactions   int64 `json:"interactions"`
	Metrics        int64 `json:"metrics"`
	Audio          int64 `json:"audio"`
	Transcriptions int64 `json:"transcriptions"`
	Practice       int64 `json:"practice"`
	Analytics      int64 `json:"analytics"`
}

// Total sums every domain.
func (c Counts) Total() int64 {
	return c.Sessions + c.Interactions + c.Metrics + c.Audio + c.Transcriptions + c.Practice + c.Analytics
}
