package sessiondata

import (
	"context"
	"time"
)

// Store is the bulk-delete primitive shared by the retention sweep and
// account erasure, plus the reads the risk and export paths need.
//
// DeleteOlderThan and DeleteByUserOlderThan delete one domain at a time;
// deleting TypeSession removes interactions and metrics before their parent
// sessions inside the same transaction. DeleteByUser removes every listed
// domain for one user atomically: either all listed domains are purged or
// none are.
type Store interface {
	AddSession(ctx context.Context, s Session) error
	AddInteraction(ctx context.Context, i Interaction) error
	AddMetric(ctx context.Context, m Metric) error
	AddAudio(ctx context.Context, a AudioRecording) error
	AddTranscription(ctx context.Context, t Transcription) error
	AddPractice(ctx context.Context, p PracticeRecord) error
	AddAnalyticsEvent(ctx context.Context, e AnalyticsEvent) error

	CountSessionsSince(ctx context.Context, userID string, since time.Time) (int, error)
	AudioMinutesSince(ctx context.Context, userID string, since time.Time) (float64, error)

	ListSessionsByUser(ctx context.Context, userID string) ([]Session, error)
	ListInteractionsByUser(ctx context.Context, userID string) ([]Interaction, error)
	ListMetricsByUser(ctx context.Context, userID string) ([]Metric, error)
	ListAudioByUser(ctx context.Context, userID string) ([]AudioRecording, error)
	ListTranscriptionsByUser(ctx context.Context, userID string) ([]Transcription, error)
	ListPracticeByUser(ctx context.Context, userID string) ([]PracticeRecord, error)
	ListAnalyticsByUser(ctx context.Context, userID string) ([]AnalyticsEvent, error)

	CountsByUser(ctx context.Context, userID string) (Counts, error)
	UserIDs(ctx context.Context) ([]string, error)

	DeleteOlderThan(ctx context.Context, typ DataType, cutoff time.Time) (int64, error)
	DeleteByUserOlderThan(ctx context.Context, typ DataType, userID string, cutoff time.Time) (int64, error)
	DeleteByUser(ctx context.Context, userID string, types []DataType) (Counts, error)
}
