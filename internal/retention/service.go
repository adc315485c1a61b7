package retention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"prepguard/internal/audit"
	"prepguard/internal/platform/metrics"
	"prepguard/internal/privacy"
	"prepguard/internal/sentinel"
	"prepguard/internal/sessiondata"
	dErrors "prepguard/pkg/domain-errors"
	psync "prepguard/pkg/platform/sync"
)

// defaultAuditRetentionDays is how long the audit trail itself is kept
// unless the deployment overrides it.
const defaultAuditRetentionDays = 365

// PatternStore is the slice of the risk store the analytics sweep needs:
// usage patterns age out together with analytics events.
type PatternStore interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Service enforces retention policies over the interview content domains.
// Per-domain cleanups go through the session-data store's transactional
// bulk-delete primitive. Every completed deletion leaves a
// data-delete-complete audit entry; compliance statistics are derived from
// those entries rather than a separate counter table.
type Service struct {
	policies Store
	data     sessiondata.Store
	privacy  *privacy.Service
	auditor  *audit.Service
	patterns PatternStore
	locks    *psync.KeyedMutex
	metrics  *metrics.Metrics
	logger   *slog.Logger

	auditRetentionDays int
}

type Option func(*Service)

func WithPatternStore(patterns PatternStore) Option {
	return func(s *Service) {
		s.patterns = patterns
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithAuditRetention overrides how many days of the audit trail the
// automated cleanup preserves.
func WithAuditRetention(days int) Option {
	return func(s *Service) {
		if days > 0 {
			s.auditRetentionDays = days
		}
	}
}

func NewService(policies Store, data sessiondata.Store, privacySvc *privacy.Service, auditor *audit.Service, locks *psync.KeyedMutex, opts ...Option) (*Service, error) {
	if policies == nil || data == nil {
		return nil, fmt.Errorf("policy and session-data stores are required")
	}
	if locks == nil {
		locks = psync.NewKeyedMutex()
	}
	svc := &Service{
		policies: policies,
		data:     data,
		privacy:  privacySvc,
		auditor:  auditor,
		locks:    locks,

		auditRetentionDays: defaultAuditRetentionDays,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// SetPolicy creates or replaces the global policy for one data type.
func (s *Service) SetPolicy(ctx context.Context, dataType sessiondata.DataType, retentionDays int, autoDelete bool) (*Policy, error) {
	if !validDataType(dataType) {
		return nil, dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("invalid data type: %s", dataType))
	}
	if retentionDays < 1 {
		return nil, dErrors.New(dErrors.CodeValidation, "retention must be at least 1 day")
	}
	now := time.Now()
	policy := &Policy{
		ID:            uuid.New().String(),
		DataType:      dataType,
		RetentionDays: retentionDays,
		AutoDelete:    autoDelete,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.policies.Upsert(ctx, policy); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to save retention policy")
	}
	return policy, nil
}

func (s *Service) GetPolicy(ctx context.Context, dataType sessiondata.DataType) (*Policy, error) {
	policy, err := s.policies.Find(ctx, dataType)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("no retention policy for %s", dataType))
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to read retention policy")
	}
	return policy, nil
}

func (s *Service) GetPolicies(ctx context.Context) ([]Policy, error) {
	policies, err := s.policies.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to list retention policies")
	}
	return policies, nil
}

func (s *Service) CleanupAudioData(ctx context.Context, retentionDays int) (int64, error) {
	return s.cleanupType(ctx, sessiondata.TypeAudio, retentionDays)
}

func (s *Service) CleanupTranscriptionData(ctx context.Context, retentionDays int) (int64, error) {
	return s.cleanupType(ctx, sessiondata.TypeTranscription, retentionDays)
}

func (s *Service) CleanupSessionData(ctx context.Context, retentionDays int) (int64, error) {
	return s.cleanupType(ctx, sessiondata.TypeSession, retentionDays)
}

// CleanupAnalyticsData ages out analytics events and, with them, stored
// usage patterns.
func (s *Service) CleanupAnalyticsData(ctx context.Context, retentionDays int) (int64, error) {
	deleted, err := s.cleanupType(ctx, sessiondata.TypeAnalytics, retentionDays)
	if err != nil {
		return 0, err
	}
	if s.patterns != nil {
		cutoff := time.Now().AddDate(0, 0, -retentionDays)
		n, err := s.patterns.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			return deleted, dErrors.Wrap(err, dErrors.CodeStorage, "failed to delete old usage patterns")
		}
		deleted += n
	}
	return deleted, nil
}

func (s *Service) cleanupType(ctx context.Context, dataType sessiondata.DataType, retentionDays int) (int64, error) {
	if retentionDays < 1 {
		return 0, dErrors.New(dErrors.CodeValidation, "retention must be at least 1 day")
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	deleted, err := s.data.DeleteOlderThan(ctx, dataType, cutoff)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeStorage, fmt.Sprintf("failed to delete old %s data", dataType))
	}
	s.recordDeletion(ctx, "", dataType, deleted, retentionDays)
	return deleted, nil
}

// CleanupUserData re-runs the audio and transcription cleanups scoped to one
// user, using that user's own retention preferences, which take precedence
// over the global policy. Holds the user's advisory lock so it cannot
// interleave with an erasure delete.
func (s *Service) CleanupUserData(ctx context.Context, userID string) (*UserCleanupResult, error) {
	if userID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "user ID required")
	}

	settings, err := s.privacy.GetUserPrivacySettings(ctx, userID)
	if err != nil {
		return nil, err
	}

	s.locks.Lock(userID)
	defer s.locks.Unlock(userID)

	now := time.Now()
	result := &UserCleanupResult{}

	result.AudioDeleted, err = s.data.DeleteByUserOlderThan(ctx, sessiondata.TypeAudio, userID, now.AddDate(0, 0, -settings.AudioRetentionDays))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to delete user audio data")
	}
	s.recordDeletion(ctx, userID, sessiondata.TypeAudio, result.AudioDeleted, settings.AudioRetentionDays)

	result.TranscriptionDeleted, err = s.data.DeleteByUserOlderThan(ctx, sessiondata.TypeTranscription, userID, now.AddDate(0, 0, -settings.TranscriptionRetentionDays))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to delete user transcription data")
	}
	s.recordDeletion(ctx, userID, sessiondata.TypeTranscription, result.TranscriptionDeleted, settings.TranscriptionRetentionDays)

	return result, nil
}

// RunAutomatedCleanup dispatches every active auto-delete policy. A failing
// data type is logged and skipped, the rest still run. The audit trail's own
// retention is enforced at the end of each run.
func (s *Service) RunAutomatedCleanup(ctx context.Context) (*Report, error) {
	started := time.Now()
	report := &Report{
		Deleted: make(map[sessiondata.DataType]int64),
		Started: started,
	}

	policies, err := s.GetPolicies(ctx)
	if err != nil {
		return nil, err
	}

	for _, policy := range policies {
		if !policy.IsActive || !policy.AutoDelete {
			continue
		}
		deleted, err := s.dispatch(ctx, policy)
		if err != nil {
			report.Failed = append(report.Failed, policy.DataType)
			if s.metrics != nil {
				s.metrics.SweepFailures.WithLabelValues(string(policy.DataType)).Inc()
			}
			if s.logger != nil {
				s.logger.ErrorContext(ctx, "retention cleanup failed",
					slog.String("data_type", string(policy.DataType)),
					slog.String("error", err.Error()))
			}
			continue
		}
		report.Deleted[policy.DataType] = deleted
	}

	if s.auditor != nil {
		if _, err := s.auditor.CleanupOldLogs(ctx, s.auditRetentionDays); err != nil && s.logger != nil {
			s.logger.ErrorContext(ctx, "audit log cleanup failed", slog.String("error", err.Error()))
		}
	}

	report.Took = time.Since(started)
	if s.metrics != nil {
		s.metrics.SweepDuration.Observe(report.Took.Seconds())
	}
	return report, nil
}

func (s *Service) dispatch(ctx context.Context, policy Policy) (int64, error) {
	switch policy.DataType {
	case sessiondata.TypeAudio:
		return s.CleanupAudioData(ctx, policy.RetentionDays)
	case sessiondata.TypeTranscription:
		return s.CleanupTranscriptionData(ctx, policy.RetentionDays)
	case sessiondata.TypeSession:
		return s.CleanupSessionData(ctx, policy.RetentionDays)
	case sessiondata.TypeAnalytics:
		return s.CleanupAnalyticsData(ctx, policy.RetentionDays)
	case sessiondata.TypePractice:
		return s.cleanupType(ctx, sessiondata.TypePractice, policy.RetentionDays)
	}
	return 0, dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("invalid data type: %s", policy.DataType))
}

// GetCleanupStatistics aggregates data-delete-complete audit entries over
// the trailing window.
func (s *Service) GetCleanupStatistics(ctx context.Context, days int) (*Statistics, error) {
	if days < 1 {
		return nil, dErrors.New(dErrors.CodeValidation, "window must be at least 1 day")
	}
	if s.auditor == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "audit service not configured")
	}

	entries, err := s.auditor.GetEntriesByActionSince(ctx, audit.ActionDataDeleteComplete, time.Now().AddDate(0, 0, -days))
	if err != nil {
		return nil, err
	}

	stats := &Statistics{
		WindowDays: days,
		ByDataType: make(map[string]int64),
	}
	for _, entry := range entries {
		stats.TotalRuns++
		dataType, _ := entry.Details["data_type"].(string)
		count := detailCount(entry.Details["deleted_count"])
		stats.TotalDeleted += count
		if dataType != "" {
			stats.ByDataType[dataType] += count
		}
	}
	return stats, nil
}

// recordDeletion emits the data-delete-complete entry that compliance
// statistics are built from. Fail-open like every other audit write.
func (s *Service) recordDeletion(ctx context.Context, userID string, dataType sessiondata.DataType, deleted int64, retentionDays int) {
	if s.metrics != nil {
		s.metrics.RowsDeleted.WithLabelValues(string(dataType)).Add(float64(deleted))
	}
	if s.auditor == nil {
		return
	}
	s.auditor.LogDataManagement(ctx, audit.Entry{
		UserID: userID,
		Action: audit.ActionDataDeleteComplete,
		Details: map[string]any{
			"data_type":      string(dataType),
			"deleted_count":  deleted,
			"retention_days": retentionDays,
		},
		Success: true,
	})
}

// detailCount reads a numeric detail that may have round-tripped through
// JSON as float64.
func detailCount(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

func validDataType(dataType sessiondata.DataType) bool {
	for _, t := range sessiondata.AllTypes {
		if t == dataType {
			return true
		}
	}
	return false
}
