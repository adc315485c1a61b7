package consent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"prepguard/internal/audit"
	"prepguard/internal/platform/metrics"
	"prepguard/internal/sentinel"
	dErrors "prepguard/pkg/domain-errors"
)

// Service is the consent ledger. It persists per-(user, type, version)
// decisions and gates actions on the required subset.
type Service struct {
	store   Store
	auditor *audit.Service
	metrics *metrics.Metrics
	logger  *slog.Logger
}

type Option func(*Service)

// WithMetrics sets the metrics instance for the service.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithLogger sets the logger instance for the service.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func NewService(store Store, auditor *audit.Service, opts ...Option) *Service {
	svc := &Service{store: store, auditor: auditor}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// UpdateConsent records one grant or revocation. Granting stamps GrantedAt
// and clears RevokedAt; revoking stamps RevokedAt and preserves the prior
// GrantedAt. Every call emits an audit entry.
func (s *Service) UpdateConsent(ctx context.Context, userID string, req UpdateRequest) (*Record, error) {
	if userID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "user ID required")
	}
	if !req.Type.IsValid() {
		return nil, dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("invalid consent type: %s", req.Type))
	}
	version := req.Version
	if version == "" {
		version = CurrentVersion
	}

	now := time.Now()
	existing, err := s.store.Find(ctx, userID, req.Type, version)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to read consent")
	}

	record := &Record{
		ID:        uuid.New().String(),
		UserID:    userID,
		Type:      req.Type,
		Granted:   req.Granted,
		Version:   version,
		IP:        req.IP,
		UserAgent: req.UserAgent,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if existing != nil {
		record.GrantedAt = existing.GrantedAt
	}
	if req.Granted {
		record.GrantedAt = &now
		record.RevokedAt = nil
	} else {
		record.RevokedAt = &now
	}

	if err := s.store.Upsert(ctx, record); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to save consent")
	}

	action := audit.ActionConsentGranted
	if !req.Granted {
		action = audit.ActionConsentRevoked
	}
	s.emitAudit(ctx, userID, action, record, req.IP, req.UserAgent)

	if s.metrics != nil {
		if req.Granted {
			s.metrics.ConsentsGranted.WithLabelValues(string(req.Type)).Inc()
		} else {
			s.metrics.ConsentsRevoked.WithLabelValues(string(req.Type)).Inc()
		}
	}
	return record, nil
}

// GetUserConsents returns the status of every enumerated type at the current
// version. Types without a stored record report granted=false.
func (s *Service) GetUserConsents(ctx context.Context, userID string) ([]Status, error) {
	if userID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "user ID required")
	}
	records, err := s.store.ListByUserVersion(ctx, userID, CurrentVersion)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to list consents")
	}

	byType := make(map[Type]*Record, len(records))
	for _, record := range records {
		byType[record.Type] = record
	}

	statuses := make([]Status, 0, len(AllTypes))
	for _, consentType := range AllTypes {
		status := Status{
			Type:       consentType,
			IsRequired: consentType.IsRequired(),
			Version:    CurrentVersion,
		}
		if record, ok := byType[consentType]; ok {
			status.Granted = record.Granted
			status.GrantedAt = record.GrantedAt
			status.RevokedAt = record.RevokedAt
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// HasConsent reports whether the type is currently granted at the current
// version. A missing record means false, never an error.
func (s *Service) HasConsent(ctx context.Context, userID string, consentType Type) (bool, error) {
	if userID == "" {
		return false, dErrors.New(dErrors.CodeBadRequest, "user ID required")
	}
	if !consentType.IsValid() {
		return false, dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("invalid consent type: %s", consentType))
	}
	record, err := s.store.Find(ctx, userID, consentType, CurrentVersion)
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeStorage, "failed to read consent")
	}
	return record.Granted, nil
}

// HasRequiredConsents reports whether every required type is granted.
func (s *Service) HasRequiredConsents(ctx context.Context, userID string) (bool, error) {
	missing, err := s.GetMissingRequiredConsents(ctx, userID)
	if err != nil {
		return false, err
	}
	return len(missing) == 0, nil
}

// GetMissingRequiredConsents lists required types not currently granted.
func (s *Service) GetMissingRequiredConsents(ctx context.Context, userID string) ([]Type, error) {
	var missing []Type
	for _, consentType := range RequiredTypes {
		granted, err := s.HasConsent(ctx, userID, consentType)
		if err != nil {
			return nil, err
		}
		if !granted {
			missing = append(missing, consentType)
		}
	}
	return missing, nil
}

// IsConsentRequiredForAction returns the consent types an action needs.
// Unknown actions require nothing.
func (s *Service) IsConsentRequiredForAction(action string) []Type {
	required := actionRequirements[action]
	out := make([]Type, len(required))
	copy(out, required)
	return out
}

// ValidateConsentsForAction fails with a missing_consent error naming the
// first unmet type the action requires.
func (s *Service) ValidateConsentsForAction(ctx context.Context, userID, action string) error {
	for _, consentType := range s.IsConsentRequiredForAction(action) {
		granted, err := s.HasConsent(ctx, userID, consentType)
		if err != nil {
			return err
		}
		if !granted {
			if s.metrics != nil {
				s.metrics.ConsentCheckFailed.WithLabelValues(action).Inc()
			}
			s.logCheck(ctx, slog.LevelWarn, userID, action, string(consentType))
			return dErrors.New(dErrors.CodeMissingConsent,
				fmt.Sprintf("consent %s not granted for action %s", consentType, action))
		}
	}
	if s.metrics != nil {
		s.metrics.ConsentCheckPassed.WithLabelValues(action).Inc()
	}
	return nil
}

// GrantMultipleConsents grants every given type; each underlying update is
// independently audited. Used at onboarding.
func (s *Service) GrantMultipleConsents(ctx context.Context, userID string, types []Type, ip, userAgent string) ([]*Record, error) {
	if len(types) == 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "consent types must not be empty")
	}
	var records []*Record
	for _, consentType := range types {
		record, err := s.UpdateConsent(ctx, userID, UpdateRequest{
			Type:      consentType,
			Granted:   true,
			IP:        ip,
			UserAgent: userAgent,
		})
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// RevokeAllConsents revokes every currently granted type at the current
// version; each update is independently audited. Used at account deletion.
func (s *Service) RevokeAllConsents(ctx context.Context, userID string) (int, error) {
	statuses, err := s.GetUserConsents(ctx, userID)
	if err != nil {
		return 0, err
	}
	revoked := 0
	for _, status := range statuses {
		if !status.Granted {
			continue
		}
		if _, err := s.UpdateConsent(ctx, userID, UpdateRequest{Type: status.Type, Granted: false}); err != nil {
			return revoked, err
		}
		revoked++
	}
	return revoked, nil
}

// DeleteUserConsents removes every consent record for one user. Only
// account erasure calls this; ordinary withdrawal goes through
// RevokeAllConsents so the decision history survives.
func (s *Service) DeleteUserConsents(ctx context.Context, userID string) error {
	if userID == "" {
		return dErrors.New(dErrors.CodeBadRequest, "user ID required")
	}
	if err := s.store.DeleteByUser(ctx, userID); err != nil {
		return dErrors.Wrap(err, dErrors.CodeStorage, "failed to delete consent records")
	}
	return nil
}

// GetConsentStatistics aggregates granted/revoked counts per type at the
// current version, with every enumerated type present.
func (s *Service) GetConsentStatistics(ctx context.Context) (map[Type]TypeStatistics, error) {
	stats, err := s.store.StatisticsByVersion(ctx, CurrentVersion)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to aggregate consent statistics")
	}
	for _, consentType := range AllTypes {
		if _, ok := stats[consentType]; !ok {
			stats[consentType] = TypeStatistics{}
		}
	}
	return stats, nil
}

func (s *Service) emitAudit(ctx context.Context, userID string, action audit.Action, record *Record, ip, userAgent string) {
	if s.auditor == nil {
		return
	}
	s.auditor.LogPrivacy(ctx, audit.Entry{
		UserID: userID,
		Action: action,
		Details: map[string]any{
			"consent_type": string(record.Type),
			"version":      record.Version,
		},
		IP:        ip,
		UserAgent: userAgent,
		Success:   true,
	})
}

func (s *Service) logCheck(ctx context.Context, level slog.Level, userID, action, missingType string) {
	if s.logger == nil {
		return
	}
	s.logger.Log(ctx, level, "consent_check_failed",
		"user_id", userID,
		"action", action,
		"missing_type", missingType,
	)
}
