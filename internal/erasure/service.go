package erasure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"prepguard/internal/audit"
	"prepguard/internal/consent"
	"prepguard/internal/directory"
	"prepguard/internal/keymanager"
	"prepguard/internal/platform/filestore"
	"prepguard/internal/platform/metrics"
	"prepguard/internal/privacy"
	"prepguard/internal/sentinel"
	"prepguard/internal/sessiondata"
	dErrors "prepguard/pkg/domain-errors"
	psync "prepguard/pkg/platform/sync"
)

// PatternPurger is the slice of the risk store an account erasure needs.
type PatternPurger interface {
	DeleteByUser(ctx context.Context, userID string) (int64, error)
}

// Service orchestrates GDPR export and delete requests. Requests are
// persisted pending and picked up by the background Processor; callers
// observe completion only by polling the request status.
type Service struct {
	store    Store
	users    directory.UserDirectory
	data     sessiondata.Store
	files    filestore.Store
	trail    audit.Store
	signing  []byte
	auditor  *audit.Service
	consents *consent.Service
	privacy  *privacy.Service
	keys     *keymanager.Service
	patterns PatternPurger
	locks    *psync.KeyedMutex
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

type Option func(*Service)

func WithAuditor(a *audit.Service) Option {
	return func(s *Service) {
		s.auditor = a
	}
}

func WithConsents(c *consent.Service) Option {
	return func(s *Service) {
		s.consents = c
	}
}

func WithPrivacy(p *privacy.Service) Option {
	return func(s *Service) {
		s.privacy = p
	}
}

func WithKeys(k *keymanager.Service) Option {
	return func(s *Service) {
		s.keys = k
	}
}

func WithPatternPurger(p PatternPurger) Option {
	return func(s *Service) {
		s.patterns = p
	}
}

func WithLocks(locks *psync.KeyedMutex) Option {
	return func(s *Service) {
		s.locks = locks
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

func NewService(store Store, users directory.UserDirectory, data sessiondata.Store, files filestore.Store, trail audit.Store, signingKey string, opts ...Option) (*Service, error) {
	if store == nil || users == nil || data == nil || files == nil || trail == nil {
		return nil, fmt.Errorf("store, directory, session data, file store, and audit trail are required")
	}
	if signingKey == "" {
		return nil, fmt.Errorf("download signing key is required")
	}
	svc := &Service{
		store:   store,
		users:   users,
		data:    data,
		files:   files,
		trail:   trail,
		signing: []byte(signingKey),
		locks:   psync.NewKeyedMutex(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// CreateExportRequest validates and persists a pending request and returns
// immediately; the Processor completes it in the background.
func (s *Service) CreateExportRequest(ctx context.Context, userID string, requestType RequestType, domains []Domain, format string) (*Request, error) {
	if userID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "user ID required")
	}
	if !requestType.IsValid() {
		return nil, dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("invalid request type: %s", requestType))
	}
	if len(domains) == 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "at least one data domain required")
	}
	for _, domain := range domains {
		if !validDomains[domain] {
			return nil, dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("invalid data domain: %s", domain))
		}
	}
	if format == "" {
		format = FormatJSON
	}
	if format != FormatJSON {
		return nil, dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("unsupported format: %s", format))
	}

	exists, err := s.users.Exists(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to check user")
	}
	if !exists {
		return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
	}

	request := &Request{
		ID:          uuid.New().String(),
		UserID:      userID,
		RequestType: requestType,
		Domains:     append([]Domain(nil), domains...),
		Format:      format,
		Status:      StatusPending,
		CreatedAt:   time.Now(),
	}
	if err := s.store.Create(ctx, request); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to persist request")
	}

	if s.metrics != nil {
		s.metrics.ExportRequests.WithLabelValues(string(requestType)).Inc()
	}
	s.audit(ctx, userID, requestAction(requestType), map[string]any{
		"request_id": request.ID,
		"domains":    joinDomains(domains),
	}, true)
	return request, nil
}

// GetExportRequestStatus returns the request after an ownership check.
func (s *Service) GetExportRequestStatus(ctx context.Context, requestID, userID string) (*Request, error) {
	return s.authorizedRequest(ctx, requestID, userID)
}

// DownloadExportFile returns the artifact bytes after authorizing
// ownership, completion, expiry, and the signed download token.
func (s *Service) DownloadExportFile(ctx context.Context, requestID, userID, token string) ([]byte, error) {
	request, err := s.authorizedRequest(ctx, requestID, userID)
	if err != nil {
		return nil, err
	}
	if request.RequestType != RequestExport {
		return nil, dErrors.New(dErrors.CodeBadRequest, "request is not an export")
	}
	if request.Status != StatusCompleted {
		return nil, dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("export is %s, not completed", request.Status))
	}
	if request.ExpiresAt == nil || time.Now().After(*request.ExpiresAt) {
		return nil, dErrors.New(dErrors.CodeExpired, "export artifact has expired")
	}
	if err := s.verifyDownloadToken(token, userID, requestID); err != nil {
		return nil, err
	}

	data, err := s.files.Read(ctx, request.FilePath)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to read export artifact")
	}

	if s.metrics != nil {
		s.metrics.ExportDownloads.Inc()
	}
	s.audit(ctx, userID, audit.ActionDataExportDownload, map[string]any{
		"request_id": requestID,
	}, true)
	return data, nil
}

// CleanupExpiredExports deletes artifact files past their expiry and nulls
// the stored path. Per-file failures are logged and skipped.
func (s *Service) CleanupExpiredExports(ctx context.Context) (int, error) {
	expired, err := s.store.ListExpiredExports(ctx, time.Now())
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeStorage, "failed to list expired exports")
	}

	cleaned := 0
	for i := range expired {
		request := &expired[i]
		if err := s.files.Delete(ctx, request.FilePath); err != nil {
			if s.logger != nil {
				s.logger.WarnContext(ctx, "failed to delete expired export artifact",
					slog.String("request_id", request.ID),
					slog.String("error", err.Error()))
			}
			continue
		}
		request.FilePath = ""
		request.DownloadToken = ""
		if err := s.store.Update(ctx, request); err != nil {
			if s.logger != nil {
				s.logger.WarnContext(ctx, "failed to clear expired export",
					slog.String("request_id", request.ID),
					slog.String("error", err.Error()))
			}
			continue
		}
		cleaned++
	}
	return cleaned, nil
}

// GetDataProcessingSummary is the transparency report: what is stored, for
// how long, under which consents, and when the user was last active.
func (s *Service) GetDataProcessingSummary(ctx context.Context, userID string) (*Summary, error) {
	if userID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "user ID required")
	}

	counts, err := s.data.CountsByUser(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to count user data")
	}
	auditCount, err := s.trail.CountByUser(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to count audit entries")
	}
	lastActivity, err := s.trail.LastTimestampByUser(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to read last activity")
	}

	summary := &Summary{
		UserID:         userID,
		DataCounts:     counts,
		AuditEntries:   auditCount,
		RetentionDays:  make(map[string]int),
		LastActivityAt: lastActivity,
		GeneratedAt:    time.Now(),
	}
	if s.privacy != nil {
		settings, err := s.privacy.GetUserPrivacySettings(ctx, userID)
		if err != nil {
			return nil, err
		}
		summary.RetentionDays["audio"] = settings.AudioRetentionDays
		summary.RetentionDays["transcription"] = settings.TranscriptionRetentionDays
	}
	if s.consents != nil {
		summary.Consents, err = s.consents.GetUserConsents(ctx, userID)
		if err != nil {
			return nil, err
		}
	}
	return summary, nil
}

func (s *Service) authorizedRequest(ctx context.Context, requestID, userID string) (*Request, error) {
	if requestID == "" || userID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "request ID and user ID required")
	}
	request, err := s.store.Find(ctx, requestID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "request not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to read request")
	}
	if request.UserID != userID {
		return nil, dErrors.New(dErrors.CodeForbidden, "request belongs to another user")
	}
	return request, nil
}

// issueDownloadToken signs a token bound to (userID, requestID) that
// expires with the artifact.
func (s *Service) issueDownloadToken(userID, requestID string, expiresAt time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"req": requestID,
		"exp": expiresAt.Unix(),
	})
	signed, err := token.SignedString(s.signing)
	if err != nil {
		return "", fmt.Errorf("sign download token: %w", err)
	}
	return signed, nil
}

func (s *Service) verifyDownloadToken(tokenString, userID, requestID string) error {
	if tokenString == "" {
		return dErrors.New(dErrors.CodeForbidden, "download token required")
	}
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.signing, nil
	})
	if err != nil || !token.Valid {
		return dErrors.New(dErrors.CodeForbidden, "invalid download token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return dErrors.New(dErrors.CodeForbidden, "invalid download token")
	}
	if sub, _ := claims["sub"].(string); sub != userID {
		return dErrors.New(dErrors.CodeForbidden, "invalid download token")
	}
	if req, _ := claims["req"].(string); req != requestID {
		return dErrors.New(dErrors.CodeForbidden, "invalid download token")
	}
	return nil
}

// audit is fail-open like every other audit write in the system.
func (s *Service) audit(ctx context.Context, userID string, action audit.Action, details map[string]any, success bool) {
	if s.auditor == nil {
		return
	}
	s.auditor.LogDataManagement(ctx, audit.Entry{
		UserID:  userID,
		Action:  action,
		Details: details,
		Success: success,
	})
}

func requestAction(requestType RequestType) audit.Action {
	if requestType == RequestDelete {
		return audit.ActionDataDeleteRequest
	}
	return audit.ActionDataExportRequest
}
