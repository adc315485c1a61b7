package erasure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"prepguard/internal/audit"
	"prepguard/internal/sentinel"
	"prepguard/internal/sessiondata"
)

// Processor drains the pending request queue in a background goroutine.
// One request is processed at a time; a failed request moves to the failed
// state with its error message and is never retried automatically.
type Processor struct {
	service      *Service
	pollInterval time.Duration
	logger       *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type ProcessorOption func(*Processor)

// WithPollInterval sets the queue poll interval.
func WithPollInterval(interval time.Duration) ProcessorOption {
	return func(p *Processor) {
		p.pollInterval = interval
	}
}

// WithProcessorLogger sets the logger.
func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = logger
	}
}

func NewProcessor(service *Service, opts ...ProcessorOption) *Processor {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Processor{
		service:      service,
		pollInterval: time.Second,
		ctx:          ctx,
		cancel:       cancel,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start begins the polling loop in a background goroutine.
func (p *Processor) Start() {
	p.wg.Add(1)
	go p.run()
}

// Stop cancels the loop and waits for the in-flight request to finish.
func (p *Processor) Stop() {
	p.cancel()
	p.wg.Wait()
}

func (p *Processor) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.drainQueue()
		}
	}
}

func (p *Processor) drainQueue() {
	for {
		processed, err := p.service.ProcessNext(p.ctx)
		if err != nil && p.logger != nil {
			p.logger.Error("request processing failed", "error", err)
		}
		if !processed {
			return
		}
	}
}

// ProcessNext claims and processes the oldest pending request. It returns
// false when the queue is empty. A processing error is recorded on the
// request itself; the returned error covers bookkeeping failures only.
func (s *Service) ProcessNext(ctx context.Context) (bool, error) {
	request, err := s.store.ClaimPending(ctx)
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("claim pending request: %w", err)
	}

	tracer := otel.Tracer("prepguard/erasure")
	ctx, span := tracer.Start(ctx, "erasure.process", trace.WithAttributes(
		attribute.String("request.id", request.ID),
		attribute.String("request.type", string(request.RequestType)),
		attribute.String("request.user_id", request.UserID),
	))
	defer span.End()

	started := time.Now()
	var processErr error
	switch request.RequestType {
	case RequestExport:
		processErr = s.processExport(ctx, request)
	case RequestDelete:
		processErr = s.processDelete(ctx, request)
	default:
		processErr = fmt.Errorf("unknown request type %q", request.RequestType)
	}

	now := time.Now()
	request.CompletedAt = &now
	if processErr != nil {
		span.RecordError(processErr)
		span.SetStatus(codes.Error, processErr.Error())
		request.Status = StatusFailed
		request.ErrorMessage = processErr.Error()
		if s.metrics != nil {
			s.metrics.ExportsFailed.Inc()
		}
		if request.RequestType == RequestDelete {
			s.audit(ctx, request.UserID, audit.ActionDataDeleteFailed, map[string]any{
				"request_id": request.ID,
				"error":      processErr.Error(),
			}, false)
		}
		if s.logger != nil {
			s.logger.ErrorContext(ctx, "request failed",
				slog.String("request_id", request.ID),
				slog.String("request_type", string(request.RequestType)),
				slog.String("error", processErr.Error()))
		}
	} else {
		request.Status = StatusCompleted
	}
	if s.metrics != nil {
		s.metrics.ExportLatency.Observe(time.Since(started).Seconds())
	}

	if err := s.store.Update(ctx, request); err != nil {
		return true, fmt.Errorf("update request %s: %w", request.ID, err)
	}
	return true, nil
}

// processExport collects the selected domains in parallel, serializes the
// archive, and records the artifact path and signed download token.
func (s *Service) processExport(ctx context.Context, request *Request) error {
	archive := &Archive{
		UserID:      request.UserID,
		GeneratedAt: time.Now(),
	}

	g, gctx := errgroup.WithContext(ctx)
	userID := request.UserID

	if request.HasDomain(DomainProfile) {
		g.Go(func() error {
			profile, err := s.users.Lookup(gctx, userID)
			if err != nil {
				return fmt.Errorf("collect profile: %w", err)
			}
			archive.Profile = profile
			return nil
		})
	}
	if request.HasDomain(DomainSessions) {
		g.Go(func() error {
			var err error
			if archive.Sessions, err = s.data.ListSessionsByUser(gctx, userID); err != nil {
				return fmt.Errorf("collect sessions: %w", err)
			}
			if archive.Interactions, err = s.data.ListInteractionsByUser(gctx, userID); err != nil {
				return fmt.Errorf("collect interactions: %w", err)
			}
			if archive.Metrics, err = s.data.ListMetricsByUser(gctx, userID); err != nil {
				return fmt.Errorf("collect metrics: %w", err)
			}
			return nil
		})
	}
	if request.HasDomain(DomainAudio) {
		g.Go(func() error {
			var err error
			if archive.Audio, err = s.data.ListAudioByUser(gctx, userID); err != nil {
				return fmt.Errorf("collect audio metadata: %w", err)
			}
			return nil
		})
	}
	if request.HasDomain(DomainTranscriptions) {
		g.Go(func() error {
			var err error
			if archive.Transcriptions, err = s.data.ListTranscriptionsByUser(gctx, userID); err != nil {
				return fmt.Errorf("collect transcriptions: %w", err)
			}
			return nil
		})
	}
	if request.HasDomain(DomainPractice) {
		g.Go(func() error {
			var err error
			if archive.Practice, err = s.data.ListPracticeByUser(gctx, userID); err != nil {
				return fmt.Errorf("collect practice data: %w", err)
			}
			return nil
		})
	}
	if request.HasDomain(DomainAnalytics) {
		g.Go(func() error {
			var err error
			if archive.Analytics, err = s.data.ListAnalyticsByUser(gctx, userID); err != nil {
				return fmt.Errorf("collect analytics: %w", err)
			}
			return nil
		})
	}
	if request.HasDomain(DomainAudit) {
		g.Go(func() error {
			var err error
			if archive.AuditTrail, err = s.trail.ListByUserSince(gctx, userID, time.Time{}); err != nil {
				return fmt.Errorf("collect audit trail: %w", err)
			}
			return nil
		})
	}
	if request.HasDomain(DomainConsents) && s.consents != nil {
		g.Go(func() error {
			var err error
			if archive.Consents, err = s.consents.GetUserConsents(gctx, userID); err != nil {
				return fmt.Errorf("collect consents: %w", err)
			}
			if s.privacy != nil {
				if archive.Privacy, err = s.privacy.GetUserPrivacySettings(gctx, userID); err != nil {
					return fmt.Errorf("collect privacy settings: %w", err)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	payload, err := json.MarshalIndent(archive, "", "  ")
	if err != nil {
		return fmt.Errorf("serialize archive: %w", err)
	}

	name := fmt.Sprintf("export-%s-%s.json", request.UserID, request.ID)
	if err := s.files.Write(ctx, name, payload); err != nil {
		return fmt.Errorf("write archive: %w", err)
	}

	expiresAt := time.Now().Add(artifactTTL)
	token, err := s.issueDownloadToken(request.UserID, request.ID, expiresAt)
	if err != nil {
		return err
	}
	request.FilePath = name
	request.DownloadToken = token
	request.ExpiresAt = &expiresAt

	s.audit(ctx, request.UserID, audit.ActionDataExportComplete, map[string]any{
		"request_id": request.ID,
		"file_path":  name,
		"size_bytes": len(payload),
	}, true)
	return nil
}

// processDelete is the right-to-be-forgotten branch. The interview content
// domains go in one atomic transaction; if that fails, nothing is deleted.
// With DomainAll, auxiliary records follow and the root user row goes last.
func (s *Service) processDelete(ctx context.Context, request *Request) error {
	s.locks.Lock(request.UserID)
	defer s.locks.Unlock(request.UserID)

	types := contentTypes(request)
	var counts sessiondata.Counts
	if len(types) > 0 {
		var err error
		counts, err = s.data.DeleteByUser(ctx, request.UserID, types)
		if err != nil {
			return fmt.Errorf("delete user data: %w", err)
		}
	}

	details := map[string]any{
		"request_id":    request.ID,
		"deleted_count": counts.Total(),
		"domains":       joinDomains(request.Domains),
	}

	if request.HasDomain(DomainAnalytics) && s.patterns != nil {
		if _, err := s.patterns.DeleteByUser(ctx, request.UserID); err != nil {
			return fmt.Errorf("delete usage patterns: %w", err)
		}
	}
	if request.HasDomain(DomainConsents) {
		if s.consents != nil {
			if err := s.consents.DeleteUserConsents(ctx, request.UserID); err != nil {
				return err
			}
		}
		if s.privacy != nil {
			if err := s.privacy.DeleteUserSettings(ctx, request.UserID); err != nil {
				return err
			}
		}
	}
	if request.HasDomain(DomainAll) {
		if s.keys != nil {
			if err := s.keys.DeleteUserKeys(ctx, request.UserID); err != nil {
				return err
			}
		}
		if s.auditor != nil {
			if _, err := s.auditor.DeleteUserLogs(ctx, request.UserID); err != nil {
				return err
			}
		}
		// root user row goes last, after every dependent
		if err := s.users.DeleteUser(ctx, request.UserID); err != nil {
			return fmt.Errorf("delete user record: %w", err)
		}
	}

	s.audit(ctx, request.UserID, audit.ActionDataDeleteComplete, details, true)
	return nil
}

// contentTypes maps the request's domains onto the transactional bulk
// delete, children-before-parents order preserved.
func contentTypes(request *Request) []sessiondata.DataType {
	if request.HasDomain(DomainAll) {
		return sessiondata.AllTypes
	}
	types := make([]sessiondata.DataType, 0, len(request.Domains))
	for _, domain := range request.Domains {
		switch domain {
		case DomainAudio:
			types = append(types, sessiondata.TypeAudio)
		case DomainTranscriptions:
			types = append(types, sessiondata.TypeTranscription)
		case DomainPractice:
			types = append(types, sessiondata.TypePractice)
		case DomainAnalytics:
			types = append(types, sessiondata.TypeAnalytics)
		case DomainSessions:
			types = append(types, sessiondata.TypeSession)
		}
	}
	return types
}
