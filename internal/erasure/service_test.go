package erasure

//go:generate mockgen -destination=mocks/mocks.go -package=mocks prepguard/internal/directory UserDirectory
//go:generate mockgen -destination=mocks/filestore_mock.go -package=mocks prepguard/internal/platform/filestore Store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"prepguard/internal/audit"
	"prepguard/internal/consent"
	"prepguard/internal/directory"
	"prepguard/internal/keymanager"
	"prepguard/internal/platform/filestore"
	"prepguard/internal/privacy"
	"prepguard/internal/risk"
	"prepguard/internal/sessiondata"
	dErrors "prepguard/pkg/domain-errors"
)

const signingSecret = "download-token-test-secret"

type ServiceSuite struct {
	suite.Suite
	store      *InMemoryStore
	users      *directory.InMemoryDirectory
	data       *sessiondata.InMemoryStore
	files      *filestore.InMemoryStore
	auditStore *audit.InMemoryStore
	auditor    *audit.Service
	consents   *consent.Service
	privacySvc *privacy.Service
	keys       *keymanager.Service
	patterns   *risk.InMemoryStore
	service    *Service
}

func (s *ServiceSuite) SetupTest() {
	s.store = NewInMemoryStore()
	s.users = directory.NewInMemoryDirectory()
	s.users.Add(directory.User{ID: "u1", Email: "u1@example.com", Tier: directory.TierFree})
	s.data = sessiondata.NewInMemoryStore()
	s.files = filestore.NewInMemoryStore()
	s.auditStore = audit.NewInMemoryStore()
	s.auditor = audit.NewService(s.auditStore, audit.NewPublisher(s.auditStore))
	s.consents = consent.NewService(consent.NewInMemoryStore(), s.auditor)
	s.privacySvc = privacy.NewService(privacy.NewInMemoryStore(), s.auditor)
	s.patterns = risk.NewInMemoryStore()

	var err error
	s.keys, err = keymanager.NewService(keymanager.NewInMemoryStore(), "master-test-secret")
	s.Require().NoError(err)

	s.service, err = NewService(s.store, s.users, s.data, s.files, s.auditStore, signingSecret,
		WithAuditor(s.auditor),
		WithConsents(s.consents),
		WithPrivacy(s.privacySvc),
		WithKeys(s.keys),
		WithPatternPurger(s.patterns),
	)
	s.Require().NoError(err)
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) seedContent(userID string) {
	ctx := context.Background()
	now := time.Now()
	s.Require().NoError(s.data.AddSession(ctx, sessiondata.Session{ID: userID + "-s1", UserID: userID, Topic: "system design", CreatedAt: now}))
	s.Require().NoError(s.data.AddInteraction(ctx, sessiondata.Interaction{ID: userID + "-i1", SessionID: userID + "-s1", UserID: userID, Role: "candidate", CreatedAt: now}))
	s.Require().NoError(s.data.AddMetric(ctx, sessiondata.Metric{ID: userID + "-m1", SessionID: userID + "-s1", UserID: userID, Name: "wpm", Value: 120, CreatedAt: now}))
	s.Require().NoError(s.data.AddAudio(ctx, sessiondata.AudioRecording{ID: userID + "-a1", UserID: userID, SessionID: userID + "-s1", DurationSeconds: 90, CreatedAt: now}))
	s.Require().NoError(s.data.AddTranscription(ctx, sessiondata.Transcription{ID: userID + "-t1", UserID: userID, SessionID: userID + "-s1", Content: "tell me about yourself", CreatedAt: now}))
	s.Require().NoError(s.data.AddPractice(ctx, sessiondata.PracticeRecord{ID: userID + "-p1", UserID: userID, Question: "reverse a list", CreatedAt: now}))
	s.Require().NoError(s.data.AddAnalyticsEvent(ctx, sessiondata.AnalyticsEvent{ID: userID + "-e1", UserID: userID, Name: "session_completed", CreatedAt: now}))
}

// drain runs the processor loop synchronously until the queue is empty.
func (s *ServiceSuite) drain() {
	for {
		processed, err := s.service.ProcessNext(context.Background())
		s.Require().NoError(err)
		if !processed {
			return
		}
	}
}

func (s *ServiceSuite) TestCreateExportRequest_ReturnsPendingImmediately() {
	ctx := context.Background()

	request, err := s.service.CreateExportRequest(ctx, "u1", RequestExport, []Domain{DomainAll}, "")
	s.Require().NoError(err)
	s.Equal(StatusPending, request.Status)
	s.NotEmpty(request.ID)
	s.Equal(FormatJSON, request.Format)

	// request audited
	entries, err := s.auditStore.ListByUser(ctx, "u1", 10, 0)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(audit.ActionDataExportRequest, entries[0].Action)
}

func (s *ServiceSuite) TestCreateExportRequest_Validation() {
	ctx := context.Background()

	_, err := s.service.CreateExportRequest(ctx, "u1", "archive", []Domain{DomainAll}, "")
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))

	_, err = s.service.CreateExportRequest(ctx, "u1", RequestExport, nil, "")
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))

	_, err = s.service.CreateExportRequest(ctx, "u1", RequestExport, []Domain{"photos"}, "")
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))

	_, err = s.service.CreateExportRequest(ctx, "u1", RequestExport, []Domain{DomainAll}, "csv")
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))

	_, err = s.service.CreateExportRequest(ctx, "ghost", RequestExport, []Domain{DomainAll}, "")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestExport_CollectsSelectedDomains() {
	ctx := context.Background()
	s.seedContent("u1")
	_, err := s.consents.UpdateConsent(ctx, "u1", consent.UpdateRequest{Type: consent.TypeAudioProcessing, Granted: true})
	s.Require().NoError(err)

	request, err := s.service.CreateExportRequest(ctx, "u1", RequestExport, []Domain{DomainAll}, "")
	s.Require().NoError(err)
	s.drain()

	status, err := s.service.GetExportRequestStatus(ctx, request.ID, "u1")
	s.Require().NoError(err)
	s.Equal(StatusCompleted, status.Status)
	s.NotEmpty(status.FilePath)
	s.NotEmpty(status.DownloadToken)
	s.Require().NotNil(status.ExpiresAt)
	s.WithinDuration(time.Now().Add(artifactTTL), *status.ExpiresAt, time.Minute)

	payload, err := s.service.DownloadExportFile(ctx, request.ID, "u1", status.DownloadToken)
	s.Require().NoError(err)

	var archive Archive
	s.Require().NoError(json.Unmarshal(payload, &archive))
	s.Equal("u1", archive.UserID)
	s.Require().NotNil(archive.Profile)
	s.Equal("u1@example.com", archive.Profile.Email)
	s.Len(archive.Sessions, 1)
	s.Len(archive.Interactions, 1)
	s.Len(archive.Metrics, 1)
	s.Len(archive.Audio, 1)
	s.Len(archive.Transcriptions, 1)
	s.Len(archive.Practice, 1)
	s.Len(archive.Analytics, 1)
	s.NotEmpty(archive.AuditTrail)
	s.Len(archive.Consents, len(consent.AllTypes))
	s.NotNil(archive.Privacy)
}

func (s *ServiceSuite) TestExport_NarrowDomainSelection() {
	ctx := context.Background()
	s.seedContent("u1")

	request, err := s.service.CreateExportRequest(ctx, "u1", RequestExport, []Domain{DomainTranscriptions}, "")
	s.Require().NoError(err)
	s.drain()

	status, err := s.service.GetExportRequestStatus(ctx, request.ID, "u1")
	s.Require().NoError(err)
	s.Require().Equal(StatusCompleted, status.Status)

	payload, err := s.service.DownloadExportFile(ctx, request.ID, "u1", status.DownloadToken)
	s.Require().NoError(err)

	var archive Archive
	s.Require().NoError(json.Unmarshal(payload, &archive))
	s.Len(archive.Transcriptions, 1)
	s.Nil(archive.Profile)
	s.Empty(archive.Sessions)
	s.Empty(archive.Audio)
}

func (s *ServiceSuite) TestDownload_Authorization() {
	ctx := context.Background()
	s.users.Add(directory.User{ID: "u2"})
	s.seedContent("u1")

	request, err := s.service.CreateExportRequest(ctx, "u1", RequestExport, []Domain{DomainSessions}, "")
	s.Require().NoError(err)

	// still pending: not downloadable
	_, err = s.service.DownloadExportFile(ctx, request.ID, "u1", "whatever")
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))

	s.drain()
	status, err := s.service.GetExportRequestStatus(ctx, request.ID, "u1")
	s.Require().NoError(err)

	// another user's token or id never passes
	_, err = s.service.DownloadExportFile(ctx, request.ID, "u2", status.DownloadToken)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	// garbage token fails even for the owner
	_, err = s.service.DownloadExportFile(ctx, request.ID, "u1", "not-a-token")
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	// token minted for a different request fails
	otherToken, err := s.service.issueDownloadToken("u1", "other-request", time.Now().Add(time.Hour))
	s.Require().NoError(err)
	_, err = s.service.DownloadExportFile(ctx, request.ID, "u1", otherToken)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	// the real token passes
	_, err = s.service.DownloadExportFile(ctx, request.ID, "u1", status.DownloadToken)
	s.NoError(err)
}

func (s *ServiceSuite) TestStatusPolling_OwnershipAndUnknown() {
	ctx := context.Background()
	s.users.Add(directory.User{ID: "u2"})

	request, err := s.service.CreateExportRequest(ctx, "u1", RequestExport, []Domain{DomainSessions}, "")
	s.Require().NoError(err)

	_, err = s.service.GetExportRequestStatus(ctx, request.ID, "u2")
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	_, err = s.service.GetExportRequestStatus(ctx, "missing", "u1")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestDelete_AllRemovesEverythingRootLast() {
	ctx := context.Background()
	s.seedContent("u1")
	_, err := s.keys.GenerateKey(ctx, "u1", keymanager.PurposeAudio)
	s.Require().NoError(err)
	_, err = s.consents.UpdateConsent(ctx, "u1", consent.UpdateRequest{Type: consent.TypeDataStorage, Granted: true})
	s.Require().NoError(err)
	s.Require().NoError(s.patterns.Save(ctx, &risk.UsagePattern{ID: "p1", UserID: "u1", PatternType: risk.PatternAPIUsage, RiskScore: 50, CreatedAt: time.Now()}))

	request, err := s.service.CreateExportRequest(ctx, "u1", RequestDelete, []Domain{DomainAll}, "")
	s.Require().NoError(err)
	s.drain()

	status, err := s.service.GetExportRequestStatus(ctx, request.ID, "u1")
	s.Require().NoError(err)
	s.Equal(StatusCompleted, status.Status)

	// audio count drops to zero immediately after completion
	summary, err := s.service.GetDataProcessingSummary(ctx, "u1")
	s.Require().NoError(err)
	s.Equal(int64(0), summary.DataCounts.Audio)
	s.Equal(int64(0), summary.DataCounts.Total())

	s.Equal(0, s.patterns.Len())

	// root user row went last and is gone
	exists, err := s.users.Exists(ctx, "u1")
	s.Require().NoError(err)
	s.False(exists)

	// the deletion itself stays on the trail
	entries, err := s.auditStore.ListByActionSince(ctx, audit.ActionDataDeleteComplete, time.Now().Add(-time.Hour))
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal("u1", entries[0].UserID)
}

func (s *ServiceSuite) TestDelete_MidTransactionFailureRollsBack() {
	ctx := context.Background()
	s.seedContent("u1")

	before, err := s.data.CountsByUser(ctx, "u1")
	s.Require().NoError(err)
	s.Require().NotZero(before.Total())

	s.data.FailOn(sessiondata.TypeSession, assertionError("disk full"))

	request, err := s.service.CreateExportRequest(ctx, "u1", RequestDelete, []Domain{DomainAll}, "")
	s.Require().NoError(err)
	s.drain()

	status, err := s.service.GetExportRequestStatus(ctx, request.ID, "u1")
	s.Require().NoError(err)
	s.Equal(StatusFailed, status.Status)
	s.Contains(status.ErrorMessage, "disk full")

	// zero rows deleted anywhere
	after, err := s.data.CountsByUser(ctx, "u1")
	s.Require().NoError(err)
	s.Equal(before, after)

	// user row survives a failed delete
	exists, err := s.users.Exists(ctx, "u1")
	s.Require().NoError(err)
	s.True(exists)

	// failure audited
	entries, err := s.auditStore.ListByActionSince(ctx, audit.ActionDataDeleteFailed, time.Now().Add(-time.Hour))
	s.Require().NoError(err)
	s.Len(entries, 1)
}

func (s *ServiceSuite) TestDelete_PartialDomains() {
	ctx := context.Background()
	s.seedContent("u1")

	request, err := s.service.CreateExportRequest(ctx, "u1", RequestDelete, []Domain{DomainAudio, DomainTranscriptions}, "")
	s.Require().NoError(err)
	s.drain()

	status, err := s.service.GetExportRequestStatus(ctx, request.ID, "u1")
	s.Require().NoError(err)
	s.Require().Equal(StatusCompleted, status.Status)

	counts, err := s.data.CountsByUser(ctx, "u1")
	s.Require().NoError(err)
	s.Equal(int64(0), counts.Audio)
	s.Equal(int64(0), counts.Transcriptions)
	s.Equal(int64(1), counts.Sessions)
	s.Equal(int64(1), counts.Practice)

	// a partial delete keeps the account
	exists, err := s.users.Exists(ctx, "u1")
	s.Require().NoError(err)
	s.True(exists)
}

func (s *ServiceSuite) TestCleanupExpiredExports() {
	ctx := context.Background()
	s.seedContent("u1")

	request, err := s.service.CreateExportRequest(ctx, "u1", RequestExport, []Domain{DomainSessions}, "")
	s.Require().NoError(err)
	s.drain()

	// nothing expired yet
	cleaned, err := s.service.CleanupExpiredExports(ctx)
	s.Require().NoError(err)
	s.Zero(cleaned)

	// age the artifact past its expiry
	status, err := s.store.Find(ctx, request.ID)
	s.Require().NoError(err)
	past := time.Now().Add(-time.Hour)
	status.ExpiresAt = &past
	s.Require().NoError(s.store.Update(ctx, status))

	cleaned, err = s.service.CleanupExpiredExports(ctx)
	s.Require().NoError(err)
	s.Equal(1, cleaned)
	s.Equal(0, s.files.Len())

	// stored path is nulled, download refuses
	status, err = s.store.Find(ctx, request.ID)
	s.Require().NoError(err)
	s.Empty(status.FilePath)
	s.Empty(status.DownloadToken)
}

func (s *ServiceSuite) TestGetDataProcessingSummary() {
	ctx := context.Background()
	s.seedContent("u1")
	days := 14
	_, err := s.privacySvc.UpdatePrivacySettings(ctx, "u1", privacy.Update{AudioRetentionDays: &days})
	s.Require().NoError(err)

	summary, err := s.service.GetDataProcessingSummary(ctx, "u1")
	s.Require().NoError(err)
	s.Equal("u1", summary.UserID)
	s.Equal(int64(1), summary.DataCounts.Audio)
	s.Equal(14, summary.RetentionDays["audio"])
	s.Equal(90, summary.RetentionDays["transcription"])
	s.Len(summary.Consents, len(consent.AllTypes))
	s.NotZero(summary.AuditEntries)
	s.False(summary.LastActivityAt.IsZero())
}

// assertionError is a trivial error type for fault injection.
type assertionError string

func (e assertionError) Error() string { return string(e) }
