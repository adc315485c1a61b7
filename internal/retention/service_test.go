package retention

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"prepguard/internal/audit"
	"prepguard/internal/privacy"
	"prepguard/internal/risk"
	"prepguard/internal/sessiondata"
	dErrors "prepguard/pkg/domain-errors"
	psync "prepguard/pkg/platform/sync"
)

type ServiceSuite struct {
	suite.Suite
	policies   *InMemoryStore
	data       *sessiondata.InMemoryStore
	auditStore *audit.InMemoryStore
	auditor    *audit.Service
	privacySvc *privacy.Service
	patterns   *risk.InMemoryStore
	service    *Service
}

func (s *ServiceSuite) SetupTest() {
	s.policies = NewInMemoryStore()
	s.data = sessiondata.NewInMemoryStore()
	s.auditStore = audit.NewInMemoryStore()
	s.auditor = audit.NewService(s.auditStore, audit.NewPublisher(s.auditStore))
	s.privacySvc = privacy.NewService(privacy.NewInMemoryStore(), s.auditor)
	s.patterns = risk.NewInMemoryStore()

	var err error
	s.service, err = NewService(s.policies, s.data, s.privacySvc, s.auditor,
		psync.NewKeyedMutex(), WithPatternStore(s.patterns))
	s.Require().NoError(err)
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) addAudio(userID string, ageDays ...int) {
	for i, age := range ageDays {
		s.Require().NoError(s.data.AddAudio(context.Background(), sessiondata.AudioRecording{
			ID:        fmt.Sprintf("%s-audio-%d-%d", userID, age, i),
			UserID:    userID,
			CreatedAt: time.Now().AddDate(0, 0, -age),
		}))
	}
}

func (s *ServiceSuite) TestSetPolicy() {
	ctx := context.Background()

	policy, err := s.service.SetPolicy(ctx, sessiondata.TypeAudio, 30, true)
	s.Require().NoError(err)
	s.Equal(30, policy.RetentionDays)
	s.True(policy.AutoDelete)
	s.True(policy.IsActive)

	// replacing keeps identity
	replaced, err := s.service.SetPolicy(ctx, sessiondata.TypeAudio, 60, false)
	s.Require().NoError(err)
	s.Equal(60, replaced.RetentionDays)

	stored, err := s.service.GetPolicy(ctx, sessiondata.TypeAudio)
	s.Require().NoError(err)
	s.Equal(60, stored.RetentionDays)
	s.Equal(policy.ID, stored.ID)
}

func (s *ServiceSuite) TestSetPolicy_Validation() {
	_, err := s.service.SetPolicy(context.Background(), sessiondata.TypeAudio, 0, true)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.service.SetPolicy(context.Background(), "photos", 30, true)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func (s *ServiceSuite) TestGetPolicy_NotFound() {
	_, err := s.service.GetPolicy(context.Background(), sessiondata.TypeSession)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestCleanupAudioData_DeletesOnlyPastCutoff() {
	ctx := context.Background()
	s.addAudio("u1", 10, 29, 31, 100)

	deleted, err := s.service.CleanupAudioData(ctx, 30)
	s.Require().NoError(err)
	s.Equal(int64(2), deleted)

	counts, err := s.data.CountsByUser(ctx, "u1")
	s.Require().NoError(err)
	s.Equal(int64(2), counts.Audio)

	// deletion left a data-delete-complete entry behind
	entries, err := s.auditStore.ListByActionSince(ctx, audit.ActionDataDeleteComplete, time.Now().Add(-time.Hour))
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal("audio", entries[0].Details["data_type"])
	s.Equal(int64(2), entries[0].Details["deleted_count"])
}

func (s *ServiceSuite) TestCleanupAnalyticsData_AgesOutPatterns() {
	ctx := context.Background()
	s.Require().NoError(s.data.AddAnalyticsEvent(ctx, sessiondata.AnalyticsEvent{
		ID: "e1", UserID: "u1", CreatedAt: time.Now().AddDate(0, 0, -100),
	}))
	s.Require().NoError(s.patterns.Save(ctx, &risk.UsagePattern{
		ID: "p1", UserID: "u1", PatternType: risk.PatternAPIUsage,
		RiskScore: 90, CreatedAt: time.Now().AddDate(0, 0, -100),
	}))
	s.Require().NoError(s.patterns.Save(ctx, &risk.UsagePattern{
		ID: "p2", UserID: "u1", PatternType: risk.PatternAPIUsage,
		RiskScore: 90, CreatedAt: time.Now(),
	}))

	deleted, err := s.service.CleanupAnalyticsData(ctx, 90)
	s.Require().NoError(err)
	s.Equal(int64(2), deleted)
	s.Equal(1, s.patterns.Len())
}

func (s *ServiceSuite) TestCleanup_RetentionValidation() {
	_, err := s.service.CleanupAudioData(context.Background(), 0)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ServiceSuite) TestCleanupUserData_PrivacyOverrideWins() {
	ctx := context.Background()
	days := 7
	_, err := s.privacySvc.UpdatePrivacySettings(ctx, "u1", privacy.Update{AudioRetentionDays: &days})
	s.Require().NoError(err)

	// global policy would keep both rows; the user's 7-day override deletes one
	_, err = s.service.SetPolicy(ctx, sessiondata.TypeAudio, 30, true)
	s.Require().NoError(err)
	s.addAudio("u1", 5, 10)
	s.addAudio("u2", 10)

	result, err := s.service.CleanupUserData(ctx, "u1")
	s.Require().NoError(err)
	s.Equal(int64(1), result.AudioDeleted)

	// other users untouched
	counts, err := s.data.CountsByUser(ctx, "u2")
	s.Require().NoError(err)
	s.Equal(int64(1), counts.Audio)
}

func (s *ServiceSuite) TestRunAutomatedCleanup_SkipsInactiveAndManual() {
	ctx := context.Background()
	s.addAudio("u1", 100)
	s.Require().NoError(s.data.AddTranscription(ctx, sessiondata.Transcription{
		ID: "t1", UserID: "u1", CreatedAt: time.Now().AddDate(0, 0, -100),
	}))

	_, err := s.service.SetPolicy(ctx, sessiondata.TypeAudio, 30, true)
	s.Require().NoError(err)
	_, err = s.service.SetPolicy(ctx, sessiondata.TypeTranscription, 30, false)
	s.Require().NoError(err)

	report, err := s.service.RunAutomatedCleanup(ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), report.Deleted[sessiondata.TypeAudio])
	s.NotContains(report.Deleted, sessiondata.TypeTranscription)
	s.Empty(report.Failed)

	counts, err := s.data.CountsByUser(ctx, "u1")
	s.Require().NoError(err)
	s.Equal(int64(0), counts.Audio)
	s.Equal(int64(1), counts.Transcriptions)
}

func (s *ServiceSuite) TestRunAutomatedCleanup_IsolatesFailures() {
	ctx := context.Background()
	s.addAudio("u1", 100)
	s.Require().NoError(s.data.AddAnalyticsEvent(ctx, sessiondata.AnalyticsEvent{
		ID: "e1", UserID: "u1", CreatedAt: time.Now().AddDate(0, 0, -100),
	}))

	_, err := s.service.SetPolicy(ctx, sessiondata.TypeAudio, 30, true)
	s.Require().NoError(err)
	_, err = s.service.SetPolicy(ctx, sessiondata.TypeAnalytics, 30, true)
	s.Require().NoError(err)

	s.data.FailOn(sessiondata.TypeAudio, errors.New("connection reset"))

	report, err := s.service.RunAutomatedCleanup(ctx)
	s.Require().NoError(err)
	s.Contains(report.Failed, sessiondata.TypeAudio)
	s.Equal(int64(1), report.Deleted[sessiondata.TypeAnalytics])
}

func (s *ServiceSuite) TestRunAutomatedCleanup_AgesOutAuditTrail() {
	ctx := context.Background()
	s.Require().NoError(s.auditStore.Append(ctx, audit.Entry{
		ID: "old", UserID: "u1", Action: audit.ActionLogin,
		CreatedAt: time.Now().AddDate(0, 0, -400),
	}))
	s.Require().NoError(s.auditStore.Append(ctx, audit.Entry{
		ID: "recent", UserID: "u1", Action: audit.ActionLogin,
		CreatedAt: time.Now().AddDate(0, 0, -10),
	}))

	_, err := s.service.RunAutomatedCleanup(ctx)
	s.Require().NoError(err)

	count, err := s.auditStore.CountByUser(ctx, "u1")
	s.Require().NoError(err)
	s.Equal(1, count)
}

func (s *ServiceSuite) TestGetCleanupStatistics() {
	ctx := context.Background()
	s.addAudio("u1", 100, 100)
	s.Require().NoError(s.data.AddTranscription(ctx, sessiondata.Transcription{
		ID: "t1", UserID: "u1", CreatedAt: time.Now().AddDate(0, 0, -100),
	}))

	_, err := s.service.CleanupAudioData(ctx, 30)
	s.Require().NoError(err)
	_, err = s.service.CleanupTranscriptionData(ctx, 30)
	s.Require().NoError(err)

	stats, err := s.service.GetCleanupStatistics(ctx, 7)
	s.Require().NoError(err)
	s.Equal(2, stats.TotalRuns)
	s.Equal(int64(3), stats.TotalDeleted)
	s.Equal(int64(2), stats.ByDataType["audio"])
	s.Equal(int64(1), stats.ByDataType["transcription"])
}

func TestSweeper_RunsRegisteredTasks(t *testing.T) {
	ran := make(chan string, 4)
	sweeper := NewSweeper([]Task{
		{Name: "first", Run: func(context.Context) error {
			ran <- "first"
			return errors.New("boom")
		}},
		{Name: "second", Run: func(context.Context) error {
			ran <- "second"
			return nil
		}},
	}, WithInterval(5*time.Millisecond))

	sweeper.Start()
	defer sweeper.Stop()

	deadline := time.After(2 * time.Second)
	seen := map[string]bool{}
	for len(seen) < 2 {
		select {
		case name := <-ran:
			seen[name] = true
		case <-deadline:
			t.Fatal("sweeper did not run both tasks in time")
		}
	}
}
