package privacy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"prepguard/internal/audit"
	dErrors "prepguard/pkg/domain-errors"
)

type ServiceSuite struct {
	suite.Suite
	store      *InMemoryStore
	auditStore *audit.InMemoryStore
	service    *Service
}

func (s *ServiceSuite) SetupTest() {
	s.store = NewInMemoryStore()
	s.auditStore = audit.NewInMemoryStore()
	auditor := audit.NewService(s.auditStore, audit.NewPublisher(s.auditStore))
	s.service = NewService(s.store, auditor)
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) TestGetCreatesDefaults() {
	ctx := context.Background()

	settings, err := s.service.GetUserPrivacySettings(ctx, "user-1")
	s.Require().NoError(err)

	s.Equal(30, settings.AudioRetentionDays)
	s.Equal(90, settings.TranscriptionRetentionDays)
	s.True(settings.AnalyticsEnabled)
	s.False(settings.DataSharingEnabled)
	s.False(settings.MarketingEmailsEnabled)
	s.True(settings.SessionRecordingEnabled)
	s.False(settings.AITrainingEnabled)

	// the default row is persisted, not recomputed
	again, err := s.service.GetUserPrivacySettings(ctx, "user-1")
	s.Require().NoError(err)
	s.Equal(settings.CreatedAt, again.CreatedAt)
}

func (s *ServiceSuite) TestGetRequiresUserID() {
	_, err := s.service.GetUserPrivacySettings(context.Background(), "")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func (s *ServiceSuite) TestUpdateAppliesPatch() {
	ctx := context.Background()
	days := 7
	off := false

	updated, err := s.service.UpdatePrivacySettings(ctx, "user-1", Update{
		AudioRetentionDays: &days,
		AnalyticsEnabled:   &off,
	})
	s.Require().NoError(err)
	s.Equal(7, updated.AudioRetentionDays)
	s.False(updated.AnalyticsEnabled)
	// untouched fields keep their defaults
	s.Equal(90, updated.TranscriptionRetentionDays)
	s.True(updated.SessionRecordingEnabled)

	stored, err := s.service.GetUserPrivacySettings(ctx, "user-1")
	s.Require().NoError(err)
	s.Equal(7, stored.AudioRetentionDays)
	s.False(stored.AnalyticsEnabled)
}

func (s *ServiceSuite) TestUpdateRejectsZeroRetention() {
	for _, days := range []int{0, -5} {
		d := days
		_, err := s.service.UpdatePrivacySettings(context.Background(), "user-1", Update{
			AudioRetentionDays: &d,
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))

		_, err = s.service.UpdatePrivacySettings(context.Background(), "user-1", Update{
			TranscriptionRetentionDays: &d,
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	}
}

func (s *ServiceSuite) TestUpdateAuditsDiff() {
	ctx := context.Background()
	on := true

	_, err := s.service.UpdatePrivacySettings(ctx, "user-1", Update{AITrainingEnabled: &on})
	s.Require().NoError(err)

	entries, err := s.service.auditor.GetUserAuditLogs(ctx, "user-1", 10, 0)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(audit.ActionPrivacyUpdated, entries[0].Action)
	s.Equal(audit.ResourcePrivacy, entries[0].ResourceType)
	s.Contains(entries[0].Details, "changes")
}

func (s *ServiceSuite) TestUpdateNoChangesSkipsAudit() {
	ctx := context.Background()
	days := DefaultAudioRetentionDays

	_, err := s.service.UpdatePrivacySettings(ctx, "user-1", Update{AudioRetentionDays: &days})
	s.Require().NoError(err)

	entries, err := s.service.auditor.GetUserAuditLogs(ctx, "user-1", 10, 0)
	s.Require().NoError(err)
	s.Empty(entries)
}

func (s *ServiceSuite) TestValidateOperationGates() {
	ctx := context.Background()

	// defaults: recording and analytics on, sharing and training off
	s.NoError(s.service.ValidatePrivacyForOperation(ctx, "user-1", OpAnalyticsTracking))
	s.NoError(s.service.ValidatePrivacyForOperation(ctx, "user-1", OpSessionRecording))

	err := s.service.ValidatePrivacyForOperation(ctx, "user-1", OpDataSharing)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodePrivacyDisabled))

	err = s.service.ValidatePrivacyForOperation(ctx, "user-1", OpAITraining)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodePrivacyDisabled))

	off := false
	_, err = s.service.UpdatePrivacySettings(ctx, "user-1", Update{AnalyticsEnabled: &off})
	s.Require().NoError(err)
	err = s.service.ValidatePrivacyForOperation(ctx, "user-1", OpAnalyticsTracking)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodePrivacyDisabled))
}

func (s *ServiceSuite) TestValidateUnknownOperationPasses() {
	s.NoError(s.service.ValidatePrivacyForOperation(context.Background(), "user-1", Operation("screen_share")))
}

func (s *ServiceSuite) TestDeleteUserSettings() {
	ctx := context.Background()

	_, err := s.service.GetUserPrivacySettings(ctx, "user-1")
	s.Require().NoError(err)
	s.Require().NoError(s.service.DeleteUserSettings(ctx, "user-1"))

	// next read recreates defaults
	settings, err := s.service.GetUserPrivacySettings(ctx, "user-1")
	s.Require().NoError(err)
	s.Equal(DefaultAudioRetentionDays, settings.AudioRetentionDays)
}
