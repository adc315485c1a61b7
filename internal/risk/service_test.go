package risk

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"prepguard/internal/audit"
	"prepguard/internal/directory"
	"prepguard/internal/sessiondata"
	dErrors "prepguard/pkg/domain-errors"
)

const (
	chromeUA  = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	firefoxUA = "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0"
)

type ServiceSuite struct {
	suite.Suite
	store      *InMemoryStore
	activity   *sessiondata.InMemoryStore
	auditStore *audit.InMemoryStore
	users      *directory.InMemoryDirectory
	service    *Service
}

func (s *ServiceSuite) SetupTest() {
	s.store = NewInMemoryStore()
	s.activity = sessiondata.NewInMemoryStore()
	s.auditStore = audit.NewInMemoryStore()
	s.users = directory.NewInMemoryDirectory()
	s.users.Add(directory.User{ID: "u1", Tier: directory.TierFree})

	auditor := audit.NewService(s.auditStore, audit.NewPublisher(s.auditStore))
	var err error
	s.service, err = NewService(s.store, s.activity, s.auditStore, s.users, WithAuditor(auditor))
	s.Require().NoError(err)
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) addSessions(userID string, n int, age time.Duration) {
	for i := 0; i < n; i++ {
		s.Require().NoError(s.activity.AddSession(context.Background(), sessiondata.Session{
			ID:        fmt.Sprintf("%s-s%d-%s", userID, i, uuid.New().String()),
			UserID:    userID,
			CreatedAt: time.Now().Add(-age),
		}))
	}
}

func (s *ServiceSuite) seedTrail(userID string, n int, at time.Time, ip, ua string) {
	for i := 0; i < n; i++ {
		s.Require().NoError(s.auditStore.Append(context.Background(), audit.Entry{
			ID:        uuid.New().String(),
			UserID:    userID,
			Action:    audit.ActionSessionStart,
			IP:        ip,
			UserAgent: ua,
			Success:   true,
			CreatedAt: at,
		}))
	}
}

func (s *ServiceSuite) TestZeroActivity() {
	ctx := context.Background()

	patterns, err := s.service.AnalyzeUserActivity(ctx, "u1")
	s.Require().NoError(err)
	s.Empty(patterns)

	score, err := s.service.GetUserRiskScore(ctx, "u1")
	s.Require().NoError(err)
	s.Zero(score)

	block, err := s.service.ShouldBlockUser(ctx, "u1")
	s.Require().NoError(err)
	s.False(block)
}

func (s *ServiceSuite) TestSessionFrequency_FreeTierCeiling() {
	ctx := context.Background()
	// six sessions in 24h against the free ceiling of five
	s.addSessions("u1", 6, time.Hour)

	patterns, err := s.service.AnalyzeUserActivity(ctx, "u1")
	s.Require().NoError(err)
	s.Require().Len(patterns, 1)
	s.Equal(PatternSessionFrequency, patterns[0].PatternType)
	s.Equal(100.0, patterns[0].RiskScore)
	s.True(patterns[0].Flagged)

	stored, err := s.store.ListByUserSince(ctx, "u1", time.Now().Add(-time.Hour))
	s.Require().NoError(err)
	s.Require().Len(stored, 1)
	s.True(stored[0].Flagged)

	// flagging raised a security audit entry
	security, err := s.auditStore.ListSecurity(ctx, 10, 0)
	s.Require().NoError(err)
	s.Require().Len(security, 1)
	s.Equal(audit.ActionSuspiciousActivity, security[0].Action)
	s.Equal("u1", security[0].UserID)
}

func (s *ServiceSuite) TestSessionFrequency_BelowTriggerIsQuiet() {
	// three of five sessions is 60%, not strictly above the trigger
	s.addSessions("u1", 3, time.Hour)

	patterns, err := s.service.AnalyzeUserActivity(context.Background(), "u1")
	s.Require().NoError(err)
	s.Empty(patterns)
}

func (s *ServiceSuite) TestOldSessionsIgnored() {
	s.addSessions("u1", 6, 48*time.Hour)

	patterns, err := s.service.AnalyzeUserActivity(context.Background(), "u1")
	s.Require().NoError(err)
	s.Empty(patterns)
}

func (s *ServiceSuite) TestUnknownUserFallsBackToFreeTier() {
	s.addSessions("ghost", 6, time.Hour)

	patterns, err := s.service.AnalyzeUserActivity(context.Background(), "ghost")
	s.Require().NoError(err)
	s.Require().Len(patterns, 1)
	s.Equal(PatternSessionFrequency, patterns[0].PatternType)
}

func (s *ServiceSuite) TestProTierAbsorbsFreeCeilingBreach() {
	s.users.Add(directory.User{ID: "pro", Tier: directory.TierPro})
	s.addSessions("pro", 6, time.Hour)

	patterns, err := s.service.AnalyzeUserActivity(context.Background(), "pro")
	s.Require().NoError(err)
	s.Empty(patterns)
}

func (s *ServiceSuite) TestAudioVolume() {
	ctx := context.Background()
	// 45 of 60 minutes is 75%, above the 60% trigger
	s.Require().NoError(s.activity.AddAudio(ctx, sessiondata.AudioRecording{
		ID: "a1", UserID: "u1", DurationSeconds: 45 * 60, CreatedAt: time.Now().Add(-time.Hour),
	}))

	patterns, err := s.service.AnalyzeUserActivity(ctx, "u1")
	s.Require().NoError(err)
	s.Require().Len(patterns, 1)
	s.Equal(PatternAudioVolume, patterns[0].PatternType)
	s.InDelta(75.0, patterns[0].RiskScore, 0.001)
	s.False(patterns[0].Flagged)
}

func (s *ServiceSuite) TestLocationAnomaly() {
	now := time.Now().Add(-2 * time.Hour)
	for i := 0; i < 11; i++ {
		s.seedTrail("u1", 1, now, fmt.Sprintf("10.0.0.%d", i), chromeUA)
	}

	patterns, err := s.service.AnalyzeUserActivity(context.Background(), "u1")
	s.Require().NoError(err)
	s.Require().Len(patterns, 1)
	s.Equal(PatternLocationAnomaly, patterns[0].PatternType)
	// 11 IPs at weight 8
	s.InDelta(88.0, patterns[0].RiskScore, 0.001)
	s.True(patterns[0].Flagged)
}

func (s *ServiceSuite) TestDeviceAnomaly_NormalizesUserAgents() {
	now := time.Now().Add(-2 * time.Hour)
	// two raw strings, one browser: version bumps are not new devices
	s.seedTrail("u1", 1, now, "10.0.0.1", chromeUA)
	s.seedTrail("u1", 1, now, "10.0.0.1", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36")
	s.seedTrail("u1", 1, now, "10.0.0.1", firefoxUA)

	patterns, err := s.service.AnalyzeUserActivity(context.Background(), "u1")
	s.Require().NoError(err)
	s.Empty(patterns)
}

func (s *ServiceSuite) TestTimeAnomaly() {
	base := time.Now().Add(-6 * 24 * time.Hour).Truncate(time.Hour)
	// activity across 21 distinct hours of day, 63 actions total
	for hour := 0; hour < 21; hour++ {
		s.seedTrail("u1", 3, base.Add(time.Duration(hour)*time.Hour), "10.0.0.1", chromeUA)
	}

	patterns, err := s.service.AnalyzeUserActivity(context.Background(), "u1")
	s.Require().NoError(err)
	s.Require().Len(patterns, 1)
	s.Equal(PatternTimeAnomaly, patterns[0].PatternType)
	s.InDelta(21.0/24.0*100, patterns[0].RiskScore, 0.001)
	s.True(patterns[0].Flagged)
}

func (s *ServiceSuite) TestRiskScoreIsMeanOverWindow() {
	ctx := context.Background()
	for _, score := range []float64{80, 90, 100} {
		s.Require().NoError(s.store.Save(ctx, &UsagePattern{
			ID: uuid.New().String(), UserID: "u1", PatternType: PatternAPIUsage,
			RiskScore: score, CreatedAt: time.Now().Add(-time.Hour),
		}))
	}
	// outside the 7-day window, must not count
	s.Require().NoError(s.store.Save(ctx, &UsagePattern{
		ID: uuid.New().String(), UserID: "u1", PatternType: PatternAPIUsage,
		RiskScore: 0, CreatedAt: time.Now().Add(-8 * 24 * time.Hour),
	}))

	score, err := s.service.GetUserRiskScore(ctx, "u1")
	s.Require().NoError(err)
	s.InDelta(90.0, score, 0.001)
}

func (s *ServiceSuite) TestShouldBlockUser_StrictThreshold() {
	ctx := context.Background()
	save := func(score float64) {
		s.Require().NoError(s.store.Save(ctx, &UsagePattern{
			ID: uuid.New().String(), UserID: "edge", PatternType: PatternAPIUsage,
			RiskScore: score, CreatedAt: time.Now(),
		}))
	}

	save(95)
	block, err := s.service.ShouldBlockUser(ctx, "edge")
	s.Require().NoError(err)
	s.False(block, "exactly 95 must not block")

	save(97)
	block, err = s.service.ShouldBlockUser(ctx, "edge")
	s.Require().NoError(err)
	s.True(block)
}

func (s *ServiceSuite) TestReviewQueue() {
	ctx := context.Background()
	s.addSessions("u1", 6, time.Hour)

	patterns, err := s.service.AnalyzeUserActivity(ctx, "u1")
	s.Require().NoError(err)
	s.Require().Len(patterns, 1)

	flagged, err := s.service.GetFlaggedUsers(ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(flagged, 1)

	s.Require().NoError(s.service.MarkAsReviewed(ctx, flagged[0].ID))

	flagged, err = s.service.GetFlaggedUsers(ctx, 10)
	s.Require().NoError(err)
	s.Empty(flagged)
}

func (s *ServiceSuite) TestMarkAsReviewed_Unknown() {
	err := s.service.MarkAsReviewed(context.Background(), "nope")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
