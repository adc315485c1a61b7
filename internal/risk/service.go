package risk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"prepguard/internal/audit"
	"prepguard/internal/directory"
	"prepguard/internal/platform/metrics"
	"prepguard/internal/sentinel"
	dErrors "prepguard/pkg/domain-errors"
)

const (
	dayWindow  = 24 * time.Hour
	hourWindow = time.Hour
	weekWindow = 7 * 24 * time.Hour
)

// defaultTierLimits are the per-tier usage ceilings. Unknown tiers fall
// back to free.
var defaultTierLimits = map[directory.Tier]TierLimits{
	directory.TierFree:       {SessionsPerDay: 5, AudioMinutesPerDay: 60, APICallsPerHour: 100},
	directory.TierPro:        {SessionsPerDay: 20, AudioMinutesPerDay: 300, APICallsPerHour: 500},
	directory.TierEnterprise: {SessionsPerDay: 100, AudioMinutesPerDay: 1440, APICallsPerHour: 2000},
}

// ActivitySource supplies the session and audio volume counts the two
// ceiling heuristics run over.
type ActivitySource interface {
	CountSessionsSince(ctx context.Context, userID string, since time.Time) (int, error)
	AudioMinutesSince(ctx context.Context, userID string, since time.Time) (float64, error)
}

// AuditReader supplies the raw audit trail the API, location, device, and
// time heuristics run over.
type AuditReader interface {
	ListByUserSince(ctx context.Context, userID string, since time.Time) ([]audit.Entry, error)
}

// Service scores usage patterns with six independent, additive heuristics.
// Each tripped heuristic persists its own pattern; aggregation happens only
// at query time over a trailing window, so stale flags decay naturally.
type Service struct {
	store    Store
	activity ActivitySource
	trail    AuditReader
	users    directory.UserDirectory
	config   Config
	limits   map[directory.Tier]TierLimits
	auditor  *audit.Service
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

type Option func(*Service)

func WithConfig(cfg Config) Option {
	return func(s *Service) {
		s.config = cfg
	}
}

func WithAuditor(a *audit.Service) Option {
	return func(s *Service) {
		s.auditor = a
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

func NewService(store Store, activity ActivitySource, trail AuditReader, users directory.UserDirectory, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("pattern store is required")
	}
	if activity == nil || trail == nil {
		return nil, fmt.Errorf("activity source and audit reader are required")
	}
	svc := &Service{
		store:    store,
		activity: activity,
		trail:    trail,
		users:    users,
		config:   DefaultConfig(),
		limits:   defaultTierLimits,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// AnalyzeUserActivity runs every heuristic over the user's recent activity
// and persists one UsagePattern per tripped heuristic. Patterns scoring
// above the flag threshold are flagged for review and raise a fail-open
// security audit entry.
func (s *Service) AnalyzeUserActivity(ctx context.Context, userID string) ([]UsagePattern, error) {
	if userID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "user ID required")
	}

	now := time.Now()
	limits := s.limitsFor(ctx, userID)

	sessions, err := s.activity.CountSessionsSince(ctx, userID, now.Add(-dayWindow))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to count sessions")
	}
	minutes, err := s.activity.AudioMinutesSince(ctx, userID, now.Add(-dayWindow))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to sum audio minutes")
	}
	entries, err := s.trail.ListByUserSince(ctx, userID, now.Add(-weekWindow))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to read audit trail")
	}
	signals := summarizeTrail(entries, now.Add(-hourWindow))

	patterns := make([]UsagePattern, 0)
	patterns = s.appendCeiling(patterns, PatternSessionFrequency, float64(sessions), float64(limits.SessionsPerDay), s.config.SessionFrequencyTrigger, map[string]any{
		"sessions_24h": sessions,
		"ceiling":      limits.SessionsPerDay,
	})
	patterns = s.appendCeiling(patterns, PatternAudioVolume, minutes, limits.AudioMinutesPerDay, s.config.AudioVolumeTrigger, map[string]any{
		"audio_minutes_24h": minutes,
		"ceiling":           limits.AudioMinutesPerDay,
	})
	patterns = s.appendCeiling(patterns, PatternAPIUsage, float64(signals.apiCalls), float64(limits.APICallsPerHour), s.config.APIUsageTrigger, map[string]any{
		"api_calls_1h": signals.apiCalls,
		"ceiling":      limits.APICallsPerHour,
	})

	if signals.distinctIPs > s.config.DistinctIPThreshold {
		patterns = append(patterns, UsagePattern{
			PatternType: PatternLocationAnomaly,
			RiskScore:   math.Min(100, float64(signals.distinctIPs)*s.config.IPWeight),
			PatternData: map[string]any{"distinct_ips_7d": signals.distinctIPs},
		})
	}
	if signals.distinctDevices > s.config.DistinctDeviceThreshold {
		patterns = append(patterns, UsagePattern{
			PatternType: PatternDeviceAnomaly,
			RiskScore:   math.Min(100, float64(signals.distinctDevices)*s.config.DeviceWeight),
			PatternData: map[string]any{"distinct_devices_7d": signals.distinctDevices},
		})
	}
	if signals.activeHours > s.config.ActiveHoursThreshold && signals.totalActions > s.config.ActionCountThreshold {
		patterns = append(patterns, UsagePattern{
			PatternType: PatternTimeAnomaly,
			RiskScore:   float64(signals.activeHours) / 24 * 100,
			PatternData: map[string]any{
				"active_hours_7d":  signals.activeHours,
				"total_actions_7d": signals.totalActions,
			},
		})
	}

	for i := range patterns {
		p := &patterns[i]
		p.ID = uuid.New().String()
		p.UserID = userID
		p.Flagged = p.RiskScore > s.config.FlagScore
		p.CreatedAt = now
		if err := s.store.Save(ctx, p); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to persist usage pattern")
		}
		if s.metrics != nil {
			s.metrics.RiskAlertsRaised.WithLabelValues(string(p.PatternType)).Inc()
		}
		if p.Flagged {
			s.flag(ctx, p)
		}
	}
	return patterns, nil
}

// GetUserRiskScore is the mean of the user's stored pattern scores over the
// trailing seven days, zero when there are none.
func (s *Service) GetUserRiskScore(ctx context.Context, userID string) (float64, error) {
	patterns, err := s.store.ListByUserSince(ctx, userID, time.Now().Add(-weekWindow))
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeStorage, "failed to read usage patterns")
	}
	if len(patterns) == 0 {
		return 0, nil
	}
	var sum float64
	for _, p := range patterns {
		sum += p.RiskScore
	}
	return sum / float64(len(patterns)), nil
}

// ShouldBlockUser reports whether the trailing risk score strictly exceeds
// the block threshold. A score exactly at the threshold does not block.
func (s *Service) ShouldBlockUser(ctx context.Context, userID string) (bool, error) {
	score, err := s.GetUserRiskScore(ctx, userID)
	if err != nil {
		return false, err
	}
	return score > s.config.BlockScore, nil
}

// GetFlaggedUsers returns the human-review queue, oldest first.
func (s *Service) GetFlaggedUsers(ctx context.Context, limit int) ([]UsagePattern, error) {
	patterns, err := s.store.ListFlagged(ctx, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to list flagged patterns")
	}
	return patterns, nil
}

func (s *Service) MarkAsReviewed(ctx context.Context, patternID string) error {
	if patternID == "" {
		return dErrors.New(dErrors.CodeBadRequest, "pattern ID required")
	}
	err := s.store.MarkReviewed(ctx, patternID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "usage pattern not found")
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeStorage, "failed to mark pattern reviewed")
	}
	return nil
}

// DeleteUserPatterns removes every stored pattern for the user, used by
// account erasure and the analytics retention sweep.
func (s *Service) DeleteUserPatterns(ctx context.Context, userID string) (int64, error) {
	n, err := s.store.DeleteByUser(ctx, userID)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeStorage, "failed to delete usage patterns")
	}
	return n, nil
}

func (s *Service) appendCeiling(patterns []UsagePattern, typ PatternType, used, ceiling, trigger float64, data map[string]any) []UsagePattern {
	if ceiling <= 0 {
		return patterns
	}
	ratio := used / ceiling * 100
	if ratio <= trigger {
		return patterns
	}
	data["percent_of_ceiling"] = ratio
	return append(patterns, UsagePattern{
		PatternType: typ,
		RiskScore:   math.Min(100, ratio),
		PatternData: data,
	})
}

func (s *Service) limitsFor(ctx context.Context, userID string) TierLimits {
	tier := directory.TierFree
	if s.users != nil {
		if t, err := s.users.Tier(ctx, userID); err == nil {
			if _, ok := s.limits[t]; ok {
				tier = t
			}
		}
	}
	return s.limits[tier]
}

// flag raises a fail-open security audit entry; analysis never fails
// because the audit write did.
func (s *Service) flag(ctx context.Context, p *UsagePattern) {
	if s.metrics != nil {
		s.metrics.UsersFlagged.Inc()
	}
	if s.logger != nil {
		s.logger.WarnContext(ctx, "usage pattern flagged",
			slog.String("user_id", p.UserID),
			slog.String("pattern_type", string(p.PatternType)),
			slog.Float64("risk_score", p.RiskScore))
	}
	if s.auditor == nil {
		return
	}
	s.auditor.LogSecurity(ctx, audit.Entry{
		UserID: p.UserID,
		Action: audit.ActionSuspiciousActivity,
		Details: map[string]any{
			"pattern_type": string(p.PatternType),
			"risk_score":   p.RiskScore,
			"pattern_id":   p.ID,
		},
		Success: true,
	})
}

type trailSignals struct {
	apiCalls        int
	distinctIPs     int
	distinctDevices int
	activeHours     int
	totalActions    int
}

func summarizeTrail(entries []audit.Entry, hourCutoff time.Time) trailSignals {
	ips := make(map[string]struct{})
	devices := make(map[string]struct{})
	hours := make(map[int]struct{})
	sig := trailSignals{totalActions: len(entries)}

	for _, e := range entries {
		if !e.CreatedAt.Before(hourCutoff) {
			sig.apiCalls++
		}
		if e.IP != "" {
			ips[e.IP] = struct{}{}
		}
		if fp := deviceFingerprint(e.UserAgent); fp != "" {
			devices[fp] = struct{}{}
		}
		hours[e.CreatedAt.Hour()] = struct{}{}
	}
	sig.distinctIPs = len(ips)
	sig.distinctDevices = len(devices)
	sig.activeHours = len(hours)
	return sig
}
