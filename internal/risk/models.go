package risk

import "time"

// PatternType names one abuse heuristic.
type PatternType string

const (
	PatternSessionFrequency PatternType = "session_frequency"
	PatternAudioVolume      PatternType = "audio_volume"
	PatternAPIUsage         PatternType = "api_usage"
	PatternLocationAnomaly  PatternType = "location_anomaly"
	PatternDeviceAnomaly    PatternType = "device_anomaly"
	PatternTimeAnomaly      PatternType = "time_anomaly"
)

// UsagePattern is one tripped heuristic, persisted for the review queue.
// Scores are bounded to [0,100]. Only human review mutates Reviewed.
type UsagePattern struct {
	ID          string
	UserID      string
	PatternType PatternType
	PatternData map[string]any
	RiskScore   float64
	Flagged     bool
	Reviewed    bool
	CreatedAt   time.Time
}

// TierLimits holds the usage ceilings for one subscription tier.
type TierLimits struct {
	SessionsPerDay     int
	AudioMinutesPerDay float64
	APICallsPerHour    int
}

// Config carries the heuristic thresholds and weights. Every value has a
// default; deployments tune them without code changes.
type Config struct {
	SessionFrequencyTrigger float64 // percent of ceiling, 24h window
	AudioVolumeTrigger      float64 // percent of ceiling, 24h window
	APIUsageTrigger         float64 // percent of ceiling, 1h window
	DistinctIPThreshold     int     // 7d window
	DistinctDeviceThreshold int     // 7d window
	ActiveHoursThreshold    int     // hours of day seen active, 7d window
	ActionCountThreshold    int     // total actions, 7d window
	IPWeight                float64
	DeviceWeight            float64
	FlagScore               float64 // pattern score above this flags + audits
	BlockScore              float64 // mean score above this blocks
}

func DefaultConfig() Config {
	return Config{
		SessionFrequencyTrigger: 60,
		AudioVolumeTrigger:      60,
		APIUsageTrigger:         80,
		DistinctIPThreshold:     10,
		DistinctDeviceThreshold: 5,
		ActiveHoursThreshold:    20,
		ActionCountThreshold:    50,
		IPWeight:                8,
		DeviceWeight:            15,
		FlagScore:               80,
		BlockScore:              95,
	}
}
