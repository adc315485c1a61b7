package consent

import "time"

// Type labels what a user has agreed to. Consent is tracked per
// (user, type, version) so a policy-text change forces re-consent.
type Type string

const (
	TypeAudioProcessing   Type = "audio_processing"
	TypeDataStorage       Type = "data_storage"
	TypeAIAnalysis        Type = "ai_analysis"
	TypeAnalytics         Type = "analytics"
	TypeMarketing         Type = "marketing"
	TypeThirdPartySharing Type = "third_party_sharing"
)

// AllTypes is the single source of truth for the enumerated consent types.
var AllTypes = []Type{
	TypeAudioProcessing,
	TypeDataStorage,
	TypeAIAnalysis,
	TypeAnalytics,
	TypeMarketing,
	TypeThirdPartySharing,
}

// RequiredTypes must be granted before the product can operate for a user.
var RequiredTypes = []Type{TypeAudioProcessing, TypeDataStorage}

// CurrentVersion is the policy-text version consents are evaluated against.
const CurrentVersion = "1.0"

// IsValid checks if the consent type is one of the supported enum values.
func (t Type) IsValid() bool {
	switch t {
	case TypeAudioProcessing, TypeDataStorage, TypeAIAnalysis, TypeAnalytics, TypeMarketing, TypeThirdPartySharing:
		return true
	}
	return false
}

// IsRequired reports whether the type belongs to the required subset.
func (t Type) IsRequired() bool {
	for _, required := range RequiredTypes {
		if t == required {
			return true
		}
	}
	return false
}

// Record captures a user's decision for one consent type at one policy
// version. Revocation is a logical flag: the row survives with RevokedAt set
// and GrantedAt preserved so the state round-trips without deletion.
type Record struct {
	ID        string
	UserID    string
	Type      Type
	Granted   bool
	GrantedAt *time.Time
	RevokedAt *time.Time
	Version   string
	IP        string
	UserAgent string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UpdateRequest is the input for one consent decision.
type UpdateRequest struct {
	Type      Type
	Granted   bool
	Version   string
	IP        string
	UserAgent string
}

// Status is the derived current state of one consent type for a user.
// Absence of a stored record means granted=false, not an error.
type Status struct {
	Type       Type
	Granted    bool
	IsRequired bool
	Version    string
	GrantedAt  *time.Time
	RevokedAt  *time.Time
}

// TypeStatistics aggregates decisions for one type at the current version.
type TypeStatistics struct {
	Granted int
	Revoked int
}

// actionRequirements is the static table mapping action names to the consent
// types they require. Unknown actions require nothing.
var actionRequirements = map[string][]Type{
	"audio_capture":      {TypeAudioProcessing, TypeDataStorage},
	"transcription":      {TypeAudioProcessing, TypeDataStorage},
	"answer_generation":  {TypeDataStorage, TypeAIAnalysis},
	"practice_review":    {TypeDataStorage},
	"analytics_tracking": {TypeAnalytics},
	"marketing_email":    {TypeMarketing},
	"data_sharing":       {TypeThirdPartySharing},
}
