package erasure

import (
	"time"

	"prepguard/internal/audit"
	"prepguard/internal/consent"
	"prepguard/internal/directory"
	"prepguard/internal/privacy"
	"prepguard/internal/sessiondata"
)

// RequestType distinguishes a data export from a right-to-be-forgotten
// delete.
type RequestType string

const (
	RequestExport RequestType = "export"
	RequestDelete RequestType = "delete"
)

func (t RequestType) IsValid() bool {
	return t == RequestExport || t == RequestDelete
}

// Status is the request state machine. Requests only ever move forward:
// pending -> processing -> completed or failed.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Domain selects one data domain of a request. DomainAll selects every
// domain and, for deletes, removes the root user row last.
type Domain string

const (
	DomainAll            Domain = "all"
	DomainProfile        Domain = "profile"
	DomainSessions       Domain = "sessions"
	DomainAudio          Domain = "audio"
	DomainTranscriptions Domain = "transcriptions"
	DomainPractice       Domain = "practice"
	DomainAnalytics      Domain = "analytics"
	DomainAudit          Domain = "audit"
	DomainConsents       Domain = "consents"
)

var validDomains = map[Domain]bool{
	DomainAll:            true,
	DomainProfile:        true,
	DomainSessions:       true,
	DomainAudio:          true,
	DomainTranscriptions: true,
	DomainPractice:       true,
	DomainAnalytics:      true,
	DomainAudit:          true,
	DomainConsents:       true,
}

// FormatJSON is the only supported artifact format.
const FormatJSON = "json"

// artifactTTL is how long a completed export stays downloadable.
const artifactTTL = 30 * 24 * time.Hour

// Request is one export or delete job. Completion is observed only by
// polling; there is no callback.
type Request struct {
	ID            string
	UserID        string
	RequestType   RequestType
	Domains       []Domain
	Format        string
	Status        Status
	ErrorMessage  string
	FilePath      string
	DownloadToken string
	ExpiresAt     *time.Time
	CreatedAt     time.Time
	CompletedAt   *time.Time
}

// HasDomain reports whether the request selects the given domain, either
// directly or through DomainAll.
func (r *Request) HasDomain(d Domain) bool {
	for _, domain := range r.Domains {
		if domain == DomainAll || domain == d {
			return true
		}
	}
	return false
}

// Archive is the export artifact serialized to the file store.
type Archive struct {
	UserID         string                       `json:"user_id"`
	GeneratedAt    time.Time                    `json:"generated_at"`
	Profile        *directory.User              `json:"profile,omitempty"`
	Sessions       []sessiondata.Session        `json:"sessions,omitempty"`
	Interactions   []sessiondata.Interaction    `json:"interactions,omitempty"`
	Metrics        []sessiondata.Metric         `json:"metrics,omitempty"`
	Audio          []sessiondata.AudioRecording `json:"audio,omitempty"`
	Transcriptions []sessiondata.Transcription  `json:"transcriptions,omitempty"`
	Practice       []sessiondata.PracticeRecord `json:"practice,omitempty"`
	Analytics      []sessiondata.AnalyticsEvent `json:"analytics,omitempty"`
	AuditTrail     []audit.Entry                `json:"audit_trail,omitempty"`
	Consents       []consent.Status             `json:"consents,omitempty"`
	Privacy        *privacy.Settings            `json:"privacy_settings,omitempty"`
}

// Summary is the transparency report returned by GetDataProcessingSummary.
type Summary struct {
	UserID         string
	DataCounts     sessiondata.Counts
	AuditEntries   int
	RetentionDays  map[string]int
	Consents       []consent.Status
	LastActivityAt time.Time
	GeneratedAt    time.Time
}
