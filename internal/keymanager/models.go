package keymanager

import "time"

// Purpose scopes a key to one class of payload. Separate keys per purpose
// limit the blast radius of a compromised key and allow purpose-scoped
// rotation.
type Purpose string

const (
	PurposeAudio         Purpose = "audio"
	PurposeTranscription Purpose = "transcription"
	PurposeProfile       Purpose = "profile"
)

// AllPurposes is the single source of truth for valid key purposes, in
// rotation order.
var AllPurposes = []Purpose{PurposeAudio, PurposeTranscription, PurposeProfile}

// IsValid checks if the purpose is one of the supported enum values.
func (p Purpose) IsValid() bool {
	switch p {
	case PurposeAudio, PurposeTranscription, PurposeProfile:
		return true
	}
	return false
}

// Algorithm identifies the authenticated encryption scheme in use.
const Algorithm = "aes-256-gcm"

// KeyRecord is the persisted metadata for one derivable content key. The raw
// key is never stored: it is re-derived from (userID, purpose, salt) and the
// process-wide master secret, so a database dump alone cannot recover it.
// At most one record per (userID, purpose) is active.
type KeyRecord struct {
	ID        string
	UserID    string
	Purpose   Purpose
	KeyHash   string // verification hash, salt:hash hex
	Salt      string // hex-encoded derivation salt
	Algorithm string
	IsActive  bool
	CreatedAt time.Time
}

// Ciphertext carries an encrypted payload with its IV and GCM auth tag split
// out, as stored at rest.
type Ciphertext struct {
	Data    []byte
	IV      []byte
	AuthTag []byte
}
