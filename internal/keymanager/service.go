package keymanager

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/pbkdf2"

	"prepguard/internal/audit"
	"prepguard/internal/platform/metrics"
	"prepguard/internal/sentinel"
	dErrors "prepguard/pkg/domain-errors"
)

const (
	kdfIterations = 100_000
	keyLen        = 32 // 256-bit content keys
	saltLen       = 16
	ivLen         = 16 // 128-bit IV per ciphertext
	gcmTagLen     = 16
)

// Service derives per-user content keys and performs authenticated
// encryption. Content keys are never persisted: they are re-derived from
// (userID, purpose, stored salt) and the master secret on every use.
//
// Crypto failures are logged in full internally but surfaced behind generic
// codes so callers cannot distinguish cipher internals. They are never
// auto-retried.
type Service struct {
	store   Store
	master  []byte
	auditor *audit.Service
	metrics *metrics.Metrics
	logger  *slog.Logger
}

type Option func(*Service)

// WithAuditor sets the audit service for key lifecycle events.
func WithAuditor(a *audit.Service) Option {
	return func(s *Service) {
		s.auditor = a
	}
}

// WithMetrics sets the metrics instance for the service.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithLogger sets the logger instance for the service.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func NewService(store Store, masterSecret string, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("key store is required")
	}
	if masterSecret == "" {
		return nil, fmt.Errorf("master secret is required")
	}
	svc := &Service{
		store:  store,
		master: []byte(masterSecret),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// GenerateKey creates a fresh key record for (userID, purpose) and marks it
// active, replacing any previous active record in one store operation. The
// returned record carries only derivation metadata, never the raw key.
func (s *Service) GenerateKey(ctx context.Context, userID string, purpose Purpose) (*KeyRecord, error) {
	if userID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "user ID required")
	}
	if !purpose.IsValid() {
		return nil, dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("invalid key purpose: %s", purpose))
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, s.cryptoError("generate salt", err)
	}

	key := s.deriveKey(userID, purpose, salt)
	keyHash, err := s.Hash(hex.EncodeToString(key))
	if err != nil {
		return nil, err
	}

	record := &KeyRecord{
		ID:        uuid.New().String(),
		UserID:    userID,
		Purpose:   purpose,
		KeyHash:   keyHash,
		Salt:      hex.EncodeToString(salt),
		Algorithm: Algorithm,
		IsActive:  true,
		CreatedAt: time.Now(),
	}
	if err := s.store.ReplaceActive(ctx, record); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to persist key record")
	}

	s.emitAudit(ctx, userID, audit.ActionKeyGenerated, purpose)
	if s.metrics != nil {
		s.metrics.KeysGenerated.Inc()
	}
	return record, nil
}

// GetKey returns the active content key for (userID, purpose), generating a
// record lazily when none exists.
func (s *Service) GetKey(ctx context.Context, userID string, purpose Purpose) ([]byte, error) {
	if userID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "user ID required")
	}
	if !purpose.IsValid() {
		return nil, dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("invalid key purpose: %s", purpose))
	}

	record, err := s.store.FindActive(ctx, userID, purpose)
	if errors.Is(err, sentinel.ErrNotFound) {
		record, err = s.GenerateKey(ctx, userID, purpose)
		if err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to read key record")
	}

	salt, err := hex.DecodeString(record.Salt)
	if err != nil {
		return nil, s.cryptoError("decode stored salt", err)
	}
	return s.deriveKey(userID, purpose, salt), nil
}

// Encrypt seals plaintext under the user's content key for the given purpose.
// The user ID is bound to the ciphertext as AAD, so a ciphertext cannot be
// decrypted under another user's identity even with the same key bytes.
func (s *Service) Encrypt(ctx context.Context, plaintext []byte, userID string, purpose Purpose) (*Ciphertext, error) {
	key, err := s.GetKey(ctx, userID, purpose)
	if err != nil {
		return nil, err
	}

	aead, err := newAEAD(key)
	if err != nil {
		return nil, s.cryptoError("init cipher", err)
	}

	iv := make([]byte, ivLen)
	if _, err := rand.Read(iv); err != nil {
		return nil, s.cryptoError("generate iv", err)
	}

	sealed := aead.Seal(nil, iv, plaintext, []byte(userID))
	tagStart := len(sealed) - gcmTagLen
	return &Ciphertext{
		Data:    sealed[:tagStart],
		IV:      iv,
		AuthTag: sealed[tagStart:],
	}, nil
}

// Decrypt opens a ciphertext previously produced by Encrypt. A tag or AAD
// mismatch surfaces as an integrity violation; everything else stays behind
// the generic crypto code.
func (s *Service) Decrypt(ctx context.Context, ct *Ciphertext, userID string, purpose Purpose) ([]byte, error) {
	if ct == nil || len(ct.IV) != ivLen || len(ct.AuthTag) != gcmTagLen {
		return nil, dErrors.New(dErrors.CodeBadRequest, "malformed ciphertext")
	}

	key, err := s.GetKey(ctx, userID, purpose)
	if err != nil {
		return nil, err
	}

	aead, err := newAEAD(key)
	if err != nil {
		return nil, s.cryptoError("init cipher", err)
	}

	sealed := make([]byte, 0, len(ct.Data)+gcmTagLen)
	sealed = append(sealed, ct.Data...)
	sealed = append(sealed, ct.AuthTag...)

	plaintext, err := aead.Open(nil, ct.IV, sealed, []byte(userID))
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("ciphertext failed to verify", "user_id", userID, "purpose", purpose)
		}
		return nil, dErrors.New(dErrors.CodeIntegrity, "ciphertext failed integrity check")
	}
	return plaintext, nil
}

// Hash produces a one-way PBKDF2 hash in salt:hash hex format.
func (s *Service) Hash(value string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", s.cryptoError("generate hash salt", err)
	}
	dk := pbkdf2.Key([]byte(value), salt, kdfIterations, keyLen, sha256.New)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(dk), nil
}

// VerifyHash reports whether value matches a hash produced by Hash.
// Malformed stored hashes verify as false, not as an error.
func (s *Service) VerifyHash(value, stored string) bool {
	salt, want, ok := splitHash(stored)
	if !ok {
		return false
	}
	got := pbkdf2.Key([]byte(value), salt, kdfIterations, keyLen, sha256.New)
	return subtle.ConstantTimeCompare(got, want) == 1
}

// RotateKeys replaces the active key for every purpose of the user. Each
// purpose is replaced in a single store operation, so no purpose is ever left
// without an active key; a failure partway through leaves earlier purposes
// rotated and later ones untouched.
func (s *Service) RotateKeys(ctx context.Context, userID string) error {
	if userID == "" {
		return dErrors.New(dErrors.CodeBadRequest, "user ID required")
	}
	for _, purpose := range AllPurposes {
		if _, err := s.GenerateKey(ctx, userID, purpose); err != nil {
			return dErrors.Wrap(err, dErrors.CodeCrypto, fmt.Sprintf("rotation stopped at purpose %s", purpose))
		}
	}
	s.emitAudit(ctx, userID, audit.ActionKeyRotated, "")
	if s.metrics != nil {
		s.metrics.KeysRotated.Inc()
	}
	return nil
}

// DeleteUserKeys removes all key records for a user. Only full account
// erasure calls this.
func (s *Service) DeleteUserKeys(ctx context.Context, userID string) error {
	if userID == "" {
		return dErrors.New(dErrors.CodeBadRequest, "user ID required")
	}
	if err := s.store.DeleteByUser(ctx, userID); err != nil {
		return dErrors.Wrap(err, dErrors.CodeStorage, "failed to delete key records")
	}
	return nil
}

// deriveKey stretches the master secret with the user, purpose, and salt into
// a 256-bit content key.
func (s *Service) deriveKey(userID string, purpose Purpose, salt []byte) []byte {
	secret := make([]byte, 0, len(s.master)+len(userID)+len(purpose)+2)
	secret = append(secret, s.master...)
	secret = append(secret, ':')
	secret = append(secret, userID...)
	secret = append(secret, ':')
	secret = append(secret, purpose...)
	return pbkdf2.Key(secret, salt, kdfIterations, keyLen, sha256.New)
}

func (s *Service) cryptoError(op string, err error) error {
	if s.logger != nil {
		s.logger.Error("crypto operation failed", "op", op, "error", err)
	}
	return dErrors.New(dErrors.CodeCrypto, "crypto operation failed")
}

func (s *Service) emitAudit(ctx context.Context, userID string, action audit.Action, purpose Purpose) {
	if s.auditor == nil {
		return
	}
	entry := audit.Entry{
		UserID:       userID,
		Action:       action,
		ResourceType: audit.ResourceKeys,
		Success:      true,
	}
	if purpose != "" {
		entry.Details = map[string]any{"purpose": string(purpose)}
	}
	s.auditor.Log(ctx, entry)
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCMWithNonceSize(block, ivLen)
}

func splitHash(stored string) (salt, hash []byte, ok bool) {
	parts := strings.SplitN(stored, ":", 2)
	if len(parts) != 2 {
		return nil, nil, false
	}
	salt, err := hex.DecodeString(parts[0])
	if err != nil {
		return nil, nil, false
	}
	hash, err = hex.DecodeString(parts[1])
	if err != nil {
		return nil, nil, false
	}
	return salt, hash, true
}
