package keymanager

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	dErrors "prepguard/pkg/domain-errors"
)

type ServiceSuite struct {
	suite.Suite
	store   *InMemoryStore
	service *Service
}

func (s *ServiceSuite) SetupTest() {
	s.store = NewInMemoryStore()
	svc, err := NewService(s.store, "test-master-secret")
	s.Require().NoError(err)
	s.service = svc
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) TestEncryptDecrypt_RoundTrip() {
	ctx := context.Background()
	plaintexts := [][]byte{
		[]byte("hello interview"),
		[]byte(""),
		[]byte("longer payload with unicode: héllo wörld 你好"),
	}

	for _, plaintext := range plaintexts {
		ct, err := s.service.Encrypt(ctx, plaintext, "u1", PurposeAudio)
		s.Require().NoError(err)
		s.Require().Len(ct.IV, 16, "IV must be 128 bits")
		s.Require().Len(ct.AuthTag, 16)

		got, err := s.service.Decrypt(ctx, ct, "u1", PurposeAudio)
		s.Require().NoError(err)
		s.Assert().Equal(plaintext, got)
	}
}

func (s *ServiceSuite) TestDecrypt_WrongUserFailsIntegrity() {
	ctx := context.Background()
	ct, err := s.service.Encrypt(ctx, []byte("secret transcript"), "u1", PurposeTranscription)
	s.Require().NoError(err)

	// The owning user ID is bound as AAD; any other identity must fail.
	_, err = s.service.Decrypt(ctx, ct, "u2", PurposeTranscription)
	s.Require().Error(err)
	s.Assert().True(dErrors.HasCode(err, dErrors.CodeIntegrity))
}

func (s *ServiceSuite) TestDecrypt_TamperedTagFailsIntegrity() {
	ctx := context.Background()
	ct, err := s.service.Encrypt(ctx, []byte("payload"), "u1", PurposeAudio)
	s.Require().NoError(err)

	ct.AuthTag[0] ^= 0xff
	_, err = s.service.Decrypt(ctx, ct, "u1", PurposeAudio)
	s.Require().Error(err)
	s.Assert().True(dErrors.HasCode(err, dErrors.CodeIntegrity))
}

func (s *ServiceSuite) TestGetKey_LazyGenerationIsDeterministic() {
	ctx := context.Background()

	// First call creates the record lazily.
	key1, err := s.service.GetKey(ctx, "u1", PurposeProfile)
	s.Require().NoError(err)
	s.Require().Len(key1, 32)

	// Subsequent calls re-derive the same key from the stored salt.
	key2, err := s.service.GetKey(ctx, "u1", PurposeProfile)
	s.Require().NoError(err)
	s.Assert().Equal(key1, key2)

	// Different users and purposes get different keys.
	otherUser, err := s.service.GetKey(ctx, "u2", PurposeProfile)
	s.Require().NoError(err)
	s.Assert().NotEqual(key1, otherUser)

	otherPurpose, err := s.service.GetKey(ctx, "u1", PurposeAudio)
	s.Require().NoError(err)
	s.Assert().NotEqual(key1, otherPurpose)
}

func (s *ServiceSuite) TestGenerateKey_NeverPersistsRawKey() {
	ctx := context.Background()
	record, err := s.service.GenerateKey(ctx, "u1", PurposeAudio)
	s.Require().NoError(err)

	key, err := s.service.GetKey(ctx, "u1", PurposeAudio)
	s.Require().NoError(err)

	s.Assert().NotContains(record.KeyHash, string(key))
	s.Assert().Equal(Algorithm, record.Algorithm)
	s.Assert().True(record.IsActive)
}

func (s *ServiceSuite) TestRotateKeys_ReplacesEveryPurpose() {
	ctx := context.Background()

	before := map[Purpose][]byte{}
	for _, purpose := range AllPurposes {
		key, err := s.service.GetKey(ctx, "u1", purpose)
		s.Require().NoError(err)
		before[purpose] = key
	}

	s.Require().NoError(s.service.RotateKeys(ctx, "u1"))

	for _, purpose := range AllPurposes {
		after, err := s.service.GetKey(ctx, "u1", purpose)
		s.Require().NoError(err)
		s.Assert().NotEqual(before[purpose], after, "purpose %s should have a new key", purpose)

		// Exactly one active record remains per purpose.
		record, err := s.store.FindActive(ctx, "u1", purpose)
		s.Require().NoError(err)
		s.Assert().True(record.IsActive)
	}
	s.Assert().Equal(len(AllPurposes), s.store.InactiveCount("u1"))
}

func (s *ServiceSuite) TestRotation_OldCiphertextsBecomeUnreadable() {
	ctx := context.Background()
	ct, err := s.service.Encrypt(ctx, []byte("pre-rotation"), "u1", PurposeAudio)
	s.Require().NoError(err)

	s.Require().NoError(s.service.RotateKeys(ctx, "u1"))

	_, err = s.service.Decrypt(ctx, ct, "u1", PurposeAudio)
	s.Require().Error(err, "rotation replaces the salt, so old ciphertexts no longer verify")
	s.Assert().True(dErrors.HasCode(err, dErrors.CodeIntegrity))
}

func (s *ServiceSuite) TestInvalidInputs() {
	ctx := context.Background()

	_, err := s.service.GenerateKey(ctx, "", PurposeAudio)
	s.Assert().True(dErrors.HasCode(err, dErrors.CodeBadRequest))

	_, err = s.service.GenerateKey(ctx, "u1", Purpose("payments"))
	s.Assert().True(dErrors.HasCode(err, dErrors.CodeBadRequest))

	_, err = s.service.Decrypt(ctx, &Ciphertext{IV: []byte("short")}, "u1", PurposeAudio)
	s.Assert().True(dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func TestHashVerify(t *testing.T) {
	store := NewInMemoryStore()
	svc, err := NewService(store, "test-master-secret")
	require.NoError(t, err)

	inputs := []string{"password123", "", "unicode ✓ value", "a"}
	for _, input := range inputs {
		stored, err := svc.Hash(input)
		require.NoError(t, err)
		assert.True(t, svc.VerifyHash(input, stored), "hash of %q should verify", input)
		assert.False(t, svc.VerifyHash(input+"x", stored))
	}

	// Two hashes of the same input differ (fresh salt) yet both verify.
	h1, err := svc.Hash("same")
	require.NoError(t, err)
	h2, err := svc.Hash("same")
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
	assert.True(t, svc.VerifyHash("same", h1))
	assert.True(t, svc.VerifyHash("same", h2))
}

func TestVerifyHash_MalformedStored(t *testing.T) {
	svc, err := NewService(NewInMemoryStore(), "test-master-secret")
	require.NoError(t, err)

	for _, stored := range []string{"", "nocolon", "zz:zz", "abc:"} {
		assert.False(t, svc.VerifyHash("value", stored), "malformed hash %q must not verify", stored)
	}
}
