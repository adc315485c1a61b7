package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := New(CodeValidation, "retention must be at least 1 day")
	assert.EqualError(t, err, "retention must be at least 1 day")
	assert.True(t, HasCode(err, CodeValidation))
	assert.False(t, HasCode(err, CodeNotFound))
}

func TestWrap_PreservesInnerCode(t *testing.T) {
	inner := New(CodeIntegrity, "auth tag mismatch")
	wrapped := Wrap(inner, CodeCrypto, "decryption failed")

	// Wrapping a domain error keeps the original, more specific code.
	assert.True(t, HasCode(wrapped, CodeIntegrity))
	assert.False(t, HasCode(wrapped, CodeCrypto))
	assert.ErrorIs(t, wrapped, inner)
}

func TestWrap_PlainError(t *testing.T) {
	inner := fmt.Errorf("connection reset")
	wrapped := Wrap(inner, CodeStorage, "failed to persist record")

	assert.True(t, HasCode(wrapped, CodeStorage))
	assert.EqualError(t, wrapped, "failed to persist record")
	assert.ErrorIs(t, wrapped, inner)
}

func TestIs_MatchesByCode(t *testing.T) {
	a := New(CodeMissingConsent, "consent not granted for audio_processing")
	b := New(CodeMissingConsent, "different message")
	assert.True(t, errors.Is(a, b))

	c := New(CodePrivacyDisabled, "ai training disabled")
	assert.False(t, errors.Is(a, c))
}

func TestError_FallsBackToCode(t *testing.T) {
	err := &Error{Code: CodeInternal}
	require.EqualError(t, err, string(CodeInternal))
}

func TestHasCode_NonDomainError(t *testing.T) {
	assert.False(t, HasCode(errors.New("plain"), CodeInternal))
	assert.False(t, HasCode(nil, CodeInternal))
}
