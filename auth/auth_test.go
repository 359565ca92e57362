package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionRoundtrip(t *testing.T) {
	s, err := NewSessions("test-secret", time.Hour)
	require.NoError(t, err)

	claims := SessionClaims{UserId: "42", Username: "dana", Name: "Dana", RoomId: "7"}
	raw, err := s.Issue(claims)
	require.NoError(t, err)

	got, err := s.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, &claims, got)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	s1, _ := NewSessions("secret-one", time.Hour)
	s2, _ := NewSessions("secret-two", time.Hour)

	raw, err := s1.Issue(SessionClaims{UserId: "42"})
	require.NoError(t, err)

	_, err = s2.Verify(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsExpired(t *testing.T) {
	s, _ := NewSessions("test-secret", -time.Minute)
	raw, err := s.Issue(SessionClaims{UserId: "42"})
	require.NoError(t, err)

	_, err = s.Verify(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	s, _ := NewSessions("test-secret", time.Hour)
	_, err := s.Verify("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewSessionsRequiresSecret(t *testing.T) {
	_, err := NewSessions("", time.Hour)
	assert.Error(t, err)
}

func TestCheckPasswordBcrypt(t *testing.T) {
	hash, err := HashPassword("open sesame")
	require.NoError(t, err)

	ok, upgraded := CheckPassword(hash, "open sesame")
	assert.True(t, ok)
	assert.Empty(t, upgraded, "bcrypt hashes need no upgrade")

	ok, _ = CheckPassword(hash, "wrong")
	assert.False(t, ok)
}

func TestCheckPasswordLegacyUpgrade(t *testing.T) {
	sum := sha256.Sum256([]byte("open sesame"))
	legacy := hex.EncodeToString(sum[:])

	ok, upgraded := CheckPassword(legacy, "open sesame")
	assert.True(t, ok)
	require.NotEmpty(t, upgraded)
	assert.True(t, strings.HasPrefix(upgraded, "$2"))

	// the upgraded hash verifies the same password
	ok, again := CheckPassword(upgraded, "open sesame")
	assert.True(t, ok)
	assert.Empty(t, again)

	ok, upgraded = CheckPassword(legacy, "wrong")
	assert.False(t, ok)
	assert.Empty(t, upgraded)
}
