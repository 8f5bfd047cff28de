package admin

import (
	"testing"

	"github.com/smallbiznis/tally/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerifyPassword(t *testing.T) {
	encoded, err := HashPassword("s3cret")
	require.NoError(t, err)
	assert.Contains(t, encoded, "$argon2id$v=19$")

	assert.True(t, VerifyPassword("s3cret", encoded))
	assert.False(t, VerifyPassword("wrong", encoded))
	assert.False(t, VerifyPassword("s3cret", "$2a$10$notargon"))
	assert.False(t, VerifyPassword("s3cret", "$argon2id$v=19$m=1,t=1,p=0$AAAA$AAAA"))
}

func TestCheckPlainPassword(t *testing.T) {
	auth := NewAuthenticator(config.Config{Admin: config.AdminConfig{User: "admin", Password: "pw"}})
	require.True(t, auth.Configured())

	assert.NoError(t, auth.Check("admin", "pw"))
	assert.ErrorIs(t, auth.Check("admin", "nope"), ErrInvalidCredentials)
	assert.ErrorIs(t, auth.Check("root", "pw"), ErrInvalidCredentials)
	assert.ErrorIs(t, auth.Check("", "pw"), ErrMissingCredentials)
	assert.ErrorIs(t, auth.Check("admin", ""), ErrMissingCredentials)
}

func TestCheckPrefersHash(t *testing.T) {
	encoded, err := HashPassword("hashed")
	require.NoError(t, err)

	auth := NewAuthenticator(config.Config{Admin: config.AdminConfig{User: "admin", Password: "plain", PasswordHash: encoded}})
	assert.NoError(t, auth.Check("admin", "hashed"))
	assert.ErrorIs(t, auth.Check("admin", "plain"), ErrInvalidCredentials)
}

func TestUnconfiguredRejectsEverything(t *testing.T) {
	auth := NewAuthenticator(config.Config{})
	assert.False(t, auth.Configured())
	assert.ErrorIs(t, auth.Check("admin", "pw"), ErrInvalidCredentials)
}

func TestVerifyRejectsUnusableParams(t *testing.T) {
	const salt, hash = "AAAAAAAAAAAAAAAAAAAAAA", "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	for _, params := range []string{
		"m=65536,t=0,p=4",
		"m=16,t=1,p=4",
		"m=65536,t=1,p=0",
		"m=x,t=1,p=1",
	} {
		encoded := "$argon2id$v=19$" + params + "$" + salt + "$" + hash
		assert.NotPanics(t, func() {
			assert.False(t, VerifyPassword("pw", encoded), params)
		}, params)
	}

	memory, timeCost, threads, ok := parseParams("m=32,t=2,p=4")
	require.True(t, ok)
	assert.Equal(t, uint32(32), memory)
	assert.Equal(t, uint32(2), timeCost)
	assert.Equal(t, uint8(4), threads)
}

func TestCheckWithZeroRoundHashDoesNotPanic(t *testing.T) {
	auth := NewAuthenticator(config.Config{Admin: config.AdminConfig{
		User:         "admin",
		PasswordHash: "$argon2id$v=19$m=65536,t=0,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA",
	}})
	assert.NotPanics(t, func() {
		assert.ErrorIs(t, auth.Check("admin", "pw"), ErrInvalidCredentials)
	})
}
