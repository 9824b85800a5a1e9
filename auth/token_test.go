package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMintVerifyRoundTrip(t *testing.T) {
	m := NewTokenManager("s3cret", 15*time.Minute)
	token, err := m.Mint(Identity{AgentId: "P1", Name: "Alice", BodyColor: "#3B82F6"}, time.Now())
	require.NoError(t, err)

	id, err := m.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "P1", id.AgentId)
	assert.Equal(t, "Alice", id.Name)
	assert.Equal(t, "#3B82F6", id.BodyColor)
}

func TestVerifyExpired(t *testing.T) {
	m := NewTokenManager("s3cret", 15*time.Minute)
	token, err := m.Mint(Identity{AgentId: "P1", Name: "Alice"}, time.Now().Add(-time.Hour))
	require.NoError(t, err)

	_, err = m.Verify(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerifyWrongSecret(t *testing.T) {
	minter := NewTokenManager("one", 15*time.Minute)
	verifier := NewTokenManager("two", 15*time.Minute)
	token, err := minter.Mint(Identity{AgentId: "P1", Name: "Alice"}, time.Now())
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyGarbage(t *testing.T) {
	m := NewTokenManager("s3cret", 15*time.Minute)
	_, err := m.Verify("not.a.token")
	assert.Error(t, err)
}
