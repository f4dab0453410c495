package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenKinds(t *testing.T) {
	m := NewJWTManager("secret", 1, 7)

	access, err := m.GenerateToken(7, "alice", "USER")
	require.NoError(t, err)
	refresh, err := m.GenerateRefreshToken(7, "alice", "USER")
	require.NoError(t, err)

	claims, err := m.VerifyKind(access, KindAccess)
	require.NoError(t, err)
	assert.Equal(t, uint(7), claims.UserID)
	assert.Equal(t, "alice", claims.Username)

	_, err = m.VerifyKind(refresh, KindAccess)
	assert.Error(t, err)
	_, err = m.VerifyKind(access, KindRefresh)
	assert.Error(t, err)
	_, err = m.VerifyKind(refresh, KindRefresh)
	assert.NoError(t, err)
}

func TestVerifyRejectsForeignAndExpired(t *testing.T) {
	m := NewJWTManager("secret", 1, 7)
	other := NewJWTManager("other", 1, 7)

	tok, err := other.GenerateToken(1, "bob", "USER")
	require.NoError(t, err)
	_, err = m.VerifyToken(tok)
	assert.Error(t, err)

	m.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, err := m.GenerateToken(1, "bob", "USER")
	require.NoError(t, err)
	m.now = time.Now
	_, err = m.VerifyToken(old)
	assert.Error(t, err)
}

func TestRemainingTTL(t *testing.T) {
	start := time.Now()
	m := NewJWTManager("secret", 1, 7)
	m.now = func() time.Time { return start }

	tok, err := m.GenerateToken(1, "bob", "USER")
	require.NoError(t, err)
	claims, err := m.VerifyToken(tok)
	require.NoError(t, err)

	m.now = func() time.Time { return start.Add(30 * time.Minute) }
	ttl := m.RemainingTTL(claims)
	assert.InDelta(t, (30 * time.Minute).Seconds(), ttl.Seconds(), 1)

	m.now = func() time.Time { return start.Add(2 * time.Hour) }
	assert.Equal(t, time.Second, m.RemainingTTL(claims))
	assert.Equal(t, time.Hour, m.RemainingTTL(nil))
}
