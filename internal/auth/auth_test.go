package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/civic-service/internal/domain"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", 5)
	token, expires, err := tm.GenerateToken("user-1", domain.RoleDeptHead)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), expires, 5*time.Second)

	claims, err := tm.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, domain.RoleDeptHead, claims.Role)
}

func TestParseTokenRejectsForeignSecretAndExpiry(t *testing.T) {
	token, _, err := NewTokenManager("other", 5).GenerateToken("user-1", domain.RoleCitizen)
	require.NoError(t, err)
	_, err = NewTokenManager("secret", 5).ParseToken(token)
	assert.Error(t, err)

	expired := NewTokenManager("secret", 1)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, _, err = expired.GenerateToken("user-1", domain.RoleCitizen)
	require.NoError(t, err)
	_, err = expired.ParseToken(token)
	assert.Error(t, err)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("s3cret-pass", 4)
	require.NoError(t, err)
	assert.NoError(t, ComparePassword(hash, "s3cret-pass"))
	assert.Error(t, ComparePassword(hash, "wrong"))
}

func TestCapabilityTable(t *testing.T) {
	assert.True(t, Can(domain.RoleCitizen, CapCreateRequest))
	assert.False(t, Can(domain.RoleDeptHead, CapCreateRequest))
	assert.True(t, Can(domain.RoleDeptHead, CapValidateRequest))
	assert.False(t, Can(domain.RoleTeamLeader, CapVerifyCompletion))
	assert.True(t, Can(domain.RoleTeamLeader, CapCreateTask))
	assert.True(t, Can(domain.RoleTeamMember, CapUpdateTaskStatus))
	assert.False(t, Can(domain.RoleCitizen, CapUpdateTaskStatus))
	assert.True(t, Can(domain.RoleSuperAdmin, CapManageDirectory))
	assert.False(t, Can(domain.RoleDeptHead, CapManageDirectory))
	assert.ElementsMatch(t, []domain.Role{domain.RoleAdmin, domain.RoleSuperAdmin}, RolesFor(CapDeleteRequest))
}
