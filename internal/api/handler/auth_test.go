package handler

import (
	"testing"
	"time"

	"nexochat/backend/internal/apperror"
	"nexochat/backend/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testJWT() config.JWT {
	return config.JWT{Secret: "test-secret", Issuer: "nexochat-test", TTL: time.Hour}
}

func TestAuthenticator_MintVerify(t *testing.T) {
	a := NewAuthenticator(testJWT())

	token, err := a.Mint("user-1")
	require.NoError(t, err)

	sub, err := a.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", sub)
}

func TestAuthenticator_Rejects(t *testing.T) {
	a := NewAuthenticator(testJWT())
	good, err := a.Mint("user-1")
	require.NoError(t, err)

	otherIssuer := testJWT()
	otherIssuer.Issuer = "someone-else"
	foreign, err := NewAuthenticator(otherIssuer).Mint("user-1")
	require.NoError(t, err)

	otherSecret := testJWT()
	otherSecret.Secret = "not-the-secret"
	forged, err := NewAuthenticator(otherSecret).Mint("user-1")
	require.NoError(t, err)

	expiring := NewAuthenticator(testJWT())
	expiring.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, err := expiring.Mint("user-1")
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"wrong issuer", foreign},
		{"wrong secret", forged},
		{"expired", expired},
		{"truncated", good[:len(good)-4]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Verify(tt.token)
			assert.True(t, apperror.Is(err, apperror.CodeUnauthenticated), "got %v", err)
		})
	}
}

func TestAuthenticator_MintRequiresUser(t *testing.T) {
	_, err := NewAuthenticator(testJWT()).Mint("")
	assert.True(t, apperror.Is(err, apperror.CodeInvalidArgument))
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, 404, StatusFor(apperror.CodeNotFound))
	assert.Equal(t, 403, StatusFor(apperror.CodePermissionDenied))
	assert.Equal(t, 409, StatusFor(apperror.CodeConflict))
	assert.Equal(t, 400, StatusFor(apperror.CodeInvalidArgument))
	assert.Equal(t, 401, StatusFor(apperror.CodeUnauthenticated))
	assert.Equal(t, 503, StatusFor(apperror.CodeUnavailable))
	assert.Equal(t, 500, StatusFor(apperror.CodeInternal))
}
