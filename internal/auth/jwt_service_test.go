package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestJWTServiceRoundTrip(t *testing.T) {
	svc, err := NewJWTService(JWTConfig{Secret: "secret", Issuer: "accounts"})
	require.NoError(t, err)

	token, err := svc.Sign("user-1")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.Validate(token)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.UserID)
	require.Equal(t, "user-1", claims.Subject)
	require.Equal(t, "accounts", claims.Issuer)
}

func TestJWTServiceNoExpiryByDefault(t *testing.T) {
	fixed := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
	svc, err := NewJWTService(JWTConfig{Secret: "secret", Clock: func() time.Time { return fixed }})
	require.NoError(t, err)

	token, err := svc.Sign("user-1")
	require.NoError(t, err)

	claims, err := svc.Validate(token)
	require.NoError(t, err)
	require.Nil(t, claims.ExpiresAt)
	require.Equal(t, fixed.Unix(), claims.IssuedAt.Unix())

	// Still valid years later.
	svc.now = func() time.Time { return fixed.AddDate(5, 0, 0) }
	_, err = svc.Validate(token)
	require.NoError(t, err)
}

func TestJWTServiceTTLExpiry(t *testing.T) {
	fixed := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
	svc, err := NewJWTService(JWTConfig{
		Secret: "secret",
		TTL:    time.Hour,
		Clock:  func() time.Time { return fixed },
	})
	require.NoError(t, err)

	token, err := svc.Sign("user-1")
	require.NoError(t, err)

	claims, err := svc.Validate(token)
	require.NoError(t, err)
	require.Equal(t, fixed.Add(time.Hour).Unix(), claims.ExpiresAt.Unix())

	svc.now = func() time.Time { return fixed.Add(2 * time.Hour) }
	_, err = svc.Validate(token)
	require.Error(t, err)
}

func TestJWTServiceRejectsWrongSecret(t *testing.T) {
	signer, err := NewJWTService(JWTConfig{Secret: "secret-a"})
	require.NoError(t, err)
	verifier, err := NewJWTService(JWTConfig{Secret: "secret-b"})
	require.NoError(t, err)

	token, err := signer.Sign("user-1")
	require.NoError(t, err)

	_, err = verifier.Validate(token)
	require.Error(t, err)
}

func TestJWTServiceRejectsIssuerMismatch(t *testing.T) {
	signer, err := NewJWTService(JWTConfig{Secret: "secret", Issuer: "other"})
	require.NoError(t, err)
	verifier, err := NewJWTService(JWTConfig{Secret: "secret", Issuer: "accounts"})
	require.NoError(t, err)

	token, err := signer.Sign("user-1")
	require.NoError(t, err)

	_, err = verifier.Validate(token)
	require.Error(t, err)
}

func TestJWTServiceRequiresSecret(t *testing.T) {
	_, err := NewJWTService(JWTConfig{})
	require.Error(t, err)
}

func TestJWTServiceSignRequiresUserID(t *testing.T) {
	svc, err := NewJWTService(JWTConfig{Secret: "secret"})
	require.NoError(t, err)

	_, err = svc.Sign("")
	require.Error(t, err)
}
