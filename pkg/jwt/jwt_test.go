package jwt

import (
	"errors"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidateToken(t *testing.T) {
	svc := NewJWTService("test-secret", time.Hour)

	token, err := svc.GenerateToken("ops@example.com", "admin")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	require.Equal(t, "ops@example.com", claims.Subject)
	require.Equal(t, "admin", claims.Role)
	require.Equal(t, "crosspay-facilitator", claims.Issuer)
}

func TestValidateTokenExpired(t *testing.T) {
	svc := NewJWTService("test-secret", -time.Minute)

	token, err := svc.GenerateToken("ops@example.com", "admin")
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	require.ErrorIs(t, err, ErrExpiredToken)
}

func TestValidateTokenWrongSecret(t *testing.T) {
	issuer := NewJWTService("secret-a", time.Hour)
	validator := NewJWTService("secret-b", time.Hour)

	token, err := issuer.GenerateToken("ops@example.com", "admin")
	require.NoError(t, err)

	_, err = validator.ValidateToken(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateTokenWrongSigningMethod(t *testing.T) {
	svc := NewJWTService("test-secret", time.Hour)

	// An unsigned token must be rejected even with matching claims.
	unsigned := jwtlib.NewWithClaims(jwtlib.SigningMethodNone, Claims{Subject: "ops@example.com", Role: "admin"})
	tokenString, err := unsigned.SignedString(jwtlib.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = svc.ValidateToken(tokenString)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.ValidateToken("not.a.token")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestGenerateTokenSignFailure(t *testing.T) {
	orig := signJWTToken
	signJWTToken = func(token *jwtlib.Token, secret []byte) (string, error) {
		return "", errors.New("sign failed")
	}
	defer func() { signJWTToken = orig }()

	svc := NewJWTService("test-secret", time.Hour)
	_, err := svc.GenerateToken("ops@example.com", "admin")
	require.Error(t, err)
}
