package auth

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "super-secret-jwt-token-with-at-least-32-characters"

func signHS256(t *testing.T, secret string, claims *Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func validClaims(subject string) *Claims {
	now := time.Now()
	return &Claims{
		Email:       "alice@example.com",
		AppMetadata: AppMetadata{CustomerID: "C1"},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    "https://project.supabase.co/auth/v1",
			Audience:  jwt.ClaimStrings{"authenticated"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
}

func TestHMACVerifier_Verify(t *testing.T) {
	verifier := NewHMACVerifier(HMACConfig{
		Secret:   testSecret,
		Issuer:   "https://project.supabase.co/auth/v1",
		Audience: "authenticated",
	})
	ctx := context.Background()

	t.Run("valid token", func(t *testing.T) {
		raw := signHS256(t, testSecret, validClaims("user-1"))

		claims, err := verifier.Verify(ctx, raw)
		require.NoError(t, err)
		assert.Equal(t, "user-1", claims.Subject)
		assert.Equal(t, "alice@example.com", claims.Email)
		assert.Equal(t, "C1", claims.AppMetadata.CustomerID)
	})

	tests := []struct {
		name  string
		token func(t *testing.T) string
	}{
		{
			name:  "empty token",
			token: func(t *testing.T) string { return "" },
		},
		{
			name:  "garbage",
			token: func(t *testing.T) string { return "not-a-jwt" },
		},
		{
			name: "wrong secret",
			token: func(t *testing.T) string {
				return signHS256(t, "another-secret-another-secret-another", validClaims("user-1"))
			},
		},
		{
			name: "expired",
			token: func(t *testing.T) string {
				c := validClaims("user-1")
				c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
				return signHS256(t, testSecret, c)
			},
		},
		{
			name: "missing expiry",
			token: func(t *testing.T) string {
				c := validClaims("user-1")
				c.ExpiresAt = nil
				return signHS256(t, testSecret, c)
			},
		},
		{
			name: "wrong audience",
			token: func(t *testing.T) string {
				c := validClaims("user-1")
				c.Audience = jwt.ClaimStrings{"anon"}
				return signHS256(t, testSecret, c)
			},
		},
		{
			name: "wrong issuer",
			token: func(t *testing.T) string {
				c := validClaims("user-1")
				c.Issuer = "https://evil.example.com"
				return signHS256(t, testSecret, c)
			},
		},
		{
			name: "missing subject",
			token: func(t *testing.T) string {
				return signHS256(t, testSecret, validClaims(""))
			},
		},
		{
			name: "unexpected signing method",
			token: func(t *testing.T) string {
				token := jwt.NewWithClaims(jwt.SigningMethodHS512, validClaims("user-1"))
				signed, err := token.SignedString([]byte(testSecret))
				require.NoError(t, err)
				return signed
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := verifier.Verify(ctx, tt.token(t))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidToken), "expected ErrInvalidToken, got %v", err)
		})
	}
}

func TestOIDCVerifier_Verify(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	issuer := "https://project.supabase.co/auth/v1"
	keySet := &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&key.PublicKey}}
	verifier := NewOIDCVerifierWithKeySet(issuer, keySet, "authenticated")
	ctx := context.Background()

	sign := func(c *Claims) string {
		token := jwt.NewWithClaims(jwt.SigningMethodRS256, c)
		signed, err := token.SignedString(key)
		require.NoError(t, err)
		return signed
	}

	t.Run("valid token", func(t *testing.T) {
		claims, err := verifier.Verify(ctx, sign(validClaims("user-9")))
		require.NoError(t, err)
		assert.Equal(t, "user-9", claims.Subject)
		assert.Equal(t, "C1", claims.AppMetadata.CustomerID)
	})

	t.Run("expired token", func(t *testing.T) {
		c := validClaims("user-9")
		c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
		_, err := verifier.Verify(ctx, sign(c))
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		c := validClaims("user-9")
		c.Issuer = "https://other.example.com"
		_, err := verifier.Verify(ctx, sign(c))
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("signed by another key", func(t *testing.T) {
		other, err := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)
		token := jwt.NewWithClaims(jwt.SigningMethodRS256, validClaims("user-9"))
		signed, err := token.SignedString(other)
		require.NoError(t, err)

		_, err = verifier.Verify(ctx, signed)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestExtractBearer(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{name: "valid", header: "Bearer abc.def.ghi", want: "abc.def.ghi"},
		{name: "lowercase scheme", header: "bearer abc", want: "abc"},
		{name: "empty", header: "", wantErr: true},
		{name: "basic auth", header: "Basic dXNlcjpwYXNz", wantErr: true},
		{name: "no token", header: "Bearer ", wantErr: true},
		{name: "scheme only", header: "Bearer", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractBearer(tt.header)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
