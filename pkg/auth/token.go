package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
)

// TokenVerifier verifies a bearer token and returns its claims
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (*Claims, error)
}

// HMACConfig configures an HMACVerifier
type HMACConfig struct {
	Secret   string
	Issuer   string
	Audience string
	Leeway   time.Duration
}

// HMACVerifier validates HS256 tokens signed with a shared secret
type HMACVerifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewHMACVerifier creates a verifier for HS256 tokens
func NewHMACVerifier(cfg HMACConfig) *HMACVerifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	return &HMACVerifier{
		secret: []byte(cfg.Secret),
		parser: jwt.NewParser(opts...),
	}
}

// Verify parses and validates the token
func (v *HMACVerifier) Verify(ctx context.Context, raw string) (*Claims, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	claims := &Claims{}
	token, err := v.parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("%w: token not valid", ErrInvalidToken)
	}

	return validateSubject(claims)
}

// OIDCConfig configures an OIDCVerifier
type OIDCConfig struct {
	IssuerURL string
	// JWKSURL skips discovery when set
	JWKSURL  string
	Audience string
}

// OIDCVerifier validates asymmetric tokens against the issuer's key set
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCVerifier creates a verifier, performing discovery unless a JWKS URL is given
func NewOIDCVerifier(ctx context.Context, cfg OIDCConfig) (*OIDCVerifier, error) {
	if cfg.IssuerURL == "" {
		return nil, errors.New("oidc issuer URL is required")
	}

	oidcConfig := &oidc.Config{
		ClientID:             cfg.Audience,
		SkipClientIDCheck:    cfg.Audience == "",
		SupportedSigningAlgs: []string{oidc.RS256, oidc.ES256},
	}

	if cfg.JWKSURL != "" {
		keySet := oidc.NewRemoteKeySet(ctx, cfg.JWKSURL)
		return &OIDCVerifier{verifier: oidc.NewVerifier(cfg.IssuerURL, keySet, oidcConfig)}, nil
	}

	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover oidc provider: %w", err)
	}

	return &OIDCVerifier{verifier: provider.Verifier(oidcConfig)}, nil
}

// NewOIDCVerifierWithKeySet is used when keys are supplied directly
func NewOIDCVerifierWithKeySet(issuer string, keySet oidc.KeySet, audience string) *OIDCVerifier {
	return &OIDCVerifier{
		verifier: oidc.NewVerifier(issuer, keySet, &oidc.Config{
			ClientID:             audience,
			SkipClientIDCheck:    audience == "",
			SupportedSigningAlgs: []string{oidc.RS256, oidc.ES256},
		}),
	}
}

// Verify validates the token signature, issuer, audience and expiry
func (v *OIDCVerifier) Verify(ctx context.Context, raw string) (*Claims, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	idToken, err := v.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims := &Claims{}
	if err := idToken.Claims(claims); err != nil {
		return nil, fmt.Errorf("%w: decode claims: %v", ErrInvalidToken, err)
	}

	return validateSubject(claims)
}

func validateSubject(claims *Claims) (*Claims, error) {
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims, nil
}

// ExtractBearer returns the token from an Authorization header value
func ExtractBearer(header string) (string, error) {
	if header == "" {
		return "", errors.New("missing authorization header")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", errors.New("invalid authorization header format")
	}
	return strings.TrimSpace(parts[1]), nil
}
