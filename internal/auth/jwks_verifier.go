package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/travelclothingclub/api/internal/config"
)

// TokenVerifier defines the interface for JWT token verification
type TokenVerifier interface {
	Validate(tokenString string) (*Claims, error)
	Close() error
}

// Claims represents a Supabase access token
type Claims struct {
	UserID string `json:"sub"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// JWKSVerifier implements TokenVerifier using the Supabase project JWKS
type JWKSVerifier struct {
	jwks     keyfunc.Keyfunc
	cancel   context.CancelFunc
	issuer   string
	audience string
}

// NewJWKSVerifier creates a JWKS-based verifier for the configured Supabase project
func NewJWKSVerifier(cfg *config.SupabaseConfig) (*JWKSVerifier, error) {
	jwksURL := cfg.JWKSEndpoint()
	if jwksURL == "" {
		return nil, fmt.Errorf("supabase url is required")
	}

	// The keyfunc refresh goroutine lives until Close.
	ctx, cancel := context.WithCancel(context.Background())

	initCtx, initCancel := context.WithTimeout(ctx, 30*time.Second)
	defer initCancel()

	jwks, err := keyfunc.NewDefaultCtx(initCtx, []string{jwksURL})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create JWKS keyfunc: %w", err)
	}

	return &JWKSVerifier{
		jwks:     jwks,
		cancel:   cancel,
		issuer:   issuerFor(cfg.URL),
		audience: "authenticated",
	}, nil
}

// Supabase signs tokens with {project}/auth/v1 as issuer
func issuerFor(projectURL string) string {
	if projectURL == "" {
		return ""
	}
	return strings.TrimRight(projectURL, "/") + "/auth/v1"
}

// Validate validates a JWT token and returns the claims
func (v *JWKSVerifier) Validate(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithExpirationRequired(),
		jwt.WithAudience(v.audience),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, v.jwks.Keyfunc, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("token has no subject")
	}

	return claims, nil
}

// Close stops the background JWKS refresh
func (v *JWKSVerifier) Close() error {
	v.cancel()
	return nil
}
