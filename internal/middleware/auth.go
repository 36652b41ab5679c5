package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/travelclothingclub/api/internal/auth"
	"github.com/travelclothingclub/api/pkg/response"
)

// AuthMiddleware handles Supabase JWT authentication
type AuthMiddleware struct {
	verifier  auth.TokenVerifier
	jwtSecret string // fallback for HS256 project tokens
}

// NewAuthMiddleware creates auth middleware with JWKS verification and an
// optional HS256 fallback. Either may be empty.
func NewAuthMiddleware(verifier auth.TokenVerifier, jwtSecret string) *AuthMiddleware {
	return &AuthMiddleware{
		verifier:  verifier,
		jwtSecret: jwtSecret,
	}
}

// IsConfigured reports whether any verification method is available
func (m *AuthMiddleware) IsConfigured() bool {
	return m.verifier != nil || m.jwtSecret != ""
}

// Authenticate validates the bearer token from the Authorization header
func (m *AuthMiddleware) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return response.Unauthorized(c, "Missing authorization header")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return response.Unauthorized(c, "Invalid authorization header format")
		}

		tokenString := parts[1]

		if m.verifier != nil {
			claims, err := m.verifier.Validate(tokenString)
			if err == nil {
				setClaims(c, claims)
				return c.Next()
			}
			if m.jwtSecret == "" {
				return response.Unauthorized(c, "Invalid or expired token")
			}
		}

		if m.jwtSecret != "" {
			claims, err := auth.ValidateLegacyToken(tokenString, m.jwtSecret)
			if err != nil {
				return response.Unauthorized(c, "Invalid or expired token")
			}
			setClaims(c, claims)
			return c.Next()
		}

		return response.Unauthorized(c, "Authentication not configured")
	}
}

func setClaims(c *fiber.Ctx, claims *auth.Claims) {
	c.Locals("userId", claims.UserID)
	c.Locals("email", claims.Email)
	c.Locals("claims", claims)
}

// GetUserID extracts user ID from context
func GetUserID(c *fiber.Ctx) string {
	if userID, ok := c.Locals("userId").(string); ok {
		return userID
	}
	return ""
}

// GetUserEmail extracts user email from context
func GetUserEmail(c *fiber.Ctx) string {
	if email, ok := c.Locals("email").(string); ok {
		return email
	}
	return ""
}
