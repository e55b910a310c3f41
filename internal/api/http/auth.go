package httpapi

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenIssuer   = "ecosmart-api"
	tokenAudience = "testing"
)

// AuthConfig controls the bearer token gate.
type AuthConfig struct {
	Secret string
	// Production requires a client token; otherwise a mock token is issued
	// when the Authorization header is absent.
	Production bool
}

// UserClaims is stored in c.Locals("user") after a successful check.
type UserClaims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// NewMockToken signs a short-lived token for a test user.
func NewMockToken(secret string, now time.Time) (string, error) {
	claims := UserClaims{
		UserID: "test-user-id",
		Email:  "test@example.com",
		Role:   "user",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Audience:  jwt.ClaimStrings{tokenAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// RequireAuth returns 401 when no bearer token is present and 403 when the
// token does not verify.
func RequireAuth(cfg AuthConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if header == "" && !cfg.Production {
			mock, err := NewMockToken(cfg.Secret, time.Now())
			if err != nil {
				return fiber.NewError(fiber.StatusInternalServerError, "failed to issue development token")
			}
			header = "Bearer " + mock
		}

		token := bearerToken(header)
		if token == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "Authentication required")
		}

		claims := &UserClaims{}
		_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
			return []byte(cfg.Secret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil {
			return fiber.NewError(fiber.StatusForbidden, "Invalid or expired token")
		}

		c.Locals("user", claims)
		return c.Next()
	}
}

func bearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
