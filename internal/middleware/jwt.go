package middleware

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/assignment-portal/internal/utils"
)

// Locals keys populated by JWTProtected.
const (
	LocalUserID      = "user_id"
	LocalUserRole    = "user_role"
	LocalUserName    = "user_name"
	LocalTokenID     = "token_id"
	LocalTokenExpiry = "token_expiry"
)

// RevocationChecker reports whether a token id was signed out.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// JWTProtected returns a middleware that validates JWT bearer tokens.
// A nil checker skips the sign-out check.
func JWTProtected(secret string, revocations RevocationChecker) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString, err := bearerToken(c.Get(fiber.HeaderAuthorization))
		if err != nil {
			// Browsers cannot set headers on websocket upgrades.
			tokenString = strings.TrimSpace(c.Query("access_token"))
			if tokenString == "" {
				return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
			}
		}

		token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method")
			}
			return []byte(secret), nil
		}, jwt.WithExpirationRequired())
		if err != nil || !token.Valid {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token")
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token claims")
		}

		subject, err := claims.GetSubject()
		if err != nil || strings.TrimSpace(subject) == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token subject")
		}

		tokenID := stringClaim(claims, "jti")
		if revocations != nil && tokenID != "" {
			revoked, err := revocations.IsRevoked(c.UserContext(), tokenID)
			if err != nil {
				return utils.SendError(c, fiber.StatusServiceUnavailable, "unable to verify token")
			}
			if revoked {
				return utils.SendError(c, fiber.StatusUnauthorized, "token has been revoked")
			}
		}

		c.Locals(LocalUserID, subject)
		c.Locals(LocalTokenID, tokenID)
		if role := extractUserRoleFromClaims(claims); role != "" {
			c.Locals(LocalUserRole, role)
		}
		if name := stringClaim(claims, "name"); name != "" {
			c.Locals(LocalUserName, name)
		}
		if expiry, err := claims.GetExpirationTime(); err == nil && expiry != nil {
			c.Locals(LocalTokenExpiry, expiry.Time)
		}

		return c.Next()
	}
}

func bearerToken(authorization string) (string, error) {
	if authorization == "" {
		return "", fmt.Errorf("authorization header missing")
	}

	const bearer = "Bearer "
	if len(authorization) < len(bearer) || !strings.EqualFold(authorization[:len(bearer)], bearer) {
		return "", fmt.Errorf("invalid authorization header")
	}

	token := strings.TrimSpace(authorization[len(bearer):])
	if token == "" {
		return "", fmt.Errorf("invalid token")
	}
	return token, nil
}

func stringClaim(claims jwt.MapClaims, key string) string {
	if value, ok := claims[key].(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}

func extractUserRoleFromClaims(claims jwt.MapClaims) string {
	candidates := []string{"role", "roles"}
	for _, key := range candidates {
		if value, ok := claims[key]; ok {
			if role := normalizeRole(value); role != "" {
				return role
			}
		}
	}
	return ""
}

func normalizeRole(value interface{}) string {
	switch v := value.(type) {
	case string:
		return strings.ToLower(strings.TrimSpace(v))
	case []interface{}:
		for _, item := range v {
			if str, ok := item.(string); ok {
				role := strings.ToLower(strings.TrimSpace(str))
				if role != "" {
					return role
				}
			}
		}
	}
	return ""
}

// TokenExpiry returns the expiry bound by JWTProtected, or the zero time.
func TokenExpiry(c *fiber.Ctx) time.Time {
	if value, ok := c.Locals(LocalTokenExpiry).(time.Time); ok {
		return value
	}
	return time.Time{}
}
