package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/totem/internal/domain"
)

// KioskAuth checks the device API key against its configured SHA-256 hash.
// An empty hash disables authentication, for development kiosks.
//
// Browsers cannot set headers on websocket upgrades, so the key is also
// accepted as the "token" query parameter.
func KioskAuth(keyHash string) fiber.Handler {
	want := strings.ToLower(strings.TrimSpace(keyHash))

	return func(c *fiber.Ctx) error {
		if want == "" {
			return c.Next()
		}

		apiKey := extractBearerToken(c)
		if apiKey == "" {
			apiKey = c.Query("token")
		}
		if apiKey == "" {
			return domain.ErrUnauthorized
		}

		got := HashAPIKey(apiKey)
		if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			return domain.ErrUnauthorized
		}

		return c.Next()
	}
}

// extractBearerToken extracts token from Authorization header
func extractBearerToken(c *fiber.Ctx) string {
	auth := c.Get("Authorization")
	if auth == "" {
		return ""
	}

	// Expected format: "Bearer <token>"
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}

// HashAPIKey generates SHA-256 hash of API Key
func HashAPIKey(apiKey string) string {
	hash := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(hash[:])
}
