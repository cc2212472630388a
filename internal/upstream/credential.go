package upstream

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMissingCredential is returned for an empty API key.
var ErrMissingCredential = errors.New("api key is required")

// CheckCredential rejects credentials that are known to be unusable before
// any request is made. JWT-shaped keys whose exp claim is before now are
// reported as a 401 APIError. Opaque keys are passed through; the API is the
// authority on them.
func CheckCredential(token string, now time.Time) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrMissingCredential
	}
	if strings.Count(token, ".") != 2 {
		return nil
	}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil
	}
	if claims.ExpiresAt != nil && !claims.ExpiresAt.Time.After(now) {
		return &APIError{
			Status:  http.StatusUnauthorized,
			Code:    "TOKEN_EXPIRED",
			Message: "credential expired at " + claims.ExpiresAt.Time.UTC().Format(time.RFC3339),
		}
	}
	return nil
}
