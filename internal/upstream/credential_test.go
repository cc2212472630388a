package upstream

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signed(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "team-1",
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := tok.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func TestCheckCredential(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		token       string
		wantErr     bool
		wantExpired bool
	}{
		{"opaque key", "ws_live_abcdef123456", false, false},
		{"valid jwt", signed(t, now.Add(time.Hour)), false, false},
		{"expired jwt", signed(t, now.Add(-time.Minute)), true, true},
		{"expires now", signed(t, now), true, true},
		{"dotted garbage", "a.b.c", false, false},
		{"empty", "  ", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckCredential(tt.token, now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CheckCredential() error = %v, wantErr %v", err, tt.wantErr)
			}
			var apiErr *APIError
			if got := errors.As(err, &apiErr) && apiErr.Unauthorized(); got != tt.wantExpired {
				t.Errorf("unauthorized = %v, want %v", got, tt.wantExpired)
			}
		})
	}
}

func TestCheckCredential_Missing(t *testing.T) {
	if err := CheckCredential("", time.Now()); !errors.Is(err, ErrMissingCredential) {
		t.Errorf("error = %v, want ErrMissingCredential", err)
	}
}
