package reports

import (
	"net/http"
	"strings"

	"github.com/good-yellow-bee/blazereport/internal/apperr"
	"github.com/good-yellow-bee/blazereport/internal/report"
)

// Timeframe is the caller's reporting window.
type Timeframe struct {
	StartDate   string `json:"startDate"`
	EndDate     string `json:"endDate"`
	PeriodLabel string `json:"periodLabel"`
}

// ReportRequest is the body of POST /reports.
type ReportRequest struct {
	APIKey        string         `json:"apiKey"`
	Timeframe     Timeframe      `json:"timeframe"`
	TeamID        string         `json:"teamId"`
	Colors        *report.Colors `json:"colors"`
	HidePoweredBy bool           `json:"hidePoweredBy"`
}

// BulkRequest is the body of POST /reports/bulk.
type BulkRequest struct {
	APIKey        string         `json:"apiKey"`
	Timeframe     Timeframe      `json:"timeframe"`
	TeamIDs       []string       `json:"teamIds"`
	Colors        *report.Colors `json:"colors"`
	HidePoweredBy bool           `json:"hidePoweredBy"`
}

// TenantsRequest is the body of POST /tenants.
type TenantsRequest struct {
	APIKey string `json:"apiKey"`
}

// credential prefers the body key, then a bearer token.
func credential(r *http.Request, bodyKey string) string {
	if k := strings.TrimSpace(bodyKey); k != "" {
		return k
	}
	auth := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// ValidateTimeframe parses the window.
func ValidateTimeframe(tf Timeframe) (report.Window, error) {
	return report.ParseWindow(tf.StartDate, tf.EndDate, tf.PeriodLabel)
}

// ValidateColors accepts empty values or hex colours.
func ValidateColors(c *report.Colors) error {
	if c == nil {
		return nil
	}
	for _, v := range []string{c.Primary, c.Secondary} {
		if v != "" && !isHexColor(v) {
			return apperr.Configuration("Colors must be hex values such as #0066cc.")
		}
	}
	return nil
}

// ValidateTenantIDs drops blanks and enforces the batch limit.
func ValidateTenantIDs(ids []string, limit int) ([]string, error) {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	if len(out) == 0 {
		return nil, apperr.Configuration("At least one tenant must be selected.")
	}
	if limit > 0 && len(out) > limit {
		return nil, apperr.Configuration("Too many tenants selected for one batch.")
	}
	return out, nil
}

func isHexColor(s string) bool {
	if !strings.HasPrefix(s, "#") || (len(s) != 4 && len(s) != 7) {
		return false
	}
	for _, r := range s[1:] {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
