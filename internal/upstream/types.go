package upstream

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Number is a numeric payload field that the API sometimes sends as a JSON
// string. Null, missing and unparseable values are not Valid.
type Number struct {
	Float float64
	Valid bool
}

// NewNumber returns a valid Number.
func NewNumber(v float64) Number {
	return Number{Float: v, Valid: true}
}

// UnmarshalJSON accepts numbers, numeric strings and null.
func (n *Number) UnmarshalJSON(data []byte) error {
	*n = Number{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	s := string(data)
	if data[0] == '"' {
		unquoted, err := strconv.Unquote(s)
		if err != nil {
			return nil
		}
		s = strings.TrimSpace(unquoted)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	*n = Number{Float: f, Valid: true}
	return nil
}

// MarshalJSON writes null for invalid numbers.
func (n Number) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Float)
}

// Value returns the number and whether it is present.
func (n Number) Value() (float64, bool) {
	return n.Float, n.Valid
}

// Int returns the value truncated to int64, or 0 when absent.
func (n Number) Int() int64 {
	if !n.Valid {
		return 0
	}
	return int64(n.Float)
}

// Team is a tenant profile.
type Team struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	ServiceProvider   bool   `json:"serviceProvider,omitempty"`
	ParentTeamID      string `json:"parentTeamId,omitempty"`
	ParentTeamName    string `json:"parentTeamName,omitempty"`
	SupportEmail      string `json:"supportEmail,omitempty"`
	Logo              string `json:"logo,omitempty"`
	LogoURL           string `json:"logoUrl,omitempty"`
	BillableUsers     int64  `json:"billableUsers"`
	BillableEndpoints int64  `json:"billableEndpoints"`
	Demo              bool   `json:"demo,omitempty"`
	CreatedAt         string `json:"createdAt,omitempty"`
}

// OwnLogo returns the tenant's own logo: the legacy logo field, then logoUrl.
func (t *Team) OwnLogo() string {
	if t.Logo != "" {
		return t.Logo
	}
	return t.LogoURL
}

// TeamSearch is a page of tenants managed by a service provider.
type TeamSearch struct {
	Data       []Team `json:"data"`
	TotalCount int64  `json:"totalCount"`
}

// PlatformLogos holds platform-level branding assets. Empty fields are absent.
type PlatformLogos struct {
	PlatformLogo      string `json:"platformLogo"`
	PlatformLogoLight string `json:"platformLogoLight"`
	PlatformLogoDark  string `json:"platformLogoDark"`
}

// SwitchResult carries a tenant-scoped credential.
type SwitchResult struct {
	AccessToken string `json:"accessToken"`
}

// OperatingSystemStat is one raw OS label with its endpoint count.
type OperatingSystemStat struct {
	OperatingSystem string `json:"operatingSystem"`
	Count           Number `json:"count"`
}

// LocationStat is a geo-located count.
type LocationStat struct {
	Country string `json:"country"`
	Count   int64  `json:"count"`
}

// IntegrationConfig describes an integration's metadata.
type IntegrationConfig struct {
	Name string `json:"name"`
	Slug string `json:"slug,omitempty"`
}

// Integration is the integration an OCSF statistic belongs to.
type Integration struct {
	ID       string            `json:"id"`
	Platform string            `json:"platform"`
	Enabled  bool              `json:"enabled"`
	Config   IntegrationConfig `json:"config"`
}

// IntegrationStat is the per-integration event and byte volume.
type IntegrationStat struct {
	Integration Integration `json:"integration"`
	TotalEvents Number      `json:"totalEvents"`
	TotalBytes  Number      `json:"totalBytes"`
}

// Statistics are the aggregate counters for a tenant over a day window.
type Statistics struct {
	EscalatedDetections            int64                 `json:"escalatedDetections"`
	TotalDetections                int64                 `json:"totalDetections"`
	ChatOpsDetections              int64                 `json:"chatOpsDetections"`
	ContainmentDetections          int64                 `json:"containmentDetections"`
	PotentialChatOpsDetections     int64                 `json:"potentialChatOpsDetections"`
	PotentialContainmentDetections int64                 `json:"potentialContainmentDetections"`
	PotentialEscalatedDetections   int64                 `json:"potentialEscalatedDetections"`
	AutomaticallyClosed            int64                 `json:"automaticallyClosed"`
	ConfirmedMalicious             int64                 `json:"confirmedMalicious"`
	VerdictedMalicious             int64                 `json:"verdictedMalicious"`
	TruePositiveDetections         int64                 `json:"truePositiveDetections"`
	HistoricDetections             int64                 `json:"historicDetections"`
	FalsePositiveDetections        int64                 `json:"falsePositiveDetections"`
	BillableUsers                  int64                 `json:"billableUsers"`
	BillableEndpoints              int64                 `json:"billableEndpoints"`
	OperatingSystems               []OperatingSystemStat `json:"operatingSystems"`
	DetectionLocations             []LocationStat        `json:"detectionLocations"`
	SuspiciousLoginLocations       []LocationStat        `json:"suspiciousLoginLocations"`
	OCSFStatistics                 []IntegrationStat     `json:"ocsfStatistics"`
}

// Severity levels used by cases and detections.
const (
	SeverityCritical      = "CRITICAL"
	SeverityHigh          = "HIGH"
	SeverityMedium        = "MEDIUM"
	SeverityLow           = "LOW"
	SeverityInformational = "INFORMATIONAL"
)

// SeverityCount is a case count for one severity.
type SeverityCount struct {
	Severity   string  `json:"severity"`
	Count      int64   `json:"count"`
	Percentage float64 `json:"percentage"`
}

// MetricKind names one of the mean-time duration metrics.
type MetricKind string

const (
	MeanTimeToRespond MetricKind = "mttr"
	MeanTimeToDetect  MetricKind = "mttd"
	MeanTimeToVerdict MetricKind = "mttv"
	MeanTimeToContain MetricKind = "mttc"
)

// MetricKinds lists every duration metric in report order.
var MetricKinds = []MetricKind{MeanTimeToRespond, MeanTimeToDetect, MeanTimeToVerdict, MeanTimeToContain}

// DurationMetric is an average duration with its unit ("seconds" or "milliseconds").
type DurationMetric struct {
	Average Number  `json:"average"`
	Unit    string  `json:"unit"`
	Change  float64 `json:"change"`
}

// DateFilter bounds a createdAt search. Values are ISO-8601 timestamps.
type DateFilter struct {
	GT  string `json:"gt,omitempty"`
	GTE string `json:"gte,omitempty"`
	LT  string `json:"lt,omitempty"`
	LTE string `json:"lte,omitempty"`
}

// SearchFilter is the body of case, detection and tenant searches.
type SearchFilter struct {
	Size      int         `json:"size,omitempty"`
	Page      int         `json:"page,omitempty"`
	Search    string      `json:"search,omitempty"`
	OrderBy   string      `json:"orderBy,omitempty"`
	OrderDir  string      `json:"orderDir,omitempty"`
	CreatedAt *DateFilter `json:"createdAt,omitempty"`
}

// CreatedSince returns a newest-first filter for records created at or after iso.
func CreatedSince(iso string) SearchFilter {
	return SearchFilter{
		OrderBy:   "createdAt",
		OrderDir:  "desc",
		CreatedAt: &DateFilter{GTE: iso},
	}
}

// Case is an escalated incident.
type Case struct {
	ID        string `json:"id"`
	SID       string `json:"sid"`
	TeamID    string `json:"teamId"`
	Status    string `json:"status"`
	Severity  string `json:"severity"`
	Verdict   string `json:"verdict,omitempty"`
	Title     string `json:"title"`
	Summary   string `json:"summary,omitempty"`
	Notes     string `json:"notes,omitempty"`
	CreatedAt string `json:"createdAt"`
	ClosedAt  string `json:"closedAt,omitempty"`
	Contained bool   `json:"contained"`
}

// Response returns the case's response narrative: summary, then notes,
// then fallback.
func (c *Case) Response(fallback string) string {
	if c.Summary != "" {
		return c.Summary
	}
	if c.Notes != "" {
		return c.Notes
	}
	return fallback
}

// Cases is one page of case search results.
type Cases struct {
	Data       []Case `json:"data"`
	TotalCount int64  `json:"totalCount"`
}

// Detection is a single detection.
type Detection struct {
	ID                  string `json:"id"`
	SID                 string `json:"sid"`
	TeamID              string `json:"teamId"`
	Title               string `json:"title"`
	Status              string `json:"status"`
	Severity            string `json:"severity"`
	Verdict             string `json:"verdict,omitempty"`
	Category            string `json:"category,omitempty"`
	IntegrationPlatform string `json:"integrationPlatform,omitempty"`
	CreatedAt           string `json:"createdAt"`
	WasEscalated        bool   `json:"wasEscalated"`
	Contained           bool   `json:"contained"`
}

// Detections is one page of detection search results.
type Detections struct {
	Data       []Detection `json:"data"`
	TotalCount int64       `json:"totalCount"`
}

// Endpoint is a device touched by a detection.
type Endpoint struct {
	ID              string `json:"id"`
	DisplayName     string `json:"displayName"`
	Name            string `json:"name,omitempty"`
	OperatingSystem string `json:"operatingSystem,omitempty"`
	Server          bool   `json:"server"`
	Mobile          bool   `json:"mobile"`
}

// Label is the display name, falling back to the device name.
func (e *Endpoint) Label() string {
	if e.DisplayName != "" {
		return e.DisplayName
	}
	return e.Name
}

// DirectoryUser is an identity touched by a detection.
type DirectoryUser struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email,omitempty"`
	DirectoryID string `json:"directoryId,omitempty"`
	Username    string `json:"username,omitempty"`
	VIP         bool   `json:"vip,omitempty"`
}

// Label is the display name, falling back to the email address.
func (u *DirectoryUser) Label() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Email
}

// InDirectory reports whether the user carries a directory membership reference.
func (u *DirectoryUser) InDirectory() bool {
	return u.DirectoryID != ""
}

// Assets are the entities associated with one detection.
type Assets struct {
	Endpoints []Endpoint      `json:"endpoints"`
	Directory []DirectoryUser `json:"directory"`
}
