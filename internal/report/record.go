package report

// Record is the normalized, render-ready report for one tenant.
// Field names follow the document templates.
type Record struct {
	CompanyName       string    `json:"companyName"`
	ReportPeriodLabel string    `json:"reportPeriodLabel"`
	ReportPeriod      string    `json:"reportPeriod"`
	Branding          *Branding `json:"branding,omitempty"`
	ExecutiveSummary  string    `json:"executiveSummary"`
	BillableUsers     int64     `json:"billableUsers"`
	BillableEndpoints int64     `json:"billableEndpoints"`

	Detections       Detections       `json:"detections"`
	VerdictAccuracy  VerdictAccuracy  `json:"verdictAccuracy"`
	PotentialActions PotentialActions `json:"potentialActions"`
	Integrations     []IntegrationRow `json:"eventsByIntegration"`
	EndpointsByOS    EndpointsByOS    `json:"endpointsByOS"`
	TopEndpoints     []RankedItem     `json:"mostAttackedEndpoints"`
	TopIdentities    []RankedItem     `json:"mostAttackedIdentities"`
	MeanTimes        MeanTimeMetrics  `json:"meanTimeMetrics"`
	Funnel           Funnel           `json:"funnelData"`
	CasesBySeverity  CasesBySeverity  `json:"casesBySeverity"`
	SuspiciousLogins []CountryCount   `json:"suspiciousLoginLocations"`
	DetectionsByGeo  []CountryCount   `json:"detectionsByCountry"`
	EscalatedCases   []EscalatedCase  `json:"escalatedCases"`
	GeneratedAt      string           `json:"generatedAt"`
}

// Colors are caller-supplied brand colours as hex strings.
type Colors struct {
	Primary   string `json:"primary,omitempty"`
	Secondary string `json:"secondary,omitempty"`
}

// Branding is set when a report is generated on behalf of a managed tenant
// or when the caller overrides colours or attribution.
type Branding struct {
	Logo          string  `json:"logo"`
	LogoLight     string  `json:"logoLight,omitempty"`
	LogoDark      string  `json:"logoDark,omitempty"`
	SPName        string  `json:"spName,omitempty"`
	SupportEmail  string  `json:"supportEmail,omitempty"`
	Colors        *Colors `json:"colors,omitempty"`
	Theme         string  `json:"theme"`
	HidePoweredBy bool    `json:"hidePoweredBy,omitempty"`
}

type Detections struct {
	Total              int64  `json:"total"`
	Historic           int64  `json:"historic"`
	Escalated          int64  `json:"escalated"`
	EscalatedPercent   string `json:"escalatedPercent"`
	ChatOps            int64  `json:"chatOps"`
	ChatOpsPercent     string `json:"chatOpsPercent"`
	Containment        int64  `json:"containment"`
	ContainmentPercent string `json:"containmentPercent"`
	AutoClosed         int64  `json:"autoClosed"`
	AutoClosedPercent  string `json:"autoClosedPercent"`
}

type VerdictAccuracy struct {
	VerdictedMalicious    int64  `json:"verdictedMalicious"`
	ConfirmedMalicious    int64  `json:"confirmedMalicious"`
	TruePositives         int64  `json:"truePositives"`
	TruePositivesPercent  string `json:"truePositivesPercent"`
	FalsePositives        int64  `json:"falsePositives"`
	FalsePositivesPercent string `json:"falsePositivesPercent"`
}

type PotentialActions struct {
	WouldEscalate int64 `json:"wouldEscalate"`
	WouldChatOps  int64 `json:"wouldChatOps"`
	WouldContain  int64 `json:"wouldContain"`
}

// IntegrationRow is the event volume of one integration.
type IntegrationRow struct {
	Name       string `json:"name"`
	Processed  string `json:"processed"`
	Count      string `json:"count"`
	CountValue int64  `json:"countValue"`
}

type EndpointsByOS struct {
	Windows int64 `json:"windows"`
	MacOS   int64 `json:"macos"`
	Linux   int64 `json:"linux"`
	Mobile  int64 `json:"mobile"`
	Other   int64 `json:"other"`
}

// Total is the sum of all buckets.
func (e EndpointsByOS) Total() int64 {
	return e.Windows + e.MacOS + e.Linux + e.Mobile + e.Other
}

// RankedItem is a label with its occurrence count.
type RankedItem struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

type MeanTimeMetrics struct {
	MTTR string `json:"mttr"`
	MTTD string `json:"mttd"`
	MTTV string `json:"mttv"`
	MTTC string `json:"mttc"`
}

type Funnel struct {
	Total      int64 `json:"total"`
	Detections int64 `json:"detections"`
	Cases      int64 `json:"cases"`
	Responded  int64 `json:"responded"`
}

type CasesBySeverity struct {
	Critical      int64 `json:"critical"`
	High          int64 `json:"high"`
	Medium        int64 `json:"medium"`
	Low           int64 `json:"low"`
	Informational int64 `json:"informational"`
}

type CountryCount struct {
	Country string `json:"country"`
	Count   int64  `json:"count"`
}

// EscalatedCase is a case row with sanitized text.
type EscalatedCase struct {
	ID        string `json:"id"`
	SID       string `json:"sid"`
	Title     string `json:"title"`
	Severity  string `json:"severity"`
	Status    string `json:"status"`
	CreatedAt string `json:"createdAt"`
	Response  string `json:"response"`
}
