package report

import (
	"strings"
	"testing"
	"time"

	"github.com/good-yellow-bee/blazereport/internal/upstream"
)

func num(v float64) upstream.Number { return upstream.NewNumber(v) }

func TestBucketOS(t *testing.T) {
	tests := []struct {
		label string
		want  EndpointsByOS
	}{
		{"Windows 11 Pro", EndpointsByOS{Windows: 1}},
		{"macOS Sonoma", EndpointsByOS{MacOS: 1}},
		{"Debian GNU/Linux", EndpointsByOS{Linux: 1}},
		{"iOS 17", EndpointsByOS{Mobile: 1}},
		{"Android 14", EndpointsByOS{Mobile: 1}},
		{"Mobile device", EndpointsByOS{Mobile: 1}},
		{"FreeBSD", EndpointsByOS{Other: 1}},
		{"", EndpointsByOS{Other: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			var got EndpointsByOS
			bucketOS(&got, tt.label, 1)
			if got != tt.want {
				t.Errorf("bucketOS(%q) = %+v, want %+v", tt.label, got, tt.want)
			}
		})
	}
}

func TestDerive_OSTotalsPreserved(t *testing.T) {
	b := &Bundle{Statistics: &upstream.Statistics{OperatingSystems: []upstream.OperatingSystemStat{
		{OperatingSystem: "Windows 10", Count: num(10)},
		{OperatingSystem: "Ubuntu Linux", Count: num(4)},
		{OperatingSystem: "iPadOS", Count: num(2)},
		{OperatingSystem: "Solaris", Count: upstream.Number{}},
		{OperatingSystem: "ChromeOS", Count: num(3)},
	}}}

	rec := Derive(b, testWindow(), DeriveOptions{})
	if got := rec.EndpointsByOS.Total(); got != 19 {
		t.Errorf("total = %d, want 19", got)
	}
	if rec.EndpointsByOS.Windows != 10 || rec.EndpointsByOS.Linux != 4 || rec.EndpointsByOS.Other != 5 {
		t.Errorf("EndpointsByOS = %+v", rec.EndpointsByOS)
	}
}

func TestTopN_Stable(t *testing.T) {
	items := []RankedItem{{"a", 1}, {"b", 3}, {"c", 1}, {"d", 3}, {"e", 2}, {"f", 1}}
	got := topN(items, 5, itemCount)

	want := []string{"b", "d", "e", "a", "c"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i, name := range want {
		if got[i].Name != name {
			t.Errorf("got[%d] = %q, want %q", i, got[i].Name, name)
		}
	}
	if items[0].Name != "a" {
		t.Error("topN must not reorder its input")
	}
}

func TestDerive_Locations(t *testing.T) {
	var logins []upstream.LocationStat
	for i := 0; i < 12; i++ {
		logins = append(logins, upstream.LocationStat{Country: string(rune('A' + i)), Count: int64(i % 3)})
	}
	rec := Derive(&Bundle{Statistics: &upstream.Statistics{SuspiciousLoginLocations: logins}}, testWindow(), DeriveOptions{})

	if len(rec.SuspiciousLogins) != 10 {
		t.Fatalf("len = %d, want 10", len(rec.SuspiciousLogins))
	}
	if rec.SuspiciousLogins[0].Country != "C" || rec.SuspiciousLogins[1].Country != "F" {
		t.Errorf("first = %+v", rec.SuspiciousLogins[:2])
	}
	for i := 1; i < len(rec.SuspiciousLogins); i++ {
		if rec.SuspiciousLogins[i].Count > rec.SuspiciousLogins[i-1].Count {
			t.Errorf("not sorted at %d", i)
		}
	}
	if rec.DetectionsByGeo == nil || len(rec.DetectionsByGeo) != 0 {
		t.Errorf("DetectionsByGeo = %v, want empty", rec.DetectionsByGeo)
	}
}

func TestDerive_EscalatedCases(t *testing.T) {
	cases := []upstream.Case{
		{ID: "1", Severity: "LOW", Title: "low"},
		{ID: "2", Severity: "CRITICAL", Title: "crit a"},
		{ID: "3", Severity: "WEIRD", Title: "unknown"},
		{ID: "4", Severity: "HIGH", Title: "high", Summary: "<p>Isolated   host</p>"},
		{ID: "5", Severity: "CRITICAL", Title: "crit b", Notes: "<script>x</script>Reset creds"},
		{ID: "6", Severity: "INFORMATIONAL", Title: "info"},
	}
	rec := Derive(&Bundle{Cases: cases}, testWindow(), DeriveOptions{DefaultResponse: "Triaged."})

	var order []string
	for _, c := range rec.EscalatedCases {
		order = append(order, c.ID)
	}
	if got := strings.Join(order, ","); got != "2,5,4,1,6,3" {
		t.Errorf("order = %s, want 2,5,4,1,6,3", got)
	}

	byID := map[string]EscalatedCase{}
	for _, c := range rec.EscalatedCases {
		byID[c.ID] = c
	}
	if byID["4"].Response != "Isolated host" {
		t.Errorf("summary response = %q", byID["4"].Response)
	}
	if byID["5"].Response != "Reset creds" {
		t.Errorf("notes response = %q", byID["5"].Response)
	}
	if byID["1"].Response != "Triaged." {
		t.Errorf("default response = %q", byID["1"].Response)
	}
}

func TestDerive_EscalatedCasesTruncated(t *testing.T) {
	cases := make([]upstream.Case, 15)
	for i := range cases {
		cases[i] = upstream.Case{ID: string(rune('a' + i)), Severity: "MEDIUM"}
	}
	rec := Derive(&Bundle{Cases: cases}, testWindow(), DeriveOptions{})
	if len(rec.EscalatedCases) != 10 {
		t.Fatalf("len = %d, want 10", len(rec.EscalatedCases))
	}
	if rec.EscalatedCases[0].ID != "a" || rec.EscalatedCases[9].ID != "j" {
		t.Error("equal severities should keep upstream order")
	}
}

func TestDerive_ZeroDenominators(t *testing.T) {
	rec := Derive(&Bundle{}, testWindow(), DeriveOptions{})

	for name, got := range map[string]string{
		"escalated":      rec.Detections.EscalatedPercent,
		"chatOps":        rec.Detections.ChatOpsPercent,
		"containment":    rec.Detections.ContainmentPercent,
		"autoClosed":     rec.Detections.AutoClosedPercent,
		"truePositives":  rec.VerdictAccuracy.TruePositivesPercent,
		"falsePositives": rec.VerdictAccuracy.FalsePositivesPercent,
	} {
		if got != "0%" {
			t.Errorf("%s = %q, want 0%%", name, got)
		}
	}
	if rec.MeanTimes.MTTR != "0ms" {
		t.Errorf("MTTR = %q, want 0ms", rec.MeanTimes.MTTR)
	}
}

func TestDerive_Integrations(t *testing.T) {
	b := &Bundle{Statistics: &upstream.Statistics{OCSFStatistics: []upstream.IntegrationStat{
		{Integration: upstream.Integration{Config: upstream.IntegrationConfig{Name: "Okta"}}, TotalEvents: num(1234567), TotalBytes: num(5 * 1024 * 1024)},
		{Integration: upstream.Integration{Config: upstream.IntegrationConfig{Name: "CrowdStrike"}}, TotalEvents: num(33), TotalBytes: upstream.Number{}},
	}}}
	rec := Derive(b, testWindow(), DeriveOptions{})

	want := IntegrationRow{Name: "Okta", Processed: "5.00 MB", Count: "1,234,567", CountValue: 1234567}
	if rec.Integrations[0] != want {
		t.Errorf("row = %+v, want %+v", rec.Integrations[0], want)
	}
	if rec.Integrations[1].Processed != "0.00 MB" {
		t.Errorf("missing bytes = %q", rec.Integrations[1].Processed)
	}
	if rec.Funnel.Total != 1234600 {
		t.Errorf("Funnel.Total = %d", rec.Funnel.Total)
	}
}

func TestDerive_ExecutiveSummary(t *testing.T) {
	b := &Bundle{Statistics: &upstream.Statistics{
		BillableEndpoints:     1,
		BillableUsers:         5,
		TotalDetections:       20,
		AutomaticallyClosed:   19,
		EscalatedDetections:   1,
		ChatOpsDetections:     2,
		ContainmentDetections: 1,
	}}
	rec := Derive(b, testWindow(), DeriveOptions{PlatformName: "Wirespeed", GeneratedAt: time.Unix(0, 0)})

	for _, want := range []string{
		"Wirespeed analyzed 0 events from 1 endpoint, 5 users",
		"Of those events, 20 triggered detections",
		"automatically resolved 19 and escalated 1 case to",
		"led to 3 response actions",
	} {
		if !strings.Contains(rec.ExecutiveSummary, want) {
			t.Errorf("summary missing %q:\n%s", want, rec.ExecutiveSummary)
		}
	}
	if strings.ContainsAny(rec.ExecutiveSummary, "<>") {
		t.Error("summary should be plain text")
	}
}
