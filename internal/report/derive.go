package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/good-yellow-bee/blazereport/internal/format"
	"github.com/good-yellow-bee/blazereport/internal/sanitize"
	"github.com/good-yellow-bee/blazereport/internal/upstream"
)

// List sizes.
const (
	topAssets    = 5
	topLocations = 10
	topCases     = 10
)

// Bundle is everything fetched for one tenant before derivation.
// Assets is parallel to Detections.
type Bundle struct {
	Profile    *upstream.Team
	Statistics *upstream.Statistics
	Severity   []upstream.SeverityCount
	Durations  map[upstream.MetricKind]*upstream.DurationMetric
	Cases      []upstream.Case
	Detections []upstream.Detection
	Assets     []*upstream.Assets
}

// DeriveOptions are the fixed strings and clock used by Derive.
type DeriveOptions struct {
	PlatformName    string
	DefaultResponse string
	GeneratedAt     time.Time
}

// Derive turns a fetched bundle into a report record. It does no I/O.
func Derive(b *Bundle, w Window, opts DeriveOptions) *Record {
	stats := b.Statistics
	if stats == nil {
		stats = &upstream.Statistics{}
	}

	var totalEvents int64
	integrations := make([]IntegrationRow, 0, len(stats.OCSFStatistics))
	for _, s := range stats.OCSFStatistics {
		events := s.TotalEvents.Int()
		bytes, _ := s.TotalBytes.Value()
		totalEvents += events
		integrations = append(integrations, IntegrationRow{
			Name:       s.Integration.Config.Name,
			Processed:  format.Megabytes(bytes),
			Count:      format.Count(events),
			CountValue: events,
		})
	}

	endpoints, identities := newTally(), newTally()
	for _, assets := range b.Assets {
		if assets == nil {
			continue
		}
		for i := range assets.Endpoints {
			endpoints.add(assets.Endpoints[i].Label())
		}
		for i := range assets.Directory {
			u := &assets.Directory[i]
			if u.InDirectory() {
				identities.add(u.Label())
			}
		}
	}

	var byOS EndpointsByOS
	for _, entry := range stats.OperatingSystems {
		bucketOS(&byOS, entry.OperatingSystem, entry.Count.Int())
	}

	responded := stats.ChatOpsDetections + stats.ContainmentDetections

	rec := &Record{
		ReportPeriodLabel: w.Label,
		ReportPeriod:      w.Period(),
		BillableUsers:     stats.BillableUsers,
		BillableEndpoints: stats.BillableEndpoints,
		Detections: Detections{
			Total:              stats.TotalDetections,
			Historic:           stats.HistoricDetections,
			Escalated:          stats.EscalatedDetections,
			EscalatedPercent:   format.Percent(stats.EscalatedDetections, stats.TotalDetections),
			ChatOps:            stats.ChatOpsDetections,
			ChatOpsPercent:     format.Percent(stats.ChatOpsDetections, stats.TotalDetections),
			Containment:        stats.ContainmentDetections,
			ContainmentPercent: format.Percent(stats.ContainmentDetections, stats.TotalDetections),
			AutoClosed:         stats.AutomaticallyClosed,
			AutoClosedPercent:  format.Percent(stats.AutomaticallyClosed, stats.TotalDetections),
		},
		VerdictAccuracy: VerdictAccuracy{
			VerdictedMalicious:    stats.VerdictedMalicious,
			ConfirmedMalicious:    stats.ConfirmedMalicious,
			TruePositives:         stats.TruePositiveDetections,
			TruePositivesPercent:  format.Percent(stats.TruePositiveDetections, stats.EscalatedDetections),
			FalsePositives:        stats.FalsePositiveDetections,
			FalsePositivesPercent: format.Percent(stats.FalsePositiveDetections, stats.EscalatedDetections),
		},
		PotentialActions: PotentialActions{
			WouldEscalate: stats.PotentialEscalatedDetections,
			WouldChatOps:  stats.PotentialChatOpsDetections,
			WouldContain:  stats.PotentialContainmentDetections,
		},
		Integrations:  integrations,
		EndpointsByOS: byOS,
		TopEndpoints:  topN(endpoints.items(), topAssets, itemCount),
		TopIdentities: topN(identities.items(), topAssets, itemCount),
		MeanTimes: MeanTimeMetrics{
			MTTR: durationText(b.Durations[upstream.MeanTimeToRespond]),
			MTTD: durationText(b.Durations[upstream.MeanTimeToDetect]),
			MTTV: durationText(b.Durations[upstream.MeanTimeToVerdict]),
			MTTC: durationText(b.Durations[upstream.MeanTimeToContain]),
		},
		Funnel: Funnel{
			Total:      totalEvents,
			Detections: stats.TotalDetections,
			Cases:      stats.EscalatedDetections,
			Responded:  responded,
		},
		CasesBySeverity:  casesBySeverity(b.Severity),
		SuspiciousLogins: topN(countries(stats.SuspiciousLoginLocations), topLocations, countryCount),
		DetectionsByGeo:  topN(countries(stats.DetectionLocations), topLocations, countryCount),
		EscalatedCases:   escalatedCases(b.Cases, opts.DefaultResponse),
		GeneratedAt:      opts.GeneratedAt.UTC().Format(time.RFC3339),
	}
	if b.Profile != nil {
		rec.CompanyName = b.Profile.Name
	}

	rec.ExecutiveSummary = executiveSummary(opts.PlatformName, totalEvents, stats, responded)
	return rec
}

func itemCount(i RankedItem) int64      { return i.Count }
func countryCount(c CountryCount) int64 { return c.Count }

func durationText(m *upstream.DurationMetric) string {
	if m == nil {
		return format.Duration(nil, format.Milliseconds)
	}
	return format.Duration(m.Average, format.Unit(m.Unit))
}

func countries(locs []upstream.LocationStat) []CountryCount {
	out := make([]CountryCount, 0, len(locs))
	for _, l := range locs {
		out = append(out, CountryCount{Country: l.Country, Count: l.Count})
	}
	return out
}

// casesBySeverity takes the first count reported for each level.
func casesBySeverity(counts []upstream.SeverityCount) CasesBySeverity {
	seen := make(map[string]int64, len(counts))
	for _, c := range counts {
		if _, ok := seen[c.Severity]; !ok {
			seen[c.Severity] = c.Count
		}
	}
	return CasesBySeverity{
		Critical:      seen[upstream.SeverityCritical],
		High:          seen[upstream.SeverityHigh],
		Medium:        seen[upstream.SeverityMedium],
		Low:           seen[upstream.SeverityLow],
		Informational: seen[upstream.SeverityInformational],
	}
}

// escalatedCases ranks cases most severe first, keeping the upstream
// (newest first) order within a severity.
func escalatedCases(cases []upstream.Case, fallback string) []EscalatedCase {
	ranked := topN(cases, topCases, func(c upstream.Case) int64 {
		return -int64(rankOf(c.Severity))
	})

	out := make([]EscalatedCase, 0, len(ranked))
	for i := range ranked {
		c := &ranked[i]
		out = append(out, EscalatedCase{
			ID:        c.ID,
			SID:       c.SID,
			Title:     sanitize.Text(c.Title),
			Severity:  c.Severity,
			Status:    c.Status,
			CreatedAt: c.CreatedAt,
			Response:  sanitize.Text(c.Response(fallback)),
		})
	}
	return out
}

func executiveSummary(platform string, totalEvents int64, s *upstream.Statistics, responded int64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "During the time frame of this report, %s analyzed %s events from %d %s, %d %s, and other sources in your environment. ",
		platform, format.Count(totalEvents),
		s.BillableEndpoints, format.Plural(s.BillableEndpoints, "endpoint"),
		s.BillableUsers, format.Plural(s.BillableUsers, "user"))
	fmt.Fprintf(&b, "Of those events, %d triggered detections through automated rules and dynamic analysis. ", s.TotalDetections)
	fmt.Fprintf(&b, "Of those detections, %s and integrated security tools automatically resolved %d and escalated %d %s to your security team. ",
		platform, s.AutomaticallyClosed, s.EscalatedDetections, format.Plural(s.EscalatedDetections, "case"))
	fmt.Fprintf(&b, "Those cases led to %d response %s taken to stop further compromise. ", responded, format.Plural(responded, "action"))
	b.WriteString("This defense strategy continues to reduce your risk, which maximizes your security and minimizes cyberattack damage to your business.")
	return b.String()
}
