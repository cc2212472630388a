package report

import (
	"sort"
	"strings"

	"github.com/good-yellow-bee/blazereport/internal/upstream"
)

// tally counts labels and remembers the order they first appeared in.
type tally struct {
	order  []string
	counts map[string]int64
}

func newTally() *tally {
	return &tally{counts: make(map[string]int64)}
}

func (t *tally) add(label string) {
	if label == "" {
		return
	}
	if _, ok := t.counts[label]; !ok {
		t.order = append(t.order, label)
	}
	t.counts[label]++
}

func (t *tally) items() []RankedItem {
	out := make([]RankedItem, 0, len(t.order))
	for _, label := range t.order {
		out = append(out, RankedItem{Name: label, Count: t.counts[label]})
	}
	return out
}

// topN returns the n items with the highest count. The sort is stable, so
// items with equal counts keep their input order.
func topN[T any](items []T, n int, count func(T) int64) []T {
	sorted := make([]T, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return count(sorted[i]) > count(sorted[j])
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

var severityRank = map[string]int{
	upstream.SeverityCritical:      0,
	upstream.SeverityHigh:          1,
	upstream.SeverityMedium:        2,
	upstream.SeverityLow:           3,
	upstream.SeverityInformational: 4,
}

// rankOf orders severities most severe first; unknown values sort last.
func rankOf(severity string) int {
	if r, ok := severityRank[severity]; ok {
		return r
	}
	return 99
}

// bucketOS adds count to the bucket matching the raw OS label.
// The first matching rule wins.
func bucketOS(acc *EndpointsByOS, label string, count int64) {
	name := strings.ToLower(label)
	switch {
	case strings.Contains(name, "windows"):
		acc.Windows += count
	case strings.Contains(name, "mac"):
		acc.MacOS += count
	case strings.Contains(name, "linux"):
		acc.Linux += count
	case strings.Contains(name, "ios"), strings.Contains(name, "android"), strings.Contains(name, "mobile"):
		acc.Mobile += count
	default:
		acc.Other += count
	}
}
