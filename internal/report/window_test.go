package report

import (
	"testing"
	"time"

	"github.com/good-yellow-bee/blazereport/internal/apperr"
)

func TestParseWindow(t *testing.T) {
	tests := []struct {
		name      string
		start     string
		end       string
		wantDays  int
		wantStart string
	}{
		{"month", "2024-01-01", "2024-01-31", 30, "2024-01-01T00:00:00.000Z"},
		{"same day", "2024-03-05", "2024-03-05", 1, "2024-03-05T00:00:00.000Z"},
		{"partial day rounds up", "2024-03-05T00:00:00Z", "2024-03-06T01:00:00Z", 2, "2024-03-05T00:00:00.000Z"},
		{"reversed", "2024-01-31", "2024-01-01", 30, "2024-01-31T00:00:00.000Z"},
		{"offset converted to UTC", "2024-03-05T02:00:00+02:00", "2024-03-12T02:00:00+02:00", 7, "2024-03-05T00:00:00.000Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := ParseWindow(tt.start, tt.end, "")
			if err != nil {
				t.Fatalf("ParseWindow() error = %v", err)
			}
			if got := w.Days(); got != tt.wantDays {
				t.Errorf("Days() = %d, want %d", got, tt.wantDays)
			}
			if got := w.StartISO(); got != tt.wantStart {
				t.Errorf("StartISO() = %q, want %q", got, tt.wantStart)
			}
			if w.Label != w.Period() {
				t.Errorf("Label = %q, want default %q", w.Label, w.Period())
			}
		})
	}
}

func TestParseWindow_Invalid(t *testing.T) {
	for _, tc := range [][2]string{{"", "2024-01-01"}, {"2024-01-01", ""}, {"yesterday", "2024-01-01"}} {
		_, err := ParseWindow(tc[0], tc[1], "")
		if apperr.KindOf(err) != apperr.KindConfiguration {
			t.Errorf("ParseWindow(%q, %q) error = %v, want configuration error", tc[0], tc[1], err)
		}
	}
}

func TestLastDays(t *testing.T) {
	end := time.Date(2024, 5, 31, 12, 0, 0, 0, time.UTC)
	w := LastDays(14, end)
	if w.Days() != 14 || w.Period() != "Last 14 Days" || w.Label != "Last 14 Days" {
		t.Errorf("LastDays(14) = %+v", w)
	}
	if LastDays(0, end).Days() != 1 {
		t.Error("LastDays(0) should clamp to one day")
	}
}
