package batch

import (
	"encoding/json"
	"time"

	"github.com/good-yellow-bee/blazereport/internal/apperr"
)

// Result contains the outcome of one bulk run.
type Result struct {
	ID        string           `json:"id"`
	StartTime time.Time        `json:"start_time"`
	EndTime   time.Time        `json:"end_time"`
	Duration  time.Duration    `json:"-"`
	Requested int              `json:"requested"`
	Documents []*Document      `json:"documents"`
	Failures  []apperr.Failure `json:"failures,omitempty"`
	Canceled  bool             `json:"canceled,omitempty"`
}

// Document is one rendered tenant report.
type Document struct {
	TenantID   string        `json:"tenant_id"`
	TenantName string        `json:"tenant_name"`
	FileName   string        `json:"file_name"`
	Size       int           `json:"size_bytes"`
	RenderTime time.Duration `json:"-"`
	Data       []byte        `json:"-"`
}

// MarshalJSON reports RenderTime in milliseconds.
func (d *Document) MarshalJSON() ([]byte, error) {
	type plain Document
	return json.Marshal(struct {
		*plain
		RenderTime int64 `json:"render_time_ms"`
	}{(*plain)(d), d.RenderTime.Milliseconds()})
}

// Partial reports whether some tenants failed.
func (r *Result) Partial() bool {
	return len(r.Failures) > 0 && len(r.Documents) > 0
}

// TotalBytes is the summed size of all documents.
func (r *Result) TotalBytes() int64 {
	var n int64
	for _, d := range r.Documents {
		n += int64(d.Size)
	}
	return n
}

// SuccessRate returns the percentage of requested tenants that produced a document.
func (r *Result) SuccessRate() float64 {
	if r.Requested == 0 {
		return 0
	}
	return float64(len(r.Documents)) / float64(r.Requested) * 100
}
