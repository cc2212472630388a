package batch

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"

	"github.com/dustin/go-humanize"

	"github.com/good-yellow-bee/blazereport/internal/apperr"
)

// ExportFormat defines the output format for run ledgers.
type ExportFormat string

const (
	ExportJSON ExportFormat = "json"
	ExportCSV  ExportFormat = "csv"
)

// ParseExportFormat parses a string to ExportFormat.
func ParseExportFormat(s string) (ExportFormat, bool) {
	switch s {
	case "json":
		return ExportJSON, true
	case "csv":
		return ExportCSV, true
	default:
		return "", false
	}
}

// Exporter writes a run's ledger in a chosen format.
type Exporter struct {
	format ExportFormat
	writer io.Writer
}

// NewExporter creates an exporter for the given format.
func NewExporter(format ExportFormat, w io.Writer) *Exporter {
	return &Exporter{
		format: format,
		writer: w,
	}
}

// ExportResult writes the run summary, its documents and its failures.
func (e *Exporter) ExportResult(res *Result) error {
	switch e.format {
	case ExportCSV:
		return e.exportResultCSV(res)
	default:
		return e.exportResultJSON(res)
	}
}

type resultJSON struct {
	*Result
	DurationMs  int64   `json:"duration_ms"`
	TotalBytes  string  `json:"total_size"`
	SuccessRate float64 `json:"success_rate"`
}

func (e *Exporter) exportResultJSON(res *Result) error {
	encoder := json.NewEncoder(e.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(resultJSON{
		Result:      res,
		DurationMs:  res.Duration.Milliseconds(),
		TotalBytes:  humanize.Bytes(uint64(res.TotalBytes())),
		SuccessRate: res.SuccessRate(),
	})
}

func (e *Exporter) exportResultCSV(res *Result) error {
	w := csv.NewWriter(e.writer)
	defer w.Flush()

	w.Write([]string{"# Summary"})
	w.Write([]string{"batch_id", res.ID})
	w.Write([]string{"requested", strconv.Itoa(res.Requested)})
	w.Write([]string{"documents", strconv.Itoa(len(res.Documents))})
	w.Write([]string{"failures", strconv.Itoa(len(res.Failures))})
	w.Write([]string{"canceled", strconv.FormatBool(res.Canceled)})
	w.Write([]string{"duration_ms", strconv.FormatInt(res.Duration.Milliseconds(), 10)})
	w.Write([]string{})

	w.Write([]string{"# Documents"})
	w.Write([]string{"tenant_id", "tenant_name", "file_name", "size_bytes", "render_time_ms"})
	for _, d := range res.Documents {
		w.Write([]string{
			d.TenantID,
			d.TenantName,
			d.FileName,
			strconv.Itoa(d.Size),
			strconv.FormatInt(d.RenderTime.Milliseconds(), 10),
		})
	}
	w.Write([]string{})

	w.Write([]string{"# Failures"})
	writeFailureRows(w, res)
	return w.Error()
}

// ExportFailures writes only the failure ledger as tenant_id,message rows.
func (e *Exporter) ExportFailures(res *Result) error {
	if e.format == ExportJSON {
		encoder := json.NewEncoder(e.writer)
		encoder.SetIndent("", "  ")
		failures := res.Failures
		if failures == nil {
			failures = []apperr.Failure{}
		}
		return encoder.Encode(failures)
	}
	w := csv.NewWriter(e.writer)
	writeFailureRows(w, res)
	w.Flush()
	return w.Error()
}

func writeFailureRows(w *csv.Writer, res *Result) {
	w.Write([]string{"tenant_id", "message"})
	for _, f := range res.Failures {
		w.Write([]string{f.TenantID, f.Message})
	}
}
