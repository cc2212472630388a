package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jung-kurt/gofpdf/v2"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/blazereport/internal/format"
	"github.com/good-yellow-bee/blazereport/internal/metrics"
	"github.com/good-yellow-bee/blazereport/internal/report"
)

// Page geometry (A4 portrait, mm).
const (
	pageWidth    = 210.0
	marginX      = 15.0
	marginTop    = 20.0
	marginBottom = 20.0
	contentWidth = pageWidth - 2*marginX
)

const utf8Family = "body"

type rgb struct{ r, g, b int }

var (
	defaultPrimary   = rgb{0, 102, 204}
	defaultSecondary = rgb{108, 117, 125}
	textDark         = rgb{33, 37, 41}
	fillLight        = rgb{248, 249, 250}
)

// PDFOptions configures the PDF renderer.
//
// Without FontFile documents use the core Arial font, which only covers
// cp1252: characters outside it print as "?". Set FontFile (and optionally
// BoldFontFile) to a TrueType font to render any UTF-8 text.
type PDFOptions struct {
	PlatformName string
	FontFile     string
	BoldFontFile string
	Logger       *zap.Logger
}

// PDFRenderer lays out records as A4 PDF documents.
type PDFRenderer struct {
	opts PDFOptions
}

// NewPDFRenderer creates a PDF renderer.
func NewPDFRenderer(opts PDFOptions) *PDFRenderer {
	if opts.PlatformName == "" {
		opts.PlatformName = "Wirespeed"
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &PDFRenderer{opts: opts}
}

// Open starts a session.
func (r *PDFRenderer) Open(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &pdfSession{opts: r.opts, pages: make(map[*pdfPage]struct{})}, nil
}

type pdfSession struct {
	opts   PDFOptions
	mu     sync.Mutex
	pages  map[*pdfPage]struct{}
	closed bool
}

func (s *pdfSession) NewPage(ctx context.Context) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	p := &pdfPage{session: s, ready: make(chan struct{})}
	s.pages[p] = struct{}{}
	return p, nil
}

func (s *pdfSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	pages := make([]*pdfPage, 0, len(s.pages))
	for p := range s.pages {
		pages = append(pages, p)
	}
	s.mu.Unlock()

	for _, p := range pages {
		p.Close()
	}
	if len(pages) > 0 {
		s.opts.Logger.Warn("render session closed with open pages", zap.Int("pages", len(pages)))
	}
	return nil
}

func (s *pdfSession) release(p *pdfPage) {
	s.mu.Lock()
	delete(s.pages, p)
	s.mu.Unlock()
}

type pdfPage struct {
	session *pdfSession
	ready   chan struct{}

	mu     sync.Mutex
	loaded bool
	closed bool
	out    []byte
	err    error
}

func (p *pdfPage) Load(ctx context.Context, rec *report.Record) error {
	if rec == nil {
		return errors.New("render: nil record")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if p.loaded {
		return errors.New("render: page already loaded")
	}
	p.loaded = true

	go p.layout(rec)
	return nil
}

func (p *pdfPage) layout(rec *report.Record) {
	start := time.Now()
	var (
		out []byte
		err error
	)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("render: layout panic: %v", r)
		}
		metrics.RenderDuration.Observe(time.Since(start).Seconds())
		p.mu.Lock()
		p.out, p.err = out, err
		p.mu.Unlock()
		close(p.ready)
	}()

	out, err = newDocument(rec, p.session.opts).build()
}

func (p *pdfPage) Ready() <-chan struct{} {
	return p.ready
}

func (p *pdfPage) PDF(ctx context.Context) ([]byte, error) {
	p.mu.Lock()
	loaded, closed := p.loaded, p.closed
	p.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	if !loaded {
		return nil, errors.New("render: page not loaded")
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.ready:
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	return p.out, nil
}

func (p *pdfPage) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()
	p.session.release(p)
	return nil
}

// document lays out one record.
type document struct {
	pdf       *gofpdf.Fpdf
	font      string
	tr        func(string) string
	rec       *report.Record
	platform  string
	primary   rgb
	secondary rgb
}

func newDocument(rec *report.Record, opts PDFOptions) *document {
	pdf := gofpdf.New("P", "mm", "A4", "")
	d := &document{
		pdf:       pdf,
		font:      "Arial",
		tr:        pdf.UnicodeTranslatorFromDescriptor(""),
		rec:       rec,
		platform:  opts.PlatformName,
		primary:   defaultPrimary,
		secondary: defaultSecondary,
	}
	if opts.FontFile != "" {
		bold := opts.BoldFontFile
		if bold == "" {
			bold = opts.FontFile
		}
		// Load errors surface through pdf.Error in build.
		pdf.AddUTF8Font(utf8Family, "", opts.FontFile)
		pdf.AddUTF8Font(utf8Family, "B", bold)
		d.font = utf8Family
		d.tr = func(s string) string { return s }
	}
	if b := rec.Branding; b != nil && b.Colors != nil {
		if c, ok := parseHex(b.Colors.Primary); ok {
			d.primary = c
		}
		if c, ok := parseHex(b.Colors.Secondary); ok {
			d.secondary = c
		}
	}
	return d
}

func (d *document) build() ([]byte, error) {
	pdf := d.pdf
	pdf.SetMargins(marginX, marginTop, marginX)
	pdf.SetAutoPageBreak(true, marginBottom)
	pdf.SetTitle(d.rec.CompanyName+" Security Report", true)
	pdf.SetCreator(d.platform, true)
	pdf.AliasNbPages("{nb}")
	pdf.SetFooterFunc(d.footer)

	pdf.AddPage()
	d.header()
	d.paragraph("Executive Summary", d.rec.ExecutiveSummary)
	d.detections()
	d.verdicts()
	d.meanTimes()
	d.severity()
	d.endpointsByOS()
	d.ranked("Most Attacked Endpoints", "Endpoint", d.rec.TopEndpoints)
	d.ranked("Most Attacked Identities", "Identity", d.rec.TopIdentities)
	d.integrations()
	d.locations("Suspicious Login Locations", d.rec.SuspiciousLogins)
	d.locations("Detections by Country", d.rec.DetectionsByGeo)
	d.cases()

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("render: layout: %w", err)
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render: output: %w", err)
	}
	return buf.Bytes(), nil
}

func (d *document) text(s string) string {
	return d.tr(html.UnescapeString(s))
}

func (d *document) color(c rgb) { d.pdf.SetTextColor(c.r, c.g, c.b) }

func (d *document) footer() {
	pdf := d.pdf
	pdf.SetY(-15)
	pdf.SetFont(d.font, "", 8)
	d.color(d.secondary)
	pdf.CellFormat(contentWidth/2, 10, d.text(d.poweredBy()), "", 0, "L", false, 0, "")
	pdf.CellFormat(contentWidth/2, 10, fmt.Sprintf("Page %d of {nb}", pdf.PageNo()), "", 0, "R", false, 0, "")
}

// poweredBy is the footer attribution, empty when the caller hid it.
func (d *document) poweredBy() string {
	if b := d.rec.Branding; b != nil && b.HidePoweredBy {
		return ""
	}
	return "Powered by " + d.platform
}

func (d *document) header() {
	pdf := d.pdf
	if b := d.rec.Branding; b != nil && b.SPName != "" {
		pdf.SetFont(d.font, "", 10)
		d.color(d.secondary)
		line := "Prepared by " + b.SPName
		if b.SupportEmail != "" {
			line += " (" + b.SupportEmail + ")"
		}
		pdf.CellFormat(0, 6, d.text(line), "", 1, "R", false, 0, "")
	}

	pdf.SetFont(d.font, "B", 22)
	d.color(d.primary)
	pdf.CellFormat(0, 12, d.text(d.rec.CompanyName), "", 1, "L", false, 0, "")

	pdf.SetFont(d.font, "", 11)
	d.color(d.secondary)
	period := d.rec.ReportPeriod
	if d.rec.ReportPeriodLabel != "" && d.rec.ReportPeriodLabel != period {
		period = d.rec.ReportPeriodLabel + " | " + period
	}
	pdf.CellFormat(0, 7, d.text(period), "", 1, "L", false, 0, "")

	pdf.SetLineWidth(0.5)
	pdf.SetDrawColor(d.primary.r, d.primary.g, d.primary.b)
	pdf.Line(marginX, pdf.GetY()+2, pageWidth-marginX, pdf.GetY()+2)
	pdf.Ln(8)
}

func (d *document) section(title string) {
	pdf := d.pdf
	if pdf.GetY() > 250 {
		pdf.AddPage()
	}
	pdf.Ln(3)
	pdf.SetFont(d.font, "B", 13)
	d.color(d.primary)
	pdf.CellFormat(0, 8, d.text(title), "", 1, "L", false, 0, "")
	pdf.SetFont(d.font, "", 9)
	d.color(textDark)
}

func (d *document) paragraph(title, body string) {
	d.section(title)
	pdf := d.pdf
	pdf.SetFillColor(fillLight.r, fillLight.g, fillLight.b)
	pdf.MultiCell(0, 5, d.text(body), "", "L", true)
	pdf.Ln(2)
}

// table draws a header row and body rows with fixed column widths.
func (d *document) table(widths []float64, header []string, rows [][]string) {
	pdf := d.pdf
	pdf.SetFont(d.font, "B", 9)
	pdf.SetFillColor(d.primary.r, d.primary.g, d.primary.b)
	pdf.SetTextColor(255, 255, 255)
	for i, h := range header {
		align := "L"
		if i > 0 {
			align = "R"
		}
		pdf.CellFormat(widths[i], 7, d.text(h), "", 0, align, true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont(d.font, "", 9)
	d.color(textDark)
	for r, row := range rows {
		if r%2 == 0 {
			pdf.SetFillColor(255, 255, 255)
		} else {
			pdf.SetFillColor(fillLight.r, fillLight.g, fillLight.b)
		}
		for i, cell := range row {
			align := "L"
			if i > 0 {
				align = "R"
			}
			pdf.CellFormat(widths[i], 6, d.text(cell), "", 0, align, true, 0, "")
		}
		pdf.Ln(-1)
	}
	pdf.Ln(2)
}

func (d *document) keyValues(title string, rows [][]string) {
	d.section(title)
	d.table([]float64{contentWidth * 0.6, contentWidth * 0.4}, []string{"Metric", "Value"}, rows)
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }

func (d *document) detections() {
	det := d.rec.Detections
	d.keyValues("Detections", [][]string{
		{"Total detections", format.Count(det.Total)},
		{"Historic detections", format.Count(det.Historic)},
		{"Escalated", itoa(det.Escalated) + " (" + det.EscalatedPercent + ")"},
		{"ChatOps", itoa(det.ChatOps) + " (" + det.ChatOpsPercent + ")"},
		{"Containment", itoa(det.Containment) + " (" + det.ContainmentPercent + ")"},
		{"Automatically closed", itoa(det.AutoClosed) + " (" + det.AutoClosedPercent + ")"},
		{"Billable endpoints", format.Count(d.rec.BillableEndpoints)},
		{"Billable users", format.Count(d.rec.BillableUsers)},
	})
}

func (d *document) verdicts() {
	v := d.rec.VerdictAccuracy
	pa := d.rec.PotentialActions
	d.keyValues("Verdict Accuracy", [][]string{
		{"Verdicted malicious", itoa(v.VerdictedMalicious)},
		{"Confirmed malicious", itoa(v.ConfirmedMalicious)},
		{"True positives", itoa(v.TruePositives) + " (" + v.TruePositivesPercent + ")"},
		{"False positives", itoa(v.FalsePositives) + " (" + v.FalsePositivesPercent + ")"},
		{"Would escalate", itoa(pa.WouldEscalate)},
		{"Would use ChatOps", itoa(pa.WouldChatOps)},
		{"Would contain", itoa(pa.WouldContain)},
	})
}

func (d *document) meanTimes() {
	m := d.rec.MeanTimes
	d.keyValues("Mean Time Metrics", [][]string{
		{"Mean time to detect", m.MTTD},
		{"Mean time to verdict", m.MTTV},
		{"Mean time to respond", m.MTTR},
		{"Mean time to contain", m.MTTC},
	})
}

func (d *document) severity() {
	c := d.rec.CasesBySeverity
	d.keyValues("Cases by Severity", [][]string{
		{"Critical", itoa(c.Critical)},
		{"High", itoa(c.High)},
		{"Medium", itoa(c.Medium)},
		{"Low", itoa(c.Low)},
		{"Informational", itoa(c.Informational)},
	})
}

func (d *document) endpointsByOS() {
	e := d.rec.EndpointsByOS
	d.keyValues("Endpoints by Operating System", [][]string{
		{"Windows", itoa(e.Windows)},
		{"macOS", itoa(e.MacOS)},
		{"Linux", itoa(e.Linux)},
		{"Mobile", itoa(e.Mobile)},
		{"Other", itoa(e.Other)},
	})
}

func (d *document) ranked(title, label string, items []report.RankedItem) {
	if len(items) == 0 {
		return
	}
	d.section(title)
	rows := make([][]string, 0, len(items))
	for i, it := range items {
		rows = append(rows, []string{fmt.Sprintf("%d. %s", i+1, it.Name), itoa(it.Count)})
	}
	d.table([]float64{contentWidth * 0.75, contentWidth * 0.25}, []string{label, "Detections"}, rows)
}

func (d *document) integrations() {
	if len(d.rec.Integrations) == 0 {
		return
	}
	d.section("Events by Integration")
	rows := make([][]string, 0, len(d.rec.Integrations))
	for _, in := range d.rec.Integrations {
		rows = append(rows, []string{in.Name, in.Count, in.Processed})
	}
	d.table([]float64{contentWidth * 0.5, contentWidth * 0.25, contentWidth * 0.25}, []string{"Integration", "Events", "Processed"}, rows)
}

func (d *document) locations(title string, locs []report.CountryCount) {
	if len(locs) == 0 {
		return
	}
	d.section(title)
	rows := make([][]string, 0, len(locs))
	for _, l := range locs {
		rows = append(rows, []string{l.Country, itoa(l.Count)})
	}
	d.table([]float64{contentWidth * 0.75, contentWidth * 0.25}, []string{"Country", "Count"}, rows)
}

func (d *document) cases() {
	if len(d.rec.EscalatedCases) == 0 {
		return
	}
	d.section("Escalated Cases")
	pdf := d.pdf
	for _, c := range d.rec.EscalatedCases {
		if pdf.GetY() > 255 {
			pdf.AddPage()
		}
		pdf.SetFont(d.font, "B", 9)
		d.color(textDark)
		title := strings.TrimSpace(fmt.Sprintf("[%s] %s %s", c.Severity, c.SID, c.Title))
		pdf.MultiCell(0, 5, d.text(title), "", "L", false)

		pdf.SetFont(d.font, "", 8)
		d.color(d.secondary)
		pdf.CellFormat(0, 4, d.text(c.Status+"  "+c.CreatedAt), "", 1, "L", false, 0, "")

		pdf.SetFont(d.font, "", 9)
		d.color(textDark)
		pdf.MultiCell(0, 5, d.text(c.Response), "", "L", false)
		pdf.Ln(2)
	}
}

// parseHex reads "#rrggbb" or "#rgb".
func parseHex(s string) (rgb, bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) != 6 {
		return rgb{}, false
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return rgb{}, false
	}
	return rgb{int(v >> 16 & 0xff), int(v >> 8 & 0xff), int(v & 0xff)}, true
}
