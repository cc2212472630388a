package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/blazereport/internal/apperr"
	"github.com/good-yellow-bee/blazereport/internal/report"
)

var (
	reportFrom      string
	reportTo        string
	reportDays      int
	reportLabel     string
	reportTenant    string
	reportPDF       string
	reportPrimary   string
	reportSecondary string
	reportHidePB    bool
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Build one tenant report",
	Long: `Build the executive report for your own tenant or, with --tenant, for a
managed tenant. The record is printed, or rendered to PDF with --pdf.

Examples:
  blazereport report --days 7
  blazereport report --from 2026-01-01 --to 2026-01-31 -o json
  blazereport report --tenant 5f2c --pdf acme.pdf --primary "#0a6"`,
	Args: cobra.NoArgs,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	addWindowFlags(reportCmd, &reportFrom, &reportTo, &reportDays, &reportLabel)
	addBrandingFlags(reportCmd, &reportPrimary, &reportSecondary, &reportHidePB)
	reportCmd.Flags().StringVar(&reportTenant, "tenant", "", "managed tenant id (service providers only)")
	reportCmd.Flags().StringVar(&reportPDF, "pdf", "", "render the report to this PDF file")
}

func addWindowFlags(c *cobra.Command, from, to *string, days *int, label *string) {
	c.Flags().StringVar(from, "from", "", "window start (YYYY-MM-DD or RFC3339)")
	c.Flags().StringVar(to, "to", "", "window end (YYYY-MM-DD or RFC3339, default: today)")
	c.Flags().IntVar(days, "days", 30, "window length in days ending now, when --from is not set")
	c.Flags().StringVar(label, "label", "", "period label printed on the report")
}

func addBrandingFlags(c *cobra.Command, primary, secondary *string, hide *bool) {
	c.Flags().StringVar(primary, "primary", "", "primary brand colour (#rgb or #rrggbb)")
	c.Flags().StringVar(secondary, "secondary", "", "secondary brand colour")
	c.Flags().BoolVar(hide, "hide-powered-by", false, "omit the powered-by footer")
}

func brandColors(primary, secondary string) *report.Colors {
	if primary == "" && secondary == "" {
		return nil
	}
	return &report.Colors{Primary: primary, Secondary: secondary}
}

func runReport(cmd *cobra.Command, args []string) error {
	window, err := resolveWindow(reportFrom, reportTo, reportDays, reportLabel, time.Now())
	if err != nil {
		return describeError(err)
	}
	key, err := apiKey()
	if err != nil {
		return describeError(err)
	}

	logger := newLogger()
	defer logger.Sync()

	engine, err := newEngine(logger)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	PrintVerbose("Building report for %s...", window.Label)
	rec, err := engine.BuildReport(ctx, report.Request{
		Credential:    key,
		Window:        window,
		TenantID:      reportTenant,
		Colors:        brandColors(reportPrimary, reportSecondary),
		HidePoweredBy: reportHidePB,
	})
	if err != nil {
		return describeError(err)
	}

	if reportPDF != "" {
		data, err := renderPDF(ctx, rec, logger)
		if err != nil {
			return describeError(err)
		}
		if err := os.WriteFile(reportPDF, data, 0o644); err != nil {
			return fmt.Errorf("write pdf: %w", err)
		}
		fmt.Printf("Report written to %s (%d bytes)\n", reportPDF, len(data))
		return nil
	}

	outputRecord(rec)
	return nil
}

// renderPDF renders one record through a short-lived session.
func renderPDF(ctx context.Context, rec *report.Record, logger *zap.Logger) ([]byte, error) {
	renderer := newRenderer(logger)
	sess, err := renderer.Open(ctx)
	if err != nil {
		return nil, apperr.Critical(err)
	}
	defer sess.Close()

	page, err := sess.NewPage(ctx)
	if err != nil {
		return nil, apperr.Render(err)
	}
	defer page.Close()

	if err := page.Load(ctx, rec); err != nil {
		return nil, apperr.Render(err)
	}
	select {
	case <-page.Ready():
	case <-ctx.Done():
		return nil, apperr.Render(ctx.Err())
	}
	data, err := page.PDF(ctx)
	if err != nil {
		return nil, apperr.Render(err)
	}
	return data, nil
}

func outputRecord(rec *report.Record) {
	switch GetOutput() {
	case "json":
		data, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			PrintError(fmt.Sprintf("failed to marshal JSON: %v", err), false)
			return
		}
		fmt.Println(string(data))
	case "plain":
		fmt.Println(rec.ExecutiveSummary)
	default:
		outputRecordTable(rec)
	}
}

func outputRecordTable(rec *report.Record) {
	fmt.Println()
	fmt.Printf("%s - %s\n", rec.CompanyName, rec.ReportPeriodLabel)
	fmt.Println("==========================================")
	fmt.Println(rec.ExecutiveSummary)
	fmt.Println()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "  METRIC\tVALUE\n")
	fmt.Fprintf(w, "  ------\t-----\n")
	fmt.Fprintf(w, "  Events\t%d\n", rec.Funnel.Total)
	fmt.Fprintf(w, "  Detections\t%d\n", rec.Detections.Total)
	fmt.Fprintf(w, "  Escalated\t%d (%s)\n", rec.Detections.Escalated, rec.Detections.EscalatedPercent)
	fmt.Fprintf(w, "  Auto-closed\t%d (%s)\n", rec.Detections.AutoClosed, rec.Detections.AutoClosedPercent)
	fmt.Fprintf(w, "  Responded\t%d\n", rec.Funnel.Responded)
	fmt.Fprintf(w, "  MTTD\t%s\n", rec.MeanTimes.MTTD)
	fmt.Fprintf(w, "  MTTV\t%s\n", rec.MeanTimes.MTTV)
	fmt.Fprintf(w, "  MTTR\t%s\n", rec.MeanTimes.MTTR)
	fmt.Fprintf(w, "  MTTC\t%s\n", rec.MeanTimes.MTTC)
	w.Flush()
	fmt.Println()

	if len(rec.EscalatedCases) > 0 {
		fmt.Println("Escalated Cases:")
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "  SEVERITY\tTITLE\tSTATUS\n")
		fmt.Fprintf(w, "  --------\t-----\t------\n")
		for _, c := range rec.EscalatedCases {
			fmt.Fprintf(w, "  %s\t%s\t%s\n", c.Severity, c.Title, c.Status)
		}
		w.Flush()
		fmt.Println()
	}

	if IsVerbose() && len(rec.TopEndpoints) > 0 {
		fmt.Println("Most Attacked Endpoints:")
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		for _, e := range rec.TopEndpoints {
			fmt.Fprintf(w, "  %s\t%d\n", e.Name, e.Count)
		}
		w.Flush()
		fmt.Println()
	}
}
