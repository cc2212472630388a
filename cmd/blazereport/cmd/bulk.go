package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/blazereport/internal/batch"
	"github.com/good-yellow-bee/blazereport/internal/notifier"
)

var (
	bulkTenants      []string
	bulkAll          bool
	bulkFrom         string
	bulkTo           string
	bulkDays         int
	bulkLabel        string
	bulkOut          string
	bulkLedgerOut    string
	bulkLedgerFormat string
	bulkReadyTimeout time.Duration
	bulkSettleDelay  time.Duration
	bulkTimeout      time.Duration
	bulkPrimary      string
	bulkSecondary    string
	bulkHidePB       bool
	bulkNotifySlack  string
	bulkNotifyTeams  string
)

var bulkCmd = &cobra.Command{
	Use:   "bulk",
	Short: "Render reports for many managed tenants into one zip archive",
	Long: `Render one PDF per managed tenant and write them to a zip archive.

Tenants are processed one at a time. A tenant that fails is recorded in the
failure ledger and the run continues; the command fails only when no tenant
produced a report.

Examples:
  blazereport bulk --tenants 5f2c,9e1a --days 7
  blazereport bulk --all --out q1.zip --ledger-out q1-failures.csv
  blazereport bulk --all --timeout 20m --ledger-out run.json --ledger-format json
  blazereport bulk --all --notify-slack https://hooks.slack.com/services/T/B/x`,
	Args: cobra.NoArgs,
	RunE: runBulk,
}

func init() {
	rootCmd.AddCommand(bulkCmd)

	addWindowFlags(bulkCmd, &bulkFrom, &bulkTo, &bulkDays, &bulkLabel)
	addBrandingFlags(bulkCmd, &bulkPrimary, &bulkSecondary, &bulkHidePB)
	bulkCmd.Flags().StringSliceVar(&bulkTenants, "tenants", nil, "comma-separated tenant ids")
	bulkCmd.Flags().BoolVar(&bulkAll, "all", false, "include every managed tenant")
	bulkCmd.Flags().StringVar(&bulkOut, "out", "", "archive path (default: Reports_Bulk_<date>.zip)")
	bulkCmd.Flags().StringVar(&bulkLedgerOut, "ledger-out", "", "write the run ledger to this file")
	bulkCmd.Flags().StringVar(&bulkLedgerFormat, "ledger-format", "csv", "ledger format (csv: failures only, json: full run)")
	bulkCmd.Flags().DurationVar(&bulkReadyTimeout, "ready-timeout", 10*time.Second, "max wait for one document layout")
	bulkCmd.Flags().DurationVar(&bulkSettleDelay, "settle-delay", time.Second, "pause between layout and capture")
	bulkCmd.Flags().DurationVar(&bulkTimeout, "timeout", 0, "deadline for the whole run (0 = none)")
	bulkCmd.Flags().StringVar(&bulkNotifySlack, "notify-slack", "", "Slack webhook to announce the run on (env: BLAZEREPORT_SLACK_WEBHOOK)")
	bulkCmd.Flags().StringVar(&bulkNotifyTeams, "notify-teams", "", "Teams webhook to announce the run on (env: BLAZEREPORT_TEAMS_WEBHOOK)")
}

func runBulk(cmd *cobra.Command, args []string) error {
	if bulkAll == (len(bulkTenants) > 0) {
		return fmt.Errorf("use exactly one of --tenants or --all")
	}
	ledgerFormat, ok := batch.ParseExportFormat(bulkLedgerFormat)
	if !ok {
		return fmt.Errorf("invalid ledger format: %s (use json or csv)", bulkLedgerFormat)
	}
	window, err := resolveWindow(bulkFrom, bulkTo, bulkDays, bulkLabel, time.Now())
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
	dispatcher, err := newDispatcher(logger)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	tenants := bulkTenants
	if bulkAll {
		list, err := engine.ListTenants(ctx, key)
		if err != nil {
			return describeError(err)
		}
		if !list.IsServiceProvider {
			return fmt.Errorf("--all requires a service provider API key")
		}
		for _, t := range list.Tenants {
			tenants = append(tenants, t.ID)
		}
		PrintVerbose("Found %d managed tenants", len(tenants))
	}

	renderer := newRenderer(logger)
	runner := notifier.NewRunner(batch.NewRunner(engine, renderer, &batch.Options{
		ReadyTimeout: bulkReadyTimeout,
		SettleDelay:  bulkSettleDelay,
	}, logger), dispatcher, platformOrDefault(), 0, logger)

	runCtx := ctx
	if bulkTimeout > 0 {
		var stop context.CancelFunc
		runCtx, stop = context.WithTimeout(ctx, bulkTimeout)
		defer stop()
	}

	res, err := runner.Run(runCtx, batch.Request{
		Credential:    key,
		TenantIDs:     tenants,
		Window:        window,
		Colors:        brandColors(bulkPrimary, bulkSecondary),
		HidePoweredBy: bulkHidePB,
	})
	if err != nil {
		return describeError(err)
	}

	now := time.Now()
	path := bulkOut
	if path == "" {
		path = batch.ArchiveName(now)
	}
	if err := writeArchiveFile(path, res, now); err != nil {
		return err
	}

	if bulkLedgerOut != "" {
		if err := writeLedgerFile(bulkLedgerOut, ledgerFormat, res); err != nil {
			return err
		}
		PrintVerbose("Ledger written to %s", bulkLedgerOut)
	}

	printBulkSummary(path, res)
	return nil
}

// newDispatcher registers the webhooks given by flag or environment.
func newDispatcher(logger *zap.Logger) (*notifier.Dispatcher, error) {
	d := notifier.NewDispatcher(logger)
	slack := firstSet(bulkNotifySlack, os.Getenv("BLAZEREPORT_SLACK_WEBHOOK"))
	if slack != "" {
		n, err := notifier.NewSlackNotifier(notifier.WebhookConfig{WebhookURL: slack}, nil)
		if err != nil {
			return nil, err
		}
		d.Register(n)
	}
	teams := firstSet(bulkNotifyTeams, os.Getenv("BLAZEREPORT_TEAMS_WEBHOOK"))
	if teams != "" {
		n, err := notifier.NewTeamsNotifier(notifier.WebhookConfig{WebhookURL: teams}, nil)
		if err != nil {
			return nil, err
		}
		d.Register(n)
	}
	if d.Len() > 0 {
		PrintVerbose("Announcing the run on %d %s", d.Len(), plural(d.Len(), "channel", "channels"))
	}
	return d, nil
}

func firstSet(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func writeArchiveFile(path string, res *batch.Result, now time.Time) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	if err := batch.WriteArchive(f, res.Documents, now); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

func writeLedgerFile(path string, format batch.ExportFormat, res *batch.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create ledger: %w", err)
	}
	defer f.Close()

	exporter := batch.NewExporter(format, f)
	if format == batch.ExportJSON {
		err = exporter.ExportResult(res)
	} else {
		err = exporter.ExportFailures(res)
	}
	if err != nil {
		return fmt.Errorf("export ledger: %w", err)
	}
	return nil
}

func printBulkSummary(path string, res *batch.Result) {
	if GetOutput() == "json" {
		batch.NewExporter(batch.ExportJSON, os.Stdout).ExportResult(res)
		return
	}
	fmt.Printf("Wrote %s: %d of %d reports, %s in %v\n",
		path, len(res.Documents), res.Requested,
		humanize.Bytes(uint64(res.TotalBytes())), res.Duration.Round(time.Millisecond))
	if res.Canceled {
		fmt.Println("Run was canceled before every tenant started.")
	}
	if len(res.Failures) > 0 {
		fmt.Printf("%d %s failed:\n", len(res.Failures), plural(len(res.Failures), "tenant", "tenants"))
		for _, f := range res.Failures {
			fmt.Printf("  %s: %s\n", f.TenantID, strings.ReplaceAll(f.Message, "\n", " "))
		}
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
