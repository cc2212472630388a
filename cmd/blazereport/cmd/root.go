// Package cmd contains the CLI commands for blazereport.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/blazereport/internal/apperr"
	"github.com/good-yellow-bee/blazereport/internal/logging"
	"github.com/good-yellow-bee/blazereport/internal/render"
	"github.com/good-yellow-bee/blazereport/internal/report"
	"github.com/good-yellow-bee/blazereport/internal/upstream"
)

const apiKeyEnv = "BLAZEREPORT_API_KEY"

var (
	verbose      bool
	output       string
	apiKeyFlag   string
	baseURL      string
	platformName string
	fontFile     string
)

var rootCmd = &cobra.Command{
	Use:   "blazereport",
	Short: "blazereport - executive security reports from the analytics API",
	Long: `blazereport builds executive security reports for one tenant or a
whole portfolio of managed tenants.

The API key is read from --api-key, then BLAZEREPORT_API_KEY (a .env file in
the working directory is honoured), then an interactive prompt.

Examples:
  # Last 30 days for your own tenant, as a table
  blazereport report

  # A fixed window rendered to PDF
  blazereport report --from 2026-01-01 --to 2026-01-31 --pdf january.pdf

  # Every managed tenant into one archive, keeping a failure ledger
  blazereport bulk --all --ledger-out failures.csv

  # List managed tenants
  blazereport tenants -o json`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// A missing .env file is fine.
		_ = godotenv.Load()
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "output format (table, json, plain)")
	rootCmd.PersistentFlags().StringVar(&apiKeyFlag, "api-key", "", "analytics API key (default: $"+apiKeyEnv+")")
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "analytics API base URL (default: $BLAZEREPORT_UPSTREAM_URL or "+upstream.DefaultBaseURL+")")
	rootCmd.PersistentFlags().StringVar(&platformName, "platform-name", "", "platform name used in report text")
	rootCmd.PersistentFlags().StringVar(&fontFile, "font-file", "", "TrueType font for non-Latin text in PDFs (env: BLAZEREPORT_FONT_FILE)")
}

// IsVerbose returns whether verbose mode is enabled.
func IsVerbose() bool {
	return verbose
}

// GetOutput returns the output format.
func GetOutput() string {
	return output
}

// PrintError prints an error message and exits if fatal is true.
func PrintError(msg string, fatal bool) {
	fmt.Fprintln(os.Stderr, "Error:", msg)
	if fatal {
		os.Exit(1)
	}
}

// PrintVerbose prints a message only if verbose mode is enabled.
func PrintVerbose(format string, args ...any) {
	if verbose {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}

// resolveAPIKey returns the first non-empty key from the flag, the
// environment and the prompt.
func resolveAPIKey(flag string, getenv func(string) string, prompt func(string) (string, error)) (string, error) {
	if k := strings.TrimSpace(flag); k != "" {
		return k, nil
	}
	if k := strings.TrimSpace(getenv(apiKeyEnv)); k != "" {
		return k, nil
	}
	k, err := prompt("API key: ")
	if err != nil {
		return "", fmt.Errorf("read api key: %w", err)
	}
	if k = strings.TrimSpace(k); k == "" {
		return "", apperr.Configuration("An API key is required.")
	}
	return k, nil
}

func apiKey() (string, error) {
	return resolveAPIKey(apiKeyFlag, os.Getenv, promptSecret)
}

// newLogger logs warnings to stderr, or everything with --verbose.
func newLogger() *zap.Logger {
	cfg := logging.DefaultConfig()
	cfg.Format = "console"
	cfg.Level = "warn"
	if verbose {
		cfg.Level = "debug"
	}
	logger, err := logging.New(cfg)
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func newEngine(logger *zap.Logger) (*report.Engine, error) {
	cfg := upstream.DefaultConfig()
	switch {
	case baseURL != "":
		cfg.BaseURL = baseURL
	case os.Getenv("BLAZEREPORT_UPSTREAM_URL") != "":
		cfg.BaseURL = os.Getenv("BLAZEREPORT_UPSTREAM_URL")
	}
	client, err := upstream.New(cfg, "")
	if err != nil {
		return nil, err
	}
	return report.NewEngine(report.Config{PlatformName: platformName}, report.UpstreamFactory(client), logger), nil
}

// newRenderer builds the PDF renderer from the global flags.
func newRenderer(logger *zap.Logger) *render.PDFRenderer {
	font := fontFile
	if font == "" {
		font = os.Getenv("BLAZEREPORT_FONT_FILE")
	}
	return render.NewPDFRenderer(render.PDFOptions{PlatformName: platformName, FontFile: font, Logger: logger})
}

// platformOrDefault is the --platform-name value or the engine default.
func platformOrDefault() string {
	if platformName != "" {
		return platformName
	}
	return report.DefaultConfig().PlatformName
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// resolveWindow builds the reporting window from --from/--to or --days.
func resolveWindow(from, to string, days int, label string, now time.Time) (report.Window, error) {
	if from == "" && to == "" {
		w := report.LastDays(days, now)
		if label != "" {
			w.Label = label
		}
		return w, nil
	}
	if to == "" {
		to = now.UTC().Format("2006-01-02")
	}
	return report.ParseWindow(from, to, label)
}

// describeError renders classified errors with their details.
func describeError(err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		msg := fmt.Sprintf("%s [%s]", ae.Message, ae.Code)
		if ae.Details != "" {
			msg += "\n  " + strings.ReplaceAll(ae.Details, "\n", "\n  ")
		}
		if ae.Retryable {
			msg += "\n  (retryable)"
		}
		return errors.New(msg)
	}
	return err
}
