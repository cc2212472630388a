package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/good-yellow-bee/blazereport/internal/api"
	"github.com/good-yellow-bee/blazereport/internal/api/health"
	"github.com/good-yellow-bee/blazereport/internal/batch"
	"github.com/good-yellow-bee/blazereport/internal/logging"
	"github.com/good-yellow-bee/blazereport/internal/metrics"
	"github.com/good-yellow-bee/blazereport/internal/notifier"
	"github.com/good-yellow-bee/blazereport/internal/render"
	"github.com/good-yellow-bee/blazereport/internal/report"
	"github.com/good-yellow-bee/blazereport/internal/upstream"
	"github.com/good-yellow-bee/blazereport/pkg/config"
)

var (
	configFile string
	httpAddr   string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "blazereport-server",
	Short: "blazereport server - security report generation API",
	Long: `blazereport server aggregates tenant telemetry from the analytics API
into executive security reports, as JSON records or bulk PDF archives.`,
	SilenceUsage: true,
	RunE:         runServer,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(config.VersionString("blazereport-server"))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (optional)")
	rootCmd.PersistentFlags().StringVarP(&httpAddr, "address", "a", "", "HTTP listen address (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log every request")

	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig resolves file, .env and environment, then CLI flags.
func loadConfig() (*Config, error) {
	// A missing .env file is fine.
	_ = godotenv.Load()

	var cfg *Config
	if configFile != "" {
		var err error
		cfg, err = LoadConfig(configFile)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	} else {
		cfg = DefaultConfig()
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if httpAddr != "" {
		cfg.Server.HTTPAddress = httpAddr
	}
	cfg.Verbose = verbose

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	metrics.SetBuildInfo(config.Version, config.Commit, config.BuildTime)

	client, err := upstream.New(upstream.Config{
		BaseURL:           cfg.Upstream.BaseURL,
		Timeout:           duration(cfg.Upstream.Timeout),
		RequestsPerSecond: cfg.Upstream.RequestsPerSecond,
		Burst:             cfg.Upstream.Burst,
	}, "")
	if err != nil {
		return fmt.Errorf("create upstream client: %w", err)
	}

	engine := report.NewEngine(report.Config{
		PlatformName:     cfg.Report.PlatformName,
		DefaultLogo:      cfg.Report.DefaultLogo,
		DefaultResponse:  cfg.Report.DefaultResponse,
		AssetConcurrency: cfg.Report.AssetConcurrency,
	}, report.UpstreamFactory(client), logger.Named("report"))

	renderer := render.NewPDFRenderer(render.PDFOptions{
		PlatformName: cfg.Report.PlatformName,
		FontFile:     cfg.Report.FontFile,
		BoldFontFile: cfg.Report.BoldFontFile,
		Logger:       logger.Named("render"),
	})

	runner := batch.NewRunner(engine, renderer, &batch.Options{
		ReadyTimeout: duration(cfg.Batch.ReadyTimeout),
		SettleDelay:  duration(cfg.Batch.SettleDelay),
	}, logger.Named("batch"))

	dispatcher, err := newDispatcher(cfg.Notify, logger.Named("notify"))
	if err != nil {
		return err
	}
	platform := cfg.Report.PlatformName
	if platform == "" {
		platform = report.DefaultConfig().PlatformName
	}
	bulk := notifier.NewRunner(runner, dispatcher, platform, duration(cfg.Notify.Timeout), logger.Named("notify"))

	apiCfg := &api.Config{
		Address:         cfg.Server.HTTPAddress,
		HTTPTLSEnabled:  cfg.Server.TLS.Enabled,
		HTTPTLSCertFile: cfg.Server.TLS.CertFile,
		HTTPTLSKeyFile:  cfg.Server.TLS.KeyFile,
		RateLimitPerIP:  cfg.Server.RateLimitPerIP,
		ReportTimeout:   duration(cfg.Report.Timeout),
		BulkTimeout:     duration(cfg.Batch.Timeout),
		MaxBodyBytes:    cfg.Server.MaxBodyBytes,
		MaxBulkTenants:  cfg.Batch.MaxTenants,
		MetricsEnabled:  cfg.Metrics.Enabled && cfg.Metrics.Address == "",
		Verbose:         cfg.Verbose,
	}
	srv, err := api.New(apiCfg, engine, bulk, logger.Named("api"))
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}
	srv.RegisterHealthChecker(health.NewRendererChecker(renderer))
	srv.RegisterHealthChecker(health.NewUpstreamChecker(cfg.Upstream.BaseURL, nil))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting blazereport-server",
		zap.String("version", config.Version),
		zap.String("upstream", cfg.Upstream.BaseURL),
		zap.Int("notify_channels", dispatcher.Len()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	if cfg.Metrics.Enabled && cfg.Metrics.Address != "" {
		ms := metrics.NewServer(cfg.Metrics.Address, logger.Named("metrics"))
		g.Go(ms.Start)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return ms.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server stopped with error", zap.Error(err))
		return fmt.Errorf("run server: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// newDispatcher registers a channel for every configured webhook.
func newDispatcher(cfg NotifyConfig, logger *zap.Logger) (*notifier.Dispatcher, error) {
	d := notifier.NewDispatcher(logger)
	if cfg.SlackWebhookURL != "" {
		n, err := notifier.NewSlackNotifier(notifier.WebhookConfig{WebhookURL: cfg.SlackWebhookURL}, nil)
		if err != nil {
			return nil, err
		}
		d.Register(n)
	}
	if cfg.TeamsWebhookURL != "" {
		n, err := notifier.NewTeamsNotifier(notifier.WebhookConfig{WebhookURL: cfg.TeamsWebhookURL}, nil)
		if err != nil {
			return nil, err
		}
		d.Register(n)
	}
	return d, nil
}
