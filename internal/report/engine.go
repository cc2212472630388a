// Package report aggregates analytics telemetry into per-tenant report records.
package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/good-yellow-bee/blazereport/internal/apperr"
	"github.com/good-yellow-bee/blazereport/internal/metrics"
	"github.com/good-yellow-bee/blazereport/internal/pool"
	"github.com/good-yellow-bee/blazereport/internal/upstream"
)

// API is the subset of the analytics client the engine needs.
type API interface {
	GetProfile(ctx context.Context) (*upstream.Team, error)
	GetStatistics(ctx context.Context, days int) (*upstream.Statistics, error)
	GetCaseSeverityCounts(ctx context.Context, days int) ([]upstream.SeverityCount, error)
	GetDurationMetric(ctx context.Context, kind upstream.MetricKind, days int) (*upstream.DurationMetric, error)
	GetCases(ctx context.Context, filter upstream.SearchFilter) (*upstream.Cases, error)
	GetDetections(ctx context.Context, filter upstream.SearchFilter) (*upstream.Detections, error)
	GetAssetsForDetection(ctx context.Context, detectionID string) (*upstream.Assets, error)
	SwitchTenant(ctx context.Context, teamID string) (string, error)
	GetPlatformLogos(ctx context.Context) (*upstream.PlatformLogos, error)
	SearchTenants(ctx context.Context, filter upstream.SearchFilter) (*upstream.TeamSearch, error)
}

// ClientFactory returns an API bound to credential.
type ClientFactory func(credential string) API

// UpstreamFactory adapts a base client into a ClientFactory.
func UpstreamFactory(base *upstream.Client) ClientFactory {
	return func(credential string) API {
		return base.WithToken(credential)
	}
}

// Config holds engine settings.
type Config struct {
	PlatformName     string
	DefaultLogo      string
	DefaultResponse  string
	AssetConcurrency int
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		PlatformName:     "Wirespeed",
		DefaultLogo:      "/wirespeed.avif",
		DefaultResponse:  "Investigated and triaged by Wirespeed MDR.",
		AssetConcurrency: 8,
	}
}

// Request identifies one report to build. It is never persisted.
type Request struct {
	Credential    string
	Window        Window
	TenantID      string // optional: build on behalf of a managed tenant
	Colors        *Colors
	HidePoweredBy bool
}

// Engine builds report records.
type Engine struct {
	cfg       Config
	newClient ClientFactory
	logger    *zap.Logger
	now       func() time.Time
}

// NewEngine creates an engine. Zero config fields take their defaults.
func NewEngine(cfg Config, factory ClientFactory, logger *zap.Logger) *Engine {
	def := DefaultConfig()
	if cfg.PlatformName == "" {
		cfg.PlatformName = def.PlatformName
	}
	if cfg.DefaultLogo == "" {
		cfg.DefaultLogo = def.DefaultLogo
	}
	if cfg.DefaultResponse == "" {
		cfg.DefaultResponse = def.DefaultResponse
	}
	if cfg.AssetConcurrency <= 0 {
		cfg.AssetConcurrency = def.AssetConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cfg:       cfg,
		newClient: factory,
		logger:    logger,
		now:       time.Now,
	}
}

// BuildReport fetches everything for one tenant and derives its record.
// Errors are *apperr.Error.
func (e *Engine) BuildReport(ctx context.Context, req Request) (rec *Record, err error) {
	start := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = string(apperr.KindOf(err))
		}
		metrics.ReportBuildsTotal.WithLabelValues(result).Inc()
		metrics.ReportBuildDuration.Observe(time.Since(start).Seconds())
	}()

	req.Credential = strings.TrimSpace(req.Credential)
	if err := e.validate(req.Credential); err != nil {
		return nil, err
	}
	if req.Window.IsZero() {
		return nil, apperr.Configuration("A report start date and end date are required.")
	}

	client := e.newClient(req.Credential)

	var branding *Branding
	switch {
	case req.TenantID != "":
		branding, client, err = e.switchTenant(ctx, client, req)
		if err != nil {
			return nil, apperr.From(err)
		}
	case req.Colors != nil || req.HidePoweredBy:
		// Own-tenant report: only the caller's overrides apply.
		branding = &Branding{
			Logo:          e.cfg.DefaultLogo,
			Colors:        req.Colors,
			Theme:         "light",
			HidePoweredBy: req.HidePoweredBy,
		}
	}

	bundle, err := e.fetch(ctx, client, req.Window)
	if err != nil {
		return nil, apperr.From(err)
	}

	rec = Derive(bundle, req.Window, DeriveOptions{
		PlatformName:    e.cfg.PlatformName,
		DefaultResponse: e.cfg.DefaultResponse,
		GeneratedAt:     e.now(),
	})
	rec.Branding = branding

	e.logger.Info("report built",
		zap.String("tenant", rec.CompanyName),
		zap.String("tenant_id", req.TenantID),
		zap.Int("days", req.Window.Days()),
		zap.Int("detections", len(bundle.Detections)),
		zap.Duration("duration", time.Since(start)))
	return rec, nil
}

func (e *Engine) validate(credential string) error {
	err := upstream.CheckCredential(credential, e.now())
	switch {
	case credential == "", errors.Is(err, upstream.ErrMissingCredential):
		return apperr.Configuration("An API key is required.")
	case err != nil:
		return apperr.From(err)
	}
	return nil
}

// switchTenant resolves branding under the caller credential and returns a
// client scoped to the managed tenant.
func (e *Engine) switchTenant(ctx context.Context, client API, req Request) (*Branding, API, error) {
	var (
		sp    *upstream.Team
		logos *upstream.PlatformLogos
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sp, err = client.GetProfile(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		logos, err = client.GetPlatformLogos(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	token, err := client.SwitchTenant(ctx, req.TenantID)
	if err != nil {
		return nil, nil, fmt.Errorf("switch tenant %s: %w", req.TenantID, err)
	}
	e.logger.Debug("switched tenant", zap.String("tenant_id", req.TenantID), zap.String("provider", sp.Name))

	b := &Branding{
		Logo:          firstNonEmpty(logos.PlatformLogo, sp.OwnLogo(), e.cfg.DefaultLogo),
		LogoLight:     logos.PlatformLogoLight,
		LogoDark:      logos.PlatformLogoDark,
		SPName:        sp.Name,
		SupportEmail:  sp.SupportEmail,
		Colors:        req.Colors,
		Theme:         "light",
		HidePoweredBy: req.HidePoweredBy,
	}
	return b, e.newClient(token), nil
}

// fetch runs the per-tenant fan-out, then the per-detection asset fan-out.
func (e *Engine) fetch(ctx context.Context, client API, w Window) (*Bundle, error) {
	days := w.Days()
	filter := upstream.CreatedSince(w.StartISO())

	b := &Bundle{Durations: make(map[upstream.MetricKind]*upstream.DurationMetric, len(upstream.MetricKinds))}
	var (
		mu         sync.Mutex
		cases      *upstream.Cases
		detections *upstream.Detections
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		b.Profile, err = client.GetProfile(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		b.Statistics, err = client.GetStatistics(gctx, days)
		return err
	})
	g.Go(func() error {
		var err error
		b.Severity, err = client.GetCaseSeverityCounts(gctx, days)
		return err
	})
	for _, kind := range upstream.MetricKinds {
		g.Go(func() error {
			m, err := client.GetDurationMetric(gctx, kind, days)
			if err != nil {
				return err
			}
			mu.Lock()
			b.Durations[kind] = m
			mu.Unlock()
			return nil
		})
	}
	g.Go(func() error {
		var err error
		cases, err = client.GetCases(gctx, filter)
		return err
	})
	g.Go(func() error {
		var err error
		detections, err = client.GetDetections(gctx, filter)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if cases != nil {
		b.Cases = cases.Data
	}
	if detections != nil {
		b.Detections = detections.Data
	}

	assets, err := pool.Map(ctx, e.cfg.AssetConcurrency, b.Detections,
		func(ctx context.Context, d upstream.Detection) (*upstream.Assets, error) {
			a, err := client.GetAssetsForDetection(ctx, d.ID)
			if err != nil {
				return nil, fmt.Errorf("assets for detection %s: %w", d.ID, err)
			}
			return a, nil
		})
	if err != nil {
		return nil, err
	}
	b.Assets = assets
	return b, nil
}

// TenantList is the result of ListTenants.
type TenantList struct {
	IsServiceProvider bool            `json:"isServiceProvider"`
	Tenants           []upstream.Team `json:"teams"`
}

// ListTenants returns the tenants the credential may report on. Callers that
// are not service providers get an empty list without a search call.
func (e *Engine) ListTenants(ctx context.Context, credential string) (*TenantList, error) {
	credential = strings.TrimSpace(credential)
	if err := e.validate(credential); err != nil {
		return nil, err
	}
	client := e.newClient(credential)

	team, err := client.GetProfile(ctx)
	if err != nil {
		return nil, apperr.From(err)
	}
	list := &TenantList{IsServiceProvider: team.ServiceProvider, Tenants: []upstream.Team{}}
	if !team.ServiceProvider {
		return list, nil
	}

	res, err := client.SearchTenants(ctx, upstream.SearchFilter{OrderBy: "name", OrderDir: "asc"})
	if err != nil {
		return nil, apperr.From(err)
	}
	if res.Data != nil {
		list.Tenants = res.Data
	}
	return list, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
