// Package batch renders reports for many tenants into one archive.
package batch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/blazereport/internal/apperr"
	"github.com/good-yellow-bee/blazereport/internal/metrics"
	"github.com/good-yellow-bee/blazereport/internal/render"
	"github.com/good-yellow-bee/blazereport/internal/report"
)

// Builder builds one tenant's record.
type Builder interface {
	BuildReport(ctx context.Context, req report.Request) (*report.Record, error)
}

// Options configures bulk runs.
type Options struct {
	ReadyTimeout time.Duration // max wait for a page to finish layout
	SettleDelay  time.Duration // pause between ready and capture
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() *Options {
	return &Options{
		ReadyTimeout: 10 * time.Second,
		SettleDelay:  time.Second,
	}
}

// Request describes one bulk run.
type Request struct {
	Credential    string
	TenantIDs     []string
	Window        report.Window
	Colors        *report.Colors
	HidePoweredBy bool
}

// Runner processes tenants one at a time over a shared render session.
type Runner struct {
	builder  Builder
	renderer render.Renderer
	opts     *Options
	logger   *zap.Logger
	now      func() time.Time
}

// NewRunner creates a bulk runner.
func NewRunner(builder Builder, renderer render.Renderer, opts *Options, logger *zap.Logger) *Runner {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = DefaultOptions().ReadyTimeout
	}
	if opts.SettleDelay < 0 {
		opts.SettleDelay = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		builder:  builder,
		renderer: renderer,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
}

// Run renders every requested tenant. A tenant that fails is recorded in the
// result's failure ledger and the run moves on. When no tenant produced a
// document the run fails with an aggregate error listing every failure.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	tenants := make([]string, 0, len(req.TenantIDs))
	for _, id := range req.TenantIDs {
		if id = strings.TrimSpace(id); id != "" {
			tenants = append(tenants, id)
		}
	}
	if len(tenants) == 0 {
		return nil, apperr.Configuration("At least one tenant must be selected.")
	}

	res := &Result{
		ID:        uuid.NewString(),
		StartTime: r.now(),
		Requested: len(tenants),
	}
	log := r.logger.With(zap.String("batch_id", res.ID))
	log.Info("bulk run started", zap.Int("tenants", len(tenants)), zap.Int("days", req.Window.Days()))

	sess, err := r.renderer.Open(ctx)
	if err != nil {
		metrics.BatchRunsTotal.WithLabelValues("critical").Inc()
		return nil, apperr.Critical(fmt.Errorf("open render session: %w", err))
	}
	defer func() {
		if err := sess.Close(); err != nil {
			log.Warn("close render session", zap.Error(err))
		}
	}()

	names := nameSet{}
	for i, id := range tenants {
		if err := ctx.Err(); err != nil {
			res.Canceled = true
			for _, skipped := range tenants[i:] {
				res.Failures = append(res.Failures, apperr.Failure{TenantID: skipped, Message: "not started: " + err.Error()})
				metrics.BatchTenantsTotal.WithLabelValues("skipped").Inc()
			}
			log.Warn("bulk run canceled", zap.Int("remaining", len(tenants)-i), zap.Error(err))
			break
		}

		doc, err := r.runTenant(ctx, sess, req, id)
		if err != nil {
			res.Failures = append(res.Failures, apperr.Failure{TenantID: id, Message: err.Error()})
			metrics.BatchTenantsTotal.WithLabelValues("failed").Inc()
			log.Warn("tenant failed", zap.String("tenant_id", id), zap.Error(err))
			continue
		}
		doc.FileName = names.unique(doc.FileName)
		res.Documents = append(res.Documents, doc)
		metrics.BatchTenantsTotal.WithLabelValues("ok").Inc()
		log.Debug("tenant rendered", zap.String("tenant_id", id), zap.String("file", doc.FileName), zap.Int("bytes", doc.Size))
	}

	res.EndTime = r.now()
	res.Duration = res.EndTime.Sub(res.StartTime)

	if len(res.Documents) == 0 {
		metrics.BatchRunsTotal.WithLabelValues("failed").Inc()
		log.Error("bulk run produced no documents", zap.Int("failures", len(res.Failures)))
		return nil, apperr.Aggregate(res.Failures)
	}

	outcome := "ok"
	if len(res.Failures) > 0 {
		outcome = "partial"
	}
	metrics.BatchRunsTotal.WithLabelValues(outcome).Inc()
	log.Info("bulk run finished",
		zap.Int("documents", len(res.Documents)),
		zap.Int("failures", len(res.Failures)),
		zap.Duration("duration", res.Duration))
	return res, nil
}

// runTenant builds and renders one tenant. The page is closed on every path.
func (r *Runner) runTenant(ctx context.Context, sess render.Session, req Request, tenantID string) (doc *Document, err error) {
	defer func() {
		if p := recover(); p != nil {
			doc, err = nil, apperr.Render(fmt.Errorf("panic: %v", p))
		}
	}()

	rec, err := r.builder.BuildReport(ctx, report.Request{
		Credential:    req.Credential,
		Window:        req.Window,
		TenantID:      tenantID,
		Colors:        req.Colors,
		HidePoweredBy: req.HidePoweredBy,
	})
	if err != nil {
		return nil, err
	}

	start := time.Now()
	page, err := sess.NewPage(ctx)
	if err != nil {
		return nil, apperr.Render(fmt.Errorf("new page: %w", err))
	}
	defer page.Close()

	if err := page.Load(ctx, rec); err != nil {
		return nil, apperr.Render(fmt.Errorf("load: %w", err))
	}

	timer := time.NewTimer(r.opts.ReadyTimeout)
	defer timer.Stop()
	select {
	case <-page.Ready():
	case <-timer.C:
		return nil, apperr.Render(fmt.Errorf("page not ready after %s", r.opts.ReadyTimeout))
	case <-ctx.Done():
		return nil, apperr.Render(ctx.Err())
	}

	if r.opts.SettleDelay > 0 {
		settle := time.NewTimer(r.opts.SettleDelay)
		defer settle.Stop()
		select {
		case <-settle.C:
		case <-ctx.Done():
			return nil, apperr.Render(ctx.Err())
		}
	}

	data, err := page.PDF(ctx)
	if err != nil {
		return nil, apperr.Render(fmt.Errorf("capture: %w", err))
	}

	name := rec.CompanyName
	if name == "" {
		name = tenantID
	}
	return &Document{
		TenantID:   tenantID,
		TenantName: rec.CompanyName,
		FileName:   DocumentName(name, r.now()),
		Size:       len(data),
		RenderTime: time.Since(start),
		Data:       data,
	}, nil
}
