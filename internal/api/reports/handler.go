// Package reports serves report generation over HTTP.
package reports

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/blazereport/internal/apperr"
	"github.com/good-yellow-bee/blazereport/internal/batch"
	"github.com/good-yellow-bee/blazereport/internal/report"
)

// Engine builds single reports and lists tenants.
type Engine interface {
	BuildReport(ctx context.Context, req report.Request) (*report.Record, error)
	ListTenants(ctx context.Context, credential string) (*report.TenantList, error)
}

// BulkRunner renders many tenants.
type BulkRunner interface {
	Run(ctx context.Context, req batch.Request) (*batch.Result, error)
}

// Options bounds request handling.
type Options struct {
	ReportTimeout  time.Duration
	BulkTimeout    time.Duration
	MaxBodyBytes   int64
	MaxBulkTenants int
}

// Handler handles report endpoints.
type Handler struct {
	engine Engine
	runner BulkRunner
	opts   Options
	logger *zap.Logger
	now    func() time.Time
}

// NewHandler creates a report handler.
func NewHandler(engine Engine, runner BulkRunner, opts Options, logger *zap.Logger) *Handler {
	if opts.ReportTimeout <= 0 {
		opts.ReportTimeout = 2 * time.Minute
	}
	if opts.BulkTimeout <= 0 {
		opts.BulkTimeout = 30 * time.Minute
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{engine: engine, runner: runner, opts: opts, logger: logger, now: time.Now}
}

type errorResponse struct {
	Error *apperr.Error `json:"error"`
}

type dataResponse struct {
	Data any `json:"data"`
}

func (h *Handler) jsonOK(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(dataResponse{Data: data}); err != nil {
		h.logger.Warn("json encode", zap.Error(err))
	}
}

// StatusFor maps an error kind to an HTTP status.
func StatusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindConfiguration:
		return http.StatusBadRequest
	case apperr.KindAuth:
		return http.StatusUnauthorized
	case apperr.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) jsonError(w http.ResponseWriter, r *http.Request, err error) {
	ae := apperr.From(err)
	status := StatusFor(ae.Kind)
	if status >= 500 {
		h.logger.Error("request failed", zap.String("path", r.URL.Path), zap.String("code", ae.Code), zap.Error(err))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(errorResponse{Error: ae}); err != nil {
		h.logger.Warn("json encode", zap.Error(err))
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, h.opts.MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.Configuration("Request body is too large.")
		}
		return apperr.Configuration(fmt.Sprintf("Invalid request body: %v", err))
	}
	return nil
}

// Generate builds one report record and returns it as JSON.
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	var req ReportRequest
	if err := h.decode(w, r, &req); err != nil {
		h.jsonError(w, r, err)
		return
	}
	window, err := ValidateTimeframe(req.Timeframe)
	if err != nil {
		h.jsonError(w, r, err)
		return
	}
	if err := ValidateColors(req.Colors); err != nil {
		h.jsonError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.ReportTimeout)
	defer cancel()

	rec, err := h.engine.BuildReport(ctx, report.Request{
		Credential:    credential(r, req.APIKey),
		Window:        window,
		TenantID:      req.TeamID,
		Colors:        req.Colors,
		HidePoweredBy: req.HidePoweredBy,
	})
	if err != nil {
		h.jsonError(w, r, err)
		return
	}
	h.jsonOK(w, rec)
}

// Bulk renders every requested tenant and streams back a zip archive.
// X-Batch-Failed carries the ledger size; X-Batch-Id identifies the run.
func (h *Handler) Bulk(w http.ResponseWriter, r *http.Request) {
	var req BulkRequest
	if err := h.decode(w, r, &req); err != nil {
		h.jsonError(w, r, err)
		return
	}
	window, err := ValidateTimeframe(req.Timeframe)
	if err != nil {
		h.jsonError(w, r, err)
		return
	}
	if err := ValidateColors(req.Colors); err != nil {
		h.jsonError(w, r, err)
		return
	}
	tenants, err := ValidateTenantIDs(req.TeamIDs, h.opts.MaxBulkTenants)
	if err != nil {
		h.jsonError(w, r, err)
		return
	}
	cred := credential(r, req.APIKey)
	if cred == "" {
		h.jsonError(w, r, apperr.Configuration("An API key is required."))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.BulkTimeout)
	defer cancel()

	res, err := h.runner.Run(ctx, batch.Request{
		Credential:    cred,
		TenantIDs:     tenants,
		Window:        window,
		Colors:        req.Colors,
		HidePoweredBy: req.HidePoweredBy,
	})
	if err != nil {
		h.jsonError(w, r, err)
		return
	}

	var buf bytes.Buffer
	now := h.now()
	if err := batch.WriteArchive(&buf, res.Documents, now); err != nil {
		h.jsonError(w, r, apperr.Critical(err))
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", batch.ArchiveName(now)))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("X-Batch-Id", res.ID)
	w.Header().Set("X-Batch-Failed", strconv.Itoa(len(res.Failures)))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.Warn("write archive", zap.String("batch_id", res.ID), zap.Error(err))
	}
}

// Tenants lists the tenants the credential can report on.
func (h *Handler) Tenants(w http.ResponseWriter, r *http.Request) {
	var req TenantsRequest
	if err := h.decode(w, r, &req); err != nil {
		h.jsonError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.ReportTimeout)
	defer cancel()

	list, err := h.engine.ListTenants(ctx, credential(r, req.APIKey))
	if err != nil {
		h.jsonError(w, r, err)
		return
	}
	h.jsonOK(w, list)
}
