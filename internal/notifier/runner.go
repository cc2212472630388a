package notifier

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/blazereport/internal/apperr"
	"github.com/good-yellow-bee/blazereport/internal/batch"
)

// BatchRunner runs one bulk request.
type BatchRunner interface {
	Run(ctx context.Context, req batch.Request) (*batch.Result, error)
}

// Runner announces every bulk run that got past validation.
type Runner struct {
	next       BatchRunner
	dispatcher *Dispatcher
	platform   string
	timeout    time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// NewRunner wraps next. Notifications get at most timeout, detached from
// the request context so a canceled run is still reported.
func NewRunner(next BatchRunner, d *Dispatcher, platform string, timeout time.Duration, logger *zap.Logger) *Runner {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		next:       next,
		dispatcher: d,
		platform:   platform,
		timeout:    timeout,
		logger:     logger,
		now:        time.Now,
	}
}

// Run runs the request, then notifies. Notification errors are logged only.
func (r *Runner) Run(ctx context.Context, req batch.Request) (*batch.Result, error) {
	res, err := r.next.Run(ctx, req)
	if r.dispatcher == nil || r.dispatcher.Len() == 0 {
		return res, err
	}

	var s *Summary
	switch {
	case err == nil:
		s = FromResult(r.platform, res)
	case apperr.KindOf(err) == apperr.KindConfiguration:
		return res, err
	default:
		s = FromError(r.platform, len(req.TenantIDs), err, r.now())
	}

	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()
	if nerr := r.dispatcher.Dispatch(nctx, s); nerr != nil {
		r.logger.Warn("bulk run notification failed", zap.String("batch_id", s.BatchID), zap.Error(nerr))
	}
	return res, err
}
