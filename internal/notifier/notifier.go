// Package notifier announces finished bulk runs on chat webhooks.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/blazereport/internal/apperr"
	"github.com/good-yellow-bee/blazereport/internal/batch"
	"github.com/good-yellow-bee/blazereport/internal/metrics"
)

// Notifier is a single notification channel.
type Notifier interface {
	// Name returns the channel name (e.g., "slack", "teams").
	Name() string
	// Send delivers a run summary.
	Send(ctx context.Context, s *Summary) error
}

// Status is the overall outcome of a run.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusPartial   Status = "partial"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// Summary is what a notification says about one bulk run.
type Summary struct {
	Platform   string
	BatchID    string
	Status     Status
	Requested  int
	Documents  int
	TotalBytes int64
	Duration   time.Duration
	Failures   []apperr.Failure
	Error      string // set when the run produced nothing
	FinishedAt time.Time
}

// FromResult summarizes a completed run.
func FromResult(platform string, res *batch.Result) *Summary {
	s := &Summary{
		Platform:   platform,
		BatchID:    res.ID,
		Status:     StatusSucceeded,
		Requested:  res.Requested,
		Documents:  len(res.Documents),
		TotalBytes: res.TotalBytes(),
		Duration:   res.Duration,
		Failures:   res.Failures,
		FinishedAt: res.EndTime,
	}
	switch {
	case res.Canceled:
		s.Status = StatusCanceled
	case len(res.Failures) > 0:
		s.Status = StatusPartial
	}
	return s
}

// FromError summarizes a run that returned no result.
func FromError(platform string, requested int, err error, at time.Time) *Summary {
	ae := apperr.From(err)
	return &Summary{
		Platform:   platform,
		Status:     StatusFailed,
		Requested:  requested,
		Error:      ae.Message,
		FinishedAt: at,
	}
}

// Headline is the one-line title used by every channel.
func (s *Summary) Headline() string {
	switch s.Status {
	case StatusSucceeded:
		return fmt.Sprintf("%s bulk reports ready: %d of %d", s.Platform, s.Documents, s.Requested)
	case StatusPartial:
		return fmt.Sprintf("%s bulk reports partially ready: %d of %d", s.Platform, s.Documents, s.Requested)
	case StatusCanceled:
		return fmt.Sprintf("%s bulk run canceled after %d of %d", s.Platform, s.Documents, s.Requested)
	default:
		return fmt.Sprintf("%s bulk run failed for %d %s", s.Platform, s.Requested, plural(s.Requested, "tenant"))
	}
}

// Dispatcher fans a summary out to every registered channel.
type Dispatcher struct {
	mu        sync.RWMutex
	notifiers map[string]Notifier
	logger    *zap.Logger
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		notifiers: make(map[string]Notifier),
		logger:    logger,
	}
}

// Register adds a channel, replacing any channel with the same name.
func (d *Dispatcher) Register(n Notifier) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notifiers[n.Name()] = n
}

// Len returns the number of registered channels.
func (d *Dispatcher) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.notifiers)
}

// Dispatch sends s to every channel. One failing channel does not stop the others.
func (d *Dispatcher) Dispatch(ctx context.Context, s *Summary) error {
	d.mu.RLock()
	names := make([]string, 0, len(d.notifiers))
	for name := range d.notifiers {
		names = append(names, name)
	}
	d.mu.RUnlock()
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		d.mu.RLock()
		n := d.notifiers[name]
		d.mu.RUnlock()

		if err := n.Send(ctx, s); err != nil {
			metrics.NotificationsTotal.WithLabelValues(name, "error").Inc()
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		metrics.NotificationsTotal.WithLabelValues(name, "ok").Inc()
		d.logger.Debug("notification sent", zap.String("channel", name), zap.String("batch_id", s.BatchID))
	}
	return errors.Join(errs...)
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
