// Package apperr defines the error taxonomy surfaced by report generation.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind classifies an error for callers.
type Kind string

const (
	KindConfiguration Kind = "configuration"
	KindAuth          Kind = "auth"
	KindUpstream      Kind = "upstream"
	KindRender        Kind = "render"
	KindAggregate     Kind = "aggregate"
	KindCritical      Kind = "critical"
)

// Error codes
const (
	CodeInvalidRequest  = "INVALID_REQUEST"
	CodeAuthFailed      = "AUTH_FAILED"
	CodeConnectionError = "CONNECTION_ERROR"
	CodeRenderFailed    = "RENDER_FAILED"
	CodeBulkFailed      = "BULK_GEN_FAILED"
	CodeBulkCritical    = "BULK_GEN_CRITICAL_ERROR"
)

// Error is a classified error carrying everything a caller surface needs to
// build the {message, code, details, timestamp, retryable} response.
type Error struct {
	Kind      Kind      `json:"-"`
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Retryable bool      `json:"retryable"`
	Err       error     `json:"-"`
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Details)
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// now is replaced in tests.
var now = func() time.Time { return time.Now().UTC() }

// Configuration reports missing or invalid caller input.
func Configuration(message string) *Error {
	return &Error{
		Kind:      KindConfiguration,
		Code:      CodeInvalidRequest,
		Message:   message,
		Timestamp: now(),
	}
}

// Auth reports a credential the upstream API rejected.
func Auth(err error) *Error {
	return &Error{
		Kind:      KindAuth,
		Code:      CodeAuthFailed,
		Message:   "The API key provided is invalid or has expired.",
		Details:   detail(err),
		Timestamp: now(),
		Err:       err,
	}
}

// Upstream reports any other failed upstream call.
func Upstream(err error) *Error {
	return &Error{
		Kind:      KindUpstream,
		Code:      CodeConnectionError,
		Message:   "We encountered an issue connecting to the analytics API.",
		Details:   detail(err),
		Timestamp: now(),
		Retryable: true,
		Err:       err,
	}
}

// Render reports a document generation failure for one tenant.
func Render(err error) *Error {
	return &Error{
		Kind:      KindRender,
		Code:      CodeRenderFailed,
		Message:   "Report document generation failed.",
		Details:   detail(err),
		Timestamp: now(),
		Retryable: true,
		Err:       err,
	}
}

// Critical reports a batch-level failure that happened outside the tenant loop.
func Critical(err error) *Error {
	return &Error{
		Kind:      KindCritical,
		Code:      CodeBulkCritical,
		Message:   "An unexpected error occurred during batch generation.",
		Details:   detail(err),
		Timestamp: now(),
		Retryable: true,
		Err:       err,
	}
}

// Failure is one entry of a batch error ledger.
type Failure struct {
	TenantID string `json:"tenantId"`
	Message  string `json:"message"`
}

// Aggregate reports that every tenant in a batch failed.
// Details lists "tenant: message" lines in ledger order.
func Aggregate(failures []Failure) *Error {
	lines := make([]string, 0, len(failures))
	for _, f := range failures {
		lines = append(lines, f.TenantID+": "+f.Message)
	}
	return &Error{
		Kind:      KindAggregate,
		Code:      CodeBulkFailed,
		Message:   "Batch generation failed for all selected clients.",
		Details:   strings.Join(lines, "\n"),
		Timestamp: now(),
		Retryable: true,
	}
}

// unauthorized is implemented by transport errors that can tell a rejected
// credential apart from other failures.
type unauthorized interface {
	Unauthorized() bool
}

// From classifies err. Errors already classified are returned as is,
// credential rejections become Auth and everything else Upstream.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	var u unauthorized
	if errors.As(err, &u) && u.Unauthorized() {
		return Auth(err)
	}
	return Upstream(err)
}

// KindOf returns the Kind of err, or "" when err is not classified.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

// IsCanceled reports whether err stems from context cancellation or deadline.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func detail(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
