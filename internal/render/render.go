// Package render turns report records into paginated documents.
package render

import (
	"context"
	"errors"

	"github.com/good-yellow-bee/blazereport/internal/report"
)

// ErrClosed is returned when a session or page is used after Close.
var ErrClosed = errors.New("render: closed")

// Renderer opens rendering sessions. One session serves a whole batch.
type Renderer interface {
	Open(ctx context.Context) (Session, error)
}

// Session hands out pages. Close releases every page still open.
type Session interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Page renders one record.
type Page interface {
	// Load starts laying out rec. It returns once layout has begun.
	Load(ctx context.Context, rec *report.Record) error
	// Ready is closed when layout has finished, successfully or not.
	Ready() <-chan struct{}
	// PDF returns the finished document.
	PDF(ctx context.Context) ([]byte, error)
	Close() error
}
