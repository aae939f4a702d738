package domain

import (
	"context"
	"io"
)

// Session is the browser-automation capability the pipeline depends on.
// It lists the items of a source page and resolves each one to its stream URL.
type Session interface {
	// ListItems loads the source page and returns its items in page order
	ListItems(ctx context.Context, pageURL string) ([]Item, error)

	// Resolve turns an item's locator into a fetchable stream
	Resolve(ctx context.Context, item Item) (ResolvedStream, error)

	// Close releases the underlying browser resources
	Close() error
}

// SessionFactory opens a new Session
type SessionFactory func(ctx context.Context) (Session, error)

// ByteSource is a stream body with its declared length (-1 when unknown)
type ByteSource struct {
	Body  io.ReadCloser
	Total int64
}

// Fetcher retrieves the bytes of a resolved stream
type Fetcher interface {
	Fetch(ctx context.Context, stream ResolvedStream) (*ByteSource, error)
}

// StoreResult describes a completed write
type StoreResult struct {
	Path         string
	BytesWritten int64
}

// Sink persists byte streams under derived, collision-checked names
type Sink interface {
	// Begin starts a new batch and forgets the names reserved by the previous one
	Begin() error

	// Store writes src to the destination derived from item and title
	Store(ctx context.Context, src *ByteSource, item Item, title string) (StoreResult, error)
}

// ProgressEvent reports bytes received for one item.
// Percent is only meaningful when Known is true.
type ProgressEvent struct {
	RunID      string  `json:"run_id"`
	Ordinal    int     `json:"ordinal"`
	Title      string  `json:"title"`
	Downloaded int64   `json:"downloaded"`
	Total      int64   `json:"total"`
	Percent    float64 `json:"percent"`
	Known      bool    `json:"known"`
	Done       bool    `json:"done"`
}

// ProgressFunc receives progress events; it must not block
type ProgressFunc func(event ProgressEvent)
