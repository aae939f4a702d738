package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/vgrab-go/internal/domain"
)

// ErrStalled is returned by a body that received no data within the stall timeout
var ErrStalled = errors.New("stream stalled")

// HTTPFetcher retrieves stream bodies with the headers the origin expects
type HTTPFetcher struct {
	client *http.Client
	config *domain.DownloadConfig
	logger *zap.Logger
}

// NewHTTPFetcher creates a fetcher whose header wait is bounded by config.HeaderTimeout
func NewHTTPFetcher(config *domain.DownloadConfig, logger *zap.Logger) *HTTPFetcher {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = config.HeaderTimeout

	return &HTTPFetcher{
		// no overall timeout: large bodies are bounded by the stall timeout instead
		client: &http.Client{Transport: transport},
		config: config,
		logger: logger,
	}
}

// Fetch issues the GET for a resolved stream and returns its body.
// The caller owns the returned body and must close it.
func (f *HTTPFetcher) Fetch(ctx context.Context, stream domain.ResolvedStream) (*domain.ByteSource, error) {
	if strings.TrimSpace(stream.RefererURL) == "" {
		return nil, domain.ErrMissingReferer
	}

	reqCtx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, stream.StreamURL, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidStream, err)
	}

	req.Header.Set("Referer", stream.RefererURL)
	if origin := domain.OriginOf(stream.RefererURL); origin != "" {
		req.Header.Set("Origin", origin)
	}
	if f.config.UserAgent != "" {
		req.Header.Set("User-Agent", f.config.UserAgent)
	}
	req.Header.Set("Accept", "*/*")

	f.logger.Info("Fetching stream",
		zap.Int("ordinal", stream.Item.Ordinal),
		zap.String("stream_url", stream.StreamURL),
		zap.String("referer", stream.RefererURL))

	resp, err := f.client.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("request %s: %w", stream.StreamURL, err)
	}

	f.logger.Info("Stream responded",
		zap.Int("ordinal", stream.Item.Ordinal),
		zap.Int("status", resp.StatusCode),
		zap.Int64("content_length", resp.ContentLength))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		cancel()
		return nil, &domain.HTTPError{StatusCode: resp.StatusCode, URL: stream.StreamURL}
	}

	if resp.ContentLength == 0 {
		resp.Body.Close()
		cancel()
		return nil, domain.ErrEmptyBody
	}

	return &domain.ByteSource{
		Body:  newStallReader(resp.Body, f.config.StallTimeout, cancel),
		Total: resp.ContentLength,
	}, nil
}

// stallReader cancels the request when no bytes arrive for timeout
type stallReader struct {
	body    io.ReadCloser
	timeout time.Duration
	timer   *time.Timer
	cancel  context.CancelFunc
	stalled atomic.Bool
}

func newStallReader(body io.ReadCloser, timeout time.Duration, cancel context.CancelFunc) *stallReader {
	s := &stallReader{body: body, timeout: timeout, cancel: cancel}
	s.timer = time.AfterFunc(timeout, func() {
		s.stalled.Store(true)
		cancel()
	})
	return s
}

func (s *stallReader) Read(p []byte) (int, error) {
	n, err := s.body.Read(p)
	if n > 0 && !s.stalled.Load() {
		s.timer.Reset(s.timeout)
	}
	if err != nil && err != io.EOF && s.stalled.Load() {
		// report the stall itself rather than the cancellation it caused
		return n, fmt.Errorf("%w: no data for %s", ErrStalled, s.timeout)
	}
	return n, err
}

func (s *stallReader) Close() error {
	s.timer.Stop()
	err := s.body.Close()
	s.cancel()
	return err
}
