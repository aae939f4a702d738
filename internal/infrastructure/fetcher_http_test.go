package infrastructure

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourusername/vgrab-go/internal/domain"
)

func testDownloadConfig() *domain.DownloadConfig {
	c := domain.DefaultConfig().Download
	c.HeaderTimeout = 2 * time.Second
	c.StallTimeout = 2 * time.Second
	return &c
}

func resolvedFor(t *testing.T, streamURL string) domain.ResolvedStream {
	t.Helper()
	item := domain.Item{Locator: "https://csst.example/embed/1", Ordinal: 1}
	stream, err := domain.NewResolvedStream(item, streamURL, item.Locator, "Episode 1")
	require.NoError(t, err)
	return stream
}

func TestHTTPFetcher_SendsRefererAndOrigin(t *testing.T) {
	var got http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Write([]byte("video-bytes"))
	}))
	defer server.Close()

	config := testDownloadConfig()
	fetcher := NewHTTPFetcher(config, zap.NewNop())

	src, err := fetcher.Fetch(context.Background(), resolvedFor(t, server.URL+"/v.mp4"))
	require.NoError(t, err)
	defer src.Body.Close()

	body, err := io.ReadAll(src.Body)
	require.NoError(t, err)
	assert.Equal(t, "video-bytes", string(body))
	assert.Equal(t, int64(len("video-bytes")), src.Total)

	assert.Equal(t, "https://csst.example/embed/1", got.Get("Referer"))
	assert.Equal(t, "https://csst.example", got.Get("Origin"))
	assert.Equal(t, config.UserAgent, got.Get("User-Agent"))
}

func TestHTTPFetcher_MissingReferer(t *testing.T) {
	fetcher := NewHTTPFetcher(testDownloadConfig(), zap.NewNop())
	stream := domain.ResolvedStream{StreamURL: "https://cdn.example/v.mp4"}

	_, err := fetcher.Fetch(context.Background(), stream)
	assert.ErrorIs(t, err, domain.ErrMissingReferer)
}

func TestHTTPFetcher_NonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	fetcher := NewHTTPFetcher(testDownloadConfig(), zap.NewNop())
	_, err := fetcher.Fetch(context.Background(), resolvedFor(t, server.URL))

	var httpErr *domain.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusForbidden, httpErr.StatusCode)
	assert.Equal(t, domain.ReasonHTTPError, domain.ClassifyError(domain.StageFetch, err))
}

func TestHTTPFetcher_DeclaredEmptyBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "0")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	fetcher := NewHTTPFetcher(testDownloadConfig(), zap.NewNop())
	_, err := fetcher.Fetch(context.Background(), resolvedFor(t, server.URL))
	assert.ErrorIs(t, err, domain.ErrEmptyBody)
}

func TestHTTPFetcher_UnknownLength(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("part-1 "))
		w.(http.Flusher).Flush()
		w.Write([]byte("part-2"))
	}))
	defer server.Close()

	fetcher := NewHTTPFetcher(testDownloadConfig(), zap.NewNop())
	src, err := fetcher.Fetch(context.Background(), resolvedFor(t, server.URL))
	require.NoError(t, err)
	defer src.Body.Close()

	assert.Equal(t, int64(-1), src.Total)
	body, err := io.ReadAll(src.Body)
	require.NoError(t, err)
	assert.Equal(t, "part-1 part-2", string(body))
}

func TestHTTPFetcher_StalledBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000")
		w.Write([]byte("first chunk"))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer server.Close()

	config := testDownloadConfig()
	config.StallTimeout = 100 * time.Millisecond
	fetcher := NewHTTPFetcher(config, zap.NewNop())

	src, err := fetcher.Fetch(context.Background(), resolvedFor(t, server.URL))
	require.NoError(t, err)
	defer src.Body.Close()

	_, err = io.ReadAll(src.Body)
	assert.ErrorIs(t, err, ErrStalled)
}

func TestHTTPFetcher_HeaderTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	config := testDownloadConfig()
	config.HeaderTimeout = 100 * time.Millisecond
	fetcher := NewHTTPFetcher(config, zap.NewNop())

	start := time.Now()
	_, err := fetcher.Fetch(context.Background(), resolvedFor(t, server.URL))
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, domain.ReasonFetchError, domain.ClassifyError(domain.StageFetch, err))
}

func TestHTTPFetcher_Cancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	fetcher := NewHTTPFetcher(testDownloadConfig(), zap.NewNop())
	_, err := fetcher.Fetch(ctx, resolvedFor(t, server.URL))
	assert.ErrorIs(t, err, context.Canceled)
}
