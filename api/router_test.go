package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourusername/vgrab-go/api/handlers"
	"github.com/yourusername/vgrab-go/internal/app"
	"github.com/yourusername/vgrab-go/internal/domain"
	"github.com/yourusername/vgrab-go/pkg/logger"
)

// heldRunner keeps a run going until release is closed
type heldRunner struct {
	release chan struct{}
}

func (r *heldRunner) RunPage(ctx context.Context, run *domain.BatchRun) (*domain.BatchResult, error) {
	select {
	case <-r.release:
	case <-ctx.Done():
	}
	result := &domain.BatchResult{RunID: run.ID}
	run.MarkFinished(0, result)
	return result, nil
}

func setupTestRouter(t *testing.T) (*app.BatchService, *handlers.ProgressHub, *heldRunner, http.Handler, string) {
	t.Helper()
	log := zap.NewNop()
	runner := &heldRunner{release: make(chan struct{})}
	service := app.NewBatchService(runner, nil, log, nil)
	require.NoError(t, service.Start(context.Background()))
	t.Cleanup(func() {
		select {
		case <-runner.release:
		default:
			close(runner.release)
		}
		service.Stop()
	})

	logsDir := t.TempDir()
	hub := handlers.NewProgressHub(log)
	return service, hub, runner, SetupRouter(service, hub, log, nil, logsDir), logsDir
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	_, _, _, router, _ := setupTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"accepting":true`)

	w = doJSON(t, router, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealth_NotAcceptingWhileBatchRuns(t *testing.T) {
	_, _, runner, router, _ := setupTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/batches", map[string]string{"url": "https://csst.example.com/show"})
	require.Equal(t, http.StatusAccepted, w.Code)
	var run domain.BatchRun
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &run))

	w = doJSON(t, router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"accepting":false`)
	assert.Contains(t, w.Body.String(), run.ID)

	close(runner.release)
	require.Eventually(t, func() bool {
		return strings.Contains(doJSON(t, router, http.MethodGet, "/health", nil).Body.String(), `"accepting":true`)
	}, time.Second, 10*time.Millisecond)
}

func TestSubmitBatch(t *testing.T) {
	_, _, runner, router, _ := setupTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/batches", map[string]string{"url": "csst.example.com/show"})
	require.Equal(t, http.StatusAccepted, w.Code)

	var run domain.BatchRun
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &run))
	assert.Equal(t, "https://csst.example.com/show", run.PageURL)
	assert.NotEmpty(t, run.ID)

	w = doJSON(t, router, http.MethodPost, "/api/v1/batches", map[string]string{"url": "https://csst.example.com/other"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/batches/current", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), run.ID)

	close(runner.release)
	require.Eventually(t, func() bool {
		return doJSON(t, router, http.MethodGet, "/api/v1/batches/current", nil).Code == http.StatusNotFound
	}, time.Second, 10*time.Millisecond)

	w = doJSON(t, router, http.MethodGet, "/api/v1/batches/"+run.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"empty"`)

	w = doJSON(t, router, http.MethodGet, "/api/v1/batches", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":1`)
}

func TestSubmitBatch_BadRequest(t *testing.T) {
	_, _, _, router, _ := setupTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/batches", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/v1/batches", map[string]string{"url": "ftp://example.com"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetBatch_NotFound(t *testing.T) {
	_, _, _, router, _ := setupTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/api/v1/batches/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStats(t *testing.T) {
	_, _, _, router, _ := setupTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/api/v1/stats", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"runs":0`)
}

func TestLogs(t *testing.T) {
	_, _, _, router, logsDir := setupTestRouter(t)

	ml, err := logger.NewMultiLogger(logger.MultiLoggerConfig{Level: "info", LogsDir: logsDir})
	require.NoError(t, err)
	ml.LogBatchEvent("batch_started", zap.String("page_url", "https://csst.example.com/show"))
	ml.LogBatchEvent("batch_completed", zap.Int("succeeded", 2))
	require.NoError(t, ml.Close())

	w := doJSON(t, router, http.MethodGet, "/api/v1/logs/batch?limit=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":2`)

	w = doJSON(t, router, http.MethodGet, "/api/v1/logs/batch/search?q=csst", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":1`)

	w = doJSON(t, router, http.MethodGet, "/api/v1/logs/batch/search", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/logs/download", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/logs/batch?date=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/logs/categories", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"batch"`)
	assert.Contains(t, w.Body.String(), `"error"`)
}

func TestNoRoute(t *testing.T) {
	_, _, _, router, _ := setupTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/api/v1/downloads", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProgressWebSocket(t *testing.T) {
	_, hub, _, router, _ := setupTestRouter(t)
	srv := httptest.NewServer(router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/progress/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	hub.Publish(domain.ProgressEvent{RunID: "r1", Ordinal: 2, Downloaded: 512, Total: 1024, Percent: 50, Known: true})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev domain.ProgressEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "r1", ev.RunID)
	assert.Equal(t, 2, ev.Ordinal)
	assert.Equal(t, float64(50), ev.Percent)
}
