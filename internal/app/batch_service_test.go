package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourusername/vgrab-go/internal/domain"
)

// blockingRunner finishes a run once release is closed or ctx ends
type blockingRunner struct {
	started chan string
	release chan struct{}
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{started: make(chan string, 4), release: make(chan struct{})}
}

func (b *blockingRunner) RunPage(ctx context.Context, run *domain.BatchRun) (*domain.BatchResult, error) {
	b.started <- run.ID
	select {
	case <-b.release:
	case <-ctx.Done():
		run.MarkFailed(ctx.Err())
		return nil, ctx.Err()
	}

	item := domain.Item{Locator: "https://csst.example.com/v/1", Title: "One", Ordinal: 1}
	result := &domain.BatchResult{
		RunID: run.ID,
		Outcomes: []domain.DownloadOutcome{
			domain.Succeeded(item, "https://cdn.example.com/1.mp4", "/downloads/Title One.mp4", 42),
			domain.Failed(domain.Item{Locator: "https://csst.example.com/v/2", Ordinal: 2}, domain.StageFetch,
				&domain.HTTPError{StatusCode: 403, URL: "https://cdn.example.com/2.mp4"}),
		},
	}
	run.MarkFinished(2, result)
	return result, nil
}

func waitIdle(t *testing.T, s *BatchService) {
	t.Helper()
	require.Eventually(t, func() bool { return s.Current() == nil }, time.Second, 5*time.Millisecond)
}

func TestBatchService_SubmitRunsInBackground(t *testing.T) {
	runner := newBlockingRunner()
	svc := NewBatchService(runner, nil, zap.NewNop(), nil)
	require.NoError(t, svc.Start(context.Background()))
	defer svc.Stop()

	run, err := svc.Submit("csst.example.com/show")
	require.NoError(t, err)
	assert.Equal(t, "https://csst.example.com/show", run.PageURL)
	assert.Equal(t, domain.RunRunning, run.Status)
	assert.Equal(t, run.ID, <-runner.started)

	current := svc.Current()
	require.NotNil(t, current)
	assert.Equal(t, run.ID, current.ID)

	_, err = svc.Submit("https://csst.example.com/other")
	assert.ErrorIs(t, err, ErrBatchInProgress)

	close(runner.release)
	waitIdle(t, svc)

	detail, err := svc.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunCompleted, detail.Run.Status)
	require.Len(t, detail.Outcomes, 2)
	assert.Equal(t, domain.ReasonHTTPError, detail.Outcomes[1].Reason)

	stats, err := svc.GetStats()
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Runs)
	assert.Equal(t, int64(1), stats.Succeeded)
	assert.Equal(t, int64(42), stats.Bytes)
	assert.Equal(t, int64(1), stats.Reasons[domain.ReasonHTTPError])
}

func TestBatchService_InvalidURL(t *testing.T) {
	svc := NewBatchService(newBlockingRunner(), nil, zap.NewNop(), nil)
	require.NoError(t, svc.Start(context.Background()))
	defer svc.Stop()

	_, err := svc.Submit("  ")
	assert.ErrorIs(t, err, ErrInvalidPageURL)
}

func TestBatchService_NotStarted(t *testing.T) {
	svc := NewBatchService(newBlockingRunner(), nil, zap.NewNop(), nil)

	_, err := svc.Submit("https://csst.example.com/show")
	assert.ErrorIs(t, err, ErrServiceStopped)
	assert.Error(t, svc.Stop())
}

func TestBatchService_StopCancelsRunning(t *testing.T) {
	runner := newBlockingRunner()
	svc := NewBatchService(runner, nil, zap.NewNop(), nil)
	require.NoError(t, svc.Start(context.Background()))
	assert.True(t, svc.IsRunning())

	run, err := svc.Submit("https://csst.example.com/show")
	require.NoError(t, err)
	<-runner.started

	require.NoError(t, svc.Stop())
	assert.False(t, svc.IsRunning())
	assert.Nil(t, svc.Current())

	detail, err := svc.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunFailed, detail.Run.Status)
}

func TestBatchService_ListRunsNewestFirst(t *testing.T) {
	runner := newBlockingRunner()
	close(runner.release)
	svc := NewBatchService(runner, nil, zap.NewNop(), nil)
	require.NoError(t, svc.Start(context.Background()))
	defer svc.Stop()

	var ids []string
	for i := 0; i < 3; i++ {
		run, err := svc.Submit("https://csst.example.com/show")
		require.NoError(t, err)
		ids = append(ids, run.ID)
		waitIdle(t, svc)
	}

	runs, err := svc.ListRuns(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, ids[2], runs[0].ID)
	assert.Equal(t, ids[1], runs[1].ID)
}

func TestBatchService_GetRunFromRepository(t *testing.T) {
	repo := newMemRepo()
	run := domain.NewBatchRun("https://csst.example.com/show")
	require.NoError(t, repo.CreateRun(run))
	require.NoError(t, repo.SaveOutcome(&domain.OutcomeRecord{RunID: run.ID, Ordinal: 1, Status: domain.OutcomeSuccess}))

	svc := NewBatchService(newBlockingRunner(), repo, zap.NewNop(), nil)

	detail, err := svc.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, detail.Run.ID)
	assert.Len(t, detail.Outcomes, 1)

	_, err = svc.GetRun("missing")
	assert.True(t, errors.Is(err, domain.ErrRunNotFound))
}
