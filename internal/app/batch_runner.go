package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/yourusername/vgrab-go/internal/domain"
	"github.com/yourusername/vgrab-go/internal/infrastructure"
	"github.com/yourusername/vgrab-go/pkg/logger"
)

// BatchRunner drives one page through list, filter, window and the
// per-item resolve -> fetch -> store pipeline. Items are processed strictly
// one after another and a failed item never stops the batch.
type BatchRunner struct {
	factory     domain.SessionFactory
	fetcher     domain.Fetcher
	sink        domain.Sink
	repo        domain.HistoryRepository
	notifier    *infrastructure.NotificationService
	config      *domain.Config
	logger      *zap.Logger
	multiLogger *logger.MultiLogger
	progress    domain.ProgressFunc
}

// NewBatchRunner creates a new batch runner. repo, notifier and multiLogger may be nil.
func NewBatchRunner(
	factory domain.SessionFactory,
	fetcher domain.Fetcher,
	sink domain.Sink,
	repo domain.HistoryRepository,
	notifier *infrastructure.NotificationService,
	config *domain.Config,
	log *zap.Logger,
	multiLogger *logger.MultiLogger,
) *BatchRunner {
	return &BatchRunner{
		factory:     factory,
		fetcher:     fetcher,
		sink:        sink,
		repo:        repo,
		notifier:    notifier,
		config:      config,
		logger:      log,
		multiLogger: multiLogger,
	}
}

// OnProgress registers the observer that receives byte progress for every item
func (r *BatchRunner) OnProgress(fn domain.ProgressFunc) {
	r.progress = fn
}

// RunPage lists the items of run.PageURL and downloads the selected ones.
// An error is returned only when no item could be attempted: the page URL is
// invalid, no browser session could be opened, or the page failed to load.
func (r *BatchRunner) RunPage(ctx context.Context, run *domain.BatchRun) (*domain.BatchResult, error) {
	pageURL, err := domain.NormalizePageURL(run.PageURL)
	if err != nil {
		return nil, r.abort(run, err)
	}
	run.PageURL = pageURL

	if r.repo != nil {
		if err := r.repo.CreateRun(run); err != nil {
			r.logger.Warn("Failed to record run", zap.String("run_id", run.ID), zap.Error(err))
		}
	}

	pool, err := NewSessionPool(ctx, r.factory, r.config.Browser.PoolSize)
	if err != nil {
		return nil, r.abort(run, err)
	}
	defer func() {
		if err := pool.Close(); err != nil {
			r.logger.Warn("Failed to close browser session", zap.Error(err))
		}
	}()

	lease, err := pool.Acquire(ctx)
	if err != nil {
		return nil, r.abort(run, err)
	}
	items, err := lease.ListItems(ctx, pageURL)
	lease.Release()
	if err != nil {
		if ctx.Err() == nil && !errors.Is(err, domain.ErrPageLoad) {
			err = fmt.Errorf("%w: %w", domain.ErrPageLoad, err)
		}
		return nil, r.abort(run, err)
	}

	return r.Run(ctx, pool, run, items), nil
}

// Run processes an already listed page. The result has exactly one outcome
// per windowed item, in page order; prefix-filtered and out-of-window items
// are reported separately.
func (r *BatchRunner) Run(ctx context.Context, pool *SessionPool, run *domain.BatchRun, items []domain.Item) *domain.BatchResult {
	result := &domain.BatchResult{RunID: run.ID}
	batch := r.config.Batch

	kept, filtered := domain.FilterByPrefix(items, batch.Player)
	result.Filtered = filtered
	for _, it := range filtered {
		r.event("item_filtered",
			zap.String("run_id", run.ID),
			zap.Int("ordinal", it.Ordinal),
			zap.String("locator", it.Locator),
			zap.String("required_prefix", batch.Player))
	}

	selected, outside := domain.SelectWindow(kept, batch.From, batch.To)
	result.OutOfWindow = outside

	r.event("batch_started",
		zap.String("run_id", run.ID),
		zap.String("page_url", run.PageURL),
		zap.Int("discovered", len(items)),
		zap.Int("filtered", len(filtered)),
		zap.Int("selected", len(selected)),
		zap.Int("from", batch.From),
		zap.Int("to", batch.To))

	if len(selected) == 0 {
		r.logger.Info("No videos found",
			zap.String("page_url", run.PageURL),
			zap.Int("discovered", len(items)),
			zap.Int("filtered", len(filtered)))
		r.finish(run, len(items), result)
		return result
	}

	r.logger.Info("Starting batch",
		zap.String("run_id", run.ID),
		zap.Int("selected", len(selected)),
		zap.Int("filtered", len(filtered)),
		zap.Int("out_of_window", len(outside)))
	r.notifier.NotifyBatchStarted(run.PageURL, len(selected))

	sinkErr := r.sink.Begin()

	for _, item := range selected {
		var outcome domain.DownloadOutcome
		switch {
		case ctx.Err() != nil:
			outcome = domain.Failed(item, domain.StageResolve, cancellation(ctx))
		case sinkErr != nil:
			outcome = domain.Failed(item, domain.StageStore, sinkErr)
		default:
			outcome = r.processItem(ctx, pool, run.ID, item)
		}

		result.Outcomes = append(result.Outcomes, outcome)
		r.record(run.ID, outcome)
	}

	r.finish(run, len(items), result)
	return result
}

// processItem runs one item through resolve, fetch and store.
// The session lease is held until the item is stored.
func (r *BatchRunner) processItem(ctx context.Context, pool *SessionPool, runID string, item domain.Item) domain.DownloadOutcome {
	lease, err := pool.Acquire(ctx)
	if err != nil {
		return domain.Failed(item, domain.StageResolve, cancellation(ctx))
	}
	defer lease.Release()

	stream, err := lease.Resolve(ctx, item)
	if err != nil {
		return domain.Failed(item, domain.StageResolve, orCancelled(ctx, err))
	}

	title := stream.DisplayTitle()
	titled := item
	titled.Title = title

	r.event("item_resolved",
		zap.String("run_id", runID),
		zap.Int("ordinal", item.Ordinal),
		zap.String("stream_url", stream.StreamURL),
		zap.String("referer", stream.RefererURL),
		zap.String("title", title))

	src, err := r.fetcher.Fetch(ctx, stream)
	if err != nil {
		outcome := domain.Failed(titled, domain.StageFetch, orCancelled(ctx, err))
		outcome.StreamURL = stream.StreamURL
		return outcome
	}

	src = infrastructure.TrackProgress(src,
		domain.ProgressEvent{RunID: runID, Ordinal: item.Ordinal, Title: title},
		r.config.Download.ProgressInterval,
		r.progress)

	stored, err := r.sink.Store(ctx, src, item, title)
	if err != nil {
		outcome := domain.Failed(titled, domain.StageStore, orCancelled(ctx, err))
		outcome.StreamURL = stream.StreamURL
		return outcome
	}

	return domain.Succeeded(titled, stream.StreamURL, stored.Path, stored.BytesWritten)
}

// record logs, persists and notifies one outcome
func (r *BatchRunner) record(runID string, outcome domain.DownloadOutcome) {
	fields := []zap.Field{
		zap.String("run_id", runID),
		zap.Int("ordinal", outcome.Item.Ordinal),
		zap.String("title", outcome.Item.Title),
		zap.String("locator", outcome.Item.Locator),
	}
	if outcome.StreamURL != "" {
		fields = append(fields, zap.String("stream_url", outcome.StreamURL))
	}

	if outcome.IsSuccess() {
		fields = append(fields,
			zap.String("path", outcome.DestinationPath),
			zap.Int64("bytes", outcome.BytesWritten))
		r.logger.Info("Download completed", fields...)
		r.event("item_completed", fields...)
	} else {
		fields = append(fields,
			zap.String("reason", string(outcome.Reason)),
			zap.String("error", outcome.Error))
		r.logger.Error("Download failed", fields...)
		if r.multiLogger != nil {
			r.multiLogger.LogItemFailure("item_failed", fields...)
		}
		r.notifier.NotifyItemFailed(outcome)
	}

	if r.repo != nil {
		if err := r.repo.SaveOutcome(domain.NewOutcomeRecord(runID, outcome)); err != nil {
			r.logger.Warn("Failed to record outcome", zap.String("run_id", runID), zap.Error(err))
		}
	}
}

func (r *BatchRunner) finish(run *domain.BatchRun, discovered int, result *domain.BatchResult) {
	run.MarkFinished(discovered, result)
	r.updateRun(run)

	r.event("batch_completed",
		zap.String("run_id", run.ID),
		zap.String("status", string(run.Status)),
		zap.Int("succeeded", run.Succeeded),
		zap.Int("failed", run.Failed),
		zap.Int("filtered", run.Filtered),
		zap.Int("out_of_window", run.OutOfWindow))

	r.logger.Info("Batch finished",
		zap.String("run_id", run.ID),
		zap.Int("succeeded", run.Succeeded),
		zap.Int("failed", run.Failed))

	if !result.Empty() {
		r.notifier.NotifyBatchCompleted(result)
	}
}

// abort records a batch-level failure and returns err
func (r *BatchRunner) abort(run *domain.BatchRun, err error) error {
	run.MarkFailed(err)
	r.updateRun(run)

	r.logger.Error("Batch failed", zap.String("run_id", run.ID), zap.String("page_url", run.PageURL), zap.Error(err))
	if r.multiLogger != nil {
		r.multiLogger.LogAppError("batch_failed",
			zap.String("run_id", run.ID),
			zap.String("page_url", run.PageURL),
			zap.Error(err))
	}
	return err
}

func (r *BatchRunner) updateRun(run *domain.BatchRun) {
	if r.repo == nil {
		return
	}
	if err := r.repo.UpdateRun(run); err != nil {
		r.logger.Warn("Failed to update run", zap.String("run_id", run.ID), zap.Error(err))
	}
}

func (r *BatchRunner) event(name string, fields ...zap.Field) {
	if r.multiLogger != nil {
		r.multiLogger.LogBatchEvent(name, fields...)
	}
}

// cancellation reports why ctx ended as a context.Canceled error
func cancellation(ctx context.Context) error {
	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", context.Canceled, err)
	}
	return context.Canceled
}

// orCancelled prefers the cancellation over whatever error it caused
func orCancelled(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return cancellation(ctx)
	}
	return err
}
