package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/yourusername/vgrab-go/internal/domain"
	"github.com/yourusername/vgrab-go/pkg/logger"
)

var (
	// ErrBatchInProgress is returned by Submit while another batch is running
	ErrBatchInProgress = errors.New("a batch is already running")
	// ErrInvalidPageURL is returned by Submit for a page URL that cannot be normalized
	ErrInvalidPageURL = errors.New("invalid page url")
	// ErrServiceStopped is returned by Submit before Start or after Stop
	ErrServiceStopped = errors.New("batch service not running")
)

// PageRunner runs one batch for a page
type PageRunner interface {
	RunPage(ctx context.Context, run *domain.BatchRun) (*domain.BatchResult, error)
}

// RunDetail is a run together with its per-item outcomes
type RunDetail struct {
	Run      *domain.BatchRun         `json:"run"`
	Outcomes []*domain.OutcomeRecord `json:"outcomes"`
}

// BatchService accepts page submissions from the server and runs them one
// at a time in the background. Finished runs are kept in memory so they can
// be inspected even when history persistence is disabled.
type BatchService struct {
	runner      PageRunner
	repo        domain.HistoryRepository
	logger      *zap.Logger
	multiLogger *logger.MultiLogger

	mu       sync.RWMutex
	running  bool
	ctx      context.Context
	cancel   context.CancelFunc
	workerWg sync.WaitGroup
	current  *domain.BatchRun
	finished map[string]*RunDetail
	order    []string
}

// NewBatchService creates a new batch service. repo and multiLogger may be nil.
func NewBatchService(
	runner PageRunner,
	repo domain.HistoryRepository,
	log *zap.Logger,
	multiLogger *logger.MultiLogger,
) *BatchService {
	return &BatchService{
		runner:      runner,
		repo:        repo,
		logger:      log,
		multiLogger: multiLogger,
		finished:    make(map[string]*RunDetail),
	}
}

// Start makes the service accept submissions. Cancelling ctx cancels the running batch.
func (s *BatchService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("batch service already running")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	if s.multiLogger != nil {
		s.multiLogger.LogBatchEvent("service_started")
	}
	return nil
}

// Stop cancels the running batch, if any, and waits for it to finish
func (s *BatchService) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("batch service not running")
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.workerWg.Wait()

	if s.multiLogger != nil {
		s.multiLogger.LogBatchEvent("service_stopped")
	}
	return nil
}

// IsRunning returns whether the service accepts submissions
func (s *BatchService) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Submit starts a batch for pageURL in the background and returns its run
func (s *BatchService) Submit(pageURL string) (*domain.BatchRun, error) {
	normalized, err := domain.NormalizePageURL(pageURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPageURL, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil, ErrServiceStopped
	}
	if s.current != nil {
		return nil, fmt.Errorf("%w: %s", ErrBatchInProgress, s.current.ID)
	}

	run := domain.NewBatchRun(normalized)
	snapshot := *run
	s.current = &snapshot

	if s.multiLogger != nil {
		s.multiLogger.LogBatchEvent("batch_submitted",
			zap.String("run_id", run.ID),
			zap.String("page_url", normalized))
	}

	s.workerWg.Add(1)
	go s.execute(s.ctx, run)

	return &snapshot, nil
}

func (s *BatchService) execute(ctx context.Context, run *domain.BatchRun) {
	defer s.workerWg.Done()

	result, err := s.runner.RunPage(ctx, run)
	if err != nil {
		s.logger.Error("Batch failed", zap.String("run_id", run.ID), zap.Error(err))
	}

	detail := &RunDetail{Run: run}
	if result != nil {
		for _, o := range result.Outcomes {
			detail.Outcomes = append(detail.Outcomes, domain.NewOutcomeRecord(run.ID, o))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished[run.ID] = detail
	s.order = append(s.order, run.ID)
	s.current = nil
}

// Current returns a snapshot of the running batch, or nil when idle
func (s *BatchService) Current() *domain.BatchRun {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil
	}
	run := *s.current
	return &run
}

// GetRun returns a run and its outcomes, preferring the history database
func (s *BatchService) GetRun(id string) (*RunDetail, error) {
	if s.repo != nil {
		run, err := s.repo.FindRun(id)
		if err == nil {
			outcomes, err := s.repo.ListOutcomes(id)
			if err != nil {
				return nil, fmt.Errorf("failed to list outcomes: %w", err)
			}
			return &RunDetail{Run: run, Outcomes: outcomes}, nil
		}
		if !errors.Is(err, domain.ErrRunNotFound) {
			return nil, err
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if d, ok := s.finished[id]; ok {
		return d, nil
	}
	if s.current != nil && s.current.ID == id {
		run := *s.current
		return &RunDetail{Run: &run}, nil
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrRunNotFound, id)
}

// ListRuns returns the most recent runs first; limit <= 0 returns all
func (s *BatchService) ListRuns(limit int) ([]*domain.BatchRun, error) {
	if s.repo != nil {
		return s.repo.ListRuns(limit)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var runs []*domain.BatchRun
	if s.current != nil {
		run := *s.current
		runs = append(runs, &run)
	}
	for i := len(s.order) - 1; i >= 0; i-- {
		if limit > 0 && len(runs) >= limit {
			break
		}
		runs = append(runs, s.finished[s.order[i]].Run)
	}
	return runs, nil
}

// GetStats returns aggregate statistics
func (s *BatchService) GetStats() (*domain.HistoryStats, error) {
	if s.repo != nil {
		return s.repo.GetStats()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := &domain.HistoryStats{Reasons: map[domain.FailureReason]int64{}}
	for _, d := range s.finished {
		stats.Runs++
		for _, o := range d.Outcomes {
			stats.Items++
			if o.Status == domain.OutcomeSuccess {
				stats.Succeeded++
				stats.Bytes += o.BytesWritten
			} else {
				stats.Failed++
				stats.Reasons[o.Reason]++
			}
		}
	}
	return stats, nil
}
