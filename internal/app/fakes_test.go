package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/yourusername/vgrab-go/internal/domain"
)

// fakeSession lists a fixed page and resolves items through resolveFn
type fakeSession struct {
	items     []domain.Item
	listErr   error
	resolveFn func(ctx context.Context, item domain.Item) (domain.ResolvedStream, error)

	mu       sync.Mutex
	resolved []int
	closed   bool
}

func (s *fakeSession) ListItems(ctx context.Context, pageURL string) ([]domain.Item, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.items, nil
}

func (s *fakeSession) Resolve(ctx context.Context, item domain.Item) (domain.ResolvedStream, error) {
	s.mu.Lock()
	s.resolved = append(s.resolved, item.Ordinal)
	s.mu.Unlock()
	if s.resolveFn != nil {
		return s.resolveFn(ctx, item)
	}
	return domain.NewResolvedStream(item, "https://cdn.example.com/"+item.Locator[len(item.Locator)-1:]+".mp4", item.Locator, "")
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func factoryFor(sessions ...*fakeSession) domain.SessionFactory {
	var mu sync.Mutex
	next := 0
	return func(ctx context.Context) (domain.Session, error) {
		mu.Lock()
		defer mu.Unlock()
		if next >= len(sessions) {
			return nil, errors.New("chrome not found")
		}
		s := sessions[next]
		next++
		return s, nil
	}
}

// fakeFetcher serves bodies keyed by stream URL
type fakeFetcher struct {
	bodies map[string]string
	errs   map[string]error

	mu      sync.Mutex
	fetched []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, stream domain.ResolvedStream) (*domain.ByteSource, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, stream.StreamURL)
	f.mu.Unlock()

	if err, ok := f.errs[stream.StreamURL]; ok {
		return nil, err
	}
	body, ok := f.bodies[stream.StreamURL]
	if !ok {
		body = "video bytes"
	}
	return &domain.ByteSource{Body: io.NopCloser(bytes.NewBufferString(body)), Total: int64(len(body))}, nil
}

// memSink stores bodies in memory
type memSink struct {
	beginErr error
	onStore  func()

	mu     sync.Mutex
	begun  int
	stored map[string]string
}

func (m *memSink) Begin() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.begun++
	m.stored = make(map[string]string)
	return m.beginErr
}

func (m *memSink) Store(ctx context.Context, src *domain.ByteSource, item domain.Item, title string) (domain.StoreResult, error) {
	defer src.Body.Close()
	if m.onStore != nil {
		m.onStore()
	}
	data, err := io.ReadAll(src.Body)
	if err != nil {
		return domain.StoreResult{}, err
	}
	name := domain.ComposeFileName("Title", title, item.Ordinal, ".mp4")

	m.mu.Lock()
	defer m.mu.Unlock()
	m.stored[name] = string(data)
	return domain.StoreResult{Path: "/downloads/" + name, BytesWritten: int64(len(data))}, nil
}

// memRepo is an in-memory history repository
type memRepo struct {
	mu       sync.Mutex
	runs     map[string]domain.BatchRun
	outcomes map[string][]*domain.OutcomeRecord
}

func newMemRepo() *memRepo {
	return &memRepo{runs: map[string]domain.BatchRun{}, outcomes: map[string][]*domain.OutcomeRecord{}}
}

func (r *memRepo) CreateRun(run *domain.BatchRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[run.ID] = *run
	return nil
}

func (r *memRepo) UpdateRun(run *domain.BatchRun) error { return r.CreateRun(run) }

func (r *memRepo) SaveOutcome(record *domain.OutcomeRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes[record.RunID] = append(r.outcomes[record.RunID], record)
	return nil
}

func (r *memRepo) FindRun(id string) (*domain.BatchRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return nil, domain.ErrRunNotFound
	}
	return &run, nil
}

func (r *memRepo) ListRuns(limit int) ([]*domain.BatchRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var runs []*domain.BatchRun
	for _, run := range r.runs {
		run := run
		runs = append(runs, &run)
	}
	return runs, nil
}

func (r *memRepo) ListOutcomes(runID string) ([]*domain.OutcomeRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outcomes[runID], nil
}

func (r *memRepo) GetStats() (*domain.HistoryStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return &domain.HistoryStats{Runs: int64(len(r.runs))}, nil
}

func pageItems(n int) []domain.Item {
	items := make([]domain.Item, n)
	for i := range items {
		items[i] = domain.Item{
			Locator: "https://csst.example.com/v/" + string(rune('a'+i)),
			Title:   "Episode " + string(rune('A'+i)),
			Ordinal: i + 1,
		}
	}
	return items
}

func testConfig() *domain.Config {
	cfg := domain.DefaultConfig()
	cfg.Batch.Player = "https://csst"
	cfg.Batch.From = 1
	cfg.Batch.To = 12
	cfg.Download.ProgressInterval = 0
	return cfg
}

func newTestRunner(sessions []*fakeSession, fetcher *fakeFetcher, sink *memSink, repo domain.HistoryRepository, cfg *domain.Config) *BatchRunner {
	return NewBatchRunner(factoryFor(sessions...), fetcher, sink, repo, nil, cfg, zap.NewNop(), nil)
}
