package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/yourusername/vgrab-go/internal/domain"
)

// SessionPool hands out browser sessions one lease at a time.
// A pool of size 1 serializes every page interaction through a single browser.
type SessionPool struct {
	sessions  []domain.Session
	idle      chan domain.Session
	closeOnce sync.Once
	closeErr  error
}

// NewSessionPool opens size sessions up front. If any fails to open, the
// ones already opened are closed and ErrSessionUnavailable is returned.
func NewSessionPool(ctx context.Context, factory domain.SessionFactory, size int) (*SessionPool, error) {
	if size < 1 {
		size = 1
	}

	pool := &SessionPool{idle: make(chan domain.Session, size)}
	for i := 0; i < size; i++ {
		s, err := factory(ctx)
		if err != nil {
			pool.Close()
			if errors.Is(err, domain.ErrSessionUnavailable) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %w", domain.ErrSessionUnavailable, err)
		}
		pool.sessions = append(pool.sessions, s)
		pool.idle <- s
	}

	return pool, nil
}

// Size returns the number of sessions in the pool
func (p *SessionPool) Size() int {
	return len(p.sessions)
}

// Acquire waits for an idle session
func (p *SessionPool) Acquire(ctx context.Context) (*Lease, error) {
	select {
	case s := <-p.idle:
		return &Lease{Session: s, pool: p}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close closes every session; it is safe to call more than once
func (p *SessionPool) Close() error {
	p.closeOnce.Do(func() {
		var errs []error
		for _, s := range p.sessions {
			if err := s.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		p.closeErr = errors.Join(errs...)
	})
	return p.closeErr
}

// Lease is exclusive use of one pooled session until Release
type Lease struct {
	domain.Session
	pool *SessionPool
	once sync.Once
}

// Release returns the session to the pool; extra calls are no-ops
func (l *Lease) Release() {
	l.once.Do(func() {
		l.pool.idle <- l.Session
	})
}
