package infrastructure

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/yourusername/vgrab-go/internal/domain"
)

// FileSink writes streams into a directory under "{prefix} {title}{ext}" names.
// Bytes land in a hidden temp file that is renamed into place only after a
// complete, synced write, so a failed item never leaves a partial file behind.
type FileSink struct {
	dir      string
	prefix   string
	ext      string
	policy   string
	logger   *zap.Logger
	mu       sync.Mutex
	reserved map[string]int // file name -> ordinal that claimed it
}

// NewFileSink creates a sink for the download directory
func NewFileSink(config *domain.DownloadConfig, namePrefix string, logger *zap.Logger) *FileSink {
	return &FileSink{
		dir:      config.Dir,
		prefix:   namePrefix,
		ext:      config.Extension,
		policy:   config.CollisionPolicy,
		logger:   logger,
		reserved: make(map[string]int),
	}
}

// Begin creates the download directory and clears the names reserved by the previous batch
func (s *FileSink) Begin() error {
	s.mu.Lock()
	s.reserved = make(map[string]int)
	s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("%w: create download directory: %w", domain.ErrIO, err)
	}
	return nil
}

// Reserve claims the destination name for an item within the current batch
func (s *FileSink) Reserve(item domain.Item, title string) (string, error) {
	name := domain.ComposeFileName(s.prefix, title, item.Ordinal, s.ext)

	s.mu.Lock()
	defer s.mu.Unlock()

	owner, taken := s.reserved[name]
	if !taken || owner == item.Ordinal {
		s.reserved[name] = item.Ordinal
		return name, nil
	}

	if s.policy == domain.CollisionFail {
		return "", fmt.Errorf("%w: %q (claimed by item %d)", domain.ErrNameCollision, name, owner)
	}

	suffixed := domain.WithOrdinalSuffix(name, item.Ordinal)
	if other, clash := s.reserved[suffixed]; clash && other != item.Ordinal {
		return "", fmt.Errorf("%w: %q (claimed by item %d)", domain.ErrNameCollision, suffixed, other)
	}
	s.reserved[suffixed] = item.Ordinal

	s.logger.Warn("Destination name already used in this batch, adding suffix",
		zap.Int("ordinal", item.Ordinal),
		zap.String("name", name),
		zap.String("renamed", suffixed))

	return suffixed, nil
}

// release drops a reservation held by item so a later item can claim the name
func (s *FileSink) release(name string, item domain.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reserved[name] == item.Ordinal {
		delete(s.reserved, name)
	}
}

// Store streams src into its destination and closes src
func (s *FileSink) Store(ctx context.Context, src *domain.ByteSource, item domain.Item, title string) (domain.StoreResult, error) {
	defer src.Body.Close()

	name, err := s.Reserve(item, title)
	if err != nil {
		return domain.StoreResult{}, err
	}
	dest := filepath.Join(s.dir, name)

	committed := false
	defer func() {
		if !committed {
			s.release(name, item)
		}
	}()

	tmp, err := os.CreateTemp(s.dir, "."+name+".*.part")
	if err != nil {
		return domain.StoreResult{}, fmt.Errorf("%w: create temp file: %w", domain.ErrIO, err)
	}

	tmpPath := tmp.Name()
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmp, src.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.StoreResult{}, ctxErr
		}
		return domain.StoreResult{}, fmt.Errorf("%w: write %s after %d bytes: %w", domain.ErrIO, name, written, err)
	}

	if written == 0 && src.Total <= 0 {
		return domain.StoreResult{}, domain.ErrEmptyBody
	}
	if src.Total > 0 && written < src.Total {
		return domain.StoreResult{}, fmt.Errorf("%w: stream ended after %d of %d bytes", domain.ErrIO, written, src.Total)
	}

	if err := tmp.Sync(); err != nil {
		return domain.StoreResult{}, fmt.Errorf("%w: sync %s: %w", domain.ErrIO, name, err)
	}
	if err := tmp.Close(); err != nil {
		return domain.StoreResult{}, fmt.Errorf("%w: close %s: %w", domain.ErrIO, name, err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return domain.StoreResult{}, fmt.Errorf("%w: chmod %s: %w", domain.ErrIO, name, err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return domain.StoreResult{}, fmt.Errorf("%w: rename to %s: %w", domain.ErrIO, dest, err)
	}
	committed = true

	s.logger.Info("Stored file",
		zap.Int("ordinal", item.Ordinal),
		zap.String("path", dest),
		zap.Int64("bytes", written))

	return domain.StoreResult{Path: dest, BytesWritten: written}, nil
}
