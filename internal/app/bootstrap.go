package app

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/yourusername/vgrab-go/internal/domain"
	"github.com/yourusername/vgrab-go/internal/infrastructure"
	"github.com/yourusername/vgrab-go/pkg/logger"
)

// Components is the wired pipeline shared by the CLI and the server
type Components struct {
	Config      *domain.Config
	Logger      *zap.Logger
	MultiLogger *logger.MultiLogger
	Repo        domain.HistoryRepository
	Runner      *BatchRunner

	closers []io.Closer
}

// Bootstrap builds loggers, history and the batch runner from config.
// console receives the human-readable log; nil means logging.output_path.
// No browser is started until a batch runs.
func Bootstrap(config *domain.Config, console io.Writer) (*Components, error) {
	log, err := logger.New(logger.Config{
		Level:      config.Logging.Level,
		Format:     config.Logging.Format,
		OutputPath: config.Logging.OutputPath,
		Writer:     console,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	c := &Components{Config: config, Logger: log}

	if config.Logging.LogsDir != "" {
		if err := os.MkdirAll(config.Logging.LogsDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create logs directory: %w", err)
		}
		ml, err := logger.NewMultiLogger(logger.MultiLoggerConfig{
			Level:   config.Logging.Level,
			LogsDir: config.Logging.LogsDir,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize category logs: %w", err)
		}
		c.MultiLogger = ml
		c.closers = append(c.closers, ml)
	}

	var repo domain.HistoryRepository
	if config.History.Enabled {
		if err := os.MkdirAll(filepath.Dir(config.History.DatabasePath), 0755); err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
		sqlite, err := infrastructure.NewSQLiteHistoryRepository(config.History.DatabasePath)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to initialize history: %w", err)
		}
		repo = sqlite
		c.Repo = sqlite
		c.closers = append(c.closers, sqlite)
	}

	c.Runner = NewBatchRunner(
		infrastructure.NewChromeSessionFactory(&config.Browser, config.Batch.Quality, config.Download.UserAgent, log),
		infrastructure.NewHTTPFetcher(&config.Download, log),
		infrastructure.NewFileSink(&config.Download, config.Batch.Name, log),
		repo,
		infrastructure.NewNotificationService(&config.Notification, log),
		config,
		log,
		c.MultiLogger,
	)

	return c, nil
}

// Close releases history and log files
func (c *Components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	c.Logger.Sync()
	return errors.Join(errs...)
}
