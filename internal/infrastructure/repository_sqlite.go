package infrastructure

import (
	"errors"
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/yourusername/vgrab-go/internal/domain"
)

// SQLiteHistoryRepository implements HistoryRepository using SQLite
type SQLiteHistoryRepository struct {
	db *gorm.DB
}

// NewSQLiteHistoryRepository opens (and migrates) the history database
func NewSQLiteHistoryRepository(dbPath string) (*SQLiteHistoryRepository, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&domain.BatchRun{}, &domain.OutcomeRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &SQLiteHistoryRepository{db: db}, nil
}

// CreateRun stores a new run
func (r *SQLiteHistoryRepository) CreateRun(run *domain.BatchRun) error {
	return r.db.Create(run).Error
}

// UpdateRun saves all fields of an existing run
func (r *SQLiteHistoryRepository) UpdateRun(run *domain.BatchRun) error {
	return r.db.Save(run).Error
}

// SaveOutcome appends one outcome row
func (r *SQLiteHistoryRepository) SaveOutcome(record *domain.OutcomeRecord) error {
	return r.db.Create(record).Error
}

// FindRun finds a run by ID
func (r *SQLiteHistoryRepository) FindRun(id string) (*domain.BatchRun, error) {
	var run domain.BatchRun
	err := r.db.First(&run, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", domain.ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns returns the most recent runs first; limit <= 0 returns all
func (r *SQLiteHistoryRepository) ListRuns(limit int) ([]*domain.BatchRun, error) {
	var runs []*domain.BatchRun
	query := r.db.Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&runs).Error
	return runs, err
}

// ListOutcomes returns the outcomes of a run in item order
func (r *SQLiteHistoryRepository) ListOutcomes(runID string) ([]*domain.OutcomeRecord, error) {
	var records []*domain.OutcomeRecord
	err := r.db.Where("run_id = ?", runID).Order("ordinal ASC").Find(&records).Error
	return records, err
}

// GetStats returns aggregate statistics over all runs
func (r *SQLiteHistoryRepository) GetStats() (*domain.HistoryStats, error) {
	stats := &domain.HistoryStats{Reasons: map[domain.FailureReason]int64{}}

	if err := r.db.Model(&domain.BatchRun{}).Count(&stats.Runs).Error; err != nil {
		return nil, err
	}

	statusCounts := []struct {
		Status domain.OutcomeStatus
		Count  int64
		Bytes  int64
	}{}
	if err := r.db.Model(&domain.OutcomeRecord{}).
		Select("status, count(*) as count, coalesce(sum(bytes_written), 0) as bytes").
		Group("status").
		Scan(&statusCounts).Error; err != nil {
		return nil, err
	}

	for _, sc := range statusCounts {
		stats.Items += sc.Count
		switch sc.Status {
		case domain.OutcomeSuccess:
			stats.Succeeded = sc.Count
			stats.Bytes = sc.Bytes
		case domain.OutcomeFailed:
			stats.Failed = sc.Count
		}
	}

	reasonCounts := []struct {
		Reason domain.FailureReason
		Count  int64
	}{}
	if err := r.db.Model(&domain.OutcomeRecord{}).
		Select("reason, count(*) as count").
		Where("status = ?", domain.OutcomeFailed).
		Group("reason").
		Scan(&reasonCounts).Error; err != nil {
		return nil, err
	}
	for _, rc := range reasonCounts {
		stats.Reasons[rc.Reason] = rc.Count
	}

	return stats, nil
}

// Close closes the database connection
func (r *SQLiteHistoryRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
