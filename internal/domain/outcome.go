package domain

import (
	"time"

	"github.com/google/uuid"
)

// OutcomeStatus is the terminal state of one item
type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeFailed  OutcomeStatus = "failed"
)

// DownloadOutcome is the terminal result for one windowed item
type DownloadOutcome struct {
	Item            Item          `json:"item"`
	Status          OutcomeStatus `json:"status"`
	Reason          FailureReason `json:"reason,omitempty"`
	Error           string        `json:"error,omitempty"`
	StreamURL       string        `json:"stream_url,omitempty"`
	BytesWritten    int64         `json:"bytes_written"`
	DestinationPath string        `json:"destination_path,omitempty"`
}

// Succeeded builds a success outcome
func Succeeded(item Item, streamURL, path string, written int64) DownloadOutcome {
	return DownloadOutcome{
		Item:            item,
		Status:          OutcomeSuccess,
		StreamURL:       streamURL,
		BytesWritten:    written,
		DestinationPath: path,
	}
}

// Failed builds a failed outcome classified from a stage error
func Failed(item Item, stage Stage, err error) DownloadOutcome {
	return DownloadOutcome{
		Item:   item,
		Status: OutcomeFailed,
		Reason: ClassifyError(stage, err),
		Error:  err.Error(),
	}
}

// IsSuccess reports whether the item was stored
func (o DownloadOutcome) IsSuccess() bool {
	return o.Status == OutcomeSuccess
}

// BatchResult is the ordered result of one batch.
// Outcomes has exactly one entry per windowed item, in order.
type BatchResult struct {
	RunID       string            `json:"run_id"`
	Outcomes    []DownloadOutcome `json:"outcomes"`
	Filtered    []Item            `json:"filtered,omitempty"`      // locator did not match the player prefix
	OutOfWindow []Item            `json:"out_of_window,omitempty"` // matched, but outside [from, to]
}

// Succeeded returns the number of successful outcomes
func (r *BatchResult) Succeeded() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.IsSuccess() {
			n++
		}
	}
	return n
}

// Failed returns the number of failed outcomes
func (r *BatchResult) Failed() int {
	return len(r.Outcomes) - r.Succeeded()
}

// Empty reports whether nothing was selected for download
func (r *BatchResult) Empty() bool {
	return len(r.Outcomes) == 0
}

// RunStatus represents the lifecycle of a persisted batch run
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunEmpty     RunStatus = "empty"
	RunFailed    RunStatus = "failed"
)

// BatchRun is the persisted record of one page run
type BatchRun struct {
	ID           string     `json:"id" gorm:"primaryKey"`
	PageURL      string     `json:"page_url" gorm:"not null"`
	Status       RunStatus  `json:"status" gorm:"not null;index"`
	Discovered   int        `json:"discovered"`
	Filtered     int        `json:"filtered"`
	OutOfWindow  int        `json:"out_of_window"`
	Succeeded    int        `json:"succeeded"`
	Failed       int        `json:"failed"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// NewBatchRun creates a new run for a page URL
func NewBatchRun(pageURL string) *BatchRun {
	now := time.Now()
	return &BatchRun{
		ID:        uuid.New().String(),
		PageURL:   pageURL,
		Status:    RunRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// MarkFinished records the tally of a finished batch
func (r *BatchRun) MarkFinished(discovered int, result *BatchResult) {
	r.Discovered = discovered
	r.Filtered = len(result.Filtered)
	r.OutOfWindow = len(result.OutOfWindow)
	r.Succeeded = result.Succeeded()
	r.Failed = result.Failed()
	r.Status = RunCompleted
	if result.Empty() {
		r.Status = RunEmpty
	}
	now := time.Now()
	r.CompletedAt = &now
	r.UpdatedAt = now
}

// MarkFailed records a batch-level failure
func (r *BatchRun) MarkFailed(err error) {
	r.Status = RunFailed
	r.ErrorMessage = err.Error()
	now := time.Now()
	r.CompletedAt = &now
	r.UpdatedAt = now
}

// IsTerminal checks if the run has finished
func (r *BatchRun) IsTerminal() bool {
	return r.Status != RunRunning
}

// OutcomeRecord is the persisted form of a DownloadOutcome
type OutcomeRecord struct {
	ID              uint          `json:"-" gorm:"primaryKey"`
	RunID           string        `json:"run_id" gorm:"not null;index"`
	Ordinal         int           `json:"ordinal"`
	Title           string        `json:"title"`
	Locator         string        `json:"locator"`
	StreamURL       string        `json:"stream_url,omitempty"`
	Status          OutcomeStatus `json:"status" gorm:"not null;index"`
	Reason          FailureReason `json:"reason,omitempty"`
	ErrorMessage    string        `json:"error_message,omitempty"`
	BytesWritten    int64         `json:"bytes_written"`
	DestinationPath string        `json:"destination_path,omitempty"`
	CreatedAt       time.Time     `json:"created_at" gorm:"autoCreateTime"`
}

// NewOutcomeRecord converts an outcome for persistence
func NewOutcomeRecord(runID string, o DownloadOutcome) *OutcomeRecord {
	return &OutcomeRecord{
		RunID:           runID,
		Ordinal:         o.Item.Ordinal,
		Title:           o.Item.Title,
		Locator:         o.Item.Locator,
		StreamURL:       o.StreamURL,
		Status:          o.Status,
		Reason:          o.Reason,
		ErrorMessage:    o.Error,
		BytesWritten:    o.BytesWritten,
		DestinationPath: o.DestinationPath,
	}
}
