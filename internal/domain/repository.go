package domain

// HistoryRepository defines the interface for batch run persistence
type HistoryRepository interface {
	// CreateRun stores a new run
	CreateRun(run *BatchRun) error

	// UpdateRun updates an existing run
	UpdateRun(run *BatchRun) error

	// SaveOutcome appends one item outcome to a run
	SaveOutcome(record *OutcomeRecord) error

	// FindRun finds a run by ID, returning ErrRunNotFound when absent
	FindRun(id string) (*BatchRun, error)

	// ListRuns returns the most recent runs first
	ListRuns(limit int) ([]*BatchRun, error)

	// ListOutcomes returns the outcomes of a run ordered by ordinal
	ListOutcomes(runID string) ([]*OutcomeRecord, error)

	// GetStats returns aggregate statistics over all runs
	GetStats() (*HistoryStats, error)
}

// HistoryStats represents aggregate download statistics
type HistoryStats struct {
	Runs      int64 `json:"runs"`
	Items     int64 `json:"items"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
	Bytes     int64 `json:"bytes"`

	// failed items per reason
	Reasons map[FailureReason]int64 `json:"reasons,omitempty"`
}
