package tv

import "time"

// Operation statuses stored in the journal.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// OperationRecord is one journal entry: a single engine call and its outcome.
type OperationRecord struct {
	ID         string
	Operation  string // e.g. "sync", "version.create"
	Parameters string // JSON encoded
	Status     string
	Message    string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// Journal records the operations run against the engine.
type Journal interface {
	// CreateOperation inserts a record in the running state.
	CreateOperation(rec *OperationRecord) error

	// FinishOperation sets the final status and message of a record.
	FinishOperation(id, status, message string, finishedAt time.Time) error

	// ListOperations returns up to limit records, newest first.
	// A limit <= 0 returns every record.
	ListOperations(limit int) ([]*OperationRecord, error)

	// Close releases the journal's resources.
	Close() error
}
