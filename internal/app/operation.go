package app

import (
	"encoding/json"
	"fmt"
	"time"

	"tv-go/internal/tv"
)

// Operation tracks one engine call run through the app. Operations are
// created in memory and only written to the journal once the call starts.
type Operation struct {
	ID         string
	Name       string // e.g. "sync", "version.create"
	Parameters string // JSON encoded
	StartedAt  time.Time
	persisted  bool
}

// NewOperation creates an in-memory operation. params is JSON encoded; nil
// becomes an empty object.
func NewOperation(id, name string, params any, now time.Time) (*Operation, error) {
	encoded := "{}"
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("encoding operation parameters: %w", err)
		}
		encoded = string(b)
	}
	return &Operation{ID: id, Name: name, Parameters: encoded, StartedAt: now}, nil
}

// Persisted returns true if this operation has been saved to the journal.
func (op *Operation) Persisted() bool {
	return op.persisted
}

// Record returns the journal record of a running operation.
func (op *Operation) Record() *tv.OperationRecord {
	return &tv.OperationRecord{
		ID:         op.ID,
		Operation:  op.Name,
		Parameters: op.Parameters,
		Status:     tv.StatusRunning,
		StartedAt:  op.StartedAt,
	}
}

func finalStatus(success bool) string {
	if success {
		return tv.StatusSucceeded
	}
	return tv.StatusFailed
}
