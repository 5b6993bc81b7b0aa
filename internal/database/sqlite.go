package database

import (
	"database/sql"
	"fmt"
	"time"

	"tv-go/internal/database/migrations"
	"tv-go/internal/tv"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// timeLayout is how timestamps are stored. Fixed-width UTC so that string
// ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteJournal implements tv.Journal on SQLite.
type SQLiteJournal struct {
	db   *sql.DB
	path string
}

var _ tv.Journal = (*SQLiteJournal)(nil)

// NewSQLiteJournal opens (creating if needed) a journal database and brings
// its schema up to date. path can be a file path or ":memory:".
func NewSQLiteJournal(path string) (*SQLiteJournal, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating journal: %w", err)
	}
	return &SQLiteJournal{db: db, path: path}, nil
}

// OpenConnection opens and configures a SQLite database connection with appropriate PRAGMAs.
// path can be a file path or ":memory:" for in-memory database.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Every connection to ":memory:" is a separate database.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %q: %w", pragma, err)
		}
	}
	return db, nil
}

// CreateOperation inserts rec in whatever state it carries, normally running.
func (j *SQLiteJournal) CreateOperation(rec *tv.OperationRecord) error {
	params := rec.Parameters
	if params == "" {
		params = "{}"
	}
	_, err := j.db.Exec(
		`INSERT INTO operations (id, operation, parameters, status, message, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Operation, params, rec.Status, rec.Message,
		formatTime(rec.StartedAt), formatTimePtr(rec.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("creating operation: %w", err)
	}
	return nil
}

// FinishOperation sets the final status of a running operation.
func (j *SQLiteJournal) FinishOperation(id, status, message string, finishedAt time.Time) error {
	res, err := j.db.Exec(
		`UPDATE operations SET status = ?, message = ?, finished_at = ? WHERE id = ?`,
		status, message, formatTime(finishedAt), id,
	)
	if err != nil {
		return fmt.Errorf("finishing operation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finishing operation: %w", err)
	}
	if n == 0 {
		return tv.NewError(tv.NotFound, fmt.Sprintf("operation not found: %s", id), nil)
	}
	return nil
}

// ListOperations returns up to limit operations, newest first.
func (j *SQLiteJournal) ListOperations(limit int) ([]*tv.OperationRecord, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := j.db.Query(
		`SELECT id, operation, parameters, status, message, started_at, finished_at
		 FROM operations ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	defer rows.Close()

	var ops []*tv.OperationRecord
	for rows.Next() {
		var (
			rec      tv.OperationRecord
			started  string
			finished sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.Operation, &rec.Parameters, &rec.Status, &rec.Message, &started, &finished); err != nil {
			return nil, fmt.Errorf("scanning operation: %w", err)
		}
		if rec.StartedAt, err = time.Parse(timeLayout, started); err != nil {
			return nil, fmt.Errorf("parsing started_at of %s: %w", rec.ID, err)
		}
		if finished.Valid {
			t, err := time.Parse(timeLayout, finished.String)
			if err != nil {
				return nil, fmt.Errorf("parsing finished_at of %s: %w", rec.ID, err)
			}
			rec.FinishedAt = &t
		}
		ops = append(ops, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	return ops, nil
}

// Close closes the database connection.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

// Path returns the database path.
func (j *SQLiteJournal) Path() string {
	return j.path
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}
