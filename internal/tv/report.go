package tv

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Outcome is what the conflict policy decided for one relative path.
type Outcome int

const (
	// OutcomeIdentical: both sides hold the same content, nothing to do.
	OutcomeIdentical Outcome = iota
	// OutcomeCopyToTarget: the source (A) side wins.
	OutcomeCopyToTarget
	// OutcomeCopyToSource: the target (B) side wins.
	OutcomeCopyToSource
	// OutcomeUnresolved: the policy could not pick a side; manual resolution required.
	OutcomeUnresolved
)

func (o Outcome) String() string {
	switch o {
	case OutcomeIdentical:
		return "identical"
	case OutcomeCopyToTarget:
		return "copy-to-target"
	case OutcomeCopyToSource:
		return "copy-to-source"
	case OutcomeUnresolved:
		return "unresolved"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// MarshalText implements encoding.TextMarshaler.
func (o Outcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

// SyncConflict records a relative path that held different content on both sides.
type SyncConflict struct {
	Path           string    `json:"path"`
	Reason         string    `json:"reason"`
	SourceModified time.Time `json:"sourceModified"`
	TargetModified time.Time `json:"targetModified"`
	Outcome        Outcome   `json:"outcome"`
	Resolution     string    `json:"resolution"`
}

// FileError is a per-file failure that did not abort a bulk operation.
type FileError struct {
	Path      string    `json:"path"`
	Operation string    `json:"operation"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// SyncReport is the result of a bulk pass: sync, backup, snapshot restore,
// archive export or import.
type SyncReport struct {
	Source           string         `json:"source"`
	Target           string         `json:"target"`
	DryRun           bool           `json:"dryRun"`
	StartTime        time.Time      `json:"startTime"`
	EndTime          time.Time      `json:"endTime"`
	FilesProcessed   int            `json:"filesProcessed"`
	FilesCopied      int            `json:"filesCopied"`
	FilesSkipped     int            `json:"filesSkipped"` // identical, nothing to do
	FilesDeleted     int            `json:"filesDeleted"`
	FilesFailed      int            `json:"filesFailed"`
	BytesTransferred int64          `json:"bytesTransferred"`
	Conflicts        []SyncConflict `json:"conflicts"`
	Errors           []FileError    `json:"errors"`
}

func newReport(source, target string, dryRun bool, now time.Time) *SyncReport {
	return &SyncReport{
		Source:    source,
		Target:    target,
		DryRun:    dryRun,
		StartTime: now,
		Conflicts: []SyncConflict{},
		Errors:    []FileError{},
	}
}

// Duration returns the elapsed time of the pass.
func (r *SyncReport) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// Succeeded returns the number of processed paths that neither failed nor
// were left as unresolved conflicts.
func (r *SyncReport) Succeeded() int {
	n := r.FilesProcessed - r.FilesFailed - r.Unresolved()
	if n < 0 {
		return 0
	}
	return n
}

// Unresolved returns the number of conflicts the policy left for manual resolution.
func (r *SyncReport) Unresolved() int {
	n := 0
	for _, c := range r.Conflicts {
		if c.Outcome == OutcomeUnresolved {
			n++
		}
	}
	return n
}

// Summary renders a one-line, display-ready description of the report.
func (r *SyncReport) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d/%d files synchronized", r.Succeeded(), r.FilesProcessed)
	fmt.Fprintf(&b, " (%d copied, %d deleted, %s)", r.FilesCopied, r.FilesDeleted, formatBytes(r.BytesTransferred))
	fmt.Fprintf(&b, ", %s, %s", plural(len(r.Conflicts), "conflict"), plural(len(r.Errors), "error"))
	if r.DryRun {
		b.WriteString(" [dry run]")
	}
	return b.String()
}

// fail records a processed path that could not be handled.
func (r *SyncReport) fail(path, op string, err error, now time.Time) {
	r.FilesFailed++
	r.addError(path, op, err, now)
}

func (r *SyncReport) addError(path, op string, err error, now time.Time) {
	r.Errors = append(r.Errors, FileError{Path: path, Operation: op, Error: err.Error(), Timestamp: now})
}

// finish stamps the end time and sorts conflicts and errors by path so reports
// are reproducible regardless of the order workers finished in.
func (r *SyncReport) finish(now time.Time) {
	r.EndTime = now
	sort.SliceStable(r.Conflicts, func(i, j int) bool { return r.Conflicts[i].Path < r.Conflicts[j].Path })
	sort.SliceStable(r.Errors, func(i, j int) bool { return r.Errors[i].Path < r.Errors[j].Path })
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
