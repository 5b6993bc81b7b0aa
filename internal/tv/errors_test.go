package tv

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestErrorKinds(t *testing.T) {
	t.Parallel()

	cause := errors.New("disk on fire")
	tests := []struct {
		name     string
		err      error
		kind     ErrorKind
		wantText string
	}{
		{name: "message and cause", err: NewError(NotFound, "version not found", cause), kind: NotFound, wantText: "version not found: disk on fire"},
		{name: "message only", err: preconditionf("bad %s", "input"), kind: Precondition, wantText: "bad input"},
		{name: "cause only", err: NewError(Cancelled, "", context.Canceled), kind: Cancelled, wantText: "context canceled"},
		{name: "kind only", err: NewError(PolicyAmbiguous, "", nil), kind: PolicyAmbiguous, wantText: "policy-ambiguous"},
		{name: "wrapped", err: fmt.Errorf("loading: %w", notFoundf("no repository at %s", "/x")), kind: NotFound, wantText: "loading: no repository at /x"},
		{name: "plain error", err: cause, kind: Internal, wantText: "disk on fire"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := KindOf(tt.err); got != tt.kind {
				t.Errorf("KindOf() = %s, want %s", got, tt.kind)
			}
			if tt.kind != Internal && !IsKind(tt.err, tt.kind) {
				t.Errorf("IsKind(%s) = false", tt.kind)
			}
			if got := tt.err.Error(); got != tt.wantText {
				t.Errorf("Error() = %q, want %q", got, tt.wantText)
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	t.Parallel()
	err := NewError(Cancelled, "sync cancelled", context.DeadlineExceeded)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("errors.Is did not reach the cause")
	}
	if IsKind(nil, NotFound) {
		t.Error("IsKind(nil) = true")
	}
	if IsKind(err, NotFound) {
		t.Error("IsKind matched the wrong kind")
	}
}

func TestIsKind_WalksWholeChain(t *testing.T) {
	t.Parallel()

	notFound := notFoundf("version v-9 not found")
	tests := []struct {
		name string
		err  error
		kind ErrorKind
		want bool
	}{
		{name: "outer kind", err: NewError(Precondition, "restore refused", notFound), kind: Precondition, want: true},
		{name: "wrapped cause kind", err: NewError(Precondition, "restore refused", notFound), kind: NotFound, want: true},
		{name: "through fmt wrap", err: fmt.Errorf("restoring: %w", NewError(Precondition, "refused", notFound)), kind: NotFound, want: true},
		{name: "joined branch", err: errors.Join(errors.New("plain"), notFound), kind: NotFound, want: true},
		{name: "absent kind", err: NewError(Precondition, "restore refused", notFound), kind: Cancelled, want: false},
		{name: "plain error", err: errors.New("plain"), kind: Internal, want: false},
		{name: "nil", err: nil, kind: NotFound, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IsKind(tt.err, tt.kind); got != tt.want {
				t.Errorf("IsKind(%v, %s) = %v, want %v", tt.err, tt.kind, got, tt.want)
			}
		})
	}

	// KindOf still reports the outermost classification.
	if got := KindOf(NewError(Precondition, "restore refused", notFound)); got != Precondition {
		t.Errorf("KindOf() = %s, want %s", got, Precondition)
	}
}

func TestReportResult(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		report  *SyncReport
		err     error
		success bool
		kind    ErrorKind
	}{
		{name: "fatal without report", err: notFoundf("source not found"), kind: NotFound},
		{name: "fatal with report", report: &SyncReport{FilesProcessed: 1}, err: NewError(Cancelled, "sync cancelled", context.Canceled), kind: Cancelled},
		{name: "nothing to do", report: &SyncReport{}, success: true},
		{name: "partial", report: &SyncReport{FilesProcessed: 2, FilesCopied: 1, FilesFailed: 1}, success: true},
		{name: "all failed", report: &SyncReport{FilesProcessed: 2, FilesFailed: 2}, kind: PartialFailure},
		{name: "all unresolved", report: &SyncReport{FilesProcessed: 1, Conflicts: []SyncConflict{{Outcome: OutcomeUnresolved}}}, kind: PartialFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res := ReportResult(tt.report, tt.err)
			if res.Success != tt.success {
				t.Fatalf("Success = %v, want %v (%s)", res.Success, tt.success, res.Message)
			}
			if !tt.success && KindOf(res.Error) != tt.kind {
				t.Errorf("error kind = %s, want %s", KindOf(res.Error), tt.kind)
			}
			if res.Message == "" {
				t.Error("Message is empty")
			}
			if tt.success && res.ErrorText() != "" {
				t.Errorf("ErrorText() = %q on success", res.ErrorText())
			}
		})
	}
}
