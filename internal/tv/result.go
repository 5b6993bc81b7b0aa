package tv

// OperationResult is the uniform envelope returned to callers of the engine.
// Success is true for full and partial success; Message is display-ready.
type OperationResult[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    T      `json:"data,omitempty"`
	Error   error  `json:"-"`
}

// ErrorText returns the error message, or "" when there is none.
func (r OperationResult[T]) ErrorText() string {
	if r.Error == nil {
		return ""
	}
	return r.Error.Error()
}

// Succeed wraps data in a successful result.
func Succeed[T any](message string, data T) OperationResult[T] {
	return OperationResult[T]{Success: true, Message: message, Data: data}
}

// Fail wraps err in a failed result. data may carry partial output.
func Fail[T any](message string, data T, err error) OperationResult[T] {
	if message == "" && err != nil {
		message = err.Error()
	}
	return OperationResult[T]{Success: false, Message: message, Data: data, Error: err}
}

// ReportResult builds the envelope for a bulk operation that produced a report.
// A fatal error fails the call; otherwise the call succeeds unless files were
// attempted and none succeeded.
func ReportResult(report *SyncReport, err error) OperationResult[*SyncReport] {
	if err != nil {
		if report == nil {
			return Fail[*SyncReport]("", nil, err)
		}
		return Fail(report.Summary()+" ("+err.Error()+")", report, err)
	}
	if report.FilesProcessed > 0 && report.Succeeded() == 0 {
		return Fail(report.Summary(), report, NewError(PartialFailure, "no files succeeded", nil))
	}
	return Succeed(report.Summary(), report)
}
