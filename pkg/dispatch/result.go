package dispatch

import "time"

// Result is the outcome of one executed request. User-code failures are
// values, not Go errors: a snippet that raises is reported with Success
// false and the error classified by type name, so remote callers can
// distinguish "your code raised X" from "the bridge itself is broken".
type Result struct {
	Success        bool
	Value          any
	Stdout         string
	Stderr         string
	Duration       time.Duration
	ErrorType      string
	ErrorMessage   string
	ErrorTraceback string
}

// Map renders the result in the wire shape shared by both frontends.
// Error fields are present iff the execution failed.
func (r Result) Map() map[string]any {
	m := map[string]any{
		"success":           r.Success,
		"result":            r.Value,
		"stdout":            r.Stdout,
		"stderr":            r.Stderr,
		"execution_time_ms": float64(r.Duration) / float64(time.Millisecond),
	}
	if !r.Success {
		m["error_type"] = r.ErrorType
		m["error_message"] = r.ErrorMessage
		m["error_traceback"] = r.ErrorTraceback
	}
	return m
}

// Failure builds a failed Result with the given classification. ErrorType
// and ErrorMessage are always non-empty on a failed result.
func Failure(errType, message string) Result {
	if errType == "" {
		errType = "Error"
	}
	if message == "" {
		message = errType
	}
	return Result{
		Success:      false,
		ErrorType:    errType,
		ErrorMessage: message,
	}
}
