package m2m

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

// Status summarizes a batch of results for the caller driving the batch.
type Status int

const (
	// StatusSuccess means every result succeeded.
	StatusSuccess Status = iota
	// StatusWarning means some results failed but the run can continue.
	StatusWarning
	// StatusError means a failure is fatal to the rest of the run.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusWarning:
		return "warning"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "success":
		*s = StatusSuccess
	case "warning":
		*s = StatusWarning
	case "error":
		*s = StatusError
	default:
		return Invalidf("unknown status %q", text)
	}
	return nil
}

// Result is the outcome of one operational step. Failures carry a message
// and usually the underlying error; they are returned, never panicked.
type Result struct {
	Success bool
	Message string
	// Affected counts the rows or items the step touched.
	Affected int64
	Err      error
}

// Succeeded returns a successful Result.
func Succeeded(format string, args ...any) Result {
	return Result{Success: true, Message: fmt.Sprintf(format, args...)}
}

// SucceededCount returns a successful Result that touched n items.
func SucceededCount(n int64, format string, args ...any) Result {
	return Result{Success: true, Message: fmt.Sprintf(format, args...), Affected: n}
}

// Failed returns a failed Result wrapping err. If err is nil the message
// becomes the error.
func Failed(err error, format string, args ...any) Result {
	msg := fmt.Sprintf(format, args...)
	if err == nil {
		err = errors.New(msg)
	} else {
		msg = msg + ": " + err.Error()
	}
	return Result{Message: msg, Err: err}
}

// ResultSet aggregates results from a batch. The zero value is ready to use.
type ResultSet struct {
	results []Result
	fatal   bool
}

// Add appends r to the set.
func (s *ResultSet) Add(r Result) {
	s.results = append(s.results, r)
}

// AddFatal appends r and marks the set fatal when r failed.
func (s *ResultSet) AddFatal(r Result) {
	s.Add(r)
	if !r.Success {
		s.fatal = true
	}
}

// Merge appends every result of other. A fatal other makes s fatal.
func (s *ResultSet) Merge(other ResultSet) {
	s.results = append(s.results, other.results...)
	s.fatal = s.fatal || other.fatal
}

// Results returns the accumulated results in order.
func (s *ResultSet) Results() []Result {
	return s.results
}

// Len returns the number of results.
func (s *ResultSet) Len() int {
	return len(s.results)
}

// IsSuccess reports whether every result succeeded.
func (s *ResultSet) IsSuccess() bool {
	for _, r := range s.results {
		if !r.Success {
			return false
		}
	}
	return true
}

// IsFatal reports whether a fatal failure was recorded.
func (s *ResultSet) IsFatal() bool {
	return s.fatal
}

// Status returns StatusError for fatal sets, StatusWarning when some result
// failed and StatusSuccess otherwise.
func (s *ResultSet) Status() Status {
	switch {
	case s.fatal:
		return StatusError
	case !s.IsSuccess():
		return StatusWarning
	}
	return StatusSuccess
}

// Affected sums Affected over all successful results.
func (s *ResultSet) Affected() int64 {
	var n int64
	for _, r := range s.results {
		if r.Success {
			n += r.Affected
		}
	}
	return n
}

// Failures returns the number of failed results.
func (s *ResultSet) Failures() int {
	n := 0
	for _, r := range s.results {
		if !r.Success {
			n++
		}
	}
	return n
}

// Err combines the errors of all failed results, or returns nil.
func (s *ResultSet) Err() error {
	var err error
	for _, r := range s.results {
		if !r.Success {
			err = multierr.Append(err, r.Err)
		}
	}
	return err
}

// Message concatenates the non-empty messages, one per line.
func (s *ResultSet) Message() string {
	msgs := make([]string, 0, len(s.results))
	for _, r := range s.results {
		if r.Message != "" {
			msgs = append(msgs, r.Message)
		}
	}
	return strings.Join(msgs, "\n")
}
