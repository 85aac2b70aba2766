package signal

import "fmt"

// ShapeError reports a vendor payload that violates the expected contract:
// a missing envelope, a missing required field, or a value of the wrong type.
//
// Shape drift fails the run. The pipeline must never paper over a renamed
// field by defaulting the value; a loud error at the decode boundary is the
// only reliable signal that the vendor changed their JSON.
type ShapeError struct {
	// Domain is the KPI domain of the payload, e.g. "weekly_volumes".
	Domain string

	// Index is the zero-based position of the offending item within the
	// payload list, or -1 when the error concerns the payload as a whole.
	Index int

	Msg string
}

func (e *ShapeError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%s: %s", e.Domain, e.Msg)
	}
	return fmt.Sprintf("%s: item %d: %s", e.Domain, e.Index, e.Msg)
}

func shapeErrf(domain string, index int, format string, args ...any) *ShapeError {
	return &ShapeError{Domain: domain, Index: index, Msg: fmt.Sprintf(format, args...)}
}
