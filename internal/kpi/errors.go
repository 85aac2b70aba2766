package kpi

import "fmt"

// InsufficientHistoryError is returned by BuildVolumePressure when no week in
// the input has a complete rolling window. Individual incomplete weeks are
// silently omitted; the error fires only when the whole table would be empty.
type InsufficientHistoryError struct {
	Weeks  int // weeks of history available
	Window int // weeks required
}

func (e *InsufficientHistoryError) Error() string {
	return fmt.Sprintf("volume pressure: %d weeks of history, need %d for a complete window", e.Weeks, e.Window)
}

// EmptyBucketError is returned when a ratio's denominator is zero for a
// group that is present in the input. A zero-activity group is ambiguous
// (no congestion, or no data?) and must be surfaced rather than coerced
// to 0%. The affected table is skipped; other tables still build.
type EmptyBucketError struct {
	Domain string // KPI domain, e.g. "terminal_congestion"
	Group  string // load type, status, or week the zero denominator occurred in
}

func (e *EmptyBucketError) Error() string {
	return fmt.Sprintf("%s: zero total count for %q", e.Domain, e.Group)
}
