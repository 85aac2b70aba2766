// Package kpi builds the five KPI output tables from decoded vendor records
// and evaluates threshold rules on the computed metrics.
//
// Every builder is a pure function: the same records and thresholds always
// produce the same rows in the same order. Ordering is part of the output
// contract because the sink writes rows positionally and downstream BI
// queries diff runs row-by-row.
package kpi

// Thresholds is the immutable rule configuration for one pipeline run.
//
// Builders receive it explicitly; nothing in this package reads process
// environment or other ambient state.
type Thresholds struct {
	// WindowWeeks is the rolling-average window for volume pressure.
	// Weeks with fewer than WindowWeeks weeks of trailing history
	// (inclusive of the week itself) produce no output row.
	WindowWeeks int

	// CongestedBuckets are dwell buckets counted as congested at terminal.
	CongestedBuckets []string

	// SlowOutgateBuckets are dwell buckets counted as slow at outgate.
	SlowOutgateBuckets []string

	// Volume pressure index cutoffs. HIGH at >= VolumeHigh, LOW at
	// <= VolumeLow, NORMAL in the open interval between them.
	VolumeHigh float64
	VolumeLow  float64

	// Congested-share cutoffs per load type.
	TerminalLoadedHigh float64
	TerminalEmptyHigh  float64

	// Slow-share cutoff for outgate stress.
	OutgateSlowHigh float64

	// Average hours at berth at or above which the berth flag is HIGH.
	BerthHighHours float64

	// BerthTopN caps the number of individual vessel rows in the snapshot.
	BerthTopN int
}

// DefaultThresholds mirrors the operational defaults agreed with the BI team.
func DefaultThresholds() Thresholds {
	return Thresholds{
		WindowWeeks:        4,
		CongestedBuckets:   []string{"9-12 Days", "13+ Days"},
		SlowOutgateBuckets: []string{"5-8 Days", "9-12 Days", "13+ Days"},
		VolumeHigh:         1.15,
		VolumeLow:          0.90,
		TerminalLoadedHigh: 0.25,
		TerminalEmptyHigh:  0.50,
		OutgateSlowHigh:    0.40,
		BerthHighHours:     24,
		BerthTopN:          5,
	}
}
