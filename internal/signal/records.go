// Package signal decodes the port-operations vendor's JSON payloads into
// typed raw records for the KPI builders.
//
// The vendor's internal endpoints are not a stable API: field names drift
// between releases and list payloads are sometimes wrapped in an envelope
// object. This package absorbs both (known key aliases, envelope keys) and
// fails with *ShapeError for anything it cannot account for.
package signal

import "time"

// WeeklyVolume is one week of inbound full-container volume.
type WeeklyVolume struct {
	WeekStart      time.Time
	InboundFullTEU float64
}

// TerminalContainer is one (load type, dwell bucket) cell of the
// containers-at-terminal breakdown.
type TerminalContainer struct {
	LoadType string // "Loaded" or "Empty" after normalization
	Bucket   string // dwell bucket label, e.g. "9-12 Days"
	Count    float64
}

// OutgateContainer is one (customs status, dwell bucket) cell of the
// outgated-container metrics. Status carries Import/Export-style customs
// status, not load type; the vendor models these two breakdowns differently
// and the pipeline keeps that asymmetry.
type OutgateContainer struct {
	Status string
	Bucket string
	Count  float64
}

// BerthVessel is one vessel currently at berth.
type BerthVessel struct {
	Vessel       string
	Terminal     string // optional; empty when the vendor omits it
	HoursAtBerth float64
}
