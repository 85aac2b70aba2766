package kpi

import "strings"

// HealthSummary is the single cross-domain roll-up row.
type HealthSummary struct {
	VolumePressureFlag  Flag
	TerminalLoadedFlag  Flag
	TerminalEmptyFlag   Flag
	OutgateHighStatuses string // comma-joined, "NONE" when no status is HIGH
	BerthFlag           Flag
}

// BuildHealthSummary combines the latest state of each KPI table. Tables that
// failed to build this run are passed as nil and contribute UNKNOWN (or NONE
// for the outgate status list), so the summary row always exists even on a
// partially failed run.
func BuildHealthSummary(
	volume []VolumePressureRow,
	congestion []CongestionRow,
	outgate []OutgateRow,
	berth []BerthRow,
) HealthSummary {
	s := HealthSummary{
		VolumePressureFlag:  FlagUnknown,
		TerminalLoadedFlag:  FlagUnknown,
		TerminalEmptyFlag:   FlagUnknown,
		OutgateHighStatuses: "NONE",
		BerthFlag:           FlagUnknown,
	}

	if len(volume) > 0 {
		// Rows are ascending by week; the last one is the current week.
		s.VolumePressureFlag = volume[len(volume)-1].Flag
	}

	for _, row := range congestion {
		switch row.LoadType {
		case "Loaded":
			s.TerminalLoadedFlag = row.Flag
		case "Empty":
			s.TerminalEmptyFlag = row.Flag
		}
	}

	var high []string
	for _, row := range outgate {
		if row.Flag == FlagHigh {
			high = append(high, row.Status)
		}
	}
	if len(high) > 0 {
		s.OutgateHighStatuses = strings.Join(high, ", ")
	}

	for _, row := range berth {
		if row.RecordType == berthRecordSummary {
			s.BerthFlag = row.Flag
			break
		}
	}

	return s
}
