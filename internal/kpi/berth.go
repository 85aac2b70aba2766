package kpi

import (
	"sort"

	"portsignal/internal/signal"
)

const (
	berthRecordSummary = "summary"
	berthRecordVessel  = "vessel"
)

// BerthRow is one row of the berth snapshot: either the single summary row
// or one of the top-N vessels by time at berth.
type BerthRow struct {
	RecordType   string
	Vessel       string // empty on the summary row
	Terminal     string // empty on the summary row and when the vendor omits it
	HoursAtBerth float64
	AvgHours     float64
	Flag         Flag
}

// BuildBerthSnapshot produces the summary row followed by up to t.BerthTopN
// vessel rows sorted by hours at berth descending, vessel name ascending on
// ties. Every row repeats the run-level average and flag so each row is
// self-contained for dashboard filters.
//
// Errors:
//   - *EmptyBucketError when no vessels are at berth; an average over zero
//     vessels is undefined.
func BuildBerthSnapshot(recs []signal.BerthVessel, t Thresholds) ([]BerthRow, error) {
	if len(recs) == 0 {
		return nil, &EmptyBucketError{Domain: "berth", Group: "vessels"}
	}

	var sum float64
	for _, v := range recs {
		sum += v.HoursAtBerth
	}
	avg := sum / float64(len(recs))
	flag := shareFlag(avg, t.BerthHighHours)

	vessels := append([]signal.BerthVessel(nil), recs...)
	sort.Slice(vessels, func(a, b int) bool {
		if vessels[a].HoursAtBerth != vessels[b].HoursAtBerth {
			return vessels[a].HoursAtBerth > vessels[b].HoursAtBerth
		}
		return vessels[a].Vessel < vessels[b].Vessel
	})

	topN := t.BerthTopN
	if topN < 0 {
		topN = 0
	}
	if topN > len(vessels) {
		topN = len(vessels)
	}

	rows := make([]BerthRow, 0, topN+1)
	rows = append(rows, BerthRow{
		RecordType: berthRecordSummary,
		AvgHours:   avg,
		Flag:       flag,
	})
	for _, v := range vessels[:topN] {
		rows = append(rows, BerthRow{
			RecordType:   berthRecordVessel,
			Vessel:       v.Vessel,
			Terminal:     v.Terminal,
			HoursAtBerth: v.HoursAtBerth,
			AvgHours:     avg,
			Flag:         flag,
		})
	}
	return rows, nil
}
