package kpi

import (
	"sort"

	"portsignal/internal/signal"
)

// OutgateRow is one customs status's share of containers that left the
// terminal from a slow dwell bucket.
type OutgateRow struct {
	Status          string
	TotalContainers float64
	SlowContainers  float64
	SlowPct         float64
	Flag            Flag
}

// BuildOutgateStress aggregates outgated-container counts per customs status,
// one row per status sorted ascending by status name.
//
// Unlike terminal congestion there is no load-type dimension here: the
// vendor breaks outgate metrics down by customs status only, and a single
// HIGH cutoff applies to every status.
//
// Errors:
//   - *EmptyBucketError when a status present in the input has a zero total.
func BuildOutgateStress(recs []signal.OutgateContainer, t Thresholds) ([]OutgateRow, error) {
	slow := bucketSet(t.SlowOutgateBuckets)

	totals := map[string]float64{}
	slowCounts := map[string]float64{}
	for _, r := range recs {
		totals[r.Status] += r.Count
		if slow[r.Bucket] {
			slowCounts[r.Status] += r.Count
		}
	}

	statuses := make([]string, 0, len(totals))
	for s := range totals {
		statuses = append(statuses, s)
	}
	sort.Strings(statuses)

	rows := make([]OutgateRow, 0, len(statuses))
	for _, s := range statuses {
		total := totals[s]
		if total == 0 {
			return nil, &EmptyBucketError{Domain: "outgate_stress", Group: s}
		}
		share := slowCounts[s] / total
		rows = append(rows, OutgateRow{
			Status:          s,
			TotalContainers: total,
			SlowContainers:  slowCounts[s],
			SlowPct:         share,
			Flag:            shareFlag(share, t.OutgateSlowHigh),
		})
	}
	return rows, nil
}
