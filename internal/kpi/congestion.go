package kpi

import (
	"sort"

	"portsignal/internal/signal"
)

// CongestionRow is one load type's share of containers sitting in congested
// dwell buckets at the terminal.
type CongestionRow struct {
	LoadType            string
	TotalContainers     float64
	CongestedContainers float64
	CongestedPct        float64
	Flag                Flag
}

// BuildTerminalCongestion aggregates container counts per load type and
// computes the congested share, one row per load type sorted ascending by
// load type name.
//
// Errors:
//   - *EmptyBucketError when a load type present in the input has a zero
//     total count. The ratio is undefined there, and 0% would misreport a
//     possibly stale terminal feed as healthy.
func BuildTerminalCongestion(recs []signal.TerminalContainer, t Thresholds) ([]CongestionRow, error) {
	congested := bucketSet(t.CongestedBuckets)

	totals := map[string]float64{}
	inBucket := map[string]float64{}
	for _, r := range recs {
		totals[r.LoadType] += r.Count
		if congested[r.Bucket] {
			inBucket[r.LoadType] += r.Count
		}
	}

	loadTypes := make([]string, 0, len(totals))
	for lt := range totals {
		loadTypes = append(loadTypes, lt)
	}
	sort.Strings(loadTypes)

	rows := make([]CongestionRow, 0, len(loadTypes))
	for _, lt := range loadTypes {
		total := totals[lt]
		if total == 0 {
			return nil, &EmptyBucketError{Domain: "terminal_congestion", Group: lt}
		}
		share := inBucket[lt] / total
		rows = append(rows, CongestionRow{
			LoadType:            lt,
			TotalContainers:     total,
			CongestedContainers: inBucket[lt],
			CongestedPct:        share,
			Flag:                congestionFlag(lt, share, t),
		})
	}
	return rows, nil
}

func bucketSet(buckets []string) map[string]bool {
	set := make(map[string]bool, len(buckets))
	for _, b := range buckets {
		set[b] = true
	}
	return set
}
