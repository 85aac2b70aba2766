package kpi

import (
	"sort"
	"time"

	"portsignal/internal/signal"
)

// VolumePressureRow is one complete-window week of the volume pressure table.
type VolumePressureRow struct {
	WeekStart      time.Time
	InboundFullTEU float64
	RollingAvgTEU  float64
	Index          float64
	Flag           Flag
}

// BuildVolumePressure computes the rolling average and pressure index per
// week, ascending by week start date.
//
// The rolling average spans t.WindowWeeks trailing weeks inclusive of the
// current week. Weeks without a complete window are omitted entirely; a
// partial average over fewer weeks would understate early-history pressure
// and is worse than no row.
//
// Errors:
//   - *InsufficientHistoryError when fewer than t.WindowWeeks weeks exist,
//     i.e. the table would have no rows at all.
//   - *EmptyBucketError when a window sums to zero TEU, which would make the
//     index undefined for that week.
func BuildVolumePressure(recs []signal.WeeklyVolume, t Thresholds) ([]VolumePressureRow, error) {
	window := t.WindowWeeks
	if window <= 0 {
		window = 1
	}
	if len(recs) < window {
		return nil, &InsufficientHistoryError{Weeks: len(recs), Window: window}
	}

	weeks := append([]signal.WeeklyVolume(nil), recs...)
	sort.Slice(weeks, func(a, b int) bool { return weeks[a].WeekStart.Before(weeks[b].WeekStart) })

	rows := make([]VolumePressureRow, 0, len(weeks)-window+1)
	for i := window - 1; i < len(weeks); i++ {
		var sum float64
		for j := i - window + 1; j <= i; j++ {
			sum += weeks[j].InboundFullTEU
		}
		avg := sum / float64(window)
		if avg == 0 {
			return nil, &EmptyBucketError{
				Domain: "volume_pressure",
				Group:  weeks[i].WeekStart.Format("2006-01-02"),
			}
		}

		index := weeks[i].InboundFullTEU / avg
		rows = append(rows, VolumePressureRow{
			WeekStart:      weeks[i].WeekStart,
			InboundFullTEU: weeks[i].InboundFullTEU,
			RollingAvgTEU:  avg,
			Index:          index,
			Flag:           volumeFlag(index, t.VolumeHigh, t.VolumeLow),
		})
	}
	return rows, nil
}
