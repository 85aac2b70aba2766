package kpi

// Flag is the categorical status assigned to a computed metric.
type Flag string

const (
	FlagHigh   Flag = "HIGH"
	FlagLow    Flag = "LOW"
	FlagNormal Flag = "NORMAL"

	// FlagUnknown appears only in the health summary, for domains whose
	// table could not be built this run or whose group was absent.
	FlagUnknown Flag = "UNKNOWN"
)

// volumeFlag evaluates the volume pressure index.
//
// Comparisons are non-strict on the HIGH/LOW side so a metric sitting exactly
// on a cutoff flags the same way on every run. Values strictly between low
// and high are NORMAL; the bands are intentionally not adjacent.
func volumeFlag(index, high, low float64) Flag {
	switch {
	case index >= high:
		return FlagHigh
	case index <= low:
		return FlagLow
	default:
		return FlagNormal
	}
}

// shareFlag evaluates a [0,1] share against a single HIGH cutoff.
func shareFlag(share, high float64) Flag {
	if share >= high {
		return FlagHigh
	}
	return FlagNormal
}

// congestionFlag picks the cutoff by load type. Load types other than
// Loaded/Empty have no agreed cutoff and stay NORMAL.
func congestionFlag(loadType string, share float64, t Thresholds) Flag {
	switch loadType {
	case "Loaded":
		return shareFlag(share, t.TerminalLoadedHigh)
	case "Empty":
		return shareFlag(share, t.TerminalEmptyHigh)
	default:
		return FlagNormal
	}
}
