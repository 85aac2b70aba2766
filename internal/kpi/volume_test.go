package kpi

import (
	"errors"
	"math"
	"testing"
	"time"

	"portsignal/internal/signal"
)

func weeklyVolumes(t *testing.T, teus ...float64) []signal.WeeklyVolume {
	t.Helper()
	start := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	out := make([]signal.WeeklyVolume, len(teus))
	for i, v := range teus {
		out[i] = signal.WeeklyVolume{WeekStart: start.AddDate(0, 0, 7*i), InboundFullTEU: v}
	}
	return out
}

func approxEq(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestBuildVolumePressure_RollingWindowAndFlags(t *testing.T) {
	// Five weeks, window 4: only weeks 4 and 5 have a complete window.
	//
	// Week 4: avg(100,110,90,120)=105, index 120/105≈1.1429 -> NORMAL
	// Week 5: avg(110,90,120,130)=112.5, index 130/112.5≈1.1556 -> HIGH
	recs := weeklyVolumes(t, 100, 110, 90, 120, 130)

	rows, err := BuildVolumePressure(recs, DefaultThresholds())
	if err != nil {
		t.Fatalf("BuildVolumePressure() err=%v, want nil", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows.len=%d, want 2 (incomplete windows omitted)", len(rows))
	}

	if !approxEq(rows[0].RollingAvgTEU, 105) {
		t.Fatalf("rows[0].RollingAvgTEU=%v, want 105", rows[0].RollingAvgTEU)
	}
	if !approxEq(rows[0].Index, 120.0/105.0) {
		t.Fatalf("rows[0].Index=%v, want %v", rows[0].Index, 120.0/105.0)
	}
	if rows[0].Flag != FlagNormal {
		t.Fatalf("rows[0].Flag=%s, want NORMAL", rows[0].Flag)
	}

	if !approxEq(rows[1].RollingAvgTEU, 112.5) {
		t.Fatalf("rows[1].RollingAvgTEU=%v, want 112.5", rows[1].RollingAvgTEU)
	}
	if rows[1].Flag != FlagHigh {
		t.Fatalf("rows[1].Flag=%s, want HIGH (index≈1.1556)", rows[1].Flag)
	}
}

func TestBuildVolumePressure_SortsUnorderedInput(t *testing.T) {
	recs := weeklyVolumes(t, 100, 110, 90, 120)
	recs[0], recs[3] = recs[3], recs[0]

	rows, err := BuildVolumePressure(recs, DefaultThresholds())
	if err != nil {
		t.Fatalf("BuildVolumePressure() err=%v, want nil", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows.len=%d, want 1", len(rows))
	}
	if !approxEq(rows[0].RollingAvgTEU, 105) {
		t.Fatalf("RollingAvgTEU=%v, want 105 regardless of input order", rows[0].RollingAvgTEU)
	}
}

func TestBuildVolumePressure_ScaleInvariantIndex(t *testing.T) {
	small, err := BuildVolumePressure(weeklyVolumes(t, 10, 11, 9, 12, 13), DefaultThresholds())
	if err != nil {
		t.Fatalf("small: %v", err)
	}
	big, err := BuildVolumePressure(weeklyVolumes(t, 10000, 11000, 9000, 12000, 13000), DefaultThresholds())
	if err != nil {
		t.Fatalf("big: %v", err)
	}
	for i := range small {
		if !approxEq(small[i].Index, big[i].Index) {
			t.Fatalf("index differs at row %d: %v vs %v", i, small[i].Index, big[i].Index)
		}
		if small[i].Flag != big[i].Flag {
			t.Fatalf("flag differs at row %d: %s vs %s", i, small[i].Flag, big[i].Flag)
		}
	}
}

func TestBuildVolumePressure_InsufficientHistory(t *testing.T) {
	_, err := BuildVolumePressure(weeklyVolumes(t, 100, 110, 90), DefaultThresholds())

	var ih *InsufficientHistoryError
	if !errors.As(err, &ih) {
		t.Fatalf("err=%v, want *InsufficientHistoryError", err)
	}
	if ih.Weeks != 3 || ih.Window != 4 {
		t.Fatalf("got weeks=%d window=%d, want 3 and 4", ih.Weeks, ih.Window)
	}
}

func TestBuildVolumePressure_ZeroWindowAverage(t *testing.T) {
	_, err := BuildVolumePressure(weeklyVolumes(t, 0, 0, 0, 0), DefaultThresholds())

	var eb *EmptyBucketError
	if !errors.As(err, &eb) {
		t.Fatalf("err=%v, want *EmptyBucketError", err)
	}
	if eb.Domain != "volume_pressure" {
		t.Fatalf("Domain=%q, want volume_pressure", eb.Domain)
	}
}

func TestVolumeFlag_Boundaries(t *testing.T) {
	th := DefaultThresholds()
	cases := []struct {
		index float64
		want  Flag
	}{
		{1.15, FlagHigh},   // exactly at the HIGH cutoff
		{1.1499, FlagNormal},
		{1.00, FlagNormal},
		{0.9001, FlagNormal},
		{0.90, FlagLow},    // exactly at the LOW cutoff
		{0.50, FlagLow},
		{2.00, FlagHigh},
	}
	for _, tc := range cases {
		if got := volumeFlag(tc.index, th.VolumeHigh, th.VolumeLow); got != tc.want {
			t.Fatalf("volumeFlag(%v)=%s, want %s", tc.index, got, tc.want)
		}
	}
}
