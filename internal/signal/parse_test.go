package signal

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

// decode round-trips a JSON literal through encoding/json so parser inputs
// have exactly the types a real fetch would produce (float64 numbers,
// map[string]any objects).
func decode(t *testing.T, raw string) any {
	t.Helper()
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		t.Fatalf("bad fixture: %v", err)
	}
	return v
}

func TestParseWeeklyVolumes_BareArraySortedAscending(t *testing.T) {
	payload := decode(t, `[
		{"weekStartDate": "2025-06-09", "inboundFullContainers": 110},
		{"weekStartDate": "2025-06-02", "inboundFullContainers": 100}
	]`)

	recs, err := ParseWeeklyVolumes(payload)
	if err != nil {
		t.Fatalf("ParseWeeklyVolumes() err=%v, want nil", err)
	}
	if len(recs) != 2 {
		t.Fatalf("recs.len=%d, want 2", len(recs))
	}
	if got := recs[0].WeekStart.Format("2006-01-02"); got != "2025-06-02" {
		t.Fatalf("recs[0].WeekStart=%s, want 2025-06-02 (sorted ascending)", got)
	}
	if recs[0].InboundFullTEU != 100 {
		t.Fatalf("recs[0].InboundFullTEU=%v, want 100", recs[0].InboundFullTEU)
	}
}

func TestParseWeeklyVolumes_EnvelopeAndAliases(t *testing.T) {
	// Envelope key plus snake_case aliases plus a string-typed count, all of
	// which appear in older vendor payload snapshots.
	payload := decode(t, `{"weeklyVolumesComparison": [
		{"week_start_date": "2025-06-02", "inbound_full_teu": "250.5"}
	]}`)

	recs, err := ParseWeeklyVolumes(payload)
	if err != nil {
		t.Fatalf("ParseWeeklyVolumes() err=%v, want nil", err)
	}
	if recs[0].InboundFullTEU != 250.5 {
		t.Fatalf("InboundFullTEU=%v, want 250.5", recs[0].InboundFullTEU)
	}
}

func TestParseWeeklyVolumes_ShapeErrors(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		wantMsg string
	}{
		{"scalar payload", `42`, "expected list or object"},
		{"envelope without known key", `{"unexpected": []}`, "expected list payload or envelope"},
		{"empty list", `[]`, "no records"},
		{"missing week field", `[{"inboundFullContainers": 1}]`, "missing week start date"},
		{"non-numeric count", `[{"weekStartDate": "2025-06-02", "inboundFullContainers": "lots"}]`, "not numeric"},
		{"bad date", `[{"weekStartDate": "junk", "inboundFullContainers": 1}]`, "week start date"},
		{"element not object", `["nope"]`, "not an object"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseWeeklyVolumes(decode(t, tc.payload))
			var se *ShapeError
			if !errors.As(err, &se) {
				t.Fatalf("err=%v, want *ShapeError", err)
			}
			if !strings.Contains(err.Error(), tc.wantMsg) {
				t.Fatalf("err=%q, want substring %q", err.Error(), tc.wantMsg)
			}
		})
	}
}

func TestParseTerminalContainers_NormalizesLoadType(t *testing.T) {
	payload := decode(t, `{"ContainersAtTerminalData": [
		{"loadType": "LOADED", "bucket": "0-4 Days", "containers": 70},
		{"load_type": "loaded", "agingBucket": "13+ Days", "containerCount": 30}
	]}`)

	recs, err := ParseTerminalContainers(payload)
	if err != nil {
		t.Fatalf("ParseTerminalContainers() err=%v, want nil", err)
	}
	for i, r := range recs {
		if r.LoadType != "Loaded" {
			t.Fatalf("recs[%d].LoadType=%q, want %q", i, r.LoadType, "Loaded")
		}
	}
	if recs[1].Bucket != "13+ Days" || recs[1].Count != 30 {
		t.Fatalf("recs[1]={%q %v}, want {13+ Days 30}", recs[1].Bucket, recs[1].Count)
	}
}

func TestParseOutgateContainers_StatusAliases(t *testing.T) {
	payload := decode(t, `[
		{"containerStatus": "customs hold", "bucket": "5-8 Days", "value": 12}
	]`)

	recs, err := ParseOutgateContainers(payload)
	if err != nil {
		t.Fatalf("ParseOutgateContainers() err=%v, want nil", err)
	}
	if recs[0].Status != "Customs Hold" {
		t.Fatalf("Status=%q, want %q", recs[0].Status, "Customs Hold")
	}
	if recs[0].Count != 12 {
		t.Fatalf("Count=%v, want 12", recs[0].Count)
	}
}

func TestParseBerthVessels_TerminalOptional(t *testing.T) {
	payload := decode(t, `{"FetchQuickviewDashboardBerthData": [
		{"vesselName": " EVER ACE ", "timeAtBerthHours": 30.5, "terminal": "T1"},
		{"vessel": "MSC OSCAR", "hoursAtBerth": 12}
	]}`)

	recs, err := ParseBerthVessels(payload)
	if err != nil {
		t.Fatalf("ParseBerthVessels() err=%v, want nil", err)
	}
	if recs[0].Vessel != "EVER ACE" || recs[0].Terminal != "T1" || recs[0].HoursAtBerth != 30.5 {
		t.Fatalf("recs[0]=%+v, want trimmed vessel, terminal T1, 30.5h", recs[0])
	}
	if recs[1].Terminal != "" {
		t.Fatalf("recs[1].Terminal=%q, want empty when vendor omits it", recs[1].Terminal)
	}
}

func TestParseDate_AcceptedShapes(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want string
	}{
		{"iso date", "2025-06-02", "2025-06-02"},
		{"rfc3339", "2025-06-02T10:30:00Z", "2025-06-02"},
		{"iso datetime no zone", "2025-06-02T10:30:00", "2025-06-02"},
		{"space datetime", "2025-06-02 10:30:00", "2025-06-02"},
		{"us date", "06/02/2025", "2025-06-02"},
		{"epoch seconds", float64(1748822400), "2025-06-02"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts, err := parseDate(tc.in)
			if err != nil {
				t.Fatalf("parseDate(%v) err=%v, want nil", tc.in, err)
			}
			if got := ts.Format("2006-01-02"); got != tc.want {
				t.Fatalf("parseDate(%v)=%s, want %s", tc.in, got, tc.want)
			}
			if ts.Location() != time.UTC {
				t.Fatalf("parseDate(%v) location=%v, want UTC", tc.in, ts.Location())
			}
		})
	}
}

func TestToFloat(t *testing.T) {
	if f, ok := toFloat(json.Number("7.5")); !ok || f != 7.5 {
		t.Fatalf("toFloat(json.Number)=%v,%v, want 7.5,true", f, ok)
	}
	if f, ok := toFloat(" 12 "); !ok || f != 12 {
		t.Fatalf("toFloat(padded string)=%v,%v, want 12,true", f, ok)
	}
	if _, ok := toFloat(true); ok {
		t.Fatalf("toFloat(bool) ok=true, want false")
	}
}

func TestNormalizeLabel(t *testing.T) {
	cases := map[string]string{
		"  loaded ":    "Loaded",
		"EMPTY":        "Empty",
		"customs hold": "Customs Hold",
	}
	for in, want := range cases {
		if got := normalizeLabel(in); got != want {
			t.Fatalf("normalizeLabel(%q)=%q, want %q", in, got, want)
		}
	}
}
