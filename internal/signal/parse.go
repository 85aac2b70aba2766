package signal

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Envelope keys and field aliases observed across vendor releases. New
// aliases may be appended; removing one is a breaking change for older
// payload snapshots kept in fixtures.
var (
	weeklyEnvelopeKeys   = []string{"weeklyVolumesComparison", "data", "items"}
	terminalEnvelopeKeys = []string{"ContainersAtTerminalData", "data", "items"}
	outgateEnvelopeKeys  = []string{"FetchOutgatedContainerMetricsData", "data", "items"}
	berthEnvelopeKeys    = []string{"FetchQuickviewDashboardBerthData", "vessels", "data", "items"}

	weekStartAliases = []string{"weekStartDate", "week_start_date", "week", "startDate", "date"}
	inboundAliases   = []string{"inboundFullContainers", "inbound_full_containers", "inboundFullTeu", "inbound_full_teu", "inboundFullTEU"}
	loadTypeAliases  = []string{"loadType", "load_type", "status"}
	statusAliases    = []string{"status", "containerStatus", "loadType"}
	bucketAliases    = []string{"bucket", "agingBucket", "ageBucket", "aging_bucket"}
	countAliases     = []string{"containers", "containerCount", "value", "count"}
	vesselAliases    = []string{"vessel", "vesselName", "name"}
	hoursAliases     = []string{"timeAtBerthHours", "hoursAtBerth", "time_at_berth_hours", "hours"}
	terminalAliases  = []string{"terminal", "terminalName"}
)

var titleCaser = cases.Title(language.English)

// ParseWeeklyVolumes decodes the weekly-volumes payload into records sorted
// ascending by week start date.
func ParseWeeklyVolumes(payload any) ([]WeeklyVolume, error) {
	const domain = "weekly_volumes"

	items, err := extractList(domain, payload, weeklyEnvelopeKeys)
	if err != nil {
		return nil, err
	}

	out := make([]WeeklyVolume, 0, len(items))
	for i, item := range items {
		rawWeek, ok := requiredKey(item, weekStartAliases)
		if !ok {
			return nil, shapeErrf(domain, i, "missing week start date (any of %v)", weekStartAliases)
		}
		week, err := parseDate(rawWeek)
		if err != nil {
			return nil, shapeErrf(domain, i, "week start date: %v", err)
		}

		rawTEU, ok := requiredKey(item, inboundAliases)
		if !ok {
			return nil, shapeErrf(domain, i, "missing inbound full TEU (any of %v)", inboundAliases)
		}
		teu, ok := toFloat(rawTEU)
		if !ok {
			return nil, shapeErrf(domain, i, "inbound full TEU is not numeric: %v", rawTEU)
		}

		out = append(out, WeeklyVolume{WeekStart: week, InboundFullTEU: teu})
	}

	sort.Slice(out, func(a, b int) bool { return out[a].WeekStart.Before(out[b].WeekStart) })
	return out, nil
}

// ParseTerminalContainers decodes the containers-at-terminal payload.
// Load types are title-cased so "loaded"/"LOADED" match the rule tables.
func ParseTerminalContainers(payload any) ([]TerminalContainer, error) {
	const domain = "terminal_containers"

	items, err := extractList(domain, payload, terminalEnvelopeKeys)
	if err != nil {
		return nil, err
	}

	out := make([]TerminalContainer, 0, len(items))
	for i, item := range items {
		loadType, ok := requiredString(item, loadTypeAliases)
		if !ok {
			return nil, shapeErrf(domain, i, "missing load type (any of %v)", loadTypeAliases)
		}
		bucket, ok := requiredString(item, bucketAliases)
		if !ok {
			return nil, shapeErrf(domain, i, "missing dwell bucket (any of %v)", bucketAliases)
		}
		rawCount, ok := requiredKey(item, countAliases)
		if !ok {
			return nil, shapeErrf(domain, i, "missing container count (any of %v)", countAliases)
		}
		count, ok := toFloat(rawCount)
		if !ok {
			return nil, shapeErrf(domain, i, "container count is not numeric: %v", rawCount)
		}

		out = append(out, TerminalContainer{
			LoadType: normalizeLabel(loadType),
			Bucket:   strings.TrimSpace(bucket),
			Count:    count,
		})
	}
	return out, nil
}

// ParseOutgateContainers decodes the outgated-container metrics payload.
func ParseOutgateContainers(payload any) ([]OutgateContainer, error) {
	const domain = "outgate_metrics"

	items, err := extractList(domain, payload, outgateEnvelopeKeys)
	if err != nil {
		return nil, err
	}

	out := make([]OutgateContainer, 0, len(items))
	for i, item := range items {
		status, ok := requiredString(item, statusAliases)
		if !ok {
			return nil, shapeErrf(domain, i, "missing status (any of %v)", statusAliases)
		}
		bucket, ok := requiredString(item, bucketAliases)
		if !ok {
			return nil, shapeErrf(domain, i, "missing dwell bucket (any of %v)", bucketAliases)
		}
		rawCount, ok := requiredKey(item, countAliases)
		if !ok {
			return nil, shapeErrf(domain, i, "missing container count (any of %v)", countAliases)
		}
		count, ok := toFloat(rawCount)
		if !ok {
			return nil, shapeErrf(domain, i, "container count is not numeric: %v", rawCount)
		}

		out = append(out, OutgateContainer{
			Status: normalizeLabel(status),
			Bucket: strings.TrimSpace(bucket),
			Count:  count,
		})
	}
	return out, nil
}

// ParseBerthVessels decodes the berth dashboard payload. Terminal is the only
// optional field; the vendor omits it for some berths.
func ParseBerthVessels(payload any) ([]BerthVessel, error) {
	const domain = "berth"

	items, err := extractList(domain, payload, berthEnvelopeKeys)
	if err != nil {
		return nil, err
	}

	out := make([]BerthVessel, 0, len(items))
	for i, item := range items {
		vessel, ok := requiredString(item, vesselAliases)
		if !ok {
			return nil, shapeErrf(domain, i, "missing vessel name (any of %v)", vesselAliases)
		}
		rawHours, ok := requiredKey(item, hoursAliases)
		if !ok {
			return nil, shapeErrf(domain, i, "missing time at berth (any of %v)", hoursAliases)
		}
		hours, ok := toFloat(rawHours)
		if !ok {
			return nil, shapeErrf(domain, i, "time at berth is not numeric: %v", rawHours)
		}

		terminal := ""
		if raw, ok := requiredKey(item, terminalAliases); ok {
			if s, ok := raw.(string); ok {
				terminal = strings.TrimSpace(s)
			}
		}

		out = append(out, BerthVessel{
			Vessel:       strings.TrimSpace(vessel),
			Terminal:     terminal,
			HoursAtBerth: hours,
		})
	}
	return out, nil
}

// extractList returns the payload's list of record objects.
//
// Accepted shapes:
//   - a bare JSON array of objects
//   - an object wrapping such an array under one of envelopeKeys
//
// An empty list is a shape error: every endpoint is expected to return at
// least one record for an active port, and an all-empty response usually
// means the session expired and the vendor served a stub.
func extractList(domain string, payload any, envelopeKeys []string) ([]map[string]any, error) {
	var raw []any

	switch p := payload.(type) {
	case []any:
		raw = p
	case map[string]any:
		for _, key := range envelopeKeys {
			if inner, ok := p[key].([]any); ok {
				raw = inner
				break
			}
		}
		if raw == nil {
			return nil, shapeErrf(domain, -1, "expected list payload or envelope with keys %v", envelopeKeys)
		}
	default:
		return nil, shapeErrf(domain, -1, "expected list or object payload, got %T", payload)
	}

	items := make([]map[string]any, 0, len(raw))
	for i, el := range raw {
		if el == nil {
			continue
		}
		obj, ok := el.(map[string]any)
		if !ok {
			return nil, shapeErrf(domain, i, "list element is not an object, got %T", el)
		}
		items = append(items, obj)
	}
	if len(items) == 0 {
		return nil, shapeErrf(domain, -1, "payload returned no records")
	}
	return items, nil
}

// requiredKey returns the first non-nil value among the aliased keys.
func requiredKey(item map[string]any, aliases []string) (any, bool) {
	for _, key := range aliases {
		if v, ok := item[key]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func requiredString(item map[string]any, aliases []string) (string, bool) {
	v, ok := requiredKey(item, aliases)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

// toFloat coerces the value types a decoded JSON payload can carry for a
// numeric field. Numeric strings are accepted because the vendor formats
// some counts as strings.
func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"01/02/2006",
}

// parseDate accepts the date shapes seen in vendor payloads: ISO strings
// (with or without a time part), US-style dates, and epoch seconds.
func parseDate(v any) (time.Time, error) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range dateLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC().Truncate(24 * time.Hour), nil
			}
		}
		return time.Time{}, &ShapeError{Domain: "date", Index: -1, Msg: "unsupported date format: " + s}
	case float64:
		return time.Unix(int64(t), 0).UTC().Truncate(24 * time.Hour), nil
	case json.Number:
		sec, err := t.Int64()
		if err != nil {
			return time.Time{}, &ShapeError{Domain: "date", Index: -1, Msg: "non-integer epoch: " + t.String()}
		}
		return time.Unix(sec, 0).UTC().Truncate(24 * time.Hour), nil
	default:
		return time.Time{}, shapeErrf("date", -1, "unsupported date value type %T", v)
	}
}

// normalizeLabel trims and title-cases a vendor label so casing drift
// ("loaded", "LOADED") does not split groups downstream.
func normalizeLabel(s string) string {
	return titleCaser.String(strings.ToLower(strings.TrimSpace(s)))
}
