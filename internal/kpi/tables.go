package kpi

import "time"

// Output table names. These are the contract with the BI dashboards and must
// not change without a coordinated migration.
const (
	TableVolumePressure = "kpi_weekly_volume_pressure"
	TableCongestion     = "kpi_terminal_congestion"
	TableOutgate        = "kpi_outgate_stress_by_status"
	TableBerth          = "kpi_berth_snapshot"
	TableHealth         = "kpi_health_summary"
)

// Column describes one output column with a portable type that storage
// backends map to their own DDL ("text", "double", "date", "timestamptz").
type Column struct {
	Name string
	Type string
}

// Table is one named, ordered KPI output ready for the sink. Rows are
// positional and aligned with Columns.
type Table struct {
	Name    string
	Columns []Column
	Rows    [][]any
}

// RunMeta carries the run-level fields stamped onto every output row.
// FromDate/ToDate reflect the configured query window and may be empty;
// the columns are always present and NULL when unset so the table schema
// never varies between runs.
type RunMeta struct {
	ExtractionTS time.Time
	FromDate     string
	ToDate       string
}

func (m RunMeta) stamp() []any {
	return []any{m.ExtractionTS.UTC(), nullableString(m.FromDate), nullableString(m.ToDate)}
}

var metaColumns = []Column{
	{Name: "extraction_ts_utc", Type: "timestamptz"},
	{Name: "from_date", Type: "text"},
	{Name: "to_date", Type: "text"},
}

// VolumePressureTable shapes volume pressure rows for the sink.
func VolumePressureTable(rows []VolumePressureRow, meta RunMeta) Table {
	t := Table{
		Name: TableVolumePressure,
		Columns: append([]Column{
			{Name: "week_start_date", Type: "date"},
			{Name: "inbound_full_teu", Type: "double"},
			{Name: "rolling_4w_avg_teu", Type: "double"},
			{Name: "volume_pressure_index", Type: "double"},
			{Name: "flag", Type: "text"},
		}, metaColumns...),
	}
	for _, r := range rows {
		t.Rows = append(t.Rows, append([]any{
			r.WeekStart.Format("2006-01-02"),
			r.InboundFullTEU,
			r.RollingAvgTEU,
			r.Index,
			string(r.Flag),
		}, meta.stamp()...))
	}
	return t
}

// CongestionTable shapes terminal congestion rows for the sink.
func CongestionTable(rows []CongestionRow, meta RunMeta) Table {
	t := Table{
		Name: TableCongestion,
		Columns: append([]Column{
			{Name: "load_type", Type: "text"},
			{Name: "total_containers", Type: "double"},
			{Name: "congested_containers", Type: "double"},
			{Name: "congested_pct", Type: "double"},
			{Name: "flag", Type: "text"},
		}, metaColumns...),
	}
	for _, r := range rows {
		t.Rows = append(t.Rows, append([]any{
			r.LoadType,
			r.TotalContainers,
			r.CongestedContainers,
			r.CongestedPct,
			string(r.Flag),
		}, meta.stamp()...))
	}
	return t
}

// OutgateTable shapes outgate stress rows for the sink.
func OutgateTable(rows []OutgateRow, meta RunMeta) Table {
	t := Table{
		Name: TableOutgate,
		Columns: append([]Column{
			{Name: "status", Type: "text"},
			{Name: "total_containers", Type: "double"},
			{Name: "slow_containers", Type: "double"},
			{Name: "slow_pct", Type: "double"},
			{Name: "flag", Type: "text"},
		}, metaColumns...),
	}
	for _, r := range rows {
		t.Rows = append(t.Rows, append([]any{
			r.Status,
			r.TotalContainers,
			r.SlowContainers,
			r.SlowPct,
			string(r.Flag),
		}, meta.stamp()...))
	}
	return t
}

// BerthTable shapes berth snapshot rows for the sink. Vessel-level fields are
// NULL on the summary row rather than zero so averages over the column stay
// honest.
func BerthTable(rows []BerthRow, meta RunMeta) Table {
	t := Table{
		Name: TableBerth,
		Columns: append([]Column{
			{Name: "record_type", Type: "text"},
			{Name: "vessel", Type: "text"},
			{Name: "terminal", Type: "text"},
			{Name: "time_at_berth_hours", Type: "double"},
			{Name: "avg_time_at_berth_hours", Type: "double"},
			{Name: "flag", Type: "text"},
		}, metaColumns...),
	}
	for _, r := range rows {
		var vessel, terminal, hours any
		if r.RecordType == berthRecordVessel {
			vessel = r.Vessel
			terminal = nullableString(r.Terminal)
			hours = r.HoursAtBerth
		}
		t.Rows = append(t.Rows, append([]any{
			r.RecordType,
			vessel,
			terminal,
			hours,
			r.AvgHours,
			string(r.Flag),
		}, meta.stamp()...))
	}
	return t
}

// HealthTable shapes the single health summary row for the sink. The query
// window columns are omitted: the summary describes the run, not a window.
func HealthTable(s HealthSummary, meta RunMeta) Table {
	return Table{
		Name: TableHealth,
		Columns: []Column{
			{Name: "volume_pressure_flag", Type: "text"},
			{Name: "terminal_congestion_loaded_flag", Type: "text"},
			{Name: "terminal_congestion_empty_flag", Type: "text"},
			{Name: "outgate_stress_high_statuses", Type: "text"},
			{Name: "berth_flag", Type: "text"},
			{Name: "extraction_ts_utc", Type: "timestamptz"},
		},
		Rows: [][]any{{
			string(s.VolumePressureFlag),
			string(s.TerminalLoadedFlag),
			string(s.TerminalEmptyFlag),
			s.OutgateHighStatuses,
			string(s.BerthFlag),
			meta.ExtractionTS.UTC(),
		}},
	}
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
