package sink

import (
	"context"
	"errors"
	"strings"
	"testing"

	"portsignal/internal/kpi"
	"portsignal/internal/storage"
)

// fakeRepo records ReplaceTable calls and fails the configured tables.
type fakeRepo struct {
	calls   []string
	schemas []string
	rows    map[string]int
	failOn  map[string]error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{rows: map[string]int{}, failOn: map[string]error{}}
}

func (f *fakeRepo) Close() {}

func (f *fakeRepo) ReplaceTable(ctx context.Context, schema string, spec storage.TableSpec, rows [][]any) error {
	f.calls = append(f.calls, spec.Name)
	f.schemas = append(f.schemas, schema)
	if err := f.failOn[spec.Name]; err != nil {
		return err
	}
	f.rows[spec.Name] = len(rows)
	return nil
}

func testTables() []kpi.Table {
	cols := []kpi.Column{{Name: "a", Type: "text"}}
	return []kpi.Table{
		{Name: "t1", Columns: cols, Rows: [][]any{{"x"}, {"y"}}},
		{Name: "t2", Columns: cols, Rows: [][]any{{"z"}}},
		{Name: "t3", Columns: cols},
	}
}

func TestWriteTables_AllSucceed(t *testing.T) {
	repo := newFakeRepo()
	w := &Writer{Repo: repo, Schema: "analytics"}

	if err := w.WriteTables(context.Background(), testTables()); err != nil {
		t.Fatalf("WriteTables() err=%v, want nil", err)
	}
	if len(repo.calls) != 3 {
		t.Fatalf("calls=%v, want all three tables", repo.calls)
	}
	for _, schema := range repo.schemas {
		if schema != "analytics" {
			t.Fatalf("schema=%q, want analytics", schema)
		}
	}
	if repo.rows["t1"] != 2 || repo.rows["t2"] != 1 || repo.rows["t3"] != 0 {
		t.Fatalf("rows=%v, want positional counts preserved", repo.rows)
	}
}

func TestWriteTables_FailureDoesNotStopRemainingTables(t *testing.T) {
	repo := newFakeRepo()
	repo.failOn["t1"] = errors.New("disk full")
	w := &Writer{Repo: repo}

	err := w.WriteTables(context.Background(), testTables())
	if err == nil {
		t.Fatalf("WriteTables() err=nil, want joined failure")
	}
	if !strings.Contains(err.Error(), "t1") || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("err=%q, want failed table named", err.Error())
	}
	if len(repo.calls) != 3 {
		t.Fatalf("calls=%v, want t2 and t3 still attempted after t1 failed", repo.calls)
	}
}

func TestWriteTables_MultipleFailuresAllReported(t *testing.T) {
	repo := newFakeRepo()
	repo.failOn["t1"] = errors.New("boom1")
	repo.failOn["t3"] = errors.New("boom3")
	w := &Writer{Repo: repo}

	err := w.WriteTables(context.Background(), testTables())
	if err == nil || !strings.Contains(err.Error(), "boom1") || !strings.Contains(err.Error(), "boom3") {
		t.Fatalf("err=%v, want both failures joined", err)
	}
}

func TestSpecFor_PreservesColumnOrderAndTypes(t *testing.T) {
	tbl := kpi.Table{
		Name: "t",
		Columns: []kpi.Column{
			{Name: "b", Type: "double"},
			{Name: "a", Type: "timestamptz"},
		},
	}
	spec := specFor(tbl)
	if spec.Name != "t" {
		t.Fatalf("Name=%q, want t", spec.Name)
	}
	if spec.Columns[0].Name != "b" || spec.Columns[0].Type != "double" {
		t.Fatalf("Columns[0]=%+v, want b/double", spec.Columns[0])
	}
	if spec.Columns[1].Name != "a" || spec.Columns[1].Type != "timestamptz" {
		t.Fatalf("Columns[1]=%+v, want a/timestamptz", spec.Columns[1])
	}
}
