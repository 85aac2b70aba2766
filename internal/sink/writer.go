// Package sink writes built KPI tables to the configured SQL destination.
package sink

import (
	"context"
	"errors"
	"fmt"

	"portsignal/internal/kpi"
	"portsignal/internal/metrics"
	"portsignal/internal/storage"
)

// Writer replaces each KPI table in the destination, one transaction per
// table. A failed table does not stop the remaining tables: a run that can
// land four of five tables is more useful to the dashboards than one that
// lands none, and the error still fails the run afterwards.
type Writer struct {
	Repo   storage.Repository
	Schema string
}

// WriteTables writes every table in order and returns the joined error for
// any that failed.
func (w *Writer) WriteTables(ctx context.Context, tables []kpi.Table) error {
	var errs []error
	for _, t := range tables {
		if err := w.Repo.ReplaceTable(ctx, w.Schema, specFor(t), t.Rows); err != nil {
			errs = append(errs, fmt.Errorf("write %s: %w", t.Name, err))
			continue
		}
		metrics.RecordRows(t.Name, len(t.Rows))
	}
	return errors.Join(errs...)
}

func specFor(t kpi.Table) storage.TableSpec {
	spec := storage.TableSpec{Name: t.Name, Columns: make([]storage.ColumnSpec, len(t.Columns))}
	for i, c := range t.Columns {
		spec.Columns[i] = storage.ColumnSpec{Name: c.Name, Type: c.Type}
	}
	return spec
}
