package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"portsignal/internal/storage"
)

// Repo implements storage.Repository for SQLite.
//
// Key design points vs Postgres:
//   - SQLite has no schema namespaces; the configured schema is ignored.
//   - SQLite has no native TIMESTAMPTZ type. Timestamps are stored as
//     RFC3339Nano TEXT for reliable round-trip behavior and easy debugging.
type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("sqlite", New)
}

func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

// ReplaceTable creates, empties, and repopulates the table in one
// transaction. time.Time values are converted to RFC3339Nano strings before
// binding; everything else passes through to the driver.
func (r *Repo) ReplaceTable(ctx context.Context, schema string, spec storage.TableSpec, rows [][]any) error {
	_ = schema // no schema namespaces in SQLite

	ddl, err := createTableSQL(spec)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", spec.Name, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM "+sqlIdent(spec.Name)); err != nil {
		return fmt.Errorf("clear table %s: %w", spec.Name, err)
	}

	if len(rows) > 0 {
		q, args := insertSQL(spec.Name, spec.ColumnNames(), rows)
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert into %s: %w", spec.Name, err)
		}
	}

	return tx.Commit()
}

func createTableSQL(spec storage.TableSpec) (string, error) {
	if strings.TrimSpace(spec.Name) == "" {
		return "", fmt.Errorf("sqlite: table name is empty")
	}

	parts := make([]string, 0, len(spec.Columns))
	for _, c := range spec.Columns {
		t, err := columnType(c.Type)
		if err != nil {
			return "", fmt.Errorf("%s.%s: %w", spec.Name, c.Name, err)
		}
		parts = append(parts, fmt.Sprintf("%s %s", sqlIdent(c.Name), t))
	}

	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (\n  %s\n);",
		sqlIdent(spec.Name),
		strings.Join(parts, ",\n  "),
	), nil
}

func columnType(portable string) (string, error) {
	switch portable {
	case "text", "date", "timestamptz":
		// Dates and timestamps get TEXT affinity; see package comment.
		return "TEXT", nil
	case "double":
		return "REAL", nil
	default:
		return "", fmt.Errorf("unsupported column type %q", portable)
	}
}

func insertSQL(table string, columns []string, rows [][]any) (string, []any) {
	colList := make([]string, len(columns))
	for i, c := range columns {
		colList[i] = sqlIdent(c)
	}
	placeholders := "(" + strings.TrimRight(strings.Repeat("?,", len(columns)), ",") + ")"

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(sqlIdent(table))
	b.WriteString(" (")
	b.WriteString(strings.Join(colList, ", "))
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(placeholders)
		for _, v := range row {
			args = append(args, bindValue(v))
		}
	}
	return b.String(), args
}

// bindValue converts time.Time to RFC3339Nano TEXT. modernc.org/sqlite would
// otherwise store a driver-specific format that is painful to query.
func bindValue(v any) any {
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(time.RFC3339Nano)
	}
	return v
}

func sqlIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}
