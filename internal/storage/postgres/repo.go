package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"portsignal/internal/storage"
)

// Repo implements storage.Repository for Postgres using a pgx pool.
type Repo struct {
	pool *pgxpool.Pool
}

func init() {
	storage.Register("postgres", New)
}

func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Repo{pool: pool}, nil
}

func (r *Repo) Close() { r.pool.Close() }

// ReplaceTable creates, empties, and repopulates the table in one
// transaction, so dashboard readers never observe a half-written table.
func (r *Repo) ReplaceTable(ctx context.Context, schema string, spec storage.TableSpec, rows [][]any) error {
	ddl, err := createTableSQL(schema, spec)
	if err != nil {
		return err
	}
	target := qualifiedName(schema, spec.Name)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if schema != "" {
		if _, err := tx.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+sqlIdent(schema)); err != nil {
			return fmt.Errorf("create schema %s: %w", schema, err)
		}
	}
	if _, err := tx.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", spec.Name, err)
	}
	if _, err := tx.Exec(ctx, "DELETE FROM "+target); err != nil {
		return fmt.Errorf("clear table %s: %w", spec.Name, err)
	}

	if len(rows) > 0 {
		q, args := insertSQL(target, spec.ColumnNames(), rows)
		if _, err := tx.Exec(ctx, q, args...); err != nil {
			return fmt.Errorf("insert into %s: %w", spec.Name, err)
		}
	}

	return tx.Commit(ctx)
}

func createTableSQL(schema string, spec storage.TableSpec) (string, error) {
	if strings.TrimSpace(spec.Name) == "" {
		return "", fmt.Errorf("postgres: table name is empty")
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
		qualifiedName(schema, spec.Name),
		strings.Join(parts, ",\n  "),
	), nil
}

func columnType(portable string) (string, error) {
	switch portable {
	case "text":
		return "TEXT", nil
	case "double":
		return "DOUBLE PRECISION", nil
	case "date":
		return "DATE", nil
	case "timestamptz":
		return "TIMESTAMPTZ", nil
	default:
		return "", fmt.Errorf("unsupported column type %q", portable)
	}
}

func insertSQL(target string, columns []string, rows [][]any) (string, []any) {
	colList := make([]string, len(columns))
	for i, c := range columns {
		colList[i] = sqlIdent(c)
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(target)
	b.WriteString(" (")
	b.WriteString(strings.Join(colList, ", "))
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	n := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", n)
			n++
			args = append(args, row[j])
		}
		b.WriteString(")")
	}
	return b.String(), args
}

func qualifiedName(schema, table string) string {
	if schema == "" {
		return sqlIdent(table)
	}
	return sqlIdent(schema) + "." + sqlIdent(table)
}

func sqlIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}
