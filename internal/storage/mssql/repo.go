package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"portsignal/internal/storage"
)

// Repo implements storage.Repository for SQL Server.
//
// SQL Server caps a statement at 2100 parameters, so inserts are chunked.
// With the widest KPI table at 9 columns that still allows >200 rows per
// statement, far above what a run produces, but the chunking keeps the
// backend safe if a table ever grows.
type Repo struct {
	db *sql.DB
}

const maxParamsPerStatement = 2000

func init() {
	storage.Register("mssql", New)
}

func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
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

func (r *Repo) ReplaceTable(ctx context.Context, schema string, spec storage.TableSpec, rows [][]any) error {
	if schema == "" {
		schema = "dbo"
	}
	ddl, err := createTableSQL(schema, spec)
	if err != nil {
		return err
	}
	target := sqlIdent(schema) + "." + sqlIdent(spec.Name)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", spec.Name, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM "+target); err != nil {
		return fmt.Errorf("clear table %s: %w", spec.Name, err)
	}

	columns := spec.ColumnNames()
	rowsPerChunk := maxParamsPerStatement / len(columns)
	for start := 0; start < len(rows); start += rowsPerChunk {
		end := start + rowsPerChunk
		if end > len(rows) {
			end = len(rows)
		}
		q, args := insertSQL(target, columns, rows[start:end])
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert into %s: %w", spec.Name, err)
		}
	}

	return tx.Commit()
}

func createTableSQL(schema string, spec storage.TableSpec) (string, error) {
	if strings.TrimSpace(spec.Name) == "" {
		return "", fmt.Errorf("mssql: table name is empty")
	}

	parts := make([]string, 0, len(spec.Columns))
	for _, c := range spec.Columns {
		t, err := columnType(c.Type)
		if err != nil {
			return "", fmt.Errorf("%s.%s: %w", spec.Name, c.Name, err)
		}
		parts = append(parts, fmt.Sprintf("%s %s", sqlIdent(c.Name), t))
	}

	// No CREATE TABLE IF NOT EXISTS in T-SQL; guard with OBJECT_ID.
	return fmt.Sprintf(
		"IF OBJECT_ID(N'%s.%s', N'U') IS NULL CREATE TABLE %s.%s (\n  %s\n);",
		schema, spec.Name,
		sqlIdent(schema), sqlIdent(spec.Name),
		strings.Join(parts, ",\n  "),
	), nil
}

func columnType(portable string) (string, error) {
	switch portable {
	case "text":
		return "NVARCHAR(512)", nil
	case "double":
		return "FLOAT", nil
	case "date":
		return "DATE", nil
	case "timestamptz":
		return "DATETIMEOFFSET", nil
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
			fmt.Fprintf(&b, "@p%d", n)
			n++
			args = append(args, row[j])
		}
		b.WriteString(")")
	}
	return b.String(), args
}

func sqlIdent(id string) string {
	return "[" + strings.ReplaceAll(id, "]", "]]") + "]"
}
