package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Config is the minimal configuration needed to construct a Repository.
//
// Edge cases:
//   - Kind may be empty; callers can derive it with KindFromDSN.
//   - DSN is passed through to the backend factory; validation is
//     backend-specific.
type Config struct {
	Kind string
	DSN  string
}

// Repository is a backend-agnostic destination for KPI tables.
//
// IMPORTANT: This interface is intentionally minimal. The pipeline replaces
// whole tables each run; there is no incremental upsert surface. Each backend
// implements the replace semantics in its own idiomatic way (Postgres
// transactions, SQLite OR the mssql batch limits).
type Repository interface {
	// Close releases backend resources. Call once at process shutdown.
	Close()

	// ReplaceTable creates the table if missing, removes all existing rows,
	// and inserts the given rows, in one transaction. schema may be empty
	// for backends without schema support.
	ReplaceTable(ctx context.Context, schema string, spec TableSpec, rows [][]any) error
}

// TableSpec describes a destination table with portable column types.
// Backends translate the portable types ("text", "double", "date",
// "timestamptz") into their own DDL.
type TableSpec struct {
	Name    string
	Columns []ColumnSpec
}

type ColumnSpec struct {
	Name string
	Type string
}

// ColumnNames returns the column names in declaration order.
func (t TableSpec) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// ---- backend factories (one per driver package, registered in init()) ----

type factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a backend under a kind (e.g. "postgres", "sqlite").
//
// Panics:
//   - If kind is empty, f is nil, or kind is already registered. Failing
//     fast here avoids ambiguous backend selection at run time.
func Register(kind string, f factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}

	factories[kind] = f
}

// New constructs a Repository using the registered backend factory.
//
// Errors:
//   - Returns an error if cfg.Kind is empty or unsupported.
//   - Returns whatever error the registered factory returns.
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported storage kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}

// KindFromDSN infers the backend kind from a DSN when no explicit kind is
// configured. Anything that is not a recognized URL scheme is treated as a
// SQLite path, which keeps local runs zero-config.
func KindFromDSN(dsn string) string {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return "postgres"
	case strings.HasPrefix(dsn, "sqlserver://"):
		return "mssql"
	default:
		return "sqlite"
	}
}
