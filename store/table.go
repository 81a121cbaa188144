package store

import (
	"context"
	"errors"
	"slices"
)

var ErrNoSchema = errors.New("table has no columns")

// Record is a read-only snapshot of one row keyed by column name.
type Record map[string]any

type Op int

const (
	OpEq Op = iota
	OpGte
)

type Filter struct {
	Column string
	Op     Op
	Value  any
}

// Query selects rows matching all filters, ordered ascending by OrderBy
// when set, returning at most Limit rows when Limit > 0.
type Query struct {
	Filters []Filter
	OrderBy string
	Limit   uint
}

type Schema struct {
	Table   string
	Columns []string
}

func (s *Schema) HasColumn(name string) bool {
	return slices.Contains(s.Columns, name)
}

// Table is a handle on one destination relation. Handles are owned by the
// Database that returned them.
type Table interface {
	Name() string
	// Schema returns the table's columns. The result is introspected once
	// and cached for the lifetime of the handle.
	Schema(ctx context.Context) (*Schema, error)
	Select(ctx context.Context, q Query) ([]Record, error)
	Lookup(ctx context.Context, key map[string]any) (Record, bool, error)
	Insert(ctx context.Context, values map[string]any) error
	Update(ctx context.Context, key, values map[string]any) (int64, error)
}

type Database interface {
	// Table returns a handle on an existing table, or ErrNoSchema when the
	// table has no columns.
	Table(ctx context.Context, name string) (Table, error)
	Close() error
}

// Execer runs statements that return no rows. Backends implement it for
// fixtures and maintenance.
type Execer interface {
	Exec(ctx context.Context, query string, args ...any) error
}
