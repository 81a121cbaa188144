package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/breez/txsync/store"

	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	lru "github.com/hashicorp/golang-lru/v2"
	_ "github.com/mattn/go-sqlite3"
)

const schemaCacheSize = 256

type SQLiteDatabase struct {
	db      *sql.DB
	builder store.Builder
	schemas *lru.Cache[string, *store.Schema]
}

func NewSQLiteDatabase(file string) (*SQLiteDatabase, error) {
	db, err := sql.Open("sqlite3", file)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite3 database %w", err)
	}
	// a single connection keeps shared in-memory databases alive and
	// serializes writers
	db.SetMaxOpenConns(1)

	schemas, err := lru.New[string, *store.Schema](schemaCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create schema cache %w", err)
	}
	return &SQLiteDatabase{
		db:      db,
		builder: store.NewBuilder("sqlite3"),
		schemas: schemas,
	}, nil
}

// Migrate applies the migrations found in dir of fsys.
func (s *SQLiteDatabase) Migrate(fsys fs.FS, dir string) error {
	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver %w", err)
	}
	migrationDriver, err := iofs.New(fsys, dir)
	if err != nil {
		return fmt.Errorf("failed to create migration source %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", migrationDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to instantiate migrations %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) Exec(ctx context.Context, query string, args ...any) error {
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to exec: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) Close() error {
	return s.db.Close()
}

func (s *SQLiteDatabase) Table(ctx context.Context, name string) (store.Table, error) {
	schema, err := s.schema(ctx, name)
	if err != nil {
		return nil, err
	}
	return &sqliteTable{db: s, schema: schema}, nil
}

func (s *SQLiteDatabase) schema(ctx context.Context, name string) (*store.Schema, error) {
	if schema, ok := s.schemas.Get(name); ok {
		return schema, nil
	}

	rows, err := s.db.QueryContext(ctx, "SELECT name FROM pragma_table_info(?) ORDER BY cid", name)
	if err != nil {
		return nil, fmt.Errorf("failed to query table info: %w", err)
	}
	defer rows.Close()

	schema := &store.Schema{Table: name}
	for rows.Next() {
		var column string
		if err := rows.Scan(&column); err != nil {
			return nil, fmt.Errorf("failed to scan column info: %w", err)
		}
		schema.Columns = append(schema.Columns, column)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating column info: %w", err)
	}
	if len(schema.Columns) == 0 {
		return nil, fmt.Errorf("%s: %w", name, store.ErrNoSchema)
	}

	s.schemas.Add(name, schema)
	return schema, nil
}

type sqliteTable struct {
	db     *SQLiteDatabase
	schema *store.Schema
}

func (t *sqliteTable) Name() string {
	return t.schema.Table
}

func (t *sqliteTable) Schema(ctx context.Context) (*store.Schema, error) {
	return t.schema, nil
}

func (t *sqliteTable) Select(ctx context.Context, q store.Query) ([]store.Record, error) {
	query, args, err := t.db.builder.Select(t.Name(), q)
	if err != nil {
		return nil, err
	}
	return t.query(ctx, query, args)
}

func (t *sqliteTable) Lookup(ctx context.Context, key map[string]any) (store.Record, bool, error) {
	query, args, err := t.db.builder.Lookup(t.Name(), key)
	if err != nil {
		return nil, false, err
	}
	records, err := t.query(ctx, query, args)
	if err != nil {
		return nil, false, err
	}
	if len(records) == 0 {
		return nil, false, nil
	}
	return records[0], true, nil
}

func (t *sqliteTable) Insert(ctx context.Context, values map[string]any) error {
	query, args, err := t.db.builder.Insert(t.Name(), values)
	if err != nil {
		return err
	}
	if _, err := t.db.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", t.Name(), err)
	}
	return nil
}

func (t *sqliteTable) Update(ctx context.Context, key, values map[string]any) (int64, error) {
	query, args, err := t.db.builder.Update(t.Name(), key, values)
	if err != nil {
		return 0, err
	}
	res, err := t.db.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to update %s: %w", t.Name(), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n, nil
}

func (t *sqliteTable) query(ctx context.Context, query string, args []any) ([]store.Record, error) {
	rows, err := t.db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", t.Name(), err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}
	records := make([]store.Record, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		record := make(store.Record, len(columns))
		for i, column := range columns {
			record[column] = store.Normalize(values[i])
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}
	return records, nil
}
