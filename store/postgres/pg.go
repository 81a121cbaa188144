package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/breez/txsync/store"

	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/golang-migrate/migrate/v4"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const schemaCacheSize = 256

type PgDatabase struct {
	databaseURL string
	db          *pgxpool.Pool
	builder     store.Builder
	schemas     *lru.Cache[string, *store.Schema]
}

func NewPgDatabase(databaseURL string) (*PgDatabase, error) {
	pgxPool, err := pgxpool.New(context.Background(), databaseURL)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New(%v): %w", databaseURL, err)
	}
	schemas, err := lru.New[string, *store.Schema](schemaCacheSize)
	if err != nil {
		pgxPool.Close()
		return nil, fmt.Errorf("failed to create schema cache %w", err)
	}
	return &PgDatabase{
		databaseURL: databaseURL,
		db:          pgxPool,
		builder:     store.NewBuilder("postgres"),
		schemas:     schemas,
	}, nil
}

// Migrate applies the migrations found in dir of fsys over a short-lived
// database/sql connection.
func (s *PgDatabase) Migrate(fsys fs.FS, dir string) error {
	db, err := sql.Open("pgx", s.databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open postgres database %w", err)
	}
	defer db.Close()

	driver, err := pgxmigrate.WithInstance(db, &pgxmigrate.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver %w", err)
	}
	migrationDriver, err := iofs.New(fsys, dir)
	if err != nil {
		return fmt.Errorf("failed to create migration source %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", migrationDriver, "txsync", driver)
	if err != nil {
		return fmt.Errorf("failed to instantiate migrations %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations %w", err)
	}
	return nil
}

func (s *PgDatabase) Exec(ctx context.Context, query string, args ...any) error {
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to exec: %w", err)
	}
	return nil
}

func (s *PgDatabase) Close() error {
	s.db.Close()
	return nil
}

func (s *PgDatabase) Table(ctx context.Context, name string) (store.Table, error) {
	schema, err := s.schema(ctx, name)
	if err != nil {
		return nil, err
	}
	return &pgTable{db: s, schema: schema}, nil
}

func (s *PgDatabase) schema(ctx context.Context, name string) (*store.Schema, error) {
	if schema, ok := s.schemas.Get(name); ok {
		return schema, nil
	}

	rows, err := s.db.Query(ctx,
		"SELECT column_name::text FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = $1 ORDER BY ordinal_position",
		name)
	if err != nil {
		return nil, fmt.Errorf("failed to query table info: %w", err)
	}
	columns, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan column info: %w", err)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("%s: %w", name, store.ErrNoSchema)
	}

	schema := &store.Schema{Table: name, Columns: columns}
	s.schemas.Add(name, schema)
	return schema, nil
}

type pgTable struct {
	db     *PgDatabase
	schema *store.Schema
}

func (t *pgTable) Name() string {
	return t.schema.Table
}

func (t *pgTable) Schema(ctx context.Context) (*store.Schema, error) {
	return t.schema, nil
}

func (t *pgTable) Select(ctx context.Context, q store.Query) ([]store.Record, error) {
	query, args, err := t.db.builder.Select(t.Name(), q)
	if err != nil {
		return nil, err
	}
	return t.query(ctx, query, args)
}

func (t *pgTable) Lookup(ctx context.Context, key map[string]any) (store.Record, bool, error) {
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

func (t *pgTable) Insert(ctx context.Context, values map[string]any) error {
	query, args, err := t.db.builder.Insert(t.Name(), values)
	if err != nil {
		return err
	}
	if _, err := t.db.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", t.Name(), err)
	}
	return nil
}

func (t *pgTable) Update(ctx context.Context, key, values map[string]any) (int64, error) {
	query, args, err := t.db.builder.Update(t.Name(), key, values)
	if err != nil {
		return 0, err
	}
	tag, err := t.db.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to update %s: %w", t.Name(), err)
	}
	return tag.RowsAffected(), nil
}

func (t *pgTable) query(ctx context.Context, query string, args []any) ([]store.Record, error) {
	rows, err := t.db.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", t.Name(), err)
	}
	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.Record, error) {
		values, err := row.Values()
		if err != nil {
			return nil, err
		}
		fields := row.FieldDescriptions()
		record := make(store.Record, len(fields))
		for i, field := range fields {
			record[field.Name] = store.Normalize(values[i])
		}
		return record, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan records: %w", err)
	}
	return records, nil
}
