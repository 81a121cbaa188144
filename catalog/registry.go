package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/breez/txsync/store"
	"github.com/breez/txsync/store/postgres"
	"github.com/breez/txsync/store/sqlite"
	"github.com/breez/txsync/transifex"
	"github.com/rs/zerolog/log"
)

// Opener connects to the database described by a catalog entry.
type Opener func(ctx context.Context, cfg *DatabaseConfig) (store.Database, error)

// OpenDatabase is the default Opener. It applies the entry's migrations, if
// any, before returning.
func OpenDatabase(ctx context.Context, cfg *DatabaseConfig) (store.Database, error) {
	switch cfg.Driver {
	case DriverSQLite:
		db, err := sqlite.NewSQLiteDatabase(cfg.DSN)
		if err != nil {
			return nil, err
		}
		if cfg.Migrations != "" {
			if err := db.Migrate(os.DirFS(cfg.Migrations), "."); err != nil {
				db.Close()
				return nil, err
			}
		}
		return db, nil
	case DriverPostgres:
		db, err := postgres.NewPgDatabase(cfg.DSN)
		if err != nil {
			return nil, err
		}
		if cfg.Migrations != "" {
			if err := db.Migrate(os.DirFS(cfg.Migrations), "."); err != nil {
				db.Close()
				return nil, err
			}
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported driver %q", cfg.Driver)
	}
}

// Target is what a notification resolves to: the database and table mapped
// to a Transifex resource.
type Target struct {
	Resource transifex.Resource
	Database *DatabaseConfig
	Table    *TableConfig
	Store    store.Database
}

// Registry resolves notifications against a catalog and keeps one open
// connection per database. It is safe for concurrent use.
type Registry struct {
	catalog *Catalog
	open    Opener

	mu  sync.Mutex
	dbs map[string]store.Database
}

func NewRegistry(catalog *Catalog, open Opener) *Registry {
	if open == nil {
		open = OpenDatabase
	}
	return &Registry{
		catalog: catalog,
		open:    open,
		dbs:     make(map[string]store.Database),
	}
}

func (r *Registry) Catalog() *Catalog {
	return r.catalog
}

// Secret returns the webhook secret shared with Transifex for project.
func (r *Registry) Secret(project string) (string, error) {
	for _, db := range r.catalog.Databases {
		if db.Transifex.ProjectSlug == project {
			return db.Transifex.WebhookSecret, nil
		}
	}
	return "", fmt.Errorf("%s: %w", project, ErrUnknownProject)
}

func (r *Registry) Resolve(ctx context.Context, project, resource string) (*Target, error) {
	knownProject := false
	for i := range r.catalog.Databases {
		db := &r.catalog.Databases[i]
		if db.Transifex.ProjectSlug != project {
			continue
		}
		knownProject = true
		for j := range db.Tables {
			table := &db.Tables[j]
			if table.ResourceSlug != resource {
				continue
			}
			conn, err := r.Open(ctx, db.Name)
			if err != nil {
				return nil, err
			}
			return &Target{
				Resource: transifex.Resource{ProjectSlug: project, ResourceSlug: resource},
				Database: db,
				Table:    table,
				Store:    conn,
			}, nil
		}
	}
	if !knownProject {
		return nil, fmt.Errorf("%s: %w", project, ErrUnknownProject)
	}
	return nil, fmt.Errorf("%s/%s: %w", project, resource, ErrUnknownResource)
}

// Open returns the connection to the named database, opening it on first
// use.
func (r *Registry) Open(ctx context.Context, name string) (store.Database, error) {
	cfg, err := r.catalog.Database(name)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if db, ok := r.dbs[name]; ok {
		return db, nil
	}
	db, err := r.open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", name, err)
	}
	log.Info().Str("database", name).Str("driver", cfg.Driver).Msg("database opened")
	r.dbs[name] = db
	return db, nil
}

func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for name, db := range r.dbs {
		if err := db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close %s: %w", name, err))
		}
		delete(r.dbs, name)
	}
	return errors.Join(errs...)
}

// OpenTable returns a handle on a table of the target's database. Only
// tables listed in the catalog can be opened.
func (t *Target) OpenTable(ctx context.Context, name string) (store.Table, *TableConfig, error) {
	cfg, err := t.Database.Table(name)
	if err != nil {
		return nil, nil, err
	}
	table, err := t.Store.Table(ctx, name)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s.%s: %w", t.Database.Name, name, err)
	}
	return table, cfg, nil
}
