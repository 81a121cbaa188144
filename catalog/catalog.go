// Package catalog describes the databases txsync writes to, the Transifex
// projects that feed them, and resolves webhook notifications to tables.
package catalog

import (
	"errors"
	"fmt"
	"os"

	"github.com/breez/txsync/globalize"
	"gopkg.in/yaml.v3"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

var (
	ErrUnknownProject  = errors.New("unknown project")
	ErrUnknownResource = errors.New("unknown resource")
	ErrUnknownTable    = errors.New("unknown table")
	ErrUnknownDatabase = errors.New("unknown database")
)

type Catalog struct {
	Databases []DatabaseConfig `yaml:"databases"`
}

type DatabaseConfig struct {
	Name   string `yaml:"name"`
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	// Migrations is an optional directory of golang-migrate files applied
	// when the database is first opened.
	Migrations   string        `yaml:"migrations"`
	SourceLocale string        `yaml:"source_locale"`
	Transifex    ProjectConfig `yaml:"transifex"`
	Tables       []TableConfig `yaml:"tables"`
}

type ProjectConfig struct {
	ProjectSlug   string `yaml:"project_slug"`
	WebhookSecret string `yaml:"webhook_secret"`
}

type TableConfig struct {
	Name            string `yaml:"name"`
	ResourceSlug    string `yaml:"resource_slug"`
	ForeignKey      string `yaml:"foreign_key"`
	LocaleColumn    string `yaml:"locale_column"`
	CreatedAtColumn string `yaml:"created_at_column"`
	UpdatedAtColumn string `yaml:"updated_at_column"`
}

func (t TableConfig) Columns() globalize.TableColumns {
	return globalize.TableColumns{
		ForeignKey: t.ForeignKey,
		Locale:     t.LocaleColumn,
		CreatedAt:  t.CreatedAtColumn,
		UpdatedAt:  t.UpdatedAtColumn,
	}
}

func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a YAML catalog, fills in defaults and validates it.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) applyDefaults() {
	for i := range c.Databases {
		db := &c.Databases[i]
		if db.Driver == "" {
			db.Driver = DriverSQLite
		}
		if db.SourceLocale == "" {
			db.SourceLocale = "en"
		}
		for j := range db.Tables {
			table := &db.Tables[j]
			if table.ResourceSlug == "" {
				table.ResourceSlug = db.Name + "-" + table.Name
			}
		}
	}
}

func (c *Catalog) Validate() error {
	if len(c.Databases) == 0 {
		return errors.New("catalog has no databases")
	}
	names := make(map[string]bool)
	secrets := make(map[string]string)
	resources := make(map[string]bool)
	for _, db := range c.Databases {
		if db.Name == "" {
			return errors.New("database without a name")
		}
		if names[db.Name] {
			return fmt.Errorf("database %s defined twice", db.Name)
		}
		names[db.Name] = true

		switch db.Driver {
		case DriverSQLite, DriverPostgres:
		default:
			return fmt.Errorf("database %s: unsupported driver %q", db.Name, db.Driver)
		}
		if db.DSN == "" {
			return fmt.Errorf("database %s: dsn is required", db.Name)
		}

		project := db.Transifex.ProjectSlug
		if project == "" {
			return fmt.Errorf("database %s: transifex project_slug is required", db.Name)
		}
		if db.Transifex.WebhookSecret == "" {
			return fmt.Errorf("database %s: transifex webhook_secret is required", db.Name)
		}
		if secret, ok := secrets[project]; ok && secret != db.Transifex.WebhookSecret {
			return fmt.Errorf("project %s has conflicting webhook secrets", project)
		}
		secrets[project] = db.Transifex.WebhookSecret

		if len(db.Tables) == 0 {
			return fmt.Errorf("database %s has no tables", db.Name)
		}
		for _, table := range db.Tables {
			if table.Name == "" {
				return fmt.Errorf("database %s: table without a name", db.Name)
			}
			key := project + "/" + table.ResourceSlug
			if resources[key] {
				return fmt.Errorf("resource %s mapped twice", key)
			}
			resources[key] = true
		}
	}
	return nil
}

func (c *Catalog) Database(name string) (*DatabaseConfig, error) {
	for i := range c.Databases {
		if c.Databases[i].Name == name {
			return &c.Databases[i], nil
		}
	}
	return nil, fmt.Errorf("%s: %w", name, ErrUnknownDatabase)
}

func (db *DatabaseConfig) Table(name string) (*TableConfig, error) {
	for i := range db.Tables {
		if db.Tables[i].Name == name {
			return &db.Tables[i], nil
		}
	}
	return nil, fmt.Errorf("%s.%s: %w", db.Name, name, ErrUnknownTable)
}
