// Package globalize writes translated content into translation tables laid
// out the way the Globalize library does it: one row per record and locale,
// keyed by a foreign key to the translated record and a locale column.
package globalize

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/breez/txsync/store"
	"github.com/rs/zerolog"
)

const (
	DefaultLocaleColumn    = "locale"
	DefaultCreatedAtColumn = "created_at"
	DefaultUpdatedAtColumn = "updated_at"
)

// TableColumns names the columns the writer manages itself.
type TableColumns struct {
	ForeignKey string
	Locale     string
	CreatedAt  string
	UpdatedAt  string
}

// ForeignKeyFor derives the foreign key column of a translation table:
// widget_translations -> widget_id.
func ForeignKeyFor(table string) string {
	base := strings.TrimSuffix(table, "_translations")
	switch {
	case strings.HasSuffix(base, "ies"):
		base = strings.TrimSuffix(base, "ies") + "y"
	case strings.HasSuffix(base, "ses"):
		base = strings.TrimSuffix(base, "es")
	case strings.HasSuffix(base, "s") && !strings.HasSuffix(base, "ss"):
		base = strings.TrimSuffix(base, "s")
	}
	return base + "_id"
}

func (c TableColumns) withDefaults(table string) TableColumns {
	if c.ForeignKey == "" {
		c.ForeignKey = ForeignKeyFor(table)
	}
	if c.Locale == "" {
		c.Locale = DefaultLocaleColumn
	}
	if c.CreatedAt == "" {
		c.CreatedAt = DefaultCreatedAtColumn
	}
	if c.UpdatedAt == "" {
		c.UpdatedAt = DefaultUpdatedAtColumn
	}
	return c
}

type WriteRequest struct {
	ProjectSlug  string
	ResourceSlug string
	Locale       string
	Table        store.Table
	Columns      TableColumns
	Entries      Section
}

type Result struct {
	Inserted int
	Updated  int
}

type Writer struct {
	now func() time.Time
}

type Option func(*Writer)

func WithClock(now func() time.Time) Option {
	return func(w *Writer) {
		w.now = now
	}
}

func NewWriter(opts ...Option) *Writer {
	w := &Writer{now: time.Now}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// WriteContent upserts every entry for the request's locale. Entries are
// written one at a time in identifier order; the first failure stops the
// call, and entries written before it stay written.
func (w *Writer) WriteContent(ctx context.Context, req WriteRequest) (Result, error) {
	var result Result
	if req.Locale == "" {
		return result, errors.New("locale is required")
	}
	tableName := req.Table.Name()
	columns := req.Columns.withDefaults(tableName)

	schema, err := req.Table.Schema(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to read schema of %s: %w", tableName, err)
	}
	hasCreatedAt := schema.HasColumn(columns.CreatedAt)
	hasUpdatedAt := schema.HasColumn(columns.UpdatedAt)

	logger := zerolog.Ctx(ctx).With().
		Str("table", tableName).
		Str("locale", req.Locale).
		Logger()

	for _, id := range req.Entries.ids() {
		values := req.Entries[id]
		for column := range values {
			if !schema.HasColumn(column) {
				return result, fmt.Errorf("%s has no column %q", tableName, column)
			}
		}

		key := map[string]any{
			columns.ForeignKey: recordID(id),
			columns.Locale:     req.Locale,
		}
		_, found, err := req.Table.Lookup(ctx, key)
		if err != nil {
			return result, fmt.Errorf("failed to look up %s %s/%s: %w", tableName, id, req.Locale, err)
		}

		now := w.now().UTC()
		row := make(map[string]any, len(values)+4)
		for column, value := range values {
			row[column] = value
		}

		if found {
			delete(row, columns.ForeignKey)
			delete(row, columns.Locale)
			delete(row, columns.CreatedAt)
			if hasUpdatedAt {
				row[columns.UpdatedAt] = now
			}
			if len(row) == 0 {
				continue
			}
			if _, err := req.Table.Update(ctx, key, row); err != nil {
				return result, fmt.Errorf("failed to update %s %s/%s: %w", tableName, id, req.Locale, err)
			}
			result.Updated++
			continue
		}

		for column, value := range key {
			row[column] = value
		}
		if hasCreatedAt {
			row[columns.CreatedAt] = now
		}
		if hasUpdatedAt {
			row[columns.UpdatedAt] = now
		}
		if err := req.Table.Insert(ctx, row); err != nil {
			return result, fmt.Errorf("failed to insert %s %s/%s: %w", tableName, id, req.Locale, err)
		}
		result.Inserted++
	}

	logger.Debug().
		Int("inserted", result.Inserted).
		Int("updated", result.Updated).
		Msg("content written")
	return result, nil
}

// recordID binds canonical decimal identifiers as integers so they compare
// against integer foreign keys on every backend. Anything else, "007"
// included, keeps its text.
func recordID(id string) any {
	if n, err := strconv.ParseInt(id, 10, 64); err == nil && strconv.FormatInt(n, 10) == id {
		return n
	}
	return id
}
