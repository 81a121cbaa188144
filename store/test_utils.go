package store

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// TestDatabase is what the shared suite needs from a backend.
type TestDatabase interface {
	Database
	Execer
}

// StoreTest runs the same checks against every backend. ItemsDDL is a
// CREATE TABLE statement with a single %s for the table name, defining
// columns id (integer) and name (text).
type StoreTest struct {
	ItemsDDL string
}

func (s *StoreTest) createItems(t *testing.T, db TestDatabase) Table {
	name := "items_" + strings.ReplaceAll(uuid.New().String(), "-", "")
	err := db.Exec(context.Background(), fmt.Sprintf(s.ItemsDDL, name))
	require.NoError(t, err, "failed to create table")
	table, err := db.Table(context.Background(), name)
	require.NoError(t, err, "failed to open table")
	require.Equal(t, name, table.Name())
	return table
}

func (s *StoreTest) TestSelectRange(t *testing.T, db TestDatabase) {
	ctx := context.Background()
	table := s.createItems(t, db)
	for _, id := range []int64{3, 1, 2, 5} {
		err := table.Insert(ctx, map[string]any{"id": id, "name": fmt.Sprintf("item%d", id)})
		require.NoError(t, err, "failed to insert %d", id)
	}

	records, err := table.Select(ctx, Query{
		Filters: []Filter{{Column: "id", Op: OpGte, Value: int64(2)}},
		OrderBy: "id",
		Limit:   2,
	})
	require.NoError(t, err, "failed to select")
	require.Len(t, records, 2)
	require.EqualValues(t, 2, records[0]["id"])
	require.EqualValues(t, 3, records[1]["id"])
	require.Equal(t, "item3", records[1]["name"])

	records, err = table.Select(ctx, Query{
		Filters: []Filter{{Column: "id", Op: OpGte, Value: int64(6)}},
		OrderBy: "id",
	})
	require.NoError(t, err, "failed to select past the end")
	require.Empty(t, records)
}

func (s *StoreTest) TestLookupInsertUpdate(t *testing.T, db TestDatabase) {
	ctx := context.Background()
	table := s.createItems(t, db)

	_, found, err := table.Lookup(ctx, map[string]any{"id": int64(1)})
	require.NoError(t, err, "failed to lookup missing row")
	require.False(t, found)

	require.NoError(t, table.Insert(ctx, map[string]any{"id": int64(1), "name": "sprocket"}))
	record, found, err := table.Lookup(ctx, map[string]any{"id": int64(1)})
	require.NoError(t, err, "failed to lookup row")
	require.True(t, found)
	require.Equal(t, "sprocket", record["name"])

	n, err := table.Update(ctx, map[string]any{"id": int64(1)}, map[string]any{"name": "cog"})
	require.NoError(t, err, "failed to update row")
	require.Equal(t, int64(1), n)

	record, _, err = table.Lookup(ctx, map[string]any{"id": int64(1)})
	require.NoError(t, err, "failed to lookup updated row")
	require.Equal(t, "cog", record["name"])

	n, err = table.Update(ctx, map[string]any{"id": int64(2)}, map[string]any{"name": "gear"})
	require.NoError(t, err, "failed to update missing row")
	require.Equal(t, int64(0), n)
}

func (s *StoreTest) TestSchemaCached(t *testing.T, db TestDatabase) {
	ctx := context.Background()
	table := s.createItems(t, db)

	schema, err := table.Schema(ctx)
	require.NoError(t, err, "failed to read schema")
	require.Equal(t, []string{"id", "name"}, schema.Columns)

	err = db.Exec(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN extra TEXT", table.Name()))
	require.NoError(t, err, "failed to alter table")

	schema, err = table.Schema(ctx)
	require.NoError(t, err, "failed to read cached schema")
	require.False(t, schema.HasColumn("extra"), "schema should be cached for the handle")
}

func (s *StoreTest) TestMissingTable(t *testing.T, db TestDatabase) {
	_, err := db.Table(context.Background(), "no_such_table")
	require.ErrorIs(t, err, ErrNoSchema)
}
