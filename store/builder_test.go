package store

import (
	"testing"

	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/stretchr/testify/require"
)

func TestBuildSelect(t *testing.T) {
	b := NewBuilder("postgres")
	query, args, err := b.Select("widgets", Query{
		Filters: []Filter{{Column: "id", Op: OpGte, Value: int64(10)}},
		OrderBy: "id",
		Limit:   50,
	})
	require.NoError(t, err, "failed to build select")
	require.Contains(t, query, `FROM "widgets"`)
	require.Contains(t, query, `"id" >= $1`)
	require.Contains(t, query, `ORDER BY "id" ASC`)
	require.Contains(t, query, "LIMIT")
	require.Equal(t, int64(10), args[0])
}

func TestBuildUnsupportedOp(t *testing.T) {
	b := NewBuilder("postgres")
	_, _, err := b.Select("widgets", Query{
		Filters: []Filter{{Column: "id", Op: Op(42), Value: 1}},
	})
	require.Error(t, err)
}

func TestBuildInsertUpdate(t *testing.T) {
	b := NewBuilder("postgres")
	query, args, err := b.Insert("widgets", map[string]any{"name": "sprocket", "id": int64(1)})
	require.NoError(t, err, "failed to build insert")
	require.Contains(t, query, `INSERT INTO "widgets"`)
	require.Len(t, args, 2)

	query, args, err = b.Update("widgets", map[string]any{"id": int64(1)}, map[string]any{"name": "cog"})
	require.NoError(t, err, "failed to build update")
	require.Contains(t, query, `UPDATE "widgets"`)
	require.Equal(t, []any{"cog", int64(1)}, args)
}

func TestSchemaHasColumn(t *testing.T) {
	s := &Schema{Table: "widgets", Columns: []string{"id", "name"}}
	require.True(t, s.HasColumn("name"))
	require.False(t, s.HasColumn("created_at"))
}

func TestNormalize(t *testing.T) {
	require.Equal(t, "abc", Normalize([]byte("abc")))
	require.Equal(t, int64(3), Normalize(int64(3)))
	require.Nil(t, Normalize(nil))
}
