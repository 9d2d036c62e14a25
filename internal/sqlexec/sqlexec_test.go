package sqlexec

import (
	"context"
	"testing"
	"time"

	"github.com/KaramelBytes/sheetqa/internal/dataset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openSales(t *testing.T) *DB {
	t.Helper()
	keys := []string{"region", "sales", "active", "when"}
	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	recs := []dataset.Record{
		dataset.NewRecord(keys, []any{"north", 20.0, true, day}),
		dataset.NewRecord(keys, []any{"south", 25.0, false, day}),
		dataset.NewRecord(keys, []any{"north", 30.0, true, nil}),
		dataset.NewRecord(keys, []any{"it's \"east\"", nil, false, day}),
	}
	schema := dataset.InferSchema("sales", recs)
	db, err := Open(context.Background(), schema, recs)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestQueryAggregates(t *testing.T) {
	db := openSales(t)
	res, err := db.Query(context.Background(), "SELECT region, SUM(sales) AS total FROM sales GROUP BY region ORDER BY total DESC;", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"region", "total"}, res.Columns)
	require.Len(t, res.Rows, 3)
	assert.Equal(t, "north", res.Rows[0][0])
	assert.EqualValues(t, 50, res.Rows[0][1])
	assert.False(t, res.Truncated)
}

func TestQueryTypesAndQuoting(t *testing.T) {
	db := openSales(t)
	res, err := db.Query(context.Background(), `WITH a AS (SELECT * FROM sales WHERE active = 1) SELECT COUNT(*) FROM a`, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 2, res.Rows[0][0])

	res, err = db.Query(context.Background(), `SELECT "when" FROM sales WHERE region LIKE 'it%'`, 10)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-02T00:00:00Z", res.Rows[0][0])
}

func TestQueryLimitTruncates(t *testing.T) {
	db := openSales(t)
	res, err := db.Query(context.Background(), "SELECT * FROM sales", 2)
	require.NoError(t, err)
	assert.Len(t, res.Rows, 2)
	assert.True(t, res.Truncated)
}

func TestQueryRejectsWrites(t *testing.T) {
	db := openSales(t)
	for _, q := range []string{"DELETE FROM sales", "SELECT 1; DROP TABLE sales", "", "PRAGMA table_info(sales)"} {
		_, err := db.Query(context.Background(), q, 0)
		assert.Error(t, err, q)
	}
	res, err := db.Query(context.Background(), "SELECT COUNT(*) FROM sales", 0)
	require.NoError(t, err)
	assert.EqualValues(t, 4, res.Rows[0][0])
}

func TestOpenEmptySchema(t *testing.T) {
	_, err := Open(context.Background(), dataset.Schema{}, nil)
	assert.Error(t, err)
}
