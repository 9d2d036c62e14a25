// Package sqlexec loads a dataset into an in-memory SQLite database so
// generated SQL can be run against it.
package sqlexec

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/KaramelBytes/sheetqa/internal/dataset"
)

// DefaultLimit caps the rows returned by Query when no limit is given.
const DefaultLimit = 500

// ErrNotReadOnly rejects anything but a single SELECT or WITH statement.
var ErrNotReadOnly = errors.New("only a single SELECT or WITH statement can be executed")

// DB is an in-memory copy of one dataset.
type DB struct {
	db    *sql.DB
	table string
}

// Result is a fully read query result.
type Result struct {
	Columns   []string `json:"columns"`
	Rows      [][]any  `json:"rows"`
	Truncated bool     `json:"truncated"`
}

// Open creates the table named after the schema and inserts every record.
// The connection is switched to query-only once loaded.
func Open(ctx context.Context, schema dataset.Schema, records []dataset.Record) (*DB, error) {
	if schema.Empty() {
		return nil, errors.New("schema has no columns")
	}
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("unable to open sqlite database: %w", err)
	}
	// every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)

	table := schema.TableName
	if table == "" {
		table = "data"
	}
	d := &DB{db: db, table: table}
	if err := d.load(ctx, schema, records); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, "PRAGMA query_only = 1"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set query_only: %w", err)
	}
	return d, nil
}

// Table returns the SQL table name holding the dataset.
func (d *DB) Table() string { return d.table }

// Close releases the database.
func (d *DB) Close() error { return d.db.Close() }

func (d *DB) load(ctx context.Context, schema dataset.Schema, records []dataset.Record) error {
	defs := make([]string, len(schema.Columns))
	marks := make([]string, len(schema.Columns))
	for i, c := range schema.Columns {
		defs[i] = fmt.Sprintf("%s %s", quoteIdent(c.Name), sqlType(c.Type))
		marks[i] = "?"
	}
	create := fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(d.table), strings.Join(defs, ", "))
	if _, err := d.db.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	insert := fmt.Sprintf("INSERT INTO %s VALUES (%s)", quoteIdent(d.table), strings.Join(marks, ", "))
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	args := make([]any, len(schema.Columns))
	for n, r := range records {
		for i, c := range schema.Columns {
			args[i] = sqlValue(r.Value(c.Name))
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert row %d: %w", n+1, err)
		}
	}
	return tx.Commit()
}

// Query runs a read-only statement and reads at most limit rows.
func (d *DB) Query(ctx context.Context, query string, limit int) (*Result, error) {
	q, err := readOnly(query)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := d.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	res := &Result{Columns: cols, Rows: [][]any{}}
	for rows.Next() {
		if len(res.Rows) == limit {
			res.Truncated = true
			break
		}
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		res.Rows = append(res.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	return res, nil
}

// readOnly trims a trailing semicolon and accepts a single SELECT or WITH
// statement.
func readOnly(query string) (string, error) {
	q := strings.TrimSpace(query)
	q = strings.TrimSpace(strings.TrimSuffix(q, ";"))
	if q == "" {
		return "", errors.New("query cannot be empty")
	}
	if strings.Contains(q, ";") {
		return "", ErrNotReadOnly
	}
	head := strings.ToLower(strings.Fields(q)[0])
	if head != "select" && head != "with" {
		return "", ErrNotReadOnly
	}
	return q, nil
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func sqlType(t dataset.ColumnType) string {
	switch t {
	case dataset.TypeNumber:
		return "REAL"
	case dataset.TypeBoolean:
		return "INTEGER"
	default:
		return "TEXT"
	}
}

func sqlValue(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case bool:
		if x {
			return 1
		}
		return 0
	case time.Time:
		return x.Format(time.RFC3339)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
		return x
	case string:
		return x
	default:
		return dataset.Stringify(x)
	}
}
