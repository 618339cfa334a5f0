// Package sqlite is a reference relational destination adapter (spec §4.2)
// backed by github.com/ncruces/go-sqlite3, a pure-Go, cgo-free SQLite
// driver, the same one used elsewhere in the pack for local storage.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/leechsync/leech/internal/adapter"
	"github.com/leechsync/leech/internal/table"
)

func init() {
	adapter.RegisterSource("sqlite", func() adapter.Source { return &Adapter{} })
	adapter.RegisterDestination("sqlite", func() adapter.Destination { return &Adapter{} })
}

// Adapter reads from and writes to one table of a SQLite database. params
// is the DSN passed to sql.Open plus a "table" query parameter (e.g.
// "file:/path/to/hub.db?table=BTL"); Open lowercases that table name and
// prefixes it with "leech_".
type Adapter struct {
	db        *sql.DB
	tableName string
	schema    table.Schema
	tx        *sql.Tx
}

func columnName(field string) string {
	return strings.ToLower(field)
}

// Open connects to the database and ensures a table exists for schema,
// creating it with TEXT columns (primary columns form the PRIMARY KEY) if
// absent. params is a DSN with a "table" query parameter naming the
// destination table, e.g. "file:/path/to/hub.db?table=BTL". Schema
// mismatches against a pre-existing table surface as
// adapter.SchemaMismatchError.
func (a *Adapter) Open(ctx context.Context, params adapter.Params, schema table.Schema) error {
	dsn, tableName, err := splitParams(params)
	if err != nil {
		return &adapter.UnavailableError{Adapter: "sqlite", Err: err}
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return &adapter.UnavailableError{Adapter: "sqlite", Err: err}
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return &adapter.UnavailableError{Adapter: "sqlite", Err: err}
	}
	a.db = db
	a.schema = schema
	a.tableName = "leech_" + strings.ToLower(tableName)

	cols := make([]string, 0, schema.NumPrimary()+schema.NumSubsidiary())
	for _, f := range schema.Primary {
		cols = append(cols, columnName(f)+" TEXT NOT NULL")
	}
	for _, f := range schema.Subsidiary {
		cols = append(cols, columnName(f)+" TEXT")
	}
	pk := make([]string, 0, schema.NumPrimary())
	for _, f := range schema.Primary {
		pk = append(pk, columnName(f))
	}
	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s, PRIMARY KEY (%s))",
		a.tableName, strings.Join(cols, ", "), strings.Join(pk, ", "))
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		db.Close()
		return &adapter.SchemaMismatchError{Adapter: "sqlite", Reason: err.Error()}
	}
	return nil
}

// splitParams pulls the "table" query parameter out of params, returning
// the remaining DSN and the table name separately. Parsed by hand rather
// than via url.Parse/URL.String so a bare "file:/path/to/db" DSN round-trips
// unchanged (net/url's Opaque/Path reserialization can alter it).
func splitParams(params adapter.Params) (dsn, tableName string, err error) {
	raw := string(params)
	base, rawQuery, hasQuery := strings.Cut(raw, "?")
	if !hasQuery {
		return "", "", fmt.Errorf("sqlite: params must set a \"table\" query parameter")
	}
	q, err := url.ParseQuery(rawQuery)
	if err != nil {
		return "", "", fmt.Errorf("sqlite: parsing params query: %w", err)
	}
	tableName = q.Get("table")
	if tableName == "" {
		return "", "", fmt.Errorf("sqlite: params must set a \"table\" query parameter")
	}
	q.Del("table")
	if rest := q.Encode(); rest != "" {
		return base + "?" + rest, tableName, nil
	}
	return base, tableName, nil
}

func (a *Adapter) ReadAll(ctx context.Context) ([]table.Row, error) {
	cols := append(append([]string{}, a.schema.Primary...), a.schema.Subsidiary...)
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = columnName(c)
	}
	rows, err := a.db.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %s", strings.Join(names, ", "), a.tableName))
	if err != nil {
		return nil, fmt.Errorf("sqlite: read_all: %w", err)
	}
	defer rows.Close()

	np := a.schema.NumPrimary()
	var out []table.Row
	for rows.Next() {
		vals := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("sqlite: scanning row: %w", err)
		}
		primary := make([][]byte, np)
		for i := 0; i < np; i++ {
			primary[i] = toBytes(vals[i])
		}
		subsidiary := make([][]byte, len(cols)-np)
		for i := np; i < len(cols); i++ {
			subsidiary[i-np] = toBytes(vals[i])
		}
		out = append(out, table.NewRow(primary, subsidiary))
	}
	return out, rows.Err()
}

func toBytes(v interface{}) []byte {
	switch t := v.(type) {
	case []byte:
		return t
	case string:
		return []byte(t)
	case nil:
		return nil
	default:
		return []byte(fmt.Sprint(t))
	}
}

func (a *Adapter) Close(ctx context.Context) error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

func (a *Adapter) BeginTransaction(ctx context.Context) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	a.tx = tx
	return nil
}

func (a *Adapter) CommitTransaction(ctx context.Context) error {
	err := a.tx.Commit()
	a.tx = nil
	return err
}

func (a *Adapter) RollbackTransaction(ctx context.Context) error {
	err := a.tx.Rollback()
	a.tx = nil
	return err
}

func (a *Adapter) Insert(ctx context.Context, row table.Row) error {
	cols := append(append([]string{}, a.schema.Primary...), a.schema.Subsidiary...)
	names := make([]string, len(cols))
	placeholders := make([]string, len(cols))
	args := make([]interface{}, 0, len(cols))
	for i, c := range cols {
		names[i] = columnName(c)
		placeholders[i] = "?"
	}
	for _, v := range row.Primary {
		args = append(args, v)
	}
	for _, v := range row.Subsidiary {
		args = append(args, v)
	}
	stmt := fmt.Sprintf("INSERT OR REPLACE INTO %s (%s) VALUES (%s)",
		a.tableName, strings.Join(names, ", "), strings.Join(placeholders, ", "))
	_, err := a.tx.ExecContext(ctx, stmt, args...)
	return err
}

func (a *Adapter) Update(ctx context.Context, primary table.PrimaryTuple, subsidiary [][]byte) error {
	sets := make([]string, len(a.schema.Subsidiary))
	args := make([]interface{}, 0, len(subsidiary)+len(primary))
	for i, f := range a.schema.Subsidiary {
		sets[i] = columnName(f) + " = ?"
		args = append(args, subsidiary[i])
	}
	where := make([]string, len(a.schema.Primary))
	for i, f := range a.schema.Primary {
		where[i] = columnName(f) + " = ?"
	}
	for _, v := range primary {
		args = append(args, v)
	}
	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE %s", a.tableName, strings.Join(sets, ", "), strings.Join(where, " AND "))
	_, err := a.tx.ExecContext(ctx, stmt, args...)
	return err
}

func (a *Adapter) Delete(ctx context.Context, primary table.PrimaryTuple) error {
	where := make([]string, len(a.schema.Primary))
	args := make([]interface{}, 0, len(primary))
	for i, f := range a.schema.Primary {
		where[i] = columnName(f) + " = ?"
	}
	for _, v := range primary {
		args = append(args, v)
	}
	stmt := fmt.Sprintf("DELETE FROM %s WHERE %s", a.tableName, strings.Join(where, " AND "))
	_, err := a.tx.ExecContext(ctx, stmt, args...)
	return err
}
