package driver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/woozymasta/fgdbbench/internal/frame"

	jsoniter "github.com/json-iterator/go"
	"github.com/paulmach/orb/encoding/wkb"
	_ "modernc.org/sqlite"
)

const (
	sqliteTable    = "features"
	sqliteGeometry = "geometry"
	sqliteFID      = "fid"
)

// ErrReservedColumn is returned when an attribute column would shadow the
// fid or geometry column of the features table.
var ErrReservedColumn = errors.New("column name is reserved")

// SQLite stores features in a single table with WKB geometry.
type SQLite struct{}

func (SQLite) Name() string             { return "SQLite" }
func (SQLite) Extensions() []string     { return []string{".sqlite", ".sqlite.db", ".db"} }
func (SQLite) Capabilities() Capability { return Read | Write }

// Write replaces any database at path with the frame contents.
func (SQLite) Write(ctx context.Context, path string, f *frame.Frame) error {
	names := f.Names()
	for _, name := range names {
		if strings.EqualFold(name, sqliteFID) || strings.EqualFold(name, sqliteGeometry) {
			return fmt.Errorf("%w: %q", ErrReservedColumn, name)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	cols := make([]string, 0, len(names)+2)
	cols = append(cols, quoteIdent(sqliteFID)+" INTEGER PRIMARY KEY", quoteIdent(sqliteGeometry)+" BLOB")
	for _, name := range names {
		cols = append(cols, quoteIdent(name))
	}

	create := fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(sqliteTable), strings.Join(cols, ", "))
	if _, err := db.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	insertCols := []string{quoteIdent(sqliteGeometry)}
	for _, name := range names {
		insertCols = append(insertCols, quoteIdent(name))
	}
	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (?%s)",
		quoteIdent(sqliteTable),
		strings.Join(insertCols, ", "),
		strings.Repeat(", ?", len(names)))

	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	columns := f.Columns()
	args := make([]any, len(columns)+1)
	for row := 0; row < f.Len(); row++ {
		geom, err := wkb.Marshal(f.Geometry[row])
		if err != nil {
			return fmt.Errorf("row %d geometry: %w", row, err)
		}
		args[0] = geom
		for i, c := range columns {
			v, err := sqliteValue(c.Values[row])
			if err != nil {
				return fmt.Errorf("row %d column %q: %w", row, c.Name, err)
			}
			args[i+1] = v
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert row %d: %w", row, err)
		}
	}

	return tx.Commit()
}

// Read loads all rows ordered by insertion.
func (SQLite) Read(ctx context.Context, path string) (*frame.Frame, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	query := fmt.Sprintf("SELECT * FROM %s ORDER BY %s", quoteIdent(sqliteTable), quoteIdent(sqliteFID))
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	colNames, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	geomIdx := -1
	var attrs []string
	for i, name := range colNames {
		switch name {
		case sqliteFID:
		case sqliteGeometry:
			geomIdx = i
		default:
			attrs = append(attrs, name)
		}
	}
	if geomIdx < 0 {
		return nil, fmt.Errorf("table %s has no %s column", sqliteTable, sqliteGeometry)
	}

	f := frame.New(attrs...)
	values := make([]any, len(colNames))
	ptrs := make([]any, len(colNames))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		blob, ok := values[geomIdx].([]byte)
		if !ok {
			return nil, fmt.Errorf("geometry is %T, want blob", values[geomIdx])
		}
		geom, err := wkb.Unmarshal(blob)
		if err != nil {
			return nil, fmt.Errorf("decode geometry: %w", err)
		}

		props := make(map[string]any, len(attrs))
		for i, name := range colNames {
			if i == geomIdx || name == sqliteFID {
				continue
			}
			props[name] = values[i]
		}
		f.Append(geom, props)
	}

	return f, rows.Err()
}

// sqliteValue maps a property value onto a SQLite storage class.
// Nested values are stored as JSON text.
func sqliteValue(v any) (any, error) {
	switch v := v.(type) {
	case nil, string, float64, int64, int, bool, []byte:
		return v, nil
	default:
		data, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(data), nil
	}
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
