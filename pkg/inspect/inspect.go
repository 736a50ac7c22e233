// Package inspect opens parquet output with DuckDB and summarizes it:
// schema, row count and a head preview. It is the verification half of
// the demo and the `inspect` command.
package inspect

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	"log/slog"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/lakeseed/lakeseed/pkg/errors"
	"github.com/lakeseed/lakeseed/pkg/lakehouse"
)

// DefaultPreviewRows caps the head preview.
const DefaultPreviewRows = 10

// ColumnInfo is one column of the inspected file.
type ColumnInfo struct {
	Name string
	Type string
}

// Summary describes one parquet object.
type Summary struct {
	Source  string
	Rows    int64
	Columns []ColumnInfo
	// Preview holds up to DefaultPreviewRows rendered rows, one cell
	// per column.
	Preview [][]string
}

// Inspector summarizes parquet files through an embedded DuckDB.
type Inspector struct {
	logger *slog.Logger
}

// NewInspector creates an inspector.
func NewInspector(logger *slog.Logger) *Inspector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Inspector{logger: logger}
}

// File summarizes a local parquet file.
func (i *Inspector) File(ctx context.Context, path string, previewRows int) (*Summary, error) {
	if previewRows <= 0 {
		previewRows = DefaultPreviewRows
	}
	if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrap(err, errors.CodeInspectFailed, "parquet file not readable").
			WithContext("path", path)
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInspectFailed, "failed to open duckdb")
	}
	defer db.Close()

	summary := &Summary{Source: path}

	if summary.Columns, err = describe(ctx, db, path); err != nil {
		return nil, err
	}
	if summary.Rows, err = countRows(ctx, db, path); err != nil {
		return nil, err
	}
	if summary.Preview, err = preview(ctx, db, path, previewRows); err != nil {
		return nil, err
	}

	i.logger.Debug("file inspected",
		slog.String("path", path),
		slog.Int64("rows", summary.Rows),
		slog.Int("columns", len(summary.Columns)))
	return summary, nil
}

// Object downloads bucket/key to a temp file and summarizes it.
func (i *Inspector) Object(ctx context.Context, mgr *lakehouse.Manager, bucket, key string, previewRows int) (*Summary, error) {
	data, err := mgr.Download(ctx, bucket, key)
	if err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp("", "lakeseed-inspect-*.parquet")
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInspectFailed, "failed to create temp file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, errors.Wrap(err, errors.CodeInspectFailed, "failed to stage object").
			WithContext("key", key)
	}
	if err := tmp.Close(); err != nil {
		return nil, errors.Wrap(err, errors.CodeInspectFailed, "failed to stage object").
			WithContext("key", key)
	}

	summary, err := i.File(ctx, tmp.Name(), previewRows)
	if err != nil {
		return nil, err
	}
	summary.Source = bucket + "/" + key
	return summary, nil
}

func describe(ctx context.Context, db *sql.DB, path string) ([]ColumnInfo, error) {
	query := fmt.Sprintf(`DESCRIBE SELECT * FROM read_parquet('%s')`, escapePath(path))
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInspectFailed, "schema query failed").
			WithContext("path", path)
	}
	defer rows.Close()

	var columns []ColumnInfo
	for rows.Next() {
		var name, dtype, null, key, defaultVal, extra sql.NullString
		if err := rows.Scan(&name, &dtype, &null, &key, &defaultVal, &extra); err != nil {
			continue
		}
		if name.Valid {
			columns = append(columns, ColumnInfo{Name: name.String, Type: dtype.String})
		}
	}
	return columns, rows.Err()
}

func countRows(ctx context.Context, db *sql.DB, path string) (int64, error) {
	var count int64
	query := fmt.Sprintf(`SELECT COUNT(*) FROM read_parquet('%s')`, escapePath(path))
	if err := db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, errors.Wrap(err, errors.CodeInspectFailed, "row count failed").
			WithContext("path", path)
	}
	return count, nil
}

func preview(ctx context.Context, db *sql.DB, path string, limit int) ([][]string, error) {
	query := fmt.Sprintf(`SELECT * FROM read_parquet('%s') LIMIT %d`, escapePath(path), limit)
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInspectFailed, "preview query failed").
			WithContext("path", path)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInspectFailed, "preview columns failed")
	}

	var out [][]string
	for rows.Next() {
		cells := make([]interface{}, len(names))
		ptrs := make([]interface{}, len(names))
		for i := range cells {
			ptrs[i] = &cells[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.Wrap(err, errors.CodeInspectFailed, "preview scan failed")
		}
		rendered := make([]string, len(names))
		for i, cell := range cells {
			rendered[i] = formatValue(cell)
		}
		out = append(out, rendered)
	}
	return out, rows.Err()
}

// formatValue renders one scanned cell for terminal display.
func formatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(val)
	case time.Time:
		return val.UTC().Format("2006-01-02 15:04:05")
	case float64:
		return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", val), "0"), ".")
	case float32:
		return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", val), "0"), ".")
	default:
		return fmt.Sprintf("%v", val)
	}
}

// escapePath escapes a path for DuckDB SQL.
func escapePath(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
