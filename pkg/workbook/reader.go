// Package workbook loads dated multi-sheet xlsx sources and filters
// each sheet to the rows of one calendar day.
//
// All sheets are loaded regardless of date and filtered in memory.
// Column types are inferred per sheet from the sheet's own header and
// cell values. A sheet lacking the designated timestamp column yields
// an empty batch rather than failing the load; a malformed timestamp
// value in a present column is an input error and aborts the run.
package workbook

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/lakeseed/lakeseed/pkg/errors"
	"github.com/lakeseed/lakeseed/pkg/frame"
)

// DefaultTimestampColumn is the designated timestamp column of the
// Online Retail II workbook.
const DefaultTimestampColumn = "InvoiceDate"

// Reader loads workbooks and filters them to a target date.
type Reader struct {
	timestampColumn string
	fallbacks       []string
	logger          *slog.Logger
}

// NewReader creates a reader filtering on the default timestamp column.
func NewReader(logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reader{logger: logger}
	r.SetTimestampColumn(DefaultTimestampColumn)
	return r
}

// SetTimestampColumn overrides the designated timestamp column.
func (r *Reader) SetTimestampColumn(name string) *Reader {
	r.timestampColumn = name
	r.fallbacks = []string{name, strings.ToLower(name), "InvoiceDate", "invoice_date", "Invoice Date", "Date", "date", "Timestamp", "timestamp"}
	return r
}

// Dataset is the filtered view of one workbook for one target date.
// Batches holds an entry for every sheet; sheets with no rows on the
// date carry empty batches and the caller decides whether to skip them.
// Degraded records sheets that loaded without their timestamp column.
type Dataset struct {
	Source   string
	Date     time.Time
	Sheets   []string
	Batches  map[string]*frame.Batch
	Degraded map[string]error
}

// Empty reports whether every sheet's batch is empty.
func (d *Dataset) Empty() bool {
	for _, b := range d.Batches {
		if !b.Empty() {
			return false
		}
	}
	return true
}

// NonEmpty returns the sheets with matching rows, in workbook order.
func (d *Dataset) NonEmpty() []string {
	var names []string
	for _, s := range d.Sheets {
		if b := d.Batches[s]; b != nil && !b.Empty() {
			names = append(names, s)
		}
	}
	return names
}

// TotalRows returns the number of matching rows across all sheets.
func (d *Dataset) TotalRows() int {
	total := 0
	for _, b := range d.Batches {
		total += b.NumRows()
	}
	return total
}

// LoadForDate loads every sheet of the workbook at path and filters
// each to rows whose timestamp falls on targetDate (calendar-date
// comparison, time of day discarded).
func (r *Reader) LoadForDate(ctx context.Context, path string, targetDate time.Time) (*Dataset, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, errors.SourceNotFound(path)
	}

	xlFile, err := excelize.OpenFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeWorkbookParse, "failed to open workbook").
			WithContext("path", path)
	}
	defer xlFile.Close()

	sheets := xlFile.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New(errors.CodeWorkbookParse, "workbook has no sheets").
			WithContext("path", path)
	}

	ds := &Dataset{
		Source:  path,
		Date:    targetDate,
		Sheets:  sheets,
		Batches: make(map[string]*frame.Batch, len(sheets)),
	}

	for _, sheet := range sheets {
		select {
		case <-ctx.Done():
			return nil, errors.ContextCanceled("workbook load")
		default:
		}

		batch, err := r.loadSheet(xlFile, sheet, targetDate)
		if err != nil {
			if !errors.IsDegraded(err) {
				return nil, err
			}
			// The sheet loaded without its timestamp column. Record it
			// and keep going; sibling sheets are unaffected.
			if ds.Degraded == nil {
				ds.Degraded = make(map[string]error)
			}
			ds.Degraded[sheet] = err
			r.logger.Warn("timestamp column missing, sheet contributes no rows",
				slog.String("sheet", sheet),
				slog.String("column", r.timestampColumn))
		}
		ds.Batches[sheet] = batch

		r.logger.Debug("sheet filtered",
			slog.String("sheet", sheet),
			slog.String("date", targetDate.Format("2006-01-02")),
			slog.Int("rows", batch.NumRows()))
	}

	r.logger.Info("workbook loaded",
		slog.String("path", path),
		slog.String("date", targetDate.Format("2006-01-02")),
		slog.Int("sheets", len(sheets)),
		slog.Int("matching_rows", ds.TotalRows()))

	return ds, nil
}

// loadSheet reads one sheet fully, infers its schema, and returns the
// filtered batch. A missing timestamp column returns the empty batch
// together with a degraded error for the caller to record.
func (r *Reader) loadSheet(xlFile *excelize.File, sheet string, targetDate time.Time) (*frame.Batch, error) {
	rows, err := xlFile.Rows(sheet)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeWorkbookParse, "failed to read sheet").
			WithContext("sheet", sheet)
	}
	defer rows.Close()

	if !rows.Next() {
		// Sheet with no rows at all.
		return &frame.Batch{Sheet: sheet}, nil
	}
	header, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeWorkbookParse, "failed to read header row").
			WithContext("sheet", sheet)
	}
	if len(header) == 0 {
		return &frame.Batch{Sheet: sheet}, nil
	}

	names := columnNames(header)

	// Collect all data rows; filtering happens in memory.
	var raw [][]string
	for rows.Next() {
		cols, err := rows.Columns()
		if err != nil {
			continue // skip malformed rows
		}
		if len(cols) == 0 {
			continue
		}
		raw = append(raw, padRow(cols, len(names)))
	}

	tsIdx := r.findTimestampColumn(names)
	schema, err := inferSchema(names, raw, tsIdx)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeWorkbookParse, "failed to infer sheet schema").
			WithContext("sheet", sheet)
	}

	builder := frame.NewBuilder(sheet, schema)

	if tsIdx < 0 {
		return builder.Batch(), errors.MissingColumn(sheet, r.timestampColumn, names)
	}

	for i, cells := range raw {
		rowNum := i + 2 // 1-based, after the header row

		tsCell := strings.TrimSpace(cells[tsIdx])
		if tsCell == "" {
			continue // a row with no timestamp can never match a date
		}
		ts, err := ParseTimestamp(tsCell)
		if err != nil {
			return nil, errors.InvalidTimestamp(sheet, tsCell, rowNum)
		}
		if !sameDay(ts, targetDate) {
			continue
		}

		values := make([]interface{}, len(names))
		for c := range names {
			v, err := parseCell(schema.Fields[c].Kind, cells[c], ts, c == tsIdx)
			if err != nil {
				return nil, errors.Wrap(err, errors.CodeWorkbookParse, "cell does not match inferred column type").
					WithContext("sheet", sheet).
					WithContext("column", names[c]).
					WithContext("row", rowNum)
			}
			values[c] = v
		}
		if err := builder.AppendRow(values...); err != nil {
			return nil, errors.Wrap(err, errors.CodeWorkbookParse, "failed to append row").
				WithContext("sheet", sheet).
				WithContext("row", rowNum)
		}
	}

	return builder.Batch(), nil
}

// findTimestampColumn tries the configured name and common fallbacks.
func (r *Reader) findTimestampColumn(names []string) int {
	idx := make(map[string]int, len(names))
	for i, n := range names {
		idx[n] = i
	}
	for _, name := range r.fallbacks {
		if i, ok := idx[name]; ok {
			return i
		}
	}
	return -1
}

// columnNames trims header cells and names blank ones positionally.
func columnNames(header []string) []string {
	names := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if name == "" {
			name = fmt.Sprintf("Column%d", i+1)
		}
		if n, dup := seen[name]; dup {
			seen[name] = n + 1
			name = fmt.Sprintf("%s.%d", name, n)
		} else {
			seen[name] = 1
		}
		names[i] = name
	}
	return names
}

func padRow(cells []string, width int) []string {
	if len(cells) == width {
		return cells
	}
	padded := make([]string, width)
	copy(padded, cells)
	return padded
}

// inferSchema decides each column's kind from every non-empty cell in
// the sheet, so later conversion cannot fail. The designated timestamp
// column is always a timestamp. All workbook columns are nullable
// because any cell may be blank.
func inferSchema(names []string, raw [][]string, tsIdx int) (frame.Schema, error) {
	fields := make([]frame.Field, len(names))
	for c, name := range names {
		kind := frame.KindTimestamp
		if c != tsIdx {
			kind = inferKind(raw, c)
		}
		fields[c] = frame.Field{Name: name, Kind: kind, Nullable: true}
	}
	return frame.NewSchema(fields...)
}

func inferKind(raw [][]string, col int) frame.Kind {
	var nonEmpty, ints, floats, bools, times int
	for _, cells := range raw {
		s := strings.TrimSpace(cells[col])
		if s == "" {
			continue
		}
		nonEmpty++
		if _, err := strconv.ParseInt(s, 10, 64); err == nil {
			ints++
			floats++ // every int is also a float
			continue
		}
		if _, err := strconv.ParseFloat(s, 64); err == nil {
			floats++
			continue
		}
		if isBoolCell(s) {
			bools++
			continue
		}
		if _, err := ParseTimestamp(s); err == nil {
			times++
		}
	}

	switch {
	case nonEmpty == 0:
		return frame.KindString
	case ints == nonEmpty:
		return frame.KindInt64
	case floats == nonEmpty:
		return frame.KindFloat64
	case bools == nonEmpty:
		return frame.KindBool
	case times == nonEmpty:
		return frame.KindTimestamp
	default:
		return frame.KindString
	}
}

func isBoolCell(s string) bool {
	switch strings.ToLower(s) {
	case "true", "false":
		return true
	}
	return false
}

// parseCell converts a raw cell to its column's typed value. Empty
// cells become nulls. The designated timestamp cell reuses the value
// already parsed for filtering.
func parseCell(kind frame.Kind, s string, ts time.Time, isTimestampCol bool) (interface{}, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	switch kind {
	case frame.KindString:
		return s, nil
	case frame.KindInt64:
		return strconv.ParseInt(s, 10, 64)
	case frame.KindFloat64:
		return strconv.ParseFloat(s, 64)
	case frame.KindBool:
		return strconv.ParseBool(strings.ToLower(s))
	case frame.KindTimestamp:
		if isTimestampCol {
			return ts, nil
		}
		return ParseTimestamp(s)
	default:
		return nil, fmt.Errorf("unsupported kind %s", kind)
	}
}

// timestampFormats are tried in order for string-valued cells.
// Excelize renders datetime cells through their number format, so the
// slashed short forms appear in practice.
var timestampFormats = []string{
	"2006-01-02T15:04:05.000Z07:00",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"1/2/2006",
	"1/2/06 15:04:05",
	"1/2/06 15:04",
	"1/2/06",
	"02-01-2006 15:04:05",
	"02-01-2006",
	time.RFC3339,
	time.RFC3339Nano,
}

// ParseTimestamp parses Excel cell timestamps: numeric serial dates
// first, then common string layouts. Returned times are UTC, rounded
// to whole seconds (serial fractions carry float noise below that).
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}

	// Numeric Excel serial date: days since 1899-12-30. That base
	// already absorbs the phantom 1900-02-29 for serials >= 61;
	// earlier serials need one extra day.
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 1 {
		days := serial
		if serial < 60 {
			days++
		}
		whole := math.Trunc(days)
		frac := days - whole
		t := time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC).
			AddDate(0, 0, int(whole)).
			Add(time.Duration(frac * 24 * float64(time.Hour)))
		return t.Round(time.Second), nil
	}

	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// sameDay compares calendar dates, discarding time of day. Workbook
// timestamps are wall-clock values treated as UTC.
func sameDay(t, date time.Time) bool {
	t = t.UTC()
	date = date.UTC()
	return t.Year() == date.Year() && t.Month() == date.Month() && t.Day() == date.Day()
}
