// Package frame defines the columnar batch model shared by the workbook
// reader, the parquet codec, and the mock data generators.
package frame

import (
	"fmt"
	"time"
)

// Kind identifies a column's value type.
type Kind uint8

const (
	KindString Kind = iota
	KindInt64
	KindFloat64
	KindBool
	KindTimestamp

	kindMax // sentinel
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt64:
		return "int64"
	case KindFloat64:
		return "float64"
	case KindBool:
		return "bool"
	case KindTimestamp:
		return "timestamp"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k < kindMax
}

// Field describes one column of a batch.
type Field struct {
	Name     string
	Kind     Kind
	Nullable bool
}

// Schema is an ordered set of fields. The schema of a sheet is decided
// at load time from the sheet's own header row and cell values.
type Schema struct {
	Fields []Field
}

// NewSchema validates and returns a schema.
func NewSchema(fields ...Field) (Schema, error) {
	if len(fields) == 0 {
		return Schema{}, fmt.Errorf("schema must have at least one field")
	}

	seen := make(map[string]struct{}, len(fields))
	for i, f := range fields {
		if f.Name == "" {
			return Schema{}, fmt.Errorf("field %d has empty name", i)
		}
		if !f.Kind.Valid() {
			return Schema{}, fmt.Errorf("field %q has invalid kind %d", f.Name, f.Kind)
		}
		if _, dup := seen[f.Name]; dup {
			return Schema{}, fmt.Errorf("duplicate field name %q", f.Name)
		}
		seen[f.Name] = struct{}{}
	}

	return Schema{Fields: fields}, nil
}

// FieldIndex returns the index of the named field, or -1.
func (s Schema) FieldIndex(name string) int {
	for i, f := range s.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Equal reports whether two schemas have identical fields in order.
func (s Schema) Equal(other Schema) bool {
	if len(s.Fields) != len(other.Fields) {
		return false
	}
	for i, f := range s.Fields {
		if f != other.Fields[i] {
			return false
		}
	}
	return true
}

// Column holds the values of one field. Exactly one typed slice is
// populated, matching Field.Kind. Valid marks non-null rows; a nil
// Valid slice means every row is valid.
type Column struct {
	Field   Field
	Strings []string
	Ints    []int64
	Floats  []float64
	Bools   []bool
	Times   []time.Time
	Valid   []bool
}

// Len returns the number of rows in the column.
func (c *Column) Len() int {
	switch c.Field.Kind {
	case KindString:
		return len(c.Strings)
	case KindInt64:
		return len(c.Ints)
	case KindFloat64:
		return len(c.Floats)
	case KindBool:
		return len(c.Bools)
	case KindTimestamp:
		return len(c.Times)
	default:
		return 0
	}
}

// IsNull reports whether row i is null.
func (c *Column) IsNull(i int) bool {
	return c.Valid != nil && !c.Valid[i]
}

// Value returns the value at row i, or nil if the row is null.
func (c *Column) Value(i int) interface{} {
	if c.IsNull(i) {
		return nil
	}
	switch c.Field.Kind {
	case KindString:
		return c.Strings[i]
	case KindInt64:
		return c.Ints[i]
	case KindFloat64:
		return c.Floats[i]
	case KindBool:
		return c.Bools[i]
	case KindTimestamp:
		return c.Times[i]
	default:
		return nil
	}
}

// Batch is an immutable columnar view of one sheet's rows for one run.
// Filtering produces fresh batches; the loaded dataset is never mutated.
type Batch struct {
	Sheet   string
	Schema  Schema
	Columns []Column
}

// NumRows returns the row count.
func (b *Batch) NumRows() int {
	if len(b.Columns) == 0 {
		return 0
	}
	return b.Columns[0].Len()
}

// NumCols returns the column count.
func (b *Batch) NumCols() int {
	return len(b.Columns)
}

// Empty reports whether the batch holds no rows.
func (b *Batch) Empty() bool {
	return b.NumRows() == 0
}

// Column returns the named column, or nil.
func (b *Batch) Column(name string) *Column {
	idx := b.Schema.FieldIndex(name)
	if idx < 0 {
		return nil
	}
	return &b.Columns[idx]
}

// Row returns the values of row i, nulls as nil. Intended for
// verification output, not bulk access.
func (b *Batch) Row(i int) []interface{} {
	row := make([]interface{}, len(b.Columns))
	for j := range b.Columns {
		row[j] = b.Columns[j].Value(i)
	}
	return row
}

// Equal reports whether two batches hold identical sheets, schemas,
// and cell values. Timestamps compare as instants, so a roundtrip
// through an encoding that normalizes to UTC still compares equal.
func (b *Batch) Equal(other *Batch) bool {
	if b == nil || other == nil {
		return b == other
	}
	if b.Sheet != other.Sheet || !b.Schema.Equal(other.Schema) {
		return false
	}
	if b.NumRows() != other.NumRows() {
		return false
	}

	for ci := range b.Columns {
		a, o := &b.Columns[ci], &other.Columns[ci]
		for i := 0; i < a.Len(); i++ {
			if a.IsNull(i) != o.IsNull(i) {
				return false
			}
			if a.IsNull(i) {
				continue
			}
			switch a.Field.Kind {
			case KindString:
				if a.Strings[i] != o.Strings[i] {
					return false
				}
			case KindInt64:
				if a.Ints[i] != o.Ints[i] {
					return false
				}
			case KindFloat64:
				if a.Floats[i] != o.Floats[i] {
					return false
				}
			case KindBool:
				if a.Bools[i] != o.Bools[i] {
					return false
				}
			case KindTimestamp:
				if !a.Times[i].Equal(o.Times[i]) {
					return false
				}
			}
		}
	}
	return true
}

// Builder assembles a batch row by row.
type Builder struct {
	sheet  string
	schema Schema
	cols   []Column
	rows   int
}

// NewBuilder creates a builder for the given sheet and schema.
func NewBuilder(sheet string, schema Schema) *Builder {
	cols := make([]Column, len(schema.Fields))
	for i, f := range schema.Fields {
		cols[i] = Column{Field: f}
	}
	return &Builder{sheet: sheet, schema: schema, cols: cols}
}

// AppendRow appends one row. Values must match the schema in order;
// nil appends a null and is only allowed for nullable fields. Int and
// int64 are both accepted for int64 fields.
func (b *Builder) AppendRow(values ...interface{}) error {
	if len(values) != len(b.cols) {
		return fmt.Errorf("row has %d values, schema has %d fields", len(values), len(b.cols))
	}

	for i, v := range values {
		col := &b.cols[i]
		if v == nil {
			if !col.Field.Nullable {
				return fmt.Errorf("null value for non-nullable field %q", col.Field.Name)
			}
			b.appendNull(col)
			continue
		}

		if err := b.appendValue(col, v); err != nil {
			return err
		}
	}

	b.rows++
	return nil
}

func (b *Builder) appendValue(col *Column, v interface{}) error {
	switch col.Field.Kind {
	case KindString:
		s, ok := v.(string)
		if !ok {
			return b.typeError(col, v)
		}
		col.Strings = append(col.Strings, s)
	case KindInt64:
		switch n := v.(type) {
		case int64:
			col.Ints = append(col.Ints, n)
		case int:
			col.Ints = append(col.Ints, int64(n))
		default:
			return b.typeError(col, v)
		}
	case KindFloat64:
		f, ok := v.(float64)
		if !ok {
			return b.typeError(col, v)
		}
		col.Floats = append(col.Floats, f)
	case KindBool:
		bv, ok := v.(bool)
		if !ok {
			return b.typeError(col, v)
		}
		col.Bools = append(col.Bools, bv)
	case KindTimestamp:
		t, ok := v.(time.Time)
		if !ok {
			return b.typeError(col, v)
		}
		col.Times = append(col.Times, t)
	default:
		return fmt.Errorf("field %q: unsupported kind %s", col.Field.Name, col.Field.Kind)
	}

	if col.Valid != nil {
		col.Valid = append(col.Valid, true)
	}
	return nil
}

func (b *Builder) appendNull(col *Column) {
	// Materialize the validity slice lazily on the first null.
	if col.Valid == nil {
		col.Valid = make([]bool, 0, b.rows+1)
		for i := 0; i < b.rows; i++ {
			col.Valid = append(col.Valid, true)
		}
	}
	col.Valid = append(col.Valid, false)

	switch col.Field.Kind {
	case KindString:
		col.Strings = append(col.Strings, "")
	case KindInt64:
		col.Ints = append(col.Ints, 0)
	case KindFloat64:
		col.Floats = append(col.Floats, 0)
	case KindBool:
		col.Bools = append(col.Bools, false)
	case KindTimestamp:
		col.Times = append(col.Times, time.Time{})
	}
}

func (b *Builder) typeError(col *Column, v interface{}) error {
	return fmt.Errorf("field %q expects %s, got %T", col.Field.Name, col.Field.Kind, v)
}

// NumRows returns the number of rows appended so far.
func (b *Builder) NumRows() int {
	return b.rows
}

// Batch finalizes and returns the built batch.
func (b *Builder) Batch() *Batch {
	return &Batch{
		Sheet:   b.sheet,
		Schema:  b.schema,
		Columns: b.cols,
	}
}
