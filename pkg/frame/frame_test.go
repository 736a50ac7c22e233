package frame

import (
	"testing"
	"time"
)

func testSchema(t *testing.T) Schema {
	t.Helper()
	s, err := NewSchema(
		Field{Name: "Invoice", Kind: KindString},
		Field{Name: "Quantity", Kind: KindInt64},
		Field{Name: "Price", Kind: KindFloat64},
		Field{Name: "Cancelled", Kind: KindBool},
		Field{Name: "InvoiceDate", Kind: KindTimestamp},
		Field{Name: "CustomerID", Kind: KindFloat64, Nullable: true},
	)
	if err != nil {
		t.Fatalf("NewSchema() error = %v", err)
	}
	return s
}

func TestNewSchemaValidation(t *testing.T) {
	tests := []struct {
		name    string
		fields  []Field
		wantErr bool
	}{
		{
			name:    "valid",
			fields:  []Field{{Name: "a", Kind: KindString}, {Name: "b", Kind: KindInt64}},
			wantErr: false,
		},
		{
			name:    "empty schema",
			fields:  nil,
			wantErr: true,
		},
		{
			name:    "empty field name",
			fields:  []Field{{Name: "", Kind: KindString}},
			wantErr: true,
		},
		{
			name:    "duplicate field name",
			fields:  []Field{{Name: "a", Kind: KindString}, {Name: "a", Kind: KindInt64}},
			wantErr: true,
		},
		{
			name:    "invalid kind",
			fields:  []Field{{Name: "a", Kind: Kind(99)}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSchema(tt.fields...)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewSchema() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBuilderAppendRow(t *testing.T) {
	schema := testSchema(t)
	b := NewBuilder("Year 2010-2011", schema)

	ts := time.Date(2010, 12, 1, 8, 26, 0, 0, time.UTC)
	if err := b.AppendRow("536365", int64(6), 2.55, false, ts, 17850.0); err != nil {
		t.Fatalf("AppendRow() error = %v", err)
	}
	if err := b.AppendRow("536366", 12, 1.85, true, ts.Add(time.Hour), nil); err != nil {
		t.Fatalf("AppendRow() with null error = %v", err)
	}

	batch := b.Batch()
	if batch.Sheet != "Year 2010-2011" {
		t.Errorf("Sheet = %q, want %q", batch.Sheet, "Year 2010-2011")
	}
	if got := batch.NumRows(); got != 2 {
		t.Errorf("NumRows() = %d, want 2", got)
	}
	if got := batch.NumCols(); got != 6 {
		t.Errorf("NumCols() = %d, want 6", got)
	}

	cust := batch.Column("CustomerID")
	if cust == nil {
		t.Fatal("Column(CustomerID) = nil")
	}
	if cust.IsNull(0) {
		t.Error("row 0 CustomerID should not be null")
	}
	if !cust.IsNull(1) {
		t.Error("row 1 CustomerID should be null")
	}
	if v := cust.Value(0); v != 17850.0 {
		t.Errorf("CustomerID[0] = %v, want 17850.0", v)
	}
	if v := cust.Value(1); v != nil {
		t.Errorf("CustomerID[1] = %v, want nil", v)
	}

	qty := batch.Column("Quantity")
	if qty.Ints[1] != 12 {
		t.Errorf("Quantity[1] = %d, want 12 (int promoted to int64)", qty.Ints[1])
	}
}

func TestBuilderRejectsBadRows(t *testing.T) {
	schema := testSchema(t)

	tests := []struct {
		name   string
		values []interface{}
	}{
		{
			name:   "wrong arity",
			values: []interface{}{"536365", int64(6)},
		},
		{
			name:   "wrong type",
			values: []interface{}{"536365", "six", 2.55, false, time.Now(), nil},
		},
		{
			name:   "null in non-nullable field",
			values: []interface{}{nil, int64(6), 2.55, false, time.Now(), nil},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder("s", schema)
			if err := b.AppendRow(tt.values...); err == nil {
				t.Error("AppendRow() expected error, got nil")
			}
		})
	}
}

func TestBatchEqual(t *testing.T) {
	schema := testSchema(t)
	ts := time.Date(2011, 3, 14, 15, 9, 26, 0, time.UTC)

	build := func(loc *time.Location) *Batch {
		b := NewBuilder("s1", schema)
		if err := b.AppendRow("A", int64(1), 9.99, true, ts.In(loc), nil); err != nil {
			t.Fatalf("AppendRow() error = %v", err)
		}
		return b.Batch()
	}

	a := build(time.UTC)
	other := build(time.FixedZone("CET", 3600))
	if !a.Equal(other) {
		t.Error("batches differing only in timestamp location should be equal")
	}

	b2 := NewBuilder("s1", schema)
	if err := b2.AppendRow("A", int64(2), 9.99, true, ts, nil); err != nil {
		t.Fatalf("AppendRow() error = %v", err)
	}
	if a.Equal(b2.Batch()) {
		t.Error("batches with different cell values should not be equal")
	}

	b3 := NewBuilder("other-sheet", schema)
	if err := b3.AppendRow("A", int64(1), 9.99, true, ts, nil); err != nil {
		t.Fatalf("AppendRow() error = %v", err)
	}
	if a.Equal(b3.Batch()) {
		t.Error("batches from different sheets should not be equal")
	}
}

func TestEmptyBatch(t *testing.T) {
	schema := testSchema(t)
	batch := NewBuilder("empty", schema).Batch()

	if !batch.Empty() {
		t.Error("Empty() = false for zero-row batch")
	}
	if got := batch.NumRows(); got != 0 {
		t.Errorf("NumRows() = %d, want 0", got)
	}
}
