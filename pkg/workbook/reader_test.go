package workbook

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/lakeseed/lakeseed/pkg/errors"
	"github.com/lakeseed/lakeseed/pkg/frame"
)

type sheetRows struct {
	name string
	rows [][]interface{}
}

func writeFixture(t *testing.T, path string, sheets []sheetRows) {
	t.Helper()

	xlFile := excelize.NewFile()
	for i, sheet := range sheets {
		if i == 0 {
			if err := xlFile.SetSheetName("Sheet1", sheet.name); err != nil {
				t.Fatalf("rename sheet: %v", err)
			}
		} else {
			if _, err := xlFile.NewSheet(sheet.name); err != nil {
				t.Fatalf("new sheet %s: %v", sheet.name, err)
			}
		}
		for r, row := range sheet.rows {
			for c, value := range row {
				cell, err := excelize.CoordinatesToCellName(c+1, r+1)
				if err != nil {
					t.Fatalf("cell name: %v", err)
				}
				if err := xlFile.SetCellValue(sheet.name, cell, value); err != nil {
					t.Fatalf("set cell %s: %v", cell, err)
				}
			}
		}
	}
	if err := xlFile.SaveAs(path); err != nil {
		t.Fatalf("save fixture: %v", err)
	}
	xlFile.Close()
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(nullWriter{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type nullWriter struct{}

func (nullWriter) Write(p []byte) (int, error) { return len(p), nil }

func retailHeader() []interface{} {
	return []interface{}{"Invoice", "StockCode", "Description", "Quantity", "InvoiceDate", "Price", "CustomerID", "Country"}
}

func TestLoadForDateFiltersRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "retail.xlsx")
	writeFixture(t, path, []sheetRows{
		{
			name: "Year 2009-2010",
			rows: [][]interface{}{
				retailHeader(),
				{"489434", "85048", "15CM CHRISTMAS GLASS BALL", 12, "2009-12-01 07:45:00", 6.95, 13085, "United Kingdom"},
				{"489435", "22350", "CAT BOWL", 12, "2009-12-02 09:30:00", 2.55, 13085, "United Kingdom"},
			},
		},
		{
			name: "Year 2010-2011",
			rows: [][]interface{}{
				retailHeader(),
				{"536365", "85123A", "WHITE HANGING HEART T-LIGHT HOLDER", 6, "2010-12-01 08:26:00", 2.55, 17850, "United Kingdom"},
				{"C536379", "D", "Discount", -1, "2010-12-01 09:41:00", 27.50, 14527, "United Kingdom"},
				{"536520", "21866", "UNION JACK FLAG LUGGAGE TAG", 1, "2010-12-02 12:43:00", 1.25, 14729, "United Kingdom"},
			},
		},
	})

	reader := NewReader(quietLogger())
	target := time.Date(2010, 12, 1, 0, 0, 0, 0, time.UTC)

	ds, err := reader.LoadForDate(context.Background(), path, target)
	if err != nil {
		t.Fatalf("LoadForDate: %v", err)
	}

	if len(ds.Sheets) != 2 {
		t.Fatalf("sheets = %v, want 2", ds.Sheets)
	}
	if got := ds.Batches["Year 2009-2010"].NumRows(); got != 0 {
		t.Errorf("2009-2010 rows = %d, want 0", got)
	}
	second := ds.Batches["Year 2010-2011"]
	if second.NumRows() != 2 {
		t.Fatalf("2010-2011 rows = %d, want 2", second.NumRows())
	}
	if nonEmpty := ds.NonEmpty(); len(nonEmpty) != 1 || nonEmpty[0] != "Year 2010-2011" {
		t.Errorf("NonEmpty = %v", nonEmpty)
	}
	if ds.Empty() {
		t.Error("Empty() = true for dataset with matching rows")
	}
	if ds.TotalRows() != 2 {
		t.Errorf("TotalRows = %d, want 2", ds.TotalRows())
	}

	// Inferred kinds follow the cell values.
	wantKinds := map[string]frame.Kind{
		"Invoice":     frame.KindString, // cancellation code C536379 keeps it textual
		"StockCode":   frame.KindString,
		"Description": frame.KindString,
		"Quantity":    frame.KindInt64,
		"InvoiceDate": frame.KindTimestamp,
		"Price":       frame.KindFloat64,
		"CustomerID":  frame.KindInt64,
		"Country":     frame.KindString,
	}
	for name, want := range wantKinds {
		col := second.Column(name)
		if col == nil {
			t.Fatalf("column %s missing", name)
		}
		if col.Field.Kind != want {
			t.Errorf("column %s kind = %s, want %s", name, col.Field.Kind, want)
		}
	}

	invoices := second.Column("Invoice").Strings
	if invoices[0] != "536365" || invoices[1] != "C536379" {
		t.Errorf("invoices = %v", invoices)
	}
	if qty := second.Column("Quantity").Ints[1]; qty != -1 {
		t.Errorf("cancelled quantity = %d, want -1", qty)
	}
	ts := second.Column("InvoiceDate").Times[0]
	want := time.Date(2010, 12, 1, 8, 26, 0, 0, time.UTC)
	if !ts.Equal(want) {
		t.Errorf("timestamp = %v, want %v", ts, want)
	}
}

func TestLoadForDateMissingTimestampColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mixed.xlsx")
	writeFixture(t, path, []sheetRows{
		{
			name: "Notes",
			rows: [][]interface{}{
				{"Code", "Comment"},
				{"A1", "no dates here"},
			},
		},
		{
			name: "Sales",
			rows: [][]interface{}{
				{"Invoice", "InvoiceDate", "Price"},
				{"536365", "2010-12-01 08:26:00", 2.55},
			},
		},
	})

	reader := NewReader(quietLogger())
	target := time.Date(2010, 12, 1, 0, 0, 0, 0, time.UTC)

	ds, err := reader.LoadForDate(context.Background(), path, target)
	if err != nil {
		t.Fatalf("LoadForDate: %v", err)
	}
	if got := ds.Batches["Notes"].NumRows(); got != 0 {
		t.Errorf("Notes rows = %d, want 0 (missing column degrades, not fails)", got)
	}
	if got := ds.Batches["Sales"].NumRows(); got != 1 {
		t.Errorf("Sales rows = %d, want 1", got)
	}
	if derr := ds.Degraded["Notes"]; !errors.IsCode(derr, errors.CodeMissingColumn) {
		t.Errorf("Degraded[Notes] = %v, want %s", derr, errors.CodeMissingColumn)
	}
	if len(ds.Degraded) != 1 {
		t.Errorf("Degraded = %v, want only Notes", ds.Degraded)
	}
}

func TestLoadForDateMissingFile(t *testing.T) {
	reader := NewReader(quietLogger())
	_, err := reader.LoadForDate(context.Background(), filepath.Join(t.TempDir(), "absent.xlsx"), time.Now())
	if !errors.IsCode(err, errors.CodeSourceNotFound) {
		t.Fatalf("err = %v, want %s", err, errors.CodeSourceNotFound)
	}
}

func TestLoadForDateMalformedTimestamp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.xlsx")
	writeFixture(t, path, []sheetRows{
		{
			name: "Sales",
			rows: [][]interface{}{
				{"Invoice", "InvoiceDate"},
				{"536365", "2010-12-01 08:26:00"},
				{"536366", "not a date"},
			},
		},
	})

	reader := NewReader(quietLogger())
	_, err := reader.LoadForDate(context.Background(), path, time.Date(2010, 12, 1, 0, 0, 0, 0, time.UTC))
	if !errors.IsCode(err, errors.CodeInvalidTimestamp) {
		t.Fatalf("err = %v, want %s", err, errors.CodeInvalidTimestamp)
	}
}

func TestLoadForDateSkipsRowsWithEmptyTimestamp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gaps.xlsx")
	writeFixture(t, path, []sheetRows{
		{
			name: "Sales",
			rows: [][]interface{}{
				{"Invoice", "InvoiceDate", "Price"},
				{"536365", "2010-12-01 08:26:00", 2.55},
				{"536366", "", 1.25},
			},
		},
	})

	reader := NewReader(quietLogger())
	ds, err := reader.LoadForDate(context.Background(), path, time.Date(2010, 12, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("LoadForDate: %v", err)
	}
	if got := ds.Batches["Sales"].NumRows(); got != 1 {
		t.Errorf("rows = %d, want 1 (timestampless row excluded)", got)
	}
}

func TestLoadForDateNullCells(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nulls.xlsx")
	writeFixture(t, path, []sheetRows{
		{
			name: "Sales",
			rows: [][]interface{}{
				{"Invoice", "InvoiceDate", "CustomerID"},
				{"536365", "2010-12-01 08:26:00", 17850},
				{"536366", "2010-12-01 09:00:00", ""},
			},
		},
	})

	reader := NewReader(quietLogger())
	ds, err := reader.LoadForDate(context.Background(), path, time.Date(2010, 12, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("LoadForDate: %v", err)
	}
	batch := ds.Batches["Sales"]
	if batch.NumRows() != 2 {
		t.Fatalf("rows = %d, want 2", batch.NumRows())
	}
	col := batch.Column("CustomerID")
	if col.IsNull(0) {
		t.Error("row 0 CustomerID should be set")
	}
	if !col.IsNull(1) {
		t.Error("row 1 CustomerID should be null")
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{in: "2010-12-01 08:26:00", want: time.Date(2010, 12, 1, 8, 26, 0, 0, time.UTC)},
		{in: "2010-12-01T08:26:00Z", want: time.Date(2010, 12, 1, 8, 26, 0, 0, time.UTC)},
		{in: "2010-12-01", want: time.Date(2010, 12, 1, 0, 0, 0, 0, time.UTC)},
		{in: "12/1/2010 8:26", want: time.Date(2010, 12, 1, 8, 26, 0, 0, time.UTC)},
		{in: "12/1/10 8:26", want: time.Date(2010, 12, 1, 8, 26, 0, 0, time.UTC)},
		// Excel serial date for 2010-12-01 08:26:00.
		{in: "40513.3513888889", want: time.Date(2010, 12, 1, 8, 26, 0, 0, time.UTC)},
		// Whole-day serial.
		{in: "40513", want: time.Date(2010, 12, 1, 0, 0, 0, 0, time.UTC)},
		// Serials before the phantom 1900-02-29 shift by one day.
		{in: "59", want: time.Date(1900, 2, 28, 0, 0, 0, 0, time.UTC)},
		{in: "61", want: time.Date(1900, 3, 1, 0, 0, 0, 0, time.UTC)},
		{in: "not a date", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tc := range tests {
		got, err := ParseTimestamp(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseTimestamp(%q) = %v, want error", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseTimestamp(%q): %v", tc.in, err)
			continue
		}
		if !got.Equal(tc.want) {
			t.Errorf("ParseTimestamp(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestSetTimestampColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.xlsx")
	writeFixture(t, path, []sheetRows{
		{
			name: "Events",
			rows: [][]interface{}{
				{"ID", "OccurredAt"},
				{"e1", "2010-12-01 10:00:00"},
				{"e2", "2010-12-02 10:00:00"},
			},
		},
	})

	reader := NewReader(quietLogger()).SetTimestampColumn("OccurredAt")
	ds, err := reader.LoadForDate(context.Background(), path, time.Date(2010, 12, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("LoadForDate: %v", err)
	}
	if got := ds.Batches["Events"].NumRows(); got != 1 {
		t.Errorf("rows = %d, want 1", got)
	}
}
