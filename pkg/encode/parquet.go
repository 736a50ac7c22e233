// Package encode converts batches to and from self-describing columnar
// bytes. The payload is parquet with the arrow schema embedded, so a
// decoded batch reproduces the original columns, types, and nulls
// exactly. Timestamps are stored with microsecond precision in UTC.
package encode

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/file"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"

	"github.com/lakeseed/lakeseed/pkg/errors"
	"github.com/lakeseed/lakeseed/pkg/frame"
)

// sheetMetaKey carries the batch's sheet name through the embedded
// arrow schema so the roundtrip is total.
const sheetMetaKey = "lakeseed.sheet"

// Codec encodes and decodes batches. Encoding is a pure function of
// the batch; the codec holds only an allocator and writer properties.
type Codec struct {
	alloc       memory.Allocator
	props       *parquet.WriterProperties
	arrowProps  pqarrow.ArrowWriterProperties
	readBatchSz int64
}

// NewCodec creates a codec with zstd compression and dictionary
// encoding, matching the layout expected by downstream parquet readers.
func NewCodec() *Codec {
	return &Codec{
		alloc: memory.NewGoAllocator(),
		props: parquet.NewWriterProperties(
			parquet.WithCompression(compress.Codecs.Zstd),
			parquet.WithDictionaryDefault(true),
			parquet.WithDataPageSize(1024*1024),
		),
		arrowProps:  pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema()),
		readBatchSz: 8192,
	}
}

// Encode converts a batch into parquet bytes with the schema embedded.
func (c *Codec) Encode(batch *frame.Batch) ([]byte, error) {
	schema, err := c.arrowSchema(batch)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	writer, err := pqarrow.NewFileWriter(schema, &buf, c.props, c.arrowProps)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeEncodeFailed, "failed to create parquet writer").
			WithContext("sheet", batch.Sheet)
	}

	if batch.NumRows() > 0 {
		record, err := c.buildRecord(schema, batch)
		if err != nil {
			writer.Close()
			return nil, err
		}
		werr := writer.Write(record)
		record.Release()
		if werr != nil {
			writer.Close()
			return nil, errors.Wrap(werr, errors.CodeEncodeFailed, "failed to write record").
				WithContext("sheet", batch.Sheet)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, errors.Wrap(err, errors.CodeEncodeFailed, "failed to finalize parquet payload").
			WithContext("sheet", batch.Sheet)
	}
	return buf.Bytes(), nil
}

// Decode reconstructs a batch from parquet bytes produced by Encode.
func (c *Codec) Decode(data []byte) (*frame.Batch, error) {
	pqReader, err := file.NewParquetReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDecodeFailed, "failed to open parquet payload")
	}
	defer pqReader.Close()

	arrowReader, err := pqarrow.NewFileReader(pqReader, pqarrow.ArrowReadProperties{
		BatchSize: c.readBatchSz,
	}, c.alloc)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDecodeFailed, "failed to create arrow reader")
	}

	arrowSchema, err := arrowReader.Schema()
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDecodeFailed, "payload has no readable schema")
	}

	sheet := ""
	if idx := arrowSchema.Metadata().FindKey(sheetMetaKey); idx >= 0 {
		sheet = arrowSchema.Metadata().Values()[idx]
	}

	schema, err := frameSchema(arrowSchema)
	if err != nil {
		return nil, err
	}

	table, err := arrowReader.ReadTable(context.Background())
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDecodeFailed, "failed to read parquet table")
	}
	defer table.Release()

	builder := frame.NewBuilder(sheet, schema)

	tableReader := array.NewTableReader(table, c.readBatchSz)
	defer tableReader.Release()

	for tableReader.Next() {
		record := tableReader.Record()
		if err := appendRecord(builder, schema, record); err != nil {
			return nil, err
		}
	}

	return builder.Batch(), nil
}

// arrowSchema maps a batch schema onto arrow fields, with the sheet
// name carried in schema metadata.
func (c *Codec) arrowSchema(batch *frame.Batch) (*arrow.Schema, error) {
	fields := make([]arrow.Field, len(batch.Schema.Fields))
	for i, f := range batch.Schema.Fields {
		dt, err := arrowType(f.Kind)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeUnsupportedKind, "cannot encode field").
				WithContext("field", f.Name).
				WithContext("sheet", batch.Sheet)
		}
		fields[i] = arrow.Field{Name: f.Name, Type: dt, Nullable: f.Nullable}
	}

	meta := arrow.NewMetadata([]string{sheetMetaKey}, []string{batch.Sheet})
	return arrow.NewSchema(fields, &meta), nil
}

func arrowType(kind frame.Kind) (arrow.DataType, error) {
	switch kind {
	case frame.KindString:
		return arrow.BinaryTypes.String, nil
	case frame.KindInt64:
		return arrow.PrimitiveTypes.Int64, nil
	case frame.KindFloat64:
		return arrow.PrimitiveTypes.Float64, nil
	case frame.KindBool:
		return arrow.FixedWidthTypes.Boolean, nil
	case frame.KindTimestamp:
		return arrow.FixedWidthTypes.Timestamp_us, nil
	default:
		return nil, fmt.Errorf("unsupported kind %s", kind)
	}
}

// frameSchema maps a decoded arrow schema back onto batch fields.
func frameSchema(s *arrow.Schema) (frame.Schema, error) {
	fields := make([]frame.Field, len(s.Fields()))
	for i, f := range s.Fields() {
		var kind frame.Kind
		switch f.Type.ID() {
		case arrow.STRING:
			kind = frame.KindString
		case arrow.INT64:
			kind = frame.KindInt64
		case arrow.FLOAT64:
			kind = frame.KindFloat64
		case arrow.BOOL:
			kind = frame.KindBool
		case arrow.TIMESTAMP:
			kind = frame.KindTimestamp
		default:
			return frame.Schema{}, errors.New(errors.CodeUnsupportedKind, "cannot decode column type").
				WithContext("field", f.Name).
				WithContext("type", f.Type.String())
		}
		fields[i] = frame.Field{Name: f.Name, Kind: kind, Nullable: f.Nullable}
	}

	schema, err := frame.NewSchema(fields...)
	if err != nil {
		return frame.Schema{}, errors.Wrap(err, errors.CodeDecodeFailed, "decoded schema is invalid")
	}
	return schema, nil
}

// buildRecord converts the batch's columns into one arrow record.
func (c *Codec) buildRecord(schema *arrow.Schema, batch *frame.Batch) (arrow.Record, error) {
	rows := batch.NumRows()
	arrays := make([]arrow.Array, len(batch.Columns))

	release := func(upto int) {
		for i := 0; i < upto; i++ {
			arrays[i].Release()
		}
	}

	for i := range batch.Columns {
		col := &batch.Columns[i]
		arr, err := c.buildArray(schema.Field(i), col, rows)
		if err != nil {
			release(i)
			return nil, err
		}
		arrays[i] = arr
	}

	record := array.NewRecord(schema, arrays, int64(rows))
	release(len(arrays))
	return record, nil
}

func (c *Codec) buildArray(field arrow.Field, col *frame.Column, rows int) (arrow.Array, error) {
	switch col.Field.Kind {
	case frame.KindString:
		b := array.NewStringBuilder(c.alloc)
		defer b.Release()
		for i := 0; i < rows; i++ {
			if col.IsNull(i) {
				b.AppendNull()
			} else {
				b.Append(col.Strings[i])
			}
		}
		return b.NewArray(), nil

	case frame.KindInt64:
		b := array.NewInt64Builder(c.alloc)
		defer b.Release()
		for i := 0; i < rows; i++ {
			if col.IsNull(i) {
				b.AppendNull()
			} else {
				b.Append(col.Ints[i])
			}
		}
		return b.NewArray(), nil

	case frame.KindFloat64:
		b := array.NewFloat64Builder(c.alloc)
		defer b.Release()
		for i := 0; i < rows; i++ {
			if col.IsNull(i) {
				b.AppendNull()
			} else {
				b.Append(col.Floats[i])
			}
		}
		return b.NewArray(), nil

	case frame.KindBool:
		b := array.NewBooleanBuilder(c.alloc)
		defer b.Release()
		for i := 0; i < rows; i++ {
			if col.IsNull(i) {
				b.AppendNull()
			} else {
				b.Append(col.Bools[i])
			}
		}
		return b.NewArray(), nil

	case frame.KindTimestamp:
		tsType, ok := field.Type.(*arrow.TimestampType)
		if !ok {
			return nil, errors.New(errors.CodeEncodeFailed, "timestamp field has non-timestamp arrow type").
				WithContext("field", field.Name)
		}
		b := array.NewTimestampBuilder(c.alloc, tsType)
		defer b.Release()
		for i := 0; i < rows; i++ {
			if col.IsNull(i) {
				b.AppendNull()
			} else {
				b.Append(arrow.Timestamp(col.Times[i].UnixMicro()))
			}
		}
		return b.NewArray(), nil

	default:
		return nil, errors.New(errors.CodeUnsupportedKind, "cannot encode column").
			WithContext("field", col.Field.Name)
	}
}

// appendRecord walks one decoded record row-wise into the builder.
func appendRecord(builder *frame.Builder, schema frame.Schema, record arrow.Record) error {
	nCols := int(record.NumCols())
	nRows := int(record.NumRows())
	values := make([]interface{}, nCols)

	for row := 0; row < nRows; row++ {
		for col := 0; col < nCols; col++ {
			arr := record.Column(col)
			if arr.IsNull(row) {
				values[col] = nil
				continue
			}

			switch schema.Fields[col].Kind {
			case frame.KindString:
				values[col] = arr.(*array.String).Value(row)
			case frame.KindInt64:
				values[col] = arr.(*array.Int64).Value(row)
			case frame.KindFloat64:
				values[col] = arr.(*array.Float64).Value(row)
			case frame.KindBool:
				values[col] = arr.(*array.Boolean).Value(row)
			case frame.KindTimestamp:
				tsType := arr.DataType().(*arrow.TimestampType)
				ts := arr.(*array.Timestamp).Value(row)
				values[col] = tsToTime(ts, tsType.Unit)
			}
		}

		if err := builder.AppendRow(values...); err != nil {
			return errors.Wrap(err, errors.CodeDecodeFailed, "decoded row does not match schema")
		}
	}
	return nil
}

func tsToTime(ts arrow.Timestamp, unit arrow.TimeUnit) time.Time {
	switch unit {
	case arrow.Second:
		return time.Unix(int64(ts), 0).UTC()
	case arrow.Millisecond:
		return time.UnixMilli(int64(ts)).UTC()
	case arrow.Microsecond:
		return time.UnixMicro(int64(ts)).UTC()
	default:
		return time.Unix(0, int64(ts)).UTC()
	}
}
