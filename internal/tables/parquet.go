package tables

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strconv"

	"github.com/parquet-go/parquet-go"
)

var (
	stringPtr = reflect.TypeOf((*string)(nil))
	floatPtr  = reflect.TypeOf((*float64)(nil))
	intPtr    = reflect.TypeOf((*int64)(nil))
)

// WriteParquet encodes f as a flat Parquet file with every column optional.
// Column order is preserved.
func WriteParquet(w io.Writer, f Frame) error {
	if len(f.Columns) == 0 {
		return errors.New("tables: cannot write a frame without columns")
	}

	rowType := rowStruct(f.Columns)
	schema := parquet.SchemaOf(reflect.New(rowType).Interface())
	pw := parquet.NewWriter(w, schema, parquet.Compression(&parquet.Snappy))

	for n, r := range f.Rows {
		rv := reflect.New(rowType).Elem()
		for i, c := range f.Columns {
			if err := setField(rv.Field(i), c, r[i]); err != nil {
				return fmt.Errorf("tables: row %d: %w", n, err)
			}
		}
		if err := pw.Write(rv.Interface()); err != nil {
			return fmt.Errorf("tables: write row %d: %w", n, err)
		}
	}

	if err := pw.Close(); err != nil {
		return fmt.Errorf("tables: close parquet writer: %w", err)
	}
	return nil
}

// rowStruct builds the Go struct parquet-go derives the schema from. Field
// names are positional; the parquet tag carries the column name.
func rowStruct(cols []Column) reflect.Type {
	fields := make([]reflect.StructField, len(cols))
	for i, c := range cols {
		t := stringPtr
		switch c.Kind {
		case Float:
			t = floatPtr
		case Int:
			t = intPtr
		}
		fields[i] = reflect.StructField{
			Name: fmt.Sprintf("F%d", i),
			Type: t,
			Tag:  reflect.StructTag(fmt.Sprintf(`parquet:%q`, c.Name)),
		}
	}
	return reflect.StructOf(fields)
}

func setField(field reflect.Value, c Column, v any) error {
	if v == nil {
		return nil
	}
	switch c.Kind {
	case Float:
		f, ok := toFloat(v)
		if !ok {
			return fmt.Errorf("column %s: %T is not a float", c.Name, v)
		}
		field.Set(reflect.ValueOf(&f))
	case Int:
		n, ok := toInt(v)
		if !ok {
			return fmt.Errorf("column %s: %T is not an int", c.Name, v)
		}
		field.Set(reflect.ValueOf(&n))
	default:
		s := toText(v)
		field.Set(reflect.ValueOf(&s))
	}
	return nil
}

// ReadParquet decodes a flat Parquet file. Double and float columns become
// Float, integer columns Int, everything else String.
func ReadParquet(r io.ReaderAt, size int64) (Frame, error) {
	pf, err := parquet.OpenFile(r, size)
	if err != nil {
		return Frame{}, fmt.Errorf("tables: open parquet: %w", err)
	}

	fields := pf.Schema().Fields()
	cols := make([]Column, len(fields))
	for i, fld := range fields {
		cols[i] = Column{Name: fld.Name(), Kind: kindOf(fld.Type().Kind())}
	}
	frame := NewFrame(cols)

	buf := make([]parquet.Row, 128)
	for _, rg := range pf.RowGroups() {
		rows := rg.Rows()
		for {
			n, err := rows.ReadRows(buf)
			for _, pr := range buf[:n] {
				row := make(Row, len(cols))
				for _, v := range pr {
					idx := v.Column()
					if idx < 0 || idx >= len(cols) {
						continue
					}
					row[idx] = valueOf(v, cols[idx].Kind)
				}
				frame.Rows = append(frame.Rows, row)
			}
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				rows.Close()
				return Frame{}, fmt.Errorf("tables: read rows: %w", err)
			}
		}
		if err := rows.Close(); err != nil {
			return Frame{}, fmt.Errorf("tables: close row reader: %w", err)
		}
	}
	return frame, nil
}

func kindOf(k parquet.Kind) Kind {
	switch k {
	case parquet.Float, parquet.Double:
		return Float
	case parquet.Int32, parquet.Int64:
		return Int
	default:
		return String
	}
}

func valueOf(v parquet.Value, k Kind) any {
	if v.IsNull() {
		return nil
	}
	switch v.Kind() {
	case parquet.Double:
		return v.Double()
	case parquet.Float:
		return float64(v.Float())
	case parquet.Int64:
		return v.Int64()
	case parquet.Int32:
		return int64(v.Int32())
	case parquet.Boolean:
		return strconv.FormatBool(v.Boolean())
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return string(v.ByteArray())
	}
	if k == String {
		return v.String()
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	}
	return 0, false
}

func toInt(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case float64:
		return int64(x), true
	case json.Number:
		n, err := x.Int64()
		return n, err == nil
	}
	return 0, false
}

func toText(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	default:
		return fmt.Sprint(x)
	}
}
