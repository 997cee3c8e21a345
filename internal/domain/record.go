package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Raw source column names as they appear in the FPA FOD Fires table.
const (
	ColLatitude       = "LATITUDE"
	ColLongitude      = "LONGITUDE"
	ColDiscoveryTime  = "DISCOVERY_TIME"
	ColDiscoveryDate  = "DISCOVERY_DATE"
	ColDiscoveryDOY   = "DISCOVERY_DOY"
	ColContDate       = "CONT_DATE"
	ColContDOY        = "CONT_DOY"
	ColContTime       = "CONT_TIME"
	ColState          = "STATE"
	ColOwnerDescr     = "OWNER_DESCR"
	ColStatCauseDescr = "STAT_CAUSE_DESCR"
	ColFireSize       = "FIRE_SIZE"
	ColFireSizeClass  = "FIRE_SIZE_CLASS"
)

// Engineered column names.
const (
	ColDiscoveryHour = "DISCOVERY_HOUR"
	ColSeason        = "SEASON"
	ColCauseSimple   = "CAUSE_SIMPLE"
	ColRiskLevel     = "RISK_LEVEL"
	ColContHour      = "CONT_HOUR"
	ColFireDuration  = "FIRE_DURATION"
)

// Field is one raw column value. Valid is false when the source value was
// NULL; Raw holds the value rendered as text otherwise.
type Field struct {
	Raw   string
	Valid bool
}

// Text wraps a non-null text value.
func Text(s string) Field { return Field{Raw: s, Valid: true} }

// Number wraps a non-null numeric value.
func Number(v float64) Field {
	return Field{Raw: strconv.FormatFloat(v, 'f', -1, 64), Valid: true}
}

// Null is the missing-value marker.
func Null() Field { return Field{} }

// Float coerces the field to a float64. Empty, NULL and non-numeric values
// report false.
func (f Field) Float() (float64, bool) {
	if !f.Valid {
		return 0, false
	}
	s := strings.TrimSpace(f.Raw)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// FieldFromValue converts a driver value (as returned by database/sql or the
// ClickHouse driver) into a Field.
func FieldFromValue(v any) Field {
	switch x := v.(type) {
	case nil:
		return Null()
	case string:
		return Text(x)
	case []byte:
		return Text(string(x))
	case float64:
		return Number(x)
	case float32:
		return Number(float64(x))
	case int64:
		return Text(strconv.FormatInt(x, 10))
	case int32:
		return Text(strconv.FormatInt(int64(x), 10))
	case int:
		return Text(strconv.Itoa(x))
	case uint8:
		return Text(strconv.FormatUint(uint64(x), 10))
	case uint16:
		return Text(strconv.FormatUint(uint64(x), 10))
	case uint32:
		return Text(strconv.FormatUint(uint64(x), 10))
	case uint64:
		return Text(strconv.FormatUint(x, 10))
	case bool:
		return Text(strconv.FormatBool(x))
	case time.Time:
		return Text(x.UTC().Format(time.RFC3339))
	case *string:
		if x == nil {
			return Null()
		}
		return Text(*x)
	case *float64:
		if x == nil {
			return Null()
		}
		return Number(*x)
	case *int64:
		if x == nil {
			return Null()
		}
		return Text(strconv.FormatInt(*x, 10))
	case *int32:
		if x == nil {
			return Null()
		}
		return Text(strconv.FormatInt(int64(*x), 10))
	default:
		return Text(fmt.Sprint(x))
	}
}

// RawIncidentRecord is one row of the source table keyed by column name. A
// column missing from the map was not part of the source schema.
type RawIncidentRecord map[string]Field

// RawFrame is a column-oriented batch of raw records. Every column holds
// exactly Len() values.
type RawFrame struct {
	columns map[string][]Field
	rows    int
}

// NewRawFrame creates an empty frame with the given row count.
func NewRawFrame(rows int) *RawFrame {
	return &RawFrame{columns: make(map[string][]Field), rows: rows}
}

// FrameFromRecords pivots records into columns. The column set is the union of
// keys across all records; a record lacking a key gets a NULL in that column.
func FrameFromRecords(records []RawIncidentRecord) *RawFrame {
	f := NewRawFrame(len(records))
	for _, rec := range records {
		for name := range rec {
			if _, ok := f.columns[name]; !ok {
				f.columns[name] = make([]Field, len(records))
			}
		}
	}
	for i, rec := range records {
		for name, v := range rec {
			f.columns[name][i] = v
		}
	}
	return f
}

// Len returns the number of rows.
func (f *RawFrame) Len() int { return f.rows }

// SetColumn adds or replaces a column.
func (f *RawFrame) SetColumn(name string, values []Field) error {
	if len(values) != f.rows {
		return fmt.Errorf("column %s: got %d values, frame has %d rows", name, len(values), f.rows)
	}
	f.columns[name] = values
	return nil
}

// Column returns the values of a column and whether the column exists.
func (f *RawFrame) Column(name string) ([]Field, bool) {
	v, ok := f.columns[name]
	return v, ok
}

// Has reports whether the column exists.
func (f *RawFrame) Has(name string) bool {
	_, ok := f.columns[name]
	return ok
}

// Drop removes the named columns. Names not present are ignored.
func (f *RawFrame) Drop(names ...string) {
	for _, n := range names {
		delete(f.columns, n)
	}
}

// Columns returns the column names in sorted order.
func (f *RawFrame) Columns() []string {
	names := make([]string, 0, len(f.columns))
	for n := range f.columns {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// FrameBuilder accumulates rows column-wise for sources that read row by row.
type FrameBuilder struct {
	names []string
	cols  [][]Field
	rows  int
}

// NewFrameBuilder starts a frame with the given columns in source order.
func NewFrameBuilder(columns []string) *FrameBuilder {
	return &FrameBuilder{
		names: append([]string(nil), columns...),
		cols:  make([][]Field, len(columns)),
	}
}

// Append adds one row; it must hold one field per column.
func (b *FrameBuilder) Append(row []Field) error {
	if len(row) != len(b.names) {
		return fmt.Errorf("row %d: got %d fields, want %d", b.rows, len(row), len(b.names))
	}
	for i, f := range row {
		b.cols[i] = append(b.cols[i], f)
	}
	b.rows++
	return nil
}

// Frame returns the accumulated frame. A column name repeated in the source
// keeps its last occurrence.
func (b *FrameBuilder) Frame() *RawFrame {
	f := NewRawFrame(b.rows)
	for i, name := range b.names {
		values := b.cols[i]
		if values == nil {
			values = make([]Field, b.rows)
		}
		f.columns[name] = values
	}
	return f
}
