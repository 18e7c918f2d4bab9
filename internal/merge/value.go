package merge

import (
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// Kind discriminates the tagged cell value type.
type Kind int

const (
	KindAbsent Kind = iota // cell missing from this batch's columns
	KindText
	KindNumber
	KindBool
	KindDate
)

// Value is a single tagged cell value. Mixed text/number/date columns are
// common in real workbooks, so each cell carries its own kind instead of
// the column carrying one. The zero Value is the absence marker used to
// fill columns a batch does not have.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
	t    time.Time
}

// Absent is the absence marker written into columns a row does not have.
var Absent = Value{}

// Text returns a text value.
func Text(s string) Value { return Value{kind: KindText, str: s} }

// Number returns a numeric value.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Date returns a date value.
func Date(t time.Time) Value { return Value{kind: KindDate, t: t} }

// Kind returns the value's kind tag.
func (v Value) Kind() Kind { return v.kind }

// IsAbsent reports whether the value is the absence marker.
func (v Value) IsAbsent() bool { return v.kind == KindAbsent }

// Native returns the value as the Go type the workbook writer serializes:
// string, float64, bool, time.Time, or nil for absent cells.
func (v Value) Native() any {
	switch v.kind {
	case KindText:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	case KindDate:
		return v.t
	default:
		return nil
	}
}

// String renders the value for display and comparison in tests.
func (v Value) String() string {
	switch v.kind {
	case KindText:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindDate:
		return v.t.Format(time.RFC3339)
	default:
		return ""
	}
}

// dateLayouts are the formats tried when a date-typed cell arrives as a
// formatted string. Ordered from most to least specific.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006 15:04:05",
	"01/02/2006",
	"1/2/06 15:04",
	"1/2/06",
	"01-02-06",
	"Jan 2, 2006",
}

// inferValue converts one raw cell string into a tagged Value using the
// cell type reported by the container, falling back to content inference
// when the container reports no type (the common case for inline strings).
func inferValue(raw string, cellType excelize.CellType) Value {
	switch cellType {
	case excelize.CellTypeNumber:
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return Number(f)
		}
	case excelize.CellTypeBool:
		return Bool(raw == "1" || strings.EqualFold(raw, "true"))
	case excelize.CellTypeDate:
		if t, ok := parseDate(raw); ok {
			return Date(t)
		}
	}

	// Untyped or formula cells: infer from content.
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Text(raw)
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return Number(f)
	}
	if strings.EqualFold(trimmed, "true") || strings.EqualFold(trimmed, "false") {
		return Bool(strings.EqualFold(trimmed, "true"))
	}
	if t, ok := parseDate(trimmed); ok {
		return Date(t)
	}
	return Text(raw)
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
