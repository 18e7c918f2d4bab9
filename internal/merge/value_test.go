package merge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/xuri/excelize/v2"
)

func TestInferValue(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		cellType excelize.CellType
		want     Value
	}{
		{
			name:     "typed number",
			raw:      "42.5",
			cellType: excelize.CellTypeNumber,
			want:     Number(42.5),
		},
		{
			name:     "typed bool true",
			raw:      "1",
			cellType: excelize.CellTypeBool,
			want:     Bool(true),
		},
		{
			name:     "typed bool false",
			raw:      "0",
			cellType: excelize.CellTypeBool,
			want:     Bool(false),
		},
		{
			name:     "typed date",
			raw:      "2024-03-05",
			cellType: excelize.CellTypeDate,
			want:     Date(time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)),
		},
		{
			name:     "untyped integer",
			raw:      "100",
			cellType: excelize.CellTypeUnset,
			want:     Number(100),
		},
		{
			name:     "untyped float",
			raw:      "3.14",
			cellType: excelize.CellTypeUnset,
			want:     Number(3.14),
		},
		{
			name:     "shared string stays text",
			raw:      "north region",
			cellType: excelize.CellTypeSharedString,
			want:     Text("north region"),
		},
		{
			name:     "untyped bool word",
			raw:      "TRUE",
			cellType: excelize.CellTypeUnset,
			want:     Bool(true),
		},
		{
			name:     "untyped iso date",
			raw:      "2023-12-31",
			cellType: excelize.CellTypeUnset,
			want:     Date(time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)),
		},
		{
			name:     "empty string stays text",
			raw:      "",
			cellType: excelize.CellTypeUnset,
			want:     Text(""),
		},
		{
			name:     "plain text",
			raw:      "hello world",
			cellType: excelize.CellTypeInlineString,
			want:     Text("hello world"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, inferValue(tt.raw, tt.cellType))
		})
	}
}

func TestValueNative(t *testing.T) {
	assert.Equal(t, "x", Text("x").Native())
	assert.Equal(t, 1.5, Number(1.5).Native())
	assert.Equal(t, true, Bool(true).Native())
	assert.Nil(t, Absent.Native())

	ts := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, ts, Date(ts).Native())
}

func TestValueString(t *testing.T) {
	assert.Equal(t, "x", Text("x").String())
	assert.Equal(t, "2.5", Number(2.5).String())
	assert.Equal(t, "true", Bool(true).String())
	assert.Equal(t, "", Absent.String())
}

func TestValueKinds(t *testing.T) {
	assert.Equal(t, KindAbsent, Absent.Kind())
	assert.True(t, Absent.IsAbsent())
	assert.False(t, Text("").IsAbsent())
	assert.Equal(t, KindNumber, Number(0).Kind())
}
