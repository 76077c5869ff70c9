// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package series implements the time-indexed observation table shared by
// all storage backends.
//
// A Frame is an ordered collection of named numeric columns over a common
// time index. Every timestamp carries an explicit location; the index is
// unique and sorted ascending at all times. Absent cells are represented
// as NaN so that column unions and merges can distinguish "no value" from
// a real observation.
package series

import (
	"math"
	"sort"
	"time"
)

// DefaultIndexName is the index column name used when none is configured.
const DefaultIndexName = "time"

// Frame is a time-indexed table of named float64 columns.
type Frame struct {
	indexName string
	index     []time.Time
	columns   []string
	data      map[string][]float64
}

// New creates an empty frame whose index column carries the given name.
// An empty name falls back to DefaultIndexName.
func New(indexName string) *Frame {
	if indexName == "" {
		indexName = DefaultIndexName
	}
	return &Frame{
		indexName: indexName,
		data:      make(map[string][]float64),
	}
}

// IndexName returns the name of the index column.
func (f *Frame) IndexName() string {
	return f.indexName
}

// SetIndexName renames the index column.
func (f *Frame) SetIndexName(name string) {
	if name == "" {
		name = DefaultIndexName
	}
	f.indexName = name
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.index)
}

// Empty reports whether the frame holds no rows.
func (f *Frame) Empty() bool {
	return f.Len() == 0
}

// Columns returns the column names in insertion order.
func (f *Frame) Columns() []string {
	out := make([]string, len(f.columns))
	copy(out, f.columns)
	return out
}

// HasColumn reports whether the named column exists.
func (f *Frame) HasColumn(name string) bool {
	_, ok := f.data[name]
	return ok
}

// Index returns a copy of the time index.
func (f *Frame) Index() []time.Time {
	out := make([]time.Time, len(f.index))
	copy(out, f.index)
	return out
}

// At returns the timestamp of row i.
func (f *Frame) At(i int) time.Time {
	return f.index[i]
}

// First returns the first index entry. It must not be called on an empty
// frame.
func (f *Frame) First() time.Time {
	return f.index[0]
}

// AddColumn ensures the named column exists, filling it with NaN.
func (f *Frame) AddColumn(name string) {
	if _, ok := f.data[name]; ok {
		return
	}
	col := make([]float64, len(f.index))
	for i := range col {
		col[i] = math.NaN()
	}
	f.columns = append(f.columns, name)
	f.data[name] = col
}

// Set stores a value for (t, column), inserting the row and the column as
// needed. Rows are kept sorted by timestamp; setting an existing cell
// overwrites it.
func (f *Frame) Set(t time.Time, column string, value float64) {
	f.AddColumn(column)
	i, exists := f.rowIndex(t)
	if !exists {
		f.insertRow(i, t)
	}
	f.data[column][i] = value
}

// Value returns the cell at (t, column). The second result is false when
// the row or column does not exist or the cell holds no observation.
func (f *Frame) Value(t time.Time, column string) (float64, bool) {
	col, ok := f.data[column]
	if !ok {
		return math.NaN(), false
	}
	i, exists := f.rowIndex(t)
	if !exists {
		return math.NaN(), false
	}
	v := col[i]
	if math.IsNaN(v) {
		return v, false
	}
	return v, true
}

// ValueAt returns the cell at row i of the named column, NaN when the
// column is absent.
func (f *Frame) ValueAt(i int, column string) float64 {
	col, ok := f.data[column]
	if !ok {
		return math.NaN()
	}
	return col[i]
}

// rowIndex locates t in the index. The returned position is the insertion
// point when the timestamp is not present.
func (f *Frame) rowIndex(t time.Time) (int, bool) {
	i := sort.Search(len(f.index), func(i int) bool {
		return !f.index[i].Before(t)
	})
	if i < len(f.index) && f.index[i].Equal(t) {
		return i, true
	}
	return i, false
}

func (f *Frame) insertRow(i int, t time.Time) {
	f.index = append(f.index, time.Time{})
	copy(f.index[i+1:], f.index[i:])
	f.index[i] = t
	for _, name := range f.columns {
		col := append(f.data[name], 0)
		copy(col[i+1:], col[i:])
		col[i] = math.NaN()
		f.data[name] = col
	}
}

// CombineFirst unions the frame with other, returning a new frame. Cells
// present in the receiver win; cells only in other fill the gaps. Columns
// unique to other are appended after the receiver's columns. The result
// index is the sorted union of both indexes.
func (f *Frame) CombineFirst(other *Frame) *Frame {
	if other == nil || other.Empty() {
		return f.Copy()
	}
	if f == nil || f.Empty() {
		out := other.Copy()
		if f != nil && f.indexName != "" {
			out.indexName = f.indexName
		}
		return out
	}

	out := New(f.indexName)
	for _, name := range f.columns {
		out.AddColumn(name)
	}
	for _, name := range other.columns {
		out.AddColumn(name)
	}

	for i, t := range f.index {
		for _, name := range f.columns {
			if v := f.data[name][i]; !math.IsNaN(v) {
				out.Set(t, name, v)
			}
		}
	}
	for i, t := range other.index {
		for _, name := range other.columns {
			v := other.data[name][i]
			if math.IsNaN(v) {
				continue
			}
			if _, ok := out.Value(t, name); !ok {
				out.Set(t, name, v)
			}
		}
	}
	return out
}

// Copy returns a deep copy of the frame.
func (f *Frame) Copy() *Frame {
	if f == nil {
		return New("")
	}
	out := New(f.indexName)
	out.index = make([]time.Time, len(f.index))
	copy(out.index, f.index)
	out.columns = make([]string, len(f.columns))
	copy(out.columns, f.columns)
	for name, col := range f.data {
		dup := make([]float64, len(col))
		copy(dup, col)
		out.data[name] = dup
	}
	return out
}

// ConvertZone rewrites every index entry into loc without changing the
// instant it denotes, and returns the frame for chaining.
func (f *Frame) ConvertZone(loc *time.Location) *Frame {
	if loc == nil {
		return f
	}
	for i, t := range f.index {
		f.index[i] = t.In(loc)
	}
	return f
}

// Slice returns the closed sub-range [start, end] as a new frame. The
// column shape is preserved even when no rows fall inside the range.
func (f *Frame) Slice(start, end time.Time) *Frame {
	out := New(f.indexName)
	for _, name := range f.columns {
		out.AddColumn(name)
	}
	lo := sort.Search(len(f.index), func(i int) bool {
		return !f.index[i].Before(start)
	})
	hi := sort.Search(len(f.index), func(i int) bool {
		return f.index[i].After(end)
	})
	for i := lo; i < hi; i++ {
		t := f.index[i]
		out.AddRow(t)
		for _, name := range f.columns {
			if v := f.data[name][i]; !math.IsNaN(v) {
				out.Set(t, name, v)
			}
		}
	}
	return out
}

// AddRow ensures a row exists for t without touching any cell; cells of
// an inserted row start as NaN.
func (f *Frame) AddRow(t time.Time) {
	if i, exists := f.rowIndex(t); !exists {
		f.insertRow(i, t)
	}
}

// TruncateBefore drops every row earlier than start.
func (f *Frame) TruncateBefore(start time.Time) *Frame {
	if f.Empty() {
		return f.Copy()
	}
	return f.Slice(start, f.index[len(f.index)-1])
}

// Head returns at most the first n rows.
func (f *Frame) Head(n int) *Frame {
	out := New(f.indexName)
	for _, name := range f.columns {
		out.AddColumn(name)
	}
	if n > f.Len() {
		n = f.Len()
	}
	for i := 0; i < n; i++ {
		t := f.index[i]
		out.AddRow(t)
		for _, name := range f.columns {
			if v := f.data[name][i]; !math.IsNaN(v) {
				out.Set(t, name, v)
			}
		}
	}
	return out
}

// Resample sums values into fixed-width bins of the given interval. Bin
// boundaries are phase-aligned to origin: a timestamp t falls into the bin
// starting at origin + floor((t-origin)/interval)*interval. Bins are
// contiguous from the bin of the first row to the bin of the last row;
// bins without observations sum to zero, matching the summing semantics
// of the upstream data pipeline.
func (f *Frame) Resample(interval time.Duration, origin time.Time) *Frame {
	out := New(f.indexName)
	for _, name := range f.columns {
		out.AddColumn(name)
	}
	if f.Empty() || interval <= 0 {
		return out
	}

	binStart := func(t time.Time) time.Time {
		d := t.Sub(origin)
		n := d / interval
		if d < 0 && d%interval != 0 {
			n--
		}
		return origin.Add(n * interval)
	}

	first := binStart(f.index[0])
	last := binStart(f.index[len(f.index)-1])
	for bin := first; !bin.After(last); bin = bin.Add(interval) {
		for _, name := range f.columns {
			out.Set(bin, name, 0)
		}
	}

	for i, t := range f.index {
		bin := binStart(t)
		for _, name := range f.columns {
			v := f.data[name][i]
			if math.IsNaN(v) {
				continue
			}
			cur, _ := out.Value(bin, name)
			if math.IsNaN(cur) {
				cur = 0
			}
			out.Set(bin, name, cur+v)
		}
	}
	return out
}

// Equal reports whether both frames hold the same index, columns and
// values. NaN cells compare equal to NaN cells. Index timestamps compare
// as instants, regardless of location.
func (f *Frame) Equal(other *Frame) bool {
	if f.Len() != other.Len() || len(f.columns) != len(other.columns) {
		return false
	}
	for i, name := range f.columns {
		if other.columns[i] != name {
			return false
		}
	}
	for i, t := range f.index {
		if !t.Equal(other.index[i]) {
			return false
		}
		for _, name := range f.columns {
			a, b := f.data[name][i], other.data[name][i]
			if math.IsNaN(a) != math.IsNaN(b) {
				return false
			}
			if !math.IsNaN(a) && a != b {
				return false
			}
		}
	}
	return true
}
