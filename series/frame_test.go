// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package series

import (
	"math"
	"testing"
	"time"
)

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestNewDefaultsIndexName(t *testing.T) {
	f := New("")
	if f.IndexName() != DefaultIndexName {
		t.Errorf("IndexName() = %q, want %q", f.IndexName(), DefaultIndexName)
	}

	f = New("timestamp")
	if f.IndexName() != "timestamp" {
		t.Errorf("IndexName() = %q, want %q", f.IndexName(), "timestamp")
	}
}

func TestSetKeepsIndexSortedAndUnique(t *testing.T) {
	f := New("")
	f.Set(ts("2024-01-01T02:00:00Z"), "power", 2)
	f.Set(ts("2024-01-01T00:00:00Z"), "power", 0)
	f.Set(ts("2024-01-01T01:00:00Z"), "power", 1)
	f.Set(ts("2024-01-01T01:00:00Z"), "power", 10) // overwrite

	if f.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", f.Len())
	}

	index := f.Index()
	for i := 1; i < len(index); i++ {
		if index[i].Before(index[i-1]) {
			t.Errorf("index not sorted at %d: %v before %v", i, index[i], index[i-1])
		}
	}

	v, ok := f.Value(ts("2024-01-01T01:00:00Z"), "power")
	if !ok || v != 10 {
		t.Errorf("Value() = %v, %v, want 10, true", v, ok)
	}
}

func TestSetFillsNewColumnWithNaN(t *testing.T) {
	f := New("")
	f.Set(ts("2024-01-01T00:00:00Z"), "power", 1)
	f.Set(ts("2024-01-01T01:00:00Z"), "voltage", 230)

	if v := f.ValueAt(0, "voltage"); !math.IsNaN(v) {
		t.Errorf("ValueAt(0, voltage) = %v, want NaN", v)
	}
	if v := f.ValueAt(1, "power"); !math.IsNaN(v) {
		t.Errorf("ValueAt(1, power) = %v, want NaN", v)
	}
}

func TestCombineFirstPrecedence(t *testing.T) {
	t0 := ts("2024-01-01T00:00:00Z")
	t1 := ts("2024-01-01T01:00:00Z")
	t2 := ts("2024-01-01T02:00:00Z")

	newer := New("")
	newer.Set(t0, "power", 100)
	newer.Set(t1, "power", 110)
	newer.Set(t1, "voltage", 231)

	older := New("")
	older.Set(t0, "power", 1) // loses to newer
	older.Set(t2, "power", 2) // fills a gap
	older.Set(t0, "energy", 5)

	merged := newer.CombineFirst(older)

	tests := []struct {
		at     time.Time
		column string
		want   float64
	}{
		{t0, "power", 100},
		{t1, "power", 110},
		{t2, "power", 2},
		{t1, "voltage", 231},
		{t0, "energy", 5},
	}
	for _, tt := range tests {
		v, ok := merged.Value(tt.at, tt.column)
		if !ok || v != tt.want {
			t.Errorf("Value(%v, %s) = %v, %v, want %v", tt.at, tt.column, v, ok, tt.want)
		}
	}

	if merged.Len() != 3 {
		t.Errorf("Len() = %d, want 3", merged.Len())
	}

	// Receiver columns come first, appended columns after.
	cols := merged.Columns()
	if len(cols) != 3 || cols[0] != "power" || cols[1] != "voltage" || cols[2] != "energy" {
		t.Errorf("Columns() = %v, want [power voltage energy]", cols)
	}
}

func TestCombineFirstWithEmpty(t *testing.T) {
	f := New("")
	f.Set(ts("2024-01-01T00:00:00Z"), "power", 1)

	merged := New("").CombineFirst(f)
	if merged.Len() != 1 {
		t.Errorf("empty.CombineFirst(f) Len() = %d, want 1", merged.Len())
	}

	merged = f.CombineFirst(New(""))
	if merged.Len() != 1 {
		t.Errorf("f.CombineFirst(empty) Len() = %d, want 1", merged.Len())
	}
}

func TestSliceClosedRange(t *testing.T) {
	f := New("")
	for h := 0; h < 6; h++ {
		f.Set(ts("2024-01-01T00:00:00Z").Add(time.Duration(h)*time.Hour), "power", float64(h))
	}

	got := f.Slice(ts("2024-01-01T01:00:00Z"), ts("2024-01-01T03:00:00Z"))
	if got.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", got.Len())
	}
	if v, _ := got.Value(ts("2024-01-01T03:00:00Z"), "power"); v != 3 {
		t.Errorf("end bound should be inclusive, got %v", v)
	}
}

func TestSliceEmptyKeepsShape(t *testing.T) {
	f := New("timestamp")
	f.Set(ts("2024-01-01T00:00:00Z"), "power", 1)
	f.Set(ts("2024-01-01T00:00:00Z"), "voltage", 230)

	got := f.Slice(ts("2025-01-01T00:00:00Z"), ts("2025-01-02T00:00:00Z"))
	if !got.Empty() {
		t.Errorf("Len() = %d, want 0", got.Len())
	}
	if got.IndexName() != "timestamp" {
		t.Errorf("IndexName() = %q, want %q", got.IndexName(), "timestamp")
	}
	if len(got.Columns()) != 2 {
		t.Errorf("Columns() = %v, want both columns preserved", got.Columns())
	}
}

func TestTruncateBeforeAndHead(t *testing.T) {
	f := New("")
	for h := 0; h < 4; h++ {
		f.Set(ts("2024-01-01T00:00:00Z").Add(time.Duration(h)*time.Hour), "power", float64(h))
	}

	got := f.TruncateBefore(ts("2024-01-01T01:30:00Z")).Head(1)
	if got.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", got.Len())
	}
	if !got.First().Equal(ts("2024-01-01T02:00:00Z")) {
		t.Errorf("First() = %v, want first row at or after the cut", got.First())
	}
}

func TestConvertZone(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}

	f := New("")
	utc := ts("2024-06-01T12:00:00Z")
	f.Set(utc, "power", 1)

	f.ConvertZone(berlin)
	got := f.First()
	if !got.Equal(utc) {
		t.Errorf("ConvertZone changed the instant: %v != %v", got, utc)
	}
	if got.Location() != berlin {
		t.Errorf("Location() = %v, want %v", got.Location(), berlin)
	}
}

func TestResampleSumsIntoBins(t *testing.T) {
	f := New("")
	base := ts("2024-01-01T00:00:00Z")
	for m := 0; m < 120; m += 15 {
		f.Set(base.Add(time.Duration(m)*time.Minute), "power", 1)
	}

	got := f.Resample(time.Hour, base)
	if got.Len() != 2 {
		t.Fatalf("Len() = %d, want 2 bins", got.Len())
	}
	if v, _ := got.Value(base, "power"); v != 4 {
		t.Errorf("bin 0 sum = %v, want 4", v)
	}
	if v, _ := got.Value(base.Add(time.Hour), "power"); v != 4 {
		t.Errorf("bin 1 sum = %v, want 4", v)
	}
}

func TestResamplePhaseAlignment(t *testing.T) {
	// Origin at 02:17: bins must start at 02:17, 03:17, ...
	origin := ts("2024-01-01T02:17:00Z")
	f := New("")
	f.Set(ts("2024-01-01T02:30:00Z"), "power", 1)
	f.Set(ts("2024-01-01T03:10:00Z"), "power", 2)
	f.Set(ts("2024-01-01T03:20:00Z"), "power", 4)

	got := f.Resample(time.Hour, origin)
	if got.Len() != 2 {
		t.Fatalf("Len() = %d, want 2 bins", got.Len())
	}
	if v, _ := got.Value(origin, "power"); v != 3 {
		t.Errorf("bin [02:17,03:17) sum = %v, want 3", v)
	}
	if v, _ := got.Value(origin.Add(time.Hour), "power"); v != 4 {
		t.Errorf("bin [03:17,04:17) sum = %v, want 4", v)
	}
}

func TestResampleRowBeforeOrigin(t *testing.T) {
	origin := ts("2024-01-01T01:00:00Z")
	f := New("")
	f.Set(ts("2024-01-01T00:30:00Z"), "power", 7)

	got := f.Resample(time.Hour, origin)
	if got.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 bin", got.Len())
	}
	if !got.First().Equal(ts("2024-01-01T00:00:00Z")) {
		t.Errorf("bin start = %v, want 00:00 (one interval before origin)", got.First())
	}
}

func TestResampleEmptyBinsSumToZero(t *testing.T) {
	f := New("")
	base := ts("2024-01-01T00:00:00Z")
	f.Set(base, "power", 1)
	f.Set(base.Add(3*time.Hour), "power", 1)

	got := f.Resample(time.Hour, base)
	if got.Len() != 4 {
		t.Fatalf("Len() = %d, want 4 contiguous bins", got.Len())
	}
	if v, ok := got.Value(base.Add(time.Hour), "power"); !ok || v != 0 {
		t.Errorf("empty bin sum = %v, %v, want 0, true", v, ok)
	}
}

func TestEqual(t *testing.T) {
	a := New("")
	a.Set(ts("2024-01-01T00:00:00Z"), "power", 1)
	a.Set(ts("2024-01-01T01:00:00Z"), "voltage", 230)

	b := a.Copy()
	if !a.Equal(b) {
		t.Error("a should equal its copy")
	}

	b.Set(ts("2024-01-01T01:00:00Z"), "voltage", 231)
	if a.Equal(b) {
		t.Error("a should not equal modified copy")
	}

	// NaN cells compare equal.
	c := New("")
	c.Set(ts("2024-01-01T00:00:00Z"), "power", 1)
	c.Set(ts("2024-01-01T01:00:00Z"), "voltage", 230)
	if !a.Equal(c) {
		t.Error("frames with identical NaN gaps should be equal")
	}
}
