package export

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/banshee-data/sweep.report/internal/dataset"
	"github.com/banshee-data/sweep.report/internal/measure"
)

// sweepFixture runs a 2x3 nested sweep and returns the resulting dataset.
func sweepFixture(t *testing.T) *dataset.Memory {
	t.Helper()
	ds := dataset.NewMemory("fixture")
	err := measure.Run("fixture", ds, func(m *measure.Session) error {
		outer := m.Sweep(measure.Values(1, 2), measure.SweepName("a"))
		for outer.Next() {
			inner := m.Sweep(measure.Values(10, 20, 30), measure.SweepName("b"), measure.SweepUnit("mV"))
			for inner.Next() {
				y := outer.Value()*100 + inner.Value()
				if _, err := m.Measure(y, measure.WithName("y"), measure.WithUnit("nA")); err != nil {
					return err
				}
			}
			if err := inner.Err(); err != nil {
				return err
			}
		}
		return outer.Err()
	})
	if err != nil {
		t.Fatalf("fixture run failed: %v", err)
	}
	return ds
}

func TestWriteCSV(t *testing.T) {
	ds := sweepFixture(t)

	var buf bytes.Buffer
	if err := WriteCSV(&buf, ds); err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 7 {
		t.Fatalf("got %d lines, want header plus 6 rows:\n%s", len(lines), buf.String())
	}
	if lines[0] != "a,b (mV),y (nA)" {
		t.Errorf("header = %q", lines[0])
	}
	if lines[1] != "1,10,110" {
		t.Errorf("first row = %q, want 1,10,110", lines[1])
	}
	if lines[6] != "2,30,230" {
		t.Errorf("last row = %q, want 2,30,230", lines[6])
	}
}

func TestSummaries(t *testing.T) {
	ds := sweepFixture(t)

	summaries := Summaries(ds)
	if len(summaries) != 1 {
		t.Fatalf("got %d summaries, want 1", len(summaries))
	}

	s := summaries[0]
	if s.Name != "y" || s.Unit != "nA" || s.Points != 6 {
		t.Errorf("summary identity = %+v", s)
	}
	if s.Min != 110 || s.Max != 230 {
		t.Errorf("min/max = %v/%v, want 110/230", s.Min, s.Max)
	}
	if math.Abs(s.Mean-170) > 1e-9 {
		t.Errorf("mean = %v, want 170", s.Mean)
	}
	if s.Std <= 0 {
		t.Errorf("std = %v, want positive", s.Std)
	}
}

func TestSummariesSkipUnwrittenCells(t *testing.T) {
	ds := dataset.NewMemory("partial")
	err := measure.Run("partial", ds, func(m *measure.Session) error {
		sw := m.Sweep(measure.Counter(4), measure.SweepName("x"))
		steps := 0
		for sw.Next() {
			steps++
			if _, err := m.Measure(1.0, measure.WithName("v")); err != nil {
				return err
			}
			if steps == 2 {
				m.Stop()
			}
		}
		return sw.Err()
	})
	if err != nil {
		t.Fatalf("partial run failed: %v", err)
	}

	summaries := Summaries(ds)
	if len(summaries) != 1 {
		t.Fatalf("got %d summaries, want 1", len(summaries))
	}
	if summaries[0].Points != 2 {
		t.Errorf("points = %d, want 2 written cells", summaries[0].Points)
	}
}

func TestRenderChart(t *testing.T) {
	ds := sweepFixture(t)

	var buf bytes.Buffer
	if err := RenderChart(&buf, ds, "fixture sweep"); err != nil {
		t.Fatalf("RenderChart failed: %v", err)
	}

	html := buf.String()
	if !strings.Contains(html, "echarts") {
		t.Error("rendered page does not reference echarts")
	}
	// Two outer points give two series.
	for _, want := range []string{"y[0]", "y[1]"} {
		if !strings.Contains(html, want) {
			t.Errorf("rendered page missing series %q", want)
		}
	}
}
