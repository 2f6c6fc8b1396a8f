package export

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/sweep.report/internal/dataset"
)

// Summary holds descriptive statistics for one measured array. Cells never
// written (NaN) are excluded; Points counts the cells that were.
type Summary struct {
	ArrayID string
	Name    string
	Unit    string
	Points  int
	Mean    float64
	Std     float64
	Min     float64
	Max     float64
}

// Summaries computes per-array statistics for every measured array, in
// sorted array-ID order.
func Summaries(ds dataset.Dataset) []Summary {
	var out []Summary
	for _, id := range measuredIDs(ds) {
		arr := ds.Arrays()[id]

		var written []float64
		for _, v := range arr.Values() {
			if !math.IsNaN(v) {
				written = append(written, v)
			}
		}

		s := Summary{ArrayID: id, Name: arr.Name(), Unit: arr.Unit(), Points: len(written)}
		if len(written) > 0 {
			s.Mean = stat.Mean(written, nil)
			s.Min = floats.Min(written)
			s.Max = floats.Max(written)
		}
		if len(written) > 1 {
			s.Std = stat.StdDev(written, nil)
		}
		out = append(out, s)
	}
	return out
}
