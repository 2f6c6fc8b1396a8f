// Package export renders finished datasets into portable artifacts: CSV
// dumps, HTML charts, and per-array statistical summaries.
package export

import (
	"fmt"
	"sort"

	"github.com/banshee-data/sweep.report/internal/dataset"
)

// measuredIDs returns the non-setpoint array IDs in sorted order.
func measuredIDs(ds dataset.Dataset) []string {
	var ids []string
	for id, arr := range ds.Arrays() {
		if !arr.IsSetpoint() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// valueAt reads one element of arr by full index, using only as many leading
// index components as the array has dimensions. Set arrays have fewer
// dimensions than the measured arrays they annotate, so a shared full index
// addresses both.
func valueAt(arr dataset.Array, index []int) (float64, error) {
	shape := arr.Shape()
	if len(index) < len(shape) {
		return 0, fmt.Errorf("array %s: index %v too short for shape %v", arr.ArrayID(), index, shape)
	}
	off := 0
	for i, extent := range shape {
		if index[i] < 0 || index[i] >= extent {
			return 0, fmt.Errorf("array %s: index %v out of range for shape %v", arr.ArrayID(), index, shape)
		}
		off = off*extent + index[i]
	}
	return arr.Values()[off], nil
}

// eachIndex walks the multi-index space of shape in row-major order.
func eachIndex(shape []int, fn func(index []int) error) error {
	if len(shape) == 0 {
		return nil
	}
	index := make([]int, len(shape))
	for {
		if err := fn(index); err != nil {
			return err
		}
		dim := len(index) - 1
		for dim >= 0 {
			index[dim]++
			if index[dim] < shape[dim] {
				break
			}
			index[dim] = 0
			dim--
		}
		if dim < 0 {
			return nil
		}
	}
}

// setArraysOf resolves an array's coordinate arrays, outermost first. IDs
// without a registered array are skipped.
func setArraysOf(ds dataset.Dataset, arr dataset.Array) []dataset.Array {
	all := ds.Arrays()
	var out []dataset.Array
	for _, id := range arr.SetArrayIDs() {
		if sa, ok := all[id]; ok {
			out = append(out, sa)
		}
	}
	return out
}
