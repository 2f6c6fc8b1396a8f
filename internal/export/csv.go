package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/banshee-data/sweep.report/internal/dataset"
)

// WriteCSV dumps every measured array as a block of rows: one column per
// coordinate array, then the measured value, one row per point. Blocks are
// concatenated in sorted array-ID order, each starting with its own header
// row.
func WriteCSV(w io.Writer, ds dataset.Dataset) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	for _, id := range measuredIDs(ds) {
		arr := ds.Arrays()[id]
		setArrays := setArraysOf(ds, arr)

		header := make([]string, 0, len(setArrays)+1)
		for _, sa := range setArrays {
			header = append(header, columnName(sa.Name(), sa.Unit()))
		}
		header = append(header, columnName(arr.Name(), arr.Unit()))
		if err := cw.Write(header); err != nil {
			return err
		}

		err := eachIndex(arr.Shape(), func(index []int) error {
			row := make([]string, 0, len(header))
			for _, sa := range setArrays {
				v, err := valueAt(sa, index)
				if err != nil {
					return err
				}
				row = append(row, formatValue(v))
			}
			v, err := valueAt(arr, index)
			if err != nil {
				return err
			}
			row = append(row, formatValue(v))
			return cw.Write(row)
		})
		if err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func columnName(name, unit string) string {
	if unit == "" {
		return name
	}
	return name + " (" + unit + ")"
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
