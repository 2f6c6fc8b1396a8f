package export

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/sweep.report/internal/dataset"
)

// RenderChart writes an HTML page with one line chart per measured array.
// The innermost coordinate array supplies the X axis; arrays with more than
// one dimension get one series per leading index combination.
func RenderChart(w io.Writer, ds dataset.Dataset, title string) error {
	page := components.NewPage()
	page.PageTitle = title

	for _, id := range measuredIDs(ds) {
		arr := ds.Arrays()[id]
		shape := arr.Shape()
		if len(shape) == 0 {
			continue
		}
		inner := shape[len(shape)-1]

		line := charts.NewLine()
		line.SetGlobalOptions(
			charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "900px", Height: "450px"}),
			charts.WithTitleOpts(opts.Title{Title: arr.Label(), Subtitle: axisTitle(arr.Name(), arr.Unit())}),
			charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
			charts.WithXAxisOpts(opts.XAxis{Name: xAxisName(ds, arr)}),
			charts.WithYAxisOpts(opts.YAxis{Name: axisTitle(arr.Name(), arr.Unit())}),
		)
		line.SetXAxis(xAxisValues(ds, arr, inner))

		values := arr.Values()
		seriesCount := len(values) / inner
		for s := 0; s < seriesCount; s++ {
			data := make([]opts.LineData, inner)
			for i := 0; i < inner; i++ {
				data[i] = opts.LineData{Value: values[s*inner+i]}
			}
			line.AddSeries(seriesName(arr.Name(), s, seriesCount), data)
		}

		page.AddCharts(line)
	}

	return page.Render(w)
}

// xAxisValues returns the innermost coordinate values as axis labels, falling
// back to point indices when no coordinate array is attached.
func xAxisValues(ds dataset.Dataset, arr dataset.Array, inner int) []string {
	labels := make([]string, inner)

	setArrays := setArraysOf(ds, arr)
	if len(setArrays) > 0 {
		sa := setArrays[len(setArrays)-1]
		vals := sa.Values()
		if len(vals) >= inner {
			for i := 0; i < inner; i++ {
				labels[i] = formatValue(vals[i])
			}
			return labels
		}
	}

	for i := range labels {
		labels[i] = fmt.Sprintf("%d", i)
	}
	return labels
}

func xAxisName(ds dataset.Dataset, arr dataset.Array) string {
	setArrays := setArraysOf(ds, arr)
	if len(setArrays) == 0 {
		return "point"
	}
	sa := setArrays[len(setArrays)-1]
	return axisTitle(sa.Name(), sa.Unit())
}

func axisTitle(name, unit string) string {
	if unit == "" {
		return name
	}
	return fmt.Sprintf("%s (%s)", name, unit)
}

func seriesName(name string, s, count int) string {
	if count == 1 {
		return name
	}
	return fmt.Sprintf("%s[%d]", name, s)
}
