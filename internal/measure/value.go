package measure

import "fmt"

// Array is an N-dimensional result value: a shape and flat row-major data.
// Instruments that return traces or images hand these to Measure; the engine
// also uses them internally for broadcast coordinate arrays.
type Array struct {
	Shape []int
	Data  []float64
}

// ArrayOf wraps a 1-D slice of samples.
func ArrayOf(values []float64) Array {
	data := make([]float64, len(values))
	copy(data, values)
	return Array{Shape: []int{len(values)}, Data: data}
}

// NDim returns the number of axes.
func (a Array) NDim() int { return len(a.Shape) }

// Size returns the number of elements implied by the shape.
func (a Array) Size() int {
	n := 1
	for _, d := range a.Shape {
		n *= d
	}
	return n
}

// Validate checks that the data length matches the shape.
func (a Array) Validate() error {
	if len(a.Data) != a.Size() {
		return fmt.Errorf("array data length %d does not match shape %v", len(a.Data), a.Shape)
	}
	for _, d := range a.Shape {
		if d <= 0 {
			return fmt.Errorf("array shape %v has non-positive extent", a.Shape)
		}
	}
	return nil
}

// broadcastTo replicates a 1-D coordinate slice across the leading axes of
// shape. len(vals) must equal the innermost extent of shape.
func broadcastTo(vals []float64, shape []int) Array {
	reps := 1
	for _, d := range shape[:len(shape)-1] {
		reps *= d
	}
	inner := shape[len(shape)-1]
	data := make([]float64, 0, reps*inner)
	for i := 0; i < reps; i++ {
		data = append(data, vals[:inner]...)
	}
	out := make([]int, len(shape))
	copy(out, shape)
	return Array{Shape: out, Data: data}
}

// intRange returns [0, 1, ..., n-1] as floats, the default coordinate axis
// for array results without declared setpoints.
func intRange(n int) []float64 {
	vals := make([]float64, n)
	for i := range vals {
		vals[i] = float64(i)
	}
	return vals
}

// asScalar converts supported scalar kinds to float64 storage form.
func asScalar(v any) (float64, bool) {
	switch vv := v.(type) {
	case float64:
		return vv, true
	case float32:
		return float64(vv), true
	case int:
		return float64(vv), true
	case int64:
		return float64(vv), true
	case bool:
		if vv {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// asArray converts supported array kinds to the canonical Array form.
func asArray(v any) (Array, bool) {
	switch vv := v.(type) {
	case Array:
		return vv, true
	case []float64:
		return ArrayOf(vv), true
	default:
		return Array{}, false
	}
}
