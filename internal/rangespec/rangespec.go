// Package rangespec parses the "min:max:step" range arguments used by the
// sweep CLI and expands them into coordinate sequences.
package rangespec

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// RangeSpec defines a floating-point parameter range for sweeping.
type RangeSpec struct {
	Min  float64
	Max  float64
	Step float64
}

// Parse parses a "min:max:step" string into a RangeSpec. Returns an error if
// the format is invalid or values cannot be parsed.
func Parse(s string) (RangeSpec, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return RangeSpec{}, fmt.Errorf("invalid range format %q: expected min:max:step", s)
	}

	min, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return RangeSpec{}, fmt.Errorf("invalid min value %q: %w", parts[0], err)
	}

	max, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return RangeSpec{}, fmt.Errorf("invalid max value %q: %w", parts[1], err)
	}

	step, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
	if err != nil {
		return RangeSpec{}, fmt.Errorf("invalid step value %q: %w", parts[2], err)
	}

	if step <= 0 {
		return RangeSpec{}, fmt.Errorf("step must be positive, got %f", step)
	}

	return RangeSpec{Min: min, Max: max, Step: step}, nil
}

// Values expands the spec into coordinates from Min to Max inclusive. The
// number of generated values is capped to keep a typo from allocating an
// enormous sweep.
func (r RangeSpec) Values() []float64 {
	if r.Step <= 0 || r.Min > r.Max {
		return nil
	}

	const maxValues = 10000
	expectedCount := int((r.Max-r.Min)/r.Step) + 1
	if expectedCount > maxValues || expectedCount < 0 {
		return nil
	}

	var result []float64
	for v := r.Min; v <= r.Max+r.Step/1000; v += r.Step {
		if len(result) >= maxValues {
			break
		}
		// Round to avoid floating point accumulation errors.
		rounded := math.Round(v*1e6) / 1e6
		if rounded <= r.Max {
			result = append(result, rounded)
		}
	}
	return result
}

// Len returns the number of coordinates the spec expands to.
func (r RangeSpec) Len() int {
	return len(r.Values())
}
