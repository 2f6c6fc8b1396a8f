package measure

import (
	"fmt"
	"math"
	"strings"

	"github.com/banshee-data/sweep.report/internal/param"
)

// DataArray is one array of the dataset being built: either measured values
// or sweep setpoints, never both. Shape is fixed at creation from the loop
// geometry in force plus the result's own shape; storage is flat row-major
// float64, NaN until written.
type DataArray struct {
	name     string
	label    string
	unit     string
	addr     Address
	setpoint bool
	shape    []int
	data     []float64

	// setArrays holds the coordinate arrays, outermost dimension first.
	// Empty for setpoint arrays.
	setArrays []*DataArray
}

func (d *DataArray) Name() string  { return d.name }
func (d *DataArray) Label() string { return d.label }
func (d *DataArray) Unit() string  { return d.unit }

// ArrayID is the dataset-wide identifier: name plus action address.
func (d *DataArray) ArrayID() string {
	if len(d.addr) == 0 {
		return d.name
	}
	return d.name + "_" + d.addr.String()
}

// Addr returns the action address the array was created at.
func (d *DataArray) Addr() Address { return d.addr.Clone() }

func (d *DataArray) IsSetpoint() bool { return d.setpoint }

func (d *DataArray) Shape() []int {
	out := make([]int, len(d.shape))
	copy(out, d.shape)
	return out
}

// SetArrays returns the attached coordinate arrays, outermost first.
func (d *DataArray) SetArrays() []*DataArray {
	out := make([]*DataArray, len(d.setArrays))
	copy(out, d.setArrays)
	return out
}

func (d *DataArray) SetArrayIDs() []string {
	ids := make([]string, len(d.setArrays))
	for i, sa := range d.setArrays {
		ids[i] = sa.ArrayID()
	}
	return ids
}

// Values returns the flat row-major backing data.
func (d *DataArray) Values() []float64 {
	out := make([]float64, len(d.data))
	copy(out, d.data)
	return out
}

// At reads a single element by full index.
func (d *DataArray) At(indices ...int) float64 {
	off, err := d.offset(indices)
	if err != nil {
		return math.NaN()
	}
	return d.data[off]
}

func (d *DataArray) offset(indices []int) (int, error) {
	if len(indices) > len(d.shape) {
		return 0, fmt.Errorf("array %s: %d indices for %d dimensions", d.ArrayID(), len(indices), len(d.shape))
	}
	off := 0
	for i, idx := range indices {
		if idx < 0 || idx >= d.shape[i] {
			return 0, fmt.Errorf("array %s: index %d out of range for dimension %d (extent %d)",
				d.ArrayID(), idx, i, d.shape[i])
		}
		off = off*d.shape[i] + idx
	}
	// Scale by the extent of the unindexed trailing axes.
	for _, extent := range d.shape[len(indices):] {
		off *= extent
	}
	return off, nil
}

// WriteAt stores value at loopIndices. A scalar requires a full index; an
// Array covers the trailing axes as a block, so repeated writes at the same
// position overwrite in place.
func (d *DataArray) WriteAt(loopIndices []int, value any) error {
	if scalar, ok := asScalar(value); ok {
		if len(loopIndices) != len(d.shape) {
			return fmt.Errorf("array %s: scalar write needs %d indices, got %d",
				d.ArrayID(), len(d.shape), len(loopIndices))
		}
		off, err := d.offset(loopIndices)
		if err != nil {
			return err
		}
		d.data[off] = scalar
		return nil
	}

	arr, ok := asArray(value)
	if !ok {
		return fmt.Errorf("array %s: cannot store %T", d.ArrayID(), value)
	}
	if len(loopIndices)+arr.NDim() != len(d.shape) {
		return fmt.Errorf("array %s: block write with %d indices and %d result axes does not cover %d dimensions",
			d.ArrayID(), len(loopIndices), arr.NDim(), len(d.shape))
	}
	off, err := d.offset(loopIndices)
	if err != nil {
		return err
	}
	if off+arr.Size() > len(d.data) {
		return fmt.Errorf("array %s: block write of %d elements at offset %d exceeds capacity %d",
			d.ArrayID(), arr.Size(), off, len(d.data))
	}
	copy(d.data[off:off+arr.Size()], arr.Data)
	return nil
}

// naming carries the identity of the array being created or written.
type naming struct {
	name     string
	label    string
	unit     string
	axes     []param.Axis
	setpoint bool
}

// defaultLabel derives a human label from a snake_case name.
func defaultLabel(name string) string {
	if name == "" {
		return ""
	}
	label := strings.ToUpper(name[:1]) + name[1:]
	return strings.ReplaceAll(label, "_", " ")
}

// createDataArray builds a data array for addr, sized from the current loop
// geometry plus the result's own shape, wires its set arrays, registers it
// with the dataset, and indexes it under its role.
func (s *Session) createDataArray(addr Address, result any, nm naming) (*DataArray, error) {
	c := s.core
	if len(c.dataArrays)+len(c.setArrays) >= c.maxArrays {
		return nil, fmt.Errorf("dataset has %d arrays (limit %d): %w",
			len(c.dataArrays)+len(c.setArrays), c.maxArrays, ErrTooManyArrays)
	}
	if nm.name == "" {
		return nil, fmt.Errorf("creating a data array at indices %s requires a name", addr)
	}

	shape := make([]int, len(c.loopShape))
	copy(shape, c.loopShape)
	if arr, ok := asArray(result); ok {
		shape = append(shape, arr.Shape...)
	}
	// Measurement taken with no enclosing sweep still needs one cell.
	if len(shape) == 0 {
		shape = []int{1}
	}

	label := nm.label
	if label == "" {
		label = defaultLabel(nm.name)
	}

	arr := &DataArray{
		name:     nm.name,
		label:    label,
		unit:     nm.unit,
		addr:     addr.Clone(),
		setpoint: nm.setpoint,
		shape:    shape,
	}
	size := 1
	for _, d := range shape {
		size *= d
	}
	arr.data = make([]float64, size)
	for i := range arr.data {
		arr.data[i] = math.NaN()
	}

	if !nm.setpoint {
		setArrays, err := s.addSetArrays(addr, result, nm)
		if err != nil {
			return nil, err
		}
		arr.setArrays = setArrays
	}

	if err := c.ds.AddArray(arr); err != nil {
		return nil, fmt.Errorf("registering array %s: %w", arr.ArrayID(), err)
	}
	if err := c.ds.SaveMetadata(); err != nil {
		return nil, fmt.Errorf("saving metadata for array %s: %w", arr.ArrayID(), err)
	}

	if nm.setpoint {
		c.setArrays[addr.String()] = arr
	} else {
		c.dataArrays[addr.String()] = arr
	}
	return arr, nil
}

// addSetArrays collects the coordinate arrays for a measured array at addr:
// the set array of every enclosing sweep dimension, outermost first, plus
// one synthesized coordinate array per axis of an array-shaped result.
func (s *Session) addSetArrays(addr Address, result any, nm naming) ([]*DataArray, error) {
	c := s.core
	var setArrays []*DataArray

	for k := 1; k < len(addr); k++ {
		if sa, ok := c.setArrays[addr[:k].String()]; ok {
			setArrays = append(setArrays, sa)
		}
	}

	if resArr, ok := asArray(result); ok {
		for k, extent := range resArr.Shape {
			vals := intRange(extent)
			var label, unit string
			if k < len(nm.axes) && len(nm.axes[k].Values) > 0 {
				if len(nm.axes[k].Values) != extent {
					return nil, fmt.Errorf("axis %d setpoints for %q have %d values, result extent is %d",
						k, nm.name, len(nm.axes[k].Values), extent)
				}
				vals = nm.axes[k].Values
				label = nm.axes[k].Label
				unit = nm.axes[k].Unit
			}
			coord := broadcastTo(vals, resArr.Shape[:k+1])

			axisAddr := addr.Clone()
			for i := 0; i < k; i++ {
				axisAddr = append(axisAddr, 0)
			}
			sa, err := s.createDataArray(axisAddr, coord, naming{
				name:     fmt.Sprintf("%s_set%d", nm.name, k),
				label:    label,
				unit:     unit,
				setpoint: true,
			})
			if err != nil {
				return nil, err
			}
			setArrays = append(setArrays, sa)
		}
	}

	// Outside any sweep a scalar still needs one coordinate array; give it
	// a single-element dummy.
	if len(setArrays) == 0 && len(c.loopIndices) == 0 {
		dummy, err := s.createDataArray(addr, nil, naming{name: "single", setpoint: true})
		if err != nil {
			return nil, err
		}
		if err := c.ds.Store([]int{0}, map[string]any{dummy.ArrayID(): 0.0}); err != nil {
			return nil, fmt.Errorf("initializing dummy set array: %w", err)
		}
		setArrays = append(setArrays, dummy)
	}

	return setArrays, nil
}

// addResult delivers one measured result at addr: creates the array on
// first contact, validates identity and geometry, re-derives axis
// coordinates for array results, and forwards everything to the dataset
// immediately.
func (s *Session) addResult(addr Address, result any, nm naming) error {
	c := s.core

	arr, ok := c.dataArrays[addr.String()]
	if !ok {
		var err error
		arr, err = s.createDataArray(addr, result, nm)
		if err != nil {
			return err
		}
	}

	if arr.name != nm.name {
		return &NameConflictError{Addr: addr.Clone(), Want: arr.name, Got: nm.name}
	}

	values := map[string]any{}

	if resArr, ok := asArray(result); ok {
		ndim := len(c.loopIndices)
		if len(arr.setArrays) != ndim+resArr.NDim() {
			return &ShapeMismatchError{
				ArrayID: arr.ArrayID(),
				Want:    ndim + resArr.NDim(),
				Got:     len(arr.setArrays),
			}
		}
		values[arr.ArrayID()] = resArr
		// Re-derive the per-axis coordinates alongside the payload;
		// successive set arrays grow dimensionality by one.
		for k, sa := range arr.setArrays[ndim:] {
			vals := intRange(resArr.Shape[k])
			if k < len(nm.axes) && len(nm.axes[k].Values) == resArr.Shape[k] {
				vals = nm.axes[k].Values
			}
			values[sa.ArrayID()] = broadcastTo(vals, resArr.Shape[:k+1])
		}
	} else if scalar, ok := asScalar(result); ok {
		values[arr.ArrayID()] = scalar
	} else {
		return &UnsupportedTypeError{Value: result}
	}

	loopIndices := make([]int, len(c.loopIndices))
	copy(loopIndices, c.loopIndices)
	if _, isArr := asArray(result); len(loopIndices) == 0 && !isArr {
		loopIndices = []int{0}
	}

	return c.ds.Store(loopIndices, values)
}

// Arrays returns the measured (non-setpoint) arrays created so far, keyed
// by action address string.
func (s *Session) Arrays() map[string]*DataArray {
	out := make(map[string]*DataArray, len(s.core.dataArrays))
	for k, v := range s.core.dataArrays {
		out[k] = v
	}
	return out
}
