package measure

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/sweep.report/internal/monitoring"
	"github.com/banshee-data/sweep.report/internal/param"
)

// Source is a finite, ordered sequence of sweep coordinates.
type Source interface {
	Len() int
	At(i int) float64
}

type sliceSource []float64

func (s sliceSource) Len() int         { return len(s) }
func (s sliceSource) At(i int) float64 { return s[i] }

// Values builds a Source from explicit coordinates.
func Values(vals ...float64) Source {
	out := make(sliceSource, len(vals))
	copy(out, vals)
	return out
}

// Ints builds a Source from integer coordinates.
func Ints(vals ...int) Source {
	out := make(sliceSource, len(vals))
	for i, v := range vals {
		out[i] = float64(v)
	}
	return out
}

// Counter builds the Source 0, 1, ..., n-1.
func Counter(n int) Source {
	out := make(sliceSource, n)
	for i := range out {
		out[i] = float64(i)
	}
	return out
}

// Span builds a Source of n evenly spaced coordinates from min to max
// inclusive.
func Span(min, max float64, n int) Source {
	return sliceSource(floats.Span(make([]float64, n), min, max))
}

// paramSource binds a coordinate sequence to a device parameter: each sweep
// step drives the parameter to the produced coordinate.
type paramSource struct {
	p    *param.Parameter
	vals Source
}

func (s *paramSource) Len() int         { return s.vals.Len() }
func (s *paramSource) At(i int) float64 { return s.vals.At(i) }

// ParameterValues sweeps a device parameter over the given coordinates.
// Combined with SweepRestore, the parameter's pre-sweep value is recorded
// and driven back when the sweep exhausts.
func ParameterValues(p *param.Parameter, vals Source) Source {
	return &paramSource{p: p, vals: vals}
}

// SweepOption configures a Sweep.
type SweepOption func(*Sweep)

// SweepName names the sweep's coordinate array. Required unless the source
// is a parameter sweep, which defaults to the parameter's name.
func SweepName(name string) SweepOption { return func(sw *Sweep) { sw.name = name } }

// SweepLabel sets the coordinate array label.
func SweepLabel(label string) SweepOption { return func(sw *Sweep) { sw.label = label } }

// SweepUnit sets the coordinate array unit.
func SweepUnit(unit string) SweepOption { return func(sw *Sweep) { sw.unit = unit } }

// SweepReverse iterates the sequence back-to-front. Data is still stored at
// forward loop indices, so the dataset layout is identical either way.
func SweepReverse() SweepOption { return func(sw *Sweep) { sw.reverse = true } }

// SweepRestore records the swept parameter's value before the sweep and
// restores it on exhaustion, via the session mask stack.
func SweepRestore() SweepOption { return func(sw *Sweep) { sw.restore = true } }

// Sweep drives one dimension of the loop geometry:
//
//	sw := m.Sweep(measure.Span(0, 1, 11), measure.SweepName("bias"))
//	for sw.Next() {
//		v := sw.Value()
//		...
//	}
//	if err := sw.Err(); err != nil { ... }
//
// Entering the loop extends the loop geometry by one dimension; exhaustion
// shrinks it back and moves the action address past the sweep. Each step is
// a suspend point.
type Sweep struct {
	s   *Session
	src Source

	name  string
	label string
	unit  string

	reverse bool
	restore bool

	dim      int
	pos      int
	cur      float64
	setArray *DataArray

	entered bool
	done    bool
	err     error
}

// Sweep creates a sweep over src inside this session. The coordinate array
// is created (or reused, when the same sweep address is revisited)
// immediately; iteration starts at the first Next call.
func (s *Session) Sweep(src Source, opts ...SweepOption) *Sweep {
	sw := &Sweep{s: s, src: src, dim: len(s.core.loopShape)}
	for _, opt := range opts {
		opt(sw)
	}

	if ps, ok := src.(*paramSource); ok {
		if sw.name == "" {
			sw.name = ps.p.Name
		}
		if sw.label == "" {
			sw.label = ps.p.Label
		}
		if sw.unit == "" {
			sw.unit = ps.p.Unit
		}
	}
	if sw.name == "" {
		sw.name = "iterator"
	}

	if s.closed {
		sw.err = ErrClosed
		return sw
	}

	c := s.core
	if existing, ok := c.setArrays[c.addr.String()]; ok {
		sw.setArray = existing
		return sw
	}

	coords := make([]float64, src.Len())
	for i := range coords {
		coords[i] = src.At(i)
	}
	arr, err := s.createDataArray(c.addr.Clone(), ArrayOf(coords), naming{
		name:     sw.name,
		label:    sw.label,
		unit:     sw.unit,
		setpoint: true,
	})
	if err != nil {
		sw.err = fmt.Errorf("creating sweep coordinate array: %w", err)
		return sw
	}
	sw.setArray = arr
	return sw
}

// enter opens the sweep dimension: extend the loop geometry and push a zero
// sub-address.
func (sw *Sweep) enter() error {
	c := sw.s.core

	if sw.restore {
		ps, ok := sw.src.(*paramSource)
		if !ok {
			return fmt.Errorf("sweep %q: restore requires a parameter sweep", sw.name)
		}
		if !ps.p.Gettable() || !ps.p.Settable() {
			return fmt.Errorf("sweep %q: restore requires parameter %q to be gettable and settable",
				sw.name, ps.p.Name)
		}
		current, err := ps.p.Get()
		if err != nil {
			return fmt.Errorf("sweep %q: reading %q for restore: %w", sw.name, ps.p.Name, err)
		}
		if _, err := sw.s.Mask(ParamTarget(ps.p), current); err != nil {
			return err
		}
	}

	initIdx := 0
	if sw.reverse {
		initIdx = sw.src.Len() - 1
	}
	c.loopShape = append(c.loopShape, sw.src.Len())
	c.loopIndices = append(c.loopIndices, initIdx)
	c.addr = c.addr.Child()
	sw.entered = true
	monitoring.Debugf("measure: sweep %q opened dimension %d with %d points", sw.name, sw.dim, sw.src.Len())
	return nil
}

// Next advances the sweep. It returns false on exhaustion, stop, or error;
// check Err afterwards.
func (sw *Sweep) Next() bool {
	if sw.done || sw.err != nil {
		return false
	}
	c := sw.s.core

	if !sw.entered {
		if err := sw.enter(); err != nil {
			sw.err = err
			return false
		}
	}

	if err := c.suspend(); err != nil {
		sw.err = err
		return false
	}

	if sw.pos >= sw.src.Len() {
		sw.exit()
		return false
	}

	idx := sw.pos
	if sw.reverse {
		idx = sw.src.Len() - 1 - sw.pos
	}
	c.loopIndices[sw.dim] = idx
	c.addr[len(c.addr)-1] = 0

	v := sw.src.At(idx)
	if ps, ok := sw.src.(*paramSource); ok && ps.p.Settable() {
		if err := ps.p.Set(v); err != nil {
			sw.err = fmt.Errorf("sweep %q: setting %q to %v: %w", sw.name, ps.p.Name, v, err)
			return false
		}
	}

	indices := append([]int(nil), c.loopIndices[:sw.dim+1]...)
	if err := c.ds.Store(indices, map[string]any{sw.setArray.ArrayID(): v}); err != nil {
		sw.err = fmt.Errorf("sweep %q: recording coordinate: %w", sw.name, err)
		return false
	}

	sw.cur = v
	sw.pos++
	return true
}

// exit closes the sweep dimension: optionally restore the swept parameter,
// shrink the geometry, and land the action address just past the sweep.
func (sw *Sweep) exit() {
	if sw.restore {
		if ps, ok := sw.src.(*paramSource); ok {
			sw.s.Unmask(ParamTarget(ps.p))
		}
	}
	sw.s.stepOut(true)
	sw.done = true
}

// Value returns the coordinate produced by the last successful Next.
func (sw *Sweep) Value() float64 { return sw.cur }

// Err returns the error that terminated the sweep, if any. ErrStopped
// indicates a requested stop, not a failure.
func (sw *Sweep) Err() error { return sw.err }

// SetArray exposes the sweep's coordinate array.
func (sw *Sweep) SetArray() *DataArray { return sw.setArray }
