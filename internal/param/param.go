// Package param models the device parameters a measurement talks to: named,
// unit-carrying handles whose get side reads an instrument channel and whose
// set side drives it. The measurement engine only depends on the narrow
// get/set contract defined here; instrument transports live elsewhere.
package param

import (
	"fmt"
	"sync"
)

// Axis describes explicit setpoints for one axis of an array-valued result.
// When a parameter declares axes, the engine uses them as coordinate arrays
// instead of the default integer range.
type Axis struct {
	Values []float64
	Label  string
	Unit   string
}

// Parameter is a single-valued device parameter. Calling Get reads the
// device; calling Set drives it. Either side may be absent: a read-only
// sensor has no SetFn, a write-only knob no GetFn.
type Parameter struct {
	Name  string
	Label string
	Unit  string

	// Axes declares per-axis setpoints for parameters whose Get returns an
	// array. Leave nil for scalar parameters.
	Axes []Axis

	GetFn func() (any, error)
	SetFn func(any) error
}

// Gettable reports whether the parameter can be read.
func (p *Parameter) Gettable() bool { return p.GetFn != nil }

// Settable reports whether the parameter can be written.
func (p *Parameter) Settable() bool { return p.SetFn != nil }

// Get reads the parameter from the device.
func (p *Parameter) Get() (any, error) {
	if p.GetFn == nil {
		return nil, fmt.Errorf("parameter %q is not gettable", p.Name)
	}
	return p.GetFn()
}

// Set writes the parameter to the device.
func (p *Parameter) Set(v any) error {
	if p.SetFn == nil {
		return fmt.Errorf("parameter %q is not settable", p.Name)
	}
	return p.SetFn(v)
}

// New returns a parameter backed by the given get and set functions. Either
// may be nil.
func New(name string, get func() (any, error), set func(any) error) *Parameter {
	return &Parameter{Name: name, GetFn: get, SetFn: set}
}

// Manual returns a settable, gettable parameter holding a plain value with
// no device behind it. Useful as a software knob and in tests.
func Manual(name string, initial any) *Parameter {
	var mu sync.Mutex
	value := initial
	return &Parameter{
		Name: name,
		GetFn: func() (any, error) {
			mu.Lock()
			defer mu.Unlock()
			return value, nil
		},
		SetFn: func(v any) error {
			mu.Lock()
			defer mu.Unlock()
			value = v
			return nil
		},
	}
}

// MultiParameter is a device parameter whose single acquisition produces
// several named results, e.g. an instrument returning amplitude and phase
// from one trigger. Names, Labels and Units are parallel; Axes optionally
// declares per-result, per-axis setpoints for array-shaped sub-results.
type MultiParameter struct {
	Name   string
	Names  []string
	Labels []string
	Units  []string

	// Axes maps a sub-result name to its per-axis setpoints.
	Axes map[string][]Axis

	GetFn func() ([]any, error)
}

// Get acquires all sub-results in one device invocation.
func (p *MultiParameter) Get() ([]any, error) {
	if p.GetFn == nil {
		return nil, fmt.Errorf("multi-parameter %q is not gettable", p.Name)
	}
	results, err := p.GetFn()
	if err != nil {
		return nil, err
	}
	if len(results) != len(p.Names) {
		return nil, fmt.Errorf("multi-parameter %q returned %d results, declared %d names",
			p.Name, len(results), len(p.Names))
	}
	return results, nil
}

// LabelAt returns the label for the i-th sub-result, falling back to its name.
func (p *MultiParameter) LabelAt(i int) string {
	if i < len(p.Labels) && p.Labels[i] != "" {
		return p.Labels[i]
	}
	return p.Names[i]
}

// UnitAt returns the unit for the i-th sub-result, or "".
func (p *MultiParameter) UnitAt(i int) string {
	if i < len(p.Units) {
		return p.Units[i]
	}
	return ""
}
