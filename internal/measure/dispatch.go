package measure

import (
	"fmt"
	"sort"

	"github.com/banshee-data/sweep.report/internal/param"
)

// MeasureOption adjusts how one Measure call names and annotates its result.
type MeasureOption func(*measureConfig)

type measureConfig struct {
	name      string
	label     string
	unit      string
	axes      []param.Axis
	timestamp bool
}

// WithName overrides the result name. Required for bare values, optional for
// sources that carry their own name.
func WithName(name string) MeasureOption { return func(c *measureConfig) { c.name = name } }

// WithLabel overrides the result label.
func WithLabel(label string) MeasureOption { return func(c *measureConfig) { c.label = label } }

// WithUnit overrides the result unit.
func WithUnit(unit string) MeasureOption { return func(c *measureConfig) { c.unit = unit } }

// WithAxes declares per-axis setpoints for array-shaped results.
func WithAxes(axes ...param.Axis) MeasureOption {
	return func(c *measureConfig) { c.axes = axes }
}

// WithTimestamp brackets the measurement with elapsed-time records t_pre and
// t_post, in seconds since the measurement started.
func WithTimestamp() MeasureOption { return func(c *measureConfig) { c.timestamp = true } }

// Measure records one measured value at the current action address and
// advances past it. The value is dispatched by type, first match wins:
//
//   - *param.Parameter: read the instrument, store under the parameter's name
//   - *param.MultiParameter: read once, store each component in a data group
//   - func(*Session) error: run as a nested data group
//   - func() (map[string]any, error), func() map[string]any: call, then store
//     each entry in a data group keyed by name
//   - map[string]any: store each entry in a data group keyed by name
//   - float64, float32, int, int64, bool, []float64, Array: store directly;
//     WithName is required
//
// Anything else fails with UnsupportedTypeError. Measure is a suspend point:
// it honors pause and returns ErrStopped after Stop.
func (s *Session) Measure(target any, opts ...MeasureOption) (any, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if err := s.core.suspend(); err != nil {
		return nil, err
	}

	var cfg measureConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.timestamp {
		if _, err := s.measureLeaf(s.Elapsed().Seconds(), naming{name: "t_pre", unit: "s"}); err != nil {
			return nil, err
		}
	}

	v, err := s.dispatch(target, cfg)
	if err != nil {
		return nil, err
	}

	if cfg.timestamp {
		if _, err := s.measureLeaf(s.Elapsed().Seconds(), naming{name: "t_post", unit: "s"}); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func (s *Session) dispatch(target any, cfg measureConfig) (any, error) {
	switch t := target.(type) {
	case *param.Parameter:
		nm := naming{
			name:  fallback(cfg.name, t.Name),
			label: fallback(cfg.label, t.Label),
			unit:  fallback(cfg.unit, t.Unit),
			axes:  cfg.axes,
		}
		if len(nm.axes) == 0 {
			nm.axes = t.Axes
		}
		v, err := t.Get()
		if err != nil {
			return nil, fmt.Errorf("getting parameter %q: %w", t.Name, err)
		}
		return s.measureLeaf(v, nm)

	case *param.MultiParameter:
		name := fallback(cfg.name, t.Name)
		if err := s.core.actions.verifyOrRegister(s.core.addr, name); err != nil {
			return nil, err
		}
		vals, err := t.Get()
		if err != nil {
			return nil, fmt.Errorf("getting parameter %q: %w", t.Name, err)
		}
		err = s.Group(name, func(g *Session) error {
			for i, v := range vals {
				nm := naming{
					name:  t.Names[i],
					label: t.LabelAt(i),
					unit:  t.UnitAt(i),
					axes:  t.Axes[t.Names[i]],
				}
				if _, err := g.measureLeaf(v, nm); err != nil {
					return err
				}
			}
			return nil
		})
		return vals, err

	case func(*Session) error:
		name := fallback(cfg.name, "action")
		if err := s.core.actions.verifyOrRegister(s.core.addr, name); err != nil {
			return nil, err
		}
		return nil, s.Group(name, t)

	case func() (map[string]any, error):
		results, err := t()
		if err != nil {
			return nil, fmt.Errorf("measuring %q: %w", fallback(cfg.name, "results"), err)
		}
		return s.measureMap(results, cfg)

	case func() map[string]any:
		return s.measureMap(t(), cfg)

	case map[string]any:
		return s.measureMap(t, cfg)

	default:
		_, scalarOK := asScalar(target)
		_, arrayOK := asArray(target)
		if !scalarOK && !arrayOK {
			return nil, &UnsupportedTypeError{Value: target}
		}
		if cfg.name == "" {
			return nil, fmt.Errorf("measuring a bare %T requires WithName", target)
		}
		nm := naming{name: cfg.name, label: cfg.label, unit: cfg.unit, axes: cfg.axes}
		return s.measureLeaf(target, nm)
	}
}

// measureMap stores each map entry as its own result inside a data group,
// in sorted key order so addresses are stable across repetitions.
func (s *Session) measureMap(results map[string]any, cfg measureConfig) (any, error) {
	name := fallback(cfg.name, "results")
	if err := s.core.actions.verifyOrRegister(s.core.addr, name); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(results))
	for k := range results {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	err := s.Group(name, func(g *Session) error {
		for _, k := range keys {
			if _, err := g.measureLeaf(results[k], naming{name: k}); err != nil {
				return err
			}
		}
		return nil
	})
	return results, err
}

// measureLeaf verifies the action sequence at the current address, hands the
// value to the dataset, and advances the address by one.
func (s *Session) measureLeaf(value any, nm naming) (any, error) {
	c := s.core
	addr := c.addr.Clone()
	if err := c.actions.verifyOrRegister(addr, nm.name); err != nil {
		return nil, err
	}
	if err := s.addResult(addr, value, nm); err != nil {
		return nil, err
	}
	c.addr = c.addr.Skip(1)
	return value, nil
}

func fallback(v, def string) string {
	if v != "" {
		return v
	}
	return def
}
