package measure

import (
	"fmt"
	"reflect"

	"github.com/banshee-data/sweep.report/internal/monitoring"
	"github.com/banshee-data/sweep.report/internal/param"
)

// MaskTarget is a capability handle for one maskable slot: a device
// parameter's value, a settable field on some object, or a map entry. The
// caller picks the target kind when masking; the engine only needs the get
// and set sides plus a stable identity for later unmasking.
type MaskTarget struct {
	owner    any
	selector string
	get      func() (any, error)
	set      func(any) error
}

// Describe renders the target for log messages.
func (t MaskTarget) Describe() string {
	return fmt.Sprintf("%v.%s", t.owner, t.selector)
}

// matches reports whether two targets address the same slot. An empty
// selector on the query side matches every slot of the same owner.
func (t MaskTarget) matches(query MaskTarget) bool {
	if t.owner != query.owner {
		return false
	}
	return query.selector == "" || t.selector == query.selector
}

// ParamTarget masks a device parameter's value. The original value is read
// from the device and restored by driving it back.
func ParamTarget(p *param.Parameter) MaskTarget {
	return MaskTarget{
		owner:    p,
		selector: "value",
		get:      p.Get,
		set:      p.Set,
	}
}

// AttrTarget masks an arbitrary slot on owner through explicit get/set
// functions, the moral equivalent of overriding an object attribute. The
// name distinguishes multiple masked slots on the same owner.
func AttrTarget(owner any, name string, get func() any, set func(any)) MaskTarget {
	return MaskTarget{
		owner:    owner,
		selector: name,
		get:      func() (any, error) { return get(), nil },
		set: func(v any) error {
			set(v)
			return nil
		},
	}
}

// OwnerTarget builds a query matching every masked slot of owner,
// regardless of selector. Only meaningful as an Unmask argument.
func OwnerTarget(owner any) MaskTarget {
	return MaskTarget{owner: owner}
}

// MapTarget masks one entry of a string-keyed map. The map itself is
// identified by its backing pointer, so two references to the same map
// unmask each other's entries.
func MapTarget(m map[string]any, key string) MaskTarget {
	owner := reflect.ValueOf(m).Pointer()
	return MaskTarget{
		owner:    owner,
		selector: key,
		get: func() (any, error) {
			v, ok := m[key]
			if !ok {
				return nil, fmt.Errorf("map has no key %q", key)
			}
			return v, nil
		},
		set: func(v any) error {
			m[key] = v
			return nil
		},
	}
}

// maskRecord remembers one override so it can be reverted.
type maskRecord struct {
	target   MaskTarget
	original any
	masked   any
}

// maskStack guarantees that temporary overrides are reverted in LIFO order.
// One stack serves the whole session tree; nested sessions remember their
// entry depth and pop back to it on exit.
type maskStack struct {
	records []maskRecord
}

// push reads the current value, applies the override, and records both.
func (s *maskStack) push(t MaskTarget, value any) (any, error) {
	original, err := t.get()
	if err != nil {
		return nil, fmt.Errorf("reading original value of %s: %w", t.Describe(), err)
	}
	if err := t.set(value); err != nil {
		return nil, fmt.Errorf("masking %s: %w", t.Describe(), err)
	}
	s.records = append(s.records, maskRecord{target: t, original: original, masked: value})
	return original, nil
}

// depth returns the current stack depth; sessions snapshot it on entry.
func (s *maskStack) depth() int { return len(s.records) }

// restore reverts one record. Failures are logged and swallowed so one bad
// restore never orphans the rest of the stack.
func restore(rec maskRecord) {
	if err := rec.target.set(rec.original); err != nil {
		monitoring.Logf("measure: could not unmask %s from %v to original %v: %v",
			rec.target.Describe(), rec.masked, rec.original, err)
	}
}

// popMatching reverts and removes every record matching the query, newest
// first. Non-matching records keep their relative order.
func (s *maskStack) popMatching(query MaskTarget) {
	remaining := s.records[:0]
	var popped []maskRecord
	for _, rec := range s.records {
		if rec.target.matches(query) {
			popped = append(popped, rec)
		} else {
			remaining = append(remaining, rec)
		}
	}
	for i := len(popped) - 1; i >= 0; i-- {
		restore(popped[i])
	}
	s.records = remaining
}

// popToDepth reverts every record above the given depth, newest first.
// Calling it again with the same depth is a no-op.
func (s *maskStack) popToDepth(depth int) {
	if depth < 0 {
		depth = 0
	}
	for i := len(s.records) - 1; i >= depth; i-- {
		restore(s.records[i])
	}
	if len(s.records) > depth {
		s.records = s.records[:depth]
	}
}
