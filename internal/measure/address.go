package measure

import (
	"strconv"
	"strings"
)

// Address identifies a position in the nested sweep/measure tree as an
// ordered sequence of non-negative component indices. Addresses are value
// types: every mutation returns a fresh slice.
type Address []int

// String renders the address with underscore separators, matching the array
// ID suffix convention.
func (a Address) String() string {
	if len(a) == 0 {
		return ""
	}
	parts := make([]string, len(a))
	for i, c := range a {
		parts[i] = strconv.Itoa(c)
	}
	return strings.Join(parts, "_")
}

// Clone returns an independent copy.
func (a Address) Clone() Address {
	out := make(Address, len(a))
	copy(out, a)
	return out
}

// Equal reports whether two addresses are identical.
func (a Address) Equal(b Address) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether p encloses a: every action at address a is
// nested inside the action at address p.
func (a Address) HasPrefix(p Address) bool {
	if len(p) > len(a) {
		return false
	}
	for i := range p {
		if a[i] != p[i] {
			return false
		}
	}
	return true
}

// Skip returns the address with its last component advanced by n. It is a
// pure function; the caller decides what to do with the result.
func (a Address) Skip(n int) Address {
	out := a.Clone()
	out[len(out)-1] += n
	return out
}

// Revert returns the address with its last component moved back by n.
func (a Address) Revert(n int) Address {
	return a.Skip(-n)
}

// Child returns the address extended by a zero component, entering one
// nesting level.
func (a Address) Child() Address {
	out := make(Address, len(a)+1)
	copy(out, a)
	return out
}

// Parent returns the enclosing address.
func (a Address) Parent() Address {
	return a[:len(a)-1].Clone()
}

// actionRegistry records which action name owns each address within one
// session, so that control flow drifting between repetitions of the same
// nested sequence is caught instead of silently corrupting the dataset.
type actionRegistry struct {
	names map[string]string
}

func newActionRegistry() *actionRegistry {
	return &actionRegistry{names: make(map[string]string)}
}

// verifyOrRegister binds name to addr on first sight and on every later
// visit checks the same name comes back. A different name is sequence
// drift and is fatal.
func (r *actionRegistry) verifyOrRegister(addr Address, name string) error {
	key := addr.String()
	existing, ok := r.names[key]
	if !ok {
		r.names[key] = name
		return nil
	}
	if existing != name {
		return &SequenceMismatchError{Addr: addr.Clone(), Want: existing, Got: name}
	}
	return nil
}
