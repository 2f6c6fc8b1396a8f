// Package dataset defines the storage contract the measurement engine writes
// into, plus the bundled implementations: an in-memory dataset and a
// sqlite-backed dataset that persists every stored result immediately.
//
// The engine never buffers: each Store call is forwarded here as it happens,
// so a crashed measurement leaves behind everything recorded up to the crash.
package dataset

import (
	"fmt"
	"sort"
	"sync"
)

// Array is the view of a data array the dataset needs: identity, geometry,
// role, and a write path. The engine owns the concrete arrays; the dataset
// routes stored values into them and persists as configured.
type Array interface {
	// ArrayID uniquely identifies the array within its dataset.
	ArrayID() string
	Name() string
	Label() string
	Unit() string
	Shape() []int

	// IsSetpoint reports whether the array holds sweep coordinates rather
	// than measured values.
	IsSetpoint() bool

	// SetArrayIDs lists the coordinate arrays attached to this array,
	// outermost dimension first.
	SetArrayIDs() []string

	// WriteAt stores value at the position given by loopIndices. The value
	// is either a scalar or an array block covering the trailing axes.
	WriteAt(loopIndices []int, value any) error

	// Values returns the flat row-major backing data.
	Values() []float64
}

// Dataset receives arrays and results from a measurement session.
type Dataset interface {
	Name() string

	// AddArray registers a new array. Called once per array, lazily, when
	// the engine first sees a result for it.
	AddArray(Array) error

	// Store writes one result delivery: values maps array IDs to the value
	// recorded at loopIndices.
	Store(loopIndices []int, values map[string]any) error

	AddMetadata(md map[string]any)
	SaveMetadata() error

	// Finalize marks the dataset complete. No writes are accepted after.
	Finalize() error

	Arrays() map[string]Array
	Active() bool
	SetActive(bool)
}

// Memory is an in-process Dataset. It is the default backing for tests and
// the substrate the sqlite dataset wraps for in-process reads.
type Memory struct {
	mu        sync.Mutex
	name      string
	arrays    map[string]Array
	order     []string
	metadata  map[string]any
	active    bool
	finalized bool
}

// NewMemory returns an empty in-memory dataset with the given name.
func NewMemory(name string) *Memory {
	return &Memory{
		name:     name,
		arrays:   make(map[string]Array),
		metadata: make(map[string]any),
	}
}

func (m *Memory) Name() string { return m.name }

func (m *Memory) AddArray(arr Array) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.finalized {
		return fmt.Errorf("dataset %q is finalized", m.name)
	}
	id := arr.ArrayID()
	if _, ok := m.arrays[id]; ok {
		return fmt.Errorf("array %q already registered in dataset %q", id, m.name)
	}
	m.arrays[id] = arr
	m.order = append(m.order, id)
	return nil
}

func (m *Memory) Store(loopIndices []int, values map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.finalized {
		return fmt.Errorf("dataset %q is finalized", m.name)
	}

	// Apply in sorted ID order so repeated stores are deterministic.
	ids := make([]string, 0, len(values))
	for id := range values {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		arr, ok := m.arrays[id]
		if !ok {
			return fmt.Errorf("store to unknown array %q in dataset %q", id, m.name)
		}
		if err := arr.WriteAt(loopIndices, values[id]); err != nil {
			return fmt.Errorf("store to array %q: %w", id, err)
		}
	}
	return nil
}

func (m *Memory) AddMetadata(md map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range md {
		m.metadata[k] = v
	}
}

func (m *Memory) SaveMetadata() error { return nil }

func (m *Memory) Finalize() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finalized = true
	m.active = false
	return nil
}

func (m *Memory) Arrays() map[string]Array {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]Array, len(m.arrays))
	for id, arr := range m.arrays {
		out[id] = arr
	}
	return out
}

// ArrayIDs returns array IDs in registration order.
func (m *Memory) ArrayIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// Metadata returns a copy of the accumulated metadata.
func (m *Memory) Metadata() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]any, len(m.metadata))
	for k, v := range m.metadata {
		out[k] = v
	}
	return out
}

func (m *Memory) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

func (m *Memory) SetActive(active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = active
}

// Finalized reports whether Finalize has been called.
func (m *Memory) Finalized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.finalized
}
