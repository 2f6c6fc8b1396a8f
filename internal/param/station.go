package param

import "sort"

// Snapshotter is implemented by instruments that can describe their current
// configuration for dataset metadata.
type Snapshotter interface {
	Snapshot() map[string]any
}

// Station is an optional registry of the instruments participating in a
// measurement. The engine consults it exactly once, at session start, to
// record a configuration snapshot alongside the data.
type Station struct {
	Name       string
	components map[string]Snapshotter
}

// NewStation returns an empty station with the given name.
func NewStation(name string) *Station {
	return &Station{Name: name, components: make(map[string]Snapshotter)}
}

// Add registers a component under the given name, replacing any previous
// entry with that name.
func (s *Station) Add(name string, c Snapshotter) {
	s.components[name] = c
}

// Snapshot returns the station configuration as nested maps, with component
// names sorted for stable metadata output.
func (s *Station) Snapshot() map[string]any {
	names := make([]string, 0, len(s.components))
	for name := range s.components {
		names = append(names, name)
	}
	sort.Strings(names)

	snap := map[string]any{"name": s.Name}
	instruments := make(map[string]any, len(names))
	for _, name := range names {
		instruments[name] = s.components[name].Snapshot()
	}
	snap["instruments"] = instruments
	return snap
}
