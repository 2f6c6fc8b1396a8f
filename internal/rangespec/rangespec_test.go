package rangespec

import (
	"math"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    RangeSpec
		wantErr bool
	}{
		{"simple", "0:1:0.25", RangeSpec{Min: 0, Max: 1, Step: 0.25}, false},
		{"negative min", "-2:2:1", RangeSpec{Min: -2, Max: 2, Step: 1}, false},
		{"spaces", " 0 : 10 : 2 ", RangeSpec{Min: 0, Max: 10, Step: 2}, false},
		{"two parts", "0:1", RangeSpec{}, true},
		{"four parts", "0:1:2:3", RangeSpec{}, true},
		{"bad number", "a:1:1", RangeSpec{}, true},
		{"zero step", "0:1:0", RangeSpec{}, true},
		{"negative step", "0:1:-1", RangeSpec{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Parse(%q) accepted", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) failed: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestValues(t *testing.T) {
	tests := []struct {
		name string
		spec RangeSpec
		want []float64
	}{
		{"inclusive ends", RangeSpec{Min: 0, Max: 1, Step: 0.5}, []float64{0, 0.5, 1}},
		{"accumulation", RangeSpec{Min: 0, Max: 0.3, Step: 0.1}, []float64{0, 0.1, 0.2, 0.3}},
		{"single point", RangeSpec{Min: 2, Max: 2, Step: 1}, []float64{2}},
		{"inverted", RangeSpec{Min: 1, Max: 0, Step: 1}, nil},
		{"excessive", RangeSpec{Min: 0, Max: 1e9, Step: 1}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.spec.Values()
			if len(got) != len(tt.want) {
				t.Fatalf("Values() = %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if math.Abs(got[i]-tt.want[i]) > 1e-9 {
					t.Errorf("Values()[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}
