package measure

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestBroadcastTo(t *testing.T) {
	got := broadcastTo([]float64{10, 20, 30}, []int{2, 3})
	want := Array{Shape: []int{2, 3}, Data: []float64{10, 20, 30, 10, 20, 30}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("broadcastTo mismatch (-want +got):\n%s", diff)
	}
}

func TestAsScalar(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  float64
		ok    bool
	}{
		{"float64", 1.5, 1.5, true},
		{"float32", float32(2), 2, true},
		{"int", 3, 3, true},
		{"int64", int64(4), 4, true},
		{"bool true", true, 1, true},
		{"bool false", false, 0, true},
		{"string", "nope", 0, false},
		{"nil", nil, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := asScalar(tt.value)
			if ok != tt.ok || got != tt.want {
				t.Errorf("asScalar(%v) = (%v, %v), want (%v, %v)", tt.value, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestArrayValidate(t *testing.T) {
	good := Array{Shape: []int{2, 3}, Data: make([]float64, 6)}
	if err := good.Validate(); err != nil {
		t.Errorf("valid array rejected: %v", err)
	}
	bad := Array{Shape: []int{2, 3}, Data: make([]float64, 5)}
	if err := bad.Validate(); err == nil {
		t.Error("mismatched data length accepted")
	}
}

func TestDataArrayWriteAt(t *testing.T) {
	arr := &DataArray{name: "trace", shape: []int{2, 3}, data: make([]float64, 6)}

	if err := arr.WriteAt([]int{1, 2}, 7.0); err != nil {
		t.Fatalf("scalar write failed: %v", err)
	}
	if got := arr.At(1, 2); got != 7.0 {
		t.Errorf("At(1,2) = %v, want 7", got)
	}

	// Block write covers the trailing axis.
	if err := arr.WriteAt([]int{0}, ArrayOf([]float64{1, 2, 3})); err != nil {
		t.Fatalf("block write failed: %v", err)
	}
	if diff := cmp.Diff([]float64{1, 2, 3, 0, 0, 7}, arr.Values()); diff != "" {
		t.Errorf("backing data mismatch (-want +got):\n%s", diff)
	}

	// Overwriting in place is allowed.
	if err := arr.WriteAt([]int{0}, ArrayOf([]float64{4, 5, 6})); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	if got := arr.At(0, 0); got != 4 {
		t.Errorf("At(0,0) after overwrite = %v, want 4", got)
	}

	if err := arr.WriteAt([]int{0, 5}, 1.0); err == nil {
		t.Error("out-of-range write accepted")
	}
	if err := arr.WriteAt([]int{0}, 1.0); err == nil {
		t.Error("partial scalar index accepted")
	}
}
