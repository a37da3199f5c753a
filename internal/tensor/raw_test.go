package tensor

import (
	"testing"

	"github.com/x448/float16"
)

// TestNewRaw_Allocation tests raw tensor allocation and metadata.
func TestNewRaw_Allocation(t *testing.T) {
	raw, err := NewRaw(Shape{2, 3, 4, 4, 4}, Float32, CPU)
	if err != nil {
		t.Fatalf("NewRaw failed: %v", err)
	}

	if raw.NumElements() != 2*3*4*4*4 {
		t.Errorf("NumElements: expected %d, got %d", 2*3*4*4*4, raw.NumElements())
	}
	if raw.ByteSize() != raw.NumElements()*4 {
		t.Errorf("ByteSize: expected %d, got %d", raw.NumElements()*4, raw.ByteSize())
	}
	if raw.DType() != Float32 {
		t.Errorf("DType: expected float32, got %s", raw.DType())
	}

	// Memory must be zero-initialized
	for i, v := range raw.AsFloat32() {
		if v != 0 {
			t.Fatalf("element %d not zero-initialized: %f", i, v)
		}
	}
}

// TestNewRaw_InvalidShape tests shape validation.
func TestNewRaw_InvalidShape(t *testing.T) {
	if _, err := NewRaw(Shape{2, 0, 3}, Float32, CPU); err == nil {
		t.Error("expected error for zero dimension")
	}
	if _, err := NewRaw(Shape{-1, 3}, Float32, CPU); err == nil {
		t.Error("expected error for negative dimension")
	}
}

// TestRawTensor_Float16View tests the half-precision view.
func TestRawTensor_Float16View(t *testing.T) {
	raw, err := NewRaw(Shape{4}, Float16, CPU)
	if err != nil {
		t.Fatalf("NewRaw failed: %v", err)
	}
	if raw.ByteSize() != 8 {
		t.Errorf("ByteSize: expected 8, got %d", raw.ByteSize())
	}

	data := raw.AsFloat16()
	data[0] = float16.Fromfloat32(1.5)
	data[3] = float16.Fromfloat32(-2.0)

	if got := data[0].Float32(); got != 1.5 {
		t.Errorf("data[0]: expected 1.5, got %f", got)
	}
	if got := data[3].Float32(); got != -2.0 {
		t.Errorf("data[3]: expected -2.0, got %f", got)
	}
}

// TestRawTensor_WrongDTypeView tests that typed views enforce the dtype.
func TestRawTensor_WrongDTypeView(t *testing.T) {
	raw, _ := NewRaw(Shape{4}, Float32, CPU)

	defer func() {
		if recover() == nil {
			t.Error("expected panic for AsFloat64 on float32 tensor")
		}
	}()
	raw.AsFloat64()
}

// TestRawTensor_CloneSharesBuffer tests reference-counted cloning.
func TestRawTensor_CloneSharesBuffer(t *testing.T) {
	a, _ := NewRaw(Shape{8}, Float32, CPU)
	a.AsFloat32()[0] = 42

	b := a.Clone()
	if a.IsUnique() {
		t.Error("buffer should not be unique after Clone")
	}
	if b.AsFloat32()[0] != 42 {
		t.Error("clone should share the underlying buffer")
	}

	b.Release()
	if !a.IsUnique() {
		t.Error("buffer should be unique again after Release")
	}
}

// TestShape_Strides tests row-major stride computation.
func TestShape_Strides(t *testing.T) {
	s := Shape{2, 3, 4, 5, 6}
	strides := s.ComputeStrides()
	expected := []int{360, 120, 30, 6, 1}
	for i, e := range expected {
		if strides[i] != e {
			t.Errorf("stride[%d]: expected %d, got %d", i, e, strides[i])
		}
	}
}
