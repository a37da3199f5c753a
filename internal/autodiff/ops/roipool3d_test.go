package ops

import (
	"testing"

	"github.com/born-ml/roipool3d/internal/backend/cpu"
	"github.com/born-ml/roipool3d/internal/tensor"
)

// TestROIPool3DOp_BackwardGradients tests gradient routing through the op.
func TestROIPool3DOp_BackwardGradients(t *testing.T) {
	backend := cpu.New()

	// Input: [1, 1, 4, 4, 4] with sequential values
	input, _ := tensor.NewRaw(tensor.Shape{1, 1, 4, 4, 4}, tensor.Float32, tensor.CPU)
	inputData := input.AsFloat32()
	for i := 0; i < 64; i++ {
		inputData[i] = float32(i + 1)
	}

	// One region spanning the whole volume.
	rois, _ := tensor.NewRaw(tensor.Shape{1, 7}, tensor.Float32, tensor.CPU)
	copy(rois.AsFloat32(), []float32{0, 0, 0, 0, 3, 3, 3})

	output, argmax := backend.ROIPool3D(input, rois, 2, 2, 2, 1.0, 1.0)

	op := NewROIPool3DOp(input, rois, output, argmax, 2, 2, 2, 1.0, 1.0)

	if len(op.Inputs()) != 1 {
		t.Fatalf("Expected 1 differentiable input, got %d", len(op.Inputs()))
	}
	if op.Output() != output {
		t.Error("Output() should return the forward output tensor")
	}
	if len(op.Argmax()) != output.NumElements() {
		t.Errorf("Argmax length %d != output elements %d", len(op.Argmax()), output.NumElements())
	}

	// Output gradient (all ones)
	outputGrad, _ := tensor.NewRaw(output.Shape(), tensor.Float32, tensor.CPU)
	outputGradData := outputGrad.AsFloat32()
	for i := range outputGradData {
		outputGradData[i] = 1.0
	}

	grads := op.Backward(outputGrad, backend)

	if len(grads) != 1 {
		t.Fatalf("Expected 1 gradient (no learnable parameters), got %d", len(grads))
	}

	inputGrad := grads[0]
	if !inputGrad.Shape().Equal(input.Shape()) {
		t.Errorf("inputGrad shape %v != input shape %v", inputGrad.Shape(), input.Shape())
	}

	// Each of the 8 bins routes one unit of gradient to its argmax.
	expectedNonZero := map[int]float32{
		21: 1.0, 23: 1.0, 29: 1.0, 31: 1.0,
		53: 1.0, 55: 1.0, 61: 1.0, 63: 1.0,
	}

	for i, grad := range inputGrad.AsFloat32() {
		expectedGrad, shouldBeNonZero := expectedNonZero[i]
		if shouldBeNonZero {
			if grad != expectedGrad {
				t.Errorf("inputGrad[%d]: expected %.1f (max position), got %.1f", i, expectedGrad, grad)
			}
		} else if grad != 0 {
			t.Errorf("inputGrad[%d]: expected 0.0, got %.1f", i, grad)
		}
	}
}

// TestROIPool3DOp_ImplementsOperation is a compile-time interface check.
func TestROIPool3DOp_ImplementsOperation(t *testing.T) {
	var _ Operation = (*ROIPool3DOp)(nil)
}
