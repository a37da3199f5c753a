package cpu

import (
	"bytes"
	"testing"

	"github.com/x448/float16"

	"github.com/born-ml/roipool3d/internal/parallel"
	"github.com/born-ml/roipool3d/internal/tensor"
)

// sequentialVolume creates a [1,1,4,4,4] float32 volume with values 1..64.
func sequentialVolume(t *testing.T) *tensor.RawTensor {
	t.Helper()
	input, err := tensor.NewRaw(tensor.Shape{1, 1, 4, 4, 4}, tensor.Float32, tensor.CPU)
	if err != nil {
		t.Fatalf("NewRaw failed: %v", err)
	}
	data := input.AsFloat32()
	for i := range data {
		data[i] = float32(i + 1)
	}
	return input
}

// packRois packs region rows into a [R,7] float32 tensor.
func packRois(t *testing.T, rows ...[7]float32) *tensor.RawTensor {
	t.Helper()
	rois, err := tensor.NewRaw(tensor.Shape{len(rows), 7}, tensor.Float32, tensor.CPU)
	if err != nil {
		t.Fatalf("NewRaw failed: %v", err)
	}
	data := rois.AsFloat32()
	for i, row := range rows {
		copy(data[i*7:], row[:])
	}
	return rois
}

// TestROIPool3D_RoundTrip tests 2x2x2 pooling of a whole 4x4x4 volume.
func TestROIPool3D_RoundTrip(t *testing.T) {
	backend := New()

	input := sequentialVolume(t)
	rois := packRois(t, [7]float32{0, 0, 0, 0, 3, 3, 3})

	output, argmax := backend.ROIPool3D(input, rois, 2, 2, 2, 1.0, 1.0)

	expectedShape := tensor.Shape{1, 1, 2, 2, 2}
	if !output.Shape().Equal(expectedShape) {
		t.Fatalf("Output shape: expected %v, got %v", expectedShape, output.Shape())
	}

	// extent=4, pooled=2 -> bin boundaries [0,2) and [2,4) per axis. The
	// max of each 2x2x2 sub-cube sits at its far corner.
	expected := []float32{22, 24, 30, 32, 54, 56, 62, 64}
	expectedArgmax := []int{21, 23, 29, 31, 53, 55, 61, 63}

	outputData := output.AsFloat32()
	for i, exp := range expected {
		if outputData[i] != exp {
			t.Errorf("Output[%d]: expected %.1f, got %.1f", i, exp, outputData[i])
		}
		if argmax[i] != expectedArgmax[i] {
			t.Errorf("Argmax[%d]: expected %d, got %d", i, expectedArgmax[i], argmax[i])
		}
	}
}

// TestROIPool3D_Determinism tests that repeated calls are byte-identical.
func TestROIPool3D_Determinism(t *testing.T) {
	backend := New()

	input, _ := tensor.NewRaw(tensor.Shape{2, 3, 5, 6, 7}, tensor.Float32, tensor.CPU)
	data := input.AsFloat32()
	for i := range data {
		// Deterministic pseudo-random pattern with plenty of ties.
		data[i] = float32((i*31 + 17) % 13)
	}
	rois := packRois(t,
		[7]float32{0, 0, 0, 0, 6, 5, 4},
		[7]float32{1, 1, 2, 0, 5, 4, 3},
		[7]float32{0, 3, 3, 3, 1, 1, 1}, // inverted
	)

	out1, arg1 := backend.ROIPool3D(input, rois, 3, 2, 2, 1.0, 1.0)
	out2, arg2 := backend.ROIPool3D(input, rois, 3, 2, 2, 1.0, 1.0)

	if !bytes.Equal(out1.Data(), out2.Data()) {
		t.Error("repeated forward calls produced different outputs")
	}
	for i := range arg1 {
		if arg1[i] != arg2[i] {
			t.Fatalf("argmax[%d] differs between runs: %d vs %d", i, arg1[i], arg2[i])
		}
	}
}

// TestROIPool3D_TieBreak tests that ties keep the first element in
// depth, height, width iteration order.
func TestROIPool3D_TieBreak(t *testing.T) {
	backend := New()

	input, _ := tensor.NewRaw(tensor.Shape{1, 1, 4, 4, 4}, tensor.Float32, tensor.CPU)
	data := input.AsFloat32()
	for i := range data {
		data[i] = 7.5
	}
	rois := packRois(t, [7]float32{0, 0, 0, 0, 3, 3, 3})

	_, argmax := backend.ROIPool3D(input, rois, 2, 2, 2, 1.0, 1.0)

	// Each 2x2x2 bin must select its own first corner (lowest d, then h,
	// then w).
	expectedArgmax := []int{0, 2, 8, 10, 32, 34, 40, 42}
	for i, exp := range expectedArgmax {
		if argmax[i] != exp {
			t.Errorf("Argmax[%d]: expected first-corner %d, got %d", i, exp, argmax[i])
		}
	}
}

// TestROIPool3D_DegenerateRegion tests the 1-wide clamp for an
// inverted region.
func TestROIPool3D_DegenerateRegion(t *testing.T) {
	backend := New()

	input := sequentialVolume(t)
	// Rounded end < start on every axis: extent forced to 1, anchored at
	// (2,2,2). Every bin collapses onto that single element.
	rois := packRois(t, [7]float32{0, 2, 2, 2, 1, 1, 1})

	output, argmax := backend.ROIPool3D(input, rois, 2, 2, 2, 1.0, 1.0)

	wantFlat := (2*4+2)*4 + 2 // element (2,2,2)
	wantVal := float32(wantFlat + 1)
	for i, v := range output.AsFloat32() {
		if v != wantVal {
			t.Errorf("Output[%d]: expected %.1f, got %.1f", i, wantVal, v)
		}
		if argmax[i] != wantFlat {
			t.Errorf("Argmax[%d]: expected %d, got %d", i, wantFlat, argmax[i])
		}
	}
}

// TestROIPool3D_RegionOutsideVolume tests that a region entirely past the
// volume's edge yields all-zero output and all -1 argmax.
func TestROIPool3D_RegionOutsideVolume(t *testing.T) {
	backend := New()

	input := sequentialVolume(t)
	rois := packRois(t,
		[7]float32{0, 10, 10, 10, 12, 12, 12},
		// Degenerate AND out of bounds: start == end+1 before the 1-wide
		// clamp, anchored past the edge.
		[7]float32{0, 5, 5, 5, 4, 4, 4},
	)

	output, argmax := backend.ROIPool3D(input, rois, 2, 2, 2, 1.0, 1.0)

	for i, v := range output.AsFloat32() {
		if v != 0 {
			t.Errorf("Output[%d]: expected 0 for empty bin, got %.1f", i, v)
		}
		if argmax[i] != -1 {
			t.Errorf("Argmax[%d]: expected -1 for empty bin, got %d", i, argmax[i])
		}
	}
}

// TestROIPool3D_ScaleFactors tests independent in-plane and depth scaling.
func TestROIPool3D_ScaleFactors(t *testing.T) {
	backend := New()

	input := sequentialVolume(t)
	// In original coordinates the box is (0,0,0)-(6,6,1); xy-scale 0.5 and
	// z-scale 2.0 map it to (0,0,0)-(3,3,2) in feature space.
	rois := packRois(t, [7]float32{0, 0, 0, 0, 6, 6, 1})

	output, argmax := backend.ROIPool3D(input, rois, 1, 1, 1, 0.5, 2.0)

	// Single bin over d in [0,3), h in [0,4), w in [0,4): max element is
	// (2,3,3), value 48.
	outputData := output.AsFloat32()
	if outputData[0] != 48 {
		t.Errorf("Output[0]: expected 48, got %.1f", outputData[0])
	}
	if want := (2*4+3)*4 + 3; argmax[0] != want {
		t.Errorf("Argmax[0]: expected %d, got %d", want, argmax[0])
	}
}

// TestROIPool3D_MultiChannel tests per-channel independence.
func TestROIPool3D_MultiChannel(t *testing.T) {
	backend := New()

	input, _ := tensor.NewRaw(tensor.Shape{1, 3, 2, 2, 2}, tensor.Float32, tensor.CPU)
	data := input.AsFloat32()
	for c := 0; c < 3; c++ {
		for i := 0; i < 8; i++ {
			data[c*8+i] = float32(c + 1)
		}
	}
	rois := packRois(t, [7]float32{0, 0, 0, 0, 1, 1, 1})

	output, _ := backend.ROIPool3D(input, rois, 1, 1, 1, 1.0, 1.0)

	outputData := output.AsFloat32()
	for c := 0; c < 3; c++ {
		if outputData[c] != float32(c+1) {
			t.Errorf("Channel %d: expected %.1f, got %.1f", c, float32(c+1), outputData[c])
		}
	}
}

// TestROIPool3D_BatchSelection tests that each region reads the volume its
// batch index names.
func TestROIPool3D_BatchSelection(t *testing.T) {
	backend := New()

	input, _ := tensor.NewRaw(tensor.Shape{2, 1, 2, 2, 2}, tensor.Float32, tensor.CPU)
	data := input.AsFloat32()
	for i := 0; i < 8; i++ {
		data[i] = 1   // batch 0
		data[8+i] = 9 // batch 1
	}
	rois := packRois(t,
		[7]float32{0, 0, 0, 0, 1, 1, 1},
		[7]float32{1, 0, 0, 0, 1, 1, 1},
	)

	output, _ := backend.ROIPool3D(input, rois, 1, 1, 1, 1.0, 1.0)

	outputData := output.AsFloat32()
	if outputData[0] != 1 {
		t.Errorf("Region 0 (batch 0): expected 1, got %.1f", outputData[0])
	}
	if outputData[1] != 9 {
		t.Errorf("Region 1 (batch 1): expected 9, got %.1f", outputData[1])
	}
}

// TestROIPool3D_Float64 tests the float64 kernel path.
func TestROIPool3D_Float64(t *testing.T) {
	backend := New()

	input, _ := tensor.NewRaw(tensor.Shape{1, 1, 4, 4, 4}, tensor.Float64, tensor.CPU)
	data := input.AsFloat64()
	for i := range data {
		data[i] = float64(i + 1)
	}
	rois, _ := tensor.NewRaw(tensor.Shape{1, 7}, tensor.Float64, tensor.CPU)
	copy(rois.AsFloat64(), []float64{0, 0, 0, 0, 3, 3, 3})

	output, argmax := backend.ROIPool3D(input, rois, 2, 2, 2, 1.0, 1.0)

	expected := []float64{22, 24, 30, 32, 54, 56, 62, 64}
	outputData := output.AsFloat64()
	for i, exp := range expected {
		if outputData[i] != exp {
			t.Errorf("Output[%d]: expected %.1f, got %.1f", i, exp, outputData[i])
		}
	}
	if argmax[7] != 63 {
		t.Errorf("Argmax[7]: expected 63, got %d", argmax[7])
	}
}

// TestROIPool3D_Float16 tests the half-precision kernel path.
func TestROIPool3D_Float16(t *testing.T) {
	backend := New()

	input, _ := tensor.NewRaw(tensor.Shape{1, 1, 4, 4, 4}, tensor.Float16, tensor.CPU)
	data := input.AsFloat16()
	for i := range data {
		data[i] = float16.Fromfloat32(float32(i + 1))
	}
	rois, _ := tensor.NewRaw(tensor.Shape{1, 7}, tensor.Float16, tensor.CPU)
	roiRow := []float32{0, 0, 0, 0, 3, 3, 3}
	roiData := rois.AsFloat16()
	for i, v := range roiRow {
		roiData[i] = float16.Fromfloat32(v)
	}

	output, argmax := backend.ROIPool3D(input, rois, 2, 2, 2, 1.0, 1.0)

	expected := []float32{22, 24, 30, 32, 54, 56, 62, 64}
	outputData := output.AsFloat16()
	for i, exp := range expected {
		if got := outputData[i].Float32(); got != exp {
			t.Errorf("Output[%d]: expected %.1f, got %.1f", i, exp, got)
		}
	}
	if argmax[0] != 21 {
		t.Errorf("Argmax[0]: expected 21, got %d", argmax[0])
	}
}

// TestROIPool3D_SequentialMatchesParallel tests that parallelism does not
// change results.
func TestROIPool3D_SequentialMatchesParallel(t *testing.T) {
	par := NewWithConfig(parallel.Config{Enabled: true, NumWorkers: 8, MinChunkSize: 1})
	seq := NewWithConfig(parallel.Sequential())

	input, _ := tensor.NewRaw(tensor.Shape{2, 4, 6, 6, 6}, tensor.Float32, tensor.CPU)
	data := input.AsFloat32()
	for i := range data {
		data[i] = float32((i*37 + 11) % 101)
	}
	rois := packRois(t,
		[7]float32{0, 0, 0, 0, 5, 5, 5},
		[7]float32{1, 1, 1, 1, 4, 4, 4},
		[7]float32{0, 2, 0, 3, 5, 2, 5},
	)

	outPar, argPar := par.ROIPool3D(input, rois, 2, 3, 2, 1.0, 1.0)
	outSeq, argSeq := seq.ROIPool3D(input, rois, 2, 3, 2, 1.0, 1.0)

	if !bytes.Equal(outPar.Data(), outSeq.Data()) {
		t.Error("parallel and sequential outputs differ")
	}
	for i := range argPar {
		if argPar[i] != argSeq[i] {
			t.Fatalf("argmax[%d] differs: parallel %d, sequential %d", i, argPar[i], argSeq[i])
		}
	}
}

// TestROIPool3D_InvalidShapes tests shape validation panics.
func TestROIPool3D_InvalidShapes(t *testing.T) {
	backend := New()

	input := sequentialVolume(t)
	rois := packRois(t, [7]float32{0, 0, 0, 0, 3, 3, 3})

	assertPanics := func(name string, f func()) {
		defer func() {
			if recover() == nil {
				t.Errorf("%s: expected panic", name)
			}
		}()
		f()
	}

	bad4d, _ := tensor.NewRaw(tensor.Shape{1, 4, 4, 4}, tensor.Float32, tensor.CPU)
	assertPanics("4D input", func() {
		backend.ROIPool3D(bad4d, rois, 2, 2, 2, 1.0, 1.0)
	})

	badRois, _ := tensor.NewRaw(tensor.Shape{1, 5}, tensor.Float32, tensor.CPU)
	assertPanics("5-field rois", func() {
		backend.ROIPool3D(input, badRois, 2, 2, 2, 1.0, 1.0)
	})

	rois64, _ := tensor.NewRaw(tensor.Shape{1, 7}, tensor.Float64, tensor.CPU)
	assertPanics("dtype mismatch", func() {
		backend.ROIPool3D(input, rois64, 2, 2, 2, 1.0, 1.0)
	})
}
