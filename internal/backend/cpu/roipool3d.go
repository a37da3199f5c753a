package cpu

import (
	"fmt"
	"math"

	"github.com/x448/float16"
	"k8s.io/klog/v2"

	"github.com/born-ml/roipool3d/internal/parallel"
	"github.com/born-ml/roipool3d/internal/roi"
	"github.com/born-ml/roipool3d/internal/tensor"
)

// ROIPool3D performs adaptive 3D region-of-interest max pooling.
//
// Each region is reduced to a fixed [Pd, Ph, Pw] grid regardless of its
// original size: the region's scaled extent on each axis is split into
// pooled-extent adaptive bins (floor/ceil boundaries, so neighboring bins
// may differ by one element), and each bin keeps its maximum.
//
// Input shape:  [batch, channels, depth, height, width]
// Rois shape:   [regions, 7], rows (batchIndex, x1, y1, z1, x2, y2, z2)
// Output shape: [regions, channels, Pd, Ph, Pw]
//
// Region coordinates are given in the original space: x/y scale by
// spatialScale and z by depthScale before use, then round to nearest.
// Inverted boxes clamp to one element per axis; bins that end up empty
// after clamping to the volume produce output 0 and argmax -1.
//
// The second return value holds one argmax entry per output element: the
// flat in-volume coordinate (depth*H*W + height*W + width) of the element
// that produced the maximum. The max scan runs depth, then height, then
// width, with strict greater-than comparison, so ties keep the first
// element in that order. The backward pass depends on this exact contract.
//
// Region batch indices must reference valid batch slots and the pooled
// extents must be strictly positive; both are caller-owed invariants.
func (cpu *CPUBackend) ROIPool3D(input, rois *tensor.RawTensor,
	pooledD, pooledH, pooledW int, spatialScale, depthScale float64) (*tensor.RawTensor, []int) {
	inputShape := input.Shape()
	if len(inputShape) != 5 {
		panic(fmt.Sprintf("roipool3d: expected 5D input [N,C,D,H,W], got %dD", len(inputShape)))
	}
	roisShape := rois.Shape()
	if len(roisShape) != 2 || roisShape[1] != roi.Fields {
		panic(fmt.Sprintf("roipool3d: expected rois shape [R,%d], got %v", roi.Fields, roisShape))
	}
	if rois.DType() != input.DType() {
		panic(fmt.Sprintf("roipool3d: rois dtype %s does not match input dtype %s",
			rois.DType(), input.DType()))
	}

	C := inputShape[1]
	D := inputShape[2]
	H := inputShape[3]
	W := inputShape[4]
	numRois := roisShape[0]

	outShape := tensor.Shape{numRois, C, pooledD, pooledH, pooledW}
	output, err := tensor.NewRaw(outShape, input.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("roipool3d: failed to create output: %v", err))
	}
	argmax := make([]int, outShape.NumElements())

	klog.V(2).Infof("roipool3d: forward %d regions over %v, pooled %dx%dx%d (scale xy=%g z=%g)",
		numRois, inputShape, pooledD, pooledH, pooledW, spatialScale, depthScale)

	// Dispatch to type-specific implementation
	switch input.DType() {
	case tensor.Float32:
		roipool3dFloat32(output, input, rois, argmax,
			C, D, H, W, pooledD, pooledH, pooledW, spatialScale, depthScale, cpu.par)
	case tensor.Float64:
		roipool3dFloat64(output, input, rois, argmax,
			C, D, H, W, pooledD, pooledH, pooledW, spatialScale, depthScale, cpu.par)
	case tensor.Float16:
		roipool3dFloat16(output, input, rois, argmax,
			C, D, H, W, pooledD, pooledH, pooledW, spatialScale, depthScale, cpu.par)
	default:
		panic(fmt.Sprintf("roipool3d: unsupported dtype %v", input.DType()))
	}

	return output, argmax
}

// roipool3dFloat32 performs ROI max pooling for float32 tensors.
// One invocation of the plane closure owns one (region, channel) output
// plane; no two invocations write the same address.
func roipool3dFloat32(output, input, rois *tensor.RawTensor, argmax []int,
	C, D, H, W, Pd, Ph, Pw int, scaleXY, scaleZ float64, cfg parallel.Config) {
	inputData := input.AsFloat32()
	outputData := output.AsFloat32()
	roiData := rois.AsFloat32()
	numRois := rois.Shape()[0]

	parallel.ForBatch(numRois, C, func(n, c int) {
		var coords [roi.Fields]float64
		for j, v := range roiData[n*roi.Fields : (n+1)*roi.Fields] {
			coords[j] = float64(v)
		}
		box := scaleRegion(coords, scaleXY, scaleZ)

		binD := float64(box.extentD) / float64(Pd)
		binH := float64(box.extentH) / float64(Ph)
		binW := float64(box.extentW) / float64(Pw)

		// Pre-slice channel plane: eliminates (batch*C+c)*D*H*W bounds check
		channelOffset := (box.batch*C + c) * D * H * W
		channelData := inputData[channelOffset : channelOffset+D*H*W]
		outOffset := (n*C + c) * Pd * Ph * Pw

		for pd := 0; pd < Pd; pd++ {
			dStart := clampInt(box.startD+int(math.Floor(float64(pd)*binD)), 0, D)
			dEnd := clampInt(box.startD+int(math.Ceil(float64(pd+1)*binD)), 0, D)

			for ph := 0; ph < Ph; ph++ {
				hStart := clampInt(box.startH+int(math.Floor(float64(ph)*binH)), 0, H)
				hEnd := clampInt(box.startH+int(math.Ceil(float64(ph+1)*binH)), 0, H)

				for pw := 0; pw < Pw; pw++ {
					wStart := clampInt(box.startW+int(math.Floor(float64(pw)*binW)), 0, W)
					wEnd := clampInt(box.startW+int(math.Ceil(float64(pw+1)*binW)), 0, W)

					outIdx := outOffset + (pd*Ph+ph)*Pw + pw
					if dEnd <= dStart || hEnd <= hStart || wEnd <= wStart {
						// Empty bin after clamping.
						outputData[outIdx] = 0
						argmax[outIdx] = -1
						continue
					}

					maxVal := float32(-math.MaxFloat32)
					maxPos := -1

					for d := dStart; d < dEnd; d++ {
						for h := hStart; h < hEnd; h++ {
							// Pre-slice row: eliminates (d*H+h)*W bounds check
							rowStart := (d*H + h) * W
							rowData := channelData[rowStart : rowStart+W]

							for w := wStart; w < wEnd; w++ {
								// Strict > keeps the first element on ties.
								if rowData[w] > maxVal {
									maxVal = rowData[w]
									maxPos = flatIndex(d, h, w, H, W)
								}
							}
						}
					}

					outputData[outIdx] = maxVal
					argmax[outIdx] = maxPos
				}
			}
		}
	}, cfg)
}

// roipool3dFloat64 performs ROI max pooling for float64 tensors.
func roipool3dFloat64(output, input, rois *tensor.RawTensor, argmax []int,
	C, D, H, W, Pd, Ph, Pw int, scaleXY, scaleZ float64, cfg parallel.Config) {
	inputData := input.AsFloat64()
	outputData := output.AsFloat64()
	roiData := rois.AsFloat64()
	numRois := rois.Shape()[0]

	parallel.ForBatch(numRois, C, func(n, c int) {
		var coords [roi.Fields]float64
		copy(coords[:], roiData[n*roi.Fields:(n+1)*roi.Fields])
		box := scaleRegion(coords, scaleXY, scaleZ)

		binD := float64(box.extentD) / float64(Pd)
		binH := float64(box.extentH) / float64(Ph)
		binW := float64(box.extentW) / float64(Pw)

		channelOffset := (box.batch*C + c) * D * H * W
		channelData := inputData[channelOffset : channelOffset+D*H*W]
		outOffset := (n*C + c) * Pd * Ph * Pw

		for pd := 0; pd < Pd; pd++ {
			dStart := clampInt(box.startD+int(math.Floor(float64(pd)*binD)), 0, D)
			dEnd := clampInt(box.startD+int(math.Ceil(float64(pd+1)*binD)), 0, D)

			for ph := 0; ph < Ph; ph++ {
				hStart := clampInt(box.startH+int(math.Floor(float64(ph)*binH)), 0, H)
				hEnd := clampInt(box.startH+int(math.Ceil(float64(ph+1)*binH)), 0, H)

				for pw := 0; pw < Pw; pw++ {
					wStart := clampInt(box.startW+int(math.Floor(float64(pw)*binW)), 0, W)
					wEnd := clampInt(box.startW+int(math.Ceil(float64(pw+1)*binW)), 0, W)

					outIdx := outOffset + (pd*Ph+ph)*Pw + pw
					if dEnd <= dStart || hEnd <= hStart || wEnd <= wStart {
						outputData[outIdx] = 0
						argmax[outIdx] = -1
						continue
					}

					maxVal := -math.MaxFloat64
					maxPos := -1

					for d := dStart; d < dEnd; d++ {
						for h := hStart; h < hEnd; h++ {
							rowStart := (d*H + h) * W
							rowData := channelData[rowStart : rowStart+W]

							for w := wStart; w < wEnd; w++ {
								if rowData[w] > maxVal {
									maxVal = rowData[w]
									maxPos = flatIndex(d, h, w, H, W)
								}
							}
						}
					}

					outputData[outIdx] = maxVal
					argmax[outIdx] = maxPos
				}
			}
		}
	}, cfg)
}

// roipool3dFloat16 performs ROI max pooling for float16 tensors.
// Comparison runs in float32; only storage is half precision.
func roipool3dFloat16(output, input, rois *tensor.RawTensor, argmax []int,
	C, D, H, W, Pd, Ph, Pw int, scaleXY, scaleZ float64, cfg parallel.Config) {
	inputData := input.AsFloat16()
	outputData := output.AsFloat16()
	roiData := rois.AsFloat16()
	numRois := rois.Shape()[0]

	parallel.ForBatch(numRois, C, func(n, c int) {
		var coords [roi.Fields]float64
		for j, v := range roiData[n*roi.Fields : (n+1)*roi.Fields] {
			coords[j] = float64(v.Float32())
		}
		box := scaleRegion(coords, scaleXY, scaleZ)

		binD := float64(box.extentD) / float64(Pd)
		binH := float64(box.extentH) / float64(Ph)
		binW := float64(box.extentW) / float64(Pw)

		channelOffset := (box.batch*C + c) * D * H * W
		channelData := inputData[channelOffset : channelOffset+D*H*W]
		outOffset := (n*C + c) * Pd * Ph * Pw

		for pd := 0; pd < Pd; pd++ {
			dStart := clampInt(box.startD+int(math.Floor(float64(pd)*binD)), 0, D)
			dEnd := clampInt(box.startD+int(math.Ceil(float64(pd+1)*binD)), 0, D)

			for ph := 0; ph < Ph; ph++ {
				hStart := clampInt(box.startH+int(math.Floor(float64(ph)*binH)), 0, H)
				hEnd := clampInt(box.startH+int(math.Ceil(float64(ph+1)*binH)), 0, H)

				for pw := 0; pw < Pw; pw++ {
					wStart := clampInt(box.startW+int(math.Floor(float64(pw)*binW)), 0, W)
					wEnd := clampInt(box.startW+int(math.Ceil(float64(pw+1)*binW)), 0, W)

					outIdx := outOffset + (pd*Ph+ph)*Pw + pw
					if dEnd <= dStart || hEnd <= hStart || wEnd <= wStart {
						outputData[outIdx] = float16.Fromfloat32(0)
						argmax[outIdx] = -1
						continue
					}

					maxVal := float32(-math.MaxFloat32)
					maxPos := -1

					for d := dStart; d < dEnd; d++ {
						for h := hStart; h < hEnd; h++ {
							rowStart := (d*H + h) * W
							rowData := channelData[rowStart : rowStart+W]

							for w := wStart; w < wEnd; w++ {
								if v := rowData[w].Float32(); v > maxVal {
									maxVal = v
									maxPos = flatIndex(d, h, w, H, W)
								}
							}
						}
					}

					outputData[outIdx] = float16.Fromfloat32(maxVal)
					argmax[outIdx] = maxPos
				}
			}
		}
	}, cfg)
}
