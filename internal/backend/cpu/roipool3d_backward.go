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

// ROIPool3DBackward computes the input gradient for ROIPool3D.
//
// Gradient routing: each output bin contributed exactly one input element
// (its recorded argmax), so the bin's output gradient flows back to that
// element alone. An input element can be the argmax of bins in several
// overlapping regions at once; contributions are summed.
//
// The accumulation is input-centric: per input element, every region of
// the same batch index whose scaled, rounded box contains the element is
// inverse-mapped to the range of bins that could have selected it, and
// the stored argmax decides which of those bins actually did. rois,
// argmax, and the scale factors must be the ones the forward pass used.
//
// Returns the gradient with shape inputShape, zero everywhere no bin
// selected the element.
func (cpu *CPUBackend) ROIPool3DBackward(gradOutput, rois *tensor.RawTensor, argmax []int,
	inputShape tensor.Shape, pooledD, pooledH, pooledW int,
	spatialScale, depthScale float64) *tensor.RawTensor {
	if len(inputShape) != 5 {
		panic(fmt.Sprintf("roipool3d backward: expected 5D input shape [N,C,D,H,W], got %dD", len(inputShape)))
	}
	gradShape := gradOutput.Shape()
	roisShape := rois.Shape()
	if len(roisShape) != 2 || roisShape[1] != roi.Fields {
		panic(fmt.Sprintf("roipool3d backward: expected rois shape [R,%d], got %v", roi.Fields, roisShape))
	}
	expectedGrad := tensor.Shape{roisShape[0], inputShape[1], pooledD, pooledH, pooledW}
	if !gradShape.Equal(expectedGrad) {
		panic(fmt.Sprintf("roipool3d backward: gradOutput shape %v, want %v", gradShape, expectedGrad))
	}
	if len(argmax) != gradShape.NumElements() {
		panic(fmt.Sprintf("roipool3d backward: argmax length %d != expected %d",
			len(argmax), gradShape.NumElements()))
	}
	if rois.DType() != gradOutput.DType() {
		panic(fmt.Sprintf("roipool3d backward: rois dtype %s does not match gradient dtype %s",
			rois.DType(), gradOutput.DType()))
	}

	N := inputShape[0]
	C := inputShape[1]
	D := inputShape[2]
	H := inputShape[3]
	W := inputShape[4]

	// Zero-initialized by allocation; accumulation below is a true sum.
	inputGrad, err := tensor.NewRaw(inputShape, gradOutput.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("roipool3d backward: failed to create gradient tensor: %v", err))
	}

	klog.V(2).Infof("roipool3d: backward %d regions into %v, pooled %dx%dx%d",
		roisShape[0], inputShape, pooledD, pooledH, pooledW)

	switch gradOutput.DType() {
	case tensor.Float32:
		roipool3dBackwardFloat32(inputGrad, gradOutput, rois, argmax,
			N, C, D, H, W, pooledD, pooledH, pooledW, spatialScale, depthScale, cpu.par)
	case tensor.Float64:
		roipool3dBackwardFloat64(inputGrad, gradOutput, rois, argmax,
			N, C, D, H, W, pooledD, pooledH, pooledW, spatialScale, depthScale, cpu.par)
	case tensor.Float16:
		roipool3dBackwardFloat16(inputGrad, gradOutput, rois, argmax,
			N, C, D, H, W, pooledD, pooledH, pooledW, spatialScale, depthScale, cpu.par)
	default:
		panic(fmt.Sprintf("roipool3d backward: unsupported dtype %v", gradOutput.DType()))
	}

	return inputGrad
}

// roipool3dBackwardFloat32 accumulates gradients for float32 tensors.
// One invocation of the plane closure owns one (batch, channel) gradient
// plane, so the += accumulation needs no synchronization.
func roipool3dBackwardFloat32(inputGrad, gradOutput, rois *tensor.RawTensor, argmax []int,
	N, C, D, H, W, Pd, Ph, Pw int, scaleXY, scaleZ float64, cfg parallel.Config) {
	gradData := inputGrad.AsFloat32()
	outGradData := gradOutput.AsFloat32()
	roiData := rois.AsFloat32()
	numRois := rois.Shape()[0]

	parallel.ForBatch(N, C, func(b, c int) {
		planeOffset := (b*C + c) * D * H * W

		for n := 0; n < numRois; n++ {
			var coords [roi.Fields]float64
			for j, v := range roiData[n*roi.Fields : (n+1)*roi.Fields] {
				coords[j] = float64(v)
			}
			box := scaleRegion(coords, scaleXY, scaleZ)
			if box.batch != b {
				continue
			}

			// Region support clipped to the volume; empty means the region
			// lies entirely outside and contributes nothing.
			dLo := clampInt(box.startD, 0, D)
			dHi := clampInt(box.startD+box.extentD, 0, D)
			hLo := clampInt(box.startH, 0, H)
			hHi := clampInt(box.startH+box.extentH, 0, H)
			wLo := clampInt(box.startW, 0, W)
			wHi := clampInt(box.startW+box.extentW, 0, W)

			binD := float64(box.extentD) / float64(Pd)
			binH := float64(box.extentH) / float64(Ph)
			binW := float64(box.extentW) / float64(Pw)

			outOffset := (n*C + c) * Pd * Ph * Pw

			for d := dLo; d < dHi; d++ {
				// Candidate pooled bins whose forward range covered d.
				pdLo := clampInt(int(math.Floor(float64(d-box.startD)/binD)), 0, Pd)
				pdHi := clampInt(int(math.Ceil(float64(d-box.startD+1)/binD)), 0, Pd)

				for h := hLo; h < hHi; h++ {
					phLo := clampInt(int(math.Floor(float64(h-box.startH)/binH)), 0, Ph)
					phHi := clampInt(int(math.Ceil(float64(h-box.startH+1)/binH)), 0, Ph)

					for w := wLo; w < wHi; w++ {
						pwLo := clampInt(int(math.Floor(float64(w-box.startW)/binW)), 0, Pw)
						pwHi := clampInt(int(math.Ceil(float64(w-box.startW+1)/binW)), 0, Pw)

						flat := flatIndex(d, h, w, H, W)
						var acc float32

						for pd := pdLo; pd < pdHi; pd++ {
							for ph := phLo; ph < phHi; ph++ {
								rowIdx := outOffset + (pd*Ph+ph)*Pw
								for pw := pwLo; pw < pwHi; pw++ {
									if argmax[rowIdx+pw] == flat {
										acc += outGradData[rowIdx+pw]
									}
								}
							}
						}

						gradData[planeOffset+flat] += acc
					}
				}
			}
		}
	}, cfg)
}

// roipool3dBackwardFloat64 accumulates gradients for float64 tensors.
func roipool3dBackwardFloat64(inputGrad, gradOutput, rois *tensor.RawTensor, argmax []int,
	N, C, D, H, W, Pd, Ph, Pw int, scaleXY, scaleZ float64, cfg parallel.Config) {
	gradData := inputGrad.AsFloat64()
	outGradData := gradOutput.AsFloat64()
	roiData := rois.AsFloat64()
	numRois := rois.Shape()[0]

	parallel.ForBatch(N, C, func(b, c int) {
		planeOffset := (b*C + c) * D * H * W

		for n := 0; n < numRois; n++ {
			var coords [roi.Fields]float64
			copy(coords[:], roiData[n*roi.Fields:(n+1)*roi.Fields])
			box := scaleRegion(coords, scaleXY, scaleZ)
			if box.batch != b {
				continue
			}

			dLo := clampInt(box.startD, 0, D)
			dHi := clampInt(box.startD+box.extentD, 0, D)
			hLo := clampInt(box.startH, 0, H)
			hHi := clampInt(box.startH+box.extentH, 0, H)
			wLo := clampInt(box.startW, 0, W)
			wHi := clampInt(box.startW+box.extentW, 0, W)

			binD := float64(box.extentD) / float64(Pd)
			binH := float64(box.extentH) / float64(Ph)
			binW := float64(box.extentW) / float64(Pw)

			outOffset := (n*C + c) * Pd * Ph * Pw

			for d := dLo; d < dHi; d++ {
				pdLo := clampInt(int(math.Floor(float64(d-box.startD)/binD)), 0, Pd)
				pdHi := clampInt(int(math.Ceil(float64(d-box.startD+1)/binD)), 0, Pd)

				for h := hLo; h < hHi; h++ {
					phLo := clampInt(int(math.Floor(float64(h-box.startH)/binH)), 0, Ph)
					phHi := clampInt(int(math.Ceil(float64(h-box.startH+1)/binH)), 0, Ph)

					for w := wLo; w < wHi; w++ {
						pwLo := clampInt(int(math.Floor(float64(w-box.startW)/binW)), 0, Pw)
						pwHi := clampInt(int(math.Ceil(float64(w-box.startW+1)/binW)), 0, Pw)

						flat := flatIndex(d, h, w, H, W)
						var acc float64

						for pd := pdLo; pd < pdHi; pd++ {
							for ph := phLo; ph < phHi; ph++ {
								rowIdx := outOffset + (pd*Ph+ph)*Pw
								for pw := pwLo; pw < pwHi; pw++ {
									if argmax[rowIdx+pw] == flat {
										acc += outGradData[rowIdx+pw]
									}
								}
							}
						}

						gradData[planeOffset+flat] += acc
					}
				}
			}
		}
	}, cfg)
}

// roipool3dBackwardFloat16 accumulates gradients for float16 tensors.
// Accumulation runs in float32; only storage is half precision.
func roipool3dBackwardFloat16(inputGrad, gradOutput, rois *tensor.RawTensor, argmax []int,
	N, C, D, H, W, Pd, Ph, Pw int, scaleXY, scaleZ float64, cfg parallel.Config) {
	gradData := inputGrad.AsFloat16()
	outGradData := gradOutput.AsFloat16()
	roiData := rois.AsFloat16()
	numRois := rois.Shape()[0]

	parallel.ForBatch(N, C, func(b, c int) {
		planeOffset := (b*C + c) * D * H * W

		for n := 0; n < numRois; n++ {
			var coords [roi.Fields]float64
			for j, v := range roiData[n*roi.Fields : (n+1)*roi.Fields] {
				coords[j] = float64(v.Float32())
			}
			box := scaleRegion(coords, scaleXY, scaleZ)
			if box.batch != b {
				continue
			}

			dLo := clampInt(box.startD, 0, D)
			dHi := clampInt(box.startD+box.extentD, 0, D)
			hLo := clampInt(box.startH, 0, H)
			hHi := clampInt(box.startH+box.extentH, 0, H)
			wLo := clampInt(box.startW, 0, W)
			wHi := clampInt(box.startW+box.extentW, 0, W)

			binD := float64(box.extentD) / float64(Pd)
			binH := float64(box.extentH) / float64(Ph)
			binW := float64(box.extentW) / float64(Pw)

			outOffset := (n*C + c) * Pd * Ph * Pw

			for d := dLo; d < dHi; d++ {
				pdLo := clampInt(int(math.Floor(float64(d-box.startD)/binD)), 0, Pd)
				pdHi := clampInt(int(math.Ceil(float64(d-box.startD+1)/binD)), 0, Pd)

				for h := hLo; h < hHi; h++ {
					phLo := clampInt(int(math.Floor(float64(h-box.startH)/binH)), 0, Ph)
					phHi := clampInt(int(math.Ceil(float64(h-box.startH+1)/binH)), 0, Ph)

					for w := wLo; w < wHi; w++ {
						pwLo := clampInt(int(math.Floor(float64(w-box.startW)/binW)), 0, Pw)
						pwHi := clampInt(int(math.Ceil(float64(w-box.startW+1)/binW)), 0, Pw)

						flat := flatIndex(d, h, w, H, W)
						var acc float32

						for pd := pdLo; pd < pdHi; pd++ {
							for ph := phLo; ph < phHi; ph++ {
								rowIdx := outOffset + (pd*Ph+ph)*Pw
								for pw := pwLo; pw < pwHi; pw++ {
									if argmax[rowIdx+pw] == flat {
										acc += outGradData[rowIdx+pw].Float32()
									}
								}
							}
						}

						if acc != 0 {
							idx := planeOffset + flat
							gradData[idx] = float16.Fromfloat32(gradData[idx].Float32() + acc)
						}
					}
				}
			}
		}
	}, cfg)
}
