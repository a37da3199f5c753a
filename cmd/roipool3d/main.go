// Package main provides the roipool3d CLI.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"k8s.io/klog/v2"

	"github.com/born-ml/roipool3d/backend/cpu"
	"github.com/born-ml/roipool3d/roi"
	"github.com/born-ml/roipool3d/tensor"
)

const version = "v0.1.0-dev"

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	defer klog.Flush()

	switch flag.Arg(0) {
	case "version":
		fmt.Printf("roipool3d %s\n", version)
	case "demo":
		runDemo()
	case "bench":
		runBench()
	default:
		fmt.Println("roipool3d - 3D region-of-interest max pooling for Go")
		fmt.Printf("Version: %s\n\n", version)
		fmt.Println("Commands:")
		fmt.Println("  version    Show version")
		fmt.Println("  demo       Pool a 4x4x4 volume into a 2x2x2 grid")
		fmt.Println("  bench      Time forward+backward on a realistic workload")
	}
}

// runDemo pools one whole-volume region of a sequential 4x4x4 volume.
func runDemo() {
	backend := cpu.New()

	data := make([]float32, 64)
	for i := range data {
		data[i] = float32(i + 1)
	}
	volume, err := tensor.FromSlice[float32](data, tensor.Shape{1, 1, 4, 4, 4}, backend)
	if err != nil {
		klog.Errorf("demo: %v", err)
		os.Exit(1)
	}

	regions := []roi.Region{{BatchIndex: 0, X2: 3, Y2: 3, Z2: 3}}
	rois, err := roi.Pack(regions, tensor.Float32, tensor.CPU)
	if err != nil {
		klog.Errorf("demo: %v", err)
		os.Exit(1)
	}

	output, argmax := backend.ROIPool3D(volume.Raw(), rois, 2, 2, 2, 1.0, 1.0)

	fmt.Println("volume 1x1x4x4x4 (values 1..64), one whole-volume region, pooled 2x2x2:")
	outData := output.AsFloat32()
	for i, v := range outData {
		fmt.Printf("  bin %d: max=%.0f (flat index %d)\n", i, v, argmax[i])
	}
}

// runBench times both operators on a detection-sized workload.
func runBench() {
	backend := cpu.New()

	const (
		batch    = 2
		channels = 64
		depth    = 16
		height   = 32
		width    = 32
		numRois  = 128
	)

	volume := tensor.Randn[float32](tensor.Shape{batch, channels, depth, height, width}, backend)

	regions := make([]roi.Region, numRois)
	for i := range regions {
		regions[i] = roi.Region{
			BatchIndex: i % batch,
			X1:         float32(i % 8), Y1: float32(i % 8), Z1: float32(i % 4),
			X2: float32(i%8 + 16), Y2: float32(i%8 + 16), Z2: float32(i%4 + 8),
		}
	}
	rois, err := roi.Pack(regions, tensor.Float32, tensor.CPU)
	if err != nil {
		klog.Errorf("bench: %v", err)
		os.Exit(1)
	}

	start := time.Now()
	output, argmax := backend.ROIPool3D(volume.Raw(), rois, 4, 4, 4, 1.0, 1.0)
	fwd := time.Since(start)

	grad := tensor.Ones[float32](output.Shape(), backend)
	start = time.Now()
	backend.ROIPool3DBackward(grad.Raw(), rois, argmax, volume.Shape(), 4, 4, 4, 1.0, 1.0)
	bwd := time.Since(start)

	klog.Infof("bench: %d regions, volume %v", numRois, volume.Shape())
	fmt.Printf("forward:  %v\n", fwd)
	fmt.Printf("backward: %v\n", bwd)
}
