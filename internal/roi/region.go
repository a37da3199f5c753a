// Package roi defines the region-of-interest record consumed by the
// pooling kernels.
package roi

import (
	"github.com/pkg/errors"
	"github.com/x448/float16"

	"github.com/born-ml/roipool3d/internal/tensor"
)

// Fields is the number of values per packed region row:
// (batchIndex, x1, y1, z1, x2, y2, z2).
const Fields = 7

// Region is an axis-aligned sub-volume of a feature map, specified in the
// original (unscaled) coordinate space and associated with one batch
// element. Coordinates are inclusive on both ends after scaling and
// rounding; malformed boxes (end < start) are absorbed by the kernels'
// clamping rules, never rejected.
type Region struct {
	BatchIndex int

	X1, Y1, Z1 float32
	X2, Y2, Z2 float32
}

// Pack copies regions into the flat [R, 7] tensor layout the kernels
// consume. The tensor dtype must match the feature volume's dtype.
func Pack(regions []Region, dtype tensor.DataType, device tensor.Device) (*tensor.RawTensor, error) {
	if len(regions) == 0 {
		return nil, errors.New("roi: empty region list")
	}

	raw, err := tensor.NewRaw(tensor.Shape{len(regions), Fields}, dtype, device)
	if err != nil {
		return nil, errors.Wrap(err, "roi: allocating region tensor")
	}

	switch dtype {
	case tensor.Float32:
		data := raw.AsFloat32()
		for i, r := range regions {
			copy(data[i*Fields:], []float32{
				float32(r.BatchIndex), r.X1, r.Y1, r.Z1, r.X2, r.Y2, r.Z2,
			})
		}
	case tensor.Float64:
		data := raw.AsFloat64()
		for i, r := range regions {
			copy(data[i*Fields:], []float64{
				float64(r.BatchIndex),
				float64(r.X1), float64(r.Y1), float64(r.Z1),
				float64(r.X2), float64(r.Y2), float64(r.Z2),
			})
		}
	case tensor.Float16:
		data := raw.AsFloat16()
		for i, r := range regions {
			row := [Fields]float32{
				float32(r.BatchIndex), r.X1, r.Y1, r.Z1, r.X2, r.Y2, r.Z2,
			}
			for j, v := range row {
				data[i*Fields+j] = float16.Fromfloat32(v)
			}
		}
	default:
		return nil, errors.Errorf("roi: unsupported dtype %s", dtype)
	}

	return raw, nil
}

// Validate checks the caller-owed invariants the kernels themselves leave
// unchecked: batch indices must reference valid batch slots. Geometric
// malformation (inverted or out-of-bounds boxes) is deliberately NOT an
// error; the kernels normalize it by clamping.
func Validate(regions []Region, batchSize int) error {
	if batchSize <= 0 {
		return errors.Errorf("roi: invalid batch size %d", batchSize)
	}
	for i, r := range regions {
		if r.BatchIndex < 0 || r.BatchIndex >= batchSize {
			return errors.Errorf("roi: region %d references batch %d, want [0, %d)",
				i, r.BatchIndex, batchSize)
		}
	}
	return nil
}

// ValidatePooledShape checks that every pooled extent is strictly
// positive. The kernels divide by these extents without checking.
func ValidatePooledShape(pooledD, pooledH, pooledW int) error {
	if pooledD <= 0 || pooledH <= 0 || pooledW <= 0 {
		return errors.Errorf("roi: pooled shape %dx%dx%d must be strictly positive",
			pooledD, pooledH, pooledW)
	}
	return nil
}
