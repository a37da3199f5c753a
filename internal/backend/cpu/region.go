package cpu

import "math"

// regionBox holds a region's scaled, rounded integer bounds. Extents are
// already forced to at least one element per axis, so a malformed box
// (rounded end < start) degenerates to a 1-wide box anchored at start.
type regionBox struct {
	batch                     int
	startW, startH, startD    int
	extentW, extentH, extentD int
}

// scaleRegion maps one packed region row (batchIndex, x1, y1, z1, x2, y2, z2)
// into feature-volume coordinates. In-plane coordinates scale by scaleXY,
// depth by scaleZ; every boundary rounds to the nearest integer.
//
// Forward and backward both derive their bounds from this one function so
// the coordinate convention cannot drift between the two passes.
func scaleRegion(coords [7]float64, scaleXY, scaleZ float64) regionBox {
	startW := roundCoord(coords[1], scaleXY)
	startH := roundCoord(coords[2], scaleXY)
	startD := roundCoord(coords[3], scaleZ)
	endW := roundCoord(coords[4], scaleXY)
	endH := roundCoord(coords[5], scaleXY)
	endD := roundCoord(coords[6], scaleZ)

	return regionBox{
		batch:   int(coords[0]),
		startW:  startW,
		startH:  startH,
		startD:  startD,
		extentW: max(endW-startW+1, 1),
		extentH: max(endH-startH+1, 1),
		extentD: max(endD-startD+1, 1),
	}
}

func roundCoord(v, scale float64) int {
	return int(math.Round(v * scale))
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// flatIndex encodes an in-volume coordinate as d*H*W + h*W + w. The
// forward pass records it per output bin; the backward pass compares
// against it. -1 denotes an empty bin.
func flatIndex(d, h, w, H, W int) int {
	return (d*H+h)*W + w
}
