// Package motion scores how much two frames of the capture surface differ.
package motion

import (
	"fmt"
	"image"
)

// DefaultStride is the pixel step used by Score.
const DefaultStride = 10

// Score compares every DefaultStride-th pixel of prev and cur.
func Score(prev, cur *image.RGBA) float64 {
	return ScoreStride(prev, cur, DefaultStride)
}

// ScoreStride returns the mean of |dR|+|dG|+|dB| over the pixels at
// indices 0, stride, 2*stride, ... in row-major order. Alpha is ignored.
// The result ranges from 0 to 765.
//
// Both frames must come from the same capture surface; mismatched sizes
// panic.
func ScoreStride(prev, cur *image.RGBA, stride int) float64 {
	pb, cb := prev.Bounds(), cur.Bounds()
	w, h := pb.Dx(), pb.Dy()
	if w != cb.Dx() || h != cb.Dy() {
		panic(fmt.Sprintf("motion: frame size mismatch %dx%d vs %dx%d", w, h, cb.Dx(), cb.Dy()))
	}
	if stride <= 0 {
		stride = 1
	}
	n := w * h
	if n == 0 {
		return 0
	}

	var diff, samples int
	for i := 0; i < n; i += stride {
		x, y := i%w, i/w
		po := y*prev.Stride + x*4
		co := y*cur.Stride + x*4
		diff += absDiff(prev.Pix[po], cur.Pix[co])
		diff += absDiff(prev.Pix[po+1], cur.Pix[co+1])
		diff += absDiff(prev.Pix[po+2], cur.Pix[co+2])
		samples++
	}
	return float64(diff) / float64(samples)
}

func absDiff(a, b byte) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}
