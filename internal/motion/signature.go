package motion

import "image"

// SignatureGrid is the cell count per side used for archived frame signatures.
const SignatureGrid = 4

// Signature splits img into grid x grid cells and returns the mean
// luminance of each cell scaled to [0,1], row by row. It is a coarse
// fingerprint that lets archived findings be searched by visual similarity.
func Signature(img *image.RGBA, grid int) []float32 {
	if grid <= 0 {
		grid = SignatureGrid
	}
	out := make([]float32, grid*grid)
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return out
	}

	sums := make([]uint64, grid*grid)
	counts := make([]uint64, grid*grid)
	for y := 0; y < h; y++ {
		cy := y * grid / h
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := 0; x < w; x++ {
			cx := x * grid / w
			i := x * 4
			// ITU-R BT.601 weights in fixed point
			lum := (77*uint64(row[i]) + 150*uint64(row[i+1]) + 29*uint64(row[i+2])) >> 8
			cell := cy*grid + cx
			sums[cell] += lum
			counts[cell]++
		}
	}
	for i := range out {
		if counts[i] > 0 {
			out[i] = float32(sums[i]) / float32(counts[i]) / 255
		}
	}
	return out
}
