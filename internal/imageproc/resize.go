package imageproc

import (
	"image"
	"math"

	"golang.org/x/image/draw"
)

// ShortEdgeSize returns the dimensions of a width x height image scaled so
// its shorter edge equals size, with the longer edge rounded to the nearest
// integer.
func ShortEdgeSize(width, height, size int) (int, int) {
	if height < width {
		long := int(math.Round(float64(size) * float64(width) / float64(height)))
		return long, size
	}
	long := int(math.Round(float64(size) * float64(height) / float64(width)))
	return size, long
}

// ResizeShortEdge scales img preserving aspect ratio so that its shorter
// edge equals size, using bilinear interpolation.
func ResizeShortEdge(img image.Image, size int) *image.RGBA {
	b := img.Bounds()
	w, h := ShortEdgeSize(b.Dx(), b.Dy(), size)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
