package imageproc

import (
	"math"

	"flowset/internal/video"
)

// Plane is a single channel float32 image.
type Plane struct {
	Width  int
	Height int
	Pix    []float32
}

func NewPlane(width, height int) *Plane {
	return &Plane{Width: width, Height: height, Pix: make([]float32, width*height)}
}

func (p *Plane) At(x, y int) float32 { return p.Pix[y*p.Width+x] }

func (p *Plane) Set(x, y int, v float32) { p.Pix[y*p.Width+x] = v }

// Clone returns a deep copy of p.
func (p *Plane) Clone() *Plane {
	c := NewPlane(p.Width, p.Height)
	copy(c.Pix, p.Pix)
	return c
}

// Luminance converts an RGB24 frame to an 8-bit-valued grey plane using the
// BT.601 weights, rounding like an integer grey conversion would.
func Luminance(f *video.Frame) *Plane {
	p := NewPlane(f.Width, f.Height)
	LuminanceInto(p, f)
	return p
}

// LuminanceInto is Luminance writing into an existing plane of the same size.
func LuminanceInto(dst *Plane, f *video.Frame) {
	n := f.Width * f.Height
	for i := 0; i < n; i++ {
		r := float64(f.Pix[i*3])
		g := float64(f.Pix[i*3+1])
		b := float64(f.Pix[i*3+2])
		dst.Pix[i] = float32(math.Round(0.299*r + 0.587*g + 0.114*b))
	}
}

// reflect101 maps an out of range index into [0, n) mirroring around the
// edge pixels without repeating them (gfedcb|abcdefgh|gfedcba).
func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*n - 2 - i
		}
	}
	return i
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

// smallGaussian holds the binomial kernels used for small odd sizes when no
// sigma is given.
var smallGaussian = map[int][]float32{
	1: {1},
	3: {0.25, 0.5, 0.25},
	5: {0.0625, 0.25, 0.375, 0.25, 0.0625},
	7: {0.03125, 0.109375, 0.21875, 0.28125, 0.21875, 0.109375, 0.03125},
}

// GaussianKernel returns a normalised 1D kernel of odd size ksize. A
// non-positive sigma is derived from the kernel size.
func GaussianKernel(ksize int, sigma float64) []float32 {
	if k, ok := smallGaussian[ksize]; ok && sigma <= 0 {
		return append([]float32(nil), k...)
	}
	if sigma <= 0 {
		sigma = 0.3*(float64(ksize-1)*0.5-1) + 0.8
	}
	half := ksize / 2
	k := make([]float32, ksize)
	var sum float64
	vals := make([]float64, ksize)
	for i := -half; i <= half; i++ {
		v := math.Exp(-float64(i*i) / (2 * sigma * sigma))
		vals[i+half] = v
		sum += v
	}
	for i, v := range vals {
		k[i] = float32(v / sum)
	}
	return k
}

// GaussianBlur smooths src with a separable ksize x ksize Gaussian.
func GaussianBlur(src *Plane, ksize int, sigma float64) *Plane {
	kernel := GaussianKernel(ksize, sigma)
	half := ksize / 2
	w, h := src.Width, src.Height

	tmp := NewPlane(w, h)
	for y := 0; y < h; y++ {
		row := src.Pix[y*w : (y+1)*w]
		for x := 0; x < w; x++ {
			var s float32
			for k := -half; k <= half; k++ {
				s += kernel[k+half] * row[reflect101(x+k, w)]
			}
			tmp.Pix[y*w+x] = s
		}
	}

	dst := NewPlane(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var s float32
			for k := -half; k <= half; k++ {
				s += kernel[k+half] * tmp.Pix[reflect101(y+k, h)*w+x]
			}
			dst.Pix[y*w+x] = s
		}
	}
	return dst
}

// ResizeBilinear resamples src to width x height with pixel-centre aligned
// bilinear interpolation and replicated borders.
func ResizeBilinear(src *Plane, width, height int) *Plane {
	if width == src.Width && height == src.Height {
		return src.Clone()
	}
	dst := NewPlane(width, height)
	sx := float64(src.Width) / float64(width)
	sy := float64(src.Height) / float64(height)

	for y := 0; y < height; y++ {
		fy := (float64(y)+0.5)*sy - 0.5
		y0 := int(math.Floor(fy))
		wy := float32(fy - float64(y0))
		if fy < 0 {
			y0, wy = 0, 0
		}
		y1 := clampInt(y0+1, 0, src.Height-1)
		y0 = clampInt(y0, 0, src.Height-1)
		for x := 0; x < width; x++ {
			fx := (float64(x)+0.5)*sx - 0.5
			x0 := int(math.Floor(fx))
			wx := float32(fx - float64(x0))
			if fx < 0 {
				x0, wx = 0, 0
			}
			x1 := clampInt(x0+1, 0, src.Width-1)
			x0 = clampInt(x0, 0, src.Width-1)

			top := src.At(x0, y0)*(1-wx) + src.At(x1, y0)*wx
			bottom := src.At(x0, y1)*(1-wx) + src.At(x1, y1)*wx
			dst.Set(x, y, top*(1-wy)+bottom*wy)
		}
	}
	return dst
}
