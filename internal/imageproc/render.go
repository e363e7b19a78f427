package imageproc

import (
	"image"
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// hueByte maps an angle in radians [0, 2pi) to the 8-bit hue range 0-179,
// i.e. degrees halved so a full turn fits in a byte.
func hueByte(angle float64) uint8 {
	deg := angle * 180 / math.Pi
	if deg >= 360.0 {
		deg = 0.0
	}
	return uint8(deg / 2.0)
}

// CartToPolar returns the magnitude and angle (radians, [0, 2pi)) of a
// displacement.
func CartToPolar(dx, dy float32) (mag, angle float64) {
	x, y := float64(dx), float64(dy)
	mag = math.Hypot(x, y)
	angle = math.Atan2(y, x)
	if angle < 0 {
		angle += 2 * math.Pi
	}
	return mag, angle
}

// RenderFlow encodes a motion field as colour: direction selects the hue,
// saturation is full and the min-max normalised magnitude is the value.
// A field with constant magnitude renders black.
func RenderFlow(dx, dy *Plane) *image.RGBA {
	w, h := dx.Width, dx.Height
	n := w * h
	mags := make([]float64, n)
	hues := make([]uint8, n)

	minMag, maxMag := math.MaxFloat64, -math.MaxFloat64
	for i := 0; i < n; i++ {
		mag, ang := CartToPolar(dx.Pix[i], dy.Pix[i])
		mags[i] = mag
		hues[i] = hueByte(ang)
		minMag = math.Min(minMag, mag)
		maxMag = math.Max(maxMag, mag)
	}

	scale := 0.0
	if maxMag-minMag > math.SmallestNonzeroFloat32 {
		scale = 255.0 / (maxMag - minMag)
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < n; i++ {
		v := uint8((mags[i] - minMag) * scale)
		r, g, b := colorful.Hsv(float64(hues[i])*2, 1, float64(v)/255.0).RGB255()
		img.SetRGBA(i%w, i/w, color.RGBA{R: r, G: g, B: b, A: 255})
	}
	return img
}
