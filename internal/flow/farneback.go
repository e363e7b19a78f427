package flow

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"flowset/internal/imageproc"
)

// Params configures the Farneback dense flow estimator.
type Params struct {
	PyrScale   float64 // image scale between pyramid levels, < 1
	Levels     int     // number of pyramid levels above the base image
	WinSize    int     // averaging window size
	Iterations int     // iterations per pyramid level
	PolyN      int     // pixel neighbourhood of the polynomial expansion
	PolySigma  float64 // Gaussian sigma smoothing the polynomial basis
}

// DefaultParams are the constants the dataset is built with.
var DefaultParams = Params{
	PyrScale:   0.5,
	Levels:     3,
	WinSize:    12,
	Iterations: 3,
	PolyN:      5,
	PolySigma:  1.2,
}

// minPyramidSize stops the pyramid before a level gets smaller than this.
const minPyramidSize = 32

// Farneback estimates dense optical flow with polynomial expansion
// (Farnebäck, "Two-Frame Motion Estimation Based on Polynomial Expansion").
// It is safe for concurrent use once built.
type Farneback struct {
	params Params

	// basis weights indexed by offset+PolyN
	g, xg, xxg []float32

	ig11, ig03, ig33, ig55 float64
}

// NewFarneback validates params and precomputes the expansion basis.
func NewFarneback(params Params) (*Farneback, error) {
	if params.PyrScale <= 0 || params.PyrScale >= 1 {
		return nil, fmt.Errorf("pyramid scale must be in (0, 1), got %v", params.PyrScale)
	}
	if params.Levels < 0 || params.WinSize < 1 || params.Iterations < 1 || params.PolyN < 1 {
		return nil, fmt.Errorf("invalid flow params %+v", params)
	}
	fb := &Farneback{params: params}
	if err := fb.prepareGaussian(); err != nil {
		return nil, err
	}
	return fb, nil
}

func (fb *Farneback) prepareGaussian() error {
	n := fb.params.PolyN
	sigma := fb.params.PolySigma
	if sigma < math.SmallestNonzeroFloat32 {
		sigma = float64(n) * 0.3
	}

	fb.g = make([]float32, 2*n+1)
	fb.xg = make([]float32, 2*n+1)
	fb.xxg = make([]float32, 2*n+1)

	s := 0.0
	gd := make([]float64, 2*n+1)
	for x := -n; x <= n; x++ {
		gd[x+n] = math.Exp(-float64(x*x) / (2 * sigma * sigma))
		s += gd[x+n]
	}
	for x := -n; x <= n; x++ {
		v := float32(gd[x+n] / s)
		fb.g[x+n] = v
		fb.xg[x+n] = float32(x) * v
		fb.xxg[x+n] = float32(x*x) * v
	}

	// Gram matrix of the basis {1, x, y, x^2, y^2, xy} under the Gaussian
	// applicability; only a handful of distinct entries are non-zero.
	var g00, g11, g33, g55 float64
	for y := -n; y <= n; y++ {
		for x := -n; x <= n; x++ {
			w := float64(fb.g[y+n]) * float64(fb.g[x+n])
			fx, fy := float64(x), float64(y)
			g00 += w
			g11 += w * fx * fx
			g33 += w * fx * fx * fx * fx
			g55 += w * fx * fx * fy * fy
		}
	}
	G := mat.NewSymDense(6, nil)
	G.SetSym(0, 0, g00)
	G.SetSym(1, 1, g11)
	G.SetSym(2, 2, g11)
	G.SetSym(0, 3, g11)
	G.SetSym(0, 4, g11)
	G.SetSym(3, 3, g33)
	G.SetSym(4, 4, g33)
	G.SetSym(3, 4, g55)
	G.SetSym(5, 5, g55)

	var chol mat.Cholesky
	if ok := chol.Factorize(G); !ok {
		return fmt.Errorf("polynomial basis matrix is not positive definite (n=%d sigma=%v)", n, sigma)
	}
	var inv mat.SymDense
	if err := chol.InverseTo(&inv); err != nil {
		return fmt.Errorf("invert polynomial basis matrix: %w", err)
	}
	fb.ig11 = inv.At(1, 1)
	fb.ig03 = inv.At(0, 3)
	fb.ig33 = inv.At(3, 3)
	fb.ig55 = inv.At(5, 5)
	return nil
}

// polyExp approximates the neighbourhood of every pixel by a quadratic
// polynomial. The result holds 5 coefficients per pixel in the order
// (y, x, y^2, x^2, xy); the constant term is not needed.
func (fb *Farneback) polyExp(src *imageproc.Plane) []float32 {
	n := fb.params.PolyN
	w, h := src.Width, src.Height
	dst := make([]float32, w*h*5)
	row := make([]float32, w*3)

	for y := 0; y < h; y++ {
		// vertical part of the separable convolution
		srow := src.Pix[y*w : (y+1)*w]
		g0 := fb.g[n]
		for x := 0; x < w; x++ {
			row[x*3] = srow[x] * g0
			row[x*3+1] = 0
			row[x*3+2] = 0
		}
		for k := 1; k <= n; k++ {
			g0, g1, g2 := fb.g[n+k], fb.xg[n+k], fb.xxg[n+k]
			up := src.Pix[max(y-k, 0)*w:]
			down := src.Pix[min(y+k, h-1)*w:]
			for x := 0; x < w; x++ {
				p := up[x] + down[x]
				row[x*3] += g0 * p
				row[x*3+1] += g1 * (down[x] - up[x])
				row[x*3+2] += g2 * p
			}
		}

		// horizontal part, borders replicated
		for x := 0; x < w; x++ {
			g0 := float64(fb.g[n])
			b1 := float64(row[x*3]) * g0
			b3 := float64(row[x*3+1]) * g0
			b5 := float64(row[x*3+2]) * g0
			var b2, b4, b6 float64
			for k := 1; k <= n; k++ {
				l := max(x-k, 0) * 3
				r := min(x+k, w-1) * 3
				gk := float64(fb.g[n+k])
				xgk := float64(fb.xg[n+k])
				tg := float64(row[r] + row[l])
				b1 += tg * gk
				b4 += tg * float64(fb.xxg[n+k])
				b2 += float64(row[r]-row[l]) * xgk
				b3 += float64(row[r+1]+row[l+1]) * gk
				b6 += float64(row[r+1]-row[l+1]) * xgk
				b5 += float64(row[r+2]+row[l+2]) * gk
			}
			d := dst[(y*w+x)*5:]
			d[0] = float32(b3 * fb.ig11)
			d[1] = float32(b2 * fb.ig11)
			d[2] = float32(b1*fb.ig03 + b5*fb.ig33)
			d[3] = float32(b1*fb.ig03 + b4*fb.ig33)
			d[4] = float32(b6 * fb.ig55)
		}
	}
	return dst
}

var borderWeights = [5]float32{0.14, 0.14, 0.4472, 0.4472, 0.4472}

// updateMatrices builds, for every pixel, the normal equations relating the
// two polynomial expansions under the current displacement estimate.
func updateMatrices(r0, r1 []float32, flow *Field, m []float32) {
	const border = len(borderWeights)
	w, h := flow.Width, flow.Height

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			dx, dy := flow.Flow[i*2], flow.Flow[i*2+1]
			fx, fy := float32(x)+dx, float32(y)+dy
			inside := fx >= 0 && fy >= 0 && fx <= float32(w-1) && fy <= float32(h-1)
			x1 := int(math.Floor(float64(fx)))
			y1 := int(math.Floor(float64(fy)))
			fx -= float32(x1)
			fy -= float32(y1)
			p0 := r0[i*5:]

			var r2, r3, r4, r5, r6 float32
			if inside {
				// neighbours clamp so points on the last row/column still sample
				x2 := min(x1+1, w-1)
				y2 := min(y1+1, h-1)
				a00 := (1 - fx) * (1 - fy)
				a01 := fx * (1 - fy)
				a10 := (1 - fx) * fy
				a11 := fx * fy
				q00 := r1[(y1*w+x1)*5:]
				q01 := r1[(y1*w+x2)*5:]
				q10 := r1[(y2*w+x1)*5:]
				q11 := r1[(y2*w+x2)*5:]
				interp := func(c int) float32 {
					return a00*q00[c] + a01*q01[c] + a10*q10[c] + a11*q11[c]
				}
				r2, r3 = interp(0), interp(1)
				r4 = (p0[2] + interp(2)) * 0.5
				r5 = (p0[3] + interp(3)) * 0.5
				r6 = (p0[4] + interp(4)) * 0.25
			} else {
				r4 = p0[2]
				r5 = p0[3]
				r6 = p0[4] * 0.5
			}

			r2 = (p0[0] - r2) * 0.5
			r3 = (p0[1] - r3) * 0.5
			r2 += r4*dy + r6*dx
			r3 += r6*dy + r5*dx

			if x < border || x >= w-border || y < border || y >= h-border {
				scale := float32(1)
				if x < border {
					scale *= borderWeights[x]
				}
				if x >= w-border {
					scale *= borderWeights[w-x-1]
				}
				if y < border {
					scale *= borderWeights[y]
				}
				if y >= h-border {
					scale *= borderWeights[h-y-1]
				}
				r2 *= scale
				r3 *= scale
				r4 *= scale
				r5 *= scale
				r6 *= scale
			}

			o := m[i*5:]
			o[0] = r4*r4 + r6*r6
			o[1] = (r4 + r5) * r6
			o[2] = r5*r5 + r6*r6
			o[3] = r4*r2 + r6*r3
			o[4] = r6*r2 + r5*r3
		}
	}
}

// updateFlowBlur box-filters the normal equations over the averaging window
// and solves the 2x2 system of every pixel for a new displacement.
func (fb *Farneback) updateFlowBlur(r0, r1 []float32, flow *Field, m []float32, update bool) {
	w, h := flow.Width, flow.Height
	half := fb.params.WinSize / 2
	scale := 1.0 / float64(fb.params.WinSize*fb.params.WinSize)

	// vertical running sums, rows replicated at the borders
	vsum := make([]float64, w*5)
	for k := -half; k <= half; k++ {
		src := m[clampRow(k, h)*w*5:]
		for x := 0; x < w*5; x++ {
			vsum[x] += float64(src[x])
		}
	}

	var hsum [5]float64
	for y := 0; y < h; y++ {
		if y > 0 {
			add := m[clampRow(y+half, h)*w*5:]
			sub := m[clampRow(y-half-1, h)*w*5:]
			for x := 0; x < w*5; x++ {
				vsum[x] += float64(add[x] - sub[x])
			}
		}

		hsum = [5]float64{}
		for k := -half; k <= half; k++ {
			c := clampRow(k, w) * 5
			for j := 0; j < 5; j++ {
				hsum[j] += vsum[c+j]
			}
		}
		for x := 0; x < w; x++ {
			if x > 0 {
				a := clampRow(x+half, w) * 5
				s := clampRow(x-half-1, w) * 5
				for j := 0; j < 5; j++ {
					hsum[j] += vsum[a+j] - vsum[s+j]
				}
			}
			g11 := hsum[0] * scale
			g12 := hsum[1] * scale
			g22 := hsum[2] * scale
			h1 := hsum[3] * scale
			h2 := hsum[4] * scale

			idet := 1.0 / (g11*g22 - g12*g12 + 1e-3)
			i := (y*w + x) * 2
			flow.Flow[i] = float32((g11*h2 - g12*h1) * idet)
			flow.Flow[i+1] = float32((g22*h1 - g12*h2) * idet)
		}
	}

	if update {
		updateMatrices(r0, r1, flow, m)
	}
}

func clampRow(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// Calc computes the flow field mapping prev onto next: for every pixel,
// prev(x, y) ~ next(x+dx, y+dy). Both planes must have the same size.
func (fb *Farneback) Calc(prev, next *imageproc.Plane) *Field {
	p := fb.params
	width, height := prev.Width, prev.Height

	levels := 0
	scale := 1.0
	for ; levels < p.Levels; levels++ {
		scale *= p.PyrScale
		if float64(width)*scale < minPyramidSize || float64(height)*scale < minPyramidSize {
			break
		}
	}

	var prevFlow *Field
	for k := levels; k >= 0; k-- {
		scale := math.Pow(p.PyrScale, float64(k))
		sigma := (1/scale - 1) * 0.5
		smoothSize := int(math.RoundToEven(sigma*5)) | 1
		smoothSize = max(smoothSize, 3)
		w := int(math.RoundToEven(float64(width) * scale))
		h := int(math.RoundToEven(float64(height) * scale))

		var flow *Field
		if prevFlow == nil {
			flow = NewField(w, h)
		} else {
			flow = prevFlow.resize(w, h, float32(1/p.PyrScale))
		}

		var r [2][]float32
		for i, img := range [2]*imageproc.Plane{prev, next} {
			smoothed := imageproc.GaussianBlur(img, smoothSize, sigma)
			r[i] = fb.polyExp(imageproc.ResizeBilinear(smoothed, w, h))
		}

		m := make([]float32, w*h*5)
		updateMatrices(r[0], r[1], flow, m)
		for i := 0; i < p.Iterations; i++ {
			fb.updateFlowBlur(r[0], r[1], flow, m, i < p.Iterations-1)
		}
		prevFlow = flow
	}
	return prevFlow
}
