package flow

import "flowset/internal/imageproc"

// Field is a dense motion field stored interleaved as (dx, dy) per pixel.
type Field struct {
	Width  int
	Height int
	Flow   []float32
}

func NewField(width, height int) *Field {
	return &Field{Width: width, Height: height, Flow: make([]float32, width*height*2)}
}

// At returns the displacement of pixel (x, y).
func (f *Field) At(x, y int) (dx, dy float32) {
	i := (y*f.Width + x) * 2
	return f.Flow[i], f.Flow[i+1]
}

// Add accumulates o into f. Both fields must have the same size.
func (f *Field) Add(o *Field) {
	for i, v := range o.Flow {
		f.Flow[i] += v
	}
}

func (f *Field) Scale(s float32) {
	for i := range f.Flow {
		f.Flow[i] *= s
	}
}

func (f *Field) Reset() {
	clear(f.Flow)
}

// Split returns the horizontal and vertical components as separate planes.
func (f *Field) Split() (dx, dy *imageproc.Plane) {
	dx = imageproc.NewPlane(f.Width, f.Height)
	dy = imageproc.NewPlane(f.Width, f.Height)
	for i := range dx.Pix {
		dx.Pix[i] = f.Flow[i*2]
		dy.Pix[i] = f.Flow[i*2+1]
	}
	return dx, dy
}

func mergeField(dx, dy *imageproc.Plane) *Field {
	f := NewField(dx.Width, dx.Height)
	for i := range dx.Pix {
		f.Flow[i*2] = dx.Pix[i]
		f.Flow[i*2+1] = dy.Pix[i]
	}
	return f
}

// resize resamples the field to width x height and multiplies the vectors
// by scale.
func (f *Field) resize(width, height int, scale float32) *Field {
	dx, dy := f.Split()
	out := mergeField(imageproc.ResizeBilinear(dx, width, height), imageproc.ResizeBilinear(dy, width, height))
	out.Scale(scale)
	return out
}
