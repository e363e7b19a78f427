package flow

import (
	"context"
	"errors"
	"image"
	"math"
	"testing"

	"flowset/internal/contract"
	"flowset/internal/imageproc"
	"flowset/internal/video"
)

func pattern(x, y float64) float64 {
	return 128 + 50*math.Sin(0.35*x)*math.Cos(0.3*y) + 30*math.Sin(0.2*y+0.15*x)
}

// texturedPlane samples the pattern shifted right by shift pixels.
func texturedPlane(w, h int, shift float64) *imageproc.Plane {
	p := imageproc.NewPlane(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			p.Set(x, y, float32(pattern(float64(x)-shift, float64(y))))
		}
	}
	return p
}

func texturedFrame(w, h int, shift float64) *video.Frame {
	f := video.NewFrame(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(math.Round(pattern(float64(x)-shift, float64(y))))
			i := (y*w + x) * 3
			f.Pix[i], f.Pix[i+1], f.Pix[i+2] = v, v, v
		}
	}
	return f
}

// meanFlow averages the displacement over [x0,x1) x [y0,y1).
func meanFlow(f *Field, x0, y0, x1, y1 int) (dx, dy float64) {
	n := 0
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			a, b := f.At(x, y)
			dx += float64(a)
			dy += float64(b)
			n++
		}
	}
	if n == 0 {
		return 0, 0
	}
	return dx / float64(n), dy / float64(n)
}

// valueChannel returns the HSV value, max(R, G, B), of every pixel.
func valueChannel(img *image.RGBA) []uint8 {
	b := img.Bounds()
	out := make([]uint8, 0, b.Dx()*b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := img.RGBAAt(x, y)
			out = append(out, max(c.R, c.G, c.B))
		}
	}
	return out
}

func newFarneback(t *testing.T) *Farneback {
	t.Helper()
	fb, err := NewFarneback(DefaultParams)
	if err != nil {
		t.Fatalf("new farneback: %v", err)
	}
	return fb
}

func TestFarnebackStaticIsZero(t *testing.T) {
	fb := newFarneback(t)
	img := texturedPlane(48, 40, 0)
	field := fb.Calc(img, img.Clone())
	if field.Width != 48 || field.Height != 40 {
		t.Fatalf("unexpected field size %dx%d", field.Width, field.Height)
	}
	for i, v := range field.Flow {
		if v != 0 {
			t.Fatalf("component %d = %v, want 0", i, v)
		}
	}
}

func TestFarnebackTranslation(t *testing.T) {
	fb := newFarneback(t)
	prev := texturedPlane(64, 64, 0)
	next := texturedPlane(64, 64, 1)
	field := fb.Calc(prev, next)

	dx, dy := meanFlow(field, 16, 16, 48, 48)
	if dx < 0.7 || dx > 1.3 {
		t.Fatalf("mean dx = %v, want ~1", dx)
	}
	if math.Abs(dy) > 0.2 {
		t.Fatalf("mean dy = %v, want ~0", dy)
	}
}

func TestNewFarnebackRejectsBadParams(t *testing.T) {
	p := DefaultParams
	p.PyrScale = 1.5
	if _, err := NewFarneback(p); err == nil {
		t.Fatalf("expect error for pyramid scale >= 1")
	}
	p = DefaultParams
	p.WinSize = 0
	if _, err := NewFarneback(p); err == nil {
		t.Fatalf("expect error for zero window")
	}
}

func TestWindowSize(t *testing.T) {
	cases := []struct {
		fps, target float64
		want        int
	}{
		{30, 8, 4},
		{24, 8, 3},
		{29.97, 8, 4},
		{25, 8, 4},
		{8, 8, 1},
		{5, 8, 1},
	}
	for _, c := range cases {
		if got := WindowSize(c.fps, c.target); got != c.want {
			t.Fatalf("WindowSize(%v, %v) = %d, want %d", c.fps, c.target, got, c.want)
		}
	}
}

func computerFor(t *testing.T, src *video.MemorySource) *Computer {
	t.Helper()
	c, err := NewComputer(Options{Open: func(context.Context, string) (video.Source, error) { return src, nil }})
	if err != nil {
		t.Fatalf("new computer: %v", err)
	}
	return c
}

func staticFrames(n, w, h int) []*video.Frame {
	frames := make([]*video.Frame, n)
	for i := range frames {
		frames[i] = texturedFrame(w, h, 0)
	}
	return frames
}

func TestComputeStaticVideoHasZeroValue(t *testing.T) {
	// 16 fps at a target of 8 averages pairs of fields: 9 frames, 8 fields, 4 images
	src := video.NewMemorySource(16, staticFrames(9, 40, 32))
	imgs, err := computerFor(t, src).Compute(context.Background(), "static.mp4", 8, 16)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if len(imgs) != 4 {
		t.Fatalf("expect 4 images, got %d", len(imgs))
	}
	for _, img := range imgs {
		rgba, ok := img.(*image.RGBA)
		if !ok {
			t.Fatalf("unexpected image type %T", img)
		}
		if b := rgba.Bounds(); b.Dx() != 20 || b.Dy() != 16 {
			t.Fatalf("unexpected size %v", b)
		}
		for i, v := range valueChannel(rgba) {
			if v > 1 {
				t.Fatalf("pixel %d has value %d, want ~0", i, v)
			}
		}
	}
	if !src.Closed() {
		t.Fatalf("source not released")
	}
}

func TestComputeShortVideoIsEmpty(t *testing.T) {
	// window is 4 at 30fps: 4 frames give only 3 fields
	src := video.NewMemorySource(30, staticFrames(4, 16, 16))
	imgs, err := computerFor(t, src).Compute(context.Background(), "short.mp4", 8, 16)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if len(imgs) != 0 {
		t.Fatalf("expect no images, got %d", len(imgs))
	}
	if !src.Closed() {
		t.Fatalf("source not released")
	}
}

func TestComputeMovingVideo(t *testing.T) {
	frames := make([]*video.Frame, 5)
	for i := range frames {
		frames[i] = texturedFrame(64, 48, float64(i))
	}
	src := video.NewMemorySource(8, frames)
	imgs, err := computerFor(t, src).Compute(context.Background(), "pan.mp4", 8, 24)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if len(imgs) != 4 {
		t.Fatalf("expect one image per field at window 1, got %d", len(imgs))
	}
	if b := imgs[0].Bounds(); b.Dx() != 32 || b.Dy() != 24 {
		t.Fatalf("unexpected size %v", b)
	}
}

func TestComputeSingleFrameIsDecodeError(t *testing.T) {
	src := video.NewMemorySource(30, staticFrames(1, 16, 16))
	imgs, err := computerFor(t, src).Compute(context.Background(), "one.mp4", 8, 16)
	if !errors.Is(err, contract.ErrDecode) {
		t.Fatalf("expect decode error, got %v", err)
	}
	if len(imgs) != 0 {
		t.Fatalf("expect no images")
	}
	if !src.Closed() {
		t.Fatalf("source not released")
	}
}

func TestComputeOpenFailure(t *testing.T) {
	c, err := NewComputer(Options{Open: func(context.Context, string) (video.Source, error) {
		return nil, errors.New("no such codec")
	}})
	if err != nil {
		t.Fatalf("new computer: %v", err)
	}
	if _, err := c.Compute(context.Background(), "bad.mp4", 8, 16); !errors.Is(err, contract.ErrDecode) {
		t.Fatalf("expect decode error, got %v", err)
	}
}

func computerForSource(t *testing.T, src video.Source) *Computer {
	t.Helper()
	c, err := NewComputer(Options{Open: func(context.Context, string) (video.Source, error) { return src, nil }})
	if err != nil {
		t.Fatalf("new computer: %v", err)
	}
	return c
}

// failingExit behaves like a decoder whose process exited non-zero after
// its output ended early.
type failingExit struct {
	*video.MemorySource
}

func (f failingExit) Close() error {
	_ = f.MemorySource.Close()
	return errors.New("ffmpeg error: exit status 1")
}

func TestComputeFailedExitIsDecodeError(t *testing.T) {
	src := failingExit{video.NewMemorySource(16, staticFrames(9, 40, 32))}
	imgs, err := computerForSource(t, src).Compute(context.Background(), "cut.mp4", 8, 16)
	if !errors.Is(err, contract.ErrDecode) {
		t.Fatalf("expect decode error, got %v", err)
	}
	if len(imgs) != 0 {
		t.Fatalf("expect no images from a failed decode, got %d", len(imgs))
	}
	if !src.Closed() {
		t.Fatalf("source not released")
	}
}

// killedMidway cancels the run and ends the stream after `at` frames, as a
// decoder process killed by its context does.
type killedMidway struct {
	*video.MemorySource
	at     int
	read   int
	cancel context.CancelFunc
}

func (k *killedMidway) Next(dst *video.Frame) error {
	if k.read == k.at {
		k.cancel()
		return video.ErrEndOfStream
	}
	k.read++
	return k.MemorySource.Next(dst)
}

func TestComputeCanceledMidwayReturnsNoImages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := &killedMidway{MemorySource: video.NewMemorySource(16, staticFrames(12, 40, 32)), at: 6, cancel: cancel}
	imgs, err := computerForSource(t, src).Compute(ctx, "long.mp4", 8, 16)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expect canceled, got %v", err)
	}
	if len(imgs) != 0 {
		t.Fatalf("expect no partial images, got %d", len(imgs))
	}
	if !src.Closed() {
		t.Fatalf("source not released")
	}
}

func TestFieldOps(t *testing.T) {
	a := NewField(2, 1)
	b := NewField(2, 1)
	b.Flow = []float32{1, 2, 3, 4}
	a.Add(b)
	a.Add(b)
	a.Scale(0.5)
	if dx, dy := a.At(1, 0); dx != 3 || dy != 4 {
		t.Fatalf("unexpected (%v, %v)", dx, dy)
	}
	px, py := a.Split()
	if px.Pix[0] != 1 || py.Pix[0] != 2 {
		t.Fatalf("split mismatch %v %v", px.Pix, py.Pix)
	}
	a.Reset()
	if dx, dy := meanFlow(a, 0, 0, 2, 1); dx != 0 || dy != 0 {
		t.Fatalf("reset left (%v, %v)", dx, dy)
	}
}
