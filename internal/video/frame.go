package video

import "errors"

// Frame is one decoded RGB24 picture in presentation order.
type Frame struct {
	Width  int
	Height int
	Pix    []byte // Width*Height*3, row major, R G B
}

// NewFrame allocates a zeroed frame of the given size.
func NewFrame(width, height int) *Frame {
	return &Frame{Width: width, Height: height, Pix: make([]byte, width*height*3)}
}

// Size returns the number of bytes one frame occupies.
func (f *Frame) Size() int {
	return f.Width * f.Height * 3
}

// Info describes a video stream as reported by the container.
type Info struct {
	Width      int
	Height     int
	Framerate  float64
	FrameCount int // -1 when the container does not report it
}

// ErrEndOfStream is returned by Source.Next once every frame was read.
var ErrEndOfStream = errors.New("end of stream")

// Source yields decoded frames of a single video. Next fills dst and
// returns ErrEndOfStream after the last frame. Close must always be called
// and releases the underlying decoder.
type Source interface {
	Info() Info
	Next(dst *Frame) error
	Close() error
}
