package video

// MemorySource replays frames held in memory. It backs synthetic videos in
// tests and any caller that already holds decoded frames.
type MemorySource struct {
	info   Info
	frames []*Frame
	pos    int
	closed bool
}

// NewMemorySource wraps frames recorded at the given framerate.
func NewMemorySource(framerate float64, frames []*Frame) *MemorySource {
	info := Info{Framerate: framerate, FrameCount: len(frames)}
	if len(frames) > 0 {
		info.Width = frames[0].Width
		info.Height = frames[0].Height
	}
	return &MemorySource{info: info, frames: frames}
}

func (m *MemorySource) Info() Info { return m.info }

func (m *MemorySource) Next(dst *Frame) error {
	if m.closed || m.pos >= len(m.frames) {
		return ErrEndOfStream
	}
	src := m.frames[m.pos]
	m.pos++
	dst.Width, dst.Height = src.Width, src.Height
	if cap(dst.Pix) < len(src.Pix) {
		dst.Pix = make([]byte, len(src.Pix))
	}
	dst.Pix = dst.Pix[:len(src.Pix)]
	copy(dst.Pix, src.Pix)
	return nil
}

// Closed reports whether Close was called.
func (m *MemorySource) Closed() bool { return m.closed }

func (m *MemorySource) Close() error {
	m.closed = true
	return nil
}
