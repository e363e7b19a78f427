package flow

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"

	"flowset/internal/contract"
	"flowset/internal/imageproc"
	"flowset/internal/video"
)

// Opener opens a video file for frame by frame decoding.
type Opener func(ctx context.Context, path string) (video.Source, error)

// Options configures a Computer.
type Options struct {
	// Open is required.
	Open Opener
	// Params defaults to DefaultParams when nil.
	Params *Params
	Logger *slog.Logger
}

// Computer turns a video into temporally averaged, colour encoded flow
// images.
type Computer struct {
	open   Opener
	fb     *Farneback
	logger *slog.Logger
}

var _ contract.FlowComputer = (*Computer)(nil)

func NewComputer(opts Options) (*Computer, error) {
	if opts.Open == nil {
		return nil, errors.New("flow: opener is required")
	}
	params := DefaultParams
	if opts.Params != nil {
		params = *opts.Params
	}
	fb, err := NewFarneback(params)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Computer{open: opts.Open, fb: fb, logger: logger}, nil
}

// WindowSize is the number of consecutive flow fields averaged into one
// output image so that images come out at targetFPS.
func WindowSize(fps, targetFPS float64) int {
	return max(int(math.Ceil(fps/targetFPS)), 1)
}

// Compute decodes the video at path and returns one image per averaging
// window, each resized so its short edge is shortestSide. An empty result
// with a nil error means the video was decoded but was too short to fill a
// window. Errors wrap contract.ErrDecode unless the context was canceled.
// A decoder that reports a failure when closed after the last frame fails
// the whole video.
func (c *Computer) Compute(ctx context.Context, path string, targetFPS float64, shortestSide int) ([]image.Image, error) {
	src, err := c.open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", contract.ErrDecode, err)
	}
	closed := false
	defer func() {
		if closed {
			return
		}
		if err := src.Close(); err != nil {
			c.logger.Debug("flow: decoder close", "path", path, "error", err)
		}
	}()

	info := src.Info()
	if info.FrameCount >= 0 && info.FrameCount < 2 {
		return nil, fmt.Errorf("%w: %d frames", contract.ErrDecode, info.FrameCount)
	}
	if info.Framerate <= 0 {
		return nil, fmt.Errorf("%w: invalid framerate %v", contract.ErrDecode, info.Framerate)
	}
	window := WindowSize(info.Framerate, targetFPS)

	frame := &video.Frame{}
	if err := src.Next(frame); err != nil {
		return nil, fmt.Errorf("%w: first frame: %w", contract.ErrDecode, err)
	}
	prev := imageproc.Luminance(frame)

	var (
		images []image.Image
		sum    = NewField(frame.Width, frame.Height)
		count  int
		pairs  int
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		err := src.Next(frame)
		if errors.Is(err, video.ErrEndOfStream) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: frame %d: %w", contract.ErrDecode, pairs+1, err)
		}
		if frame.Width != prev.Width || frame.Height != prev.Height {
			return nil, fmt.Errorf("%w: frame size changed to %dx%d", contract.ErrDecode, frame.Width, frame.Height)
		}

		next := imageproc.Luminance(frame)
		sum.Add(c.fb.Calc(prev, next))
		pairs++
		count++

		if count == window {
			sum.Scale(1 / float32(window))
			dx, dy := sum.Split()
			rendered := imageproc.RenderFlow(dx, dy)
			images = append(images, imageproc.ResizeShortEdge(rendered, shortestSide))
			sum.Reset()
			count = 0
		}
		prev = next
	}

	// a killed or failed decoder ends its stream early; never return a
	// truncated record as if it were complete
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	closed = true
	if err := src.Close(); err != nil {
		return nil, fmt.Errorf("%w: %w", contract.ErrDecode, err)
	}
	if pairs == 0 {
		return nil, fmt.Errorf("%w: fewer than 2 frames decoded", contract.ErrDecode)
	}
	c.logger.Debug("flow: video processed", "path", path, "fps", info.Framerate, "window", window, "pairs", pairs, "images", len(images))
	return images, nil
}
