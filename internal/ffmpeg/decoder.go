package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"

	"flowset/internal/video"
)

// Decoder streams the frames of one video file through an ffmpeg process.
// It implements video.Source.
type Decoder struct {
	ctx    context.Context
	path   string
	info   video.Info
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *bytes.Buffer
	eof    bool
	closed bool
}

var _ video.Source = (*Decoder)(nil)

// Open probes the file and starts decoding it.
func Open(ctx context.Context, path string) (*Decoder, error) {
	info, err := GetVideoInfo(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("error getting video info: %w", err)
	}

	cmd, stdout, stderr, err := CreateDecodeProcess(ctx, DecodeOptions{URL: path, Threads: 1})
	if err != nil {
		return nil, fmt.Errorf("error creating FFmpeg process: %w", err)
	}

	return &Decoder{
		ctx:    ctx,
		path:   path,
		info:   info,
		cmd:    cmd,
		stdout: stdout,
		stderr: stderr,
	}, nil
}

// OpenSource is Open with the video.Source return type expected by frame
// consumers.
func OpenSource(ctx context.Context, path string) (video.Source, error) {
	d, err := Open(ctx, path)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Decoder) Info() video.Info { return d.info }

// Next reads the next frame into dst, resizing its buffer when needed.
func (d *Decoder) Next(dst *video.Frame) error {
	if d.eof || d.closed {
		return video.ErrEndOfStream
	}
	dst.Width, dst.Height = d.info.Width, d.info.Height
	size := dst.Size()
	if cap(dst.Pix) < size {
		dst.Pix = make([]byte, size)
	}
	dst.Pix = dst.Pix[:size]

	_, err := readFullFrame(d.ctx, d.stdout, dst.Pix)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF):
		d.eof = true
		return video.ErrEndOfStream
	case errors.Is(err, io.ErrUnexpectedEOF):
		slog.Debug("ffmpeg: truncated trailing frame dropped", "path", d.path)
		d.eof = true
		return video.ErrEndOfStream
	default:
		return fmt.Errorf("error reading frame: %w", err)
	}
}

// Close releases the ffmpeg process. A decoder that was not drained is
// killed; a drained one reports ffmpeg's exit status.
func (d *Decoder) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true

	_ = d.stdout.Close()
	if !d.eof && d.cmd.Process != nil {
		_ = d.cmd.Process.Kill()
	}
	err := d.cmd.Wait()
	if d.eof && err != nil {
		return fmt.Errorf("ffmpeg error: %v - stderr: %s", err, strings.TrimSpace(d.stderr.String()))
	}
	return nil
}
