package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
)

// DecodeOptions holds the parameters of a raw decode process.
type DecodeOptions struct {
	URL     string
	Threads int
}

// CreateDecodeProcess starts ffmpeg decoding every frame of the input to
// rgb24 rawvideo on stdout, in presentation order and at native size.
func CreateDecodeProcess(ctx context.Context, opts DecodeOptions) (*exec.Cmd, io.ReadCloser, *bytes.Buffer, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, nil, nil, fmt.Errorf("ffmpeg not found in $PATH: %w", err)
	}

	args := []string{
		"-nostdin",
		"-loglevel", "error",
	}
	if opts.Threads > 0 {
		args = append(args, "-threads", fmt.Sprintf("%d", opts.Threads))
	}
	args = append(args,
		"-i", opts.URL,
		"-an",
		"-vsync", "passthrough",
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"pipe:1",
	)

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to get stdout pipe: %w", err)
	}

	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	slog.Debug("ffmpeg: decoder started", "cmd", strings.Join(cmd.Args, " "))
	return cmd, stdout, stderr, nil
}

// readFullFrame reads a complete frame, handling partial reads. It returns
// io.EOF when nothing was read and io.ErrUnexpectedEOF on a truncated frame.
func readFullFrame(ctx context.Context, reader io.Reader, buffer []byte) (int, error) {
	totalRead := 0
	for totalRead < len(buffer) {
		select {
		case <-ctx.Done():
			return totalRead, ctx.Err()
		default:
		}

		n, err := reader.Read(buffer[totalRead:])
		totalRead += n
		if err == io.EOF {
			if totalRead == 0 {
				return 0, io.EOF
			}
			if totalRead < len(buffer) {
				return totalRead, io.ErrUnexpectedEOF
			}
			return totalRead, nil
		}
		if err != nil {
			return totalRead, err
		}
		if n == 0 {
			return totalRead, io.ErrUnexpectedEOF
		}
	}
	return totalRead, nil
}
