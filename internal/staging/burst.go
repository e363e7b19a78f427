// Package staging bursts a video into a directory of JPEG frames, usually
// on a tmpfs. Each burst gets its own randomly named directory so that
// concurrent bursts never share files.
package staging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/google/uuid"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// FramePattern names the staged frames: 0001.jpg, 0002.jpg, ...
const FramePattern = "%04d.jpg"

// Stager bursts videos under Root at FPS frames per second.
type Stager struct {
	Root   string
	FPS    float64
	Logger *slog.Logger
}

// Args returns the ffmpeg arguments bursting videoPath into dir.
func (s *Stager) Args(videoPath, dir string) []string {
	return ffmpeg.
		Input(videoPath).
		Output(filepath.Join(dir, FramePattern), ffmpeg.KwArgs{
			"q:v": 1,
			"r":   strconv.FormatFloat(s.FPS, 'f', -1, 64),
			"f":   "image2",
		}).
		OverWriteOutput().
		GetArgs()
}

// Burst creates a fresh directory under Root and fills it with the frames
// of videoPath. The directory is returned even when ffmpeg fails so the
// caller can clean it up.
func (s *Stager) Burst(ctx context.Context, videoPath string) (string, error) {
	if s.FPS <= 0 {
		return "", fmt.Errorf("staging: fps must be positive, got %g", s.FPS)
	}
	dir := filepath.Join(s.Root, uuid.NewString())
	if err := os.Mkdir(dir, 0o755); err != nil {
		return "", fmt.Errorf("staging: %w", err)
	}

	var stderr limitedBuffer
	cmd := exec.CommandContext(ctx, "ffmpeg", s.Args(videoPath, dir)...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return dir, ctx.Err()
		}
		return dir, fmt.Errorf("staging: ffmpeg burst of %s: %w: %s", videoPath, err, stderr.String())
	}
	s.logger().Debug("staging: burst", "video", videoPath, "dir", dir)
	return dir, nil
}

// Frames lists the staged frame files of dir in frame order.
func Frames(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.jpg"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

// Cleanup removes a staged directory. Removing a missing directory is not
// an error.
func Cleanup(dir string) error {
	if dir == "" {
		return errors.New("staging: empty directory")
	}
	return os.RemoveAll(dir)
}

func (s *Stager) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// limitedBuffer keeps the first 4KiB of ffmpeg's stderr.
type limitedBuffer struct {
	buf []byte
}

const stderrLimit = 4 << 10

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if room := stderrLimit - len(b.buf); room > 0 {
		b.buf = append(b.buf, p[:min(room, len(p))]...)
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string { return string(b.buf) }
