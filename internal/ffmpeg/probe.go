package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"flowset/internal/video"
)

type probeOutput struct {
	Streams []struct {
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
		RFrameRate   string `json:"r_frame_rate"`
		NbFrames     string `json:"nb_frames"`
		SideDataList []struct {
			Rotation float64 `json:"rotation"`
		} `json:"side_data_list"`
		Tags struct {
			Rotate string `json:"rotate"`
		} `json:"tags"`
	} `json:"streams"`
}

// GetVideoInfo extracts dimensions, framerate and frame count of the first
// video stream. Dimensions are those of the decoded frames: ffmpeg applies
// the display rotation, so a stream rotated by 90 or 270 degrees reports its
// width and height swapped.
func GetVideoInfo(ctx context.Context, videoURL string) (video.Info, error) {
	args := []string{
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,avg_frame_rate,r_frame_rate,nb_frames:stream_side_data=rotation:stream_tags=rotate",
		"-of", "json",
		videoURL,
	}

	cmd := exec.CommandContext(ctx, "ffprobe", args...)
	output, err := cmd.Output()
	if err != nil {
		return video.Info{}, fmt.Errorf("ffprobe error: %w", err)
	}
	return parseProbe(output)
}

func parseProbe(output []byte) (video.Info, error) {
	var data probeOutput
	if err := json.Unmarshal(output, &data); err != nil {
		return video.Info{}, fmt.Errorf("error parsing ffprobe output: %w", err)
	}
	if len(data.Streams) == 0 {
		return video.Info{}, fmt.Errorf("no video streams found")
	}
	stream := data.Streams[0]
	if stream.Width <= 0 || stream.Height <= 0 {
		return video.Info{}, fmt.Errorf("invalid dimensions %dx%d", stream.Width, stream.Height)
	}

	// avg_frame_rate is what containers report as the nominal rate; some
	// streams leave it at 0/0, in which case r_frame_rate is used.
	framerate, err := parseFramerate(stream.AvgFrameRate)
	if err != nil || framerate <= 0 {
		framerate, err = parseFramerate(stream.RFrameRate)
		if err != nil {
			return video.Info{}, err
		}
	}
	if framerate <= 0 {
		return video.Info{}, fmt.Errorf("invalid framerate data")
	}

	count := -1
	if n, err := strconv.Atoi(stream.NbFrames); err == nil {
		count = n
	}

	width, height := stream.Width, stream.Height
	rotation := 0.0
	for _, sd := range stream.SideDataList {
		if sd.Rotation != 0 {
			rotation = sd.Rotation
			break
		}
	}
	// older muxers store the rotation as a stream tag
	if rotation == 0 && stream.Tags.Rotate != "" {
		if r, err := strconv.ParseFloat(stream.Tags.Rotate, 64); err == nil {
			rotation = r
		}
	}
	if quarterTurns(rotation)%2 != 0 {
		width, height = height, width
	}

	return video.Info{
		Width:      width,
		Height:     height,
		Framerate:  framerate,
		FrameCount: count,
	}, nil
}

// quarterTurns rounds a rotation in degrees to a count of 90 degree turns
// in [0, 4).
func quarterTurns(deg float64) int {
	q := int(math.Round(deg/90)) % 4
	if q < 0 {
		q += 4
	}
	return q
}

// parseFramerate parses "24000/1001" style rates as well as plain numbers.
func parseFramerate(s string) (float64, error) {
	if s == "" {
		return 0, fmt.Errorf("invalid framerate data")
	}
	if !strings.Contains(s, "/") {
		rate, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid framerate: %w", err)
		}
		return rate, nil
	}
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid framerate format %q", s)
	}
	num, err1 := strconv.ParseFloat(parts[0], 64)
	den, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil {
		return 0, fmt.Errorf("invalid framerate format %q", s)
	}
	if den == 0 {
		return 0, nil
	}
	return num / den, nil
}
