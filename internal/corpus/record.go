// Package corpus holds the labeled video table and everything derived from
// it before any video is decoded: the label index and the chunk partition.
package corpus

import (
	"fmt"
	"path/filepath"
)

// VideoRecord identifies one labeled clip. StartTime and EndTime are whole
// seconds into the source video.
type VideoRecord struct {
	VideoID   string
	Label     string
	StartTime int
	EndTime   int
}

// FileName is the clip file name: <video_id>_<start:06d>_<end:06d>.mp4.
func (r VideoRecord) FileName() string {
	return fmt.Sprintf("%s_%06d_%06d.mp4", r.VideoID, r.StartTime, r.EndTime)
}

// Path resolves the clip under root, grouped by label directory.
func (r VideoRecord) Path(root string) string {
	return filepath.Join(root, r.Label, r.FileName())
}
