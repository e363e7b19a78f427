// Package contract declares the collaborators a chunk writer depends on and
// the error taxonomy shared by the pipeline stages.
package contract

import (
	"context"
	"image"
)

// FlowComputer turns one video into a sequence of flow images whose short
// edge is shortestSide, subsampled to targetFPS. An empty sequence with a
// nil error means no averaging window was completed.
type FlowComputer interface {
	Compute(ctx context.Context, path string, targetFPS float64, shortestSide int) ([]image.Image, error)
}

// Container is an append-only keyed image store owned by a single writer.
// Close flushes and seals it; later appends fail with ErrSealed.
type Container interface {
	Write(labelID int, recordID string, img image.Image) error
	Close() error
}

// ContainerFactory creates the container pair of one chunk.
type ContainerFactory func(dataPath, metaPath string) (Container, error)
