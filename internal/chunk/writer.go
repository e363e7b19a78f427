// Package chunk writes one partition of the corpus into its own container
// pair. A Writer touches only the output files of the chunk it is given and
// the videos of that chunk's records, so chunks can run concurrently.
package chunk

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"flowset/internal/contract"
	"flowset/internal/corpus"
	"flowset/internal/diag"
	"flowset/internal/gulp"
)

// TargetFPS is the rate flow images are produced at.
const TargetFPS = 8.0

// Options configures a Writer.
type Options struct {
	VideosRoot string
	OutputDir  string
	// ImageSize is the short edge of every stored image.
	ImageSize int
	Labels    *corpus.LabelIndex
	Flow      contract.FlowComputer
	// Create defaults to gulp containers at gulp.DefaultQuality.
	Create contract.ContainerFactory
	Logger *slog.Logger
	// OnRecord, when set, is called after each record is handled. It may be
	// called from several goroutines when chunks run concurrently.
	OnRecord func()
}

// Skip is a record that contributed no image.
type Skip struct {
	RecordID string
	Path     string
	Code     diag.Code
	Err      error
}

// Result summarizes one chunk.
type Result struct {
	Chunk        int
	Written      int
	Skipped      int
	Images       int
	FailedImages int
	Skips        []Skip
}

// Writer turns chunks into container pairs. It holds no per-chunk state and
// is safe for concurrent use with distinct chunks.
type Writer struct {
	opts Options
}

func New(opts Options) (*Writer, error) {
	if opts.Labels == nil {
		return nil, errors.New("chunk: label index is required")
	}
	if opts.Flow == nil {
		return nil, errors.New("chunk: flow computer is required")
	}
	if opts.ImageSize <= 0 {
		return nil, fmt.Errorf("chunk: image size must be positive, got %d", opts.ImageSize)
	}
	if opts.Create == nil {
		opts.Create = gulp.Factory(gulp.Options{})
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Writer{opts: opts}, nil
}

// Write processes the records of c in order and appends their flow images
// to the chunk's container. Per-record and per-image failures are counted
// in the Result and never abort the chunk. The container is sealed on every
// return path once created. The returned error is non-nil only when the
// container cannot be created or sealed, or ctx is canceled.
func (w *Writer) Write(ctx context.Context, c corpus.Chunk) (res Result, err error) {
	res.Chunk = c.Index
	logger := w.opts.Logger.With("chunk", c.Index)

	dataPath := filepath.Join(w.opts.OutputDir, c.DataFile())
	metaPath := filepath.Join(w.opts.OutputDir, c.MetaFile())
	container, err := w.opts.Create(dataPath, metaPath)
	if err != nil {
		return res, fmt.Errorf("chunk %d: create container: %w", c.Index, err)
	}
	defer func() {
		if cerr := container.Close(); cerr != nil {
			logger.Error("chunk: seal failed", "error", cerr)
			err = errors.Join(err, fmt.Errorf("chunk %d: seal: %w", c.Index, cerr))
		}
	}()

	logger.Info("chunk: start", "records", len(c.Records), "data", dataPath)
	for _, rec := range c.Records {
		if err := ctx.Err(); err != nil {
			logger.Warn("chunk: canceled", "written", res.Written, "skipped", res.Skipped)
			return res, err
		}
		appended, failed, rerr := w.writeRecord(ctx, container, rec)
		res.Images += appended
		res.FailedImages += failed
		if w.opts.OnRecord != nil {
			w.opts.OnRecord()
		}
		if rerr != nil {
			if ctx.Err() != nil && errors.Is(rerr, ctx.Err()) {
				return res, ctx.Err()
			}
			skip := Skip{RecordID: rec.VideoID, Path: rec.Path(w.opts.VideosRoot), Code: diag.Classify(rerr), Err: rerr}
			res.Skipped++
			res.Skips = append(res.Skips, skip)
			logger.Warn("chunk: record skipped", "record", skip.RecordID, "path", skip.Path, "code", skip.Code, "error", rerr)
			continue
		}
		res.Written++
	}
	logger.Info("chunk: done", "written", res.Written, "skipped", res.Skipped,
		"images", res.Images, "failed_images", res.FailedImages)
	return res, nil
}

// writeRecord returns the number of images appended and failed. A record
// whose every append failed is reported with the last WriteError.
func (w *Writer) writeRecord(ctx context.Context, container contract.Container, rec corpus.VideoRecord) (int, int, error) {
	labelID, ok := w.opts.Labels.ID(rec.Label)
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", contract.ErrUnknownLabel, rec.Label)
	}
	path := rec.Path(w.opts.VideosRoot)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, 0, fmt.Errorf("%w: %s", contract.ErrMissingSource, path)
		}
		return 0, 0, fmt.Errorf("%w: %w", contract.ErrDecode, err)
	}

	images, err := w.opts.Flow.Compute(ctx, path, TargetFPS, w.opts.ImageSize)
	if err != nil {
		return 0, 0, err
	}
	if len(images) == 0 {
		return 0, 0, contract.ErrNoFlowExtracted
	}

	var appended, failed int
	var lastErr error
	for i, img := range images {
		if err := container.Write(labelID, rec.VideoID, img); err != nil {
			failed++
			lastErr = &contract.WriteError{RecordID: rec.VideoID, Image: i, Err: err}
			w.opts.Logger.Warn("chunk: image not written", "record", rec.VideoID, "image", i, "error", err)
			continue
		}
		appended++
	}
	if appended == 0 {
		return 0, failed, lastErr
	}
	return appended, failed, nil
}
