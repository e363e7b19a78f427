// Package pipeline runs a dataset build end to end: load the corpus, build
// and persist the label index, partition, then dispatch every chunk.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"

	"flowset/internal/chunk"
	"flowset/internal/contract"
	"flowset/internal/corpus"
	"flowset/internal/worker"
)

// Options configures a Driver.
type Options struct {
	VideosRoot      string
	InputTable      string
	OutputDir       string
	RecordsPerChunk int
	ImageSize       int
	// ExpectedLabels <= 0 disables the cardinality check.
	ExpectedLabels int
	// MaxChunks > 0 limits dispatch to the first MaxChunks chunks.
	MaxChunks int
	Seed      uint64

	Flow       contract.FlowComputer
	Create     contract.ContainerFactory
	Dispatcher worker.Dispatcher
	// Progress receives a progress bar over records; nil disables it.
	Progress io.Writer
	Logger   *slog.Logger
}

// Report summarizes a run.
type Report struct {
	Records      int
	Labels       int
	Chunks       int
	Dispatched   int
	Written      int
	Skipped      int
	Images       int
	FailedImages int
	Results      []chunk.Result
}

// Driver runs builds.
type Driver struct {
	opts Options
}

func New(opts Options) (*Driver, error) {
	if opts.RecordsPerChunk <= 0 {
		return nil, fmt.Errorf("records per chunk must be positive, got %d", opts.RecordsPerChunk)
	}
	if opts.Flow == nil {
		return nil, errors.New("pipeline: flow computer is required")
	}
	if opts.Dispatcher == nil {
		opts.Dispatcher = worker.Sequential{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Driver{opts: opts}, nil
}

// Run builds the dataset. A label cardinality mismatch fails the run before
// any output is written. Per-record failures only show up in the Report.
// Chunk level failures (container create or seal) are joined into the
// returned error after every dispatched chunk has finished.
func (d *Driver) Run(ctx context.Context) (Report, error) {
	var rep Report
	logger := d.opts.Logger

	records, err := corpus.LoadFile(d.opts.InputTable)
	if err != nil {
		return rep, err
	}
	rep.Records = len(records)

	labels, err := corpus.BuildLabelIndex(records, d.opts.ExpectedLabels)
	if err != nil {
		return rep, err
	}
	rep.Labels = labels.Len()

	if err := os.MkdirAll(d.opts.OutputDir, 0o755); err != nil {
		return rep, fmt.Errorf("create output dir: %w", err)
	}
	if err := labels.Save(filepath.Join(d.opts.OutputDir, corpus.LabelIndexFile)); err != nil {
		return rep, err
	}
	logger.Info("pipeline: label index saved", "labels", labels.Len(), "records", len(records))

	chunks, err := corpus.Partition(records, d.opts.RecordsPerChunk, corpus.NewRand(d.opts.Seed))
	if err != nil {
		return rep, err
	}
	rep.Chunks = len(chunks)
	if d.opts.MaxChunks > 0 && len(chunks) > d.opts.MaxChunks {
		chunks = chunks[:d.opts.MaxChunks]
	}
	rep.Dispatched = len(chunks)

	bar := d.progress(chunks)
	w, err := chunk.New(chunk.Options{
		VideosRoot: d.opts.VideosRoot,
		OutputDir:  d.opts.OutputDir,
		ImageSize:  d.opts.ImageSize,
		Labels:     labels,
		Flow:       d.opts.Flow,
		Create:     d.opts.Create,
		Logger:     logger,
		OnRecord: func() {
			if bar != nil {
				_ = bar.Add(1)
			}
		},
	})
	if err != nil {
		return rep, err
	}

	logger.Info("pipeline: dispatch", "chunks", rep.Dispatched, "of", rep.Chunks, "dispatcher", fmt.Sprintf("%T", d.opts.Dispatcher))
	outcomes := d.opts.Dispatcher.Dispatch(ctx, chunks, w.Write)
	if bar != nil {
		_ = bar.Finish()
	}

	var errs []error
	for _, o := range outcomes {
		res := o.Result
		rep.Results = append(rep.Results, res)
		rep.Written += res.Written
		rep.Skipped += res.Skipped
		rep.Images += res.Images
		rep.FailedImages += res.FailedImages
		if o.Err != nil && !errors.Is(o.Err, context.Canceled) && !errors.Is(o.Err, context.DeadlineExceeded) {
			errs = append(errs, o.Err)
		}
	}
	logger.Info("pipeline: done", "written", rep.Written, "skipped", rep.Skipped,
		"images", rep.Images, "failed_images", rep.FailedImages)

	if err := ctx.Err(); err != nil {
		return rep, err
	}
	return rep, errors.Join(errs...)
}

func (d *Driver) progress(chunks []corpus.Chunk) *progressbar.ProgressBar {
	if d.opts.Progress == nil {
		return nil
	}
	total := 0
	for _, c := range chunks {
		total += len(c.Records)
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(d.opts.Progress),
		progressbar.OptionSetDescription("records"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(d.opts.Progress) }),
	)
}
