package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"flowset/internal/config"
	"flowset/internal/ffmpeg"
	"flowset/internal/flow"
	"flowset/internal/gulp"
	"flowset/internal/pipeline"
	"flowset/internal/worker"
)

var (
	buildDispatch       string
	buildMaxChunks      int
	buildExpectedLabels int
	buildSeed           uint64
	buildNoProgress     bool
)

var buildCmd = &cobra.Command{
	Use:   "build <videos_root> <input_table> <output_dir> <records_per_chunk> <num_workers> <image_size>",
	Short: "Build a flow dataset from a labeled clip table",
	Long: `Reads the clip table, writes label2idx.json to output_dir, shuffles the
clips into chunks of records_per_chunk and writes every chunk as a
dataNNN.bin / metaNNN.bin pair. Videos are looked up as
<videos_root>/<label>/<video_id>_<start>_<end>.mp4. Missing or undecodable
videos are skipped and counted; only a label count different from
expected_labels fails the run.`,
	Args: cobra.ExactArgs(6),
	RunE: runBuild,
}

func init() {
	f := buildCmd.Flags()
	f.StringVar(&buildDispatch, "dispatch", "", "chunk dispatch: sequential or pool (num_workers goroutines)")
	f.IntVar(&buildMaxChunks, "max-chunks", 0, "process only the first N chunks (0 = all)")
	f.IntVar(&buildExpectedLabels, "expected-labels", 0, "required number of distinct labels (0 disables the check)")
	f.Uint64Var(&buildSeed, "seed", 0, "shuffle seed (0 = random)")
	f.BoolVar(&buildNoProgress, "no-progress", false, "disable the progress bar")
}

type buildArgs struct {
	VideosRoot      string
	InputTable      string
	OutputDir       string
	RecordsPerChunk int
	Workers         int
	ImageSize       int
}

func parseBuildArgs(args []string) (buildArgs, error) {
	b := buildArgs{VideosRoot: args[0], InputTable: args[1], OutputDir: args[2]}
	ints := []struct {
		name string
		dst  *int
		raw  string
	}{
		{"records_per_chunk", &b.RecordsPerChunk, args[3]},
		{"num_workers", &b.Workers, args[4]},
		{"image_size", &b.ImageSize, args[5]},
	}
	for _, n := range ints {
		v, err := strconv.Atoi(n.raw)
		if err != nil || v <= 0 {
			return b, fmt.Errorf("%s must be a positive integer, got %q", n.name, n.raw)
		}
		*n.dst = v
	}
	return b, nil
}

// applyBuildFlags overrides cfg with the flags set on the command line.
func applyBuildFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("dispatch") {
		cfg.Dispatch = buildDispatch
	}
	if f.Changed("max-chunks") {
		cfg.MaxChunks = buildMaxChunks
	}
	if f.Changed("expected-labels") {
		cfg.ExpectedLabels = buildExpectedLabels
	}
	if f.Changed("seed") {
		cfg.Seed = buildSeed
	}
	if buildNoProgress {
		cfg.Progress = false
	}
}

func runBuild(cmd *cobra.Command, args []string) error {
	in, err := parseBuildArgs(args)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyBuildFlags(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	params := flow.Params(cfg.Flow)
	computer, err := flow.NewComputer(flow.Options{
		Open:   ffmpeg.OpenSource,
		Params: &params,
		Logger: logger,
	})
	if err != nil {
		return err
	}
	dispatcher, err := worker.New(cfg.Dispatch, in.Workers)
	if err != nil {
		return err
	}

	opts := pipeline.Options{
		VideosRoot:      in.VideosRoot,
		InputTable:      in.InputTable,
		OutputDir:       in.OutputDir,
		RecordsPerChunk: in.RecordsPerChunk,
		ImageSize:       in.ImageSize,
		ExpectedLabels:  cfg.ExpectedLabels,
		MaxChunks:       cfg.MaxChunks,
		Seed:            cfg.Seed,
		Flow:            computer,
		Create:          gulp.Factory(gulp.Options{Quality: cfg.JPEGQuality}),
		Dispatcher:      dispatcher,
		Logger:          logger,
	}
	if cfg.Progress {
		opts.Progress = os.Stderr
	}
	driver, err := pipeline.New(opts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	rep, err := driver.Run(ctx)
	if rep.Dispatched > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "chunks %d/%d  records written %d  skipped %d  images %d  failed images %d\n",
			rep.Dispatched, rep.Chunks, rep.Written, rep.Skipped, rep.Images, rep.FailedImages)
	}
	return err
}
