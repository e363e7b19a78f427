package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"flowset/internal/contract"
	"flowset/internal/corpus"
	"flowset/internal/gulp"
	"flowset/internal/worker"
)

// twoImages returns two flow images for every video.
type twoImages struct{}

func (twoImages) Compute(ctx context.Context, path string, targetFPS float64, shortestSide int) ([]image.Image, error) {
	return []image.Image{
		image.NewRGBA(image.Rect(0, 0, shortestSide, shortestSide)),
		image.NewRGBA(image.Rect(0, 0, shortestSide, shortestSide)),
	}, nil
}

type setup struct {
	root, table, out string
	recs             []corpus.VideoRecord
}

// newSetup writes a table of n records over the given labels and creates
// every video file except those whose index is in missing.
func newSetup(t *testing.T, n int, labels []string, missing ...int) *setup {
	t.Helper()
	s := &setup{root: t.TempDir(), out: filepath.Join(t.TempDir(), "out")}
	var b strings.Builder
	b.WriteString("label,youtube_id,time_start,time_end,split\n")
	for i := 0; i < n; i++ {
		r := corpus.VideoRecord{VideoID: fmt.Sprintf("vid%02d", i), Label: labels[i%len(labels)], StartTime: i, EndTime: i + 10}
		s.recs = append(s.recs, r)
		fmt.Fprintf(&b, "%s,%s,%d,%d,train\n", r.Label, r.VideoID, r.StartTime, r.EndTime)
		skip := false
		for _, m := range missing {
			skip = skip || m == i
		}
		if skip {
			continue
		}
		p := r.Path(s.root)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("mp4"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	s.table = filepath.Join(t.TempDir(), "train.csv")
	if err := os.WriteFile(s.table, []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}
	return s
}

func (s *setup) options() Options {
	return Options{
		VideosRoot:      s.root,
		InputTable:      s.table,
		OutputDir:       s.out,
		RecordsPerChunk: 2,
		ImageSize:       8,
		ExpectedLabels:  2,
		Seed:            11,
		Flow:            twoImages{},
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func run(t *testing.T, opts Options) (Report, error) {
	t.Helper()
	d, err := New(opts)
	if err != nil {
		t.Fatalf("new driver: %v", err)
	}
	return d.Run(context.Background())
}

func readEntries(t *testing.T, out string, chunk int) []gulp.Entry {
	t.Helper()
	c := corpus.Chunk{Index: chunk}
	entries, err := gulp.ReadMeta(filepath.Join(out, c.MetaFile()))
	if err != nil {
		t.Fatalf("read meta %d: %v", chunk, err)
	}
	return entries
}

func TestRunThreeRecordsTwoLabels(t *testing.T) {
	s := newSetup(t, 3, []string{"juggling", "archery"}, 1)
	rep, err := run(t, s.options())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rep.Records != 3 || rep.Labels != 2 || rep.Chunks != 2 || rep.Dispatched != 2 {
		t.Fatalf("unexpected report %+v", rep)
	}
	if rep.Written != 2 || rep.Skipped != 1 || rep.Images != 4 {
		t.Fatalf("written %d skipped %d images %d", rep.Written, rep.Skipped, rep.Images)
	}
	// the run shuffles with the same seed, so the partition is reproducible
	chunks, err := corpus.Partition(s.recs, 2, corpus.NewRand(11))
	if err != nil {
		t.Fatalf("partition: %v", err)
	}
	total := 0
	for _, c := range chunks {
		assigned := map[string]bool{}
		for _, rec := range c.Records {
			assigned[rec.VideoID] = true
		}
		entries := readEntries(t, s.out, c.Index)
		for _, e := range entries {
			if !assigned[e.RecordID] {
				t.Fatalf("chunk %d holds %s, assigned elsewhere", c.Index, e.RecordID)
			}
		}
		want := 0
		for _, rec := range c.Records {
			if rec.VideoID != "vid01" {
				want += 2
			}
		}
		if len(entries) != want {
			t.Fatalf("chunk %d: %d entries, want %d", c.Index, len(entries), want)
		}
		total += len(entries)
	}
	if total != 4 {
		t.Fatalf("expect 4 entries over both chunks, got %d", total)
	}

	idx, err := corpus.LoadLabelIndex(filepath.Join(s.out, corpus.LabelIndexFile))
	if err != nil {
		t.Fatalf("load label index: %v", err)
	}
	if id, _ := idx.ID("archery"); id != 0 {
		t.Fatalf("archery id %d", id)
	}
	if id, _ := idx.ID("juggling"); id != 1 {
		t.Fatalf("juggling id %d", id)
	}
}

func TestRunCardinalityMismatchWritesNothing(t *testing.T) {
	s := newSetup(t, 4, []string{"a", "b", "c"})
	opts := s.options()
	opts.ExpectedLabels = 400
	_, err := run(t, opts)
	var ce *contract.CardinalityError
	if !errors.As(err, &ce) || ce.Got != 3 || ce.Want != 400 {
		t.Fatalf("expect cardinality error, got %v", err)
	}
	if _, err := os.Stat(s.out); !os.IsNotExist(err) {
		t.Fatalf("output dir should not exist, stat err %v", err)
	}
}

func TestRunMaxChunks(t *testing.T) {
	s := newSetup(t, 5, []string{"a", "b"})
	opts := s.options()
	opts.MaxChunks = 1
	rep, err := run(t, opts)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rep.Chunks != 3 || rep.Dispatched != 1 || len(rep.Results) != 1 {
		t.Fatalf("unexpected report %+v", rep)
	}
	if _, err := os.Stat(filepath.Join(s.out, "data001.bin")); !os.IsNotExist(err) {
		t.Fatalf("second chunk should not be written")
	}
}

func TestRunPoolMatchesSequential(t *testing.T) {
	s := newSetup(t, 7, []string{"a", "b"}, 3)
	seq, err := run(t, s.options())
	if err != nil {
		t.Fatalf("sequential: %v", err)
	}

	opts := s.options()
	opts.OutputDir = filepath.Join(t.TempDir(), "pool")
	opts.Dispatcher = worker.Pool{Workers: 3}
	var progress bytes.Buffer
	opts.Progress = &progress
	pool, err := run(t, opts)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	if seq.Written != pool.Written || seq.Skipped != pool.Skipped || seq.Images != pool.Images {
		t.Fatalf("sequential %+v pool %+v", seq, pool)
	}
	for i := range seq.Results {
		if seq.Results[i].Chunk != pool.Results[i].Chunk || seq.Results[i].Written != pool.Results[i].Written {
			t.Fatalf("chunk %d differs", i)
		}
	}
	if progress.Len() == 0 {
		t.Fatalf("expect progress output")
	}
}

func TestRunChunkFailureSurfaces(t *testing.T) {
	s := newSetup(t, 2, []string{"a", "b"})
	opts := s.options()
	boom := errors.New("no space left")
	opts.Create = func(string, string) (contract.Container, error) { return nil, boom }
	_, err := run(t, opts)
	if !errors.Is(err, boom) {
		t.Fatalf("expect container error, got %v", err)
	}
}

func TestRunBadTable(t *testing.T) {
	s := newSetup(t, 1, []string{"a"})
	opts := s.options()
	opts.InputTable = filepath.Join(t.TempDir(), "missing.csv")
	if _, err := run(t, opts); err == nil {
		t.Fatalf("expect load error")
	}
}

func TestNewValidates(t *testing.T) {
	if _, err := New(Options{Flow: twoImages{}}); err == nil {
		t.Fatalf("expect error for zero chunk size")
	}
	if _, err := New(Options{RecordsPerChunk: 1}); err == nil {
		t.Fatalf("expect error without flow computer")
	}
}
