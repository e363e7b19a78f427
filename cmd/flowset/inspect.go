package main

import (
	"errors"
	"fmt"
	"image"
	"io"
	"io/fs"
	"math/rand/v2"
	"path/filepath"
	"sort"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/spf13/cobra"

	"flowset/internal/corpus"
	"flowset/internal/gulp"
	"flowset/internal/kmeans"
)

var (
	inspectLabels  string
	inspectVerify  bool
	inspectPalette int
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <data.bin> <meta.bin>",
	Short: "Summarize a chunk container",
	Long: `Prints the entry, record and label counts of one chunk container.
Label names are resolved from label2idx.json next to the data file unless
--labels points elsewhere. --verify decodes every image. --palette k
clusters the moving pixels of every image into k dominant colours, each
of which encodes a motion direction.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := gulp.Open(args[0], args[1])
		if err != nil {
			return err
		}
		defer r.Close()

		labelsPath := inspectLabels
		if labelsPath == "" {
			labelsPath = filepath.Join(filepath.Dir(args[0]), corpus.LabelIndexFile)
		}
		labels, err := corpus.LoadLabelIndex(labelsPath)
		if err != nil {
			if inspectLabels != "" || !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			labels = nil
		}

		s, err := summarize(r, inspectVerify, inspectPalette)
		if err != nil {
			return err
		}
		s.print(cmd.OutOrStdout(), labels)
		return nil
	},
}

func init() {
	inspectCmd.Flags().StringVar(&inspectLabels, "labels", "", "label2idx.json to resolve label names")
	inspectCmd.Flags().BoolVar(&inspectVerify, "verify", false, "decode every image")
	inspectCmd.Flags().IntVar(&inspectPalette, "palette", 0, "report the k dominant flow colours (0 = off)")
}

type summary struct {
	Entries  int
	Records  int
	Bytes    int64
	PerLabel map[int]int
	Width    int
	Height   int
	Palette  []kmeans.Cluster
}

// paletteStride samples every n-th pixel; darkLevel is the value below
// which a pixel counts as static.
const (
	paletteStride = 4
	darkLevel     = 16
)

func samplePixels(img image.Image, dst [][3]uint8) [][3]uint8 {
	b := img.Bounds()
	n := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			n++
			if n%paletteStride != 0 {
				continue
			}
			r, g, bl, _ := img.At(x, y).RGBA()
			px := [3]uint8{uint8(r >> 8), uint8(g >> 8), uint8(bl >> 8)}
			if max(px[0], px[1], px[2]) < darkLevel {
				continue
			}
			dst = append(dst, px)
		}
	}
	return dst
}

func summarize(r *gulp.Reader, verify bool, palette int) (summary, error) {
	s := summary{PerLabel: map[int]int{}}
	records := map[string]struct{}{}
	var pixels [][3]uint8
	decodeAll := verify || palette > 0
	for i, e := range r.Entries() {
		s.Entries++
		s.Bytes += e.Length
		s.PerLabel[e.LabelID]++
		records[e.RecordID] = struct{}{}
		if !decodeAll && i > 0 {
			continue
		}
		img, err := r.Image(e)
		if err != nil {
			return s, fmt.Errorf("entry %d (%s): %w", i, e.RecordID, err)
		}
		if i == 0 {
			s.Width, s.Height = img.Bounds().Dx(), img.Bounds().Dy()
		}
		if palette > 0 {
			pixels = samplePixels(img, pixels)
		}
	}
	s.Records = len(records)
	if palette > 0 {
		s.Palette = kmeans.Fit(pixels, palette, 20, rand.New(rand.NewPCG(1, 1)))
	}
	return s, nil
}

func (s summary) print(w io.Writer, labels *corpus.LabelIndex) {
	fmt.Fprintf(w, "entries %d  records %d  image bytes %d", s.Entries, s.Records, s.Bytes)
	if s.Entries > 0 {
		fmt.Fprintf(w, "  first image %dx%d", s.Width, s.Height)
	}
	fmt.Fprintln(w)

	ids := make([]int, 0, len(s.PerLabel))
	for id := range s.PerLabel {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		name := "?"
		if labels != nil {
			if l, ok := labels.Label(id); ok {
				name = l
			}
		}
		fmt.Fprintf(w, "%5d  %-40s %d\n", id, name, s.PerLabel[id])
	}

	total := 0
	for _, c := range s.Palette {
		total += c.Size
	}
	for _, c := range s.Palette {
		col := colorful.Color{R: c.Center[0] / 255, G: c.Center[1] / 255, B: c.Center[2] / 255}.Clamped()
		h, _, v := col.Hsv()
		fmt.Fprintf(w, "palette %s  direction %3.0f deg  value %3.0f  share %5.1f%%\n",
			col.Hex(), h, v*255, 100*float64(c.Size)/float64(max(total, 1)))
	}
}
