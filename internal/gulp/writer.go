package gulp

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"os"

	"github.com/vmihailenco/msgpack/v5"

	"flowset/internal/contract"
)

// DefaultQuality is the JPEG quality used when Options.Quality is zero.
const DefaultQuality = 95

// Options configures a Writer.
type Options struct {
	// Quality is the JPEG quality in [1, 100].
	Quality int
	// BufSize is the write buffer size of each file; <=0 uses 64KiB.
	BufSize int
}

// Writer appends images to a container pair. It is owned by one goroutine.
type Writer struct {
	dataFile *os.File
	metaFile *os.File
	data     *bufio.Writer
	meta     *bufio.Writer
	enc      *msgpack.Encoder

	quality int
	encoded bytes.Buffer
	offset  int64
	count   int
	sealed  bool
}

var _ contract.Container = (*Writer)(nil)

// Factory returns a contract.ContainerFactory creating Writers with opts.
func Factory(opts Options) contract.ContainerFactory {
	return func(dataPath, metaPath string) (contract.Container, error) {
		w, err := Create(dataPath, metaPath, opts)
		if err != nil {
			return nil, err
		}
		return w, nil
	}
}

// Create opens (truncating) the data and meta files for writing.
func Create(dataPath, metaPath string, opts Options) (*Writer, error) {
	quality := opts.Quality
	if quality == 0 {
		quality = DefaultQuality
	}
	if quality < 1 || quality > 100 {
		return nil, fmt.Errorf("jpeg quality %d out of range", quality)
	}
	bufSize := opts.BufSize
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}

	dataFile, err := os.Create(dataPath)
	if err != nil {
		return nil, fmt.Errorf("error creating data file: %w", err)
	}
	metaFile, err := os.Create(metaPath)
	if err != nil {
		dataFile.Close()
		return nil, fmt.Errorf("error creating meta file: %w", err)
	}

	meta := bufio.NewWriterSize(metaFile, bufSize)
	return &Writer{
		dataFile: dataFile,
		metaFile: metaFile,
		data:     bufio.NewWriterSize(dataFile, bufSize),
		meta:     meta,
		enc:      msgpack.NewEncoder(meta),
		quality:  quality,
	}, nil
}

// Write encodes img and appends it under (labelID, recordID).
func (w *Writer) Write(labelID int, recordID string, img image.Image) error {
	if w.sealed {
		return ErrSealed
	}

	w.encoded.Reset()
	if err := jpeg.Encode(&w.encoded, img, &jpeg.Options{Quality: w.quality}); err != nil {
		return fmt.Errorf("encode image: %w", err)
	}
	n := w.encoded.Len()
	pad := padding(n)
	w.encoded.Write(make([]byte, pad))

	entry := Entry{
		LabelID:  labelID,
		RecordID: recordID,
		Offset:   w.offset,
		Length:   int64(n),
		Pad:      pad,
	}
	// offset tracks bytes handed to the data file, indexed or not, so later
	// entries stay correct after a failed meta write
	written, err := w.data.Write(w.encoded.Bytes())
	w.offset += int64(written)
	if err != nil {
		return fmt.Errorf("write data: %w", err)
	}
	if err := w.enc.Encode(&entry); err != nil {
		return fmt.Errorf("write meta: %w", err)
	}
	w.count++
	return nil
}

// Close flushes and closes both files. The writer is sealed even when
// flushing fails.
func (w *Writer) Close() error {
	if w.sealed {
		return nil
	}
	w.sealed = true

	var errs []error
	if err := w.data.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("flush data: %w", err))
	}
	if err := w.meta.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("flush meta: %w", err))
	}
	if err := w.dataFile.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close data: %w", err))
	}
	if err := w.metaFile.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close meta: %w", err))
	}
	return errors.Join(errs...)
}
