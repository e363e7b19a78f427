package gulp

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os"

	"github.com/vmihailenco/msgpack/v5"
)

// Reader gives random access to the images of a sealed container.
type Reader struct {
	data    *os.File
	entries []Entry
}

// Open loads the metadata index and opens the data file.
func Open(dataPath, metaPath string) (*Reader, error) {
	entries, err := ReadMeta(metaPath)
	if err != nil {
		return nil, err
	}
	data, err := os.Open(dataPath)
	if err != nil {
		return nil, fmt.Errorf("open data file: %w", err)
	}
	return &Reader{data: data, entries: entries}, nil
}

// ReadMeta decodes every entry of a meta file in write order.
func ReadMeta(metaPath string) ([]Entry, error) {
	f, err := os.Open(metaPath)
	if err != nil {
		return nil, fmt.Errorf("open meta file: %w", err)
	}
	defer f.Close()

	dec := msgpack.NewDecoder(bufio.NewReader(f))
	var entries []Entry
	for {
		var e Entry
		err := dec.Decode(&e)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode meta entry %d: %w", len(entries), err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Entries returns the index in write order.
func (r *Reader) Entries() []Entry { return r.entries }

// Bytes returns the encoded image of e without padding.
func (r *Reader) Bytes(e Entry) ([]byte, error) {
	buf := make([]byte, e.Length)
	if _, err := r.data.ReadAt(buf, e.Offset); err != nil {
		return nil, fmt.Errorf("read image at %d: %w", e.Offset, err)
	}
	return buf, nil
}

// Image decodes the image of e.
func (r *Reader) Image(e Entry) (image.Image, error) {
	b, err := r.Bytes(e)
	if err != nil {
		return nil, err
	}
	img, err := jpeg.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("decode image at %d: %w", e.Offset, err)
	}
	return img, nil
}

func (r *Reader) Close() error { return r.data.Close() }
