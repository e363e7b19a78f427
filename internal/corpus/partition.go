package corpus

import (
	"errors"
	"fmt"
	"math/rand/v2"
)

// Chunk is a contiguous group of records written to one container pair.
type Chunk struct {
	Index   int
	Records []VideoRecord
}

// DataFile is the name of the chunk's image data file.
func (c Chunk) DataFile() string { return fmt.Sprintf("data%03d.bin", c.Index) }

// MetaFile is the name of the chunk's metadata file.
func (c Chunk) MetaFile() string { return fmt.Sprintf("meta%03d.bin", c.Index) }

// Partition shuffles a copy of records with rng and splits it into chunks
// of chunkSize records; the last chunk may be smaller. Shuffling spreads
// labels across chunks so no chunk is label-homogeneous.
func Partition(records []VideoRecord, chunkSize int, rng *rand.Rand) ([]Chunk, error) {
	if chunkSize <= 0 {
		return nil, errors.New("chunk size must be positive")
	}
	shuffled := append([]VideoRecord(nil), records...)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	var chunks []Chunk
	for i := 0; i < len(shuffled); i += chunkSize {
		end := min(i+chunkSize, len(shuffled))
		chunks = append(chunks, Chunk{
			Index:   len(chunks),
			Records: shuffled[i:end:end],
		})
	}
	return chunks, nil
}

// NewRand returns a generator for Partition. A zero seed draws a random one.
func NewRand(seed uint64) *rand.Rand {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
