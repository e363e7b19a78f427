// Package worker dispatches independent chunks to a chunk function, either
// one after another or over a fixed pool of goroutines.
package worker

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"flowset/internal/chunk"
	"flowset/internal/corpus"
)

// ChunkFunc processes one chunk.
type ChunkFunc func(ctx context.Context, c corpus.Chunk) (chunk.Result, error)

// Outcome pairs a chunk's result with its error.
type Outcome struct {
	Result chunk.Result
	Err    error
}

// Dispatcher runs fn over every chunk. Outcomes are returned in chunk order
// whatever the completion order.
type Dispatcher interface {
	Dispatch(ctx context.Context, chunks []corpus.Chunk, fn ChunkFunc) []Outcome
}

// Sequential processes chunks in order on the calling goroutine.
type Sequential struct{}

func (Sequential) Dispatch(ctx context.Context, chunks []corpus.Chunk, fn ChunkFunc) []Outcome {
	out := make([]Outcome, len(chunks))
	for i, c := range chunks {
		if err := ctx.Err(); err != nil {
			out[i] = Outcome{Result: chunk.Result{Chunk: c.Index}, Err: err}
			continue
		}
		res, err := fn(ctx, c)
		out[i] = Outcome{Result: res, Err: err}
	}
	return out
}

// Pool processes up to Workers chunks concurrently.
type Pool struct {
	Workers int
}

type job struct {
	pos int
	c   corpus.Chunk
}

type done struct {
	pos int
	o   Outcome
}

func (p Pool) Dispatch(ctx context.Context, chunks []corpus.Chunk, fn ChunkFunc) []Outcome {
	workers := min(max(p.Workers, 1), max(len(chunks), 1))
	jobs := make(chan job, workers)
	results := make(chan done, len(chunks))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				if err := ctx.Err(); err != nil {
					results <- done{j.pos, Outcome{Result: chunk.Result{Chunk: j.c.Index}, Err: err}}
					continue
				}
				res, err := fn(ctx, j.c)
				results <- done{j.pos, Outcome{Result: res, Err: err}}
			}
		}()
	}

	for i, c := range chunks {
		jobs <- job{pos: i, c: c}
	}
	close(jobs)
	wg.Wait()
	close(results)

	out := make([]Outcome, len(chunks))
	for d := range results {
		out[d.pos] = d.o
	}
	return out
}

// New returns the dispatcher for mode: "sequential" (or empty) or "pool".
func New(mode string, workers int) (Dispatcher, error) {
	switch strings.ToLower(mode) {
	case "", "sequential":
		return Sequential{}, nil
	case "pool":
		if workers <= 0 {
			return nil, fmt.Errorf("pool dispatch needs a positive worker count, got %d", workers)
		}
		return Pool{Workers: workers}, nil
	default:
		return nil, fmt.Errorf("unknown dispatch mode %q", mode)
	}
}
