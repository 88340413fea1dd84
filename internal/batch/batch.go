// Package batch runs work in fixed-size batches: batches run one after the
// other, items inside a batch run concurrently.
package batch

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// ErrInvalidBatchSize is returned when the batch size is below one.
var ErrInvalidBatchSize = errors.New("batch size must be >= 1")

// Handler processes one item.
type Handler[T any] func(ctx context.Context, item T) error

// Option tweaks a Run call.
type Option func(*options)

type options struct {
	onBatch func(index, total int)
}

// WithBatchStart registers a callback invoked before each batch starts with
// the 1-based batch index and the total number of batches.
func WithBatchStart(fn func(index, total int)) Option {
	return func(o *options) {
		o.onBatch = fn
	}
}

// Chunk splits items into ordered slices of at most size elements.
func Chunk[T any](items []T, size int) [][]T {
	if size < 1 || len(items) == 0 {
		return nil
	}
	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		chunks = append(chunks, items[start:end:end])
	}
	return chunks
}

// Run processes items in batches of size. Every item of a batch runs on its
// own goroutine and the batch completes only once all of them returned. When
// any item fails, the batch error is returned and no later batch starts.
func Run[T any](ctx context.Context, items []T, size int, handler Handler[T], opts ...Option) error {
	if size < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidBatchSize, size)
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	chunks := Chunk(items, size)
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("batch %d of %d: %w", i+1, len(chunks), err)
		}
		if o.onBatch != nil {
			o.onBatch(i+1, len(chunks))
		}
		if err := runOne(ctx, chunk, handler); err != nil {
			return fmt.Errorf("batch %d of %d: %w", i+1, len(chunks), err)
		}
	}
	return nil
}

func runOne[T any](ctx context.Context, chunk []T, handler Handler[T]) error {
	// A plain group lets siblings of a failed item settle on their own.
	var g errgroup.Group
	for _, item := range chunk {
		g.Go(func() error {
			return handler(ctx, item)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return nil
}
