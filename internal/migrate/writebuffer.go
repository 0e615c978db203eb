package migrate

import "context"

// DefaultBatchSize is the number of rows a WriteBuffer accumulates before
// flushing, absent an explicit override.
const DefaultBatchSize = 4096

// FlushFunc issues a single multi-row insert for rows against the
// destination writer.
type FlushFunc[T any] func(ctx context.Context, rows []T) error

// WriteBuffer accumulates homogeneous rows bound for one destination table
// and flushes them in bounded batches. It is not safe for concurrent use,
// matches one stage's ownership of one destination-table insert operation,
// and must not be shared across stages (§4.3).
type WriteBuffer[T any] struct {
	flush     FlushFunc[T]
	batchSize int
	rows      []T
	finished  bool
}

// NewWriteBuffer creates a WriteBuffer that flushes through flush once it
// accumulates batchSize rows. A batchSize <= 0 uses DefaultBatchSize.
func NewWriteBuffer[T any](flush FlushFunc[T], batchSize int) *WriteBuffer[T] {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &WriteBuffer[T]{
		flush:     flush,
		batchSize: batchSize,
		rows:      make([]T, 0, batchSize),
	}
}

// Write appends row to the buffer, flushing synchronously first if the
// buffer is already at capacity.
func (b *WriteBuffer[T]) Write(ctx context.Context, row T) error {
	if b.finished {
		panic("migrate: write to a finished WriteBuffer")
	}

	if len(b.rows) >= b.batchSize {
		if err := b.flushNow(ctx); err != nil {
			return err
		}
	}

	b.rows = append(b.rows, row)
	return nil
}

// Finish flushes any residual rows. The buffer must not be written to
// afterwards.
func (b *WriteBuffer[T]) Finish(ctx context.Context) error {
	if b.finished {
		return nil
	}
	err := b.flushNow(ctx)
	b.finished = true
	return err
}

func (b *WriteBuffer[T]) flushNow(ctx context.Context) error {
	if len(b.rows) == 0 {
		return nil
	}
	if err := b.flush(ctx, b.rows); err != nil {
		return err
	}
	b.rows = b.rows[:0]
	return nil
}
