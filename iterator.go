package dbset

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"
)

// Iterator streams typed documents off a driver cursor, one batch per
// suspension point. Iterators are single-consumer; the consumer owns disposal
// and must Close on early exit:
//
//	it, err := users.Find(ctx, q, nil)
//	if err != nil {
//	    ...
//	}
//	defer it.Close(ctx)
//	for it.Next(ctx) {
//	    u := it.Value()
//	    ...
//	}
//	if err := it.Err(); err != nil {
//	    ...
//	}
type Iterator[T any] struct {
	cursor  *mongo.Cursor
	current T
	err     error
	closed  bool
}

func newIterator[T any](cursor *mongo.Cursor) *Iterator[T] {
	return &Iterator[T]{cursor: cursor}
}

// Next advances to the next document, decoding it into Value. It returns false
// at the end of the stream, on decode failure, and on cancellation; the cursor
// is disposed before a cancellation error is reported.
func (it *Iterator[T]) Next(ctx context.Context) bool {
	if it.err != nil || it.closed {
		return false
	}
	if !it.cursor.Next(ctx) {
		it.err = it.cursor.Err()
		it.dispose(ctx)
		return false
	}
	doc := newDocumentValue[T]()
	if err := it.cursor.Decode(&doc); err != nil {
		it.err = err
		it.dispose(ctx)
		return false
	}
	it.current = doc
	return true
}

// Value returns the document decoded by the last successful Next.
func (it *Iterator[T]) Value() T { return it.current }

// Err returns the first error observed while iterating. End of stream is not
// an error.
func (it *Iterator[T]) Err() error { return it.err }

// Close disposes the underlying cursor. It is safe to call more than once.
func (it *Iterator[T]) Close(ctx context.Context) error {
	it.dispose(ctx)
	return it.err
}

func (it *Iterator[T]) dispose(ctx context.Context) {
	if it.closed || it.cursor == nil {
		return
	}
	it.closed = true
	if err := it.cursor.Close(ctx); err != nil && it.err == nil {
		it.err = err
	}
}

// All drains the iterator into a slice and disposes the cursor.
func (it *Iterator[T]) All(ctx context.Context) ([]T, error) {
	defer it.dispose(ctx)
	var out []T
	for it.Next(ctx) {
		out = append(out, it.current)
	}
	return out, it.err
}
