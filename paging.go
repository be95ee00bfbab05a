package dbset

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// PagedResult is the immutable container returned by the paged reads: one page
// of results plus the paging metadata observed when the page was fetched.
type PagedResult[T any] struct {
	Results     []T
	CurrentPage int64
	PageSize    int64
	RowCount    int64
}

// NewPagedResult normalizes items into a page container.
func NewPagedResult[T any](items []T, currentPage, pageSize, rowCount int64) *PagedResult[T] {
	return &PagedResult[T]{
		Results:     items,
		CurrentPage: currentPage,
		PageSize:    pageSize,
		RowCount:    rowCount,
	}
}

// PageCount returns the number of pages the full result set spans.
func (p *PagedResult[T]) PageCount() int64 {
	if p.PageSize <= 0 {
		return 0
	}
	return (p.RowCount + p.PageSize - 1) / p.PageSize
}

// Len returns the number of items on this page.
func (p *PagedResult[T]) Len() int { return len(p.Results) }

// At returns the item at position i on this page.
func (p *PagedResult[T]) At(i int) T { return p.Results[i] }

// ConvertPage maps every element of a page to another element type, preserving
// the paging metadata and element order. A nil fn falls back to a JSON
// round-trip between the two types. Parallel mode converts elements
// concurrently, each writing its own fixed position. onItem, when given, is
// invoked per converted item for side channels.
func ConvertPage[U, T any](
	p *PagedResult[T],
	fn func(T) (U, error),
	parallel bool,
	onItem ...func(index int, item U),
) (*PagedResult[U], error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil page", ErrInvalidArgument)
	}
	if fn == nil {
		fn = jsonConvert[U, T]
	}

	converted := make([]U, len(p.Results))
	if parallel {
		g, _ := errgroup.WithContext(context.Background())
		for i := range p.Results {
			g.Go(func() error {
				out, err := fn(p.Results[i])
				if err != nil {
					return err
				}
				converted[i] = out
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		for i, item := range p.Results {
			out, err := fn(item)
			if err != nil {
				return nil, err
			}
			converted[i] = out
		}
	}

	for _, emit := range onItem {
		for i, item := range converted {
			emit(i, item)
		}
	}
	return NewPagedResult(converted, p.CurrentPage, p.PageSize, p.RowCount), nil
}

func jsonConvert[U, T any](in T) (U, error) {
	out := newDocumentValue[U]()
	data, err := json.Marshal(in)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, err
	}
	return out, nil
}

// facetResult is the envelope of the $facet paging pattern: the page of
// results plus the filtered total computed in the same round-trip.
type facetResult[T any] struct {
	Result []T          `bson:"result"`
	Total  []facetTotal `bson:"total"`
}

type facetTotal struct {
	Total int64 `bson:"total"`
}

// TotalRows returns the filtered total, or 0 when the total facet is empty.
func (f *facetResult[T]) TotalRows() int64 {
	if len(f.Total) == 0 {
		return 0
	}
	return f.Total[0].Total
}
