package dbset

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/mongo"
)

// Get returns the document with the given id, or nil when no document
// matches.
func (s *DbSet[T, ID]) Get(ctx context.Context, id ID, opts *FindOptions) (T, error) {
	return s.GetOne(ctx, QueryByID(id), opts)
}

// GetOne returns the first document matching the query, or nil when none
// does.
func (s *DbSet[T, ID]) GetOne(ctx context.Context, q Query, opts *FindOptions) (T, error) {
	var zero T
	filter, err := q.Render()
	if err != nil {
		return zero, err
	}
	sctx, err := s.owner.sessionContext(ctx, forceFromOptions(opts))
	if err != nil {
		return zero, err
	}
	res := s.coll.FindOne(sctx, filter, opts.toDriverFindOne())
	if err := res.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return zero, nil
		}
		return zero, err
	}
	doc := newDocumentValue[T]()
	if err := res.Decode(&doc); err != nil {
		return zero, err
	}
	return doc, nil
}

// FirstOrDefault is GetOne without a projection: the first match or nil.
func (s *DbSet[T, ID]) FirstOrDefault(ctx context.Context, q Query, opts *FindOptions) (T, error) {
	return s.GetOne(ctx, q, opts)
}

// GetMany streams every document whose id is in ids.
func (s *DbSet[T, ID]) GetMany(ctx context.Context, ids []ID, opts *FindOptions) (*Iterator[T], error) {
	return s.Find(ctx, QueryByIDs(ids), opts)
}

// Find streams the documents matching the query. The caller owns the returned
// iterator and must close it on early exit.
func (s *DbSet[T, ID]) Find(ctx context.Context, q Query, opts *FindOptions) (*Iterator[T], error) {
	return findAs[T](ctx, s, q, opts)
}

// FindProjected streams the documents matching the query, decoded into the
// projection type P. Pair it with FindOptions.Projection to shape the
// documents server-side.
func FindProjected[P any, T Document[ID], ID comparable](ctx context.Context, s *DbSet[T, ID], q Query, opts *FindOptions) (*Iterator[P], error) {
	return findAs[P](ctx, s, q, opts)
}

// GetOneProjected returns the first match decoded into the projection type P,
// or P's zero value when none does.
func GetOneProjected[P any, T Document[ID], ID comparable](ctx context.Context, s *DbSet[T, ID], q Query, opts *FindOptions) (P, error) {
	var zero P
	filter, err := q.Render()
	if err != nil {
		return zero, err
	}
	sctx, err := s.owner.sessionContext(ctx, forceFromOptions(opts))
	if err != nil {
		return zero, err
	}
	res := s.coll.FindOne(sctx, filter, opts.toDriverFindOne())
	if err := res.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return zero, nil
		}
		return zero, err
	}
	out := newDocumentValue[P]()
	if err := res.Decode(&out); err != nil {
		return zero, err
	}
	return out, nil
}

func findAs[U any, T Document[ID], ID comparable](ctx context.Context, s *DbSet[T, ID], q Query, opts *FindOptions) (*Iterator[U], error) {
	filter, err := q.Render()
	if err != nil {
		return nil, err
	}
	sctx, err := s.owner.sessionContext(ctx, forceFromOptions(opts))
	if err != nil {
		return nil, err
	}
	cursor, err := s.coll.Find(sctx, filter, opts.toDriver())
	if err != nil {
		return nil, err
	}
	return newIterator[U](cursor), nil
}

// FullTextSearch streams the documents matching a $text search, optionally
// conjoined with an extra filter.
func (s *DbSet[T, ID]) FullTextSearch(ctx context.Context, text string, textOpts *FullTextSearchOptions, extra *Query, opts *FindOptions) (*Iterator[T], error) {
	q := QueryFromText(text, textOpts)
	if extra != nil {
		q = q.And(*extra)
	}
	return s.Find(ctx, q, opts)
}

// CountDocuments counts the documents matching the query.
func (s *DbSet[T, ID]) CountDocuments(ctx context.Context, q Query, opts *CountOptions) (int64, error) {
	filter, err := q.Render()
	if err != nil {
		return 0, err
	}
	sctx, err := s.owner.sessionContext(ctx, forceFromOptions(opts))
	if err != nil {
		return 0, err
	}
	return s.coll.CountDocuments(sctx, filter, opts.toDriver())
}

// EstimatedCount returns the collection's estimated document count from
// metadata, without running a filter.
func (s *DbSet[T, ID]) EstimatedCount(ctx context.Context) (int64, error) {
	return s.coll.EstimatedDocumentCount(ctx)
}

// Any reports whether at least one document matches the query. It counts with
// limit 1, so a match on a large collection returns early.
func (s *DbSet[T, ID]) Any(ctx context.Context, q Query, opts *CountOptions) (bool, error) {
	limited := CountOptions{}
	if opts != nil {
		limited = *opts
	}
	limited.Skip = Ptr(int64(0))
	limited.Limit = Ptr(int64(1))
	n, err := s.CountDocuments(ctx, q, &limited)
	return n > 0, err
}

// GetPaged returns one page of the documents matching the query. The filtered
// total is observed before the page items with the same, unmutated filter;
// under concurrent writes the total is approximate.
func (s *DbSet[T, ID]) GetPaged(ctx context.Context, q Query, opts *FindOptionsPaging) (*PagedResult[T], error) {
	return getPagedAs[T](ctx, s, q, opts)
}

// GetPagedProjected is GetPaged with the page decoded into the projection
// type P.
func GetPagedProjected[P any, T Document[ID], ID comparable](ctx context.Context, s *DbSet[T, ID], q Query, opts *FindOptionsPaging) (*PagedResult[P], error) {
	return getPagedAs[P](ctx, s, q, opts)
}

func getPagedAs[U any, T Document[ID], ID comparable](ctx context.Context, s *DbSet[T, ID], q Query, opts *FindOptionsPaging) (*PagedResult[U], error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	total, err := s.CountDocuments(ctx, q, opts.FindOptions.countOptions())
	if err != nil {
		return nil, err
	}
	it, err := findAs[U](ctx, s, q, opts.pageFindOptions())
	if err != nil {
		return nil, err
	}
	items, err := it.All(ctx)
	if err != nil {
		return nil, err
	}
	return NewPagedResult(items, opts.CurrentPage, opts.PageSize, total), nil
}
