package dbset

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// normalizePipeline accepts the common pipeline shapes and lowers them to a
// stage list the hook pipeline and the driver both understand.
func normalizePipeline(pipeline interface{}) ([]interface{}, error) {
	switch p := pipeline.(type) {
	case nil:
		return nil, fmt.Errorf("%w: nil pipeline", ErrInvalidArgument)
	case []interface{}:
		return p, nil
	case bson.A:
		return []interface{}(p), nil
	case mongo.Pipeline:
		stages := make([]interface{}, len(p))
		for i, stage := range p {
			stages[i] = stage
		}
		return stages, nil
	case []bson.M:
		stages := make([]interface{}, len(p))
		for i, stage := range p {
			stages[i] = stage
		}
		return stages, nil
	case []bson.D:
		stages := make([]interface{}, len(p))
		for i, stage := range p {
			stages[i] = stage
		}
		return stages, nil
	case bson.M:
		return []interface{}{p}, nil
	case bson.D:
		return []interface{}{p}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported pipeline type %T", ErrInvalidArgument, pipeline)
	}
}

func (s *DbSet[T, ID]) hookedPipeline(pipeline interface{}) ([]interface{}, error) {
	stages, err := normalizePipeline(pipeline)
	if err != nil {
		return nil, err
	}
	return s.owner.beforeAggregateInternal(stages)
}

// Aggregate runs the pipeline through the pre-aggregate hook and materializes
// every result, decoded into the projection type P:
//
//	totals, err := dbset.Aggregate[*RefTotal](ctx, users, mongo.Pipeline{...}, nil)
func Aggregate[P any, T Document[ID], ID comparable](ctx context.Context, s *DbSet[T, ID], pipeline interface{}, opts *AggregateOptions) ([]P, error) {
	it, err := AggregateIter[P](ctx, s, pipeline, opts)
	if err != nil {
		return nil, err
	}
	return it.All(ctx)
}

// AggregateIter runs the pipeline through the pre-aggregate hook and streams
// the results, decoded into the projection type P.
func AggregateIter[P any, T Document[ID], ID comparable](ctx context.Context, s *DbSet[T, ID], pipeline interface{}, opts *AggregateOptions) (*Iterator[P], error) {
	stages, err := s.hookedPipeline(pipeline)
	if err != nil {
		return nil, err
	}
	sctx, err := s.owner.sessionContext(ctx, forceFromOptions(opts))
	if err != nil {
		return nil, err
	}
	cursor, err := s.coll.Aggregate(sctx, stages, opts.toDriver())
	if err != nil {
		return nil, err
	}
	return newIterator[P](cursor), nil
}

// buildFacetPipeline wraps a base pipeline in the one-round-trip paging
// facet: the result facet appends $skip/$limit, the total facet appends
// $count. The base stages are shared, never mutated.
func buildFacetPipeline(base []interface{}, skip, limit int64) []interface{} {
	resultPipeline := append(append([]interface{}{}, base...),
		bson.M{"$skip": skip},
		bson.M{"$limit": limit},
	)
	totalPipeline := append(append([]interface{}{}, base...),
		bson.M{"$count": "total"},
	)
	return []interface{}{bson.M{"$facet": bson.M{
		"result": resultPipeline,
		"total":  totalPipeline,
	}}}
}

// AggregateFacet pages an aggregation in one round-trip: the hook-transformed
// pipeline is wrapped in a $facet computing the page (skip/limit) and the
// filtered total ($count) side by side.
func (s *DbSet[T, ID]) AggregateFacet(ctx context.Context, pipeline interface{}, opts *AggregateOptionsPaging) (*PagedResult[T], error) {
	skip, limit, currentPage, pageSize, err := opts.resolve()
	if err != nil {
		return nil, err
	}
	base, err := s.hookedPipeline(pipeline)
	if err != nil {
		return nil, err
	}
	facet := buildFacetPipeline(base, skip, limit)

	sctx, err := s.owner.sessionContext(ctx, forceFromOptions(&opts.AggregateOptions))
	if err != nil {
		return nil, err
	}
	cursor, err := s.coll.Aggregate(sctx, facet, opts.AggregateOptions.toDriver())
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	envelope := facetResult[T]{}
	if cursor.Next(ctx) {
		if err := cursor.Decode(&envelope); err != nil {
			return nil, err
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return NewPagedResult(envelope.Result, currentPage, pageSize, envelope.TotalRows()), nil
}
