package dbset

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// hookedInsertDoc runs the BeforeInsert hook and stamps the tenant facet's
// insert-time defaults. Stamping runs after the hook and fills Ref, CreatedBy
// and CreatedAt only when they are still empty, so values the hook set there
// are kept; UpdatedAt is always set to the insert time.
func (s *DbSet[T, ID]) hookedInsertDoc(doc T) (T, error) {
	var zero T
	out, err := s.owner.beforeInsertInternal(doc)
	if err != nil {
		return zero, err
	}
	typed, ok := out.(T)
	if !ok {
		return zero, fmt.Errorf("%w: BeforeInsert changed the document type", ErrInvalidArgument)
	}
	if s.isTenant {
		stampForInsert(typed, time.Now().UTC())
	}
	return typed, nil
}

func (s *DbSet[T, ID]) hookedReplaceDoc(doc T) (T, error) {
	var zero T
	out, err := s.owner.beforeReplaceInternal(doc)
	if err != nil {
		return zero, err
	}
	typed, ok := out.(T)
	if !ok {
		return zero, fmt.Errorf("%w: BeforeReplace changed the document type", ErrInvalidArgument)
	}
	if s.isTenant {
		stampForReplace(typed, time.Now().UTC())
	}
	return typed, nil
}

// hookedUpdate runs the BeforeUpdate hook and, for tenant-faceted documents,
// stamps updatedAt unless the update already touches it. The caller's update
// is never mutated.
func (s *DbSet[T, ID]) hookedUpdate(u *Update) (*Update, error) {
	out, err := s.owner.beforeUpdateInternal(u)
	if err != nil {
		return nil, err
	}
	if !s.isTenant || out.touchesField("updatedAt") {
		return out, nil
	}
	stamped := &Update{ops: append(append([]updateOp{}, out.ops...),
		updateOp{operator: "$set", field: "updatedAt", value: time.Now().UTC()})}
	return stamped, nil
}

// Insert inserts one document through the pre-write pipeline. It returns 1 on
// success, 0 when the resulting id is still the default, and the -1 sentinel
// for an unacknowledged write.
func (s *DbSet[T, ID]) Insert(ctx context.Context, doc T, opts *InsertOneOptions) (int64, error) {
	hooked, err := s.hookedInsertDoc(doc)
	if err != nil {
		return 0, err
	}
	sctx, err := s.owner.sessionContext(ctx, forceFromOptions(opts))
	if err != nil {
		return 0, err
	}
	res, err := s.coll.InsertOne(sctx, hooked, opts.toDriver())
	if err != nil {
		if errors.Is(err, mongo.ErrUnacknowledgedWrite) {
			return UnacknowledgedCount, nil
		}
		return 0, err
	}
	if isZeroID(hooked.DocumentID()) {
		if id, ok := res.InsertedID.(ID); ok {
			hooked.SetDocumentID(id)
		}
	}
	if isZeroID(hooked.DocumentID()) {
		return 0, nil
	}
	return 1, nil
}

// InsertMany inserts the documents as a bulk write of insertOne models, so
// the pre-write pipeline runs per document. A bulk translated from
// InsertManyOptions is ordered unless IsOrdered overrides it.
func (s *DbSet[T, ID]) InsertMany(ctx context.Context, docs []T, opts *InsertManyOptions) (int64, error) {
	return s.InsertManyBulk(ctx, docs, opts.toBulkWriteOptions())
}

// InsertManyBulk is InsertMany with explicit bulk-write options; the bulk is
// unordered unless IsOrdered is set.
func (s *DbSet[T, ID]) InsertManyBulk(ctx context.Context, docs []T, opts *BulkWriteOptions) (int64, error) {
	models := make([]mongo.WriteModel, 0, len(docs))
	for _, doc := range docs {
		hooked, err := s.hookedInsertDoc(doc)
		if err != nil {
			return 0, err
		}
		models = append(models, mongo.NewInsertOneModel().SetDocument(hooked))
	}
	return s.bulkWrite(ctx, models, opts)
}

// replaceFilter resolves the filter for a replace: nil queries match the
// document's own id, template queries are completed with the document, and
// anything else renders as-is.
func (s *DbSet[T, ID]) replaceFilter(doc T, q *Query) (interface{}, error) {
	if q == nil {
		return bson.M{"_id": doc.DocumentID()}, nil
	}
	query := *q
	if query.kind == queryTemplate {
		completed, err := query.CompleteExpression(doc)
		if err != nil {
			return nil, err
		}
		query = completed
	}
	return query.Render()
}

// Replace replaces one document through the pre-write pipeline. It returns the
// modified count, or the -1 sentinel for an unacknowledged write.
func (s *DbSet[T, ID]) Replace(ctx context.Context, doc T, q *Query, opts *ReplaceOptions) (int64, error) {
	hooked, err := s.hookedReplaceDoc(doc)
	if err != nil {
		return 0, err
	}
	filter, err := s.replaceFilter(hooked, q)
	if err != nil {
		return 0, err
	}
	sctx, err := s.owner.sessionContext(ctx, forceFromOptions(opts))
	if err != nil {
		return 0, err
	}
	res, err := s.coll.ReplaceOne(sctx, filter, hooked, opts.toDriver())
	if err != nil {
		if errors.Is(err, mongo.ErrUnacknowledgedWrite) {
			return UnacknowledgedCount, nil
		}
		return 0, err
	}
	return res.ModifiedCount, nil
}

// ReplaceMany replaces the documents as a bulk write of replaceOne models.
// Without a query each document matches its own id; a template query is
// completed per document.
func (s *DbSet[T, ID]) ReplaceMany(ctx context.Context, docs []T, q *Query, opts *BulkWriteOptions) (int64, error) {
	models := make([]mongo.WriteModel, 0, len(docs))
	for _, doc := range docs {
		hooked, err := s.hookedReplaceDoc(doc)
		if err != nil {
			return 0, err
		}
		filter, err := s.replaceFilter(hooked, q)
		if err != nil {
			return 0, err
		}
		models = append(models, mongo.NewReplaceOneModel().SetFilter(filter).SetReplacement(hooked))
	}
	return s.bulkWrite(ctx, models, opts)
}

// Update applies an update to the first document matching the query. The
// update is taken from u, or from the query's attached payload when u is nil.
// It returns the modified count, or the -1 sentinel for an unacknowledged
// write.
func (s *DbSet[T, ID]) Update(ctx context.Context, q Query, u *Update, opts *UpdateOptions) (int64, error) {
	return s.update(ctx, q, u, opts, false)
}

// UpdateMany applies an update to every document matching the query.
func (s *DbSet[T, ID]) UpdateMany(ctx context.Context, q Query, u *Update, opts *UpdateOptions) (int64, error) {
	return s.update(ctx, q, u, opts, true)
}

// UpdateAddToSet applies the query's attached update, conventionally built
// with AddToSet.
func (s *DbSet[T, ID]) UpdateAddToSet(ctx context.Context, q Query, opts *UpdateOptions) (int64, error) {
	return s.update(ctx, q, nil, opts, false)
}

// UpdateManyJSON applies a raw extended-JSON update to every document matching
// a raw extended-JSON filter.
func (s *DbSet[T, ID]) UpdateManyJSON(ctx context.Context, filterJSON, updateJSON string, opts *UpdateOptions) (int64, error) {
	var updateDoc bson.D
	if err := bson.UnmarshalExtJSON([]byte(updateJSON), false, &updateDoc); err != nil {
		return 0, fmt.Errorf("parse json update: %w", err)
	}
	return s.update(ctx, QueryFromJSON(filterJSON), UpdateFromDocument(updateDoc), opts, true)
}

func (s *DbSet[T, ID]) update(ctx context.Context, q Query, u *Update, opts *UpdateOptions, many bool) (int64, error) {
	if u == nil {
		u = q.Update()
	}
	if u == nil {
		return 0, fmt.Errorf("%w: update payload is required", ErrInvalidArgument)
	}
	hooked, err := s.hookedUpdate(u)
	if err != nil {
		return 0, err
	}
	filter, err := q.Render()
	if err != nil {
		return 0, err
	}
	sctx, err := s.owner.sessionContext(ctx, forceFromOptions(opts))
	if err != nil {
		return 0, err
	}
	var res *mongo.UpdateResult
	if many {
		res, err = s.coll.UpdateMany(sctx, filter, hooked.Render(), opts.toDriver())
	} else {
		res, err = s.coll.UpdateOne(sctx, filter, hooked.Render(), opts.toDriver())
	}
	if err != nil {
		if errors.Is(err, mongo.ErrUnacknowledgedWrite) {
			return UnacknowledgedCount, nil
		}
		return 0, err
	}
	return res.ModifiedCount, nil
}

// FindOneAndUpdate applies the query's attached update to the first match and
// returns the document, pre- or post-update according to ReturnDocumentAfter.
// A missing match returns ErrNotFound.
func (s *DbSet[T, ID]) FindOneAndUpdate(ctx context.Context, q Query, opts *FindOneAndUpdateOptions) (T, error) {
	var zero T
	u := q.Update()
	if u == nil {
		return zero, fmt.Errorf("%w: update payload is required", ErrInvalidArgument)
	}
	hooked, err := s.hookedUpdate(u)
	if err != nil {
		return zero, err
	}
	filter, err := q.Render()
	if err != nil {
		return zero, err
	}
	sctx, err := s.owner.sessionContext(ctx, forceFromOptions(opts))
	if err != nil {
		return zero, err
	}
	res := s.coll.FindOneAndUpdate(sctx, filter, hooked.Render(), opts.toDriver())
	if err := res.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return zero, ErrNotFound
		}
		return zero, err
	}
	doc := newDocumentValue[T]()
	if err := res.Decode(&doc); err != nil {
		return zero, err
	}
	return doc, nil
}

// DeleteOne deletes the document with the given id, returning 1 or 0, or the
// -1 sentinel for an unacknowledged write.
func (s *DbSet[T, ID]) DeleteOne(ctx context.Context, id ID, opts *DeleteOptions) (int64, error) {
	sctx, err := s.owner.sessionContext(ctx, forceFromOptions(opts))
	if err != nil {
		return 0, err
	}
	res, err := s.coll.DeleteOne(sctx, bson.M{"_id": id}, opts.toDriver())
	if err != nil {
		if errors.Is(err, mongo.ErrUnacknowledgedWrite) {
			return UnacknowledgedCount, nil
		}
		return 0, err
	}
	return res.DeletedCount, nil
}

// DeleteMany deletes every document whose id is in ids, as a bulk write.
func (s *DbSet[T, ID]) DeleteMany(ctx context.Context, ids []ID, opts *BulkWriteOptions) (int64, error) {
	model := mongo.NewDeleteManyModel().SetFilter(bson.M{"_id": bson.M{"$in": ids}})
	return s.bulkWrite(ctx, []mongo.WriteModel{model}, opts)
}

// DeleteManyQuery deletes every document matching the query, as a bulk write.
func (s *DbSet[T, ID]) DeleteManyQuery(ctx context.Context, q Query, opts *BulkWriteOptions) (int64, error) {
	filter, err := q.Render()
	if err != nil {
		return 0, err
	}
	model := mongo.NewDeleteManyModel().SetFilter(filter)
	return s.bulkWrite(ctx, []mongo.WriteModel{model}, opts)
}

// bulkWrite issues the models and reduces the acknowledged result to one
// affected count.
func (s *DbSet[T, ID]) bulkWrite(ctx context.Context, models []mongo.WriteModel, opts *BulkWriteOptions) (int64, error) {
	if len(models) == 0 {
		return 0, nil
	}
	sctx, err := s.owner.sessionContext(ctx, forceFromOptions(opts))
	if err != nil {
		return 0, err
	}
	res, err := s.coll.BulkWrite(sctx, models, opts.toDriver())
	if err != nil {
		if errors.Is(err, mongo.ErrUnacknowledgedWrite) {
			return UnacknowledgedCount, nil
		}
		return 0, err
	}
	return res.InsertedCount + res.ModifiedCount + res.DeletedCount + res.UpsertedCount, nil
}
