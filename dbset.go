package dbset

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// DbSet is the typed collection handle: every CRUD, bulk, aggregation and
// index operation for one document type, bound to a Context and a collection
// name. Handles are cheap and idempotent; constructing two handles for the
// same type yields equivalent handles sharing the Context's metadata cache.
type DbSet[T Document[ID], ID comparable] struct {
	owner            *Context
	coll             *mongo.Collection
	name             string
	logger           *zap.Logger
	throwIndexErrors bool
	isTenant         bool
	meta             *CollectionMetadata
}

type dbSetSettings struct {
	name             string
	indexKeys        *IndexKeys
	throwIndexErrors bool
}

// DbSetOption customizes a handle at construction time.
type DbSetOption func(*dbSetSettings)

// WithCollectionName overrides the collection name derived from the document
// type.
func WithCollectionName(name string) DbSetOption {
	return func(s *dbSetSettings) { s.name = name }
}

// WithIndexKeys declares indexes to materialize for the collection, in
// addition to the tenant defaults when the document carries the tenant facet.
func WithIndexKeys(keys *IndexKeys) DbSetOption {
	return func(s *dbSetSettings) { s.indexKeys = keys }
}

// WithThrowIndexExceptions surfaces index-build failures as errors instead of
// logging and swallowing them.
func WithThrowIndexExceptions() DbSetOption {
	return func(s *dbSetSettings) { s.throwIndexErrors = true }
}

// GetDbSet returns the collection handle for a document type, creating the
// collection metadata and materializing the declared indexes on first
// construction for the collection name:
//
//	users, err := dbset.GetDbSet[*User, string](ctx, c)
func GetDbSet[T Document[ID], ID comparable](ctx context.Context, c *Context, opts ...DbSetOption) (*DbSet[T, ID], error) {
	if c == nil {
		return nil, fmt.Errorf("%w: nil context", ErrInvalidArgument)
	}
	settings := dbSetSettings{}
	for _, opt := range opts {
		opt(&settings)
	}
	name := settings.name
	if name == "" {
		name = collectionNameFor[T]()
	}

	_, isTenant := any(newDocumentValue[T]()).(TenantAudited)
	s := &DbSet[T, ID]{
		owner:            c,
		coll:             c.db.Collection(name),
		name:             name,
		logger:           c.logger.With(zap.String("collection", name)),
		throwIndexErrors: settings.throwIndexErrors,
		isTenant:         isTenant,
	}

	meta, ok := c.metadataFor(name)
	if !ok {
		keys := NewIndexKeys()
		if isTenant {
			keys.specs = append(keys.specs, DefaultTenantIndexes().specs...)
		}
		if settings.indexKeys != nil {
			settings.indexKeys.seal(nil)
			keys.specs = append(keys.specs, settings.indexKeys.specs...)
		}
		meta = c.storeMetadata(&CollectionMetadata{Name: name, IndexKeys: keys})
		if _, err := s.EnsureIndexes(ctx, meta.IndexKeys, false); err != nil {
			return nil, err
		}
	}
	s.meta = meta
	return s, nil
}

// collectionNameFor derives the default collection name from the document
// type name.
func collectionNameFor[T any]() string {
	var v T
	t := reflect.TypeOf(&v).Elem()
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return strings.ToLower(t.Name())
}

// newDocumentValue returns a decodable value of T: pointer document types get
// an allocated element, value types their zero value.
func newDocumentValue[T any]() T {
	var v T
	t := reflect.TypeOf(&v).Elem()
	if t.Kind() == reflect.Ptr {
		return reflect.New(t.Elem()).Interface().(T)
	}
	return v
}

func isZeroID[ID comparable](id ID) bool {
	var zero ID
	return id == zero
}

// Name returns the collection name the handle is bound to.
func (s *DbSet[T, ID]) Name() string { return s.name }

// Collection returns the underlying driver collection.
func (s *DbSet[T, ID]) Collection() *mongo.Collection { return s.coll }

// Metadata returns the cached per-collection metadata.
func (s *DbSet[T, ID]) Metadata() *CollectionMetadata { return s.meta }

// Drop drops the collection.
func (s *DbSet[T, ID]) Drop(ctx context.Context) error {
	return s.coll.Drop(ctx)
}

// EnsureIndexes materializes keys on the collection. With force, same-named
// existing indexes are dropped first. Failures are logged and swallowed
// (returning false) unless the handle was built with
// WithThrowIndexExceptions.
func (s *DbSet[T, ID]) EnsureIndexes(ctx context.Context, keys *IndexKeys, force bool) (bool, error) {
	if keys == nil || keys.Len() == 0 {
		return true, nil
	}
	models := keys.Models()
	if force {
		for _, model := range models {
			if model.Options == nil || model.Options.Name == nil {
				continue
			}
			if _, err := s.coll.Indexes().DropOne(ctx, *model.Options.Name); err != nil {
				s.logger.Debug("dropping index before rebuild", zap.String("index", *model.Options.Name), zap.Error(err))
			}
		}
	}
	if _, err := s.coll.Indexes().CreateMany(ctx, models); err != nil {
		if s.throwIndexErrors {
			return false, fmt.Errorf("%w: %w", ErrIndexBuild, err)
		}
		s.logger.Warn("index creation failed", zap.Error(err))
		return false, nil
	}
	return true, nil
}

// GetIndexes lists the collection's indexes as (name, ordered fields), with a
// "-" prefix marking descending fields.
func (s *DbSet[T, ID]) GetIndexes(ctx context.Context) ([]IndexDescription, error) {
	cursor, err := s.coll.Indexes().List(ctx)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var indexes []IndexDescription
	for cursor.Next(ctx) {
		var doc primitive.D
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		m := doc.Map()
		desc := IndexDescription{}
		if name, ok := m["name"].(string); ok {
			desc.Name = name
		}
		if keyDoc, ok := m["key"].(primitive.D); ok {
			for _, elem := range keyDoc {
				prefix := ""
				if v, ok := elem.Value.(int32); ok && v == -1 {
					prefix = "-"
				}
				desc.Keys = append(desc.Keys, prefix+elem.Key)
			}
		}
		indexes = append(indexes, desc)
	}
	return indexes, cursor.Err()
}

// IsDuplicateKeyError reports whether err is a unique-index violation, such as
// a second document with the same (tenant, ref, disabled) triple.
func IsDuplicateKeyError(err error) bool {
	return mongo.IsDuplicateKeyError(err)
}
