package dbset

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Names of the default indexes declared for documents carrying the tenant
// facet.
const (
	IndexRef               = "IDX_REF"
	IndexDisabled          = "IDX_DISABLED"
	IndexRefDisabled       = "IDX_REF_DISABLED"
	IndexTenant            = "IDX_TENANT"
	IndexTenantRefDisabled = "IDX_TENANT_REF_DISABLED"
)

// IndexOptions holds the recognized per-index options.
type IndexOptions struct {
	Name          string
	Unique        bool
	Background    bool
	Sparse        bool
	ExpireAfter   *time.Duration
	PartialFilter bson.M
	Collation     *Collation
}

// IndexKeys builds an ordered list of index specifications from chained field
// declarations. Consecutive Ascending/Descending calls without options
// accumulate into one compound key; supplying IndexOptions seals the pending
// fields into a finished specification:
//
//	keys := dbset.NewIndexKeys().
//	    Ascending("tenant").
//	    Ascending("ref").
//	    Descending("disabled", &dbset.IndexOptions{Name: "BY_TENANT", Unique: true}).
//	    Ascending("createdAt", &dbset.IndexOptions{Name: "BY_CREATED"})
type IndexKeys struct {
	specs   []indexSpec
	pending bson.D
}

type indexSpec struct {
	keys bson.D
	opts IndexOptions
}

// NewIndexKeys returns an empty builder.
func NewIndexKeys() *IndexKeys { return &IndexKeys{} }

// Ascending appends field in ascending order. Passing options seals the
// pending compound key into one index specification.
func (ik *IndexKeys) Ascending(field string, opts ...*IndexOptions) *IndexKeys {
	return ik.add(field, 1, opts)
}

// Descending appends field in descending order. Passing options seals the
// pending compound key into one index specification.
func (ik *IndexKeys) Descending(field string, opts ...*IndexOptions) *IndexKeys {
	return ik.add(field, -1, opts)
}

func (ik *IndexKeys) add(field string, direction int, opts []*IndexOptions) *IndexKeys {
	ik.pending = append(ik.pending, bson.E{Key: field, Value: direction})
	if len(opts) > 0 {
		ik.seal(opts[len(opts)-1])
	}
	return ik
}

func (ik *IndexKeys) seal(opts *IndexOptions) {
	if len(ik.pending) == 0 {
		return
	}
	spec := indexSpec{keys: ik.pending}
	if opts != nil {
		spec.opts = *opts
	}
	ik.specs = append(ik.specs, spec)
	ik.pending = nil
}

// Len returns the number of finished index specifications, counting a pending
// unsealed key as one.
func (ik *IndexKeys) Len() int {
	n := len(ik.specs)
	if len(ik.pending) > 0 {
		n++
	}
	return n
}

// Models materializes the builder into driver index models, sealing any
// pending fields with default options.
func (ik *IndexKeys) Models() []mongo.IndexModel {
	specs := ik.specs
	if len(ik.pending) > 0 {
		specs = append(append([]indexSpec{}, specs...), indexSpec{keys: ik.pending})
	}
	models := make([]mongo.IndexModel, 0, len(specs))
	for _, spec := range specs {
		models = append(models, mongo.IndexModel{Keys: spec.keys, Options: spec.opts.toDriver()})
	}
	return models
}

func (o IndexOptions) toDriver() *options.IndexOptions {
	opts := &options.IndexOptions{}
	if o.Name != "" {
		opts.Name = Ptr(o.Name)
	}
	if o.Unique {
		opts.Unique = Ptr(true)
	}
	if o.Background {
		opts.Background = Ptr(true)
	}
	if o.Sparse {
		opts.Sparse = Ptr(true)
	}
	if o.ExpireAfter != nil {
		opts.ExpireAfterSeconds = Ptr(int32(o.ExpireAfter.Seconds()))
	}
	if o.PartialFilter != nil {
		opts.PartialFilterExpression = o.PartialFilter
	}
	if o.Collation != nil {
		opts.Collation = o.Collation.toDriver()
	}
	return opts
}

// DefaultTenantIndexes declares the composite indexes every tenant-faceted
// document gets. IDX_TENANT_REF_DISABLED enforces that at most one document
// exists per (tenant, ref, disabled) triple.
func DefaultTenantIndexes() *IndexKeys {
	return NewIndexKeys().
		Ascending("ref", &IndexOptions{Name: IndexRef, Unique: true, Background: true}).
		Ascending("disabled", &IndexOptions{Name: IndexDisabled, Background: true}).
		Ascending("ref").
		Ascending("disabled", &IndexOptions{Name: IndexRefDisabled, Unique: true, Background: true}).
		Ascending("tenant", &IndexOptions{Name: IndexTenant, Background: true}).
		Ascending("tenant").
		Ascending("ref").
		Ascending("disabled", &IndexOptions{Name: IndexTenantRefDisabled, Unique: true, Background: true})
}

// IndexDescription is one entry of a collection's index listing.
type IndexDescription struct {
	Name string
	Keys []string
}
