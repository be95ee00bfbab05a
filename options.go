package dbset

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo/options"
)

// Ptr returns a pointer to v, for the optional fields of the option records.
func Ptr[T any](v T) *T { return &v }

// Collation specifies language-specific rules for string comparison.
type Collation struct {
	Locale          string `bson:"locale"`
	CaseFirst       string `bson:"caseFirst,omitempty"`
	Strength        int    `bson:"strength,omitempty"`
	Alternate       string `bson:"alternate,omitempty"`
	MaxVariable     string `bson:"maxVariable,omitempty"`
	Normalization   bool   `bson:"normalization,omitempty"`
	CaseLevel       bool   `bson:"caseLevel,omitempty"`
	NumericOrdering bool   `bson:"numericOrdering,omitempty"`
	Backwards       bool   `bson:"backwards,omitempty"`
}

func (c *Collation) toDriver() *options.Collation {
	if c == nil {
		return nil
	}
	return &options.Collation{
		Locale:          c.Locale,
		CaseFirst:       c.CaseFirst,
		Strength:        c.Strength,
		Alternate:       c.Alternate,
		MaxVariable:     c.MaxVariable,
		Normalization:   c.Normalization,
		CaseLevel:       c.CaseLevel,
		NumericOrdering: c.NumericOrdering,
		Backwards:       c.Backwards,
	}
}

// FullTextSearchOptions tunes a $text query.
type FullTextSearchOptions struct {
	Language           *string
	CaseSensitive      *bool
	DiacriticSensitive *bool
}

// FindOptions bundles the per-call options of the find family. The zero value
// is valid. NotPerformInTransaction forces the operation to run without a
// session even when the Context is transactional.
type FindOptions struct {
	NotPerformInTransaction bool

	AllowDiskUse        *bool
	AllowPartialResults *bool
	BatchSize           *int32
	Collation           *Collation
	Comment             *string
	CursorType          *options.CursorType
	Hint                interface{}
	Limit               *int64
	MaxAwaitTime        *time.Duration
	MaxTime             *time.Duration
	NoCursorTimeout     *bool
	Projection          interface{}
	ReturnKey           *bool
	ShowRecordID        *bool
	Skip                *int64
	Sort                interface{}
}

func (o *FindOptions) toDriver() *options.FindOptions {
	opts := &options.FindOptions{}
	if o == nil {
		return opts
	}
	opts.AllowDiskUse = o.AllowDiskUse
	opts.AllowPartialResults = o.AllowPartialResults
	opts.BatchSize = o.BatchSize
	opts.Collation = o.Collation.toDriver()
	opts.Comment = o.Comment
	opts.CursorType = o.CursorType
	opts.Hint = o.Hint
	opts.Limit = o.Limit
	opts.MaxAwaitTime = o.MaxAwaitTime
	opts.MaxTime = o.MaxTime
	opts.NoCursorTimeout = o.NoCursorTimeout
	opts.Projection = o.Projection
	opts.ReturnKey = o.ReturnKey
	opts.ShowRecordID = o.ShowRecordID
	opts.Skip = o.Skip
	opts.Sort = o.Sort
	return opts
}

func (o *FindOptions) toDriverFindOne() *options.FindOneOptions {
	opts := &options.FindOneOptions{}
	if o == nil {
		return opts
	}
	opts.AllowPartialResults = o.AllowPartialResults
	opts.Collation = o.Collation.toDriver()
	opts.Comment = o.Comment
	opts.Hint = o.Hint
	opts.MaxTime = o.MaxTime
	opts.Projection = o.Projection
	opts.ReturnKey = o.ReturnKey
	opts.ShowRecordID = o.ShowRecordID
	opts.Skip = o.Skip
	opts.Sort = o.Sort
	return opts
}

// countOptions derives the options for the "total under filter" count from a
// find: recognized fields are copied, skip and limit are cleared.
func (o *FindOptions) countOptions() *CountOptions {
	if o == nil {
		return nil
	}
	return &CountOptions{
		NotPerformInTransaction: o.NotPerformInTransaction,
		Collation:               o.Collation,
		Comment:                 o.Comment,
		Hint:                    o.Hint,
		MaxTime:                 o.MaxTime,
	}
}

func (o *FindOptions) noTransaction() bool { return o != nil && o.NotPerformInTransaction }

// FindOptionsPaging is FindOptions plus the page coordinates. Skip and limit
// are always derived: skip = CurrentPage*PageSize, limit = PageSize.
type FindOptionsPaging struct {
	FindOptions

	CurrentPage int64
	PageSize    int64
}

func (o *FindOptionsPaging) validate() error {
	if o == nil || o.PageSize <= 0 {
		return fmt.Errorf("%w: page size must be positive", ErrInvalidArgument)
	}
	if o.CurrentPage < 0 {
		return fmt.Errorf("%w: current page must not be negative", ErrInvalidArgument)
	}
	return nil
}

// pageFindOptions returns a copy of the embedded find options with the derived
// skip and limit applied.
func (o *FindOptionsPaging) pageFindOptions() *FindOptions {
	find := o.FindOptions
	find.Skip = Ptr(o.CurrentPage * o.PageSize)
	find.Limit = Ptr(o.PageSize)
	return &find
}

// CountOptions bundles the per-call options of countDocuments.
type CountOptions struct {
	NotPerformInTransaction bool

	Collation *Collation
	Comment   *string
	Hint      interface{}
	Limit     *int64
	MaxTime   *time.Duration
	Skip      *int64
}

func (o *CountOptions) toDriver() *options.CountOptions {
	opts := &options.CountOptions{}
	if o == nil {
		return opts
	}
	opts.Collation = o.Collation.toDriver()
	if o.Comment != nil {
		opts.Comment = o.Comment
	}
	opts.Hint = o.Hint
	opts.Limit = o.Limit
	opts.MaxTime = o.MaxTime
	opts.Skip = o.Skip
	return opts
}

func (o *CountOptions) noTransaction() bool { return o != nil && o.NotPerformInTransaction }

// UpdateOptions bundles the per-call options of updateOne/updateMany.
type UpdateOptions struct {
	NotPerformInTransaction bool

	ArrayFilters             []interface{}
	BypassDocumentValidation *bool
	Collation                *Collation
	Hint                     interface{}
	Upsert                   *bool
	Let                      interface{}
}

func (o *UpdateOptions) toDriver() *options.UpdateOptions {
	opts := &options.UpdateOptions{}
	if o == nil {
		return opts
	}
	if o.ArrayFilters != nil {
		opts.ArrayFilters = &options.ArrayFilters{Filters: o.ArrayFilters}
	}
	opts.BypassDocumentValidation = o.BypassDocumentValidation
	opts.Collation = o.Collation.toDriver()
	opts.Hint = o.Hint
	opts.Upsert = o.Upsert
	opts.Let = o.Let
	return opts
}

func (o *UpdateOptions) noTransaction() bool { return o != nil && o.NotPerformInTransaction }

// FindOneAndUpdateOptions bundles the per-call options of findOneAndUpdate.
// ReturnDocumentAfter selects the post-update document; the default returns
// the pre-update one.
type FindOneAndUpdateOptions struct {
	NotPerformInTransaction bool

	ArrayFilters             []interface{}
	BypassDocumentValidation *bool
	Collation                *Collation
	Hint                     interface{}
	MaxTime                  *time.Duration
	Projection               interface{}
	ReturnDocumentAfter      bool
	Sort                     interface{}
	IsUpsert                 *bool
}

func (o *FindOneAndUpdateOptions) toDriver() *options.FindOneAndUpdateOptions {
	opts := &options.FindOneAndUpdateOptions{}
	ret := options.Before
	if o != nil && o.ReturnDocumentAfter {
		ret = options.After
	}
	opts.ReturnDocument = &ret
	if o == nil {
		return opts
	}
	if o.ArrayFilters != nil {
		opts.ArrayFilters = &options.ArrayFilters{Filters: o.ArrayFilters}
	}
	opts.BypassDocumentValidation = o.BypassDocumentValidation
	opts.Collation = o.Collation.toDriver()
	opts.Hint = o.Hint
	opts.MaxTime = o.MaxTime
	opts.Projection = o.Projection
	opts.Sort = o.Sort
	opts.Upsert = o.IsUpsert
	return opts
}

func (o *FindOneAndUpdateOptions) noTransaction() bool {
	return o != nil && o.NotPerformInTransaction
}

// ReplaceOptions bundles the per-call options of replaceOne.
type ReplaceOptions struct {
	NotPerformInTransaction bool

	BypassDocumentValidation *bool
	Collation                *Collation
	Comment                  *string
	Hint                     interface{}
	Upsert                   *bool
	Let                      interface{}
}

func (o *ReplaceOptions) toDriver() *options.ReplaceOptions {
	opts := &options.ReplaceOptions{}
	if o == nil {
		return opts
	}
	opts.BypassDocumentValidation = o.BypassDocumentValidation
	opts.Collation = o.Collation.toDriver()
	if o.Comment != nil {
		opts.Comment = *o.Comment
	}
	opts.Hint = o.Hint
	opts.Upsert = o.Upsert
	opts.Let = o.Let
	return opts
}

func (o *ReplaceOptions) noTransaction() bool { return o != nil && o.NotPerformInTransaction }

// BulkWriteOptions bundles the per-call options of bulkWrite. Bulk operations
// are issued unordered unless IsOrdered is set.
type BulkWriteOptions struct {
	NotPerformInTransaction bool

	IsOrdered                *bool
	BypassDocumentValidation *bool
	Comment                  *string
	Let                      interface{}
}

func (o *BulkWriteOptions) toDriver() *options.BulkWriteOptions {
	opts := &options.BulkWriteOptions{Ordered: Ptr(false)}
	if o == nil {
		return opts
	}
	if o.IsOrdered != nil {
		opts.Ordered = o.IsOrdered
	}
	opts.BypassDocumentValidation = o.BypassDocumentValidation
	if o.Comment != nil {
		opts.Comment = *o.Comment
	}
	opts.Let = o.Let
	return opts
}

func (o *BulkWriteOptions) noTransaction() bool { return o != nil && o.NotPerformInTransaction }

// InsertOneOptions bundles the per-call options of insertOne.
type InsertOneOptions struct {
	NotPerformInTransaction bool

	BypassDocumentValidation *bool
	Comment                  *string
}

func (o *InsertOneOptions) toDriver() *options.InsertOneOptions {
	opts := &options.InsertOneOptions{}
	if o == nil {
		return opts
	}
	opts.BypassDocumentValidation = o.BypassDocumentValidation
	if o.Comment != nil {
		opts.Comment = *o.Comment
	}
	return opts
}

func (o *InsertOneOptions) noTransaction() bool { return o != nil && o.NotPerformInTransaction }

// InsertManyOptions bundles the per-call options of a multi-document insert.
// The insert is issued as a bulk write of insertOne models; translated bulks
// default to ordered.
type InsertManyOptions struct {
	NotPerformInTransaction bool

	BypassDocumentValidation *bool
	Comment                  *string
	IsOrdered                *bool
}

func (o *InsertManyOptions) toBulkWriteOptions() *BulkWriteOptions {
	bulk := &BulkWriteOptions{IsOrdered: Ptr(true)}
	if o == nil {
		return bulk
	}
	bulk.NotPerformInTransaction = o.NotPerformInTransaction
	bulk.BypassDocumentValidation = o.BypassDocumentValidation
	bulk.Comment = o.Comment
	if o.IsOrdered != nil {
		bulk.IsOrdered = o.IsOrdered
	}
	return bulk
}

// DeleteOptions bundles the per-call options of deleteOne/deleteMany.
type DeleteOptions struct {
	NotPerformInTransaction bool

	Collation *Collation
	Comment   *string
	Hint      interface{}
	Let       interface{}
}

func (o *DeleteOptions) toDriver() *options.DeleteOptions {
	opts := &options.DeleteOptions{}
	if o == nil {
		return opts
	}
	opts.Collation = o.Collation.toDriver()
	if o.Comment != nil {
		opts.Comment = *o.Comment
	}
	opts.Hint = o.Hint
	opts.Let = o.Let
	return opts
}

func (o *DeleteOptions) noTransaction() bool { return o != nil && o.NotPerformInTransaction }

// AggregateOptions bundles the per-call options of aggregate.
type AggregateOptions struct {
	NotPerformInTransaction bool

	AllowDiskUse             *bool
	BatchSize                *int32
	BypassDocumentValidation *bool
	Collation                *Collation
	Comment                  *string
	Hint                     interface{}
	Let                      interface{}
	MaxAwaitTime             *time.Duration
	MaxTime                  *time.Duration
}

func (o *AggregateOptions) toDriver() *options.AggregateOptions {
	opts := &options.AggregateOptions{}
	if o == nil {
		return opts
	}
	opts.AllowDiskUse = o.AllowDiskUse
	opts.BatchSize = o.BatchSize
	opts.BypassDocumentValidation = o.BypassDocumentValidation
	opts.Collation = o.Collation.toDriver()
	opts.Comment = o.Comment
	opts.Hint = o.Hint
	opts.Let = o.Let
	opts.MaxAwaitTime = o.MaxAwaitTime
	opts.MaxTime = o.MaxTime
	return opts
}

func (o *AggregateOptions) noTransaction() bool { return o != nil && o.NotPerformInTransaction }

// AggregateOptionsPaging is AggregateOptions plus page coordinates for the
// faceted aggregation. Skip and Limit, when unset, are derived from
// CurrentPage and PageSize.
type AggregateOptionsPaging struct {
	AggregateOptions

	CurrentPage int64
	PageSize    int64
	Skip        *int64
	Limit       *int64
}

// resolve returns the effective (skip, limit, currentPage, pageSize),
// validating Skip >= 0 and Limit > 0.
func (o *AggregateOptionsPaging) resolve() (int64, int64, int64, int64, error) {
	if o == nil {
		return 0, 0, 0, 0, fmt.Errorf("%w: paging options are required", ErrInvalidArgument)
	}
	skip := o.CurrentPage * o.PageSize
	limit := o.PageSize
	if o.Skip != nil {
		skip = *o.Skip
	}
	if o.Limit != nil {
		limit = *o.Limit
	}
	if skip < 0 {
		return 0, 0, 0, 0, fmt.Errorf("%w: skip must not be negative", ErrInvalidArgument)
	}
	if limit <= 0 {
		return 0, 0, 0, 0, fmt.Errorf("%w: limit must be positive", ErrInvalidArgument)
	}
	currentPage := o.CurrentPage
	pageSize := o.PageSize
	if pageSize <= 0 {
		pageSize = limit
		currentPage = skip / limit
	}
	return skip, limit, currentPage, pageSize, nil
}

// TimeSeriesOptions describes a time-series collection for CreateCollection.
type TimeSeriesOptions struct {
	TimeField          string
	MetaField          *string
	Granularity        *string
	ExpireAfterSeconds *int64
}

func (o *TimeSeriesOptions) toDriver() *options.CreateCollectionOptions {
	opts := options.CreateCollection()
	if o == nil {
		return opts
	}
	ts := options.TimeSeries().SetTimeField(o.TimeField)
	if o.MetaField != nil {
		ts.SetMetaField(*o.MetaField)
	}
	if o.Granularity != nil {
		ts.SetGranularity(*o.Granularity)
	}
	opts.SetTimeSeriesOptions(ts)
	if o.ExpireAfterSeconds != nil {
		opts.SetExpireAfterSeconds(*o.ExpireAfterSeconds)
	}
	return opts
}

// transactionOpter is implemented by the option records handed to driver
// calls (InsertManyOptions reaches it through its BulkWriteOptions
// translation); it feeds the routing decision in Context.sessionContext.
type transactionOpter interface {
	noTransaction() bool
}

// forceFromOptions maps an option record to the routing force flag: options
// carrying NotPerformInTransaction=true force sessionless execution, anything
// else leaves the decision to the Context.
func forceFromOptions(o transactionOpter) *bool {
	if o != nil && o.noTransaction() {
		return Ptr(false)
	}
	return nil
}
