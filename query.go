package dbset

import (
	"bytes"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
)

type queryKind int

const (
	queryEmpty queryKind = iota
	queryJSON
	queryFilter
	queryText
	queryTemplate
	queryCombined
)

// Query is the typed filter representation. A Query is one of: empty
// ("match all"), a raw extended-JSON document, an already-built filter
// document, a full-text search, a template with one free parameter to be bound
// later with CompleteExpression, or a boolean combination of other queries.
// An optional Update payload may travel with the query for the operations that
// consume one (Update, UpdateAddToSet, FindOneAndUpdate).
//
// The zero value matches all documents.
type Query struct {
	kind     queryKind
	json     string
	filter   interface{}
	text     string
	textOpts *FullTextSearchOptions
	template func(interface{}) interface{}
	op       string // "$and", "$or", "$nor" for queryCombined
	operands []Query
	update   *Update
}

// QueryFromJSON builds a query from a raw extended-JSON filter document.
func QueryFromJSON(json string) Query {
	return Query{kind: queryJSON, json: json}
}

// QueryFromFilter builds a query from an already-built filter document
// (bson.M, bson.D or any value marshaling to a document).
func QueryFromFilter(filter interface{}) Query {
	if filter == nil {
		return Query{}
	}
	return Query{kind: queryFilter, filter: filter}
}

// QueryFromText builds a $text search query.
func QueryFromText(text string, opts *FullTextSearchOptions) Query {
	return Query{kind: queryText, text: text, textOpts: opts}
}

// QueryFromTemplate builds a query with exactly one free parameter. The
// factory receives the bound value and returns the filter document. The query
// cannot be rendered until CompleteExpression binds the parameter.
func QueryFromTemplate(factory func(value interface{}) interface{}) Query {
	return Query{kind: queryTemplate, template: factory}
}

// QueryByID matches a single document by _id.
func QueryByID[ID comparable](id ID) Query {
	return QueryFromFilter(bson.M{"_id": id})
}

// QueryByIDs matches every document whose _id is in ids.
func QueryByIDs[ID comparable](ids []ID) Query {
	return QueryFromFilter(bson.M{"_id": bson.M{"$in": ids}})
}

// WithUpdate attaches an update payload to the query and returns the result.
func (q Query) WithUpdate(u *Update) Query {
	q.update = u
	return q
}

// Update returns the attached update payload, or nil.
func (q Query) Update() *Update { return q.update }

// CompleteExpression binds the free parameter of a template query to value and
// returns the resulting filter query. Applying it to any other variant fails
// with ErrQueryIncomplete.
func (q Query) CompleteExpression(value interface{}) (Query, error) {
	if q.kind != queryTemplate {
		return Query{}, fmt.Errorf("%w: CompleteExpression requires a template query", ErrQueryIncomplete)
	}
	bound := QueryFromFilter(q.template(value))
	bound.update = q.update
	return bound, nil
}

// And returns the conjunction of q and other. Operands are lowered to filter
// documents when the combination is rendered.
func (q Query) And(other Query) Query { return q.combine("$and", other) }

// Or returns the disjunction of q and other.
func (q Query) Or(other Query) Query { return q.combine("$or", other) }

// Not returns the negation of q.
func (q Query) Not() Query {
	return Query{kind: queryCombined, op: "$nor", operands: []Query{q}, update: q.update}
}

func (q Query) combine(op string, other Query) Query {
	update := q.update
	if update == nil {
		update = other.update
	}
	return Query{kind: queryCombined, op: op, operands: []Query{q, other}, update: update}
}

// Render converts the query to the driver filter document. An empty query
// renders to a "match all" document; an unbound template fails with
// ErrQueryIncomplete.
func (q Query) Render() (interface{}, error) {
	switch q.kind {
	case queryEmpty:
		return bson.M{}, nil
	case queryJSON:
		var doc bson.D
		if err := bson.UnmarshalExtJSON([]byte(q.json), false, &doc); err != nil {
			return nil, fmt.Errorf("parse json filter: %w", err)
		}
		return doc, nil
	case queryFilter:
		return q.filter, nil
	case queryText:
		text := bson.M{"$search": q.text}
		if o := q.textOpts; o != nil {
			if o.Language != nil {
				text["$language"] = *o.Language
			}
			if o.CaseSensitive != nil {
				text["$caseSensitive"] = *o.CaseSensitive
			}
			if o.DiacriticSensitive != nil {
				text["$diacriticSensitive"] = *o.DiacriticSensitive
			}
		}
		return bson.M{"$text": text}, nil
	case queryTemplate:
		return nil, ErrQueryIncomplete
	case queryCombined:
		operands := make(bson.A, 0, len(q.operands))
		for _, sub := range q.operands {
			filter, err := sub.Render()
			if err != nil {
				return nil, err
			}
			operands = append(operands, filter)
		}
		return bson.M{q.op: operands}, nil
	}
	return nil, fmt.Errorf("%w: unknown query variant", ErrQueryIncomplete)
}

// Equal reports whether two queries render to the same BSON and carry equal
// update payloads. Queries that cannot be rendered are never equal.
func (q Query) Equal(other Query) bool {
	a, err := marshalCanonical(q)
	if err != nil {
		return false
	}
	b, err := marshalCanonical(other)
	if err != nil {
		return false
	}
	if !bytes.Equal(a, b) {
		return false
	}
	return updatesEqual(q.update, other.update)
}

func marshalCanonical(q Query) ([]byte, error) {
	filter, err := q.Render()
	if err != nil {
		return nil, err
	}
	return bson.MarshalExtJSON(filter, true, false)
}

func updatesEqual(a, b *Update) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	if a == nil {
		return true
	}
	aj, errA := bson.MarshalExtJSON(a.Render(), true, false)
	bj, errB := bson.MarshalExtJSON(b.Render(), true, false)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(aj, bj)
}
