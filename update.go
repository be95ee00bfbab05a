package dbset

import (
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

type updateOp struct {
	operator string
	field    string
	value    interface{}
}

// Update is an ordered list of update operators over a document. Operators are
// appended with the chainable builder methods and rendered into a single
// driver update document, merging repeated operators while preserving the
// order of first use:
//
//	u := dbset.NewUpdate().Set("name", "x").Inc("visits", 1).Unset("legacy")
type Update struct {
	ops []updateOp
}

// NewUpdate returns an empty update builder.
func NewUpdate() *Update { return &Update{} }

// UpdateFromDocument wraps a plain replacement document into a $set update,
// leaving documents that already carry top-level update operators untouched.
func UpdateFromDocument(doc interface{}) *Update {
	if hasUpdateOperators(doc) {
		u := NewUpdate()
		switch d := doc.(type) {
		case bson.M:
			for op, v := range d {
				u.ops = append(u.ops, updateOp{operator: op, value: v})
			}
		case map[string]interface{}:
			for op, v := range d {
				u.ops = append(u.ops, updateOp{operator: op, value: v})
			}
		case bson.D:
			for _, e := range d {
				u.ops = append(u.ops, updateOp{operator: e.Key, value: e.Value})
			}
		}
		return u
	}
	return &Update{ops: []updateOp{{operator: "$set", value: doc}}}
}

func (u *Update) append(operator, field string, value interface{}) *Update {
	u.ops = append(u.ops, updateOp{operator: operator, field: field, value: value})
	return u
}

func (u *Update) Set(field string, value interface{}) *Update { return u.append("$set", field, value) }

// SetOnInsert applies the field only when an upsert inserts the document.
func (u *Update) SetOnInsert(field string, value interface{}) *Update {
	return u.append("$setOnInsert", field, value)
}

func (u *Update) Unset(field string) *Update { return u.append("$unset", field, "") }

func (u *Update) Inc(field string, amount interface{}) *Update {
	return u.append("$inc", field, amount)
}

func (u *Update) Mul(field string, factor interface{}) *Update {
	return u.append("$mul", field, factor)
}

func (u *Update) Min(field string, value interface{}) *Update { return u.append("$min", field, value) }

func (u *Update) Max(field string, value interface{}) *Update { return u.append("$max", field, value) }

func (u *Update) Rename(field, to string) *Update { return u.append("$rename", field, to) }

func (u *Update) CurrentDate(field string) *Update { return u.append("$currentDate", field, true) }

func (u *Update) Push(field string, value interface{}) *Update {
	return u.append("$push", field, value)
}

// PushEach appends every value in values to the array field.
func (u *Update) PushEach(field string, values ...interface{}) *Update {
	return u.append("$push", field, bson.M{"$each": values})
}

func (u *Update) AddToSet(field string, value interface{}) *Update {
	return u.append("$addToSet", field, value)
}

func (u *Update) Pull(field string, value interface{}) *Update {
	return u.append("$pull", field, value)
}

// Pop removes the first (-1) or last (1) element of the array field.
func (u *Update) Pop(field string, fromEnd int) *Update { return u.append("$pop", field, fromEnd) }

// Len returns the number of appended operators.
func (u *Update) Len() int { return len(u.ops) }

// touchesField reports whether any appended operator targets field.
func (u *Update) touchesField(field string) bool {
	for _, op := range u.ops {
		if op.field == field {
			return true
		}
	}
	return false
}

// Render materializes the operator list into the driver update document.
// Entries without a field name (from UpdateFromDocument) contribute their
// value as the operator's whole payload.
func (u *Update) Render() bson.D {
	rendered := bson.D{}
	position := map[string]int{}
	for _, op := range u.ops {
		idx, seen := position[op.operator]
		if !seen {
			idx = len(rendered)
			position[op.operator] = idx
			rendered = append(rendered, bson.E{Key: op.operator, Value: bson.D{}})
		}
		if op.field == "" {
			rendered[idx].Value = op.value
			continue
		}
		fields, ok := rendered[idx].Value.(bson.D)
		if !ok {
			// The operator payload was set wholesale by UpdateFromDocument;
			// fold it into field form before appending.
			fields = bson.D{}
			switch payload := rendered[idx].Value.(type) {
			case bson.M:
				for k, v := range payload {
					fields = append(fields, bson.E{Key: k, Value: v})
				}
			default:
				if raw, err := bson.Marshal(payload); err == nil {
					_ = bson.Unmarshal(raw, &fields)
				}
			}
		}
		rendered[idx].Value = append(fields, bson.E{Key: op.field, Value: op.value})
	}
	return rendered
}

// hasUpdateOperators reports whether the document already contains a top-level
// MongoDB update operator (keys starting with "$").
func hasUpdateOperators(doc interface{}) bool {
	if doc == nil {
		return false
	}
	switch d := doc.(type) {
	case bson.M:
		for k := range d {
			if strings.HasPrefix(k, "$") {
				return true
			}
		}
	case map[string]interface{}:
		for k := range d {
			if strings.HasPrefix(k, "$") {
				return true
			}
		}
	case bson.D:
		for _, e := range d {
			if strings.HasPrefix(e.Key, "$") {
				return true
			}
		}
	}
	return false
}
