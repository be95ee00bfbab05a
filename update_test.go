package dbset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestUpdateRenderMergesOperatorsInOrder(t *testing.T) {
	u := NewUpdate().
		Set("name", "x").
		Inc("visits", 1).
		Set("email", "x@example.com").
		Unset("legacy")

	rendered := u.Render()
	require.Len(t, rendered, 3)

	assert.Equal(t, "$set", rendered[0].Key)
	assert.Equal(t, bson.D{
		{Key: "name", Value: "x"},
		{Key: "email", Value: "x@example.com"},
	}, rendered[0].Value)

	assert.Equal(t, "$inc", rendered[1].Key)
	assert.Equal(t, bson.D{{Key: "visits", Value: 1}}, rendered[1].Value)

	assert.Equal(t, "$unset", rendered[2].Key)
	assert.Equal(t, bson.D{{Key: "legacy", Value: ""}}, rendered[2].Value)
}

func TestUpdateArrayOperators(t *testing.T) {
	u := NewUpdate().
		AddToSet("tags", "new").
		Push("log", "entry").
		PushEach("batch", 1, 2, 3).
		Pull("tags", "old").
		Pop("log", -1)

	rendered := u.Render()
	m := rendered.Map()

	assert.Equal(t, bson.D{{Key: "tags", Value: "new"}}, m["$addToSet"])
	assert.Equal(t, bson.D{
		{Key: "log", Value: "entry"},
		{Key: "batch", Value: bson.M{"$each": []interface{}{1, 2, 3}}},
	}, m["$push"])
	assert.Equal(t, bson.D{{Key: "tags", Value: "old"}}, m["$pull"])
	assert.Equal(t, bson.D{{Key: "log", Value: -1}}, m["$pop"])
}

func TestUpdateFromDocumentWrapsInSet(t *testing.T) {
	u := UpdateFromDocument(bson.M{"name": "x", "age": 3})
	rendered := u.Render()

	require.Len(t, rendered, 1)
	assert.Equal(t, "$set", rendered[0].Key)
	assert.Equal(t, bson.M{"name": "x", "age": 3}, rendered[0].Value)
}

func TestUpdateFromDocumentKeepsOperators(t *testing.T) {
	u := UpdateFromDocument(bson.D{
		{Key: "$set", Value: bson.M{"name": "x"}},
		{Key: "$inc", Value: bson.M{"visits": 1}},
	})
	rendered := u.Render()

	require.Len(t, rendered, 2)
	assert.Equal(t, "$set", rendered[0].Key)
	assert.Equal(t, bson.M{"name": "x"}, rendered[0].Value)
	assert.Equal(t, "$inc", rendered[1].Key)
}

func TestUpdateTouchesField(t *testing.T) {
	u := NewUpdate().Set("updatedAt", 1)
	assert.True(t, u.touchesField("updatedAt"))
	assert.False(t, u.touchesField("createdAt"))
	assert.False(t, NewUpdate().touchesField("updatedAt"))
}

func TestHasUpdateOperators(t *testing.T) {
	assert.True(t, hasUpdateOperators(bson.M{"$set": bson.M{"a": 1}}))
	assert.True(t, hasUpdateOperators(bson.D{{Key: "$inc", Value: 1}}))
	assert.False(t, hasUpdateOperators(bson.M{"a": 1}))
	assert.False(t, hasUpdateOperators(nil))
}
