package dbset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestQueryRenderEmpty(t *testing.T) {
	filter, err := Query{}.Render()
	require.NoError(t, err)
	assert.Equal(t, bson.M{}, filter)
}

func TestQueryRenderJSON(t *testing.T) {
	filter, err := QueryFromJSON(`{"tenant": "t1", "disabled": false}`).Render()
	require.NoError(t, err)

	doc, ok := filter.(bson.D)
	require.True(t, ok)
	m := doc.Map()
	assert.Equal(t, "t1", m["tenant"])
	assert.Equal(t, false, m["disabled"])
}

func TestQueryRenderJSONInvalid(t *testing.T) {
	_, err := QueryFromJSON(`{not json`).Render()
	assert.Error(t, err)
}

func TestQueryRenderFilter(t *testing.T) {
	filter := bson.M{"ref": "r1"}
	rendered, err := QueryFromFilter(filter).Render()
	require.NoError(t, err)
	assert.Equal(t, filter, rendered)
}

func TestQueryRenderText(t *testing.T) {
	q := QueryFromText("golang driver", &FullTextSearchOptions{
		Language:      Ptr("en"),
		CaseSensitive: Ptr(true),
	})
	rendered, err := q.Render()
	require.NoError(t, err)

	assert.Equal(t, bson.M{"$text": bson.M{
		"$search":        "golang driver",
		"$language":      "en",
		"$caseSensitive": true,
	}}, rendered)
}

func TestQueryTemplateRenderFails(t *testing.T) {
	q := QueryFromTemplate(func(v interface{}) interface{} {
		return bson.M{"ref": v}
	})
	_, err := q.Render()
	assert.ErrorIs(t, err, ErrQueryIncomplete)
}

func TestQueryCompleteExpression(t *testing.T) {
	q := QueryFromTemplate(func(v interface{}) interface{} {
		return bson.M{"ref": v}
	})
	bound, err := q.CompleteExpression("r42")
	require.NoError(t, err)

	rendered, err := bound.Render()
	require.NoError(t, err)
	assert.Equal(t, bson.M{"ref": "r42"}, rendered)
}

func TestQueryCompleteExpressionWrongVariant(t *testing.T) {
	_, err := QueryFromFilter(bson.M{"a": 1}).CompleteExpression("x")
	assert.ErrorIs(t, err, ErrQueryIncomplete)
}

func TestQueryCombinators(t *testing.T) {
	a := QueryFromFilter(bson.M{"tenant": "t1"})
	b := QueryFromFilter(bson.M{"disabled": false})

	and, err := a.And(b).Render()
	require.NoError(t, err)
	assert.Equal(t, bson.M{"$and": bson.A{bson.M{"tenant": "t1"}, bson.M{"disabled": false}}}, and)

	or, err := a.Or(b).Render()
	require.NoError(t, err)
	assert.Equal(t, bson.M{"$or": bson.A{bson.M{"tenant": "t1"}, bson.M{"disabled": false}}}, or)

	not, err := a.Not().Render()
	require.NoError(t, err)
	assert.Equal(t, bson.M{"$nor": bson.A{bson.M{"tenant": "t1"}}}, not)
}

func TestQueryCombinatorsLowerTextQueries(t *testing.T) {
	text := QueryFromText("widget", nil)
	extra := QueryFromFilter(bson.M{"disabled": false})

	rendered, err := text.And(extra).Render()
	require.NoError(t, err)
	assert.Equal(t, bson.M{"$and": bson.A{
		bson.M{"$text": bson.M{"$search": "widget"}},
		bson.M{"disabled": false},
	}}, rendered)
}

func TestQueryCombinatorPropagatesTemplateError(t *testing.T) {
	unbound := QueryFromTemplate(func(v interface{}) interface{} { return bson.M{"ref": v} })
	_, err := unbound.And(QueryFromFilter(bson.M{"a": 1})).Render()
	assert.ErrorIs(t, err, ErrQueryIncomplete)
}

func TestQueryByIDs(t *testing.T) {
	rendered, err := QueryByIDs([]string{"a", "b"}).Render()
	require.NoError(t, err)
	assert.Equal(t, bson.M{"_id": bson.M{"$in": []string{"a", "b"}}}, rendered)
}

func TestQueryEqualAcrossVariants(t *testing.T) {
	fromJSON := QueryFromJSON(`{"ref": "r1"}`)
	fromFilter := QueryFromFilter(bson.M{"ref": "r1"})

	assert.True(t, fromJSON.Equal(fromFilter))
	assert.True(t, fromFilter.Equal(fromJSON))
	assert.False(t, fromFilter.Equal(QueryFromFilter(bson.M{"ref": "r2"})))
}

func TestQueryEqualConsidersUpdate(t *testing.T) {
	base := QueryFromFilter(bson.M{"ref": "r1"})
	withSet := base.WithUpdate(NewUpdate().Set("name", "x"))

	assert.False(t, base.Equal(withSet))
	assert.True(t, withSet.Equal(base.WithUpdate(NewUpdate().Set("name", "x"))))
	assert.False(t, withSet.Equal(base.WithUpdate(NewUpdate().Set("name", "y"))))
}

func TestQueryEqualUnrenderableNeverEqual(t *testing.T) {
	unbound := QueryFromTemplate(func(v interface{}) interface{} { return bson.M{"ref": v} })
	assert.False(t, unbound.Equal(unbound))
}

func TestQueryRenderStable(t *testing.T) {
	q := QueryFromJSON(`{"tenant": "t1", "n": 3}`)
	first, err := marshalCanonical(q)
	require.NoError(t, err)
	second, err := marshalCanonical(q)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
