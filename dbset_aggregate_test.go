package dbset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestNormalizePipelineShapes(t *testing.T) {
	match := bson.M{"$match": bson.M{"tenant": "t1"}}

	stages, err := normalizePipeline([]interface{}{match})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{match}, stages)

	stages, err = normalizePipeline([]bson.M{match})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{match}, stages)

	stages, err = normalizePipeline(mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"tenant": "t1"}}},
		{{Key: "$sort", Value: bson.D{{Key: "ref", Value: 1}}}},
	})
	require.NoError(t, err)
	assert.Len(t, stages, 2)

	stages, err = normalizePipeline(match)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{match}, stages)

	stages, err = normalizePipeline(bson.A{match})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{match}, stages)

	_, err = normalizePipeline(nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = normalizePipeline("not a pipeline")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestBuildFacetPipeline(t *testing.T) {
	base := []interface{}{
		bson.M{"$match": bson.M{"tenant": "t1"}},
		bson.M{"$sort": bson.D{{Key: "ref", Value: 1}}},
	}

	facet := buildFacetPipeline(base, 10, 5)
	require.Len(t, facet, 1)

	stage, ok := facet[0].(bson.M)
	require.True(t, ok)
	inner, ok := stage["$facet"].(bson.M)
	require.True(t, ok)

	result, ok := inner["result"].([]interface{})
	require.True(t, ok)
	require.Len(t, result, 4)
	assert.Equal(t, base[0], result[0])
	assert.Equal(t, base[1], result[1])
	assert.Equal(t, bson.M{"$skip": int64(10)}, result[2])
	assert.Equal(t, bson.M{"$limit": int64(5)}, result[3])

	total, ok := inner["total"].([]interface{})
	require.True(t, ok)
	require.Len(t, total, 3)
	assert.Equal(t, base[0], total[0])
	assert.Equal(t, base[1], total[1])
	assert.Equal(t, bson.M{"$count": "total"}, total[2])
}

func TestBuildFacetPipelineDoesNotMutateBase(t *testing.T) {
	base := make([]interface{}, 1, 4)
	base[0] = bson.M{"$match": bson.M{}}

	_ = buildFacetPipeline(base, 0, 1)

	require.Len(t, base, 1)
	assert.Equal(t, bson.M{"$match": bson.M{}}, base[0])
}
