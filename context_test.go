package dbset

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

func TestParseDatabaseName(t *testing.T) {
	cases := map[string]string{
		"mongodb://localhost:27017/app":                      "app",
		"mongodb://localhost:27017/app?replicaSet=rs0":       "app",
		"mongodb+srv://cluster.example.net/warehouse?ssl=on": "warehouse",
		"mongodb://user:pw@localhost:27017/app":              "app",
		"mongodb://localhost:27017":                          "test",
		"mongodb://localhost:27017/":                         "test",
		"mongodb://localhost:27017/?maxPoolSize=5":           "test",
	}
	for uri, want := range cases {
		assert.Equal(t, want, parseDatabaseName(uri), uri)
	}
}

func TestBootstrapKeyDistinguishesContexts(t *testing.T) {
	base := bootstrapKey("ctx", "mongodb://a/db", "db")

	assert.Equal(t, base, bootstrapKey("ctx", "mongodb://a/db", "db"))
	assert.NotEqual(t, base, bootstrapKey("other", "mongodb://a/db", "db"))
	assert.NotEqual(t, base, bootstrapKey("ctx", "mongodb://b/db", "db"))
	assert.NotEqual(t, base, bootstrapKey("ctx", "mongodb://a/db", "db2"))
	// The connection string never appears verbatim in the key.
	assert.NotContains(t, base, "mongodb://a/db")
}

func newBareContext(hooks Hooks) *Context {
	if hooks == nil {
		hooks = NopHooks{}
	}
	return &Context{
		logger: zap.NewNop(),
		hooks:  hooks,
		state:  StateNoSession,
		meta:   map[string]*CollectionMetadata{},
	}
}

func TestTransactionStateErrorsWithoutBegin(t *testing.T) {
	c := newBareContext(nil)
	ctx := context.Background()

	assert.Equal(t, StateNoSession, c.State())
	assert.ErrorIs(t, c.CommitTransaction(ctx), ErrTransactionState)
	assert.ErrorIs(t, c.AbortTransaction(ctx), ErrTransactionState)
}

func TestSessionContextWithoutTransactionMode(t *testing.T) {
	c := newBareContext(nil)
	ctx := context.Background()

	// No force, no transactional mode: the caller's context flows through.
	routed, err := c.sessionContext(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, ctx, routed)

	// Forced off: same.
	routed, err = c.sessionContext(ctx, Ptr(false))
	require.NoError(t, err)
	assert.Equal(t, ctx, routed)
}

func TestTxnStateString(t *testing.T) {
	assert.Equal(t, "no_session", StateNoSession.String())
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "in_transaction", StateInTransaction.String())
	assert.Equal(t, "committed", StateCommitted.String())
	assert.Equal(t, "aborted", StateAborted.String())
}

type nilHooks struct{}

func (nilHooks) BeforeInsert(interface{}) interface{}        { return nil }
func (nilHooks) BeforeUpdate(*Update) *Update                { return nil }
func (nilHooks) BeforeReplace(interface{}) interface{}       { return nil }
func (nilHooks) BeforeAggregate([]interface{}) []interface{} { return nil }

func TestHookNilResultsAreFatal(t *testing.T) {
	c := newBareContext(nilHooks{})

	_, err := c.beforeInsertInternal(bson.M{"a": 1})
	assert.ErrorIs(t, err, ErrHookNil)

	_, err = c.beforeUpdateInternal(NewUpdate())
	assert.ErrorIs(t, err, ErrHookNil)

	_, err = c.beforeReplaceInternal(bson.M{"a": 1})
	assert.ErrorIs(t, err, ErrHookNil)

	_, err = c.beforeAggregateInternal([]interface{}{bson.M{"$match": bson.M{}}})
	assert.ErrorIs(t, err, ErrHookNil)
}

func TestNopHooksPassThrough(t *testing.T) {
	c := newBareContext(nil)

	doc := bson.M{"a": 1}
	out, err := c.beforeInsertInternal(doc)
	require.NoError(t, err)
	assert.Equal(t, doc, out)

	u := NewUpdate().Set("a", 1)
	hooked, err := c.beforeUpdateInternal(u)
	require.NoError(t, err)
	assert.Same(t, u, hooked)
}

func TestMetadataStoreIsWriteOnce(t *testing.T) {
	c := newBareContext(nil)

	first := c.storeMetadata(&CollectionMetadata{Name: "users", IndexKeys: NewIndexKeys()})
	second := c.storeMetadata(&CollectionMetadata{Name: "users", IndexKeys: NewIndexKeys()})
	assert.Same(t, first, second)

	cached, ok := c.metadataFor("users")
	require.True(t, ok)
	assert.Same(t, first, cached)

	_, ok = c.metadataFor("orders")
	assert.False(t, ok)
}

func TestConnectRequiresURI(t *testing.T) {
	_, err := Connect(context.Background(), Config{})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
