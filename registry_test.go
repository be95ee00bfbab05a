package dbset

import (
	"reflect"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/bsoncodec"
	"go.mongodb.org/mongo-driver/bson/bsonrw"
)

type customID struct{ raw string }

type customIDCodec struct{}

func (customIDCodec) EncodeValue(ec bsoncodec.EncodeContext, vw bsonrw.ValueWriter, val reflect.Value) error {
	return vw.WriteString(val.Interface().(customID).raw)
}

func (customIDCodec) DecodeValue(dc bsoncodec.DecodeContext, vr bsonrw.ValueReader, val reflect.Value) error {
	s, err := vr.ReadString()
	if err != nil {
		return err
	}
	val.Set(reflect.ValueOf(customID{raw: s}))
	return nil
}

func TestBuildRegistryRegistersOncePerType(t *testing.T) {
	typ := reflect.TypeOf(customID{})
	reg := CodecRegistration{Type: typ, Encoder: customIDCodec{}, Decoder: customIDCodec{}}

	registry := buildRegistry([]CodecRegistration{reg, reg, {Type: nil}})
	require.NotNil(t, registry)

	enc, err := registry.LookupEncoder(typ)
	require.NoError(t, err)
	assert.Equal(t, customIDCodec{}, enc)

	dec, err := registry.LookupDecoder(typ)
	require.NoError(t, err)
	assert.Equal(t, customIDCodec{}, dec)
}

func TestBootstrapRunsOncePerKey(t *testing.T) {
	key := bootstrapKey("ctx", "mongodb://once/"+uuid.NewString(), "db")

	var runs int
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entry := bootstrapFor(key)
			entry.once.Do(func() {
				runs++
				entry.collections = []string{"seeded"}
			})
			// Every caller observes the finished snapshot.
			assert.Equal(t, []string{"seeded"}, entry.collections)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, runs)
	assert.Same(t, bootstrapFor(key), bootstrapFor(key))
}

func TestBootstrapKeysAreIndependent(t *testing.T) {
	a := bootstrapFor(bootstrapKey("ctx", "mongodb://a/"+uuid.NewString(), "db"))
	b := bootstrapFor(bootstrapKey("ctx", "mongodb://b/"+uuid.NewString(), "db"))
	assert.NotSame(t, a, b)
}
