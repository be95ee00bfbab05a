package dbset

import (
	"crypto/sha256"
	"encoding/hex"
	"reflect"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsoncodec"
)

// CodecRegistration maps one Go type to custom BSON encode/decode logic. User
// registrations are applied to the codec registry of every client Connect
// builds, keyed by the target type; within one registry the first
// registration of a type wins and repeats are skipped.
type CodecRegistration struct {
	Type    reflect.Type
	Encoder bsoncodec.ValueEncoder
	Decoder bsoncodec.ValueDecoder
}

func buildRegistry(regs []CodecRegistration) *bsoncodec.Registry {
	registry := bson.NewRegistry()
	seen := map[reflect.Type]bool{}
	for _, reg := range regs {
		if reg.Type == nil || seen[reg.Type] {
			continue
		}
		seen[reg.Type] = true
		if reg.Encoder != nil {
			registry.RegisterTypeEncoder(reg.Type, reg.Encoder)
		}
		if reg.Decoder != nil {
			registry.RegisterTypeDecoder(reg.Type, reg.Decoder)
		}
	}
	return registry
}

// bootstrapEntry records one finished first-init. The once guards the map and
// index registrations; the snapshot is what a second Context constructed with
// the same key observes instead of re-running them.
type bootstrapEntry struct {
	once        sync.Once
	collections []string
	err         error
}

// bootstraps keys finished first-inits by (context name, sha256(uri), db).
var bootstraps sync.Map

func bootstrapKey(contextName, uri, database string) string {
	sum := sha256.Sum256([]byte(uri))
	return contextName + "|" + hex.EncodeToString(sum[:]) + "|" + database
}

func bootstrapFor(key string) *bootstrapEntry {
	entry, _ := bootstraps.LoadOrStore(key, &bootstrapEntry{})
	return entry.(*bootstrapEntry)
}
