package dbset

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type auditedDoc struct {
	Id string `bson:"_id,omitempty"`
	TenantFields `bson:",inline"`
	Name string `bson:"name"`
}

func (d *auditedDoc) DocumentID() string      { return d.Id }
func (d *auditedDoc) SetDocumentID(id string) { d.Id = id }

type plainDoc struct {
	Id string `bson:"_id,omitempty"`
}

func (d *plainDoc) DocumentID() string      { return d.Id }
func (d *plainDoc) SetDocumentID(id string) { d.Id = id }

func TestStampForInsertDefaults(t *testing.T) {
	doc := &auditedDoc{}
	now := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)

	stampForInsert(doc, now)

	assert.NotEmpty(t, doc.Ref, "an empty Ref gets a generated logical key")
	assert.False(t, doc.Disabled)
	assert.Equal(t, now, doc.CreatedAt)
	assert.Equal(t, now, doc.UpdatedAt)
}

func TestStampForInsertKeepsCallerValues(t *testing.T) {
	earlier := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	doc := &auditedDoc{TenantFields: TenantFields{
		Ref:       "r1",
		CreatedBy: "sys",
		CreatedAt: earlier,
	}}
	now := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)

	stampForInsert(doc, now)

	assert.Equal(t, "r1", doc.Ref)
	assert.Equal(t, "sys", doc.CreatedBy)
	assert.Equal(t, earlier, doc.CreatedAt)
	assert.Equal(t, now, doc.UpdatedAt)
}

func TestStampForInsertIgnoresPlainDocuments(t *testing.T) {
	doc := &plainDoc{Id: "a"}
	stampForInsert(doc, time.Now())
	assert.Equal(t, "a", doc.Id)
}

func TestStampForReplaceTouchesOnlyUpdatedAt(t *testing.T) {
	doc := &auditedDoc{TenantFields: TenantFields{Ref: "r1"}}
	now := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)

	stampForReplace(doc, now)

	assert.True(t, doc.CreatedAt.IsZero())
	assert.Equal(t, now, doc.UpdatedAt)
}

func TestCollectionNameFor(t *testing.T) {
	assert.Equal(t, "auditeddoc", collectionNameFor[*auditedDoc]())
	assert.Equal(t, "plaindoc", collectionNameFor[plainDoc]())
}

func TestNewDocumentValueAllocatesPointers(t *testing.T) {
	ptr := newDocumentValue[*auditedDoc]()
	require.NotNil(t, ptr)

	val := newDocumentValue[auditedDoc]()
	assert.Empty(t, val.Id)
}

func TestIsZeroID(t *testing.T) {
	assert.True(t, isZeroID(""))
	assert.False(t, isZeroID("a"))
	assert.True(t, isZeroID(0))
	assert.False(t, isZeroID(7))
}
