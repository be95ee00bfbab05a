package dbset

import (
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
)

// Document is the capability every stored type must provide: a stable,
// comparable identifier mapped to the _id field. DbSet is instantiated with
// pointer document types so the handle can write generated ids back:
//
//	type User struct {
//	    Id string `bson:"_id,omitempty"`
//	    dbset.TenantFields `bson:",inline"`
//	    Email string `bson:"email"`
//	}
//
//	func (u *User) DocumentID() string      { return u.Id }
//	func (u *User) SetDocumentID(id string) { u.Id = id }
type Document[ID comparable] interface {
	DocumentID() ID
	SetDocumentID(ID)
}

// TenantAudited is the optional tenant facet. Documents embedding TenantFields
// get it for free; the handle uses it to stamp audit metadata on writes and to
// declare the default tenant indexes.
type TenantAudited interface {
	TenantKey() string
	RefKey() string
	IsDisabled() bool
	SetRef(string)
	StampCreated(by string, at time.Time)
	StampUpdated(by string, at time.Time)
}

// TenantFields is the composition record for the tenant facet. Embed it inline:
//
//	dbset.TenantFields `bson:",inline"`
//
// ExtraElements collects fields present on the stored document but absent from
// the struct, so old binaries keep round-tripping documents written by newer
// ones.
type TenantFields struct {
	Ref      string `bson:"ref"`
	Tenant   string `bson:"tenant"`
	Disabled bool   `bson:"disabled"`

	CreatedBy string    `bson:"createdBy,omitempty"`
	CreatedAt time.Time `bson:"createdAt,omitempty"`
	UpdatedBy string    `bson:"updatedBy,omitempty"`
	UpdatedAt time.Time `bson:"updatedAt,omitempty"`

	ExtraElements bson.M `bson:",inline"`
}

func (t *TenantFields) TenantKey() string { return t.Tenant }
func (t *TenantFields) RefKey() string    { return t.Ref }
func (t *TenantFields) IsDisabled() bool  { return t.Disabled }
func (t *TenantFields) SetRef(ref string) { t.Ref = ref }

// StampCreated records insert-time audit metadata. The caller's CreatedBy wins
// when already set.
func (t *TenantFields) StampCreated(by string, at time.Time) {
	if t.CreatedBy == "" {
		t.CreatedBy = by
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = at
	}
	t.StampUpdated(by, at)
}

// StampUpdated records update/replace-time audit metadata.
func (t *TenantFields) StampUpdated(by string, at time.Time) {
	if by != "" {
		t.UpdatedBy = by
	}
	t.UpdatedAt = at
}

// stampForInsert applies the insert-time defaults of the tenant facet:
// Disabled stays false unless set, CreatedAt/UpdatedAt are stamped, and an
// empty Ref gets a generated logical key.
func stampForInsert(doc any, now time.Time) {
	ta, ok := doc.(TenantAudited)
	if !ok {
		return
	}
	if ta.RefKey() == "" {
		ta.SetRef(uuid.NewString())
	}
	ta.StampCreated("", now)
}

func stampForReplace(doc any, now time.Time) {
	if ta, ok := doc.(TenantAudited); ok {
		ta.StampUpdated("", now)
	}
}
