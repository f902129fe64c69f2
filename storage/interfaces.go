package storage

import (
	"context"

	"petshop/core"
)

// PetStore persists pets as revisioned documents.
//
// Create assigns the ID and first revision. Update and Delete must carry the document's
// current revision and fail with ErrConflict otherwise.
type PetStore interface {
	Create(ctx context.Context, pet *core.Pet) error
	Update(ctx context.Context, pet *core.Pet) error
	Delete(ctx context.Context, id, rev string) error
	Get(ctx context.Context, id string) (*core.Pet, error)
	All(ctx context.Context) ([]core.Pet, error)
	FindBy(ctx context.Context, selector Selector) ([]core.Pet, error)
	RemoveAll(ctx context.Context) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Selector is an equality filter over pet document fields, in Mango selector form.
type Selector map[string]interface{}

// Matches reports whether every selector field equals the same field of pet.
func (s Selector) Matches(pet *core.Pet) bool {
	doc := pet.Serialize()
	for field, want := range s.normalized() {
		if doc[field] != want {
			return false
		}
	}
	return true
}

// normalized converts typed domain values into the primitive form they take in a document.
func (s Selector) normalized() Selector {
	out := make(Selector, len(s))
	for field, value := range s {
		switch v := value.(type) {
		case core.Gender:
			out[field] = v.String()
		case core.Date:
			out[field] = v.String()
		default:
			out[field] = value
		}
	}
	return out
}
