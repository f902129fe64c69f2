package core

import "context"

// PetCache holds recently read pets keyed by ID.
//
// Get reports a miss with found=false and a nil error. Implementations must be safe for
// concurrent use.
type PetCache interface {
	Get(ctx context.Context, id string) (pet *Pet, found bool, err error)
	Set(ctx context.Context, pet *Pet) error
	Delete(ctx context.Context, id string) error
	Flush(ctx context.Context) error
	Close() error
}
