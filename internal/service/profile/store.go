package profile

import "context"

// Store is the durable-record backend behind the profile service.
//
// Each method is atomic on its own. Implementations must:
//   - return ErrNotFound for unknown ids from Get, Update and Delete
//   - reject an Insert or Update that would duplicate an email with ErrEmailInUse
//   - apply UpdateParams.Apply to the stored record inside the atomic section
//   - return the pre-deletion snapshot from Delete
//   - wrap any other failure with WrapStorage
type Store interface {
	Get(ctx context.Context, id string) (*Profile, error)
	List(ctx context.Context, filter Filter) ([]Profile, error)
	Insert(ctx context.Context, p *Profile) error
	Update(ctx context.Context, id string, params UpdateParams) (*Profile, error)
	Delete(ctx context.Context, id string) (*Profile, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
}
