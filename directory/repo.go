package directory

import "context"

// Repo is the Directory Service. GetProfile and GetProfileByEmail return errors.ErrNotFound
// when no profile exists.
type Repo interface {
	GetProfile(ctx context.Context, userID string) (*Profile, error)
	GetProfileByEmail(ctx context.Context, email string) (*Profile, error)
	UpsertProfile(ctx context.Context, profile *Profile) error
	ClearMustReset(ctx context.Context, userID string) error

	ListMemberships(ctx context.Context, userID string) ([]Membership, error)
	AddMembership(ctx context.Context, membership Membership) error

	ListOperationalRoles(ctx context.Context, userID string) ([]OperationalRole, error)

	// ListApplications returns active applications ordered by name.
	ListApplications(ctx context.Context) ([]Application, error)
}
