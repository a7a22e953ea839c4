package profile

import "context"

// Repository stores profile records. Upsert carries the idempotence
// contract: invoked twice for the same user it updates rather than
// duplicates.
type Repository interface {
	Upsert(ctx context.Context, p Profile) error
	GetByUserID(ctx context.Context, userID string) (Profile, error)
	GetByUsername(ctx context.Context, username string) (Profile, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
}
