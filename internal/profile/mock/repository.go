package profilemock

import (
	"context"
	"sync"

	"github.com/fableink/credential-manager/internal/profile"
	"github.com/fableink/credential-manager/internal/serviceerr"
)

type RepositoryOption func(*Repository)

type Repository struct {
	mu       sync.Mutex
	profiles map[string]profile.Profile // keyed by user id

	upsertErr, getErr, existsErr error

	UpsertCalls int
}

func WithProfile(p profile.Profile) RepositoryOption {
	return func(r *Repository) { r.profiles[p.UserID] = p }
}

func WithUpsertError(err error) RepositoryOption {
	return func(r *Repository) { r.upsertErr = err }
}

func WithGetError(err error) RepositoryOption {
	return func(r *Repository) { r.getErr = err }
}

func WithExistsError(err error) RepositoryOption {
	return func(r *Repository) { r.existsErr = err }
}

var _ = profile.Repository(&Repository{})

func NewInMemRepository(opts ...RepositoryOption) *Repository {
	r := &Repository{
		profiles: make(map[string]profile.Profile),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	return r
}

func (r *Repository) Upsert(_ context.Context, p profile.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.UpsertCalls++
	if r.upsertErr != nil {
		return r.upsertErr
	}

	for userID, existing := range r.profiles {
		if existing.Username == p.Username && userID != p.UserID {
			return serviceerr.ErrConflict
		}
	}

	if existing, ok := r.profiles[p.UserID]; ok {
		p.CreatedAt = existing.CreatedAt
	}
	r.profiles[p.UserID] = p

	return nil
}

func (r *Repository) GetByUserID(_ context.Context, userID string) (profile.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.getErr != nil {
		return profile.Profile{}, r.getErr
	}

	if p, ok := r.profiles[userID]; ok {
		return p, nil
	}

	return profile.Profile{}, serviceerr.ErrNotFound
}

func (r *Repository) GetByUsername(_ context.Context, username string) (profile.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.getErr != nil {
		return profile.Profile{}, r.getErr
	}

	for _, p := range r.profiles {
		if p.Username == username {
			return p, nil
		}
	}

	return profile.Profile{}, serviceerr.ErrNotFound
}

func (r *Repository) UsernameExists(_ context.Context, username string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.existsErr != nil {
		return false, r.existsErr
	}

	for _, p := range r.profiles {
		if p.Username == username {
			return true, nil
		}
	}

	return false, nil
}

// Count returns the number of stored profile records.
func (r *Repository) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.profiles)
}
