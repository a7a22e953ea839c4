// Package profile ensures every created account has a user-facing profile
// record. Bootstrap failures are never fatal to authentication: the account
// exists either way and the caller surfaces the failure separately.
package profile

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

type Service struct {
	repository Repository

	// takenUsernames caches positive existence results only; availability
	// can be revoked at any moment by a concurrent sign-up, so "available"
	// is always checked against the repository.
	takenUsernames *gocache.Cache
}

func NewService(repo Repository, usernameCacheTTL time.Duration) *Service {
	return &Service{
		repository:     repo,
		takenUsernames: gocache.New(usernameCacheTTL, 2*usernameCacheTTL),
	}
}

// Bootstrap upserts the profile record for a freshly created identity.
// Calling it twice for the same identity leaves exactly one record.
func (s *Service) Bootstrap(ctx context.Context, identityID, username, displayName string) error {
	now := time.Now()
	err := s.repository.Upsert(ctx, Profile{
		UserID:      identityID,
		Username:    username,
		DisplayName: displayName,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return fmt.Errorf("upserting profile: %w", err)
	}

	s.takenUsernames.SetDefault(username, true)

	return nil
}

func (s *Service) GetByUsername(ctx context.Context, username string) (Profile, error) {
	p, err := s.repository.GetByUsername(ctx, username)
	if err != nil {
		return Profile{}, fmt.Errorf("getting profile by username: %w", err)
	}

	return p, nil
}

func (s *Service) GetByUserID(ctx context.Context, userID string) (Profile, error) {
	p, err := s.repository.GetByUserID(ctx, userID)
	if err != nil {
		return Profile{}, fmt.Errorf("getting profile by user id: %w", err)
	}

	return p, nil
}

// CheckUsernameAvailable reports whether the username is free to register.
func (s *Service) CheckUsernameAvailable(ctx context.Context, username string) (bool, error) {
	if _, taken := s.takenUsernames.Get(username); taken {
		return false, nil
	}

	exists, err := s.repository.UsernameExists(ctx, username)
	if err != nil {
		return false, fmt.Errorf("checking username existence: %w", err)
	}

	if exists {
		s.takenUsernames.SetDefault(username, true)
	}

	return !exists, nil
}

// Update applies profile edits for an existing user.
func (s *Service) Update(ctx context.Context, p Profile) error {
	current, err := s.repository.GetByUserID(ctx, p.UserID)
	if err != nil {
		return fmt.Errorf("loading current profile: %w", err)
	}

	p.CreatedAt = current.CreatedAt
	p.UpdatedAt = time.Now()
	if err := s.repository.Upsert(ctx, p); err != nil {
		return fmt.Errorf("upserting profile: %w", err)
	}

	if p.Username != current.Username {
		s.takenUsernames.Delete(current.Username)
		s.takenUsernames.SetDefault(p.Username, true)
	}

	return nil
}
