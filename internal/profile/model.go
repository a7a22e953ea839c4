package profile

import "time"

// Profile is the user-facing record shown next to stories, comments and
// reading lists. The identity service owns the account; this record only
// mirrors the presentation attributes.
type Profile struct {
	UserID      string
	Username    string
	DisplayName string
	AvatarURL   string
	Bio         string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
