package domain

import "context"

// User is the public-safe user view broadcast to channel members. Password
// handling lives outside this service and is never read here.
type User struct {
	ID              string `json:"id"`
	Forename        string `json:"forename"`
	Surname         string `json:"surname"`
	Email           string `json:"email"`
	ProfileImageURL string `json:"profileImageUrl,omitempty"`
}

// UserUpdate is a partial change set applied to a user row. Nil fields are
// left untouched. RemoveProfileImage clears the stored image reference and
// wins over ProfileImageURL.
type UserUpdate struct {
	Forename           *string
	Surname            *string
	Email              *string
	ProfileImageURL    *string
	RemoveProfileImage bool
}

// Empty reports whether the update would change nothing.
func (u UserUpdate) Empty() bool {
	return u.Forename == nil && u.Surname == nil && u.Email == nil &&
		u.ProfileImageURL == nil && !u.RemoveProfileImage
}

type UserStore interface {
	GetUser(ctx context.Context, userID string) (User, error)
	UpdateUser(ctx context.Context, userID string, update UserUpdate) error
}
