package auth

import "context"

// UserStore is the persistence boundary of the auth subsystem.
//
// SaveUser must apply the write only when the stored Version equals u.Version,
// returning ErrStaleWrite otherwise, and must increment u.Version on success.
type UserStore interface {
	CreateUser(ctx context.Context, u *User) error
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	FindUserByID(ctx context.Context, id string) (*User, error)
	SaveUser(ctx context.Context, u *User) error
	ListUsers(ctx context.Context, role Role) ([]*User, error)
	DeleteUser(ctx context.Context, id string) error
}
