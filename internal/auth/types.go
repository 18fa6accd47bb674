package auth

import "time"

// User is the persisted account record. Sessions travel with it so a single
// version-conditioned save updates both.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	Sessions     Sessions  `json:"-"`
	Version      int64     `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Public strips credentials and sessions.
func (u *User) Public() PublicUser {
	return PublicUser{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}
}

// Principal returns the identity the user's tokens will carry.
func (u *User) Principal() Principal {
	return Principal{Subject: u.ID, Email: u.Email, Name: u.Name, Role: u.Role}
}

// Clone returns a deep copy, including the session slice.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	cp := *u
	cp.Sessions = u.Sessions.clone()
	return &cp
}

// PublicUser is the user shape returned to clients.
type PublicUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// TokenPair represents access and refresh tokens along with their expirations.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// LoginResult is returned by Login and Refresh.
type LoginResult struct {
	Tokens TokenPair
	User   PublicUser
}

// NewUser carries the input for CreateUser.
type NewUser struct {
	Name     string
	Email    string
	Password string
	Role     Role
}
