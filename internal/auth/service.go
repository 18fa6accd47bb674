package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"inkpost.org/internal/ids"
)

const defaultMaxAttempts = 5

// Service orchestrates login, refresh and logout over a UserStore and a
// TokenService. It is the only auth component that writes user records.
type Service struct {
	users       UserStore
	tokens      *TokenService
	now         func() time.Time
	maxAttempts int
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// WithMaxAttempts bounds how often a write is retried after ErrStaleWrite.
func WithMaxAttempts(n int) ServiceOption {
	return func(s *Service) error {
		if n < 1 {
			return errors.New("auth: max attempts must be positive")
		}
		s.maxAttempts = n
		return nil
	}
}

// NewService constructs Service with optional configuration.
func NewService(users UserStore, tokens *TokenService, opts ...ServiceOption) (*Service, error) {
	if users == nil {
		return nil, errors.New("auth: user store is required")
	}
	if tokens == nil {
		return nil, errors.New("auth: token service is required")
	}
	svc := &Service{
		users:       users,
		tokens:      tokens,
		now:         time.Now,
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// Tokens exposes the token service, e.g. for cookie lifetimes.
func (s *Service) Tokens() *TokenService { return s.tokens }

// Login checks credentials and opens a new refresh session. Unknown email and
// wrong password produce the same error.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return LoginResult{}, ErrInvalidCredentials
	}
	user, err := s.users.FindUserByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		_ = VerifyPassword(dummyHash, password)
		return LoginResult{}, ErrInvalidCredentials
	}
	if err != nil {
		return LoginResult{}, fmt.Errorf("auth: login lookup: %w", err)
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		if errors.Is(err, errPasswordMismatch) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, fmt.Errorf("auth: verify password: %w", err)
	}

	var refresh string
	var refreshExp time.Time
	user, err = s.mutate(ctx, user, func(u *User) error {
		u.Sessions.PurgeExpired(s.now())
		raw, exp, err := s.tokens.IssueRefreshToken(u)
		if err != nil {
			return err
		}
		if !u.Sessions.Add(Fingerprint(raw), exp) {
			return errors.New("auth: refresh fingerprint collision")
		}
		refresh, refreshExp = raw, exp
		return nil
	})
	if err != nil {
		return LoginResult{}, fmt.Errorf("auth: login: %w", err)
	}
	return s.complete(user, refresh, refreshExp)
}

// Refresh redeems a refresh token exactly once, replacing it with a new one in
// the same conditional save. Of two concurrent redemptions at most one wins.
func (s *Service) Refresh(ctx context.Context, raw string) (LoginResult, error) {
	if strings.TrimSpace(raw) == "" {
		return LoginResult{}, ErrRefreshMissing
	}
	claims, err := s.tokens.VerifyRefreshToken(raw)
	if err != nil {
		return LoginResult{}, err
	}
	fp := Fingerprint(raw)

	user, err := s.users.FindUserByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return LoginResult{}, ErrUserNotFound
		}
		return LoginResult{}, fmt.Errorf("auth: refresh lookup: %w", err)
	}

	var next string
	var nextExp time.Time
	user, err = s.mutate(ctx, user, func(u *User) error {
		now := s.now()
		u.Sessions.PurgeExpired(now)
		if !u.Sessions.Contains(fp, now) {
			return ErrRefreshRevoked
		}
		u.Sessions.Revoke(fp)
		raw, exp, err := s.tokens.IssueRefreshToken(u)
		if err != nil {
			return err
		}
		if !u.Sessions.Add(Fingerprint(raw), exp) {
			return errors.New("auth: refresh fingerprint collision")
		}
		next, nextExp = raw, exp
		return nil
	})
	switch {
	case errors.Is(err, ErrRefreshRevoked), errors.Is(err, ErrUserNotFound):
		return LoginResult{}, err
	case err != nil:
		return LoginResult{}, fmt.Errorf("auth: refresh: %w", err)
	}
	return s.complete(user, next, nextExp)
}

// Logout revokes the presented refresh token from subject's sessions. It is
// idempotent: missing tokens, unknown users and already revoked tokens succeed.
func (s *Service) Logout(ctx context.Context, raw, subject string) error {
	if strings.TrimSpace(raw) == "" || strings.TrimSpace(subject) == "" {
		return nil
	}
	user, err := s.users.FindUserByID(ctx, subject)
	if errors.Is(err, ErrUserNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("auth: logout lookup: %w", err)
	}
	fp := Fingerprint(raw)
	_, err = s.mutate(ctx, user, func(u *User) error {
		purged := u.Sessions.PurgeExpired(s.now())
		if !u.Sessions.Revoke(fp) && purged == 0 {
			return errNothingToSave
		}
		return nil
	})
	switch {
	case err == nil, errors.Is(err, errNothingToSave), errors.Is(err, ErrUserNotFound):
		return nil
	default:
		return fmt.Errorf("auth: logout: %w", err)
	}
}

// Authenticate verifies a bearer access token. Only the signature and expiry
// are checked; no store lookup happens.
func (s *Service) Authenticate(_ context.Context, raw string) (Principal, error) {
	claims, err := s.tokens.VerifyAccessToken(raw)
	if err != nil {
		return Principal{}, err
	}
	return claims.Principal(), nil
}

// CreateUser validates input, hashes the password and stores a new account.
func (s *Service) CreateUser(ctx context.Context, in NewUser) (*User, error) {
	name := strings.TrimSpace(in.Name)
	if n := utf8.RuneCountInString(name); n < 2 || n > 64 {
		return nil, fmt.Errorf("%w: name must be 2-64 characters", ErrValidation)
	}
	email, err := ValidateEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if err := ValidatePassword(in.Password); err != nil {
		return nil, err
	}
	if !ValidRole(in.Role) {
		return nil, fmt.Errorf("%w: unknown role %q", ErrValidation, in.Role)
	}
	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("auth: hash password: %w", err)
	}
	user := &User{
		ID:           ids.New(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         in.Role,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, fmt.Errorf("%w: email already exists", ErrConflict)
		}
		return nil, fmt.Errorf("auth: create user: %w", err)
	}
	return user, nil
}

// ListUsers returns users, optionally restricted to role.
func (s *Service) ListUsers(ctx context.Context, role Role) ([]*User, error) {
	if role != "" && !ValidRole(role) {
		return nil, fmt.Errorf("%w: unknown role %q", ErrValidation, role)
	}
	users, err := s.users.ListUsers(ctx, role)
	if err != nil {
		return nil, fmt.Errorf("auth: list users: %w", err)
	}
	return users, nil
}

// AssignRole changes a user's role and returns the updated user and the role
// it replaced. Tokens already issued keep the old role until they expire.
func (s *Service) AssignRole(ctx context.Context, id string, role Role) (*User, Role, error) {
	if !ValidRole(role) {
		return nil, "", fmt.Errorf("%w: unknown role %q", ErrValidation, role)
	}
	user, err := s.users.FindUserByID(ctx, id)
	if err != nil {
		return nil, "", s.adminLookupErr(id, err)
	}
	var previous Role
	user, err = s.mutate(ctx, user, func(u *User) error {
		previous = u.Role
		u.Role = role
		return nil
	})
	if err != nil {
		return nil, "", s.adminLookupErr(id, err)
	}
	return user, previous, nil
}

// DeleteUser removes a user and with it every open session. The removed
// record is returned for auditing.
func (s *Service) DeleteUser(ctx context.Context, id string) (*User, error) {
	user, err := s.users.FindUserByID(ctx, id)
	if err != nil {
		return nil, s.adminLookupErr(id, err)
	}
	if err := s.users.DeleteUser(ctx, id); err != nil {
		return nil, s.adminLookupErr(id, err)
	}
	return user, nil
}

// errNothingToSave short-circuits mutate when fn made no change.
var errNothingToSave = errors.New("auth: nothing to save")

// mutate applies fn to user and saves it conditioned on its version. On
// ErrStaleWrite the user is re-read and fn runs again against fresh state.
func (s *Service) mutate(ctx context.Context, user *User, fn func(*User) error) (*User, error) {
	for attempt := 1; ; attempt++ {
		if err := fn(user); err != nil {
			return nil, err
		}
		err := s.users.SaveUser(ctx, user)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, ErrStaleWrite) || attempt >= s.maxAttempts {
			return nil, err
		}
		fresh, ferr := s.users.FindUserByID(ctx, user.ID)
		if ferr != nil {
			return nil, ferr
		}
		user = fresh
	}
}

func (s *Service) complete(user *User, refresh string, refreshExp time.Time) (LoginResult, error) {
	access, accessExp, err := s.tokens.IssueAccessToken(user)
	if err != nil {
		return LoginResult{}, fmt.Errorf("auth: issue access token: %w", err)
	}
	return LoginResult{
		Tokens: TokenPair{
			AccessToken:      access,
			RefreshToken:     refresh,
			AccessExpiresAt:  accessExp,
			RefreshExpiresAt: refreshExp,
		},
		User: user.Public(),
	}, nil
}

func (s *Service) adminLookupErr(id string, err error) error {
	if errors.Is(err, ErrUserNotFound) {
		return fmt.Errorf("%w: user %s", ErrNotFound, id)
	}
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrConflict) {
		return err
	}
	return fmt.Errorf("auth: user %s: %w", id, err)
}

// ValidateEmail normalises email and checks it parses as a bare address.
func ValidateEmail(email string) (string, error) {
	email = NormalizeEmail(email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: email is invalid", ErrValidation)
	}
	return email, nil
}

// ValidatePassword enforces the minimum password length.
func ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < 6 {
		return fmt.Errorf("%w: password must be at least 6 characters", ErrValidation)
	}
	return nil
}
