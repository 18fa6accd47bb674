package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"inkpost.org/internal/auth"
)

var _ auth.UserStore = (*Store)(nil)

const userColumns = `id, name, email, password_hash, role, sessions, version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*auth.User, error) {
	var (
		u        auth.User
		role     string
		sessions []byte
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &role, &sessions, &u.Version, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Role = auth.Role(role)
	if len(sessions) > 0 {
		if err := json.Unmarshal(sessions, &u.Sessions); err != nil {
			return nil, fmt.Errorf("decode sessions for %s: %w", u.ID, err)
		}
	}
	return &u, nil
}

func encodeSessions(s auth.Sessions) ([]byte, error) {
	if s == nil {
		s = auth.Sessions{}
	}
	return json.Marshal(s)
}

func (s *Store) CreateUser(ctx context.Context, u *auth.User) error {
	if s.db == nil {
		return errNoDB
	}
	sessions, err := encodeSessions(u.Sessions)
	if err != nil {
		return err
	}
	u.Email = auth.NormalizeEmail(u.Email)
	err = s.db.QueryRowContext(ctx, `
		insert into users (id, name, email, password_hash, role, sessions)
		values ($1, $2, $3, $4, $5, $6)
		returning version, created_at, updated_at
	`, u.ID, u.Name, u.Email, u.PasswordHash, string(u.Role), sessions).Scan(&u.Version, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	return s.findUser(ctx, `select `+userColumns+` from users where email = $1`, auth.NormalizeEmail(email))
}

func (s *Store) FindUserByID(ctx context.Context, id string) (*auth.User, error) {
	return s.findUser(ctx, `select `+userColumns+` from users where id = $1`, id)
}

func (s *Store) findUser(ctx context.Context, query string, arg string) (*auth.User, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	u, err := scanUser(s.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// SaveUser writes the whole record, sessions included, only if the stored
// version still equals u.Version.
func (s *Store) SaveUser(ctx context.Context, u *auth.User) error {
	if s.db == nil {
		return errNoDB
	}
	sessions, err := encodeSessions(u.Sessions)
	if err != nil {
		return err
	}
	u.Email = auth.NormalizeEmail(u.Email)
	err = s.db.QueryRowContext(ctx, `
		update users
		set name = $1, email = $2, password_hash = $3, role = $4, sessions = $5,
		    version = version + 1, updated_at = now()
		where id = $6 and version = $7
		returning version, updated_at
	`, u.Name, u.Email, u.PasswordHash, string(u.Role), sessions, u.ID, u.Version).Scan(&u.Version, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		var exists bool
		if err := s.db.QueryRowContext(ctx, `select exists(select 1 from users where id = $1)`, u.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return auth.ErrUserNotFound
		}
		return auth.ErrStaleWrite
	}
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context, role auth.Role) ([]*auth.User, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+userColumns+`
		from users
		where ($1 = '' or role = $1)
		order by created_at, id
	`, string(role))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*auth.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	if s.db == nil {
		return errNoDB
	}
	res, err := s.db.ExecContext(ctx, `delete from users where id = $1`, id)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrUserNotFound
	}
	return nil
}
