package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"inkpost.org/internal/auth"
	"inkpost.org/internal/posts"
)

// Posts adapts Store to posts.Store.
type Posts struct{ s *Store }

var _ posts.Store = Posts{}

// Posts returns the post store view.
func (s *Store) Posts() Posts { return Posts{s: s} }

const postColumns = `id, title, content, status, author_id, last_modified_by, published_at, created_at, updated_at`

func scanPost(row rowScanner) (*posts.Post, error) {
	var (
		p         posts.Post
		status    string
		modBy     sql.NullString
		published sql.NullTime
	)
	if err := row.Scan(&p.ID, &p.Title, &p.Content, &status, &p.AuthorID, &modBy, &published, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Status = posts.Status(status)
	p.LastModifiedBy = modBy.String
	if published.Valid {
		t := published.Time
		p.PublishedAt = &t
	}
	return &p, nil
}

func publishedArg(t *posts.Post) sql.NullTime {
	if t.PublishedAt == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t.PublishedAt, Valid: true}
}

func (p Posts) Create(ctx context.Context, post *posts.Post) error {
	if p.s.db == nil {
		return errNoDB
	}
	_, err := p.s.db.ExecContext(ctx, `
		insert into posts (id, title, content, status, author_id, last_modified_by, published_at, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, post.ID, post.Title, post.Content, string(post.Status), post.AuthorID,
		nullIfEmpty(post.LastModifiedBy), publishedArg(post), post.CreatedAt, post.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.ErrConflict
		}
		return err
	}
	return nil
}

func (p Posts) Get(ctx context.Context, id string) (*posts.Post, error) {
	if p.s.db == nil {
		return nil, errNoDB
	}
	post, err := scanPost(p.s.db.QueryRowContext(ctx, `select `+postColumns+` from posts where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: post %s", auth.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return post, nil
}

func (p Posts) Update(ctx context.Context, post *posts.Post) error {
	if p.s.db == nil {
		return errNoDB
	}
	res, err := p.s.db.ExecContext(ctx, `
		update posts
		set title = $1, content = $2, status = $3, last_modified_by = $4, published_at = $5, updated_at = $6
		where id = $7
	`, post.Title, post.Content, string(post.Status), nullIfEmpty(post.LastModifiedBy), publishedArg(post), post.UpdatedAt, post.ID)
	if err != nil {
		return err
	}
	return expectOne(res, post.ID)
}

func (p Posts) Delete(ctx context.Context, id string) error {
	if p.s.db == nil {
		return errNoDB
	}
	res, err := p.s.db.ExecContext(ctx, `delete from posts where id = $1`, id)
	if err != nil {
		return err
	}
	return expectOne(res, id)
}

func (p Posts) List(ctx context.Context, f posts.Filter) ([]*posts.Post, error) {
	if p.s.db == nil {
		return nil, errNoDB
	}
	rows, err := p.s.db.QueryContext(ctx, `
		select `+postColumns+`
		from posts
		where ($1 = '' or author_id = $1) and ($2 = '' or status = $2)
		order by updated_at desc, id desc
	`, f.AuthorID, string(f.Status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*posts.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, post)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func expectOne(res sql.Result, id string) error {
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return fmt.Errorf("%w: post %s", auth.ErrNotFound, id)
	}
	return nil
}
