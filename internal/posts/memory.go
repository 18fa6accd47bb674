package posts

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"inkpost.org/internal/auth"
)

// MemoryStore keeps posts in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	posts map[string]*Post
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{posts: make(map[string]*Post)}
}

func (m *MemoryStore) Create(ctx context.Context, p *Post) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.posts[p.ID]; ok {
		return auth.ErrConflict
	}
	m.posts[p.ID] = clonePost(p)
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Post, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.posts[id]
	if !ok {
		return nil, fmt.Errorf("%w: post %s", auth.ErrNotFound, id)
	}
	return clonePost(p), nil
}

func (m *MemoryStore) Update(ctx context.Context, p *Post) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.posts[p.ID]; !ok {
		return fmt.Errorf("%w: post %s", auth.ErrNotFound, p.ID)
	}
	m.posts[p.ID] = clonePost(p)
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.posts[id]; !ok {
		return fmt.Errorf("%w: post %s", auth.ErrNotFound, id)
	}
	delete(m.posts, id)
	return nil
}

func (m *MemoryStore) List(ctx context.Context, f Filter) ([]*Post, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	out := make([]*Post, 0, len(m.posts))
	for _, p := range m.posts {
		if f.AuthorID != "" && p.AuthorID != f.AuthorID {
			continue
		}
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		out = append(out, clonePost(p))
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func clonePost(p *Post) *Post {
	cp := *p
	if p.PublishedAt != nil {
		t := *p.PublishedAt
		cp.PublishedAt = &t
	}
	return &cp
}
