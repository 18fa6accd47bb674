package auth

import (
	"fmt"
	"sort"
	"strings"
)

// Role names a static bundle of grants.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// Action is a resource:verb pair checked against the matrix.
type Action string

const (
	ActionUsersCreate     Action = "users:create"
	ActionUsersRead       Action = "users:read"
	ActionUsersUpdate     Action = "users:update"
	ActionUsersDelete     Action = "users:delete"
	ActionUsersAssignRole Action = "users:assign-role"
	ActionPostsCreate     Action = "posts:create"
	ActionPostsRead       Action = "posts:read"
	ActionPostsUpdate     Action = "posts:update"
	ActionPostsDelete     Action = "posts:delete"
	ActionAuditRead       Action = "audit:read"
	ActionDashboardView   Action = "dashboard:view"
)

// Scope qualifies a grant: own limits it to resources the principal authored.
type Scope string

const (
	ScopeNone Scope = ""
	ScopeOwn  Scope = "own"
	ScopeAny  Scope = "any"
)

// Grant is a single matrix entry.
type Grant struct {
	Action Action
	Scope  Scope
}

func (g Grant) String() string { return string(g.Action) + ":" + string(g.Scope) }

// Matrix maps each role to its grants. It is built once and never mutated.
type Matrix struct {
	grants map[Role]map[Grant]struct{}
}

// NewMatrix copies the supplied grants into an immutable lookup table.
func NewMatrix(def map[Role][]Grant) (*Matrix, error) {
	m := &Matrix{grants: make(map[Role]map[Grant]struct{}, len(def))}
	for role, list := range def {
		if strings.TrimSpace(string(role)) == "" {
			return nil, fmt.Errorf("%w: empty role name", ErrValidation)
		}
		set := make(map[Grant]struct{}, len(list))
		for _, g := range list {
			if g.Scope != ScopeOwn && g.Scope != ScopeAny {
				return nil, fmt.Errorf("%w: grant %s has invalid scope", ErrValidation, g)
			}
			set[g] = struct{}{}
		}
		m.grants[role] = set
	}
	return m, nil
}

// Has reports whether role holds the exact grant.
func (m *Matrix) Has(role Role, g Grant) bool {
	set, ok := m.grants[role]
	if !ok {
		return false
	}
	_, ok = set[g]
	return ok
}

// Known reports whether role is a key of the matrix.
func (m *Matrix) Known(role Role) bool {
	_, ok := m.grants[role]
	return ok
}

// Roles returns the matrix roles sorted by name.
func (m *Matrix) Roles() []Role {
	out := make([]Role, 0, len(m.grants))
	for r := range m.grants {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Grants returns the role's grants sorted by their string form.
func (m *Matrix) Grants(role Role) []Grant {
	set := m.grants[role]
	out := make([]Grant, 0, len(set))
	for g := range set {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

var defaultMatrix = mustMatrix(map[Role][]Grant{
	RoleAdmin: {
		{ActionUsersCreate, ScopeAny},
		{ActionUsersRead, ScopeAny},
		{ActionUsersUpdate, ScopeAny},
		{ActionUsersDelete, ScopeAny},
		{ActionUsersAssignRole, ScopeAny},
		{ActionPostsCreate, ScopeAny},
		{ActionPostsRead, ScopeAny},
		{ActionPostsUpdate, ScopeAny},
		{ActionPostsDelete, ScopeAny},
		{ActionAuditRead, ScopeAny},
		{ActionDashboardView, ScopeAny},
	},
	RoleEditor: {
		{ActionPostsCreate, ScopeOwn},
		{ActionPostsRead, ScopeAny},
		{ActionPostsUpdate, ScopeOwn},
		{ActionPostsDelete, ScopeOwn},
		{ActionDashboardView, ScopeAny},
	},
	RoleViewer: {
		{ActionPostsRead, ScopeAny},
		{ActionDashboardView, ScopeAny},
	},
})

func mustMatrix(def map[Role][]Grant) *Matrix {
	m, err := NewMatrix(def)
	if err != nil {
		panic(err)
	}
	return m
}

// DefaultMatrix returns the compiled-in permission matrix.
func DefaultMatrix() *Matrix { return defaultMatrix }

// ValidRole reports whether role exists in the compiled-in matrix.
func ValidRole(role Role) bool { return defaultMatrix.Known(role) }

// ParseRole normalises s and checks it against the compiled-in matrix.
func ParseRole(s string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(s)))
	if !ValidRole(role) {
		return "", fmt.Errorf("%w: unknown role %q", ErrValidation, s)
	}
	return role, nil
}
