package auth

import (
	"context"
	"errors"
	"testing"
)

func TestEvaluateDefaultMatrix(t *testing.T) {
	ev := NewEvaluator(nil)
	cases := []struct {
		role   Role
		action Action
		want   Decision
	}{
		{RoleAdmin, ActionUsersDelete, Decision{Allowed: true, Scope: ScopeAny}},
		{RoleAdmin, ActionPostsUpdate, Decision{Allowed: true, Scope: ScopeAny}},
		{RoleEditor, ActionPostsUpdate, Decision{Allowed: true, Scope: ScopeOwn}},
		{RoleEditor, ActionPostsRead, Decision{Allowed: true, Scope: ScopeAny}},
		{RoleEditor, ActionUsersRead, Decision{}},
		{RoleViewer, ActionPostsCreate, Decision{}},
		{RoleViewer, ActionDashboardView, Decision{Allowed: true, Scope: ScopeAny}},
		{Role("ghost"), ActionPostsRead, Decision{}},
		{RoleAdmin, Action("posts:archive"), Decision{}},
	}
	for _, tc := range cases {
		if got := ev.Evaluate(tc.role, tc.action); got != tc.want {
			t.Fatalf("Evaluate(%s, %s)=%+v, want %+v", tc.role, tc.action, got, tc.want)
		}
	}
}

func TestEvaluatePrefersAnyOverOwn(t *testing.T) {
	m, err := NewMatrix(map[Role][]Grant{
		"author": {{ActionPostsUpdate, ScopeOwn}, {ActionPostsUpdate, ScopeAny}},
	})
	if err != nil {
		t.Fatalf("NewMatrix: %v", err)
	}
	got := NewEvaluator(m).Evaluate("author", ActionPostsUpdate)
	if got != (Decision{Allowed: true, Scope: ScopeAny}) {
		t.Fatalf("expected any scope, got %+v", got)
	}
}

func TestNewMatrixRejectsBadScope(t *testing.T) {
	_, err := NewMatrix(map[Role][]Grant{"x": {{ActionPostsRead, ScopeNone}}})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestDecisionPermits(t *testing.T) {
	own := Decision{Allowed: true, Scope: ScopeOwn}
	if !own.Permits("u1", "u1") {
		t.Fatalf("own scope should permit own resource")
	}
	if own.Permits("u2", "u1") || own.Permits("", "") {
		t.Fatalf("own scope must not permit foreign or unowned resource")
	}
	if !(Decision{Allowed: true, Scope: ScopeAny}).Permits("u2", "u1") {
		t.Fatalf("any scope should permit foreign resource")
	}
	if (Decision{}).Permits("u1", "u1") {
		t.Fatalf("denied decision permits nothing")
	}
}

type recordedDenial struct{ action, role string }

type fakeDenials struct{ got []recordedDenial }

func (f *fakeDenials) RecordDenial(_ context.Context, action, role string) {
	f.got = append(f.got, recordedDenial{action, role})
}

func TestAuthorizerRecordsDenials(t *testing.T) {
	rec := &fakeDenials{}
	az := NewAuthorizer(NewEvaluator(nil), rec)
	ctx := context.Background()

	if _, err := az.Authorize(ctx, Principal{Subject: "a", Role: RoleAdmin}, ActionUsersRead); err != nil {
		t.Fatalf("admin should be allowed: %v", err)
	}
	_, err := az.Authorize(ctx, Principal{Subject: "v", Role: RoleViewer}, ActionUsersRead)
	var denied *DeniedError
	if !errors.As(err, &denied) || denied.Action != ActionUsersRead {
		t.Fatalf("expected DeniedError for users:read, got %v", err)
	}
	if !errors.Is(err, ErrAuthorizationDenied) {
		t.Fatalf("DeniedError should unwrap to ErrAuthorizationDenied")
	}
	if len(rec.got) != 1 || rec.got[0] != (recordedDenial{"users:read", "viewer"}) {
		t.Fatalf("unexpected recorded denials: %+v", rec.got)
	}
}

func TestAuthorizerLabelsMissingRoleUnknown(t *testing.T) {
	rec := &fakeDenials{}
	az := NewAuthorizer(nil, rec)
	if _, err := az.Authorize(context.Background(), Principal{Subject: "x"}, ActionPostsRead); err == nil {
		t.Fatal("expected denial for principal without role")
	}
	if len(rec.got) != 1 || rec.got[0].role != "unknown" {
		t.Fatalf("unexpected recorded denials: %+v", rec.got)
	}
	if az.Matrix() != DefaultMatrix() {
		t.Fatal("nil evaluator should fall back to the default matrix")
	}
}

func TestParseRole(t *testing.T) {
	if r, err := ParseRole(" Editor "); err != nil || r != RoleEditor {
		t.Fatalf("ParseRole: %v %v", r, err)
	}
	if _, err := ParseRole("root"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	roles := DefaultMatrix().Roles()
	if len(roles) != 3 || roles[0] != RoleAdmin || roles[2] != RoleViewer {
		t.Fatalf("unexpected roles: %v", roles)
	}
}
