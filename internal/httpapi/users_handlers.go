package httpapi

import (
	"net/http"

	"inkpost.org/internal/audit"
	"inkpost.org/internal/auth"
)

const userTarget = "User"

type createUserRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type assignRoleRequest struct {
	Role string `json:"role"`
}

func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"roles": a.authz.Matrix().Roles()})
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	if !a.authorize(w, r, auth.ActionUsersRead) {
		return
	}
	var role auth.Role
	if q := r.URL.Query().Get("role"); q != "" {
		parsed, err := auth.ParseRole(q)
		if err != nil {
			respondErr(w, r, err)
			return
		}
		role = parsed
	}
	users, err := a.auth.ListUsers(r.Context(), role)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	if users == nil {
		users = []*auth.User{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (a *API) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	if !a.authorize(w, r, auth.ActionUsersCreate) {
		return
	}
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondErr(w, r, err)
		return
	}
	role, err := auth.ParseRole(req.Role)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	user, err := a.auth.CreateUser(r.Context(), auth.NewUser{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     role,
	})
	if err != nil {
		respondErr(w, r, err)
		return
	}
	a.audit.Record(r.Context(), audit.Event{
		Action:     string(auth.ActionUsersCreate),
		TargetType: userTarget,
		TargetID:   user.ID,
		Snapshot: map[string]any{
			"name":  user.Name,
			"email": user.Email,
			"role":  user.Role,
		},
	})
	w.Header().Set("Location", "/v1/users/"+user.ID)
	writeJSON(w, http.StatusCreated, map[string]any{"user": user.Public()})
}

func (a *API) handleAssignRole(w http.ResponseWriter, r *http.Request) {
	if !a.authorize(w, r, auth.ActionUsersAssignRole) {
		return
	}
	var req assignRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondErr(w, r, err)
		return
	}
	role, err := auth.ParseRole(req.Role)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	user, previous, err := a.auth.AssignRole(r.Context(), r.PathValue("id"), role)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	a.audit.Record(r.Context(), audit.Event{
		Action:     string(auth.ActionUsersAssignRole),
		TargetType: userTarget,
		TargetID:   user.ID,
		Snapshot: map[string]any{
			"previousRole": previous,
			"newRole":      user.Role,
		},
	})
	writeJSON(w, http.StatusOK, map[string]any{"user": user.Public()})
}

func (a *API) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if !a.authorize(w, r, auth.ActionUsersDelete) {
		return
	}
	user, err := a.auth.DeleteUser(r.Context(), r.PathValue("id"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	a.audit.Record(r.Context(), audit.Event{
		Action:     string(auth.ActionUsersDelete),
		TargetType: userTarget,
		TargetID:   user.ID,
		Snapshot: map[string]any{
			"name":  user.Name,
			"email": user.Email,
		},
	})
	writeJSON(w, http.StatusOK, messageResponse{Message: "User removed"})
}
