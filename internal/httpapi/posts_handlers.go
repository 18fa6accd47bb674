package httpapi

import (
	"net/http"

	"inkpost.org/internal/auth"
	"inkpost.org/internal/posts"
)

func (a *API) handleListPosts(w http.ResponseWriter, r *http.Request) {
	list, err := a.posts.List(r.Context(), principal(r))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	if list == nil {
		list = []*posts.Post{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"posts": list})
}

func (a *API) handleGetPost(w http.ResponseWriter, r *http.Request) {
	post, err := a.posts.Get(r.Context(), principal(r), r.PathValue("id"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"post": post})
}

func (a *API) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	// Entitlement is checked before the body so refused callers always see 403.
	if !a.authorize(w, r, auth.ActionPostsCreate) {
		return
	}
	var in posts.Input
	if err := decodeJSON(w, r, &in); err != nil {
		respondErr(w, r, err)
		return
	}
	post, err := a.posts.Create(r.Context(), principal(r), in)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/posts/"+post.ID)
	writeJSON(w, http.StatusCreated, map[string]any{"post": post})
}

func (a *API) handleUpdatePost(w http.ResponseWriter, r *http.Request) {
	if !a.authorize(w, r, auth.ActionPostsUpdate) {
		return
	}
	var in posts.Input
	if err := decodeJSON(w, r, &in); err != nil {
		respondErr(w, r, err)
		return
	}
	post, err := a.posts.Update(r.Context(), principal(r), r.PathValue("id"), in)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"post": post})
}

func (a *API) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	if err := a.posts.Delete(r.Context(), principal(r), r.PathValue("id")); err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Post removed"})
}
