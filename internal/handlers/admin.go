package handlers

import (
	"net/http"

	"speech-to-pdf/internal/accounts"
	"speech-to-pdf/internal/models"
)

type usersResponse struct {
	Users []models.User `json:"users"`
	Total int           `json:"total"`
}

func (h *Handlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	skip, limit, err := pagination(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	users, total, err := h.accounts.List(r.Context(), skip, limit)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, usersResponse{Users: users, Total: total})
}

func (h *Handlers) CreateUser(w http.ResponseWriter, r *http.Request) {
	admin, err := currentUser(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	var in accounts.CreateUserInput
	if err := decodeJSON(r, &in); err != nil {
		h.respondError(w, r, err)
		return
	}
	user, err := h.accounts.Create(r.Context(), admin, in)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

func (h *Handlers) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	user, err := h.accounts.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

func (h *Handlers) UpdateUser(w http.ResponseWriter, r *http.Request) {
	admin, err := currentUser(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	var patch models.UserPatch
	if err := decodeJSON(r, &patch); err != nil {
		h.respondError(w, r, err)
		return
	}
	user, err := h.accounts.Update(r.Context(), admin, id, patch)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

func (h *Handlers) DeleteUser(w http.ResponseWriter, r *http.Request) {
	admin, err := currentUser(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if err := h.accounts.Delete(r.Context(), admin, id); err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, message{Detail: "User deleted successfully"})
}
