package handlers

import (
	"mime"
	"net/http"

	"speech-to-pdf/internal/apperror"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// Login accepts the OAuth2 password form or a JSON body.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if isJSON(r) {
		if err := decodeJSON(r, &in); err != nil {
			h.respondError(w, r, err)
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			h.respondError(w, r, apperror.Validation("Malformed form body", nil))
			return
		}
		in.Username, in.Password = r.PostFormValue("username"), r.PostFormValue("password")
	}
	if in.Username == "" || in.Password == "" {
		h.respondError(w, r, apperror.Validation("username and password are required",
			map[string]string{"username": "required", "password": "required"}))
		return
	}

	user, err := h.accounts.Authenticate(r.Context(), in.Username, in.Password)
	if err != nil {
		if apperror.Is(err, apperror.KindUnauthorized) {
			w.Header().Set("WWW-Authenticate", "Bearer")
		}
		h.respondError(w, r, err)
		return
	}
	token, err := h.tokens.Issue(user.Username)
	if err != nil {
		h.respondError(w, r, apperror.Internal("Could not issue token", err))
		return
	}
	respondJSON(w, http.StatusOK, tokenResponse{AccessToken: token, TokenType: "bearer"})
}

func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

// ChangePassword changes the caller's own password. The admin route also
// takes current_password and new_password as query parameters.
func (h *Handlers) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	in := changePasswordRequest{
		CurrentPassword: r.URL.Query().Get("current_password"),
		NewPassword:     r.URL.Query().Get("new_password"),
	}
	if in.CurrentPassword == "" && in.NewPassword == "" {
		if err := decodeJSON(r, &in); err != nil {
			h.respondError(w, r, err)
			return
		}
	}
	if in.CurrentPassword == "" || in.NewPassword == "" {
		h.respondError(w, r, apperror.Validation("current_password and new_password are required",
			map[string]string{"current_password": "required", "new_password": "required"}))
		return
	}
	if err := h.accounts.ChangePassword(r.Context(), user, in.CurrentPassword, in.NewPassword); err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, message{Detail: "Password changed successfully"})
}

func isJSON(r *http.Request) bool {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return mediaType == "application/json"
}
