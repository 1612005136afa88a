package handlers

import (
	"mime"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/samber/lo"
	"speech-to-pdf/internal/apperror"
	"speech-to-pdf/internal/conversion"
	"speech-to-pdf/internal/models"
)

type ownerResponse struct {
	ID       int64   `json:"id"`
	Username string  `json:"username"`
	Email    string  `json:"email"`
	Credits  float64 `json:"credits"`
}

type conversionResponse struct {
	ID               int64          `json:"id"`
	DisplayName      string         `json:"display_name"`
	OriginalFilename string         `json:"original_filename"`
	Status           string         `json:"status"`
	Duration         *float64       `json:"duration"`
	ModelUsed        *string        `json:"model_used"`
	Language         *string        `json:"language"`
	ErrorMessage     *string        `json:"error_message"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	HasDocx          bool           `json:"has_docx"`
	HasPdf           bool           `json:"has_pdf"`
	HasTxt           bool           `json:"has_txt"`
	HasSrt           bool           `json:"has_srt"`
	User             *ownerResponse `json:"user,omitempty"`
}

type conversionsResponse struct {
	Conversions []conversionResponse `json:"conversions"`
	Total       int                  `json:"total"`
}

func newConversionResponse(c models.Conversion, owner *ownerResponse) conversionResponse {
	return conversionResponse{
		ID:               c.ID,
		DisplayName:      c.DisplayName,
		OriginalFilename: c.OriginalFilename,
		Status:           string(c.Status),
		Duration:         c.Duration,
		ModelUsed:        c.ModelUsed,
		Language:         c.Language,
		ErrorMessage:     c.ErrorMessage,
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
		HasDocx:          conversion.Available(c, conversion.KindDOCX),
		HasPdf:           conversion.Available(c, conversion.KindPDF),
		HasTxt:           conversion.Available(c, conversion.KindTXT),
		HasSrt:           conversion.Available(c, conversion.KindSRT),
		User:             owner,
	}
}

func ownerOf(u models.User) *ownerResponse {
	return &ownerResponse{ID: u.ID, Username: u.Username, Email: u.Email, Credits: u.Credits}
}

// Upload streams the multipart body straight to disk; the body is capped at
// the file limit plus multipart overhead.
func (h *Handlers) Upload(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxFileSize+conversion.MultipartOverhead)
	mr, err := r.MultipartReader()
	if err != nil {
		h.respondError(w, r, apperror.Validation("Expected a multipart/form-data upload", nil))
		return
	}
	job, err := h.conversions.Upload(r.Context(), user, mr, r.ContentLength)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newConversionResponse(job, nil))
}

// ListConversions returns the caller's jobs; admins see everyone's and may
// filter owners with search_user.
func (h *Handlers) ListConversions(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	skip, limit, err := pagination(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	rows, total, err := h.conversions.List(r.Context(), user, skip, limit, r.URL.Query().Get("search_user"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	items := lo.Map(rows, func(row models.ConversionWithOwner, _ int) conversionResponse {
		var owner *ownerResponse
		if user.IsAdmin {
			owner = &ownerResponse{ID: row.UserID, Username: row.OwnerUsername, Email: row.OwnerEmail, Credits: row.OwnerCredits}
		}
		return newConversionResponse(row.Conversion, owner)
	})
	respondJSON(w, http.StatusOK, conversionsResponse{Conversions: items, Total: total})
}

func (h *Handlers) GetConversion(w http.ResponseWriter, r *http.Request) {
	user, id, ok := h.userAndID(w, r)
	if !ok {
		return
	}
	job, err := h.conversions.Authorize(r.Context(), user, id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, h.withOwner(r, user, job))
}

func (h *Handlers) UpdateConversion(w http.ResponseWriter, r *http.Request) {
	user, id, ok := h.userAndID(w, r)
	if !ok {
		return
	}
	var patch models.ConversionPatch
	if err := decodeJSON(r, &patch); err != nil {
		h.respondError(w, r, err)
		return
	}
	job, err := h.conversions.Rename(r.Context(), user, id, patch)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, h.withOwner(r, user, job))
}

func (h *Handlers) DeleteConversion(w http.ResponseWriter, r *http.Request) {
	user, id, ok := h.userAndID(w, r)
	if !ok {
		return
	}
	if err := h.conversions.Delete(r.Context(), user, id); err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, message{Detail: "Conversion deleted successfully"})
}

func (h *Handlers) Download(w http.ResponseWriter, r *http.Request) {
	user, id, ok := h.userAndID(w, r)
	if !ok {
		return
	}
	kind := conversion.ArtifactKind(mux.Vars(r)["type"])
	artifact, err := h.conversions.Download(r.Context(), user, id, kind)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	f, err := os.Open(artifact.Path)
	if err != nil {
		h.respondError(w, r, apperror.NotFound("File"))
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		h.respondError(w, r, apperror.Internal("Could not read file", err))
		return
	}
	w.Header().Set("Content-Type", artifact.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": artifact.Filename}))
	http.ServeContent(w, r, artifact.Filename, info.ModTime(), f)
}

func (h *Handlers) userAndID(w http.ResponseWriter, r *http.Request) (models.User, int64, bool) {
	user, err := currentUser(r)
	if err == nil {
		var id int64
		if id, err = pathID(r); err == nil {
			return user, id, true
		}
	}
	h.respondError(w, r, err)
	return models.User{}, 0, false
}

// withOwner adds the owner block to admin responses.
func (h *Handlers) withOwner(r *http.Request, caller models.User, job models.Conversion) conversionResponse {
	if !caller.IsAdmin {
		return newConversionResponse(job, nil)
	}
	if job.UserID == caller.ID {
		return newConversionResponse(job, ownerOf(caller))
	}
	owner, err := h.accounts.Get(r.Context(), job.UserID)
	if err != nil {
		return newConversionResponse(job, nil)
	}
	return newConversionResponse(job, ownerOf(owner))
}
