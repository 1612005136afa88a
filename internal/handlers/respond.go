package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"speech-to-pdf/internal/apperror"
	"speech-to-pdf/internal/middleware"
	"speech-to-pdf/internal/models"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
	maxJSONBody  = 1 << 20
)

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type message struct {
	Detail string `json:"detail"`
}

// respondError writes err as a JSON error body. Internal errors are logged
// with their cause and rendered without it.
func (h *Handlers) respondError(w http.ResponseWriter, r *http.Request, err error) {
	e := apperror.As(err)
	if e.Kind == apperror.KindInternal {
		h.logger.Error("request failed",
			zap.String("request_id", middleware.RequestIDFromContext(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	middleware.WriteError(w, r, e)
}

func decodeJSON(r *http.Request, v interface{}) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(v)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, models.ErrNullField):
		return apperror.Validation(err.Error(), nil)
	case errors.Is(err, io.EOF):
		return apperror.Validation("Request body is required", nil)
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return apperror.Validation("Invalid value for "+typeErr.Field, map[string]string{typeErr.Field: typeErr.Type.String()})
	}
	return apperror.Validation("Malformed JSON body", nil)
}

// currentUser returns the account AuthMiddleware stored. Routes are only
// mounted behind it, so a miss is a wiring bug.
func currentUser(r *http.Request) (models.User, error) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		return models.User{}, apperror.Unauthorized("Not authenticated")
	}
	return user, nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		return 0, apperror.Validation("Invalid id", map[string]string{"id": "positive integer"})
	}
	return id, nil
}

// pagination reads skip and limit, defaulting to 0 and 100.
func pagination(r *http.Request) (skip, limit int, err error) {
	q := r.URL.Query()
	skip, limit = 0, defaultLimit
	if v := q.Get("skip"); v != "" {
		if skip, err = strconv.Atoi(v); err != nil || skip < 0 {
			return 0, 0, apperror.Validation("skip must be a non-negative integer", map[string]string{"skip": "gte=0"})
		}
	}
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 1 || limit > maxLimit {
			return 0, 0, apperror.Validation("limit must be between 1 and 1000", map[string]string{"limit": "1..1000"})
		}
	}
	return skip, limit, nil
}
