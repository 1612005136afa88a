package middleware

import (
	"context"
	"net/http"
	"strings"

	"speech-to-pdf/internal/apperror"
	"speech-to-pdf/internal/models"
)

type contextKey string

const (
	userContextKey      = contextKey("user")
	requestIDContextKey = contextKey("request_id")
)

// TokenParser returns the subject of a valid bearer token.
type TokenParser interface {
	Parse(token string) (string, error)
}

// UserResolver loads the active account a token subject names.
type UserResolver interface {
	Resolve(ctx context.Context, username string) (models.User, error)
}

// WithUser returns a copy of ctx carrying u.
func WithUser(ctx context.Context, u models.User) context.Context {
	return context.WithValue(ctx, userContextKey, u)
}

// UserFromContext returns the authenticated account of the request.
func UserFromContext(ctx context.Context) (models.User, bool) {
	u, ok := ctx.Value(userContextKey).(models.User)
	return u, ok
}

// AuthMiddleware validates the bearer token and puts the account into the
// request context.
func AuthMiddleware(tokens TokenParser, users UserResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
				unauthorized(w, r, "Not authenticated")
				return
			}
			subject, err := tokens.Parse(strings.TrimSpace(token))
			if err != nil {
				unauthorized(w, r, "Could not validate credentials")
				return
			}
			user, err := users.Resolve(r.Context(), subject)
			if err != nil {
				e := apperror.As(err)
				if e.Kind == apperror.KindUnauthorized {
					unauthorized(w, r, "Could not validate credentials")
					return
				}
				WriteError(w, r, e)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// RequireAdmin rejects accounts without the admin flag. It must run after
// AuthMiddleware.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		if !ok {
			unauthorized(w, r, "Not authenticated")
			return
		}
		if !user.IsAdmin {
			WriteError(w, r, apperror.Forbidden("Not enough permissions"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// WriteError renders e tagged with the request id.
func WriteError(w http.ResponseWriter, r *http.Request, e *apperror.Error) {
	e.RequestID = RequestIDFromContext(r.Context())
	apperror.Write(w, e)
}

func unauthorized(w http.ResponseWriter, r *http.Request, message string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	WriteError(w, r, apperror.Unauthorized(message))
}
