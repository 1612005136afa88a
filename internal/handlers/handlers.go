package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"speech-to-pdf/internal/accounts"
	"speech-to-pdf/internal/auth"
	"speech-to-pdf/internal/conversion"
	"speech-to-pdf/internal/middleware"
)

const (
	ServiceName = "Speech to PDF API"
	Version     = "1.0.0"
)

type Handlers struct {
	accounts    *accounts.Service
	conversions *conversion.Service
	tokens      *auth.TokenIssuer
	maxFileSize int64
	logger      *zap.Logger
}

func New(accountService *accounts.Service, conversionService *conversion.Service, tokens *auth.TokenIssuer, maxFileSize int64, logger *zap.Logger) *Handlers {
	return &Handlers{
		accounts:    accountService,
		conversions: conversionService,
		tokens:      tokens,
		maxFileSize: maxFileSize,
		logger:      logger,
	}
}

// Register mounts the API on r. authenticate guards everything except the
// root, health and login routes.
func (h *Handlers) Register(r *mux.Router, authenticate mux.MiddlewareFunc) {
	r.HandleFunc("/", h.Root).Methods(http.MethodGet)
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.HandleFunc("/api/health", h.Health).Methods(http.MethodGet)
	r.HandleFunc("/auth/login", h.Login).Methods(http.MethodPost)

	admin := r.PathPrefix("/admin").Subrouter()
	admin.Use(authenticate, middleware.RequireAdmin)
	admin.HandleFunc("/users", h.ListUsers).Methods(http.MethodGet)
	admin.HandleFunc("/users", h.CreateUser).Methods(http.MethodPost)
	admin.HandleFunc("/users/{id:[0-9]+}", h.GetUser).Methods(http.MethodGet)
	admin.HandleFunc("/users/{id:[0-9]+}", h.UpdateUser).Methods(http.MethodPatch)
	admin.HandleFunc("/users/{id:[0-9]+}", h.DeleteUser).Methods(http.MethodDelete)
	admin.HandleFunc("/change-password", h.ChangePassword).Methods(http.MethodPost)

	conversions := r.PathPrefix("/conversions").Subrouter()
	conversions.Use(authenticate)
	conversions.HandleFunc("/upload", h.Upload).Methods(http.MethodPost)
	conversions.HandleFunc("", h.ListConversions).Methods(http.MethodGet)
	conversions.HandleFunc("/", h.ListConversions).Methods(http.MethodGet)
	conversions.HandleFunc("/{id:[0-9]+}", h.GetConversion).Methods(http.MethodGet)
	conversions.HandleFunc("/{id:[0-9]+}", h.UpdateConversion).Methods(http.MethodPatch)
	conversions.HandleFunc("/{id:[0-9]+}", h.DeleteConversion).Methods(http.MethodDelete)
	conversions.HandleFunc("/{id:[0-9]+}/download/{type}", h.Download).Methods(http.MethodGet)

	self := r.PathPrefix("/auth").Subrouter()
	self.Use(authenticate)
	self.HandleFunc("/me", h.Me).Methods(http.MethodGet)
	self.HandleFunc("/change-password", h.ChangePassword).Methods(http.MethodPost)
}

func (h *Handlers) Root(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"message": ServiceName, "version": Version})
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
