package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/docsign/internal/auth"
	httpmiddleware "github.com/wolfeidau/docsign/internal/http"
	"github.com/wolfeidau/docsign/internal/logger"
	"github.com/wolfeidau/docsign/internal/models"
	"github.com/wolfeidau/docsign/internal/pki"
	"github.com/wolfeidau/docsign/internal/store"
)

// DefaultMaxBodyBytes caps request bodies, including multipart uploads.
const DefaultMaxBodyBytes = 10 << 20

// Config holds the collaborators of the HTTP API.
type Config struct {
	Users        store.UserStore
	Documents    store.DocumentStore
	Certificates store.CertificateStore
	Verifier     *auth.JWTVerifier
	Issuance     IssuanceDefaults
	Issuer       pki.CASigner // signs issued leaves when set
	CORSOrigins  []string
	Metrics      http.Handler // served on /metrics when set
	MaxBodyBytes int64
}

// Server wraps the HTTP API and its services
type Server struct {
	cfg       Config
	users     store.UserStore
	keys      *KeyService
	documents *DocumentService
}

// NewServer creates a new server with the given stores
func NewServer(cfg Config) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	keys := NewKeyService(cfg.Users, cfg.Certificates, cfg.Issuance)
	if cfg.Issuer != nil {
		keys.WithIssuer(cfg.Issuer)
	}
	return &Server{
		cfg:       cfg,
		users:     cfg.Users,
		keys:      keys,
		documents: NewDocumentService(cfg.Users, cfg.Documents, cfg.Certificates),
	}
}

// Handler returns the HTTP handler for the server
func (s *Server) Handler(log zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(httpmiddleware.ClientIPMiddleware())
	r.Use(logger.RequestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(s.corsHandler().Handler)

	// Health check endpoint for load balancer
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httpmiddleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if s.cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.cfg.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(httpmiddleware.MaxBodySize(s.cfg.MaxBodyBytes))
		r.Use(s.cfg.Verifier.Middleware())
		r.Use(s.provisionUser)

		r.Post("/keys", s.issueKeys)
		r.Delete("/keys", s.deleteKeys)

		r.Get("/certificates", s.listCertificates)
		r.Get("/certificates/{serial}", s.getCertificate)

		r.Post("/verify", s.verify)

		r.Route("/documents", func(r chi.Router) {
			r.Post("/", s.createDocument)
			r.Get("/", s.listDocuments)
			r.Get("/mine", s.listMyDocuments)
			r.Get("/{id}", s.getDocument)
			r.Post("/{id}/sign", s.signDocument)
			r.Post("/{id}/validate", s.validateDocument)
			r.Get("/{id}/signature/zip", s.downloadSignature)
		})

		// older clients list their documents here
		r.Get("/mydocuments", s.listMyDocuments)
	})

	return r
}

func (s *Server) corsHandler() *cors.Cors {
	origins := s.cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", auth.TokenHeader},
		ExposedHeaders: []string{"Content-Disposition", middleware.RequestIDHeader},
		MaxAge:         300,
	})
}

// provisionUser creates the user record on first sight of a verified principal.
func (s *Server) provisionUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal := auth.PrincipalFromContext(r.Context())
		if principal == nil {
			httpmiddleware.WriteJSON(w, http.StatusUnauthorized, httpmiddleware.ErrorResponse{Error: auth.ErrMissingToken.Error()})
			return
		}

		_, err := s.users.Ensure(r.Context(), &models.User{
			UserID:   principal.UserID,
			Username: principal.Username,
			Email:    principal.Email,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}

		next.ServeHTTP(w, r)
	})
}
