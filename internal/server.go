package internal

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/kazz187/autoprovision/internal/config"
	"github.com/kazz187/autoprovision/internal/connection"
	"github.com/kazz187/autoprovision/internal/event"
	"github.com/kazz187/autoprovision/internal/provisioning"
	"github.com/kazz187/autoprovision/pkg/cerr"
	"github.com/kazz187/autoprovision/pkg/clog"
)

type Server struct {
	server             *http.Server
	env                *config.Env
	provisioningServer *provisioning.Server
	connectionServer   *connection.Server
	eventServer        *event.Server
}

func NewServer(
	env *config.Env,
	provisioningServer *provisioning.Server,
	connectionServer *connection.Server,
	eventServer *event.Server,
) *Server {
	return &Server{
		env:                env,
		provisioningServer: provisioningServer,
		connectionServer:   connectionServer,
		eventServer:        eventServer,
	}
}

// Handler builds the full HTTP handler tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Use(clog.SlogChiMiddleware())
		// The event stream writes its own body.
		s.eventServer.Routes(r)
		r.Group(func(r chi.Router) {
			r.Use(cerr.NewJSONResponseChiMiddleware())
			s.provisioningServer.Routes(r)
			s.connectionServer.Routes(r)
			r.NotFound(func(w http.ResponseWriter, r *http.Request) {
				cerr.SetNewJSONError(r.Context(), cerr.NotFound, "not found", nil)
			})
		})
	})

	mux := http.NewServeMux()
	mux.Handle("/health", &HealthChecker{})
	mux.Handle("/api/", r)

	return h2c.NewHandler(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(s.apiKeyMiddleware(mux)), &http2.Server{})
}

// ListenAndServe starts the HTTP server. ctx becomes the base context of
// every request, so cancelling it aborts in-flight bulk jobs on shutdown.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := s.env.Addr()
	slog.Info("starting server", "addr", addr)

	s.server = &http.Server{
		Addr:        addr,
		Handler:     s.Handler(),
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

type HealthChecker struct{}

func (hc *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) apiKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.env.APIKey == "" || r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		apiKey := r.Header.Get("X-API-Key")
		if apiKey == "" {
			apiKey = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		}
		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(s.env.APIKey)) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
