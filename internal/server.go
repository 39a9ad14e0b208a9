package internal

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/agentgate/agentgate/internal/channel"
	"github.com/agentgate/agentgate/internal/config"
	"github.com/agentgate/agentgate/internal/identity"
	"github.com/agentgate/agentgate/internal/orchestrator"
	"github.com/agentgate/agentgate/internal/permission"
	"github.com/agentgate/agentgate/internal/pushnotification"
	"github.com/agentgate/agentgate/pkg/cerr"
	"github.com/agentgate/agentgate/pkg/clog"
)

type Server struct {
	server                 *http.Server
	env                    *config.Env
	jobServer              *orchestrator.Server
	permissionServer       *permission.Server
	identityServer         *identity.Server
	channelServer          *channel.Server
	pushNotificationServer *pushnotification.Server
}

func NewServer(
	env *config.Env,
	jobServer *orchestrator.Server,
	permissionServer *permission.Server,
	identityServer *identity.Server,
	channelServer *channel.Server,
	pushNotificationServer *pushnotification.Server,
) *Server {
	return &Server{
		env:                    env,
		jobServer:              jobServer,
		permissionServer:       permissionServer,
		identityServer:         identityServer,
		channelServer:          channelServer,
		pushNotificationServer: pushNotificationServer,
	}
}

// ListenAndServe starts the HTTP server. The provided context becomes the
// base context of every request, so cancelling it on shutdown also cancels
// in-flight request contexts.
func (s *Server) ListenAndServe(ctx context.Context) error {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Use(
			clog.SlogChiMiddleware(),
			cerr.NewJSONResponseChiMiddleware(),
		)
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			cerr.SetNewJSONError(r.Context(), cerr.NotFound, "not found", nil)
		})

		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", s.jobServer.HandleSubmit)
			r.Get("/", s.jobServer.HandleList)
			r.Get("/{id}", s.jobServer.HandleGet)
			r.Post("/{id}/approve", s.jobServer.HandleApprove)
			r.Post("/{id}/cancel", s.jobServer.HandleCancel)
		})
		r.Route("/permission-sets", func(r chi.Router) {
			r.Get("/", s.permissionServer.HandleList)
			r.Get("/{id}", s.permissionServer.HandleGet)
			r.Put("/{id}", s.permissionServer.HandleUpsert)
		})
		r.Route("/users", func(r chi.Router) {
			r.Post("/", s.identityServer.HandleCreateUser)
			r.Get("/", s.identityServer.HandleListUsers)
			r.Get("/{id}", s.identityServer.HandleGetUser)
		})
		r.Route("/agents", func(r chi.Router) {
			r.Post("/", s.identityServer.HandleCreateAgent)
			r.Get("/", s.identityServer.HandleListAgents)
			r.Get("/{id}", s.identityServer.HandleGetAgent)
		})
		r.Route("/roles", func(r chi.Router) {
			r.Post("/", s.channelServer.HandleCreateRole)
			r.Get("/{id}", s.channelServer.HandleGetRole)
		})
		r.Route("/contexts", func(r chi.Router) {
			r.Post("/", s.channelServer.HandleCreateContext)
		})
		r.Route("/channels", func(r chi.Router) {
			r.Post("/", s.channelServer.HandleCreateChannel)
			r.Get("/", s.channelServer.HandleListChannels)
			r.Get("/{id}", s.channelServer.HandleGetChannel)
		})
		r.Route("/push", func(r chi.Router) {
			r.Get("/vapid-public-key", s.pushNotificationServer.HandleVapidPublicKey)
			r.Post("/subscriptions", s.pushNotificationServer.HandleRegister)
			r.Delete("/subscriptions", s.pushNotificationServer.HandleUnregister)
		})
	})

	mux := http.NewServeMux()
	mux.Handle("/health", &HealthChecker{})
	mux.Handle("/api/", r)

	addr := net.JoinHostPort(s.env.HTTPHost, s.env.HTTPPort)
	slog.Info("starting server", "addr", addr)

	s.server = &http.Server{
		Addr: addr,
		Handler: h2c.NewHandler(cors.New(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: true,
		}).Handler(s.apiKeyMiddleware(mux)), &http2.Server{}),
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}

	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type HealthChecker struct{}

func (hc *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) apiKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip API key check for the health endpoint.
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		apiKey := r.Header.Get("X-API-Key")
		if apiKey == "" {
			apiKey = r.Header.Get("Authorization")
			if len(apiKey) > 7 && apiKey[:7] == "Bearer " {
				apiKey = apiKey[7:]
			}
		}
		if apiKey != s.env.APIKey {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
