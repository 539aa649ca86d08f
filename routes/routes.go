package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/upb/bi-chat-gateway/app"
	"github.com/upb/bi-chat-gateway/handlers"
	"github.com/upb/bi-chat-gateway/utils"
)

const requestTimeout = 60 * time.Second

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	origins := deps.Config.Server.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:*", "https://*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	health := handlers.NewHealthHandler(nil, deps.Logger)
	if deps.DB != nil {
		health = handlers.NewHealthHandler(deps.DB.DB, deps.Logger)
	}
	embedHandler := handlers.NewEmbedHandler(deps.Embed, deps.Config.Embed.DefaultReportID, deps.Logger)
	llmHandler := handlers.NewLLMHandler(deps.ChatProxy, deps.Logger)
	adminHandler := handlers.NewAdminHandler(deps.CompletionConfigs, deps.Logger)

	// Unknown routes answer before authentication
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteError(w, http.StatusNotFound, "endpoint not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
	})

	// Health and metrics
	r.Get("/healthz", health.HandleLiveness)
	r.Get("/readyz", health.HandleReadiness)
	if deps.Config.Observability.MetricsEnabled && deps.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	// OAuth2 login flow
	r.Route("/auth", func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))
		r.Get("/login", handlers.AuthLoginHandler(deps))
		r.Get("/callback", handlers.AuthCallbackHandler(deps))
		r.Get("/logout", handlers.AuthLogoutHandler(deps))
	})

	// Report embed credentials
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))
		if deps.Config.Embed.RequireAuth {
			r.Use(deps.AuthMiddleware.RequireAuth)
		}
		r.Get("/getEmbedToken", embedHandler.HandleGetEmbedToken)
	})

	// Streamed chat completions; no request timeout on a long-lived stream
	r.With(deps.AuthMiddleware.RequireAuth).Post("/llm-response", llmHandler.HandleLLMResponse)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))

		r.Group(func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAuth)

			if deps.Dashboards != nil {
				dashboardHandler := handlers.NewDashboardHandler(deps.Dashboards, deps.Logger)
				r.Get("/user/dashboard", dashboardHandler.HandleGet)
				r.Put("/user/dashboard", dashboardHandler.HandleSave)
			}
			if deps.ChatSessions != nil {
				sessionHandler := handlers.NewSessionHandler(deps.ChatSessions, deps.Logger)
				r.Post("/session/save", sessionHandler.HandleSave)
			}

			r.Get("/embed/status", embedHandler.HandleStatus)
			r.Get("/admin/completion-config", adminHandler.HandleCompletionConfig)
		})
	})

	return r
}
