package httpserver

import (
	"net/http"

	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Routes builds the router.
func (s *HTTPServer) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.metricsMiddleware)
	r.Use(securityHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowOriginFunc:  func(*http.Request, string) bool { return true },
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", s.apiRoutes)

	return r
}

func (s *HTTPServer) apiRoutes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", s.Register)
		r.Post("/login", s.Login)
		r.Post("/refresh", s.Refresh)
		r.Post("/forgot-password", s.ForgotPassword)
		r.Post("/reset-password", s.ResetPassword)
		r.Get("/verify-email", s.VerifyEmail)

		r.Group(func(r chi.Router) {
			r.Use(s.accessTokenMiddleware)

			r.Post("/logout-all", s.LogoutAll)
			r.Post("/verify-email/request", s.RequestEmailVerification)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(s.accessTokenMiddleware)

		r.Get("/me", s.Me)
		r.Patch("/me/password", s.ChangeMyPassword)
	})

	r.Route("/users", func(r chi.Router) {
		r.Use(s.accessTokenMiddleware)
		r.Use(requireRole(models.RoleAdmin))

		r.Get("/", s.ListUsers)
		r.Post("/", s.CreateUser)
		r.Get("/{id}", s.GetUser)
		r.Patch("/{id}", s.UpdateUser)
		r.Delete("/{id}", s.DeleteUser)
	})
}
