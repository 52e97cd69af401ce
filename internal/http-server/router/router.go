package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"attachstore/internal/http-server/handler/user"
	"attachstore/internal/http-server/middleware"
)

type Handler struct {
	UserHandler *user.UserHandler
}

func SetupRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RecoveryMiddleware)
	r.Use(middleware.LoggingMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				next.ServeHTTP(w, r)
			})
		})

		r.Route("/users", func(r chi.Router) {
			r.Post("/", h.UserHandler.CreateUser)
			r.Get("/{id}", h.UserHandler.GetUser)
			r.Put("/{id}/avatar", h.UserHandler.ReplaceAvatar)
			r.Delete("/{id}", h.UserHandler.DeleteUser)
			r.Post("/{id}/avatar/variants", h.UserHandler.CreateVariants)
			r.Get("/{id}/avatar/variants/{label}", h.UserHandler.GetVariant)
		})

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"status":"ok"}`))
		})
	})

	return r
}
