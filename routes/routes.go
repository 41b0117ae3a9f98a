package routes

import (
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/tt-club/tournament-system/handlers"
	"github.com/tt-club/tournament-system/middleware"
	"github.com/tt-club/tournament-system/models"
)

type Handlers struct {
	Auth       *handlers.AuthHandler
	Member     *handlers.MemberHandler
	Tournament *handlers.TournamentHandler
	Match      *handlers.MatchHandler
	WebSocket  *handlers.WebSocketHandler
}

func InitRoutes(h Handlers, auth *middleware.Authenticator) *chi.Mux {
	router := chi.NewRouter()

	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Post("/auth/login", h.Auth.Login)

	router.Route("/members", func(r chi.Router) {
		r.Get("/leaderboard", h.Member.Leaderboard)

		r.Group(func(r chi.Router) {
			r.Use(auth.Authenticate)
			r.Use(middleware.Authorize(models.RoleOrganizer, models.RoleAdmin))

			r.Get("/", h.Member.List)
			r.Get("/{id}", h.Member.Get)
			r.Get("/{id}/history", h.Member.History)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.Authenticate)
			r.Use(middleware.Authorize(models.RoleAdmin))

			r.Post("/", h.Member.Create)
			r.Post("/import", h.Member.Import)
			r.Post("/{id}/deactivate", h.Member.Deactivate)
			r.Post("/{id}/rating", h.Member.AdjustRating)
			r.Delete("/{id}", h.Member.Delete)
		})
	})

	router.Route("/tournaments", func(r chi.Router) {
		r.Get("/", h.Tournament.List)
		r.Get("/{id}", h.Tournament.Get)

		r.Group(func(r chi.Router) {
			r.Use(auth.Authenticate)
			r.Use(middleware.Authorize(models.RoleOrganizer, models.RoleAdmin))

			r.Post("/", h.Tournament.Create)
			r.Patch("/{id}/name", h.Tournament.UpdateName)
			r.Patch("/{id}/participants", h.Tournament.UpdateParticipants)
			r.Patch("/{id}/matches/{matchID}", h.Tournament.UpdateMatch)
			r.Post("/{id}/complete", h.Tournament.Complete)
			r.Post("/{id}/cancel", h.Tournament.Cancel)
			r.Delete("/{id}", h.Tournament.Delete)
			r.Get("/{id}/export", h.Tournament.Export)
			r.HandleFunc("/{id}/plugin/{resource}", h.Tournament.PluginRequest)
		})
	})

	router.Route("/matches", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(auth.Authenticate)

			r.Post("/", h.Match.Create)
			r.Get("/{id}", h.Match.Get)
		})
	})

	router.Get("/ws", h.WebSocket.ServeWs)

	return router
}
