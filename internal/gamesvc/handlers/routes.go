package handlers

import (
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/jwtauth"
	log "github.com/sirupsen/logrus"
)

func (h *Handler) SetRoutes(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {

		// public routes here
		r.Get("/rooms/{code}", h.ShowRoom)
		r.Get("/rooms/{code}/status", h.RoomStatus)
		r.Get("/rooms/{code}/events", h.RoomEvents)
		r.Post("/rooms/{code}/join", h.JoinRoom)
		r.Get("/players/{id}", h.ShowPlayer)

		// Secure routes
		r.Group(func(r chi.Router) {
			r.Use(jwtauth.Verifier(h.tokenAuth))
			r.Use(jwtauth.Authenticator)

			r.Get("/health", h.HealthHandler)
			r.Post("/rooms", h.CreateRoom)
			r.Post("/rooms/{code}/start", h.StartGame)
			r.Post("/rooms/{code}/advance", h.AdvanceQuestion)
			r.Delete("/quizzes/{id}/cache", h.InvalidateQuiz)
		})
	})
}

func (h *Handler) InitAuth(jwtKey string) {
	h.tokenAuth = jwtauth.New("HS256", []byte(jwtKey), nil)

	expirationTime := time.Now().Add(7 * 24 * time.Hour).Unix()

	_, tokenString, _ := h.tokenAuth.Encode(map[string]interface{}{
		"service_id": 8003022,
		"exp":        expirationTime,
	})

	log.Debugf("DEBUG: JWT for testing expires soon : %s", tokenString)
}
