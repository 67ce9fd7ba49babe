package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(app *App) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/ping", PingHandler)
	r.Get("/models", ModelsHandler)

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", app.CreateSessionHandler)
		r.Get("/", app.ListSessionsHandler)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", app.GetSessionHandler)
			r.Delete("/", app.CloseSessionHandler)
			r.Post("/start", app.StartHandler)
			r.Post("/stop", app.StopHandler)
			r.Post("/observations", app.ObservationsHandler)
			r.Post("/frames", app.FrameHandler)
			r.Get("/laps", app.LapsHandler)
			r.Get("/laps/summary", app.LapSummaryHandler)
			r.Get("/events", app.EventStreamHandler)
			r.Get("/ws", app.WebSocketHandler)
		})
	})

	return r
}
