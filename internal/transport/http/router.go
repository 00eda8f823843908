package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	middlewareChi "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	httpmw "github.com/meethub/meeting-service/internal/transport/http/middleware"
	"github.com/meethub/meeting-service/internal/transport/ws"
)

func NewRouter(h *Handler, verifier httpmw.TokenVerifier, wsServer *ws.Server, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middlewareChi.RequestID)
	r.Use(middlewareChi.RealIP)
	r.Use(middlewareChi.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// WS endpoint; токен проверяется до upgrade внутри HandleWS
	r.Get("/ws", wsServer.HandleWS)

	r.Group(func(pr chi.Router) {
		pr.Use(httpmw.Auth(verifier))
		pr.Use(middlewareChi.Timeout(30 * time.Second))

		pr.Route("/meetings", func(mr chi.Router) {
			mr.Post("/", h.CreateMeeting)
			mr.Post("/join", h.JoinMeeting)

			mr.Route("/code/{code}", func(cr chi.Router) {
				cr.Get("/", h.GetMeetingByCode)
				cr.Get("/can-join", h.CanJoin)
			})

			mr.Route("/{id}", func(rr chi.Router) {
				rr.Post("/leave", h.LeaveMeeting)
				rr.Post("/end", h.EndMeeting)
				rr.Get("/participants", h.GetParticipants)
				rr.Patch("/participants/status", h.UpdateStatus)
				rr.Delete("/participants/{userId}/kick", h.KickParticipant)
				rr.Patch("/participants/{userId}/mute", h.MuteParticipant)
				rr.Get("/stats", h.GetStats)
				rr.Get("/messages", h.GetMessages)
			})
		})
	})

	// health
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return r
}
