package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/ozRnDs/sort-and-choose-images/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	recognitionHandler := handlers.NewRecognitionHandler(s.deps.Worker, s.deps.Store)
	facesHandler := handlers.NewFacesHandler(s.deps.Store, s.deps.Library)
	similarityHandler := handlers.NewSimilarityHandler(s.deps.Similarity)
	statsHandler := handlers.NewStatsHandler(s.deps.Store, s.deps.Index, s.deps.Groups, s.deps.Worker)

	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		// Pipeline control
		r.Post("/recognition/start", recognitionHandler.Start)
		r.Post("/recognition/stop", recognitionHandler.Stop)
		r.Post("/recognition/restart", recognitionHandler.Restart)
		r.Post("/recognition/retry", recognitionHandler.Retry)
		r.Get("/recognition/status", recognitionHandler.Status)

		// Faces
		r.Get("/faces/{faceId}", facesHandler.Get)
		r.Put("/faces/{faceId}", facesHandler.Update)
		r.Get("/faces/{faceId}/embedding", facesHandler.Embedding)
		r.Get("/faces/{faceId}/image", facesHandler.Image)
		r.Get("/faces/{faceId}/similar", similarityHandler.Similar)
		r.Get("/images/faces", facesHandler.ByImage)
		r.Get("/images/source", facesHandler.Source)

		// Person search
		r.Get("/groups/person", similarityHandler.GroupsWithPerson)

		// Stats
		r.Get("/stats", statsHandler.Get)
	})
}
