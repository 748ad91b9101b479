package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter builds the chi router for the whole /api/0 surface, mirroring
// the teacher's chassis.Server middleware stack (RequestID, Logger,
// Recoverer) plus a per-request timeout on cheap endpoints per spec.md §5.
func NewRouter(a *API, requestTimeout time.Duration) http.Handler {
	if requestTimeout <= 0 {
		requestTimeout = 10 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api/0", func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))

		r.Route("/object-types", func(r chi.Router) {
			r.Get("/", a.listObjectTypes)
			r.Post("/", a.createObjectType)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", a.getObjectType)
				r.Put("/", a.updateObjectType)
				r.Delete("/", a.deleteObjectType)
			})
		})

		r.Route("/objects", func(r chi.Router) {
			r.Get("/", a.listObjects)
			r.Post("/", a.createObject)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", a.getObject)
				r.Put("/", a.updateObject)
				r.Delete("/", a.deleteObject)
				r.Get("/events", a.listObjectEvents)
			})
		})

		r.Route("/extraction-rules", func(r chi.Router) {
			r.Get("/", a.listExtractionRules)
			r.Post("/", a.createExtractionRule)
			r.Post("/run", a.runExtractionRules)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", a.getExtractionRule)
				r.Put("/", a.updateExtractionRule)
				r.Delete("/", a.deleteExtractionRule)
				r.Post("/test", a.testExtractionRule)
			})
		})

		r.Route("/buckets/{bucket}/events/{event}/objects", func(r chi.Router) {
			r.Get("/", a.listEventObjects)
			r.Post("/", a.linkEventObject)
			r.Delete("/{object_id}", a.unlinkEventObject)
		})

		r.Route("/training", func(r chi.Router) {
			r.Get("/pending", a.listPendingReviewTasks)
			r.Route("/{task_id}", func(r chi.Router) {
				r.Post("/confirm", a.confirmReviewTask)
				r.Post("/reject", a.rejectReviewTask)
				r.Post("/correct", a.correctReviewTask)
			})
		})

		r.Route("/steps", func(r chi.Router) {
			r.Get("/", a.listSteps)
			r.Post("/", a.createStep)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", a.getStep)
				r.Put("/", a.updateStep)
				r.Delete("/", a.deleteStep)
				r.Post("/objects", a.addStepObject)
				r.Delete("/objects/{obj}", a.removeStepObject)
			})
		})

		r.Route("/workflows", func(r chi.Router) {
			r.Get("/", a.listWorkflows)
			r.Post("/", a.createWorkflow)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", a.getWorkflow)
				r.Put("/", a.updateWorkflow)
				r.Delete("/", a.deleteWorkflow)
				r.Post("/objects", a.addWorkflowObject)
				r.Delete("/objects/{obj}", a.removeWorkflowObject)
				r.Get("/occurrences", a.listOccurrences)
				r.Get("/occurrences/{occ_id}", a.getOccurrence)
			})
		})

		r.Route("/mining", func(r chi.Router) {
			r.Post("/patterns", a.minePatterns)
			r.Post("/group-events", a.mineGroupEvents)
			r.Post("/discover-workflows", a.mineDiscoverWorkflows)
			r.Post("/match-workflow", a.mineMatchWorkflow)
		})

		r.Get("/jobs/{job_id}", a.getJob)

		r.Get("/stats", a.getStats)
		r.Get("/actors/{id}/activity", a.getActorActivity)
	})

	return r
}
