package versioning

import (
	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with the event configuration versioning
// API routes. audit may be nil to disable the audit listing endpoint.
func NewRouter(
	sessions *SessionManager,
	history *VersionHistoryService,
	coordinator *PublishCoordinator,
	machine *VersionStateMachine,
	audit *AuditStore,
) chi.Router {
	r := chi.NewRouter()

	r.Route("/events/{eventNo}", func(r chi.Router) {
		r.Get("/timeline", timelineHandler(history))
		r.Post("/draft", openDraftHandler(sessions))
		if audit != nil {
			r.Get("/audit", auditHandler(audit))
		}
	})

	r.Route("/drafts/{id}", func(r chi.Router) {
		r.Patch("/sections/{section}", applyPatchHandler(sessions))
		r.Post("/save", saveDraftHandler(sessions))
		r.Post("/publish", publishHandler(sessions))
		r.Delete("/", discardDraftHandler(sessions))
	})

	r.Route("/versions", func(r chi.Router) {
		r.Post("/{id}/rollback", rollbackHandler(coordinator))
		r.Post("/{id}/transition", transitionHandler(machine))
		r.Get("/{a}/diff/{b}", diffHandler(history))
	})

	return r
}
