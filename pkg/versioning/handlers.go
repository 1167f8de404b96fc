package versioning

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// timelineHandler returns a handler that lists the version timeline for an event.
// GET /api/versioning/v1alpha1/events/{eventNo}/timeline
func timelineHandler(history *VersionHistoryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eventNo := chi.URLParam(r, "eventNo")

		pageSize := 20
		if ps := r.URL.Query().Get("pageSize"); ps != "" {
			if v, err := strconv.Atoi(ps); err == nil && v > 0 {
				pageSize = v
			}
		}
		pageToken := r.URL.Query().Get("pageToken")

		timeline, err := history.Timeline(r.Context(), eventNo, pageSize, pageToken)
		if err != nil {
			writeTaxonomyError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, timeline)
	}
}

// openDraftHandler returns a handler that opens (or creates) the event's draft.
// POST /api/versioning/v1alpha1/events/{eventNo}/draft
func openDraftHandler(sessions *SessionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eventNo := chi.URLParam(r, "eventNo")
		actor := extractActor(r)

		session, err := sessions.Open(r.Context(), eventNo, actor)
		if err != nil {
			writeTaxonomyError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, session.Snapshot())
	}
}

// applyPatchHandler returns a handler that replaces one payload section of a draft.
// PATCH /api/versioning/v1alpha1/drafts/{id}/sections/{section}
func applyPatchHandler(sessions *SessionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		draftID := chi.URLParam(r, "id")
		section := PayloadSection(chi.URLParam(r, "section"))
		actor := extractActor(r)

		if !section.Valid() {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown payload section %q", section))
			return
		}

		session, err := sessions.OpenByDraftID(r.Context(), draftID, actor)
		if err != nil {
			writeTaxonomyError(w, err)
			return
		}

		blob, readErr := io.ReadAll(r.Body)
		if readErr != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("reading request body: %v", readErr))
			return
		}
		if !json.Valid(blob) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("section %s payload is not valid JSON", section))
			return
		}
		if err := session.Apply(section, blob); err != nil {
			writeTaxonomyError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, session.Snapshot())
	}
}

// saveDraftHandler returns a handler that persists a draft's pending edits.
// POST /api/versioning/v1alpha1/drafts/{id}/save
func saveDraftHandler(sessions *SessionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		draftID := chi.URLParam(r, "id")
		actor := extractActor(r)

		session, err := sessions.OpenByDraftID(r.Context(), draftID, actor)
		if err != nil {
			writeTaxonomyError(w, err)
			return
		}
		if err := session.SaveDraft(r.Context(), actor); err != nil {
			writeTaxonomyError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, session.Snapshot())
	}
}

// publishHandler returns a handler that promotes a draft to ACTIVE.
// POST /api/versioning/v1alpha1/drafts/{id}/publish
func publishHandler(sessions *SessionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		draftID := chi.URLParam(r, "id")
		actor := extractActor(r)

		session, err := sessions.OpenByDraftID(r.Context(), draftID, actor)
		if err != nil {
			writeTaxonomyError(w, err)
			return
		}
		promoted, err := session.Publish(r.Context(), actor)
		if err != nil {
			writeTaxonomyError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, summarize(*promoted))
	}
}

// discardDraftHandler returns a handler that deletes a draft before publication.
// DELETE /api/versioning/v1alpha1/drafts/{id}
func discardDraftHandler(sessions *SessionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		draftID := chi.URLParam(r, "id")
		actor := extractActor(r)

		session, err := sessions.OpenByDraftID(r.Context(), draftID, actor)
		if err != nil {
			writeTaxonomyError(w, err)
			return
		}
		if err := session.Discard(r.Context(), actor); err != nil {
			writeTaxonomyError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// rollbackHandler returns a handler that publishes a new ACTIVE version
// copied from a historical one.
// POST /api/versioning/v1alpha1/versions/{id}/rollback
func rollbackHandler(coordinator *PublishCoordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		targetID := chi.URLParam(r, "id")
		actor := extractActor(r)

		restored, err := coordinator.Rollback(r.Context(), targetID, actor)
		if err != nil {
			writeTaxonomyError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, summarize(*restored))
	}
}

// transitionHandler returns a handler for the approval collaborator's
// transition requests (active->approved, active->archived, approved->archived).
// POST /api/versioning/v1alpha1/versions/{id}/transition
func transitionHandler(machine *VersionStateMachine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		versionID := chi.URLParam(r, "id")
		actor := extractActor(r)

		var req struct {
			Status VersionStatus `json:"status"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
		if req.Status == "" {
			writeError(w, http.StatusBadRequest, "status is required")
			return
		}

		updated, err := machine.ApplyTransition(r.Context(), versionID, req.Status, actor)
		if err != nil {
			writeTaxonomyError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, summarize(*updated))
	}
}

// diffHandler returns a handler that computes a structural diff summary.
// GET /api/versioning/v1alpha1/versions/{a}/diff/{b}
func diffHandler(history *VersionHistoryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		idA := chi.URLParam(r, "a")
		idB := chi.URLParam(r, "b")

		diff, err := history.DiffSummary(r.Context(), idA, idB)
		if err != nil {
			writeTaxonomyError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, diff)
	}
}

// auditHandler returns a handler that lists audit events for an event.
// GET /api/versioning/v1alpha1/events/{eventNo}/audit
func auditHandler(audit *AuditStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eventNo := chi.URLParam(r, "eventNo")

		pageSize := 20
		if ps := r.URL.Query().Get("pageSize"); ps != "" {
			if v, err := strconv.Atoi(ps); err == nil && v > 0 {
				pageSize = v
			}
		}
		pageToken := r.URL.Query().Get("pageToken")

		records, nextToken, total, err := audit.ListByEvent(eventNo, pageSize, pageToken)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list audit events: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"events":        records,
			"nextPageToken": nextToken,
			"totalSize":     total,
		})
	}
}

// extractActor extracts the acting identity from the request headers.
// Prefers X-User-Principal over X-User-Role, falls back to "system".
func extractActor(r *http.Request) string {
	if principal := r.Header.Get("X-User-Principal"); principal != "" {
		return principal
	}
	if role := r.Header.Get("X-User-Role"); role != "" {
		return role
	}
	return "system"
}

// writeTaxonomyError maps the versioning error taxonomy onto HTTP statuses.
func writeTaxonomyError(w http.ResponseWriter, err error) {
	var (
		notFound    *NotFoundError
		conflict    *ConflictError
		concurrent  *ConcurrentModificationError
		state       *InvalidStateError
		transition  *InvalidTransitionError
		unsaved     *UnsavedChangesError
		unavailable *StorageUnavailableError
	)
	switch {
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &conflict), errors.As(err, &concurrent):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &state), errors.As(err, &transition), errors.As(err, &unsaved):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &unavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
