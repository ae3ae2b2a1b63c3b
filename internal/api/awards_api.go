package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hearthboard/awards/internal/domain"
	"github.com/hearthboard/awards/internal/infra/metrics"
)

// ─── Award API (/api/*) ─────────────────────────────────────────────────────

// --- POST /api/events ---

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	var ev domain.ChangeEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	err := s.eval.HandleEvent(ev)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrUnknownChangeKind), errors.Is(err, domain.ErrActorNotFound):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, domain.ErrManagerStopped):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	metrics.EventsReceived.WithLabelValues("http", string(ev.Kind)).Inc()
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"accepted": true,
		"pending":  s.eval.Pending(),
	})
}

// --- POST /api/flush ---

func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	res, err := s.eval.Flush(r.Context())
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrManagerStopped) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// --- GET /api/awards ---

func (s *Server) handleAwards(w http.ResponseWriter, r *http.Request) {
	defs := s.catalog.Awards()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"awards": defs,
		"count":  len(defs),
	})
}

// --- GET /api/actors/{id}/preview ---

type skipResponse struct {
	AwardID string `json:"award_id"`
	Reason  string `json:"reason"`
	Error   string `json:"error"`
}

type previewResponse struct {
	ActorID  string           `json:"actor_id"`
	Verdicts []domain.Verdict `json:"verdicts"`
	Skipped  []skipResponse   `json:"skipped"`
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	report, err := s.eval.DryRun(r.Context(), id)
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}

	out := previewResponse{
		ActorID:  id,
		Verdicts: report.Verdicts,
		Skipped:  make([]skipResponse, 0, len(report.Skipped)),
	}
	if out.Verdicts == nil {
		out.Verdicts = []domain.Verdict{}
	}
	for _, sk := range report.Skipped {
		out.Skipped = append(out.Skipped, skipResponse{
			AwardID: sk.AwardID,
			Reason:  sk.Reason(),
			Error:   sk.Err.Error(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// --- GET /api/actors/{id}/progress ---

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	records, err := s.store.ListProgress(r.Context(), id)
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	if records == nil {
		records = []domain.ProgressRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"actor_id": id,
		"progress": records,
	})
}

// --- GET /api/actors/{id}/notifications ---

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	pendingOnly := r.URL.Query().Get("pending") == "true"
	list, err := s.store.ListNotifications(r.Context(), id, pendingOnly)
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	if list == nil {
		list = []domain.AwardNotification{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": list,
		"count":         len(list),
	})
}

// --- POST /api/notifications/{id}/shown ---

func (s *Server) handleNotificationShown(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.MarkShown(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// errorStatus maps domain errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrActorNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrSnapshotUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
