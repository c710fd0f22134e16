package consultation

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/telecare-health/platform/pkg/auth"
	"github.com/telecare-health/platform/pkg/common/apperrors"
	"github.com/telecare-health/platform/pkg/common/logger"
	"github.com/telecare-health/platform/pkg/common/models"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/consultations", h.handleCreate).Methods(http.MethodPost)
	r.HandleFunc("/consultations/queue", h.handleQueue).Methods(http.MethodGet)
	r.HandleFunc("/consultations/in-progress", h.handleInProgress).Methods(http.MethodGet)
	r.HandleFunc("/consultations/{id}", h.handleGet).Methods(http.MethodGet)
	r.HandleFunc("/consultations/{id}/claim", h.handleClaim).Methods(http.MethodPatch)
	r.HandleFunc("/consultations/{id}/decline", h.handleDecline).Methods(http.MethodPatch)
	r.HandleFunc("/consultations/{id}/complete", h.handleComplete).Methods(http.MethodPatch)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFrom(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	var req models.CreateConsultationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	cons, err := h.service.Create(r.Context(), actor, req)
	if err != nil {
		writeError(w, err, "failed to create consultation")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"consultation": cons})
}

func (h *Handler) handleQueue(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFrom(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	items, err := h.service.Queue(r.Context(), actor)
	if err != nil {
		writeError(w, err, "failed to list queue")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

func (h *Handler) handleInProgress(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFrom(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	items, err := h.service.InProgress(r.Context(), actor)
	if err != nil {
		writeError(w, err, "failed to list in-progress consultations")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFrom(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid consultation id", http.StatusBadRequest)
		return
	}
	cons, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		writeError(w, err, "failed to load consultation")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"consultation": cons})
}

func (h *Handler) handleClaim(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFrom(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid consultation id", http.StatusBadRequest)
		return
	}
	cons, err := h.service.Claim(r.Context(), actor, id)
	if err != nil {
		writeError(w, err, "failed to claim consultation")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"consultation": cons})
}

func (h *Handler) handleDecline(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFrom(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid consultation id", http.StatusBadRequest)
		return
	}
	var req models.DeclineConsultationRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	cons, err := h.service.Decline(r.Context(), actor, id, req.Reason)
	if err != nil {
		writeError(w, err, "failed to decline consultation")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"consultation": cons})
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFrom(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid consultation id", http.StatusBadRequest)
		return
	}
	cons, err := h.service.Complete(r.Context(), actor, id)
	if err != nil {
		writeError(w, err, "failed to complete consultation")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"consultation": cons})
}

func writeError(w http.ResponseWriter, err error, fallback string) {
	status := apperrors.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		logger.Log.WithError(err).Error(fallback)
		http.Error(w, fallback, status)
		return
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Log.WithError(err).Error("failed to encode response")
	}
}
