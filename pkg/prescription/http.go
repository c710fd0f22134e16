package prescription

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
	r.HandleFunc("/prescriptions", h.handleUpsert).Methods(http.MethodPost)
	r.HandleFunc("/consultations/{id}/prescription", h.handleByConsultation).Methods(http.MethodGet)
}

func (h *Handler) handleUpsert(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFrom(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	var req models.UpsertPrescriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	rx, err := h.service.Upsert(r.Context(), actor, req)
	if err != nil {
		writeError(w, err, "failed to save prescription")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"prescription": rx})
}

func (h *Handler) handleByConsultation(w http.ResponseWriter, r *http.Request) {
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
	rx, err := h.service.ByConsultation(r.Context(), actor, id)
	if err != nil {
		writeError(w, err, "failed to load prescription")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"prescription": rx})
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
