package billing

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/telecare-health/platform/pkg/auth"
	"github.com/telecare-health/platform/pkg/common/apperrors"
	"github.com/telecare-health/platform/pkg/common/logger"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/consultations/{id}/charge/rebuild", h.handleRebuild).Methods(http.MethodPost)
	r.HandleFunc("/consultations/{id}/charge", h.handleCharge).Methods(http.MethodGet)
}

func (h *Handler) handleRebuild(w http.ResponseWriter, r *http.Request) {
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
	charge, err := h.service.Rebuild(r.Context(), actor, id)
	if err != nil {
		writeError(w, err, "failed to rebuild charge")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"charge": charge})
}

func (h *Handler) handleCharge(w http.ResponseWriter, r *http.Request) {
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
	charge, err := h.service.Charge(r.Context(), actor, id)
	if err != nil {
		writeError(w, err, "failed to load charge")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"charge": charge})
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
