package payment

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
	r.HandleFunc("/payments/orders", h.handleCreateOrder).Methods(http.MethodPost)
	r.HandleFunc("/payments/gateway/verify", h.handleVerifyGateway).Methods(http.MethodPost)
	r.HandleFunc("/payments/cash", h.handleInitiateCash).Methods(http.MethodPost)
	r.HandleFunc("/payments/cash/verify", h.handleVerifyCash).Methods(http.MethodPost)
	r.HandleFunc("/payments/{id}", h.handleGet).Methods(http.MethodGet)
}

func (h *Handler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFrom(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	var req models.CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	resp, err := h.service.CreateOrder(r.Context(), actor, req)
	if err != nil {
		writeError(w, err, "failed to create order")
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) handleVerifyGateway(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFrom(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	var req models.VerifyGatewayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	p, err := h.service.VerifyGateway(r.Context(), actor, req)
	if err != nil {
		writeError(w, err, "failed to verify payment")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"payment": p})
}

func (h *Handler) handleInitiateCash(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFrom(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	var req models.InitiateCashRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	p, err := h.service.InitiateCash(r.Context(), actor, req)
	if err != nil {
		writeError(w, err, "failed to initiate cash payment")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"payment": p})
}

func (h *Handler) handleVerifyCash(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFrom(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	var req models.VerifyCashRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	p, err := h.service.VerifyCash(r.Context(), actor, req)
	if err != nil {
		writeError(w, err, "failed to verify cash payment")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"payment": p})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFrom(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid payment id", http.StatusBadRequest)
		return
	}
	p, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		writeError(w, err, "failed to load payment")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"payment": p})
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
