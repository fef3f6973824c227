package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"infrastreet/marketplace/internal/model"
	"infrastreet/marketplace/internal/service"
)

type HistoryHandler struct {
	svc *service.MarketService
}

func NewHistoryHandler(svc *service.MarketService) *HistoryHandler {
	return &HistoryHandler{svc: svc}
}

type HistoryResponse struct {
	Orders          []model.Order  `json:"orders"`
	Recommendations []model.Vendor `json:"recommendations"`
	Errors          []string       `json:"errors,omitempty"`
}

// GetHistory returns past orders and recommendations. Partial failures still answer 200.
// With ?refresh=true cached recommendations are dropped first.
func (h *HistoryHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	phone := chi.URLParam(r, "phone")
	if phone == "" {
		http.Error(w, "phone is required", http.StatusBadRequest)
		return
	}

	if r.URL.Query().Get("refresh") == "true" {
		h.svc.Forget(phone)
	}

	hist, err := h.svc.History(r.Context(), phone)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	resp := HistoryResponse{Orders: hist.Orders, Recommendations: hist.Recommendations}
	if hist.OrdersErr != nil {
		resp.Errors = append(resp.Errors, "orders unavailable")
	}
	if hist.RecommendationsErr != nil {
		resp.Errors = append(resp.Errors, "recommendations unavailable")
	}
	writeJSON(w, http.StatusOK, resp)
}
