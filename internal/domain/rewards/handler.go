package rewards

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mwork/mwork-rewards/internal/pkg/errorhandler"
	"github.com/mwork/mwork-rewards/internal/pkg/response"
	"github.com/mwork/mwork-rewards/internal/pkg/validator"
)

// Handler receives order lifecycle events. Every event answers 200 with its
// Outcome: reward failures are reported in the body, never as an HTTP error,
// so the order flow can fire and forget.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the order event routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/placed", h.OrderPlaced)
	r.Post("/{orderID}/delivered", h.OrderDelivered)
	r.Post("/{orderID}/cancelled", h.OrderCancelled)
	return r
}

// OrderPlaced handles POST /orders/placed
func (h *Handler) OrderPlaced(w http.ResponseWriter, r *http.Request) {
	var req OrderPlacedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		errorhandler.HandleValidation(r.Context(), w, errs)
		return
	}

	order := req.ToPlacedOrder()
	resp := OrderPlacedResponse{Order: h.service.OnOrderPlaced(r.Context(), order)}
	if req.ApplyCampaigns {
		resp.Campaign = h.service.ApplyBestCampaign(r.Context(), order.UserID, &order.Order)
	}
	response.OK(w, resp)
}

// OrderDelivered handles POST /orders/{orderID}/delivered
func (h *Handler) OrderDelivered(w http.ResponseWriter, r *http.Request) {
	response.OK(w, h.service.OnOrderDelivered(r.Context(), chi.URLParam(r, "orderID")))
}

// OrderCancelled handles POST /orders/{orderID}/cancelled
func (h *Handler) OrderCancelled(w http.ResponseWriter, r *http.Request) {
	response.OK(w, h.service.OnOrderCancelled(r.Context(), chi.URLParam(r, "orderID")))
}
