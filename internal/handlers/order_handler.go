package handlers

import (
	"net/http"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"ticket-gate/internal/services"
)

type OrderHandler struct {
	orders *services.OrderService
}

func NewOrderHandler(orders *services.OrderService) *OrderHandler {
	return &OrderHandler{orders: orders}
}

// CreateOrder - POST /api/v1/orders
func (h *OrderHandler) CreateOrder(e *core.RequestEvent) error {
	var req services.CreateOrderRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	order, err := h.orders.CreateOrder(e.Request.Context(), req)
	if err != nil {
		return toAPIError(err)
	}
	return e.JSON(http.StatusCreated, order)
}

// ConfirmPayment - POST /api/v1/orders/{orderId}/confirm
//
// Safe to call repeatedly: a completed order answers with its tickets.
func (h *OrderHandler) ConfirmPayment(e *core.RequestEvent) error {
	conf, err := h.orders.ConfirmPayment(e.Request.Context(), e.Request.PathValue("orderId"))
	if err != nil {
		return toAPIError(err)
	}
	return e.JSON(http.StatusOK, conf)
}

// CancelOrder - POST /api/v1/orders/{orderId}/cancel
func (h *OrderHandler) CancelOrder(e *core.RequestEvent) error {
	order, err := h.orders.CancelOrder(e.Request.Context(), e.Request.PathValue("orderId"))
	if err != nil {
		return toAPIError(err)
	}
	return e.JSON(http.StatusOK, order)
}

// ListTickets - GET /api/v1/orders/{orderId}/tickets
func (h *OrderHandler) ListTickets(e *core.RequestEvent) error {
	tickets, err := h.orders.ListTickets(e.Request.Context(), e.Request.PathValue("orderId"))
	if err != nil {
		return toAPIError(err)
	}
	return e.JSON(http.StatusOK, map[string]any{"tickets": tickets})
}
