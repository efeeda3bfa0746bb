package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/service/checkout"
)

// CartService — операции с корзиной.
type CartService interface {
	GetCart(ctx context.Context, userID string) (domain.CartView, error)
	UpsertItem(ctx context.Context, userID, productID string, quantity int32) (domain.CartView, error)
	RemoveItem(ctx context.Context, userID, productID string) (domain.CartView, error)
	CountItems(ctx context.Context, userID string) (int, error)
	Clear(ctx context.Context, userID string) error
}

// PaymentService — операции с платёжными сессиями.
type PaymentService interface {
	CreateSession(ctx context.Context, userID string, amountMinor int64) (domain.PaymentSession, error)
	Owned(ctx context.Context, sessionID, userID string) (domain.PaymentSession, error)
	GetStatus(ctx context.Context, sessionID string) (domain.PaymentSession, error)
	Complete(ctx context.Context, sessionID string) (domain.PaymentSession, error)
}

// OrderCreator оформляет заказ.
type OrderCreator interface {
	CreateOrder(ctx context.Context, req checkout.CreateOrderRequest) (domain.Order, error)
}

// StatusUpdater меняет статус заказа.
type StatusUpdater interface {
	UpdateStatus(ctx context.Context, orderID, status string) (domain.Order, error)
}

// OrderQueries — чтения заказов.
type OrderQueries interface {
	GetOrder(ctx context.Context, orderID string) (checkout.OrderDetails, error)
	ListUserOrders(ctx context.Context, userID string, limit int) ([]domain.Order, error)
	ListSellerOrders(ctx context.Context, sellerID string, limit int) ([]domain.Order, error)
	TotalSales(ctx context.Context) (int64, error)
}

type handlers struct {
	cart     CartService
	payments PaymentService
	orders   OrderCreator
	status   StatusUpdater
	queries  OrderQueries
}

func principal(r *http.Request) Principal {
	p, _ := PrincipalFrom(r.Context())
	return p
}

func (h *handlers) getCart(w http.ResponseWriter, r *http.Request) {
	view, err := h.cart.GetCart(r.Context(), principal(r).UserID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toCartDTO(view))
}

func (h *handlers) countCart(w http.ResponseWriter, r *http.Request) {
	count, err := h.cart.CountItems(r.Context(), principal(r).UserID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, countResponse{Count: count})
}

func (h *handlers) upsertCartItem(w http.ResponseWriter, r *http.Request) {
	var req upsertItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if req.Quantity == nil {
		respondError(w, r, fmt.Errorf("%w: quantity is required", domain.ErrInvalidArgument))
		return
	}

	view, err := h.cart.UpsertItem(r.Context(), principal(r).UserID, chi.URLParam(r, "productID"), *req.Quantity)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toCartDTO(view))
}

func (h *handlers) removeCartItem(w http.ResponseWriter, r *http.Request) {
	view, err := h.cart.RemoveItem(r.Context(), principal(r).UserID, chi.URLParam(r, "productID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toCartDTO(view))
}

func (h *handlers) clearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.cart.Clear(r.Context(), principal(r).UserID); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	session, err := h.payments.CreateSession(r.Context(), principal(r).UserID, req.AmountMinor)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, toSessionDTO(session))
}

// getSession и completeSession работают только с сессиями вызывающего пользователя.
func (h *handlers) getSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if _, err := h.payments.Owned(r.Context(), sessionID, principal(r).UserID); err != nil {
		respondError(w, r, err)
		return
	}

	session, err := h.payments.GetStatus(r.Context(), sessionID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toSessionDTO(session))
}

func (h *handlers) completeSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if _, err := h.payments.Owned(r.Context(), sessionID, principal(r).UserID); err != nil {
		respondError(w, r, err)
		return
	}

	session, err := h.payments.Complete(r.Context(), sessionID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toSessionDTO(session))
}

func (h *handlers) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	order, err := h.orders.CreateOrder(r.Context(), req.toCommand(principal(r).UserID))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, toOrderDTO(order))
}

func (h *handlers) listMyOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.queries.ListUserOrders(r.Context(), principal(r).UserID, limitParam(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderDTOs(orders))
}

// getOrder отдаёт заказ владельцу, продавцу товара из заказа или администратору.
func (h *handlers) getOrder(w http.ResponseWriter, r *http.Request) {
	details, err := h.queries.GetOrder(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	p := principal(r)
	allowed := details.Order.UserID == p.UserID ||
		p.Role == domain.RoleAdmin ||
		(p.Role == domain.RoleSeller && details.Order.ContainsSeller(p.UserID))
	if !allowed {
		// Чужой заказ неотличим от отсутствующего.
		respondError(w, r, domain.ErrOrderNotFound)
		return
	}

	dto := toOrderDTO(details.Order)
	for _, event := range details.Timeline {
		dto.Timeline = append(dto.Timeline, timelineEventDTO{
			Type:     event.Type,
			Reason:   event.Reason,
			Occurred: event.Occurred,
		})
	}
	respondJSON(w, http.StatusOK, dto)
}

func (h *handlers) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	order, err := h.status.UpdateStatus(r.Context(), chi.URLParam(r, "orderID"), req.Status)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderDTO(order))
}

func (h *handlers) listSellerOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.queries.ListSellerOrders(r.Context(), principal(r).UserID, limitParam(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderDTOs(orders))
}

func (h *handlers) totalSales(w http.ResponseWriter, r *http.Request) {
	total, err := h.queries.TotalSales(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, salesResponse{TotalMinor: total})
}

func limitParam(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		return 0
	}
	return limit
}
