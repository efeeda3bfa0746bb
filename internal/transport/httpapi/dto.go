package httpapi

import (
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/service/checkout"
)

type cartItemDTO struct {
	ProductID    string   `json:"product_id"`
	Quantity     int32    `json:"quantity"`
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	PriceMinor   int64    `json:"price_minor"`
	Stock        int32    `json:"stock"`
	Images       []string `json:"images,omitempty"`
	Category     string   `json:"category,omitempty"`
	Subcategory  string   `json:"subcategory,omitempty"`
	DeliveryTime string   `json:"delivery_time,omitempty"`
}

type cartDTO struct {
	UserID     string        `json:"user_id"`
	Items      []cartItemDTO `json:"items"`
	TotalItems int           `json:"total_items"`
	TotalMinor int64         `json:"total_minor"`
}

func toCartDTO(view domain.CartView) cartDTO {
	items := make([]cartItemDTO, 0, len(view.Items))
	for _, item := range view.Items {
		items = append(items, cartItemDTO{
			ProductID:    item.ProductID,
			Quantity:     item.Quantity,
			Name:         item.Name,
			Description:  item.Description,
			PriceMinor:   item.PriceMinor,
			Stock:        item.Stock,
			Images:       item.Images,
			Category:     item.Category,
			Subcategory:  item.Subcategory,
			DeliveryTime: item.DeliveryTime,
		})
	}
	return cartDTO{
		UserID:     view.UserID,
		Items:      items,
		TotalItems: view.TotalItems,
		TotalMinor: view.TotalMinor,
	}
}

type upsertItemRequest struct {
	Quantity *int32 `json:"quantity"`
}

type countResponse struct {
	Count int `json:"count"`
}

type createSessionRequest struct {
	AmountMinor int64 `json:"amount_minor"`
}

type sessionDTO struct {
	ID          string    `json:"session_id"`
	Status      string    `json:"status"`
	AmountMinor int64     `json:"amount_minor"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toSessionDTO(s domain.PaymentSession) sessionDTO {
	return sessionDTO{
		ID:          s.ID,
		Status:      string(s.Status),
		AmountMinor: s.AmountMinor,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

type lineItemDTO struct {
	ProductID string `json:"product_id"`
	Quantity  int32  `json:"quantity"`
}

type createOrderRequest struct {
	Items            []lineItemDTO `json:"items"`
	TotalMinor       *int64        `json:"total_minor"`
	PaymentMethod    string        `json:"payment_method"`
	ShippingAddress  string        `json:"shipping_address"`
	PaymentSessionID string        `json:"payment_session_id,omitempty"`
}

func (r createOrderRequest) toCommand(userID string) checkout.CreateOrderRequest {
	items := make([]checkout.LineItem, 0, len(r.Items))
	for _, item := range r.Items {
		items = append(items, checkout.LineItem{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return checkout.CreateOrderRequest{
		UserID:             userID,
		Items:              items,
		DeclaredTotalMinor: r.TotalMinor,
		PaymentMethod:      r.PaymentMethod,
		ShippingAddress:    r.ShippingAddress,
		PaymentSessionID:   r.PaymentSessionID,
	}
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

type timelineEventDTO struct {
	Type     string    `json:"type"`
	Reason   string    `json:"reason,omitempty"`
	Occurred time.Time `json:"occurred_at"`
}

type orderDTO struct {
	ID               string             `json:"id"`
	UserID           string             `json:"user_id"`
	Items            []domain.OrderItem `json:"items"`
	AmountMinor      int64              `json:"amount_minor"`
	Status           string             `json:"status"`
	PaymentStatus    string             `json:"payment_status"`
	PaymentMethod    string             `json:"payment_method"`
	ShippingAddress  string             `json:"shipping_address"`
	PaymentSessionID string             `json:"payment_session_id,omitempty"`
	Version          int64              `json:"version"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
	Timeline         []timelineEventDTO `json:"timeline,omitempty"`
}

func toOrderDTO(o domain.Order) orderDTO {
	return orderDTO{
		ID:               o.ID,
		UserID:           o.UserID,
		Items:            o.Items,
		AmountMinor:      o.AmountMinor,
		Status:           string(o.Status),
		PaymentStatus:    string(o.PaymentStatus),
		PaymentMethod:    string(o.PaymentMethod),
		ShippingAddress:  o.ShippingAddress,
		PaymentSessionID: o.PaymentSessionID,
		Version:          o.Version,
		CreatedAt:        o.CreatedAt,
		UpdatedAt:        o.UpdatedAt,
	}
}

func toOrderDTOs(orders []domain.Order) []orderDTO {
	out := make([]orderDTO, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderDTO(o))
	}
	return out
}

type salesResponse struct {
	TotalMinor int64 `json:"total_minor"`
}
