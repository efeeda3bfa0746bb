package domain

// OrderConfirmation — данные письма о принятом заказе.
type OrderConfirmation struct {
	OrderID       string        `json:"order_id"`
	UserID        string        `json:"user_id"`
	Email         string        `json:"email,omitempty"`
	DisplayName   string        `json:"display_name,omitempty"`
	AmountMinor   int64         `json:"amount_minor"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	Items         []OrderItem   `json:"items"`
}

// StatusUpdate — данные письма о смене статуса заказа.
type StatusUpdate struct {
	OrderID     string      `json:"order_id"`
	UserID      string      `json:"user_id"`
	Email       string      `json:"email,omitempty"`
	DisplayName string      `json:"display_name,omitempty"`
	Status      OrderStatus `json:"status"`
}
