package domain

import (
	"math"
	"strings"
	"time"
)

// OrderStatus описывает стадию исполнения заказа после оплаты.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан и ждёт обработки продавцом.
	OrderStatusPending OrderStatus = "Pending"
	// OrderStatusProcessing — продавец собирает заказ.
	OrderStatusProcessing OrderStatus = "Processing"
	// OrderStatusShipped — заказ передан в доставку.
	OrderStatusShipped OrderStatus = "Shipped"
	// OrderStatusDelivered — заказ вручён покупателю.
	OrderStatusDelivered OrderStatus = "Delivered"
	// OrderStatusCancelled — заказ отменён.
	OrderStatusCancelled OrderStatus = "Cancelled"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// ParseOrderStatus разбирает статус заказа. Сравнение точное, с учётом регистра.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	status := OrderStatus(raw)
	if !status.Valid() {
		return "", ErrOrderStatusInvalid
	}
	return status, nil
}

// PaymentStatus описывает состояние оплаты заказа.
type PaymentStatus string

const (
	// PaymentStatusPending — оплата ожидается (наложенный платёж).
	PaymentStatusPending PaymentStatus = "Pending"
	// PaymentStatusCompleted — оплата подтверждена платёжной сессией.
	PaymentStatusCompleted PaymentStatus = "Completed"
	// PaymentStatusFailed — оплата не прошла.
	PaymentStatusFailed PaymentStatus = "Failed"
)

// Valid проверяет, что статус оплаты поддерживается.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusCompleted, PaymentStatusFailed:
		return true
	default:
		return false
	}
}

// PaymentMethod — способ оплаты заказа.
type PaymentMethod string

const (
	// PaymentMethodCard — оплата картой через платёжную сессию.
	PaymentMethodCard PaymentMethod = "CardPayment"
	// PaymentMethodCashOnDelivery — оплата при получении.
	PaymentMethodCashOnDelivery PaymentMethod = "CashOnDelivery"
)

// ParsePaymentMethod разбирает способ оплаты. Принимает и старые названия витрины.
func ParsePaymentMethod(raw string) (PaymentMethod, error) {
	switch strings.TrimSpace(raw) {
	case string(PaymentMethodCard), "Debit Card":
		return PaymentMethodCard, nil
	case string(PaymentMethodCashOnDelivery), "Cash on Delivery":
		return PaymentMethodCashOnDelivery, nil
	default:
		return "", ErrPaymentMethodInvalid
	}
}

// OrderItem — позиция заказа со снимком названия и цены на момент оформления.
type OrderItem struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	// SellerID — владелец товара, нужен для выборки заказов продавца.
	SellerID string `json:"seller_id,omitempty"`
	Quantity int32  `json:"quantity"`
	// PriceMinor — цена за единицу в минимальных денежных единицах.
	PriceMinor int64 `json:"price_minor"`
}

// Order — неизменяемая по позициям запись о покупке.
type Order struct {
	ID               string
	UserID           string
	Items            []OrderItem
	AmountMinor      int64
	Status           OrderStatus
	PaymentStatus    PaymentStatus
	PaymentMethod    PaymentMethod
	ShippingAddress  string
	PaymentSessionID string
	Version          int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ItemsTotal пересчитывает сумму позиций: qty * price.
func (o *Order) ItemsTotal() int64 {
	var total int64
	for _, item := range o.Items {
		total += int64(item.Quantity) * item.PriceMinor
	}
	return total
}

// AddLineTotal прибавляет к sum стоимость позиции quantity * priceMinor.
// Отрицательные значения и выход за int64 дают ErrAmountOutOfRange.
func AddLineTotal(sum int64, quantity int32, priceMinor int64) (int64, error) {
	q := int64(quantity)
	if sum < 0 || q < 0 || priceMinor < 0 {
		return 0, ErrAmountOutOfRange
	}
	if q != 0 && priceMinor > math.MaxInt64/q {
		return 0, ErrAmountOutOfRange
	}
	line := q * priceMinor
	if sum > math.MaxInt64-line {
		return 0, ErrAmountOutOfRange
	}
	return sum + line, nil
}

// ContainsSeller сообщает, есть ли в заказе товары продавца.
func (o *Order) ContainsSeller(sellerID string) bool {
	for _, item := range o.Items {
		if item.SellerID == sellerID {
			return true
		}
	}
	return false
}

// ValidateInvariants проверяет инварианты заказа перед сохранением и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.UserID == "" {
		errs = append(errs, ErrUserRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if !o.Status.Valid() {
		errs = append(errs, ErrOrderStatusInvalid)
	}
	if o.PaymentMethod != PaymentMethodCard && o.PaymentMethod != PaymentMethodCashOnDelivery {
		errs = append(errs, ErrPaymentMethodInvalid)
	}
	if o.PaymentMethod == PaymentMethodCard && o.PaymentSessionID == "" {
		errs = append(errs, ErrPaymentRequired)
	}
	for _, item := range o.Items {
		if item.Quantity < 1 {
			errs = append(errs, ErrQuantityInvalid)
		}
	}
	if o.ItemsTotal() != o.AmountMinor {
		errs = append(errs, ErrTotalMismatch)
	}

	return errs
}

// CloneOrder возвращает копию заказа с собственным срезом позиций.
func CloneOrder(o Order) Order {
	dst := o
	dst.Items = append([]OrderItem(nil), o.Items...)
	return dst
}
