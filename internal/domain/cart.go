package domain

import "time"

// CartItem — пара (товар, количество) в корзине.
type CartItem struct {
	ProductID string
	Quantity  int32
	AddedAt   time.Time
}

// Cart принадлежит ровно одному пользователю и создаётся при первом добавлении.
type Cart struct {
	UserID    string
	Items     []CartItem
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Upsert заменяет количество существующей позиции или добавляет новую.
func (c *Cart) Upsert(productID string, quantity int32, now time.Time) {
	c.UpdatedAt = now
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items[i].Quantity = quantity
			return
		}
	}
	c.Items = append(c.Items, CartItem{ProductID: productID, Quantity: quantity, AddedAt: now})
}

// Remove удаляет позицию; false, если товара в корзине нет.
func (c *Cart) Remove(productID string, now time.Time) bool {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			c.UpdatedAt = now
			return true
		}
	}
	return false
}

// TotalQuantity суммирует количество по всем позициям.
func (c *Cart) TotalQuantity() int {
	total := 0
	for _, item := range c.Items {
		total += int(item.Quantity)
	}
	return total
}

// CloneCart возвращает копию корзины с собственным срезом позиций.
func CloneCart(c Cart) Cart {
	dst := c
	dst.Items = append([]CartItem(nil), c.Items...)
	return dst
}

// PricedCartItem — позиция корзины, дополненная актуальными данными каталога.
type PricedCartItem struct {
	ProductID    string
	Quantity     int32
	Name         string
	Description  string
	PriceMinor   int64
	Stock        int32
	Images       []string
	Category     string
	Subcategory  string
	DeliveryTime string
}

// CartView — корзина с текущими ценами каталога.
type CartView struct {
	UserID     string
	Items      []PricedCartItem
	TotalItems int
	TotalMinor int64
}
