package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// Catalog — in-memory каталог товаров и пользователей для разработки и тестов.
// Реализует domain.ProductCatalog и domain.UserDirectory.
type Catalog struct {
	mu       sync.RWMutex
	products map[string]domain.Product
	users    map[string]domain.User
}

// NewCatalog создаёт пустой каталог.
func NewCatalog() *Catalog {
	return &Catalog{
		products: make(map[string]domain.Product),
		users:    make(map[string]domain.User),
	}
}

// PutProduct добавляет или заменяет товар (в том числе меняет цену).
func (c *Catalog) PutProduct(product domain.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[product.ID] = product
}

// DeleteProduct убирает товар из каталога.
func (c *Catalog) DeleteProduct(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.products, id)
}

// PutUser добавляет или заменяет пользователя.
func (c *Catalog) PutUser(user domain.User) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users[user.ID] = user
}

// GetProduct возвращает товар или ErrProductNotFound.
func (c *Catalog) GetProduct(_ context.Context, id string) (domain.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	product, ok := c.products[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	product.Images = append([]string(nil), product.Images...)
	return product, nil
}

// GetUser возвращает пользователя или ErrUserNotFound.
func (c *Catalog) GetUser(_ context.Context, id string) (domain.User, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	user, ok := c.users[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, nil
}

var (
	_ domain.ProductCatalog = (*Catalog)(nil)
	_ domain.UserDirectory  = (*Catalog)(nil)
)
