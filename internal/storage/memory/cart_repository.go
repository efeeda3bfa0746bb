package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// cartRepositoryInMemory хранит корзины в памяти; операции атомарны под мьютексом.
type cartRepositoryInMemory struct {
	mu    sync.Mutex
	carts map[string]domain.Cart
}

// NewCartRepository создаёт in-memory хранилище корзин.
func NewCartRepository() domain.CartRepository {
	return &cartRepositoryInMemory{carts: make(map[string]domain.Cart)}
}

func (r *cartRepositoryInMemory) Get(_ context.Context, userID string) (domain.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cart, ok := r.carts[userID]
	if !ok {
		return domain.Cart{}, domain.ErrCartNotFound
	}
	return domain.CloneCart(cart), nil
}

func (r *cartRepositoryInMemory) UpsertItem(_ context.Context, userID, productID string, quantity int32) (domain.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cart, ok := r.carts[userID]
	if !ok {
		cart = domain.Cart{UserID: userID}
	}
	cart = domain.CloneCart(cart)
	cart.Upsert(productID, quantity, time.Now().UTC())
	r.carts[userID] = cart
	return domain.CloneCart(cart), nil
}

func (r *cartRepositoryInMemory) RemoveItem(_ context.Context, userID, productID string) (domain.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cart, ok := r.carts[userID]
	if !ok {
		return domain.Cart{}, domain.ErrCartNotFound
	}
	cart = domain.CloneCart(cart)
	if !cart.Remove(productID, time.Now().UTC()) {
		return domain.Cart{}, domain.ErrCartItemNotFound
	}
	r.carts[userID] = cart
	return domain.CloneCart(cart), nil
}

func (r *cartRepositoryInMemory) Delete(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.carts[userID]; !ok {
		return domain.ErrCartNotFound
	}
	delete(r.carts, userID)
	return nil
}

var _ domain.CartRepository = (*cartRepositoryInMemory)(nil)
