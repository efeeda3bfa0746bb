package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

const defaultBaseTTL = 15 * time.Minute

type cachedItem struct {
	ProductID string    `json:"product_id"`
	Quantity  int32     `json:"quantity"`
	AddedAt   time.Time `json:"added_at"`
}

type cachedCart struct {
	UserID    string       `json:"user_id"`
	Items     []cachedItem `json:"items"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// CartCache кэширует корзины в Redis как JSON под ключом cart:<userID>.
type CartCache struct {
	client  redis.UniversalClient
	baseTTL time.Duration
}

// NewCartCache создаёт кэш корзин. baseTTL <= 0 заменяется значением по умолчанию.
func NewCartCache(client redis.UniversalClient, baseTTL time.Duration) *CartCache {
	if baseTTL <= 0 {
		baseTTL = defaultBaseTTL
	}
	return &CartCache{client: client, baseTTL: baseTTL}
}

// Get возвращает корзину или domain.ErrCacheMiss.
func (c *CartCache) Get(ctx context.Context, userID string) (domain.Cart, error) {
	data, err := c.client.Get(ctx, cacheKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Cart{}, domain.ErrCacheMiss
	}
	if err != nil {
		return domain.Cart{}, fmt.Errorf("redis get: %w", err)
	}

	var cached cachedCart
	if err := json.Unmarshal(data, &cached); err != nil {
		return domain.Cart{}, fmt.Errorf("unmarshal cart: %w", err)
	}

	cart := domain.Cart{
		UserID:    cached.UserID,
		Items:     make([]domain.CartItem, 0, len(cached.Items)),
		CreatedAt: cached.CreatedAt,
		UpdatedAt: cached.UpdatedAt,
	}
	for _, item := range cached.Items {
		cart.Items = append(cart.Items, domain.CartItem(item))
	}
	return cart, nil
}

// Set сохраняет корзину. К TTL добавляется случайный сдвиг, чтобы записи не истекали разом.
func (c *CartCache) Set(ctx context.Context, cart domain.Cart) error {
	cached := cachedCart{
		UserID:    cart.UserID,
		Items:     make([]cachedItem, 0, len(cart.Items)),
		CreatedAt: cart.CreatedAt,
		UpdatedAt: cart.UpdatedAt,
	}
	for _, item := range cart.Items {
		cached.Items = append(cached.Items, cachedItem(item))
	}

	data, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}

	jitter := time.Duration(rand.Intn(5)) * time.Minute
	if err := c.client.Set(ctx, cacheKey(cart.UserID), data, c.baseTTL+jitter).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete инвалидирует запись; отсутствие ключа ошибкой не считается.
func (c *CartCache) Delete(ctx context.Context, userID string) error {
	if err := c.client.Del(ctx, cacheKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

// Ping проверяет доступность Redis.
func (c *CartCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func cacheKey(userID string) string {
	return fmt.Sprintf("cart:%s", userID)
}

var _ domain.CartCache = (*CartCache)(nil)
