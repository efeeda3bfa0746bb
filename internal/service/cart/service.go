package cart

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/metrics"
)

const (
	cacheOpTimeout = time.Second
	// generationSlots — число счётчиков изменений; пользователи делят их по хешу id.
	generationSlots = 256
)

// Option настраивает Service.
type Option func(*Service)

// WithCache включает cache-aside чтение корзин.
func WithCache(cache domain.CartCache) Option {
	return func(s *Service) {
		s.cache = cache
	}
}

// WithLogger задаёт logger сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMetrics задаёт метрики кэша.
func WithMetrics(m *metrics.CheckoutMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// Service ведёт корзину пользователя и строит её представление по актуальным ценам каталога.
type Service struct {
	carts   domain.CartRepository
	catalog domain.ProductCatalog
	users   domain.UserDirectory
	cache   domain.CartCache
	logger  *log.Entry
	metrics *metrics.CheckoutMetrics
	loads   singleflight.Group
	// gens растут при каждой записи корзины. Чтение кладёт результат в кэш,
	// только если счётчик не сдвинулся за время чтения.
	gens [generationSlots]atomic.Uint64
}

// NewService создаёт сервис корзины.
func NewService(carts domain.CartRepository, catalog domain.ProductCatalog, users domain.UserDirectory, opts ...Option) *Service {
	s := &Service{
		carts:   carts,
		catalog: catalog,
		users:   users,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.WithField("component", "cart-service")
	}
	return s
}

// GetCart возвращает корзину с живыми атрибутами товаров. Товары, пропавшие из каталога, не попадают в ответ.
func (s *Service) GetCart(ctx context.Context, userID string) (domain.CartView, error) {
	if err := s.requireUser(ctx, userID); err != nil {
		return domain.CartView{}, err
	}

	cart, err := s.load(ctx, userID)
	if err != nil {
		return domain.CartView{}, err
	}
	return s.price(ctx, cart)
}

// UpsertItem добавляет товар в корзину или заменяет его количество.
func (s *Service) UpsertItem(ctx context.Context, userID, productID string, quantity int32) (domain.CartView, error) {
	if quantity < 1 {
		return domain.CartView{}, domain.ErrQuantityInvalid
	}
	if productID == "" {
		return domain.CartView{}, domain.ErrProductIDRequired
	}
	if err := s.requireUser(ctx, userID); err != nil {
		return domain.CartView{}, err
	}
	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return domain.CartView{}, wrapProductErr(err, productID)
	}
	if _, err := domain.AddLineTotal(0, quantity, product.PriceMinor); err != nil {
		return domain.CartView{}, fmt.Errorf("%w: product %s", err, productID)
	}

	cart, err := s.carts.UpsertItem(ctx, userID, productID, quantity)
	if err != nil {
		return domain.CartView{}, fmt.Errorf("upsert cart item: %w", err)
	}
	s.invalidate(userID)

	return s.price(ctx, cart)
}

// RemoveItem удаляет товар из корзины.
func (s *Service) RemoveItem(ctx context.Context, userID, productID string) (domain.CartView, error) {
	if userID == "" {
		return domain.CartView{}, domain.ErrUserRequired
	}

	cart, err := s.carts.RemoveItem(ctx, userID, productID)
	if err != nil {
		return domain.CartView{}, err
	}
	s.invalidate(userID)

	return s.price(ctx, cart)
}

// CountItems возвращает суммарное количество единиц товара в корзине; 0, если корзины нет.
func (s *Service) CountItems(ctx context.Context, userID string) (int, error) {
	if err := s.requireUser(ctx, userID); err != nil {
		return 0, err
	}

	cart, err := s.load(ctx, userID)
	if err != nil {
		return 0, err
	}
	return cart.TotalQuantity(), nil
}

// Clear удаляет корзину. Отсутствие корзины не ошибка.
func (s *Service) Clear(ctx context.Context, userID string) error {
	if userID == "" {
		return domain.ErrUserRequired
	}

	err := s.carts.Delete(ctx, userID)
	if err != nil && !errors.Is(err, domain.ErrCartNotFound) {
		return fmt.Errorf("delete cart: %w", err)
	}
	s.invalidate(userID)
	return nil
}

func (s *Service) requireUser(ctx context.Context, userID string) error {
	if userID == "" {
		return domain.ErrUserRequired
	}
	if _, err := s.users.GetUser(ctx, userID); err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return err
		}
		return fmt.Errorf("get user: %w", err)
	}
	return nil
}

// load читает корзину через кэш; параллельные промахи по одному пользователю схлопываются.
// Ключ singleflight включает поколение, чтобы чтение после записи не получило старый результат.
func (s *Service) load(ctx context.Context, userID string) (domain.Cart, error) {
	gen := s.generation(userID)
	seen := gen.Load()
	v, err, _ := s.loads.Do(userID+"@"+strconv.FormatUint(seen, 10), func() (any, error) {
		if s.cache != nil {
			cached, err := s.cache.Get(ctx, userID)
			if err == nil {
				s.metrics.RecordCartCache("hit")
				return cached, nil
			}
			if errors.Is(err, domain.ErrCacheMiss) {
				s.metrics.RecordCartCache("miss")
			} else {
				s.metrics.RecordCartCache("error")
				s.logger.WithError(err).WithField("user_id", userID).Warn("cart cache read failed")
			}
		}

		cart, err := s.carts.Get(ctx, userID)
		if errors.Is(err, domain.ErrCartNotFound) {
			return domain.Cart{UserID: userID}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("get cart: %w", err)
		}

		s.fill(ctx, cart, gen, seen)
		return cart, nil
	})
	if err != nil {
		return domain.Cart{}, err
	}
	return domain.CloneCart(v.(domain.Cart)), nil
}

// fill кладёт прочитанную корзину в кэш, если с начала чтения её не меняли.
// Запись, успевшая между проверкой и Set, сдвигает счётчик, и ключ удаляется повторно.
func (s *Service) fill(ctx context.Context, cart domain.Cart, gen *atomic.Uint64, seen uint64) {
	if s.cache == nil || gen.Load() != seen {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheOpTimeout)
	defer cancel()
	if err := s.cache.Set(ctx, cart); err != nil {
		s.logger.WithError(err).WithField("user_id", cart.UserID).Warn("cart cache write failed")
		return
	}
	if gen.Load() != seen {
		if err := s.cache.Delete(ctx, cart.UserID); err != nil {
			s.logger.WithError(err).WithField("user_id", cart.UserID).Warn("cart cache invalidate failed")
		}
	}
}

func (s *Service) generation(userID string) *atomic.Uint64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return &s.gens[h.Sum32()%generationSlots]
}

// invalidate вызывается после записи в хранилище.
func (s *Service) invalidate(userID string) {
	s.generation(userID).Add(1)
	if s.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cacheOpTimeout)
	defer cancel()
	if err := s.cache.Delete(ctx, userID); err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("cart cache invalidate failed")
	}
}

func (s *Service) price(ctx context.Context, cart domain.Cart) (domain.CartView, error) {
	view := domain.CartView{
		UserID: cart.UserID,
		Items:  make([]domain.PricedCartItem, 0, len(cart.Items)),
	}

	for _, item := range cart.Items {
		product, err := s.catalog.GetProduct(ctx, item.ProductID)
		if errors.Is(err, domain.ErrProductNotFound) {
			s.logger.WithFields(log.Fields{
				"user_id":    cart.UserID,
				"product_id": item.ProductID,
			}).Debug("cart item skipped: product no longer in catalog")
			continue
		}
		if err != nil {
			return domain.CartView{}, fmt.Errorf("get product %s: %w", item.ProductID, err)
		}

		view.Items = append(view.Items, domain.PricedCartItem{
			ProductID:    item.ProductID,
			Quantity:     item.Quantity,
			Name:         product.Name,
			Description:  product.Description,
			PriceMinor:   product.PriceMinor,
			Stock:        product.Stock,
			Images:       product.Images,
			Category:     product.Category,
			Subcategory:  product.Subcategory,
			DeliveryTime: product.DeliveryTime,
		})
		total, err := domain.AddLineTotal(view.TotalMinor, item.Quantity, product.PriceMinor)
		if err != nil {
			return domain.CartView{}, fmt.Errorf("%w: product %s", err, item.ProductID)
		}
		view.TotalItems += int(item.Quantity)
		view.TotalMinor = total
	}

	return view, nil
}

func wrapProductErr(err error, productID string) error {
	if errors.Is(err, domain.ErrProductNotFound) {
		return fmt.Errorf("%w: %s", domain.ErrProductNotFound, productID)
	}
	return fmt.Errorf("get product %s: %w", productID, err)
}
