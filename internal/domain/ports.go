package domain

import (
	"context"
	"time"
)

// UserDirectory — внешний провайдер идентичности.
type UserDirectory interface {
	// GetUser возвращает пользователя или ErrUserNotFound.
	GetUser(ctx context.Context, id string) (User, error)
}

// ProductCatalog — внешний каталог товаров, источник актуальных цен.
type ProductCatalog interface {
	// GetProduct возвращает товар или ErrProductNotFound.
	GetProduct(ctx context.Context, id string) (Product, error)
}

// PaymentProcessor описывает внешний платёжный провайдер.
type PaymentProcessor interface {
	// CreateCheckoutSession открывает сессию оплаты на сумму и возвращает её идентификатор.
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (string, error)
	// GetSessionStatus возвращает текущий статус сессии у провайдера.
	GetSessionStatus(ctx context.Context, sessionID string) (SessionStatus, error)
}

// Notifier отправляет уведомления покупателю. Ошибки только логируются вызывающей стороной.
type Notifier interface {
	SendOrderConfirmation(ctx context.Context, msg OrderConfirmation) error
	SendStatusUpdate(ctx context.Context, msg StatusUpdate) error
}

// CartCache — кэш корзин перед основным хранилищем.
type CartCache interface {
	// Get возвращает корзину или ErrCacheMiss.
	Get(ctx context.Context, userID string) (Cart, error)
	Set(ctx context.Context, cart Cart) error
	Delete(ctx context.Context, userID string) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	Append(ctx context.Context, event TimelineEvent) error
	List(ctx context.Context, orderID string) ([]TimelineEvent, error)
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(ctx context.Context, key string) (IdempotencyRecord, error)
	MarkDone(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	MarkFailed(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	// Release освобождает ключ, который ещё в обработке; завершённые записи не трогает.
	Release(ctx context.Context, key string) error
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}
