package domain

import "context"

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ. Возвращает ErrOrderAlreadyExists, если заказ с таким ID
	// или с той же платёжной сессией уже существует.
	Create(ctx context.Context, order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(ctx context.Context, id string) (Order, error)
	// GetByPaymentSession возвращает заказ, оплаченный сессией, или ErrOrderNotFound.
	GetByPaymentSession(ctx context.Context, sessionID string) (Order, error)
	// ListByUser возвращает заказы пользователя, новые первыми.
	ListByUser(ctx context.Context, userID string, limit int) ([]Order, error)
	// ListBySeller возвращает заказы, содержащие товары продавца, новые первыми.
	ListBySeller(ctx context.Context, sellerID string, limit int) ([]Order, error)
	// TotalSales суммирует итоговые суммы всех заказов.
	TotalSales(ctx context.Context) (int64, error)
	// Save применяет обновления к заказу с учётом optimistic locking.
	Save(ctx context.Context, order Order) error
}

// PaymentSessionRepository хранит локальные зеркала платёжных сессий.
type PaymentSessionRepository interface {
	// Create сохраняет новую сессию или возвращает ErrSessionAlreadyExists.
	Create(ctx context.Context, session PaymentSession) error
	// Get возвращает сессию или ErrSessionNotFound.
	Get(ctx context.Context, id string) (PaymentSession, error)
	// UpdateStatus меняет статус, только если текущий равен from (compare-and-set).
	// При несовпадении возвращает ErrSessionTransition и актуальную запись.
	UpdateStatus(ctx context.Context, id string, from, to SessionStatus) (PaymentSession, error)
}

// CartRepository хранит корзины пользователей.
type CartRepository interface {
	// Get возвращает корзину или ErrCartNotFound.
	Get(ctx context.Context, userID string) (Cart, error)
	// UpsertItem создаёт корзину при необходимости и заменяет количество позиции.
	UpsertItem(ctx context.Context, userID, productID string, quantity int32) (Cart, error)
	// RemoveItem удаляет позицию; ErrCartNotFound или ErrCartItemNotFound, если удалять нечего.
	RemoveItem(ctx context.Context, userID, productID string) (Cart, error)
	// Delete удаляет корзину целиком; ErrCartNotFound, если её нет.
	Delete(ctx context.Context, userID string) error
}
