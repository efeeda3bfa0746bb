package domain

import "errors"

// Базовые категории ошибок. Конкретные ошибки ниже оборачивают одну из них,
// транспорт определяет код ответа через errors.Is по категории.
var (
	// ErrInvalidArgument — некорректный или отсутствующий ввод клиента, повторять бессмысленно.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound — сущность, на которую ссылается запрос, отсутствует.
	ErrNotFound = errors.New("not found")
	// ErrConflict — расхождение цены, дубликат или непримиримое состояние.
	ErrConflict = errors.New("conflict")
	// ErrFailedPrecondition — оплата ещё не подтверждена.
	ErrFailedPrecondition = errors.New("failed precondition")
	// ErrUnauthorized — запрос без идентификации пользователя.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden — у пользователя нет нужной роли.
	ErrForbidden = errors.New("forbidden")
	// ErrUpstream — сбой платёжного провайдера или сети; клиент может повторить с backoff.
	ErrUpstream = errors.New("upstream error")
)

// kindError связывает конкретную ошибку с её категорией.
type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Unwrap() error { return e.kind }

func newError(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

var (
	// Ошибка отсутствующего идентификатора пользователя.
	ErrUserRequired = newError(ErrUnauthorized, "user id is required")
	// Ошибка отсутствующего пользователя в каталоге пользователей.
	ErrUserNotFound = newError(ErrNotFound, "user not found")
	// Ошибка отсутствующего товара в каталоге.
	ErrProductNotFound = newError(ErrNotFound, "product not found")
	// Ошибка отсутствующего идентификатора товара.
	ErrProductIDRequired = newError(ErrInvalidArgument, "product id is required")
	// Ошибка отсутствующей корзины.
	ErrCartNotFound = newError(ErrNotFound, "cart not found")
	// Ошибка отсутствия позиции в корзине.
	ErrCartItemNotFound = newError(ErrNotFound, "item not found in cart")
	// Ошибка при некорректном количестве товара (< 1).
	ErrQuantityInvalid = newError(ErrInvalidArgument, "quantity must be at least 1")

	// Ошибка неположительной суммы платёжной сессии.
	ErrSessionAmountInvalid = newError(ErrInvalidArgument, "amount must be greater than zero")
	// Ошибка отсутствующего идентификатора сессии.
	ErrSessionIDRequired = newError(ErrInvalidArgument, "session id is required")
	// ErrSessionNotFound возвращается, если платёжная сессия неизвестна.
	ErrSessionNotFound = newError(ErrNotFound, "payment session not found")
	// ErrSessionAlreadyExists — сессия с таким идентификатором уже сохранена.
	ErrSessionAlreadyExists = newError(ErrConflict, "payment session already exists")
	// ErrSessionNotComplete — провайдер сообщает незавершённый статус.
	ErrSessionNotComplete = newError(ErrConflict, "payment session is not complete")
	// ErrSessionTransition — недопустимый переход статуса сессии.
	ErrSessionTransition = newError(ErrConflict, "illegal payment session status transition")
	// ErrProcessorUnavailable — платёжный провайдер не ответил или вернул ошибку.
	ErrProcessorUnavailable = newError(ErrUpstream, "payment processor unavailable")

	// Ошибка неполных данных заказа.
	ErrOrderDetailsRequired = newError(ErrInvalidArgument, "please provide all required order details")
	// Ошибка пустого списка позиций заказа.
	ErrItemsRequired = newError(ErrInvalidArgument, "order must contain at least one item")
	// Ошибка неизвестного способа оплаты.
	ErrPaymentMethodInvalid = newError(ErrInvalidArgument, "invalid payment method")
	// Ошибка неизвестного статуса заказа.
	ErrOrderStatusInvalid = newError(ErrInvalidArgument, "invalid order status")
	// ErrAmountOutOfRange — сумма позиций не помещается в int64.
	ErrAmountOutOfRange = newError(ErrInvalidArgument, "order amount is out of range")
	// ErrTotalMismatch — заявленная сумма не совпадает с пересчитанной по каталогу.
	ErrTotalMismatch = newError(ErrConflict, "total amount mismatch with product prices")
	// ErrPaymentAmountMismatch — сумма оплаченной сессии отличается от суммы заказа.
	ErrPaymentAmountMismatch = newError(ErrConflict, "payment amount does not match order total")
	// ErrPaymentRequired — для оплаты картой нужна завершённая платёжная сессия.
	ErrPaymentRequired = newError(ErrFailedPrecondition, "completed payment session is required for card payment")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = newError(ErrNotFound, "order not found")
	// ErrOrderAlreadyExists — заказ с таким ID или платёжной сессией уже создан.
	ErrOrderAlreadyExists = newError(ErrConflict, "order already exists")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = newError(ErrConflict, "order version conflict")

	// ErrOutboxMessageNotFound — отметка доставки для сообщения, которого нет в outbox.
	ErrOutboxMessageNotFound = newError(ErrNotFound, "outbox message not found")
	// ErrCacheMiss — в кэше нет записи.
	ErrCacheMiss = errors.New("cache miss")
)

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}

// IsNotFound проверяет, относится ли ошибка к категории NotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsUpstream проверяет, вызвана ли ошибка внешним провайдером.
func IsUpstream(err error) bool {
	return errors.Is(err, ErrUpstream)
}
