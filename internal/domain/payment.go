package domain

import "time"

// SessionStatus описывает состояние платёжной сессии у провайдера.
type SessionStatus string

const (
	// SessionStatusPending — сессия создана, покупатель ещё не оплатил.
	SessionStatusPending SessionStatus = "pending"
	// SessionStatusComplete — провайдер подтвердил оплату.
	SessionStatusComplete SessionStatus = "complete"
	// SessionStatusCancelled — сессия отменена или истекла.
	SessionStatusCancelled SessionStatus = "cancelled"
	// SessionStatusRefunded — оплата возвращена покупателю.
	SessionStatusRefunded SessionStatus = "refunded"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionStatusPending, SessionStatusComplete, SessionStatusCancelled, SessionStatusRefunded:
		return true
	default:
		return false
	}
}

// Terminal сообщает, что из статуса больше нет переходов.
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusCancelled || s == SessionStatusRefunded
}

// CanTransitionSession проверяет переход статуса сессии.
// Статус монотонен: pending -> complete|cancelled, complete -> refunded.
// Переход в тот же статус разрешён и ничего не меняет.
func CanTransitionSession(from, to SessionStatus) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from == to {
		return true
	}
	switch from {
	case SessionStatusPending:
		return to == SessionStatusComplete || to == SessionStatusCancelled
	case SessionStatusComplete:
		return to == SessionStatusRefunded
	default:
		return false
	}
}

// PaymentSession — локальное зеркало сессии платёжного провайдера.
// Ключом служит идентификатор, выданный провайдером. Записи не удаляются.
type PaymentSession struct {
	ID          string
	UserID      string
	AmountMinor int64
	Status      SessionStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Validate проверяет корректность полей сессии и возвращает ошибки, если они есть.
func (s *PaymentSession) Validate() []error {
	var errs []error

	if s.ID == "" {
		errs = append(errs, ErrSessionIDRequired)
	}
	if s.AmountMinor <= 0 {
		errs = append(errs, ErrSessionAmountInvalid)
	}
	if !s.Status.Valid() {
		errs = append(errs, ErrSessionTransition)
	}

	return errs
}

// CheckoutSessionRequest — параметры создания сессии у провайдера.
type CheckoutSessionRequest struct {
	UserID      string
	AmountMinor int64
}
