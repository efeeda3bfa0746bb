package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

type sessionRepository struct {
	db *sql.DB
}

// NewPaymentSessionRepository создаёт PostgreSQL-реализацию PaymentSessionRepository.
func NewPaymentSessionRepository(store *Store) domain.PaymentSessionRepository {
	return &sessionRepository{db: store.DB()}
}

func (r *sessionRepository) Create(ctx context.Context, session domain.PaymentSession) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payment_sessions (id, user_id, amount_minor, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, session.ID, session.UserID, session.AmountMinor, string(session.Status), session.CreatedAt, session.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrSessionAlreadyExists
		}
		return fmt.Errorf("insert payment session: %w", err)
	}
	return nil
}

func (r *sessionRepository) Get(ctx context.Context, id string) (domain.PaymentSession, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return r.get(ctx, id)
}

func (r *sessionRepository) UpdateStatus(ctx context.Context, id string, from, to domain.SessionStatus) (domain.PaymentSession, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if !domain.CanTransitionSession(from, to) {
		current, err := r.get(ctx, id)
		if err != nil {
			return domain.PaymentSession{}, err
		}
		return current, domain.ErrSessionTransition
	}

	var session domain.PaymentSession
	var status string
	err := r.db.QueryRowContext(ctx, `
		UPDATE payment_sessions
		SET status = $3,
		    updated_at = $4
		WHERE id = $1
		  AND status = $2
		RETURNING id, user_id, amount_minor, status, created_at, updated_at
	`, id, string(from), string(to), time.Now().UTC()).Scan(
		&session.ID, &session.UserID, &session.AmountMinor, &status, &session.CreatedAt, &session.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		current, getErr := r.get(ctx, id)
		if getErr != nil {
			return domain.PaymentSession{}, getErr
		}
		return current, domain.ErrSessionTransition
	}
	if err != nil {
		return domain.PaymentSession{}, fmt.Errorf("update payment session status: %w", err)
	}
	session.Status = domain.SessionStatus(status)
	return session, nil
}

func (r *sessionRepository) get(ctx context.Context, id string) (domain.PaymentSession, error) {
	var session domain.PaymentSession
	var status string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, amount_minor, status, created_at, updated_at
		FROM payment_sessions
		WHERE id = $1
	`, id).Scan(&session.ID, &session.UserID, &session.AmountMinor, &status, &session.CreatedAt, &session.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.PaymentSession{}, domain.ErrSessionNotFound
		}
		return domain.PaymentSession{}, fmt.Errorf("select payment session: %w", err)
	}
	session.Status = domain.SessionStatus(status)
	return session, nil
}

var _ domain.PaymentSessionRepository = (*sessionRepository)(nil)
