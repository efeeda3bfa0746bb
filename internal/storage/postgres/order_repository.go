package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

const selectOrder = `SELECT id, user_id, amount_minor, status, payment_status, payment_method,
	shipping_address, payment_session_id, version, created_at, updated_at FROM orders o`

// OrderRepository хранит заказы в orders и их позиции в order_items.
type OrderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт репозиторий поверх пула store.
func NewOrderRepository(store *Store) *OrderRepository {
	return &OrderRepository{db: store.DB()}
}

// Create записывает заказ вместе с позициями одной транзакцией.
func (r *OrderRepository) Create(ctx context.Context, order domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO orders (id, user_id, amount_minor, status, payment_status, payment_method,
				shipping_address, payment_session_id, version, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			order.ID, order.UserID, order.AmountMinor, order.Status, order.PaymentStatus,
			order.PaymentMethod, order.ShippingAddress, optionalText(order.PaymentSessionID),
			order.Version, order.CreatedAt.UTC(), order.UpdatedAt.UTC(),
		)
		if isUniqueViolation(err) {
			return domain.ErrOrderAlreadyExists
		}
		if err != nil {
			return fmt.Errorf("insert order %s: %w", order.ID, err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO order_items (order_id, position, product_id, product_name, seller_id, quantity, price_minor)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`)
		if err != nil {
			return fmt.Errorf("prepare order items: %w", err)
		}
		defer stmt.Close()

		for pos, it := range order.Items {
			if _, err := stmt.ExecContext(ctx, order.ID, pos, it.ProductID, it.ProductName,
				it.SellerID, it.Quantity, it.PriceMinor); err != nil {
				return fmt.Errorf("insert item %d of order %s: %w", pos, order.ID, err)
			}
		}
		return nil
	})
}

// Get ищет заказ по идентификатору.
func (r *OrderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	return r.one(ctx, selectOrder+` WHERE id = $1`, id)
}

// GetByPaymentSession ищет заказ, созданный из платёжной сессии.
func (r *OrderRepository) GetByPaymentSession(ctx context.Context, sessionID string) (domain.Order, error) {
	return r.one(ctx, selectOrder+` WHERE payment_session_id = $1`, sessionID)
}

// ListByUser возвращает заказы покупателя, новые первыми.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Order, error) {
	return r.many(ctx, selectOrder+` WHERE user_id = $1`, userID, limit)
}

// ListBySeller возвращает заказы, где есть хотя бы одна позиция продавца.
func (r *OrderRepository) ListBySeller(ctx context.Context, sellerID string, limit int) ([]domain.Order, error) {
	return r.many(ctx, selectOrder+`
		WHERE EXISTS (SELECT 1 FROM order_items i WHERE i.order_id = o.id AND i.seller_id = $1)`,
		sellerID, limit)
}

// TotalSales суммирует amount_minor по всем заказам.
func (r *OrderRepository) TotalSales(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var total int64
	err := r.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(amount_minor), 0) FROM orders`).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum orders: %w", err)
	}
	return total, nil
}

// Save обновляет статусы и адрес с оптимистичной блокировкой по version.
// Позиции и сумма остаются снимком на момент оформления.
func (r *OrderRepository) Save(ctx context.Context, order domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var next int64
	err := r.db.QueryRowContext(ctx, `
		UPDATE orders
		SET status = $1, payment_status = $2, shipping_address = $3,
		    version = version + 1, updated_at = $4
		WHERE id = $5 AND version = $6
		RETURNING version`,
		order.Status, order.PaymentStatus, order.ShippingAddress,
		order.UpdatedAt.UTC(), order.ID, order.Version,
	).Scan(&next)
	switch {
	case err == nil:
		return nil
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("update order %s: %w", order.ID, err)
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, order.ID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("check order %s: %w", order.ID, err)
	}
	if !exists {
		return domain.ErrOrderNotFound
	}
	return domain.ErrOrderVersionConflict
}

func (r *OrderRepository) one(ctx context.Context, query, arg string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	order, err := scanOrder(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}

	orders := []domain.Order{order}
	if err := r.attachItems(ctx, orders); err != nil {
		return domain.Order{}, err
	}
	return orders[0], nil
}

func (r *OrderRepository) many(ctx context.Context, query, arg string, limit int) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query += ` ORDER BY created_at DESC, id DESC LIMIT $2`
	var lim any
	if limit > 0 {
		lim = limit
	}

	rows, err := r.db.QueryContext(ctx, query, arg, lim)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read orders: %w", err)
	}

	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// attachItems подгружает позиции всех заказов одним запросом.
func (r *OrderRepository) attachItems(ctx context.Context, orders []domain.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]string, len(orders))
	byID := make(map[string]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		byID[o.ID] = i
		orders[i].Items = make([]domain.OrderItem, 0)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT order_id, product_id, product_name, seller_id, quantity, price_minor
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, position`, ids)
	if err != nil {
		return fmt.Errorf("select order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID string
			it      domain.OrderItem
		)
		if err := rows.Scan(&orderID, &it.ProductID, &it.ProductName, &it.SellerID, &it.Quantity, &it.PriceMinor); err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		if i, ok := byID[orderID]; ok {
			orders[i].Items = append(orders[i].Items, it)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("read order items: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(row scanner) (domain.Order, error) {
	var (
		o         domain.Order
		sessionID sql.NullString
	)
	err := row.Scan(&o.ID, &o.UserID, &o.AmountMinor, &o.Status, &o.PaymentStatus, &o.PaymentMethod,
		&o.ShippingAddress, &sessionID, &o.Version, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return domain.Order{}, err
	}
	o.PaymentSessionID = sessionID.String
	return o, nil
}

func optionalText(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ domain.OrderRepository = (*OrderRepository)(nil)
