package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	opTimeout = 5 * time.Second
)

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

func (r *orderRepository) Create(order domain.Order) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (
			id, customer_id, channel, status, amount_minor,
			priority, processing_time_ns, version, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		order.ID, order.CustomerID, string(order.Channel), string(order.Status),
		order.AmountMinor, order.Priority, int64(order.ProcessingTime),
		order.Version, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrOrderVersionConflict
		}
		return fmt.Errorf("insert order: %w", err)
	}

	for _, item := range order.Items {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (
				id, order_id, sku, qty, price_minor, location, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7)
		`,
			item.ID, order.ID, item.SKU, item.Qty, item.PriceMinor, item.Location, item.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	if err = insertHistoryTx(ctx, tx, order.ID, order.History); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create order: %w", err)
	}

	return nil
}

func (r *orderRepository) Get(id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	order, err := r.getOrder(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}

	if err := r.loadDetails(ctx, &order); err != nil {
		return domain.Order{}, err
	}

	return order, nil
}

func (r *orderRepository) ListByCustomer(customerID string, limit int) ([]domain.Order, error) {
	query := `
		SELECT id, customer_id, channel, status, amount_minor,
		       priority, processing_time_ns, version, created_at, updated_at
		FROM orders
		WHERE customer_id = $1
		ORDER BY created_at DESC, id DESC
	`
	return r.listOrders(query, customerID, limit)
}

func (r *orderRepository) ListByStatus(status domain.OrderStatus, limit int) ([]domain.Order, error) {
	// Порядок выборки конвейера: выше приоритет — раньше, при равенстве FIFO.
	query := `
		SELECT id, customer_id, channel, status, amount_minor,
		       priority, processing_time_ns, version, created_at, updated_at
		FROM orders
		WHERE status = $1
		ORDER BY priority DESC, created_at ASC, id ASC
	`
	return r.listOrders(query, string(status), limit)
}

func (r *orderRepository) Save(order domain.Order) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $1,
		    amount_minor = $2,
		    priority = $3,
		    processing_time_ns = $4,
		    version = version + 1,
		    updated_at = $5
		WHERE id = $6
		  AND version = $7
	`,
		string(order.Status),
		order.AmountMinor,
		order.Priority,
		int64(order.ProcessingTime),
		order.UpdatedAt,
		order.ID,
		order.Version,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		exists, err := r.orderExistsTx(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrOrderNotFound
		}
		return domain.ErrOrderVersionConflict
	}

	if err = insertHistoryTx(ctx, tx, order.ID, order.History); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit save order: %w", err)
	}

	return nil
}

func (r *orderRepository) getOrder(ctx context.Context, id string) (domain.Order, error) {
	var (
		order            domain.Order
		channel          string
		status           string
		processingTimeNS int64
	)

	err := r.db.QueryRowContext(ctx, `
		SELECT id, customer_id, channel, status, amount_minor,
		       priority, processing_time_ns, version, created_at, updated_at
		FROM orders
		WHERE id = $1
	`, id).Scan(
		&order.ID, &order.CustomerID, &channel, &status, &order.AmountMinor,
		&order.Priority, &processingTimeNS, &order.Version, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}

	order.Channel = domain.SalesChannel(channel)
	order.Status = domain.OrderStatus(status)
	order.ProcessingTime = time.Duration(processingTimeNS)
	return order, nil
}

func (r *orderRepository) listOrders(query string, arg any, limit int) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var (
		rows *sql.Rows
		err  error
	)

	if limit > 0 {
		rows, err = r.db.QueryContext(ctx, query+" LIMIT $2", arg, limit)
	} else {
		rows, err = r.db.QueryContext(ctx, query, arg)
	}
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		var (
			order            domain.Order
			channel          string
			status           string
			processingTimeNS int64
		)
		if err := rows.Scan(
			&order.ID, &order.CustomerID, &channel, &status, &order.AmountMinor,
			&order.Priority, &processingTimeNS, &order.Version, &order.CreatedAt, &order.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		order.Channel = domain.SalesChannel(channel)
		order.Status = domain.OrderStatus(status)
		order.ProcessingTime = time.Duration(processingTimeNS)
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}

	for i := range orders {
		if err := r.loadDetails(ctx, &orders[i]); err != nil {
			return nil, err
		}
	}

	return orders, nil
}

func (r *orderRepository) loadDetails(ctx context.Context, order *domain.Order) error {
	items, err := r.loadItems(ctx, order.ID)
	if err != nil {
		return err
	}
	order.Items = items

	history, err := r.loadHistory(ctx, order.ID)
	if err != nil {
		return err
	}
	order.History = history
	return nil
}

func (r *orderRepository) loadItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, sku, qty, price_minor, location, created_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY created_at ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0)
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ID, &item.SKU, &item.Qty, &item.PriceMinor, &item.Location, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}

	return items, nil
}

func (r *orderRepository) loadHistory(ctx context.Context, orderID string) ([]domain.StatusChange, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT status, note, occurred_at
		FROM order_status_history
		WHERE order_id = $1
		ORDER BY position ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order history: %w", err)
	}
	defer rows.Close()

	history := make([]domain.StatusChange, 0)
	for rows.Next() {
		var (
			change domain.StatusChange
			status string
		)
		if err := rows.Scan(&status, &change.Note, &change.Occurred); err != nil {
			return nil, fmt.Errorf("scan order history row: %w", err)
		}
		change.Status = domain.OrderStatus(status)
		history = append(history, change)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order history: %w", err)
	}

	return history, nil
}

// insertHistoryTx дописывает недостающие записи истории. История append-only,
// позиция записи не меняется, поэтому конфликт по (order_id, position) игнорируется.
func insertHistoryTx(ctx context.Context, tx *sql.Tx, orderID string, history []domain.StatusChange) error {
	for i, change := range history {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO order_status_history (order_id, position, status, note, occurred_at)
			VALUES ($1,$2,$3,$4,$5)
			ON CONFLICT (order_id, position) DO NOTHING
		`,
			orderID, i, string(change.Status), change.Note, change.Occurred,
		); err != nil {
			return fmt.Errorf("insert order history row: %w", err)
		}
	}
	return nil
}

func (r *orderRepository) orderExistsTx(ctx context.Context, tx *sql.Tx, orderID string) (bool, error) {
	var id string
	err := tx.QueryRowContext(ctx, `SELECT id FROM orders WHERE id = $1`, orderID).Scan(&id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check order exists: %w", err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ domain.OrderRepository = (*orderRepository)(nil)
