package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type inventoryRepository struct {
	db *sql.DB
}

// NewInventoryRepository создаёт PostgreSQL-реализацию InventoryRepository.
func NewInventoryRepository(store *Store) domain.InventoryRepository {
	return &inventoryRepository{db: store.DB()}
}

func (r *inventoryRepository) GetLevel(key domain.StockKey) (domain.StockLevel, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	level := domain.StockLevel{Key: key}
	err := r.db.QueryRowContext(ctx, `
		SELECT available, reserved, low_stock_alerted, version, updated_at
		FROM stock_levels
		WHERE sku = $1 AND location = $2 AND channel = $3
	`, key.SKU, key.Location, string(key.Channel)).Scan(
		&level.Available, &level.Reserved, &level.LowStockAlerted, &level.Version, &level.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.StockLevel{}, domain.ErrStockNotFound
		}
		return domain.StockLevel{}, fmt.Errorf("select stock level: %w", err)
	}

	return level, nil
}

func (r *inventoryRepository) CreateLevel(level domain.StockLevel) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO stock_levels (
			sku, location, channel, available, reserved, low_stock_alerted, version, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`,
		level.Key.SKU, level.Key.Location, string(level.Key.Channel),
		level.Available, level.Reserved, level.LowStockAlerted,
		level.Version, time.Now().UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrStockVersionConflict
		}
		return fmt.Errorf("insert stock level: %w", err)
	}

	return nil
}

func (r *inventoryRepository) GetItem(sku string) (domain.InventoryItem, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var item domain.InventoryItem
	err := r.db.QueryRowContext(ctx, `
		SELECT sku, name, unit_cost_minor, reorder_point, reorder_qty, created_at, updated_at
		FROM inventory_items
		WHERE sku = $1
	`, sku).Scan(
		&item.SKU, &item.Name, &item.UnitCostMinor,
		&item.ReorderPoint, &item.ReorderQty, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.InventoryItem{}, domain.ErrStockNotFound
		}
		return domain.InventoryItem{}, fmt.Errorf("select inventory item: %w", err)
	}

	return item, nil
}

func (r *inventoryRepository) UpsertItem(item domain.InventoryItem) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO inventory_items (
			sku, name, unit_cost_minor, reorder_point, reorder_qty, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (sku) DO UPDATE
		SET name = EXCLUDED.name,
		    unit_cost_minor = EXCLUDED.unit_cost_minor,
		    reorder_point = EXCLUDED.reorder_point,
		    reorder_qty = EXCLUDED.reorder_qty,
		    updated_at = EXCLUDED.updated_at
	`,
		item.SKU, item.Name, item.UnitCostMinor,
		item.ReorderPoint, item.ReorderQty, item.CreatedAt, now,
	)
	if err != nil {
		return fmt.Errorf("upsert inventory item: %w", err)
	}

	return nil
}

// Apply сохраняет пачку уровней и транзакций журнала в одной SQL-транзакции.
// Каждый UPDATE защищён optimistic-проверкой версии: проигрыш любой партиции
// откатывает пачку целиком, парные движения transfer остаются неделимыми.
func (r *inventoryRepository) Apply(levels []domain.StockLevel, txs []domain.InventoryTransaction) error {
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

	now := time.Now().UTC()
	for _, level := range levels {
		var res sql.Result
		res, err = tx.ExecContext(ctx, `
			UPDATE stock_levels
			SET available = $1,
			    reserved = $2,
			    low_stock_alerted = $3,
			    version = version + 1,
			    updated_at = $4
			WHERE sku = $5 AND location = $6 AND channel = $7
			  AND version = $8
		`,
			level.Available, level.Reserved, level.LowStockAlerted, now,
			level.Key.SKU, level.Key.Location, string(level.Key.Channel),
			level.Version,
		)
		if err != nil {
			return fmt.Errorf("update stock level: %w", err)
		}

		var affected int64
		affected, err = res.RowsAffected()
		if err != nil {
			return fmt.Errorf("stock level rows affected: %w", err)
		}
		if affected == 0 {
			var exists bool
			exists, err = r.levelExistsTx(ctx, tx, level.Key)
			if err != nil {
				return err
			}
			if !exists {
				err = domain.ErrStockNotFound
				return err
			}
			err = domain.ErrStockVersionConflict
			return err
		}
	}

	for _, record := range txs {
		if record.ID == "" {
			record.ID = uuid.NewString()
		}
		if record.Occurred.IsZero() {
			record.Occurred = now
		}
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO inventory_transactions (
				id, sku, location, channel, tx_type, qty, order_id, actor, note, occurred_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`,
			record.ID, record.Key.SKU, record.Key.Location, string(record.Key.Channel),
			string(record.Type), record.Qty, record.OrderID, record.Actor, record.Note, record.Occurred,
		); err != nil {
			return fmt.Errorf("insert inventory transaction: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit inventory apply: %w", err)
	}

	return nil
}

func (r *inventoryRepository) ListTransactions(key domain.StockKey) ([]domain.InventoryTransaction, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, tx_type, qty, order_id, actor, note, occurred_at
		FROM inventory_transactions
		WHERE sku = $1 AND location = $2 AND channel = $3
		ORDER BY seq ASC
	`, key.SKU, key.Location, string(key.Channel))
	if err != nil {
		return nil, fmt.Errorf("list inventory transactions: %w", err)
	}
	defer rows.Close()

	result := make([]domain.InventoryTransaction, 0)
	for rows.Next() {
		record := domain.InventoryTransaction{Key: key}
		var txType string
		if err := rows.Scan(
			&record.ID, &txType, &record.Qty, &record.OrderID,
			&record.Actor, &record.Note, &record.Occurred,
		); err != nil {
			return nil, fmt.Errorf("scan inventory transaction: %w", err)
		}
		record.Type = domain.TransactionType(txType)
		result = append(result, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inventory transactions: %w", err)
	}

	return result, nil
}

// OrderReservation считает невыкупленный остаток резерва заказа по партиции:
// sum(reservation) - sum(release) - sum(sale).
func (r *inventoryRepository) OrderReservation(orderID string, key domain.StockKey) (int32, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var qty int32
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(
			CASE tx_type
				WHEN 'reservation' THEN qty
				WHEN 'release' THEN -qty
				WHEN 'sale' THEN -qty
				ELSE 0
			END
		), 0)
		FROM inventory_transactions
		WHERE order_id = $1
		  AND sku = $2 AND location = $3 AND channel = $4
	`, orderID, key.SKU, key.Location, string(key.Channel)).Scan(&qty)
	if err != nil {
		return 0, fmt.Errorf("sum order reservation: %w", err)
	}

	return qty, nil
}

func (r *inventoryRepository) levelExistsTx(ctx context.Context, tx *sql.Tx, key domain.StockKey) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx, `
		SELECT 1 FROM stock_levels
		WHERE sku = $1 AND location = $2 AND channel = $3
	`, key.SKU, key.Location, string(key.Channel)).Scan(&one)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check stock level exists: %w", err)
}

var _ domain.InventoryRepository = (*inventoryRepository)(nil)
