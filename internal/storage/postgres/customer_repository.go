package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type customerRepository struct {
	db *sql.DB
}

// NewCustomerRepository создаёт PostgreSQL-реализацию CustomerStore.
func NewCustomerRepository(store *Store) *customerRepository {
	return &customerRepository{db: store.DB()}
}

// Seed добавляет или перезаписывает клиента; используется при инициализации.
func (r *customerRepository) Seed(customer domain.Customer) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if customer.Tier == "" {
		customer.Tier = domain.TierFor(customer.TotalSpentMinor)
	}
	if customer.SignedUpAt.IsZero() {
		customer.SignedUpAt = time.Now().UTC()
	}

	_, _ = r.db.ExecContext(ctx, `
		INSERT INTO customers (
			id, tier, loyalty_points, total_spent_minor, signed_up_at, version, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO UPDATE
		SET tier = EXCLUDED.tier,
		    loyalty_points = EXCLUDED.loyalty_points,
		    total_spent_minor = EXCLUDED.total_spent_minor,
		    signed_up_at = EXCLUDED.signed_up_at,
		    version = EXCLUDED.version,
		    updated_at = EXCLUDED.updated_at
	`,
		customer.ID, string(customer.Tier), customer.LoyaltyPoints,
		customer.TotalSpentMinor, customer.SignedUpAt, customer.Version, time.Now().UTC(),
	)
}

func (r *customerRepository) GetCustomer(id string) (domain.Customer, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var (
		customer domain.Customer
		tier     string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, tier, loyalty_points, total_spent_minor, signed_up_at, version, updated_at
		FROM customers
		WHERE id = $1
	`, id).Scan(
		&customer.ID, &tier, &customer.LoyaltyPoints,
		&customer.TotalSpentMinor, &customer.SignedUpAt, &customer.Version, &customer.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Customer{}, domain.ErrCustomerNotFound
		}
		return domain.Customer{}, fmt.Errorf("select customer: %w", err)
	}

	customer.Tier = domain.CustomerTier(tier)
	return customer, nil
}

func (r *customerRepository) UpdateCustomer(customer domain.Customer) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE customers
		SET tier = $1,
		    loyalty_points = $2,
		    total_spent_minor = $3,
		    version = version + 1,
		    updated_at = $4
		WHERE id = $5
		  AND version = $6
	`,
		string(customer.Tier), customer.LoyaltyPoints, customer.TotalSpentMinor,
		time.Now().UTC(), customer.ID, customer.Version,
	)
	if err != nil {
		return fmt.Errorf("update customer: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("customer rows affected: %w", err)
	}
	if affected == 0 {
		if _, getErr := r.GetCustomer(customer.ID); errors.Is(getErr, domain.ErrCustomerNotFound) {
			return domain.ErrCustomerNotFound
		}
		return domain.ErrCustomerVersionConflict
	}

	return nil
}

var _ domain.CustomerStore = (*customerRepository)(nil)
