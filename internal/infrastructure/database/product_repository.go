package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/auctionhub/online-auction-backend/internal/domain/auction"
)

// ProductRepository is the unlocked read path: status lookups and the
// auction-end sweep. All bidding mutations go through the transactional
// store instead.
type ProductRepository struct {
	pool *pgxpool.Pool
}

func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// GetByID loads one product without locking it.
func (r *ProductRepository) GetByID(ctx context.Context, productID uuid.UUID) (*auction.Product, error) {
	query := `SELECT` + productColumns + `
		FROM products
		WHERE id = $1`
	return scanProduct(r.pool.QueryRow(ctx, query, productID))
}

// ListNewlyEnded returns products whose auction has ended but whose end
// notifications have not gone out yet.
func (r *ProductRepository) ListNewlyEnded(ctx context.Context, limit int) ([]*auction.Product, error) {
	query := `SELECT` + productColumns + `
		FROM products
		WHERE end_at <= NOW()
		  AND end_notification_sent = FALSE
		ORDER BY end_at ASC
		LIMIT $1`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list ended auctions: %w", err)
	}
	defer rows.Close()

	var products []*auction.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ended auctions: %w", err)
	}
	return products, nil
}

// MarkEndNotificationSent records that the auction-end messages for this
// product have been handed to the dispatcher, and stamps closed_at for
// auctions that ran to their deadline without a buy-now closure.
func (r *ProductRepository) MarkEndNotificationSent(ctx context.Context, productID uuid.UUID) error {
	query := `
		UPDATE products
		SET end_notification_sent = TRUE,
		    closed_at = COALESCE(closed_at, end_at),
		    updated_at = NOW()
		WHERE id = $1`
	if _, err := r.pool.Exec(ctx, query, productID); err != nil {
		return fmt.Errorf("failed to mark end notification sent: %w", err)
	}
	return nil
}
