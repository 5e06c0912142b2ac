package database

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/auctionhub/online-auction-backend/internal/domain/auction"
	"github.com/auctionhub/online-auction-backend/internal/domain/errors"
	"github.com/auctionhub/online-auction-backend/internal/domain/values"
	"github.com/auctionhub/online-auction-backend/internal/service/bidding"
)

// txManager adapts the connection pool's transaction helper to the
// coordinator's contract. Each transaction sees its own auctionStore bound
// to the open pgx.Tx.
type txManager struct {
	pool *ConnectionPool
}

// NewTxManager creates the coordinator's transaction runner.
func NewTxManager(pool *ConnectionPool) bidding.TxManager {
	return &txManager{pool: pool}
}

func (m *txManager) InTx(ctx context.Context, fn func(ctx context.Context, store bidding.AuctionStore) error) error {
	return m.pool.Transaction(ctx, func(tx pgx.Tx) error {
		return fn(ctx, &auctionStore{tx: tx})
	})
}

// auctionStore implements bidding.AuctionStore on one open transaction.
type auctionStore struct {
	tx pgx.Tx
}

const productColumns = `
	id, seller_id, name,
	starting_price, step_price, buy_now_price,
	current_price, highest_bidder_id, highest_max_price,
	end_at, closed_at, is_sold, is_buy_now_purchase,
	auto_extend, allow_unrated_bidder, end_notification_sent,
	created_at, updated_at`

func scanProduct(row pgx.Row) (*auction.Product, error) {
	var p auction.Product
	err := row.Scan(
		&p.ID, &p.SellerID, &p.Name,
		&p.StartingPrice, &p.StepPrice, &p.BuyNowPrice,
		&p.CurrentPrice, &p.HighestBidderID, &p.HighestMaxPrice,
		&p.EndAt, &p.ClosedAt, &p.IsSold, &p.IsBuyNowPurchase,
		&p.AutoExtend, &p.AllowUnratedBidder, &p.EndNotificationSent,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to scan product: %w", err)
	}
	return &p, nil
}

func (s *auctionStore) LockProduct(ctx context.Context, productID uuid.UUID) (*auction.Product, error) {
	query := `SELECT` + productColumns + `
		FROM products
		WHERE id = $1
		FOR UPDATE`
	return scanProduct(s.tx.QueryRow(ctx, query, productID))
}

func (s *auctionStore) UpdateBidState(ctx context.Context, productID uuid.UUID, price values.Money, leaderID *uuid.UUID, leaderMax *values.Money) error {
	query := `
		UPDATE products
		SET current_price = $2, highest_bidder_id = $3, highest_max_price = $4, updated_at = NOW()
		WHERE id = $1`
	if _, err := s.tx.Exec(ctx, query, productID, price, leaderID, leaderMax); err != nil {
		return fmt.Errorf("failed to update bid state: %w", err)
	}
	return nil
}

func (s *auctionStore) CloseAuction(ctx context.Context, productID uuid.UUID, at time.Time, buyNowPurchase bool) error {
	// Closure only stops the bidding. The sale tri-state stays NULL until
	// the order workflow records payment or cancellation, so a closed
	// auction with a winner classifies as pending.
	query := `
		UPDATE products
		SET end_at = $2, closed_at = $2, is_buy_now_purchase = $3, updated_at = NOW()
		WHERE id = $1`
	if _, err := s.tx.Exec(ctx, query, productID, at, buyNowPurchase); err != nil {
		return fmt.Errorf("failed to close auction: %w", err)
	}
	return nil
}

func (s *auctionStore) ExtendDeadline(ctx context.Context, productID uuid.UUID, endAt time.Time) error {
	query := `
		UPDATE products
		SET end_at = $2, updated_at = NOW()
		WHERE id = $1`
	if _, err := s.tx.Exec(ctx, query, productID, endAt); err != nil {
		return fmt.Errorf("failed to extend deadline: %w", err)
	}
	return nil
}

func (s *auctionStore) InsertHistory(ctx context.Context, entry *auction.HistoryEntry) error {
	query := `
		INSERT INTO bidding_history (id, product_id, bidder_id, current_price, is_buy_now, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	id := entry.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	if _, err := s.tx.Exec(ctx, query, id, entry.ProductID, entry.BidderID, entry.CurrentPrice, entry.IsBuyNow, createdAt); err != nil {
		return fmt.Errorf("failed to insert bid history: %w", err)
	}
	return nil
}

func (s *auctionStore) DeleteHistoryByBidder(ctx context.Context, productID, bidderID uuid.UUID) error {
	query := `DELETE FROM bidding_history WHERE product_id = $1 AND bidder_id = $2`
	if _, err := s.tx.Exec(ctx, query, productID, bidderID); err != nil {
		return fmt.Errorf("failed to delete bid history: %w", err)
	}
	return nil
}

func (s *auctionStore) LastHistory(ctx context.Context, productID uuid.UUID) (*auction.HistoryEntry, error) {
	query := `
		SELECT id, product_id, bidder_id, current_price, is_buy_now, created_at
		FROM bidding_history
		WHERE product_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1`
	var e auction.HistoryEntry
	err := s.tx.QueryRow(ctx, query, productID).Scan(
		&e.ID, &e.ProductID, &e.BidderID, &e.CurrentPrice, &e.IsBuyNow, &e.CreatedAt,
	)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load last history entry: %w", err)
	}
	return &e, nil
}

func (s *auctionStore) UpsertProxyBid(ctx context.Context, productID, bidderID uuid.UUID, maxPrice values.Money) error {
	query := `
		INSERT INTO auto_bidding (product_id, bidder_id, max_price, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (product_id, bidder_id)
		DO UPDATE SET max_price = EXCLUDED.max_price, updated_at = NOW()`
	if _, err := s.tx.Exec(ctx, query, productID, bidderID, maxPrice); err != nil {
		return fmt.Errorf("failed to upsert proxy bid: %w", err)
	}
	return nil
}

func (s *auctionStore) DeleteProxyBid(ctx context.Context, productID, bidderID uuid.UUID) error {
	query := `DELETE FROM auto_bidding WHERE product_id = $1 AND bidder_id = $2`
	if _, err := s.tx.Exec(ctx, query, productID, bidderID); err != nil {
		return fmt.Errorf("failed to delete proxy bid: %w", err)
	}
	return nil
}

func (s *auctionStore) GetProxyBid(ctx context.Context, productID, bidderID uuid.UUID) (*auction.ProxyBid, error) {
	query := `
		SELECT product_id, bidder_id, max_price, updated_at
		FROM auto_bidding
		WHERE product_id = $1 AND bidder_id = $2`
	var b auction.ProxyBid
	err := s.tx.QueryRow(ctx, query, productID, bidderID).Scan(
		&b.ProductID, &b.BidderID, &b.MaxPrice, &b.UpdatedAt,
	)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load proxy bid: %w", err)
	}
	return &b, nil
}

func (s *auctionStore) ListProxyBids(ctx context.Context, productID uuid.UUID) ([]*auction.ProxyBid, error) {
	query := `
		SELECT product_id, bidder_id, max_price, updated_at
		FROM auto_bidding
		WHERE product_id = $1
		ORDER BY max_price DESC, updated_at ASC`
	rows, err := s.tx.Query(ctx, query, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to list proxy bids: %w", err)
	}
	defer rows.Close()

	var bids []*auction.ProxyBid
	for rows.Next() {
		var b auction.ProxyBid
		if err := rows.Scan(&b.ProductID, &b.BidderID, &b.MaxPrice, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan proxy bid: %w", err)
		}
		bids = append(bids, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate proxy bids: %w", err)
	}
	return bids, nil
}

func (s *auctionStore) IsRejected(ctx context.Context, productID, bidderID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM rejected_bidders
			WHERE product_id = $1 AND bidder_id = $2
		)`
	var rejected bool
	if err := s.tx.QueryRow(ctx, query, productID, bidderID).Scan(&rejected); err != nil {
		return false, fmt.Errorf("failed to check rejection: %w", err)
	}
	return rejected, nil
}

func (s *auctionStore) InsertRejection(ctx context.Context, productID, bidderID, sellerID uuid.UUID) error {
	query := `
		INSERT INTO rejected_bidders (product_id, bidder_id, seller_id, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (product_id, bidder_id) DO NOTHING`
	if _, err := s.tx.Exec(ctx, query, productID, bidderID, sellerID); err != nil {
		return fmt.Errorf("failed to insert rejection: %w", err)
	}
	return nil
}

func (s *auctionStore) DeleteRejection(ctx context.Context, productID, bidderID uuid.UUID) error {
	query := `DELETE FROM rejected_bidders WHERE product_id = $1 AND bidder_id = $2`
	if _, err := s.tx.Exec(ctx, query, productID, bidderID); err != nil {
		return fmt.Errorf("failed to delete rejection: %w", err)
	}
	return nil
}
