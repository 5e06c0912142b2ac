package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/auctionhub/online-auction-backend/internal/service/bidding"
)

// reviewRepository aggregates the review table into the rating standing the
// coordinator checks. Reviews are thumbs up/down; the point is the positive
// share of all received reviews.
type reviewRepository struct {
	pool *pgxpool.Pool
}

// NewReviewRepository creates the rating lookup used for bid eligibility.
func NewReviewRepository(pool *pgxpool.Pool) bidding.EligibilityChecker {
	return &reviewRepository{pool: pool}
}

func (r *reviewRepository) RatingOf(ctx context.Context, userID uuid.UUID) (bidding.Rating, error) {
	query := `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN is_positive THEN 1 ELSE 0 END)::float / NULLIF(COUNT(*), 0), 0)
		FROM reviews
		WHERE reviewee_id = $1`

	var total int64
	var point float64
	if err := r.pool.QueryRow(ctx, query, userID).Scan(&total, &point); err != nil {
		return bidding.Rating{}, fmt.Errorf("failed to aggregate reviews: %w", err)
	}

	return bidding.Rating{
		HasReviews: total > 0,
		Point:      point,
	}, nil
}
