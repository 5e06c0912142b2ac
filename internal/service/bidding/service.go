package bidding

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/auctionhub/online-auction-backend/internal/domain/auction"
	"github.com/auctionhub/online-auction-backend/internal/domain/errors"
	"github.com/auctionhub/online-auction-backend/internal/domain/values"
)

const defaultMinRatingPoint = 0.8

// Config carries the business policy knobs of the coordinator.
type Config struct {
	// MinRatingPoint is the rating a bidder must strictly exceed to
	// participate. Zero means the default threshold.
	MinRatingPoint float64
}

type service struct {
	tx       TxManager
	reviews  EligibilityChecker
	settings SettingsProvider
	dispatch Dispatcher
	metrics  MetricsCollector
	logger   *zap.Logger
	cfg      Config
}

// NewService creates the auction transaction coordinator.
func NewService(
	tx TxManager,
	reviews EligibilityChecker,
	settings SettingsProvider,
	dispatch Dispatcher,
	metrics MetricsCollector,
	logger *zap.Logger,
	cfg Config,
) Service {
	if cfg.MinRatingPoint <= 0 {
		cfg.MinRatingPoint = defaultMinRatingPoint
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &service{
		tx:       tx,
		reviews:  reviews,
		settings: settings,
		dispatch: dispatch,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg,
	}
}

// PlaceBid places a proxy bid. All checks and writes happen inside one
// transaction under the product row lock; the dispatcher only sees the
// result after commit.
func (s *service) PlaceBid(ctx context.Context, productID, bidderID uuid.UUID, maxBid values.Money) (*BidResult, error) {
	var result *BidResult

	err := s.tx.InTx(ctx, func(ctx context.Context, store AuctionStore) error {
		p, err := store.LockProduct(ctx, productID)
		if err != nil {
			return err
		}

		now := time.Now()

		if err := s.checkBidPreconditions(ctx, store, p, bidderID, now); err != nil {
			return err
		}

		// The effective end time after extension is computed locally and
		// carried forward; the loaded product is never patched in place.
		effectiveEndAt, extended, err := s.applyExtension(ctx, p, now)
		if err != nil {
			return err
		}

		visible := p.VisiblePrice()
		if !maxBid.GreaterThan(visible) {
			return errors.ErrBidTooLow.WithDetails(map[string]interface{}{
				"current_price": visible,
				"max_bid":       maxBid,
			})
		}
		if maxBid.LessThan(visible.Add(p.StepPrice)) {
			return errors.ErrBelowIncrement.WithDetails(map[string]interface{}{
				"minimum_bid": visible.Add(p.StepPrice),
				"max_bid":     maxBid,
			})
		}

		out := auction.ResolveProxyBid(p, bidderID, maxBid)

		if err := store.UpdateBidState(ctx, productID, out.CurrentPrice, &out.HighestBidderID, &out.HighestMaxPrice); err != nil {
			return err
		}
		if out.Sold {
			// Immediate closure supersedes any extension earned this call.
			if err := store.CloseAuction(ctx, productID, now, false); err != nil {
				return err
			}
		} else if extended {
			if err := store.ExtendDeadline(ctx, productID, effectiveEndAt); err != nil {
				return err
			}
		}
		if out.WriteHistory {
			entry := &auction.HistoryEntry{
				ProductID:    productID,
				BidderID:     out.HighestBidderID,
				CurrentPrice: out.CurrentPrice,
				CreatedAt:    now,
			}
			if err := store.InsertHistory(ctx, entry); err != nil {
				return err
			}
		}
		// The submitter's ceiling is always recorded, even when someone
		// else ends up winning via buy-now.
		if err := store.UpsertProxyBid(ctx, productID, bidderID, maxBid); err != nil {
			return err
		}

		result = &BidResult{
			ProductID:      productID,
			ProductName:    p.Name,
			SellerID:       p.SellerID,
			BidderID:       bidderID,
			MaxBid:         maxBid,
			NewPrice:       out.CurrentPrice,
			NewLeader:      out.HighestBidderID,
			PreviousPrice:  visible,
			PreviousLeader: p.HighestBidderID,
			PriceChanged:   !out.CurrentPrice.Equal(visible),
			Sold:           out.Sold,
			Extended:       extended && !out.Sold,
			NewEndAt:       effectiveEndAt,
		}
		if out.Sold {
			result.NewEndAt = now
		}
		return nil
	})
	if err != nil {
		s.recordRefusal(ctx, err)
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordBidPlaced(ctx, result.Sold, result.Extended)
	}
	s.logger.Info("bid placed",
		zap.String("product_id", productID.String()),
		zap.String("bidder_id", bidderID.String()),
		zap.String("new_price", result.NewPrice.String()),
		zap.Bool("sold", result.Sold),
		zap.Bool("extended", result.Extended),
	)
	if s.dispatch != nil {
		s.dispatch.BidPlaced(result)
	}
	return result, nil
}

// checkBidPreconditions enforces the bid gate in its fixed order. The first
// failure aborts the transaction with the specific refusal reason.
func (s *service) checkBidPreconditions(ctx context.Context, store AuctionStore, p *auction.Product, bidderID uuid.UUID, now time.Time) error {
	if p.IsSold != nil {
		return errors.ErrAlreadyDecided
	}
	if p.SellerID == bidderID {
		return errors.ErrSelfBid
	}
	rejected, err := store.IsRejected(ctx, p.ID, bidderID)
	if err != nil {
		return err
	}
	if rejected {
		return errors.ErrBidderRejected
	}
	if err := s.checkEligibility(ctx, p, bidderID); err != nil {
		return err
	}
	if p.ClosedAt != nil || !p.EndAt.After(now) {
		return errors.ErrAuctionClosed
	}
	return nil
}

// checkEligibility applies the rating policy: unrated bidders need the
// product's opt-in flag, rated bidders must clear the configured threshold.
func (s *service) checkEligibility(ctx context.Context, p *auction.Product, bidderID uuid.UUID) error {
	rating, err := s.reviews.RatingOf(ctx, bidderID)
	if err != nil {
		return errors.Wrap(err, "rating lookup failed")
	}
	if !rating.HasReviews {
		if !p.AllowUnratedBidder {
			return errors.ErrUnratedBidder
		}
		return nil
	}
	if rating.Point <= 0 || rating.Point <= s.cfg.MinRatingPoint {
		return errors.ErrIneligibleBidder
	}
	return nil
}

// applyExtension returns the effective end time for the rest of this
// operation. The product row itself stays untouched until the final write.
func (s *service) applyExtension(ctx context.Context, p *auction.Product, now time.Time) (time.Time, bool, error) {
	if !p.AutoExtend {
		return p.EndAt, false, nil
	}
	policy, err := s.settings.AutoExtendPolicy(ctx)
	if err != nil {
		return time.Time{}, false, errors.Wrap(err, "extension policy lookup failed")
	}
	endAt, extended := policy.Extend(p.EndAt, now)
	return endAt, extended, nil
}

func (s *service) recordRefusal(ctx context.Context, err error) {
	if s.metrics == nil {
		return
	}
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		s.metrics.RecordBidRefused(ctx, appErr.Code)
	}
}
