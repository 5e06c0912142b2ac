package bidding

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/auctionhub/online-auction-backend/internal/domain/auction"
	"github.com/auctionhub/online-auction-backend/internal/domain/errors"
)

// BuyNow purchases a product outright at its configured buy-now price. The
// proxy-bid ledger is deliberately left untouched: a direct purchase is not
// a standing ceiling, and deleting or upserting rows here could leave a
// stale higher ceiling contradicting the recorded winner.
func (s *service) BuyNow(ctx context.Context, productID, buyerID uuid.UUID) (*PurchaseResult, error) {
	var result *PurchaseResult

	err := s.tx.InTx(ctx, func(ctx context.Context, store AuctionStore) error {
		p, err := store.LockProduct(ctx, productID)
		if err != nil {
			return err
		}

		now := time.Now()

		if p.SellerID == buyerID {
			return errors.ErrSelfBid
		}
		if p.IsSold != nil {
			return errors.ErrAlreadyDecided
		}
		if p.ClosedAt != nil || !p.EndAt.After(now) {
			return errors.ErrAuctionClosed
		}
		if p.BuyNowPrice == nil {
			return errors.ErrBuyNowUnavailable
		}
		rejected, err := store.IsRejected(ctx, productID, buyerID)
		if err != nil {
			return err
		}
		if rejected {
			return errors.ErrBidderRejected
		}
		if err := s.checkEligibility(ctx, p, buyerID); err != nil {
			return err
		}

		price := *p.BuyNowPrice

		if err := store.UpdateBidState(ctx, productID, price, &buyerID, &price); err != nil {
			return err
		}
		if err := store.CloseAuction(ctx, productID, now, true); err != nil {
			return err
		}
		entry := &auction.HistoryEntry{
			ProductID:    productID,
			BidderID:     buyerID,
			CurrentPrice: price,
			IsBuyNow:     true,
			CreatedAt:    now,
		}
		if err := store.InsertHistory(ctx, entry); err != nil {
			return err
		}

		result = &PurchaseResult{
			ProductID:      productID,
			ProductName:    p.Name,
			SellerID:       p.SellerID,
			BuyerID:        buyerID,
			Price:          price,
			PreviousLeader: p.HighestBidderID,
			PurchasedAt:    now,
		}
		return nil
	})
	if err != nil {
		s.recordRefusal(ctx, err)
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordBuyNow(ctx)
	}
	s.logger.Info("buy now purchase",
		zap.String("product_id", productID.String()),
		zap.String("buyer_id", buyerID.String()),
		zap.String("price", result.Price.String()),
	)
	if s.dispatch != nil {
		s.dispatch.ProductPurchased(result)
	}
	return result, nil
}
