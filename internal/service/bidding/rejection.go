package bidding

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/auctionhub/online-auction-backend/internal/domain/auction"
	"github.com/auctionhub/online-auction-backend/internal/domain/errors"
	"github.com/auctionhub/online-auction-backend/internal/domain/values"
)

// RejectBidder bars a bidder from one product and re-derives the auction
// state from the surviving proxy bids. The bidder's history rows and proxy
// ceiling are purged first; the recalculation then runs unconditionally, so
// a rejected bidder who set the second price can never leave a stale
// visible price behind.
func (s *service) RejectBidder(ctx context.Context, productID, bidderID, sellerID uuid.UUID) (*RejectionResult, error) {
	var result *RejectionResult

	err := s.tx.InTx(ctx, func(ctx context.Context, store AuctionStore) error {
		p, err := store.LockProduct(ctx, productID)
		if err != nil {
			return err
		}

		now := time.Now()

		if p.SellerID != sellerID {
			return errors.ErrNotSeller
		}
		if p.IsSold != nil {
			return errors.ErrAlreadyDecided
		}
		if !p.AcceptsBids(now) {
			return errors.ErrAuctionClosed
		}
		target, err := store.GetProxyBid(ctx, productID, bidderID)
		if err != nil {
			return err
		}
		if target == nil {
			return errors.ErrNoProxyBid
		}

		// Duplicate rejections are absorbed by the store, not refused.
		if err := store.InsertRejection(ctx, productID, bidderID, sellerID); err != nil {
			return err
		}
		if err := store.DeleteHistoryByBidder(ctx, productID, bidderID); err != nil {
			return err
		}
		if err := store.DeleteProxyBid(ctx, productID, bidderID); err != nil {
			return err
		}

		newPrice, newLeader, err := s.recalculate(ctx, store, p, now)
		if err != nil {
			return err
		}

		result = &RejectionResult{
			ProductID:      productID,
			ProductName:    p.Name,
			SellerID:       p.SellerID,
			BidderID:       bidderID,
			NewPrice:       newPrice,
			NewLeader:      newLeader,
			PreviousPrice:  p.VisiblePrice(),
			PreviousLeader: p.HighestBidderID,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordBidderRejection(ctx)
	}
	s.logger.Info("bidder rejected",
		zap.String("product_id", productID.String()),
		zap.String("bidder_id", bidderID.String()),
		zap.String("new_price", result.NewPrice.String()),
	)
	if s.dispatch != nil {
		s.dispatch.BidderRejected(result)
	}
	return result, nil
}

// recalculate re-derives price and leader from the remaining proxy bids,
// ordered by ceiling descending, and writes the product row plus any ledger
// entry the change warrants.
func (s *service) recalculate(ctx context.Context, store AuctionStore, p *auction.Product, now time.Time) (values.Money, *uuid.UUID, error) {
	remaining, err := store.ListProxyBids(ctx, p.ID)
	if err != nil {
		return values.Money{}, nil, err
	}

	switch len(remaining) {
	case 0:
		// Nobody left: back to the opening state.
		if err := store.UpdateBidState(ctx, p.ID, p.StartingPrice, nil, nil); err != nil {
			return values.Money{}, nil, err
		}
		return p.StartingPrice, nil, nil

	case 1:
		// A single survivor leads at the starting price; there is no second
		// ceiling to bid the visible price up.
		sole := remaining[0]
		if err := store.UpdateBidState(ctx, p.ID, p.StartingPrice, &sole.BidderID, &sole.MaxPrice); err != nil {
			return values.Money{}, nil, err
		}
		changed := !p.IsLeader(sole.BidderID) || !p.VisiblePrice().Equal(p.StartingPrice)
		if changed {
			entry := &auction.HistoryEntry{
				ProductID:    p.ID,
				BidderID:     sole.BidderID,
				CurrentPrice: p.StartingPrice,
				CreatedAt:    now,
			}
			if err := store.InsertHistory(ctx, entry); err != nil {
				return values.Money{}, nil, err
			}
		}
		return p.StartingPrice, &sole.BidderID, nil

	default:
		top, second := remaining[0], remaining[1]
		price := second.MaxPrice.Add(p.StepPrice).Min(top.MaxPrice)
		if err := store.UpdateBidState(ctx, p.ID, price, &top.BidderID, &top.MaxPrice); err != nil {
			return values.Money{}, nil, err
		}
		last, err := store.LastHistory(ctx, p.ID)
		if err != nil {
			return values.Money{}, nil, err
		}
		if last == nil || !last.CurrentPrice.Equal(price) || last.BidderID != top.BidderID {
			entry := &auction.HistoryEntry{
				ProductID:    p.ID,
				BidderID:     top.BidderID,
				CurrentPrice: price,
				CreatedAt:    now,
			}
			if err := store.InsertHistory(ctx, entry); err != nil {
				return values.Money{}, nil, err
			}
		}
		return price, &top.BidderID, nil
	}
}

// UnrejectBidder lifts a rejection. No ledger recalculation happens; the
// bidder starts from scratch with a fresh bid.
func (s *service) UnrejectBidder(ctx context.Context, productID, bidderID, sellerID uuid.UUID) error {
	err := s.tx.InTx(ctx, func(ctx context.Context, store AuctionStore) error {
		p, err := store.LockProduct(ctx, productID)
		if err != nil {
			return err
		}

		now := time.Now()

		if p.SellerID != sellerID {
			return errors.ErrNotSeller
		}
		if p.IsSold != nil {
			return errors.ErrAlreadyDecided
		}
		if !p.AcceptsBids(now) {
			return errors.ErrAuctionClosed
		}
		return store.DeleteRejection(ctx, productID, bidderID)
	})
	if err != nil {
		return err
	}

	s.logger.Info("bidder unrejected",
		zap.String("product_id", productID.String()),
		zap.String("bidder_id", bidderID.String()),
	)
	return nil
}
