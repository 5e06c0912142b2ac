package auction

import (
	"time"

	"github.com/google/uuid"

	"github.com/auctionhub/online-auction-backend/internal/domain/values"
)

// Product carries the auction state of a listed product. Bidding fields are
// mutated only by the transaction coordinator under a row lock; once IsSold
// is non-nil the product is immutable with respect to bidding.
type Product struct {
	ID       uuid.UUID `json:"id"`
	SellerID uuid.UUID `json:"seller_id"`
	Name     string    `json:"name"`

	StartingPrice values.Money  `json:"starting_price"`
	StepPrice     values.Money  `json:"step_price"`
	BuyNowPrice   *values.Money `json:"buy_now_price,omitempty"`

	CurrentPrice    values.Money  `json:"current_price"`
	HighestBidderID *uuid.UUID    `json:"highest_bidder_id,omitempty"`
	HighestMaxPrice *values.Money `json:"highest_max_price,omitempty"`

	EndAt    time.Time  `json:"end_at"`
	ClosedAt *time.Time `json:"closed_at,omitempty"`

	// IsSold is tri-state: nil = undecided, true = sold, false = cancelled.
	IsSold *bool `json:"is_sold,omitempty"`

	IsBuyNowPurchase   bool `json:"is_buy_now_purchase"`
	AutoExtend         bool `json:"auto_extend"`
	AllowUnratedBidder bool `json:"allow_unrated_bidder"`

	EndNotificationSent bool `json:"end_notification_sent"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// VisiblePrice returns the publicly displayed price: the current price, or
// the starting price when no bid has been placed yet.
func (p *Product) VisiblePrice() values.Money {
	if p.CurrentPrice.IsZero() && p.CurrentPrice.Currency() == "" {
		return p.StartingPrice
	}
	return p.CurrentPrice
}

// HasLeader reports whether a highest bidder with a proxy ceiling exists.
func (p *Product) HasLeader() bool {
	return p.HighestBidderID != nil && p.HighestMaxPrice != nil
}

// IsLeader reports whether the given bidder currently holds the lead.
func (p *Product) IsLeader(bidderID uuid.UUID) bool {
	return p.HighestBidderID != nil && *p.HighestBidderID == bidderID
}

// ProxyBid is one bidder's private ceiling on one product, upserted on every
// bid by that bidder and deleted only on rejection.
type ProxyBid struct {
	ProductID uuid.UUID    `json:"product_id"`
	BidderID  uuid.UUID    `json:"bidder_id"`
	MaxPrice  values.Money `json:"max_price"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// HistoryEntry is one row of the append-only public ledger of price
// movements. Written only when the visible price or leader changes.
type HistoryEntry struct {
	ID           uuid.UUID    `json:"id"`
	ProductID    uuid.UUID    `json:"product_id"`
	BidderID     uuid.UUID    `json:"bidder_id"`
	CurrentPrice values.Money `json:"current_price"`
	IsBuyNow     bool         `json:"is_buy_now"`
	CreatedAt    time.Time    `json:"created_at"`
}

// RejectedBidder bars one bidder from one product until explicitly
// un-rejected.
type RejectedBidder struct {
	ProductID uuid.UUID `json:"product_id"`
	BidderID  uuid.UUID `json:"bidder_id"`
	SellerID  uuid.UUID `json:"seller_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Status classifies the auction lifecycle of a product.
type Status int

const (
	// StatusActive accepts bids.
	StatusActive Status = iota
	// StatusPending has a winner awaiting payment; bidding is over.
	StatusPending
	// StatusSold completed through payment.
	StatusSold
	// StatusCancelled was cancelled by the seller or the system.
	StatusCancelled
	// StatusExpired ran out without any bidder.
	StatusExpired
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusPending:
		return "pending"
	case StatusSold:
		return "sold"
	case StatusCancelled:
		return "cancelled"
	case StatusExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// ClassifyStatus derives the auction status from the product's bidding
// fields. This is the single source of truth for lifecycle classification.
func ClassifyStatus(p *Product, now time.Time) Status {
	switch {
	case p.IsSold != nil && *p.IsSold:
		return StatusSold
	case p.IsSold != nil && !*p.IsSold:
		return StatusCancelled
	case (!p.EndAt.After(now) || p.ClosedAt != nil) && p.HighestBidderID != nil:
		return StatusPending
	case !p.EndAt.After(now) && p.HighestBidderID == nil:
		return StatusExpired
	case p.ClosedAt != nil:
		// Closed before the deadline with nobody bidding.
		return StatusCancelled
	default:
		return StatusActive
	}
}

// AcceptsBids reports whether the product is still open for bidding at the
// given instant: undecided, not closed, and before the end time.
func (p *Product) AcceptsBids(now time.Time) bool {
	return p.IsSold == nil && p.ClosedAt == nil && p.EndAt.After(now)
}
