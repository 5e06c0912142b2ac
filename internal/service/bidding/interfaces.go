package bidding

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/auctionhub/online-auction-backend/internal/domain/auction"
	"github.com/auctionhub/online-auction-backend/internal/domain/values"
)

// Service defines the auction coordinator interface. Every operation runs as
// one database transaction holding an exclusive row lock on the product, so
// all mutations against one product are serialized while different products
// proceed concurrently.
type Service interface {
	// PlaceBid places a proxy bid on a product
	PlaceBid(ctx context.Context, productID, bidderID uuid.UUID, maxBid values.Money) (*BidResult, error)
	// BuyNow purchases a product outright at its buy-now price
	BuyNow(ctx context.Context, productID, buyerID uuid.UUID) (*PurchaseResult, error)
	// RejectBidder bars a bidder from a product and re-derives auction state
	RejectBidder(ctx context.Context, productID, bidderID, sellerID uuid.UUID) (*RejectionResult, error)
	// UnrejectBidder lifts a rejection; the bidder must re-bid from scratch
	UnrejectBidder(ctx context.Context, productID, bidderID, sellerID uuid.UUID) error
}

// TxManager runs a function inside one database transaction. The store
// passed to fn is only valid for the duration of the call; returning an
// error rolls the whole transaction back.
type TxManager interface {
	InTx(ctx context.Context, fn func(ctx context.Context, store AuctionStore) error) error
}

// AuctionStore is the durable auction state contract: product auction
// fields, the proxy-bid ledger, the append-only bid history, and the
// rejected-bidder set.
type AuctionStore interface {
	// LockProduct loads a product under an exclusive row lock
	LockProduct(ctx context.Context, productID uuid.UUID) (*auction.Product, error)
	// UpdateBidState writes price, leader, and leader ceiling
	UpdateBidState(ctx context.Context, productID uuid.UUID, price values.Money, leaderID *uuid.UUID, leaderMax *values.Money) error
	// CloseAuction stamps end and closure, ending all bidding
	CloseAuction(ctx context.Context, productID uuid.UUID, at time.Time, buyNowPurchase bool) error
	// ExtendDeadline moves the auction end time out
	ExtendDeadline(ctx context.Context, productID uuid.UUID, endAt time.Time) error

	// InsertHistory appends one public ledger entry
	InsertHistory(ctx context.Context, entry *auction.HistoryEntry) error
	// DeleteHistoryByBidder purges a bidder's ledger entries on a product
	DeleteHistoryByBidder(ctx context.Context, productID, bidderID uuid.UUID) error
	// LastHistory returns the most recent ledger entry, or nil
	LastHistory(ctx context.Context, productID uuid.UUID) (*auction.HistoryEntry, error)

	// UpsertProxyBid records a bidder's current ceiling
	UpsertProxyBid(ctx context.Context, productID, bidderID uuid.UUID, maxPrice values.Money) error
	// DeleteProxyBid removes a bidder's ceiling
	DeleteProxyBid(ctx context.Context, productID, bidderID uuid.UUID) error
	// GetProxyBid returns one bidder's ceiling, or nil
	GetProxyBid(ctx context.Context, productID, bidderID uuid.UUID) (*auction.ProxyBid, error)
	// ListProxyBids returns all ceilings ordered by max price descending
	ListProxyBids(ctx context.Context, productID uuid.UUID) ([]*auction.ProxyBid, error)

	// IsRejected reports whether the bidder is barred from the product
	IsRejected(ctx context.Context, productID, bidderID uuid.UUID) (bool, error)
	// InsertRejection records a rejection; duplicates are a no-op
	InsertRejection(ctx context.Context, productID, bidderID, sellerID uuid.UUID) error
	// DeleteRejection lifts a rejection
	DeleteRejection(ctx context.Context, productID, bidderID uuid.UUID) error
}

// Rating summarizes a user's review standing.
type Rating struct {
	HasReviews bool
	Point      float64
}

// EligibilityChecker exposes the review subsystem to the coordinator.
type EligibilityChecker interface {
	// RatingOf returns the rating standing of a user
	RatingOf(ctx context.Context, userID uuid.UUID) (Rating, error)
}

// SettingsProvider supplies business-configured auction policy values.
type SettingsProvider interface {
	// AutoExtendPolicy returns the configured trigger/extension windows
	AutoExtendPolicy(ctx context.Context) (auction.ExtensionPolicy, error)
}

// Dispatcher receives result summaries strictly after commit. Implementations
// must not block the caller and must swallow their own failures; the
// committed auction state is never affected by notification problems.
type Dispatcher interface {
	BidPlaced(result *BidResult)
	ProductPurchased(result *PurchaseResult)
	BidderRejected(result *RejectionResult)
}

// MetricsCollector records auction operation metrics.
type MetricsCollector interface {
	RecordBidPlaced(ctx context.Context, sold, extended bool)
	RecordBidRefused(ctx context.Context, code string)
	RecordBuyNow(ctx context.Context)
	RecordBidderRejection(ctx context.Context)
}

// BidResult summarizes one committed bid for the caller and the notifier.
type BidResult struct {
	ProductID   uuid.UUID
	ProductName string
	SellerID    uuid.UUID

	BidderID uuid.UUID
	MaxBid   values.Money

	NewPrice  values.Money
	NewLeader uuid.UUID

	PreviousPrice  values.Money
	PreviousLeader *uuid.UUID

	PriceChanged bool
	Sold         bool

	Extended bool
	NewEndAt time.Time
}

// IsWinning reports whether the submitting bidder holds the lead.
func (r *BidResult) IsWinning() bool {
	return r.NewLeader == r.BidderID
}

// PurchaseResult summarizes a committed buy-now purchase.
type PurchaseResult struct {
	ProductID   uuid.UUID
	ProductName string
	SellerID    uuid.UUID

	BuyerID uuid.UUID
	Price   values.Money

	PreviousLeader *uuid.UUID
	PurchasedAt    time.Time
}

// RejectionResult summarizes a committed bidder rejection, including the
// re-derived auction state.
type RejectionResult struct {
	ProductID   uuid.UUID
	ProductName string
	SellerID    uuid.UUID

	BidderID uuid.UUID

	NewPrice  values.Money
	NewLeader *uuid.UUID

	PreviousPrice  values.Money
	PreviousLeader *uuid.UUID
}
