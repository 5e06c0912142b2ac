package auction

import (
	"github.com/google/uuid"

	"github.com/auctionhub/online-auction-backend/internal/domain/values"
)

// Outcome is the result of resolving one proxy bid against the current
// auction state. It is a pure value; persisting it is the coordinator's job.
type Outcome struct {
	CurrentPrice    values.Money
	HighestBidderID uuid.UUID
	HighestMaxPrice values.Money

	// WriteHistory is false only when the leading bidder raises their own
	// ceiling: the visible price does not move, so the public ledger stays
	// untouched.
	WriteHistory bool

	// Sold is set when the buy-now price was reached or pre-empted.
	Sold bool
}

// ResolveProxyBid computes the new authoritative auction state from the
// current product state and a new proxy bid. English auction with proxy
// bidding: the visible price is set by the second-highest ceiling plus the
// step, never above the winner's own ceiling.
//
// The coordinator must have validated the bid amount against the visible
// price before calling; the resolver assumes maxBid beats the visible price.
func ResolveProxyBid(p *Product, bidderID uuid.UUID, maxBid values.Money) Outcome {
	// A previously submitted ceiling from another bidder may already cover
	// the buy-now price; in that case the auction resolves in their favor
	// no matter what the new bid is.
	if p.BuyNowPrice != nil && p.HasLeader() && !p.IsLeader(bidderID) {
		if p.HighestMaxPrice.GreaterOrEqual(*p.BuyNowPrice) {
			return Outcome{
				CurrentPrice:    *p.BuyNowPrice,
				HighestBidderID: *p.HighestBidderID,
				HighestMaxPrice: *p.HighestMaxPrice,
				WriteHistory:    true,
				Sold:            true,
			}
		}
	}

	var out Outcome
	out.WriteHistory = true

	switch {
	case p.IsLeader(bidderID):
		// The leader raises their own ceiling. The visible price stays put
		// and nothing appears in the public ledger.
		out.CurrentPrice = p.VisiblePrice()
		out.HighestBidderID = bidderID
		out.HighestMaxPrice = maxBid
		out.WriteHistory = false

	case !p.HasLeader():
		// First bid opens at the starting price.
		out.CurrentPrice = p.StartingPrice
		out.HighestBidderID = bidderID
		out.HighestMaxPrice = maxBid

	default:
		leaderMax := *p.HighestMaxPrice

		switch maxBid.Compare(leaderMax) {
		case -1:
			// The incumbent's ceiling wins; the challenger's bid becomes
			// the new visible price.
			out.CurrentPrice = maxBid
			out.HighestBidderID = *p.HighestBidderID
			out.HighestMaxPrice = leaderMax
		case 0:
			// Tie goes to the incumbent.
			out.CurrentPrice = maxBid
			out.HighestBidderID = *p.HighestBidderID
			out.HighestMaxPrice = leaderMax
		default:
			// The challenger takes the lead one step above the old ceiling,
			// capped at their own ceiling.
			out.CurrentPrice = leaderMax.Add(p.StepPrice).Min(maxBid)
			out.HighestBidderID = bidderID
			out.HighestMaxPrice = maxBid
		}
	}

	// Reaching the buy-now price closes the auction at exactly that price.
	if p.BuyNowPrice != nil && out.CurrentPrice.GreaterOrEqual(*p.BuyNowPrice) {
		out.CurrentPrice = *p.BuyNowPrice
		out.Sold = true
	}

	return out
}
