package rest

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/auctionhub/online-auction-backend/internal/domain/auction"
	"github.com/auctionhub/online-auction-backend/internal/domain/values"
	"github.com/auctionhub/online-auction-backend/internal/infrastructure/database"
	"github.com/auctionhub/online-auction-backend/internal/service/bidding"
)

// Handler carries the auction endpoints. Identity comes from the request
// body/query; authentication is the web layer's concern, not this
// service's.
type Handler struct {
	svc      bidding.Service
	products *database.ProductRepository
	pool     *database.ConnectionPool
	logger   *zap.Logger
}

type placeBidRequest struct {
	BidderID uuid.UUID `json:"bidder_id"`
	// MaxBid is a decimal string; binary floats would corrupt prices.
	MaxBid string `json:"max_bid"`
}

type buyNowRequest struct {
	BuyerID uuid.UUID `json:"buyer_id"`
}

type rejectRequest struct {
	BidderID uuid.UUID `json:"bidder_id"`
	SellerID uuid.UUID `json:"seller_id"`
}

type bidResponse struct {
	ProductID    uuid.UUID    `json:"product_id"`
	CurrentPrice values.Money `json:"current_price"`
	Leader       uuid.UUID    `json:"leader_id"`
	Winning      bool         `json:"winning"`
	PriceChanged bool         `json:"price_changed"`
	Sold         bool         `json:"sold"`
	Extended     bool         `json:"extended"`
	EndAt        time.Time    `json:"end_at"`
}

type purchaseResponse struct {
	ProductID   uuid.UUID    `json:"product_id"`
	Price       values.Money `json:"price"`
	PurchasedAt time.Time    `json:"purchased_at"`
}

type rejectionResponse struct {
	ProductID    uuid.UUID    `json:"product_id"`
	BidderID     uuid.UUID    `json:"bidder_id"`
	CurrentPrice values.Money `json:"current_price"`
	LeaderID     *uuid.UUID   `json:"leader_id,omitempty"`
}

type statusResponse struct {
	ProductID    uuid.UUID     `json:"product_id"`
	Status       string        `json:"status"`
	CurrentPrice values.Money  `json:"current_price"`
	LeaderID     *uuid.UUID    `json:"leader_id,omitempty"`
	BuyNowPrice  *values.Money `json:"buy_now_price,omitempty"`
	EndAt        time.Time     `json:"end_at"`
}

func (h *Handler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	productID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req placeBidRequest
	if !decodeBody(w, r, &req) {
		return
	}
	maxBid, err := values.NewMoneyFromString(req.MaxBid, values.VND)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Code:    "INVALID_AMOUNT",
			Message: "max_bid must be a decimal number",
		})
		return
	}

	result, err := h.svc.PlaceBid(r.Context(), productID, req.BidderID, maxBid)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, bidResponse{
		ProductID:    result.ProductID,
		CurrentPrice: result.NewPrice,
		Leader:       result.NewLeader,
		Winning:      result.IsWinning(),
		PriceChanged: result.PriceChanged,
		Sold:         result.Sold,
		Extended:     result.Extended,
		EndAt:        result.NewEndAt,
	})
}

func (h *Handler) BuyNow(w http.ResponseWriter, r *http.Request) {
	productID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req buyNowRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.svc.BuyNow(r.Context(), productID, req.BuyerID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, purchaseResponse{
		ProductID:   result.ProductID,
		Price:       result.Price,
		PurchasedAt: result.PurchasedAt,
	})
}

func (h *Handler) RejectBidder(w http.ResponseWriter, r *http.Request) {
	productID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req rejectRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.svc.RejectBidder(r.Context(), productID, req.BidderID, req.SellerID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rejectionResponse{
		ProductID:    result.ProductID,
		BidderID:     result.BidderID,
		CurrentPrice: result.NewPrice,
		LeaderID:     result.NewLeader,
	})
}

func (h *Handler) UnrejectBidder(w http.ResponseWriter, r *http.Request) {
	productID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	bidderID, ok := pathUUID(w, r, "bidderId")
	if !ok {
		return
	}
	sellerID, err := uuid.Parse(r.URL.Query().Get("seller_id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Code:    "INVALID_ID",
			Message: "seller_id query parameter must be a UUID",
		})
		return
	}

	if err := h.svc.UnrejectBidder(r.Context(), productID, bidderID, sellerID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetAuctionStatus(w http.ResponseWriter, r *http.Request) {
	productID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	p, err := h.products.GetByID(r.Context(), productID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		ProductID:    p.ID,
		Status:       auction.ClassifyStatus(p, time.Now()).String(),
		CurrentPrice: p.VisiblePrice(),
		LeaderID:     p.HighestBidderID,
		BuyNowPrice:  p.BuyNowPrice,
		EndAt:        p.EndAt,
	})
}

// Health reports process and database liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.pool != nil {
		if err := h.pool.Pool().Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "degraded",
				"reason": "database unreachable",
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Code:    "INVALID_ID",
			Message: name + " must be a UUID",
		})
		return uuid.Nil, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Code:    "INVALID_JSON",
			Message: "request body is not valid JSON",
		})
		return false
	}
	return true
}
