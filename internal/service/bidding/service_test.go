package bidding

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/auctionhub/online-auction-backend/internal/domain/auction"
	"github.com/auctionhub/online-auction-backend/internal/domain/errors"
	"github.com/auctionhub/online-auction-backend/internal/domain/values"
)

// mockStore implements AuctionStore for testing.
type mockStore struct {
	mock.Mock
}

func (m *mockStore) LockProduct(ctx context.Context, productID uuid.UUID) (*auction.Product, error) {
	args := m.Called(ctx, productID)
	if p := args.Get(0); p != nil {
		return p.(*auction.Product), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) UpdateBidState(ctx context.Context, productID uuid.UUID, price values.Money, leaderID *uuid.UUID, leaderMax *values.Money) error {
	args := m.Called(ctx, productID, price, leaderID, leaderMax)
	return args.Error(0)
}

func (m *mockStore) CloseAuction(ctx context.Context, productID uuid.UUID, at time.Time, buyNowPurchase bool) error {
	args := m.Called(ctx, productID, at, buyNowPurchase)
	return args.Error(0)
}

func (m *mockStore) ExtendDeadline(ctx context.Context, productID uuid.UUID, endAt time.Time) error {
	args := m.Called(ctx, productID, endAt)
	return args.Error(0)
}

func (m *mockStore) InsertHistory(ctx context.Context, entry *auction.HistoryEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *mockStore) DeleteHistoryByBidder(ctx context.Context, productID, bidderID uuid.UUID) error {
	args := m.Called(ctx, productID, bidderID)
	return args.Error(0)
}

func (m *mockStore) LastHistory(ctx context.Context, productID uuid.UUID) (*auction.HistoryEntry, error) {
	args := m.Called(ctx, productID)
	if e := args.Get(0); e != nil {
		return e.(*auction.HistoryEntry), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) UpsertProxyBid(ctx context.Context, productID, bidderID uuid.UUID, maxPrice values.Money) error {
	args := m.Called(ctx, productID, bidderID, maxPrice)
	return args.Error(0)
}

func (m *mockStore) DeleteProxyBid(ctx context.Context, productID, bidderID uuid.UUID) error {
	args := m.Called(ctx, productID, bidderID)
	return args.Error(0)
}

func (m *mockStore) GetProxyBid(ctx context.Context, productID, bidderID uuid.UUID) (*auction.ProxyBid, error) {
	args := m.Called(ctx, productID, bidderID)
	if b := args.Get(0); b != nil {
		return b.(*auction.ProxyBid), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) ListProxyBids(ctx context.Context, productID uuid.UUID) ([]*auction.ProxyBid, error) {
	args := m.Called(ctx, productID)
	if b := args.Get(0); b != nil {
		return b.([]*auction.ProxyBid), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) IsRejected(ctx context.Context, productID, bidderID uuid.UUID) (bool, error) {
	args := m.Called(ctx, productID, bidderID)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) InsertRejection(ctx context.Context, productID, bidderID, sellerID uuid.UUID) error {
	args := m.Called(ctx, productID, bidderID, sellerID)
	return args.Error(0)
}

func (m *mockStore) DeleteRejection(ctx context.Context, productID, bidderID uuid.UUID) error {
	args := m.Called(ctx, productID, bidderID)
	return args.Error(0)
}

// stubTxManager hands the mock store straight to the callback; transaction
// semantics themselves are covered by the database package tests.
type stubTxManager struct {
	store AuctionStore
}

func (s *stubTxManager) InTx(ctx context.Context, fn func(ctx context.Context, store AuctionStore) error) error {
	return fn(ctx, s.store)
}

type stubReviews struct {
	rating Rating
	err    error
}

func (s *stubReviews) RatingOf(ctx context.Context, userID uuid.UUID) (Rating, error) {
	return s.rating, s.err
}

type stubSettings struct {
	policy auction.ExtensionPolicy
	err    error
}

func (s *stubSettings) AutoExtendPolicy(ctx context.Context) (auction.ExtensionPolicy, error) {
	return s.policy, s.err
}

type recordingDispatcher struct {
	bids       []*BidResult
	purchases  []*PurchaseResult
	rejections []*RejectionResult
}

func (d *recordingDispatcher) BidPlaced(r *BidResult)           { d.bids = append(d.bids, r) }
func (d *recordingDispatcher) ProductPurchased(r *PurchaseResult) {
	d.purchases = append(d.purchases, r)
}
func (d *recordingDispatcher) BidderRejected(r *RejectionResult) {
	d.rejections = append(d.rejections, r)
}

type fixture struct {
	svc      Service
	store    *mockStore
	reviews  *stubReviews
	settings *stubSettings
	dispatch *recordingDispatcher
}

func newFixture() *fixture {
	store := &mockStore{}
	reviews := &stubReviews{rating: Rating{HasReviews: true, Point: 4.5}}
	settings := &stubSettings{}
	dispatch := &recordingDispatcher{}
	svc := NewService(
		&stubTxManager{store: store},
		reviews,
		settings,
		dispatch,
		nil,
		zap.NewNop(),
		Config{MinRatingPoint: 0.8},
	)
	return &fixture{svc: svc, store: store, reviews: reviews, settings: settings, dispatch: dispatch}
}

func openProduct() *auction.Product {
	return &auction.Product{
		ID:            uuid.New(),
		SellerID:      uuid.New(),
		Name:          "vintage camera",
		StartingPrice: values.MustVND(100),
		StepPrice:     values.MustVND(10),
		CurrentPrice:  values.MustVND(100),
		EndAt:         time.Now().Add(24 * time.Hour),
	}
}

func withLeader(p *auction.Product, bidderID uuid.UUID, max values.Money) *auction.Product {
	p.HighestBidderID = &bidderID
	p.HighestMaxPrice = &max
	return p
}

func TestPlaceBid_FirstBid(t *testing.T) {
	f := newFixture()
	p := openProduct()
	bidder := uuid.New()

	f.store.On("LockProduct", mock.Anything, p.ID).Return(p, nil)
	f.store.On("IsRejected", mock.Anything, p.ID, bidder).Return(false, nil)
	f.store.On("UpdateBidState", mock.Anything, p.ID, values.MustVND(100), mock.Anything, mock.Anything).Return(nil)
	f.store.On("InsertHistory", mock.Anything, mock.MatchedBy(func(e *auction.HistoryEntry) bool {
		return e.BidderID == bidder && e.CurrentPrice.Equal(values.MustVND(100)) && !e.IsBuyNow
	})).Return(nil)
	f.store.On("UpsertProxyBid", mock.Anything, p.ID, bidder, values.MustVND(150)).Return(nil)

	result, err := f.svc.PlaceBid(context.Background(), p.ID, bidder, values.MustVND(150))
	require.NoError(t, err)

	assert.True(t, result.NewPrice.Equal(values.MustVND(100)))
	assert.Equal(t, bidder, result.NewLeader)
	assert.True(t, result.IsWinning())
	assert.False(t, result.Sold)
	assert.False(t, result.Extended)
	require.Len(t, f.dispatch.bids, 1)
	f.store.AssertExpectations(t)
}

func TestPlaceBid_OutbidsLeader(t *testing.T) {
	f := newFixture()
	incumbent := uuid.New()
	p := withLeader(openProduct(), incumbent, values.MustVND(150))
	p.CurrentPrice = values.MustVND(130)
	challenger := uuid.New()

	f.store.On("LockProduct", mock.Anything, p.ID).Return(p, nil)
	f.store.On("IsRejected", mock.Anything, p.ID, challenger).Return(false, nil)
	f.store.On("UpdateBidState", mock.Anything, p.ID, values.MustVND(160), mock.Anything, mock.Anything).Return(nil)
	f.store.On("InsertHistory", mock.Anything, mock.Anything).Return(nil)
	f.store.On("UpsertProxyBid", mock.Anything, p.ID, challenger, values.MustVND(200)).Return(nil)

	result, err := f.svc.PlaceBid(context.Background(), p.ID, challenger, values.MustVND(200))
	require.NoError(t, err)

	assert.True(t, result.NewPrice.Equal(values.MustVND(160)))
	assert.Equal(t, challenger, result.NewLeader)
	require.NotNil(t, result.PreviousLeader)
	assert.Equal(t, incumbent, *result.PreviousLeader)
	assert.True(t, result.PriceChanged)
	f.store.AssertExpectations(t)
}

func TestPlaceBid_LeaderRaisesCeiling(t *testing.T) {
	f := newFixture()
	leader := uuid.New()
	p := withLeader(openProduct(), leader, values.MustVND(150))
	p.CurrentPrice = values.MustVND(120)

	f.store.On("LockProduct", mock.Anything, p.ID).Return(p, nil)
	f.store.On("IsRejected", mock.Anything, p.ID, leader).Return(false, nil)
	f.store.On("UpdateBidState", mock.Anything, p.ID, values.MustVND(120), mock.Anything, mock.Anything).Return(nil)
	f.store.On("UpsertProxyBid", mock.Anything, p.ID, leader, values.MustVND(300)).Return(nil)

	result, err := f.svc.PlaceBid(context.Background(), p.ID, leader, values.MustVND(300))
	require.NoError(t, err)

	assert.False(t, result.PriceChanged)
	assert.Equal(t, leader, result.NewLeader)
	// No ledger entry when the visible price does not move.
	f.store.AssertNotCalled(t, "InsertHistory", mock.Anything, mock.Anything)
	f.store.AssertExpectations(t)
}

func TestPlaceBid_Preconditions(t *testing.T) {
	sold := true
	bidder := uuid.New()

	tests := []struct {
		name    string
		mutate  func(p *auction.Product, f *fixture)
		bid     int64
		wantErr *errors.AppError
	}{
		{
			name:    "already decided",
			mutate:  func(p *auction.Product, f *fixture) { p.IsSold = &sold },
			bid:     200,
			wantErr: errors.ErrAlreadyDecided,
		},
		{
			name:    "seller bids on own product",
			mutate:  func(p *auction.Product, f *fixture) { p.SellerID = bidder },
			bid:     200,
			wantErr: errors.ErrSelfBid,
		},
		{
			name: "unrated bidder not allowed",
			mutate: func(p *auction.Product, f *fixture) {
				f.reviews.rating = Rating{HasReviews: false}
			},
			bid:     200,
			wantErr: errors.ErrUnratedBidder,
		},
		{
			name: "rating below threshold",
			mutate: func(p *auction.Product, f *fixture) {
				f.reviews.rating = Rating{HasReviews: true, Point: 0.5}
			},
			bid:     200,
			wantErr: errors.ErrIneligibleBidder,
		},
		{
			name:    "auction ended",
			mutate:  func(p *auction.Product, f *fixture) { p.EndAt = time.Now().Add(-time.Minute) },
			bid:     200,
			wantErr: errors.ErrAuctionClosed,
		},
		{
			name: "auction closed early",
			mutate: func(p *auction.Product, f *fixture) {
				at := time.Now().Add(-time.Minute)
				p.ClosedAt = &at
			},
			bid:     200,
			wantErr: errors.ErrAuctionClosed,
		},
		{
			name:    "bid not above current price",
			mutate:  func(p *auction.Product, f *fixture) {},
			bid:     100,
			wantErr: errors.ErrBidTooLow,
		},
		{
			name:    "bid below minimum increment",
			mutate:  func(p *auction.Product, f *fixture) {},
			bid:     105,
			wantErr: errors.ErrBelowIncrement,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			p := openProduct()
			tt.mutate(p, f)

			f.store.On("LockProduct", mock.Anything, p.ID).Return(p, nil)
			f.store.On("IsRejected", mock.Anything, p.ID, bidder).Return(false, nil).Maybe()

			_, err := f.svc.PlaceBid(context.Background(), p.ID, bidder, values.MustVND(tt.bid))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			// Refusals leave no writes behind.
			f.store.AssertNotCalled(t, "UpdateBidState", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			f.store.AssertNotCalled(t, "UpsertProxyBid", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			assert.Empty(t, f.dispatch.bids)
		})
	}
}

func TestPlaceBid_RejectedBidder(t *testing.T) {
	f := newFixture()
	p := openProduct()
	bidder := uuid.New()

	f.store.On("LockProduct", mock.Anything, p.ID).Return(p, nil)
	f.store.On("IsRejected", mock.Anything, p.ID, bidder).Return(true, nil)

	_, err := f.svc.PlaceBid(context.Background(), p.ID, bidder, values.MustVND(200))
	assert.ErrorIs(t, err, errors.ErrBidderRejected)
	f.store.AssertNotCalled(t, "UpdateBidState", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPlaceBid_ProductNotFound(t *testing.T) {
	f := newFixture()
	id := uuid.New()

	f.store.On("LockProduct", mock.Anything, id).Return(nil, errors.ErrProductNotFound)

	_, err := f.svc.PlaceBid(context.Background(), id, uuid.New(), values.MustVND(200))
	assert.ErrorIs(t, err, errors.ErrProductNotFound)
}

func TestPlaceBid_AutoExtends(t *testing.T) {
	f := newFixture()
	p := openProduct()
	p.AutoExtend = true
	p.EndAt = time.Now().Add(3 * time.Minute)
	f.settings.policy = auction.ExtensionPolicy{
		Trigger:   5 * time.Minute,
		Extension: 10 * time.Minute,
	}
	bidder := uuid.New()
	wantEndAt := p.EndAt.Add(10 * time.Minute)

	f.store.On("LockProduct", mock.Anything, p.ID).Return(p, nil)
	f.store.On("IsRejected", mock.Anything, p.ID, bidder).Return(false, nil)
	f.store.On("UpdateBidState", mock.Anything, p.ID, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.store.On("ExtendDeadline", mock.Anything, p.ID, wantEndAt).Return(nil)
	f.store.On("InsertHistory", mock.Anything, mock.Anything).Return(nil)
	f.store.On("UpsertProxyBid", mock.Anything, p.ID, bidder, mock.Anything).Return(nil)

	result, err := f.svc.PlaceBid(context.Background(), p.ID, bidder, values.MustVND(200))
	require.NoError(t, err)

	assert.True(t, result.Extended)
	assert.Equal(t, wantEndAt, result.NewEndAt)
	f.store.AssertExpectations(t)
}

func TestPlaceBid_BuyNowClampClosesOverExtension(t *testing.T) {
	f := newFixture()
	p := openProduct()
	p.AutoExtend = true
	p.EndAt = time.Now().Add(2 * time.Minute)
	buyNow := values.MustVND(500)
	p.BuyNowPrice = &buyNow
	incumbent := uuid.New()
	withLeader(p, incumbent, values.MustVND(495))
	p.CurrentPrice = values.MustVND(480)
	f.settings.policy = auction.ExtensionPolicy{
		Trigger:   5 * time.Minute,
		Extension: 10 * time.Minute,
	}
	bidder := uuid.New()

	f.store.On("LockProduct", mock.Anything, p.ID).Return(p, nil)
	f.store.On("IsRejected", mock.Anything, p.ID, bidder).Return(false, nil)
	f.store.On("UpdateBidState", mock.Anything, p.ID, buyNow, mock.Anything, mock.Anything).Return(nil)
	f.store.On("CloseAuction", mock.Anything, p.ID, mock.Anything, false).Return(nil)
	f.store.On("InsertHistory", mock.Anything, mock.Anything).Return(nil)
	f.store.On("UpsertProxyBid", mock.Anything, p.ID, bidder, values.MustVND(520)).Return(nil)

	result, err := f.svc.PlaceBid(context.Background(), p.ID, bidder, values.MustVND(520))
	require.NoError(t, err)

	assert.True(t, result.Sold)
	assert.False(t, result.Extended)
	assert.True(t, result.NewPrice.Equal(buyNow))
	assert.Equal(t, bidder, result.NewLeader)
	// Sold closure wins; the deadline is never pushed out.
	f.store.AssertNotCalled(t, "ExtendDeadline", mock.Anything, mock.Anything, mock.Anything)
	f.store.AssertExpectations(t)
}

func TestPlaceBid_BuyNowPreemptedByIncumbentCeiling(t *testing.T) {
	f := newFixture()
	p := openProduct()
	buyNow := values.MustVND(500)
	p.BuyNowPrice = &buyNow
	incumbent := uuid.New()
	withLeader(p, incumbent, values.MustVND(600))
	p.CurrentPrice = values.MustVND(450)
	bidder := uuid.New()

	f.store.On("LockProduct", mock.Anything, p.ID).Return(p, nil)
	f.store.On("IsRejected", mock.Anything, p.ID, bidder).Return(false, nil)
	f.store.On("UpdateBidState", mock.Anything, p.ID, buyNow, mock.Anything, mock.Anything).Return(nil)
	f.store.On("CloseAuction", mock.Anything, p.ID, mock.Anything, false).Return(nil)
	f.store.On("InsertHistory", mock.Anything, mock.MatchedBy(func(e *auction.HistoryEntry) bool {
		return e.BidderID == incumbent && e.CurrentPrice.Equal(buyNow)
	})).Return(nil)
	// The loser's ceiling is still recorded in the ledger.
	f.store.On("UpsertProxyBid", mock.Anything, p.ID, bidder, values.MustVND(550)).Return(nil)

	result, err := f.svc.PlaceBid(context.Background(), p.ID, bidder, values.MustVND(550))
	require.NoError(t, err)

	assert.True(t, result.Sold)
	assert.Equal(t, incumbent, result.NewLeader)
	assert.False(t, result.IsWinning())
	f.store.AssertExpectations(t)
}
