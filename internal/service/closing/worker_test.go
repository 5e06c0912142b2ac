package closing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/auctionhub/online-auction-backend/internal/domain/auction"
	"github.com/auctionhub/online-auction-backend/internal/domain/values"
)

type fakeSource struct {
	products []*auction.Product
	marked   []uuid.UUID
	listErr  error
	markErr  error
}

func (f *fakeSource) ListNewlyEnded(ctx context.Context, limit int) ([]*auction.Product, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	if limit < len(f.products) {
		return f.products[:limit], nil
	}
	return f.products, nil
}

func (f *fakeSource) MarkEndNotificationSent(ctx context.Context, productID uuid.UUID) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.marked = append(f.marked, productID)
	return nil
}

type fakeNotifier struct {
	ended    []*auction.Product
	capacity int
}

func (f *fakeNotifier) AuctionEnded(p *auction.Product) bool {
	if f.capacity > 0 && len(f.ended) >= f.capacity {
		return false
	}
	f.ended = append(f.ended, p)
	return true
}

func endedProduct(withWinner bool) *auction.Product {
	p := &auction.Product{
		ID:            uuid.New(),
		SellerID:      uuid.New(),
		Name:          "old clock",
		StartingPrice: values.MustVND(100),
		StepPrice:     values.MustVND(10),
		CurrentPrice:  values.MustVND(250),
		EndAt:         time.Now().Add(-time.Minute),
	}
	if withWinner {
		winner := uuid.New()
		max := values.MustVND(300)
		p.HighestBidderID = &winner
		p.HighestMaxPrice = &max
	}
	return p
}

func TestWorker_SweepNotifiesAndMarks(t *testing.T) {
	source := &fakeSource{products: []*auction.Product{
		endedProduct(true),
		endedProduct(false),
	}}
	notifier := &fakeNotifier{}
	w := NewWorker(source, notifier, 100, zap.NewNop())

	require.NoError(t, w.Sweep(context.Background()))

	assert.Len(t, notifier.ended, 2)
	assert.Len(t, source.marked, 2)
	assert.Equal(t, source.products[0].ID, source.marked[0])
}

func TestWorker_SweepRespectsBatchSize(t *testing.T) {
	source := &fakeSource{products: []*auction.Product{
		endedProduct(true),
		endedProduct(true),
		endedProduct(false),
	}}
	notifier := &fakeNotifier{}
	w := NewWorker(source, notifier, 2, zap.NewNop())

	require.NoError(t, w.Sweep(context.Background()))
	assert.Len(t, notifier.ended, 2)
}

func TestWorker_SweepPropagatesListError(t *testing.T) {
	source := &fakeSource{listErr: errors.New("db down")}
	w := NewWorker(source, &fakeNotifier{}, 100, zap.NewNop())

	assert.Error(t, w.Sweep(context.Background()))
}

func TestWorker_DroppedNotificationStaysUnmarked(t *testing.T) {
	products := []*auction.Product{
		endedProduct(true),
		endedProduct(true),
		endedProduct(false),
	}
	source := &fakeSource{products: products}
	// The notifier only has room for one event.
	notifier := &fakeNotifier{capacity: 1}
	w := NewWorker(source, notifier, 100, zap.NewNop())

	require.NoError(t, w.Sweep(context.Background()))

	// Only the accepted auction is marked sent; the rest come back on the
	// next sweep instead of losing their notification.
	require.Len(t, source.marked, 1)
	assert.Equal(t, products[0].ID, source.marked[0])

	notifier.capacity = 3
	source.products = products[1:]
	require.NoError(t, w.Sweep(context.Background()))
	assert.Len(t, source.marked, 3)
}

func TestWorker_MarkFailureDoesNotStopBatch(t *testing.T) {
	source := &fakeSource{
		products: []*auction.Product{endedProduct(true), endedProduct(true)},
		markErr:  errors.New("db down"),
	}
	notifier := &fakeNotifier{}
	w := NewWorker(source, notifier, 100, zap.NewNop())

	require.NoError(t, w.Sweep(context.Background()))
	// Both products still reached the notifier.
	assert.Len(t, notifier.ended, 2)
}
