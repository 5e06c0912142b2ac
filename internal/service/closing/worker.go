package closing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/auctionhub/online-auction-backend/internal/domain/auction"
)

// ProductSource feeds the sweep with ended-but-unannounced auctions.
type ProductSource interface {
	ListNewlyEnded(ctx context.Context, limit int) ([]*auction.Product, error)
	MarkEndNotificationSent(ctx context.Context, productID uuid.UUID) error
}

// Notifier receives the ended auctions the sweep finds. AuctionEnded
// reports whether the event was accepted for delivery.
type Notifier interface {
	AuctionEnded(p *auction.Product) bool
}

// Worker periodically sweeps for auctions whose end time has passed and
// hands them to the notifier exactly once. Bidding correctness never
// depends on this job: the coordinator checks end_at itself, the sweep
// only drives the end-of-auction messaging.
type Worker struct {
	source    ProductSource
	notifier  Notifier
	logger    *zap.Logger
	batchSize int

	cron    *cron.Cron
	entryID cron.EntryID
}

func NewWorker(source ProductSource, notifier Notifier, batchSize int, logger *zap.Logger) *Worker {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Worker{
		source:    source,
		notifier:  notifier,
		logger:    logger,
		batchSize: batchSize,
		cron:      cron.New(),
	}
}

// Start schedules the sweep. The schedule is a cron expression, including
// the @every form.
func (w *Worker) Start(schedule string) error {
	id, err := w.cron.AddFunc(schedule, w.sweep)
	if err != nil {
		return err
	}
	w.entryID = id
	w.cron.Start()
	w.logger.Info("auction closing worker started", zap.String("schedule", schedule))
	return nil
}

// Stop halts scheduling and waits for a running sweep to finish.
func (w *Worker) Stop() {
	ctx := w.cron.Stop()
	<-ctx.Done()
	w.logger.Info("auction closing worker stopped")
}

func (w *Worker) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := w.Sweep(ctx); err != nil {
		w.logger.Error("auction end sweep failed", zap.Error(err))
	}
}

// Sweep processes one batch of newly ended auctions.
func (w *Worker) Sweep(ctx context.Context) error {
	products, err := w.source.ListNewlyEnded(ctx, w.batchSize)
	if err != nil {
		return err
	}

	for _, p := range products {
		// Mark only after the notifier accepts the event: a dropped event
		// stays unmarked and is retried next sweep. A crash between accept
		// and mark repeats the notification, the lesser evil for messaging.
		if !w.notifier.AuctionEnded(p) {
			w.logger.Warn("end notification not accepted, retrying next sweep",
				zap.String("product_id", p.ID.String()))
			continue
		}
		if err := w.source.MarkEndNotificationSent(ctx, p.ID); err != nil {
			w.logger.Error("failed to mark end notification sent",
				zap.String("product_id", p.ID.String()),
				zap.Error(err))
			continue
		}
		w.logger.Info("auction ended",
			zap.String("product_id", p.ID.String()),
			zap.String("status", auction.ClassifyStatus(p, time.Now()).String()),
			zap.Bool("has_winner", p.HighestBidderID != nil))
	}
	return nil
}
