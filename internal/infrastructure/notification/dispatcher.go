package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/auctionhub/online-auction-backend/internal/domain/auction"
	"github.com/auctionhub/online-auction-backend/internal/service/bidding"
)

// Event is one post-commit notification unit.
type Event struct {
	Type       string      `json:"type"`
	ProductID  uuid.UUID   `json:"product_id"`
	OccurredAt time.Time   `json:"occurred_at"`
	Payload    interface{} `json:"payload"`
}

const (
	EventBidPlaced      = "auction.bid_placed"
	EventOutbid         = "auction.outbid"
	EventSold           = "auction.sold"
	EventBidderRejected = "auction.bidder_rejected"
	EventEnded          = "auction.ended"
)

// EventPublisher fans an event out to external consumers.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// Mailer delivers one user-facing message. The dispatcher owns message
// composition; the rest of the system only ever hands over result summaries.
type Mailer interface {
	Send(ctx context.Context, userID uuid.UUID, subject, body string) error
}

// Dispatcher consumes result summaries strictly after commit. Enqueueing
// never blocks: when the buffer is full the event is dropped with a log
// line, because a committed auction operation must never wait on, or fail
// because of, messaging.
type Dispatcher struct {
	events    chan Event
	publisher EventPublisher
	mailer    Mailer
	logger    *zap.Logger

	wg       sync.WaitGroup
	stopOnce sync.Once
	stop     chan struct{}
}

// NewDispatcher creates a dispatcher with the given buffer size. Publisher
// and mailer may be nil; missing sinks are skipped.
func NewDispatcher(queueSize int, publisher EventPublisher, mailer Mailer, logger *zap.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &Dispatcher{
		events:    make(chan Event, queueSize),
		publisher: publisher,
		mailer:    mailer,
		logger:    logger,
		stop:      make(chan struct{}),
	}
}

// Start launches the delivery worker.
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop drains the queue and waits for in-flight deliveries.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() { close(d.stop) })
	d.wg.Wait()
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case event := <-d.events:
			d.deliver(event)
		case <-d.stop:
			// Drain whatever was enqueued before shutdown.
			for {
				select {
				case event := <-d.events:
					d.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) enqueue(event Event) bool {
	select {
	case d.events <- event:
		return true
	default:
		d.logger.Warn("notification queue full, dropping event",
			zap.String("type", event.Type),
			zap.String("product_id", event.ProductID.String()))
		return false
	}
}

// deliver pushes one event to every configured sink. Failures are logged
// and swallowed; the auction state this event describes is already durable.
func (d *Dispatcher) deliver(event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if d.publisher != nil {
		if err := d.publisher.Publish(ctx, event); err != nil {
			d.logger.Error("failed to publish notification event",
				zap.String("type", event.Type),
				zap.Error(err))
		}
	}
	for _, m := range composeMessages(event) {
		if d.mailer == nil {
			break
		}
		if err := d.mailer.Send(ctx, m.to, m.subject, m.body); err != nil {
			d.logger.Error("failed to send notification mail",
				zap.String("type", event.Type),
				zap.String("recipient", m.to.String()),
				zap.Error(err))
		}
	}
}

// BidPlaced implements bidding.Dispatcher.
func (d *Dispatcher) BidPlaced(result *bidding.BidResult) {
	d.enqueue(Event{
		Type:       EventBidPlaced,
		ProductID:  result.ProductID,
		OccurredAt: time.Now(),
		Payload:    result,
	})
	if result.PreviousLeader != nil && *result.PreviousLeader != result.NewLeader {
		d.enqueue(Event{
			Type:       EventOutbid,
			ProductID:  result.ProductID,
			OccurredAt: time.Now(),
			Payload:    result,
		})
	}
	if result.Sold {
		d.enqueue(Event{
			Type:       EventSold,
			ProductID:  result.ProductID,
			OccurredAt: time.Now(),
			Payload:    result,
		})
	}
}

// ProductPurchased implements bidding.Dispatcher.
func (d *Dispatcher) ProductPurchased(result *bidding.PurchaseResult) {
	d.enqueue(Event{
		Type:       EventSold,
		ProductID:  result.ProductID,
		OccurredAt: time.Now(),
		Payload:    result,
	})
}

// BidderRejected implements bidding.Dispatcher.
func (d *Dispatcher) BidderRejected(result *bidding.RejectionResult) {
	d.enqueue(Event{
		Type:       EventBidderRejected,
		ProductID:  result.ProductID,
		OccurredAt: time.Now(),
		Payload:    result,
	})
}

// AuctionEnded reports a naturally ended auction found by the closing
// sweep. It returns whether the event was accepted: unlike the post-commit
// bid events, the sweep persists a sent flag and must not do so for an
// event that was dropped.
func (d *Dispatcher) AuctionEnded(p *auction.Product) bool {
	return d.enqueue(Event{
		Type:       EventEnded,
		ProductID:  p.ID,
		OccurredAt: time.Now(),
		Payload:    p,
	})
}

type message struct {
	to      uuid.UUID
	subject string
	body    string
}

// composeMessages renders the user-facing mails for one event. Templates
// live here and nowhere else.
func composeMessages(event Event) []message {
	switch event.Type {
	case EventBidPlaced:
		r, ok := event.Payload.(*bidding.BidResult)
		if !ok {
			return nil
		}
		return []message{{
			to:      r.SellerID,
			subject: fmt.Sprintf("New bid on %s", r.ProductName),
			body:    fmt.Sprintf("The price of %s is now %s.", r.ProductName, r.NewPrice),
		}}
	case EventOutbid:
		r, ok := event.Payload.(*bidding.BidResult)
		if !ok || r.PreviousLeader == nil {
			return nil
		}
		return []message{{
			to:      *r.PreviousLeader,
			subject: fmt.Sprintf("You have been outbid on %s", r.ProductName),
			body:    fmt.Sprintf("Another bidder raised the price of %s to %s.", r.ProductName, r.NewPrice),
		}}
	case EventSold:
		switch r := event.Payload.(type) {
		case *bidding.BidResult:
			return []message{
				{
					to:      r.SellerID,
					subject: fmt.Sprintf("%s has been sold", r.ProductName),
					body:    fmt.Sprintf("%s sold for %s.", r.ProductName, r.NewPrice),
				},
				{
					to:      r.NewLeader,
					subject: fmt.Sprintf("You won %s", r.ProductName),
					body:    fmt.Sprintf("You won %s at %s.", r.ProductName, r.NewPrice),
				},
			}
		case *bidding.PurchaseResult:
			return []message{
				{
					to:      r.SellerID,
					subject: fmt.Sprintf("%s has been sold", r.ProductName),
					body:    fmt.Sprintf("%s was purchased outright for %s.", r.ProductName, r.Price),
				},
				{
					to:      r.BuyerID,
					subject: fmt.Sprintf("You bought %s", r.ProductName),
					body:    fmt.Sprintf("You purchased %s for %s.", r.ProductName, r.Price),
				},
			}
		}
		return nil
	case EventBidderRejected:
		r, ok := event.Payload.(*bidding.RejectionResult)
		if !ok {
			return nil
		}
		return []message{{
			to:      r.BidderID,
			subject: "Your bid was declined",
			body:    fmt.Sprintf("The seller of %s declined your bids.", r.ProductName),
		}}
	case EventEnded:
		p, ok := event.Payload.(*auction.Product)
		if !ok {
			return nil
		}
		msgs := []message{{
			to:      p.SellerID,
			subject: fmt.Sprintf("Auction for %s has ended", p.Name),
			body:    auctionEndedBody(p),
		}}
		if p.HighestBidderID != nil {
			msgs = append(msgs, message{
				to:      *p.HighestBidderID,
				subject: fmt.Sprintf("You won the auction for %s", p.Name),
				body:    fmt.Sprintf("Your bid of %s won %s.", p.CurrentPrice, p.Name),
			})
		}
		return msgs
	}
	return nil
}

func auctionEndedBody(p *auction.Product) string {
	if p.HighestBidderID == nil {
		return fmt.Sprintf("The auction for %s ended without any bids.", p.Name)
	}
	return fmt.Sprintf("The auction for %s ended at %s.", p.Name, p.CurrentPrice)
}
