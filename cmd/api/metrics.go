package main

import (
	"context"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	bidsPlacedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "auction",
			Subsystem: "bidding",
			Name:      "bids_placed_total",
			Help:      "Total number of accepted bids",
		},
		[]string{"sold", "extended"},
	)

	bidsRefusedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "auction",
			Subsystem: "bidding",
			Name:      "bids_refused_total",
			Help:      "Total number of refused bid attempts by reason",
		},
		[]string{"code"},
	)

	buyNowTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "auction",
			Subsystem: "bidding",
			Name:      "buy_now_total",
			Help:      "Total number of buy-now purchases",
		},
	)

	rejectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "auction",
			Subsystem: "bidding",
			Name:      "bidder_rejections_total",
			Help:      "Total number of seller-initiated bidder rejections",
		},
	)
)

// prometheusMetrics implements the coordinator's metrics contract.
type prometheusMetrics struct{}

func (prometheusMetrics) RecordBidPlaced(ctx context.Context, sold, extended bool) {
	bidsPlacedTotal.WithLabelValues(strconv.FormatBool(sold), strconv.FormatBool(extended)).Inc()
}

func (prometheusMetrics) RecordBidRefused(ctx context.Context, code string) {
	bidsRefusedTotal.WithLabelValues(code).Inc()
}

func (prometheusMetrics) RecordBuyNow(ctx context.Context) {
	buyNowTotal.Inc()
}

func (prometheusMetrics) RecordBidderRejection(ctx context.Context) {
	rejectionsTotal.Inc()
}

// MetricsHandler returns the Prometheus scrape handler.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
