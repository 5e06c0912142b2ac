package rest

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/auctionhub/online-auction-backend/internal/infrastructure/config"
	"github.com/auctionhub/online-auction-backend/internal/infrastructure/database"
	"github.com/auctionhub/online-auction-backend/internal/service/bidding"
)

// Server is the thin HTTP surface over the auction coordinator. Rendering,
// sessions, and the rest of the marketplace web layer live elsewhere; this
// process only exposes the auction operations and a status read.
type Server struct {
	http    *http.Server
	logger  *zap.Logger
	handler *Handler
}

func NewServer(
	cfg *config.Config,
	svc bidding.Service,
	products *database.ProductRepository,
	pool *database.ConnectionPool,
	logger *zap.Logger,
) *Server {
	handler := &Handler{
		svc:      svc,
		products: products,
		pool:     pool,
		logger:   logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handler.Health)
	mux.HandleFunc("GET /api/v1/products/{id}/auction", handler.GetAuctionStatus)
	mux.HandleFunc("POST /api/v1/products/{id}/bids", handler.PlaceBid)
	mux.HandleFunc("POST /api/v1/products/{id}/purchase", handler.BuyNow)
	mux.HandleFunc("POST /api/v1/products/{id}/rejections", handler.RejectBidder)
	mux.HandleFunc("DELETE /api/v1/products/{id}/rejections/{bidderId}", handler.UnrejectBidder)

	chain := Chain(mux,
		Recovery(logger),
		RequestLogging(logger),
		RateLimit(cfg.RateLimit, logger),
	)

	return &Server{
		http: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:      chain,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
		logger:  logger,
		handler: handler,
	}
}

// Start blocks serving requests until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("http server listening", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
