package database

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/auctionhub/online-auction-backend/internal/domain/errors"
	"github.com/auctionhub/online-auction-backend/internal/infrastructure/config"
)

// lock_not_available: the row lock wait exceeded lock_timeout.
const pgLockNotAvailable = "55P03"

// ConnectionPool wraps a pgx pool with a circuit breaker, periodic health
// checks, and pool metrics. Row-lock timeouts are surfaced as retryable
// domain conflicts so callers can simply re-submit.
type ConnectionPool struct {
	pool            *pgxpool.Pool
	config          *config.DatabaseConfig
	logger          *zap.Logger
	healthCheckStop chan struct{}
	stopOnce        sync.Once
	metrics         *ConnectionMetrics
	circuitBreaker  *CircuitBreaker
}

// ConnectionMetrics tracks pool and transaction counters.
type ConnectionMetrics struct {
	mu sync.RWMutex

	TotalConnections  int64
	ActiveConnections int64
	IdleConnections   int64

	TransactionsStarted    int64
	TransactionsCommitted  int64
	TransactionsRolledBack int64
	LockTimeouts           int64

	LastHealthCheck time.Time
}

// CircuitBreaker trips after consecutive transaction failures and lets a
// probe through once the cool-down passes.
type CircuitBreaker struct {
	mu              sync.Mutex
	failureCount    int
	lastFailureTime time.Time
	state           CircuitState
	timeout         time.Duration
	threshold       int
}

type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

// NewConnectionPool connects to the database and starts the background
// health check and metrics routines.
func NewConnectionPool(cfg *config.DatabaseConfig, logger *zap.Logger) (*ConnectionPool, error) {
	p := &ConnectionPool{
		config:          cfg,
		logger:          logger,
		healthCheckStop: make(chan struct{}),
		metrics:         &ConnectionMetrics{},
		circuitBreaker: &CircuitBreaker{
			timeout:   30 * time.Second,
			threshold: 10,
			state:     CircuitClosed,
		},
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	p.configurePool(poolConfig)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	p.pool, err = pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := p.pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	go p.healthCheckRoutine()
	go p.metricsCollectionRoutine()

	logger.Info("database connection pool initialized",
		zap.Int32("max_connections", poolConfig.MaxConns),
		zap.Duration("lock_timeout", cfg.LockTimeout))

	return p, nil
}

func (p *ConnectionPool) configurePool(pc *pgxpool.Config) {
	if p.config.MaxOpenConns > 0 {
		pc.MaxConns = int32(p.config.MaxOpenConns)
	} else {
		pc.MaxConns = 25
	}
	if p.config.MinIdleConns > 0 {
		pc.MinConns = int32(p.config.MinIdleConns)
	} else {
		pc.MinConns = 5
	}
	if p.config.ConnMaxLifetime > 0 {
		pc.MaxConnLifetime = p.config.ConnMaxLifetime
	} else {
		pc.MaxConnLifetime = 30 * time.Minute
	}
	pc.MaxConnIdleTime = 10 * time.Minute
	pc.HealthCheckPeriod = 1 * time.Minute

	pc.ConnConfig.ConnectTimeout = 5 * time.Second

	lockTimeout := p.config.LockTimeout
	if lockTimeout <= 0 {
		lockTimeout = 5 * time.Second
	}
	pc.ConnConfig.RuntimeParams = map[string]string{
		"application_name":                    "auction_backend",
		"timezone":                            "UTC",
		"lock_timeout":                        fmt.Sprintf("%dms", lockTimeout.Milliseconds()),
		"statement_timeout":                   "30s",
		"idle_in_transaction_session_timeout": "60s",
		"default_transaction_isolation":       "read committed",
	}

	pc.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		p.metrics.mu.Lock()
		p.metrics.TotalConnections++
		p.metrics.mu.Unlock()
		return nil
	}

	pc.BeforeAcquire = func(ctx context.Context, conn *pgx.Conn) bool {
		return p.circuitBreaker.Allow()
	}
}

// Pool exposes the underlying pgx pool for read-path queries.
func (p *ConnectionPool) Pool() *pgxpool.Pool {
	return p.pool
}

// Transaction executes fn inside a transaction; any error rolls it back.
// A lock wait that exceeds lock_timeout comes back as a retryable conflict.
func (p *ConnectionPool) Transaction(ctx context.Context, fn func(pgx.Tx) error) error {
	p.metrics.mu.Lock()
	p.metrics.TransactionsStarted++
	p.metrics.mu.Unlock()

	err := pgx.BeginTxFunc(ctx, p.pool, pgx.TxOptions{}, fn)

	p.metrics.mu.Lock()
	if err != nil {
		p.metrics.TransactionsRolledBack++
	} else {
		p.metrics.TransactionsCommitted++
	}
	p.metrics.mu.Unlock()

	if err != nil {
		return p.translateTxError(err)
	}

	p.circuitBreaker.RecordSuccess()
	return nil
}

// translateTxError maps transaction failures onto domain errors. A lock
// wait that exceeded lock_timeout becomes the retryable conflict; anything
// else counts against the circuit breaker and passes through.
func (p *ConnectionPool) translateTxError(err error) error {
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) && pgErr.Code == pgLockNotAvailable {
		p.metrics.mu.Lock()
		p.metrics.LockTimeouts++
		p.metrics.mu.Unlock()
		return errors.ErrLockContention.WithCause(err)
	}
	p.circuitBreaker.RecordFailure()
	return err
}

func (p *ConnectionPool) healthCheckRoutine() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.performHealthCheck()
		case <-p.healthCheckStop:
			return
		}
	}
}

func (p *ConnectionPool) performHealthCheck() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.pool.Ping(ctx); err != nil {
		p.logger.Error("database health check failed", zap.Error(err))
		p.circuitBreaker.RecordFailure()
	}

	p.metrics.mu.Lock()
	p.metrics.LastHealthCheck = time.Now()
	p.metrics.mu.Unlock()
}

func (p *ConnectionPool) metricsCollectionRoutine() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stats := p.pool.Stat()
			p.metrics.mu.Lock()
			p.metrics.ActiveConnections = int64(stats.AcquiredConns())
			p.metrics.IdleConnections = int64(stats.IdleConns())
			p.metrics.mu.Unlock()
		case <-p.healthCheckStop:
			return
		}
	}
}

// Snapshot returns a copy of the current metrics.
func (p *ConnectionPool) Snapshot() ConnectionMetrics {
	p.metrics.mu.RLock()
	defer p.metrics.mu.RUnlock()
	return ConnectionMetrics{
		TotalConnections:       p.metrics.TotalConnections,
		ActiveConnections:      p.metrics.ActiveConnections,
		IdleConnections:        p.metrics.IdleConnections,
		TransactionsStarted:    p.metrics.TransactionsStarted,
		TransactionsCommitted:  p.metrics.TransactionsCommitted,
		TransactionsRolledBack: p.metrics.TransactionsRolledBack,
		LockTimeouts:           p.metrics.LockTimeouts,
		LastHealthCheck:        p.metrics.LastHealthCheck,
	}
}

// Close stops the background routines and closes the pool.
func (p *ConnectionPool) Close() error {
	p.stopOnce.Do(func() { close(p.healthCheckStop) })
	p.pool.Close()
	p.logger.Info("database connection pool closed")
	return nil
}

func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return true
	case CircuitOpen:
		if time.Since(cb.lastFailureTime) > cb.timeout {
			cb.state = CircuitHalfOpen
			return true
		}
		return false
	case CircuitHalfOpen:
		return true
	}
	return false
}

func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount = 0
	cb.state = CircuitClosed
}

func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount++
	cb.lastFailureTime = time.Now()

	if cb.failureCount >= cb.threshold {
		cb.state = CircuitOpen
	}
}
