package database

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/auctionhub/online-auction-backend/internal/domain/auction"
	"github.com/auctionhub/online-auction-backend/internal/infrastructure/config"
	"github.com/auctionhub/online-auction-backend/internal/service/bidding"
)

const (
	settingAutoExtendTrigger  = "auto_extend_trigger_minutes"
	settingAutoExtendDuration = "auto_extend_duration_minutes"
)

// settingsRepository serves admin-configured auction policy from the
// system_settings table, with the config defaults as fallback. Values are
// cached briefly so the locked bid path does not pay a lookup per bid.
type settingsRepository struct {
	pool     *pgxpool.Pool
	logger   *zap.Logger
	fallback auction.ExtensionPolicy
	ttl      time.Duration

	mu        sync.RWMutex
	cached    auction.ExtensionPolicy
	fetchedAt time.Time
}

// NewSettingsRepository creates the system settings provider.
func NewSettingsRepository(pool *pgxpool.Pool, cfg *config.AuctionConfig, logger *zap.Logger) bidding.SettingsProvider {
	return &settingsRepository{
		pool:   pool,
		logger: logger,
		fallback: auction.ExtensionPolicy{
			Trigger:   cfg.AutoExtendTrigger,
			Extension: cfg.AutoExtendDuration,
		},
		ttl: cfg.SettingsCacheTTL,
	}
}

func (r *settingsRepository) AutoExtendPolicy(ctx context.Context) (auction.ExtensionPolicy, error) {
	r.mu.RLock()
	if r.ttl > 0 && time.Since(r.fetchedAt) < r.ttl {
		policy := r.cached
		r.mu.RUnlock()
		return policy, nil
	}
	r.mu.RUnlock()

	policy, err := r.load(ctx)
	if err != nil {
		// Settings are advisory; a read failure falls back to the
		// configured defaults rather than refusing the bid.
		r.logger.Warn("system settings lookup failed, using defaults", zap.Error(err))
		return r.fallback, nil
	}

	r.mu.Lock()
	r.cached = policy
	r.fetchedAt = time.Now()
	r.mu.Unlock()

	return policy, nil
}

func (r *settingsRepository) load(ctx context.Context) (auction.ExtensionPolicy, error) {
	query := `
		SELECT key, value
		FROM system_settings
		WHERE key IN ($1, $2)`
	rows, err := r.pool.Query(ctx, query, settingAutoExtendTrigger, settingAutoExtendDuration)
	if err != nil {
		return auction.ExtensionPolicy{}, fmt.Errorf("failed to query system settings: %w", err)
	}
	defer rows.Close()

	policy := r.fallback
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return auction.ExtensionPolicy{}, fmt.Errorf("failed to scan setting: %w", err)
		}
		minutes, err := strconv.Atoi(value)
		if err != nil {
			r.logger.Warn("ignoring malformed system setting",
				zap.String("key", key),
				zap.String("value", value))
			continue
		}
		switch key {
		case settingAutoExtendTrigger:
			policy.Trigger = time.Duration(minutes) * time.Minute
		case settingAutoExtendDuration:
			policy.Extension = time.Duration(minutes) * time.Minute
		}
	}
	if err := rows.Err(); err != nil {
		return auction.ExtensionPolicy{}, fmt.Errorf("failed to iterate settings: %w", err)
	}
	return policy, nil
}
