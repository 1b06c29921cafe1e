package bookingRepo

import (
	"context"
	"encoding/json"
	"time"

	"snapnow/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const bookingCachePrefix = "booking:"

// CachedBookingRepo keeps recently read bookings in Redis. Location
// publishes arrive every few seconds per device, so the booking behind
// them is read far more often than it changes.
type CachedBookingRepo struct {
	next   BookingRepository
	cache  *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedBookingRepo wraps next with a Redis read-through cache.
func NewCachedBookingRepo(next BookingRepository, cache *redis.Client, ttl time.Duration, logger *zap.Logger) BookingRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedBookingRepo{next: next, cache: cache, ttl: ttl, logger: logger}
}

// GetByID returns the cached booking or loads and caches it.
func (r *CachedBookingRepo) GetByID(ctx context.Context, id string) (*models.Booking, error) {
	key := bookingCachePrefix + id

	data, err := r.cache.Get(ctx, key).Bytes()
	if err == nil {
		var booking models.Booking
		if jsonErr := json.Unmarshal(data, &booking); jsonErr == nil {
			return &booking, nil
		}
	} else if err != redis.Nil {
		// Treat as a cache miss.
		r.logger.Warn("Booking cache read failed", zap.String("bookingID", id), zap.Error(err))
	}

	booking, err := r.next.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(booking); err == nil {
		if err := r.cache.Set(ctx, key, data, r.ttl).Err(); err != nil {
			r.logger.Warn("Booking cache write failed", zap.String("bookingID", id), zap.Error(err))
		}
	}
	return booking, nil
}
