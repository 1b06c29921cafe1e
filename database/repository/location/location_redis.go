package locationRepo

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"snapnow/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	keyPrefix     = "livelocation:"
	channelPrefix = "livelocation:events:"

	// TombstoneTTL is how long a cleared location keeps its timestamp so
	// that publishes stamped before the clear are still rejected.
	TombstoneTTL = time.Minute
)

// saveIfNewer writes the location only when its timestamp is not older
// than the stored one. Concurrent publishes may land out of order.
var saveIfNewer = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'ts')
if current and tonumber(current) > tonumber(ARGV[2]) then
	return 0
end
redis.call('HSET', KEYS[1], 'data', ARGV[1], 'ts', ARGV[2])
if tonumber(ARGV[3]) > 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[3])
else
	redis.call('PERSIST', KEYS[1])
end
return 1
`)

// clearLocation drops the location but keeps the newest timestamp as a
// tombstone until it expires.
var clearLocation = redis.NewScript(`
local ts = ARGV[1]
local current = redis.call('HGET', KEYS[1], 'ts')
if current and tonumber(current) > tonumber(ts) then
	ts = current
end
redis.call('HDEL', KEYS[1], 'data')
redis.call('HSET', KEYS[1], 'ts', ts)
redis.call('PEXPIRE', KEYS[1], ARGV[2])
return 1
`)

// RedisLocationRepo implements LocationRepository on Redis hashes and pub/sub.
type RedisLocationRepo struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisLocationRepo creates a LocationRepository backed by client.
func NewRedisLocationRepo(client *redis.Client, logger *zap.Logger) LocationRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLocationRepo{client: client, logger: logger}
}

func locationKey(bookingID, userType string) string {
	return keyPrefix + bookingID + ":" + userType
}

func eventChannel(bookingID string) string {
	return channelPrefix + bookingID
}

// Save stores loc unless a newer one is already present.
func (r *RedisLocationRepo) Save(ctx context.Context, loc *models.LiveLocation, ttl time.Duration) (bool, error) {
	data, err := json.Marshal(loc)
	if err != nil {
		return false, fmt.Errorf("failed to marshal live location: %w", err)
	}
	ts := strconv.FormatInt(loc.UpdatedAt.UnixMicro(), 10)
	written, err := saveIfNewer.Run(ctx, r.client,
		[]string{locationKey(loc.BookingID, loc.UserType)},
		string(data), ts, ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("failed to save live location: %w", err)
	}
	return written == 1, nil
}

// Get returns the stored location or nil.
func (r *RedisLocationRepo) Get(ctx context.Context, bookingID, userType string) (*models.LiveLocation, error) {
	data, err := r.client.HGet(ctx, locationKey(bookingID, userType), "data").Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read live location: %w", err)
	}
	var loc models.LiveLocation
	if err := json.Unmarshal([]byte(data), &loc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal live location: %w", err)
	}
	return &loc, nil
}

// Delete clears a party's location as of at.
func (r *RedisLocationRepo) Delete(ctx context.Context, bookingID, userType string, at time.Time) error {
	err := clearLocation.Run(ctx, r.client,
		[]string{locationKey(bookingID, userType)},
		strconv.FormatInt(at.UnixMicro(), 10), TombstoneTTL.Milliseconds(),
	).Err()
	if err != nil {
		return fmt.Errorf("failed to delete live location: %w", err)
	}
	return nil
}

// Publish sends event on the booking's channel.
func (r *RedisLocationRepo) Publish(ctx context.Context, event models.LiveLocationEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal live location event: %w", err)
	}
	if err := r.client.Publish(ctx, eventChannel(event.BookingID), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish live location event: %w", err)
	}
	return nil
}

// Subscribe streams events published for bookingID.
func (r *RedisLocationRepo) Subscribe(ctx context.Context, bookingID string) (<-chan models.LiveLocationEvent, func() error, error) {
	pubsub := r.client.Subscribe(ctx, eventChannel(bookingID))
	// Wait for the subscription to be confirmed so no publish is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("failed to subscribe to live location events: %w", err)
	}

	events := make(chan models.LiveLocationEvent, 16)
	go func() {
		defer close(events)
		for msg := range pubsub.Channel() {
			var event models.LiveLocationEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				r.logger.Warn("Dropping malformed live location event",
					zap.String("bookingID", bookingID), zap.Error(err))
				continue
			}
			select {
			case events <- event:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, pubsub.Close, nil
}
